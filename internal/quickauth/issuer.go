package quickauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultIssuerURL is the public Farcaster Quick Auth service.
const DefaultIssuerURL = "https://auth.farcaster.xyz"

// IssuerClient talks to the Quick Auth issuing service: it hands out nonces
// and trades a verified SIWE signature for a bearer token.
type IssuerClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewIssuerClient creates a client for the issuing service at baseURL.
func NewIssuerClient(baseURL string) *IssuerClient {
	if baseURL == "" {
		baseURL = DefaultIssuerURL
	}
	return &IssuerClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 8 * time.Second},
	}
}

// GenerateNonce requests a fresh sign-in nonce.
func (c *IssuerClient) GenerateNonce(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/nonce", nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("nonce request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		log.Warn().
			Int("status", resp.StatusCode).
			Str("body", string(body)).
			Msg("quick auth nonce request rejected")
		return "", fmt.Errorf("nonce request returned status %d", resp.StatusCode)
	}

	var nonceResp struct {
		Nonce string `json:"nonce"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&nonceResp); err != nil {
		return "", fmt.Errorf("failed to parse nonce response: %w", err)
	}
	if nonceResp.Nonce == "" {
		return "", fmt.Errorf("issuer returned empty nonce")
	}

	return nonceResp.Nonce, nil
}

// VerifySIWF submits a signed message for verification and returns the minted
// bearer token.
func (c *IssuerClient) VerifySIWF(ctx context.Context, domain, message, signature string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"domain":    domain,
		"message":   message,
		"signature": signature,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/verify-siwf", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("verify request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		log.Warn().
			Int("status", resp.StatusCode).
			Str("domain", domain).
			Str("body", string(body)).
			Msg("quick auth verification rejected")
		return "", fmt.Errorf("verification returned status %d", resp.StatusCode)
	}

	var verifyResp struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&verifyResp); err != nil {
		return "", fmt.Errorf("failed to parse verification response: %w", err)
	}
	if verifyResp.Token == "" {
		return "", fmt.Errorf("issuer returned empty token")
	}

	return verifyResp.Token, nil
}
