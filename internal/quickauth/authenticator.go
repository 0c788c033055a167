package quickauth

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// MethodCall addresses one operation on an installed authenticator. The host
// never touches key material directly; signing is delegated through this
// indirection.
type MethodCall struct {
	RequestingFidgetID string `json:"requestingFidgetId"`
	AuthenticatorID    string `json:"authenticatorId"`
	MethodName         string `json:"methodName"`
	IsLookup           bool   `json:"isLookup,omitempty"`
}

// MethodResult is the authenticator's answer to a method call.
type MethodResult struct {
	Result string          `json:"result"` // "success" or a failure tag
	Value  json.RawMessage `json:"value,omitempty"`
	Reason string          `json:"reason,omitempty"`
}

// Authenticator is the signing capability injected by the embedding page.
type Authenticator interface {
	CallMethod(ctx context.Context, call MethodCall, args ...any) (MethodResult, error)
}

const (
	methodSignMessage       = "signMessage"
	methodGetCustodyAddress = "getCustodyAddress"
)

// signMessage asks the authenticator to sign raw bytes and returns the
// signature hex-encoded with a 0x prefix.
func signMessage(ctx context.Context, auth Authenticator, call MethodCall, message []byte) (string, error) {
	res, err := auth.CallMethod(ctx, call, message)
	if err != nil {
		return "", fmt.Errorf("authenticator signMessage call failed: %w", err)
	}
	if res.Result != "success" {
		return "", fmt.Errorf("authenticator refused signMessage: %s (%s)", res.Result, res.Reason)
	}

	sig, err := decodeSignature(res.Value)
	if err != nil {
		return "", fmt.Errorf("authenticator returned unusable signature: %w", err)
	}
	return "0x" + hex.EncodeToString(sig), nil
}

// custodyAddress looks up the Ethereum address the authenticator signs with.
func custodyAddress(ctx context.Context, auth Authenticator, call MethodCall) (string, error) {
	call.MethodName = methodGetCustodyAddress
	call.IsLookup = true

	res, err := auth.CallMethod(ctx, call)
	if err != nil {
		return "", fmt.Errorf("authenticator address lookup failed: %w", err)
	}
	if res.Result != "success" {
		return "", fmt.Errorf("authenticator refused address lookup: %s (%s)", res.Result, res.Reason)
	}

	var addr string
	if err := json.Unmarshal(res.Value, &addr); err != nil {
		return "", fmt.Errorf("authenticator returned non-string address: %w", err)
	}
	if addr == "" {
		return "", fmt.Errorf("authenticator returned empty address")
	}
	return addr, nil
}

// decodeSignature accepts the two wire shapes authenticators produce for raw
// bytes: a JSON array of byte values, or an object keyed by stringified byte
// index ({"0": 27, "1": 130, ...}).
func decodeSignature(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty signature value")
	}

	var asInts []int
	if err := json.Unmarshal(raw, &asInts); err == nil && len(asInts) > 0 {
		out := make([]byte, len(asInts))
		for i, v := range asInts {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("signature byte %d out of range: %d", i, v)
			}
			out[i] = byte(v)
		}
		return out, nil
	}

	var asObject map[string]int
	if err := json.Unmarshal(raw, &asObject); err == nil && len(asObject) > 0 {
		keys := make([]int, 0, len(asObject))
		for k := range asObject {
			idx, err := strconv.Atoi(k)
			if err != nil {
				return nil, fmt.Errorf("signature object has non-index key %q", k)
			}
			keys = append(keys, idx)
		}
		sort.Ints(keys)

		out := make([]byte, 0, len(keys))
		for i, idx := range keys {
			if idx != i {
				return nil, fmt.Errorf("signature object has gap at index %d", i)
			}
			v := asObject[strconv.Itoa(idx)]
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("signature byte %d out of range: %d", idx, v)
			}
			out = append(out, byte(v))
		}
		return out, nil
	}

	return nil, fmt.Errorf("signature is neither a byte array nor a byte-keyed object")
}
