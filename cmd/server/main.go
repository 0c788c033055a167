package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nounspace/miniapp-host/internal/channel"
	"github.com/nounspace/miniapp-host/internal/httpapi"
	"github.com/nounspace/miniapp-host/internal/proxy"
	"github.com/nounspace/miniapp-host/internal/quickauth"
	"github.com/nounspace/miniapp-host/internal/rpc"
	"github.com/nounspace/miniapp-host/internal/session"
)

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatal().Str("key", k).Str("value", v).Msg("invalid duration")
	}
	return d
}

func main() {
	// Local overrides; missing file is fine
	_ = godotenv.Load()

	// Configure structured logging
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.With().Str("service", "miniapp-host").Logger()

	// Pretty logging for local dev (only when explicitly set to "dev")
	if env("ENV", "") == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	sessionTTL := envDuration("SESSION_TTL", 30*time.Minute)
	sessions := session.NewRegistry(sessionTTL)

	// HOST_DOMAIN scopes which upstreams receive the host's own tokens; it
	// should match the domain this service is reachable on.
	hostDomain := env("HOST_DOMAIN", "")
	tokens := quickauth.NewService(quickauth.Config{
		Issuer:     quickauth.NewIssuerClient(env("QUICK_AUTH_URL", quickauth.DefaultIssuerURL)),
		HostDomain: hostDomain,
	})

	srv := &httpapi.Server{
		Sessions:        sessions,
		Tokens:          tokens,
		Exposer:         rpc.NewExposer(),
		Bus:             channel.NewSource(),
		Fetcher:         proxy.NewFetcher(),
		HostOrigin:      env("HOST_ORIGIN", ""),
		RateLimitConfig: httpapi.DefaultRateLimitConfig,
	}

	httpAddr := env("HTTP_ADDR", ":8081")
	httpServer := &http.Server{
		Addr:         httpAddr,
		Handler:      srv.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // bridge connections are long-lived
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", httpAddr).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("server stopped")
}
