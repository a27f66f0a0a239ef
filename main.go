// Package main is the entry point for the agent-relay service.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agent-relay/config"
	"agent-relay/driver"
	"agent-relay/gateway"
	"agent-relay/metrics"
	"agent-relay/rest"
	"agent-relay/usecase"
	"agent-relay/utils/logger"
)

func main() {
	log := logger.Init()
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.ErrorContext(ctx, "failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.InfoContext(ctx, "configuration loaded",
		"port", cfg.Port,
		"redis", cfg.RedisAddr(),
		"signature_mode", cfg.SignatureMode,
		"relay_timeout", cfg.RelayTimeout,
		"session_ttl", cfg.SessionTTL)

	// Cache store
	store := driver.NewRedisDriver(cfg.RedisAddr(), cfg.RedisDB)
	defer store.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := store.Ping(pingCtx); err != nil {
		// Degrades to uncached operation; the service still starts.
		slog.WarnContext(ctx, "cache store unreachable at startup", "error", err)
		metrics.SetRedisDisconnected()
	} else {
		metrics.SetRedisConnected()
	}
	cancel()

	// Platform bot token: JWT-bearer flow cached under one store key.
	worksAuth := driver.NewWorksAuthClient(driver.WorksAuthConfig{
		ClientID:       cfg.ClientID,
		ClientSecret:   cfg.ClientSecret,
		ServiceAccount: cfg.ServiceAccount,
		PrivateKeyPath: cfg.PrivateKeyPath,
		Scope:          cfg.Scope,
	}, log)
	botTokens := gateway.NewCredentialCache(store, worksAuth, gateway.CredentialCacheConfig{
		Key: "lw_bot:access_token",
	}, log)

	// Agent backend token: client-credentials flow with no usable expiry,
	// pinned to a fixed lifetime window.
	agentforce := driver.NewAgentforceClient(driver.AgentforceConfig{
		ClientID:     cfg.AgentClientID,
		ClientSecret: cfg.AgentClientSecret,
		BaseURL:      cfg.AgentBaseURL,
	}, log)
	agentTokens := gateway.NewCredentialCache(store, agentforce, gateway.CredentialCacheConfig{
		Key:           "sf_agent:access_token",
		FixedLifetime: 5 * time.Minute,
	}, log)

	agentClient := gateway.NewAgentGateway(agentforce, agentTokens, log)
	sessions := gateway.NewSessionGateway(store, agentClient, cfg.SessionTTL, log)

	assistant := driver.NewClaudeClient(cfg.AnthropicAPIKey, cfg.AnthropicModel, "", log)
	bot := driver.NewWorksBotClient(cfg.BotID, "", botTokens, log)

	relay := usecase.NewRelayUsecase(
		assistant, sessions, agentClient, bot,
		cfg.AgentID, cfg.TerminationPhrases, cfg.RelayTimeout, log,
	)

	// HTTP surface
	e := rest.New()
	handler := rest.NewHandler(relay, rest.HandlerConfig{
		BotSecret:     cfg.BotSecret,
		BotID:         cfg.BotID,
		SignatureMode: cfg.SignatureMode,
	}, log)
	handler.Register(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	go func() {
		slog.InfoContext(ctx, "starting agent-relay server", "address", ":"+cfg.Port)
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	slog.InfoContext(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(ctx, "server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.InfoContext(ctx, "server exited properly")
}
