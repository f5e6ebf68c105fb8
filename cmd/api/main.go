package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/clinic-voice-agent/internal/api/router"
	appconfig "github.com/wolfman30/clinic-voice-agent/internal/config"
	"github.com/wolfman30/clinic-voice-agent/internal/conversation"
	"github.com/wolfman30/clinic-voice-agent/internal/observability/metrics"
	"github.com/wolfman30/clinic-voice-agent/pkg/logging"
)

func main() {
	// Load .env if present; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic-voice-agent API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"llm_provider", cfg.LLMProvider,
	)

	ctx := context.Background()

	m := metrics.NewConversationMetrics(nil)

	fallbacks := conversation.NewFallbackLibrary(cfg.PhrasingSeed)
	collab, cleanup, err := buildCollaborator(ctx, cfg, fallbacks, logger, m)
	if err != nil {
		logger.Error("failed to build collaborator", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	validator := conversation.NewResponseValidator(fallbacks, logger)
	inbound := conversation.NewInboundEngine(collab, validator, logger, m)
	outbound := conversation.NewOutboundEngine(collab, validator, logger, m)
	service := conversation.NewService(inbound, outbound)
	handler := conversation.NewHandler(service, logger)

	r := router.New(&router.Config{
		Logger:              logger,
		ConversationHandler: handler,
		MetricsHandler:      promhttp.Handler(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// buildCollaborator wires the configured provider. The scripted
// collaborator needs no credentials and is the default; Bedrock is the
// primary remote provider with Gemini as the optional secondary.
func buildCollaborator(ctx context.Context, cfg *appconfig.Config, fallbacks *conversation.FallbackLibrary, logger *logging.Logger, m *metrics.ConversationMetrics) (conversation.Collaborator, func(), error) {
	noop := func() {}

	switch cfg.LLMProvider {
	case "scripted":
		logger.Info("using scripted collaborator, no model configured")
		return conversation.NewScriptedCollaborator(fallbacks), noop, nil

	case "bedrock":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, noop, err
		}
		var client conversation.LLMClient = conversation.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg))
		cleanup := noop

		if cfg.GeminiAPIKey != "" {
			gemini, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
			if err != nil {
				logger.Warn("gemini secondary unavailable, continuing with bedrock only", "error", err)
			} else {
				client = conversation.NewFallbackLLMClient(client, gemini, logger.Logger)
				cleanup = func() { _ = gemini.Close() }
			}
		}
		return conversation.NewLLMCollaborator(client, cfg.BedrockModelID, cfg.GenerateTimeout, m), cleanup, nil

	case "gemini":
		gemini, err := conversation.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, noop, err
		}
		return conversation.NewLLMCollaborator(gemini, cfg.GeminiModelID, cfg.GenerateTimeout, m),
			func() { _ = gemini.Close() }, nil
	}

	logger.Warn("unknown LLM_PROVIDER, using scripted collaborator", "provider", cfg.LLMProvider)
	return conversation.NewScriptedCollaborator(fallbacks), noop, nil
}
