package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mapadna/oracle-funnel-go/internal/config"
	"github.com/mapadna/oracle-funnel-go/internal/funnel"
	"github.com/mapadna/oracle-funnel-go/internal/oracle"
	"github.com/mapadna/oracle-funnel-go/internal/ratelimit"
	"github.com/mapadna/oracle-funnel-go/internal/server"
	"github.com/mapadna/oracle-funnel-go/internal/webhook"
)

// Container bundles the assembled services behind the HTTP surface.
type Container struct {
	Config *config.Config
	Logger *zap.Logger

	Server *server.Server

	closers []func()
}

// Close tears services down in reverse build order.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

// Build assembles all infrastructure services. Heavy initialization happens
// here so main stays focused on lifecycle.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (container *Container, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var closers []func()
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
		}
	}()

	// Rate limit store: Redis when configured, in-process otherwise.
	var store ratelimit.Store
	if cfg.Redis.Host != "" {
		redisStore, redisErr := ratelimit.NewRedisStore(ratelimit.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, logger)
		if redisErr != nil {
			return nil, fmt.Errorf("redis rate limit store: %w", redisErr)
		}
		store = redisStore
	} else {
		store = ratelimit.NewMemoryStore(cfg.RateLimit.Window, cfg.RateLimit.SweepInterval, logger)
		logger.Info("rate limit store: memory")
	}
	closers = append(closers, func() { _ = store.Close() })

	limiter := ratelimit.NewLimiter(store, cfg.RateLimit.MaxRequests, cfg.RateLimit.Window, cfg.RateLimit.Enabled, logger)

	var providers []oracle.Provider
	offline := cfg.OfflineMode()
	if !offline {
		if p := oracle.NewOpenAIProvider(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.Temperature, cfg.OpenAI.MaxTokens, logger); p != nil {
			providers = append(providers, p)
		}
		if cfg.Gemini.APIKey != "" {
			gemini, gerr := oracle.NewGeminiProvider(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, logger)
			if gerr != nil {
				logger.Warn("Gemini provider unavailable", zap.Error(gerr))
			} else if gemini != nil {
				providers = append(providers, gemini)
			}
		}
	}

	client := oracle.NewClient(providers, cfg.OpenAI.Timeout, logger)
	pipeline := oracle.NewPipeline(client, offline, cfg.Oracle.RevealDelay, logger)

	dispatcher := webhook.NewDispatcher(cfg.Webhook.URL, logger)
	closers = append(closers, dispatcher.Close)

	sessions := funnel.NewStore(cfg.Session.IdleTTL, logger)
	closers = append(closers, sessions.Close)

	srv := server.New(cfg, pipeline, limiter, dispatcher, sessions, logger)

	logger.Info("services assembled",
		zap.Bool("offline", pipeline.Offline()),
		zap.Int("providers", len(providers)),
		zap.Bool("rate_limit", cfg.RateLimit.Enabled),
	)

	return &Container{
		Config:  cfg,
		Logger:  logger,
		Server:  srv,
		closers: closers,
	}, nil
}
