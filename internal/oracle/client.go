package oracle

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mapadna/oracle-funnel-go/internal/constants"
	"github.com/mapadna/oracle-funnel-go/internal/util"
	funnelerrors "github.com/mapadna/oracle-funnel-go/pkg/errors"
)

// Client walks the provider chain in order and returns the first parseable
// JSON payload. Each provider sits behind a shared circuit breaker so a
// flapping upstream stops consuming the request budget.
type Client struct {
	providers []Provider
	breaker   *util.CircuitBreaker
	timeout   time.Duration
	logger    *zap.Logger
}

func NewClient(providers []Provider, timeout time.Duration, logger *zap.Logger) *Client {
	active := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if p != nil {
			active = append(active, p)
		}
	}

	return &Client{
		providers: active,
		breaker: util.NewCircuitBreaker(
			constants.CircuitBreakerConfig.FailureThreshold,
			constants.CircuitBreakerConfig.ResetTimeout,
			logger,
		),
		timeout: timeout,
		logger:  logger,
	}
}

// Available reports whether at least one upstream is configured.
func (c *Client) Available() bool {
	return len(c.providers) > 0
}

// GenerateJSON tries each provider in turn and unmarshals the cleaned
// response into dest. The per-call timeout bounds the whole chain, not each
// provider individually.
func (c *Client) GenerateJSON(ctx context.Context, systemPrompt, userPrompt string, dest any) error {
	if len(c.providers) == 0 {
		return funnelerrors.NewUpstreamError("no providers configured", "none", funnelerrors.UpstreamFailure, nil)
	}

	if !c.breaker.CanExecute() {
		return funnelerrors.NewUpstreamError("circuit breaker open", "none", funnelerrors.UpstreamFailure, nil)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var lastErr error
	for _, provider := range c.providers {
		if ctx.Err() != nil {
			c.breaker.RecordFailure()
			return funnelerrors.NewUpstreamError("generation deadline exceeded", provider.Name(), funnelerrors.UpstreamTimeout, ctx.Err())
		}

		text, err := provider.GenerateJSON(ctx, systemPrompt, userPrompt)
		if err != nil {
			c.logger.Warn("provider call failed",
				zap.String("provider", provider.Name()),
				zap.Error(err),
			)
			lastErr = err
			continue
		}

		cleaned := cleanJSONResponse(text)
		if err := json.Unmarshal([]byte(cleaned), dest); err != nil {
			c.logger.Warn("provider returned unparseable JSON",
				zap.String("provider", provider.Name()),
				zap.String("preview", cleaned[:util.Min(len(cleaned), 200)]),
				zap.Error(err),
			)
			lastErr = funnelerrors.NewUpstreamError("response was not valid JSON", provider.Name(), funnelerrors.UpstreamParse, err)
			continue
		}

		c.breaker.RecordSuccess()
		c.logger.Debug("provider generation succeeded", zap.String("provider", provider.Name()))
		return nil
	}

	c.breaker.RecordFailure()

	if ctx.Err() == context.DeadlineExceeded {
		return funnelerrors.NewUpstreamError("all providers timed out", "chain", funnelerrors.UpstreamTimeout, ctx.Err())
	}
	if upstreamErr, ok := lastErr.(*funnelerrors.UpstreamError); ok {
		return upstreamErr
	}
	return funnelerrors.NewUpstreamError("all providers failed", "chain", funnelerrors.UpstreamFailure, lastErr)
}

// cleanJSONResponse strips markdown code fences that chat models wrap around
// JSON payloads despite instructions not to.
func cleanJSONResponse(text string) string {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	return strings.TrimSpace(cleaned)
}
