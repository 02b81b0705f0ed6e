package oracle

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/mapadna/oracle-funnel-go/internal/domain"
	"github.com/mapadna/oracle-funnel-go/internal/numerology"
	"github.com/mapadna/oracle-funnel-go/internal/prompt"
)

// Source tells callers where a revelation came from.
type Source string

const (
	SourceUpstream Source = "upstream"
	SourceFallback Source = "fallback"
	SourceOffline  Source = "offline"
	SourceCache    Source = "cache"
)

// Result bundles the revelation with the numerology that seeded it.
type Result struct {
	Revelation *domain.OracleRevelation
	Numerology domain.NumerologyResult
	Source     Source
}

// Pipeline turns a validated profile into a revelation. The chain is
// upstream generation, then local synthesis when the upstream is offline,
// misconfigured, times out, or returns garbage. It never returns an error
// for upstream trouble, only for invalid input or a cancelled context.
type Pipeline struct {
	client      *Client
	offline     bool
	revealDelay time.Duration
	logger      *zap.Logger
	group       singleflight.Group
}

func NewPipeline(client *Client, offline bool, revealDelay time.Duration, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		client:      client,
		offline:     offline,
		revealDelay: revealDelay,
		logger:      logger,
	}
}

// Offline reports whether upstream calls are disabled.
func (p *Pipeline) Offline() bool {
	return p.offline || p.client == nil || !p.client.Available()
}

// Generate produces the revelation for one visitor. Concurrent calls with
// the same session ID collapse into a single generation so a double-submit
// from the frontend cannot trigger two upstream calls.
func (p *Pipeline) Generate(ctx context.Context, sessionID string, profile *domain.FunnelProfile) (*Result, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}

	started := time.Now()

	key := sessionID
	if key == "" {
		key = profile.FullName + "|" + profile.BirthDate
	}

	value, err, shared := p.group.Do(key, func() (any, error) {
		return p.generate(ctx, profile), nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		p.logger.Debug("generation deduplicated", zap.String("session_id", sessionID))
	}

	result := value.(*Result)

	if err := p.pace(ctx, started); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	return result, nil
}

func (p *Pipeline) generate(ctx context.Context, profile *domain.FunnelProfile) *Result {
	num := numerology.Compute(profile.FullName, profile.BirthDate)

	if p.Offline() {
		p.logger.Info("upstream disabled, synthesizing locally",
			zap.String("name", profile.FullName),
			zap.Int("final_number", num.Final),
		)
		return &Result{
			Revelation: Synthesize(profile, num),
			Numerology: num,
			Source:     SourceOffline,
		}
	}

	userPrompt := prompt.BuildOraclePrompt(prompt.OraclePromptVars{
		Profile:    profile,
		Numerology: num,
	})

	var revelation domain.OracleRevelation
	err := p.client.GenerateJSON(ctx, prompt.SystemPrompt, userPrompt, &revelation)
	if err == nil && revelation.Usable() {
		// Models occasionally echo a wrong or missing number back.
		revelation.FinalNumber = num.Final
		p.logger.Info("revelation generated upstream",
			zap.String("archetype", revelation.Archetype),
			zap.Int("final_number", num.Final),
		)
		return &Result{
			Revelation: &revelation,
			Numerology: num,
			Source:     SourceUpstream,
		}
	}

	if err != nil {
		p.logger.Warn("upstream generation failed, synthesizing locally", zap.Error(err))
	} else {
		p.logger.Warn("upstream revelation incomplete, synthesizing locally")
	}

	return &Result{
		Revelation: Synthesize(profile, num),
		Numerology: num,
		Source:     SourceFallback,
	}
}

// pace stretches fast responses out to the configured reveal delay so the
// frontend's suspense animation has something to wait for. A zero delay is
// a no-op.
func (p *Pipeline) pace(ctx context.Context, started time.Time) error {
	if p.revealDelay <= 0 {
		return nil
	}

	remaining := p.revealDelay - time.Since(started)
	if remaining <= 0 {
		return nil
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
