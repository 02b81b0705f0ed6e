package constants

import "time"

var RateLimitDefaults = struct {
	MaxRequests   int
	Window        time.Duration
	SweepInterval time.Duration
}{
	MaxRequests:   5,
	Window:        24 * time.Hour,
	SweepInterval: time.Hour,
}

var UpstreamConfig = struct {
	Timeout      time.Duration
	DefaultModel string
	GeminiModel  string
	Temperature  float64
	MaxTokens    int
	SentinelKeys []string
}{
	Timeout:      10 * time.Second,
	DefaultModel: "gpt-4o-mini",
	GeminiModel:  "gemini-2.5-flash",
	Temperature:  0.7,
	MaxTokens:    800,
	SentinelKeys: []string{"test", "sk-proj-test-key"},
}

var CircuitBreakerConfig = struct {
	FailureThreshold int
	ResetTimeout     time.Duration
}{
	FailureThreshold: 3,
	ResetTimeout:     30 * time.Second,
}

var WebhookConfig = struct {
	Timeout    time.Duration
	DefaultURL string
	UserAgent  string
}{
	Timeout:    15 * time.Second,
	DefaultURL: "https://wbn.araxa.app/webhook/mapa-dna-financeiro",
	UserAgent:  "OracleFunnel-Backend/1.0",
}

var SessionConfig = struct {
	IdleTTL        time.Duration
	SweepInterval  time.Duration
	StartingPoints int
	StepPoints     int
	FirstBadge     string
}{
	IdleTTL:        2 * time.Hour,
	SweepInterval:  15 * time.Minute,
	StartingPoints: 10,
	StepPoints:     25,
	FirstBadge:     "Journey Started",
}

var ServerConfig = struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	ShutdownWait time.Duration
}{
	ReadTimeout:  15 * time.Second,
	WriteTimeout: 60 * time.Second,
	IdleTimeout:  60 * time.Second,
	ShutdownWait: 10 * time.Second,
}
