package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mapadna/oracle-funnel-go/internal/config"
	"github.com/mapadna/oracle-funnel-go/internal/funnel"
	"github.com/mapadna/oracle-funnel-go/internal/oracle"
	"github.com/mapadna/oracle-funnel-go/internal/ratelimit"
	"github.com/mapadna/oracle-funnel-go/internal/webhook"
)

type serverOptions struct {
	limit          int
	debugEndpoints bool
	webhookURL     string
	provider       oracle.Provider
}

// countingProvider returns a distinct reading per call so tests can tell a
// fresh generation from a served-back one.
type countingProvider struct {
	calls atomic.Int64
}

func (p *countingProvider) Name() string { return "stub" }

func (p *countingProvider) GenerateJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	n := p.calls.Add(1)
	return fmt.Sprintf(`{
		"narrative_text": "reading number %d",
		"archetype": "Architect of Abundance",
		"essence": "Leadership and innovation",
		"obstacle": "perfectionism that blocks execution",
		"next_action": "act now",
		"final_number": 1
	}`, n), nil
}

func newTestServer(t *testing.T, opts serverOptions) *Server {
	t.Helper()

	if opts.limit == 0 {
		opts.limit = 5
	}
	if opts.webhookURL == "" {
		opts.webhookURL = "http://127.0.0.1:1/sink"
	}

	logger := zap.NewNop()

	cfg := &config.Config{}
	cfg.Server.Port = 3002
	cfg.Server.Environment = "test"
	cfg.Server.DebugEndpoints = opts.debugEndpoints
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.MaxRequests = opts.limit
	cfg.RateLimit.Window = time.Hour

	store := ratelimit.NewMemoryStore(time.Hour, time.Hour, logger)
	t.Cleanup(func() { store.Close() })
	limiter := ratelimit.NewLimiter(store, opts.limit, time.Hour, true, logger)

	// Without an injected provider every generation runs the local synthesizer.
	var providers []oracle.Provider
	if opts.provider != nil {
		providers = []oracle.Provider{opts.provider}
	}
	client := oracle.NewClient(providers, time.Second, logger)
	pipeline := oracle.NewPipeline(client, false, 0, logger)

	dispatcher := webhook.NewDispatcher(opts.webhookURL, logger)
	t.Cleanup(dispatcher.Close)

	sessions := funnel.NewStore(time.Hour, logger)
	t.Cleanup(sessions.Close)

	return New(cfg, pipeline, limiter, dispatcher, sessions, logger)
}

func postJSON(t *testing.T, handler http.Handler, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func generateBody() map[string]any {
	return map[string]any{
		"name":       "Ana Silva",
		"birth_date": "1990-05-15",
		"question1":  "Financial Freedom",
		"question2":  "Procrastination",
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t, serverOptions{})

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK || w.Body.String() != "OK" {
		t.Errorf("GET /health = %d %q", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/health = %d", w.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "OK" || resp["environment"] != "test" {
		t.Errorf("health body = %v", resp)
	}
}

func TestGenerateSuccess(t *testing.T) {
	srv := newTestServer(t, serverOptions{})

	w := postJSON(t, srv.Handler(), "/api/oracle/generate", generateBody(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	if got := w.Header().Get("X-RateLimit-Limit"); got != "5" {
		t.Errorf("X-RateLimit-Limit = %q", got)
	}
	if got := w.Header().Get("X-RateLimit-Remaining"); got != "4" {
		t.Errorf("X-RateLimit-Remaining = %q", got)
	}

	var resp struct {
		Success    bool `json:"success"`
		Revelation struct {
			NarrativeText string `json:"narrative_text"`
			Archetype     string `json:"archetype"`
			FinalNumber   int    `json:"final_number"`
		} `json:"revelation"`
		Numerology struct {
			Final int `json:"final_number"`
		} `json:"numerology"`
		Source string `json:"source"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success {
		t.Error("success = false")
	}
	if resp.Revelation.NarrativeText == "" || resp.Revelation.Archetype == "" {
		t.Errorf("incomplete revelation: %+v", resp.Revelation)
	}
	if resp.Numerology.Final != 1 {
		t.Errorf("final number = %d, want 1", resp.Numerology.Final)
	}
	if resp.Source != "offline" {
		t.Errorf("source = %q", resp.Source)
	}
}

func TestGenerateValidationError(t *testing.T) {
	srv := newTestServer(t, serverOptions{})

	body := generateBody()
	body["name"] = "Ana"

	w := postJSON(t, srv.Handler(), "/api/oracle/generate", body, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["code"] != "VALIDATION_ERROR" {
		t.Errorf("code = %v", resp["code"])
	}
}

func TestGenerateRateLimited(t *testing.T) {
	srv := newTestServer(t, serverOptions{limit: 2})
	headers := map[string]string{"X-Session-ID": "limited-session"}

	for i := 0; i < 2; i++ {
		body := generateBody()
		body["session_id"] = fmt.Sprintf("s-%d", i)
		if w := postJSON(t, srv.Handler(), "/api/oracle/generate", body, headers); w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, w.Code)
		}
	}

	w := postJSON(t, srv.Handler(), "/api/oracle/generate", generateBody(), headers)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("X-RateLimit-Remaining = %q", w.Header().Get("X-RateLimit-Remaining"))
	}
	if w.Header().Get("X-RateLimit-Reset") == "" {
		t.Error("X-RateLimit-Reset header missing")
	}

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["error"] != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("error = %v", resp["error"])
	}
	if resp["remaining"] != float64(0) {
		t.Errorf("remaining = %v", resp["remaining"])
	}
	if resp["resetTime"] == "" || resp["resetTime"] == nil {
		t.Error("resetTime missing from 429 body")
	}
}

func TestRateLimitStatusDoesNotConsume(t *testing.T) {
	srv := newTestServer(t, serverOptions{limit: 3})
	headers := map[string]string{"X-Session-ID": "status-session"}

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/rate-limit/status", nil)
		req.Header.Set("X-Session-ID", "status-session")
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("status endpoint = %d", w.Code)
		}
	}

	w := postJSON(t, srv.Handler(), "/api/oracle/generate", generateBody(), headers)
	if w.Code != http.StatusOK {
		t.Errorf("generation blocked after status checks: %d", w.Code)
	}
	if got := w.Header().Get("X-RateLimit-Remaining"); got != "2" {
		t.Errorf("X-RateLimit-Remaining = %q, want 2", got)
	}
}

func TestRateLimitResetHiddenByDefault(t *testing.T) {
	srv := newTestServer(t, serverOptions{})

	w := postJSON(t, srv.Handler(), "/api/rate-limit/reset", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("reset endpoint exposed without debug flag: %d", w.Code)
	}
}

func TestRateLimitResetWithDebugEndpoints(t *testing.T) {
	srv := newTestServer(t, serverOptions{limit: 1, debugEndpoints: true})
	headers := map[string]string{"X-Session-ID": "reset-session"}

	if w := postJSON(t, srv.Handler(), "/api/oracle/generate", generateBody(), headers); w.Code != http.StatusOK {
		t.Fatalf("first generation = %d", w.Code)
	}
	if w := postJSON(t, srv.Handler(), "/api/oracle/generate", generateBody(), headers); w.Code != http.StatusTooManyRequests {
		t.Fatalf("second generation = %d, want 429", w.Code)
	}

	if w := postJSON(t, srv.Handler(), "/api/rate-limit/reset", nil, headers); w.Code != http.StatusOK {
		t.Fatalf("reset = %d", w.Code)
	}

	if w := postJSON(t, srv.Handler(), "/api/oracle/generate", generateBody(), headers); w.Code != http.StatusOK {
		t.Errorf("generation after reset = %d", w.Code)
	}
}

func TestWebhookProxy(t *testing.T) {
	var received json.RawMessage
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusOK)
	}))
	defer sink.Close()

	srv := newTestServer(t, serverOptions{})

	w := postJSON(t, srv.Handler(), "/api/webhook/send", map[string]any{
		"webhookUrl": sink.URL,
		"payload":    map[string]any{"event_type": "payment_click"},
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("proxy = %d, body = %s", w.Code, w.Body.String())
	}
	if received == nil {
		t.Fatal("payload not forwarded")
	}

	w = postJSON(t, srv.Handler(), "/api/webhook/send", map[string]any{
		"payload": map[string]any{"x": 1},
	}, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing URL accepted: %d", w.Code)
	}
}

func TestSessionLifecycle(t *testing.T) {
	srv := newTestServer(t, serverOptions{})
	handler := srv.Handler()

	w := postJSON(t, handler, "/api/funnel/session", map[string]any{"utm_source": "instagram"}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d", w.Code)
	}
	var session struct {
		ID      string `json:"id"`
		Profile struct {
			Points       int      `json:"points"`
			Achievements []string `json:"achievements"`
			CurrentStep  int      `json:"current_step"`
		} `json:"profile"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &session); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if session.ID == "" || session.Profile.Points != 10 {
		t.Fatalf("unexpected new session: %+v", session)
	}

	base := "/api/funnel/session/" + session.ID

	w = postJSON(t, handler, base+"/answers", map[string]any{
		"name":       "Ana Silva",
		"birth_date": "1990-05-15",
		"question1":  "Financial Freedom",
		"question2":  "Procrastination",
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("answers = %d, body = %s", w.Code, w.Body.String())
	}

	w = postJSON(t, handler, base+"/advance", map[string]any{"step": 3}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("advance = %d", w.Code)
	}
	if err := json.Unmarshal(w.Body.Bytes(), &session); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if session.Profile.Points != 60 {
		t.Errorf("points after advance = %d, want 60", session.Profile.Points)
	}

	w = postJSON(t, handler, base+"/payment-click", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("payment-click = %d", w.Code)
	}
	if err := json.Unmarshal(w.Body.Bytes(), &session); err != nil {
		t.Fatalf("decode: %v", err)
	}
	found := false
	for _, badge := range session.Profile.Achievements {
		if badge == "Checkout Reached" {
			found = true
		}
	}
	if !found {
		t.Errorf("achievements = %v", session.Profile.Achievements)
	}

	req := httptest.NewRequest(http.MethodGet, base, nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("get session = %d", w.Code)
	}
}

func TestGenerateRepeatServesStoredRevelation(t *testing.T) {
	var webhookHits atomic.Int64
	t.Cleanup(func() {
		if got := webhookHits.Load(); got != 1 {
			t.Errorf("dispatched %d oracle webhooks for one session, want 1", got)
		}
	})
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		webhookHits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(sink.Close)

	provider := &countingProvider{}
	srv := newTestServer(t, serverOptions{provider: provider, webhookURL: sink.URL})
	handler := srv.Handler()

	w := postJSON(t, handler, "/api/funnel/session", nil, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create session = %d", w.Code)
	}
	var session struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &session); err != nil {
		t.Fatalf("decode: %v", err)
	}

	body := generateBody()
	body["session_id"] = session.ID

	type generateResponse struct {
		Revelation struct {
			NarrativeText string `json:"narrative_text"`
		} `json:"revelation"`
		Source string `json:"source"`
	}

	w = postJSON(t, handler, "/api/oracle/generate", body, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("first generate = %d, body = %s", w.Code, w.Body.String())
	}
	var first generateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first.Source != "upstream" {
		t.Fatalf("first source = %q", first.Source)
	}

	w = postJSON(t, handler, "/api/oracle/generate", body, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("second generate = %d", w.Code)
	}
	var second generateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &second); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got := provider.calls.Load(); got != 1 {
		t.Errorf("upstream called %d times for one session, want 1", got)
	}
	if second.Source != "cache" {
		t.Errorf("second source = %q, want cache", second.Source)
	}
	if second.Revelation.NarrativeText != first.Revelation.NarrativeText {
		t.Errorf("repeat diverged: %q vs %q", first.Revelation.NarrativeText, second.Revelation.NarrativeText)
	}

	// The stored revelation is the one both responses showed.
	req := httptest.NewRequest(http.MethodGet, "/api/funnel/session/"+session.ID, nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	var stored struct {
		Revelation struct {
			NarrativeText string `json:"narrative_text"`
		} `json:"revelation"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &stored); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stored.Revelation.NarrativeText != first.Revelation.NarrativeText {
		t.Errorf("stored revelation %q differs from served %q", stored.Revelation.NarrativeText, first.Revelation.NarrativeText)
	}
}

func TestSessionNotFound(t *testing.T) {
	srv := newTestServer(t, serverOptions{})

	req := httptest.NewRequest(http.MethodGet, "/api/funnel/session/nope", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown session = %d, want 404", w.Code)
	}

	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["code"] != "SESSION_ERROR" {
		t.Errorf("code = %v", resp["code"])
	}
}
