package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/mapadna/oracle-funnel-go/internal/domain"
)

func testPayload() *Payload {
	profile := &domain.FunnelProfile{
		FullName:     "Ana Silva",
		BirthDate:    "1990-05-15",
		Question1:    "Financial Freedom",
		Question2:    "Procrastination",
		Points:       135,
		Achievements: []string{"Journey Started"},
		CurrentStep:  4,
	}
	tracking := domain.TrackingInfo{
		UTMSource: "instagram",
		UserID:    "u-1",
		SessionID: "s-1",
		UserAgent: "test-agent",
	}
	return BuildPayload(profile, tracking, nil, domain.EventDataCollected)
}

func TestBuildPayloadDefaults(t *testing.T) {
	profile := &domain.FunnelProfile{
		FullName:  "Ana Silva",
		BirthDate: "1990-05-15",
	}

	p := BuildPayload(profile, domain.TrackingInfo{}, nil, domain.EventPaymentClick)

	if p.UTMSource != "direct" || p.UTMMedium != "none" {
		t.Errorf("UTM defaults not applied: source=%q medium=%q", p.UTMSource, p.UTMMedium)
	}
	if p.UserID != "unknown" || p.SessionID != "unknown" {
		t.Errorf("identity defaults not applied: user=%q session=%q", p.UserID, p.SessionID)
	}
	if p.Referrer != "direct" {
		t.Errorf("Referrer = %q, want direct", p.Referrer)
	}
	if p.Achievements == nil {
		t.Error("Achievements must serialize as an empty array, not null")
	}
	if p.CurrentStep != 1 {
		t.Errorf("CurrentStep = %d, want floor of 1", p.CurrentStep)
	}
	if p.EventType != "payment_click" {
		t.Errorf("EventType = %q", p.EventType)
	}
	if p.OracleData != nil {
		t.Error("OracleData set without a revelation")
	}
	if p.Timestamp == "" {
		t.Error("Timestamp not set")
	}
}

func TestBuildPayloadWithRevelation(t *testing.T) {
	revelation := &domain.OracleRevelation{
		NarrativeText: "the numbers speak",
		Archetype:     "Magnate of Power",
		Essence:       "Authority and materialization",
		NextAction:    "act now",
		FinalNumber:   8,
	}

	p := BuildPayload(&domain.FunnelProfile{FullName: "Ana Silva"}, domain.TrackingInfo{}, revelation, domain.EventOracleGenerated)

	if p.OracleData == nil {
		t.Fatal("OracleData missing")
	}
	if p.OracleData.Archetype != "Magnate of Power" {
		t.Errorf("Archetype = %q", p.OracleData.Archetype)
	}
}

func TestSendSuccess(t *testing.T) {
	var received Payload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := NewDispatcher(server.URL, zap.NewNop())
	defer d.Close()

	if !d.Send(context.Background(), testPayload()) {
		t.Fatal("Send reported failure for a 200 response")
	}
	if received.Name != "Ana Silva" {
		t.Errorf("delivered name = %q", received.Name)
	}
	if received.EventType != "data_collected" {
		t.Errorf("delivered event_type = %q", received.EventType)
	}
}

func TestSendServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "broken", http.StatusInternalServerError)
	}))
	defer server.Close()

	d := NewDispatcher(server.URL, zap.NewNop())
	defer d.Close()

	if d.Send(context.Background(), testPayload()) {
		t.Fatal("Send reported success for a 500 response")
	}
}

func TestSendUnreachable(t *testing.T) {
	d := NewDispatcher("http://127.0.0.1:1/never", zap.NewNop())
	defer d.Close()

	if d.Send(context.Background(), testPayload()) {
		t.Fatal("Send reported success for an unreachable endpoint")
	}
}

func TestSendAsyncDeliversBeforeClose(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := NewDispatcher(server.URL, zap.NewNop())
	d.SendAsync(testPayload())
	d.SendAsync(testPayload())
	d.Close()

	if got := hits.Load(); got != 2 {
		t.Errorf("delivered %d payloads, want 2", got)
	}
}

func TestValidateProxyRequest(t *testing.T) {
	valid := json.RawMessage(`{"event_type":"payment_click"}`)

	if err := ValidateProxyRequest("https://example.com/hook", valid); err != nil {
		t.Errorf("valid request rejected: %v", err)
	}
	if err := ValidateProxyRequest("", valid); err == nil {
		t.Error("missing URL accepted")
	}
	if err := ValidateProxyRequest("https://example.com/hook", nil); err == nil {
		t.Error("missing payload accepted")
	}
	if err := ValidateProxyRequest("https://example.com/hook", json.RawMessage("{broken")); err == nil {
		t.Error("malformed payload accepted")
	}
}
