package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/mapadna/oracle-funnel-go/internal/constants"
	"github.com/mapadna/oracle-funnel-go/internal/domain"
	"github.com/mapadna/oracle-funnel-go/internal/util"
	funnelerrors "github.com/mapadna/oracle-funnel-go/pkg/errors"
)

// Payload is the flat document the downstream automation consumes. Field
// names are part of the external contract; do not rename them.
type Payload struct {
	UTMSource   string `json:"utm_source"`
	UTMMedium   string `json:"utm_medium"`
	UTMCampaign string `json:"utm_campaign"`
	UTMTerm     string `json:"utm_term"`
	UTMContent  string `json:"utm_content"`

	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`

	Name      string `json:"name"`
	BirthDate string `json:"birth_date"`
	WhatsApp  string `json:"whatsapp,omitempty"`

	Question1 string `json:"question1"`
	Question2 string `json:"question2"`

	Money            int      `json:"money"`
	MonthlyPotential int      `json:"monthly_potential"`
	Achievements     []string `json:"achievements"`

	OracleData *OracleData `json:"oracle_data,omitempty"`

	Timestamp   string `json:"timestamp"`
	UserAgent   string `json:"user_agent"`
	Referrer    string `json:"referrer"`
	CurrentStep int    `json:"current_step"`

	EventType string `json:"event_type"`
}

// OracleData is the revelation excerpt embedded in generation events.
type OracleData struct {
	NarrativeText string `json:"narrative_text"`
	Archetype     string `json:"archetype"`
	Essence       string `json:"essence"`
	NextAction    string `json:"next_action"`
}

// BuildPayload merges the profile, tracking block and optional revelation
// into one delivery document.
func BuildPayload(profile *domain.FunnelProfile, tracking domain.TrackingInfo, revelation *domain.OracleRevelation, eventType domain.EventType) *Payload {
	tracking = tracking.WithDefaults()

	userID := tracking.UserID
	if userID == "" {
		userID = "unknown"
	}
	sessionID := tracking.SessionID
	if sessionID == "" {
		sessionID = "unknown"
	}

	achievements := profile.Achievements
	if achievements == nil {
		achievements = []string{}
	}

	currentStep := profile.CurrentStep
	if currentStep < 1 {
		currentStep = 1
	}

	p := &Payload{
		UTMSource:   tracking.UTMSource,
		UTMMedium:   tracking.UTMMedium,
		UTMCampaign: tracking.UTMCampaign,
		UTMTerm:     tracking.UTMTerm,
		UTMContent:  tracking.UTMContent,

		UserID:    userID,
		SessionID: sessionID,

		Name:      profile.FullName,
		BirthDate: profile.BirthDate,
		WhatsApp:  profile.ContactHandle,

		Question1: profile.Question1,
		Question2: profile.Question2,

		Money:            profile.Points,
		MonthlyPotential: profile.MonthlyPotential,
		Achievements:     achievements,

		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		UserAgent:   tracking.UserAgent,
		Referrer:    tracking.Referrer,
		CurrentStep: currentStep,

		EventType: eventType.String(),
	}

	if revelation != nil {
		p.OracleData = &OracleData{
			NarrativeText: revelation.NarrativeText,
			Archetype:     revelation.Archetype,
			Essence:       revelation.Essence,
			NextAction:    revelation.NextAction,
		}
	}

	return p
}

// Dispatcher posts payloads to the configured automation endpoint. Delivery
// is best-effort: failures are logged and reported as false, never as an
// error to the funnel flow that triggered them.
type Dispatcher struct {
	url     string
	client  *http.Client
	logger  *zap.Logger
	workers *pool.Pool
}

func NewDispatcher(url string, logger *zap.Logger) *Dispatcher {
	if url == "" {
		url = constants.WebhookConfig.DefaultURL
	}

	return &Dispatcher{
		url: url,
		client: &http.Client{
			Timeout: constants.WebhookConfig.Timeout,
		},
		logger:  logger,
		workers: pool.New().WithMaxGoroutines(4),
	}
}

// Send delivers one payload synchronously and reports success.
func (d *Dispatcher) Send(ctx context.Context, payload *Payload) bool {
	return d.post(ctx, d.url, payload.EventType, payload)
}

// SendTo delivers an arbitrary JSON body to an explicit URL. Used by the
// proxy endpoint that forwards frontend-built payloads.
func (d *Dispatcher) SendTo(ctx context.Context, url string, body any) bool {
	return d.post(ctx, url, "proxy", body)
}

// SendAsync queues a delivery on the worker pool and returns immediately.
// The detached context keeps the delivery alive after the HTTP request that
// triggered it has been answered.
func (d *Dispatcher) SendAsync(payload *Payload) {
	d.workers.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), constants.WebhookConfig.Timeout)
		defer cancel()
		d.post(ctx, d.url, payload.EventType, payload)
	})
}

// Close waits for queued deliveries to finish.
func (d *Dispatcher) Close() {
	d.workers.Wait()
}

func (d *Dispatcher) post(ctx context.Context, url, eventType string, body any) bool {
	data, err := json.Marshal(body)
	if err != nil {
		d.logger.Error("webhook payload marshal failed",
			zap.String("event_type", eventType),
			zap.Error(err),
		)
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		d.logger.Error("webhook request build failed", zap.Error(err))
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", constants.WebhookConfig.UserAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		dispatchErr := funnelerrors.NewDispatchError("webhook delivery failed", eventType, url, err)
		d.logger.Warn("webhook delivery failed",
			zap.String("event_type", eventType),
			zap.String("url", url),
			zap.Error(dispatchErr),
		)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		d.logger.Warn("webhook rejected",
			zap.String("event_type", eventType),
			zap.Int("status", resp.StatusCode),
			zap.String("body", util.TruncateString(string(preview), 200)),
		)
		return false
	}

	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)

	d.logger.Info("webhook delivered",
		zap.String("event_type", eventType),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(data)),
	)
	return true
}

// ValidateProxyRequest checks the forwarded delivery request from the
// frontend before it is relayed.
func ValidateProxyRequest(url string, payload json.RawMessage) error {
	if url == "" {
		return funnelerrors.NewValidationError("webhookUrl is required", "webhookUrl", url)
	}
	if len(payload) == 0 {
		return funnelerrors.NewValidationError("payload is required", "payload", nil)
	}
	if !json.Valid(payload) {
		return funnelerrors.NewValidationError(fmt.Sprintf("payload is not valid JSON (%d bytes)", len(payload)), "payload", nil)
	}
	return nil
}
