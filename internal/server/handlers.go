package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mapadna/oracle-funnel-go/internal/domain"
	"github.com/mapadna/oracle-funnel-go/internal/numerology"
	"github.com/mapadna/oracle-funnel-go/internal/oracle"
	"github.com/mapadna/oracle-funnel-go/internal/webhook"
	funnelerrors "github.com/mapadna/oracle-funnel-go/pkg/errors"
)

// generateRequest is the body of the oracle generation endpoint.
type generateRequest struct {
	Name      string              `json:"name"`
	BirthDate string              `json:"birth_date"`
	Question1 string              `json:"question1"`
	Question2 string              `json:"question2"`
	WhatsApp  string              `json:"whatsapp"`
	SessionID string              `json:"session_id"`
	Tracking  domain.TrackingInfo `json:"tracking"`
}

type webhookProxyRequest struct {
	WebhookURL string          `json:"webhookUrl"`
	Payload    json.RawMessage `json:"payload"`
}

type sessionAnswersRequest struct {
	Name             string `json:"name"`
	BirthDate        string `json:"birth_date"`
	Question1        string `json:"question1"`
	Question2        string `json:"question2"`
	WhatsApp         string `json:"whatsapp"`
	MonthlyPotential int    `json:"monthly_potential"`
}

type sessionAdvanceRequest struct {
	Step int `json:"step"`
}

func (s *Server) handleHealthPlain(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "OK",
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"environment": s.cfg.Server.Environment,
	})
}

func (s *Server) handleGenerate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, funnelerrors.NewValidationError("request body must be valid JSON", "body", nil))
		return
	}

	profile := &domain.FunnelProfile{
		FullName:      req.Name,
		BirthDate:     req.BirthDate,
		Question1:     req.Question1,
		Question2:     req.Question2,
		ContactHandle: req.WhatsApp,
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = c.GetHeader("X-Session-ID")
	}

	// A session that already has its reading keeps it. The repeat request
	// gets the stored revelation back without another generation or another
	// webhook for the same event.
	if sessionID != "" {
		if session, getErr := s.sessions.Get(sessionID); getErr == nil && session.Revelation != nil {
			source := session.Profile
			if !source.Complete() {
				source = *profile
			}
			c.JSON(http.StatusOK, gin.H{
				"success":    true,
				"revelation": session.Revelation,
				"numerology": numerology.Compute(source.FullName, source.BirthDate),
				"source":     oracle.SourceCache,
			})
			return
		}
	}

	result, err := s.pipeline.Generate(c.Request.Context(), sessionID, profile)
	if err != nil {
		s.respondError(c, err)
		return
	}

	// Merge session state into the payload when the visitor has one.
	if sessionID != "" {
		if session, setErr := s.sessions.SetRevelation(sessionID, result.Revelation); setErr == nil {
			profile.Points = session.Profile.Points
			profile.MonthlyPotential = session.Profile.MonthlyPotential
			profile.Achievements = session.Profile.Achievements
			profile.CurrentStep = session.Profile.CurrentStep
		}
	}

	tracking := req.Tracking
	if tracking.SessionID == "" {
		tracking.SessionID = sessionID
	}
	if tracking.UserAgent == "" {
		tracking.UserAgent = c.Request.UserAgent()
	}

	s.dispatcher.SendAsync(webhook.BuildPayload(profile, tracking, result.Revelation, domain.EventOracleGenerated))

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"revelation": result.Revelation,
		"numerology": result.Numerology,
		"source":     result.Source,
	})
}

func (s *Server) handleRateLimitStatus(c *gin.Context) {
	decision := s.limiter.Status(c.Request.Context(), clientKey(c))

	resp := gin.H{
		"enabled":   s.limiter.Enabled(),
		"limit":     decision.Limit,
		"remaining": decision.Remaining,
		"isLimited": !decision.Allowed,
	}
	if !decision.ResetTime.IsZero() {
		resp["resetTime"] = decision.ResetTime.UTC().Format(time.RFC3339)
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleRateLimitReset(c *gin.Context) {
	key := clientKey(c)
	if err := s.limiter.Reset(c.Request.Context(), key); err != nil {
		s.logger.Error("rate limit reset failed", zap.String("client", key), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reset failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "rate limit reset"})
}

// handleWebhookProxy relays a frontend-built payload so the browser never
// talks to the automation endpoint directly.
func (s *Server) handleWebhookProxy(c *gin.Context) {
	var req webhookProxyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, funnelerrors.NewValidationError("request body must be valid JSON", "body", nil))
		return
	}

	if err := webhook.ValidateProxyRequest(req.WebhookURL, req.Payload); err != nil {
		s.respondError(c, err)
		return
	}

	if !s.dispatcher.SendTo(c.Request.Context(), req.WebhookURL, req.Payload) {
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error":   "webhook delivery failed",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleSessionCreate(c *gin.Context) {
	var tracking domain.TrackingInfo
	// An empty body is fine; direct traffic has no UTM block.
	_ = c.ShouldBindJSON(&tracking)

	session := s.sessions.Create(tracking)
	c.JSON(http.StatusCreated, session)
}

func (s *Server) handleSessionGet(c *gin.Context) {
	session, err := s.sessions.Get(c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (s *Server) handleSessionAnswers(c *gin.Context) {
	var req sessionAnswersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, funnelerrors.NewValidationError("request body must be valid JSON", "body", nil))
		return
	}

	profile := domain.FunnelProfile{
		FullName:         req.Name,
		BirthDate:        req.BirthDate,
		Question1:        req.Question1,
		Question2:        req.Question2,
		ContactHandle:    req.WhatsApp,
		MonthlyPotential: req.MonthlyPotential,
	}
	if err := profile.Validate(); err != nil {
		s.respondError(c, err)
		return
	}

	session, err := s.sessions.SetProfile(c.Param("id"), profile)
	if err != nil {
		s.respondError(c, err)
		return
	}

	tracking := session.Tracking
	tracking.SessionID = session.ID
	s.dispatcher.SendAsync(webhook.BuildPayload(&session.Profile, tracking, nil, domain.EventDataCollected))

	c.JSON(http.StatusOK, session)
}

func (s *Server) handleSessionAdvance(c *gin.Context) {
	var req sessionAdvanceRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Step < 1 {
		s.respondError(c, funnelerrors.NewValidationError("step must be a positive integer", "step", req.Step))
		return
	}

	session, err := s.sessions.Advance(c.Param("id"), req.Step)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

func (s *Server) handleSessionPaymentClick(c *gin.Context) {
	id := c.Param("id")

	if _, err := s.sessions.AddAchievement(id, "Checkout Reached"); err != nil {
		s.respondError(c, err)
		return
	}
	session, err := s.sessions.Get(id)
	if err != nil {
		s.respondError(c, err)
		return
	}

	tracking := session.Tracking
	tracking.SessionID = session.ID
	s.dispatcher.SendAsync(webhook.BuildPayload(&session.Profile, tracking, session.Revelation, domain.EventPaymentClick))

	c.JSON(http.StatusOK, session)
}

// respondError maps domain errors onto the JSON error contract.
func (s *Server) respondError(c *gin.Context, err error) {
	if fe, ok := funnelerrors.AsFunnelError(err); ok {
		c.JSON(fe.StatusCode, gin.H{
			"error": fe.Message,
			"code":  fe.Code,
		})
		return
	}

	s.logger.Error("unhandled error", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": "internal error",
		"code":  "INTERNAL_ERROR",
	})
}
