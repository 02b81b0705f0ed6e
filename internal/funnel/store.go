package funnel

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mapadna/oracle-funnel-go/internal/constants"
	"github.com/mapadna/oracle-funnel-go/internal/domain"
	funnelerrors "github.com/mapadna/oracle-funnel-go/pkg/errors"
)

// Session is one visitor's journey through the quiz. All mutation goes
// through the store so progress rules hold under concurrent requests.
type Session struct {
	ID         string                   `json:"id"`
	Profile    domain.FunnelProfile     `json:"profile"`
	Tracking   domain.TrackingInfo      `json:"tracking"`
	Revelation *domain.OracleRevelation `json:"revelation,omitempty"`
	CreatedAt  time.Time                `json:"created_at"`
	UpdatedAt  time.Time                `json:"updated_at"`
}

// Store keeps sessions in memory with an idle TTL. Sessions are ephemeral
// by design; losing them on restart is acceptable.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	idleTTL  time.Duration
	now      func() time.Time
	logger   *zap.Logger
	done     chan struct{}
	closed   bool
}

func NewStore(idleTTL time.Duration, logger *zap.Logger) *Store {
	if idleTTL <= 0 {
		idleTTL = constants.SessionConfig.IdleTTL
	}

	s := &Store{
		sessions: make(map[string]*Session),
		idleTTL:  idleTTL,
		now:      time.Now,
		logger:   logger,
		done:     make(chan struct{}),
	}
	go s.sweepLoop(constants.SessionConfig.SweepInterval)
	return s
}

// Create opens a fresh session with the starting points balance and the
// first achievement already granted.
func (s *Store) Create(tracking domain.TrackingInfo) *Session {
	now := s.now()
	session := &Session{
		ID:       uuid.NewString(),
		Tracking: tracking.WithDefaults(),
		Profile: domain.FunnelProfile{
			Points:       constants.SessionConfig.StartingPoints,
			Achievements: []string{constants.SessionConfig.FirstBadge},
			CurrentStep:  1,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	s.logger.Info("session created", zap.String("session_id", session.ID))
	return session
}

// Get returns a copy of the session so callers cannot mutate shared state.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, funnelerrors.NewSessionError("session not found", id)
	}
	copied := *session
	return &copied, nil
}

// Update applies fn to the session under the store lock and bumps the
// activity timestamp.
func (s *Store) Update(id string, fn func(*Session)) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, funnelerrors.NewSessionError("session not found", id)
	}

	fn(session)
	session.UpdatedAt = s.now()

	copied := *session
	return &copied, nil
}

// SetProfile records the collected name, birth date and survey answers.
// Gamification fields are preserved; the caller cannot overwrite them.
func (s *Store) SetProfile(id string, profile domain.FunnelProfile) (*Session, error) {
	return s.Update(id, func(session *Session) {
		session.Profile.FullName = profile.FullName
		session.Profile.BirthDate = profile.BirthDate
		session.Profile.Question1 = profile.Question1
		session.Profile.Question2 = profile.Question2
		session.Profile.ContactHandle = profile.ContactHandle
		session.Profile.MonthlyPotential = profile.MonthlyPotential
	})
}

// Advance moves the session forward and awards the per-step points. Moving
// backwards or replaying the current step changes nothing, so a retried
// request cannot double-award.
func (s *Store) Advance(id string, step int) (*Session, error) {
	return s.Update(id, func(session *Session) {
		if step <= session.Profile.CurrentStep {
			return
		}
		gained := (step - session.Profile.CurrentStep) * constants.SessionConfig.StepPoints
		session.Profile.CurrentStep = step
		session.Profile.Points += gained
	})
}

// AddPoints increases the balance. Negative amounts are ignored; the
// balance never decreases.
func (s *Store) AddPoints(id string, amount int) (*Session, error) {
	return s.Update(id, func(session *Session) {
		if amount > 0 {
			session.Profile.Points += amount
		}
	})
}

// AddAchievement appends a badge once. Repeats are silently dropped.
func (s *Store) AddAchievement(id, badge string) (*Session, error) {
	return s.Update(id, func(session *Session) {
		for _, existing := range session.Profile.Achievements {
			if existing == badge {
				return
			}
		}
		session.Profile.Achievements = append(session.Profile.Achievements, badge)
	})
}

// SetRevelation stores the generated reading. The first write wins so a
// retried generation request cannot replace what the visitor already saw.
func (s *Store) SetRevelation(id string, revelation *domain.OracleRevelation) (*Session, error) {
	return s.Update(id, func(session *Session) {
		if session.Revelation == nil {
			session.Revelation = revelation
		}
	})
}

// Reset discards a session so the visitor can start over.
func (s *Store) Reset(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Len reports the live session count.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close stops the sweep loop.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
}

func (s *Store) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Store) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.idleTTL)
	removed := 0
	for id, session := range s.sessions {
		if session.UpdatedAt.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}

	if removed > 0 {
		s.logger.Debug("expired sessions removed",
			zap.Int("removed", removed),
			zap.Int("remaining", len(s.sessions)),
		)
	}
}
