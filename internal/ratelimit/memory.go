package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MemoryStore is the default single-process Store. Entries whose last request
// is older than the window are purged by a background sweep; the sweep is a
// memory-hygiene concern only, since Hit resets expired windows on its own.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
	window  time.Duration
	logger  *zap.Logger

	now       func() time.Time
	sweepStop chan struct{}
}

func NewMemoryStore(window, sweepInterval time.Duration, logger *zap.Logger) *MemoryStore {
	s := &MemoryStore{
		records: make(map[string]*Record),
		window:  window,
		logger:  logger,
		now:     time.Now,
	}

	if sweepInterval > 0 {
		s.sweepStop = make(chan struct{})
		go s.sweepLoop(sweepInterval)
	}

	return s
}

func (s *MemoryStore) Hit(_ context.Context, key string, window time.Duration) (Record, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.records[key]
	if !exists || now.Sub(rec.WindowStart) > window {
		rec = &Record{Count: 1, WindowStart: now, LastRequest: now}
		s.records[key] = rec
		return *rec, nil
	}

	rec.Count++
	rec.LastRequest = now
	return *rec, nil
}

func (s *MemoryStore) Status(_ context.Context, key string) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.records[key]
	if !exists || s.now().Sub(rec.WindowStart) > s.window {
		return Record{}, false, nil
	}
	return *rec, true, nil
}

func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

func (s *MemoryStore) Close() error {
	if s.sweepStop != nil {
		close(s.sweepStop)
	}
	return nil
}

func (s *MemoryStore) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.sweepStop:
			return
		}
	}
}

func (s *MemoryStore) sweep() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, rec := range s.records {
		if now.Sub(rec.LastRequest) > s.window {
			delete(s.records, key)
			removed++
		}
	}

	if removed > 0 {
		s.logger.Debug("Rate limit sweep",
			zap.Int("removed", removed),
			zap.Int("remaining", len(s.records)),
		)
	}
}

// size is used by tests to observe sweep behavior.
func (s *MemoryStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
