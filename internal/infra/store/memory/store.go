// Package memory holds the process-lifetime session store. Records are
// reaped after a TTL so abandoned sessions cannot grow the map without bound.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hirelens/interview-analyzer/internal/domain/session"
)

type entry struct {
	sess    *session.Session
	touched time.Time
}

// Store implements session.Store over a mutex-guarded map.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry

	ttl    time.Duration
	logger *zap.Logger
	stop   chan struct{}
	once   sync.Once
}

// New creates the store. With ttl > 0 a janitor goroutine sweeps expired
// sessions every sweep interval; Close stops it.
func New(ttl, sweep time.Duration, logger *zap.Logger) *Store {
	s := &Store{
		entries: make(map[string]*entry),
		ttl:     ttl,
		logger:  logger,
		stop:    make(chan struct{}),
	}
	if ttl > 0 {
		if sweep <= 0 {
			sweep = time.Minute
		}
		go s.janitor(sweep)
	}
	return s
}

func (s *Store) Create(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[sess.ID]; exists {
		return fmt.Errorf("session %s already exists", sess.ID)
	}
	s.entries[sess.ID] = &entry{sess: sess.Clone(), touched: time.Now()}
	return nil
}

// Get returns a snapshot copy; callers never see the live record.
func (s *Store) Get(_ context.Context, id string) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	return e.sess.Clone(), nil
}

// Update applies the mutation under the write lock, so a single Update is
// atomic with respect to concurrent readers and writers.
func (s *Store) Update(_ context.Context, id string, mutate func(*session.Session) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return session.ErrNotFound
	}
	if err := mutate(e.sess); err != nil {
		return err
	}
	e.touched = time.Now()
	return nil
}

// Close stops the janitor.
func (s *Store) Close() {
	s.once.Do(func() { close(s.stop) })
}

func (s *Store) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if n := s.sweep(time.Now()); n > 0 {
				s.logger.Info("reaped expired sessions", zap.Int("count", n))
			}
		}
	}
}

// sweep removes entries idle for longer than the TTL and reports how many.
func (s *Store) sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, e := range s.entries {
		if now.Sub(e.touched) > s.ttl {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}
