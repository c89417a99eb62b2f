// Package session binds each browser to its own page controller.
package session

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/simp-lee/usercrud/internal/controller"
)

var (
	sessionsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "usercrud_sessions_created_total",
		Help: "Total number of page sessions created.",
	})
	sessionsEvictedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "usercrud_sessions_evicted_total",
		Help: "Total number of page sessions evicted by size or idle expiry.",
	})
)

// Factory builds the controller for a new session.
type Factory func() *controller.Controller

// Store is a bounded set of controllers keyed by session id. A session is
// dropped when it has been idle for the configured TTL or when the store is
// full and it is the least recently used.
type Store struct {
	cache   *expirable.LRU[string, *controller.Controller]
	factory Factory
	logger  *slog.Logger
}

// NewStore creates a Store holding at most maxSessions controllers.
func NewStore(maxSessions int, idleTTL time.Duration, factory Factory, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		factory: factory,
		logger:  logger.With(slog.String("component", "session_store")),
	}
	s.cache = expirable.NewLRU[string, *controller.Controller](maxSessions, s.onEvict, idleTTL)
	return s
}

// Acquire returns the controller for id. When id is malformed or unknown a
// fresh session is created and its id returned with created set.
func (s *Store) Acquire(id string) (string, *controller.Controller, bool) {
	if _, err := uuid.Parse(id); err == nil {
		if ctrl, ok := s.cache.Get(id); ok {
			// Add renews the idle deadline.
			s.cache.Add(id, ctrl)
			return id, ctrl, false
		}
	}

	id = uuid.NewString()
	ctrl := s.factory()
	s.cache.Add(id, ctrl)
	sessionsCreatedTotal.Inc()
	s.logger.Debug("session created", slog.String("session_id", id))
	return id, ctrl, true
}

// Get returns the controller for id without renewing it.
func (s *Store) Get(id string) (*controller.Controller, bool) {
	return s.cache.Peek(id)
}

// Remove drops the session with id.
func (s *Store) Remove(id string) {
	s.cache.Remove(id)
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	return s.cache.Len()
}

func (s *Store) onEvict(id string, _ *controller.Controller) {
	sessionsEvictedTotal.Inc()
	s.logger.Debug("session evicted", slog.String("session_id", id))
}
