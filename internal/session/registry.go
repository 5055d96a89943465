package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rakeshkurakula/voice-training-app/internal/metrics"
)

// Factory builds a session for an id, with the notifier that delivers
// outbound messages to that session's client
type Factory func(id string, notify Notifier) (*Session, error)

// Registry tracks all live sessions. Creation is idempotent per id, removal
// is best-effort, and a background routine expires idle sessions.
type Registry struct {
	sessions map[string]*Session
	mu       sync.RWMutex

	factory     Factory
	idleTimeout time.Duration
	logger      *slog.Logger
	metrics     *metrics.Metrics

	ctx     context.Context
	cancel  context.CancelFunc
	cleanup chan struct{}
}

// NewRegistry creates a registry and starts its idle cleanup routine
func NewRegistry(factory Factory, idleTimeout time.Duration, logger *slog.Logger, m *metrics.Metrics) *Registry {
	ctx, cancel := context.WithCancel(context.Background())

	r := &Registry{
		sessions:    make(map[string]*Session),
		factory:     factory,
		idleTimeout: idleTimeout,
		logger:      logger,
		metrics:     m,
		ctx:         ctx,
		cancel:      cancel,
		cleanup:     make(chan struct{}),
	}

	go r.startCleanupRoutine()

	return r
}

// Ensure returns the session for id, creating it if it does not exist.
// Concurrent calls for the same id observe a single session.
func (r *Registry) Ensure(id string, notify Notifier) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, exists := r.sessions[id]; exists {
		return existing, nil
	}

	sess, err := r.factory(id, notify)
	if err != nil {
		return nil, err
	}

	r.sessions[id] = sess
	r.metrics.RecordSessionCreated()
	r.metrics.SetActiveSessions(len(r.sessions))

	r.logger.Info("Session registered",
		slog.String("session_id", id),
		slog.Int("active_sessions", len(r.sessions)),
	)

	return sess, nil
}

// Get retrieves an existing session
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, exists := r.sessions[id]
	return sess, exists
}

// Count returns the number of live sessions
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// GetAllSessions returns a snapshot of all live sessions (for monitoring)
func (r *Registry) GetAllSessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	return sessions
}

// Remove tears down the session for id and drops it from the registry.
// The client is not notified; Remove is for gone connections and expired
// sessions. Returns false if no such session exists.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	sess, exists := r.sessions[id]
	if !exists {
		r.mu.Unlock()
		return false
	}
	delete(r.sessions, id)
	remaining := len(r.sessions)
	r.mu.Unlock()

	sess.Teardown()

	r.metrics.RecordSessionDestroyed(time.Since(sess.StartTime).Seconds())
	r.metrics.SetActiveSessions(remaining)

	r.logger.Info("Session removed",
		slog.String("session_id", id),
		slog.Duration("duration", time.Since(sess.StartTime)),
		slog.Int("active_sessions", remaining),
	)

	return true
}

// Stop tears down all sessions and stops the cleanup routine
func (r *Registry) Stop() {
	r.logger.Info("Stopping session registry...")

	r.mu.Lock()
	sessions := make(map[string]*Session, len(r.sessions))
	for id, sess := range r.sessions {
		sessions[id] = sess
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for id, sess := range sessions {
		sess.Teardown()
		r.metrics.RecordSessionDestroyed(time.Since(sess.StartTime).Seconds())
		r.logger.Debug("Session torn down on shutdown", slog.String("session_id", id))
	}
	r.metrics.SetActiveSessions(0)

	r.cancel()
	<-r.cleanup

	r.logger.Info("Session registry stopped", slog.Int("sessions_torn_down", len(sessions)))
}

// startCleanupRoutine runs in a separate goroutine to expire idle sessions
func (r *Registry) startCleanupRoutine() {
	defer close(r.cleanup)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	r.logger.Info("Session cleanup routine started",
		slog.Duration("idle_timeout", r.idleTimeout),
		slog.Duration("check_interval", 30*time.Second),
	)

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Info("Session cleanup routine stopping")
			return

		case <-ticker.C:
			r.expireIdleSessions()
		}
	}
}

// expireIdleSessions removes sessions that have seen no messages for longer
// than the idle timeout
func (r *Registry) expireIdleSessions() {
	now := time.Now()
	expired := make([]string, 0)

	r.mu.RLock()
	for id, sess := range r.sessions {
		if now.Sub(sess.LastActivity()) > r.idleTimeout {
			expired = append(expired, id)
		}
	}
	r.mu.RUnlock()

	if len(expired) == 0 {
		return
	}

	r.logger.Info("Expiring idle sessions", slog.Int("expired_count", len(expired)))

	for _, id := range expired {
		r.Remove(id)
	}
}
