// Package memory provides an in-memory implementation of the session and
// state stores. It is suitable for development, testing, and single-instance
// deployments.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"github.com/giantswarm/mailgate/internal/instrumentation"
	"github.com/giantswarm/mailgate/internal/storage"
	"github.com/giantswarm/mailgate/internal/util"
)

const (
	// tokenIDLogLength is the number of characters to include when logging
	// session and state tokens. Enough for correlation, never the full value.
	tokenIDLogLength = 8

	// maxPendingStates caps unconsumed CSRF states. Exceeding it fails
	// Issue to prevent memory exhaustion from abandoned authorize requests.
	maxPendingStates = 10000
)

// Store is an in-memory implementation of storage.SessionStore and
// storage.StateStore with periodic background cleanup of expired entries.
type Store struct {
	mu sync.RWMutex

	sessions map[string]*storage.Session
	states   map[string]*storage.AuthState

	// Instrumentation
	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer

	// Atomic counters for metrics (lock-free access during metric collection)
	sessionsCountAtomic atomic.Int64
	statesCountAtomic   atomic.Int64

	// Cleanup
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
	logger          *slog.Logger
}

// Compile-time interface checks
var (
	_ storage.SessionStore = (*Store)(nil)
	_ storage.StateStore   = (*Store)(nil)
)

// New creates a new in-memory store with the default cleanup interval
// (1 minute).
func New() *Store {
	return NewWithInterval(time.Minute)
}

// NewWithInterval creates a new in-memory store with a custom cleanup
// interval. If cleanupInterval is 0 or negative, the default of 1 minute
// is used.
func NewWithInterval(cleanupInterval time.Duration) *Store {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	s := &Store{
		sessions:        make(map[string]*storage.Session),
		states:          make(map[string]*storage.AuthState),
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		logger:          slog.Default(),
	}

	// Start background cleanup
	go s.cleanupLoop()

	return s
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("storage")
	}

	// Initialize atomic counters with current counts
	s.sessionsCountAtomic.Store(int64(len(s.sessions)))
	s.statesCountAtomic.Store(int64(len(s.states)))
	s.mu.Unlock()

	if inst != nil {
		// Register size callbacks using atomic counters (lock-free)
		err := inst.RegisterStoreSizeCallbacks(
			func() int64 { return s.sessionsCountAtomic.Load() },
			func() int64 { return s.statesCountAtomic.Load() },
		)
		if err != nil {
			s.logger.Warn("Failed to register store size callbacks", "error", err)
		}
	}
}

// Stop gracefully stops the cleanup goroutine. Safe to call more than once.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCleanup)
	})
}

// ============================================================
// SessionStore Implementation
// ============================================================

// Create stores a new session keyed by its token.
func (s *Store) Create(ctx context.Context, session *storage.Session) error {
	ctx, span := s.startStorageSpan(ctx, "create_session")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "create_session", err, startTime)
	}()

	if session == nil || session.ID == "" {
		err = fmt.Errorf("invalid session")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		err = fmt.Errorf("%w: %s", storage.ErrSessionExists, util.SafeTruncate(session.ID, tokenIDLogLength))
		return err
	}

	s.sessions[session.ID] = session
	s.sessionsCountAtomic.Add(1)

	s.logger.Debug("Created session",
		"session_prefix", util.SafeTruncate(session.ID, tokenIDLogLength),
		"provider", session.Provider,
		"expires_at", session.ExpiresAt)
	return nil
}

// Get retrieves a session by token. Expired sessions are removed on access
// and reported as not found, so a caller never observes a stale session.
func (s *Store) Get(ctx context.Context, id string) (*storage.Session, error) {
	ctx, span := s.startStorageSpan(ctx, "get_session")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "get_session", err, startTime)
	}()

	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok {
		err = storage.ErrSessionNotFound
		return nil, err
	}

	if session.IsExpired(time.Now()) {
		// Lazily evict so an expired session disappears before the next
		// cleanup sweep runs.
		s.mu.Lock()
		if current, still := s.sessions[id]; still && current == session {
			delete(s.sessions, id)
			s.sessionsCountAtomic.Add(-1)
		}
		s.mu.Unlock()

		s.logger.Debug("Session expired on access",
			"session_prefix", util.SafeTruncate(id, tokenIDLogLength))
		err = storage.ErrSessionExpired
		return nil, err
	}

	// Return a copy to prevent the caller from modifying the stored version
	sessionCopy := *session
	return &sessionCopy, nil
}

// Remove deletes a session by token. Returns storage.ErrSessionNotFound if
// no such session exists.
func (s *Store) Remove(ctx context.Context, id string) error {
	ctx, span := s.startStorageSpan(ctx, "remove_session")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "remove_session", err, startTime)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		err = storage.ErrSessionNotFound
		return err
	}

	delete(s.sessions, id)
	s.sessionsCountAtomic.Add(-1)

	s.logger.Debug("Removed session",
		"session_prefix", util.SafeTruncate(id, tokenIDLogLength))
	return nil
}

// List returns all unexpired sessions. The returned slice holds copies.
func (s *Store) List(ctx context.Context) ([]*storage.Session, error) {
	ctx, span := s.startStorageSpan(ctx, "list_sessions")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "list_sessions", err, startTime)
	}()

	now := time.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]*storage.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		if session.IsExpired(now) {
			continue
		}
		sessionCopy := *session
		sessions = append(sessions, &sessionCopy)
	}

	return sessions, nil
}

// ============================================================
// StateStore Implementation
// ============================================================

// Issue generates and stores a new single-use CSRF state for a provider.
func (s *Store) Issue(ctx context.Context, provider string) (string, error) {
	ctx, span := s.startStorageSpan(ctx, "issue_state")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "issue_state", err, startTime)
	}()

	if provider == "" {
		err = fmt.Errorf("provider cannot be empty")
		return "", err
	}

	// 32 bytes of crypto/rand entropy, base64url encoded
	state := oauth2.GenerateVerifier()

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.states) >= maxPendingStates {
		err = fmt.Errorf("pending state limit exceeded (%d entries)", len(s.states))
		s.logger.Error("Refusing to issue state: pending state limit exceeded",
			"current_count", len(s.states),
			"limit", maxPendingStates)
		return "", err
	}

	s.states[state] = &storage.AuthState{
		State:     state,
		Provider:  provider,
		CreatedAt: time.Now(),
	}
	s.statesCountAtomic.Add(1)

	s.logger.Debug("Issued state",
		"state_prefix", util.SafeTruncate(state, tokenIDLogLength),
		"provider", provider)
	return state, nil
}

// Consume atomically validates and removes a state, returning the provider
// it was issued for. Only ONE concurrent caller can succeed for a given
// state; all others receive storage.ErrStateNotFound. An expired state is
// removed and reported as storage.ErrStateExpired.
func (s *Store) Consume(ctx context.Context, state string) (string, error) {
	ctx, span := s.startStorageSpan(ctx, "consume_state")
	defer span.End()

	startTime := time.Now()
	var err error

	defer func() {
		s.recordStorageOperation(ctx, span, "consume_state", err, startTime)
	}()

	s.mu.Lock() // MUST use write lock for atomic check-and-delete
	defer s.mu.Unlock()

	entry, ok := s.states[state]
	if !ok {
		err = storage.ErrStateNotFound
		return "", err
	}

	// ATOMIC delete: the entry is gone before the lock is released, so a
	// concurrent Consume of the same state cannot also succeed.
	delete(s.states, state)
	s.statesCountAtomic.Add(-1)

	if entry.IsExpired(time.Now()) {
		s.logger.Debug("Rejected expired state",
			"state_prefix", util.SafeTruncate(state, tokenIDLogLength),
			"provider", entry.Provider)
		err = storage.ErrStateExpired
		return "", err
	}

	s.logger.Debug("Consumed state",
		"state_prefix", util.SafeTruncate(state, tokenIDLogLength),
		"provider", entry.Provider)
	return entry.Provider, nil
}

// ============================================================
// Cleanup
// ============================================================

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *Store) cleanup() {
	now := time.Now()

	s.mu.Lock()

	var expiredSessions, expiredStates int64

	for id, session := range s.sessions {
		if session.IsExpired(now) {
			delete(s.sessions, id)
			expiredSessions++
		}
	}
	if expiredSessions > 0 {
		s.sessionsCountAtomic.Add(-expiredSessions)
	}

	for state, entry := range s.states {
		if entry.IsExpired(now) {
			delete(s.states, state)
			expiredStates++
		}
	}
	if expiredStates > 0 {
		s.statesCountAtomic.Add(-expiredStates)
	}

	inst := s.instrumentation
	logger := s.logger
	s.mu.Unlock()

	if inst != nil {
		ctx := context.Background()
		inst.Metrics().RecordCleanup(ctx, "session", expiredSessions)
		inst.Metrics().RecordCleanup(ctx, "state", expiredStates)
	}

	if expiredSessions > 0 || expiredStates > 0 {
		logger.Debug("Cleaned up expired entries",
			"sessions", expiredSessions,
			"states", expiredStates)
	}
}

// ============================================================
// Instrumentation Helpers
// ============================================================

// startStorageSpan starts a new span for a storage operation.
// Returns a context with the span attached and the span itself.
func (s *Store) startStorageSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	ctx, span := s.tracer.Start(ctx, fmt.Sprintf("storage.%s", operation),
		trace.WithAttributes(
			attribute.String(instrumentation.AttrStorageOperation, operation),
			attribute.String(instrumentation.AttrStorageType, "memory"),
		))

	return ctx, span
}

// recordStorageOperation records metrics for a storage operation and sets
// span status.
func (s *Store) recordStorageOperation(ctx context.Context, span trace.Span, operation string, err error, startTime time.Time) {
	if s.instrumentation == nil {
		return
	}

	durationMs := float64(time.Since(startTime).Milliseconds())
	result := "success"
	if err != nil {
		result = "error"
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	} else {
		if span != nil {
			span.SetStatus(codes.Ok, "")
		}
	}

	s.instrumentation.Metrics().RecordStorageOperation(ctx, operation, result, durationMs)
}
