package board

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/talep-board/internal/domain"
	"github.com/spec-kit/talep-board/internal/feed"
	"github.com/spec-kit/talep-board/internal/repository"
	"github.com/spec-kit/talep-board/pkg/util"
)

// Session is one mounted viewport: a reconciler plus its live feed
// subscription. Unmount tears the subscription down so events never reach a
// dead collection.
type Session struct {
	ID         string
	Actor      domain.Identity
	Reconciler *Reconciler

	lastSeen   time.Time
	cancelFeed func()
	cancelCtx  context.CancelFunc
}

// SessionManager owns every mounted viewport in the process.
type SessionManager struct {
	store      repository.TalepStore
	committer  *Committer
	subscriber feed.Subscriber
	logger     *zap.Logger
	slaWindow  time.Duration
	limit      int

	mu       sync.Mutex
	sessions map[string]*Session
}

// SessionManagerConfig wires the manager's collaborators.
type SessionManagerConfig struct {
	Store      repository.TalepStore
	Committer  *Committer
	Subscriber feed.Subscriber
	Logger     *zap.Logger
	SLAWindow  time.Duration
	Limit      int
}

// NewSessionManager builds an empty registry.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &SessionManager{
		store:      cfg.Store,
		committer:  cfg.Committer,
		subscriber: cfg.Subscriber,
		logger:     cfg.Logger,
		slaWindow:  cfg.SLAWindow,
		limit:      cfg.Limit,
		sessions:   make(map[string]*Session),
	}
}

// Mount loads a viewport for the scoped owner and starts feeding it change
// events. The initial load is blocking: a failed read aborts the mount.
func (m *SessionManager) Mount(ctx context.Context, actor domain.Identity, scope repository.OwnerScope, view domain.View) (*Session, error) {
	rec := NewReconciler(ReconcilerConfig{
		Store:     m.store,
		Committer: m.committer,
		Logger:    m.logger,
		Scope:     scope,
		View:      view,
		SLAWindow: m.slaWindow,
		Limit:     m.limit,
	})
	if err := rec.Load(ctx); err != nil {
		return nil, err
	}

	session := &Session{
		ID:         uuid.NewString(),
		Actor:      actor,
		Reconciler: rec,
		lastSeen:   time.Now(),
	}

	if m.subscriber != nil {
		feedCtx, cancelCtx := context.WithCancel(context.Background())
		events, cancelFeed, err := m.subscriber.Subscribe(feedCtx)
		if err != nil {
			cancelCtx()
			return nil, util.NewInternalError(err)
		}
		session.cancelFeed = cancelFeed
		session.cancelCtx = cancelCtx
		go func() {
			for event := range events {
				rec.Apply(event)
			}
		}()
	}

	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()

	m.logger.Info("viewport mounted",
		zap.String("session", session.ID),
		zap.String("actor", actor.Email),
		zap.String("view", string(view)))
	return session, nil
}

// Get returns the caller's session and refreshes its idle clock.
func (m *SessionManager) Get(id string, actor domain.Identity) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, util.NewNotFound("session", map[string]any{"id": id})
	}
	if session.Actor.Email != actor.Email {
		return nil, util.NewAuthorizationError("session belongs to another user")
	}
	session.lastSeen = time.Now()
	return session, nil
}

// Unmount stops the session's feed subscription and drops it.
func (m *SessionManager) Unmount(id string, actor domain.Identity) error {
	m.mu.Lock()
	session, ok := m.sessions[id]
	if ok && session.Actor.Email != actor.Email {
		m.mu.Unlock()
		return util.NewAuthorizationError("session belongs to another user")
	}
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return nil
	}
	session.stop()
	m.logger.Info("viewport unmounted", zap.String("session", id))
	return nil
}

// Active reports how many viewports are currently mounted.
func (m *SessionManager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// EvictIdle unmounts sessions not touched within maxIdle. Called from a
// ticker in main.
func (m *SessionManager) EvictIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	m.mu.Lock()
	var stale []*Session
	for id, session := range m.sessions {
		if session.lastSeen.Before(cutoff) {
			stale = append(stale, session)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, session := range stale {
		session.stop()
		m.logger.Info("idle viewport evicted", zap.String("session", session.ID))
	}
	return len(stale)
}

// Close unmounts everything during shutdown.
func (m *SessionManager) Close() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		sessions = append(sessions, session)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, session := range sessions {
		session.stop()
	}
}

func (s *Session) stop() {
	if s.cancelFeed != nil {
		s.cancelFeed()
	}
	if s.cancelCtx != nil {
		s.cancelCtx()
	}
}
