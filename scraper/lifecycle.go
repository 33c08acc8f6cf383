package scraper

import (
	"context"
	"log/slog"

	"github.com/jorgecela/ironman-races-analysis/browser"
	"github.com/jorgecela/ironman-races-analysis/config"
	"github.com/jorgecela/ironman-races-analysis/models"
)

// SessionManager owns the automation session for one race at a time. It is
// the failure-containment boundary for session loss: a session that cannot
// be (re)established after its retry budget costs the current date facet,
// not the whole race.
type SessionManager struct {
	factory browser.Factory
	cfg     *config.Config
	metrics *Metrics
}

// NewSessionManager wires a lifecycle manager over a session factory.
func NewSessionManager(factory browser.Factory, cfg *config.Config, metrics *Metrics) *SessionManager {
	return &SessionManager{factory: factory, cfg: cfg, metrics: metrics}
}

func (m *SessionManager) policy() browser.RetryPolicy {
	return browser.RetryPolicy{MaxRetries: m.cfg.MaxRetries, Delay: m.cfg.RetryDelay}
}

// Open establishes a fresh session at the race's entry point. The whole open
// sequence (navigate, enter the embedded results frame) is retried as a
// unit, since the embedding frame may not be ready immediately.
func (m *SessionManager) Open(ctx context.Context, race models.RaceTarget) (browser.Session, error) {
	session, err := browser.Attempt(ctx, "open session", m.policy(), func() (browser.Session, error) {
		return m.factory.Open(ctx, race.EntryURL)
	})
	if err != nil {
		return nil, ErrSession{Err: err}
	}
	m.metrics.IncSessionOpen()
	return session, nil
}

// Recycle tears the session down and re-establishes it at the same entry
// point, bounding the memory and state pressure long result tables build up
// in an automation context. A nil session is tolerated so that a facet whose
// predecessor lost its session can still get a fresh one.
func (m *SessionManager) Recycle(ctx context.Context, session browser.Session, race models.RaceTarget) (browser.Session, error) {
	m.Close(session)
	m.metrics.IncSessionRecycle()
	return m.Open(ctx, race)
}

// Close tears the session down; teardown failures are logged, never fatal.
func (m *SessionManager) Close(session browser.Session) {
	if session == nil {
		return
	}
	if err := session.Close(); err != nil {
		slog.Warn("session teardown failed", slog.Any("error", err))
	}
}
