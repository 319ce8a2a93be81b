// Package auth implements the Auth State Machine (spec.md §4.3, C3): a
// QR-login session per drive, driven through
// idle -> awaiting_scan -> awaiting_confirm -> exchanging -> done|failed.
// Sessions live in process memory only — the verifier/session bookkeeping
// here is deliberately not persisted, mirroring the teacher's PKCE verifier
// handling in internal/graph/auth.go (generated, used once, discarded).
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wenfer/strmgate/internal/credstore"
	"github.com/wenfer/strmgate/internal/ids"
	"github.com/wenfer/strmgate/internal/upstream"
)

// State is one node of the C3 state machine.
type State string

const (
	StateAwaitingScan    State = "awaiting_scan"
	StateAwaitingConfirm State = "awaiting_confirm"
	StateExchanging      State = "exchanging"
	StateDone            State = "done"
	StateFailed          State = "failed"
)

// Session is one in-flight login attempt. QRPayload is rendered by the
// caller (CLI/HTTP layer) as an actual QR code.
type Session struct {
	ID        string
	State     State
	QRPayload string
	CreatedAt time.Time
	ExpiresAt time.Time
	DriveID   ids.DriveID // bound once Exchange succeeds; zero until then
	Err       error
}

func (s *Session) expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Machine holds every in-flight session for one process. One Machine is
// shared across all drives of the same upstream kind.
type Machine struct {
	client    *upstream.Client
	credStore *credstore.Store
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// New builds a Machine. client talks to the upstream's QR-login endpoints;
// credStore is where Exchange ultimately writes the resulting credential
// (spec.md §4.3 "writes to C1 for the target drive").
func New(client *upstream.Client, credStore *credstore.Store, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}

	return &Machine{
		client:    client,
		credStore: credStore,
		logger:    logger,
		sessions:  make(map[string]*Session),
	}
}

// authBucket is the pseudo drive ID used to key the rate limiter for
// pre-authentication calls (BeginAuthSession/PollAuthSession run before any
// drive-specific credential exists).
var authBucket = ids.NewDriveID("auth")

// Begin starts a new login session (spec.md §4.3 begin()). The state
// starts at awaiting_scan — "idle" describes the absence of any session at
// all, not a state a Session instance ever carries.
func (m *Machine) Begin(ctx context.Context) (*Session, error) {
	m.gc()

	upstreamSess, err := m.client.BeginAuthSession(ctx, authBucket)
	if err != nil {
		return nil, fmt.Errorf("auth: beginning session: %w", err)
	}

	sess := &Session{
		ID:        upstreamSess.SessionID,
		State:     StateAwaitingScan,
		QRPayload: upstreamSess.QRPayload,
		CreatedAt: time.Now(),
		ExpiresAt: upstreamSess.ExpiresAt,
	}

	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()

	m.logger.Info("auth session started", slog.String("session_id", sess.ID))

	return sess, nil
}

// Poll reports the current state of a session, advancing
// awaiting_scan/awaiting_confirm as the upstream reports progress (spec.md
// §4.3 poll()). A session absent or past its TTL reports StateFailed.
func (m *Machine) Poll(ctx context.Context, sessionID string) (State, error) {
	m.gc()

	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	m.mu.Unlock()

	if !ok {
		return StateFailed, fmt.Errorf("auth: unknown or expired session %q", sessionID)
	}

	status, err := m.client.PollAuthSession(ctx, authBucket, sessionID)
	if err != nil {
		return StateFailed, fmt.Errorf("auth: polling session %q: %w", sessionID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch status {
	case upstream.AuthNotScanned:
		sess.State = StateAwaitingScan
	case upstream.AuthScanned:
		sess.State = StateAwaitingConfirm
	case upstream.AuthConfirmed:
		// Leave in awaiting_confirm until Exchange is actually called —
		// "confirmed" from the upstream means "ready to exchange", not
		// that exchange has happened.
		sess.State = StateAwaitingConfirm
	case upstream.AuthExpired:
		sess.State = StateFailed
		delete(m.sessions, sessionID)
	}

	return sess.State, nil
}

// Exchange trades a confirmed session for a credential and persists it via
// the Credential Store, binding it to driveID (spec.md §4.3 exchange()).
// The caller resolves driveID beforehand — "bind to current drive" / "no
// drive exists, create one first" are Provider Pool / Task Registry
// concerns, not this package's.
func (m *Machine) Exchange(ctx context.Context, sessionID string, driveID ids.DriveID) (*credstore.Credential, error) {
	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	if ok {
		sess.State = StateExchanging
	}
	m.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("auth: unknown or expired session %q", sessionID)
	}

	payload, err := m.client.ExchangeAuthSession(ctx, authBucket, sessionID)
	if err != nil {
		m.fail(sess, err)

		return nil, fmt.Errorf("auth: exchanging session %q: %w", sessionID, err)
	}

	cred := credstore.Credential{
		Kind:      credstore.KindCookie,
		Payload:   payload,
		ExpiresAt: time.Time{}, // cookie-like: refreshed implicitly upstream
		Meta:      map[string]string{"auth_session_id": sessionID},
	}

	if err := m.credStore.Save(driveID, cred); err != nil {
		m.fail(sess, err)

		return nil, fmt.Errorf("auth: saving exchanged credential: %w", err)
	}

	m.mu.Lock()
	sess.State = StateDone
	sess.DriveID = driveID
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	m.logger.Info("auth session exchanged",
		slog.String("session_id", sessionID),
		slog.String("drive_id", driveID.String()),
	)

	return &cred, nil
}

func (m *Machine) fail(sess *Session, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess.State = StateFailed
	sess.Err = err
}

// gc drops sessions past their TTL (spec.md §4.3 "expired sessions are
// garbage-collected").
func (m *Machine) gc() {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, sess := range m.sessions {
		if sess.expired(now) {
			delete(m.sessions, id)
		}
	}
}
