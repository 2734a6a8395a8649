package ipamgr

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vikashloomba/freeipa-mcp-go/pkg/freeipa"
)

// ConnectionStatus represents the lifecycle of the managed session.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
)

// ErrNoActiveSession is returned by Current and Probe when nothing is
// connected.
var ErrNoActiveSession = errors.New("ipamgr: no active FreeIPA session")

// Session is an immutable snapshot of the live connection.
type Session struct {
	Server      string
	Username    string
	VerifySSL   bool
	ConnectedAt time.Time
	Directory   Directory
}

// Status is the credential-free view of the manager returned to callers.
type Status struct {
	Connected   bool             `json:"connected"`
	State       ConnectionStatus `json:"state"`
	Server      string           `json:"server,omitempty"`
	Username    string           `json:"username,omitempty"`
	VerifySSL   bool             `json:"verify_ssl"`
	ConnectedAt *time.Time       `json:"connected_at,omitempty"`
	LastError   string           `json:"last_error,omitempty"`
}

// Manager owns at most one FreeIPA session. Connect and Disconnect take the
// write lock for the swap only; Status, Current, and every dispatched command
// share the read lock, so concurrent tool calls are never serialized against
// each other.
type Manager struct {
	mu sync.RWMutex
	// connectMu orders overlapping Connect calls so the last one to finish
	// is also the last one started.
	connectMu sync.Mutex

	options ManagerOptions

	session    *Session
	connecting bool
	lastErr    string

	changeHandlers []func(Status)
}

// NewManager constructs a Manager. Callers can provide nil options to fall back
// to sensible defaults.
func NewManager(opts *ManagerOptions) *Manager {
	options := opts.normalized()
	m := &Manager{options: options}
	if m.options.Dialer == nil {
		m.options.Dialer = m.dialFreeIPA
	}
	return m
}

// Connect establishes a session and, on success, replaces any previous one.
// The previous session is dropped without a logout round trip. On failure the
// previous session stays in place and the error is recorded as LastError.
func (m *Manager) Connect(ctx context.Context, creds Credentials) (Status, error) {
	if err := creds.Validate(); err != nil {
		return m.Status(), err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	m.connectMu.Lock()
	defer m.connectMu.Unlock()

	m.mu.Lock()
	m.connecting = true
	m.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, m.options.DefaultTimeout)
	dir, err := m.options.Dialer(dialCtx, creds)
	cancel()

	m.mu.Lock()
	m.connecting = false
	if err != nil {
		m.lastErr = Redact(err.Error(), creds.Password)
		status := m.statusLocked()
		m.mu.Unlock()
		m.options.Logger.Warn("freeipa connect failed", "server", creds.Server, "username", creds.Username, "error", status.LastError)
		return status, err
	}
	m.session = &Session{
		Server:      creds.Server,
		Username:    creds.Username,
		VerifySSL:   creds.VerifySSL,
		ConnectedAt: time.Now(),
		Directory:   dir,
	}
	m.lastErr = ""
	status := m.statusLocked()
	handlers := append([]func(Status){}, m.changeHandlers...)
	m.mu.Unlock()

	m.options.Logger.Info("freeipa session established", "server", creds.Server, "username", creds.Username, "verify_ssl", creds.VerifySSL)
	m.notify(handlers, status)
	return status, nil
}

// Disconnect clears the active session. It is idempotent and reports whether a
// session was actually cleared. No network round trip is made.
func (m *Manager) Disconnect() bool {
	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return false
	}
	server := m.session.Server
	m.session = nil
	status := m.statusLocked()
	handlers := append([]func(Status){}, m.changeHandlers...)
	m.mu.Unlock()

	m.options.Logger.Info("freeipa session closed", "server", server)
	m.notify(handlers, status)
	return true
}

// Status reports the local session state without contacting the server.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.statusLocked()
}

// Current returns the live session snapshot or ErrNoActiveSession.
func (m *Manager) Current() (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return nil, ErrNoActiveSession
	}
	return m.session, nil
}

// Probe pings the server through the current session. It is only used when a
// caller explicitly asks for a liveness check.
func (m *Manager) Probe(ctx context.Context) error {
	session, err := m.Current()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, m.options.DefaultTimeout)
	defer cancel()
	_, err = session.Directory.Ping(ctx)
	return err
}

// OnSessionChange registers a callback invoked after a successful Connect or
// an effective Disconnect. Handlers run without the manager lock held.
func (m *Manager) OnSessionChange(handler func(Status)) {
	if handler == nil {
		return
	}
	m.mu.Lock()
	m.changeHandlers = append(m.changeHandlers, handler)
	m.mu.Unlock()
}

func (m *Manager) notify(handlers []func(Status), status Status) {
	for _, h := range handlers {
		func(handler func(Status)) {
			defer func() { _ = recover() }()
			handler(status)
		}(h)
	}
}

func (m *Manager) statusLocked() Status {
	st := Status{State: StatusDisconnected, LastError: m.lastErr}
	if m.connecting {
		st.State = StatusConnecting
	}
	if s := m.session; s != nil {
		connectedAt := s.ConnectedAt
		st.Connected = true
		st.Server = s.Server
		st.Username = s.Username
		st.VerifySSL = s.VerifySSL
		st.ConnectedAt = &connectedAt
		if !m.connecting {
			st.State = StatusConnected
		}
	}
	return st
}

func (m *Manager) dialFreeIPA(ctx context.Context, creds Credentials) (Directory, error) {
	opts := m.options.ClientOptions
	opts.VerifySSL = creds.VerifySSL
	if opts.Timeout <= 0 {
		opts.Timeout = m.options.DefaultTimeout
	}
	client, err := freeipa.Dial(ctx, creds.Server, creds.Username, creds.Password, &opts)
	if err != nil {
		return nil, err
	}
	m.options.Logger.Debug("freeipa login accepted", "server", creds.Server, "principal", client.Principal())
	return client, nil
}
