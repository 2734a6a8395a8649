package ipamgr

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vikashloomba/freeipa-mcp-go/pkg/freeipa"
)

// stubDirectory satisfies Directory; only Ping is exercised here.
type stubDirectory struct {
	Directory
	pingErr error
}

func (s *stubDirectory) Ping(context.Context) (freeipa.Result, error) {
	if s.pingErr != nil {
		return nil, s.pingErr
	}
	return freeipa.Result{"summary": "IPA server version 4.11.0"}, nil
}

func newTestManager(dial Dialer) *Manager {
	return NewManager(&ManagerOptions{Dialer: dial, DefaultTimeout: 5 * time.Second})
}

func TestManagerConnectThenStatus(t *testing.T) {
	t.Parallel()

	var dials int
	manager := newTestManager(func(ctx context.Context, creds Credentials) (Directory, error) {
		dials++
		return &stubDirectory{}, nil
	})

	status, err := manager.Connect(context.Background(), Credentials{
		Server:   "https://ipa.test",
		Username: "admin",
		Password: "secret",
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if dials != 1 {
		t.Fatalf("expected one dial, got %d", dials)
	}
	if !status.Connected || status.State != StatusConnected {
		t.Fatalf("unexpected status after connect: %+v", status)
	}

	got := manager.Status()
	if !got.Connected || got.Server != "https://ipa.test" || got.Username != "admin" {
		t.Fatalf("Status() = %+v", got)
	}
	if got.ConnectedAt == nil {
		t.Fatalf("ConnectedAt should be set")
	}
}

func TestManagerCurrentWithoutSession(t *testing.T) {
	t.Parallel()

	manager := newTestManager(nil)
	if _, err := manager.Current(); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("Current() error = %v, want ErrNoActiveSession", err)
	}
	if err := manager.Probe(context.Background()); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("Probe() error = %v, want ErrNoActiveSession", err)
	}
	if st := manager.Status(); st.Connected || st.State != StatusDisconnected {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestManagerDisconnectIsIdempotent(t *testing.T) {
	t.Parallel()

	manager := newTestManager(func(context.Context, Credentials) (Directory, error) {
		return &stubDirectory{}, nil
	})
	if _, err := manager.Connect(context.Background(), Credentials{Server: "ipa.test", Username: "admin", Password: "secret"}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !manager.Disconnect() {
		t.Fatalf("first Disconnect should clear the session")
	}
	if manager.Disconnect() {
		t.Fatalf("second Disconnect should be a no-op")
	}
	if manager.Status().Connected {
		t.Fatalf("status still connected after disconnect")
	}
}

func TestManagerFailedConnectKeepsPreviousSession(t *testing.T) {
	t.Parallel()

	fail := false
	manager := newTestManager(func(ctx context.Context, creds Credentials) (Directory, error) {
		if fail {
			return nil, errors.New("login rejected for password " + creds.Password)
		}
		return &stubDirectory{}, nil
	})
	if _, err := manager.Connect(context.Background(), Credentials{Server: "https://one.test", Username: "admin", Password: "secret"}); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	fail = true
	status, err := manager.Connect(context.Background(), Credentials{Server: "https://two.test", Username: "bob", Password: "hunter2"})
	if err == nil {
		t.Fatalf("expected connect error")
	}
	if status.Server != "https://one.test" || !status.Connected {
		t.Fatalf("previous session should survive a failed connect: %+v", status)
	}
	if strings.Contains(status.LastError, "hunter2") {
		t.Fatalf("LastError leaks password: %q", status.LastError)
	}
	if status.LastError == "" {
		t.Fatalf("LastError should be recorded")
	}
}

func TestManagerConnectReplacesSession(t *testing.T) {
	t.Parallel()

	first := &stubDirectory{}
	second := &stubDirectory{}
	dirs := []Directory{first, second}
	manager := newTestManager(func(context.Context, Credentials) (Directory, error) {
		d := dirs[0]
		dirs = dirs[1:]
		return d, nil
	})
	if _, err := manager.Connect(context.Background(), Credentials{Server: "https://one.test", Username: "admin", Password: "x"}); err != nil {
		t.Fatalf("Connect one: %v", err)
	}
	if _, err := manager.Connect(context.Background(), Credentials{Server: "https://two.test", Username: "root", Password: "y"}); err != nil {
		t.Fatalf("Connect two: %v", err)
	}
	session, err := manager.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if session.Directory != second || session.Server != "https://two.test" || session.Username != "root" {
		t.Fatalf("session not replaced: %+v", session)
	}
}

func TestManagerConnectValidatesCredentials(t *testing.T) {
	t.Parallel()

	called := false
	manager := newTestManager(func(context.Context, Credentials) (Directory, error) {
		called = true
		return &stubDirectory{}, nil
	})
	_, err := manager.Connect(context.Background(), Credentials{Server: "ipa.test", Username: "admin"})
	var credErr *CredentialsError
	if !errors.As(err, &credErr) || credErr.Field != "password" {
		t.Fatalf("expected missing password error, got %v", err)
	}
	if called {
		t.Fatalf("dialer must not run for invalid credentials")
	}
}

func TestManagerProbeUsesDirectoryPing(t *testing.T) {
	t.Parallel()

	pingErr := errors.New("connection reset")
	manager := newTestManager(func(context.Context, Credentials) (Directory, error) {
		return &stubDirectory{pingErr: pingErr}, nil
	})
	if _, err := manager.Connect(context.Background(), Credentials{Server: "ipa.test", Username: "admin", Password: "secret"}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := manager.Probe(context.Background()); !errors.Is(err, pingErr) {
		t.Fatalf("Probe() = %v, want %v", err, pingErr)
	}
}

func TestManagerOnSessionChange(t *testing.T) {
	t.Parallel()

	manager := newTestManager(func(context.Context, Credentials) (Directory, error) {
		return &stubDirectory{}, nil
	})
	var seen []bool
	manager.OnSessionChange(func(st Status) { seen = append(seen, st.Connected) })

	_, _ = manager.Connect(context.Background(), Credentials{Server: "ipa.test", Username: "admin", Password: "secret"})
	manager.Disconnect()
	manager.Disconnect()

	if len(seen) != 2 || !seen[0] || seen[1] {
		t.Fatalf("change notifications = %v, want [true false]", seen)
	}
}

func TestManagerConcurrentReadersObserveWholeSessions(t *testing.T) {
	t.Parallel()

	manager := newTestManager(func(ctx context.Context, creds Credentials) (Directory, error) {
		return &stubDirectory{}, nil
	})
	ctx := context.Background()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if s, err := manager.Current(); err == nil {
					// Server and Username are written together on connect.
					if (s.Server == "https://a.test") != (s.Username == "alice") {
						t.Errorf("torn session: %+v", s)
						return
					}
				}
				_ = manager.Status()
			}
		}()
	}
	for i := 0; i < 50; i++ {
		if i%2 == 0 {
			_, _ = manager.Connect(ctx, Credentials{Server: "https://a.test", Username: "alice", Password: "p"})
		} else {
			_, _ = manager.Connect(ctx, Credentials{Server: "https://b.test", Username: "bob", Password: "p"})
		}
		if i%7 == 0 {
			manager.Disconnect()
		}
	}
	close(stop)
	wg.Wait()
}
