package ipamgr

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vikashloomba/freeipa-mcp-go/pkg/freeipa"
)

// Directory is the remote surface a session exposes. *freeipa.Client
// implements it; tests substitute spies.
type Directory interface {
	Ping(ctx context.Context) (freeipa.Result, error)
	UserFind(ctx context.Context, sizeLimit int) (freeipa.Result, error)
	UserShow(ctx context.Context, uid string) (freeipa.Result, error)
	UserAdd(ctx context.Context, uid string, attrs freeipa.Attributes) (freeipa.Result, error)
	UserMod(ctx context.Context, uid string, attrs freeipa.Attributes) (freeipa.Result, error)
	ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error
	ResetPassword(ctx context.Context, username, newPassword string) error
	GroupFind(ctx context.Context, filter freeipa.GroupFilter) (freeipa.Result, error)
	GroupShow(ctx context.Context, cn string) (freeipa.Result, error)
	GroupAdd(ctx context.Context, cn string, attrs freeipa.Attributes) (freeipa.Result, error)
	GroupAddMember(ctx context.Context, cn, user string) (freeipa.Result, error)
	GroupRemoveMember(ctx context.Context, cn, user string) (freeipa.Result, error)
}

var _ Directory = (*freeipa.Client)(nil)

// Credentials identify the server and principal for Connect. Password is
// write-only: it is handed to the Dialer and never retained.
type Credentials struct {
	Server    string
	Username  string
	Password  string
	VerifySSL bool
}

// Validate reports the first missing field.
func (c Credentials) Validate() error {
	switch {
	case strings.TrimSpace(c.Server) == "":
		return &CredentialsError{Field: "server"}
	case strings.TrimSpace(c.Username) == "":
		return &CredentialsError{Field: "username"}
	case c.Password == "":
		return &CredentialsError{Field: "password"}
	}
	return nil
}

// CredentialsError names a missing connect argument.
type CredentialsError struct {
	Field string
}

func (e *CredentialsError) Error() string {
	return fmt.Sprintf("ipamgr: %s is required", e.Field)
}

// Dialer opens an authenticated Directory. Implementations should perform a
// single login round trip.
type Dialer func(ctx context.Context, creds Credentials) (Directory, error)

// ManagerOptions configures a Manager instance.
type ManagerOptions struct {
	// Dialer overrides how sessions are established. Defaults to freeipa.Dial.
	Dialer Dialer
	// ClientOptions are passed to freeipa.Dial by the default Dialer. VerifySSL
	// is taken from the Credentials instead.
	ClientOptions freeipa.Options
	// DefaultTimeout bounds the login round trip and, for the default Dialer,
	// every subsequent HTTP request.
	DefaultTimeout time.Duration
	// Logger receives structured diagnostics.
	Logger *slog.Logger
}

func (o *ManagerOptions) normalized() ManagerOptions {
	if o == nil {
		o = &ManagerOptions{}
	}
	opts := *o
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return opts
}

// Redact replaces every non-empty secret in msg with a fixed marker.
func Redact(msg string, secrets ...string) string {
	for _, s := range secrets {
		if s != "" {
			msg = strings.ReplaceAll(msg, s, "[REDACTED]")
		}
	}
	return msg
}
