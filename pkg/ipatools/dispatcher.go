package ipatools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/vikashloomba/freeipa-mcp-go/pkg/freeipa"
	"github.com/vikashloomba/freeipa-mcp-go/pkg/ipamgr"
)

// DispatcherOptions configure a Dispatcher.
type DispatcherOptions struct {
	// Logger receives one record per dispatched call.
	Logger *slog.Logger
	// PhoneCountryCode is stripped from international prefixes when the
	// password reset flow compares phone numbers. Defaults to "90".
	PhoneCountryCode string
	// DefaultSizeLimit applies to user_list and group_list when the caller
	// omits sizelimit. Defaults to 100.
	DefaultSizeLimit int
}

func (o *DispatcherOptions) withDefaults() DispatcherOptions {
	if o == nil {
		o = &DispatcherOptions{}
	}
	opts := *o
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.PhoneCountryCode == "" {
		opts.PhoneCountryCode = DefaultCountryCode
	}
	if opts.DefaultSizeLimit <= 0 {
		opts.DefaultSizeLimit = DefaultSizeLimit
	}
	return opts
}

// Dispatcher runs tool requests against the manager's current session and
// normalizes every outcome into an Envelope.
type Dispatcher struct {
	manager *ipamgr.Manager
	opts    DispatcherOptions
}

// NewDispatcher binds a Dispatcher to manager.
func NewDispatcher(manager *ipamgr.Manager, opts *DispatcherOptions) (*Dispatcher, error) {
	if manager == nil {
		return nil, fmt.Errorf("ipatools: manager is required")
	}
	return &Dispatcher{manager: manager, opts: opts.withDefaults()}, nil
}

// Manager returns the session manager the dispatcher reads from.
func (d *Dispatcher) Manager() *ipamgr.Manager { return d.manager }

// StatusReport is the payload of freeipa_status.
type StatusReport struct {
	ipamgr.Status
	// Reachable is set only when a ping was requested on a live session.
	Reachable *bool  `json:"reachable,omitempty"`
	PingError string `json:"ping_error,omitempty"`
}

// DisconnectResult is the payload of freeipa_disconnect.
type DisconnectResult struct {
	Disconnected bool          `json:"disconnected"`
	Status       ipamgr.Status `json:"status"`
}

// PasswordResult is the payload of the password tools. The new password is
// never included.
type PasswordResult struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

// Call decodes raw arguments for the named tool and dispatches them. Directory
// tools report NoActiveSessionError before their arguments are decoded.
func (d *Dispatcher) Call(ctx context.Context, name Name, raw json.RawMessage) Envelope {
	if spec, ok := Lookup(name); ok && !spec.SessionFree {
		if _, err := d.manager.Current(); err != nil {
			kind, msg := Classify(err)
			d.opts.Logger.Warn("tool call rejected", "tool", name, "error_kind", kind, "error", msg)
			return Failure(kind, msg)
		}
	}
	req, err := Decode(name, raw)
	if err != nil {
		kind, msg := Classify(err)
		d.opts.Logger.Warn("tool call rejected", "tool", name, "error_kind", kind, "error", msg)
		return Failure(kind, msg)
	}
	return d.Dispatch(ctx, req)
}

// Dispatch runs one request. Directory tools fail fast with
// NoActiveSessionError when nothing is connected, then validate their
// arguments, then make their remote call. Panics are reported as
// RemoteOperationError.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (env Envelope) {
	if ctx == nil {
		ctx = context.Background()
	}
	name := req.Tool()
	callID := uuid.NewString()
	start := time.Now()
	logger := d.opts.Logger.With("tool", name, "call_id", callID)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("tool call panicked", "panic", fmt.Sprint(r))
			env = Failure(KindRemoteOperation, fmt.Sprintf("%s failed unexpectedly", name))
		}
		attrs := []any{"ok", env.OK, "duration", time.Since(start)}
		if !env.OK {
			attrs = append(attrs, "error_kind", env.ErrorKind, "error", env.Message)
			logger.Warn("tool call failed", attrs...)
			return
		}
		logger.Info("tool call", attrs...)
	}()

	data, err := d.run(ctx, req)
	if err != nil {
		kind, msg := Classify(err)
		if sc, ok := req.(secretCarrier); ok {
			msg = ipamgr.Redact(msg, sc.secrets()...)
		}
		return Failure(kind, msg)
	}
	return Success(data)
}

func (d *Dispatcher) run(ctx context.Context, req Request) (any, error) {
	spec, ok := Lookup(req.Tool())
	if !ok {
		return nil, &Error{Kind: KindValidation, Tool: req.Tool(), Message: fmt.Sprintf("unknown tool %q", req.Tool())}
	}
	if spec.SessionFree {
		if err := req.Validate(); err != nil {
			return nil, err
		}
		return d.runSessionTool(ctx, req)
	}

	session, err := d.manager.Current()
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return d.runDirectoryTool(ctx, session.Directory, req)
}

func (d *Dispatcher) runSessionTool(ctx context.Context, req Request) (any, error) {
	switch r := req.(type) {
	case *ConnectRequest:
		status, err := d.manager.Connect(ctx, ipamgr.Credentials{
			Server:    r.Server,
			Username:  r.Username,
			Password:  r.Password,
			VerifySSL: r.verifySSL(),
		})
		if err != nil {
			return nil, err
		}
		return status, nil
	case *DisconnectRequest:
		cleared := d.manager.Disconnect()
		return DisconnectResult{Disconnected: cleared, Status: d.manager.Status()}, nil
	case *StatusRequest:
		report := StatusReport{Status: d.manager.Status()}
		if r.Ping && report.Connected {
			reachable := true
			if err := d.manager.Probe(ctx); err != nil {
				reachable = false
				_, report.PingError = Classify(err)
			}
			report.Reachable = &reachable
		}
		return report, nil
	}
	return nil, fmt.Errorf("ipatools: no session handler for %s", req.Tool())
}

func (d *Dispatcher) runDirectoryTool(ctx context.Context, dir ipamgr.Directory, req Request) (any, error) {
	switch r := req.(type) {
	case *UserListRequest:
		return dir.UserFind(ctx, d.sizeLimit(r.SizeLimit))
	case *UserShowRequest:
		return dir.UserShow(ctx, r.UID)
	case *UserAddRequest:
		return dir.UserAdd(ctx, r.UID, r.attributes())
	case *UserModifyRequest:
		return dir.UserMod(ctx, r.UID, r.attributes())
	case *ChangePasswordRequest:
		if err := dir.ChangePassword(ctx, r.Username, r.OldPassword, r.NewPassword); err != nil {
			return nil, err
		}
		return PasswordResult{Username: r.Username, Message: "password changed"}, nil
	case *ForgotResetPasswordRequest:
		return d.forgotResetPassword(ctx, dir, r)
	case *GroupListRequest:
		return dir.GroupFind(ctx, freeipa.GroupFilter{
			SizeLimit:   d.sizeLimit(r.SizeLimit),
			CN:          r.CN,
			Description: r.Description,
		})
	case *GroupShowRequest:
		return dir.GroupShow(ctx, r.CN)
	case *GroupAddRequest:
		return dir.GroupAdd(ctx, r.CN, freeipa.Attributes{}.Set("description", r.Description))
	case *GroupAddMemberRequest:
		return dir.GroupAddMember(ctx, r.CN, r.User)
	case *GroupRemoveMemberRequest:
		return dir.GroupRemoveMember(ctx, r.CN, r.User)
	}
	return nil, fmt.Errorf("ipatools: no directory handler for %s", req.Tool())
}

// forgotResetPassword resets only after the supplied phone matches one on
// record. A failed lookup is reported as the remote error it is.
func (d *Dispatcher) forgotResetPassword(ctx context.Context, dir ipamgr.Directory, r *ForgotResetPasswordRequest) (any, error) {
	user, err := dir.UserShow(ctx, r.Username)
	if err != nil {
		return nil, err
	}
	if !PhoneMatches(user.Values("telephonenumber"), r.Phone, d.opts.PhoneCountryCode) {
		return nil, &Error{
			Kind:    KindVerification,
			Tool:    ToolForgotResetPassword,
			Message: fmt.Sprintf("phone number could not be verified for user %q", r.Username),
		}
	}
	if err := dir.ResetPassword(ctx, r.Username, r.NewPassword); err != nil {
		return nil, err
	}
	return PasswordResult{Username: r.Username, Message: "password reset"}, nil
}

func (d *Dispatcher) sizeLimit(v int) int {
	if v == 0 {
		return d.opts.DefaultSizeLimit
	}
	return v
}
