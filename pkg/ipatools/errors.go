package ipatools

import (
	"context"
	"errors"
	"fmt"

	"github.com/vikashloomba/freeipa-mcp-go/pkg/freeipa"
	"github.com/vikashloomba/freeipa-mcp-go/pkg/ipamgr"
)

// Kind classifies a failed tool call.
type Kind string

const (
	KindValidation      Kind = "ValidationError"
	KindNoActiveSession Kind = "NoActiveSessionError"
	KindConnection      Kind = "ConnectionError"
	KindAuthentication  Kind = "AuthenticationError"
	KindVerification    Kind = "VerificationError"
	KindRemoteOperation Kind = "RemoteOperationError"
)

// Error is a classified tool failure.
type Error struct {
	Kind    Kind
	Tool    Name
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Tool == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Tool, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// FieldError reports a missing or invalid argument.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s is required", e.Field)
	}
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// Classify maps err onto the error taxonomy and returns the message to show
// callers. FreeIPA command errors keep the server's message verbatim.
func Classify(err error) (Kind, string) {
	if err == nil {
		return "", ""
	}
	var (
		toolErr  *Error
		fieldErr *FieldError
		credErr  *ipamgr.CredentialsError
		authErr  *freeipa.AuthError
		transErr *freeipa.TransportError
		rpcErr   *freeipa.RPCError
		pwErr    *freeipa.PasswordChangeError
		resetErr *freeipa.ResetIncompleteError
	)
	switch {
	case errors.As(err, &toolErr):
		return toolErr.Kind, toolErr.Message
	case errors.As(err, &fieldErr):
		return KindValidation, fieldErr.Error()
	case errors.As(err, &credErr):
		return KindValidation, fmt.Sprintf("%s is required", credErr.Field)
	case errors.Is(err, ipamgr.ErrNoActiveSession):
		return KindNoActiveSession, "not connected to a FreeIPA server; call freeipa_connect first"
	case errors.As(err, &resetErr):
		return KindRemoteOperation, resetErr.Error()
	case errors.As(err, &authErr):
		return KindAuthentication, authErr.Error()
	case errors.As(err, &transErr):
		return KindConnection, transErr.Error()
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return KindConnection, err.Error()
	case errors.As(err, &rpcErr):
		return KindRemoteOperation, rpcErr.Message
	case errors.As(err, &pwErr):
		if pwErr.Result == "invalid-password" {
			return KindAuthentication, pwErr.Error()
		}
		return KindRemoteOperation, pwErr.Error()
	default:
		return KindRemoteOperation, err.Error()
	}
}
