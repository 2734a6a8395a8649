package freeipa

import "fmt"

// RPCError is the "error" member of a FreeIPA JSON-RPC response.
type RPCError struct {
	Code    int            `json:"code"`
	Name    string         `json:"name"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`

	Method string `json:"-"`
}

func (e *RPCError) Error() string {
	if e.Method == "" {
		return fmt.Sprintf("freeipa: %s (%s %d)", e.Message, e.Name, e.Code)
	}
	return fmt.Sprintf("freeipa: %s: %s (%s %d)", e.Method, e.Message, e.Name, e.Code)
}

// TransportError reports a failure to reach the server or an unexpected HTTP
// status.
type TransportError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("freeipa: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("freeipa: %s: unexpected HTTP status %d", e.Op, e.Status)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AuthError reports rejected credentials or an expired session.
type AuthError struct {
	Op string
	// Reason mirrors the X-IPA-Rejection-Reason header when the server sends
	// one (for example "invalid-password" or "password-expired").
	Reason string
	Status int
}

func (e *AuthError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("freeipa: %s: authentication rejected (HTTP %d)", e.Op, e.Status)
	}
	return fmt.Sprintf("freeipa: %s: authentication rejected: %s", e.Op, e.Reason)
}

// PasswordChangeError is returned when /ipa/session/change_password answers
// with anything other than "ok".
type PasswordChangeError struct {
	Result string
	Policy string
}

func (e *PasswordChangeError) Error() string {
	if e.Policy != "" {
		return fmt.Sprintf("freeipa: change password: %s: %s", e.Result, e.Policy)
	}
	return fmt.Sprintf("freeipa: change password: %s", e.Result)
}

// ResetIncompleteError means ResetPassword assigned its temporary password but
// could not replace it. The account now needs an administrative reset.
type ResetIncompleteError struct {
	Username string
	Err      error
}

func (e *ResetIncompleteError) Error() string {
	return fmt.Sprintf("freeipa: reset password for %s: temporary password set, final change failed, an administrator must reset the account: %v", e.Username, e.Err)
}

func (e *ResetIncompleteError) Unwrap() error { return e.Err }
