// Package freeipa is a small client for the FreeIPA JSON-RPC API. It covers the
// session-cookie login flow, the generic /ipa/session/json command endpoint,
// and the form-based password change endpoint, which together are enough to
// drive user, group, and password management from Go.
//
// # Entry points
//
//   - Dial builds a Client and performs the password login in one step.
//   - Client.Call issues any JSON-RPC command and returns the "result" object
//     verbatim as a Result.
//   - Typed helpers (UserFind, UserShow, GroupAddMember, ...) wrap Call for the
//     commands the MCP tools expose.
//   - ChangePassword and ResetPassword implement self-service and
//     administrative password flows.
//
// Errors are typed so callers can classify them: *TransportError for network
// and TLS failures, *AuthError for rejected credentials or expired sessions,
// *RPCError when the directory rejects a command, and *PasswordChangeError
// when the password endpoint refuses a change. None of them carry request
// bodies, so credentials never leak through error strings.
package freeipa
