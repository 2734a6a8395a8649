// Package ipamgr tracks the single FreeIPA session the MCP server works
// against. It layers connection lifecycle, status reporting, and credential
// hygiene on top of pkg/freeipa so tool handlers only ever deal with a stable
// Session snapshot.
//
// # Core entry points
//
//   - Manager is the long-lived owner. Construct it with NewManager, then call
//     Connect / Disconnect, and read state with Status.
//   - Current hands out the live Session (or ErrNoActiveSession); commands run
//     against the snapshot, so a concurrent Connect never exposes a
//     half-updated session.
//   - Directory is the remote surface a Session exposes. The default Dialer
//     returns a *freeipa.Client; tests and embedders can install their own via
//     ManagerOptions.Dialer.
//
// Status never includes the password, and connect failures are redacted
// before being recorded as LastError.
package ipamgr
