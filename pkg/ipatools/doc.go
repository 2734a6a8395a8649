// Package ipatools defines the FreeIPA tool surface: one typed request per
// tool, the error taxonomy every failure is mapped onto, and the Dispatcher
// that runs requests against the session held by an ipamgr.Manager.
//
// Every dispatch produces an Envelope. Directory tools fail with
// NoActiveSessionError before anything else when no session exists, then
// with ValidationError for bad arguments, and otherwise make exactly one
// Directory call. forgot_reset_password is the exception that reads before
// it writes: the user's stored phone numbers must match the supplied one
// before the reset is issued.
package ipatools
