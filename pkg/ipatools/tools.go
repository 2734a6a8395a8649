package ipatools

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/jsonschema-go/jsonschema"
)

// Name identifies a tool on the MCP surface.
type Name string

const (
	ToolConnect             Name = "freeipa_connect"
	ToolDisconnect          Name = "freeipa_disconnect"
	ToolStatus              Name = "freeipa_status"
	ToolUserList            Name = "user_list"
	ToolUserShow            Name = "user_show"
	ToolUserAdd             Name = "user_add"
	ToolUserModify          Name = "user_modify"
	ToolChangePassword      Name = "change_password"
	ToolForgotResetPassword Name = "forgot_reset_password"
	ToolGroupList           Name = "group_list"
	ToolGroupShow           Name = "group_show"
	ToolGroupAdd            Name = "group_add"
	ToolGroupAddMember      Name = "group_add_member"
	ToolGroupRemoveMember   Name = "group_remove_member"
)

// Spec describes one tool: its name, help text, input schema, and how to
// decode its arguments.
type Spec struct {
	Name        Name
	Title       string
	Description string
	// SessionFree tools run without an active FreeIPA session.
	SessionFree bool

	newRequest func() Request
	schema     func() (*jsonschema.Schema, error)
}

// InputSchema infers the JSON schema for the tool's arguments.
func (s Spec) InputSchema() (*jsonschema.Schema, error) {
	return s.schema()
}

// NewRequest returns a zero request for the tool.
func (s Spec) NewRequest() Request {
	return s.newRequest()
}

func spec[T any, PT interface {
	*T
	Request
}](name Name, title, description string, sessionFree bool) Spec {
	return Spec{
		Name:        name,
		Title:       title,
		Description: description,
		SessionFree: sessionFree,
		newRequest:  func() Request { return PT(new(T)) },
		schema:      func() (*jsonschema.Schema, error) { return jsonschema.For[T](nil) },
	}
}

var catalog = map[Name]Spec{
	ToolConnect: spec[ConnectRequest](ToolConnect, "Connect to FreeIPA",
		"Authenticate to a FreeIPA server and make it the active session. Replaces any existing session on success.", true),
	ToolDisconnect: spec[DisconnectRequest](ToolDisconnect, "Disconnect from FreeIPA",
		"Drop the active FreeIPA session. Calling it while disconnected is not an error.", true),
	ToolStatus: spec[StatusRequest](ToolStatus, "Session status",
		"Report whether a FreeIPA session is active, and for which server and user. Set ping to check the server is reachable.", true),
	ToolUserList: spec[UserListRequest](ToolUserList, "List users",
		"List FreeIPA users.", false),
	ToolUserShow: spec[UserShowRequest](ToolUserShow, "Show user",
		"Show the attributes of one FreeIPA user.", false),
	ToolUserAdd: spec[UserAddRequest](ToolUserAdd, "Add user",
		"Create a FreeIPA user.", false),
	ToolUserModify: spec[UserModifyRequest](ToolUserModify, "Modify user",
		"Update attributes of an existing FreeIPA user. Only the fields supplied are changed.", false),
	ToolChangePassword: spec[ChangePasswordRequest](ToolChangePassword, "Change password",
		"Change a user's password. The current password must be supplied.", false),
	ToolForgotResetPassword: spec[ForgotResetPasswordRequest](ToolForgotResetPassword, "Reset forgotten password",
		"Reset a user's password after checking the supplied phone number against the one on record.", false),
	ToolGroupList: spec[GroupListRequest](ToolGroupList, "List groups",
		"List FreeIPA groups, optionally filtered by name or description.", false),
	ToolGroupShow: spec[GroupShowRequest](ToolGroupShow, "Show group",
		"Show the attributes and members of one FreeIPA group.", false),
	ToolGroupAdd: spec[GroupAddRequest](ToolGroupAdd, "Add group",
		"Create a FreeIPA group.", false),
	ToolGroupAddMember: spec[GroupAddMemberRequest](ToolGroupAddMember, "Add group member",
		"Add a user to a FreeIPA group.", false),
	ToolGroupRemoveMember: spec[GroupRemoveMemberRequest](ToolGroupRemoveMember, "Remove group member",
		"Remove a user from a FreeIPA group.", false),
}

// Catalog lists every tool sorted by name.
func Catalog() []Spec {
	out := make([]Spec, 0, len(catalog))
	for _, s := range catalog {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup returns the spec for name.
func Lookup(name Name) (Spec, bool) {
	s, ok := catalog[name]
	return s, ok
}

// Decode parses raw tool arguments into the tool's request type. Unknown
// tools and malformed arguments are validation errors. Empty or null input
// decodes to the zero request.
func Decode(name Name, raw json.RawMessage) (Request, error) {
	s, ok := Lookup(name)
	if !ok {
		return nil, &Error{Kind: KindValidation, Tool: name, Message: fmt.Sprintf("unknown tool %q", name)}
	}
	req := s.NewRequest()
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return req, nil
	}
	if err := json.Unmarshal(raw, req); err != nil {
		return nil, &Error{Kind: KindValidation, Tool: name, Message: "invalid arguments: " + describeJSONError(err), Err: err}
	}
	return req, nil
}

func describeJSONError(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return fmt.Sprintf("%s must be %s", typeErr.Field, typeErr.Type)
	}
	return err.Error()
}
