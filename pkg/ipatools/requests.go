package ipatools

import (
	"strings"

	"github.com/vikashloomba/freeipa-mcp-go/pkg/freeipa"
)

// DefaultSizeLimit is used by the list tools when sizelimit is omitted.
const DefaultSizeLimit = 100

// Request is one tool invocation with typed arguments.
type Request interface {
	Tool() Name
	Validate() error
}

// secretCarrier is implemented by requests holding passwords, so that their
// values can be scrubbed from error messages.
type secretCarrier interface {
	secrets() []string
}

type ConnectRequest struct {
	Server    string `json:"server" jsonschema:"FreeIPA server URL or host name, e.g. https://ipa.example.com"`
	Username  string `json:"username" jsonschema:"principal to authenticate as"`
	Password  string `json:"password" jsonschema:"password for the principal; never echoed back"`
	VerifySSL *bool  `json:"verify_ssl,omitempty" jsonschema:"verify the server TLS certificate (default true)"`
}

func (*ConnectRequest) Tool() Name { return ToolConnect }

func (r *ConnectRequest) Validate() error {
	return required("server", r.Server, "username", r.Username, "password", r.Password)
}

func (r *ConnectRequest) verifySSL() bool {
	return r.VerifySSL == nil || *r.VerifySSL
}

func (r *ConnectRequest) secrets() []string { return []string{r.Password} }

type DisconnectRequest struct{}

func (*DisconnectRequest) Tool() Name      { return ToolDisconnect }
func (*DisconnectRequest) Validate() error { return nil }

type StatusRequest struct {
	Ping bool `json:"ping,omitempty" jsonschema:"also ping the server to confirm the session is alive"`
}

func (*StatusRequest) Tool() Name      { return ToolStatus }
func (*StatusRequest) Validate() error { return nil }

type UserListRequest struct {
	SizeLimit int `json:"sizelimit,omitempty" jsonschema:"maximum number of users to return (default 100)"`
}

func (*UserListRequest) Tool() Name { return ToolUserList }

func (r *UserListRequest) Validate() error { return nonNegative("sizelimit", r.SizeLimit) }

type UserShowRequest struct {
	UID string `json:"uid" jsonschema:"user login"`
}

func (*UserShowRequest) Tool() Name { return ToolUserShow }

func (r *UserShowRequest) Validate() error { return required("uid", r.UID) }

type UserAddRequest struct {
	UID             string `json:"uid" jsonschema:"user login"`
	GivenName       string `json:"givenname" jsonschema:"first name"`
	SN              string `json:"sn" jsonschema:"last name"`
	Mail            string `json:"mail,omitempty" jsonschema:"email address"`
	UserPassword    string `json:"userpassword,omitempty" jsonschema:"initial password"`
	TelephoneNumber string `json:"telephonenumber,omitempty" jsonschema:"telephone number"`
	Title           string `json:"title,omitempty" jsonschema:"job title"`
}

func (*UserAddRequest) Tool() Name { return ToolUserAdd }

func (r *UserAddRequest) Validate() error {
	return required("uid", r.UID, "givenname", r.GivenName, "sn", r.SN)
}

func (r *UserAddRequest) attributes() freeipa.Attributes {
	return freeipa.Attributes{"givenname": r.GivenName, "sn": r.SN}.
		Set("mail", r.Mail).
		Set("userpassword", r.UserPassword).
		Set("telephonenumber", r.TelephoneNumber).
		Set("title", r.Title)
}

func (r *UserAddRequest) secrets() []string { return []string{r.UserPassword} }

type UserModifyRequest struct {
	UID             string `json:"uid" jsonschema:"user login"`
	GivenName       string `json:"givenname,omitempty" jsonschema:"first name"`
	SN              string `json:"sn,omitempty" jsonschema:"last name"`
	Mail            string `json:"mail,omitempty" jsonschema:"email address"`
	TelephoneNumber string `json:"telephonenumber,omitempty" jsonschema:"telephone number"`
	Mobile          string `json:"mobile,omitempty" jsonschema:"mobile number"`
	Title           string `json:"title,omitempty" jsonschema:"job title"`
	LoginShell      string `json:"loginshell,omitempty" jsonschema:"login shell"`
}

func (*UserModifyRequest) Tool() Name { return ToolUserModify }

func (r *UserModifyRequest) Validate() error { return required("uid", r.UID) }

func (r *UserModifyRequest) attributes() freeipa.Attributes {
	return freeipa.Attributes{}.
		Set("givenname", r.GivenName).
		Set("sn", r.SN).
		Set("mail", r.Mail).
		Set("telephonenumber", r.TelephoneNumber).
		Set("mobile", r.Mobile).
		Set("title", r.Title).
		Set("loginshell", r.LoginShell)
}

type ChangePasswordRequest struct {
	Username    string `json:"username" jsonschema:"user login"`
	OldPassword string `json:"old_password" jsonschema:"current password, checked by the server"`
	NewPassword string `json:"new_password" jsonschema:"new password"`
}

func (*ChangePasswordRequest) Tool() Name { return ToolChangePassword }

func (r *ChangePasswordRequest) Validate() error {
	return required("username", r.Username, "old_password", r.OldPassword, "new_password", r.NewPassword)
}

func (r *ChangePasswordRequest) secrets() []string {
	return []string{r.OldPassword, r.NewPassword}
}

type ForgotResetPasswordRequest struct {
	Username    string `json:"username" jsonschema:"user login"`
	Phone       string `json:"phone" jsonschema:"phone number registered for the user, used for verification"`
	NewPassword string `json:"new_password" jsonschema:"new password to set once the phone number is verified"`
}

func (*ForgotResetPasswordRequest) Tool() Name { return ToolForgotResetPassword }

func (r *ForgotResetPasswordRequest) Validate() error {
	return required("username", r.Username, "phone", r.Phone, "new_password", r.NewPassword)
}

func (r *ForgotResetPasswordRequest) secrets() []string { return []string{r.NewPassword} }

type GroupListRequest struct {
	SizeLimit   int    `json:"sizelimit,omitempty" jsonschema:"maximum number of groups to return (default 100)"`
	CN          string `json:"cn,omitempty" jsonschema:"filter on group name"`
	Description string `json:"description,omitempty" jsonschema:"filter on group description"`
}

func (*GroupListRequest) Tool() Name { return ToolGroupList }

func (r *GroupListRequest) Validate() error { return nonNegative("sizelimit", r.SizeLimit) }

type GroupShowRequest struct {
	CN string `json:"cn" jsonschema:"group name"`
}

func (*GroupShowRequest) Tool() Name { return ToolGroupShow }

func (r *GroupShowRequest) Validate() error { return required("cn", r.CN) }

type GroupAddRequest struct {
	CN          string `json:"cn" jsonschema:"group name"`
	Description string `json:"description,omitempty" jsonschema:"group description"`
}

func (*GroupAddRequest) Tool() Name { return ToolGroupAdd }

func (r *GroupAddRequest) Validate() error { return required("cn", r.CN) }

type GroupAddMemberRequest struct {
	CN   string `json:"cn" jsonschema:"group name"`
	User string `json:"user" jsonschema:"user login to add"`
}

func (*GroupAddMemberRequest) Tool() Name { return ToolGroupAddMember }

func (r *GroupAddMemberRequest) Validate() error { return required("cn", r.CN, "user", r.User) }

type GroupRemoveMemberRequest struct {
	CN   string `json:"cn" jsonschema:"group name"`
	User string `json:"user" jsonschema:"user login to remove"`
}

func (*GroupRemoveMemberRequest) Tool() Name { return ToolGroupRemoveMember }

func (r *GroupRemoveMemberRequest) Validate() error { return required("cn", r.CN, "user", r.User) }

// required takes name/value pairs and reports the first blank value.
func required(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return &FieldError{Field: pairs[i]}
		}
	}
	return nil
}

func nonNegative(field string, v int) error {
	if v < 0 {
		return &FieldError{Field: field, Reason: "must not be negative"}
	}
	return nil
}
