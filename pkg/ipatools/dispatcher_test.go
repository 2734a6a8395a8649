package ipatools

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vikashloomba/freeipa-mcp-go/pkg/freeipa"
	"github.com/vikashloomba/freeipa-mcp-go/pkg/ipamgr"
)

type mockDirectory struct {
	mock.Mock
}

func (m *mockDirectory) result(args mock.Arguments) (freeipa.Result, error) {
	res, _ := args.Get(0).(freeipa.Result)
	return res, args.Error(1)
}

func (m *mockDirectory) Ping(ctx context.Context) (freeipa.Result, error) {
	return m.result(m.Called(ctx))
}

func (m *mockDirectory) UserFind(ctx context.Context, sizeLimit int) (freeipa.Result, error) {
	return m.result(m.Called(ctx, sizeLimit))
}

func (m *mockDirectory) UserShow(ctx context.Context, uid string) (freeipa.Result, error) {
	return m.result(m.Called(ctx, uid))
}

func (m *mockDirectory) UserAdd(ctx context.Context, uid string, attrs freeipa.Attributes) (freeipa.Result, error) {
	return m.result(m.Called(ctx, uid, attrs))
}

func (m *mockDirectory) UserMod(ctx context.Context, uid string, attrs freeipa.Attributes) (freeipa.Result, error) {
	return m.result(m.Called(ctx, uid, attrs))
}

func (m *mockDirectory) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error {
	return m.Called(ctx, username, oldPassword, newPassword).Error(0)
}

func (m *mockDirectory) ResetPassword(ctx context.Context, username, newPassword string) error {
	return m.Called(ctx, username, newPassword).Error(0)
}

func (m *mockDirectory) GroupFind(ctx context.Context, filter freeipa.GroupFilter) (freeipa.Result, error) {
	return m.result(m.Called(ctx, filter))
}

func (m *mockDirectory) GroupShow(ctx context.Context, cn string) (freeipa.Result, error) {
	return m.result(m.Called(ctx, cn))
}

func (m *mockDirectory) GroupAdd(ctx context.Context, cn string, attrs freeipa.Attributes) (freeipa.Result, error) {
	return m.result(m.Called(ctx, cn, attrs))
}

func (m *mockDirectory) GroupAddMember(ctx context.Context, cn, user string) (freeipa.Result, error) {
	return m.result(m.Called(ctx, cn, user))
}

func (m *mockDirectory) GroupRemoveMember(ctx context.Context, cn, user string) (freeipa.Result, error) {
	return m.result(m.Called(ctx, cn, user))
}

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newDispatcher(t *testing.T, dir ipamgr.Directory) *Dispatcher {
	t.Helper()
	manager := ipamgr.NewManager(&ipamgr.ManagerOptions{
		Dialer: func(ctx context.Context, creds ipamgr.Credentials) (ipamgr.Directory, error) {
			if creds.Password != "secret" {
				return nil, &freeipa.AuthError{Op: "login", Reason: "invalid-password", Status: 401}
			}
			return dir, nil
		},
		Logger: quietLogger,
	})
	d, err := NewDispatcher(manager, &DispatcherOptions{Logger: quietLogger})
	require.NoError(t, err)
	return d
}

func connected(t *testing.T, dir ipamgr.Directory) *Dispatcher {
	t.Helper()
	d := newDispatcher(t, dir)
	env := d.Dispatch(context.Background(), &ConnectRequest{Server: "https://ipa.test", Username: "admin", Password: "secret"})
	require.True(t, env.OK, "connect failed: %+v", env)
	return d
}

func userWithPhones(phones ...any) freeipa.Result {
	return freeipa.Result{"result": map[string]any{"uid": []any{"john.doe"}, "telephonenumber": phones}, "value": "john.doe"}
}

func TestDispatchWithoutSessionMakesNoRemoteCalls(t *testing.T) {
	t.Parallel()

	dir := &mockDirectory{}
	d := newDispatcher(t, dir)

	for _, spec := range Catalog() {
		if spec.SessionFree {
			continue
		}
		env := d.Dispatch(context.Background(), spec.NewRequest())
		assert.False(t, env.OK, spec.Name)
		assert.Equal(t, KindNoActiveSession, env.ErrorKind, spec.Name)
	}
	dir.AssertExpectations(t)
	assert.Empty(t, dir.Calls)
}

func TestUserShowOnDisconnectedSession(t *testing.T) {
	t.Parallel()

	dir := &mockDirectory{}
	d := connected(t, dir)
	d.Dispatch(context.Background(), &DisconnectRequest{})

	env := d.Call(context.Background(), ToolUserShow, json.RawMessage(`{"uid":"john.doe"}`))
	assert.Equal(t, KindNoActiveSession, env.ErrorKind)
	dir.AssertNotCalled(t, "UserShow", mock.Anything, mock.Anything)
}

func TestConnectThenStatusNeverEchoesPassword(t *testing.T) {
	t.Parallel()

	d := connected(t, &mockDirectory{})

	env := d.Dispatch(context.Background(), &StatusRequest{})
	require.True(t, env.OK)
	report, ok := env.Data.(StatusReport)
	require.True(t, ok)
	assert.True(t, report.Connected)
	assert.Equal(t, "https://ipa.test", report.Server)
	assert.Equal(t, "admin", report.Username)
	assert.Nil(t, report.Reachable)

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret")
}

func TestConnectFailureIsAuthenticationErrorWithoutPassword(t *testing.T) {
	t.Parallel()

	d := newDispatcher(t, &mockDirectory{})
	env := d.Dispatch(context.Background(), &ConnectRequest{Server: "https://ipa.test", Username: "admin", Password: "wrong-pass"})
	assert.False(t, env.OK)
	assert.Equal(t, KindAuthentication, env.ErrorKind)
	assert.NotContains(t, env.Message, "wrong-pass")
	assert.False(t, d.Manager().Status().Connected)
}

func TestConnectDefaultsToVerifyingTLS(t *testing.T) {
	t.Parallel()

	d := connected(t, &mockDirectory{})
	assert.True(t, d.Manager().Status().VerifySSL)

	off := false
	env := d.Dispatch(context.Background(), &ConnectRequest{Server: "https://ipa.test", Username: "admin", Password: "secret", VerifySSL: &off})
	require.True(t, env.OK)
	assert.False(t, d.Manager().Status().VerifySSL)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	t.Parallel()

	d := connected(t, &mockDirectory{})

	first := d.Dispatch(context.Background(), &DisconnectRequest{})
	second := d.Dispatch(context.Background(), &DisconnectRequest{})
	require.True(t, first.OK)
	require.True(t, second.OK)
	assert.True(t, first.Data.(DisconnectResult).Disconnected)
	assert.False(t, second.Data.(DisconnectResult).Disconnected)
}

func TestStatusPingReportsReachability(t *testing.T) {
	t.Parallel()

	dir := &mockDirectory{}
	dir.On("Ping", mock.Anything).Return(nil, &freeipa.TransportError{Op: "ping", Err: errors.New("connection refused")}).Once()
	d := connected(t, dir)

	env := d.Dispatch(context.Background(), &StatusRequest{Ping: true})
	require.True(t, env.OK)
	report := env.Data.(StatusReport)
	require.NotNil(t, report.Reachable)
	assert.False(t, *report.Reachable)
	assert.Contains(t, report.PingError, "connection refused")
	dir.AssertExpectations(t)
}

func TestForgotResetPasswordMismatchNeverResets(t *testing.T) {
	t.Parallel()

	dir := &mockDirectory{}
	dir.On("UserShow", mock.Anything, "john.doe").Return(userWithPhones("+90 555 123 45 67"), nil).Once()
	d := connected(t, dir)

	env := d.Dispatch(context.Background(), &ForgotResetPasswordRequest{Username: "john.doe", Phone: "05550000000", NewPassword: "N3w-pass!"})
	assert.False(t, env.OK)
	assert.Equal(t, KindVerification, env.ErrorKind)
	assert.NotContains(t, env.Message, "N3w-pass!")
	dir.AssertNotCalled(t, "ResetPassword", mock.Anything, mock.Anything, mock.Anything)
	dir.AssertExpectations(t)
}

func TestForgotResetPasswordWithoutStoredPhone(t *testing.T) {
	t.Parallel()

	dir := &mockDirectory{}
	dir.On("UserShow", mock.Anything, "john.doe").Return(userWithPhones(), nil).Once()
	d := connected(t, dir)

	env := d.Dispatch(context.Background(), &ForgotResetPasswordRequest{Username: "john.doe", Phone: "5551234567", NewPassword: "N3w-pass!"})
	assert.Equal(t, KindVerification, env.ErrorKind)
	dir.AssertNotCalled(t, "ResetPassword", mock.Anything, mock.Anything, mock.Anything)
}

func TestForgotResetPasswordMatchResetsOnce(t *testing.T) {
	t.Parallel()

	dir := &mockDirectory{}
	dir.On("UserShow", mock.Anything, "john.doe").Return(userWithPhones("+90 555 123 45 67"), nil).Once()
	dir.On("ResetPassword", mock.Anything, "john.doe", "N3w-pass!").Return(nil).Once()
	d := connected(t, dir)

	env := d.Dispatch(context.Background(), &ForgotResetPasswordRequest{Username: "john.doe", Phone: "0555-123-4567", NewPassword: "N3w-pass!"})
	require.True(t, env.OK, "%+v", env)
	dir.AssertNumberOfCalls(t, "ResetPassword", 1)
	dir.AssertExpectations(t)

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "N3w-pass!")
}

func TestForgotResetPasswordIncompleteResetNeedsAdmin(t *testing.T) {
	t.Parallel()

	dir := &mockDirectory{}
	dir.On("UserShow", mock.Anything, "john.doe").Return(userWithPhones("+90 555 123 45 67"), nil).Once()
	dir.On("ResetPassword", mock.Anything, "john.doe", "Tiny-1").Return(&freeipa.ResetIncompleteError{
		Username: "john.doe",
		Err:      &freeipa.PasswordChangeError{Result: "policy-error", Policy: "Constraint violation: Password is too short"},
	}).Once()
	d := connected(t, dir)

	env := d.Dispatch(context.Background(), &ForgotResetPasswordRequest{Username: "john.doe", Phone: "5551234567", NewPassword: "Tiny-1"})
	assert.Equal(t, KindRemoteOperation, env.ErrorKind)
	assert.Contains(t, env.Message, "temporary password set")
	assert.Contains(t, env.Message, "too short")
	dir.AssertExpectations(t)
}

func TestForgotResetPasswordUnknownUserIsRemoteError(t *testing.T) {
	t.Parallel()

	dir := &mockDirectory{}
	dir.On("UserShow", mock.Anything, "ghost").
		Return(nil, &freeipa.RPCError{Code: 4001, Name: "NotFound", Message: "ghost: user not found", Method: "user_show"}).Once()
	d := connected(t, dir)

	env := d.Dispatch(context.Background(), &ForgotResetPasswordRequest{Username: "ghost", Phone: "5551234567", NewPassword: "x"})
	assert.Equal(t, KindRemoteOperation, env.ErrorKind)
	assert.Equal(t, "ghost: user not found", env.Message)
	dir.AssertNotCalled(t, "ResetPassword", mock.Anything, mock.Anything, mock.Anything)
}

func TestGroupAddMemberPassesPayloadThrough(t *testing.T) {
	t.Parallel()

	payload := freeipa.Result{
		"completed": float64(1),
		"failed":    map[string]any{"member": map[string]any{"user": []any{}, "group": []any{}}},
		"result":    map[string]any{"cn": []any{"developers"}, "member_user": []any{"john.doe"}},
	}
	dir := &mockDirectory{}
	dir.On("GroupAddMember", mock.Anything, "developers", "john.doe").Return(payload, nil).Once()
	d := connected(t, dir)

	env := d.Call(context.Background(), ToolGroupAddMember, json.RawMessage(`{"cn":"developers","user":"john.doe"}`))
	require.True(t, env.OK)
	assert.Equal(t, payload, env.Data)
	dir.AssertNumberOfCalls(t, "GroupAddMember", 1)
	dir.AssertExpectations(t)
}

func TestMissingRequiredArgumentsNeverReachRemote(t *testing.T) {
	t.Parallel()

	dir := &mockDirectory{}
	d := connected(t, dir)

	cases := []struct {
		tool  Name
		args  string
		field string
	}{
		{ToolUserAdd, `{"givenname":"John","sn":"Doe"}`, "uid"},
		{ToolUserShow, `{}`, "uid"},
		{ToolChangePassword, `{"username":"john.doe","new_password":"x"}`, "old_password"},
		{ToolForgotResetPassword, `{"username":"john.doe","new_password":"x"}`, "phone"},
		{ToolGroupAddMember, `{"cn":"developers"}`, "user"},
		{ToolGroupShow, `{"cn":"   "}`, "cn"},
		{ToolUserList, `{"sizelimit":-1}`, "sizelimit"},
	}
	for _, tc := range cases {
		env := d.Call(context.Background(), tc.tool, json.RawMessage(tc.args))
		assert.Equal(t, KindValidation, env.ErrorKind, tc.tool)
		assert.Contains(t, env.Message, tc.field, tc.tool)
	}
	assert.Empty(t, dir.Calls)
}

func TestConnectValidationRunsWithoutSession(t *testing.T) {
	t.Parallel()

	d := newDispatcher(t, &mockDirectory{})
	env := d.Call(context.Background(), ToolConnect, json.RawMessage(`{"server":"https://ipa.test","username":"admin"}`))
	assert.Equal(t, KindValidation, env.ErrorKind)
	assert.Contains(t, env.Message, "password")
}

func TestMalformedArgumentsAreValidationErrors(t *testing.T) {
	t.Parallel()

	dir := &mockDirectory{}
	d := connected(t, dir)

	env := d.Call(context.Background(), ToolUserList, json.RawMessage(`{"sizelimit":"many"}`))
	assert.Equal(t, KindValidation, env.ErrorKind)
	assert.Contains(t, env.Message, "sizelimit")

	env = d.Call(context.Background(), Name("user_delete"), json.RawMessage(`{}`))
	assert.Equal(t, KindValidation, env.ErrorKind)
	assert.Empty(t, dir.Calls)
}

func TestMalformedArgumentsWithoutSessionReportNoSession(t *testing.T) {
	t.Parallel()

	dir := &mockDirectory{}
	d := newDispatcher(t, dir)

	for tool, args := range map[Name]string{
		ToolGroupAddMember: `{"cn":1}`,
		ToolUserList:       `{"sizelimit":"many"}`,
		ToolUserShow:       `{"uid":`,
	} {
		env := d.Call(context.Background(), tool, json.RawMessage(args))
		assert.Equal(t, KindNoActiveSession, env.ErrorKind, tool)
	}

	env := d.Call(context.Background(), Name("user_delete"), json.RawMessage(`{}`))
	assert.Equal(t, KindValidation, env.ErrorKind)
	assert.Empty(t, dir.Calls)
}

func TestListToolsApplyDefaultSizeLimit(t *testing.T) {
	t.Parallel()

	dir := &mockDirectory{}
	dir.On("UserFind", mock.Anything, DefaultSizeLimit).Return(freeipa.Result{"count": float64(0)}, nil).Once()
	dir.On("GroupFind", mock.Anything, freeipa.GroupFilter{SizeLimit: 5, Description: "dev"}).Return(freeipa.Result{"count": float64(0)}, nil).Once()
	d := connected(t, dir)

	require.True(t, d.Call(context.Background(), ToolUserList, nil).OK)
	require.True(t, d.Call(context.Background(), ToolGroupList, json.RawMessage(`{"sizelimit":5,"description":"dev"}`)).OK)
	dir.AssertExpectations(t)
}

func TestUserModifySendsOnlySuppliedFields(t *testing.T) {
	t.Parallel()

	dir := &mockDirectory{}
	dir.On("UserMod", mock.Anything, "john.doe", freeipa.Attributes{"mail": "john@example.test", "telephonenumber": "+905551234567"}).
		Return(freeipa.Result{"value": "john.doe"}, nil).Once()
	d := connected(t, dir)

	env := d.Call(context.Background(), ToolUserModify, json.RawMessage(`{"uid":"john.doe","mail":"john@example.test","telephonenumber":"+905551234567"}`))
	require.True(t, env.OK, "%+v", env)
	dir.AssertExpectations(t)
}

func TestRemoteErrorsPassThroughVerbatim(t *testing.T) {
	t.Parallel()

	dir := &mockDirectory{}
	dir.On("UserAdd", mock.Anything, "john.doe", mock.Anything).
		Return(nil, &freeipa.RPCError{Code: 4002, Name: "DuplicateEntry", Message: `user with name "john.doe" already exists`}).Once()
	d := connected(t, dir)

	env := d.Dispatch(context.Background(), &UserAddRequest{UID: "john.doe", GivenName: "John", SN: "Doe"})
	assert.Equal(t, KindRemoteOperation, env.ErrorKind)
	assert.Equal(t, `user with name "john.doe" already exists`, env.Message)
}

func TestChangePasswordRejectionIsRedacted(t *testing.T) {
	t.Parallel()

	dir := &mockDirectory{}
	dir.On("ChangePassword", mock.Anything, "john.doe", "old-pw", "new-pw").
		Return(errors.New("server echoed old-pw and new-pw")).Once()
	d := connected(t, dir)

	env := d.Dispatch(context.Background(), &ChangePasswordRequest{Username: "john.doe", OldPassword: "old-pw", NewPassword: "new-pw"})
	assert.False(t, env.OK)
	assert.NotContains(t, env.Message, "old-pw")
	assert.NotContains(t, env.Message, "new-pw")
	assert.True(t, strings.Contains(env.Message, "[REDACTED]"))
}

func TestDispatchRecoversFromPanics(t *testing.T) {
	t.Parallel()

	dir := &mockDirectory{}
	dir.On("GroupShow", mock.Anything, "boom").Panic("nil map")
	d := connected(t, dir)

	env := d.Dispatch(context.Background(), &GroupShowRequest{CN: "boom"})
	assert.False(t, env.OK)
	assert.Equal(t, KindRemoteOperation, env.ErrorKind)
}
