package freeipa

import "context"

// Attributes are keyword options for add/mod commands. Empty string values are
// dropped by Set so optional fields can be passed through unconditionally.
type Attributes map[string]any

// Set stores value under key unless value is empty.
func (a Attributes) Set(key, value string) Attributes {
	if value != "" {
		a[key] = value
	}
	return a
}

// GroupFilter narrows group_find.
type GroupFilter struct {
	SizeLimit   int
	CN          string
	Description string
}

// Ping checks that the session is alive.
func (c *Client) Ping(ctx context.Context) (Result, error) {
	return c.Call(ctx, "ping", nil, nil)
}

// UserFind lists users. A sizeLimit of zero uses the server default.
func (c *Client) UserFind(ctx context.Context, sizeLimit int) (Result, error) {
	opts := map[string]any{}
	if sizeLimit > 0 {
		opts["sizelimit"] = sizeLimit
	}
	return c.Call(ctx, "user_find", nil, opts)
}

// UserShow fetches a single user entry.
func (c *Client) UserShow(ctx context.Context, uid string) (Result, error) {
	return c.Call(ctx, "user_show", []any{uid}, nil)
}

// UserAdd creates a user. attrs must include givenname and sn.
func (c *Client) UserAdd(ctx context.Context, uid string, attrs Attributes) (Result, error) {
	return c.Call(ctx, "user_add", []any{uid}, attrs)
}

// UserMod updates attributes on an existing user.
func (c *Client) UserMod(ctx context.Context, uid string, attrs Attributes) (Result, error) {
	return c.Call(ctx, "user_mod", []any{uid}, attrs)
}

// GroupFind lists groups, filtering server side on cn and description.
func (c *Client) GroupFind(ctx context.Context, filter GroupFilter) (Result, error) {
	opts := map[string]any{}
	if filter.SizeLimit > 0 {
		opts["sizelimit"] = filter.SizeLimit
	}
	if filter.CN != "" {
		opts["cn"] = filter.CN
	}
	if filter.Description != "" {
		opts["description"] = filter.Description
	}
	return c.Call(ctx, "group_find", nil, opts)
}

// GroupShow fetches a single group entry.
func (c *Client) GroupShow(ctx context.Context, cn string) (Result, error) {
	return c.Call(ctx, "group_show", []any{cn}, nil)
}

// GroupAdd creates a group.
func (c *Client) GroupAdd(ctx context.Context, cn string, attrs Attributes) (Result, error) {
	return c.Call(ctx, "group_add", []any{cn}, attrs)
}

// GroupAddMember adds user to group cn. FreeIPA reports per-member failures
// (for example "This entry is already a member") in the "failed" member of the
// result rather than as an error.
func (c *Client) GroupAddMember(ctx context.Context, cn, user string) (Result, error) {
	return c.Call(ctx, "group_add_member", []any{cn}, map[string]any{"user": []string{user}})
}

// GroupRemoveMember removes user from group cn.
func (c *Client) GroupRemoveMember(ctx context.Context, cn, user string) (Result, error) {
	return c.Call(ctx, "group_remove_member", []any{cn}, map[string]any{"user": []string{user}})
}
