package freeipa

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
)

const (
	pwchangeResultHeader = "X-IPA-Pwchange-Result"
	pwchangePolicyHeader = "X-IPA-Pwchange-Policy-Error"

	tempPasswordLength = 16
)

// ChangePassword changes a user's password through the self-service endpoint.
// The server verifies oldPassword; no session cookie is required.
func (c *Client) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error {
	form := url.Values{
		"user":         {username},
		"old_password": {oldPassword},
		"new_password": {newPassword},
	}
	return c.postForm(ctx, "change_password", changePasswordPath, form, func(resp *http.Response) error {
		if resp.StatusCode != http.StatusOK {
			return &TransportError{Op: "change_password", Status: resp.StatusCode}
		}
		result := resp.Header.Get(pwchangeResultHeader)
		if result == "ok" {
			return nil
		}
		if result == "" {
			result = "unknown result"
		}
		return &PasswordChangeError{Result: result, Policy: resp.Header.Get(pwchangePolicyHeader)}
	})
}

// ResetPassword sets a new password for username without knowing the old one.
// An administrative user_mod assigns a random temporary password, which FreeIPA
// marks as expired; the temporary password is then immediately exchanged for
// newPassword through the self-service endpoint so the user can log in with it
// directly. If that exchange fails the account is left with the unknown
// temporary password and a *ResetIncompleteError is returned.
func (c *Client) ResetPassword(ctx context.Context, username, newPassword string) error {
	temp, err := generatePassword(tempPasswordLength)
	if err != nil {
		return fmt.Errorf("freeipa: generate temporary password: %w", err)
	}
	if _, err := c.UserMod(ctx, username, Attributes{"userpassword": temp}); err != nil {
		return err
	}
	if err := c.ChangePassword(ctx, username, temp, newPassword); err != nil {
		return &ResetIncompleteError{Username: username, Err: err}
	}
	return nil
}

func generatePassword(length int) (string, error) {
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		if err != nil {
			return "", err
		}
		buf[i] = alphabet[n.Int64()]
	}
	return string(buf), nil
}
