package telegram

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/meniwap/telecraftor-core/tl"
)

// SendCode requests an authentication code for phone, returning the
// phone_code_hash SignIn needs (spec.md §4.7, auth flow).
func (c *Client) SendCode(ctx context.Context, phone string) (tl.SentCode, error) {
	return c.source.SendCode(ctx, phone)
}

// SignIn completes sign-in with a received code. When the account has no
// registration yet, auth is nil and su describes the sign-up step
// required (spec.md §4.7).
func (c *Client) SignIn(ctx context.Context, phone, phoneCodeHash, code string) (auth *tl.Authorization, su *tl.SignUpRequired, err error) {
	return c.source.SignIn(ctx, phone, phoneCodeHash, code)
}

// SignUp registers a new account for a phone that passed SendCode/SignIn
// with no prior registration (spec.md §4.7).
func (c *Client) SignUp(ctx context.Context, phone, phoneCodeHash, firstName, lastName string) (tl.Authorization, error) {
	return c.source.SignUp(ctx, phone, phoneCodeHash, firstName, lastName)
}

// CheckPassword completes two-factor sign-in: it fetches the current SRP
// parameters, derives the (A, M1) pair locally (spec.md §4.7's
// check_password formula), and submits them without ever sending the
// plaintext password over the wire.
func (c *Client) CheckPassword(ctx context.Context, password string) (tl.Authorization, error) {
	pw, err := c.source.GetPassword(ctx)
	if err != nil {
		return tl.Authorization{}, errors.Wrap(err, "get password parameters")
	}
	req, err := computeSRP(password, pw)
	if err != nil {
		return tl.Authorization{}, errors.Wrap(err, "compute SRP proof")
	}
	return c.source.CheckPassword(ctx, req)
}

// ResolveUsername resolves a @username to a peer reference, consulting
// the local entity cache before falling back to the network (spec.md
// §4.6).
func (c *Client) ResolveUsername(ctx context.Context, username string) (tl.PeerRef, error) {
	return c.cache.Resolve(ctx, tl.InputRef{Username: tl.NormalizeUsername(username)})
}

// ResolvePhone resolves a contact's phone number to a peer reference
// (spec.md §4.6).
func (c *Client) ResolvePhone(ctx context.Context, phone string) (tl.PeerRef, error) {
	return c.cache.Resolve(ctx, tl.InputRef{Phone: tl.NormalizePhone(phone)})
}
