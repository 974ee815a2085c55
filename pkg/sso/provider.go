package sso

import "context"

// Identity is what a provider asserts about the person who just completed
// the federated login. Subject is the provider's stable external ID; Email
// is the join key against the directory.
type Identity struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Username      string
}

// Provider abstracts the federated login protocol. The HTTP handlers own
// cookies and redirects; the provider owns discovery, code exchange, and
// token verification.
type Provider interface {
	// Name identifies the provider in audit records and metrics
	Name() string
	// LoginURL returns the authorization URL the browser is sent to
	LoginURL(state, nonce string) string
	// HandleCallback exchanges the authorization code and verifies the
	// resulting identity, including the nonce binding.
	HandleCallback(ctx context.Context, code, nonce string) (*Identity, error)
}
