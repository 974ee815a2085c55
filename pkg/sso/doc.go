// Package sso provides federated login over OpenID Connect with just-in-time provisioning.
//
// # Overview
//
// This package implements the browser-redirect login flow: /sso/login sends
// the user to the identity provider with state and nonce cookies, and
// /sso/callback exchanges the returned code, verifies the ID token, and
// yields the same JWT pair a password login produces.
//
// Identities are joined to the directory by verified email. An unknown email
// is provisioned on the spot: an active account with the configured default
// role and a random password nobody knows, so the account can only ever
// authenticate through the provider. A known email logs in with its existing
// account, roles and all.
//
// # Usage Example
//
//	provider, err := sso.NewOIDCProvider(ctx, &sso.OIDCConfig{
//		ProviderName: "google",
//		IssuerURL:    "https://accounts.google.com",
//		ClientID:     clientID,
//		ClientSecret: clientSecret,
//		RedirectURL:  "https://pariksha.example.org/api/v1/sso/callback",
//		Scopes:       []string{"openid", "profile", "email"},
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	service := sso.NewService(store, hasher, issuer, "STUDENT", recorder, logger, metrics)
//	handlers := sso.NewHandlers(provider, service, logger)
//	handlers.RegisterRoutes(public)
//
// # Related Packages
//
//   - pkg/auth: the token pair issued after a federated login
//   - pkg/directory: user lookup and provisioning
//   - pkg/audit: sso.login and sso.user_provisioned events
package sso
