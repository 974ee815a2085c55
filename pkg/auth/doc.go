// Package auth implements credential verification and JWT issuance for the
// Pariksha platform.
//
// # Overview
//
// An Issuer signs two kinds of HS256 tokens. Access tokens embed the user's
// roles and deduplicated permission names so request authorization never
// touches the directory; they live for an hour by default. Refresh tokens
// carry only the user's identity plus a REFRESH marker and live for thirty
// days; rotating one rebuilds the access token from the directory's current
// state, which is how role changes and deactivations propagate to
// long-lived sessions.
//
// The Service owns the flows: Authenticate (email first, username
// fallback), Refresh, and ChangePassword. Passwords are bcrypt hashes
// behind the Hasher interface. Failed attempts against existing accounts
// are recorded to the audit trail before the error is returned; an unknown
// identifier produces no audit record because there is no account to
// attribute it to. Error messages are deliberately constant: a wrong
// password and a right password on an inactive account both say nothing
// about which part was wrong.
//
// # Usage Example
//
//	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL)
//	svc := auth.NewService(store, auth.NewBcryptHasher(0), issuer, recorder, logger, metrics)
//
//	result, err := svc.Authenticate(ctx, "teacher@school.edu", password, auth.ClientContext{
//		IP:        audit.ClientIP(r),
//		UserAgent: r.UserAgent(),
//	})
//	if err != nil {
//		return err
//	}
//	_ = result.AccessToken
//
// # Related Packages
//
//   - pkg/directory: account storage the service authenticates against
//   - pkg/audit: receives login, refresh and password-change events
//   - pkg/middleware: verifies access tokens on incoming requests
package auth
