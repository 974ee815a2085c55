package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pariksha-io/pariksha/pkg/apperr"
	"github.com/pariksha-io/pariksha/pkg/directory"
)

const (
	// TokenTypeRefresh marks refresh tokens; access tokens carry no type
	TokenTypeRefresh = "REFRESH"

	// DefaultIssuerName is the iss claim on all tokens
	DefaultIssuerName = "pariksha"

	// DefaultAccessTTL is the access token lifetime
	DefaultAccessTTL = time.Hour

	// DefaultRefreshTTL is the refresh token lifetime (30 days)
	DefaultRefreshTTL = 720 * time.Hour
)

// ErrInvalidToken is returned for any token that fails verification:
// bad signature, wrong algorithm, expired, or malformed.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the JWT payload for both token kinds. Access tokens carry the
// user's roles and permissions so request handling needs no directory
// lookup; refresh tokens carry only identity plus TokenType, forcing a
// fresh directory read on rotation.
type Claims struct {
	Email       string   `json:"email,omitempty"`
	Username    string   `json:"username,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	TokenType   string   `json:"token_type,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 tokens
type Issuer struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewIssuer creates a token issuer. Non-positive TTLs fall back to the
// defaults.
func NewIssuer(secret string, accessTTL, refreshTTL time.Duration) *Issuer {
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}
	return &Issuer{
		secret:     []byte(secret),
		issuer:     DefaultIssuerName,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// WithIssuerName overrides the iss claim on issued tokens. An empty name
// keeps the default. Returns the issuer for chaining.
func (i *Issuer) WithIssuerName(name string) *Issuer {
	if name != "" {
		i.issuer = name
	}
	return i
}

// AccessTTL returns the access token lifetime
func (i *Issuer) AccessTTL() time.Duration {
	return i.accessTTL
}

// AccessToken issues an access token carrying the user's current roles and
// deduplicated permission names.
func (i *Issuer) AccessToken(user *directory.User) (string, error) {
	now := time.Now().UTC()
	claims := &Claims{
		Email:       user.Email,
		Username:    user.Username,
		Roles:       user.RoleNames(),
		Permissions: user.PermissionNames(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}

// RefreshToken issues a refresh token. It deliberately omits roles and
// permissions; rotation rebuilds them from the directory.
func (i *Issuer) RefreshToken(user *directory.User) (string, error) {
	now := time.Now().UTC()
	claims := &Claims{
		Email:     user.Email,
		TokenType: TokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.refreshTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign refresh token: %w", err)
	}
	return signed, nil
}

// Pair issues an access and refresh token for the user
func (i *Issuer) Pair(user *directory.User) (access, refresh string, err error) {
	access, err = i.AccessToken(user)
	if err != nil {
		return "", "", err
	}
	refresh, err = i.RefreshToken(user)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// Verify parses and validates a token, returning its claims. Any failure
// wraps ErrInvalidToken.
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ValidateToken reports whether a token verifies
func (i *Issuer) ValidateToken(tokenString string) bool {
	_, err := i.Verify(tokenString)
	return err == nil
}

// UserIDFromToken verifies a token and extracts the user ID from its
// subject.
func (i *Issuer) UserIDFromToken(tokenString string) (uuid.UUID, error) {
	claims, err := i.Verify(tokenString)
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid or expired token")
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, apperr.Validation("malformed user ID in token subject")
	}
	return id, nil
}
