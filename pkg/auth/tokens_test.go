package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pariksha-io/pariksha/pkg/apperr"
	"github.com/pariksha-io/pariksha/pkg/directory"
)

const testSecret = "test-secret-key-do-not-use-in-production"

func tokenUser() *directory.User {
	return &directory.User{
		ID:       uuid.New(),
		Email:    "teacher@school.edu",
		Username: "teacher1",
		Name:     "Asha Verma",
		Active:   true,
		Roles: []directory.Role{
			{
				Name: directory.RoleSchool,
				Permissions: []directory.Permission{
					{Name: "VIEW_REPORTS", Resource: "reports", Action: directory.ActionRead},
					{Name: "CREATE_TEST", Resource: "tests", Action: directory.ActionWrite},
				},
			},
			{
				Name: directory.RoleClass,
				Permissions: []directory.Permission{
					// Duplicate across roles; claims must carry it once
					{Name: "VIEW_REPORTS", Resource: "reports", Action: directory.ActionRead},
				},
			},
		},
	}
}

func TestIssuer_AccessToken(t *testing.T) {
	issuer := NewIssuer(testSecret, time.Hour, 720*time.Hour)
	user := tokenUser()

	tokenString, err := issuer.AccessToken(user)
	require.NoError(t, err)
	require.NotEmpty(t, tokenString)

	claims, err := issuer.Verify(tokenString)
	require.NoError(t, err)

	assert.Equal(t, user.ID.String(), claims.Subject)
	assert.Equal(t, "teacher@school.edu", claims.Email)
	assert.Equal(t, "teacher1", claims.Username)
	assert.Equal(t, []string{directory.RoleSchool, directory.RoleClass}, claims.Roles)
	assert.Equal(t, []string{"CREATE_TEST", "VIEW_REPORTS"}, claims.Permissions, "permissions are deduplicated and sorted")
	assert.Empty(t, claims.TokenType)
	assert.Equal(t, DefaultIssuerName, claims.Issuer)

	require.NotNil(t, claims.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func TestIssuer_RefreshToken(t *testing.T) {
	issuer := NewIssuer(testSecret, time.Hour, 720*time.Hour)
	user := tokenUser()

	tokenString, err := issuer.RefreshToken(user)
	require.NoError(t, err)

	claims, err := issuer.Verify(tokenString)
	require.NoError(t, err)

	assert.Equal(t, user.ID.String(), claims.Subject)
	assert.Equal(t, TokenTypeRefresh, claims.TokenType)
	assert.Empty(t, claims.Roles, "refresh tokens carry no roles")
	assert.Empty(t, claims.Permissions, "refresh tokens carry no permissions")

	require.NotNil(t, claims.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(720*time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func TestIssuer_Pair(t *testing.T) {
	issuer := NewIssuer(testSecret, time.Hour, 720*time.Hour)

	access, refresh, err := issuer.Pair(tokenUser())
	require.NoError(t, err)
	assert.NotEqual(t, access, refresh)

	accessClaims, err := issuer.Verify(access)
	require.NoError(t, err)
	assert.Empty(t, accessClaims.TokenType)

	refreshClaims, err := issuer.Verify(refresh)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeRefresh, refreshClaims.TokenType)
}

func TestIssuer_Verify_Errors(t *testing.T) {
	issuer := NewIssuer(testSecret, time.Hour, 720*time.Hour)
	user := tokenUser()

	t.Run("garbage", func(t *testing.T) {
		_, err := issuer.Verify("not.a.token")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewIssuer("a-different-secret", time.Hour, 720*time.Hour)
		tokenString, err := other.AccessToken(user)
		require.NoError(t, err)

		_, err = issuer.Verify(tokenString)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		expired := &Issuer{
			secret:     []byte(testSecret),
			issuer:     DefaultIssuerName,
			accessTTL:  -time.Minute,
			refreshTTL: -time.Minute,
		}
		tokenString, err := expired.AccessToken(user)
		require.NoError(t, err)

		_, err = issuer.Verify(tokenString)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unsigned token rejected", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   user.ID.String(),
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		})
		tokenString, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = issuer.Verify(tokenString)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestIssuer_ValidateToken(t *testing.T) {
	issuer := NewIssuer(testSecret, time.Hour, 720*time.Hour)

	tokenString, err := issuer.AccessToken(tokenUser())
	require.NoError(t, err)

	assert.True(t, issuer.ValidateToken(tokenString))
	assert.False(t, issuer.ValidateToken("garbage"))
	assert.False(t, issuer.ValidateToken(""))
}

func TestIssuer_UserIDFromToken(t *testing.T) {
	issuer := NewIssuer(testSecret, time.Hour, 720*time.Hour)
	user := tokenUser()

	t.Run("valid", func(t *testing.T) {
		tokenString, err := issuer.AccessToken(user)
		require.NoError(t, err)

		id, err := issuer.UserIDFromToken(tokenString)
		require.NoError(t, err)
		assert.Equal(t, user.ID, id)
	})

	t.Run("invalid token", func(t *testing.T) {
		_, err := issuer.UserIDFromToken("garbage")
		require.Error(t, err)
		assert.True(t, apperr.IsValidation(err))
	})

	t.Run("non-uuid subject", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "not-a-uuid",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		})
		tokenString, err := token.SignedString([]byte(testSecret))
		require.NoError(t, err)

		_, err = issuer.UserIDFromToken(tokenString)
		require.Error(t, err)
		assert.True(t, apperr.IsValidation(err))
		assert.Contains(t, err.Error(), "subject")
	})
}

func TestNewIssuer_Defaults(t *testing.T) {
	issuer := NewIssuer(testSecret, 0, 0)
	assert.Equal(t, DefaultAccessTTL, issuer.accessTTL)
	assert.Equal(t, DefaultRefreshTTL, issuer.refreshTTL)
}
