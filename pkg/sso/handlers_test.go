package sso

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pariksha-io/pariksha/pkg/auth"
)

type fakeProvider struct {
	identity *Identity
	err      error
	gotCode  string
	gotNonce string
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) LoginURL(state, nonce string) string {
	return "https://idp.example.org/authorize?state=" + state + "&nonce=" + nonce
}

func (p *fakeProvider) HandleCallback(ctx context.Context, code, nonce string) (*Identity, error) {
	p.gotCode = code
	p.gotNonce = nonce
	if p.err != nil {
		return nil, p.err
	}
	return p.identity, nil
}

func setupHandlers(t *testing.T, provider Provider) (*mux.Router, *fakeDirectory) {
	t.Helper()

	store := newFakeDirectory()
	issuer := auth.NewIssuer(testSecret, time.Hour, 720*time.Hour)
	service := NewService(store, auth.NewBcryptHasher(bcrypt.MinCost), issuer, "", &fakeRecorder{}, testLogger(), nil)

	router := mux.NewRouter()
	NewHandlers(provider, service, testLogger()).RegisterRoutes(router)
	return router, store
}

func cookieByName(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestHandlers_Login_RedirectsWithCookies(t *testing.T) {
	router, _ := setupHandlers(t, &fakeProvider{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/sso/login", nil))

	require.Equal(t, http.StatusFound, rec.Code)

	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "idp.example.org", location.Host)

	cookies := rec.Result().Cookies()
	state := cookieByName(cookies, "sso_state")
	nonce := cookieByName(cookies, "sso_nonce")
	require.NotNil(t, state)
	require.NotNil(t, nonce)
	assert.True(t, state.HttpOnly)
	assert.True(t, nonce.HttpOnly)
	assert.NotEmpty(t, state.Value)

	// The redirect carries exactly what the cookies pin
	assert.Equal(t, state.Value, location.Query().Get("state"))
	assert.Equal(t, nonce.Value, location.Query().Get("nonce"))
}

func TestHandlers_Disabled(t *testing.T) {
	router, _ := setupHandlers(t, nil)

	for _, path := range []string{"/sso/login", "/sso/callback"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Contains(t, rec.Body.String(), "not enabled")
	}
}

func TestHandlers_Callback_Success(t *testing.T) {
	provider := &fakeProvider{identity: verifiedIdentity()}
	router, store := setupHandlers(t, provider)

	req := httptest.NewRequest("GET", "/sso/callback?state=state-abc&code=auth-code-1", nil)
	req.AddCookie(&http.Cookie{Name: "sso_state", Value: "state-abc"})
	req.AddCookie(&http.Cookie{Name: "sso_nonce", Value: "nonce-xyz"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "auth-code-1", provider.gotCode)
	assert.Equal(t, "nonce-xyz", provider.gotNonce)

	var result auth.LoginResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.NotEmpty(t, result.AccessToken)
	assert.Len(t, store.created, 1)

	// One-shot cookies are cleared on the way out
	state := cookieByName(rec.Result().Cookies(), "sso_state")
	require.NotNil(t, state)
	assert.Less(t, state.MaxAge, 0)
}

func TestHandlers_Callback_StateMismatch(t *testing.T) {
	provider := &fakeProvider{identity: verifiedIdentity()}
	router, _ := setupHandlers(t, provider)

	req := httptest.NewRequest("GET", "/sso/callback?state=tampered&code=auth-code-1", nil)
	req.AddCookie(&http.Cookie{Name: "sso_state", Value: "state-abc"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "state mismatch")
	assert.Empty(t, provider.gotCode, "the code must not be exchanged on a bad state")
}

func TestHandlers_Callback_MissingStateCookie(t *testing.T) {
	router, _ := setupHandlers(t, &fakeProvider{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/sso/callback?state=state-abc&code=c", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandlers_Callback_MissingCode(t *testing.T) {
	router, _ := setupHandlers(t, &fakeProvider{})

	req := httptest.NewRequest("GET", "/sso/callback?state=state-abc", nil)
	req.AddCookie(&http.Cookie{Name: "sso_state", Value: "state-abc"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlers_Callback_ProviderRejection(t *testing.T) {
	router, _ := setupHandlers(t, &fakeProvider{})

	req := httptest.NewRequest("GET", "/sso/callback?error=access_denied", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "identity provider rejected")
}

func TestHandlers_Callback_ExchangeFailure(t *testing.T) {
	provider := &fakeProvider{err: context.DeadlineExceeded}
	router, _ := setupHandlers(t, provider)

	req := httptest.NewRequest("GET", "/sso/callback?state=state-abc&code=auth-code-1", nil)
	req.AddCookie(&http.Cookie{Name: "sso_state", Value: "state-abc"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "federated login failed")
}

func TestHandlers_Callback_UnverifiedIdentity(t *testing.T) {
	identity := verifiedIdentity()
	identity.EmailVerified = false
	router, store := setupHandlers(t, &fakeProvider{identity: identity})

	req := httptest.NewRequest("GET", "/sso/callback?state=state-abc&code=auth-code-1", nil)
	req.AddCookie(&http.Cookie{Name: "sso_state", Value: "state-abc"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Empty(t, store.created)
}
