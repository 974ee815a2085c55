package sso

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/pariksha-io/pariksha/pkg/httputil"
	"github.com/pariksha-io/pariksha/pkg/middleware"
	"github.com/pariksha-io/pariksha/pkg/observability"
)

const (
	stateCookie = "sso_state"
	nonceCookie = "sso_nonce"

	// How long a login attempt may sit between redirect and callback
	loginCookieMaxAge = 600
)

// Handlers exposes the federated login endpoints. With a nil provider the
// endpoints respond 404, so the routes can be registered unconditionally.
type Handlers struct {
	provider Provider
	service  *Service
	logger   *observability.Logger
}

// NewHandlers creates SSO handlers. provider may be nil when SSO is not
// configured.
func NewHandlers(provider Provider, service *Service, logger *observability.Logger) *Handlers {
	return &Handlers{
		provider: provider,
		service:  service,
		logger:   logger,
	}
}

// RegisterRoutes registers the SSO routes on the given router
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/sso/login", h.login).Methods("GET")
	router.HandleFunc("/sso/callback", h.callback).Methods("GET")
}

// login handles GET /sso/login
func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		httputil.WriteErrorMessage(w, http.StatusNotFound, "single sign-on is not enabled")
		return
	}

	state, err := randomToken()
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	nonce, err := randomToken()
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	setLoginCookie(w, stateCookie, state)
	setLoginCookie(w, nonceCookie, nonce)

	http.Redirect(w, r, h.provider.LoginURL(state, nonce), http.StatusFound)
}

// callback handles GET /sso/callback
func (h *Handlers) callback(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		httputil.WriteErrorMessage(w, http.StatusNotFound, "single sign-on is not enabled")
		return
	}

	// One shot per state/nonce pair, even when the exchange fails
	defer clearLoginCookies(w)

	if errCode := r.URL.Query().Get("error"); errCode != "" {
		h.logger.WithField("error", errCode).Warn("identity provider returned an error")
		httputil.WriteErrorMessage(w, http.StatusUnauthorized, "identity provider rejected the login")
		return
	}

	state := r.URL.Query().Get("state")
	stateCk, err := r.Cookie(stateCookie)
	if err != nil || state == "" || state != stateCk.Value {
		httputil.WriteErrorMessage(w, http.StatusUnauthorized, "state mismatch")
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		httputil.WriteBadRequest(w, "missing authorization code")
		return
	}

	nonce := ""
	if nonceCk, err := r.Cookie(nonceCookie); err == nil {
		nonce = nonceCk.Value
	}

	identity, err := h.provider.HandleCallback(r.Context(), code, nonce)
	if err != nil {
		h.logger.WithError(err).Warn("federated login callback failed")
		httputil.WriteErrorMessage(w, http.StatusUnauthorized, "federated login failed")
		return
	}

	result, err := h.service.Login(r.Context(), identity, middleware.ClientFromRequest(r))
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	httputil.WriteSuccess(w, result)
}

func randomToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func setLoginCookie(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   loginCookieMaxAge,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearLoginCookies(w http.ResponseWriter) {
	for _, name := range []string{stateCookie, nonceCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   true,
			SameSite: http.SameSiteLaxMode,
		})
	}
}
