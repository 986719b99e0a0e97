package server

import (
	"crypto/subtle"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/dgellow/authbridge/internal/autherr"
	"github.com/dgellow/authbridge/internal/config"
	"github.com/dgellow/authbridge/internal/cookie"
	"github.com/dgellow/authbridge/internal/crypto"
	"github.com/dgellow/authbridge/internal/exchange"
	"github.com/dgellow/authbridge/internal/identity"
	jsonwriter "github.com/dgellow/authbridge/internal/json"
	"github.com/dgellow/authbridge/internal/log"
	"github.com/dgellow/authbridge/internal/provider"
)

// Environment tags stored in the environment cookie
const (
	EnvDev  = "dev"
	EnvProd = "prod"
)

// CustomTokenMinter mints the downstream identity token for a uid
type CustomTokenMinter interface {
	MintCustomToken(uid string, claims map[string]any) (string, error)
}

// AuthHandlers serves the login flow and the token exchange endpoint
type AuthHandlers struct {
	provider provider.Client
	minter   CustomTokenMinter
	store    exchange.Store
	frontend config.FrontendConfig
}

// NewAuthHandlers creates new auth handlers with dependency injection
func NewAuthHandlers(p provider.Client, minter CustomTokenMinter, store exchange.Store, frontend config.FrontendConfig) *AuthHandlers {
	if frontend.LoginPath == "" {
		frontend.LoginPath = config.DefaultLoginPath
	}
	return &AuthHandlers{
		provider: p,
		minter:   minter,
		store:    store,
		frontend: frontend,
	}
}

// LoginHandler starts a login: it pins the anti-forgery state and the
// environment tag in cookies and redirects to the provider. An existing
// state cookie is reused so parallel tabs share one state.
func (h *AuthHandlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	state := cookie.GetState(r)
	if state == "" {
		var err error
		state, err = crypto.GenerateSecureToken()
		if err != nil {
			fail(w, r, "auth", "login", fmt.Errorf("generating state: %w", err))
			return
		}
	}

	env := environmentFromReferer(r.Referer())
	cookie.SetState(w, state)
	cookie.SetEnvironment(w, env)

	log.LogDebugWithFields("auth", "Redirecting to provider", map[string]any{
		"provider":    h.provider.Name(),
		"environment": env,
		"request_id":  RequestIDFromContext(r.Context()),
	})

	http.Redirect(w, r, h.provider.AuthURL(state), http.StatusFound)
}

// CallbackHandler completes a login. The state is checked before any
// provider call; on success the minted token is parked under a fresh
// exchange key and the browser is sent to the frontend with that key.
func (h *AuthHandlers) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	if providerErr := q.Get("error"); providerErr != "" {
		fail(w, r, "auth", "callback", autherr.Malformed("provider returned error %q: %s", providerErr, q.Get("error_description")))
		return
	}

	code := q.Get("code")
	state := q.Get("state")
	if code == "" || state == "" {
		fail(w, r, "auth", "callback", autherr.Malformed("code and state are required"))
		return
	}

	expected := cookie.GetState(r)
	if expected == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(state)) != 1 {
		fail(w, r, "auth", "callback", autherr.ErrStateMismatch)
		return
	}

	token, err := h.provider.ExchangeAuthorizationCode(ctx, code)
	if err != nil {
		fail(w, r, "auth", "callback", err)
		return
	}

	profile, err := h.provider.FetchProfile(ctx, token)
	if err != nil {
		fail(w, r, "auth", "callback", err)
		return
	}

	uid := identity.UID(h.provider.Name(), profile.UserID)
	customToken, err := h.minter.MintCustomToken(uid, nil)
	if err != nil {
		fail(w, r, "auth", "callback", fmt.Errorf("minting custom token: %w", err))
		return
	}

	key, err := exchange.NewKey()
	if err != nil {
		fail(w, r, "auth", "callback", fmt.Errorf("generating exchange key: %w", err))
		return
	}
	if err := h.store.Put(ctx, key, customToken); err != nil {
		fail(w, r, "auth", "callback", err)
		return
	}

	env := cookie.GetEnvironment(r)
	log.LogInfoWithFields("auth", "Login completed", map[string]any{
		"uid":         uid,
		"environment": env,
		"request_id":  RequestIDFromContext(ctx),
	})

	http.Redirect(w, r, h.frontendRedirect(env, key), http.StatusFound)
}

// FirebaseTokenHandler redeems an exchange key for the stored token, once
func (h *AuthHandlers) FirebaseTokenHandler(w http.ResponseWriter, r *http.Request) {
	code, err := readExchangeCode(w, r)
	if err != nil {
		fail(w, r, "exchange", "firebasetoken", err)
		return
	}

	token, found, err := h.store.Consume(r.Context(), code)
	if err != nil {
		fail(w, r, "exchange", "firebasetoken", err)
		return
	}
	if !found {
		fail(w, r, "exchange", "firebasetoken", autherr.ErrExchangeKeyNotFound)
		return
	}

	log.LogInfoWithFields("exchange", "Identity token handed over", map[string]any{
		"request_id": RequestIDFromContext(r.Context()),
	})
	_ = jsonwriter.Write(w, map[string]string{"token": token})
}

// frontendRedirect builds <origin><loginPath>?uid=<key>
func (h *AuthHandlers) frontendRedirect(env, key string) string {
	origin := h.frontend.ProdOrigin
	if env == EnvDev && h.frontend.DevOrigin != "" {
		origin = h.frontend.DevOrigin
	}
	return strings.TrimRight(origin, "/") + h.frontend.LoginPath + "?uid=" + url.QueryEscape(key)
}

// environmentFromReferer tags logins started from a localhost page as dev
func environmentFromReferer(referer string) string {
	if referer == "" {
		return EnvProd
	}
	host := referer
	if u, err := url.Parse(referer); err == nil && u.Host != "" {
		host = u.Hostname()
	}
	if strings.Contains(host, "localhost") {
		return EnvDev
	}
	return EnvProd
}

// readExchangeCode extracts a non-empty string "code" from a JSON or form body
func readExchangeCode(w http.ResponseWriter, r *http.Request) (string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" {
		r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
		if err := r.ParseForm(); err != nil {
			return "", autherr.Malformed("invalid form body: %v", err)
		}
		if _, ok := r.PostForm["code"]; !ok {
			return "", autherr.Malformed("code is missing")
		}
		code := r.PostForm.Get("code")
		if code == "" {
			return "", autherr.Malformed("code is empty")
		}
		return code, nil
	}

	body, err := jsonwriter.DecodeObject(r.Body)
	if err != nil {
		return "", autherr.Malformed("invalid JSON body: %v", err)
	}
	raw, ok := body["code"]
	if !ok {
		return "", autherr.Malformed("code is missing")
	}
	code, ok := raw.(string)
	if !ok {
		return "", autherr.Malformed("code must be a string, got %T", raw)
	}
	if code == "" {
		return "", autherr.Malformed("code is empty")
	}
	return code, nil
}
