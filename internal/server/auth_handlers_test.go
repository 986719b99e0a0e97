package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgellow/authbridge/internal/autherr"
	"github.com/dgellow/authbridge/internal/config"
	"github.com/dgellow/authbridge/internal/cookie"
	"github.com/dgellow/authbridge/internal/exchange"
	"github.com/dgellow/authbridge/internal/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Name() string { return "amazon" }

func (m *mockProvider) AuthURL(state string) string {
	return "https://provider.test/auth?state=" + url.QueryEscape(state)
}

func (m *mockProvider) ExchangeAuthorizationCode(ctx context.Context, code string) (*oauth2.Token, error) {
	args := m.Called(ctx, code)
	tok, _ := args.Get(0).(*oauth2.Token)
	return tok, args.Error(1)
}

func (m *mockProvider) FetchProfile(ctx context.Context, token *oauth2.Token) (*provider.Profile, error) {
	args := m.Called(ctx, token)
	p, _ := args.Get(0).(*provider.Profile)
	return p, args.Error(1)
}

type fakeMinter struct {
	mu   sync.Mutex
	uids []string
	err  error
}

func (f *fakeMinter) MintCustomToken(uid string, _ map[string]any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.uids = append(f.uids, uid)
	return "custom-token-for-" + uid, nil
}

type failingStore struct {
	exchange.Store
	err error
}

func (s failingStore) Put(context.Context, string, string) error { return s.err }

func (s failingStore) Consume(context.Context, string) (string, bool, error) {
	return "", false, s.err
}

var testFrontend = config.FrontendConfig{
	ProdOrigin: "https://app.example.com",
	DevOrigin:  "http://localhost:3000",
	LoginPath:  "/logining",
}

func newTestAuthHandlers(p provider.Client, minter CustomTokenMinter, store exchange.Store) *AuthHandlers {
	return NewAuthHandlers(p, minter, store, testFrontend)
}

func findCookie(t *testing.T, cookies []*http.Cookie, name string) *http.Cookie {
	t.Helper()
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("cookie %q not set", name)
	return nil
}

func callbackRequest(code, state, cookieState string) *http.Request {
	q := url.Values{}
	if code != "" {
		q.Set("code", code)
	}
	if state != "" {
		q.Set("state", state)
	}
	req := httptest.NewRequest(http.MethodGet, "/auth/callback?"+q.Encode(), nil)
	if cookieState != "" {
		req.AddCookie(&http.Cookie{Name: cookie.StateCookie, Value: cookieState})
	}
	return req
}

func exchangeRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/auth/firebasetoken", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestLoginHandler_SetsCookiesAndRedirects(t *testing.T) {
	p := provider.NewAmazonClient(provider.AmazonOptions{
		ClientID:    "client-id",
		RedirectURI: "https://auth.example.com/auth/callback",
		Scopes:      []string{"profile"},
	})
	h := newTestAuthHandlers(p, &fakeMinter{}, exchange.NewMemoryStore(time.Minute))

	req := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	rec := httptest.NewRecorder()
	h.LoginHandler(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)

	cookies := rec.Result().Cookies()
	state := findCookie(t, cookies, cookie.StateCookie)
	env := findCookie(t, cookies, cookie.EnvironmentCookie)
	assert.NotEmpty(t, state.Value)
	assert.Equal(t, EnvProd, env.Value)
	assert.Equal(t, int(cookie.FlowMaxAge.Seconds()), state.MaxAge)
	assert.True(t, state.HttpOnly)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	q := loc.Query()
	assert.Equal(t, state.Value, q.Get("state"))
	assert.Equal(t, "profile", q.Get("scope"))
	assert.Equal(t, "https://auth.example.com/auth/callback", q.Get("redirect_uri"))
}

func TestLoginHandler_ReusesExistingState(t *testing.T) {
	h := newTestAuthHandlers(&mockProvider{}, &fakeMinter{}, exchange.NewMemoryStore(time.Minute))

	req := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	req.AddCookie(&http.Cookie{Name: cookie.StateCookie, Value: "existing-state"})
	rec := httptest.NewRecorder()
	h.LoginHandler(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "existing-state", findCookie(t, rec.Result().Cookies(), cookie.StateCookie).Value)
	assert.Contains(t, rec.Header().Get("Location"), "state=existing-state")
}

func TestLoginHandler_EnvironmentFromReferer(t *testing.T) {
	tests := []struct {
		referer string
		want    string
	}{
		{"", EnvProd},
		{"http://localhost:3000/signin", EnvDev},
		{"https://app.example.com/signin", EnvProd},
		{"https://localhost.example.com/", EnvDev},
	}

	h := newTestAuthHandlers(&mockProvider{}, &fakeMinter{}, exchange.NewMemoryStore(time.Minute))
	for _, tt := range tests {
		t.Run(tt.referer, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
			if tt.referer != "" {
				req.Header.Set("Referer", tt.referer)
			}
			rec := httptest.NewRecorder()
			h.LoginHandler(rec, req)
			assert.Equal(t, tt.want, findCookie(t, rec.Result().Cookies(), cookie.EnvironmentCookie).Value)
		})
	}
}

func TestCallbackHandler_Success(t *testing.T) {
	p := &mockProvider{}
	token := &oauth2.Token{AccessToken: "T1", TokenType: "bearer", RefreshToken: "R1"}
	p.On("ExchangeAuthorizationCode", mock.Anything, "validcode").Return(token, nil).Once()
	p.On("FetchProfile", mock.Anything, token).Return(&provider.Profile{UserID: "u1", Email: "e", Name: "n"}, nil).Once()

	minter := &fakeMinter{}
	store := exchange.NewMemoryStore(time.Minute)
	h := newTestAuthHandlers(p, minter, store)

	rec := httptest.NewRecorder()
	h.CallbackHandler(rec, callbackRequest("validcode", "S", "S"))

	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "https", loc.Scheme)
	assert.Equal(t, "app.example.com", loc.Host)
	assert.Equal(t, "/logining", loc.Path)
	key := loc.Query().Get("uid")
	require.NotEmpty(t, key)
	assert.NotEqual(t, "S", key)
	assert.Equal(t, []string{"amazon:u1"}, minter.uids)
	p.AssertExpectations(t)

	first := httptest.NewRecorder()
	h.FirebaseTokenHandler(first, exchangeRequest(`{"code":"`+key+`"}`))
	require.Equal(t, http.StatusOK, first.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &body))
	assert.Equal(t, "custom-token-for-amazon:u1", body["token"])

	second := httptest.NewRecorder()
	h.FirebaseTokenHandler(second, exchangeRequest(`{"code":"`+key+`"}`))
	assert.Equal(t, http.StatusInternalServerError, second.Code)
	assert.Empty(t, second.Body.String())
}

func TestCallbackHandler_DevEnvironmentRedirect(t *testing.T) {
	p := &mockProvider{}
	token := &oauth2.Token{AccessToken: "T1"}
	p.On("ExchangeAuthorizationCode", mock.Anything, "c").Return(token, nil)
	p.On("FetchProfile", mock.Anything, token).Return(&provider.Profile{UserID: "u1", Email: "e", Name: "n"}, nil)

	h := newTestAuthHandlers(p, &fakeMinter{}, exchange.NewMemoryStore(time.Minute))
	req := callbackRequest("c", "S", "S")
	req.AddCookie(&http.Cookie{Name: cookie.EnvironmentCookie, Value: EnvDev})
	rec := httptest.NewRecorder()
	h.CallbackHandler(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "http://localhost:3000/logining?uid="))
}

func TestCallbackHandler_StateMismatchSkipsProvider(t *testing.T) {
	tests := []struct {
		name        string
		state       string
		cookieState string
	}{
		{"different state", "attacker", "S"},
		{"no cookie", "S", ""},
		{"prefix of cookie", "S", "S1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &mockProvider{}
			store := exchange.NewMemoryStore(time.Minute)
			h := newTestAuthHandlers(p, &fakeMinter{}, store)

			rec := httptest.NewRecorder()
			h.CallbackHandler(rec, callbackRequest("validcode", tt.state, tt.cookieState))

			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.Empty(t, rec.Body.String())
			assert.Empty(t, rec.Header().Get("Location"))
			p.AssertNotCalled(t, "ExchangeAuthorizationCode", mock.Anything, mock.Anything)
			p.AssertNotCalled(t, "FetchProfile", mock.Anything, mock.Anything)
			assert.Equal(t, 0, store.Len())
		})
	}
}

func TestCallbackHandler_MalformedRequest(t *testing.T) {
	tests := []struct {
		name string
		req  *http.Request
	}{
		{"missing code", callbackRequest("", "S", "S")},
		{"missing state", callbackRequest("c", "", "S")},
		{"provider error", httptest.NewRequest(http.MethodGet, "/auth/callback?error=access_denied&state=S", nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &mockProvider{}
			h := newTestAuthHandlers(p, &fakeMinter{}, exchange.NewMemoryStore(time.Minute))
			rec := httptest.NewRecorder()
			h.CallbackHandler(rec, tt.req)

			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			p.AssertNotCalled(t, "ExchangeAuthorizationCode", mock.Anything, mock.Anything)
		})
	}
}

func TestCallbackHandler_FailuresStoreNothing(t *testing.T) {
	token := &oauth2.Token{AccessToken: "T1"}
	profile := &provider.Profile{UserID: "u1", Email: "e", Name: "n"}
	malformed := &autherr.ProviderError{Kind: autherr.ErrProviderResponseMalformed, Op: "token exchange", Payload: `{"access_token":"[redacted]"}`}

	tests := []struct {
		name   string
		setup  func(p *mockProvider)
		minter *fakeMinter
	}{
		{
			name: "token response missing refresh_token",
			setup: func(p *mockProvider) {
				p.On("ExchangeAuthorizationCode", mock.Anything, "c").Return(nil, malformed)
			},
			minter: &fakeMinter{},
		},
		{
			name: "provider unreachable",
			setup: func(p *mockProvider) {
				p.On("ExchangeAuthorizationCode", mock.Anything, "c").Return(nil, &autherr.ProviderError{Kind: autherr.ErrProviderUnreachable, Op: "token exchange", StatusCode: 400})
			},
			minter: &fakeMinter{},
		},
		{
			name: "profile fetch fails",
			setup: func(p *mockProvider) {
				p.On("ExchangeAuthorizationCode", mock.Anything, "c").Return(token, nil)
				p.On("FetchProfile", mock.Anything, token).Return(nil, &autherr.ProviderError{Kind: autherr.ErrProviderResponseMalformed, Op: "profile"})
			},
			minter: &fakeMinter{},
		},
		{
			name: "minting fails",
			setup: func(p *mockProvider) {
				p.On("ExchangeAuthorizationCode", mock.Anything, "c").Return(token, nil)
				p.On("FetchProfile", mock.Anything, token).Return(profile, nil)
			},
			minter: &fakeMinter{err: errors.New("signing failed")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &mockProvider{}
			tt.setup(p)
			store := exchange.NewMemoryStore(time.Minute)
			h := newTestAuthHandlers(p, tt.minter, store)

			rec := httptest.NewRecorder()
			h.CallbackHandler(rec, callbackRequest("c", "S", "S"))

			assert.Equal(t, http.StatusInternalServerError, rec.Code)
			assert.Empty(t, rec.Body.String())
			assert.Empty(t, rec.Header().Get("Location"))
			assert.Empty(t, tt.minter.uids)
			assert.Equal(t, 0, store.Len())
		})
	}
}

func TestCallbackHandler_StoreUnavailable(t *testing.T) {
	p := &mockProvider{}
	token := &oauth2.Token{AccessToken: "T1"}
	p.On("ExchangeAuthorizationCode", mock.Anything, "c").Return(token, nil)
	p.On("FetchProfile", mock.Anything, token).Return(&provider.Profile{UserID: "u1"}, nil)

	store := failingStore{err: autherr.StoreUnavailable("put", errors.New("connection refused"))}
	h := newTestAuthHandlers(p, &fakeMinter{}, store)

	rec := httptest.NewRecorder()
	h.CallbackHandler(rec, callbackRequest("c", "S", "S"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, rec.Header().Get("Location"))
}

func TestFirebaseTokenHandler(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		stored      map[string]string
		wantStatus  int
		wantToken   string
	}{
		{
			name:        "json body",
			contentType: "application/json",
			body:        `{"code":"k1"}`,
			stored:      map[string]string{"k1": "tok"},
			wantStatus:  http.StatusOK,
			wantToken:   "tok",
		},
		{
			name:        "form body",
			contentType: "application/x-www-form-urlencoded",
			body:        "code=k1",
			stored:      map[string]string{"k1": "tok"},
			wantStatus:  http.StatusOK,
			wantToken:   "tok",
		},
		{
			name:        "unknown key",
			contentType: "application/json",
			body:        `{"code":"unknown-key"}`,
			wantStatus:  http.StatusInternalServerError,
		},
		{
			name:        "no body",
			contentType: "application/json",
			body:        "",
			wantStatus:  http.StatusInternalServerError,
		},
		{
			name:        "code not a string",
			contentType: "application/json",
			body:        `{"code":42}`,
			stored:      map[string]string{"42": "tok"},
			wantStatus:  http.StatusInternalServerError,
		},
		{
			name:        "empty code",
			contentType: "application/json",
			body:        `{"code":""}`,
			wantStatus:  http.StatusInternalServerError,
		},
		{
			name:        "invalid json",
			contentType: "application/json",
			body:        `{"code":`,
			wantStatus:  http.StatusInternalServerError,
		},
		{
			name:        "empty form code",
			contentType: "application/x-www-form-urlencoded",
			body:        "code=",
			wantStatus:  http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := exchange.NewMemoryStore(time.Minute)
			for k, v := range tt.stored {
				require.NoError(t, store.Put(context.Background(), k, v))
			}
			h := newTestAuthHandlers(&mockProvider{}, &fakeMinter{}, store)

			req := httptest.NewRequest(http.MethodPost, "/auth/firebasetoken", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			rec := httptest.NewRecorder()
			h.FirebaseTokenHandler(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus != http.StatusOK {
				assert.Empty(t, rec.Body.String())
				return
			}
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantToken, body["token"])
			assert.Equal(t, 0, store.Len())
		})
	}
}

func TestFirebaseTokenHandler_StoreUnavailable(t *testing.T) {
	store := failingStore{err: autherr.StoreUnavailable("consume", errors.New("deadline exceeded"))}
	h := newTestAuthHandlers(&mockProvider{}, &fakeMinter{}, store)

	rec := httptest.NewRecorder()
	h.FirebaseTokenHandler(rec, exchangeRequest(`{"code":"k1"}`))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestFirebaseTokenHandler_ConcurrentRedeem(t *testing.T) {
	store := exchange.NewMemoryStore(time.Minute)
	require.NoError(t, store.Put(context.Background(), "k1", "tok"))
	h := newTestAuthHandlers(&mockProvider{}, &fakeMinter{}, store)

	const n = 8
	codes := make(chan int, n)
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := httptest.NewRecorder()
			h.FirebaseTokenHandler(rec, exchangeRequest(`{"code":"k1"}`))
			codes <- rec.Code
		}()
	}
	wg.Wait()
	close(codes)

	ok := 0
	for code := range codes {
		if code == http.StatusOK {
			ok++
		}
	}
	assert.Equal(t, 1, ok)
}

func TestFrontendRedirect(t *testing.T) {
	h := NewAuthHandlers(&mockProvider{}, &fakeMinter{}, exchange.NewMemoryStore(0), config.FrontendConfig{
		ProdOrigin: "https://app.example.com/",
	})

	assert.Equal(t, "https://app.example.com/logining?uid=abc", h.frontendRedirect(EnvProd, "abc"))
	assert.Equal(t, "https://app.example.com/logining?uid=abc", h.frontendRedirect(EnvDev, "abc"), "dev falls back to prod without devOrigin")
	assert.Equal(t, "https://app.example.com/logining?uid=a%2Bb", h.frontendRedirect("", "a+b"))
}
