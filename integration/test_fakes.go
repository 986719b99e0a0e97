package integration

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
)

// Values the fake provider hands out
const (
	fakeAuthCode    = "test-auth-code"
	fakeAccessToken = "test-access-token"
	fakeUserID      = "amzn1.account.TESTUSER"
)

// FakeAmazonServer provides a fake Login with Amazon server for testing
type FakeAmazonServer struct {
	*httptest.Server
	tokenCalls   atomic.Int32
	profileCalls atomic.Int32
}

// NewFakeAmazonServer starts a fake provider with /auth, /token and
// /user/profile endpoints
func NewFakeAmazonServer() *FakeAmazonServer {
	f := &FakeAmazonServer{}
	mux := http.NewServeMux()

	mux.HandleFunc("/auth", func(w http.ResponseWriter, r *http.Request) {
		redirectURI := r.URL.Query().Get("redirect_uri")
		state := r.URL.Query().Get("state")
		http.Redirect(w, r, redirectURI+"?code="+fakeAuthCode+"&scope=profile&state="+state, http.StatusFound)
	})

	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if r.FormValue("code") != fakeAuthCode || r.FormValue("grant_type") != "authorization_code" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error":             "invalid_grant",
				"error_description": "The authorization code is invalid or expired",
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  fakeAccessToken,
			"refresh_token": "test-refresh-token",
			"token_type":    "bearer",
			"expires_in":    3600,
		})
	})

	mux.HandleFunc("/user/profile", func(w http.ResponseWriter, r *http.Request) {
		f.profileCalls.Add(1)
		if r.Header.Get("Authorization") != "Bearer "+fakeAccessToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"user_id":     fakeUserID,
			"email":       "test@example.com",
			"name":        "Test User",
			"postal_code": "98109",
		})
	})

	f.Server = httptest.NewServer(mux)
	return f
}
