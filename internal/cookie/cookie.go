package cookie

import (
	"net/http"
	"time"

	"github.com/dgellow/authbridge/internal/envutil"
	"github.com/dgellow/authbridge/internal/log"
)

// Cookie names shared with the frontend
const (
	StateCookie       = "state"
	EnvironmentCookie = "environment"
)

// FlowMaxAge bounds how long a login attempt may take end to end
const FlowMaxAge = time.Hour

// Set writes a flow cookie scoped to the whole site. Cookies are Secure in
// every environment except AUTHBRIDGE_ENV=dev, where the bridge is served
// over plain http on localhost and browsers would drop Secure cookies.
func Set(w http.ResponseWriter, name, value string, maxAge time.Duration) {
	secure := !envutil.IsDev()
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(maxAge.Seconds()),
	})

	log.LogTraceWithFields("cookie", "Cookie set", map[string]any{
		"name":   name,
		"maxAge": maxAge.String(),
		"secure": secure,
	})
}

// SetState stores the anti-forgery state for the current login attempt
func SetState(w http.ResponseWriter, state string) {
	Set(w, StateCookie, state, FlowMaxAge)
}

// SetEnvironment stores the environment tag for the current login attempt
func SetEnvironment(w http.ResponseWriter, env string) {
	Set(w, EnvironmentCookie, env, FlowMaxAge)
}

// Get retrieves a cookie value from the request
func Get(r *http.Request, name string) (string, error) {
	c, err := r.Cookie(name)
	if err != nil {
		return "", err
	}
	return c.Value, nil
}

// GetState returns the anti-forgery state, or "" when the browser has none
func GetState(r *http.Request) string {
	v, _ := Get(r, StateCookie)
	return v
}

// GetEnvironment returns the environment tag, or "" when absent
func GetEnvironment(r *http.Request) string {
	v, _ := Get(r, EnvironmentCookie)
	return v
}
