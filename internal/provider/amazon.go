package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dgellow/authbridge/internal/autherr"
	"github.com/dgellow/authbridge/internal/ioutil"
	"github.com/dgellow/authbridge/internal/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/amazon"
)

const (
	// DefaultProfileURL is Login with Amazon's customer profile endpoint.
	DefaultProfileURL = "https://api.amazon.com/user/profile"

	defaultTimeout   = 15 * time.Second
	maxResponseBytes = 1 << 20
	payloadPreview   = 512
)

// AmazonOptions configures an AmazonClient. Empty endpoint URLs fall back to
// the public Login with Amazon endpoints.
type AmazonOptions struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	AuthURL      string
	TokenURL     string
	ProfileURL   string
	Timeout      time.Duration
	HTTPClient   *http.Client
}

// AmazonClient implements Client for Login with Amazon.
type AmazonClient struct {
	config     oauth2.Config
	profileURL string
	timeout    time.Duration
	httpClient *http.Client
}

// tokenResponse is the token endpoint answer. Pointer and raw fields tell a
// missing or null field apart from an empty one. expires_in may arrive as a
// JSON number or a numeric string.
type tokenResponse struct {
	AccessToken  string          `json:"access_token"`
	TokenType    *string         `json:"token_type"`
	ExpiresIn    json.RawMessage `json:"expires_in"`
	RefreshToken *string         `json:"refresh_token"`
}

// NewAmazonClient creates a new Login with Amazon client.
func NewAmazonClient(opts AmazonOptions) *AmazonClient {
	endpoint := amazon.Endpoint
	if opts.AuthURL != "" {
		endpoint.AuthURL = opts.AuthURL
	}
	if opts.TokenURL != "" {
		endpoint.TokenURL = opts.TokenURL
	}

	scopes := opts.Scopes
	if len(scopes) == 0 {
		scopes = []string{"profile"}
	}
	profileURL := opts.ProfileURL
	if profileURL == "" {
		profileURL = DefaultProfileURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	return &AmazonClient{
		config: oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			RedirectURL:  opts.RedirectURI,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
		profileURL: profileURL,
		timeout:    timeout,
		httpClient: httpClient,
	}
}

// Name returns the provider prefix.
func (c *AmazonClient) Name() string {
	return "amazon"
}

// AuthURL generates the authorization URL.
func (c *AmazonClient) AuthURL(state string) string {
	return c.config.AuthCodeURL(state)
}

// ExchangeAuthorizationCode posts the code to the token endpoint and requires
// access_token, token_type, expires_in and refresh_token in the answer.
func (c *AmazonClient) ExchangeAuthorizationCode(ctx context.Context, code string) (*oauth2.Token, error) {
	const op = "token exchange"

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {c.config.RedirectURL},
		"client_id":     {c.config.ClientID},
		"client_secret": {c.config.ClientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	body, status, err := c.do(req)
	if err != nil {
		return nil, &autherr.ProviderError{Kind: autherr.ErrProviderUnreachable, Op: op, Err: err}
	}
	if status < 200 || status > 299 {
		return nil, &autherr.ProviderError{
			Kind:       autherr.ErrProviderUnreachable,
			Op:         op,
			StatusCode: status,
			Payload:    redactPayload(body),
		}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, &autherr.ProviderError{
			Kind:       autherr.ErrProviderResponseMalformed,
			Op:         op,
			StatusCode: status,
			Payload:    redactPayload(body),
			Err:        err,
		}
	}

	expiresIn, err := tr.check()
	if err != nil {
		return nil, &autherr.ProviderError{
			Kind:       autherr.ErrProviderResponseMalformed,
			Op:         op,
			StatusCode: status,
			Payload:    redactPayload(body),
			Err:        err,
		}
	}

	log.LogDebugWithFields("provider", "Authorization code redeemed", map[string]any{
		"provider":  c.Name(),
		"tokenType": *tr.TokenType,
		"expiresIn": expiresIn.String(),
	})

	return &oauth2.Token{
		AccessToken:  tr.AccessToken,
		TokenType:    *tr.TokenType,
		RefreshToken: *tr.RefreshToken,
		Expiry:       time.Now().Add(expiresIn),
	}, nil
}

// check requires every field to be present and non-null, with a non-empty
// access_token, and returns the token lifetime
func (tr *tokenResponse) check() (time.Duration, error) {
	var missing []string
	if tr.AccessToken == "" {
		missing = append(missing, "access_token")
	}
	if tr.TokenType == nil {
		missing = append(missing, "token_type")
	}
	if len(tr.ExpiresIn) == 0 || string(tr.ExpiresIn) == "null" {
		missing = append(missing, "expires_in")
	}
	if tr.RefreshToken == nil {
		missing = append(missing, "refresh_token")
	}
	if len(missing) > 0 {
		return 0, fmt.Errorf("missing fields: %s", strings.Join(missing, ", "))
	}

	// json.Number accepts both 3600 and "3600"
	var n json.Number
	if err := json.Unmarshal(tr.ExpiresIn, &n); err != nil {
		return 0, fmt.Errorf("expires_in is not a number: %s", tr.ExpiresIn)
	}
	secs, err := n.Int64()
	if err != nil || secs < 0 {
		return 0, fmt.Errorf("expires_in is not a whole number of seconds: %s", n)
	}
	return time.Duration(secs) * time.Second, nil
}

// FetchProfile fetches the user profile with the access token as bearer.
// The token is never refreshed.
func (c *AmazonClient) FetchProfile(ctx context.Context, token *oauth2.Token) (*Profile, error) {
	const op = "profile fetch"

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.profileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building profile request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, &autherr.ProviderError{Kind: autherr.ErrProviderUnreachable, Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := ioutil.ReadLimited(resp.Body, maxResponseBytes)
	if err != nil {
		return nil, &autherr.ProviderError{Kind: autherr.ErrProviderUnreachable, Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &autherr.ProviderError{
			Kind:       autherr.ErrProviderUnreachable,
			Op:         op,
			StatusCode: resp.StatusCode,
			Payload:    ioutil.Preview(body, payloadPreview),
		}
	}

	profile, err := parseProfile(body)
	if err != nil {
		return nil, &autherr.ProviderError{
			Kind:       autherr.ErrProviderResponseMalformed,
			Op:         op,
			StatusCode: resp.StatusCode,
			Payload:    ioutil.Preview(body, payloadPreview),
			Err:        err,
		}
	}
	return profile, nil
}

func (c *AmazonClient) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := ioutil.ReadLimited(resp.Body, maxResponseBytes)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func parseProfile(body []byte) (*Profile, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}

	profile := &Profile{Extra: map[string]any{}}
	var missing []string
	for _, f := range []struct {
		name     string
		dst      *string
		nonEmpty bool
	}{
		{"user_id", &profile.UserID, true},
		{"email", &profile.Email, false},
		{"name", &profile.Name, false},
	} {
		s, ok := raw[f.name].(string)
		if !ok || (f.nonEmpty && s == "") {
			missing = append(missing, f.name)
			continue
		}
		*f.dst = s
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing fields: %s", strings.Join(missing, ", "))
	}

	if pc, ok := raw["postal_code"].(string); ok {
		profile.PostalCode = pc
	}
	for k, v := range raw {
		switch k {
		case "user_id", "email", "name", "postal_code":
		default:
			profile.Extra[k] = v
		}
	}
	return profile, nil
}

// redactPayload keeps the shape of a token response for diagnostics while
// hiding credential values
func redactPayload(body []byte) string {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return ioutil.Preview(body, payloadPreview)
	}
	for _, k := range []string{"access_token", "refresh_token", "id_token"} {
		if _, ok := m[k]; ok {
			m[k] = "***"
		}
	}
	out, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return ioutil.Preview(out, payloadPreview)
}
