// Package provider talks to the third-party OAuth2 provider: it builds the
// authorization URL, redeems authorization codes and fetches the user profile.
package provider

import (
	"context"
	"fmt"

	"github.com/dgellow/authbridge/internal/config"
	"golang.org/x/oauth2"
)

// Profile is the subset of the provider's user profile the flow relies on.
// Only UserID derives the downstream identity.
type Profile struct {
	UserID     string         `json:"user_id"`
	Email      string         `json:"email"`
	Name       string         `json:"name"`
	PostalCode string         `json:"postal_code,omitempty"`
	Extra      map[string]any `json:"-"`
}

// Client abstracts the provider operations used by the login flow.
type Client interface {
	// Name is the provider prefix used in downstream identities (e.g. "amazon").
	Name() string

	// AuthURL generates the authorization URL carrying state.
	AuthURL(state string) string

	// ExchangeAuthorizationCode redeems code for an access token. The code
	// is sent exactly once; there is no retry.
	ExchangeAuthorizationCode(ctx context.Context, code string) (*oauth2.Token, error)

	// FetchProfile retrieves the profile of the token's owner.
	FetchProfile(ctx context.Context, token *oauth2.Token) (*Profile, error)
}

// NewClient creates a Client based on the ProviderConfig.
func NewClient(cfg config.ProviderConfig) (Client, error) {
	switch cfg.Name {
	case "amazon":
		return NewAmazonClient(AmazonOptions{
			ClientID:     cfg.ClientID,
			ClientSecret: string(cfg.ClientSecret),
			RedirectURI:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			AuthURL:      cfg.AuthURL,
			TokenURL:     cfg.TokenURL,
			ProfileURL:   cfg.ProfileURL,
			Timeout:      cfg.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Name)
	}
}
