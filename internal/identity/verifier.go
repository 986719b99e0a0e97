package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/dgellow/authbridge/internal/autherr"
)

// FirebaseJWKSURL serves the public keys Firebase signs ID tokens with.
const FirebaseJWKSURL = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"

// FirebaseIssuer returns the issuer of ID tokens for a Firebase project.
func FirebaseIssuer(projectID string) string {
	return "https://securetoken.google.com/" + projectID
}

// IDToken is a verified Firebase ID token.
type IDToken struct {
	UID          string
	Email        string
	SignInMethod string
}

type firebaseClaims struct {
	Email    string `json:"email"`
	Firebase struct {
		SignInProvider string `json:"sign_in_provider"`
	} `json:"firebase"`
}

// Verifier checks Firebase ID tokens for one project.
type Verifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewVerifier creates a Verifier fetching signing keys from Google. The key
// set is cached and refreshed by go-oidc.
func NewVerifier(ctx context.Context, projectID string) *Verifier {
	return NewVerifierWithKeySet(projectID, oidc.NewRemoteKeySet(ctx, FirebaseJWKSURL))
}

// NewVerifierWithKeySet creates a Verifier over an explicit key set.
func NewVerifierWithKeySet(projectID string, keySet oidc.KeySet) *Verifier {
	return &Verifier{
		verifier: oidc.NewVerifier(FirebaseIssuer(projectID), keySet, &oidc.Config{
			ClientID:             projectID,
			SupportedSigningAlgs: []string{oidc.RS256},
		}),
	}
}

// Verify validates raw and returns its identity. An optional "Bearer "
// prefix is accepted.
func (v *Verifier) Verify(ctx context.Context, raw string) (*IDToken, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		raw = strings.TrimSpace(raw[7:])
	}
	if raw == "" {
		return nil, fmt.Errorf("%w: missing ID token", autherr.ErrUnauthenticated)
	}

	tok, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", autherr.ErrUnauthenticated, err)
	}

	var claims firebaseClaims
	if err := tok.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: decoding claims: %w", autherr.ErrUnauthenticated, err)
	}
	if tok.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", autherr.ErrUnauthenticated)
	}

	return &IDToken{
		UID:          tok.Subject,
		Email:        claims.Email,
		SignInMethod: claims.Firebase.SignInProvider,
	}, nil
}
