// Package identity mints Firebase custom tokens from a service account and
// verifies Firebase ID tokens presented back by clients.
package identity

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgellow/authbridge/internal/config"
	"github.com/golang-jwt/jwt/v5"
)

// FirebaseAudience is the fixed audience of Firebase custom tokens.
const FirebaseAudience = "https://identitytoolkit.googleapis.com/google.identity.identitytoolkit.v1.IdentityToolkit"

// Firebase rejects custom tokens living longer than an hour and uids longer
// than 128 characters.
const (
	MaxTokenTTL  = time.Hour
	maxUIDLength = 128
)

// ServiceAccount is the subset of a Google service account key file needed
// to sign custom tokens.
type ServiceAccount struct {
	ProjectID    string `json:"project_id"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	ClientEmail  string `json:"client_email"`
}

// LoadServiceAccount reads a service account key file.
func LoadServiceAccount(path string) (*ServiceAccount, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading service account file: %w", err)
	}
	var sa ServiceAccount
	if err := json.Unmarshal(data, &sa); err != nil {
		return nil, fmt.Errorf("parsing service account file: %w", err)
	}
	if sa.ClientEmail == "" || sa.PrivateKey == "" {
		return nil, errors.New("service account file is missing client_email or private_key")
	}
	return &sa, nil
}

// customTokenClaims is the payload Firebase Auth expects from
// signInWithCustomToken.
type customTokenClaims struct {
	jwt.RegisteredClaims
	UID    string         `json:"uid"`
	Claims map[string]any `json:"claims,omitempty"`
}

// Minter signs Firebase custom tokens with a service account key (RS256).
type Minter struct {
	privateKey  *rsa.PrivateKey
	keyID       string
	clientEmail string
	ttl         time.Duration
	now         func() time.Time
}

// NewMinter creates a Minter from a service account. A ttl of zero or above
// one hour is clamped to one hour.
func NewMinter(sa ServiceAccount, ttl time.Duration) (*Minter, error) {
	if sa.ClientEmail == "" {
		return nil, errors.New("service account client email is required")
	}
	key, err := parseRSAPrivateKey([]byte(sa.PrivateKey))
	if err != nil {
		return nil, err
	}
	if ttl <= 0 || ttl > MaxTokenTTL {
		ttl = MaxTokenTTL
	}
	return &Minter{
		privateKey:  key,
		keyID:       sa.PrivateKeyID,
		clientEmail: sa.ClientEmail,
		ttl:         ttl,
		now:         time.Now,
	}, nil
}

// NewMinterFromConfig builds a Minter from either a service account file or
// inline credentials.
func NewMinterFromConfig(cfg config.FirebaseConfig) (*Minter, error) {
	if cfg.ServiceAccountFile != "" {
		sa, err := LoadServiceAccount(cfg.ServiceAccountFile)
		if err != nil {
			return nil, err
		}
		return NewMinter(*sa, cfg.TokenTTL)
	}
	return NewMinter(ServiceAccount{
		ProjectID:    cfg.ProjectID,
		PrivateKeyID: cfg.PrivateKeyID,
		PrivateKey:   string(cfg.PrivateKey),
		ClientEmail:  cfg.ClientEmail,
	}, cfg.TokenTTL)
}

// UID derives the downstream identity of a provider user.
func UID(provider, userID string) string {
	return provider + ":" + userID
}

// MintCustomToken returns a signed custom token for uid. Extra claims become
// the token's developer claims.
func (m *Minter) MintCustomToken(uid string, claims map[string]any) (string, error) {
	if uid == "" {
		return "", errors.New("uid must not be empty")
	}
	if len(uid) > maxUIDLength {
		return "", fmt.Errorf("uid must not exceed %d characters (got %d)", maxUIDLength, len(uid))
	}

	now := m.now()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, customTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.clientEmail,
			Subject:   m.clientEmail,
			Audience:  jwt.ClaimStrings{FirebaseAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
		UID:    uid,
		Claims: claims,
	})
	if m.keyID != "" {
		token.Header["kid"] = m.keyID
	}

	signed, err := token.SignedString(m.privateKey)
	if err != nil {
		return "", fmt.Errorf("signing custom token: %w", err)
	}
	return signed, nil
}

// parseRSAPrivateKey accepts PKCS#8 (service account files) and PKCS#1 PEM.
func parseRSAPrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("failed to decode private key PEM block")
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parsing PKCS#1 private key: %w", err)
		}
		return key, nil
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parsing PKCS#8 private key: %w", err)
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("PKCS#8 key is not an RSA key")
		}
		return rsaKey, nil
	default:
		return nil, fmt.Errorf("unsupported private key PEM type: %s", block.Type)
	}
}
