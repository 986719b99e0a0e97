package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// StorageKind selects the exchange store backend
type StorageKind string

const (
	StorageMemory    StorageKind = "memory"
	StorageFirestore StorageKind = "firestore"
	StorageSQLite    StorageKind = "sqlite"
)

// Defaults applied when the config leaves a field empty
const (
	DefaultProviderName     = "amazon"
	DefaultProviderTimeout  = 15 * time.Second
	DefaultExchangeTTL      = 5 * time.Minute
	DefaultCleanupInterval  = time.Minute
	DefaultTokenCollection  = "firebaseTokens"
	DefaultRegionCollection = "regions"
	DefaultLoginPath        = "/logining"
	DefaultCustomTokenTTL   = time.Hour
)

// ServerConfig controls the HTTP listener
type ServerConfig struct {
	Addr           string   `json:"addr"`
	AllowedOrigins []string `json:"allowedOrigins"`
}

// ProviderConfig is the third-party OAuth2 client registration, resolved
type ProviderConfig struct {
	Name         string        `json:"name"`
	ClientID     string        `json:"clientId"`
	ClientSecret Secret        `json:"clientSecret"`
	RedirectURI  string        `json:"redirectUri"`
	Scopes       []string      `json:"scopes"`
	AuthURL      string        `json:"authUrl,omitempty"`
	TokenURL     string        `json:"tokenUrl,omitempty"`
	ProfileURL   string        `json:"profileUrl,omitempty"`
	Timeout      time.Duration `json:"timeout"`
}

// FrontendConfig names where the browser lands after a successful login.
// DevOrigin is used when the login was started from a localhost page.
type FrontendConfig struct {
	ProdOrigin string `json:"prodOrigin"`
	DevOrigin  string `json:"devOrigin"`
	LoginPath  string `json:"loginPath"`
}

// FirebaseConfig holds the service account used to mint custom tokens and the
// project whose ID tokens are accepted
type FirebaseConfig struct {
	ProjectID          string        `json:"projectId"`
	ServiceAccountFile string        `json:"serviceAccountFile,omitempty"`
	ClientEmail        string        `json:"clientEmail,omitempty"`
	PrivateKeyID       string        `json:"privateKeyId,omitempty"`
	PrivateKey         Secret        `json:"privateKey,omitempty"`
	TokenTTL           time.Duration `json:"tokenTtl"`
}

// ExchangeConfig selects and tunes the one-time exchange store
type ExchangeConfig struct {
	Storage           StorageKind   `json:"storage"`
	FirestoreDatabase string        `json:"firestoreDatabase,omitempty"`
	Collection        string        `json:"collection,omitempty"`
	SQLitePath        string        `json:"sqlitePath,omitempty"`
	TTL               time.Duration `json:"ttl"`
	CleanupInterval   time.Duration `json:"cleanupInterval"`
	EncryptionKey     Secret        `json:"encryptionKey"`
}

// RegionConfig controls where /region/regist writes
type RegionConfig struct {
	Collection string `json:"collection"`
}

// Config represents the config structure with resolved values
type Config struct {
	Server   ServerConfig   `json:"server"`
	Provider ProviderConfig `json:"provider"`
	Frontend FrontendConfig `json:"frontend"`
	Firebase FirebaseConfig `json:"firebase"`
	Exchange ExchangeConfig `json:"exchange"`
	Region   RegionConfig   `json:"region"`
}

// RawConfigValue is a string or an {"$env": "NAME"} reference, only used
// during parsing
type RawConfigValue struct {
	value string
	isEnv bool
}

// ParseConfigValue parses a JSON value that could be a string or env reference
func ParseConfigValue(raw json.RawMessage) (*RawConfigValue, error) {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return &RawConfigValue{value: str}, nil
	}

	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return nil, fmt.Errorf("config value must be string or reference object")
	}

	envVar, ok := ref["$env"]
	if !ok {
		return nil, fmt.Errorf("unknown reference type in config value")
	}
	value := os.Getenv(envVar)
	if value == "" {
		return nil, fmt.Errorf("environment variable %s not set", envVar)
	}
	// Strip surrounding quotes if present (only matching pairs)
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return &RawConfigValue{value: value, isEnv: true}, nil
}
