package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/dgellow/authbridge/internal/log"
)

// SupportedVersion is the config schema version this build understands
const SupportedVersion = "v1"

// Load loads and processes the config with immediate env var resolution
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes raw config bytes, resolves env references, applies defaults
// and validates the result
func Parse(data []byte) (Config, error) {
	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return Config{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	version, ok := rawConfig["version"].(string)
	if !ok {
		return Config{}, fmt.Errorf("config version is required")
	}
	if !strings.HasPrefix(version, SupportedVersion) {
		return Config{}, fmt.Errorf("unsupported config version: %s", version)
	}

	if err := validateRawConfig(rawConfig); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	config.applyDefaults()

	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// secretFields are the paths whose values must come from the environment
var secretFields = []struct {
	section string
	name    string
}{
	{"provider", "clientSecret"},
	{"firebase", "privateKey"},
	{"exchange", "encryptionKey"},
}

// validateRawConfig rejects secrets written inline before env resolution
func validateRawConfig(rawConfig map[string]any) error {
	for _, f := range secretFields {
		section, ok := rawConfig[f.section].(map[string]any)
		if !ok {
			continue
		}
		value, exists := section[f.name]
		if !exists {
			continue
		}
		if _, isString := value.(string); isString {
			return fmt.Errorf("%s.%s must use environment variable reference for security", f.section, f.name)
		}
		if refMap, isMap := value.(map[string]any); isMap {
			if _, hasEnv := refMap["$env"]; !hasEnv {
				return fmt.Errorf("%s.%s must use {\"$env\": \"VAR_NAME\"} format", f.section, f.name)
			}
		}
	}
	return nil
}

// ValidateConfig validates the resolved configuration
func ValidateConfig(config *Config) error {
	if config.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if err := validateProvider(&config.Provider); err != nil {
		return fmt.Errorf("provider config: %w", err)
	}
	if err := validateFrontend(&config.Frontend); err != nil {
		return fmt.Errorf("frontend config: %w", err)
	}
	if err := validateFirebase(&config.Firebase); err != nil {
		return fmt.Errorf("firebase config: %w", err)
	}
	if err := validateExchange(&config.Exchange, config.Firebase.ProjectID); err != nil {
		return fmt.Errorf("exchange config: %w", err)
	}
	return nil
}

func validateProvider(p *ProviderConfig) error {
	if p.Name != DefaultProviderName {
		return fmt.Errorf("unsupported provider %q", p.Name)
	}
	if p.ClientID == "" {
		return fmt.Errorf("clientId is required")
	}
	if p.ClientSecret == "" {
		return fmt.Errorf("clientSecret is required")
	}
	if err := validateAbsoluteURL("redirectUri", p.RedirectURI); err != nil {
		return err
	}
	for _, field := range []struct{ name, value string }{
		{"authUrl", p.AuthURL},
		{"tokenUrl", p.TokenURL},
		{"profileUrl", p.ProfileURL},
	} {
		if field.value == "" {
			continue
		}
		if err := validateAbsoluteURL(field.name, field.value); err != nil {
			return err
		}
	}
	return nil
}

func validateFrontend(f *FrontendConfig) error {
	if err := validateAbsoluteURL("prodOrigin", f.ProdOrigin); err != nil {
		return err
	}
	if f.DevOrigin == "" {
		log.LogWarn("frontend.devOrigin is not set, logins started from localhost will land on prodOrigin")
		return nil
	}
	return validateAbsoluteURL("devOrigin", f.DevOrigin)
}

func validateFirebase(f *FirebaseConfig) error {
	if f.ProjectID == "" {
		return fmt.Errorf("projectId is required")
	}
	if f.ServiceAccountFile == "" && (f.ClientEmail == "" || f.PrivateKey == "") {
		return fmt.Errorf("either serviceAccountFile or clientEmail and privateKey are required")
	}
	if f.ServiceAccountFile != "" && f.PrivateKey != "" {
		return fmt.Errorf("serviceAccountFile and privateKey are mutually exclusive")
	}
	if f.TokenTTL > DefaultCustomTokenTTL {
		return fmt.Errorf("tokenTtl must not exceed %s (got %s)", DefaultCustomTokenTTL, f.TokenTTL)
	}
	return nil
}

func validateExchange(e *ExchangeConfig, projectID string) error {
	switch e.Storage {
	case StorageMemory:
	case StorageFirestore:
		if projectID == "" {
			return fmt.Errorf("firebase.projectId is required when using firestore storage")
		}
	case StorageSQLite:
		if e.SQLitePath == "" {
			return fmt.Errorf("sqlitePath is required when using sqlite storage")
		}
	default:
		return fmt.Errorf("unknown storage %q (use memory, firestore or sqlite)", e.Storage)
	}

	if e.Storage != StorageMemory && len(e.EncryptionKey) != 32 {
		return fmt.Errorf("encryptionKey must be exactly 32 characters (got %d). Generate with: openssl rand -base64 32 | head -c 32", len(e.EncryptionKey))
	}
	if e.CleanupInterval > e.TTL {
		log.LogWarnWithFields("config", "Exchange cleanup interval is greater than exchange TTL", map[string]any{
			"ttl":             e.TTL.String(),
			"cleanupInterval": e.CleanupInterval.String(),
		})
	}
	return nil
}

func validateAbsoluteURL(field, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must be an http(s) URL, got %q", field, value)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host, got %q", field, value)
	}
	return nil
}
