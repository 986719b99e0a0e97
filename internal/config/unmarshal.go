package config

import (
	"encoding/json"
	"fmt"
	"time"
)

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", field)
	}
	return d, nil
}

func parseOptionalValue(field string, raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	parsed, err := ParseConfigValue(raw)
	if err != nil {
		return "", fmt.Errorf("parsing %s: %w", field, err)
	}
	return parsed.value, nil
}

// UnmarshalJSON implements custom unmarshaling for ProviderConfig
func (p *ProviderConfig) UnmarshalJSON(data []byte) error {
	type rawProvider struct {
		Name         string          `json:"name"`
		ClientID     json.RawMessage `json:"clientId"`
		ClientSecret json.RawMessage `json:"clientSecret"`
		RedirectURI  json.RawMessage `json:"redirectUri"`
		Scopes       []string        `json:"scopes"`
		AuthURL      string          `json:"authUrl"`
		TokenURL     string          `json:"tokenUrl"`
		ProfileURL   string          `json:"profileUrl"`
		Timeout      string          `json:"timeout"`
	}

	var raw rawProvider
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	p.Name = raw.Name
	p.Scopes = raw.Scopes
	p.AuthURL = raw.AuthURL
	p.TokenURL = raw.TokenURL
	p.ProfileURL = raw.ProfileURL

	var err error
	if p.Timeout, err = parseDuration("timeout", raw.Timeout); err != nil {
		return err
	}
	if p.ClientID, err = parseOptionalValue("clientId", raw.ClientID); err != nil {
		return err
	}
	secret, err := parseOptionalValue("clientSecret", raw.ClientSecret)
	if err != nil {
		return err
	}
	p.ClientSecret = Secret(secret)
	if p.RedirectURI, err = parseOptionalValue("redirectUri", raw.RedirectURI); err != nil {
		return err
	}
	return nil
}

// UnmarshalJSON implements custom unmarshaling for FirebaseConfig
func (f *FirebaseConfig) UnmarshalJSON(data []byte) error {
	type rawFirebase struct {
		ProjectID          json.RawMessage `json:"projectId"`
		ServiceAccountFile json.RawMessage `json:"serviceAccountFile"`
		ClientEmail        json.RawMessage `json:"clientEmail"`
		PrivateKeyID       json.RawMessage `json:"privateKeyId"`
		PrivateKey         json.RawMessage `json:"privateKey"`
		TokenTTL           string          `json:"tokenTtl"`
	}

	var raw rawFirebase
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var err error
	if f.ProjectID, err = parseOptionalValue("projectId", raw.ProjectID); err != nil {
		return err
	}
	if f.ServiceAccountFile, err = parseOptionalValue("serviceAccountFile", raw.ServiceAccountFile); err != nil {
		return err
	}
	if f.ClientEmail, err = parseOptionalValue("clientEmail", raw.ClientEmail); err != nil {
		return err
	}
	if f.PrivateKeyID, err = parseOptionalValue("privateKeyId", raw.PrivateKeyID); err != nil {
		return err
	}
	key, err := parseOptionalValue("privateKey", raw.PrivateKey)
	if err != nil {
		return err
	}
	f.PrivateKey = Secret(key)
	if f.TokenTTL, err = parseDuration("tokenTtl", raw.TokenTTL); err != nil {
		return err
	}
	return nil
}

// UnmarshalJSON implements custom unmarshaling for ExchangeConfig
func (e *ExchangeConfig) UnmarshalJSON(data []byte) error {
	type rawExchange struct {
		Storage           StorageKind     `json:"storage"`
		FirestoreDatabase string          `json:"firestoreDatabase"`
		Collection        string          `json:"collection"`
		SQLitePath        json.RawMessage `json:"sqlitePath"`
		TTL               string          `json:"ttl"`
		CleanupInterval   string          `json:"cleanupInterval"`
		EncryptionKey     json.RawMessage `json:"encryptionKey"`
	}

	var raw rawExchange
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	e.Storage = raw.Storage
	e.FirestoreDatabase = raw.FirestoreDatabase
	e.Collection = raw.Collection

	var err error
	if e.SQLitePath, err = parseOptionalValue("sqlitePath", raw.SQLitePath); err != nil {
		return err
	}
	if e.TTL, err = parseDuration("ttl", raw.TTL); err != nil {
		return err
	}
	if e.CleanupInterval, err = parseDuration("cleanupInterval", raw.CleanupInterval); err != nil {
		return err
	}
	key, err := parseOptionalValue("encryptionKey", raw.EncryptionKey)
	if err != nil {
		return err
	}
	e.EncryptionKey = Secret(key)
	return nil
}

// applyDefaults fills fields the config file left empty
func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Provider.Name == "" {
		c.Provider.Name = DefaultProviderName
	}
	if len(c.Provider.Scopes) == 0 {
		c.Provider.Scopes = []string{"profile"}
	}
	if c.Provider.Timeout == 0 {
		c.Provider.Timeout = DefaultProviderTimeout
	}
	if c.Frontend.LoginPath == "" {
		c.Frontend.LoginPath = DefaultLoginPath
	}
	if c.Firebase.TokenTTL == 0 {
		c.Firebase.TokenTTL = DefaultCustomTokenTTL
	}
	if c.Exchange.Storage == "" {
		c.Exchange.Storage = StorageMemory
	}
	if c.Exchange.Collection == "" {
		c.Exchange.Collection = DefaultTokenCollection
	}
	if c.Exchange.TTL == 0 {
		c.Exchange.TTL = DefaultExchangeTTL
	}
	if c.Exchange.CleanupInterval == 0 {
		c.Exchange.CleanupInterval = DefaultCleanupInterval
	}
	if c.Region.Collection == "" {
		c.Region.Collection = DefaultRegionCollection
	}
}
