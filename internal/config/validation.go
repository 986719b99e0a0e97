package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
)

// ValidationResult holds validation errors and warnings
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// ValidationError represents a validation issue
type ValidationError struct {
	Path    string
	Message string
}

// IsValid returns true if there are no errors
func (v *ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

func (v *ValidationResult) addError(path, format string, args ...any) {
	v.Errors = append(v.Errors, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *ValidationResult) addWarning(path, format string, args ...any) {
	v.Warnings = append(v.Warnings, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

var bashStyleRegex = regexp.MustCompile(`\$\{?([A-Z_][A-Z0-9_]*)\}?`)

// ValidateFile validates a config file structure without requiring env vars
func ValidateFile(path string) (*ValidationResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return ValidateBytes(data), nil
}

// ValidateBytes is ValidateFile for config already in memory
func ValidateBytes(data []byte) *ValidationResult {
	result := &ValidationResult{}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		result.addError("", "invalid JSON: %v", err)
		return result
	}

	checkBashStyleSyntax(rawConfig, "", result)

	version, ok := rawConfig["version"].(string)
	if !ok {
		result.addError("version", "version field is required. Hint: Add \"version\": %q", SupportedVersion)
	} else if !strings.HasPrefix(version, SupportedVersion) {
		result.addError("version", "unsupported version '%s' - use '%s'", version, SupportedVersion)
	}

	validateProviderStructure(rawConfig, result)
	validateFrontendStructure(rawConfig, result)
	validateFirebaseStructure(rawConfig, result)
	validateExchangeStructure(rawConfig, result)

	return result
}

func section(rawConfig map[string]any, name string, result *ValidationResult) (map[string]any, bool) {
	s, ok := rawConfig[name].(map[string]any)
	if !ok {
		result.addError(name, "%s field is required and must be an object", name)
	}
	return s, ok
}

func validateProviderStructure(rawConfig map[string]any, result *ValidationResult) {
	provider, ok := section(rawConfig, "provider", result)
	if !ok {
		return
	}

	if name, ok := provider["name"].(string); ok && name != DefaultProviderName {
		result.addError("provider.name", "unknown provider '%s' - only '%s' is supported", name, DefaultProviderName)
	}
	for _, field := range []string{"clientId", "redirectUri"} {
		if _, ok := provider[field]; !ok {
			result.addError("provider."+field, "%s is required", field)
		}
	}
	if secret, ok := provider["clientSecret"]; !ok {
		result.addError("provider.clientSecret", "clientSecret is required. Hint: {\"$env\": \"AMAZON_CLIENT_SECRET\"}")
	} else if verr := validateEnvVarReference(secret, "clientSecret", "provider.clientSecret"); verr != nil {
		result.Errors = append(result.Errors, *verr)
	}
	validateDurationField(provider, "timeout", "provider.timeout", result)
}

func validateFrontendStructure(rawConfig map[string]any, result *ValidationResult) {
	frontend, ok := section(rawConfig, "frontend", result)
	if !ok {
		return
	}
	if _, ok := frontend["prodOrigin"]; !ok {
		result.addError("frontend.prodOrigin", "prodOrigin is required. Example: \"https://app.example.web.app\"")
	}
	if _, ok := frontend["devOrigin"]; !ok {
		result.addWarning("frontend.devOrigin", "devOrigin is not set - logins from localhost will land on prodOrigin")
	}
	if p, ok := frontend["loginPath"].(string); ok && !strings.HasPrefix(p, "/") {
		result.addError("frontend.loginPath", "loginPath must start with '/', got '%s'", p)
	}
}

func validateFirebaseStructure(rawConfig map[string]any, result *ValidationResult) {
	firebase, ok := section(rawConfig, "firebase", result)
	if !ok {
		return
	}
	if _, ok := firebase["projectId"]; !ok {
		result.addError("firebase.projectId", "projectId is required")
	}

	_, hasFile := firebase["serviceAccountFile"]
	key, hasKey := firebase["privateKey"]
	_, hasEmail := firebase["clientEmail"]
	switch {
	case hasFile && hasKey:
		result.addError("firebase", "serviceAccountFile and privateKey are mutually exclusive")
	case !hasFile && !(hasKey && hasEmail):
		result.addError("firebase", "either serviceAccountFile or clientEmail and privateKey are required")
	}
	if hasKey {
		if verr := validateEnvVarReference(key, "privateKey", "firebase.privateKey"); verr != nil {
			result.Errors = append(result.Errors, *verr)
		}
	}
	if d, ok := validateDurationField(firebase, "tokenTtl", "firebase.tokenTtl", result); ok && d > DefaultCustomTokenTTL {
		result.addError("firebase.tokenTtl", "tokenTtl must not exceed %s", DefaultCustomTokenTTL)
	}
}

func validateExchangeStructure(rawConfig map[string]any, result *ValidationResult) {
	exchange, ok := rawConfig["exchange"].(map[string]any)
	if !ok {
		return
	}

	storage, _ := exchange["storage"].(string)
	switch StorageKind(storage) {
	case "", StorageMemory:
		result.addWarning("exchange.storage", "memory storage does not survive restarts and is not shared between instances")
	case StorageFirestore:
	case StorageSQLite:
		if _, ok := exchange["sqlitePath"]; !ok {
			result.addError("exchange.sqlitePath", "sqlitePath is required when using sqlite storage")
		}
	default:
		result.addError("exchange.storage", "unknown storage '%s' - use memory, firestore or sqlite", storage)
	}

	key, hasKey := exchange["encryptionKey"]
	if storage != "" && StorageKind(storage) != StorageMemory && !hasKey {
		result.addError("exchange.encryptionKey", "encryptionKey is required when using %s storage. Hint: Must be exactly 32 bytes", storage)
	}
	if hasKey {
		if verr := validateEnvVarReference(key, "encryptionKey", "exchange.encryptionKey"); verr != nil {
			result.Errors = append(result.Errors, *verr)
		}
	}

	ttl, hasTTL := validateDurationField(exchange, "ttl", "exchange.ttl", result)
	interval, hasInterval := validateDurationField(exchange, "cleanupInterval", "exchange.cleanupInterval", result)
	if hasTTL && hasInterval && interval > ttl {
		result.addWarning("exchange.cleanupInterval", "cleanupInterval (%s) is greater than ttl (%s) - expired entries will linger", interval, ttl)
	}
}

// validateDurationField reports a parse error for m[field] and returns the
// parsed value when it is present and valid
func validateDurationField(m map[string]any, field, path string, result *ValidationResult) (time.Duration, bool) {
	raw, exists := m[field]
	if !exists {
		return 0, false
	}
	s, ok := raw.(string)
	if !ok {
		result.addError(path, "%s must be a duration string like \"5m\", not %T", field, raw)
		return 0, false
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		result.addError(path, "invalid duration '%s': %v", s, err)
		return 0, false
	}
	if d < 0 {
		result.addError(path, "%s must not be negative", field)
		return 0, false
	}
	return d, true
}

func validateEnvVarReference(value any, fieldName, path string) *ValidationError {
	switch v := value.(type) {
	case string:
		if matches := bashStyleRegex.FindStringSubmatch(v); len(matches) > 1 {
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead", v, matches[1]),
			}
		}
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must use environment variable reference {\"$env\": \"YOUR_ENV_VAR\"} instead of plain text. Hint: This keeps secrets out of config files", fieldName),
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; !hasEnv {
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("%s must use {\"$env\": \"YOUR_ENV_VAR\"} format", fieldName),
			}
		}
		return nil
	default:
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must be an environment variable reference {\"$env\": \"YOUR_ENV_VAR\"}, not %T", fieldName, value),
		}
	}
}

func checkBashStyleSyntax(value any, path string, result *ValidationResult) {
	switch v := value.(type) {
	case string:
		for _, match := range bashStyleRegex.FindAllStringSubmatch(v, -1) {
			result.addWarning(path, "found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead", match[0], match[1])
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; hasEnv {
			return
		}
		for key, val := range v {
			newPath := key
			if path != "" {
				newPath = path + "." + key
			}
			checkBashStyleSyntax(val, newPath, result)
		}
	case []any:
		for i, item := range v {
			checkBashStyleSyntax(item, fmt.Sprintf("%s[%d]", path, i), result)
		}
	}
}
