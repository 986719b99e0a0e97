package envutil

import (
	"os"
	"strings"
)

// IsDev reports whether AUTHBRIDGE_ENV selects development mode, where
// cookies are issued without the Secure flag so plain-http localhost works
func IsDev() bool {
	env := strings.ToLower(os.Getenv("AUTHBRIDGE_ENV"))
	return env == "development" || env == "dev"
}
