package env

import (
	"os"
	"strings"
)

// Prefix namespaces every process-level variable.
const Prefix = "NOTIFYSTORE_"

// Get returns the prefixed variable, then the bare one, then fallback.
func Get(key, fallback string) string {
	key = strings.TrimPrefix(key, Prefix)
	if val := os.Getenv(Prefix + key); val != "" {
		return val
	}
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
