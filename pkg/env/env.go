// Package env reads process settings that are needed before, or outside of,
// the envconfig-driven config.Load.
package env

import (
	"os"
	"strings"
)

// Prefix namespaces this service's variables.
const Prefix = "CORPORATEPRANKS_"

// Get returns Prefix+key, then key, then fallback. Blank values count as unset.
func Get(key, fallback string) string {
	for _, name := range []string{Prefix + key, key} {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	return fallback
}
