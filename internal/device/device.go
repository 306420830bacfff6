// Package device resolves the per-installation identifier that credential keys
// are derived from.
//
// The identifier is resolved once per process: an explicit override if one was
// set, otherwise the platform's machine identifier. Resolution never fails; when
// nothing usable is found it degrades to DefaultIdentifier so keys stay stable.
package device

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// DefaultIdentifier is used when no platform identifier is available.
const DefaultIdentifier = "SN_DEFAULT_KEY"

var (
	mu       sync.Mutex
	override string

	identifier = sync.OnceValue(func() string {
		mu.Lock()
		o := override
		mu.Unlock()
		return resolve(o, platformID)
	})
)

// SetOverride pins the identifier instead of reading the platform one. It has
// no effect once Identifier has been called.
func SetOverride(id string) {
	mu.Lock()
	defer mu.Unlock()
	override = strings.TrimSpace(id)
}

// Identifier returns the installation identifier, resolving it on first use.
func Identifier() string {
	return identifier()
}

func resolve(override string, platform func() (string, error)) string {
	if override != "" {
		return override
	}
	raw, err := platform()
	if err != nil {
		slog.Debug("platform identifier unavailable, using default", "component", "device", "error", err)
		return DefaultIdentifier
	}
	id, ok := canonical(raw)
	if !ok {
		slog.Debug("platform identifier malformed, using default", "component", "device", "raw", raw)
		return DefaultIdentifier
	}
	return id
}

// canonical formats a UUID-like machine identifier the way vendor identifiers
// are presented: dashed, upper-case hex.
func canonical(raw string) (string, bool) {
	u, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil || u == uuid.Nil {
		return "", false
	}
	return strings.ToUpper(u.String()), true
}
