package featureflags

import (
	"os"
	"sort"
	"strings"
	"sync"
)

var (
	mu    sync.RWMutex
	known = map[string]struct{}{}
)

// Register records a flag name so it shows up in Snapshot.
func Register(names ...string) {
	mu.Lock()
	defer mu.Unlock()
	for _, n := range names {
		known[strings.ToLower(n)] = struct{}{}
	}
}

// Enabled returns true if a flag is enabled via environment variable.
// Flags are read from env as FLAG_<NAME>=true/1/yes (case-insensitive)
func Enabled(name string) bool {
	v := os.Getenv("FLAG_" + strings.ToUpper(name))
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// Snapshot reports the current value of every registered flag.
func Snapshot() map[string]bool {
	mu.RLock()
	names := make([]string, 0, len(known))
	for n := range known {
		names = append(names, n)
	}
	mu.RUnlock()
	sort.Strings(names)

	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = Enabled(n)
	}
	return out
}
