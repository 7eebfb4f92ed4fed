// Package featureflags evaluates operational toggles read from configuration.
package featureflags

import (
	"sort"
	"strings"
)

// Known toggles. Each defaults to on when absent.
const (
	ListCache       = "list_cache"
	DomainEvents    = "domain_events"
	ReconcileWorker = "reconcile_worker"
)

// Set holds flags parsed from a "name=value" list, e.g. "list_cache=off,domain_events=on".
type Set struct {
	flags map[string]bool
}

// Parse builds a Set from raw. Malformed pairs and unknown values are ignored.
func Parse(raw string) *Set {
	out := make(map[string]bool)
	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		key = normalize(key)
		if key == "" {
			continue
		}
		switch normalize(value) {
		case "on", "true", "1":
			out[key] = true
		case "off", "false", "0":
			out[key] = false
		}
	}
	return &Set{flags: out}
}

// Enabled reports the flag's value, or def when the flag is not set.
func (s *Set) Enabled(name string, def bool) bool {
	if s == nil {
		return def
	}
	v, ok := s.flags[normalize(name)]
	if !ok {
		return def
	}
	return v
}

// Overrides lists the explicitly set flags as "name=on|off", sorted by name.
func (s *Set) Overrides() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.flags))
	for name, on := range s.flags {
		state := "off"
		if on {
			state = "on"
		}
		out = append(out, name+"="+state)
	}
	sort.Strings(out)
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
