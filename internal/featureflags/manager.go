// Package featureflags evaluates rollout flags configured by FEATURE_FLAGS.
package featureflags

import (
	"hash/fnv"
	"sort"
	"strconv"
	"strings"
)

// Flags known to the application.
const (
	// RealtimeNotifications publishes like and message events for push delivery.
	RealtimeNotifications = "realtime_notifications"
	// MediaWebP writes a WebP rendition next to every stored JPEG.
	MediaWebP = "media_webp"
)

// rule is a parsed flag value: fully on, fully off, or a percentage rollout.
type rule struct {
	raw     string
	percent int // 0..100
}

// Manager evaluates flags from a list like "media_webp=on,realtime_notifications=25%".
// Values are on/true/1, off/false/0, or N% for a deterministic per-user rollout.
// Unknown or malformed values evaluate as off.
type Manager struct {
	rules map[string]rule
}

// NewManager parses a comma-separated flag list.
func NewManager(raw string) *Manager {
	rules := make(map[string]rule)
	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		key, value = normalize(key), normalize(value)
		if key == "" || value == "" {
			continue
		}
		rules[key] = rule{raw: value, percent: parsePercent(value)}
	}
	return &Manager{rules: rules}
}

func parsePercent(value string) int {
	switch value {
	case "on", "true", "1":
		return 100
	case "off", "false", "0":
		return 0
	}
	pct, err := strconv.Atoi(strings.TrimSuffix(value, "%"))
	if !strings.HasSuffix(value, "%") || err != nil || pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// Enabled reports whether name is on for userID. Partial rollouts need a
// non-zero userID and always give the same answer for the same user.
func (m *Manager) Enabled(name string, userID uint) bool {
	if m == nil {
		return false
	}
	r, ok := m.rules[normalize(name)]
	if !ok {
		return false
	}
	switch {
	case r.percent >= 100:
		return true
	case r.percent <= 0 || userID == 0:
		return false
	default:
		return rolloutBucket(name, userID) < r.percent
	}
}

// Raw returns a copy of the configured values.
func (m *Manager) Raw() map[string]string {
	out := make(map[string]string, len(m.rules))
	for k, r := range m.rules {
		out[k] = r.raw
	}
	return out
}

// Names returns the configured flag names, sorted.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.rules))
	for k := range m.rules {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func rolloutBucket(name string, userID uint) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(normalize(name) + ":" + strconv.FormatUint(uint64(userID), 10)))
	return int(h.Sum32() % 100)
}
