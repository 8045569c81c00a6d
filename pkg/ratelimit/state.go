// Package ratelimit remembers relays that answered 403/429 and keeps them
// out of rotation until their cooldown expires. State lives in Redis so
// every process sharing the relays sees the same cooldowns.
package ratelimit

import (
	"time"
)

// KeyPrefix namespaces all cooldown keys in Redis.
const KeyPrefix = "steam-monitor:relay:"

// Defaults for cooldown decisions.
const (
	// DefaultCooldown is applied per strike when the relay sent no Retry-After.
	DefaultCooldown = 30 * time.Second

	// MaxCooldown caps any cooldown, including a Retry-After from the relay.
	MaxCooldown = 10 * time.Minute

	// StrikeWindow is how long a rate-limit strike counts towards escalation.
	StrikeWindow = time.Hour
)

func cooldownKey(relay string) string { return KeyPrefix + relay + ":cooldown_until" }
func strikesKey(relay string) string { return KeyPrefix + relay + ":strikes" }
func lastLimitedKey(relay string) string { return KeyPrefix + relay + ":last_limited" }

// CooldownState is the cooldown state of one relay.
type CooldownState struct {
	// Relay is the relay name.
	Relay string `json:"relay"`

	// Strikes counts 403/429 answers within the current StrikeWindow.
	Strikes int `json:"strikes"`

	// CoolingUntil is when the relay may be used again. Zero when not cooling down.
	CoolingUntil time.Time `json:"cooling_until"`

	// LastLimited is when the relay last answered 403/429.
	LastLimited time.Time `json:"last_limited"`
}

// IsCoolingDown reports whether the relay must still be skipped at now.
func (s *CooldownState) IsCoolingDown(now time.Time) bool {
	return !s.CoolingUntil.IsZero() && now.Before(s.CoolingUntil)
}

// Remaining returns the cooldown left at now, or 0.
func (s *CooldownState) Remaining(now time.Time) time.Duration {
	if !s.IsCoolingDown(now) {
		return 0
	}
	return s.CoolingUntil.Sub(now)
}

// IsStale returns true if the relay has not been rate limited within maxAge.
func (s *CooldownState) IsStale(now time.Time, maxAge time.Duration) bool {
	return s.LastLimited.IsZero() || now.Sub(s.LastLimited) > maxAge
}
