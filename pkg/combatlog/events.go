// Package combatlog parses Dark Age of Camelot combat logs into structured
// events and groups them into combat sessions.
package combatlog

import "time"

// Event type names. These double as the SSE event types relayed to stream
// subscribers.
const (
	EventDamage = "damage"
	EventHeal   = "heal"
	EventDeath  = "death"
)

// Event is one parsed combat log entry.
type Event struct {
	// ID is assigned when the event is recorded.
	ID string `json:"id"`
	// SessionID is the combat session the event belongs to.
	SessionID string `json:"sessionId"`
	// Time is the event timestamp. Log lines carry only a clock time;
	// the date comes from when the line was observed.
	Time time.Time `json:"time"`
	// Type is one of the Event* constants.
	Type string `json:"type"`
	// Source is the acting combatant. Lines in the second person
	// attribute to "You".
	Source string `json:"source"`
	// Target is the receiving combatant. Empty for death events where
	// only the dying party is named.
	Target string `json:"target,omitempty"`
	// Amount is the damage or healing amount; 0 for deaths.
	Amount int `json:"amount,omitempty"`
	// DamageType is the damage school (slash, thrust, heat, ...).
	// "Unknown" when the line does not name one. Empty for non-damage
	// events.
	DamageType string `json:"damageType,omitempty"`
}

// Session is a contiguous stretch of combat. A session opens with its
// first event and closes once no event arrives within the idle gap.
type Session struct {
	ID        string     `json:"id"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`

	// Aggregates over the session's events.
	EventCount   int `json:"eventCount"`
	TotalDamage  int `json:"totalDamage"`
	TotalHealing int `json:"totalHealing"`
	Deaths       int `json:"deaths"`
}

// SourceSelf is the actor name for second-person log lines.
const SourceSelf = "You"
