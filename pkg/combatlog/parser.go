package combatlog

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Log line patterns. Every recognized line starts with a bracketed clock
// timestamp. The damage type is optional ("points of damage" with no
// school appears for some attack forms).
var (
	damagePattern = regexp.MustCompile(
		`^\[(?P<timestamp>\d{2}:\d{2}:\d{2})\]\s+You hit (?:the )?(?P<target>.+?) for (?P<amount>\d+) points of(?: (?P<type>\w+))? damage[!.]?`)
	healPattern = regexp.MustCompile(
		`^\[(?P<timestamp>\d{2}:\d{2}:\d{2})\]\s+You heal (?:the )?(?P<target>.+?) for (?P<amount>\d+) hit points[!.]?`)
	deathPattern = regexp.MustCompile(
		`^\[(?P<timestamp>\d{2}:\d{2}:\d{2})\]\s+(?:The )?(?P<target>.+?) dies[!.]?`)
)

// combatVerbPattern matches the opening of a damage or heal line. A line
// that trips it but fails every event pattern is a garbled combat entry,
// not chatter.
var combatVerbPattern = regexp.MustCompile(`^\[\d{2}:\d{2}:\d{2}\]\s+You (?:hit|heal) `)

// DamageTypeUnknown is recorded when a damage line names no school.
const DamageTypeUnknown = "Unknown"

// Parser converts raw log lines into events. Safe for concurrent use.
type Parser struct {
	now func() time.Time
}

// NewParser creates a parser. The clock is used to date events, since log
// lines carry only a time of day.
func NewParser() *Parser {
	return &Parser{now: time.Now}
}

// ParseLine parses a single log line. The second return value is false for
// lines that are not recognized combat entries; those are not errors, a
// combat log is mostly chatter.
func (p *Parser) ParseLine(line string) (Event, bool) {
	if m := damagePattern.FindStringSubmatch(line); m != nil {
		amount, _ := strconv.Atoi(group(damagePattern, m, "amount"))
		damageType := group(damagePattern, m, "type")
		if damageType == "" {
			damageType = DamageTypeUnknown
		}
		return Event{
			Time:       p.eventTime(group(damagePattern, m, "timestamp")),
			Type:       EventDamage,
			Source:     SourceSelf,
			Target:     strings.TrimSpace(group(damagePattern, m, "target")),
			Amount:     amount,
			DamageType: damageType,
		}, true
	}

	if m := healPattern.FindStringSubmatch(line); m != nil {
		amount, _ := strconv.Atoi(group(healPattern, m, "amount"))
		return Event{
			Time:   p.eventTime(group(healPattern, m, "timestamp")),
			Type:   EventHeal,
			Source: SourceSelf,
			Target: strings.TrimSpace(group(healPattern, m, "target")),
			Amount: amount,
		}, true
	}

	if m := deathPattern.FindStringSubmatch(line); m != nil {
		return Event{
			Time:   p.eventTime(group(deathPattern, m, "timestamp")),
			Type:   EventDeath,
			Source: strings.TrimSpace(group(deathPattern, m, "target")),
		}, true
	}

	return Event{}, false
}

// eventTime combines the line's clock time with today's date. A clock that
// fails to parse falls back to the current time.
func (p *Parser) eventTime(clock string) time.Time {
	now := p.now()
	t, err := time.ParseInLocation("15:04:05", clock, now.Location())
	if err != nil {
		return now
	}
	return time.Date(now.Year(), now.Month(), now.Day(),
		t.Hour(), t.Minute(), t.Second(), 0, now.Location())
}

// group returns the named capture from a match.
func group(re *regexp.Regexp, match []string, name string) string {
	for i, n := range re.SubexpNames() {
		if n == name && i < len(match) {
			return match[i]
		}
	}
	return ""
}
