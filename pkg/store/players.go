package store

import (
	"context"
	"fmt"
	"time"

	"github.com/camlog/camlog/pkg/combatlog"
)

// Player is one combatant seen in the log, with activity counters. A
// player is anyone appearing as the source or the target of an event.
type Player struct {
	Name     string    `json:"name"`
	Events   int       `json:"events"`
	LastSeen time.Time `json:"lastSeen"`
}

// PlayerStats breaks a player's activity down by role.
type PlayerStats struct {
	Name            string    `json:"name"`
	Events          int       `json:"events"`
	DamageDealt     int       `json:"damageDealt"`
	DamageTaken     int       `json:"damageTaken"`
	HealingDone     int       `json:"healingDone"`
	HealingReceived int       `json:"healingReceived"`
	Deaths          int       `json:"deaths"`
	LastSeen        time.Time `json:"lastSeen"`
}

// Summary aggregates the whole store.
type Summary struct {
	Sessions     int `json:"sessions"`
	Events       int `json:"events"`
	Players      int `json:"players"`
	TotalDamage  int `json:"totalDamage"`
	TotalHealing int `json:"totalHealing"`
	Deaths       int `json:"deaths"`
}

// appearances flattens events into (name, time) pairs covering both roles.
const appearances = `
	SELECT source AS name, time FROM events
	UNION ALL
	SELECT target AS name, time FROM events WHERE target <> ''
`

// ListPlayers returns a page of players ordered by activity, plus the
// total number of distinct players.
func (s *Store) ListPlayers(ctx context.Context, limit, offset int) ([]Player, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT name) FROM (`+appearances+`)`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: count players: %w", err)
	}

	if limit <= 0 {
		limit = DefaultPageSize
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, COUNT(*) AS n, MAX(time) AS last
		 FROM (`+appearances+`)
		 GROUP BY name ORDER BY n DESC, name LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("store: list players: %w", err)
	}
	defer rows.Close()

	players := make([]Player, 0, limit)
	for rows.Next() {
		var p Player
		var last int64
		if err := rows.Scan(&p.Name, &p.Events, &last); err != nil {
			return nil, 0, fmt.Errorf("store: scan player: %w", err)
		}
		p.LastSeen = time.Unix(0, last)
		players = append(players, p)
	}
	return players, total, rows.Err()
}

// GetPlayerStats returns the per-role breakdown for one player.
// ErrNotFound when the name never appears in the log.
func (s *Store) GetPlayerStats(ctx context.Context, name string) (PlayerStats, error) {
	st := PlayerStats{Name: name}

	var last int64
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(MAX(time), 0),
			COALESCE(SUM(CASE WHEN type = ?2 AND source = ?1 THEN amount END), 0),
			COALESCE(SUM(CASE WHEN type = ?2 AND target = ?1 THEN amount END), 0),
			COALESCE(SUM(CASE WHEN type = ?3 AND source = ?1 THEN amount END), 0),
			COALESCE(SUM(CASE WHEN type = ?3 AND target = ?1 THEN amount END), 0),
			COALESCE(SUM(CASE WHEN type = ?4 AND source = ?1 THEN 1 END), 0)
		FROM events WHERE source = ?1 OR target = ?1`,
		name, combatlog.EventDamage, combatlog.EventHeal, combatlog.EventDeath,
	).Scan(&st.Events, &last, &st.DamageDealt, &st.DamageTaken,
		&st.HealingDone, &st.HealingReceived, &st.Deaths)
	if err != nil {
		return PlayerStats{}, fmt.Errorf("store: player stats: %w", err)
	}
	if st.Events == 0 {
		return PlayerStats{}, ErrNotFound
	}
	st.LastSeen = time.Unix(0, last)
	return st, nil
}

// GetSummary aggregates the whole store for the stats endpoint.
func (s *Store) GetSummary(ctx context.Context) (Summary, error) {
	var sum Summary
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM sessions),
			(SELECT COUNT(*) FROM events),
			(SELECT COUNT(DISTINCT name) FROM (`+appearances+`)),
			(SELECT COALESCE(SUM(total_damage), 0) FROM sessions),
			(SELECT COALESCE(SUM(total_healing), 0) FROM sessions),
			(SELECT COALESCE(SUM(deaths), 0) FROM sessions)`,
	).Scan(&sum.Sessions, &sum.Events, &sum.Players,
		&sum.TotalDamage, &sum.TotalHealing, &sum.Deaths)
	if err != nil {
		return Summary{}, fmt.Errorf("store: summary: %w", err)
	}
	return sum, nil
}
