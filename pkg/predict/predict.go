// Package predict produces coarse fight-outcome predictions from session
// aggregates.
package predict

import (
	"context"
	"fmt"

	"github.com/camlog/camlog/pkg/combatlog"
)

// Outcome labels.
const (
	OutcomeWinning    = "winning"
	OutcomeContested  = "contested"
	OutcomeStruggling = "struggling"
	OutcomeUnknown    = "unknown"
)

// Prediction is the assessment of one session.
type Prediction struct {
	SessionID string `json:"sessionId"`
	// Outcome is one of the Outcome* labels.
	Outcome string `json:"outcome"`
	// Score is the damage-to-healing ratio normalized into (0, 1); above
	// 0.5 means damage output dominates healing pressure.
	Score float64 `json:"score"`
	// Basis echoes the aggregates the prediction was computed from.
	Basis Basis `json:"basis"`
}

// Basis is the session evidence behind a prediction.
type Basis struct {
	EventCount   int `json:"eventCount"`
	TotalDamage  int `json:"totalDamage"`
	TotalHealing int `json:"totalHealing"`
	Deaths       int `json:"deaths"`
}

// Predictor assesses a session's likely outcome.
type Predictor interface {
	PredictSession(ctx context.Context, sessionID string) (Prediction, error)
}

// SessionGetter is the slice of the store a predictor needs.
type SessionGetter interface {
	GetSession(ctx context.Context, id string) (combatlog.Session, error)
}

// DamageRatio predicts from the ratio of damage dealt to healing required:
// a fight that needs little healing relative to output is going well.
// Enemy deaths push the assessment toward winning regardless of ratio.
type DamageRatio struct {
	sessions SessionGetter
}

// NewDamageRatio creates the ratio-based predictor.
func NewDamageRatio(sessions SessionGetter) *DamageRatio {
	return &DamageRatio{sessions: sessions}
}

// PredictSession implements Predictor.
func (p *DamageRatio) PredictSession(ctx context.Context, sessionID string) (Prediction, error) {
	sess, err := p.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return Prediction{}, fmt.Errorf("predict: load session: %w", err)
	}

	pred := Prediction{
		SessionID: sess.ID,
		Basis: Basis{
			EventCount:   sess.EventCount,
			TotalDamage:  sess.TotalDamage,
			TotalHealing: sess.TotalHealing,
			Deaths:       sess.Deaths,
		},
	}

	if sess.EventCount == 0 {
		pred.Outcome = OutcomeUnknown
		pred.Score = 0.5
		return pred, nil
	}

	// Normalize damage/(damage+healing) into (0, 1). Healing of zero
	// yields 1.0: all output, no pressure.
	damage := float64(sess.TotalDamage)
	healing := float64(sess.TotalHealing)
	if damage+healing == 0 {
		pred.Score = 0.5
	} else {
		pred.Score = damage / (damage + healing)
	}

	switch {
	case sess.Deaths > 0 || pred.Score >= 0.67:
		pred.Outcome = OutcomeWinning
	case pred.Score <= 0.33:
		pred.Outcome = OutcomeStruggling
	default:
		pred.Outcome = OutcomeContested
	}
	return pred, nil
}
