// Package regime maps an external regime score onto a market regime.
package regime

import (
	"fmt"
	"math"

	"RegimeTrader/internal/domain/models"
)

const (
	DefaultBullThreshold = 0.5
	DefaultBearThreshold = -0.5
)

// Classify applies the default thresholds. Boundaries are exclusive, so 0.5
// and -0.5 are sideways.
func Classify(score float64) models.Regime {
	return classify(score, DefaultBullThreshold, DefaultBearThreshold)
}

func classify(score, bull, bear float64) models.Regime {
	switch {
	case score > bull:
		return models.RegimeBullish
	case score < bear:
		return models.RegimeBearish
	default:
		return models.RegimeSideways
	}
}

// Normalize clamps a finite score into [-1, 1]. clamped reports whether the
// value was changed. NaN and infinities return ErrInvalidInput.
func Normalize(score float64) (v float64, clamped bool, err error) {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, false, fmt.Errorf("%w: score %v", models.ErrInvalidInput, score)
	}
	switch {
	case score > 1:
		return 1, true, nil
	case score < -1:
		return -1, true, nil
	}
	return score, false, nil
}

// Classifier is the stateful per-series classifier. With confirm > 1 a new
// regime must persist for that many consecutive bars before it takes effect.
type Classifier struct {
	bull, bear float64
	confirm    int

	current   models.Regime
	candidate models.Regime
	streak    int
	started   bool
}

func NewClassifier(bull, bear float64, confirm int) *Classifier {
	if confirm < 1 {
		confirm = 1
	}
	return &Classifier{bull: bull, bear: bear, confirm: confirm}
}

// Classify classifies one already-normalized score without hysteresis.
func (c *Classifier) Classify(score float64) models.Regime {
	return classify(score, c.bull, c.bear)
}

// Next feeds the score of the next bar and returns the effective regime.
func (c *Classifier) Next(score float64) models.Regime {
	raw := c.Classify(score)
	if !c.started || c.confirm == 1 {
		c.started = true
		c.current, c.candidate, c.streak = raw, raw, 0
		return raw
	}
	if raw == c.current {
		c.candidate, c.streak = raw, 0
		return c.current
	}
	if raw != c.candidate {
		c.candidate, c.streak = raw, 0
	}
	c.streak++
	if c.streak >= c.confirm {
		c.current, c.streak = raw, 0
	}
	return c.current
}

// Current returns the last effective regime.
func (c *Classifier) Current() models.Regime { return c.current }

func (c *Classifier) Reset() {
	c.current, c.candidate, c.streak, c.started = models.RegimeSideways, models.RegimeSideways, 0, false
}
