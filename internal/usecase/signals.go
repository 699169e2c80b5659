package usecase

import (
	"context"
	"fmt"

	"RegimeTrader/internal/domain/models"
	"RegimeTrader/internal/services/regime"
	"RegimeTrader/internal/services/strategy"
	"RegimeTrader/internal/services/swarm"
	"RegimeTrader/pkg/config"
	"RegimeTrader/pkg/logger"
)

// Classification is one classified score.
type Classification struct {
	Score   float64       `json:"score"`
	Used    float64       `json:"used"`
	Clamped bool          `json:"clamped,omitempty"`
	Regime  models.Regime `json:"regime"`
	Mode    string        `json:"mode"`
}

// SignalsUseCase serves the stateless signal endpoints.
type SignalsUseCase struct {
	cfg *config.Config
	log *logger.Logger
}

func NewSignalsUseCase(cfg *config.Config, log *logger.Logger) *SignalsUseCase {
	if log == nil {
		log = logger.Nop()
	}
	return &SignalsUseCase{cfg: cfg, log: log}
}

// Classify maps each score onto a regime with the configured thresholds.
// Finite out-of-range scores are clamped; non-finite ones fail the request.
func (uc *SignalsUseCase) Classify(_ context.Context, scores []float64) ([]Classification, error) {
	out := make([]Classification, 0, len(scores))
	for i, s := range scores {
		v, clamped, err := regime.Normalize(s)
		if err != nil {
			return nil, fmt.Errorf("scores[%d]: %w", i, err)
		}
		if clamped {
			uc.log.Warn("regime score clamped", logger.Int("index", i), logger.Float64("score", s))
		}
		// a fresh classifier per score: confirmation only applies to series
		r := regime.NewClassifier(uc.cfg.Strategy.BullThreshold, uc.cfg.Strategy.BearThreshold, 1).Classify(v)
		out = append(out, Classification{
			Score:   s,
			Used:    v,
			Clamped: clamped,
			Regime:  r,
			Mode:    strategy.ModeFor(r),
		})
	}
	return out, nil
}

// Aggregate combines agent votes with the configured weights and neutral
// accuracy.
func (uc *SignalsUseCase) Aggregate(_ context.Context, votes []models.AgentVote) models.SwarmResult {
	return swarm.AggregatorFromConfig(uc.cfg.Swarm).Aggregate(votes)
}
