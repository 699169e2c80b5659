// Package swarm implements the multi-agent voting strategy.
package swarm

import (
	"math"
	"sort"
	"sync"

	"RegimeTrader/internal/domain/models"
)

const (
	DefaultBuyThreshold  = 0.25
	DefaultSellThreshold = -0.25
	DefaultAccuracyAlpha = 0.1
	neutralAccuracy      = 0.5
	unknownAgentWeight   = 1.0
)

// DefaultWeights returns a fresh copy of the base weight table.
func DefaultWeights() map[string]float64 {
	return map[string]float64{
		AgentVIX:               1.2,
		AgentTrend:             1.0,
		AgentVolume:            0.8,
		AgentMomentum:          1.0,
		AgentSeasonal:          0.6,
		AgentSupportResistance: 1.0,
		AgentSentiment:         0.8,
	}
}

type AggregatorConfig struct {
	Weights       map[string]float64
	BuyThreshold  float64
	SellThreshold float64
	Alpha         float64
}

type AggregatorOption func(*AggregatorConfig)

// WithWeights overrides base weights per agent; agents not named keep their default.
func WithWeights(w map[string]float64) AggregatorOption {
	return func(c *AggregatorConfig) {
		for k, v := range w {
			c.Weights[k] = v
		}
	}
}

func WithThresholds(buy, sell float64) AggregatorOption {
	return func(c *AggregatorConfig) { c.BuyThreshold, c.SellThreshold = buy, sell }
}

func WithAccuracyAlpha(alpha float64) AggregatorOption {
	return func(c *AggregatorConfig) { c.Alpha = alpha }
}

// Aggregator combines agent votes into one decision. Weights scale with each
// agent's learned accuracy; it is safe for concurrent use.
type Aggregator struct {
	mu       sync.RWMutex
	cfg      AggregatorConfig
	accuracy map[string]float64
}

func NewAggregator(opts ...AggregatorOption) *Aggregator {
	cfg := AggregatorConfig{
		Weights:       DefaultWeights(),
		BuyThreshold:  DefaultBuyThreshold,
		SellThreshold: DefaultSellThreshold,
		Alpha:         DefaultAccuracyAlpha,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Aggregator{cfg: cfg, accuracy: make(map[string]float64)}
}

// Aggregate computes score = sum(vote*w) / sum(w) with
// w = base * confidence * accuracy/0.5. A zero total weight scores 0.
func (a *Aggregator) Aggregate(votes []models.AgentVote) models.SwarmResult {
	a.mu.RLock()
	defer a.mu.RUnlock()

	res := models.SwarmResult{Breakdown: make([]models.AgentBreakdown, 0, len(votes))}
	weighted := 0.0
	for _, v := range votes {
		base := a.baseWeight(v.Agent)
		acc := a.accuracyOf(v.Agent)
		conf := v.Confidence
		if math.IsNaN(conf) || conf < 0 {
			conf = 0
		}
		w := base * conf * (acc / neutralAccuracy)
		contrib := float64(v.Vote) * w
		weighted += contrib
		res.TotalWeight += w
		res.Breakdown = append(res.Breakdown, models.AgentBreakdown{
			Agent:        v.Agent,
			Vote:         v.Vote,
			Confidence:   conf,
			BaseWeight:   base,
			Accuracy:     acc,
			Weight:       w,
			Contribution: contrib,
		})
	}
	if res.TotalWeight > 0 {
		res.Score = weighted / res.TotalWeight
	}
	switch {
	case res.Score > a.cfg.BuyThreshold:
		res.Decision = models.ActionBuy
	case res.Score < a.cfg.SellThreshold:
		res.Decision = models.ActionSell
	default:
		res.Decision = models.ActionHold
	}
	return res
}

// UpdateAccuracy scores each non-zero vote against the sign of outcome with
// an exponential moving average. A zero outcome is skipped.
func (a *Aggregator) UpdateAccuracy(votes []models.AgentVote, outcome float64) {
	if outcome == 0 || math.IsNaN(outcome) {
		return
	}
	want := 1
	if outcome < 0 {
		want = -1
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, v := range votes {
		if v.Vote == 0 {
			continue
		}
		hit := 0.0
		if v.Vote == want {
			hit = 1
		}
		acc := a.accuracyOf(v.Agent)
		a.accuracy[v.Agent] = (1-a.cfg.Alpha)*acc + a.cfg.Alpha*hit
	}
}

func (a *Aggregator) Accuracy(agent string) float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.accuracyOf(agent)
}

// Accuracies returns a snapshot of the learned accuracies, sorted by agent.
func (a *Aggregator) Accuracies() []models.AgentBreakdown {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]models.AgentBreakdown, 0, len(a.cfg.Weights))
	for name, w := range a.cfg.Weights {
		out = append(out, models.AgentBreakdown{Agent: name, BaseWeight: w, Accuracy: a.accuracyOf(name)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Agent < out[j].Agent })
	return out
}

// baseWeight is never negative, which keeps the score inside [-1, 1].
func (a *Aggregator) baseWeight(agent string) float64 {
	w, ok := a.cfg.Weights[agent]
	if !ok {
		return unknownAgentWeight
	}
	if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
		return 0
	}
	return w
}

func (a *Aggregator) accuracyOf(agent string) float64 {
	if acc, ok := a.accuracy[agent]; ok {
		return acc
	}
	return neutralAccuracy
}
