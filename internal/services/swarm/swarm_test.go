package swarm

import (
	"math"
	"testing"
	"time"

	"RegimeTrader/internal/domain/models"
	"RegimeTrader/internal/services/indicators"
	"RegimeTrader/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateTieHolds(t *testing.T) {
	agg := NewAggregator()
	res := agg.Aggregate([]models.AgentVote{
		{Agent: AgentTrend, Vote: 1, Confidence: 0.5},
		{Agent: AgentMomentum, Vote: -1, Confidence: 0.5},
	})
	assert.Equal(t, models.ActionHold, res.Decision)
	assert.InDelta(t, 0.0, res.Score, 1e-12)
}

func TestAggregateZeroWeightHolds(t *testing.T) {
	res := NewAggregator().Aggregate([]models.AgentVote{{Agent: AgentVIX, Vote: 1, Confidence: 0}})
	assert.Equal(t, models.ActionHold, res.Decision)
	assert.Zero(t, res.Score)
	assert.Zero(t, res.TotalWeight)

	res = NewAggregator().Aggregate(nil)
	assert.Equal(t, models.ActionHold, res.Decision)
}

func TestAggregateWeightsAndDecision(t *testing.T) {
	agg := NewAggregator()
	res := agg.Aggregate([]models.AgentVote{
		{Agent: AgentVIX, Vote: 1, Confidence: 1},
		{Agent: AgentTrend, Vote: -1, Confidence: 1},
	})
	assert.InDelta(t, 0.2/2.2, res.Score, 1e-12)
	assert.Equal(t, models.ActionHold, res.Decision)
	require.Len(t, res.Breakdown, 2)
	assert.InDelta(t, 1.2, res.Breakdown[0].Weight, 1e-12)
	assert.InDelta(t, -1.0, res.Breakdown[1].Contribution, 1e-12)

	res = agg.Aggregate([]models.AgentVote{
		{Agent: AgentVIX, Vote: 1, Confidence: 0.8},
		{Agent: AgentTrend, Vote: 1, Confidence: 0.9},
		{Agent: AgentSeasonal, Vote: 0, Confidence: 0.3},
	})
	assert.InDelta(t, 1.86/2.04, res.Score, 1e-12)
	assert.Equal(t, models.ActionBuy, res.Decision)

	res = agg.Aggregate([]models.AgentVote{{Agent: "custom", Vote: -1, Confidence: 0.5}})
	assert.Equal(t, models.ActionSell, res.Decision)
	assert.Equal(t, 1.0, res.Breakdown[0].BaseWeight)
}

func TestAggregateIgnoresNegativeWeights(t *testing.T) {
	agg := NewAggregator(WithWeights(map[string]float64{AgentVIX: 1.2, AgentTrend: -1}))
	res := agg.Aggregate([]models.AgentVote{
		{Agent: AgentVIX, Vote: 1, Confidence: 1},
		{Agent: AgentTrend, Vote: -1, Confidence: 0.5},
	})
	assert.InDelta(t, 1.0, res.Score, 1e-12)
	assert.LessOrEqual(t, res.Score, 1.0)
	assert.Zero(t, res.Breakdown[1].BaseWeight)
	assert.Zero(t, res.Breakdown[1].Weight)

	res = agg.Aggregate([]models.AgentVote{{Agent: AgentTrend, Vote: -1, Confidence: 1}})
	assert.Zero(t, res.Score)
	assert.Equal(t, models.ActionHold, res.Decision)
}

func TestUpdateAccuracy(t *testing.T) {
	agg := NewAggregator()
	votes := []models.AgentVote{
		{Agent: AgentTrend, Vote: 1, Confidence: 1},
		{Agent: AgentMomentum, Vote: -1, Confidence: 1},
		{Agent: AgentSeasonal, Vote: 0, Confidence: 1},
	}
	agg.UpdateAccuracy(votes, 0.01)
	assert.InDelta(t, 0.55, agg.Accuracy(AgentTrend), 1e-12)
	assert.InDelta(t, 0.45, agg.Accuracy(AgentMomentum), 1e-12)
	assert.Equal(t, 0.5, agg.Accuracy(AgentSeasonal))

	agg.UpdateAccuracy(votes, 0)
	assert.InDelta(t, 0.55, agg.Accuracy(AgentTrend), 1e-12)

	res := agg.Aggregate(votes[:1])
	assert.InDelta(t, 1.1, res.TotalWeight, 1e-12)
}

func TestAggregatorOptions(t *testing.T) {
	agg := NewAggregator(WithWeights(map[string]float64{AgentVIX: 2}), WithThresholds(0.5, -0.5), WithAccuracyAlpha(0.5))
	res := agg.Aggregate([]models.AgentVote{
		{Agent: AgentVIX, Vote: 1, Confidence: 1},
		{Agent: AgentTrend, Vote: 0, Confidence: 1},
	})
	assert.InDelta(t, 2.0/3.0, res.Score, 1e-12)
	assert.Equal(t, models.ActionBuy, res.Decision)

	agg.UpdateAccuracy([]models.AgentVote{{Agent: AgentVIX, Vote: 1}}, -1)
	assert.InDelta(t, 0.25, agg.Accuracy(AgentVIX), 1e-12)
	assert.Len(t, agg.Accuracies(), 7)
}

func TestVIXAgent(t *testing.T) {
	cases := []struct {
		vix  float64
		vote int
		conf float64
	}{
		{12, 0, 0.6},
		{17, 1, 0.7},
		{22, 0, 0.3},
		{30, -1, 0.7},
		{40, 1, 0.8},
		{math.NaN(), 0, 0},
	}
	for _, tc := range cases {
		v := VIXAgent{}.Vote(indicators.Snapshot{VIX: tc.vix})
		assert.Equal(t, tc.vote, v.Vote, "vix %v", tc.vix)
		assert.Equal(t, tc.conf, v.Confidence, "vix %v", tc.vix)
	}
}

func TestTrendAgent(t *testing.T) {
	v := TrendAgent{}.Vote(indicators.Snapshot{Bars: 50, Close: 110, SMA20: 105, SMA50: 100})
	assert.Equal(t, 1, v.Vote)
	assert.InDelta(t, 0.6, v.Confidence, 1e-12)

	v = TrendAgent{}.Vote(indicators.Snapshot{Bars: 50, Close: 99, SMA20: 97, SMA50: 100})
	assert.Equal(t, 1, v.Vote)
	assert.Equal(t, 0.5, v.Confidence)

	v = TrendAgent{}.Vote(indicators.Snapshot{Bars: 50, Close: 50, SMA20: 80, SMA50: 100})
	assert.Equal(t, -1, v.Vote)
	assert.Equal(t, 0.9, v.Confidence)

	v = TrendAgent{}.Vote(indicators.Snapshot{Bars: 49, Close: 110, SMA20: 105, SMA50: 100})
	assert.Equal(t, models.AgentVote{Agent: AgentTrend, Reason: "warmup"}, v)
}

func TestVolumeAgent(t *testing.T) {
	base := indicators.Snapshot{Bars: 20, PrevClose: 100, VolumeSMA20: 100, OBVSMA20: 400}

	s := base
	s.Close, s.Volume, s.OBV = 102, 300, 500
	v := VolumeAgent{}.Vote(s)
	assert.Equal(t, 1, v.Vote)
	assert.Equal(t, 0.8, v.Confidence)

	s = base
	s.Close, s.Volume, s.OBV = 98, 300, 100
	assert.Equal(t, -1, VolumeAgent{}.Vote(s).Vote)

	s = base
	s.Close, s.Volume = 103, 100
	v = VolumeAgent{}.Vote(s)
	assert.Equal(t, 0, v.Vote)
	assert.Equal(t, 0.4, v.Confidence)
}

func TestMomentumAgent(t *testing.T) {
	cases := []struct {
		rsi, roc float64
		vote     int
		conf     float64
	}{
		{75, 0.05, -1, 0.7},
		{75, 0.15, 0, 0.4},
		{25, -0.05, 1, 0.7},
		{25, -0.15, 0, 0.4},
		{55, 0, 1, 0.5},
		{45, 0, -1, 0.5},
	}
	for _, tc := range cases {
		v := MomentumAgent{}.Vote(indicators.Snapshot{Bars: 15, RSI14: tc.rsi, ROC10: tc.roc})
		assert.Equal(t, tc.vote, v.Vote, "rsi %v roc %v", tc.rsi, tc.roc)
		assert.Equal(t, tc.conf, v.Confidence)
	}
}

func TestSeasonalAgent(t *testing.T) {
	v := SeasonalAgent{}.Vote(indicators.Snapshot{Time: time.Date(2023, 1, 6, 0, 0, 0, 0, time.UTC)})
	assert.Equal(t, 1, v.Vote)
	assert.Equal(t, 0.6, v.Confidence)

	v = SeasonalAgent{}.Vote(indicators.Snapshot{Time: time.Date(2023, 9, 4, 0, 0, 0, 0, time.UTC)})
	assert.Equal(t, -1, v.Vote)

	v = SeasonalAgent{}.Vote(indicators.Snapshot{Time: time.Date(2023, 8, 2, 0, 0, 0, 0, time.UTC)})
	assert.Equal(t, 0, v.Vote)
	assert.Equal(t, 0.3, v.Confidence)
}

func TestSupportResistanceAgent(t *testing.T) {
	base := indicators.Snapshot{Bars: 21, SR20Bars: 20, Support20: 100, Resistance20: 120, PrevClose: 100}

	s := base
	s.Close = 101
	v := SupportResistanceAgent{}.Vote(s)
	assert.Equal(t, 1, v.Vote)
	assert.Equal(t, 0.7, v.Confidence)

	s.Close, s.PrevClose = 121, 119
	assert.Equal(t, 0.8, SupportResistanceAgent{}.Vote(s).Confidence)

	s.Close, s.PrevClose = 118, 119
	assert.Equal(t, -1, SupportResistanceAgent{}.Vote(s).Vote)

	s.Close = 110
	v = SupportResistanceAgent{}.Vote(s)
	assert.Equal(t, 0, v.Vote)
	assert.Equal(t, 0.2, v.Confidence)
}

func TestSentimentAgent(t *testing.T) {
	v := SentimentAgent{}.Vote(indicators.Snapshot{SentimentCount: 5, Sentiment: 0.7, SentimentStd: 0.1})
	assert.Equal(t, 1, v.Vote)
	assert.InDelta(t, 0.9, v.Confidence, 1e-12)

	v = SentimentAgent{}.Vote(indicators.Snapshot{SentimentCount: 5, Sentiment: -0.4, SentimentStd: 0.5})
	assert.Equal(t, -1, v.Vote)
	assert.Equal(t, 0.3, v.Confidence)

	v = SentimentAgent{}.Vote(indicators.Snapshot{SentimentCount: 3, Sentiment: 0.9})
	assert.Equal(t, 0, v.Vote)
	assert.Equal(t, 0.3, v.Confidence)
}

func TestDefaultAgentsDisabled(t *testing.T) {
	assert.Len(t, DefaultAgents(), 7)
	agents := DefaultAgents(AgentSeasonal, AgentVIX)
	assert.Len(t, agents, 5)
	for _, a := range agents {
		assert.NotEqual(t, AgentSeasonal, a.Name())
	}
}

func rally(n int) []models.Bar {
	start := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Bar, n)
	p := 100.0
	for i := range out {
		out[i] = models.Bar{
			Time: start.AddDate(0, 0, i), Open: p, High: p * 1.005, Low: p * 0.995, Close: p,
			Volume: 1000, SentimentScore: 0.7, VIX: 17,
		}
		p *= 1.01
	}
	return out
}

func TestSwarmStrategyWarmupThenBuy(t *testing.T) {
	s, err := NewStrategy(DefaultParams(), nil)
	require.NoError(t, err)

	bars := rally(61)
	pos := &models.Position{}
	for _, b := range bars[:59] {
		d, err := s.OnBar(b, pos)
		require.ErrorIs(t, err, models.ErrInsufficientData)
		require.Equal(t, models.ActionHold, d.Action)
	}
	d, err := s.OnBar(bars[59], pos)
	require.NoError(t, err)
	assert.Equal(t, models.ActionBuy, d.Action)
	assert.Equal(t, 0.95, d.Size)
	assert.Greater(t, d.Score, 0.25)
	assert.Len(t, s.LastResult().Breakdown, 7)

	// the rally continues, so bullish voters gain accuracy
	_, err = s.OnBar(bars[60], &models.Position{Direction: models.Long, EntryPrice: bars[59].Close, HighWater: bars[59].Close})
	require.NoError(t, err)
	assert.Greater(t, s.Aggregator().Accuracy(AgentVIX), 0.5)
}

func TestSwarmStrategyRiskOverlayDuringWarmup(t *testing.T) {
	s, err := NewStrategy(DefaultParams(), nil)
	require.NoError(t, err)
	pos := &models.Position{Direction: models.Long, EntryPrice: 100, HighWater: 100}
	d, err := s.OnBar(models.Bar{Time: time.Now(), Open: 82, High: 85, Low: 79, Close: 80}, pos)
	require.NoError(t, err)
	assert.Equal(t, models.ActionSell, d.Action)
	assert.Equal(t, models.ReasonTrailingStop, d.Reason)
	assert.InDelta(t, 82.0, d.Price, 1e-9)
}

func TestSwarmFromConfig(t *testing.T) {
	cfg := config.Default()
	p := ParamsFromConfig(cfg.Swarm, cfg.Strategy)
	assert.Equal(t, DefaultParams(), p)

	_, err := NewStrategy(Params{Size: 2}, nil)
	assert.Error(t, err)
	assert.NotNil(t, AggregatorFromConfig(cfg.Swarm))
}
