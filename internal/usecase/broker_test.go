package usecase

import (
	"testing"
	"time"

	"RegimeTrader/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)

func TestBrokerLongRoundTrip(t *testing.T) {
	b := NewBroker("run", "NVDA", 100000, 0.001)

	fill, err := b.Open(models.Long, 100, 0.95, day0, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 949.0, fill.Units)
	assert.InDelta(t, 94.9, fill.Commission, 1e-9)
	assert.InDelta(t, 5005.1, b.Cash(), 1e-9)
	assert.InDelta(t, 99905.1, b.Equity(100), 1e-9)
	assert.Equal(t, 100.0, b.Position().HighWater)
	assert.NotEmpty(t, b.Position().ID)

	_, err = b.Open(models.Long, 100, 0.5, day0, 0, 0)
	assert.ErrorIs(t, err, ErrPositionOpen)

	exit, trade, err := b.Close(110, day0.AddDate(0, 0, 3), 3, models.ReasonSignal)
	require.NoError(t, err)
	assert.Equal(t, models.ActionSell, exit.Side)
	assert.Equal(t, fill.TradeID, trade.ID)
	assert.InDelta(t, 9290.71, trade.PnL, 1e-6)
	assert.InDelta(t, 9290.71/94900*100, trade.PnLPct, 1e-9)
	assert.Equal(t, 3, trade.Bars)
	assert.Equal(t, 72*time.Hour, trade.Duration)
	assert.InDelta(t, 109290.71, b.Cash(), 1e-6)
	assert.False(t, b.Position().IsOpen())

	_, _, err = b.Close(110, day0, 4, models.ReasonSignal)
	assert.ErrorIs(t, err, ErrNoPosition)
}

func TestBrokerShortRoundTrip(t *testing.T) {
	b := NewBroker("run", "NVDA", 100000, 0.001)
	fill, err := b.Open(models.Short, 100, 0.5, day0, 0, 95)
	require.NoError(t, err)
	assert.Equal(t, models.ActionShort, fill.Side)
	assert.Equal(t, 499.0, fill.Units)
	assert.InDelta(t, 99950.1, b.Equity(100), 1e-9)
	assert.Equal(t, 95.0, b.Position().TakeProfit)
	assert.InDelta(t, 0.5, b.Exposure(100), 0.01)

	_, trade, err := b.Close(90, day0.AddDate(0, 0, 1), 1, models.ReasonTakeProfit)
	require.NoError(t, err)
	assert.InDelta(t, 4895.19, trade.PnL, 1e-6)
	assert.InDelta(t, 104895.19, b.Equity(90), 1e-6)
}

func TestBrokerRejectsTinyOrders(t *testing.T) {
	b := NewBroker("run", "NVDA", 50, 0.001)
	_, err := b.Open(models.Long, 100, 1, day0, 0, 0)
	assert.ErrorIs(t, err, ErrOrderTooSmall)

	_, err = b.Open(models.Flat, 100, 1, day0, 0, 0)
	assert.Error(t, err)
}
