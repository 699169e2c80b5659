package usecase

import (
	"errors"
	"fmt"
	"time"

	"RegimeTrader/internal/domain/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrPositionOpen  = errors.New("position already open")
	ErrNoPosition    = errors.New("no open position")
	ErrOrderTooSmall = errors.New("order size below one unit")
)

// Broker is the single-position cash ledger of a run. Cash is kept in
// decimal so commissions never drift over long runs. Units are whole shares.
type Broker struct {
	runID      string
	symbol     string
	cash       decimal.Decimal
	commission decimal.Decimal
	pos        models.Position
}

func NewBroker(runID, symbol string, initialCash, commission float64) *Broker {
	return &Broker{
		runID:      runID,
		symbol:     symbol,
		cash:       decimal.NewFromFloat(initialCash),
		commission: decimal.NewFromFloat(commission),
	}
}

// Position exposes the live position so strategies can advance its
// high-water mark.
func (b *Broker) Position() *models.Position { return &b.pos }

func (b *Broker) Cash() float64 { return b.cash.InexactFloat64() }

// Equity marks the position to price.
func (b *Broker) Equity(price float64) float64 {
	return b.equity(decimal.NewFromFloat(price)).InexactFloat64()
}

func (b *Broker) equity(price decimal.Decimal) decimal.Decimal {
	units := decimal.NewFromFloat(b.pos.Units)
	switch b.pos.Direction {
	case models.Long:
		return b.cash.Add(units.Mul(price))
	case models.Short:
		return b.cash.Sub(units.Mul(price))
	}
	return b.cash
}

// Exposure is the market value of the position as a fraction of equity.
func (b *Broker) Exposure(price float64) float64 {
	if !b.pos.IsOpen() {
		return 0
	}
	eq := b.Equity(price)
	if eq <= 0 {
		return 1
	}
	return b.pos.Units * price / eq
}

// Open enters dir with size as the fraction of current equity to commit,
// commission included.
func (b *Broker) Open(dir models.Direction, price, size float64, at time.Time, barIdx int, takeProfit float64) (models.Fill, error) {
	if b.pos.IsOpen() {
		return models.Fill{}, ErrPositionOpen
	}
	if dir == models.Flat || price <= 0 || size <= 0 {
		return models.Fill{}, fmt.Errorf("open %s at %v size %v: invalid order", dir, price, size)
	}
	if size > 1 {
		size = 1
	}
	px := decimal.NewFromFloat(price)
	budget := b.equity(px).Mul(decimal.NewFromFloat(size))
	unitCost := px.Mul(decimal.NewFromInt(1).Add(b.commission))
	units := budget.Div(unitCost).Floor()
	if units.LessThan(decimal.NewFromInt(1)) {
		return models.Fill{}, fmt.Errorf("%w: budget %s at %s", ErrOrderTooSmall, budget.StringFixed(2), px.String())
	}
	notional := units.Mul(px)
	fee := notional.Mul(b.commission)

	side := models.ActionBuy
	if dir == models.Long {
		b.cash = b.cash.Sub(notional).Sub(fee)
	} else {
		side = models.ActionShort
		b.cash = b.cash.Add(notional).Sub(fee)
	}

	b.pos = models.Position{
		ID:         uuid.NewString(),
		Direction:  dir,
		EntryPrice: price,
		Size:       size,
		Units:      units.InexactFloat64(),
		EntryTime:  at,
		EntryBar:   barIdx,
		HighWater:  price,
		TakeProfit: takeProfit,
		EntryFee:   fee.InexactFloat64(),
	}
	return models.Fill{
		RunID:      b.runID,
		TradeID:    b.pos.ID,
		Symbol:     b.symbol,
		Time:       at,
		Side:       side,
		Direction:  dir,
		Price:      price,
		Units:      b.pos.Units,
		Size:       size,
		Commission: b.pos.EntryFee,
		Reason:     models.ReasonSignal,
	}, nil
}

// Close exits the open position at price and returns the exit fill and the
// closed trade. Position state is cleared.
func (b *Broker) Close(price float64, at time.Time, barIdx int, reason string) (models.Fill, models.TradeRecord, error) {
	if !b.pos.IsOpen() {
		return models.Fill{}, models.TradeRecord{}, ErrNoPosition
	}
	px := decimal.NewFromFloat(price)
	units := decimal.NewFromFloat(b.pos.Units)
	notional := units.Mul(px)
	fee := notional.Mul(b.commission)
	entryNotional := units.Mul(decimal.NewFromFloat(b.pos.EntryPrice))

	var gross decimal.Decimal
	side := models.ActionSell
	if b.pos.IsLong() {
		b.cash = b.cash.Add(notional).Sub(fee)
		gross = notional.Sub(entryNotional)
	} else {
		side = models.ActionCover
		b.cash = b.cash.Sub(notional).Sub(fee)
		gross = entryNotional.Sub(notional)
	}
	entryFee := decimal.NewFromFloat(b.pos.EntryFee)
	pnl := gross.Sub(fee).Sub(entryFee)
	pnlPct := decimal.Zero
	if !entryNotional.IsZero() {
		pnlPct = pnl.Div(entryNotional).Mul(decimal.NewFromInt(100))
	}

	fill := models.Fill{
		RunID:      b.runID,
		TradeID:    b.pos.ID,
		Symbol:     b.symbol,
		Time:       at,
		Side:       side,
		Direction:  b.pos.Direction,
		Price:      price,
		Units:      b.pos.Units,
		Size:       b.pos.Size,
		Commission: fee.InexactFloat64(),
		Reason:     reason,
	}
	trade := models.TradeRecord{
		ID:         b.pos.ID,
		RunID:      b.runID,
		Symbol:     b.symbol,
		Direction:  b.pos.Direction,
		EntryTime:  b.pos.EntryTime,
		ExitTime:   at,
		EntryPrice: b.pos.EntryPrice,
		ExitPrice:  price,
		Size:       b.pos.Size,
		Units:      b.pos.Units,
		PnL:        pnl.InexactFloat64(),
		PnLPct:     pnlPct.InexactFloat64(),
		Commission: fee.Add(entryFee).InexactFloat64(),
		Bars:       barIdx - b.pos.EntryBar,
		Duration:   at.Sub(b.pos.EntryTime),
		ExitReason: reason,
	}
	b.pos = models.Position{}
	return fill, trade, nil
}
