package models

import (
	"fmt"
	"strings"
	"time"
)

type Regime int

const (
	RegimeSideways Regime = iota
	RegimeBullish
	RegimeBearish
)

func (r Regime) String() string {
	switch r {
	case RegimeBullish:
		return "bullish"
	case RegimeBearish:
		return "bearish"
	default:
		return "sideways"
	}
}

func (r Regime) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

type Action int

const (
	ActionHold Action = iota
	ActionBuy
	ActionSell
	ActionShort
	ActionCover
)

func (a Action) String() string {
	switch a {
	case ActionBuy:
		return "buy"
	case ActionSell:
		return "sell"
	case ActionShort:
		return "short"
	case ActionCover:
		return "cover"
	default:
		return "hold"
	}
}

func (a Action) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Action) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "hold", "":
		*a = ActionHold
	case "buy":
		*a = ActionBuy
	case "sell":
		*a = ActionSell
	case "short":
		*a = ActionShort
	case "cover":
		*a = ActionCover
	default:
		return fmt.Errorf("unknown action %q", b)
	}
	return nil
}

// IsEntry reports whether the action opens a position.
func (a Action) IsEntry() bool { return a == ActionBuy || a == ActionShort }

// IsExit reports whether the action closes a position.
func (a Action) IsExit() bool { return a == ActionSell || a == ActionCover }

type Direction int

const (
	Flat Direction = iota
	Long
	Short
)

func (d Direction) String() string {
	switch d {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "flat"
	}
}

func (d Direction) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Direction) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "flat", "":
		*d = Flat
	case "long":
		*d = Long
	case "short":
		*d = Short
	default:
		return fmt.Errorf("unknown direction %q", b)
	}
	return nil
}

// Sign is +1 for long, -1 for short and 0 when flat.
func (d Direction) Sign() float64 {
	switch d {
	case Long:
		return 1
	case Short:
		return -1
	default:
		return 0
	}
}

// Position is the single open holding. The zero value is flat.
type Position struct {
	ID         string    `json:"id,omitempty"`
	Direction  Direction `json:"direction"`
	EntryPrice float64   `json:"entry_price"`
	Size       float64   `json:"size"`
	Units      float64   `json:"units"`
	EntryTime  time.Time `json:"entry_time"`
	EntryBar   int       `json:"entry_bar"`
	// HighWater is the most favourable price since entry: highest high for a
	// long, lowest low for a short.
	HighWater  float64 `json:"high_water"`
	TakeProfit float64 `json:"take_profit,omitempty"`
	EntryFee   float64 `json:"entry_fee"`
}

func (p Position) IsOpen() bool  { return p.Direction != Flat }
func (p Position) IsLong() bool  { return p.Direction == Long }
func (p Position) IsShort() bool { return p.Direction == Short }

// Exit reasons recorded on trades and fills.
const (
	ReasonSignal       = "signal"
	ReasonStopLoss     = "stop_loss"
	ReasonTrailingStop = "trailing_stop"
	ReasonTakeProfit   = "take_profit"
	ReasonReversal     = "reversal"
	ReasonEndOfData    = "end_of_data"
)

// Decision is what a strategy wants done on the current bar.
type Decision struct {
	Action     Action  `json:"action"`
	Size       float64 `json:"size"`
	Confidence float64 `json:"confidence"`
	Regime     Regime  `json:"regime"`
	Mode       string  `json:"mode"`
	Reason     string  `json:"reason"`
	// Price overrides the bar close as fill price; set by stop exits.
	Price      float64 `json:"price,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty"`
	Score      float64 `json:"score,omitempty"`
}

// Hold is a no-op decision.
func Hold(mode, reason string) Decision {
	return Decision{Action: ActionHold, Mode: mode, Reason: reason}
}

// Fill is one execution emitted by the broker.
type Fill struct {
	RunID      string    `json:"run_id"`
	TradeID    string    `json:"trade_id"`
	Symbol     string    `json:"symbol"`
	Time       time.Time `json:"time"`
	Side       Action    `json:"side"`
	Direction  Direction `json:"direction"`
	Price      float64   `json:"price"`
	Units      float64   `json:"units"`
	Size       float64   `json:"size"`
	Commission float64   `json:"commission"`
	Reason     string    `json:"reason"`
}

// TradeRecord is the immutable log entry written when a position closes.
type TradeRecord struct {
	ID         string        `json:"id"`
	RunID      string        `json:"run_id"`
	Symbol     string        `json:"symbol"`
	Direction  Direction     `json:"direction"`
	EntryTime  time.Time     `json:"entry_time"`
	ExitTime   time.Time     `json:"exit_time"`
	EntryPrice float64       `json:"entry_price"`
	ExitPrice  float64       `json:"exit_price"`
	Size       float64       `json:"size"`
	Units      float64       `json:"units"`
	PnL        float64       `json:"pnl"`
	PnLPct     float64       `json:"pnl_pct"`
	Commission float64       `json:"commission"`
	Bars       int           `json:"bars"`
	Duration   time.Duration `json:"duration"`
	ExitReason string        `json:"exit_reason"`
}

// EquityPoint is one value of the equity curve.
type EquityPoint struct {
	Time     time.Time `json:"time"`
	Equity   float64   `json:"equity"`
	Cash     float64   `json:"cash"`
	Exposure float64   `json:"exposure"`
}
