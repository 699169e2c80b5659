package models

// Requests for the strategy HTTP endpoints. Defined in domain for consistency and reuse.

type ClassifyRequest struct {
	Scores []float64 `json:"scores" validate:"required,min=1,max=10000"`
}

type AgentVoteRequest struct {
	Agent      string  `json:"agent" validate:"required"`
	Vote       int     `json:"vote" validate:"oneof=-1 0 1"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
}

type AggregateRequest struct {
	Votes []AgentVoteRequest `json:"votes" validate:"required,min=1,dive"`
}

type BarInput struct {
	Time           string   `json:"time" validate:"required"`
	Open           float64  `json:"open" validate:"gt=0"`
	High           float64  `json:"high" validate:"gt=0"`
	Low            float64  `json:"low" validate:"gt=0"`
	Close          float64  `json:"close" validate:"gt=0"`
	Volume         float64  `json:"volume" validate:"gte=0"`
	RegimeScore    float64  `json:"regime_score"`
	SentimentScore float64  `json:"sentiment_score"`
	VIX            *float64 `json:"vix,omitempty"`
	SignalsAsOf    string   `json:"signals_as_of,omitempty"`
}

type BacktestRequest struct {
	Symbol   string     `json:"symbol" validate:"required"`
	From     string     `json:"from"`
	To       string     `json:"to"`
	Strategy string     `json:"strategy" validate:"omitempty,oneof=adaptive swarm trend"`
	Bars     []BarInput `json:"bars" validate:"omitempty,max=20000,dive"`
	// InitialCash and Commission fall back to the backtest config when unset.
	InitialCash float64  `json:"initial_cash" validate:"gte=0"`
	Commission  *float64 `json:"commission" validate:"omitempty,gte=0,lt=1"`
	Journal     bool     `json:"journal"`
}

type RunsRequest struct {
	Symbol string `query:"symbol" json:"symbol"`
	Limit  int    `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=500"`
}
