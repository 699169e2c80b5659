package models

// AgentVote is one specialist's opinion for the current bar.
type AgentVote struct {
	Agent      string  `json:"agent"`
	Vote       int     `json:"vote"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

// AgentBreakdown explains how a vote contributed to the aggregate score.
type AgentBreakdown struct {
	Agent        string  `json:"agent"`
	Vote         int     `json:"vote"`
	Confidence   float64 `json:"confidence"`
	BaseWeight   float64 `json:"base_weight"`
	Accuracy     float64 `json:"accuracy"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
}

// SwarmResult is the aggregator output.
type SwarmResult struct {
	Decision    Action           `json:"decision"`
	Score       float64          `json:"score"`
	TotalWeight float64          `json:"total_weight"`
	Breakdown   []AgentBreakdown `json:"breakdown"`
}
