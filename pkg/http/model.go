package http

// APIResponse is the envelope every endpoint writes.
type APIResponse struct {
	Status  int    `json:"status" example:"200"`
	Message string `json:"message" example:"OK"`
	Data    any    `json:"data,omitempty"`
}

// ValidationError describes one rejected request field.
type ValidationError struct {
	Code    string         `json:"code,omitempty" example:"ERR_GTE"`
	Field   string         `json:"field,omitempty" example:"commission"`
	Message string         `json:"message,omitempty" example:"commission must be greater than or equal to 0"`
	Params  map[string]any `json:"params,omitempty"`
}

// ListDataResponse wraps run and paper-session listings.
type ListDataResponse struct {
	Rows  any   `json:"rows"`
	Total int64 `json:"total"`
}
