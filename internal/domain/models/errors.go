package models

import "errors"

var (
	// ErrInsufficientData means a rule needs more history than is available.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrInvalidInput means a signal value is NaN or infinite.
	ErrInvalidInput = errors.New("invalid input")
	// ErrLookAhead marks a bar whose signals were not known before the bar closed.
	ErrLookAhead = errors.New("signals not known before bar close")
)
