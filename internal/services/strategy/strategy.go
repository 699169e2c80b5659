// Package strategy turns a bar stream into trading decisions.
package strategy

import (
	"RegimeTrader/internal/domain/models"
	"RegimeTrader/internal/domain/repository"
	"RegimeTrader/pkg/logger"
)

// Strategy consumes one bar at a time. OnBar may advance the high-water mark
// of pos; it never opens or closes it. A non-nil error is informational and
// always comes with a Hold decision.
type Strategy interface {
	Name() string
	OnBar(bar models.Bar, pos *models.Position) (models.Decision, error)
	Reset()
}

type Options struct {
	Logger  *logger.Logger
	Metrics repository.Metrics
}

type Option func(*Options)

func WithLogger(l *logger.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

func WithMetrics(m repository.Metrics) Option {
	return func(o *Options) { o.Metrics = m }
}

func buildOptions(opts []Option) Options {
	o := Options{Logger: logger.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = logger.Nop()
	}
	return o
}
