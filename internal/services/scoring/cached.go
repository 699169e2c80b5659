package scoring

import (
	"context"
	"errors"
	"time"

	dsvc "RegimeTrader/internal/domain/service"
	"RegimeTrader/pkg/cache"
	"RegimeTrader/pkg/logger"
)

// CachedScorer memoises scores by prompt so re-mining a range does not pay
// for the same LLM call twice. Cache failures degrade to a direct call.
type CachedScorer struct {
	next  dsvc.RegimeScorer
	cache cache.Service
	ns    string
	ttl   time.Duration
	log   *logger.Logger
}

// NewCachedScorer wraps next. ns separates keys of different models.
func NewCachedScorer(next dsvc.RegimeScorer, c cache.Service, ns string, ttl time.Duration, log *logger.Logger) *CachedScorer {
	if log == nil {
		log = logger.Nop()
	}
	return &CachedScorer{next: next, cache: c, ns: ns, ttl: ttl, log: log}
}

func (s *CachedScorer) Score(ctx context.Context, in dsvc.RegimeContext) (float64, error) {
	key := cache.GenerateKeyWithParams("regime", s.ns, cache.HashKey(Prompt(in)))

	var cached float64
	err := s.cache.Get(ctx, key, &cached)
	switch {
	case err == nil:
		return cached, nil
	case !errors.Is(err, cache.ErrCacheMiss):
		s.log.Warn("score cache read failed", logger.String("key", key), logger.Error(err))
	}

	score, err := s.next.Score(ctx, in)
	if err != nil {
		return 0, err
	}
	if err := s.cache.Set(ctx, key, score, s.ttl); err != nil {
		s.log.Warn("score cache write failed", logger.String("key", key), logger.Error(err))
	}
	return score, nil
}

// FallbackScorer returns RuleScore when the primary scorer fails. A nil
// primary always uses the rule.
type FallbackScorer struct {
	primary dsvc.RegimeScorer
	log     *logger.Logger
	used    int
}

func NewFallbackScorer(primary dsvc.RegimeScorer, log *logger.Logger) *FallbackScorer {
	if log == nil {
		log = logger.Nop()
	}
	return &FallbackScorer{primary: primary, log: log}
}

func (s *FallbackScorer) Score(ctx context.Context, in dsvc.RegimeContext) (float64, error) {
	if s.primary != nil {
		score, err := s.primary.Score(ctx, in)
		if err == nil {
			return score, nil
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		s.log.Warn("using rule-based regime score",
			logger.String("symbol", in.Symbol),
			logger.Time("as_of", in.AsOf),
			logger.Error(err),
		)
	}
	s.used++
	return RuleScore(in.ChangePct), nil
}

// FallbackCount reports how many scores came from the rule.
func (s *FallbackScorer) FallbackCount() int { return s.used }
