package scoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	dsvc "RegimeTrader/internal/domain/service"
	"RegimeTrader/pkg/config"
	xhttp "RegimeTrader/pkg/http"
	"RegimeTrader/pkg/logger"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

var ErrNoAPIKey = errors.New("llm api key not configured")

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// DeepSeekScorer asks an OpenAI-compatible chat endpoint for a regime score.
// Calls are rate limited and guarded by a circuit breaker; each Score makes
// up to MaxRetries attempts.
type DeepSeekScorer struct {
	cfg     config.LLMConfig
	client  *xhttp.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	log     *logger.Logger
}

func NewDeepSeekScorer(cfg config.LLMConfig, log *logger.Logger) *DeepSeekScorer {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	rps := cfg.RPS
	if rps <= 0 {
		rps = 1
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	st := gobreaker.Settings{
		Name:    "deepseek",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		},
	}
	return &DeepSeekScorer{
		cfg:     cfg,
		client:  xhttp.NewClient(xhttp.WithTimeout(cfg.Timeout)),
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		breaker: gobreaker.NewCircuitBreaker(st),
		log:     log,
	}
}

// Model identifies the scorer for cache keys.
func (s *DeepSeekScorer) Model() string { return s.cfg.Model }

func (s *DeepSeekScorer) Score(ctx context.Context, in dsvc.RegimeContext) (float64, error) {
	if s.cfg.APIKey == "" {
		return 0, ErrNoAPIKey
	}
	prompt := Prompt(in)

	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxRetries; attempt++ {
		score, err := s.call(ctx, prompt)
		if err == nil {
			return score, nil
		}
		lastErr = err
		s.log.Warn("llm score attempt failed",
			logger.String("symbol", in.Symbol),
			logger.Int("attempt", attempt),
			logger.Int("max", s.cfg.MaxRetries),
			logger.Error(err),
		)
		if errors.Is(err, gobreaker.ErrOpenState) || !xhttp.IsTemporary(err) || ctx.Err() != nil {
			break
		}
		if attempt < s.cfg.MaxRetries && s.cfg.RetryDelay > 0 {
			select {
			case <-time.After(s.cfg.RetryDelay):
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		}
	}
	return 0, fmt.Errorf("llm score for %s: %w", in.Symbol, lastErr)
}

func (s *DeepSeekScorer) call(ctx context.Context, prompt string) (float64, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	out, err := s.breaker.Execute(func() (interface{}, error) {
		var resp chatResponse
		err := s.client.SendAndParse(ctx, &xhttp.RequestOptions{
			Method: xhttp.MethodPost,
			URL:    s.cfg.BaseURL + "/chat/completions",
			Headers: map[string]string{
				"Content-Type":  "application/json",
				"Authorization": "Bearer " + s.cfg.APIKey,
			},
			Body: chatRequest{
				Model: s.cfg.Model,
				Messages: []chatMessage{
					{Role: "system", Content: systemPrompt},
					{Role: "user", Content: prompt},
				},
				Temperature: s.cfg.Temperature,
				MaxTokens:   s.cfg.MaxTokens,
			},
		}, &resp)
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 {
			return nil, errors.New("empty choices")
		}
		return ParseScore(resp.Choices[0].Message.Content)
	})
	if err != nil {
		return 0, err
	}
	return out.(float64), nil
}
