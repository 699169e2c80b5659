package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	dsvc "RegimeTrader/internal/domain/service"
	"RegimeTrader/pkg/cache"
	"RegimeTrader/pkg/config"
	xhttp "RegimeTrader/pkg/http"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func llmConfig(url string) config.LLMConfig {
	cfg := config.Default().LLM
	cfg.BaseURL = url
	cfg.APIKey = "test-key"
	cfg.RetryDelay = time.Millisecond
	cfg.RPS = 1000
	cfg.Timeout = 2 * time.Second
	return cfg
}

func chatServer(t *testing.T, replies ...string) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "deepseek-chat", req.Model)
		require.Len(t, req.Messages, 2)

		reply := replies[len(replies)-1]
		if int(n) <= len(replies) {
			reply = replies[n-1]
		}
		switch reply {
		case "500":
			http.Error(w, "overloaded", http.StatusInternalServerError)
			return
		case "401":
			http.Error(w, "invalid api key", http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{{"message": map[string]string{"role": "assistant", "content": reply}}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

var week = dsvc.RegimeContext{Symbol: "NVDA", VIX: 18.2, ChangePct: 3.1, ATRPct: 2.4}

func TestDeepSeekScorer_Score(t *testing.T) {
	srv, calls := chatServer(t, " 0.8 ")
	s := NewDeepSeekScorer(llmConfig(srv.URL), nil)

	got, err := s.Score(context.Background(), week)
	require.NoError(t, err)
	assert.Equal(t, 0.8, got)
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))
}

func TestDeepSeekScorer_ClampsAndRetries(t *testing.T) {
	srv, calls := chatServer(t, "500", "bullish", "1.7")
	s := NewDeepSeekScorer(llmConfig(srv.URL), nil)

	got, err := s.Score(context.Background(), week)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)
	assert.EqualValues(t, 3, atomic.LoadInt32(calls))
}

func TestDeepSeekScorer_GivesUpAfterMaxRetries(t *testing.T) {
	srv, calls := chatServer(t, "500")
	s := NewDeepSeekScorer(llmConfig(srv.URL), nil)

	_, err := s.Score(context.Background(), week)
	require.Error(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt32(calls))
}

func TestDeepSeekScorer_StopsOnRejectedKey(t *testing.T) {
	srv, calls := chatServer(t, "401", "0.5")
	s := NewDeepSeekScorer(llmConfig(srv.URL), nil)

	_, err := s.Score(context.Background(), week)
	var se *xhttp.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.EqualValues(t, 1, atomic.LoadInt32(calls))
}

func TestDeepSeekScorer_NoKey(t *testing.T) {
	cfg := llmConfig("http://127.0.0.1:1")
	cfg.APIKey = ""
	_, err := NewDeepSeekScorer(cfg, nil).Score(context.Background(), week)
	require.ErrorIs(t, err, ErrNoAPIKey)
}

func TestParseScore(t *testing.T) {
	cases := map[string]float64{"-1.0": -1, "0": 0, "`0.5`": 0.5, "-3": -1, " 1.0\n": 1}
	for in, want := range cases {
		got, err := ParseScore(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"", "neutral", "NaN", "Inf"} {
		_, err := ParseScore(in)
		assert.Error(t, err, in)
	}
}

func TestRuleScore(t *testing.T) {
	assert.Equal(t, 1.0, RuleScore(2.01))
	assert.Equal(t, 0.0, RuleScore(2))
	assert.Equal(t, 0.0, RuleScore(-2))
	assert.Equal(t, -1.0, RuleScore(-2.5))
}

func TestPrompt(t *testing.T) {
	p := Prompt(week)
	assert.Contains(t, p, "VIX is 18.20, NVDA price change last week was 3.10%.")
	assert.Contains(t, p, "14-day ATR is 2.40% of price.")

	p = Prompt(dsvc.RegimeContext{Symbol: "X", VIX: math.NaN(), ChangePct: -1})
	assert.Contains(t, p, "VIX is unavailable, X price change last week was -1.00%.")
}

type stubScorer struct {
	calls int
	score float64
	err   error
}

func (s *stubScorer) Score(context.Context, dsvc.RegimeContext) (float64, error) {
	s.calls++
	return s.score, s.err
}

func TestCachedScorer(t *testing.T) {
	mc := cache.NewMemoryCache()
	defer mc.Close()
	stub := &stubScorer{score: -0.6}
	s := NewCachedScorer(stub, mc, "deepseek-chat", time.Hour, nil)

	for i := 0; i < 3; i++ {
		got, err := s.Score(context.Background(), week)
		require.NoError(t, err)
		assert.Equal(t, -0.6, got)
	}
	assert.Equal(t, 1, stub.calls)

	other := week
	other.ChangePct = -4
	_, err := s.Score(context.Background(), other)
	require.NoError(t, err)
	assert.Equal(t, 2, stub.calls)
}

func TestCachedScorer_DoesNotCacheErrors(t *testing.T) {
	mc := cache.NewMemoryCache()
	defer mc.Close()
	stub := &stubScorer{err: errors.New("down")}
	s := NewCachedScorer(stub, mc, "m", time.Hour, nil)

	_, err := s.Score(context.Background(), week)
	require.Error(t, err)
	_, err = s.Score(context.Background(), week)
	require.Error(t, err)
	assert.Equal(t, 2, stub.calls)
}

func TestFallbackScorer(t *testing.T) {
	s := NewFallbackScorer(&stubScorer{err: errors.New("down")}, nil)
	got, err := s.Score(context.Background(), week)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)
	assert.Equal(t, 1, s.FallbackCount())

	s = NewFallbackScorer(&stubScorer{score: 0.3}, nil)
	got, err = s.Score(context.Background(), week)
	require.NoError(t, err)
	assert.Equal(t, 0.3, got)
	assert.Equal(t, 0, s.FallbackCount())

	got, err = NewFallbackScorer(nil, nil).Score(context.Background(), dsvc.RegimeContext{ChangePct: -3})
	require.NoError(t, err)
	assert.Equal(t, -1.0, got)
}
