package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"RegimeTrader/internal/domain/models"
	"RegimeTrader/pkg/config"
	"RegimeTrader/pkg/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureQueue struct {
	msgType string
	payload interface{}
}

func (q *captureQueue) Enqueue(_ context.Context, msgType string, payload interface{}) (string, error) {
	q.msgType, q.payload = msgType, payload
	return "job-1", nil
}

func jobPayload(t *testing.T, p BacktestJobPayload) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	return raw
}

func TestBacktestJobSavesRun(t *testing.T) {
	runs := &fakeRuns{}
	src := fakeSource{bars: []models.Bar{
		mkBar(0, 99, 101, 98, 100, 0.8, 0.1),
		mkBar(1, 101, 106, 100, 105, 0.8, 0.2),
	}}
	job := NewBacktestJob(NewBacktestUseCase(config.Default(), src, nil, nil, runs, nil, nil), nil)

	err := job.Handle(context.Background(), jobPayload(t, BacktestJobPayload{Symbol: "NVDA"}))
	require.NoError(t, err)
	require.Len(t, runs.runs, 1)
	assert.Equal(t, "NVDA", runs.runs[0].Symbol)
	assert.Equal(t, BacktestJobType, job.Type())
}

func TestBacktestJobErrorClasses(t *testing.T) {
	cfg := config.Default()
	bars := fakeSource{bars: []models.Bar{mkBar(0, 1, 1, 1, 1, 0, 0)}}

	err := NewBacktestJob(NewBacktestUseCase(cfg, bars, nil, nil, nil, nil, nil), nil).
		Handle(context.Background(), jobPayload(t, BacktestJobPayload{Symbol: "NVDA", Strategy: "martingale"}))
	assert.ErrorIs(t, err, ErrUnknownStrategy)
	assert.True(t, queue.IsPermanent(err))

	boom := errors.New("clickhouse timeout")
	err = NewBacktestJob(NewBacktestUseCase(cfg, fakeSource{err: boom}, nil, nil, nil, nil, nil), nil).
		Handle(context.Background(), jobPayload(t, BacktestJobPayload{Symbol: "NVDA"}))
	assert.ErrorIs(t, err, boom)
	assert.False(t, queue.IsPermanent(err))

	err = NewBacktestJob(NewBacktestUseCase(cfg, bars, nil, nil, nil, nil, nil), nil).
		Handle(context.Background(), json.RawMessage(`[1,2`))
	assert.True(t, queue.IsPermanent(err))
}

func TestSubmitBacktest(t *testing.T) {
	q := &captureQueue{}
	id, err := SubmitBacktest(context.Background(), q, BacktestJobPayload{Symbol: "AMD"})
	require.NoError(t, err)
	assert.Equal(t, "job-1", id)
	assert.Equal(t, BacktestJobType, q.msgType)
	assert.Equal(t, BacktestJobPayload{Symbol: "AMD"}, q.payload)
}
