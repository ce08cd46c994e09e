package workers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_AllTasksRunOnce(t *testing.T) {
	var seen [20]atomic.Int32
	n := Run(context.Background(), len(seen), func(_ context.Context, i int) error {
		seen[i].Add(1)
		return nil
	}, RunOptions{Workers: 4})

	assert.Equal(t, len(seen), n)
	for i := range seen {
		assert.Equal(t, int32(1), seen[i].Load(), "task %d", i)
	}
}

func TestRun_BoundsConcurrency(t *testing.T) {
	var cur, peak atomic.Int32
	Run(context.Background(), 30, func(_ context.Context, _ int) error {
		c := cur.Add(1)
		for {
			p := peak.Load()
			if c <= p || peak.CompareAndSwap(p, c) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		cur.Add(-1)
		return nil
	}, RunOptions{Workers: 3})

	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Greater(t, peak.Load(), int32(0))
}

func TestRun_ReportsErrors(t *testing.T) {
	var mu sync.Mutex
	failed := map[int]error{}
	boom := errors.New("boom")

	Run(context.Background(), 5, func(_ context.Context, i int) error {
		if i%2 == 1 {
			return boom
		}
		return nil
	}, RunOptions{Workers: 2, OnError: func(i int, err error) {
		mu.Lock()
		defer mu.Unlock()
		failed[i] = err
	}})

	require.Len(t, failed, 2)
	assert.ErrorIs(t, failed[1], boom)
	assert.ErrorIs(t, failed[3], boom)
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	n := Run(ctx, 10, func(_ context.Context, _ int) error {
		calls.Add(1)
		return nil
	}, RunOptions{Workers: 1})

	assert.Equal(t, 0, n)
	assert.Equal(t, int32(0), calls.Load())
}

func TestRun_Empty(t *testing.T) {
	assert.Equal(t, 0, Run(context.Background(), 0, nil, RunOptions{}))
}
