package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSyncFansOutToAllListeners(t *testing.T) {
	bus := NewBus(nil, nil)
	var calls int32
	bus.Subscribe("trade.created", func(ctx context.Context, e Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	bus.Subscribe("trade.created", func(ctx context.Context, e Event) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	bus.PublishSync(context.Background(), New("trade.created", map[string]any{"symbol": "AAPL"}, "test"))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestPublishSyncIsolatesListenerErrors(t *testing.T) {
	bus := NewBus(nil, nil)
	var secondCalled int32
	bus.Subscribe("x", func(ctx context.Context, e Event) error {
		return errors.New("boom")
	})
	bus.Subscribe("x", func(ctx context.Context, e Event) error {
		atomic.AddInt32(&secondCalled, 1)
		return nil
	})

	bus.PublishSync(context.Background(), New("x", nil, "test"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&secondCalled))
}

func TestPublishSyncIsolatesListenerPanics(t *testing.T) {
	bus := NewBus(nil, nil)
	var secondCalled int32
	bus.Subscribe("x", func(ctx context.Context, e Event) error {
		panic("boom")
	})
	bus.Subscribe("x", func(ctx context.Context, e Event) error {
		atomic.AddInt32(&secondCalled, 1)
		return nil
	})

	assert.NotPanics(t, func() {
		bus.PublishSync(context.Background(), New("x", nil, "test"))
	})
	assert.Equal(t, int32(1), atomic.LoadInt32(&secondCalled))
}

func TestPublishAsyncDeliversViaWorkerPool(t *testing.T) {
	bus := NewBus(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus.Start(ctx)
	defer bus.Stop(context.Background())

	done := make(chan struct{})
	bus.Subscribe("y", func(ctx context.Context, e Event) error {
		close(done)
		return nil
	})

	require.NoError(t, bus.PublishAsync(ctx, New("y", nil, "test")))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("listener was not invoked within timeout")
	}
}

func TestListenerCount(t *testing.T) {
	bus := NewBus(nil, nil)
	assert.Equal(t, 0, bus.ListenerCount("z"))
	bus.Subscribe("z", func(ctx context.Context, e Event) error { return nil })
	assert.Equal(t, 1, bus.ListenerCount("z"))
}

func TestSequenceIncreasesMonotonically(t *testing.T) {
	bus := NewBus(nil, nil)
	var seqs []int64
	bus.Subscribe("s", func(ctx context.Context, e Event) error {
		seqs = append(seqs, e.Sequence)
		return nil
	})
	bus.PublishSync(context.Background(), New("s", nil, "test"))
	bus.PublishSync(context.Background(), New("s", nil, "test"))
	require.Len(t, seqs, 2)
	assert.Less(t, seqs[0], seqs[1])
}
