package router

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchbook/pkg/exchange/engine"
	"matchbook/pkg/exchange/ledger"
	"matchbook/pkg/exchange/market"
	"matchbook/pkg/exchange/orderbook"
)

func newTestRouter(t *testing.T, queueSize int, timeout time.Duration) (*Router, context.CancelFunc) {
	t.Helper()

	registry := market.NewRegistry()
	m, err := market.New("TATA", "INR")
	require.NoError(t, err)
	require.NoError(t, registry.Register(m))

	led := ledger.NewLedger()
	require.NoError(t, led.Deposit("u001", "INR", 1_000_000))
	require.NoError(t, led.Deposit("u002", "TATA", 1_000_000))

	eng := engine.New(engine.Config{}, registry, led, nil, nil)
	r := New(eng, queueSize, timeout, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)
	t.Cleanup(cancel)
	return r, cancel
}

func TestSubmitRoutesReplyToCaller(t *testing.T) {
	r, _ := newTestRouter(t, 16, time.Second)

	reply, err := r.Submit(context.Background(), engine.CreateOrder{
		Market: "TATA_INR", Price: 100, Qty: 10, Side: orderbook.Buy, Owner: "u001",
	})
	require.NoError(t, err)
	placed, ok := reply.(engine.OrderPlaced)
	require.True(t, ok)
	assert.NotEmpty(t, placed.OrderID)
}

func TestSubmitReturnsBusinessError(t *testing.T) {
	r, _ := newTestRouter(t, 16, time.Second)

	_, err := r.Submit(context.Background(), engine.CreateOrder{
		Market: "DOGE_INR", Price: 1, Qty: 1, Side: orderbook.Buy, Owner: "u001",
	})
	assert.ErrorIs(t, err, market.ErrMarketNotFound)

	// The consumer keeps going after a business failure.
	_, err = r.Submit(context.Background(), engine.GetDepth{Market: "TATA_INR"})
	assert.NoError(t, err)
}

func TestConcurrentSubmitsAllGetDistinctReplies(t *testing.T) {
	r, _ := newTestRouter(t, 64, 2*time.Second)

	const n = 20
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reply, err := r.Submit(context.Background(), engine.CreateOrder{
				Market: "TATA_INR", Price: 90, Qty: 1, Side: orderbook.Buy, Owner: "u001",
			})
			if err != nil {
				ids <- fmt.Sprintf("err: %v", err)
				return
			}
			ids <- reply.(engine.OrderPlaced).OrderID
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate or error reply: %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)

	// All 20 locks landed on the sequential path.
	reply, err := r.Submit(context.Background(), engine.GetDepth{Market: "TATA_INR"})
	require.NoError(t, err)
	depth := reply.(engine.Depth)
	require.Len(t, depth.Bids, 1)
	assert.Equal(t, int64(20), depth.Bids[0].Qty)
}

func TestSubmitTimesOutWithoutConsumer(t *testing.T) {
	registry := market.NewRegistry()
	m, err := market.New("TATA", "INR")
	require.NoError(t, err)
	require.NoError(t, registry.Register(m))
	eng := engine.New(engine.Config{}, registry, ledger.NewLedger(), nil, nil)

	// Run is never started, so the enqueued request is never consumed.
	r := New(eng, 1, 50*time.Millisecond, nil)

	_, err = r.Submit(context.Background(), engine.GetDepth{Market: "TATA_INR"})
	assert.ErrorIs(t, err, ErrRequestTimeout)

	// Queue now full: the enqueue phase itself times out.
	_, err = r.Submit(context.Background(), engine.GetDepth{Market: "TATA_INR"})
	assert.ErrorIs(t, err, ErrRequestTimeout)
}

func TestSubmitHonoursCallerContext(t *testing.T) {
	registry := market.NewRegistry()
	m, err := market.New("TATA", "INR")
	require.NoError(t, err)
	require.NoError(t, registry.Register(m))
	eng := engine.New(engine.Config{}, registry, ledger.NewLedger(), nil, nil)
	r := New(eng, 1, time.Minute, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = r.Submit(ctx, engine.GetDepth{Market: "TATA_INR"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDrainFailsQueuedRequestsOnShutdown(t *testing.T) {
	registry := market.NewRegistry()
	m, err := market.New("TATA", "INR")
	require.NoError(t, err)
	require.NoError(t, registry.Register(m))
	eng := engine.New(engine.Config{}, registry, ledger.NewLedger(), nil, nil)
	r := New(eng, 4, time.Second, nil)

	errs := make(chan error, 1)
	go func() {
		_, err := r.Submit(context.Background(), engine.GetDepth{Market: "TATA_INR"})
		errs <- err
	}()

	// Give the submitter time to enqueue, then drain as shutdown would.
	time.Sleep(20 * time.Millisecond)
	r.drain()

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrRouterClosed)
	case <-time.After(time.Second):
		t.Fatal("queued request was never failed")
	}
}
