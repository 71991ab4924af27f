package quote

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"broker-swap/pkg/types"
)

const testWindow = 20 * time.Millisecond

type fakeService struct {
	mu       sync.Mutex
	calls    []string
	quotes   []Request
	quoteErr error
	events   chan Event
	closed   bool
}

func newFakeService() *fakeService {
	return &fakeService{events: make(chan Event, 16)}
}

func (f *fakeService) Quote(_ context.Context, req Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "quote")
	f.quotes = append(f.quotes, req)
	return f.quoteErr
}

func (f *fakeService) ConfirmQuote(_ context.Context, account string, _ SignFunc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "confirm:"+account)
	return nil
}

func (f *fakeService) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "stop")
	return nil
}

func (f *fakeService) Events() <-chan Event { return f.events }

func (f *fakeService) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
	return nil
}

func (f *fakeService) snapshot() ([]string, []Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...), append([]Request(nil), f.quotes...)
}

func TestDebouncerCollapsesBurst(t *testing.T) {
	d := NewDebouncer(testWindow)
	var fired atomic.Int32
	var last atomic.Int32

	for i := 1; i <= 5; i++ {
		v := int32(i)
		d.Trigger(func() {
			fired.Add(1)
			last.Store(v)
		})
	}

	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(3 * testWindow)
	require.Equal(t, int32(1), fired.Load())
	require.Equal(t, int32(5), last.Load())
}

func TestDebouncerCancel(t *testing.T) {
	d := NewDebouncer(testWindow)
	var fired atomic.Bool
	d.Trigger(func() { fired.Store(true) })
	d.Cancel()

	time.Sleep(3 * testWindow)
	require.False(t, fired.Load())
}

func TestChannelSendsOnlyLastRequest(t *testing.T) {
	svc := newFakeService()
	c := NewChannel(svc, testWindow)
	defer c.Close()

	c.Request(Request{SellingAsset: "XLM", BuyingAsset: "AQUA-G", SellingAmount: "1"})
	c.Request(Request{SellingAsset: "XLM", BuyingAsset: "AQUA-G", SellingAmount: "10"})
	c.Request(Request{SellingAsset: "XLM", BuyingAsset: "AQUA-G", SellingAmount: "100"})

	require.Eventually(t, func() bool {
		_, quotes := svc.snapshot()
		return len(quotes) == 1
	}, time.Second, 5*time.Millisecond)

	_, quotes := svc.snapshot()
	require.Equal(t, "100", quotes[0].SellingAmount)
	require.Equal(t, uint64(3), quotes[0].ID)
}

func TestChannelStopCancelsPending(t *testing.T) {
	svc := newFakeService()
	c := NewChannel(svc, testWindow)
	defer c.Close()

	c.Request(Request{SellingAsset: "XLM", BuyingAsset: "AQUA-G", SellingAmount: "1"})
	c.Stop()

	time.Sleep(3 * testWindow)
	calls, _ := svc.snapshot()
	require.Empty(t, calls, "nothing was subscribed, so nothing to stop either")
}

func TestChannelStopsBeforeResubscribing(t *testing.T) {
	svc := newFakeService()
	c := NewChannel(svc, testWindow)
	defer c.Close()

	c.Request(Request{SellingAsset: "XLM", BuyingAsset: "AQUA-G", SellingAmount: "1"})
	require.Eventually(t, func() bool {
		calls, _ := svc.snapshot()
		return len(calls) == 1
	}, time.Second, 5*time.Millisecond)

	c.Request(Request{SellingAsset: "XLM", BuyingAsset: "AQUA-G", SellingAmount: "2"})
	require.Eventually(t, func() bool {
		calls, _ := svc.snapshot()
		return len(calls) == 3
	}, time.Second, 5*time.Millisecond)

	calls, _ := svc.snapshot()
	require.Equal(t, []string{"quote", "stop", "quote"}, calls)

	c.Stop()
	calls, _ = svc.snapshot()
	require.Equal(t, "stop", calls[len(calls)-1])
}

func TestChannelDropsStaleQuotes(t *testing.T) {
	svc := newFakeService()
	c := NewChannel(svc, testWindow)
	defer c.Close()

	c.Request(Request{SellingAsset: "XLM", BuyingAsset: "AQUA-G", SellingAmount: "1"})
	c.Request(Request{SellingAsset: "XLM", BuyingAsset: "AQUA-G", SellingAmount: "2"})

	svc.events <- Event{Type: EventQuote, Quote: &types.Quote{RequestID: 1, EstimatedBuyingAmount: "old"}}
	svc.events <- Event{Type: EventQuote, Quote: &types.Quote{RequestID: 2, EstimatedBuyingAmount: "new"}}

	select {
	case ev := <-c.Events():
		require.Equal(t, EventQuote, ev.Type)
		require.Equal(t, "new", ev.Quote.EstimatedBuyingAmount)
	case <-time.After(time.Second):
		t.Fatal("quote was not relayed")
	}

	c.Stop()
	svc.events <- Event{Type: EventQuote, Quote: &types.Quote{EstimatedBuyingAmount: "late"}}
	svc.events <- Event{Type: EventPaused}

	select {
	case ev := <-c.Events():
		require.Equal(t, EventPaused, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("paused event was not relayed")
	}
}

func TestChannelHoldKeepsSubscriptionForConfirm(t *testing.T) {
	svc := newFakeService()
	c := NewChannel(svc, testWindow)
	defer c.Close()

	c.Request(Request{SellingAsset: "XLM", BuyingAsset: "AQUA-G", SellingAmount: "1"})
	require.Eventually(t, func() bool {
		calls, _ := svc.snapshot()
		return len(calls) == 1
	}, time.Second, 5*time.Millisecond)

	c.Hold()
	svc.events <- Event{Type: EventQuote, Quote: &types.Quote{EstimatedBuyingAmount: "moved"}}
	svc.events <- Event{Type: EventPaused}

	select {
	case ev := <-c.Events():
		require.Equal(t, EventPaused, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("paused event was not relayed")
	}

	require.NoError(t, c.Confirm(context.Background(), "GESCROW", nil))
	calls, _ := svc.snapshot()
	require.Equal(t, []string{"quote", "confirm:GESCROW"}, calls)

	c.Stop()
	calls, _ = svc.snapshot()
	require.Equal(t, "stop", calls[len(calls)-1])
}

func TestChannelQuoteFailureBecomesErrorEvent(t *testing.T) {
	svc := newFakeService()
	svc.quoteErr = errors.New("socket closed")
	c := NewChannel(svc, testWindow)
	defer c.Close()

	c.Request(Request{SellingAsset: "XLM", BuyingAsset: "AQUA-G", SellingAmount: "1"})

	select {
	case ev := <-c.Events():
		require.Equal(t, EventError, ev.Type)
		require.Equal(t, "socket closed", ev.Error)
	case <-time.After(time.Second):
		t.Fatal("error event was not emitted")
	}
}

func TestChannelConfirmAndClose(t *testing.T) {
	svc := newFakeService()
	c := NewChannel(svc, testWindow)

	require.NoError(t, c.Confirm(context.Background(), "GESCROW", nil))
	require.NoError(t, c.Close())

	calls, _ := svc.snapshot()
	require.Equal(t, []string{"confirm:GESCROW"}, calls)

	_, open := <-c.Events()
	require.False(t, open)
}
