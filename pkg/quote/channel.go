// Package quote turns swap parameter changes into a debounced stream of
// quote requests and relays the routing service's events.
package quote

import (
	"context"
	"sync"
	"time"

	"broker-swap/pkg/logger"
	"broker-swap/pkg/metrics"
)

// DefaultDebounce is the quiet window before a quote request goes out.
const DefaultDebounce = 800 * time.Millisecond

const (
	serviceCallTimeout = 10 * time.Second
	eventBuffer        = 64
)

var log = logger.New("quote")

// Channel owns the single quote subscription of a negotiator.
type Channel struct {
	svc       Service
	debouncer *Debouncer
	events    chan Event
	metrics   *metrics.SwapMetrics

	mu         sync.Mutex
	seq        uint64
	stopped    bool
	subscribed bool

	outMu     sync.Mutex
	outClosed bool
	relayDone chan struct{}
}

// NewChannel wraps svc. Events from svc are relayed until svc closes its
// event stream.
func NewChannel(svc Service, window time.Duration) *Channel {
	if window <= 0 {
		window = DefaultDebounce
	}
	c := &Channel{
		svc:       svc,
		debouncer: NewDebouncer(window),
		events:    make(chan Event, eventBuffer),
		metrics:   metrics.Swap(),
		stopped:   true,
		relayDone: make(chan struct{}),
	}
	go c.relay()
	return c
}

// Events returns the relayed event stream. It is closed once the underlying
// service stream ends.
func (c *Channel) Events() <-chan Event {
	return c.events
}

// Request schedules a quote request after the debounce window. Only the last
// request of a burst is sent.
func (c *Channel) Request(req Request) {
	c.mu.Lock()
	c.seq++
	req.ID = c.seq
	c.stopped = false
	c.mu.Unlock()

	c.debouncer.Trigger(func() { c.send(req) })
}

func (c *Channel) send(req Request) {
	if err := c.subscribe(req); err != nil {
		c.deliver(Event{Type: EventError, Error: err.Error()})
	}
}

func (c *Channel) subscribe(req Request) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped || req.ID != c.seq {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), serviceCallTimeout)
	defer cancel()

	if c.subscribed {
		if err := c.svc.Stop(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to stop previous quote subscription")
		}
		c.subscribed = false
	}

	log.Debug().
		Uint64("request", req.ID).
		Str("selling", req.SellingAsset).
		Str("buying", req.BuyingAsset).
		Str("amount", req.SellingAmount).
		Msg("Requesting quote")

	if err := c.svc.Quote(ctx, req); err != nil {
		return err
	}
	c.subscribed = true
	return nil
}

// Stop cancels the pending request and the active subscription. Quote events
// arriving afterwards are dropped until the next Request.
func (c *Channel) Stop() {
	c.debouncer.Cancel()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopped = true
	c.seq++
	if !c.subscribed {
		return
	}
	c.subscribed = false

	ctx, cancel := context.WithTimeout(context.Background(), serviceCallTimeout)
	defer cancel()
	if err := c.svc.Stop(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to stop quote subscription")
	}
}

// Hold cancels the pending request and drops further quotes while leaving
// the broker subscription live, so Confirm can still trade the held quote.
// The next Request or Stop releases it.
func (c *Channel) Hold() {
	c.debouncer.Cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	c.seq++
}

// Confirm executes the current quote through the escrow account.
func (c *Channel) Confirm(ctx context.Context, account string, sign SignFunc) error {
	c.debouncer.Cancel()
	return c.svc.ConfirmQuote(ctx, account, sign)
}

// Close stops quoting and closes the service.
func (c *Channel) Close() error {
	c.Stop()
	err := c.svc.Close()
	<-c.relayDone
	return err
}

func (c *Channel) relay() {
	defer close(c.relayDone)

	for ev := range c.svc.Events() {
		if ev.Type == EventQuote && !c.accepts(ev) {
			log.Debug().Msg("Dropping stale quote")
			continue
		}
		c.deliver(ev)
	}

	c.outMu.Lock()
	c.outClosed = true
	close(c.events)
	c.outMu.Unlock()
}

// accepts reports whether a quote belongs to the live request. Quotes without
// a request id are attributed to the live request.
func (c *Channel) accepts(ev Event) bool {
	if ev.Quote == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return false
	}
	return ev.Quote.RequestID == 0 || ev.Quote.RequestID == c.seq
}

func (c *Channel) deliver(ev Event) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	if c.outClosed {
		return
	}
	c.metrics.ObserveQuoteEvent(string(ev.Type))
	c.events <- ev
}
