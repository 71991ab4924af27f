package negotiator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"broker-swap/pkg/apperror"
	"broker-swap/pkg/balance"
	"broker-swap/pkg/keypair"
	"broker-swap/pkg/mediator"
	"broker-swap/pkg/quote"
	"broker-swap/pkg/types"
)

const aqua = "AQUA-GBNZILSTVQZ4R7IKQDGHYGY2QXL5QOFJYQMXPKWRRM5PAV7Y4M67AQUA"

type fakeQuoter struct {
	mu        sync.Mutex
	requests  []quote.Request
	stops     int
	holds     int
	confirms  []string
	onConfirm func(account string, sign quote.SignFunc) error
	events    chan quote.Event
}

func (f *fakeQuoter) Request(req quote.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
}

func (f *fakeQuoter) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func (f *fakeQuoter) Hold() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.holds++
}

func (f *fakeQuoter) holdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.holds
}

func (f *fakeQuoter) Confirm(_ context.Context, account string, sign quote.SignFunc) error {
	f.mu.Lock()
	f.confirms = append(f.confirms, account)
	hook := f.onConfirm
	f.mu.Unlock()
	if hook != nil {
		return hook(account, sign)
	}
	return nil
}

func (f *fakeQuoter) Events() <-chan quote.Event { return f.events }

func (f *fakeQuoter) Close() error { return nil }

func (f *fakeQuoter) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// paymentTx builds a transaction from source that moves value of asset to
// destination.
func paymentTx(source, destination, asset, value string) (*types.Transaction, error) {
	return types.NewTransaction(types.TxParams{
		Passphrase: types.NetworkPassphrase("testnet"),
		Source:     source,
		Sequence:   1,
		Operations: []types.Operation{{Type: types.OpPayment, Destination: destination, Asset: asset, Amount: value}},
	})
}

type fakeWallet struct {
	kp  *keypair.Keypair
	err error

	// entered and gate block signing when set.
	entered chan struct{}
	gate    chan struct{}
}

func (w *fakeWallet) SignTransaction(_ context.Context, tx *types.Transaction) (*types.Transaction, error) {
	if w.gate != nil {
		w.entered <- struct{}{}
		<-w.gate
	}
	if w.err != nil {
		return nil, w.err
	}
	return tx, tx.Sign(w.kp)
}

type fakeBalances struct {
	mu        sync.Mutex
	refreshes int
	throttled int
}

func (b *fakeBalances) Refresh(context.Context) (balance.Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshes++
	return balance.Snapshot{}, nil
}

func (b *fakeBalances) RefreshThrottled(context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.throttled++
	return true
}

func (b *fakeBalances) counts() (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refreshes, b.throttled
}

type fakeEscrow struct {
	params   mediator.Params
	kp       *keypair.Keypair
	initErr  error
	mu       sync.Mutex
	disposed int
}

func (e *fakeEscrow) Init(ctx context.Context) (string, error) {
	if e.initErr != nil {
		return "", e.initErr
	}
	tx, err := paymentTx(e.params.Source, e.kp.PublicKey(), e.params.SellingAsset, e.params.Amount)
	if err != nil {
		return "", err
	}
	if _, err := e.params.Sign(ctx, tx); err != nil {
		return "", err
	}
	return e.kp.Secret(), nil
}

func (e *fakeEscrow) Dispose(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.disposed++
	return nil
}

func (e *fakeEscrow) disposeCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.disposed
}

type harness struct {
	n        *Negotiator
	quoter   *fakeQuoter
	balances *fakeBalances
	wallet   *fakeWallet

	mu       sync.Mutex
	notes    []Notification
	escrows  []*fakeEscrow
	initErr  error
	onUpdate func(State)
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	user, err := keypair.Random()
	require.NoError(t, err)

	h := &harness{
		quoter:   &fakeQuoter{events: make(chan quote.Event, 16)},
		balances: &fakeBalances{},
		wallet:   &fakeWallet{kp: user},
	}
	h.n = New(Deps{
		Quotes:   h.quoter,
		Wallet:   h.wallet,
		Balances: h.balances,
		Escrows: func(p mediator.Params) Escrow {
			kp, err := keypair.Random()
			require.NoError(t, err)
			h.mu.Lock()
			defer h.mu.Unlock()
			e := &fakeEscrow{params: p, kp: kp, initErr: h.initErr}
			h.escrows = append(h.escrows, e)
			return e
		},
		Notifier: NotifierFunc(func(n Notification) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.notes = append(h.notes, n)
		}),
		OnUpdate: func(s State) {
			if h.onUpdate != nil {
				h.onUpdate(s)
			}
		},
	}, cfg)
	return h
}

func fastConfig() Config {
	return Config{
		Slippage:      1,
		Fee:           "normal",
		FinishTimeout: 5 * time.Second,
		PollInterval:  10 * time.Millisecond,
		DisposeDelay:  time.Millisecond,
	}
}

func (h *harness) user() string { return h.wallet.kp.PublicKey() }

func (h *harness) messages() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.notes))
	for i, n := range h.notes {
		out[i] = n.Message
	}
	return out
}

func (h *harness) escrowCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.escrows)
}

func (h *harness) setup(selling, buying, value string) {
	h.n.SetSellingAsset(selling)
	h.n.SetBuyingAsset(buying)
	h.n.SetAmount(value)
}

func quoteEvent(estimated string) quote.Event {
	return quote.Event{Type: quote.EventQuote, Quote: &types.Quote{
		Status:                types.QuoteSuccess,
		SellingAsset:          types.NativeCode,
		BuyingAsset:           aqua,
		EstimatedBuyingAmount: estimated,
		Profit:                "0.1",
	}}
}

func TestDefaults(t *testing.T) {
	h := newHarness(t, Config{})
	s := h.n.State()
	require.Equal(t, PhaseReady, s.Phase)
	require.Equal(t, [2]string{"XLM", "XLM"}, s.Asset)
	require.Equal(t, [2]string{"0", "0"}, s.Amount)
	require.Equal(t, "normal", s.Fee)
	require.Equal(t, 1.0, s.Slippage)
	require.Equal(t, ValidationMissingParameters, s.ValidationStatus)
}

func TestValidationStatus(t *testing.T) {
	tests := []struct {
		name    string
		selling string
		buying  string
		amount  string
		valid   bool
	}{
		{"valid", "XLM", aqua, "10", true},
		{"fractional", aqua, "XLM", "0.0000001", true},
		{"same asset", "XLM", "XLM", "10", false},
		{"missing buying asset", "XLM", "", "10", false},
		{"zero amount", "XLM", aqua, "0", false},
		{"empty amount", "XLM", aqua, "", false},
		{"negative amount", "XLM", aqua, "-3", false},
		{"garbage amount", "XLM", aqua, "abc", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{})
			h.setup(tt.selling, tt.buying, tt.amount)
			s := h.n.State()
			if tt.valid {
				require.Empty(t, s.ValidationStatus)
				require.Equal(t, PhaseQuoting, s.Phase)
			} else {
				require.Equal(t, ValidationMissingParameters, s.ValidationStatus)
				require.Equal(t, PhaseReady, s.Phase)
			}
		})
	}
}

func TestInvalidParametersStopQuoting(t *testing.T) {
	h := newHarness(t, Config{})
	h.setup("XLM", aqua, "10")
	require.Equal(t, 1, h.quoter.requestCount())

	h.n.SetBuyingAsset("XLM")
	require.Equal(t, 1, h.quoter.requestCount())
	require.Positive(t, h.quoter.stops)
}

func TestQuoteRequestFields(t *testing.T) {
	h := newHarness(t, Config{Slippage: 2.5, Fee: "high"})
	h.setup("XLM", aqua, "12.5")

	h.quoter.mu.Lock()
	last := h.quoter.requests[len(h.quoter.requests)-1]
	h.quoter.mu.Unlock()
	require.Equal(t, "XLM", last.SellingAsset)
	require.Equal(t, aqua, last.BuyingAsset)
	require.Equal(t, "12.5", last.SellingAmount)
	require.InDelta(t, 0.025, last.SlippageTolerance, 1e-12)
	require.Equal(t, "high", last.Fee)
}

func TestQuoteAppliesSlippage(t *testing.T) {
	h := newHarness(t, Config{Slippage: 1})
	h.setup("XLM", aqua, "1000")

	h.n.handle(context.Background(), quoteEvent("500"))

	s := h.n.State()
	require.Equal(t, "495", s.BuyingAmount())
	require.Equal(t, "0.1", s.Profit)
	require.True(t, s.ConversionFeasible)
	require.True(t, s.PathLoaded)
}

func TestDirectTradeWinsWhenBetter(t *testing.T) {
	h := newHarness(t, Config{})
	require.NoError(t, h.n.SetSlippage(0))
	h.setup("XLM", aqua, "1000")

	ev := quoteEvent("500")
	ev.Quote.Status = types.QuoteNoPath
	ev.Quote.DirectTrade = &types.DirectTrade{Path: []string{"XLM", aqua}, Buying: "510"}
	h.n.handle(context.Background(), ev)

	s := h.n.State()
	require.Equal(t, "510", s.BuyingAmount())
	require.True(t, s.ConversionFeasible)
	require.Len(t, s.ConversionPath, 2)
	require.Equal(t, "AQUA", s.ConversionPath[1].Code)
	require.Equal(t, "XLM → AQUA", s.Display().Path)

	ev = quoteEvent("500")
	ev.Quote.DirectTrade = &types.DirectTrade{Path: []string{"XLM", aqua}, Buying: "420"}
	h.n.handle(context.Background(), ev)
	require.Equal(t, "500", h.n.State().BuyingAmount())
}

func TestNoPathQuoteIsNotFeasible(t *testing.T) {
	h := newHarness(t, Config{})
	h.setup("XLM", aqua, "1000")

	ev := quoteEvent("0")
	ev.Quote.Status = types.QuoteNoPath
	h.n.handle(context.Background(), ev)
	require.False(t, h.n.State().ConversionFeasible)
}

func TestSettersClearDerivedStateBeforeRequote(t *testing.T) {
	setters := map[string]func(n *Negotiator){
		"amount":   func(n *Negotiator) { n.SetAmount("20") },
		"selling":  func(n *Negotiator) { n.SetSellingAsset("USDC-GA5Z") },
		"buying":   func(n *Negotiator) { n.SetBuyingAsset("USDC-GA5Z") },
		"slippage": func(n *Negotiator) { require.NoError(t, n.SetSlippage(3)) },
		"fee":      func(n *Negotiator) { n.SetFee("high") },
		"reverse":  func(n *Negotiator) { n.Reverse() },
	}
	for name, set := range setters {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, Config{Slippage: 1})
			h.setup("XLM", aqua, "1000")
			ev := quoteEvent("500")
			ev.Quote.DirectTrade = &types.DirectTrade{Path: []string{"XLM", aqua}, Buying: "510"}
			h.n.handle(context.Background(), ev)
			require.NotEmpty(t, h.n.State().BuyingAmount())

			var seen *State
			requestsAtUpdate := -1
			before := h.quoter.requestCount()
			h.onUpdate = func(s State) {
				if seen == nil {
					seen = &s
					requestsAtUpdate = h.quoter.requestCount()
				}
			}
			set(h.n)

			require.NotNil(t, seen)
			require.Equal(t, before, requestsAtUpdate, "observers see the cleared state before the re-quote")
			require.Nil(t, seen.ConversionPath)
			require.Nil(t, seen.Quote)
			require.Empty(t, seen.Profit)
			require.Empty(t, seen.BuyingAmount())
			require.False(t, seen.ConversionFeasible)
		})
	}
}

func TestSetSlippageRejectsOutOfRange(t *testing.T) {
	h := newHarness(t, Config{})
	require.Equal(t, apperror.CodeInvalidInput, apperror.GetCode(h.n.SetSlippage(-1)))
	require.Equal(t, apperror.CodeInvalidInput, apperror.GetCode(h.n.SetSlippage(100)))
	require.NoError(t, h.n.SetSlippage(0))
}

func TestReverseRoundTrip(t *testing.T) {
	h := newHarness(t, Config{})
	h.setup("XLM", aqua, "1000")
	h.n.handle(context.Background(), quoteEvent("500"))

	h.n.Reverse()
	s := h.n.State()
	require.Equal(t, [2]string{aqua, "XLM"}, s.Asset)
	require.Equal(t, "495", s.SellingAmount())
	require.Empty(t, s.BuyingAmount())

	h.n.Reverse()
	s = h.n.State()
	require.Equal(t, [2]string{"XLM", aqua}, s.Asset)
	require.Equal(t, "1000", s.SellingAmount())
}

func TestReverseIsNoopWhileInProgress(t *testing.T) {
	h := newHarness(t, Config{})
	h.setup("XLM", aqua, "1000")
	h.n.mu.Lock()
	h.n.state.InProgress = true
	h.n.mu.Unlock()

	before := h.n.State()
	h.n.Reverse()
	h.n.Reverse()
	h.n.SetAmount("5")
	require.Equal(t, before, h.n.State())
}

func TestConfirmRejectsInvalidParameters(t *testing.T) {
	h := newHarness(t, Config{})
	err := h.n.ConfirmSwap(context.Background(), h.user())
	require.Equal(t, apperror.CodeInvalidParameters, apperror.GetCode(err))
	require.Zero(t, h.escrowCount())
}

func TestConfirmRejectedWhileInProgress(t *testing.T) {
	h := newHarness(t, Config{})
	h.setup("XLM", aqua, "1000")
	h.n.mu.Lock()
	h.n.state.InProgress = true
	h.n.mu.Unlock()

	err := h.n.ConfirmSwap(context.Background(), h.user())
	require.Equal(t, apperror.CodeSwapInProgress, apperror.GetCode(err))
	require.Zero(t, h.escrowCount())
}

func TestConfirmSwapSettles(t *testing.T) {
	h := newHarness(t, fastConfig())
	h.setup("XLM", aqua, "100")
	h.n.handle(context.Background(), quoteEvent("50"))

	var (
		phasesMu sync.Mutex
		phases   []Phase
	)
	h.onUpdate = func(s State) {
		phasesMu.Lock()
		defer phasesMu.Unlock()
		phases = append(phases, s.Phase)
	}

	h.quoter.onConfirm = func(account string, sign quote.SignFunc) error {
		tx, err := paymentTx(account, h.user(), "XLM", "1")
		if err != nil {
			return err
		}
		res, err := sign(context.Background(), tx)
		if err != nil {
			return err
		}
		if !res.(*types.Transaction).SignedBy(account) {
			return errors.New("escrow did not sign")
		}
		h.quoter.events <- quote.Event{Type: quote.EventProgress, Progress: &types.ProgressStatus{Sold: "50", Bought: "24.5"}}
		h.quoter.events <- quote.Event{Type: quote.EventFinished, Result: &types.TradeResult{
			Status: types.TradeSuccess, Sold: "100", Bought: "49",
		}}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.n.Run(ctx)

	require.NoError(t, h.n.ConfirmSwap(context.Background(), h.user()))

	require.Equal(t, 1, h.escrowCount())
	require.Equal(t, 1, h.escrows[0].disposeCount())
	require.Equal(t, h.user(), h.escrows[0].params.Source)
	require.Equal(t, "100", h.escrows[0].params.Amount)

	require.Contains(t, h.messages(), "Swapping, please do not leave this page")
	require.Contains(t, h.messages(), "Success! Swapped 100 XLM → 49 AQUA")

	refreshes, throttled := h.balances.counts()
	require.GreaterOrEqual(t, refreshes, 2, "after finish and after disposal")
	require.Equal(t, 1, throttled)

	s := h.n.State()
	require.Equal(t, PhaseReady, s.Phase)
	require.False(t, s.InProgress)
	require.True(t, s.IsFinished)
	require.Equal(t, [2]string{"0", ""}, s.Amount)
	require.Equal(t, "24.5", s.Bought)

	phasesMu.Lock()
	defer phasesMu.Unlock()
	require.Contains(t, phases, PhaseConfirming)
	require.Contains(t, phases, PhaseAuthorizing)
	require.Contains(t, phases, PhaseSettling)
	require.Contains(t, phases, PhaseCompleted)
}

func TestFinishSwapTimeout(t *testing.T) {
	cfg := fastConfig()
	cfg.FinishTimeout = 50 * time.Millisecond
	h := newHarness(t, cfg)
	h.setup("XLM", aqua, "100")

	err := h.n.ConfirmSwap(context.Background(), h.user())
	require.Equal(t, apperror.CodeSettlementTimeout, apperror.GetCode(err))

	timeouts := 0
	for _, m := range h.messages() {
		if m == noticeTimeout {
			timeouts++
		}
	}
	require.Equal(t, 1, timeouts)
	require.Equal(t, 1, h.escrows[0].disposeCount())
	refreshes, _ := h.balances.counts()
	require.Equal(t, 1, refreshes)
	require.Equal(t, PhaseReady, h.n.State().Phase)
	require.False(t, h.n.State().InProgress)
}

func TestFinishSwapStopsOnBrokerError(t *testing.T) {
	h := newHarness(t, fastConfig())
	h.setup("XLM", aqua, "100")
	h.quoter.onConfirm = func(string, quote.SignFunc) error {
		h.quoter.events <- quote.Event{Type: quote.EventError, Error: "Trade failed"}
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.n.Run(ctx)

	require.NoError(t, h.n.ConfirmSwap(context.Background(), h.user()))
	require.Equal(t, 1, h.escrows[0].disposeCount())
	require.Equal(t, "Trade failed", h.n.State().ErrorMessage)
	require.Equal(t, PhaseReady, h.n.State().Phase)
}

func TestConfirmFailureDisposesImmediately(t *testing.T) {
	h := newHarness(t, fastConfig())
	h.setup("XLM", aqua, "100")
	h.initErr = apperror.New(apperror.CodeEscrowInitFailed)

	err := h.n.ConfirmSwap(context.Background(), h.user())
	require.Equal(t, apperror.CodeEscrowInitFailed, apperror.GetCode(err))
	require.Equal(t, 1, h.escrows[0].disposeCount())
	require.Contains(t, h.messages(), apperror.UserMessage(err))
	require.Equal(t, PhaseReady, h.n.State().Phase)
	require.Empty(t, h.quoter.confirms)
}

func TestWalletRejectionAbortsAttempt(t *testing.T) {
	h := newHarness(t, fastConfig())
	h.setup("XLM", aqua, "100")
	h.wallet.err = apperror.New(apperror.CodeSigningFailed)

	err := h.n.ConfirmSwap(context.Background(), h.user())
	require.Equal(t, apperror.CodeSigningFailed, apperror.GetCode(err))
	require.NotContains(t, h.messages(), noticeSwapping)
	require.Equal(t, 1, h.escrows[0].disposeCount())
	require.False(t, h.n.State().InProgress)
}

func TestQuotesIgnoredWhileAuthorizing(t *testing.T) {
	h := newHarness(t, fastConfig())
	h.setup("XLM", aqua, "500")
	ctx := context.Background()
	h.n.handle(ctx, quoteEvent("500"))
	require.Equal(t, "495", h.n.State().BuyingAmount())

	h.wallet.entered = make(chan struct{}, 1)
	h.wallet.gate = make(chan struct{})
	h.wallet.err = apperror.New(apperror.CodeSigningFailed)

	errc := make(chan error, 1)
	go func() { errc <- h.n.ConfirmSwap(ctx, h.user()) }()

	select {
	case <-h.wallet.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("wallet was never asked to sign")
	}
	require.Equal(t, PhaseConfirming, h.n.State().Phase)
	require.Equal(t, 1, h.quoter.holdCount())

	h.n.handle(ctx, quoteEvent("900"))
	require.Equal(t, "495", h.n.State().BuyingAmount())

	close(h.wallet.gate)
	select {
	case err := <-errc:
		require.Equal(t, apperror.CodeSigningFailed, apperror.GetCode(err))
	case <-time.After(5 * time.Second):
		t.Fatal("confirmation did not return")
	}
}

func TestBrokerConfirmFailure(t *testing.T) {
	h := newHarness(t, fastConfig())
	h.setup("XLM", aqua, "100")
	h.quoter.onConfirm = func(string, quote.SignFunc) error { return errors.New("socket closed") }

	err := h.n.ConfirmSwap(context.Background(), h.user())
	require.Equal(t, apperror.CodeQuoteFailed, apperror.GetCode(err))
	require.Equal(t, 1, h.escrows[0].disposeCount())
}

func TestTradeMessages(t *testing.T) {
	tests := []struct {
		result  types.TradeResult
		level   Level
		message string
		phase   Phase
	}{
		{types.TradeResult{Status: types.TradeSuccess, Sold: "10", Bought: "4"}, LevelSuccess, "Success! Swapped 10 XLM → 4 AQUA", PhaseCompleted},
		{types.TradeResult{Status: types.TradeCancelled, Sold: "3", Bought: "1.2"}, LevelWarning, "Swap executed partially: 3 XLM → 1.2 AQUA", PhaseCancelled},
		{types.TradeResult{Status: types.TradeCancelled, Sold: "0", Bought: "0"}, LevelInfo, "Swap cancelled", PhaseCancelled},
	}
	for _, tt := range tests {
		level, message, phase := tradeMessage(&tt.result, "XLM", "AQUA")
		require.Equal(t, tt.level, level)
		require.Equal(t, tt.message, message)
		require.Equal(t, tt.phase, phase)
	}
}

func TestEventsOutsideSettlement(t *testing.T) {
	h := newHarness(t, Config{})
	h.setup("XLM", aqua, "100")
	ctx := context.Background()

	h.n.handle(ctx, quote.Event{Type: quote.EventPaused})
	require.Equal(t, "Quotation paused.", h.n.State().Message)

	h.n.handle(ctx, quote.Event{Type: quote.EventError, Error: "No route"})
	s := h.n.State()
	require.Equal(t, PhaseFailed, s.Phase)
	require.True(t, s.IsFinished)
	require.Equal(t, "No route", s.ErrorMessage)
	require.Contains(t, h.messages(), "No route")

	h.n.Resume()
	s = h.n.State()
	require.Equal(t, PhaseQuoting, s.Phase)
	require.Empty(t, s.ErrorMessage)
}

func TestProgressRefreshesOnlyWhenBoughtGrows(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()

	h.n.handle(ctx, quote.Event{Type: quote.EventProgress, Progress: &types.ProgressStatus{Bought: "1"}})
	h.n.handle(ctx, quote.Event{Type: quote.EventProgress, Progress: &types.ProgressStatus{Bought: "1"}})
	h.n.handle(ctx, quote.Event{Type: quote.EventProgress, Progress: &types.ProgressStatus{Bought: "2"}})

	_, throttled := h.balances.counts()
	require.Equal(t, 2, throttled)
	require.Equal(t, "2", h.n.State().Bought)
}

func TestEscrowSigner(t *testing.T) {
	kp, err := keypair.Random()
	require.NoError(t, err)
	sign := escrowSigner(kp)

	dest, err := keypair.Random()
	require.NoError(t, err)
	tx, err := paymentTx(kp.PublicKey(), dest.PublicKey(), "XLM", "1")
	require.NoError(t, err)
	res, err := sign(context.Background(), tx)
	require.NoError(t, err)
	require.True(t, res.(*types.Transaction).SignedBy(kp.PublicKey()))

	payload := []byte("payload")
	res, err = sign(context.Background(), payload)
	require.NoError(t, err)
	require.True(t, keypair.Verify(kp.PublicKey(), payload, res.([]byte)))

	_, err = sign(context.Background(), 42)
	require.Error(t, err)
}
