// Package metrics exposes prometheus collectors for swap negotiation.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"broker-swap/pkg/logger"
)

var log = logger.New("metrics")

type SwapMetrics struct {
	quotes          *prometheus.CounterVec
	swaps           *prometheus.CounterVec
	escrowDisposals *prometheus.CounterVec
	balanceRefresh  *prometheus.CounterVec
	ledgerRequests  *prometheus.CounterVec
	settlementTime  prometheus.Histogram
}

var (
	swapOnce     sync.Once
	swapRegistry *SwapMetrics
)

// Swap returns the process wide collectors, registering them on first use.
func Swap() *SwapMetrics {
	swapOnce.Do(func() {
		swapRegistry = &SwapMetrics{
			quotes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "broker_swap_quote_events_total",
				Help: "Quote channel events received by type.",
			}, []string{"event"}),
			swaps: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "broker_swap_settlements_total",
				Help: "Swap attempts by terminal outcome.",
			}, []string{"outcome"}),
			escrowDisposals: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "broker_swap_escrow_disposals_total",
				Help: "Escrow agent disposals by kind and result.",
			}, []string{"kind", "result"}),
			balanceRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "broker_swap_balance_refresh_total",
				Help: "Balance snapshot refreshes by result.",
			}, []string{"result"}),
			ledgerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "broker_swap_ledger_requests_total",
				Help: "Ledger HTTP requests by operation and result.",
			}, []string{"operation", "result"}),
			settlementTime: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    "broker_swap_settlement_seconds",
				Help:    "Time from confirmation to terminal settlement event.",
				Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60},
			}),
		}
		prometheus.MustRegister(
			swapRegistry.quotes,
			swapRegistry.swaps,
			swapRegistry.escrowDisposals,
			swapRegistry.balanceRefresh,
			swapRegistry.ledgerRequests,
			swapRegistry.settlementTime,
		)
	})
	return swapRegistry
}

func (m *SwapMetrics) ObserveQuoteEvent(event string) {
	if m == nil {
		return
	}
	m.quotes.WithLabelValues(event).Inc()
}

func (m *SwapMetrics) ObserveSettlement(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.swaps.WithLabelValues(outcome).Inc()
	if elapsed > 0 {
		m.settlementTime.Observe(elapsed.Seconds())
	}
}

func (m *SwapMetrics) ObserveEscrowDisposal(kind string, err error) {
	if m == nil {
		return
	}
	m.escrowDisposals.WithLabelValues(kind, result(err)).Inc()
}

func (m *SwapMetrics) ObserveBalanceRefresh(err error) {
	if m == nil {
		return
	}
	m.balanceRefresh.WithLabelValues(result(err)).Inc()
}

func (m *SwapMetrics) ObserveLedgerRequest(operation string, err error) {
	if m == nil {
		return
	}
	m.ledgerRequests.WithLabelValues(operation, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
