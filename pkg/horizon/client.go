// Package horizon talks to the ledger's HTTP API: account lookups and
// transaction submission.
package horizon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"broker-swap/pkg/apperror"
	"broker-swap/pkg/logger"
	"broker-swap/pkg/metrics"
	"broker-swap/pkg/types"
)

const (
	tracerName            = "broker-swap/horizon"
	defaultRequestTimeout = 20 * time.Second
	maxBodySize           = 1 << 20
)

var log = logger.New("horizon")

// Config configures a Client.
type Config struct {
	BaseURL           string
	Network           string
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// Client is a rate limited, circuit broken ledger API client.
type Client struct {
	baseURL string
	network string
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[*response]
	tracer  trace.Tracer
	metrics *metrics.SwapMetrics
}

type response struct {
	status int
	body   []byte
}

// New creates a ledger client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, apperror.New(apperror.CodeConfigurationError, apperror.WithContext("horizon url is empty"))
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, apperror.New(apperror.CodeConfigurationError, apperror.WithContext("horizon url"), apperror.WithCause(err))
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	base := httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	httpClient.Transport = otelhttp.NewTransport(base)

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		network: cfg.Network,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		breaker: gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
			Name:        "horizon",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state change")
			},
		}),
		tracer:  otel.Tracer(tracerName),
		metrics: metrics.Swap(),
	}, nil
}

// Passphrase returns the passphrase of the network transactions are built for.
func (c *Client) Passphrase() string {
	return types.NetworkPassphrase(c.network)
}

// LoadAccount fetches an account with its balances.
func (c *Client) LoadAccount(ctx context.Context, address string) (*Account, error) {
	ctx, span := c.tracer.Start(ctx, "horizon.load_account", trace.WithAttributes(attribute.String("account", address)))
	defer span.End()

	resp, err := c.do(ctx, http.MethodGet, "/accounts/"+url.PathEscape(address), nil, "")
	c.metrics.ObserveLedgerRequest("load_account", err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return nil, err
	}

	switch {
	case resp.status == http.StatusNotFound:
		return nil, apperror.New(apperror.CodeAccountNotFound, apperror.WithContext(address))
	case resp.status >= 300:
		return nil, problemError(resp, address)
	}

	var account Account
	if err := json.Unmarshal(resp.body, &account); err != nil {
		return nil, apperror.New(apperror.CodeLedgerRequestFailed, apperror.WithContext("decode account"), apperror.WithCause(err))
	}
	return &account, nil
}

// Submit posts a signed transaction as a base64 XDR envelope.
func (c *Client) Submit(ctx context.Context, tx *types.Transaction) error {
	ctx, span := c.tracer.Start(ctx, "horizon.submit", trace.WithAttributes(
		attribute.String("source", tx.Source()),
		attribute.Int64("sequence", tx.Sequence()),
	))
	defer span.End()

	if tx.Passphrase() != c.Passphrase() {
		return apperror.New(apperror.CodeLedgerRequestFailed, apperror.WithContext("transaction built for another network"))
	}
	envelope, err := tx.Envelope()
	if err != nil {
		return apperror.New(apperror.CodeLedgerRequestFailed, apperror.WithCause(err))
	}

	form := url.Values{"tx": {envelope}}
	resp, err := c.do(ctx, http.MethodPost, "/transactions", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	c.metrics.ObserveLedgerRequest("submit", err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return err
	}
	if resp.status >= 300 {
		err := problemError(resp, "submit")
		span.RecordError(err)
		span.SetStatus(codes.Error, "rejected")
		return err
	}

	log.Debug().Str("source", tx.Source()).Int64("sequence", tx.Sequence()).Msg("Transaction submitted")
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, apperror.New(apperror.CodeLedgerRequestFailed, apperror.WithContext("rate limiter"), apperror.WithCause(err))
	}

	resp, err := c.breaker.Execute(func() (*response, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		res, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()

		data, err := io.ReadAll(io.LimitReader(res.Body, maxBodySize))
		if err != nil {
			return nil, err
		}
		if res.StatusCode >= 500 {
			return nil, fmt.Errorf("ledger returned %d", res.StatusCode)
		}
		return &response{status: res.StatusCode, body: data}, nil
	})
	if err != nil {
		return nil, apperror.New(apperror.CodeLedgerRequestFailed, apperror.WithContext(method+" "+path), apperror.WithCause(err))
	}
	return resp, nil
}

// problem is the ledger's error document.
type problem struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Extras struct {
		ResultCodes json.RawMessage `json:"result_codes"`
	} `json:"extras"`
}

func problemError(resp *response, context string) error {
	var p problem
	_ = json.Unmarshal(resp.body, &p)

	msg := p.Title
	if msg == "" {
		msg = http.StatusText(resp.status)
	}
	if p.Detail != "" {
		msg += ": " + p.Detail
	}
	if len(p.Extras.ResultCodes) > 0 {
		msg += " " + string(p.Extras.ResultCodes)
	}
	return apperror.New(apperror.CodeLedgerRequestFailed,
		apperror.WithContext(context),
		apperror.WithCause(fmt.Errorf("status %d: %s", resp.status, msg)))
}
