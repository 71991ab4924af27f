package client

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"broker-swap/pkg/apperror"
	"broker-swap/pkg/logger"
	"broker-swap/pkg/quote"
	"broker-swap/pkg/types"
)

const (
	tracerName         = "broker-swap/client"
	defaultDialTimeout = 15 * time.Second
	readLimit          = 1 << 20
	eventBuffer        = 64
)

var log = logger.New("broker")

// Config holds broker connection settings.
type Config struct {
	URL        string
	PartnerKey string
	Account    string
	// Passphrase of the network the broker's transactions are signed for.
	Passphrase  string
	DialTimeout time.Duration
}

// BrokerClient is a websocket client for the routing service. It implements
// quote.Service.
type BrokerClient struct {
	cfg     Config
	session string
	tracer  trace.Tracer
	events  chan quote.Event

	mu     sync.Mutex
	conn   *websocket.Conn
	sign   quote.SignFunc
	cancel context.CancelFunc
	done   chan struct{}

	closeOnce sync.Once
}

// inbound is any message pushed by the broker.
type inbound struct {
	Type    string                `json:"type"`
	Quote   *types.Quote          `json:"quote,omitempty"`
	Status  *types.ProgressStatus `json:"status,omitempty"`
	Result  *types.TradeResult    `json:"result,omitempty"`
	Error   string                `json:"error,omitempty"`
	ID      string                `json:"id,omitempty"`
	Tx      string                `json:"tx,omitempty"`
	Payload string                `json:"payload,omitempty"`
}

// outbound is any message sent to the broker. Request fields are promoted
// for quote messages.
type outbound struct {
	Type string `json:"type"`
	*quote.Request
	Account   string `json:"account,omitempty"`
	ID        string `json:"id,omitempty"`
	Tx        string `json:"tx,omitempty"`
	Signature string `json:"signature,omitempty"`
	Error     string `json:"error,omitempty"`
}

// NewBrokerClient creates a client. Call Connect before use.
func NewBrokerClient(cfg Config) *BrokerClient {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.Passphrase == "" {
		cfg.Passphrase = types.NetworkPassphrase("public")
	}
	return &BrokerClient{
		cfg:     cfg,
		session: uuid.NewString(),
		tracer:  otel.Tracer(tracerName),
		events:  make(chan quote.Event, eventBuffer),
	}
}

// Connect opens the websocket and starts the read loop.
func (c *BrokerClient) Connect(ctx context.Context) error {
	ctx, span := c.tracer.Start(ctx, "broker.connect", trace.WithAttributes(attribute.String("url", c.cfg.URL)))
	defer span.End()

	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return apperror.New(apperror.CodeConfigurationError, apperror.WithContext("broker url"), apperror.WithCause(err))
	}
	q := u.Query()
	if c.cfg.PartnerKey != "" {
		q.Set("partner", c.cfg.PartnerKey)
	}
	if c.cfg.Account != "" {
		q.Set("account", c.cfg.Account)
	}
	q.Set("session", c.session)
	u.RawQuery = q.Encode()

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, u.String(), nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dial failed")
		return apperror.New(apperror.CodeBrokerConnectionFailed, apperror.WithContext(c.cfg.URL), apperror.WithCause(err))
	}
	conn.SetReadLimit(readLimit)

	loopCtx, loopCancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.conn = conn
	c.cancel = loopCancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	go c.readLoop(loopCtx, conn, done)

	log.Info().Str("url", c.cfg.URL).Str("session", c.session).Msg("Connected to broker")
	return nil
}

// Events returns the broker event stream. It is closed when the connection ends.
func (c *BrokerClient) Events() <-chan quote.Event {
	return c.events
}

// Quote subscribes to quotes for req, replacing any earlier subscription.
func (c *BrokerClient) Quote(ctx context.Context, req quote.Request) error {
	ctx, span := c.tracer.Start(ctx, "broker.quote", trace.WithAttributes(
		attribute.String("selling", req.SellingAsset),
		attribute.String("buying", req.BuyingAsset),
		attribute.String("amount", req.SellingAmount),
	))
	defer span.End()

	if err := c.write(ctx, outbound{Type: "quote", Request: &req}); err != nil {
		span.RecordError(err)
		return apperror.Wrap(err, apperror.CodeQuoteFailed, "")
	}
	return nil
}

// ConfirmQuote starts execution of the current quote through account. sign
// answers every signature request the broker sends during settlement.
func (c *BrokerClient) ConfirmQuote(ctx context.Context, account string, sign quote.SignFunc) error {
	ctx, span := c.tracer.Start(ctx, "broker.confirm_quote", trace.WithAttributes(attribute.String("account", account)))
	defer span.End()

	c.mu.Lock()
	c.sign = sign
	c.mu.Unlock()

	if err := c.write(ctx, outbound{Type: "trade", Account: account}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "trade request failed")
		return err
	}
	return nil
}

// Stop cancels the active quote subscription or trade.
func (c *BrokerClient) Stop(ctx context.Context) error {
	return c.write(ctx, outbound{Type: "stop"})
}

// Close shuts the connection down and closes the event stream.
func (c *BrokerClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		conn, cancel, done := c.conn, c.cancel, c.done
		c.conn = nil
		c.mu.Unlock()

		if conn == nil {
			close(c.events)
			return
		}
		cancel()
		err = conn.Close(websocket.StatusNormalClosure, "")
		<-done
		if errors.Is(err, context.Canceled) {
			err = nil
		}
	})
	return err
}

func (c *BrokerClient) write(ctx context.Context, msg outbound) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return apperror.New(apperror.CodeBrokerNotConnected)
	}
	if err := wsjson.Write(ctx, conn, msg); err != nil {
		return apperror.New(apperror.CodeBrokerConnectionFailed, apperror.WithContext("write "+msg.Type), apperror.WithCause(err))
	}
	return nil
}

func (c *BrokerClient) readLoop(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	defer close(c.events)

	for {
		var msg inbound
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if ctx.Err() != nil || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return
			}
			log.Error().Err(err).Msg("Broker connection lost")
			c.push(ctx, quote.Event{Type: quote.EventError, Error: "Connection to the broker was lost"})
			return
		}
		c.dispatch(ctx, conn, msg)
	}
}

func (c *BrokerClient) dispatch(ctx context.Context, conn *websocket.Conn, msg inbound) {
	switch msg.Type {
	case "quote":
		if msg.Quote == nil {
			return
		}
		c.push(ctx, quote.Event{Type: quote.EventQuote, Quote: msg.Quote})
	case "paused":
		c.push(ctx, quote.Event{Type: quote.EventPaused})
	case "error":
		c.push(ctx, quote.Event{Type: quote.EventError, Error: msg.Error})
	case "progress":
		if msg.Status == nil {
			return
		}
		c.push(ctx, quote.Event{Type: quote.EventProgress, Progress: msg.Status})
	case "finished":
		if msg.Result == nil {
			return
		}
		c.push(ctx, quote.Event{Type: quote.EventFinished, Result: msg.Result})
	case "sign":
		go c.answerSignRequest(ctx, conn, msg)
	default:
		log.Debug().Str("type", msg.Type).Msg("Ignoring broker message")
	}
}

func (c *BrokerClient) push(ctx context.Context, ev quote.Event) {
	select {
	case c.events <- ev:
	case <-ctx.Done():
	}
}

func (c *BrokerClient) answerSignRequest(ctx context.Context, conn *websocket.Conn, msg inbound) {
	reply := outbound{Type: "signed", ID: msg.ID}
	if err := c.signRequest(ctx, msg, &reply); err != nil {
		log.Warn().Err(err).Str("id", msg.ID).Msg("Sign request failed")
		reply.Error = err.Error()
	}
	if err := wsjson.Write(ctx, conn, reply); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Str("id", msg.ID).Msg("Failed to answer sign request")
	}
}

func (c *BrokerClient) signRequest(ctx context.Context, msg inbound, reply *outbound) error {
	c.mu.Lock()
	sign := c.sign
	c.mu.Unlock()
	if sign == nil {
		return errors.New("no trade confirmed")
	}

	switch {
	case msg.Tx != "":
		tx, err := types.ParseEnvelope(c.cfg.Passphrase, msg.Tx)
		if err != nil {
			return err
		}
		res, err := sign(ctx, tx)
		if err != nil {
			return err
		}
		signed, ok := res.(*types.Transaction)
		if !ok {
			return fmt.Errorf("unexpected signer result %T", res)
		}
		env, err := signed.Envelope()
		if err != nil {
			return err
		}
		reply.Tx = env
	case msg.Payload != "":
		raw, err := base64.StdEncoding.DecodeString(msg.Payload)
		if err != nil {
			return fmt.Errorf("invalid payload: %w", err)
		}
		res, err := sign(ctx, raw)
		if err != nil {
			return err
		}
		sig, ok := res.([]byte)
		if !ok {
			return fmt.Errorf("unexpected signer result %T", res)
		}
		reply.Signature = base64.StdEncoding.EncodeToString(sig)
	default:
		return errors.New("empty sign request")
	}
	return nil
}
