// Package explorer fetches JSON documents from the public explorer API.
package explorer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"broker-swap/pkg/apperror"
	"broker-swap/pkg/logger"
)

const (
	DefaultOrigin  = "https://api.stellar.expert"
	DefaultNetwork = "public"

	fallbackMessage = "Failed to fetch data from the server"
)

var log = logger.New("explorer")

// Error mirrors the explorer's error document.
type Error struct {
	Message string         `json:"error"`
	Status  int            `json:"status"`
	Ext     map[string]any `json:"ext,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}

// Client fetches explorer endpoints.
type Client struct {
	origin  string
	network string
	http    *http.Client
}

// New creates an explorer client. Empty arguments fall back to the public API.
func New(origin, network string) *Client {
	if origin == "" {
		origin = DefaultOrigin
	}
	if network == "" {
		network = DefaultNetwork
	}
	return &Client{
		origin:  strings.TrimRight(origin, "/"),
		network: network,
		http: &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Fetch GETs endpointWithQuery and decodes the JSON reply into out. Every
// failure comes back as *Error.
func (c *Client) Fetch(ctx context.Context, endpointWithQuery string, out any) error {
	target := fmt.Sprintf("%s/explorer/%s/%s", c.origin, c.network, strings.TrimLeft(endpointWithQuery, "/"))

	err := c.fetch(ctx, target, out)
	if err == nil {
		return nil
	}
	log.Error().Err(err).Str("url", target).Msg("Explorer request failed")

	e, ok := err.(*Error)
	if !ok {
		e = &Error{Message: err.Error(), Status: http.StatusInternalServerError}
	}
	if status, ok := e.Ext["status"].(float64); ok && status > 0 {
		e.Status = int(status)
	}
	return e
}

func (c *Client) fetch(ctx context.Context, target string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		ext := map[string]any{}
		_ = json.Unmarshal(body, &ext)

		msg, _ := ext["error"].(string)
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		if msg == "" {
			msg = fallbackMessage
		}
		return &Error{Message: msg, Status: resp.StatusCode, Ext: ext}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode explorer response: %w", err)
	}
	return nil
}

// AssetInfo is a row of the explorer asset listing.
type AssetInfo struct {
	Asset    string  `json:"asset"`
	Domain   string  `json:"domain,omitempty"`
	Rating   Rating  `json:"rating"`
	Supply   float64 `json:"supply,omitempty"`
	Payments int64   `json:"payments,omitempty"`
}

// Rating is the explorer's composite asset rating.
type Rating struct {
	Average float64 `json:"average"`
}

type assetPage struct {
	Embedded struct {
		Records []AssetInfo `json:"records"`
	} `json:"_embedded"`
}

// ListAssets returns the top rated assets, optionally filtered by search.
func (c *Client) ListAssets(ctx context.Context, search string, limit int) ([]AssetInfo, error) {
	if limit <= 0 {
		limit = 20
	}
	endpoint := fmt.Sprintf("asset?sort=rating&order=desc&limit=%d", limit)
	if search != "" {
		endpoint += "&search=" + url.QueryEscape(search)
	}

	var page assetPage
	if err := c.Fetch(ctx, endpoint, &page); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeExplorerRequestFailed, "asset list")
	}
	return page.Embedded.Records, nil
}
