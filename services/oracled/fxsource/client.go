package fxsource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"yieldoracle/native/oracle"
	"yieldoracle/observability"
)

// HTTPDoer matches *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client fetches FX quotes from an external HTTP price feed. It implements
// oracle.FxOracle.
type Client struct {
	endpoint string
	apiKey   string
	client   HTTPDoer
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) {
		if doer != nil {
			c.client = doer
		}
	}
}

// NewClient constructs an FX feed client for the given endpoint.
func NewClient(endpoint, apiKey string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type quoteResponse struct {
	Price     string `json:"price"`
	Timestamp uint64 `json:"timestamp"`
}

// LastPrice returns the most recent quote for symbol priced in USD. The
// second return is false when the feed has no data for the symbol.
func (c *Client) LastPrice(ctx context.Context, symbol string) (oracle.FxPriceData, bool, error) {
	if c == nil || c.endpoint == "" {
		return oracle.FxPriceData{}, false, fmt.Errorf("fxsource: endpoint not configured")
	}
	reqURL := fmt.Sprintf("%s/v1/lastprice?symbol=%s", c.endpoint, url.QueryEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return oracle.FxPriceData{}, false, fmt.Errorf("fxsource: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		observability.Oracle().FxLookup("error")
		return oracle.FxPriceData{}, false, fmt.Errorf("fxsource: fetch %s: %w", symbol, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, resp.Body)
		observability.Oracle().FxLookup("absent")
		return oracle.FxPriceData{}, false, nil
	case resp.StatusCode != http.StatusOK:
		io.Copy(io.Discard, resp.Body)
		observability.Oracle().FxLookup("error")
		return oracle.FxPriceData{}, false, fmt.Errorf("fxsource: fetch %s: unexpected status %d", symbol, resp.StatusCode)
	}
	var payload quoteResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&payload); err != nil {
		observability.Oracle().FxLookup("error")
		return oracle.FxPriceData{}, false, fmt.Errorf("fxsource: decode %s: %w", symbol, err)
	}
	price, ok := new(big.Int).SetString(strings.TrimSpace(payload.Price), 10)
	if !ok {
		observability.Oracle().FxLookup("error")
		return oracle.FxPriceData{}, false, fmt.Errorf("fxsource: invalid price %q for %s", payload.Price, symbol)
	}
	observability.Oracle().FxLookup("ok")
	return oracle.FxPriceData{Price: price, Timestamp: payload.Timestamp}, true, nil
}
