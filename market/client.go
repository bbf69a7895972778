// Package market is a client for the prediction market REST API.
package market

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
)

const listTTL = 60 * time.Second

// Market is an open binary market.
type Market struct {
	Slug           string  `json:"slug"`
	Title          string  `json:"title"`
	Category       string  `json:"category,omitempty"`
	YesPrice       float64 `json:"yesPrice"`
	NoPrice        float64 `json:"noPrice"`
	Volume         float64 `json:"volume"`
	ExpirationDate string  `json:"expirationDate"`
}

// Order is the outcome of a market order.
type Order struct {
	ID     string  `json:"orderId"`
	Status string  `json:"status"`
	Filled float64 `json:"filledUsdc"`
	Shares float64 `json:"shares"`
	TxHash string  `json:"txHash,omitempty"`
}

// Position is an open position held by the agent.
type Position struct {
	MarketSlug   string  `json:"marketSlug"`
	Title        string  `json:"title"`
	Side         string  `json:"side"`
	Shares       float64 `json:"shares"`
	AvgPrice     float64 `json:"avgPrice"`
	CurrentValue float64 `json:"currentValue"`
}

// Client talks to the market API. Market listings are cached briefly since
// the backend tends to list and then re-list within one phase.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	cache      *ristretto.Cache
}

// NewClient creates a market client rooted at baseURL.
func NewClient(baseURL, apiKey string) (*Client, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     1 << 24,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create market cache: %w", err)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		cache: cache,
	}, nil
}

// Close releases the cache.
func (c *Client) Close() {
	c.cache.Close()
}

// ListMarkets returns active markets, optionally filtered by category.
func (c *Client) ListMarkets(ctx context.Context, category string) ([]Market, error) {
	key := "markets:" + category
	if v, ok := c.cache.Get(key); ok {
		if markets, ok := v.([]Market); ok {
			return markets, nil
		}
	}

	q := url.Values{}
	if category != "" {
		q.Set("category", category)
	}
	var resp struct {
		Data []Market `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/markets/active", q, nil, &resp); err != nil {
		return nil, fmt.Errorf("list markets: %w", err)
	}

	c.cache.SetWithTTL(key, resp.Data, int64(len(resp.Data))+1, listTTL)
	c.cache.Wait()
	return resp.Data, nil
}

// BuyMarketOrder places a fill-or-kill buy of side ("YES" or "NO") for
// amountUSDC on the market identified by slug.
func (c *Client) BuyMarketOrder(ctx context.Context, slug, side string, amountUSDC string) (*Order, error) {
	body := map[string]string{
		"marketSlug": slug,
		"side":       strings.ToUpper(side),
		"amountUsdc": amountUSDC,
		"orderType":  "FOK",
	}
	var order Order
	if err := c.do(ctx, http.MethodPost, "/orders", nil, body, &order); err != nil {
		return nil, fmt.Errorf("buy %s on %s: %w", side, slug, err)
	}
	log.Printf("[MARKET] order %s on %s: %s", order.ID, slug, order.Status)
	return &order, nil
}

// Positions returns the agent's open positions.
func (c *Client) Positions(ctx context.Context) ([]Position, error) {
	var resp struct {
		Positions []Position `json:"positions"`
	}
	if err := c.do(ctx, http.MethodGet, "/portfolio/positions", nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("positions: %w", err)
	}
	return resp.Positions, nil
}

// APIError is a non-2xx answer from the market API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("market api status %d: %s", e.Status, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &e) != nil || e.Message == "" {
			e.Message = strings.TrimSpace(string(raw))
		}
		return &APIError{Status: resp.StatusCode, Message: e.Message}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
