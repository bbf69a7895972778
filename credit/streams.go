// Package credit reads the compute-credit streams that pay for the
// agent's hosting.
package credit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const outflowsQuery = `query($account: ID!) {
  account(id: $account) {
    outflows(where: { currentFlowRate_gt: "0" }) {
      currentFlowRate
      token { symbol }
      receiver { id }
    }
  }
}`

// StreamClient queries a streaming-payments subgraph for the agent's
// outgoing credit flows.
type StreamClient struct {
	url        string
	httpClient *http.Client
}

// NewStreamClient creates a client for the subgraph at url.
func NewStreamClient(url string) *StreamClient {
	return &StreamClient{
		url: url,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// OutflowRate returns the summed flow rate, in base units per second, of
// every outgoing stream whose token symbol contains symbol
// (case-insensitive). No streams yields zero.
func (c *StreamClient) OutflowRate(ctx context.Context, account, symbol string) (*big.Int, error) {
	body, err := json.Marshal(map[string]interface{}{
		"query":     outflowsQuery,
		"variables": map[string]string{"account": strings.ToLower(account)},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query streams: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("subgraph returned status %d", resp.StatusCode)
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("subgraph returned invalid JSON")
	}
	if msg := gjson.GetBytes(raw, "errors.0.message"); msg.Exists() {
		return nil, fmt.Errorf("subgraph error: %s", msg.String())
	}

	total := new(big.Int)
	want := strings.ToLower(symbol)
	for _, flow := range gjson.GetBytes(raw, "data.account.outflows").Array() {
		if !strings.Contains(strings.ToLower(flow.Get("token.symbol").String()), want) {
			continue
		}
		rate, ok := new(big.Int).SetString(flow.Get("currentFlowRate").String(), 10)
		if !ok {
			continue
		}
		total.Add(total, rate)
	}
	return total, nil
}
