package chain

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// ErrNoReceipt is returned when a transaction has not been mined yet.
var ErrNoReceipt = errors.New("transaction receipt not available")

// ErrReceiptTimeout is returned by WaitForReceipt when the transaction is
// still unmined after ReceiptTimeout.
var ErrReceiptTimeout = errors.New("transaction not mined in time")

// DefaultReceiptTimeout bounds WaitForReceipt.
const DefaultReceiptTimeout = 3 * time.Minute

// RPCClient is a minimal Ethereum JSON-RPC client. The first URL is
// primary; others are fallbacks tried in order.
type RPCClient struct {
	urls       []string
	httpClient *http.Client
	requestID  atomic.Int64

	// PollInterval is how often WaitForReceipt checks for a receipt.
	PollInterval time.Duration

	// ReceiptTimeout is how long WaitForReceipt waits, whatever ctx allows.
	// A dropped or underpriced transaction is never mined.
	ReceiptTimeout time.Duration
}

// NewRPCClient creates a new RPC client with the given endpoint URLs.
func NewRPCClient(urls ...string) *RPCClient {
	return &RPCClient{
		urls: urls,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		PollInterval:   2 * time.Second,
		ReceiptTimeout: DefaultReceiptTimeout,
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int64         `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Receipt is the subset of a transaction receipt the agent cares about.
type Receipt struct {
	TransactionHash string `json:"transactionHash"`
	BlockNumber     string `json:"blockNumber"`
	Status          string `json:"status"`
}

// Succeeded reports whether the transaction executed without reverting.
func (r *Receipt) Succeeded() bool {
	return r.Status == "0x1"
}

// EthCall executes a read-only contract call (eth_call) and returns the raw result bytes.
func (c *RPCClient) EthCall(ctx context.Context, to string, calldata []byte) ([]byte, error) {
	raw, err := c.call(ctx, "eth_call", map[string]string{
		"to":   to,
		"data": HexEncode(calldata),
	}, "latest")
	if err != nil {
		return nil, err
	}
	return decodeHexResult(raw)
}

// GetBalance returns the native balance of address in wei.
func (c *RPCClient) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	raw, err := c.call(ctx, "eth_getBalance", address, "latest")
	if err != nil {
		return nil, err
	}
	var hexResult string
	if err := json.Unmarshal(raw, &hexResult); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	n, ok := new(big.Int).SetString(strings.TrimPrefix(hexResult, "0x"), 16)
	if !ok {
		return nil, fmt.Errorf("invalid balance %q", hexResult)
	}
	return n, nil
}

// GetTransactionReceipt returns the receipt of a mined transaction, or
// ErrNoReceipt while it is still pending.
func (c *RPCClient) GetTransactionReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	raw, err := c.call(ctx, "eth_getTransactionReceipt", txHash)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, ErrNoReceipt
	}
	var r Receipt
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("unmarshal receipt: %w", err)
	}
	return &r, nil
}

// WaitForReceipt polls until the transaction is mined, ReceiptTimeout
// elapses (ErrReceiptTimeout) or ctx is done.
func (c *RPCClient) WaitForReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	interval := c.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	timeout := c.ReceiptTimeout
	if timeout <= 0 {
		timeout = DefaultReceiptTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		r, err := c.GetTransactionReceipt(waitCtx, txHash)
		if err == nil {
			return r, nil
		}
		if !errors.Is(err, ErrNoReceipt) && waitCtx.Err() == nil {
			return nil, err
		}
		select {
		case <-waitCtx.Done():
		case <-ticker.C:
			continue
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("waiting for %s: %w", txHash, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %s after %s", ErrReceiptTimeout, txHash, timeout)
	}
}

func (c *RPCClient) call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.requestID.Add(1),
	}

	var lastErr error
	for _, url := range c.urls {
		result, err := c.doRequest(ctx, url, req)
		if err != nil {
			lastErr = err
			continue
		}
		return result, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no endpoints configured")
	}
	return nil, fmt.Errorf("all RPC endpoints failed: %w", lastErr)
}

func (c *RPCClient) doRequest(ctx context.Context, url string, req rpcRequest) (json.RawMessage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if rpcResp.Error != nil {
		return nil, fmt.Errorf("rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}

func decodeHexResult(raw json.RawMessage) ([]byte, error) {
	// Result is a hex string like "0x..."
	var hexResult string
	if err := json.Unmarshal(raw, &hexResult); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	return hex.DecodeString(strings.TrimPrefix(hexResult, "0x"))
}
