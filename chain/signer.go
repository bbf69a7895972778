package chain

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
)

// Tx is an unsigned transaction request.
type Tx struct {
	To    string
	Data  []byte
	Value *big.Int
}

// SignerClient submits transactions to a custody signer service that
// holds the agent's key. The agent process never sees the key itself.
type SignerClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewSignerClient creates a signer client rooted at baseURL.
func NewSignerClient(baseURL, token string) *SignerClient {
	return &SignerClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type sendRequest struct {
	To    string `json:"to"`
	Data  string `json:"data"`
	Value string `json:"value"`
}

type sendResponse struct {
	TxHash string `json:"txHash"`
	Error  string `json:"error,omitempty"`
}

// SendTransaction signs and broadcasts tx and returns its hash.
func (s *SignerClient) SendTransaction(ctx context.Context, tx Tx) (string, error) {
	value := "0"
	if tx.Value != nil {
		value = tx.Value.String()
	}
	body, err := json.Marshal(sendRequest{To: tx.To, Data: HexEncode(tx.Data), Value: value})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/transactions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("signer request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var out sendResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("signer returned status %d: %s", resp.StatusCode, string(raw))
	}
	if resp.StatusCode != http.StatusOK || out.Error != "" {
		return "", fmt.Errorf("signer rejected transaction (status %d): %s", resp.StatusCode, out.Error)
	}
	if out.TxHash == "" {
		return "", fmt.Errorf("signer returned no transaction hash")
	}
	return out.TxHash, nil
}
