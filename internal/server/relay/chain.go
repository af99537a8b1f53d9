package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ChainReader is the engine's read-only view of the underlying chain:
// balances and transaction confirmation only.
type ChainReader interface {
	Balance(ctx context.Context, wallet, token string) (string, error)
	IsConfirmed(ctx context.Context, txSignature string) (bool, error)
}

// RPCChainReader reads via a JSON-RPC node endpoint.
type RPCChainReader struct {
	endpoint string
	http     *http.Client
}

func NewRPCChainReader(endpoint string) *RPCChainReader {
	return &RPCChainReader{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

func (r *RPCChainReader) Balance(ctx context.Context, wallet, token string) (string, error) {
	var result struct {
		Amount string `json:"amount"`
	}
	if err := r.call(ctx, "getTokenBalance", []any{wallet, token}, &result); err != nil {
		return "", err
	}
	return result.Amount, nil
}

func (r *RPCChainReader) IsConfirmed(ctx context.Context, txSignature string) (bool, error) {
	var result struct {
		Confirmed bool `json:"confirmed"`
	}
	if err := r.call(ctx, "getTransactionStatus", []any{txSignature}, &result); err != nil {
		return false, err
	}
	return result.Confirmed, nil
}

func (r *RPCChainReader) call(ctx context.Context, method string, params []any, out any) error {
	payload, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rpc returned status %d", resp.StatusCode)
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return err
	}
	if envelope.Error != nil {
		return fmt.Errorf("rpc error: %s", envelope.Error.Message)
	}

	return json.Unmarshal(envelope.Result, out)
}
