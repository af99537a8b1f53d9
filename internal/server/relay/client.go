// Package relay wraps the external privacy-payments service that builds
// and submits the actual zero-knowledge transfer proofs. The engine treats
// it as an opaque, possibly-slow, possibly-failing network dependency.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/veilpay/veilpay/internal/common"
	"github.com/veilpay/veilpay/internal/logging"
)

// TransferRequest describes one private transfer.
type TransferRequest struct {
	SenderWallet    string
	RecipientWallet string
	Token           string
	Amount          string
	ProofRef        string
	// Signature authorizes the transfer; produced by the sender's key and
	// discarded with the request.
	Signature []byte
}

// TransferResult is what the relay reports back per transfer.
type TransferResult struct {
	Success     bool
	TxSignature string
	Err         string
}

// Client is the boundary to the external relay service.
type Client interface {
	// UploadProof registers a transfer proof and returns its reference.
	UploadProof(ctx context.Context, sender, token, amount, nonce string) (string, error)

	// Transfer submits one private transfer. Called exactly once per
	// payment instruction; the engine never retries a submitted transfer.
	Transfer(ctx context.Context, req *TransferRequest) (*TransferResult, error)
}

// HTTPClient talks JSON over HTTP to the relay endpoint. UploadProof is
// retried with backoff since it is idempotent; Transfer is not.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	logger  logging.Logger
}

func NewHTTPClient(baseURL string, logger logging.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 60 * time.Second},
		logger:  logger.With("component", "relay"),
	}
}

func (c *HTTPClient) UploadProof(ctx context.Context, sender, token, amount, nonce string) (string, error) {
	var proofRef string

	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var resp struct {
			ProofRef string `json:"proof_ref"`
		}
		err := c.post(ctx, "/v1/proofs", map[string]string{
			"sender": sender,
			"token":  token,
			"amount": amount,
			"nonce":  nonce,
		}, &resp)
		if err != nil {
			return retry.RetryableError(err)
		}
		proofRef = resp.ProofRef
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("proof upload: %w", err)
	}

	return proofRef, nil
}

func (c *HTTPClient) Transfer(ctx context.Context, req *TransferRequest) (*TransferResult, error) {
	var resp struct {
		Success     bool   `json:"success"`
		TxSignature string `json:"tx_signature"`
		Error       string `json:"error"`
	}
	err := c.post(ctx, "/v1/transfer", map[string]any{
		"sender":    req.SenderWallet,
		"recipient": req.RecipientWallet,
		"token":     req.Token,
		"amount":    req.Amount,
		"proof_ref": req.ProofRef,
		"signature": req.Signature,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrTransfer, err)
	}

	return &TransferResult{Success: resp.Success, TxSignature: resp.TxSignature, Err: resp.Error}, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("relay returned status %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
