package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SubmitPayload is the outbound payment payload built by the submission
// coordinator. Field names follow the transaction service contract.
type SubmitPayload struct {
	PaymentData    map[string]any `json:"paymentData"`
	BankData       map[string]any `json:"bankData"`
	DebitAmountUSD string         `json:"debitAmountUSD"`
	ExchangeRate   string         `json:"exchangeRate,omitempty"`
	Action         string         `json:"action"`
	TxID           string         `json:"txid,omitempty"`
	Recipient      map[string]any `json:"recipient"`
}

// SubmitResult is the decoded transaction-creation response.
type SubmitResult struct {
	TransactionID string `json:"transaction_id"`
}

// TransactionGateway creates payment transactions on the backend.
type TransactionGateway interface {
	Submit(ctx context.Context, payload SubmitPayload) (*SubmitResult, error)
}

// HTTPTransactionGateway posts payloads to the transaction service.
type HTTPTransactionGateway struct {
	baseURL string
	client  *http.Client
	cipher  Cipher
}

func NewHTTPTransactionGateway(baseURL string, cipher Cipher) *HTTPTransactionGateway {
	return &HTTPTransactionGateway{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		cipher:  cipher,
	}
}

func (g *HTTPTransactionGateway) Submit(ctx context.Context, payload SubmitPayload) (*SubmitResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode transaction payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/transaction/", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build transaction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transaction request: %w", err)
	}
	defer resp.Body.Close()

	var env Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode transaction envelope: %w", err)
	}
	data, err := OpenEnvelope(env, g.cipher)
	if err != nil {
		return nil, err
	}

	var result SubmitResult
	if len(data) > 0 {
		if err := json.Unmarshal(data, &result); err != nil {
			return nil, fmt.Errorf("decode transaction result: %w", err)
		}
	}
	return &result, nil
}

// SessionRefresher triggers the optional post-success session refresh.
// Failures are logged by callers, never surfaced: the transaction has
// already succeeded by the time this runs.
type SessionRefresher interface {
	Refresh(ctx context.Context) error
}

// HTTPSessionRefresher pings the session service refresh endpoint.
type HTTPSessionRefresher struct {
	baseURL string
	client  *http.Client
}

func NewHTTPSessionRefresher(baseURL string) *HTTPSessionRefresher {
	return &HTTPSessionRefresher{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (r *HTTPSessionRefresher) Refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/session/refresh", nil)
	if err != nil {
		return fmt.Errorf("build session refresh request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("session refresh request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("session refresh returned status %d", resp.StatusCode)
	}
	return nil
}
