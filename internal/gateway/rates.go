package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/domain"
	"github.com/shopspring/decimal"
)

// RateQuote is a single conversion pair returned by the rate service.
type RateQuote struct {
	To     domain.Currency `json:"to"`
	Rate   decimal.Decimal `json:"rate"`
	IsLive bool            `json:"is_live"`
}

// RateSource fetches live conversion quotes for a base currency.
type RateSource interface {
	FetchRates(ctx context.Context, from domain.Currency) ([]RateQuote, error)
}

// HTTPRateSource calls the exchange-rate provider service.
type HTTPRateSource struct {
	baseURL string
	client  *http.Client
	cipher  Cipher
}

func NewHTTPRateSource(baseURL string, cipher Cipher) *HTTPRateSource {
	return &HTTPRateSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		cipher:  cipher,
	}
}

func (s *HTTPRateSource) FetchRates(ctx context.Context, from domain.Currency) ([]RateQuote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/provider/rate/"+url.PathEscape(string(from)), nil)
	if err != nil {
		return nil, fmt.Errorf("build rate request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rate request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rate service returned status %d", resp.StatusCode)
	}

	var env Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode rate envelope: %w", err)
	}
	payload, err := OpenEnvelope(env, s.cipher)
	if err != nil {
		return nil, err
	}

	var quotes []RateQuote
	if err := json.Unmarshal(payload, &quotes); err != nil {
		return nil, fmt.Errorf("decode rate quotes: %w", err)
	}
	return quotes, nil
}
