package gateway

import (
	"context"
	"io"
	"sync"

	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/domain"
	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/models"
)

// MockBankDirectory serves lookups from an in-memory table. Codes absent from
// the table resolve as not found.
type MockBankDirectory struct {
	mu         sync.Mutex
	Identities map[string]*models.BankIdentity
	Err        error
	calls      int
}

func NewMockBankDirectory() *MockBankDirectory {
	return &MockBankDirectory{Identities: make(map[string]*models.BankIdentity)}
}

func (m *MockBankDirectory) Lookup(ctx context.Context, code string, codeType domain.BankCodeType) (*models.BankIdentity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.Err != nil {
		return nil, m.Err
	}
	identity, ok := m.Identities[code]
	if !ok {
		return nil, ErrBankNotFound
	}
	clone := *identity
	return &clone, nil
}

func (m *MockBankDirectory) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockRateSource returns canned quotes per base currency.
type MockRateSource struct {
	mu     sync.Mutex
	Quotes map[domain.Currency][]RateQuote
	Err    error
	calls  int
}

func NewMockRateSource() *MockRateSource {
	return &MockRateSource{Quotes: make(map[domain.Currency][]RateQuote)}
}

func (m *MockRateSource) FetchRates(ctx context.Context, from domain.Currency) ([]RateQuote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Quotes[from], nil
}

func (m *MockRateSource) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockTransactionGateway records submitted payloads and returns a canned result.
type MockTransactionGateway struct {
	mu       sync.Mutex
	Result   *SubmitResult
	Err      error
	payloads []SubmitPayload
}

func NewMockTransactionGateway() *MockTransactionGateway {
	return &MockTransactionGateway{Result: &SubmitResult{TransactionID: "tx-mock-1"}}
}

func (m *MockTransactionGateway) Submit(ctx context.Context, payload SubmitPayload) (*SubmitResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payloads = append(m.payloads, payload)
	if m.Err != nil {
		return nil, m.Err
	}
	result := *m.Result
	return &result, nil
}

// Payloads returns a copy of every payload submitted so far.
func (m *MockTransactionGateway) Payloads() []SubmitPayload {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SubmitPayload, len(m.payloads))
	copy(out, m.payloads)
	return out
}

// MockUploader returns a fixed durable URL.
type MockUploader struct {
	URL string
	Err error
}

func (m *MockUploader) Upload(ctx context.Context, filename string, content io.Reader) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	if m.URL != "" {
		return m.URL, nil
	}
	return "https://files.example.com/" + filename, nil
}

// MockSessionRefresher counts refresh calls.
type MockSessionRefresher struct {
	mu    sync.Mutex
	Err   error
	calls int
}

func (m *MockSessionRefresher) Refresh(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.Err
}

func (m *MockSessionRefresher) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
