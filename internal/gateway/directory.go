package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/domain"
	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/models"
)

// ErrBankNotFound signals that the lookup service could not verify the code.
var ErrBankNotFound = errors.New("bank code not found")

// BankDirectory resolves a sanitized bank code into a bank identity.
// Implementations are idempotent and side-effect-free beyond the lookup.
type BankDirectory interface {
	Lookup(ctx context.Context, code string, codeType domain.BankCodeType) (*models.BankIdentity, error)
}

// HTTPBankDirectory calls the bank-code lookup service.
type HTTPBankDirectory struct {
	baseURL string
	client  *http.Client
	cipher  Cipher
}

func NewHTTPBankDirectory(baseURL string, cipher Cipher) *HTTPBankDirectory {
	return &HTTPBankDirectory{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
		cipher:  cipher,
	}
}

type swiftRecord struct {
	BankName    string `json:"bank_name"`
	Address     string `json:"address"`
	City        string `json:"city"`
	Region      string `json:"region"`
	Country     string `json:"country"`
	CountryCode string `json:"country_code"`
	SwiftCode   string `json:"swift_code"`
}

type ibanRecord struct {
	Valid       bool   `json:"valid"`
	BankName    string `json:"bank_name"`
	City        string `json:"city"`
	Country     string `json:"country"`
	CountryCode string `json:"country_code"`
	IBAN        string `json:"iban"`
}

type sortCodeRecord struct {
	BankName    string `json:"bank_name"`
	City        string `json:"city"`
	Country     string `json:"country"`
	CountryCode string `json:"country_code"`
	SortCode    string `json:"sort_code"`
}

func (d *HTTPBankDirectory) Lookup(ctx context.Context, code string, codeType domain.BankCodeType) (*models.BankIdentity, error) {
	var path string
	switch codeType {
	case domain.CodeTypeSwift:
		path = "/transaction/swift/" + url.PathEscape(code)
	case domain.CodeTypeIBAN:
		path = "/transaction/iban/" + url.PathEscape(code)
	case domain.CodeTypeSortCode:
		path = "/transaction/sortcode/" + url.PathEscape(code)
	default:
		return nil, fmt.Errorf("unsupported bank code type %q", codeType)
	}

	payload, err := d.get(ctx, path)
	if err != nil {
		return nil, err
	}

	switch codeType {
	case domain.CodeTypeSwift:
		var records []swiftRecord
		if err := json.Unmarshal(payload, &records); err != nil {
			return nil, fmt.Errorf("decode swift lookup: %w", err)
		}
		if len(records) == 0 {
			return nil, ErrBankNotFound
		}
		rec := records[0]
		return &models.BankIdentity{
			BankName:    rec.BankName,
			Address:     rec.Address,
			City:        rec.City,
			Region:      rec.Region,
			Country:     rec.Country,
			CountryCode: rec.CountryCode,
			Code:        rec.SwiftCode,
		}, nil
	case domain.CodeTypeIBAN:
		var rec ibanRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, fmt.Errorf("decode iban lookup: %w", err)
		}
		if !rec.Valid {
			return nil, ErrBankNotFound
		}
		return &models.BankIdentity{
			BankName:    rec.BankName,
			City:        rec.City,
			Country:     rec.Country,
			CountryCode: rec.CountryCode,
			Code:        rec.IBAN,
		}, nil
	default:
		var rec sortCodeRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, fmt.Errorf("decode sort code lookup: %w", err)
		}
		if rec.BankName == "" {
			return nil, ErrBankNotFound
		}
		return &models.BankIdentity{
			BankName:    rec.BankName,
			City:        rec.City,
			Country:     rec.Country,
			CountryCode: rec.CountryCode,
			Code:        rec.SortCode,
		}, nil
	}
}

func (d *HTTPBankDirectory) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build lookup request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bank lookup request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrBankNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bank lookup returned status %d", resp.StatusCode)
	}

	var env Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode lookup envelope: %w", err)
	}
	return OpenEnvelope(env, d.cipher)
}
