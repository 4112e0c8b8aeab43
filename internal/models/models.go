package models

import (
	"time"

	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentRequest is the mutable draft being built field-by-field. It is
// mutated by user edits, resolver callbacks and rate refreshes, always as a
// merge against the latest snapshot.
type PaymentRequest struct {
	ID             uuid.UUID       `json:"id"`
	RojifiID       string          `json:"rojifi_id"`
	SenderCurrency domain.Currency `json:"sender_currency"`
	SenderName     string          `json:"sender_name"`

	// Beneficiary identity
	AccountName string `json:"account_name"`
	AccountType string `json:"account_type"`
	Address     string `json:"address"`
	City        string `json:"city"`
	State       string `json:"state"`
	PostalCode  string `json:"postal_code"`
	Country     string `json:"country"`
	PhoneCode   string `json:"phone_code"`
	PhoneNumber string `json:"phone_number"`

	// Beneficiary bank identity
	SwiftCode       string `json:"swift_code"`
	IBAN            string `json:"iban"`
	AccountNumber   string `json:"account_number"`
	SortCode        string `json:"sort_code"`
	BankName        string `json:"bank_name"`
	BankAddress     string `json:"bank_address"`
	BankCity        string `json:"bank_city"`
	BankRegion      string `json:"bank_region"`
	BankCountry     string `json:"bank_country"`
	BankCountryCode string `json:"bank_country_code"`

	// Country-specific routing codes
	IFSCCode               string `json:"ifsc_code"`
	RoutingNumber          string `json:"routing_number"`
	BSBNumber              string `json:"bsb_number"`
	InstitutionNumber      string `json:"institution_number"`
	TransitNumber          string `json:"transit_number"`
	SouthAfricaRoutingCode string `json:"south_africa_routing_code"`

	// Derived, never user-chosen
	PaymentRail        domain.PaymentRail `json:"payment_rail,omitempty"`
	DestinationCountry string             `json:"destination_country"`

	Amount            string     `json:"amount"`
	Reason            string     `json:"reason"`
	ReasonDescription string     `json:"reason_description"`
	InvoiceNumber     string     `json:"invoice_number"`
	InvoiceDate       *time.Time `json:"invoice_date,omitempty"`
	DocumentURL       string     `json:"document_url"`

	// Edited tracks fields the user has hand-entered, so resolver back-fill
	// never clobbers them unless the bank code itself changed.
	Edited map[domain.FieldKey]bool `json:"edited,omitempty"`

	// Generation counts bank-code entries; resolver responses carrying a
	// stale generation are discarded.
	Generation uint64 `json:"generation"`

	// ResolveFailed flags an "unable to verify this code" outcome.
	ResolveFailed  bool `json:"resolve_failed"`
	ResolvePending bool `json:"resolve_pending"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BankResolved reports whether a bank identity has been applied to the draft.
func (p *PaymentRequest) BankResolved() bool {
	return p.BankName != "" && !p.ResolveFailed && !p.ResolvePending
}

// MarkEdited records a hand-entered field.
func (p *PaymentRequest) MarkEdited(key domain.FieldKey) {
	if p.Edited == nil {
		p.Edited = make(map[domain.FieldKey]bool)
	}
	p.Edited[key] = true
}

// WasEdited reports whether the user hand-entered the field.
func (p *PaymentRequest) WasEdited(key domain.FieldKey) bool {
	return p.Edited[key]
}

// BankIdentity is the resolver output. It is immutable once fetched and is
// superseded wholesale by a new fetch, never partially merged.
type BankIdentity struct {
	BankName    string `json:"bank_name"`
	Address     string `json:"address"`
	City        string `json:"city"`
	Region      string `json:"region"`
	Country     string `json:"country"`
	CountryCode string `json:"country_code"`
	Code        string `json:"code"`
}

// ExchangeRate is a point-in-time conversion quote between two currencies.
// Stale values stay usable between refreshes unless IsLive is false.
type ExchangeRate struct {
	From        domain.Currency `json:"from"`
	To          domain.Currency `json:"to"`
	Rate        decimal.Decimal `json:"rate"`
	IsLive      bool            `json:"is_live"`
	Loading     bool            `json:"loading"`
	LastUpdated time.Time       `json:"last_updated"`
}

// Ready reports whether the quote can be used for conversion.
func (r ExchangeRate) Ready() bool {
	return r.Rate.IsPositive()
}

// SubmissionSummary is the snapshot carried into the SUCCESS state for display.
type SubmissionSummary struct {
	Amount          string          `json:"amount"`
	Currency        domain.Currency `json:"currency"`
	BeneficiaryName string          `json:"beneficiary_name"`
	AccountNumber   string          `json:"account_number"`
	BankName        string          `json:"bank_name"`
	BankCountry     string          `json:"bank_country"`
	SwiftCode       string          `json:"swift_code"`
}

// SubmissionState is the per-draft submission state machine position.
type SubmissionState struct {
	Status        string             `json:"status"`
	Message       string             `json:"message,omitempty"`
	Summary       *SubmissionSummary `json:"summary,omitempty"`
	TransactionID string             `json:"transaction_id,omitempty"`
	Attempts      int                `json:"attempts"`
}

// DraftSnapshot is the unit persisted in the draft store: the request plus
// its submission state. Dates serialize as RFC 3339; attachments live behind
// durable URLs and are never embedded.
type DraftSnapshot struct {
	Draft PaymentRequest  `json:"draft"`
	State SubmissionState `json:"state"`
}
