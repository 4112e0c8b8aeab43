package service

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/domain"
	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/models"
)

// CountryDirectory exposes third-party country reference data. Only the
// state list is consumed here, for referential checks on the state field.
type CountryDirectory interface {
	States(country string) []string
}

// CurrencyPolicy carries the required-field set and conditionals for one
// sender currency. Policies replace scattered per-currency branching.
type CurrencyPolicy struct {
	Currency domain.Currency
	Required []domain.FieldKey

	// RequireIBANOrAccount demands that at least one of IBAN/accountNumber
	// is populated. Never both absent.
	RequireIBANOrAccount bool

	// CountryRouting maps a destination ISO2 country to the routing field it
	// additionally requires.
	CountryRouting map[string]domain.FieldKey
}

func defaultPolicies() map[domain.Currency]CurrencyPolicy {
	return map[domain.Currency]CurrencyPolicy{
		domain.CurrencyUSD: {
			Currency: domain.CurrencyUSD,
			Required: []domain.FieldKey{
				domain.FieldAccountName,
				domain.FieldAmount,
				domain.FieldReason,
				domain.FieldInvoiceNumber,
				domain.FieldInvoiceDate,
				domain.FieldSenderName,
				domain.FieldPhoneCode,
				domain.FieldPhoneNumber,
			},
			RequireIBANOrAccount: true,
			CountryRouting: map[string]domain.FieldKey{
				"IN": domain.FieldIFSCCode,
				"ZA": domain.FieldSouthAfricaRouting,
			},
		},
		domain.CurrencyEUR: {
			Currency: domain.CurrencyEUR,
			Required: []domain.FieldKey{
				domain.FieldAccountName,
				domain.FieldAmount,
				domain.FieldReason,
				domain.FieldInvoiceNumber,
				domain.FieldInvoiceDate,
				domain.FieldAddress,
				domain.FieldCity,
				domain.FieldCountry,
				domain.FieldPhoneCode,
				domain.FieldPhoneNumber,
			},
			RequireIBANOrAccount: true,
		},
		domain.CurrencyGBP: {
			Currency: domain.CurrencyGBP,
			Required: []domain.FieldKey{
				domain.FieldAccountName,
				domain.FieldAmount,
				domain.FieldReason,
				domain.FieldInvoiceNumber,
				domain.FieldInvoiceDate,
				domain.FieldAddress,
				domain.FieldCity,
				domain.FieldPostalCode,
				domain.FieldCountry,
				domain.FieldAccountNumber,
				domain.FieldPhoneCode,
				domain.FieldPhoneNumber,
			},
		},
	}
}

var (
	accountNamePattern   = regexp.MustCompile(`^[A-Za-z][A-Za-z\s]*$`)
	invoiceNumberPattern = regexp.MustCompile(`^[A-Za-z0-9/_\-]+$`)
	ibanPattern          = regexp.MustCompile(`^[A-Za-z0-9]{15,34}$`)
	sortCodePattern      = regexp.MustCompile(`^\d{6}$`)
	ifscPattern          = regexp.MustCompile(`^[A-Z]{4}0[A-Z0-9]{6}$`)
	phonePattern         = regexp.MustCompile(`^\+?\d{4,15}$`)
)

// ValidationEngine evaluates the declarative field rules for a draft.
// Every method is pure and performs no I/O; evaluation is cheap enough to
// run on each edit.
type ValidationEngine struct {
	policies  map[domain.Currency]CurrencyPolicy
	countries CountryDirectory
}

func NewValidationEngine(countries CountryDirectory) *ValidationEngine {
	return &ValidationEngine{
		policies:  defaultPolicies(),
		countries: countries,
	}
}

// RequiredFields returns the unconditionally required field set for the
// currency plus the destination-country routing field, if any. The
// IBAN-or-accountNumber pairing is evaluated separately in Validate.
func (e *ValidationEngine) RequiredFields(currency domain.Currency, rail domain.PaymentRail, destCountry string) map[domain.FieldKey]struct{} {
	policy, ok := e.policies[currency]
	if !ok {
		return nil
	}
	set := make(map[domain.FieldKey]struct{}, len(policy.Required)+1)
	for _, f := range policy.Required {
		set[f] = struct{}{}
	}
	if extra, ok := policy.CountryRouting[destCountry]; ok {
		set[extra] = struct{}{}
	}
	return set
}

// ValidateField checks a single field value against its format rule.
// Empty values pass here; required-ness is Validate's concern.
func (e *ValidationEngine) ValidateField(key domain.FieldKey, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	switch key {
	case domain.FieldAccountName, domain.FieldSenderName:
		if len(value) <= 2 || !accountNamePattern.MatchString(value) {
			return fmt.Errorf("must contain only letters and spaces, longer than 2 characters")
		}
	case domain.FieldInvoiceNumber:
		if !invoiceNumberPattern.MatchString(value) {
			return fmt.Errorf("may contain only letters, digits, '/', '_' and '-'")
		}
	case domain.FieldIBAN:
		if !ibanPattern.MatchString(value) {
			return fmt.Errorf("must be alphanumeric and at least 15 characters")
		}
	case domain.FieldSortCode:
		if !sortCodePattern.MatchString(value) {
			return fmt.Errorf("must be exactly 6 digits")
		}
	case domain.FieldIFSCCode:
		if !ifscPattern.MatchString(strings.ToUpper(value)) {
			return fmt.Errorf("is not a valid IFSC code")
		}
	case domain.FieldPhoneNumber:
		if !phonePattern.MatchString(value) {
			return fmt.Errorf("is not a valid phone number")
		}
	case domain.FieldReasonDescription:
		if len(value) <= 5 {
			return fmt.Errorf("must be longer than 5 characters")
		}
	case domain.FieldAmount:
		if _, ok := domain.ParseAmount(value); !ok {
			return fmt.Errorf("must be a number with at most 2 decimal places")
		}
	}
	return nil
}

// Validate returns every outstanding field failure for the draft: missing
// required fields, format violations, the IBAN/account pairing, the OTHER
// reason description, and the state referential check.
func (e *ValidationEngine) Validate(draft *models.PaymentRequest) []FieldError {
	var errs []FieldError

	policy, ok := e.policies[draft.SenderCurrency]
	if !ok {
		return []FieldError{{Field: "senderCurrency", Message: "unsupported currency"}}
	}

	required := e.RequiredFields(draft.SenderCurrency, draft.PaymentRail, draft.DestinationCountry)
	for key := range required {
		if strings.TrimSpace(e.fieldValue(draft, key)) == "" {
			errs = append(errs, FieldError{Field: key, Message: "is required"})
		}
	}

	if policy.RequireIBANOrAccount {
		if strings.TrimSpace(draft.IBAN) == "" && strings.TrimSpace(draft.AccountNumber) == "" {
			errs = append(errs, FieldError{Field: domain.FieldAccountNumber, Message: "either IBAN or account number is required"})
		}
	}

	if draft.Reason == domain.ReasonOther && strings.TrimSpace(draft.ReasonDescription) == "" {
		errs = append(errs, FieldError{Field: domain.FieldReasonDescription, Message: "is required when reason is OTHER"})
	}

	for _, key := range formatCheckedFields {
		if value := e.fieldValue(draft, key); strings.TrimSpace(value) != "" {
			if err := e.ValidateField(key, value); err != nil {
				errs = append(errs, FieldError{Field: key, Message: err.Error()})
			}
		}
	}

	// State is never required, but a present value must belong to the
	// selected country.
	if state := strings.TrimSpace(draft.State); state != "" && e.countries != nil {
		if known := e.countries.States(draft.Country); len(known) > 0 && !containsFold(known, state) {
			errs = append(errs, FieldError{Field: domain.FieldState, Message: fmt.Sprintf("is not a known state of %s", draft.Country)})
		}
	}

	return errs
}

// IsComplete reports whether the draft passes full validation. Pure and
// synchronous; safe to call on every keystroke.
func (e *ValidationEngine) IsComplete(draft *models.PaymentRequest) bool {
	return len(e.Validate(draft)) == 0
}

var formatCheckedFields = []domain.FieldKey{
	domain.FieldAccountName,
	domain.FieldSenderName,
	domain.FieldInvoiceNumber,
	domain.FieldIBAN,
	domain.FieldSortCode,
	domain.FieldIFSCCode,
	domain.FieldPhoneNumber,
	domain.FieldReasonDescription,
	domain.FieldAmount,
}

func (e *ValidationEngine) fieldValue(draft *models.PaymentRequest, key domain.FieldKey) string {
	switch key {
	case domain.FieldAccountName:
		return draft.AccountName
	case domain.FieldAmount:
		return draft.Amount
	case domain.FieldReason:
		return draft.Reason
	case domain.FieldReasonDescription:
		return draft.ReasonDescription
	case domain.FieldInvoiceNumber:
		return draft.InvoiceNumber
	case domain.FieldInvoiceDate:
		if draft.InvoiceDate == nil {
			return ""
		}
		return draft.InvoiceDate.Format("2006-01-02")
	case domain.FieldSenderName:
		return draft.SenderName
	case domain.FieldPhoneCode:
		return draft.PhoneCode
	case domain.FieldPhoneNumber:
		return draft.PhoneNumber
	case domain.FieldAddress:
		return draft.Address
	case domain.FieldCity:
		return draft.City
	case domain.FieldState:
		return draft.State
	case domain.FieldPostalCode:
		return draft.PostalCode
	case domain.FieldCountry:
		return draft.Country
	case domain.FieldAccountType:
		return draft.AccountType
	case domain.FieldSwiftCode:
		return draft.SwiftCode
	case domain.FieldIBAN:
		return draft.IBAN
	case domain.FieldAccountNumber:
		return draft.AccountNumber
	case domain.FieldSortCode:
		return draft.SortCode
	case domain.FieldBankName:
		return draft.BankName
	case domain.FieldBankAddress:
		return draft.BankAddress
	case domain.FieldBankCountry:
		return draft.BankCountry
	case domain.FieldIFSCCode:
		return draft.IFSCCode
	case domain.FieldRoutingNumber:
		return draft.RoutingNumber
	case domain.FieldBSBNumber:
		return draft.BSBNumber
	case domain.FieldInstitutionNumber:
		return draft.InstitutionNumber
	case domain.FieldTransitNumber:
		return draft.TransitNumber
	case domain.FieldSouthAfricaRouting:
		return draft.SouthAfricaRoutingCode
	case domain.FieldDocumentURL:
		return draft.DocumentURL
	}
	return ""
}

func containsFold(list []string, value string) bool {
	for _, item := range list {
		if strings.EqualFold(item, value) {
			return true
		}
	}
	return false
}

// StaticCountryDirectory is a fixed in-memory country reference table used
// when the external reference service is not wired.
type StaticCountryDirectory struct {
	table map[string][]string
}

func NewStaticCountryDirectory(table map[string][]string) *StaticCountryDirectory {
	normalized := make(map[string][]string, len(table))
	for country, states := range table {
		normalized[strings.ToLower(country)] = states
	}
	return &StaticCountryDirectory{table: normalized}
}

func (d *StaticCountryDirectory) States(country string) []string {
	return d.table[strings.ToLower(strings.TrimSpace(country))]
}
