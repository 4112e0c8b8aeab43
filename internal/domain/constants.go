package domain

// Currency is an ISO 4217 sender currency supported by the pipeline.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
)

// SupportedCurrencies lists every currency the pipeline accepts.
var SupportedCurrencies = []Currency{CurrencyUSD, CurrencyEUR, CurrencyGBP}

func (c Currency) Valid() bool {
	switch c {
	case CurrencyUSD, CurrencyEUR, CurrencyGBP:
		return true
	}
	return false
}

// PaymentRail is the clearing network a payment is routed over.
// It is derived from the resolved bank code type, never chosen by the user.
type PaymentRail string

const (
	RailSWIFT PaymentRail = "SWIFT"
	RailSEPA  PaymentRail = "SEPA"
	RailFPS   PaymentRail = "FPS"
)

// Submission statuses
const (
	SubmissionStatusIdle    = "IDLE"
	SubmissionStatusLoading = "LOADING"
	SubmissionStatusSuccess = "SUCCESS"
	SubmissionStatusError   = "ERROR"
)

// FieldKey identifies a draft field for validation and merge tracking.
type FieldKey string

const (
	FieldAccountName        FieldKey = "accountName"
	FieldAmount             FieldKey = "amount"
	FieldReason             FieldKey = "reason"
	FieldReasonDescription  FieldKey = "reasonDescription"
	FieldInvoiceNumber      FieldKey = "invoiceNumber"
	FieldInvoiceDate        FieldKey = "invoiceDate"
	FieldSenderName         FieldKey = "senderName"
	FieldPhoneCode          FieldKey = "phoneCode"
	FieldPhoneNumber        FieldKey = "phoneNumber"
	FieldAddress            FieldKey = "address"
	FieldCity               FieldKey = "city"
	FieldState              FieldKey = "state"
	FieldPostalCode         FieldKey = "postalCode"
	FieldCountry            FieldKey = "country"
	FieldAccountType        FieldKey = "accountType"
	FieldSwiftCode          FieldKey = "swiftCode"
	FieldIBAN               FieldKey = "iban"
	FieldAccountNumber      FieldKey = "accountNumber"
	FieldSortCode           FieldKey = "sortCode"
	FieldBankName           FieldKey = "bankName"
	FieldBankAddress        FieldKey = "bankAddress"
	FieldBankCountry        FieldKey = "bankCountry"
	FieldIFSCCode           FieldKey = "ifscCode"
	FieldRoutingNumber      FieldKey = "routingNumber"
	FieldBSBNumber          FieldKey = "bsbNumber"
	FieldInstitutionNumber  FieldKey = "institutionNumber"
	FieldTransitNumber      FieldKey = "transitNumber"
	FieldSouthAfricaRouting FieldKey = "southAfricaRoutingCode"
	FieldDocumentURL        FieldKey = "documentUrl"
)

// ReasonOther is the purpose code that demands a free-text description.
const ReasonOther = "OTHER"
