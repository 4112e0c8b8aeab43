package domain

import "strings"

// BankCodeType distinguishes the three beneficiary bank code formats.
type BankCodeType string

const (
	CodeTypeSwift    BankCodeType = "SWIFT"
	CodeTypeIBAN     BankCodeType = "IBAN"
	CodeTypeSortCode BankCodeType = "SORTCODE"
)

// ParseBankCodeType normalizes a wire-level code type string. Matching is
// case-insensitive; validity is still the caller's check.
func ParseBankCodeType(raw string) BankCodeType {
	return BankCodeType(strings.ToUpper(strings.TrimSpace(raw)))
}

func (t BankCodeType) Valid() bool {
	switch t {
	case CodeTypeSwift, CodeTypeIBAN, CodeTypeSortCode:
		return true
	}
	return false
}

// MinLength is the minimum sanitized length before a lookup may be issued.
func (t BankCodeType) MinLength() int {
	switch t {
	case CodeTypeSwift:
		return 8
	case CodeTypeIBAN:
		return 15
	case CodeTypeSortCode:
		return 6
	}
	return 0
}

// SanitizeBankCode normalizes a user-supplied bank code for its type.
// SWIFT/BIC: uppercase, alphanumeric, at most 11 characters, with a trailing
// "XXX" head-office placeholder stripped. IBAN: uppercase, alphanumeric,
// capped at 34 characters. Sort code: digits only, capped at 6.
// Sanitization is idempotent.
func SanitizeBankCode(code string, codeType BankCodeType) string {
	switch codeType {
	case CodeTypeSwift:
		s := keepAlnum(strings.ToUpper(code))
		if len(s) > 11 {
			s = s[:11]
		}
		if len(s) > 8 && strings.HasSuffix(s, "XXX") {
			s = s[:len(s)-3]
		}
		return s
	case CodeTypeIBAN:
		s := keepAlnum(strings.ToUpper(code))
		if len(s) > 34 {
			s = s[:34]
		}
		return s
	case CodeTypeSortCode:
		s := keepDigits(code)
		if len(s) > 6 {
			s = s[:6]
		}
		return s
	}
	return strings.TrimSpace(code)
}

// RailFor derives the payment rail from the resolved code type.
// IBAN destinations clear over SEPA for EUR and over SWIFT otherwise.
func RailFor(codeType BankCodeType, currency Currency) PaymentRail {
	switch codeType {
	case CodeTypeSortCode:
		return RailFPS
	case CodeTypeIBAN:
		if currency == CurrencyEUR {
			return RailSEPA
		}
		return RailSWIFT
	default:
		return RailSWIFT
	}
}

// DestinationCountryFromSwift extracts the ISO 3166-1 alpha-2 country code
// embedded at positions 5-6 of a SWIFT/BIC code. Codes shorter than six
// characters carry no destination and yield an empty string.
func DestinationCountryFromSwift(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) < 6 {
		return ""
	}
	cc := code[4:6]
	for _, r := range cc {
		if r < 'A' || r > 'Z' {
			return ""
		}
	}
	return cc
}

func keepAlnum(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func keepDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
