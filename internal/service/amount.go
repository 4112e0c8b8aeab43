package service

import (
	"fmt"

	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/domain"
	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/models"
	"github.com/shopspring/decimal"
)

// AmountPolicy enforces the minimum-transferable-amount invariant: the
// transaction amount, converted into the reference currency, must be at
// least the configured minimum.
type AmountPolicy struct {
	reference domain.Currency
	minimum   decimal.Decimal
}

func NewAmountPolicy(reference domain.Currency, minimum decimal.Decimal) *AmountPolicy {
	return &AmountPolicy{reference: reference, minimum: minimum}
}

// Reference returns the reference currency the minimum is expressed in.
func (p *AmountPolicy) Reference() domain.Currency { return p.reference }

// Validate parses the raw amount and checks the converted value against the
// minimum. For non-reference currencies with no usable rate, the raw value
// is compared against the threshold directly, which shifts the effective
// minimum into the foreign currency until a quote arrives.
func (p *AmountPolicy) Validate(raw string, currency domain.Currency, rate models.ExchangeRate) error {
	parsed, ok := domain.ParseAmount(raw)
	if !ok {
		return &ValidationError{Fields: []FieldError{{
			Field:   domain.FieldAmount,
			Message: "must be a number with at most 2 decimal places",
		}}}
	}

	converted := parsed
	if currency != p.reference && rate.Ready() {
		converted = parsed.Div(rate.Rate)
	}

	if converted.GreaterThanOrEqual(p.minimum) {
		return nil
	}
	return &ValidationError{Fields: []FieldError{{
		Field:   domain.FieldAmount,
		Message: p.thresholdMessage(currency, rate),
	}}}
}

// ReferenceAmount converts the parsed amount into the reference currency for
// the outbound payload. A non-reference currency without a usable rate is an
// error here: the coordinator must fail fast instead of sending garbage.
func (p *AmountPolicy) ReferenceAmount(amount decimal.Decimal, currency domain.Currency, rate models.ExchangeRate) (decimal.Decimal, error) {
	if currency == p.reference {
		return amount, nil
	}
	if !rate.Ready() {
		return decimal.Zero, ErrRateUnavailable
	}
	return amount.DivRound(rate.Rate, 2), nil
}

func (p *AmountPolicy) thresholdMessage(currency domain.Currency, rate models.ExchangeRate) string {
	msg := fmt.Sprintf("must be at least %s%s %s",
		currencySymbol(p.reference), formatThousands(p.minimum), p.reference)
	if currency != p.reference && rate.Ready() {
		equivalent := p.minimum.Mul(rate.Rate).RoundUp(2)
		msg += fmt.Sprintf(" (approximately %s%s %s)",
			currencySymbol(currency), formatThousands(equivalent), currency)
	}
	return msg
}

func currencySymbol(c domain.Currency) string {
	switch c {
	case domain.CurrencyUSD:
		return "$"
	case domain.CurrencyEUR:
		return "€"
	case domain.CurrencyGBP:
		return "£"
	}
	return ""
}

// formatThousands renders a decimal with comma thousands separators.
func formatThousands(d decimal.Decimal) string {
	s := d.StringFixed(2)
	intPart := s
	frac := ""
	if idx := len(s) - 3; idx >= 0 && s[idx] == '.' {
		intPart, frac = s[:idx], s[idx:]
	}
	if len(intPart) <= 3 {
		return intPart + frac
	}
	var out []byte
	for i, c := range []byte(intPart) {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	return string(out) + frac
}
