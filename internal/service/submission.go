package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/domain"
	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/gateway"
	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/models"
	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/observability"
	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/repository"
	"go.uber.org/zap"
)

// submissionTransitions defines the only legal state machine edges. No edge
// skips LOADING; terminal states leave only via dismiss or retry.
var submissionTransitions = map[string]map[string]struct{}{
	domain.SubmissionStatusIdle: {
		domain.SubmissionStatusLoading: {},
	},
	domain.SubmissionStatusLoading: {
		domain.SubmissionStatusSuccess: {},
		domain.SubmissionStatusError:   {},
	},
	domain.SubmissionStatusSuccess: {
		domain.SubmissionStatusIdle: {},
	},
	domain.SubmissionStatusError: {
		domain.SubmissionStatusLoading: {},
		domain.SubmissionStatusIdle:    {},
	},
}

func canTransition(current, next string) bool {
	nextStates, ok := submissionTransitions[current]
	if !ok {
		return false
	}
	_, ok = nextStates[next]
	return ok
}

func transition(state *models.SubmissionState, next string) error {
	if state.Status == "" {
		state.Status = domain.SubmissionStatusIdle
	}
	if !canTransition(state.Status, next) {
		return fmt.Errorf("invalid submission state transition: %s -> %s", state.Status, next)
	}
	state.Status = next
	return nil
}

// SubmissionArchive persists an audit record of each finished attempt.
type SubmissionArchive interface {
	Record(ctx context.Context, rec repository.SubmissionRecord) error
}

// Coordinator drives the terminal submission step: revalidation, payload
// construction, the single gateway call per user-initiated submit, and the
// idle/loading/success/error machine with retry.
type Coordinator struct {
	gateway   gateway.TransactionGateway
	refresher gateway.SessionRefresher
	engine    *ValidationEngine
	amounts   *AmountPolicy
	rates     *RateProvider
	archive   SubmissionArchive
}

func NewCoordinator(
	gw gateway.TransactionGateway,
	refresher gateway.SessionRefresher,
	engine *ValidationEngine,
	amounts *AmountPolicy,
	rates *RateProvider,
	archive SubmissionArchive,
) *Coordinator {
	return &Coordinator{
		gateway:   gw,
		refresher: refresher,
		engine:    engine,
		amounts:   amounts,
		rates:     rates,
		archive:   archive,
	}
}

// Submit runs one submission attempt from IDLE. A draft already loading is a
// no-op rejection; a succeeded draft must be dismissed first. Validation
// failures and the market-closed policy block keep the draft in IDLE with no
// network call.
func (c *Coordinator) Submit(ctx context.Context, snap *models.DraftSnapshot) error {
	switch snap.State.Status {
	case domain.SubmissionStatusLoading:
		return ErrSubmissionInFlight
	case domain.SubmissionStatusSuccess:
		return ErrAlreadySubmitted
	case domain.SubmissionStatusError:
		return ErrNotRetryable
	}
	return c.attempt(ctx, snap)
}

// Retry re-enters LOADING from ERROR, reusing the draft unmodified so the
// rebuilt payload carries the same idempotency reference.
func (c *Coordinator) Retry(ctx context.Context, snap *models.DraftSnapshot) error {
	if snap.State.Status != domain.SubmissionStatusError {
		return ErrNotRetryable
	}
	return c.attempt(ctx, snap)
}

// Dismiss returns a terminal state to IDLE once the user acknowledges it.
func (c *Coordinator) Dismiss(snap *models.DraftSnapshot) error {
	switch snap.State.Status {
	case domain.SubmissionStatusSuccess, domain.SubmissionStatusError:
		if err := transition(&snap.State, domain.SubmissionStatusIdle); err != nil {
			return err
		}
		snap.State.Message = ""
		snap.State.Summary = nil
		snap.State.TransactionID = ""
		return nil
	default:
		return ErrNotDismissable
	}
}

func (c *Coordinator) attempt(ctx context.Context, snap *models.DraftSnapshot) error {
	draft := &snap.Draft
	rate := c.rates.Rate(draft.SenderCurrency)

	// Pre-loading revalidation: an invalid draft never enters LOADING.
	if errs := c.engine.Validate(draft); len(errs) > 0 {
		observability.IncrementSubmission("rejected_validation")
		return &ValidationError{Fields: errs}
	}
	if err := c.amounts.Validate(draft.Amount, draft.SenderCurrency, rate); err != nil {
		observability.IncrementSubmission("rejected_amount")
		return err
	}
	if draft.SenderCurrency != c.amounts.Reference() && rate.Ready() && !rate.IsLive {
		observability.IncrementSubmission("rejected_market_closed")
		return ErrMarketClosed
	}

	if err := transition(&snap.State, domain.SubmissionStatusLoading); err != nil {
		return err
	}
	snap.State.Message = ""
	snap.State.Attempts++

	payload, err := c.BuildPayload(draft, rate)
	if err != nil {
		_ = transition(&snap.State, domain.SubmissionStatusError)
		snap.State.Message = err.Error()
		observability.IncrementSubmission("rate_unavailable")
		return err
	}

	result, err := c.gateway.Submit(ctx, payload)
	if err != nil {
		subErr := NewSubmissionError(err)
		_ = transition(&snap.State, domain.SubmissionStatusError)
		snap.State.Message = subErr.Message
		c.record(ctx, snap, payload, "", "FAILED")
		observability.IncrementSubmission("error")
		return subErr
	}

	_ = transition(&snap.State, domain.SubmissionStatusSuccess)
	snap.State.TransactionID = result.TransactionID
	snap.State.Summary = buildSummary(draft)
	c.record(ctx, snap, payload, result.TransactionID, "COMPLETED")
	observability.IncrementSubmission("success")

	// Post-success side effect: consumed, not owned. Failures are logged
	// only; the transaction has already succeeded.
	if c.refresher != nil {
		if err := c.refresher.Refresh(ctx); err != nil {
			zap.L().Warn("session refresh after submission failed",
				zap.String("draft_id", draft.ID.String()),
				zap.Error(err),
			)
		}
	}
	return nil
}

// BuildPayload constructs the outbound submission payload, recomputing the
// reference-currency debit amount. A missing rate for a non-reference
// currency fails fast here instead of sending a zero amount.
func (c *Coordinator) BuildPayload(draft *models.PaymentRequest, rate models.ExchangeRate) (gateway.SubmitPayload, error) {
	amount, ok := domain.ParseAmount(draft.Amount)
	if !ok {
		return gateway.SubmitPayload{}, &ValidationError{Fields: []FieldError{{
			Field: domain.FieldAmount, Message: "must be a number with at most 2 decimal places",
		}}}
	}

	debit, err := c.amounts.ReferenceAmount(amount, draft.SenderCurrency, rate)
	if err != nil {
		return gateway.SubmitPayload{}, err
	}

	paymentData := map[string]any{
		"rojifiId":      draft.RojifiID,
		"amount":        domain.FormatAmount(amount),
		"currency":      string(draft.SenderCurrency),
		"reason":        draft.Reason,
		"senderName":    draft.SenderName,
		"invoiceNumber": draft.InvoiceNumber,
	}
	if draft.ReasonDescription != "" {
		paymentData["reasonDescription"] = draft.ReasonDescription
	}
	if draft.InvoiceDate != nil {
		paymentData["invoiceDate"] = draft.InvoiceDate.Format(time.RFC3339)
	}
	if draft.DocumentURL != "" {
		paymentData["documentUrl"] = draft.DocumentURL
	}

	bankData := map[string]any{
		"bankName":    draft.BankName,
		"bankCountry": draft.BankCountry,
		"paymentRail": string(draft.PaymentRail),
	}
	for key, value := range map[string]string{
		"swiftCode":              draft.SwiftCode,
		"iban":                   draft.IBAN,
		"accountNumber":          draft.AccountNumber,
		"sortCode":               draft.SortCode,
		"bankAddress":            draft.BankAddress,
		"ifscCode":               draft.IFSCCode,
		"routingNumber":          draft.RoutingNumber,
		"bsbNumber":              draft.BSBNumber,
		"institutionNumber":      draft.InstitutionNumber,
		"transitNumber":          draft.TransitNumber,
		"southAfricaRoutingCode": draft.SouthAfricaRoutingCode,
	} {
		if value != "" {
			bankData[key] = value
		}
	}

	payload := gateway.SubmitPayload{
		PaymentData:    paymentData,
		BankData:       bankData,
		DebitAmountUSD: domain.FormatAmount(debit),
		Action:         "create",
		Recipient:      buildRecipient(draft),
	}
	if draft.SenderCurrency != c.amounts.Reference() && rate.Ready() {
		payload.ExchangeRate = rate.Rate.String()
	}
	return payload, nil
}

// buildRecipient combines beneficiary and bank identity fields. Postal code
// and state ride along only for domestic US/UK destinations, detected by the
// SWIFT country convention and the declared country name.
func buildRecipient(draft *models.PaymentRequest) map[string]any {
	recipient := map[string]any{
		"name":        draft.AccountName,
		"accountType": draft.AccountType,
		"address":     draft.Address,
		"city":        draft.City,
		"country":     draft.Country,
		"phoneCode":   draft.PhoneCode,
		"phoneNumber": draft.PhoneNumber,
		"bankName":    draft.BankName,
		"bankCountry": draft.BankCountry,
	}
	if draft.IBAN != "" {
		recipient["iban"] = draft.IBAN
	}
	if draft.AccountNumber != "" {
		recipient["accountNumber"] = draft.AccountNumber
	}
	if isDomesticUSUK(draft) {
		recipient["postalCode"] = draft.PostalCode
		recipient["state"] = draft.State
	}
	return recipient
}

func isDomesticUSUK(draft *models.PaymentRequest) bool {
	switch domain.DestinationCountryFromSwift(draft.SwiftCode) {
	case "US", "GB":
		return true
	}
	switch strings.ToLower(strings.TrimSpace(draft.Country)) {
	case "united states", "united states of america", "usa", "united kingdom", "uk", "great britain":
		return true
	}
	return false
}

func buildSummary(draft *models.PaymentRequest) *models.SubmissionSummary {
	account := draft.AccountNumber
	if account == "" {
		account = draft.IBAN
	}
	amount := draft.Amount
	if parsed, ok := domain.ParseAmount(draft.Amount); ok {
		amount = domain.FormatAmount(parsed)
	}
	return &models.SubmissionSummary{
		Amount:          amount,
		Currency:        draft.SenderCurrency,
		BeneficiaryName: draft.AccountName,
		AccountNumber:   account,
		BankName:        draft.BankName,
		BankCountry:     draft.BankCountry,
		SwiftCode:       draft.SwiftCode,
	}
}

func (c *Coordinator) record(ctx context.Context, snap *models.DraftSnapshot, payload gateway.SubmitPayload, txID, status string) {
	if c.archive == nil {
		return
	}
	rec := repository.SubmissionRecord{
		ReferenceID:    snap.Draft.RojifiID,
		DraftID:        snap.Draft.ID.String(),
		TransactionID:  txID,
		Status:         status,
		Currency:       string(snap.Draft.SenderCurrency),
		Amount:         snap.Draft.Amount,
		DebitAmountUSD: payload.DebitAmountUSD,
		ExchangeRate:   payload.ExchangeRate,
		PaymentRail:    string(snap.Draft.PaymentRail),
		Beneficiary:    snap.Draft.AccountName,
		BankName:       snap.Draft.BankName,
		BankCountry:    snap.Draft.BankCountry,
		Attempts:       snap.State.Attempts,
	}
	if err := c.archive.Record(ctx, rec); err != nil {
		zap.L().Warn("submission archive write failed",
			zap.String("reference_id", rec.ReferenceID),
			zap.Error(err),
		)
	}
}
