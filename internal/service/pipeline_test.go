package service

import (
	"context"
	"strings"
	"testing"

	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/domain"
	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/draftstore"
	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/gateway"
	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type pipelineFixture struct {
	store      *draftstore.MemoryStore
	directory  *gateway.MockBankDirectory
	gateway    *gateway.MockTransactionGateway
	rateSource *gateway.MockRateSource
	rates      *RateProvider
	uploader   *gateway.MockUploader
	pipeline   *Pipeline
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	store := draftstore.NewMemoryStore()
	directory := newTestDirectory()
	txGateway := gateway.NewMockTransactionGateway()
	uploader := &gateway.MockUploader{}

	engine := newTestEngine()
	amounts := newTestAmountPolicy()
	rateSource := newTestRateSource()
	rates := NewRateProvider(rateSource, domain.CurrencyUSD)
	resolver := NewResolver(directory)
	coordinator := NewCoordinator(txGateway, &gateway.MockSessionRefresher{}, engine, amounts, rates, nil)

	return &pipelineFixture{
		store:      store,
		directory:  directory,
		gateway:    txGateway,
		rateSource: rateSource,
		rates:      rates,
		uploader:   uploader,
		pipeline:   NewPipeline(store, resolver, rates, engine, amounts, coordinator, uploader),
	}
}

func TestCreateDraft(t *testing.T) {
	fx := newPipelineFixture(t)

	snap, err := fx.pipeline.CreateDraft(context.Background(), domain.CurrencyUSD)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, snap.Draft.ID)
	require.NotEmpty(t, snap.Draft.RojifiID)
	require.Equal(t, domain.SubmissionStatusIdle, snap.State.Status)

	loaded, err := fx.pipeline.GetDraft(context.Background(), snap.Draft.ID)
	require.NoError(t, err)
	require.Equal(t, snap.Draft.RojifiID, loaded.Draft.RojifiID)

	_, err = fx.pipeline.CreateDraft(context.Background(), domain.Currency("XYZ"))
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestGetDraftNotFound(t *testing.T) {
	fx := newPipelineFixture(t)
	_, err := fx.pipeline.GetDraft(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrDraftNotFound)
}

func TestUpdateFieldsMarksEdited(t *testing.T) {
	fx := newPipelineFixture(t)
	snap, err := fx.pipeline.CreateDraft(context.Background(), domain.CurrencyUSD)
	require.NoError(t, err)

	updated, err := fx.pipeline.UpdateFields(context.Background(), snap.Draft.ID, map[domain.FieldKey]string{
		domain.FieldAccountName: "John Smith",
		domain.FieldAmount:      "20000",
		domain.FieldReason:      "goods",
	})
	require.NoError(t, err)
	require.Equal(t, "John Smith", updated.Draft.AccountName)
	require.Equal(t, "GOODS", updated.Draft.Reason, "reason is normalized to uppercase")
	require.True(t, updated.Draft.WasEdited(domain.FieldAccountName))

	_, err = fx.pipeline.UpdateFields(context.Background(), snap.Draft.ID, map[domain.FieldKey]string{
		domain.FieldKey("favouriteColor"): "blue",
	})
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
}

func TestEnterBankCodeResolvesAndDerives(t *testing.T) {
	fx := newPipelineFixture(t)
	snap, err := fx.pipeline.CreateDraft(context.Background(), domain.CurrencyUSD)
	require.NoError(t, err)

	entered, err := fx.pipeline.EnterBankCode(context.Background(), snap.Draft.ID, "chasus33xxx", domain.CodeTypeSwift)
	require.NoError(t, err)
	require.Equal(t, "CHASUS33", entered.Draft.SwiftCode)
	require.True(t, entered.Draft.ResolvePending)

	fx.pipeline.WaitForResolutions()

	resolved, err := fx.pipeline.GetDraft(context.Background(), snap.Draft.ID)
	require.NoError(t, err)
	require.False(t, resolved.Draft.ResolvePending)
	require.Equal(t, "JPMorgan Chase", resolved.Draft.BankName)
	require.Equal(t, domain.RailSWIFT, resolved.Draft.PaymentRail)
	require.Equal(t, "US", resolved.Draft.DestinationCountry)
}

func TestEnterBankCodeBelowMinLengthClearsWithoutLookup(t *testing.T) {
	fx := newPipelineFixture(t)
	snap, err := fx.pipeline.CreateDraft(context.Background(), domain.CurrencyUSD)
	require.NoError(t, err)

	_, err = fx.pipeline.EnterBankCode(context.Background(), snap.Draft.ID, "CHASUS33", domain.CodeTypeSwift)
	require.NoError(t, err)
	fx.pipeline.WaitForResolutions()

	// Deleting characters drops below the minimum: identity cleared, no call.
	calls := fx.directory.Calls()
	entered, err := fx.pipeline.EnterBankCode(context.Background(), snap.Draft.ID, "CHASU", domain.CodeTypeSwift)
	require.NoError(t, err)
	fx.pipeline.WaitForResolutions()
	require.Equal(t, calls, fx.directory.Calls())
	require.Empty(t, entered.Draft.BankName)
	require.False(t, entered.Draft.ResolvePending)
}

func TestEnterBankCodeNotFoundFlagsFailure(t *testing.T) {
	fx := newPipelineFixture(t)
	snap, err := fx.pipeline.CreateDraft(context.Background(), domain.CurrencyUSD)
	require.NoError(t, err)

	_, err = fx.pipeline.EnterBankCode(context.Background(), snap.Draft.ID, "ZZZZ00AB", domain.CodeTypeSwift)
	require.NoError(t, err)
	fx.pipeline.WaitForResolutions()

	resolved, err := fx.pipeline.GetDraft(context.Background(), snap.Draft.ID)
	require.NoError(t, err)
	require.True(t, resolved.Draft.ResolveFailed)
	require.Empty(t, resolved.Draft.BankName)
	require.Equal(t, "ZZZZ00AB", resolved.Draft.SwiftCode, "entered code stays visible")

	report, err := fx.pipeline.Validation(context.Background(), snap.Draft.ID)
	require.NoError(t, err)
	var hasVerifyError bool
	for _, fe := range report.Errors {
		if fe.Field == domain.FieldSwiftCode && strings.Contains(fe.Message, "unable to verify") {
			hasVerifyError = true
		}
	}
	require.True(t, hasVerifyError)
}

func TestStaleResolutionDiscarded(t *testing.T) {
	fx := newPipelineFixture(t)
	snap, err := fx.pipeline.CreateDraft(context.Background(), domain.CurrencyUSD)
	require.NoError(t, err)

	entered, err := fx.pipeline.EnterBankCode(context.Background(), snap.Draft.ID, "CHASUS33", domain.CodeTypeSwift)
	require.NoError(t, err)
	fx.pipeline.WaitForResolutions()

	// A response carrying a superseded generation must not touch the draft.
	fx.pipeline.applyResolution(context.Background(), snap.Draft.ID, entered.Draft.Generation-1, domain.CodeTypeSwift,
		&models.BankIdentity{BankName: "Stale Bank"}, nil)

	resolved, err := fx.pipeline.GetDraft(context.Background(), snap.Draft.ID)
	require.NoError(t, err)
	require.Equal(t, "JPMorgan Chase", resolved.Draft.BankName)
}

func TestResolutionPreservesHandEditedFields(t *testing.T) {
	fx := newPipelineFixture(t)
	snap, err := fx.pipeline.CreateDraft(context.Background(), domain.CurrencyUSD)
	require.NoError(t, err)

	// Edits made after the code entry win over the resolver back-fill.
	_, err = fx.pipeline.EnterBankCode(context.Background(), snap.Draft.ID, "CHASUS33", domain.CodeTypeSwift)
	require.NoError(t, err)
	_, err = fx.pipeline.UpdateFields(context.Background(), snap.Draft.ID, map[domain.FieldKey]string{
		domain.FieldBankName: "My Custom Branch Name",
	})
	require.NoError(t, err)
	fx.pipeline.WaitForResolutions()

	resolved, err := fx.pipeline.GetDraft(context.Background(), snap.Draft.ID)
	require.NoError(t, err)
	require.Equal(t, "My Custom Branch Name", resolved.Draft.BankName)
	require.Equal(t, "US", resolved.Draft.BankCountryCode, "non-edited identity fields still back-fill")
}

func TestChangeCurrencyResetsBankState(t *testing.T) {
	fx := newPipelineFixture(t)
	snap, err := fx.pipeline.CreateDraft(context.Background(), domain.CurrencyUSD)
	require.NoError(t, err)

	_, err = fx.pipeline.EnterBankCode(context.Background(), snap.Draft.ID, "CHASUS33", domain.CodeTypeSwift)
	require.NoError(t, err)
	fx.pipeline.WaitForResolutions()

	switched, err := fx.pipeline.ChangeCurrency(context.Background(), snap.Draft.ID, domain.CurrencyEUR)
	require.NoError(t, err)
	require.Equal(t, domain.CurrencyEUR, switched.Draft.SenderCurrency)
	require.Empty(t, switched.Draft.SwiftCode)
	require.Empty(t, switched.Draft.BankName)
	require.Empty(t, switched.Draft.PaymentRail)
	require.Equal(t, domain.SubmissionStatusIdle, switched.State.Status)
}

func TestChangeCurrencyKeepsSharedRateSubscription(t *testing.T) {
	fx := newPipelineFixture(t)

	first, err := fx.pipeline.CreateDraft(context.Background(), domain.CurrencyEUR)
	require.NoError(t, err)
	second, err := fx.pipeline.CreateDraft(context.Background(), domain.CurrencyEUR)
	require.NoError(t, err)

	_, err = fx.pipeline.EnterBankCode(context.Background(), first.Draft.ID, "CHASUS33", domain.CodeTypeSwift)
	require.NoError(t, err)
	_, err = fx.pipeline.EnterBankCode(context.Background(), second.Draft.ID, "CHASUS33", domain.CodeTypeSwift)
	require.NoError(t, err)
	fx.pipeline.WaitForResolutions()

	// First draft abandons EUR; the second still depends on its quote.
	_, err = fx.pipeline.ChangeCurrency(context.Background(), first.Draft.ID, domain.CurrencyUSD)
	require.NoError(t, err)

	calls := fx.rateSource.Calls()
	require.NoError(t, fx.rates.RefreshAll(context.Background()))
	require.Equal(t, calls+1, fx.rateSource.Calls(), "shared currency keeps refreshing")
	require.True(t, fx.rates.Rate(domain.CurrencyEUR).Ready())

	// Discarding the last EUR draft drops the subscription.
	require.NoError(t, fx.pipeline.Discard(context.Background(), second.Draft.ID))
	calls = fx.rateSource.Calls()
	require.NoError(t, fx.rates.RefreshAll(context.Background()))
	require.Equal(t, calls, fx.rateSource.Calls())
}

func TestAttachStoresDocumentURL(t *testing.T) {
	fx := newPipelineFixture(t)
	snap, err := fx.pipeline.CreateDraft(context.Background(), domain.CurrencyUSD)
	require.NoError(t, err)

	attached, err := fx.pipeline.Attach(context.Background(), snap.Draft.ID, "invoice.pdf", strings.NewReader("%PDF-1.4"))
	require.NoError(t, err)
	require.Equal(t, "https://files.example.com/invoice.pdf", attached.Draft.DocumentURL)
}

func TestPipelineSubmitLifecycle(t *testing.T) {
	fx := newPipelineFixture(t)
	snap, err := fx.pipeline.CreateDraft(context.Background(), domain.CurrencyUSD)
	require.NoError(t, err)

	_, err = fx.pipeline.EnterBankCode(context.Background(), snap.Draft.ID, "CHASUS33", domain.CodeTypeSwift)
	require.NoError(t, err)
	fx.pipeline.WaitForResolutions()

	_, err = fx.pipeline.UpdateFields(context.Background(), snap.Draft.ID, map[domain.FieldKey]string{
		domain.FieldAccountName:   "John Smith",
		domain.FieldAccountNumber: "000123456789",
		domain.FieldAmount:        "20000",
		domain.FieldReason:        "GOODS",
		domain.FieldInvoiceNumber: "INV-2026/001",
		domain.FieldInvoiceDate:   "2026-03-14",
		domain.FieldSenderName:    "Acme Treasury",
		domain.FieldPhoneCode:     "+1",
		domain.FieldPhoneNumber:   "2125550100",
	})
	require.NoError(t, err)

	report, err := fx.pipeline.Validation(context.Background(), snap.Draft.ID)
	require.NoError(t, err)
	require.Empty(t, report.Errors)
	require.True(t, report.Complete)

	submitted, err := fx.pipeline.Submit(context.Background(), snap.Draft.ID)
	require.NoError(t, err)
	require.Equal(t, domain.SubmissionStatusSuccess, submitted.State.Status)

	// The terminal state is persisted, not just returned.
	loaded, err := fx.pipeline.GetDraft(context.Background(), snap.Draft.ID)
	require.NoError(t, err)
	require.Equal(t, domain.SubmissionStatusSuccess, loaded.State.Status)

	dismissed, err := fx.pipeline.Dismiss(context.Background(), snap.Draft.ID)
	require.NoError(t, err)
	require.Equal(t, domain.SubmissionStatusIdle, dismissed.State.Status)
}

func TestDiscard(t *testing.T) {
	fx := newPipelineFixture(t)
	snap, err := fx.pipeline.CreateDraft(context.Background(), domain.CurrencyUSD)
	require.NoError(t, err)

	require.NoError(t, fx.pipeline.Discard(context.Background(), snap.Draft.ID))
	_, err = fx.pipeline.GetDraft(context.Background(), snap.Draft.ID)
	require.ErrorIs(t, err, ErrDraftNotFound)
}
