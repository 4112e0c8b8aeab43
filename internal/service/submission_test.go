package service

import (
	"context"
	"errors"
	"testing"

	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/domain"
	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/gateway"
	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type coordinatorFixture struct {
	gateway     *gateway.MockTransactionGateway
	refresher   *gateway.MockSessionRefresher
	rateSource  *gateway.MockRateSource
	rates       *RateProvider
	coordinator *Coordinator
}

func newCoordinatorFixture(t *testing.T) *coordinatorFixture {
	t.Helper()
	txGateway := gateway.NewMockTransactionGateway()
	refresher := &gateway.MockSessionRefresher{}
	rateSource := newTestRateSource()
	rates := NewRateProvider(rateSource, domain.CurrencyUSD)
	coordinator := NewCoordinator(txGateway, refresher, newTestEngine(), newTestAmountPolicy(), rates, nil)
	return &coordinatorFixture{
		gateway:     txGateway,
		refresher:   refresher,
		rateSource:  rateSource,
		rates:       rates,
		coordinator: coordinator,
	}
}

func idleSnapshot() *models.DraftSnapshot {
	draft := completeUSDraft()
	draft.ID = uuid.New()
	draft.RojifiID = uuid.NewString()
	return &models.DraftSnapshot{
		Draft: *draft,
		State: models.SubmissionState{Status: domain.SubmissionStatusIdle},
	}
}

func TestSubmitHappyPath(t *testing.T) {
	fx := newCoordinatorFixture(t)
	snap := idleSnapshot()

	err := fx.coordinator.Submit(context.Background(), snap)
	require.NoError(t, err)
	require.Equal(t, domain.SubmissionStatusSuccess, snap.State.Status)
	require.Equal(t, "tx-mock-1", snap.State.TransactionID)
	require.Equal(t, 1, snap.State.Attempts)
	require.NotNil(t, snap.State.Summary)
	require.Equal(t, "John Smith", snap.State.Summary.BeneficiaryName)
	require.Equal(t, "20000.00", snap.State.Summary.Amount)
	require.Equal(t, 1, fx.refresher.Calls(), "session refreshes after success")

	payloads := fx.gateway.Payloads()
	require.Len(t, payloads, 1)
	require.Equal(t, snap.Draft.RojifiID, payloads[0].PaymentData["rojifiId"])
	require.Equal(t, "20000.00", payloads[0].DebitAmountUSD)
	require.Equal(t, "create", payloads[0].Action)
}

func TestSubmitRejectedWhileLoading(t *testing.T) {
	fx := newCoordinatorFixture(t)
	snap := idleSnapshot()
	snap.State.Status = domain.SubmissionStatusLoading

	err := fx.coordinator.Submit(context.Background(), snap)
	require.ErrorIs(t, err, ErrSubmissionInFlight)
	require.Equal(t, domain.SubmissionStatusLoading, snap.State.Status)
	require.Empty(t, fx.gateway.Payloads(), "no duplicate network call")
}

func TestSubmitRejectedAfterSuccess(t *testing.T) {
	fx := newCoordinatorFixture(t)
	snap := idleSnapshot()
	snap.State.Status = domain.SubmissionStatusSuccess

	err := fx.coordinator.Submit(context.Background(), snap)
	require.ErrorIs(t, err, ErrAlreadySubmitted)
	require.Empty(t, fx.gateway.Payloads())
}

func TestSubmitInvalidDraftStaysIdle(t *testing.T) {
	fx := newCoordinatorFixture(t)
	snap := idleSnapshot()
	snap.Draft.AccountName = ""

	err := fx.coordinator.Submit(context.Background(), snap)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	require.Equal(t, domain.SubmissionStatusIdle, snap.State.Status)
	require.Zero(t, snap.State.Attempts)
	require.Empty(t, fx.gateway.Payloads())
}

func TestSubmitMarketClosedStaysIdle(t *testing.T) {
	fx := newCoordinatorFixture(t)
	fx.rateSource.Quotes[domain.CurrencyUSD] = []gateway.RateQuote{
		{To: domain.CurrencyGBP, Rate: decimal.RequireFromString("0.79"), IsLive: false},
	}
	fx.rates.Activate(context.Background(), uuid.New(), domain.CurrencyGBP)

	snap := idleSnapshot()
	snap.Draft.SenderCurrency = domain.CurrencyGBP
	snap.Draft.Address = "1 Poultry"
	snap.Draft.City = "London"
	snap.Draft.PostalCode = "EC2R 8EJ"
	snap.Draft.Country = "United Kingdom"
	snap.Draft.Amount = "20000"

	err := fx.coordinator.Submit(context.Background(), snap)
	require.ErrorIs(t, err, ErrMarketClosed)
	require.Equal(t, domain.SubmissionStatusIdle, snap.State.Status)
	require.Empty(t, fx.gateway.Payloads())
}

func TestSubmitGatewayFailureThenRetry(t *testing.T) {
	fx := newCoordinatorFixture(t)
	fx.gateway.Err = errors.New("upstream 503")
	snap := idleSnapshot()

	err := fx.coordinator.Submit(context.Background(), snap)
	var subErr *SubmissionError
	require.ErrorAs(t, err, &subErr)
	require.Equal(t, domain.SubmissionStatusError, snap.State.Status)
	require.NotEmpty(t, snap.State.Message)
	require.Equal(t, 1, snap.State.Attempts)
	require.Equal(t, 0, fx.refresher.Calls())

	// A plain submit on an errored draft is rejected; retry is the only way.
	require.ErrorIs(t, fx.coordinator.Submit(context.Background(), snap), ErrNotRetryable)

	fx.gateway.Err = nil
	require.NoError(t, fx.coordinator.Retry(context.Background(), snap))
	require.Equal(t, domain.SubmissionStatusSuccess, snap.State.Status)
	require.Equal(t, 2, snap.State.Attempts)

	// Both attempts carried the same idempotency reference.
	payloads := fx.gateway.Payloads()
	require.Len(t, payloads, 2)
	require.Equal(t, payloads[0].PaymentData["rojifiId"], payloads[1].PaymentData["rojifiId"])
}

func TestRetryOnlyFromError(t *testing.T) {
	fx := newCoordinatorFixture(t)
	snap := idleSnapshot()
	require.ErrorIs(t, fx.coordinator.Retry(context.Background(), snap), ErrNotRetryable)
}

func TestDismiss(t *testing.T) {
	fx := newCoordinatorFixture(t)

	snap := idleSnapshot()
	snap.State.Status = domain.SubmissionStatusError
	snap.State.Message = "upstream 503"
	require.NoError(t, fx.coordinator.Dismiss(snap))
	require.Equal(t, domain.SubmissionStatusIdle, snap.State.Status)
	require.Empty(t, snap.State.Message)

	snap.State.Status = domain.SubmissionStatusSuccess
	snap.State.Summary = &models.SubmissionSummary{}
	snap.State.TransactionID = "tx-mock-1"
	require.NoError(t, fx.coordinator.Dismiss(snap))
	require.Equal(t, domain.SubmissionStatusIdle, snap.State.Status)
	require.Nil(t, snap.State.Summary)
	require.Empty(t, snap.State.TransactionID)

	require.ErrorIs(t, fx.coordinator.Dismiss(snap), ErrNotDismissable)
}

func TestBuildPayloadConvertsDebitAmount(t *testing.T) {
	fx := newCoordinatorFixture(t)
	draft := completeUSDraft()
	draft.RojifiID = uuid.NewString()
	draft.SenderCurrency = domain.CurrencyEUR
	draft.Amount = "18400"

	payload, err := fx.coordinator.BuildPayload(draft, liveRate(domain.CurrencyEUR, "0.92"))
	require.NoError(t, err)
	require.Equal(t, "20000.00", payload.DebitAmountUSD)
	require.Equal(t, "0.92", payload.ExchangeRate)
}

func TestBuildPayloadFailsWithoutRate(t *testing.T) {
	fx := newCoordinatorFixture(t)
	draft := completeUSDraft()
	draft.SenderCurrency = domain.CurrencyEUR
	draft.Amount = "18400"

	_, err := fx.coordinator.BuildPayload(draft, models.ExchangeRate{})
	require.ErrorIs(t, err, ErrRateUnavailable)
}

func TestBuildPayloadOmitsEmptyRoutingCodes(t *testing.T) {
	fx := newCoordinatorFixture(t)
	draft := completeUSDraft()
	draft.RojifiID = uuid.NewString()

	payload, err := fx.coordinator.BuildPayload(draft, models.ExchangeRate{})
	require.NoError(t, err)
	require.Contains(t, payload.BankData, "swiftCode")
	require.NotContains(t, payload.BankData, "iban")
	require.NotContains(t, payload.BankData, "sortCode")
	require.Empty(t, payload.ExchangeRate, "reference currency carries no rate")
}

func TestRecipientPostalAndStateOnlyDomestic(t *testing.T) {
	draft := completeUSDraft()
	draft.PostalCode = "10001"
	draft.State = "New York"

	recipient := buildRecipient(draft)
	require.Contains(t, recipient, "postalCode")
	require.Contains(t, recipient, "state")

	draft.SwiftCode = "DEUTDEFF"
	draft.Country = "Germany"
	recipient = buildRecipient(draft)
	require.NotContains(t, recipient, "postalCode")
	require.NotContains(t, recipient, "state")
}

func TestTransitionTable(t *testing.T) {
	require.True(t, canTransition(domain.SubmissionStatusIdle, domain.SubmissionStatusLoading))
	require.True(t, canTransition(domain.SubmissionStatusError, domain.SubmissionStatusLoading))
	require.True(t, canTransition(domain.SubmissionStatusSuccess, domain.SubmissionStatusIdle))
	require.False(t, canTransition(domain.SubmissionStatusIdle, domain.SubmissionStatusSuccess))
	require.False(t, canTransition(domain.SubmissionStatusSuccess, domain.SubmissionStatusLoading))
	require.False(t, canTransition(domain.SubmissionStatusLoading, domain.SubmissionStatusIdle))
}
