package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/api"
	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/api/middleware"
	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/config"
	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/domain"
	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/draftstore"
	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/gateway"
	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/models"
	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/repository"
	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/service"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testJWTSecret   = "test-secret-0123456789-test-secret"
	testJWTIssuer   = "rojifi-pipeline-test"
	testJWTAudience = "pipeline-api-test"
)

type apiFixture struct {
	router   http.Handler
	pipeline *service.Pipeline
	gateway  *gateway.MockTransactionGateway
	archive  *fakeArchive
}

// fakeArchive is an in-memory stand-in for the Postgres submission archive.
type fakeArchive struct {
	records map[string]repository.SubmissionRecord
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{records: make(map[string]repository.SubmissionRecord)}
}

func (f *fakeArchive) GetByReference(_ context.Context, referenceID string) (*repository.SubmissionRecord, error) {
	rec, ok := f.records[referenceID]
	if !ok {
		return nil, repository.ErrRecordNotFound
	}
	return &rec, nil
}

func (f *fakeArchive) ListByDraft(_ context.Context, draftID string, limit int) ([]repository.SubmissionRecord, error) {
	var out []repository.SubmissionRecord
	for _, rec := range f.records {
		if rec.DraftID == draftID {
			out = append(out, rec)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func setupAPI(t *testing.T) *apiFixture {
	t.Helper()
	middleware.SetJWTSecret(testJWTSecret)
	middleware.SetJWTValidation(testJWTIssuer, testJWTAudience)

	directory := gateway.NewMockBankDirectory()
	directory.Identities["CHASUS33"] = &models.BankIdentity{
		BankName:    "JPMorgan Chase",
		Address:     "383 Madison Ave",
		City:        "New York",
		Country:     "United States",
		CountryCode: "US",
		Code:        "CHASUS33",
	}
	rateSource := gateway.NewMockRateSource()
	rateSource.Quotes[domain.CurrencyUSD] = []gateway.RateQuote{
		{To: domain.CurrencyEUR, Rate: decimal.RequireFromString("0.92"), IsLive: true},
	}
	txGateway := gateway.NewMockTransactionGateway()

	engine := service.NewValidationEngine(service.NewStaticCountryDirectory(nil))
	amounts := service.NewAmountPolicy(domain.CurrencyUSD, decimal.RequireFromString("15000"))
	rates := service.NewRateProvider(rateSource, domain.CurrencyUSD)
	resolver := service.NewResolver(directory)
	coordinator := service.NewCoordinator(txGateway, &gateway.MockSessionRefresher{}, engine, amounts, rates, nil)
	pipeline := service.NewPipeline(draftstore.NewMemoryStore(), resolver, rates, engine, amounts, coordinator, &gateway.MockUploader{})

	cfg := &config.Config{
		HTTPPort:           "0",
		JWTSecret:          testJWTSecret,
		JWTIssuer:          testJWTIssuer,
		JWTAudience:        testJWTAudience,
		PublicRateLimitRPS: 1000,
		AuthRateLimitRPS:   1000,
	}
	archive := newFakeArchive()
	router := api.NewRouter(cfg, zap.NewNop(), nil, nil, pipeline, archive)
	return &apiFixture{router: router.Routes(), pipeline: pipeline, gateway: txGateway, archive: archive}
}

func generateTestToken(userID string) string {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"role":    "user",
		"iss":     testJWTIssuer,
		"aud":     testJWTAudience,
		"sub":     userID,
		"iat":     now.Unix(),
		"nbf":     now.Add(-30 * time.Second).Unix(),
		"exp":     now.Add(time.Hour).Unix(),
	})
	tokenString, _ := token.SignedString(middleware.JWTSecret())
	return tokenString
}

func (fx *apiFixture) do(t *testing.T, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Buffer
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewBuffer(raw)
	} else {
		body = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+generateTestToken(uuid.New().String()))
	w := httptest.NewRecorder()
	fx.router.ServeHTTP(w, req)
	return w
}

func decodeSnapshot(t *testing.T, w *httptest.ResponseRecorder) *models.DraftSnapshot {
	t.Helper()
	var snap models.DraftSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	return &snap
}

func TestRFC7807ProblemDetails(t *testing.T) {
	fx := setupAPI(t)

	req := httptest.NewRequest("GET", "/v1/drafts/"+uuid.New().String(), nil)
	w := httptest.NewRecorder()
	fx.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Contains(t, w.Header().Get("Content-Type"), "application/problem+json")

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body["type"])
	assert.Equal(t, float64(http.StatusUnauthorized), body["status"])
	assert.NotEmpty(t, body["title"])
	assert.NotEmpty(t, body["request_id"])
}

func TestHealthLive(t *testing.T) {
	fx := setupAPI(t)

	req := httptest.NewRequest("GET", "/healthz/live", nil)
	w := httptest.NewRecorder()
	fx.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
}

func TestCreateDraftEndpoint(t *testing.T) {
	fx := setupAPI(t)

	w := fx.do(t, "POST", "/v1/drafts", map[string]string{"currency": "USD"})
	require.Equal(t, http.StatusCreated, w.Code)

	snap := decodeSnapshot(t, w)
	assert.NotEqual(t, uuid.Nil, snap.Draft.ID)
	assert.NotEmpty(t, snap.Draft.RojifiID)
	assert.Equal(t, domain.SubmissionStatusIdle, snap.State.Status)
}

func TestCreateDraftRejectsUnknownCurrency(t *testing.T) {
	fx := setupAPI(t)

	w := fx.do(t, "POST", "/v1/drafts", map[string]string{"currency": "XYZ"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.Contains(t, w.Header().Get("Content-Type"), "application/problem+json")
}

func TestGetDraftNotFound(t *testing.T) {
	fx := setupAPI(t)

	w := fx.do(t, "GET", "/v1/drafts/"+uuid.New().String(), nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestDraftLifecycleOverHTTP(t *testing.T) {
	fx := setupAPI(t)

	w := fx.do(t, "POST", "/v1/drafts", map[string]string{"currency": "USD"})
	require.Equal(t, http.StatusCreated, w.Code)
	id := decodeSnapshot(t, w).Draft.ID.String()

	w = fx.do(t, "PUT", "/v1/drafts/"+id+"/bank-code", map[string]string{
		"code":      "chasus33xxx",
		"code_type": "swift",
	})
	require.Equal(t, http.StatusOK, w.Code)
	fx.pipeline.WaitForResolutions()

	w = fx.do(t, "PATCH", "/v1/drafts/"+id, map[string]string{
		"senderName":    "Acme Treasury",
		"accountName":   "John Smith",
		"accountNumber": "000123456789",
		"amount":        "20000",
		"reason":        "goods",
		"invoiceNumber": "INV-2026/001",
		"invoiceDate":   "2026-03-14",
		"phoneCode":     "+1",
		"phoneNumber":   "2125550100",
	})
	require.Equal(t, http.StatusOK, w.Code)
	snap := decodeSnapshot(t, w)
	assert.Equal(t, "CHASUS33", snap.Draft.SwiftCode)
	assert.Equal(t, "JPMorgan Chase", snap.Draft.BankName)
	assert.Equal(t, "GOODS", snap.Draft.Reason)
	assert.Equal(t, "US", snap.Draft.DestinationCountry)

	w = fx.do(t, "GET", "/v1/drafts/"+id+"/validation", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var report service.ValidationReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Empty(t, report.Errors)
	assert.True(t, report.Complete)

	w = fx.do(t, "POST", "/v1/drafts/"+id+"/submit", nil)
	require.Equal(t, http.StatusOK, w.Code)
	snap = decodeSnapshot(t, w)
	assert.Equal(t, domain.SubmissionStatusSuccess, snap.State.Status)
	assert.NotEmpty(t, snap.State.TransactionID)
	require.Len(t, fx.gateway.Payloads(), 1)

	w = fx.do(t, "POST", "/v1/drafts/"+id+"/dismiss", nil)
	require.Equal(t, http.StatusOK, w.Code)
	snap = decodeSnapshot(t, w)
	assert.Equal(t, domain.SubmissionStatusIdle, snap.State.Status)
}

func TestSubmitIncompleteDraftRejected(t *testing.T) {
	fx := setupAPI(t)

	w := fx.do(t, "POST", "/v1/drafts", map[string]string{"currency": "USD"})
	require.Equal(t, http.StatusCreated, w.Code)
	id := decodeSnapshot(t, w).Draft.ID.String()

	w = fx.do(t, "POST", "/v1/drafts/"+id+"/submit", nil)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.Empty(t, fx.gateway.Payloads())
}

func TestRateEndpoint(t *testing.T) {
	fx := setupAPI(t)

	w := fx.do(t, "POST", "/v1/drafts", map[string]string{"currency": "EUR"})
	require.Equal(t, http.StatusCreated, w.Code)
	id := decodeSnapshot(t, w).Draft.ID.String()

	// Quotes are only fetched once a resolved destination commits the draft.
	w = fx.do(t, "GET", "/v1/drafts/"+id+"/rate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rate models.ExchangeRate
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rate))
	assert.Equal(t, domain.CurrencyEUR, rate.To)
	assert.True(t, rate.Rate.IsZero())

	w = fx.do(t, "PUT", "/v1/drafts/"+id+"/bank-code", map[string]string{
		"code":      "CHASUS33",
		"code_type": "swift",
	})
	require.Equal(t, http.StatusOK, w.Code)
	fx.pipeline.WaitForResolutions()

	w = fx.do(t, "GET", "/v1/drafts/"+id+"/rate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rate))
	assert.Equal(t, domain.CurrencyEUR, rate.To)
	assert.True(t, rate.Rate.Equal(decimal.RequireFromString("0.92")))
	assert.True(t, rate.IsLive)
}

func TestSubmissionHistoryByDraft(t *testing.T) {
	fx := setupAPI(t)

	draftID := uuid.New().String()
	fx.archive.records["ref-1"] = repository.SubmissionRecord{
		ReferenceID:    "ref-1",
		DraftID:        draftID,
		TransactionID:  "tx-1",
		Status:         "SUCCESS",
		Currency:       "USD",
		Amount:         "20000",
		DebitAmountUSD: "20000.00",
		Attempts:       1,
	}

	w := fx.do(t, "GET", "/v1/drafts/"+draftID+"/submissions", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Submissions []repository.SubmissionRecord `json:"submissions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Submissions, 1)
	assert.Equal(t, "ref-1", body.Submissions[0].ReferenceID)
	assert.Equal(t, "tx-1", body.Submissions[0].TransactionID)

	// A draft with no attempts gets an empty list, not null.
	w = fx.do(t, "GET", "/v1/drafts/"+uuid.New().String()+"/submissions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Submissions)
	require.Empty(t, body.Submissions)
}

func TestSubmissionByReference(t *testing.T) {
	fx := setupAPI(t)

	fx.archive.records["ref-2"] = repository.SubmissionRecord{
		ReferenceID: "ref-2",
		DraftID:     uuid.New().String(),
		Status:      "ERROR",
		Attempts:    2,
	}

	w := fx.do(t, "GET", "/v1/submissions/ref-2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rec repository.SubmissionRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, "ERROR", rec.Status)
	assert.Equal(t, 2, rec.Attempts)

	w = fx.do(t, "GET", "/v1/submissions/ref-missing", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestDiscardDraft(t *testing.T) {
	fx := setupAPI(t)

	w := fx.do(t, "POST", "/v1/drafts", map[string]string{"currency": "USD"})
	require.Equal(t, http.StatusCreated, w.Code)
	id := decodeSnapshot(t, w).Draft.ID.String()

	w = fx.do(t, "DELETE", "/v1/drafts/"+id, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = fx.do(t, "GET", "/v1/drafts/"+id, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}
