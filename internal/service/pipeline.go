package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/domain"
	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/draftstore"
	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/gateway"
	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/models"
	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/observability"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Pipeline orchestrates the draft lifecycle: currency selection, bank-code
// resolution, field merges, rate activation, and submission. Every mutation
// is a read-modify-write against the latest stored snapshot under a
// per-draft lock, so late async completions never clobber newer edits.
type Pipeline struct {
	store       draftstore.Store
	resolver    *Resolver
	rates       *RateProvider
	engine      *ValidationEngine
	amounts     *AmountPolicy
	coordinator *Coordinator
	uploader    gateway.Uploader

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex

	// resolveWG tracks in-flight background resolutions for tests and
	// graceful shutdown.
	resolveWG sync.WaitGroup
}

func NewPipeline(
	store draftstore.Store,
	resolver *Resolver,
	rates *RateProvider,
	engine *ValidationEngine,
	amounts *AmountPolicy,
	coordinator *Coordinator,
	uploader gateway.Uploader,
) *Pipeline {
	return &Pipeline{
		store:       store,
		resolver:    resolver,
		rates:       rates,
		engine:      engine,
		amounts:     amounts,
		coordinator: coordinator,
		uploader:    uploader,
		locks:       make(map[uuid.UUID]*sync.Mutex),
	}
}

func (p *Pipeline) lockDraft(id uuid.UUID) func() {
	p.mu.Lock()
	lock, ok := p.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[id] = lock
	}
	p.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}

// CreateDraft starts an empty draft for the selected sender currency and
// assigns its stable idempotency reference.
func (p *Pipeline) CreateDraft(ctx context.Context, currency domain.Currency) (*models.DraftSnapshot, error) {
	if !currency.Valid() {
		return nil, &ValidationError{Fields: []FieldError{{Field: "senderCurrency", Message: "unsupported currency"}}}
	}
	now := time.Now().UTC()
	snap := &models.DraftSnapshot{
		Draft: models.PaymentRequest{
			ID:             uuid.New(),
			RojifiID:       uuid.NewString(),
			SenderCurrency: currency,
			CreatedAt:      now,
			UpdatedAt:      now,
		},
		State: models.SubmissionState{Status: domain.SubmissionStatusIdle},
	}
	if err := p.store.Save(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// GetDraft fetches the latest snapshot.
func (p *Pipeline) GetDraft(ctx context.Context, id uuid.UUID) (*models.DraftSnapshot, error) {
	snap, err := p.store.Load(ctx, id)
	if err != nil {
		if errors.Is(err, draftstore.ErrNotFound) {
			return nil, ErrDraftNotFound
		}
		return nil, err
	}
	return snap, nil
}

// UpdateFields merges user edits into the draft and marks them hand-entered.
// Unknown keys are rejected; formats are reported through Validation, not
// here, so partial input never blocks typing.
func (p *Pipeline) UpdateFields(ctx context.Context, id uuid.UUID, fields map[domain.FieldKey]string) (*models.DraftSnapshot, error) {
	unlock := p.lockDraft(id)
	defer unlock()

	snap, err := p.GetDraft(ctx, id)
	if err != nil {
		return nil, err
	}
	if snap.State.Status == domain.SubmissionStatusLoading {
		return nil, ErrSubmissionInFlight
	}

	for key, value := range fields {
		if err := setDraftField(&snap.Draft, key, value); err != nil {
			return nil, err
		}
		snap.Draft.MarkEdited(key)
	}
	snap.Draft.UpdatedAt = time.Now().UTC()
	if err := p.store.Save(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// ChangeCurrency resets currency-dependent state: the bank identity, derived
// rail and routing fields are cleared, the old rate subscription is dropped,
// and the submission state returns to IDLE.
func (p *Pipeline) ChangeCurrency(ctx context.Context, id uuid.UUID, currency domain.Currency) (*models.DraftSnapshot, error) {
	if !currency.Valid() {
		return nil, &ValidationError{Fields: []FieldError{{Field: "senderCurrency", Message: "unsupported currency"}}}
	}
	unlock := p.lockDraft(id)
	defer unlock()

	snap, err := p.GetDraft(ctx, id)
	if err != nil {
		return nil, err
	}
	if snap.State.Status == domain.SubmissionStatusLoading {
		return nil, ErrSubmissionInFlight
	}
	if snap.Draft.SenderCurrency == currency {
		return snap, nil
	}

	p.rates.Deactivate(id, snap.Draft.SenderCurrency)
	snap.Draft.SenderCurrency = currency
	resetBankFields(&snap.Draft)
	snap.Draft.Generation++
	snap.Draft.UpdatedAt = time.Now().UTC()
	snap.State = models.SubmissionState{Status: domain.SubmissionStatusIdle}

	if err := p.store.Save(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// EnterBankCode records a new code-entry action. Below the type's minimum
// length no lookup is issued and the previous identity is simply cleared.
// Otherwise the resolution runs in the background under a fresh generation
// token; the response is discarded if a newer entry supersedes it.
func (p *Pipeline) EnterBankCode(ctx context.Context, id uuid.UUID, rawCode string, codeType domain.BankCodeType) (*models.DraftSnapshot, error) {
	if !codeType.Valid() {
		return nil, &ValidationError{Fields: []FieldError{{Field: "codeType", Message: "must be SWIFT, IBAN or SORTCODE"}}}
	}

	unlock := p.lockDraft(id)
	defer unlock()

	snap, err := p.GetDraft(ctx, id)
	if err != nil {
		return nil, err
	}
	if snap.State.Status == domain.SubmissionStatusLoading {
		return nil, ErrSubmissionInFlight
	}

	code := domain.SanitizeBankCode(rawCode, codeType)

	// A new entry logically cancels interest in any prior resolution.
	snap.Draft.Generation++
	resetBankFields(&snap.Draft)
	setCodeField(&snap.Draft, code, codeType)
	snap.Draft.UpdatedAt = time.Now().UTC()

	if len(code) < codeType.MinLength() {
		snap.Draft.ResolvePending = false
		if err := p.store.Save(ctx, snap); err != nil {
			return nil, err
		}
		return snap, nil
	}

	snap.Draft.ResolvePending = true
	if err := p.store.Save(ctx, snap); err != nil {
		return nil, err
	}

	generation := snap.Draft.Generation
	p.resolveWG.Add(1)
	go func() {
		defer p.resolveWG.Done()
		// Detached from the request context: the user navigating on does
		// not abort the lookup, only supersession discards its result.
		rctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		identity, resolveErr := p.resolver.Resolve(rctx, code, codeType)
		p.applyResolution(rctx, id, generation, codeType, identity, resolveErr)
	}()

	return snap, nil
}

// WaitForResolutions blocks until every in-flight background resolution has
// been applied or discarded.
func (p *Pipeline) WaitForResolutions() {
	p.resolveWG.Wait()
}

// applyResolution merges a resolver response into the latest snapshot,
// discarding it when the generation token shows it has been superseded.
func (p *Pipeline) applyResolution(ctx context.Context, id uuid.UUID, generation uint64, codeType domain.BankCodeType, identity *models.BankIdentity, resolveErr error) {
	unlock := p.lockDraft(id)
	defer unlock()

	snap, err := p.GetDraft(ctx, id)
	if err != nil {
		zap.L().Warn("draft vanished before resolution applied",
			zap.String("draft_id", id.String()), zap.Error(err))
		return
	}
	if snap.Draft.Generation != generation {
		observability.IncrementBankResolution("stale_discarded")
		return
	}

	snap.Draft.ResolvePending = false
	if resolveErr != nil {
		resetBankIdentity(&snap.Draft)
		snap.Draft.ResolveFailed = true
	} else {
		applyBankIdentity(&snap.Draft, identity, codeType)
		// Rates are only worth fetching once the user has committed to a
		// valid destination.
		p.rates.Activate(ctx, id, snap.Draft.SenderCurrency)
	}
	snap.Draft.UpdatedAt = time.Now().UTC()

	if err := p.store.Save(ctx, snap); err != nil {
		zap.L().Error("persist resolution result failed",
			zap.String("draft_id", id.String()), zap.Error(err))
	}
}

// ValidationReport is the UI-facing completeness projection.
type ValidationReport struct {
	RequiredFields []domain.FieldKey `json:"required_fields"`
	Errors         []FieldError      `json:"errors"`
	Complete       bool              `json:"complete"`
}

// Validation evaluates required fields, outstanding errors and completeness
// for the draft. Amount threshold checking folds in the current rate.
func (p *Pipeline) Validation(ctx context.Context, id uuid.UUID) (*ValidationReport, error) {
	snap, err := p.GetDraft(ctx, id)
	if err != nil {
		return nil, err
	}
	draft := &snap.Draft

	required := p.engine.RequiredFields(draft.SenderCurrency, draft.PaymentRail, draft.DestinationCountry)
	keys := make([]domain.FieldKey, 0, len(required))
	for key := range required {
		keys = append(keys, key)
	}

	fieldErrs := p.engine.Validate(draft)
	if strings.TrimSpace(draft.Amount) != "" {
		rate := p.rates.Rate(draft.SenderCurrency)
		var vErr *ValidationError
		if err := p.amounts.Validate(draft.Amount, draft.SenderCurrency, rate); errors.As(err, &vErr) {
			fieldErrs = append(fieldErrs, vErr.Fields...)
		}
	}
	if draft.ResolveFailed {
		fieldErrs = append(fieldErrs, FieldError{Field: domain.FieldSwiftCode, Message: "unable to verify this code"})
	}

	return &ValidationReport{
		RequiredFields: keys,
		Errors:         fieldErrs,
		Complete:       len(fieldErrs) == 0 && draft.BankResolved(),
	}, nil
}

// RateSnapshot returns the draft currency's current quote.
func (p *Pipeline) RateSnapshot(ctx context.Context, id uuid.UUID) (*models.ExchangeRate, error) {
	snap, err := p.GetDraft(ctx, id)
	if err != nil {
		return nil, err
	}
	rate := p.rates.Rate(snap.Draft.SenderCurrency)
	return &rate, nil
}

// Attach uploads an invoice/document and stores its durable URL on the
// draft. Upload failures leave the rest of the draft untouched.
func (p *Pipeline) Attach(ctx context.Context, id uuid.UUID, filename string, content io.Reader) (*models.DraftSnapshot, error) {
	url, err := p.uploader.Upload(ctx, filename, content)
	if err != nil {
		return nil, &UploadError{Filename: filename, Err: err}
	}

	unlock := p.lockDraft(id)
	defer unlock()

	snap, err := p.GetDraft(ctx, id)
	if err != nil {
		return nil, err
	}
	snap.Draft.DocumentURL = url
	snap.Draft.UpdatedAt = time.Now().UTC()
	if err := p.store.Save(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// Submit drives one submission attempt and persists the resulting state.
func (p *Pipeline) Submit(ctx context.Context, id uuid.UUID) (*models.DraftSnapshot, error) {
	return p.runSubmission(ctx, id, p.coordinator.Submit)
}

// Retry re-runs a failed submission with the draft unmodified.
func (p *Pipeline) Retry(ctx context.Context, id uuid.UUID) (*models.DraftSnapshot, error) {
	return p.runSubmission(ctx, id, p.coordinator.Retry)
}

// Dismiss acknowledges a terminal state, returning the draft to IDLE.
func (p *Pipeline) Dismiss(ctx context.Context, id uuid.UUID) (*models.DraftSnapshot, error) {
	unlock := p.lockDraft(id)
	defer unlock()

	snap, err := p.GetDraft(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := p.coordinator.Dismiss(snap); err != nil {
		return nil, err
	}
	if err := p.store.Save(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// Discard drops the draft entirely.
func (p *Pipeline) Discard(ctx context.Context, id uuid.UUID) error {
	unlock := p.lockDraft(id)
	defer unlock()

	if snap, err := p.GetDraft(ctx, id); err == nil {
		p.rates.Deactivate(id, snap.Draft.SenderCurrency)
	}
	return p.store.Delete(ctx, id)
}

func (p *Pipeline) runSubmission(ctx context.Context, id uuid.UUID, run func(context.Context, *models.DraftSnapshot) error) (*models.DraftSnapshot, error) {
	unlock := p.lockDraft(id)
	defer unlock()

	snap, err := p.GetDraft(ctx, id)
	if err != nil {
		return nil, err
	}

	runErr := run(ctx, snap)
	if saveErr := p.store.Save(ctx, snap); saveErr != nil {
		zap.L().Error("persist submission state failed",
			zap.String("draft_id", id.String()), zap.Error(saveErr))
		if runErr == nil {
			runErr = saveErr
		}
	}
	if runErr != nil {
		return snap, runErr
	}
	return snap, nil
}

// resetBankFields clears everything derived from a bank code, including the
// user's routing-code entries, ahead of a new code entry or currency switch.
func resetBankFields(draft *models.PaymentRequest) {
	resetBankIdentity(draft)
	draft.SwiftCode = ""
	draft.IBAN = ""
	draft.AccountNumber = ""
	draft.SortCode = ""
	draft.IFSCCode = ""
	draft.RoutingNumber = ""
	draft.BSBNumber = ""
	draft.InstitutionNumber = ""
	draft.TransitNumber = ""
	draft.SouthAfricaRoutingCode = ""
	draft.ResolveFailed = false
	draft.ResolvePending = false
	for _, key := range bankDependentFields {
		delete(draft.Edited, key)
	}
}

// resetBankIdentity clears only the resolver-populated identity, leaving the
// entered code in place so the failure is visible at the code-entry point.
func resetBankIdentity(draft *models.PaymentRequest) {
	draft.BankName = ""
	draft.BankAddress = ""
	draft.BankCity = ""
	draft.BankRegion = ""
	draft.BankCountry = ""
	draft.BankCountryCode = ""
	draft.PaymentRail = ""
	draft.DestinationCountry = ""
}

var bankDependentFields = []domain.FieldKey{
	domain.FieldSwiftCode,
	domain.FieldIBAN,
	domain.FieldAccountNumber,
	domain.FieldSortCode,
	domain.FieldBankName,
	domain.FieldBankAddress,
	domain.FieldBankCountry,
	domain.FieldIFSCCode,
	domain.FieldRoutingNumber,
	domain.FieldBSBNumber,
	domain.FieldInstitutionNumber,
	domain.FieldTransitNumber,
	domain.FieldSouthAfricaRouting,
}

func setCodeField(draft *models.PaymentRequest, code string, codeType domain.BankCodeType) {
	switch codeType {
	case domain.CodeTypeSwift:
		draft.SwiftCode = code
	case domain.CodeTypeIBAN:
		draft.IBAN = code
	case domain.CodeTypeSortCode:
		draft.SortCode = code
	}
}

// applyBankIdentity back-fills resolver output without clobbering fields the
// user hand-edited since, and derives the rail and destination country.
func applyBankIdentity(draft *models.PaymentRequest, identity *models.BankIdentity, codeType domain.BankCodeType) {
	draft.ResolveFailed = false
	if !draft.WasEdited(domain.FieldBankName) {
		draft.BankName = identity.BankName
	}
	if codeType == domain.CodeTypeSwift && !draft.WasEdited(domain.FieldBankAddress) {
		draft.BankAddress = identity.Address
	}
	draft.BankCity = identity.City
	draft.BankRegion = identity.Region
	if !draft.WasEdited(domain.FieldBankCountry) {
		draft.BankCountry = identity.Country
	}
	draft.BankCountryCode = identity.CountryCode

	draft.PaymentRail = domain.RailFor(codeType, draft.SenderCurrency)
	if codeType == domain.CodeTypeSwift {
		draft.DestinationCountry = domain.DestinationCountryFromSwift(draft.SwiftCode)
	} else {
		draft.DestinationCountry = identity.CountryCode
	}
}

// setDraftField applies one user edit. Dates accept RFC 3339 or plain dates.
func setDraftField(draft *models.PaymentRequest, key domain.FieldKey, value string) error {
	switch key {
	case domain.FieldAccountName:
		draft.AccountName = value
	case domain.FieldAccountType:
		draft.AccountType = value
	case domain.FieldAmount:
		draft.Amount = value
	case domain.FieldReason:
		draft.Reason = strings.ToUpper(strings.TrimSpace(value))
	case domain.FieldReasonDescription:
		draft.ReasonDescription = value
	case domain.FieldInvoiceNumber:
		draft.InvoiceNumber = value
	case domain.FieldInvoiceDate:
		if strings.TrimSpace(value) == "" {
			draft.InvoiceDate = nil
			return nil
		}
		parsed, err := parseDate(value)
		if err != nil {
			return &ValidationError{Fields: []FieldError{{Field: key, Message: "must be an RFC 3339 date"}}}
		}
		draft.InvoiceDate = &parsed
	case domain.FieldSenderName:
		draft.SenderName = value
	case domain.FieldPhoneCode:
		draft.PhoneCode = value
	case domain.FieldPhoneNumber:
		draft.PhoneNumber = value
	case domain.FieldAddress:
		draft.Address = value
	case domain.FieldCity:
		draft.City = value
	case domain.FieldState:
		draft.State = value
	case domain.FieldPostalCode:
		draft.PostalCode = value
	case domain.FieldCountry:
		draft.Country = value
	case domain.FieldAccountNumber:
		draft.AccountNumber = value
	case domain.FieldIBAN:
		draft.IBAN = domain.SanitizeBankCode(value, domain.CodeTypeIBAN)
	case domain.FieldBankName:
		draft.BankName = value
	case domain.FieldBankAddress:
		draft.BankAddress = value
	case domain.FieldBankCountry:
		draft.BankCountry = value
	case domain.FieldIFSCCode:
		draft.IFSCCode = strings.ToUpper(strings.TrimSpace(value))
	case domain.FieldRoutingNumber:
		draft.RoutingNumber = value
	case domain.FieldBSBNumber:
		draft.BSBNumber = value
	case domain.FieldInstitutionNumber:
		draft.InstitutionNumber = value
	case domain.FieldTransitNumber:
		draft.TransitNumber = value
	case domain.FieldSouthAfricaRouting:
		draft.SouthAfricaRoutingCode = value
	default:
		return &ValidationError{Fields: []FieldError{{Field: key, Message: "is not an editable field"}}}
	}
	return nil
}

func parseDate(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", value)
}
