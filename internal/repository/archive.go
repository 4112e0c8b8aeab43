package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrRecordNotFound is returned when no archived submission matches.
var ErrRecordNotFound = errors.New("submission record not found")

// SubmissionRecord is the durable audit row written for every submission
// attempt that reached the transaction backend. ReferenceID is the draft's
// stable idempotency reference, so retries overwrite rather than duplicate.
type SubmissionRecord struct {
	ReferenceID    string    `json:"reference_id"`
	DraftID        string    `json:"draft_id"`
	TransactionID  string    `json:"transaction_id"`
	Status         string    `json:"status"`
	Currency       string    `json:"currency"`
	Amount         string    `json:"amount"`
	DebitAmountUSD string    `json:"debit_amount_usd"`
	ExchangeRate   string    `json:"exchange_rate"`
	PaymentRail    string    `json:"payment_rail"`
	Beneficiary    string    `json:"beneficiary"`
	BankName       string    `json:"bank_name"`
	BankCountry    string    `json:"bank_country"`
	Attempts       int       `json:"attempts"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Archive persists submission outcomes to Postgres.
type Archive struct {
	db *pgxpool.Pool
}

func NewArchive(db *pgxpool.Pool) *Archive {
	return &Archive{db: db}
}

// Record upserts the outcome keyed by reference id. A retry for the same
// draft updates the existing row in place.
func (a *Archive) Record(ctx context.Context, rec SubmissionRecord) error {
	query := `
		INSERT INTO submission_archive (
			reference_id, draft_id, transaction_id, status, currency, amount,
			debit_amount_usd, exchange_rate, payment_rail, beneficiary,
			bank_name, bank_country, attempts, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW())
		ON CONFLICT (reference_id) DO UPDATE SET
			transaction_id = EXCLUDED.transaction_id,
			status = EXCLUDED.status,
			amount = EXCLUDED.amount,
			debit_amount_usd = EXCLUDED.debit_amount_usd,
			exchange_rate = EXCLUDED.exchange_rate,
			attempts = EXCLUDED.attempts,
			updated_at = NOW()
	`
	_, err := a.db.Exec(ctx, query,
		rec.ReferenceID, rec.DraftID, rec.TransactionID, rec.Status,
		rec.Currency, rec.Amount, rec.DebitAmountUSD, rec.ExchangeRate,
		rec.PaymentRail, rec.Beneficiary, rec.BankName, rec.BankCountry,
		rec.Attempts,
	)
	if err != nil {
		return fmt.Errorf("failed to record submission: %w", err)
	}
	return nil
}

// GetByReference loads one archived submission by its idempotency reference.
func (a *Archive) GetByReference(ctx context.Context, referenceID string) (*SubmissionRecord, error) {
	rec := &SubmissionRecord{}
	query := `
		SELECT reference_id, draft_id, transaction_id, status, currency, amount,
		       debit_amount_usd, exchange_rate, payment_rail, beneficiary,
		       bank_name, bank_country, attempts, created_at, updated_at
		FROM submission_archive
		WHERE reference_id = $1
	`
	err := a.db.QueryRow(ctx, query, referenceID).Scan(
		&rec.ReferenceID, &rec.DraftID, &rec.TransactionID, &rec.Status,
		&rec.Currency, &rec.Amount, &rec.DebitAmountUSD, &rec.ExchangeRate,
		&rec.PaymentRail, &rec.Beneficiary, &rec.BankName, &rec.BankCountry,
		&rec.Attempts, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get submission record: %w", err)
	}
	return rec, nil
}

// ListByDraft returns the archived attempts for a draft, newest first.
func (a *Archive) ListByDraft(ctx context.Context, draftID string, limit int) ([]SubmissionRecord, error) {
	query := `
		SELECT reference_id, draft_id, transaction_id, status, currency, amount,
		       debit_amount_usd, exchange_rate, payment_rail, beneficiary,
		       bank_name, bank_country, attempts, created_at, updated_at
		FROM submission_archive
		WHERE draft_id = $1
		ORDER BY updated_at DESC
		LIMIT $2
	`
	rows, err := a.db.Query(ctx, query, draftID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list submission records: %w", err)
	}
	defer rows.Close()

	var records []SubmissionRecord
	for rows.Next() {
		var rec SubmissionRecord
		if err := rows.Scan(
			&rec.ReferenceID, &rec.DraftID, &rec.TransactionID, &rec.Status,
			&rec.Currency, &rec.Amount, &rec.DebitAmountUSD, &rec.ExchangeRate,
			&rec.PaymentRail, &rec.Beneficiary, &rec.BankName, &rec.BankCountry,
			&rec.Attempts, &rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan submission record: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}
