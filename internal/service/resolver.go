package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/domain"
	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/gateway"
	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/models"
	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/observability"
)

// Resolver validates a beneficiary bank code against the lookup service.
// It is idempotent and side-effect-free beyond the lookup itself; retries
// and stale-response handling are the caller's concern.
type Resolver struct {
	directory gateway.BankDirectory
}

func NewResolver(directory gateway.BankDirectory) *Resolver {
	return &Resolver{directory: directory}
}

// Resolve sanitizes the code for its type, applies the minimum-length gate
// (no network call below it), then performs the lookup. A not-found result
// is returned as a ResolutionError wrapping gateway.ErrBankNotFound.
func (r *Resolver) Resolve(ctx context.Context, rawCode string, codeType domain.BankCodeType) (*models.BankIdentity, error) {
	if !codeType.Valid() {
		return nil, fmt.Errorf("unsupported bank code type %q", codeType)
	}

	code := domain.SanitizeBankCode(rawCode, codeType)
	if len(code) < codeType.MinLength() {
		return nil, ErrCodeBelowMinLength
	}
	if codeType == domain.CodeTypeSortCode && len(code) != 6 {
		return nil, ErrCodeBelowMinLength
	}

	identity, err := r.directory.Lookup(ctx, code, codeType)
	if err != nil {
		if errors.Is(err, gateway.ErrBankNotFound) {
			observability.IncrementBankResolution("not_found")
		} else {
			observability.IncrementBankResolution("error")
		}
		return nil, &ResolutionError{Code: code, Err: err}
	}

	observability.IncrementBankResolution("ok")
	return identity, nil
}
