package service

import (
	"context"
	"sync"
	"time"

	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/domain"
	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/gateway"
	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/models"
	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/observability"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RateProvider caches live conversion quotes from the reference currency to
// each activated transaction currency. Quotes stay usable between refreshes;
// a failed fetch keeps the last known value and never propagates.
type RateProvider struct {
	source    gateway.RateSource
	reference domain.Currency

	// active maps each subscribed currency to the drafts holding it. The
	// provider is shared, so a currency stays subscribed until its last
	// holder releases it.
	mu     sync.RWMutex
	quotes map[domain.Currency]models.ExchangeRate
	active map[domain.Currency]map[uuid.UUID]struct{}
}

func NewRateProvider(source gateway.RateSource, reference domain.Currency) *RateProvider {
	return &RateProvider{
		source:    source,
		reference: reference,
		quotes:    make(map[domain.Currency]models.ExchangeRate),
		active:    make(map[domain.Currency]map[uuid.UUID]struct{}),
	}
}

// Activate subscribes a draft to a transaction currency, fetching the rate
// immediately when the currency is newly subscribed. The reference currency
// needs no quote and is ignored; callers only activate after a bank identity
// has been resolved.
func (p *RateProvider) Activate(ctx context.Context, holder uuid.UUID, to domain.Currency) {
	if to == p.reference || !to.Valid() {
		return
	}

	p.mu.Lock()
	holders, already := p.active[to]
	if holders == nil {
		holders = make(map[uuid.UUID]struct{})
		p.active[to] = holders
	}
	holders[holder] = struct{}{}
	if !already {
		quote := p.quotes[to]
		quote.From = p.reference
		quote.To = to
		quote.Loading = true
		p.quotes[to] = quote
	}
	observability.SetActiveRateSubscriptions(len(p.active))
	p.mu.Unlock()

	if already {
		return
	}
	p.RefreshAll(ctx)
}

// Deactivate releases one draft's hold on a currency, e.g. when that draft
// switches away or is discarded. The subscription itself only drops with the
// last holder.
func (p *RateProvider) Deactivate(holder uuid.UUID, to domain.Currency) {
	p.mu.Lock()
	defer p.mu.Unlock()
	holders, ok := p.active[to]
	if !ok {
		return
	}
	delete(holders, holder)
	if len(holders) == 0 {
		delete(p.active, to)
	}
	observability.SetActiveRateSubscriptions(len(p.active))
}

// Rate returns the current quote from the reference currency. The reference
// currency itself always yields a live identity rate.
func (p *RateProvider) Rate(to domain.Currency) models.ExchangeRate {
	if to == p.reference {
		return models.ExchangeRate{
			From:        p.reference,
			To:          to,
			Rate:        decimal.NewFromInt(1),
			IsLive:      true,
			LastUpdated: time.Now(),
		}
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	quote, ok := p.quotes[to]
	if !ok {
		return models.ExchangeRate{From: p.reference, To: to}
	}
	return quote
}

// RefreshAll fetches the full quote list once and updates every active
// subscription. Called on activation and by the refresh worker. A fetch
// failure keeps the last known quotes and is reported to the caller.
func (p *RateProvider) RefreshAll(ctx context.Context) error {
	p.mu.RLock()
	targets := make([]domain.Currency, 0, len(p.active))
	for to := range p.active {
		targets = append(targets, to)
	}
	p.mu.RUnlock()
	if len(targets) == 0 {
		return nil
	}

	fetched, err := p.source.FetchRates(ctx, p.reference)
	if err != nil {
		zap.L().Warn("exchange rate refresh failed",
			zap.String("from", string(p.reference)),
			zap.Error(err),
		)
		observability.IncrementRateRefresh("error")
		p.clearLoading(targets)
		return err
	}

	byTarget := make(map[domain.Currency]gateway.RateQuote, len(fetched))
	for _, q := range fetched {
		byTarget[q.To] = q
	}

	now := time.Now()
	p.mu.Lock()
	for _, to := range targets {
		quote := p.quotes[to]
		quote.From = p.reference
		quote.To = to
		quote.Loading = false
		if fresh, ok := byTarget[to]; ok {
			quote.Rate = fresh.Rate
			quote.IsLive = fresh.IsLive
			quote.LastUpdated = now
		}
		p.quotes[to] = quote
	}
	p.mu.Unlock()
	observability.IncrementRateRefresh("ok")
	return nil
}

func (p *RateProvider) clearLoading(targets []domain.Currency) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, to := range targets {
		quote := p.quotes[to]
		quote.Loading = false
		p.quotes[to] = quote
	}
}
