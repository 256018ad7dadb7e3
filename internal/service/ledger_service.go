package service

import (
	"context"
	"errors"
	"fmt"

	"portfolio_backend/internal/domain"
	"portfolio_backend/internal/logger"
	"portfolio_backend/internal/repository"
)

// LedgerService handles ledger reads and lifecycle
type LedgerService struct {
	store          LedgerStore
	cache          LedgerCache
	openingBalance int64
}

// NewLedgerService creates a new ledger service. cache may be nil.
func NewLedgerService(store LedgerStore, cache LedgerCache, openingBalance int64) *LedgerService {
	return &LedgerService{store: store, cache: cache, openingBalance: openingBalance}
}

// OpenLedger returns the user's ledger, creating it on first visit.
func (s *LedgerService) OpenLedger(ctx context.Context, userID string) (*domain.Ledger, error) {
	if userID == "" {
		return nil, ErrLedgerNotFound
	}
	if l, ok := s.cachedLedger(ctx, userID); ok {
		return l, nil
	}
	l, created, err := s.store.CreateLedger(ctx, userID, s.openingBalance)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if created {
		logger.WithContext(ctx).Info("ledger opened", "user_id", userID, "balance", l.VirtualCurrency)
	}
	s.storeCache(ctx, l)
	return l, nil
}

// GetLedger returns the user's ledger without creating it
func (s *LedgerService) GetLedger(ctx context.Context, userID string) (*domain.Ledger, error) {
	if l, ok := s.cachedLedger(ctx, userID); ok {
		return l, nil
	}
	l, err := s.store.GetLedger(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrLedgerNotFound
		}
		return nil, err
	}
	s.storeCache(ctx, l)
	return l, nil
}

// ListPurchases returns one page of purchase history, newest first. cursor
// is the NextCursor of the previous page, or zero for the first page.
func (s *LedgerService) ListPurchases(ctx context.Context, userID string, limit int, cursor int64) (*domain.PurchasePage, error) {
	if cursor < 0 {
		return nil, ErrInvalidAmount
	}
	limit = repository.ClampPageSize(limit)

	records, err := s.store.ListPurchases(ctx, userID, limit, cursor)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	page := &domain.PurchasePage{Records: records}
	if page.Records == nil {
		page.Records = []*domain.PurchaseRecord{}
	}
	if len(records) == limit {
		page.NextCursor = records[len(records)-1].Seq
	}
	return page, nil
}

// LedgerCommitted drops the cached snapshot so the next read hits the store.
func (s *LedgerService) LedgerCommitted(ctx context.Context, l *domain.Ledger) {
	if s.cache != nil {
		s.cache.Invalidate(context.WithoutCancel(ctx), l.UserID)
	}
}

func (s *LedgerService) cachedLedger(ctx context.Context, userID string) (*domain.Ledger, bool) {
	if s.cache == nil {
		return nil, false
	}
	return s.cache.Get(ctx, userID)
}

func (s *LedgerService) storeCache(ctx context.Context, l *domain.Ledger) {
	if s.cache != nil {
		s.cache.Set(ctx, l)
	}
}
