package governance

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// AllocateFundsRequest carries the inputs for AllocateFunds.
type AllocateFundsRequest struct {
	Category      string
	Amount        float64
	Description   string
	RecipientType string
	RecipientID   string
}

// GetTreasuryBalance returns the treasury singleton, lazily creating it
// with the configured initial balance, along with the most recent
// allocations and per-category totals.
func (s *Service) GetTreasuryBalance(ctx context.Context) (*TreasuryBalance, error) {
	treasury, err := s.getOrInitTreasury(ctx)
	if err != nil {
		return nil, err
	}
	recent, err := s.store.RecentAllocations(ctx, 10)
	if err != nil {
		return nil, fmt.Errorf("list allocations: %w", err)
	}
	byCategory, err := s.store.AllocationTotalsByCategory(ctx)
	if err != nil {
		return nil, fmt.Errorf("aggregate allocations: %w", err)
	}
	return &TreasuryBalance{
		Treasury:   treasury,
		Recent:     recent,
		ByCategory: byCategory,
	}, nil
}

// AllocateFunds records a manual treasury allocation by an admin.
func (s *Service) AllocateFunds(ctx context.Context, req AllocateFundsRequest, adminID string) (*Allocation, error) {
	if err := s.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	if req.Amount <= 0 {
		return nil, newError(KindInvalidArgument, "amount must be positive")
	}
	if req.Category == "" {
		return nil, newError(KindInvalidArgument, "category is required")
	}
	return s.allocate(ctx, &Allocation{
		Category:      req.Category,
		Amount:        req.Amount,
		Description:   req.Description,
		RecipientType: req.RecipientType,
		RecipientID:   req.RecipientID,
		AllocatedBy:   adminID,
	})
}

// allocate reserves funds and appends the allocation record. The
// reservation is a conditional update on the treasury document, so
// concurrent allocations cannot drive available negative.
func (s *Service) allocate(ctx context.Context, allocation *Allocation) (*Allocation, error) {
	unlock := s.locks.Lock(treasuryLockKey)
	defer unlock()

	if _, err := s.getOrInitTreasury(ctx); err != nil {
		return nil, err
	}
	treasury, err := s.store.ReserveTreasuryFunds(ctx, allocation.Amount)
	if err != nil {
		return nil, err
	}
	allocation.ID = uuid.NewString()
	allocation.AllocatedAt = s.clock.Now().UTC()
	if err := s.store.SaveAllocation(ctx, allocation); err != nil {
		return nil, fmt.Errorf("save allocation: %w", err)
	}
	s.logger.Info("treasury funds allocated",
		"allocation_id", allocation.ID,
		"category", allocation.Category,
		"amount", allocation.Amount,
		"available", treasury.Available,
	)
	return allocation, nil
}

// getOrInitTreasury lazily creates the treasury singleton. Idempotent: the
// store's InitTreasury is a no-op when the singleton already exists.
func (s *Service) getOrInitTreasury(ctx context.Context) (*Treasury, error) {
	treasury, err := s.store.GetTreasury(ctx)
	if err != nil {
		return nil, fmt.Errorf("get treasury: %w", err)
	}
	if treasury != nil {
		return treasury, nil
	}
	now := s.clock.Now().UTC()
	seed := &Treasury{
		TotalBalance: s.params.TreasuryInitialBalance,
		Allocated:    0,
		Available:    s.params.TreasuryInitialBalance,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.InitTreasury(ctx, seed); err != nil {
		return nil, fmt.Errorf("init treasury: %w", err)
	}
	treasury, err = s.store.GetTreasury(ctx)
	if err != nil {
		return nil, fmt.Errorf("get treasury: %w", err)
	}
	if treasury == nil {
		return nil, newError(KindInternal, "treasury initialization failed")
	}
	return treasury, nil
}
