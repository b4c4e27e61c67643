package governance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// delegationLockKey serializes delegation mutations per delegator. The
// prefix keeps the key space disjoint from proposal ids.
func delegationLockKey(userID string) string {
	return "delegation/" + userID
}

// Delegate creates a delegation from delegatorID to delegateTo, optionally
// scoped to proposal categories. A user may hold only one delegation in
// effect at a time and must revoke it before delegating again.
func (s *Service) Delegate(ctx context.Context, delegatorID, delegateTo string, categories []ProposalType, expiresAt *time.Time) (*Delegation, error) {
	if delegatorID == delegateTo {
		return nil, newError(KindInvalidArgument, "cannot delegate to yourself")
	}
	delegate, err := s.users.GetUser(ctx, delegateTo)
	if err != nil {
		return nil, fmt.Errorf("lookup delegate: %w", err)
	}
	if delegate == nil {
		return nil, ErrUserNotFound
	}
	for _, c := range categories {
		if !c.Valid() {
			return nil, newError(KindInvalidArgument, "invalid proposal category %q", c)
		}
	}
	now := s.clock.Now().UTC()
	if expiresAt != nil && !expiresAt.After(now) {
		return nil, newError(KindInvalidArgument, "expiry must be in the future")
	}

	unlock := s.locks.Lock(delegationLockKey(delegatorID))
	defer unlock()

	existing, err := s.store.ActiveDelegationBy(ctx, delegatorID)
	if err != nil {
		return nil, fmt.Errorf("check existing delegation: %w", err)
	}
	if existing != nil {
		if existing.InEffect(now) {
			return nil, ErrActiveDelegationExists
		}
		// An expired delegation no longer blocks re-delegation; retire it
		// so the single-active invariant holds at the storage layer too.
		existing.Active = false
		existing.RevokedAt = &now
		if err := s.store.UpdateDelegation(ctx, existing); err != nil {
			return nil, fmt.Errorf("retire expired delegation: %w", err)
		}
	}

	delegation := &Delegation{
		ID:         uuid.NewString(),
		UserID:     delegatorID,
		DelegateTo: delegateTo,
		Categories: categories,
		ExpiresAt:  expiresAt,
		Active:     true,
		CreatedAt:  now,
	}
	// The store's single-active-per-user constraint is the source of truth
	// underneath the lock; a racing writer that slipped past the check
	// above still fails here.
	if err := s.store.SaveDelegation(ctx, delegation); err != nil {
		return nil, err
	}
	s.logger.Info("delegation created",
		"delegation_id", delegation.ID,
		"delegator_id", delegatorID,
		"delegate_id", delegateTo,
		"categories", len(categories),
	)
	s.notifier.Notify(delegateTo, "delegation_received", map[string]any{
		"delegation_id": delegation.ID,
		"from":          delegatorID,
	})
	return delegation, nil
}

// RevokeDelegation deactivates the caller's active delegation. Votes
// already cast with the delegated power are unaffected.
func (s *Service) RevokeDelegation(ctx context.Context, delegatorID string) error {
	unlock := s.locks.Lock(delegationLockKey(delegatorID))
	defer unlock()

	delegation, err := s.store.ActiveDelegationBy(ctx, delegatorID)
	if err != nil {
		return fmt.Errorf("get delegation: %w", err)
	}
	if delegation == nil {
		return ErrDelegationNotFound
	}
	now := s.clock.Now().UTC()
	delegation.Active = false
	delegation.RevokedAt = &now
	if err := s.store.UpdateDelegation(ctx, delegation); err != nil {
		return fmt.Errorf("update delegation: %w", err)
	}
	s.logger.Info("delegation revoked",
		"delegation_id", delegation.ID,
		"delegator_id", delegatorID,
	)
	return nil
}

// GetDelegationStatus returns the user's outgoing delegation, the
// delegations currently pointed at them, and a count-based estimate of the
// incoming delegated power.
func (s *Service) GetDelegationStatus(ctx context.Context, userID string) (*DelegationStatus, error) {
	now := s.clock.Now().UTC()
	outgoing, err := s.store.ActiveDelegationBy(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get outgoing delegation: %w", err)
	}
	if outgoing != nil && !outgoing.InEffect(now) {
		outgoing = nil
	}
	incoming, err := s.store.ActiveDelegationsTo(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list incoming delegations: %w", err)
	}
	inEffect := make([]*Delegation, 0, len(incoming))
	for _, d := range incoming {
		if d.InEffect(now) {
			inEffect = append(inEffect, d)
		}
	}
	return &DelegationStatus{
		Outgoing:      outgoing,
		Incoming:      inEffect,
		IncomingCount: len(inEffect),
		IncomingPower: s.params.DelegationBonus * float64(len(inEffect)),
	}, nil
}
