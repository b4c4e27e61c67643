// Package store provides the in-memory implementation of the governance
// Store, used by unit tests and dev mode. The persistent implementation
// lives in the sqlite subpackage.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/realumlabs/realum-dao/pkg/governance"
)

type voteKey struct {
	proposalID string
	userID     string
}

// MemoryStore is an in-memory implementation of governance.Store. All
// reads and writes copy, so callers never share memory with the store.
type MemoryStore struct {
	mutex         sync.RWMutex
	proposals     map[string]*governance.Proposal
	votes         map[voteKey]*governance.Vote
	quadratic     map[voteKey]*governance.QuadraticVote
	delegations   map[string]*governance.Delegation
	treasury      *governance.Treasury
	allocations   []*governance.Allocation
	proposalOrder []string
}

// NewMemoryStore creates a new memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		proposals:   make(map[string]*governance.Proposal),
		votes:       make(map[voteKey]*governance.Vote),
		quadratic:   make(map[voteKey]*governance.QuadraticVote),
		delegations: make(map[string]*governance.Delegation),
	}
}

func copyProposal(p *governance.Proposal) *governance.Proposal {
	cp := *p
	cp.Voters = append([]string(nil), p.Voters...)
	return &cp
}

func copyDelegation(d *governance.Delegation) *governance.Delegation {
	cd := *d
	cd.Categories = append([]governance.ProposalType(nil), d.Categories...)
	return &cd
}

// SaveProposal saves a new proposal.
func (s *MemoryStore) SaveProposal(_ context.Context, p *governance.Proposal) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, exists := s.proposals[p.ID]; !exists {
		s.proposalOrder = append(s.proposalOrder, p.ID)
	}
	s.proposals[p.ID] = copyProposal(p)
	return nil
}

// UpdateProposal applies a revision-checked update. The caller's revision
// must match the stored one; on success both are incremented.
func (s *MemoryStore) UpdateProposal(_ context.Context, p *governance.Proposal) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	current, exists := s.proposals[p.ID]
	if !exists {
		return governance.ErrProposalNotFound
	}
	if current.Revision != p.Revision {
		return governance.ErrRevisionMismatch
	}
	p.Revision++
	s.proposals[p.ID] = copyProposal(p)
	return nil
}

// GetProposal retrieves a proposal by ID, returning (nil, nil) if missing.
func (s *MemoryStore) GetProposal(_ context.Context, id string) (*governance.Proposal, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if p, exists := s.proposals[id]; exists {
		return copyProposal(p), nil
	}
	return nil, nil
}

// ListProposals returns one page of proposals, newest first, plus the
// total count matching the filter.
func (s *MemoryStore) ListProposals(_ context.Context, f governance.ProposalFilter) ([]*governance.Proposal, int64, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	matched := make([]*governance.Proposal, 0, len(s.proposalOrder))
	for _, id := range s.proposalOrder {
		p := s.proposals[id]
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		if f.Type != "" && p.Type != f.Type {
			continue
		}
		if f.ProposerID != "" && p.ProposerID != f.ProposerID {
			continue
		}
		matched = append(matched, p)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := int64(len(matched))
	if f.Skip >= len(matched) {
		return []*governance.Proposal{}, total, nil
	}
	matched = matched[f.Skip:]
	if f.Limit > 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}
	page := make([]*governance.Proposal, 0, len(matched))
	for _, p := range matched {
		page = append(page, copyProposal(p))
	}
	return page, total, nil
}

// SaveVote records a vote, enforcing one vote per (proposal, user).
func (s *MemoryStore) SaveVote(_ context.Context, v *governance.Vote) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	key := voteKey{proposalID: v.ProposalID, userID: v.UserID}
	if _, exists := s.votes[key]; exists {
		return governance.ErrAlreadyVoted
	}
	cv := *v
	cv.DelegatedFrom = append([]string(nil), v.DelegatedFrom...)
	s.votes[key] = &cv
	return nil
}

// VotesByProposal lists the votes on a proposal, oldest first.
func (s *MemoryStore) VotesByProposal(_ context.Context, proposalID string) ([]*governance.Vote, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	votes := make([]*governance.Vote, 0)
	for key, v := range s.votes {
		if key.proposalID != proposalID {
			continue
		}
		cv := *v
		cv.DelegatedFrom = append([]string(nil), v.DelegatedFrom...)
		votes = append(votes, &cv)
	}
	sort.Slice(votes, func(i, j int) bool {
		return votes[i].CastAt.Before(votes[j].CastAt)
	})
	return votes, nil
}

// SaveQuadraticVote records a quadratic vote, enforcing one per
// (proposal, user).
func (s *MemoryStore) SaveQuadraticVote(_ context.Context, v *governance.QuadraticVote) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	key := voteKey{proposalID: v.ProposalID, userID: v.UserID}
	if _, exists := s.quadratic[key]; exists {
		return governance.ErrAlreadyVoted
	}
	cv := *v
	s.quadratic[key] = &cv
	return nil
}

// GetQuadraticVote returns (nil, nil) when the user has not cast one.
func (s *MemoryStore) GetQuadraticVote(_ context.Context, proposalID, userID string) (*governance.QuadraticVote, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if v, exists := s.quadratic[voteKey{proposalID: proposalID, userID: userID}]; exists {
		cv := *v
		return &cv, nil
	}
	return nil, nil
}

// QuadraticVotesByProposal lists the quadratic votes on a proposal.
func (s *MemoryStore) QuadraticVotesByProposal(_ context.Context, proposalID string) ([]*governance.QuadraticVote, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	votes := make([]*governance.QuadraticVote, 0)
	for key, v := range s.quadratic {
		if key.proposalID != proposalID {
			continue
		}
		cv := *v
		votes = append(votes, &cv)
	}
	sort.Slice(votes, func(i, j int) bool {
		return votes[i].CastAt.Before(votes[j].CastAt)
	})
	return votes, nil
}

// SaveDelegation saves a new delegation, enforcing at most one active
// delegation per user.
func (s *MemoryStore) SaveDelegation(_ context.Context, d *governance.Delegation) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if d.Active {
		for _, existing := range s.delegations {
			if existing.UserID == d.UserID && existing.Active && existing.ID != d.ID {
				return governance.ErrActiveDelegationExists
			}
		}
	}
	s.delegations[d.ID] = copyDelegation(d)
	return nil
}

// UpdateDelegation overwrites an existing delegation.
func (s *MemoryStore) UpdateDelegation(_ context.Context, d *governance.Delegation) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, exists := s.delegations[d.ID]; !exists {
		return governance.ErrDelegationNotFound
	}
	s.delegations[d.ID] = copyDelegation(d)
	return nil
}

// ActiveDelegationBy returns the user's active outgoing delegation.
func (s *MemoryStore) ActiveDelegationBy(_ context.Context, userID string) (*governance.Delegation, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	for _, d := range s.delegations {
		if d.UserID == userID && d.Active {
			return copyDelegation(d), nil
		}
	}
	return nil, nil
}

// ActiveDelegationsTo returns the active delegations pointing at a delegate.
func (s *MemoryStore) ActiveDelegationsTo(_ context.Context, delegateID string) ([]*governance.Delegation, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	delegations := make([]*governance.Delegation, 0)
	for _, d := range s.delegations {
		if d.DelegateTo == delegateID && d.Active {
			delegations = append(delegations, copyDelegation(d))
		}
	}
	sort.Slice(delegations, func(i, j int) bool {
		return delegations[i].CreatedAt.Before(delegations[j].CreatedAt)
	})
	return delegations, nil
}

// InitTreasury creates the treasury singleton if absent. Idempotent.
func (s *MemoryStore) InitTreasury(_ context.Context, t *governance.Treasury) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.treasury != nil {
		return nil
	}
	ct := *t
	s.treasury = &ct
	return nil
}

// GetTreasury returns (nil, nil) before initialization.
func (s *MemoryStore) GetTreasury(_ context.Context) (*governance.Treasury, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.treasury == nil {
		return nil, nil
	}
	ct := *s.treasury
	return &ct, nil
}

// ReserveTreasuryFunds conditionally moves amount from available to
// allocated, refusing to drive available negative.
func (s *MemoryStore) ReserveTreasuryFunds(_ context.Context, amount float64) (*governance.Treasury, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.treasury == nil {
		return nil, governance.ErrInsufficientTreasury
	}
	if s.treasury.Available < amount {
		return nil, governance.ErrInsufficientTreasury
	}
	s.treasury.Allocated += amount
	s.treasury.Available -= amount
	ct := *s.treasury
	return &ct, nil
}

// SaveAllocation appends an allocation record.
func (s *MemoryStore) SaveAllocation(_ context.Context, a *governance.Allocation) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	ca := *a
	s.allocations = append(s.allocations, &ca)
	return nil
}

// RecentAllocations returns up to limit allocations, newest first.
func (s *MemoryStore) RecentAllocations(_ context.Context, limit int) ([]*governance.Allocation, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	recent := make([]*governance.Allocation, 0, limit)
	for i := len(s.allocations) - 1; i >= 0 && len(recent) < limit; i-- {
		ca := *s.allocations[i]
		recent = append(recent, &ca)
	}
	return recent, nil
}

// AllocationTotalsByCategory aggregates allocation amounts per category.
func (s *MemoryStore) AllocationTotalsByCategory(_ context.Context) (map[string]float64, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	totals := make(map[string]float64)
	for _, a := range s.allocations {
		totals[a.Category] += a.Amount
	}
	return totals, nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}
