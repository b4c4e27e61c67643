package governance

import (
	"context"
	"math/big"
)

// User is the slice of the platform identity we need: reputation level for
// proposal gating and power bonuses, and the admin flag for privileged
// operations. Authentication itself happens upstream.
type User struct {
	ID    string
	Level int
	Admin bool
}

// UserDirectory provides identity lookups. GetUser returns (nil, nil) for
// unknown users; CountUsers backs the participation percentage readout.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (*User, error)
	CountUsers(ctx context.Context) (int64, error)
}

// TokenLedger provides token balances and burns for quadratic voting. The
// platform wallet service sits behind this interface.
type TokenLedger interface {
	GetBalance(address string) (*big.Int, error)
	Deduct(address string, amount *big.Int) error
}

// Notifier delivers best-effort notifications. Delivery failures never
// affect the outcome of the operation that triggered them.
type Notifier interface {
	Notify(userID string, event string, payload map[string]any)
}

// Store persists governance state. Implementations are responsible for the
// storage-level guarantees the service relies on: vote uniqueness per
// (proposal, user), revision-checked proposal updates, and conditional
// treasury reservation.
type Store interface {
	// SaveProposal persists a new proposal.
	SaveProposal(ctx context.Context, p *Proposal) error

	// UpdateProposal persists proposal mutations. The update only applies
	// if the stored revision matches p.Revision; on success the stored
	// revision (and p.Revision) is incremented. Returns
	// ErrRevisionMismatch when a concurrent writer won.
	UpdateProposal(ctx context.Context, p *Proposal) error

	// GetProposal returns (nil, nil) when the proposal does not exist.
	GetProposal(ctx context.Context, id string) (*Proposal, error)

	// ListProposals returns one page of proposals plus the total count of
	// proposals matching the filter.
	ListProposals(ctx context.Context, f ProposalFilter) ([]*Proposal, int64, error)

	// SaveVote records a simple-majority vote. Returns ErrAlreadyVoted if
	// a vote by the same user on the same proposal already exists.
	SaveVote(ctx context.Context, v *Vote) error

	// VotesByProposal lists the simple-majority votes on a proposal.
	VotesByProposal(ctx context.Context, proposalID string) ([]*Vote, error)

	// SaveQuadraticVote records a quadratic vote. Returns ErrAlreadyVoted
	// on a duplicate (proposal, user) pair.
	SaveQuadraticVote(ctx context.Context, v *QuadraticVote) error

	// GetQuadraticVote returns (nil, nil) when the user has not cast a
	// quadratic vote on the proposal.
	GetQuadraticVote(ctx context.Context, proposalID, userID string) (*QuadraticVote, error)

	// QuadraticVotesByProposal lists the quadratic votes on a proposal.
	QuadraticVotesByProposal(ctx context.Context, proposalID string) ([]*QuadraticVote, error)

	// SaveDelegation persists a new delegation. Returns
	// ErrActiveDelegationExists when an active delegation by the same user
	// already exists.
	SaveDelegation(ctx context.Context, d *Delegation) error

	// UpdateDelegation persists delegation mutations (revocation).
	UpdateDelegation(ctx context.Context, d *Delegation) error

	// ActiveDelegationBy returns the user's active outgoing delegation, or
	// (nil, nil) if none exists. Expiry is the caller's concern.
	ActiveDelegationBy(ctx context.Context, userID string) (*Delegation, error)

	// ActiveDelegationsTo returns the active delegations pointing at the
	// given delegate.
	ActiveDelegationsTo(ctx context.Context, delegateID string) ([]*Delegation, error)

	// InitTreasury creates the treasury singleton if it does not exist.
	// Idempotent: a second call leaves the existing singleton untouched.
	InitTreasury(ctx context.Context, t *Treasury) error

	// GetTreasury returns (nil, nil) when the singleton has not been
	// initialized yet.
	GetTreasury(ctx context.Context) (*Treasury, error)

	// ReserveTreasuryFunds atomically moves amount from available to
	// allocated, failing with ErrInsufficientTreasury when available is
	// too low. Returns the treasury state after the reservation.
	ReserveTreasuryFunds(ctx context.Context, amount float64) (*Treasury, error)

	// SaveAllocation appends an allocation record.
	SaveAllocation(ctx context.Context, a *Allocation) error

	// RecentAllocations returns the most recent allocations, newest first.
	RecentAllocations(ctx context.Context, limit int) ([]*Allocation, error)

	// AllocationTotalsByCategory aggregates allocation amounts per category.
	AllocationTotalsByCategory(ctx context.Context) (map[string]float64, error)

	// Close releases storage resources.
	Close() error
}
