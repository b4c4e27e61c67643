package governance

import (
	"time"
)

// ProposalStatus represents the lifecycle status of a proposal. The
// lifecycle is linear and forward-only: active -> passed|failed -> executed.
type ProposalStatus string

const (
	StatusActive   ProposalStatus = "active"
	StatusPassed   ProposalStatus = "passed"
	StatusFailed   ProposalStatus = "failed"
	StatusExecuted ProposalStatus = "executed"
)

// Valid reports whether the status is a known lifecycle state.
func (s ProposalStatus) Valid() bool {
	switch s {
	case StatusActive, StatusPassed, StatusFailed, StatusExecuted:
		return true
	default:
		return false
	}
}

// CanTransitionTo is the single source of truth for legal status
// transitions. Every status mutation in the service goes through it.
func (s ProposalStatus) CanTransitionTo(next ProposalStatus) bool {
	switch s {
	case StatusActive:
		return next == StatusPassed || next == StatusFailed
	case StatusPassed:
		return next == StatusExecuted
	default:
		return false
	}
}

// ProposalType represents the type of a proposal.
type ProposalType string

const (
	ProposalTypeGeneral   ProposalType = "general"
	ProposalTypeBudget    ProposalType = "budget"
	ProposalTypeParameter ProposalType = "parameter"
	ProposalTypeEmergency ProposalType = "emergency"
)

// Valid reports whether the proposal type is known.
func (t ProposalType) Valid() bool {
	switch t {
	case ProposalTypeGeneral, ProposalTypeBudget, ProposalTypeParameter, ProposalTypeEmergency:
		return true
	default:
		return false
	}
}

// VotingMode selects the voting mechanism for a proposal. A proposal
// declares its mode at creation time; casting the other mode's vote is
// rejected so the two tally unit systems never mix.
type VotingMode string

const (
	VotingModeSimple    VotingMode = "simple"
	VotingModeQuadratic VotingMode = "quadratic"
)

func (m VotingMode) Valid() bool {
	return m == VotingModeSimple || m == VotingModeQuadratic
}

// Proposal represents a governance proposal and its tally state.
type Proposal struct {
	ID                  string         `json:"id"`
	ProposerID          string         `json:"proposer_id"`
	Title               string         `json:"title"`
	Description         string         `json:"description"`
	Type                ProposalType   `json:"proposal_type"`
	VotingMode          VotingMode     `json:"voting_mode"`
	BudgetRequest       float64        `json:"budget_request,omitempty"` // only meaningful for budget proposals
	QuorumPercentage    float64        `json:"quorum_percentage"`
	ExecutionDelayHours int            `json:"execution_delay_hours"`
	Status              ProposalStatus `json:"status"`
	CreatedAt           time.Time      `json:"created_at"`
	VotingEndsAt        time.Time      `json:"voting_ends_at"`
	PassedAt            *time.Time     `json:"passed_at,omitempty"`
	ExecutedAt          *time.Time     `json:"executed_at,omitempty"`
	ExecutedBy          string         `json:"executed_by,omitempty"`

	// Simple-majority tallies. Voters holds the ids of users who have cast
	// a simple vote; VoterCount always equals len(Voters).
	VotesFor     int      `json:"votes_for"`
	VotesAgainst int      `json:"votes_against"`
	PowerFor     float64  `json:"power_for"`
	PowerAgainst float64  `json:"power_against"`
	VoterCount   int      `json:"voter_count"`
	Voters       []string `json:"voters"`

	// Quadratic tallies, in raw vote magnitude (not cost).
	QuadraticFor     int64 `json:"quadratic_for"`
	QuadraticAgainst int64 `json:"quadratic_against"`

	// Revision is checked and incremented by the store on every update so
	// concurrent writers cannot silently clobber each other.
	Revision int64 `json:"-"`
}

// HasVoted reports whether the user already cast a simple-majority vote.
func (p *Proposal) HasVoted(userID string) bool {
	for _, v := range p.Voters {
		if v == userID {
			return true
		}
	}
	return false
}

// Vote represents a simple-majority vote. Power is computed at cast time
// and never recomputed; later delegation changes do not alter it.
type Vote struct {
	ProposalID    string    `json:"proposal_id"`
	UserID        string    `json:"user_id"`
	Approve       bool      `json:"approve"`
	Power         float64   `json:"power"`
	DelegatedFrom []string  `json:"delegated_from,omitempty"`
	CastAt        time.Time `json:"cast_at"`
}

// QuadraticVote represents a token-costed vote where Cost = Votes².
// The cost is burned from the voter's balance at cast time; there is no
// refund path.
type QuadraticVote struct {
	ProposalID string    `json:"proposal_id"`
	UserID     string    `json:"user_id"`
	Votes      int64     `json:"votes"`
	Approve    bool      `json:"approve"`
	Cost       int64     `json:"cost"`
	CastAt     time.Time `json:"cast_at"`
}

// Delegation represents a user delegating their voting weight to a
// delegate, optionally scoped to proposal types. A user has at most one
// active delegation at a time; revocation deactivates rather than deletes.
type Delegation struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	DelegateTo string         `json:"delegate_to"`
	Categories []ProposalType `json:"categories,omitempty"` // empty means all categories
	ExpiresAt  *time.Time     `json:"expires_at,omitempty"`
	Active     bool           `json:"active"`
	CreatedAt  time.Time      `json:"created_at"`
	RevokedAt  *time.Time     `json:"revoked_at,omitempty"`
}

// InEffect reports whether the delegation is active and unexpired at the
// given time.
func (d *Delegation) InEffect(now time.Time) bool {
	if !d.Active {
		return false
	}
	if d.ExpiresAt != nil && !now.Before(*d.ExpiresAt) {
		return false
	}
	return true
}

// Covers reports whether the delegation applies to proposals of the given
// type. An empty category list covers everything.
func (d *Delegation) Covers(proposalType ProposalType) bool {
	if len(d.Categories) == 0 {
		return true
	}
	for _, c := range d.Categories {
		if c == proposalType {
			return true
		}
	}
	return false
}

// Treasury is the singleton community treasury. Available is maintained
// incrementally as TotalBalance - Allocated, not recomputed from the
// allocation log.
type Treasury struct {
	TotalBalance float64   `json:"total_balance"`
	Allocated    float64   `json:"allocated"`
	Available    float64   `json:"available"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Allocation is an append-only record of treasury funds being earmarked,
// either manually by an admin or by executing a budget proposal.
type Allocation struct {
	ID            string    `json:"id"`
	Category      string    `json:"category"`
	Amount        float64   `json:"amount"`
	Description   string    `json:"description,omitempty"`
	RecipientType string    `json:"recipient_type,omitempty"`
	RecipientID   string    `json:"recipient_id,omitempty"`
	AllocatedBy   string    `json:"allocated_by,omitempty"`
	ProposalID    string    `json:"proposal_id,omitempty"`
	AllocatedAt   time.Time `json:"allocated_at"`
}

// AllocationCategoryExecution is the category stamped on allocations
// created by executing a budget proposal.
const AllocationCategoryExecution = "proposal_execution"

// VoteReceipt is returned from a successful simple-majority vote.
type VoteReceipt struct {
	ProposalID    string
	Power         float64
	DelegatedFrom []string
}

// QuadraticVoteReceipt is returned from a successful quadratic vote.
type QuadraticVoteReceipt struct {
	ProposalID string
	Votes      int64
	Cost       int64
}

// ExecutionReceipt is returned from a successful proposal execution.
type ExecutionReceipt struct {
	ProposalID      string
	ExecutedAt      time.Time
	AllocationID    string
	AllocatedAmount float64
}

// Participation is the query-only quorum readout for a proposal. Quorum is
// informational unless Params.QuorumEnforced is set.
type Participation struct {
	VoterCount    int     `json:"voter_count"`
	TotalUsers    int64   `json:"total_users"`
	Percentage    float64 `json:"percentage"`
	QuorumReached bool    `json:"quorum_reached"`
}

// ProposalDetail bundles a proposal with its votes and participation
// readout for the GetProposal operation.
type ProposalDetail struct {
	Proposal       *Proposal
	Votes          []*Vote
	QuadraticVotes []*QuadraticVote
	Participation  Participation
}

// ProposalFilter selects proposals for listing. Zero values mean "no
// filter"; Limit of zero falls back to a default page size.
type ProposalFilter struct {
	Status     ProposalStatus
	Type       ProposalType
	ProposerID string
	Skip       int
	Limit      int
}

// DelegationStatus describes a user's outgoing delegation and the
// delegations currently pointed at them.
type DelegationStatus struct {
	Outgoing      *Delegation
	Incoming      []*Delegation
	IncomingPower float64
	IncomingCount int
}

// TreasuryBalance is the GetTreasuryBalance view: the singleton balances
// plus recent allocations and per-category totals.
type TreasuryBalance struct {
	Treasury   *Treasury
	Recent     []*Allocation
	ByCategory map[string]float64
}
