package governance

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const treasuryLockKey = "treasury"

// Service orchestrates the proposal lifecycle, voting engine, delegation
// registry and treasury ledger over a Store. All per-proposal mutations are
// serialized behind a keyed mutex; the store's uniqueness and conditional
// updates remain the source of truth underneath.
type Service struct {
	store    Store
	users    UserDirectory
	tokens   TokenLedger
	notifier Notifier
	params   Params
	clock    clockwork.Clock
	logger   *slog.Logger
	locks    *keyedMutex
}

// Option configures optional Service collaborators.
type Option func(*Service)

// WithClock overrides the wall clock, mainly for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates a new governance service.
func NewService(
	store Store,
	users UserDirectory,
	tokens TokenLedger,
	notifier Notifier,
	params Params,
	opts ...Option,
) *Service {
	s := &Service{
		store:    store,
		users:    users,
		tokens:   tokens,
		notifier: notifier,
		params:   params,
		clock:    clockwork.NewRealClock(),
		locks:    newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		// Discard logs rather than guarding every log call
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return s
}

// Params returns the static governance configuration.
func (s *Service) Params() Params {
	return s.params
}

// CreateProposalRequest carries the inputs for CreateProposal. Zero
// VotingDurationDays, QuorumPercentage and ExecutionDelayHours fall back to
// the configured defaults.
type CreateProposalRequest struct {
	ProposerID          string
	Title               string
	Description         string
	Type                ProposalType
	VotingMode          VotingMode
	BudgetRequest       float64
	VotingDurationDays  int
	QuorumPercentage    float64
	ExecutionDelayHours int
}

// CreateProposal creates a new proposal. The proposer must hold at least
// the configured minimum reputation level. Duplicate titles are allowed.
func (s *Service) CreateProposal(ctx context.Context, req CreateProposalRequest) (*Proposal, error) {
	proposer, err := s.users.GetUser(ctx, req.ProposerID)
	if err != nil {
		return nil, fmt.Errorf("lookup proposer: %w", err)
	}
	if proposer == nil {
		return nil, ErrUserNotFound
	}
	if proposer.Level < s.params.MinProposalLevel {
		return nil, newError(KindPermissionDenied,
			"reputation level %d required to create proposals", s.params.MinProposalLevel)
	}
	if req.Title == "" {
		return nil, newError(KindInvalidArgument, "title is required")
	}
	if !req.Type.Valid() {
		return nil, newError(KindInvalidArgument, "invalid proposal type %q", req.Type)
	}
	mode := req.VotingMode
	if mode == "" {
		mode = VotingModeSimple
	}
	if !mode.Valid() {
		return nil, newError(KindInvalidArgument, "invalid voting mode %q", req.VotingMode)
	}
	if req.Type == ProposalTypeBudget && req.BudgetRequest <= 0 {
		return nil, newError(KindInvalidArgument, "budget proposals require a positive budget request")
	}
	days := req.VotingDurationDays
	if days == 0 {
		days = s.params.DefaultVotingDays
	}
	if days < 0 {
		return nil, newError(KindInvalidArgument, "voting duration must be positive")
	}
	quorum := req.QuorumPercentage
	if quorum == 0 {
		quorum = s.params.DefaultQuorumPercentage
	}
	if quorum < 0 || quorum > 100 {
		return nil, newError(KindInvalidArgument, "quorum percentage must be between 0 and 100")
	}
	delay := req.ExecutionDelayHours
	if delay == 0 {
		delay = s.params.DefaultExecutionDelayHours
	}
	if delay < 0 {
		return nil, newError(KindInvalidArgument, "execution delay must be positive")
	}

	now := s.clock.Now().UTC()
	proposal := &Proposal{
		ID:                  uuid.NewString(),
		ProposerID:          req.ProposerID,
		Title:               req.Title,
		Description:         req.Description,
		Type:                req.Type,
		VotingMode:          mode,
		QuorumPercentage:    quorum,
		ExecutionDelayHours: delay,
		Status:              StatusActive,
		CreatedAt:           now,
		VotingEndsAt:        now.Add(time.Duration(days) * 24 * time.Hour),
		Voters:              []string{},
	}
	if req.Type == ProposalTypeBudget {
		proposal.BudgetRequest = req.BudgetRequest
	}
	if err := s.store.SaveProposal(ctx, proposal); err != nil {
		return nil, fmt.Errorf("save proposal: %w", err)
	}
	s.logger.Info("proposal created",
		"proposal_id", proposal.ID,
		"proposer_id", proposal.ProposerID,
		"type", proposal.Type,
		"voting_mode", proposal.VotingMode,
		"voting_ends_at", proposal.VotingEndsAt,
	)
	return proposal, nil
}

// ListProposals returns one page of proposals plus the total count.
func (s *Service) ListProposals(ctx context.Context, f ProposalFilter) ([]*Proposal, int64, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, newError(KindInvalidArgument, "invalid status filter %q", f.Status)
	}
	if f.Type != "" && !f.Type.Valid() {
		return nil, 0, newError(KindInvalidArgument, "invalid type filter %q", f.Type)
	}
	if f.Skip < 0 || f.Limit < 0 {
		return nil, 0, newError(KindInvalidArgument, "skip and limit must not be negative")
	}
	if f.Limit == 0 || f.Limit > s.params.MaxListLimit {
		f.Limit = s.params.MaxListLimit
	}
	return s.store.ListProposals(ctx, f)
}

// GetProposal returns a proposal with its votes and participation readout.
func (s *Service) GetProposal(ctx context.Context, id string) (*ProposalDetail, error) {
	proposal, err := s.store.GetProposal(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get proposal: %w", err)
	}
	if proposal == nil {
		return nil, ErrProposalNotFound
	}
	votes, err := s.store.VotesByProposal(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	quadratic, err := s.store.QuadraticVotesByProposal(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list quadratic votes: %w", err)
	}
	participation, err := s.participation(ctx, proposal)
	if err != nil {
		return nil, err
	}
	return &ProposalDetail{
		Proposal:       proposal,
		Votes:          votes,
		QuadraticVotes: quadratic,
		Participation:  participation,
	}, nil
}

// FinalizeProposal moves an active proposal whose voting window has closed
// to passed or failed. This is the admin-side transition that makes a
// proposal eligible for Execute.
func (s *Service) FinalizeProposal(ctx context.Context, proposalID, adminID string, passed bool) (*Proposal, error) {
	if err := s.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(proposalID)
	defer unlock()

	proposal, err := s.store.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, fmt.Errorf("get proposal: %w", err)
	}
	if proposal == nil {
		return nil, ErrProposalNotFound
	}
	now := s.clock.Now().UTC()
	if now.Before(proposal.VotingEndsAt) {
		return nil, newError(KindInvalidState, "voting is still open until %s",
			proposal.VotingEndsAt.Format(time.RFC3339))
	}
	next := StatusFailed
	if passed {
		next = StatusPassed
	}
	if !proposal.Status.CanTransitionTo(next) {
		return nil, newError(KindInvalidState,
			"cannot transition proposal from %s to %s", proposal.Status, next)
	}
	proposal.Status = next
	if passed {
		proposal.PassedAt = &now
	}
	if err := s.store.UpdateProposal(ctx, proposal); err != nil {
		return nil, fmt.Errorf("update proposal: %w", err)
	}
	s.logger.Info("proposal finalized",
		"proposal_id", proposal.ID,
		"status", proposal.Status,
		"finalized_by", adminID,
	)
	return proposal, nil
}

// ExecuteProposal executes a passed proposal once its execution delay has
// elapsed. Budget proposals allocate their requested amount from the
// treasury under the proposal_execution category; the allocation is
// reserved before the status flips so a drained treasury blocks execution.
func (s *Service) ExecuteProposal(ctx context.Context, proposalID, adminID string) (*ExecutionReceipt, error) {
	if err := s.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(proposalID)
	defer unlock()

	proposal, err := s.store.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, fmt.Errorf("get proposal: %w", err)
	}
	if proposal == nil {
		return nil, ErrProposalNotFound
	}
	if proposal.Status != StatusPassed {
		return nil, newError(KindInvalidState,
			"proposal is %s, only passed proposals can be executed", proposal.Status)
	}
	now := s.clock.Now().UTC()
	if proposal.PassedAt != nil {
		executableAt := proposal.PassedAt.Add(time.Duration(proposal.ExecutionDelayHours) * time.Hour)
		if now.Before(executableAt) {
			return nil, newError(KindInvalidState,
				"execution delay in effect until %s", executableAt.Format(time.RFC3339))
		}
	}
	if s.params.QuorumEnforced {
		participation, err := s.participation(ctx, proposal)
		if err != nil {
			return nil, err
		}
		if !participation.QuorumReached {
			return nil, newError(KindInvalidState,
				"quorum not reached: %.1f%% participation, %.1f%% required",
				participation.Percentage, proposal.QuorumPercentage)
		}
	}

	receipt := &ExecutionReceipt{
		ProposalID: proposal.ID,
		ExecutedAt: now,
	}
	if proposal.Type == ProposalTypeBudget && proposal.BudgetRequest > 0 {
		allocation, err := s.allocate(ctx, &Allocation{
			Category:      AllocationCategoryExecution,
			Amount:        proposal.BudgetRequest,
			Description:   fmt.Sprintf("execution of proposal %q", proposal.Title),
			RecipientType: "proposal",
			RecipientID:   proposal.ProposerID,
			AllocatedBy:   adminID,
			ProposalID:    proposal.ID,
		})
		if err != nil {
			return nil, err
		}
		receipt.AllocationID = allocation.ID
		receipt.AllocatedAmount = allocation.Amount
	}

	if !proposal.Status.CanTransitionTo(StatusExecuted) {
		return nil, newError(KindInvalidState,
			"cannot transition proposal from %s to %s", proposal.Status, StatusExecuted)
	}
	proposal.Status = StatusExecuted
	proposal.ExecutedAt = &now
	proposal.ExecutedBy = adminID
	if err := s.store.UpdateProposal(ctx, proposal); err != nil {
		return nil, fmt.Errorf("update proposal: %w", err)
	}
	s.logger.Info("proposal executed",
		"proposal_id", proposal.ID,
		"executed_by", adminID,
		"allocated", receipt.AllocatedAmount,
	)
	s.notifier.Notify(proposal.ProposerID, "proposal_executed", map[string]any{
		"proposal_id": proposal.ID,
		"title":       proposal.Title,
	})
	return receipt, nil
}

// participation derives the quorum readout for a proposal.
func (s *Service) participation(ctx context.Context, proposal *Proposal) (Participation, error) {
	total, err := s.users.CountUsers(ctx)
	if err != nil {
		return Participation{}, fmt.Errorf("count users: %w", err)
	}
	p := Participation{
		VoterCount: proposal.VoterCount,
		TotalUsers: total,
	}
	if total > 0 {
		p.Percentage = float64(proposal.VoterCount) / float64(total) * 100
	}
	p.QuorumReached = p.Percentage >= proposal.QuorumPercentage
	return p, nil
}

func (s *Service) requireAdmin(ctx context.Context, userID string) error {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}
	if user == nil {
		return ErrUserNotFound
	}
	if !user.Admin {
		return newError(KindPermissionDenied, "admin privileges required")
	}
	return nil
}
