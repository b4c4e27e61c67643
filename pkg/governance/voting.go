package governance

import (
	"context"
	"fmt"
	"math/big"
)

// CastVote casts a simple-majority vote. The voter's effective power is
// computed at cast time (base 1 + level bonus + delegated power) and frozen
// into the vote record; later delegation changes do not alter it.
func (s *Service) CastVote(ctx context.Context, proposalID, voterID string, approve bool) (*VoteReceipt, error) {
	voter, err := s.users.GetUser(ctx, voterID)
	if err != nil {
		return nil, fmt.Errorf("lookup voter: %w", err)
	}
	if voter == nil {
		return nil, ErrUserNotFound
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
	if proposal.Status != StatusActive {
		return nil, newError(KindInvalidState, "proposal is %s, voting requires an active proposal", proposal.Status)
	}
	now := s.clock.Now().UTC()
	// Second, deliberate expiry check: nothing transitions status in the
	// background, so an active proposal can still be past its window.
	if !now.Before(proposal.VotingEndsAt) {
		return nil, ErrVotingClosed
	}
	if proposal.VotingMode != VotingModeSimple {
		return nil, newError(KindInvalidArgument,
			"proposal uses %s voting, cast a quadratic vote instead", proposal.VotingMode)
	}
	if proposal.HasVoted(voterID) {
		return nil, ErrAlreadyVoted
	}

	power, delegatedFrom, err := s.effectivePower(ctx, voter, proposal)
	if err != nil {
		return nil, err
	}

	vote := &Vote{
		ProposalID:    proposalID,
		UserID:        voterID,
		Approve:       approve,
		Power:         power,
		DelegatedFrom: delegatedFrom,
		CastAt:        now,
	}
	// The store's uniqueness constraint is the source of truth for the
	// at-most-one-vote invariant; the HasVoted check above is an
	// optimization on top of it.
	if err := s.store.SaveVote(ctx, vote); err != nil {
		return nil, err
	}

	proposal.Voters = append(proposal.Voters, voterID)
	proposal.VoterCount = len(proposal.Voters)
	if approve {
		proposal.VotesFor++
		proposal.PowerFor += power
	} else {
		proposal.VotesAgainst++
		proposal.PowerAgainst += power
	}
	if err := s.store.UpdateProposal(ctx, proposal); err != nil {
		return nil, fmt.Errorf("update proposal tallies: %w", err)
	}

	s.logger.Debug("vote cast",
		"proposal_id", proposalID,
		"voter_id", voterID,
		"approve", approve,
		"power", power,
		"delegations", len(delegatedFrom),
	)
	return &VoteReceipt{
		ProposalID:    proposalID,
		Power:         power,
		DelegatedFrom: delegatedFrom,
	}, nil
}

// maxQuadraticVotes is the largest magnitude whose squared cost still fits
// in int64. Anything above it would overflow the cost into a negative
// number, turning the burn into a mint.
const maxQuadraticVotes = 3_037_000_499

// CastQuadraticVote casts a token-costed vote where cost = votes². The
// cost is burned from the voter's balance; a rejected cast leaves both the
// balance and the proposal tallies unchanged.
func (s *Service) CastQuadraticVote(ctx context.Context, proposalID, voterID string, votes int64, approve bool) (*QuadraticVoteReceipt, error) {
	if votes < 0 {
		return nil, newError(KindInvalidArgument, "vote magnitude must not be negative")
	}
	if votes > maxQuadraticVotes {
		return nil, newError(KindInvalidArgument,
			"vote magnitude must not exceed %d", int64(maxQuadraticVotes))
	}
	voter, err := s.users.GetUser(ctx, voterID)
	if err != nil {
		return nil, fmt.Errorf("lookup voter: %w", err)
	}
	if voter == nil {
		return nil, ErrUserNotFound
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
	if proposal.Status != StatusActive {
		return nil, newError(KindInvalidState, "proposal is %s, voting requires an active proposal", proposal.Status)
	}
	now := s.clock.Now().UTC()
	if !now.Before(proposal.VotingEndsAt) {
		return nil, ErrVotingClosed
	}
	if proposal.VotingMode != VotingModeQuadratic {
		return nil, newError(KindInvalidArgument,
			"proposal uses %s voting, cast a simple vote instead", proposal.VotingMode)
	}
	existing, err := s.store.GetQuadraticVote(ctx, proposalID, voterID)
	if err != nil {
		return nil, fmt.Errorf("check existing vote: %w", err)
	}
	if existing != nil {
		return nil, ErrAlreadyVoted
	}

	cost := votes * votes
	balance, err := s.tokens.GetBalance(voterID)
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}
	if balance.Cmp(big.NewInt(cost)) < 0 {
		return nil, ErrInsufficientBalance
	}
	// Balance and duplicate checks happen before any mutation, under the
	// proposal lock, so a rejection needs no rollback.
	if err := s.tokens.Deduct(voterID, big.NewInt(cost)); err != nil {
		return nil, err
	}

	vote := &QuadraticVote{
		ProposalID: proposalID,
		UserID:     voterID,
		Votes:      votes,
		Approve:    approve,
		Cost:       cost,
		CastAt:     now,
	}
	if err := s.store.SaveQuadraticVote(ctx, vote); err != nil {
		return nil, err
	}

	// The tally gains the raw magnitude, not the cost.
	if approve {
		proposal.QuadraticFor += votes
	} else {
		proposal.QuadraticAgainst += votes
	}
	if err := s.store.UpdateProposal(ctx, proposal); err != nil {
		return nil, fmt.Errorf("update proposal tallies: %w", err)
	}

	s.logger.Debug("quadratic vote cast",
		"proposal_id", proposalID,
		"voter_id", voterID,
		"votes", votes,
		"cost", cost,
		"approve", approve,
	)
	return &QuadraticVoteReceipt{
		ProposalID: proposalID,
		Votes:      votes,
		Cost:       cost,
	}, nil
}

// effectivePower computes a voter's simple-majority voting power for a
// proposal: base 1, plus the level bonus, plus the delegation bonus for
// each in-effect delegation covering the proposal's category. Expired
// delegations contribute nothing.
func (s *Service) effectivePower(ctx context.Context, voter *User, proposal *Proposal) (float64, []string, error) {
	power := 1 + float64(voter.Level)*s.params.LevelBonus
	delegations, err := s.store.ActiveDelegationsTo(ctx, voter.ID)
	if err != nil {
		return 0, nil, fmt.Errorf("list delegations: %w", err)
	}
	now := s.clock.Now().UTC()
	var delegatedFrom []string
	for _, d := range delegations {
		if !d.InEffect(now) || !d.Covers(proposal.Type) {
			continue
		}
		power += s.params.DelegationBonus
		delegatedFrom = append(delegatedFrom, d.UserID)
	}
	return power, delegatedFrom, nil
}
