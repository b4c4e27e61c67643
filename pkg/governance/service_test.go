package governance_test

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realumlabs/realum-dao/pkg/governance"
	"github.com/realumlabs/realum-dao/pkg/governance/store"
	"github.com/realumlabs/realum-dao/pkg/token"
	"github.com/realumlabs/realum-dao/pkg/users"
)

// recordingNotifier captures notifications for assertions.
type recordingNotifier struct {
	mutex  sync.Mutex
	events []string
}

func (n *recordingNotifier) Notify(userID string, event string, _ map[string]any) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.events = append(n.events, userID+":"+event)
}

func (n *recordingNotifier) Events() []string {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return append([]string(nil), n.events...)
}

type fixture struct {
	service  *governance.Service
	store    *store.MemoryStore
	users    *users.Directory
	tokens   *token.System
	clock    clockwork.FakeClock
	notifier *recordingNotifier
}

// newFixture creates a governance service over the memory store with a
// fake clock, seeded users and token balances.
func newFixture(t *testing.T, adjust ...func(*governance.Params)) *fixture {
	t.Helper()
	params := governance.DefaultParams()
	for _, fn := range adjust {
		fn(&params)
	}
	f := &fixture{
		store:    store.NewMemoryStore(),
		users:    users.NewDirectory(),
		tokens:   token.NewSystem(),
		clock:    clockwork.NewFakeClock(),
		notifier: &recordingNotifier{},
	}
	f.users.Add(governance.User{ID: "admin", Level: 5, Admin: true})
	f.users.Add(governance.User{ID: "proposer", Level: 2})
	for _, id := range []string{"u1", "u2", "u3"} {
		f.users.Add(governance.User{ID: id, Level: 0})
		require.NoError(t, f.tokens.SetBalance(id, big.NewInt(100)))
	}
	f.service = governance.NewService(
		f.store,
		f.users,
		f.tokens,
		f.notifier,
		params,
		governance.WithClock(f.clock),
	)
	return f
}

func (f *fixture) createProposal(t *testing.T, req governance.CreateProposalRequest) *governance.Proposal {
	t.Helper()
	if req.ProposerID == "" {
		req.ProposerID = "proposer"
	}
	if req.Title == "" {
		req.Title = "Test Proposal"
	}
	if req.Type == "" {
		req.Type = governance.ProposalTypeGeneral
	}
	proposal, err := f.service.CreateProposal(context.Background(), req)
	require.NoError(t, err)
	return proposal
}

// passProposal closes the voting window and finalizes the proposal as
// passed.
func (f *fixture) passProposal(t *testing.T, proposalID string) {
	t.Helper()
	f.clock.Advance(8 * 24 * time.Hour)
	_, err := f.service.FinalizeProposal(context.Background(), proposalID, "admin", true)
	require.NoError(t, err)
}

func TestCreateProposal(t *testing.T) {
	ctx := context.Background()

	t.Run("Creates Active Proposal With Defaults", func(t *testing.T) {
		f := newFixture(t)
		proposal := f.createProposal(t, governance.CreateProposalRequest{
			Description: "improve the plaza",
		})
		assert.NotEmpty(t, proposal.ID)
		assert.Equal(t, governance.StatusActive, proposal.Status)
		assert.Equal(t, governance.VotingModeSimple, proposal.VotingMode)
		assert.Equal(t, 10.0, proposal.QuorumPercentage)
		assert.Equal(t, 24, proposal.ExecutionDelayHours)
		assert.Equal(t, f.clock.Now().UTC().Add(7*24*time.Hour), proposal.VotingEndsAt)
		assert.Equal(t, 0, proposal.VoterCount)
	})

	t.Run("Requires Minimum Reputation Level", func(t *testing.T) {
		f := newFixture(t)
		f.users.Add(governance.User{ID: "novice", Level: 1})
		_, err := f.service.CreateProposal(ctx, governance.CreateProposalRequest{
			ProposerID: "novice",
			Title:      "Nope",
			Type:       governance.ProposalTypeGeneral,
		})
		require.Error(t, err)
		assert.Equal(t, governance.KindPermissionDenied, governance.KindOf(err))
	})

	t.Run("Unknown Proposer", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.CreateProposal(ctx, governance.CreateProposalRequest{
			ProposerID: "ghost",
			Title:      "Nope",
			Type:       governance.ProposalTypeGeneral,
		})
		assert.ErrorIs(t, err, governance.ErrUserNotFound)
	})

	t.Run("Rejects Invalid Type", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.CreateProposal(ctx, governance.CreateProposalRequest{
			ProposerID: "proposer",
			Title:      "Nope",
			Type:       "banana",
		})
		require.Error(t, err)
		assert.Equal(t, governance.KindInvalidArgument, governance.KindOf(err))
	})

	t.Run("Budget Proposal Requires Positive Amount", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.CreateProposal(ctx, governance.CreateProposalRequest{
			ProposerID: "proposer",
			Title:      "Fund nothing",
			Type:       governance.ProposalTypeBudget,
		})
		require.Error(t, err)
		assert.Equal(t, governance.KindInvalidArgument, governance.KindOf(err))
	})

	t.Run("Duplicate Titles Allowed", func(t *testing.T) {
		f := newFixture(t)
		first := f.createProposal(t, governance.CreateProposalRequest{Title: "Same"})
		second := f.createProposal(t, governance.CreateProposalRequest{Title: "Same"})
		assert.NotEqual(t, first.ID, second.ID)
	})
}

func TestListProposals(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.createProposal(t, governance.CreateProposalRequest{Title: "A"})
	f.clock.Advance(time.Minute)
	f.createProposal(t, governance.CreateProposalRequest{
		Title:         "B",
		Type:          governance.ProposalTypeBudget,
		BudgetRequest: 100,
	})
	f.clock.Advance(time.Minute)
	f.createProposal(t, governance.CreateProposalRequest{Title: "C"})

	t.Run("Newest First With Total", func(t *testing.T) {
		page, total, err := f.service.ListProposals(ctx, governance.ProposalFilter{})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		require.Len(t, page, 3)
		assert.Equal(t, "C", page[0].Title)
		assert.Equal(t, "A", page[2].Title)
	})

	t.Run("Filter By Type", func(t *testing.T) {
		page, total, err := f.service.ListProposals(ctx, governance.ProposalFilter{
			Type: governance.ProposalTypeBudget,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, page, 1)
		assert.Equal(t, "B", page[0].Title)
	})

	t.Run("Pagination", func(t *testing.T) {
		page, total, err := f.service.ListProposals(ctx, governance.ProposalFilter{
			Skip:  1,
			Limit: 1,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		require.Len(t, page, 1)
		assert.Equal(t, "B", page[0].Title)
	})
}

func TestFinalizeProposal(t *testing.T) {
	ctx := context.Background()

	t.Run("Rejected While Voting Open", func(t *testing.T) {
		f := newFixture(t)
		proposal := f.createProposal(t, governance.CreateProposalRequest{})
		_, err := f.service.FinalizeProposal(ctx, proposal.ID, "admin", true)
		require.Error(t, err)
		assert.Equal(t, governance.KindInvalidState, governance.KindOf(err))
	})

	t.Run("Passes After Window Closes", func(t *testing.T) {
		f := newFixture(t)
		proposal := f.createProposal(t, governance.CreateProposalRequest{})
		f.clock.Advance(8 * 24 * time.Hour)
		updated, err := f.service.FinalizeProposal(ctx, proposal.ID, "admin", true)
		require.NoError(t, err)
		assert.Equal(t, governance.StatusPassed, updated.Status)
		require.NotNil(t, updated.PassedAt)
	})

	t.Run("Fails Proposal", func(t *testing.T) {
		f := newFixture(t)
		proposal := f.createProposal(t, governance.CreateProposalRequest{})
		f.clock.Advance(8 * 24 * time.Hour)
		updated, err := f.service.FinalizeProposal(ctx, proposal.ID, "admin", false)
		require.NoError(t, err)
		assert.Equal(t, governance.StatusFailed, updated.Status)
		assert.Nil(t, updated.PassedAt)
	})

	t.Run("Requires Admin", func(t *testing.T) {
		f := newFixture(t)
		proposal := f.createProposal(t, governance.CreateProposalRequest{})
		f.clock.Advance(8 * 24 * time.Hour)
		_, err := f.service.FinalizeProposal(ctx, proposal.ID, "u1", true)
		require.Error(t, err)
		assert.Equal(t, governance.KindPermissionDenied, governance.KindOf(err))
	})

	t.Run("No Rollback From Failed", func(t *testing.T) {
		f := newFixture(t)
		proposal := f.createProposal(t, governance.CreateProposalRequest{})
		f.clock.Advance(8 * 24 * time.Hour)
		_, err := f.service.FinalizeProposal(ctx, proposal.ID, "admin", false)
		require.NoError(t, err)
		_, err = f.service.FinalizeProposal(ctx, proposal.ID, "admin", true)
		require.Error(t, err)
		assert.Equal(t, governance.KindInvalidState, governance.KindOf(err))
	})
}

func TestExecuteProposal(t *testing.T) {
	ctx := context.Background()

	t.Run("Rejected While Active", func(t *testing.T) {
		f := newFixture(t)
		proposal := f.createProposal(t, governance.CreateProposalRequest{})
		_, err := f.service.ExecuteProposal(ctx, proposal.ID, "admin")
		require.Error(t, err)
		assert.Equal(t, governance.KindInvalidState, governance.KindOf(err))
	})

	t.Run("Execution Delay Enforced", func(t *testing.T) {
		f := newFixture(t)
		proposal := f.createProposal(t, governance.CreateProposalRequest{})
		f.passProposal(t, proposal.ID)
		_, err := f.service.ExecuteProposal(ctx, proposal.ID, "admin")
		require.Error(t, err)
		assert.Equal(t, governance.KindInvalidState, governance.KindOf(err))

		f.clock.Advance(25 * time.Hour)
		receipt, err := f.service.ExecuteProposal(ctx, proposal.ID, "admin")
		require.NoError(t, err)
		assert.Equal(t, proposal.ID, receipt.ProposalID)
	})

	t.Run("Quorum Not Enforced By Default", func(t *testing.T) {
		// Nobody votes: participation is 0%, quorum is 10%. Execute must
		// still succeed; making quorum binding is a deliberate config flip.
		f := newFixture(t)
		proposal := f.createProposal(t, governance.CreateProposalRequest{})
		f.passProposal(t, proposal.ID)
		f.clock.Advance(25 * time.Hour)
		_, err := f.service.ExecuteProposal(ctx, proposal.ID, "admin")
		require.NoError(t, err)

		detail, err := f.service.GetProposal(ctx, proposal.ID)
		require.NoError(t, err)
		assert.False(t, detail.Participation.QuorumReached)
		assert.Equal(t, governance.StatusExecuted, detail.Proposal.Status)
	})

	t.Run("Quorum Blocks When Enforced", func(t *testing.T) {
		f := newFixture(t, func(p *governance.Params) {
			p.QuorumEnforced = true
		})
		proposal := f.createProposal(t, governance.CreateProposalRequest{})
		f.passProposal(t, proposal.ID)
		f.clock.Advance(25 * time.Hour)
		_, err := f.service.ExecuteProposal(ctx, proposal.ID, "admin")
		require.Error(t, err)
		assert.Equal(t, governance.KindInvalidState, governance.KindOf(err))
	})

	t.Run("Budget Execution Allocates Treasury Funds", func(t *testing.T) {
		f := newFixture(t)
		proposal := f.createProposal(t, governance.CreateProposalRequest{
			Title:         "Fund the library",
			Type:          governance.ProposalTypeBudget,
			BudgetRequest: 500,
		})
		f.passProposal(t, proposal.ID)
		f.clock.Advance(25 * time.Hour)

		before, err := f.service.GetTreasuryBalance(ctx)
		require.NoError(t, err)

		receipt, err := f.service.ExecuteProposal(ctx, proposal.ID, "admin")
		require.NoError(t, err)
		assert.NotEmpty(t, receipt.AllocationID)
		assert.Equal(t, 500.0, receipt.AllocatedAmount)

		after, err := f.service.GetTreasuryBalance(ctx)
		require.NoError(t, err)
		assert.Equal(t, before.Treasury.Available-500, after.Treasury.Available)
		require.NotEmpty(t, after.Recent)
		assert.Equal(t, governance.AllocationCategoryExecution, after.Recent[0].Category)
		assert.Equal(t, 500.0, after.Recent[0].Amount)
		assert.Equal(t, proposal.ID, after.Recent[0].ProposalID)

		assert.Contains(t, f.notifier.Events(), "proposer:proposal_executed")
	})

	t.Run("Cannot Execute Twice", func(t *testing.T) {
		f := newFixture(t)
		proposal := f.createProposal(t, governance.CreateProposalRequest{})
		f.passProposal(t, proposal.ID)
		f.clock.Advance(25 * time.Hour)
		_, err := f.service.ExecuteProposal(ctx, proposal.ID, "admin")
		require.NoError(t, err)
		_, err = f.service.ExecuteProposal(ctx, proposal.ID, "admin")
		require.Error(t, err)
		assert.Equal(t, governance.KindInvalidState, governance.KindOf(err))
	})

	t.Run("Not Found", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.ExecuteProposal(ctx, "missing", "admin")
		assert.ErrorIs(t, err, governance.ErrProposalNotFound)
	})
}

func TestGetProposalParticipation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	proposal := f.createProposal(t, governance.CreateProposalRequest{
		QuorumPercentage: 40,
	})
	// 5 seeded users; two voting is 40% participation, exactly at quorum
	_, err := f.service.CastVote(ctx, proposal.ID, "u1", true)
	require.NoError(t, err)
	_, err = f.service.CastVote(ctx, proposal.ID, "u2", false)
	require.NoError(t, err)

	detail, err := f.service.GetProposal(ctx, proposal.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, detail.Participation.VoterCount)
	assert.Equal(t, int64(5), detail.Participation.TotalUsers)
	assert.InDelta(t, 40.0, detail.Participation.Percentage, 1e-9)
	assert.True(t, detail.Participation.QuorumReached)
	assert.Len(t, detail.Votes, 2)
}
