package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realumlabs/realum-dao/pkg/governance"
	"github.com/realumlabs/realum-dao/pkg/governance/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	// A file-backed database per test; the shared-cache in-memory DSN would
	// leak state between tests.
	s, err := sqlite.New(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})
	return s
}

func testProposal(id string, createdAt time.Time) *governance.Proposal {
	return &governance.Proposal{
		ID:           id,
		ProposerID:   "proposer",
		Title:        "Proposal " + id,
		Description:  "a test proposal",
		Type:         governance.ProposalTypeGeneral,
		VotingMode:   governance.VotingModeSimple,
		Status:       governance.StatusActive,
		CreatedAt:    createdAt,
		VotingEndsAt: createdAt.Add(7 * 24 * time.Hour),
	}
}

func TestSqliteProposals(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("Roundtrip", func(t *testing.T) {
		s := newStore(t)
		passedAt := base.Add(time.Hour)
		p := testProposal("p1", base)
		p.Status = governance.StatusPassed
		p.PassedAt = &passedAt
		p.Voters = []string{"u1", "u2"}
		p.VoterCount = 2
		p.VotesFor = 2
		p.PowerFor = 2.5
		require.NoError(t, s.SaveProposal(ctx, p))

		got, err := s.GetProposal(ctx, "p1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, p.Title, got.Title)
		assert.Equal(t, governance.StatusPassed, got.Status)
		assert.Equal(t, []string{"u1", "u2"}, got.Voters)
		assert.Equal(t, 2.5, got.PowerFor)
		require.NotNil(t, got.PassedAt)
		assert.True(t, got.PassedAt.Equal(passedAt))
		assert.True(t, got.VotingEndsAt.Equal(p.VotingEndsAt))
	})

	t.Run("Missing Returns Nil", func(t *testing.T) {
		s := newStore(t)
		got, err := s.GetProposal(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Revision Checked Update", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.SaveProposal(ctx, testProposal("p1", base)))

		first, err := s.GetProposal(ctx, "p1")
		require.NoError(t, err)
		stale, err := s.GetProposal(ctx, "p1")
		require.NoError(t, err)

		first.VotesFor = 1
		require.NoError(t, s.UpdateProposal(ctx, first))
		assert.Equal(t, int64(1), first.Revision)

		stale.VotesAgainst = 1
		err = s.UpdateProposal(ctx, stale)
		assert.ErrorIs(t, err, governance.ErrRevisionMismatch)

		err = s.UpdateProposal(ctx, testProposal("ghost", base))
		assert.ErrorIs(t, err, governance.ErrProposalNotFound)
	})

	t.Run("List Filters And Pagination", func(t *testing.T) {
		s := newStore(t)
		a := testProposal("a", base)
		b := testProposal("b", base.Add(time.Hour))
		b.Type = governance.ProposalTypeBudget
		c := testProposal("c", base.Add(2*time.Hour))
		c.Status = governance.StatusFailed
		for _, p := range []*governance.Proposal{a, b, c} {
			require.NoError(t, s.SaveProposal(ctx, p))
		}

		page, total, err := s.ListProposals(ctx, governance.ProposalFilter{})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		require.Len(t, page, 3)
		assert.Equal(t, "c", page[0].ID)

		page, total, err = s.ListProposals(ctx, governance.ProposalFilter{
			Status: governance.StatusActive,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		require.Len(t, page, 2)
		assert.Equal(t, "b", page[0].ID)

		page, total, err = s.ListProposals(ctx, governance.ProposalFilter{
			Skip:  1,
			Limit: 1,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		require.Len(t, page, 1)
		assert.Equal(t, "b", page[0].ID)
	})

	t.Run("Survives Reopen", func(t *testing.T) {
		dataDir := t.TempDir()
		s, err := sqlite.New(dataDir, nil)
		require.NoError(t, err)
		require.NoError(t, s.SaveProposal(ctx, testProposal("p1", base)))
		require.NoError(t, s.Close())

		reopened, err := sqlite.New(dataDir, nil)
		require.NoError(t, err)
		defer reopened.Close() //nolint:errcheck
		got, err := reopened.GetProposal(ctx, "p1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "Proposal p1", got.Title)
	})
}

func TestSqliteVotes(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("Unique Index Rejects Duplicates", func(t *testing.T) {
		s := newStore(t)
		vote := &governance.Vote{
			ProposalID:    "p1",
			UserID:        "u1",
			Approve:       true,
			Power:         1.5,
			DelegatedFrom: []string{"u2"},
			CastAt:        base,
		}
		require.NoError(t, s.SaveVote(ctx, vote))
		err := s.SaveVote(ctx, &governance.Vote{ProposalID: "p1", UserID: "u1", CastAt: base})
		assert.ErrorIs(t, err, governance.ErrAlreadyVoted)
		require.NoError(t, s.SaveVote(ctx, &governance.Vote{ProposalID: "p2", UserID: "u1", CastAt: base}))

		votes, err := s.VotesByProposal(ctx, "p1")
		require.NoError(t, err)
		require.Len(t, votes, 1)
		assert.Equal(t, 1.5, votes[0].Power)
		assert.Equal(t, []string{"u2"}, votes[0].DelegatedFrom)
	})

	t.Run("Quadratic Unique Index", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.SaveQuadraticVote(ctx, &governance.QuadraticVote{
			ProposalID: "p1",
			UserID:     "u1",
			Votes:      4,
			Cost:       16,
			Approve:    true,
			CastAt:     base,
		}))
		err := s.SaveQuadraticVote(ctx, &governance.QuadraticVote{ProposalID: "p1", UserID: "u1", CastAt: base})
		assert.ErrorIs(t, err, governance.ErrAlreadyVoted)

		got, err := s.GetQuadraticVote(ctx, "p1", "u1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, int64(16), got.Cost)

		got, err = s.GetQuadraticVote(ctx, "p1", "nobody")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestSqliteDelegations(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("Roundtrip With Categories And Expiry", func(t *testing.T) {
		s := newStore(t)
		expiry := base.Add(24 * time.Hour)
		d := &governance.Delegation{
			ID:         "d1",
			UserID:     "u1",
			DelegateTo: "u2",
			Categories: []governance.ProposalType{governance.ProposalTypeBudget},
			ExpiresAt:  &expiry,
			Active:     true,
			CreatedAt:  base,
		}
		require.NoError(t, s.SaveDelegation(ctx, d))

		got, err := s.ActiveDelegationBy(ctx, "u1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, []governance.ProposalType{governance.ProposalTypeBudget}, got.Categories)
		require.NotNil(t, got.ExpiresAt)
		assert.True(t, got.ExpiresAt.Equal(expiry))
	})

	t.Run("Deactivation Removes From Active Queries", func(t *testing.T) {
		s := newStore(t)
		d := &governance.Delegation{ID: "d1", UserID: "u1", DelegateTo: "u2", Active: true, CreatedAt: base}
		require.NoError(t, s.SaveDelegation(ctx, d))

		now := base.Add(time.Hour)
		d.Active = false
		d.RevokedAt = &now
		require.NoError(t, s.UpdateDelegation(ctx, d))

		got, err := s.ActiveDelegationBy(ctx, "u1")
		require.NoError(t, err)
		assert.Nil(t, got)
		incoming, err := s.ActiveDelegationsTo(ctx, "u2")
		require.NoError(t, err)
		assert.Empty(t, incoming)
	})

	t.Run("Update Missing", func(t *testing.T) {
		s := newStore(t)
		err := s.UpdateDelegation(ctx, &governance.Delegation{ID: "ghost"})
		assert.ErrorIs(t, err, governance.ErrDelegationNotFound)
	})

	t.Run("Partial Unique Index Rejects Second Active", func(t *testing.T) {
		s := newStore(t)
		first := &governance.Delegation{ID: "d1", UserID: "u1", DelegateTo: "u2", Active: true, CreatedAt: base}
		require.NoError(t, s.SaveDelegation(ctx, first))

		err := s.SaveDelegation(ctx, &governance.Delegation{ID: "d2", UserID: "u1", DelegateTo: "u3", Active: true, CreatedAt: base})
		assert.ErrorIs(t, err, governance.ErrActiveDelegationExists)

		// Revoked rows are outside the index, so history accumulates
		require.NoError(t, s.SaveDelegation(ctx, &governance.Delegation{ID: "d3", UserID: "u1", DelegateTo: "u3", Active: false, CreatedAt: base}))

		first.Active = false
		require.NoError(t, s.UpdateDelegation(ctx, first))
		require.NoError(t, s.SaveDelegation(ctx, &governance.Delegation{ID: "d4", UserID: "u1", DelegateTo: "u3", Active: true, CreatedAt: base}))
	})
}

func TestSqliteTreasury(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seed := &governance.Treasury{
		TotalBalance: 1000,
		Available:    1000,
		CreatedAt:    base,
		UpdatedAt:    base,
	}

	t.Run("Init Is Idempotent", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.InitTreasury(ctx, seed))
		require.NoError(t, s.InitTreasury(ctx, &governance.Treasury{TotalBalance: 5, Available: 5}))

		got, err := s.GetTreasury(ctx)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, 1000.0, got.TotalBalance)
	})

	t.Run("Conditional Reserve", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.InitTreasury(ctx, seed))

		treasury, err := s.ReserveTreasuryFunds(ctx, 700)
		require.NoError(t, err)
		assert.Equal(t, 300.0, treasury.Available)
		assert.Equal(t, 700.0, treasury.Allocated)

		_, err = s.ReserveTreasuryFunds(ctx, 301)
		assert.ErrorIs(t, err, governance.ErrInsufficientTreasury)

		got, err := s.GetTreasury(ctx)
		require.NoError(t, err)
		assert.Equal(t, 300.0, got.Available)
	})

	t.Run("Allocation Aggregation", func(t *testing.T) {
		s := newStore(t)
		allocs := []*governance.Allocation{
			{ID: "a1", Category: "events", Amount: 100, AllocatedAt: base},
			{ID: "a2", Category: "grants", Amount: 200, AllocatedAt: base.Add(time.Minute)},
			{ID: "a3", Category: "events", Amount: 50, AllocatedAt: base.Add(2 * time.Minute)},
		}
		for _, a := range allocs {
			require.NoError(t, s.SaveAllocation(ctx, a))
		}

		recent, err := s.RecentAllocations(ctx, 2)
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.Equal(t, "a3", recent[0].ID)
		assert.Equal(t, "a2", recent[1].ID)

		totals, err := s.AllocationTotalsByCategory(ctx)
		require.NoError(t, err)
		assert.Equal(t, 150.0, totals["events"])
		assert.Equal(t, 200.0, totals["grants"])
	})
}
