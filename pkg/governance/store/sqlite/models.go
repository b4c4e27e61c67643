package sqlite

import (
	"time"

	"github.com/realumlabs/realum-dao/pkg/governance"
)

// migrateModels is the list of models automigrated at startup.
var migrateModels = []any{
	&proposalModel{},
	&voteModel{},
	&quadraticVoteModel{},
	&delegationModel{},
	&treasuryModel{},
	&allocationModel{},
}

type proposalModel struct {
	ID                  string `gorm:"primaryKey;size:36"`
	ProposerID          string `gorm:"index;size:64;not null"`
	Title               string `gorm:"size:256;not null"`
	Description         string
	Type                string `gorm:"index;size:16;not null"`
	VotingMode          string `gorm:"size:16;not null"`
	BudgetRequest       float64
	QuorumPercentage    float64
	ExecutionDelayHours int
	Status              string `gorm:"index;size:16;not null"`
	CreatedAt           time.Time
	VotingEndsAt        time.Time
	PassedAt            *time.Time
	ExecutedAt          *time.Time
	ExecutedBy          string `gorm:"size:64"`
	VotesFor            int
	VotesAgainst        int
	PowerFor            float64
	PowerAgainst        float64
	VoterCount          int
	Voters              []string `gorm:"serializer:json"`
	QuadraticFor        int64
	QuadraticAgainst    int64
	Revision            int64 `gorm:"not null"`
}

func (proposalModel) TableName() string {
	return "proposals"
}

func proposalToModel(p *governance.Proposal) *proposalModel {
	voters := p.Voters
	if voters == nil {
		voters = []string{}
	}
	return &proposalModel{
		ID:                  p.ID,
		ProposerID:          p.ProposerID,
		Title:               p.Title,
		Description:         p.Description,
		Type:                string(p.Type),
		VotingMode:          string(p.VotingMode),
		BudgetRequest:       p.BudgetRequest,
		QuorumPercentage:    p.QuorumPercentage,
		ExecutionDelayHours: p.ExecutionDelayHours,
		Status:              string(p.Status),
		CreatedAt:           p.CreatedAt,
		VotingEndsAt:        p.VotingEndsAt,
		PassedAt:            p.PassedAt,
		ExecutedAt:          p.ExecutedAt,
		ExecutedBy:          p.ExecutedBy,
		VotesFor:            p.VotesFor,
		VotesAgainst:        p.VotesAgainst,
		PowerFor:            p.PowerFor,
		PowerAgainst:        p.PowerAgainst,
		VoterCount:          p.VoterCount,
		Voters:              voters,
		QuadraticFor:        p.QuadraticFor,
		QuadraticAgainst:    p.QuadraticAgainst,
		Revision:            p.Revision,
	}
}

func (m *proposalModel) toProposal() *governance.Proposal {
	voters := m.Voters
	if voters == nil {
		voters = []string{}
	}
	return &governance.Proposal{
		ID:                  m.ID,
		ProposerID:          m.ProposerID,
		Title:               m.Title,
		Description:         m.Description,
		Type:                governance.ProposalType(m.Type),
		VotingMode:          governance.VotingMode(m.VotingMode),
		BudgetRequest:       m.BudgetRequest,
		QuorumPercentage:    m.QuorumPercentage,
		ExecutionDelayHours: m.ExecutionDelayHours,
		Status:              governance.ProposalStatus(m.Status),
		CreatedAt:           m.CreatedAt,
		VotingEndsAt:        m.VotingEndsAt,
		PassedAt:            m.PassedAt,
		ExecutedAt:          m.ExecutedAt,
		ExecutedBy:          m.ExecutedBy,
		VotesFor:            m.VotesFor,
		VotesAgainst:        m.VotesAgainst,
		PowerFor:            m.PowerFor,
		PowerAgainst:        m.PowerAgainst,
		VoterCount:          m.VoterCount,
		Voters:              voters,
		QuadraticFor:        m.QuadraticFor,
		QuadraticAgainst:    m.QuadraticAgainst,
		Revision:            m.Revision,
	}
}

// voteModel enforces the at-most-one-vote invariant with a composite
// unique index on (proposal_id, user_id).
type voteModel struct {
	ID            uint     `gorm:"primaryKey"`
	ProposalID    string   `gorm:"uniqueIndex:idx_vote_unique,priority:1;size:36;not null"`
	UserID        string   `gorm:"uniqueIndex:idx_vote_unique,priority:2;size:64;not null"`
	Approve       bool     `gorm:"not null"`
	Power         float64  `gorm:"not null"`
	DelegatedFrom []string `gorm:"serializer:json"`
	CastAt        time.Time
}

func (voteModel) TableName() string {
	return "votes"
}

func voteToModel(v *governance.Vote) *voteModel {
	from := v.DelegatedFrom
	if from == nil {
		from = []string{}
	}
	return &voteModel{
		ProposalID:    v.ProposalID,
		UserID:        v.UserID,
		Approve:       v.Approve,
		Power:         v.Power,
		DelegatedFrom: from,
		CastAt:        v.CastAt,
	}
}

func (m *voteModel) toVote() *governance.Vote {
	return &governance.Vote{
		ProposalID:    m.ProposalID,
		UserID:        m.UserID,
		Approve:       m.Approve,
		Power:         m.Power,
		DelegatedFrom: m.DelegatedFrom,
		CastAt:        m.CastAt,
	}
}

type quadraticVoteModel struct {
	ID         uint   `gorm:"primaryKey"`
	ProposalID string `gorm:"uniqueIndex:idx_qvote_unique,priority:1;size:36;not null"`
	UserID     string `gorm:"uniqueIndex:idx_qvote_unique,priority:2;size:64;not null"`
	Votes      int64  `gorm:"not null"`
	Approve    bool   `gorm:"not null"`
	Cost       int64  `gorm:"not null"`
	CastAt     time.Time
}

func (quadraticVoteModel) TableName() string {
	return "quadratic_votes"
}

func quadraticVoteToModel(v *governance.QuadraticVote) *quadraticVoteModel {
	return &quadraticVoteModel{
		ProposalID: v.ProposalID,
		UserID:     v.UserID,
		Votes:      v.Votes,
		Approve:    v.Approve,
		Cost:       v.Cost,
		CastAt:     v.CastAt,
	}
}

func (m *quadraticVoteModel) toQuadraticVote() *governance.QuadraticVote {
	return &governance.QuadraticVote{
		ProposalID: m.ProposalID,
		UserID:     m.UserID,
		Votes:      m.Votes,
		Approve:    m.Approve,
		Cost:       m.Cost,
		CastAt:     m.CastAt,
	}
}

// delegationModel enforces the single-active-delegation invariant with a
// partial unique index over active rows.
type delegationModel struct {
	ID         string   `gorm:"primaryKey;size:36"`
	UserID     string   `gorm:"size:64;not null;index;index:idx_delegation_active,unique,where:active = 1"`
	DelegateTo string   `gorm:"index;size:64;not null"`
	Categories []string `gorm:"serializer:json"`
	ExpiresAt  *time.Time
	Active     bool `gorm:"index;not null"`
	CreatedAt  time.Time
	RevokedAt  *time.Time
}

func (delegationModel) TableName() string {
	return "delegations"
}

func delegationToModel(d *governance.Delegation) *delegationModel {
	categories := make([]string, 0, len(d.Categories))
	for _, c := range d.Categories {
		categories = append(categories, string(c))
	}
	return &delegationModel{
		ID:         d.ID,
		UserID:     d.UserID,
		DelegateTo: d.DelegateTo,
		Categories: categories,
		ExpiresAt:  d.ExpiresAt,
		Active:     d.Active,
		CreatedAt:  d.CreatedAt,
		RevokedAt:  d.RevokedAt,
	}
}

func (m *delegationModel) toDelegation() *governance.Delegation {
	categories := make([]governance.ProposalType, 0, len(m.Categories))
	for _, c := range m.Categories {
		categories = append(categories, governance.ProposalType(c))
	}
	return &governance.Delegation{
		ID:         m.ID,
		UserID:     m.UserID,
		DelegateTo: m.DelegateTo,
		Categories: categories,
		ExpiresAt:  m.ExpiresAt,
		Active:     m.Active,
		CreatedAt:  m.CreatedAt,
		RevokedAt:  m.RevokedAt,
	}
}

// treasuryModel is a singleton row; treasuryRowID is its fixed primary key.
const treasuryRowID = 1

type treasuryModel struct {
	ID           uint `gorm:"primaryKey"`
	TotalBalance float64
	Allocated    float64
	Available    float64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (treasuryModel) TableName() string {
	return "treasury"
}

func (m *treasuryModel) toTreasury() *governance.Treasury {
	return &governance.Treasury{
		TotalBalance: m.TotalBalance,
		Allocated:    m.Allocated,
		Available:    m.Available,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

type allocationModel struct {
	ID            string  `gorm:"primaryKey;size:36"`
	Category      string  `gorm:"index;size:64;not null"`
	Amount        float64 `gorm:"not null"`
	Description   string
	RecipientType string    `gorm:"size:32"`
	RecipientID   string    `gorm:"size:64"`
	AllocatedBy   string    `gorm:"size:64"`
	ProposalID    string    `gorm:"index;size:36"`
	AllocatedAt   time.Time `gorm:"index"`
}

func (allocationModel) TableName() string {
	return "allocations"
}

func allocationToModel(a *governance.Allocation) *allocationModel {
	return &allocationModel{
		ID:            a.ID,
		Category:      a.Category,
		Amount:        a.Amount,
		Description:   a.Description,
		RecipientType: a.RecipientType,
		RecipientID:   a.RecipientID,
		AllocatedBy:   a.AllocatedBy,
		ProposalID:    a.ProposalID,
		AllocatedAt:   a.AllocatedAt,
	}
}

func (m *allocationModel) toAllocation() *governance.Allocation {
	return &governance.Allocation{
		ID:            m.ID,
		Category:      m.Category,
		Amount:        m.Amount,
		Description:   m.Description,
		RecipientType: m.RecipientType,
		RecipientID:   m.RecipientID,
		AllocatedBy:   m.AllocatedBy,
		ProposalID:    m.ProposalID,
		AllocatedAt:   m.AllocatedAt,
	}
}
