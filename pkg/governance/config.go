package governance

// Params represents the static governance configuration.
type Params struct {
	// MinProposalLevel is the minimum reputation level required to create
	// a proposal.
	MinProposalLevel int `json:"min_proposal_level" yaml:"minProposalLevel"`

	// DefaultVotingDays is used when a create request does not specify a
	// voting duration.
	DefaultVotingDays int `json:"default_voting_days" yaml:"defaultVotingDays"`

	// DefaultQuorumPercentage is the participation threshold applied to
	// proposals that do not specify their own.
	DefaultQuorumPercentage float64 `json:"default_quorum_percentage" yaml:"defaultQuorumPercentage"`

	// DefaultExecutionDelayHours is the cooling-off window between a
	// proposal passing and becoming executable.
	DefaultExecutionDelayHours int `json:"default_execution_delay_hours" yaml:"defaultExecutionDelayHours"`

	// LevelBonus is the per-reputation-level increment to voting power.
	LevelBonus float64 `json:"level_bonus" yaml:"levelBonus"`

	// DelegationBonus is the voting-power contribution of each active
	// delegation covering the proposal's category.
	DelegationBonus float64 `json:"delegation_bonus" yaml:"delegationBonus"`

	// QuorumEnforced gates Execute on quorum. Quorum is informational by
	// default; flipping this is a deliberate product decision.
	QuorumEnforced bool `json:"quorum_enforced" yaml:"quorumEnforced"`

	// TreasuryInitialBalance seeds the treasury singleton on first read.
	TreasuryInitialBalance float64 `json:"treasury_initial_balance" yaml:"treasuryInitialBalance"`

	// MaxListLimit caps the page size of proposal listings.
	MaxListLimit int `json:"max_list_limit" yaml:"maxListLimit"`
}

// DefaultParams returns the default governance configuration.
func DefaultParams() Params {
	return Params{
		MinProposalLevel:           2,
		DefaultVotingDays:          7,
		DefaultQuorumPercentage:    10,
		DefaultExecutionDelayHours: 24,
		LevelBonus:                 0.1,
		DelegationBonus:            0.5,
		QuorumEnforced:             false,
		TreasuryInitialBalance:     1_000_000,
		MaxListLimit:               100,
	}
}
