// Package sqlite provides the persistent, SQLite-backed implementation of
// the governance Store.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/realumlabs/realum-dao/pkg/governance"
)

// Store is a SQLite-backed implementation of governance.Store. The
// invariants the service depends on live here as schema constraints and
// conditional updates: vote uniqueness per (proposal, user), revision
// checks on proposal updates, and the treasury reservation.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// New creates a SQLite store under dataDir. An empty dataDir opens an
// in-memory database, useful for testing and dev mode.
func New(dataDir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		// Discard logs rather than guarding every log call
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	var dsn string
	if dataDir == "" {
		// cache=shared lets multiple connections see the same in-memory database
		dsn = "file::memory:?cache=shared"
	} else {
		if _, err := os.Stat(dataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read data dir: %w", err)
			}
			if err := os.MkdirAll(dataDir, fs.ModePerm); err != nil {
				return nil, fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		dbPath := filepath.Join(dataDir, "governance.sqlite")
		// WAL journal mode and relaxed sync for write throughput
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=sync(OFF)", dbPath)
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	s := &Store{
		db:     db,
		logger: logger,
	}
	for _, model := range migrateModels {
		s.logger.Debug(fmt.Sprintf("creating table: %#v", model))
		if err := db.AutoMigrate(model); err != nil {
			return nil, fmt.Errorf("migrate %T: %w", model, err)
		}
	}
	return s, nil
}

func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// SaveProposal persists a new proposal.
func (s *Store) SaveProposal(ctx context.Context, p *governance.Proposal) error {
	result := s.db.WithContext(ctx).Create(proposalToModel(p))
	return result.Error
}

// UpdateProposal applies a revision-checked update: the row is only
// written when the stored revision matches, and the revision advances with
// the write. A concurrent writer losing the race gets ErrRevisionMismatch.
func (s *Store) UpdateProposal(ctx context.Context, p *governance.Proposal) error {
	model := proposalToModel(p)
	model.Revision = p.Revision + 1
	result := s.db.WithContext(ctx).
		Model(&proposalModel{}).
		Where("id = ? AND revision = ?", p.ID, p.Revision).
		Select("*").
		Updates(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).
			Model(&proposalModel{}).
			Where("id = ?", p.ID).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return governance.ErrProposalNotFound
		}
		return governance.ErrRevisionMismatch
	}
	p.Revision = model.Revision
	return nil
}

// GetProposal returns (nil, nil) when the proposal does not exist.
func (s *Store) GetProposal(ctx context.Context, id string) (*governance.Proposal, error) {
	var model proposalModel
	result := s.db.WithContext(ctx).Where("id = ?", id).First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return model.toProposal(), nil
}

// ListProposals returns one page of proposals, newest first, plus the
// total count matching the filter.
func (s *Store) ListProposals(ctx context.Context, f governance.ProposalFilter) ([]*governance.Proposal, int64, error) {
	query := s.db.WithContext(ctx).Model(&proposalModel{})
	if f.Status != "" {
		query = query.Where("status = ?", string(f.Status))
	}
	if f.Type != "" {
		query = query.Where("type = ?", string(f.Type))
	}
	if f.ProposerID != "" {
		query = query.Where("proposer_id = ?", f.ProposerID)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	limit := f.Limit
	if limit <= 0 {
		// LIMIT -1 is SQLite for unlimited; required when OFFSET is present
		limit = -1
	}
	var models []proposalModel
	result := query.
		Order("created_at DESC").
		Offset(f.Skip).
		Limit(limit).
		Find(&models)
	if result.Error != nil {
		return nil, 0, result.Error
	}
	proposals := make([]*governance.Proposal, 0, len(models))
	for i := range models {
		proposals = append(proposals, models[i].toProposal())
	}
	return proposals, total, nil
}

// SaveVote records a vote; the unique index on (proposal_id, user_id)
// rejects duplicates.
func (s *Store) SaveVote(ctx context.Context, v *governance.Vote) error {
	result := s.db.WithContext(ctx).Create(voteToModel(v))
	if result.Error != nil {
		if isDuplicate(result.Error) {
			return governance.ErrAlreadyVoted
		}
		return result.Error
	}
	return nil
}

// VotesByProposal lists the votes on a proposal, oldest first.
func (s *Store) VotesByProposal(ctx context.Context, proposalID string) ([]*governance.Vote, error) {
	var models []voteModel
	result := s.db.WithContext(ctx).
		Where("proposal_id = ?", proposalID).
		Order("cast_at ASC").
		Find(&models)
	if result.Error != nil {
		return nil, result.Error
	}
	votes := make([]*governance.Vote, 0, len(models))
	for i := range models {
		votes = append(votes, models[i].toVote())
	}
	return votes, nil
}

// SaveQuadraticVote records a quadratic vote; duplicates are rejected by
// the unique index.
func (s *Store) SaveQuadraticVote(ctx context.Context, v *governance.QuadraticVote) error {
	result := s.db.WithContext(ctx).Create(quadraticVoteToModel(v))
	if result.Error != nil {
		if isDuplicate(result.Error) {
			return governance.ErrAlreadyVoted
		}
		return result.Error
	}
	return nil
}

// GetQuadraticVote returns (nil, nil) when the user has not cast one.
func (s *Store) GetQuadraticVote(ctx context.Context, proposalID, userID string) (*governance.QuadraticVote, error) {
	var model quadraticVoteModel
	result := s.db.WithContext(ctx).
		Where("proposal_id = ? AND user_id = ?", proposalID, userID).
		First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return model.toQuadraticVote(), nil
}

// QuadraticVotesByProposal lists the quadratic votes on a proposal.
func (s *Store) QuadraticVotesByProposal(ctx context.Context, proposalID string) ([]*governance.QuadraticVote, error) {
	var models []quadraticVoteModel
	result := s.db.WithContext(ctx).
		Where("proposal_id = ?", proposalID).
		Order("cast_at ASC").
		Find(&models)
	if result.Error != nil {
		return nil, result.Error
	}
	votes := make([]*governance.QuadraticVote, 0, len(models))
	for i := range models {
		votes = append(votes, models[i].toQuadraticVote())
	}
	return votes, nil
}

// SaveDelegation persists a new delegation; the partial unique index over
// active rows rejects a second active delegation by the same user.
func (s *Store) SaveDelegation(ctx context.Context, d *governance.Delegation) error {
	result := s.db.WithContext(ctx).Create(delegationToModel(d))
	if result.Error != nil {
		if isDuplicate(result.Error) {
			return governance.ErrActiveDelegationExists
		}
		return result.Error
	}
	return nil
}

// UpdateDelegation overwrites an existing delegation.
func (s *Store) UpdateDelegation(ctx context.Context, d *governance.Delegation) error {
	result := s.db.WithContext(ctx).
		Model(&delegationModel{}).
		Where("id = ?", d.ID).
		Select("*").
		Updates(delegationToModel(d))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return governance.ErrDelegationNotFound
	}
	return nil
}

// ActiveDelegationBy returns the user's active outgoing delegation, or
// (nil, nil) if none.
func (s *Store) ActiveDelegationBy(ctx context.Context, userID string) (*governance.Delegation, error) {
	var model delegationModel
	result := s.db.WithContext(ctx).
		Where("user_id = ? AND active = ?", userID, true).
		First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return model.toDelegation(), nil
}

// ActiveDelegationsTo returns the active delegations pointing at a delegate.
func (s *Store) ActiveDelegationsTo(ctx context.Context, delegateID string) ([]*governance.Delegation, error) {
	var models []delegationModel
	result := s.db.WithContext(ctx).
		Where("delegate_to = ? AND active = ?", delegateID, true).
		Order("created_at ASC").
		Find(&models)
	if result.Error != nil {
		return nil, result.Error
	}
	delegations := make([]*governance.Delegation, 0, len(models))
	for i := range models {
		delegations = append(delegations, models[i].toDelegation())
	}
	return delegations, nil
}

// InitTreasury creates the treasury singleton row if absent. Concurrent
// initializations collapse into one row via ON CONFLICT DO NOTHING.
func (s *Store) InitTreasury(ctx context.Context, t *governance.Treasury) error {
	model := &treasuryModel{
		ID:           treasuryRowID,
		TotalBalance: t.TotalBalance,
		Allocated:    t.Allocated,
		Available:    t.Available,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(model).Error
}

// GetTreasury returns (nil, nil) before initialization.
func (s *Store) GetTreasury(ctx context.Context) (*governance.Treasury, error) {
	var model treasuryModel
	result := s.db.WithContext(ctx).Where("id = ?", treasuryRowID).First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return model.toTreasury(), nil
}

// ReserveTreasuryFunds moves amount from available to allocated in a
// single conditional update, so concurrent allocations cannot drive
// available negative.
func (s *Store) ReserveTreasuryFunds(ctx context.Context, amount float64) (*governance.Treasury, error) {
	result := s.db.WithContext(ctx).
		Model(&treasuryModel{}).
		Where("id = ? AND available >= ?", treasuryRowID, amount).
		Updates(map[string]any{
			"allocated":  gorm.Expr("allocated + ?", amount),
			"available":  gorm.Expr("available - ?", amount),
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, governance.ErrInsufficientTreasury
	}
	return s.GetTreasury(ctx)
}

// SaveAllocation appends an allocation record.
func (s *Store) SaveAllocation(ctx context.Context, a *governance.Allocation) error {
	return s.db.WithContext(ctx).Create(allocationToModel(a)).Error
}

// RecentAllocations returns up to limit allocations, newest first.
func (s *Store) RecentAllocations(ctx context.Context, limit int) ([]*governance.Allocation, error) {
	var models []allocationModel
	result := s.db.WithContext(ctx).
		Order("allocated_at DESC").
		Limit(limit).
		Find(&models)
	if result.Error != nil {
		return nil, result.Error
	}
	allocations := make([]*governance.Allocation, 0, len(models))
	for i := range models {
		allocations = append(allocations, models[i].toAllocation())
	}
	return allocations, nil
}

// AllocationTotalsByCategory aggregates allocation amounts per category.
func (s *Store) AllocationTotalsByCategory(ctx context.Context) (map[string]float64, error) {
	var rows []struct {
		Category string
		Total    float64
	}
	result := s.db.WithContext(ctx).
		Model(&allocationModel{}).
		Select("category, SUM(amount) AS total").
		Group("category").
		Scan(&rows)
	if result.Error != nil {
		return nil, result.Error
	}
	totals := make(map[string]float64, len(rows))
	for _, row := range rows {
		totals[row.Category] = row.Total
	}
	return totals, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
