// Package sqlstore implements the projection store on a relational backend
// through GORM: embedded sqlite for tests and small deployments, PostgreSQL
// for production. Handlers never see SQL; both this backend and the
// key-value one satisfy the same capability interface, which is what keeps
// their results field-equivalent for the same input stream.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"socialindex/events"
	"socialindex/projection"
)

// checkpoint is the single-row ingestion watermark.
type checkpoint struct {
	ID     uint   `gorm:"primaryKey"`
	Height uint64 `gorm:"not null"`
}

// Store is a projection.Store over a relational database.
type Store struct {
	db *gorm.DB
}

// Open connects to the database and migrates the schema. A DSN starting
// with "postgres://" (or containing "host=") selects PostgreSQL; anything
// else is treated as a sqlite path, including ":memory:".
func Open(dsn string) (*Store, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, errors.New("sqlstore dsn required")
	}
	var dialector gorm.Dialector
	if strings.HasPrefix(trimmed, "postgres://") || strings.Contains(trimmed, "host=") {
		dialector = postgres.Open(trimmed)
	} else {
		dialector = sqlite.Open(trimmed)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(
		&projection.DataUpdate{},
		&projection.StorageUpdate{},
		&projection.GroupUpdate{},
		&projection.PermissionUpdate{},
		&projection.ContractUpdate{},
		&projection.Account{},
		&projection.Group{},
		&projection.GroupMember{},
		&projection.Proposal{},
		&projection.StoragePool{},
		&projection.SharedStorageAllocation{},
		&projection.PermissionGrant{},
		&checkpoint{},
	); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Apply runs fn inside one database transaction.
func (s *Store) Apply(ctx context.Context, fn func(projection.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&sqlTx{db: tx})
	})
}

// Checkpoint returns the highest fully processed block height.
func (s *Store) Checkpoint(ctx context.Context) (uint64, error) {
	var row checkpoint
	err := s.db.WithContext(ctx).First(&row, 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read checkpoint: %w", err)
	}
	return row.Height, nil
}

// SetCheckpoint records the highest fully processed block height.
func (s *Store) SetCheckpoint(ctx context.Context, height uint64) error {
	row := checkpoint{ID: 1, Height: height}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// sqlTx adapts one gorm transaction to the projection.Tx capability set.
type sqlTx struct {
	db *gorm.DB
}

func (t *sqlTx) upsert(entity any) error {
	return t.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(entity).Error
}

// first loads into dest and maps gorm's not-found onto the (found, err)
// convention the projection layer expects.
func (t *sqlTx) first(dest any, conds ...any) (bool, error) {
	err := t.db.First(dest, conds...).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (t *sqlTx) HasUpdate(category events.Category, id string) (bool, error) {
	var count int64
	var model any
	switch category {
	case events.CategoryData:
		model = &projection.DataUpdate{}
	case events.CategoryStorage:
		model = &projection.StorageUpdate{}
	case events.CategoryGroup:
		model = &projection.GroupUpdate{}
	case events.CategoryPermission:
		model = &projection.PermissionUpdate{}
	case events.CategoryContract:
		model = &projection.ContractUpdate{}
	default:
		return false, fmt.Errorf("unknown category %q", category)
	}
	if err := t.db.Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, fmt.Errorf("count log entry: %w", err)
	}
	return count > 0, nil
}

func (t *sqlTx) PutDataUpdate(u *projection.DataUpdate) error       { return t.upsert(u) }
func (t *sqlTx) PutStorageUpdate(u *projection.StorageUpdate) error { return t.upsert(u) }
func (t *sqlTx) PutGroupUpdate(u *projection.GroupUpdate) error     { return t.upsert(u) }
func (t *sqlTx) PutPermissionUpdate(u *projection.PermissionUpdate) error {
	return t.upsert(u)
}
func (t *sqlTx) PutContractUpdate(u *projection.ContractUpdate) error { return t.upsert(u) }

func (t *sqlTx) GetAccount(accountID string) (*projection.Account, error) {
	var acct projection.Account
	found, err := t.first(&acct, "account_id = ?", accountID)
	if err != nil || !found {
		return nil, err
	}
	return &acct, nil
}

func (t *sqlTx) PutAccount(a *projection.Account) error { return t.upsert(a) }

func (t *sqlTx) GetGroup(groupID string) (*projection.Group, error) {
	var group projection.Group
	found, err := t.first(&group, "group_id = ?", groupID)
	if err != nil || !found {
		return nil, err
	}
	return &group, nil
}

func (t *sqlTx) PutGroup(g *projection.Group) error { return t.upsert(g) }

func (t *sqlTx) GetGroupMember(groupID, memberID string) (*projection.GroupMember, error) {
	var member projection.GroupMember
	found, err := t.first(&member, "group_id = ? AND member_id = ?", groupID, memberID)
	if err != nil || !found {
		return nil, err
	}
	return &member, nil
}

func (t *sqlTx) PutGroupMember(m *projection.GroupMember) error { return t.upsert(m) }

func (t *sqlTx) GetProposal(groupID, proposalID string) (*projection.Proposal, error) {
	var proposal projection.Proposal
	found, err := t.first(&proposal, "group_id = ? AND proposal_id = ?", groupID, proposalID)
	if err != nil || !found {
		return nil, err
	}
	return &proposal, nil
}

func (t *sqlTx) PutProposal(p *projection.Proposal) error { return t.upsert(p) }

func (t *sqlTx) GetStoragePool(poolKey string) (*projection.StoragePool, error) {
	var pool projection.StoragePool
	found, err := t.first(&pool, "pool_key = ?", poolKey)
	if err != nil || !found {
		return nil, err
	}
	return &pool, nil
}

func (t *sqlTx) PutStoragePool(p *projection.StoragePool) error { return t.upsert(p) }

func (t *sqlTx) GetSharedAllocation(poolID, targetID string) (*projection.SharedStorageAllocation, error) {
	var alloc projection.SharedStorageAllocation
	found, err := t.first(&alloc, "pool_id = ? AND target_id = ?", poolID, targetID)
	if err != nil || !found {
		return nil, err
	}
	return &alloc, nil
}

func (t *sqlTx) PutSharedAllocation(a *projection.SharedStorageAllocation) error {
	return t.upsert(a)
}

func (t *sqlTx) GetPermissionGrant(granter, grantee, path string) (*projection.PermissionGrant, error) {
	var grant projection.PermissionGrant
	found, err := t.first(&grant, "granter = ? AND grantee = ? AND path = ?", granter, grantee, path)
	if err != nil || !found {
		return nil, err
	}
	return &grant, nil
}

func (t *sqlTx) PutPermissionGrant(g *projection.PermissionGrant) error { return t.upsert(g) }
