// Package kvstore implements the projection store on a key-value backend.
// Entities are JSON-encoded under typed key prefixes; a transaction buffers
// its writes and commits them through the database's atomic batch, so a
// crash mid-event never leaves a log entry without its aggregate mutations.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"socialindex/events"
	"socialindex/projection"
	"socialindex/storage"
)

const (
	logPrefix        = "log/"
	accountPrefix    = "account/"
	groupPrefix      = "group/"
	memberPrefix     = "member/"
	proposalPrefix   = "proposal/"
	poolPrefix       = "pool/"
	allocationPrefix = "alloc/"
	permissionPrefix = "perm/"
	checkpointKey    = "meta/checkpoint"
)

// Store is a projection.Store over a storage.Database.
type Store struct {
	db storage.Database
	// Writes within one partition are strictly serial; the mutex keeps a
	// misconfigured caller from interleaving transactions.
	mu sync.Mutex
}

// New wraps an existing database.
func New(db storage.Database) *Store {
	return &Store{db: db}
}

// Open opens a persistent LevelDB-backed store at path.
func Open(path string) (*Store, error) {
	db, err := storage.NewLevelDB(path)
	if err != nil {
		return nil, fmt.Errorf("open leveldb store: %w", err)
	}
	return New(db), nil
}

// NewMemory returns a store over an in-memory database, used by tests and
// dry runs.
func NewMemory() *Store {
	return New(storage.NewMemDB())
}

// Apply runs fn against a buffered transaction and commits the buffered
// writes as one atomic batch.
func (s *Store) Apply(ctx context.Context, fn func(projection.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &kvTx{db: s.db, pending: make(map[string][]byte)}
	if err := fn(tx); err != nil {
		return err
	}
	if len(tx.order) == 0 {
		return nil
	}
	batch := make([]storage.BatchOp, 0, len(tx.order))
	for _, key := range tx.order {
		batch = append(batch, storage.BatchOp{Key: []byte(key), Value: tx.pending[key]})
	}
	if err := s.db.Write(batch); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Checkpoint returns the highest fully processed block height.
func (s *Store) Checkpoint(ctx context.Context) (uint64, error) {
	raw, err := s.db.Get([]byte(checkpointKey))
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read checkpoint: %w", err)
	}
	height, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse checkpoint: %w", err)
	}
	return height, nil
}

// SetCheckpoint records the highest fully processed block height.
func (s *Store) SetCheckpoint(ctx context.Context, height uint64) error {
	if err := s.db.Put([]byte(checkpointKey), []byte(strconv.FormatUint(height, 10))); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// kvTx buffers writes until commit. Reads observe the buffer first so a
// handler sees its own writes within the event.
type kvTx struct {
	db      storage.Database
	pending map[string][]byte
	order   []string
}

func (t *kvTx) get(key string) ([]byte, error) {
	if raw, ok := t.pending[key]; ok {
		return raw, nil
	}
	return t.db.Get([]byte(key))
}

func (t *kvTx) put(key string, value []byte) {
	if _, ok := t.pending[key]; !ok {
		t.order = append(t.order, key)
	}
	t.pending[key] = value
}

func getEntity[T any](t *kvTx, key string) (*T, error) {
	raw, err := t.get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &out, nil
}

func putEntity(t *kvTx, key string, entity any) error {
	raw, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	t.put(key, raw)
	return nil
}

func logKey(category events.Category, id string) string {
	return logPrefix + string(category) + "/" + id
}

func (t *kvTx) HasUpdate(category events.Category, id string) (bool, error) {
	_, err := t.get(logKey(category, id))
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", logKey(category, id), err)
	}
	return true, nil
}

func (t *kvTx) PutDataUpdate(u *projection.DataUpdate) error {
	return putEntity(t, logKey(events.CategoryData, u.ID), u)
}

func (t *kvTx) PutStorageUpdate(u *projection.StorageUpdate) error {
	return putEntity(t, logKey(events.CategoryStorage, u.ID), u)
}

func (t *kvTx) PutGroupUpdate(u *projection.GroupUpdate) error {
	return putEntity(t, logKey(events.CategoryGroup, u.ID), u)
}

func (t *kvTx) PutPermissionUpdate(u *projection.PermissionUpdate) error {
	return putEntity(t, logKey(events.CategoryPermission, u.ID), u)
}

func (t *kvTx) PutContractUpdate(u *projection.ContractUpdate) error {
	return putEntity(t, logKey(events.CategoryContract, u.ID), u)
}

func (t *kvTx) GetAccount(accountID string) (*projection.Account, error) {
	return getEntity[projection.Account](t, accountPrefix+accountID)
}

func (t *kvTx) PutAccount(a *projection.Account) error {
	return putEntity(t, accountPrefix+a.AccountID, a)
}

func (t *kvTx) GetGroup(groupID string) (*projection.Group, error) {
	return getEntity[projection.Group](t, groupPrefix+groupID)
}

func (t *kvTx) PutGroup(g *projection.Group) error {
	return putEntity(t, groupPrefix+g.GroupID, g)
}

func (t *kvTx) GetGroupMember(groupID, memberID string) (*projection.GroupMember, error) {
	return getEntity[projection.GroupMember](t, memberPrefix+groupID+"/"+memberID)
}

func (t *kvTx) PutGroupMember(m *projection.GroupMember) error {
	return putEntity(t, memberPrefix+m.GroupID+"/"+m.MemberID, m)
}

func (t *kvTx) GetProposal(groupID, proposalID string) (*projection.Proposal, error) {
	return getEntity[projection.Proposal](t, proposalPrefix+groupID+"/"+proposalID)
}

func (t *kvTx) PutProposal(p *projection.Proposal) error {
	return putEntity(t, proposalPrefix+p.GroupID+"/"+p.ProposalID, p)
}

func (t *kvTx) GetStoragePool(poolKey string) (*projection.StoragePool, error) {
	return getEntity[projection.StoragePool](t, poolPrefix+poolKey)
}

func (t *kvTx) PutStoragePool(p *projection.StoragePool) error {
	return putEntity(t, poolPrefix+p.PoolKey, p)
}

func (t *kvTx) GetSharedAllocation(poolID, targetID string) (*projection.SharedStorageAllocation, error) {
	return getEntity[projection.SharedStorageAllocation](t, allocationPrefix+poolID+"/"+targetID)
}

func (t *kvTx) PutSharedAllocation(a *projection.SharedStorageAllocation) error {
	return putEntity(t, allocationPrefix+a.PoolID+"/"+a.TargetID, a)
}

func (t *kvTx) GetPermissionGrant(granter, grantee, path string) (*projection.PermissionGrant, error) {
	return getEntity[projection.PermissionGrant](t, permissionPrefix+granter+"/"+grantee+"/"+path)
}

func (t *kvTx) PutPermissionGrant(g *projection.PermissionGrant) error {
	return putEntity(t, permissionPrefix+g.Granter+"/"+g.Grantee+"/"+g.Path, g)
}
