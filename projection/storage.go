package projection

import (
	"fmt"
	"strings"

	"socialindex/events"
)

// Storage operations with dedicated aggregate behaviour. Anything else in
// the category still produces a StorageUpdate and the account counter bump.
const (
	opDeposit       = "deposit"
	opWithdraw      = "withdraw"
	opShareStorage  = "share_storage"
	opReturnStorage = "return_storage"
)

const platformPoolKey = "platform"

// classifyPool derives the pool type from the pool key shape. The platform
// pool has a fixed key; shared pools carry a "shared" prefix; everything
// else belongs to a group.
func classifyPool(poolKey string) PoolType {
	switch {
	case poolKey == platformPoolKey:
		return PoolTypePlatform
	case strings.HasPrefix(poolKey, "shared"):
		return PoolTypeShared
	default:
		return PoolTypeGroup
	}
}

// applyStorage projects storage and quota events: the account's storage
// counters, pool snapshots, and shared-storage allocations.
func (e *Engine) applyStorage(tx Tx, env *events.Envelope, replayed bool) error {
	fields := env.Fields
	// Either field alone must still yield a pool snapshot, so each falls
	// back to the other.
	poolKey := fields.String("pool_key")
	poolID := fields.String("pool_id")
	if poolID == "" {
		poolID = poolKey
	}
	if poolKey == "" {
		poolKey = poolID
	}

	upd := &StorageUpdate{
		EventMeta:   meta(env),
		Amount:      fields.String("amount"),
		NewBalance:  fields.String("new_balance"),
		PoolKey:     poolKey,
		PoolID:      poolID,
		TargetID:    fields.String("target_id"),
		MaxBytes:    fields.Uint64("max_bytes"),
		SharedBytes: fields.Uint64("shared_bytes"),
		UsedBytes:   fields.Uint64("used_bytes"),
	}
	if err := tx.PutStorageUpdate(upd); err != nil {
		return fmt.Errorf("put storage update: %w", err)
	}
	if replayed {
		return nil
	}

	ts := env.BlockTimestamp
	acct, err := fetchAccount(tx, env.Author, ts)
	if err != nil {
		return err
	}
	acct.StorageUpdateCount++
	if env.Operation == opDeposit || env.Operation == opWithdraw {
		if balance, ok := fields.StringOK("new_balance"); ok && balance != "" {
			acct.StorageBalance = balance
		}
	}
	if err := tx.PutAccount(acct); err != nil {
		return fmt.Errorf("put account %s: %w", acct.AccountID, err)
	}

	if poolKey != "" {
		if err := e.upsertPool(tx, env, poolKey); err != nil {
			return err
		}
	}

	switch env.Operation {
	case opShareStorage:
		return e.shareStorage(tx, env, poolID)
	case opReturnStorage:
		return e.returnStorage(tx, env, poolID)
	}
	return nil
}

func (e *Engine) upsertPool(tx Tx, env *events.Envelope, poolKey string) error {
	pool, err := tx.GetStoragePool(poolKey)
	if err != nil {
		return fmt.Errorf("get storage pool %s: %w", poolKey, err)
	}
	if pool == nil {
		pool = &StoragePool{PoolKey: poolKey, Balance: "0"}
	}
	pool.PoolType = classifyPool(poolKey)
	if groupID := env.Fields.String("group_id"); groupID != "" {
		pool.GroupID = groupID
		pool.PoolType = PoolTypeGroup
	}
	if balance := env.Fields.String("pool_balance"); balance != "" {
		pool.Balance = balance
	}
	if shared, ok := env.Fields.Int64OK("shared_bytes"); ok && shared >= 0 {
		pool.SharedBytes = uint64(shared)
	}
	if used, ok := env.Fields.Int64OK("used_bytes"); ok && used >= 0 {
		pool.UsedBytes = uint64(used)
	}
	pool.LastUpdatedAt = env.BlockTimestamp
	if err := tx.PutStoragePool(pool); err != nil {
		return fmt.Errorf("put storage pool %s: %w", poolKey, err)
	}
	return nil
}

// shareStorage creates or refreshes the allocation granted by a pool to a
// target account.
func (e *Engine) shareStorage(tx Tx, env *events.Envelope, poolID string) error {
	targetID := env.Fields.String("target_id")
	if poolID == "" || targetID == "" {
		e.anomaly("share_storage_missing_target", env, "pool_id", poolID, "target_id", targetID)
		return nil
	}
	alloc, err := tx.GetSharedAllocation(poolID, targetID)
	if err != nil {
		return fmt.Errorf("get allocation %s/%s: %w", poolID, targetID, err)
	}
	if alloc == nil {
		alloc = &SharedStorageAllocation{PoolID: poolID, TargetID: targetID, AllocatedAt: env.BlockTimestamp}
	}
	if maxBytes, ok := env.Fields.Int64OK("max_bytes"); ok && maxBytes >= 0 {
		alloc.MaxBytes = uint64(maxBytes)
	}
	alloc.IsActive = true
	alloc.ReturnedAt = 0
	if err := tx.PutSharedAllocation(alloc); err != nil {
		return fmt.Errorf("put allocation %s/%s: %w", poolID, targetID, err)
	}
	return nil
}

// returnStorage deactivates the caller's own allocation. The event names no
// explicit target; the author is the returning account.
func (e *Engine) returnStorage(tx Tx, env *events.Envelope, poolID string) error {
	alloc, err := tx.GetSharedAllocation(poolID, env.Author)
	if err != nil {
		return fmt.Errorf("get allocation %s/%s: %w", poolID, env.Author, err)
	}
	if alloc == nil {
		e.anomaly("return_storage_unknown_allocation", env, "pool_id", poolID)
		return nil
	}
	alloc.IsActive = false
	alloc.ReturnedAt = env.BlockTimestamp
	if err := tx.PutSharedAllocation(alloc); err != nil {
		return fmt.Errorf("put allocation %s/%s: %w", poolID, env.Author, err)
	}
	return nil
}
