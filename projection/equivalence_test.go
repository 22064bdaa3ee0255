package projection_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"socialindex/events"
	"socialindex/projection"
	"socialindex/storage/kvstore"
	"socialindex/storage/sqlstore"
)

// equivalenceStream exercises every category and the main aggregate
// transitions, including a mid-stream redelivery.
func equivalenceStream(t *testing.T) []*events.Envelope {
	t.Helper()
	seq := 0
	event := func(category events.Category, op, author string, fields map[string]any) *events.Envelope {
		seq++
		return &events.Envelope{
			ReceiptID:      fmt.Sprintf("eq-%03d", seq),
			BlockHeight:    uint64(500 + seq),
			BlockTimestamp: int64(seq) * int64(time.Second),
			Category:       category,
			Operation:      op,
			Author:         author,
			Fields:         events.Fields(fields),
		}
	}

	stream := []*events.Envelope{
		event(events.CategoryData, "set", "alice.testnet", map[string]any{
			"path": "alice.testnet/profile/name",
			"value": map[string]any{
				"parent": "bob.testnet/post/main", "parent_type": "reply",
			},
		}),
		event(events.CategoryStorage, "deposit", "alice.testnet", map[string]any{
			"amount": "100", "new_balance": "100",
		}),
		event(events.CategoryGroup, "create_group", "alice.testnet", map[string]any{
			"group_id": "g1",
			"config": map[string]any{
				"owner": "alice.testnet", "voting_period": int64(3600e9),
				"participation_quorum_bps": int64(2500), "majority_threshold_bps": int64(5000),
			},
		}),
		event(events.CategoryGroup, "add_member", "alice.testnet", map[string]any{
			"group_id": "g1", "member_id": "bob.testnet",
		}),
		event(events.CategoryGroup, "proposal_created", "alice.testnet", map[string]any{
			"group_id": "g1", "proposal_id": "p1", "proposal_type": "config",
		}),
		event(events.CategoryGroup, "vote_cast", "bob.testnet", map[string]any{
			"group_id": "g1", "proposal_id": "p1", "vote": "yes",
		}),
		event(events.CategoryGroup, "proposal_status_updated", "alice.testnet", map[string]any{
			"group_id": "g1", "proposal_id": "p1", "status": "executed",
		}),
		event(events.CategoryStorage, "share_storage", "alice.testnet", map[string]any{
			"pool_id": "g1", "pool_key": "g1", "target_id": "bob.testnet",
			"max_bytes": int64(2048), "group_id": "g1",
		}),
		event(events.CategoryPermission, "grant", "alice.testnet", map[string]any{
			"grantee": "bob.testnet", "path": "alice.testnet/post",
		}),
		event(events.CategoryContract, "config_set", "admin.testnet", map[string]any{
			"key": "max_path_depth", "value": "8",
		}),
	}
	// Redeliver a group event; both backends must treat it as a no-op.
	stream = append(stream, stream[3])
	return stream
}

func runStream(t *testing.T, store projection.Store, stream []*events.Envelope) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := projection.NewEngine(store, logger)
	for _, env := range stream {
		require.NoError(t, engine.Apply(context.Background(), env))
	}
}

func TestBackendEquivalence(t *testing.T) {
	stream := equivalenceStream(t)

	kv := kvstore.NewMemory()
	t.Cleanup(func() { _ = kv.Close() })
	runStream(t, kv, stream)

	sql, err := sqlstore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sql.Close() })
	runStream(t, sql, stream)

	type snapshot struct {
		Account *projection.Account
		Group   *projection.Group
		Bob     *projection.GroupMember
		Prop    *projection.Proposal
		Pool    *projection.StoragePool
		Alloc   *projection.SharedStorageAllocation
		Grant   *projection.PermissionGrant
	}
	collect := func(store projection.Store) snapshot {
		var snap snapshot
		err := store.Apply(context.Background(), func(tx projection.Tx) error {
			var err error
			if snap.Account, err = tx.GetAccount("alice.testnet"); err != nil {
				return err
			}
			if snap.Group, err = tx.GetGroup("g1"); err != nil {
				return err
			}
			if snap.Bob, err = tx.GetGroupMember("g1", "bob.testnet"); err != nil {
				return err
			}
			if snap.Prop, err = tx.GetProposal("g1", "p1"); err != nil {
				return err
			}
			if snap.Pool, err = tx.GetStoragePool("g1"); err != nil {
				return err
			}
			if snap.Alloc, err = tx.GetSharedAllocation("g1", "bob.testnet"); err != nil {
				return err
			}
			snap.Grant, err = tx.GetPermissionGrant("alice.testnet", "bob.testnet", "alice.testnet/post")
			return err
		})
		require.NoError(t, err)
		return snap
	}

	fromKV := collect(kv)
	fromSQL := collect(sql)
	require.NotNil(t, fromKV.Account)
	require.NotNil(t, fromKV.Group)
	require.Equal(t, fromKV, fromSQL)
}

func TestCheckpointEquivalence(t *testing.T) {
	kv := kvstore.NewMemory()
	t.Cleanup(func() { _ = kv.Close() })
	sql, err := sqlstore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sql.Close() })

	for _, store := range []projection.Store{kv, sql} {
		height, err := store.Checkpoint(context.Background())
		require.NoError(t, err)
		require.Zero(t, height)

		require.NoError(t, store.SetCheckpoint(context.Background(), 42))
		require.NoError(t, store.SetCheckpoint(context.Background(), 43))
		height, err = store.Checkpoint(context.Background())
		require.NoError(t, err)
		require.Equal(t, uint64(43), height)
	}
}
