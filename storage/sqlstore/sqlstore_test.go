package sqlstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"socialindex/events"
	"socialindex/projection"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenRejectsEmptyDSN(t *testing.T) {
	_, err := Open("   ")
	require.Error(t, err)
}

func TestUpsertOverwritesInPlace(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	err := store.Apply(ctx, func(tx projection.Tx) error {
		return tx.PutAccount(&projection.Account{AccountID: "alice.testnet", DataUpdateCount: 1})
	})
	require.NoError(t, err)

	err = store.Apply(ctx, func(tx projection.Tx) error {
		return tx.PutAccount(&projection.Account{AccountID: "alice.testnet", DataUpdateCount: 5})
	})
	require.NoError(t, err)

	err = store.Apply(ctx, func(tx projection.Tx) error {
		acct, err := tx.GetAccount("alice.testnet")
		require.NoError(t, err)
		require.NotNil(t, acct)
		require.Equal(t, int64(5), acct.DataUpdateCount)
		return nil
	})
	require.NoError(t, err)
}

func TestTransactionRollsBackOnError(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.Apply(ctx, func(tx projection.Tx) error {
		if err := tx.PutGroup(&projection.Group{GroupID: "g1", Owner: "alice.testnet"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = store.Apply(ctx, func(tx projection.Tx) error {
		group, err := tx.GetGroup("g1")
		require.NoError(t, err)
		require.Nil(t, group)
		return nil
	})
	require.NoError(t, err)
}

func TestHasUpdatePerCategory(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	err := store.Apply(ctx, func(tx projection.Tx) error {
		return tx.PutDataUpdate(&projection.DataUpdate{
			EventMeta: projection.EventMeta{ID: "r1-0-data"},
			Path:      "alice.testnet/profile/name",
		})
	})
	require.NoError(t, err)

	err = store.Apply(ctx, func(tx projection.Tx) error {
		seen, err := tx.HasUpdate(events.CategoryData, "r1-0-data")
		require.NoError(t, err)
		require.True(t, seen)

		// Same id under a different category is a different log.
		seen, err = tx.HasUpdate(events.CategoryGroup, "r1-0-data")
		require.NoError(t, err)
		require.False(t, seen)

		_, err = tx.HasUpdate("bogus", "r1-0-data")
		require.Error(t, err)
		return nil
	})
	require.NoError(t, err)
}

func TestCompositeKeyAggregates(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	err := store.Apply(ctx, func(tx projection.Tx) error {
		if err := tx.PutGroupMember(&projection.GroupMember{
			GroupID: "g1", MemberID: "bob.testnet", IsActive: true,
		}); err != nil {
			return err
		}
		if err := tx.PutGroupMember(&projection.GroupMember{
			GroupID: "g2", MemberID: "bob.testnet", IsActive: false,
		}); err != nil {
			return err
		}
		return tx.PutPermissionGrant(&projection.PermissionGrant{
			Granter: "alice.testnet", Grantee: "bob.testnet", Path: "alice.testnet/post",
			IsActive: true,
		})
	})
	require.NoError(t, err)

	err = store.Apply(ctx, func(tx projection.Tx) error {
		inG1, err := tx.GetGroupMember("g1", "bob.testnet")
		require.NoError(t, err)
		require.True(t, inG1.IsActive)

		inG2, err := tx.GetGroupMember("g2", "bob.testnet")
		require.NoError(t, err)
		require.False(t, inG2.IsActive)

		grant, err := tx.GetPermissionGrant("alice.testnet", "bob.testnet", "alice.testnet/post")
		require.NoError(t, err)
		require.NotNil(t, grant)

		other, err := tx.GetPermissionGrant("alice.testnet", "bob.testnet", "other/path")
		require.NoError(t, err)
		require.Nil(t, other)
		return nil
	})
	require.NoError(t, err)
}

func TestSerializedSliceRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	err := store.Apply(ctx, func(tx projection.Tx) error {
		return tx.PutGroup(&projection.Group{
			GroupID:        "g1",
			Owner:          "carol.testnet",
			PreviousOwners: []string{"alice.testnet", "bob.testnet"},
		})
	})
	require.NoError(t, err)

	err = store.Apply(ctx, func(tx projection.Tx) error {
		group, err := tx.GetGroup("g1")
		require.NoError(t, err)
		require.Equal(t, []string{"alice.testnet", "bob.testnet"}, group.PreviousOwners)
		return nil
	})
	require.NoError(t, err)
}

func TestCheckpointSingleRow(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	height, err := store.Checkpoint(ctx)
	require.NoError(t, err)
	require.Zero(t, height)

	require.NoError(t, store.SetCheckpoint(ctx, 10))
	require.NoError(t, store.SetCheckpoint(ctx, 11))

	height, err = store.Checkpoint(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(11), height)
}
