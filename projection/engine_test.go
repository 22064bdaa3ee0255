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
)

// harness runs the engine against the in-memory key-value backend and
// numbers receipts so every applied event carries a distinct identity.
type harness struct {
	t      *testing.T
	store  *kvstore.Store
	engine *projection.Engine
	seq    int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := kvstore.NewMemory()
	t.Cleanup(func() { _ = store.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &harness{t: t, store: store, engine: projection.NewEngine(store, logger)}
}

func (h *harness) event(category events.Category, op, author string, fields map[string]any) *events.Envelope {
	h.seq++
	if fields == nil {
		fields = map[string]any{}
	}
	return &events.Envelope{
		ReceiptID:      fmt.Sprintf("receipt-%03d", h.seq),
		BlockHeight:    uint64(100 + h.seq),
		BlockTimestamp: int64(h.seq) * int64(time.Second),
		LogIndex:       0,
		Category:       category,
		Operation:      op,
		Author:         author,
		Fields:         events.Fields(fields),
	}
}

func (h *harness) apply(env *events.Envelope) {
	h.t.Helper()
	require.NoError(h.t, h.engine.Apply(context.Background(), env))
}

func (h *harness) view(fn func(tx projection.Tx)) {
	h.t.Helper()
	err := h.store.Apply(context.Background(), func(tx projection.Tx) error {
		fn(tx)
		return nil
	})
	require.NoError(h.t, err)
}

func (h *harness) account(id string) *projection.Account {
	h.t.Helper()
	var acct *projection.Account
	h.view(func(tx projection.Tx) {
		var err error
		acct, err = tx.GetAccount(id)
		require.NoError(h.t, err)
	})
	return acct
}

func (h *harness) group(id string) *projection.Group {
	h.t.Helper()
	var group *projection.Group
	h.view(func(tx projection.Tx) {
		var err error
		group, err = tx.GetGroup(id)
		require.NoError(h.t, err)
	})
	return group
}

func (h *harness) member(groupID, memberID string) *projection.GroupMember {
	h.t.Helper()
	var member *projection.GroupMember
	h.view(func(tx projection.Tx) {
		var err error
		member, err = tx.GetGroupMember(groupID, memberID)
		require.NoError(h.t, err)
	})
	return member
}

func (h *harness) proposal(groupID, proposalID string) *projection.Proposal {
	h.t.Helper()
	var proposal *projection.Proposal
	h.view(func(tx projection.Tx) {
		var err error
		proposal, err = tx.GetProposal(groupID, proposalID)
		require.NoError(h.t, err)
	})
	return proposal
}

func (h *harness) allocation(poolID, targetID string) *projection.SharedStorageAllocation {
	h.t.Helper()
	var alloc *projection.SharedStorageAllocation
	h.view(func(tx projection.Tx) {
		var err error
		alloc, err = tx.GetSharedAllocation(poolID, targetID)
		require.NoError(h.t, err)
	})
	return alloc
}

func TestDataUpdateProjectsAccount(t *testing.T) {
	h := newHarness(t)
	env := h.event(events.CategoryData, "set", "alice.testnet", map[string]any{
		"path": "alice.testnet/profile/bio",
		"value": map[string]any{
			"parent":      "bob.testnet/post/main",
			"parent_type": "reply",
		},
	})
	h.apply(env)

	acct := h.account("alice.testnet")
	require.NotNil(t, acct)
	require.Equal(t, int64(1), acct.DataUpdateCount)
	require.Equal(t, env.BlockTimestamp, acct.FirstSeenAt)
	require.Equal(t, env.BlockTimestamp, acct.LastActiveAt)
}

func TestDataUpdateLogEntryCarriesDerivedFields(t *testing.T) {
	h := newHarness(t)
	env := h.event(events.CategoryData, "set", "alice.testnet", map[string]any{
		"path": "alice.testnet/graph/follow/bob.testnet",
	})
	h.apply(env)

	var seen bool
	h.view(func(tx projection.Tx) {
		var err error
		seen, err = tx.HasUpdate(events.CategoryData, env.EntityID())
		require.NoError(t, err)
	})
	require.True(t, seen)
}

func TestIdempotentReplay(t *testing.T) {
	h := newHarness(t)
	h.apply(h.event(events.CategoryGroup, "create_group", "alice.testnet", map[string]any{
		"group_id": "g1",
		"config":   map[string]any{"owner": "alice.testnet", "is_private": true},
	}))
	addBob := h.event(events.CategoryGroup, "add_member", "alice.testnet", map[string]any{
		"group_id":  "g1",
		"member_id": "bob.testnet",
	})
	h.apply(addBob)
	first := h.group("g1")

	// Redelivery of the same receipt event must change nothing.
	h.apply(addBob)
	h.apply(addBob)
	replayed := h.group("g1")
	require.Equal(t, first, replayed)
	require.Equal(t, int64(1), replayed.MemberCount)
}

func TestIdempotentReplayAccountCounters(t *testing.T) {
	h := newHarness(t)
	env := h.event(events.CategoryData, "set", "alice.testnet", map[string]any{
		"path": "alice.testnet/profile/name",
	})
	h.apply(env)
	h.apply(env)

	acct := h.account("alice.testnet")
	require.Equal(t, int64(1), acct.DataUpdateCount)
}

func TestEachDataEntryOfOneLogProjects(t *testing.T) {
	h := newHarness(t)
	rec := events.Record{
		BlockHeight:    120,
		BlockTimestamp: int64(time.Second),
		ReceiptID:      "r1",
		Body: events.EventBody{
			Standard: "social",
			Version:  "1.0.0",
			Event:    "data",
			Data: []map[string]any{
				{"operation": "set", "author": "alice.testnet", "path": "alice.testnet/profile/name"},
				{"operation": "set", "author": "bob.testnet", "path": "bob.testnet/profile/name"},
			},
		},
	}
	decoder := events.NewDecoder(slog.New(slog.NewTextHandler(io.Discard, nil)))
	envs := decoder.Decode(rec)
	require.Len(t, envs, 2)
	require.NotEqual(t, envs[0].EntityID(), envs[1].EntityID())
	for i := range envs {
		h.apply(&envs[i])
	}

	// Sibling entries share the receipt and log index but are distinct
	// events, not redeliveries of each other.
	require.Equal(t, int64(1), h.account("alice.testnet").DataUpdateCount)
	bob := h.account("bob.testnet")
	require.NotNil(t, bob)
	require.Equal(t, int64(1), bob.DataUpdateCount)

	// Replaying one entry is still a no-op.
	h.apply(&envs[1])
	require.Equal(t, int64(1), h.account("bob.testnet").DataUpdateCount)
}

func TestUnknownCategoryFailsApply(t *testing.T) {
	h := newHarness(t)
	env := h.event("unknown", "set", "alice.testnet", nil)
	require.Error(t, h.engine.Apply(context.Background(), env))
}
