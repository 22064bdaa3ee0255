package projection_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"socialindex/events"
	"socialindex/projection"
)

func (h *harness) grant(granter, grantee, path string) *projection.PermissionGrant {
	h.t.Helper()
	var grant *projection.PermissionGrant
	h.view(func(tx projection.Tx) {
		var err error
		grant, err = tx.GetPermissionGrant(granter, grantee, path)
		require.NoError(h.t, err)
	})
	return grant
}

func TestPermissionGrantAndRevoke(t *testing.T) {
	h := newHarness(t)
	h.apply(h.event(events.CategoryPermission, "grant", "alice.testnet", map[string]any{
		"grantee":    "bob.testnet",
		"path":       "alice.testnet/post",
		"expires_at": int64(9999),
	}))

	grant := h.grant("alice.testnet", "bob.testnet", "alice.testnet/post")
	require.NotNil(t, grant)
	require.True(t, grant.IsActive)
	require.Equal(t, int64(9999), grant.ExpiresAt)
	require.Zero(t, grant.RevokedAt)

	h.apply(h.event(events.CategoryPermission, "revoke", "alice.testnet", map[string]any{
		"grantee": "bob.testnet",
		"path":    "alice.testnet/post",
		"deleted": true,
	}))

	grant = h.grant("alice.testnet", "bob.testnet", "alice.testnet/post")
	require.False(t, grant.IsActive)
	require.NotZero(t, grant.RevokedAt)
}

func TestPermissionKeyGranteeFallback(t *testing.T) {
	h := newHarness(t)
	h.apply(h.event(events.CategoryPermission, "grant_key", "alice.testnet", map[string]any{
		"public_key": "ed25519:AbCd",
		"path":       "alice.testnet",
	}))

	grant := h.grant("alice.testnet", "ed25519:AbCd", "alice.testnet")
	require.NotNil(t, grant)
	require.True(t, grant.IsActive)

	acct := h.account("alice.testnet")
	require.Equal(t, int64(1), acct.PermissionUpdateCount)
}

func TestPermissionWithoutGranteeStillCounts(t *testing.T) {
	h := newHarness(t)
	env := h.event(events.CategoryPermission, "grant", "alice.testnet", map[string]any{
		"path": "alice.testnet/post",
	})
	h.apply(env)

	acct := h.account("alice.testnet")
	require.Equal(t, int64(1), acct.PermissionUpdateCount)

	var seen bool
	h.view(func(tx projection.Tx) {
		var err error
		seen, err = tx.HasUpdate(events.CategoryPermission, env.EntityID())
		require.NoError(t, err)
	})
	require.True(t, seen)
}

func TestRegrantReactivates(t *testing.T) {
	h := newHarness(t)
	grantFields := map[string]any{
		"grantee": "bob.testnet",
		"path":    "alice.testnet/post",
	}
	h.apply(h.event(events.CategoryPermission, "grant", "alice.testnet", grantFields))
	h.apply(h.event(events.CategoryPermission, "revoke", "alice.testnet", map[string]any{
		"grantee": "bob.testnet",
		"path":    "alice.testnet/post",
		"deleted": true,
	}))
	h.apply(h.event(events.CategoryPermission, "grant", "alice.testnet", grantFields))

	grant := h.grant("alice.testnet", "bob.testnet", "alice.testnet/post")
	require.True(t, grant.IsActive)
	require.Zero(t, grant.RevokedAt)
}
