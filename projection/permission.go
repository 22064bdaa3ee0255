package projection

import (
	"fmt"

	"socialindex/events"
)

// applyPermission projects permission events into the immutable log and the
// currently-active-grants view keyed by (granter, grantee, path). The event
// author is the granter for both account and key grants.
func (e *Engine) applyPermission(tx Tx, env *events.Envelope, replayed bool) error {
	fields := env.Fields
	grantee := fields.String("grantee")
	if grantee == "" {
		grantee = fields.String("public_key")
	}
	path := fields.String("path")
	deleted := fields.Bool("deleted")
	expiresAt := fields.Int64("expires_at")

	upd := &PermissionUpdate{
		EventMeta: meta(env),
		Grantee:   grantee,
		Path:      path,
		Deleted:   deleted,
		ExpiresAt: expiresAt,
	}
	if err := tx.PutPermissionUpdate(upd); err != nil {
		return fmt.Errorf("put permission update: %w", err)
	}
	if replayed {
		return nil
	}

	ts := env.BlockTimestamp
	if grantee != "" {
		grant, err := tx.GetPermissionGrant(env.Author, grantee, path)
		if err != nil {
			return fmt.Errorf("get permission grant: %w", err)
		}
		if grant == nil {
			grant = &PermissionGrant{Granter: env.Author, Grantee: grantee, Path: path}
		}
		grant.IsActive = !deleted
		grant.ExpiresAt = expiresAt
		if deleted {
			grant.RevokedAt = ts
		} else {
			grant.RevokedAt = 0
		}
		grant.UpdatedAt = ts
		if err := tx.PutPermissionGrant(grant); err != nil {
			return fmt.Errorf("put permission grant: %w", err)
		}
	} else {
		e.anomaly("permission_event_without_grantee", env)
	}

	acct, err := fetchAccount(tx, env.Author, ts)
	if err != nil {
		return err
	}
	acct.PermissionUpdateCount++
	if err := tx.PutAccount(acct); err != nil {
		return fmt.Errorf("put account %s: %w", acct.AccountID, err)
	}
	return nil
}
