package projection

import (
	"fmt"

	"socialindex/events"
	"socialindex/social"
)

// applyData projects core social data events (operation set/remove). The
// owning account is always upserted; a group reference additionally touches
// the group's activity counters.
func (e *Engine) applyData(tx Tx, env *events.Envelope, replayed bool) error {
	path := env.Fields.String("path")
	info := social.ResolvePath(path, env.Author, env.Fields.String("group_path"))
	refs := social.ExtractReferences(env.Fields.Object("value"))

	groupID := env.Fields.String("group_id")
	if groupID == "" {
		groupID = info.GroupID
	}

	upd := &DataUpdate{
		EventMeta:      meta(env),
		Path:           path,
		Value:          rawValue(env.Fields, "value"),
		AccountID:      info.AccountID,
		DataType:       info.DataType,
		DataID:         info.DataID,
		GroupID:        groupID,
		IsGroupContent: info.IsGroupContent,
		TargetAccount:  info.TargetAccount,
		ParentPath:     refs.ParentPath,
		ParentAuthor:   refs.ParentAuthor,
		ParentType:     refs.ParentType,
		RefPath:        refs.RefPath,
		RefAuthor:      refs.RefAuthor,
		RefType:        refs.RefType,
		Refs:           refs.Refs,
		RefAuthors:     refs.RefAuthors,
	}
	if err := tx.PutDataUpdate(upd); err != nil {
		return fmt.Errorf("put data update: %w", err)
	}
	if replayed {
		return nil
	}

	ts := env.BlockTimestamp
	if upd.AccountID != "" {
		acct, err := fetchAccount(tx, upd.AccountID, ts)
		if err != nil {
			return err
		}
		acct.DataUpdateCount++
		if err := tx.PutAccount(acct); err != nil {
			return fmt.Errorf("put account %s: %w", acct.AccountID, err)
		}
	}
	if groupID != "" {
		group, err := tx.GetGroup(groupID)
		if err != nil {
			return fmt.Errorf("get group %s: %w", groupID, err)
		}
		if group == nil {
			e.anomaly("data_update_unknown_group", env, "group_id", groupID)
			return nil
		}
		touchGroup(group, ts)
		if err := tx.PutGroup(group); err != nil {
			return fmt.Errorf("put group %s: %w", groupID, err)
		}
	}
	return nil
}
