package projection

import (
	"fmt"

	"socialindex/events"
)

// applyContract records contract administration events. The category has no
// aggregate projection; the immutable log is the whole point, so the
// replay flag is irrelevant here.
func (e *Engine) applyContract(tx Tx, env *events.Envelope) error {
	upd := &ContractUpdate{
		EventMeta: meta(env),
		Key:       env.Fields.String("key"),
		Value:     rawValue(env.Fields, "value"),
		TargetID:  env.Fields.String("target_id"),
	}
	if err := tx.PutContractUpdate(upd); err != nil {
		return fmt.Errorf("put contract update: %w", err)
	}
	return nil
}
