package projection

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"socialindex/events"
	"socialindex/observability/metrics"
)

// Engine routes envelopes to their category handler and commits each event
// as one atomic unit: the immutable log entity plus every derived aggregate
// mutation land together or not at all.
type Engine struct {
	store Store
	log   *slog.Logger
	met   *metrics.PipelineMetrics
}

// NewEngine wires the engine to a store. A nil logger falls back to the
// process default.
func NewEngine(store Store, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{store: store, log: log, met: metrics.Pipeline()}
}

// Apply projects one envelope. Redelivered events are detected by the
// presence of their immutable log entry: the log entity is re-upserted to
// the same id and the aggregate mutations are skipped, so replaying any
// prefix of the stream leaves stored state byte-identical.
//
// A returned error means the store transaction failed; the ingestion side
// must redeliver the event as a whole.
func (e *Engine) Apply(ctx context.Context, env *events.Envelope) error {
	err := e.store.Apply(ctx, func(tx Tx) error {
		replayed, err := tx.HasUpdate(env.Category, env.EntityID())
		if err != nil {
			return fmt.Errorf("check log entry: %w", err)
		}
		switch env.Category {
		case events.CategoryData:
			return e.applyData(tx, env, replayed)
		case events.CategoryStorage:
			return e.applyStorage(tx, env, replayed)
		case events.CategoryGroup:
			return e.applyGroup(tx, env, replayed)
		case events.CategoryPermission:
			return e.applyPermission(tx, env, replayed)
		case events.CategoryContract:
			return e.applyContract(tx, env)
		default:
			return fmt.Errorf("no handler for category %q", env.Category)
		}
	})
	if err != nil {
		e.met.IncStoreFailure()
		return fmt.Errorf("apply %s event %s: %w", env.Category, env.EntityID(), err)
	}
	e.met.ObserveProcessed(string(env.Category))
	return nil
}

func (e *Engine) anomaly(kind string, env *events.Envelope, args ...any) {
	e.met.ObserveAnomaly(kind)
	fields := append([]any{
		"kind", kind,
		"category", string(env.Category),
		"operation", env.Operation,
		"entity_id", env.EntityID(),
	}, args...)
	e.log.Warn("referential anomaly, aggregate mutation skipped", fields...)
}

func meta(env *events.Envelope) EventMeta {
	return EventMeta{
		ID:             env.EntityID(),
		ReceiptID:      env.ReceiptID,
		BlockHeight:    env.BlockHeight,
		BlockTimestamp: env.BlockTimestamp,
		LogIndex:       env.LogIndex,
		Operation:      env.Operation,
		Author:         env.Author,
		PartitionID:    env.PartitionID,
	}
}

// fetchAccount loads an account or lazily creates it, bumping last activity
// either way. The caller adjusts counters and persists.
func fetchAccount(tx Tx, accountID string, ts int64) (*Account, error) {
	acct, err := tx.GetAccount(accountID)
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", accountID, err)
	}
	if acct == nil {
		acct = &Account{AccountID: accountID, StorageBalance: "0", FirstSeenAt: ts}
	}
	if ts > acct.LastActiveAt {
		acct.LastActiveAt = ts
	}
	return acct, nil
}

// rawValue preserves the event's value payload verbatim: strings pass
// through, structured objects are re-encoded, anything else is dropped.
func rawValue(fields events.Fields, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return v
	case map[string]any, []any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(encoded)
	default:
		return ""
	}
}
