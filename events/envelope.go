package events

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// Category identifies the family of contract events an envelope belongs to.
// The five categories map one-to-one onto the handlers in the projection
// package; the tag doubles as the suffix of derived entity ids.
type Category string

const (
	CategoryData       Category = "data"
	CategoryStorage    Category = "storage"
	CategoryGroup      Category = "group"
	CategoryPermission Category = "permission"
	CategoryContract   Category = "contract"
)

// ParseCategory maps the NEP-297 event name onto a known category. The
// boolean reports whether the name is one this engine projects.
func ParseCategory(name string) (Category, bool) {
	switch Category(strings.TrimSpace(strings.ToLower(name))) {
	case CategoryData:
		return CategoryData, true
	case CategoryStorage:
		return CategoryStorage, true
	case CategoryGroup:
		return CategoryGroup, true
	case CategoryPermission:
		return CategoryPermission, true
	case CategoryContract:
		return CategoryContract, true
	default:
		return "", false
	}
}

// Envelope is the normalized, ephemeral form of one raw contract event. It is
// produced once per data entry, consumed by exactly one handler, then
// discarded; nothing persists it.
type Envelope struct {
	ReceiptID      string
	BlockHeight    uint64
	BlockTimestamp int64
	LogIndex       int
	// EntryIndex is the envelope's position in the log's data array. The
	// first entry is the common case and keeps the canonical id shape.
	EntryIndex     int
	Category       Category
	Operation      string
	Author         string
	PartitionID    string
	Fields         Fields
}

// EntityID derives the deterministic stored id for the envelope. Reprocessing
// the same receipt event always lands on the same id, which is what makes
// every downstream write an idempotent upsert.
func (e *Envelope) EntityID() string {
	return EntityID(e.ReceiptID, e.LogIndex, e.EntryIndex, e.Category)
}

// EntityID is the pure form of the id derivation for callers that do not hold
// a full envelope. Entries past the first fold their data-array position into
// the id so sibling entries of one log never collide.
func EntityID(receiptID string, logIndex, entryIndex int, category Category) string {
	if entryIndex > 0 {
		return fmt.Sprintf("%s-%d-%d-%s", receiptID, logIndex, entryIndex, category)
	}
	return fmt.Sprintf("%s-%d-%s", receiptID, logIndex, category)
}

// Fields is the loosely typed bag carried by a decoded event entry. All
// accessors are total: a missing or mistyped field yields the documented
// default, never an error. Partial or forward-incompatible events must not
// halt the pipeline.
type Fields map[string]any

// String returns the trimmed string value for key, or "" when absent or not
// a string.
func (f Fields) String(key string) string {
	s, _ := f.StringOK(key)
	return s
}

// StringOK distinguishes an absent string from an empty one.
func (f Fields) StringOK(key string) (string, bool) {
	raw, ok := f[key]
	if !ok {
		return "", false
	}
	s, ok := raw.(string)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(s), true
}

// Int64 returns the integer value for key, accepting JSON numbers and
// stringified integers (u64 fields arrive as strings on the wire). Absent or
// unparseable values yield 0.
func (f Fields) Int64(key string) int64 {
	v, _ := f.Int64OK(key)
	return v
}

// Int64OK reports whether the field was present and parseable alongside the
// value.
func (f Fields) Int64OK(key string) (int64, bool) {
	raw, ok := f[key]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// Uint64 is Int64 for counters and byte sizes; negative inputs clamp to 0.
func (f Fields) Uint64(key string) uint64 {
	n, ok := f.Int64OK(key)
	if !ok || n < 0 {
		return 0
	}
	return uint64(n)
}

// Bool returns the boolean value for key, defaulting to false. Stringified
// booleans are accepted.
func (f Fields) Bool(key string) bool {
	v, _ := f.BoolOK(key)
	return v
}

// BoolOK distinguishes an absent flag from an explicit false.
func (f Fields) BoolOK(key string) (bool, bool) {
	raw, ok := f[key]
	if !ok {
		return false, false
	}
	switch v := raw.(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, false
		}
		return b, true
	default:
		return false, false
	}
}

// BigInt parses the field as an arbitrary-precision integer. Balance fields
// are u128 on the wire and always stringified. Absent or malformed values
// yield nil so callers can tell "no balance in this event" from zero.
func (f Fields) BigInt(key string) *big.Int {
	raw, ok := f[key]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case string:
		n, ok := new(big.Int).SetString(strings.TrimSpace(v), 10)
		if !ok {
			return nil
		}
		return n
	case float64:
		return big.NewInt(int64(v))
	default:
		return nil
	}
}

// Object returns the nested object under key, or nil when absent or not an
// object.
func (f Fields) Object(key string) Fields {
	raw, ok := f[key]
	if !ok {
		return nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	return Fields(m)
}

// Strings returns the field as a list of non-empty strings, preserving
// order. Entries that are not strings, or blank, are skipped. A nil result
// means the field is absent or nothing in it parsed.
func (f Fields) Strings(key string) []string {
	raw, ok := f[key]
	if !ok {
		return nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, entry := range list {
		s, ok := entry.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
