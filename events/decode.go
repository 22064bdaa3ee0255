package events

import (
	"log/slog"
	"strings"
)

// Record is one receipt-level event delivered by the ingestion collaborator,
// already decoded from the chain's log encoding. Order across records (block
// height, then log index) is the ingestion side's contract.
type Record struct {
	BlockHeight    uint64    `json:"block_height"`
	BlockTimestamp int64     `json:"block_timestamp"`
	ReceiptID      string    `json:"receipt_id"`
	LogIndex       int       `json:"log_index"`
	PartitionID    string    `json:"partition_id"`
	Body           EventBody `json:"event"`
}

// Usable reports whether the record carries the identity a projection needs:
// a receipt id and a known category. Decode drops unusable records wholesale;
// callers accounting for drops use this to tell a record-level drop from
// entry-level ones.
func (r Record) Usable() bool {
	if strings.TrimSpace(r.ReceiptID) == "" {
		return false
	}
	_, ok := ParseCategory(r.Body.Event)
	return ok
}

// EventBody is the NEP-297 style payload emitted by the social contracts.
// Unknown sibling fields are tolerated by construction: only the four named
// fields are decoded.
type EventBody struct {
	Standard string           `json:"standard"`
	Version  string           `json:"version"`
	Event    string           `json:"event"`
	Data     []map[string]any `json:"data"`
}

// Decoder normalizes raw records into typed envelopes. It is a pure
// transform aside from diagnostics for records it drops.
type Decoder struct {
	log *slog.Logger
}

// NewDecoder returns a decoder logging drops through the supplied logger. A
// nil logger falls back to the process default.
func NewDecoder(log *slog.Logger) *Decoder {
	if log == nil {
		log = slog.Default()
	}
	return &Decoder{log: log}
}

// Decode expands a record into one envelope per data entry. Entries that
// lack the minimum identity fields (category, operation, author) are dropped
// with a diagnostic; decoding never fails the record as a whole.
func (d *Decoder) Decode(rec Record) []Envelope {
	receipt := strings.TrimSpace(rec.ReceiptID)
	if receipt == "" {
		d.log.Warn("dropping event record without receipt id",
			"block_height", rec.BlockHeight, "log_index", rec.LogIndex)
		return nil
	}
	category, ok := ParseCategory(rec.Body.Event)
	if !ok {
		d.log.Warn("dropping event record with unknown category",
			"event", rec.Body.Event, "receipt_id", receipt, "log_index", rec.LogIndex)
		return nil
	}
	envelopes := make([]Envelope, 0, len(rec.Body.Data))
	for i, entry := range rec.Body.Data {
		fields := Fields(entry)
		operation := fields.String("operation")
		if operation == "" {
			operation = fields.String("op")
		}
		author := fields.String("author")
		if author == "" {
			author = fields.String("account_id")
		}
		if operation == "" || author == "" {
			d.log.Warn("dropping event entry missing operation or author",
				"receipt_id", receipt, "log_index", rec.LogIndex,
				"category", string(category), "entry", i)
			continue
		}
		envelopes = append(envelopes, Envelope{
			ReceiptID:      receipt,
			BlockHeight:    rec.BlockHeight,
			BlockTimestamp: rec.BlockTimestamp,
			LogIndex:       rec.LogIndex,
			EntryIndex:     i,
			Category:       category,
			Operation:      operation,
			Author:         author,
			PartitionID:    strings.TrimSpace(rec.PartitionID),
			Fields:         fields,
		})
	}
	return envelopes
}
