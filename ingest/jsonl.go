package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"socialindex/events"
)

// FileSource replays receipt records from a JSONL export, one record per
// line, as produced by the streaming collaborator's archive tooling. Records
// are sorted by (block height, log index) on load so an unordered export
// still replays deterministically.
type FileSource struct {
	records []events.Record
}

// NewFileSource reads and sorts the full export at path.
func NewFileSource(path string) (*FileSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay file: %w", err)
	}
	defer file.Close()
	src, err := ReadRecords(file)
	if err != nil {
		return nil, fmt.Errorf("read replay file %s: %w", path, err)
	}
	return src, nil
}

// ReadRecords decodes newline-delimited records from r.
func ReadRecords(r io.Reader) (*FileSource, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var records []events.Record
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec events.Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decode record at line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan records: %w", err)
	}
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].BlockHeight != records[j].BlockHeight {
			return records[i].BlockHeight < records[j].BlockHeight
		}
		return records[i].LogIndex < records[j].LogIndex
	})
	return &FileSource{records: records}, nil
}

// FetchRecords returns records strictly above afterHeight. The final block
// is never split: every record sharing the last included height is returned
// even when that overruns the limit.
func (s *FileSource) FetchRecords(ctx context.Context, afterHeight uint64, limit int) ([]events.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	start := sort.Search(len(s.records), func(i int) bool {
		return s.records[i].BlockHeight > afterHeight
	})
	if start >= len(s.records) {
		return nil, nil
	}
	end := start + limit
	if end > len(s.records) {
		end = len(s.records)
	}
	for end < len(s.records) && s.records[end].BlockHeight == s.records[end-1].BlockHeight {
		end++
	}
	return s.records[start:end], nil
}
