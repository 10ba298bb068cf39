// Package snapshot provides the persisted usage snapshot type and its payload codec.
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/artpar/costboard/domain/usage"
)

// ErrMalformedPayload is returned when a snapshot payload cannot be decoded.
var ErrMalformedPayload = errors.New("malformed snapshot payload")

// Snapshot is a timestamped copy of every user's cumulative usage (value type).
// Snapshots are immutable once written.
type Snapshot struct {
	ID        int64
	CreatedAt time.Time
	Timezone  string // informational only
	Payload   []byte // JSON array of usage.Record, possibly double-encoded
}

// Records decodes the snapshot payload.
func (s Snapshot) Records() ([]usage.Record, error) {
	records, err := DecodePayload(s.Payload)
	if err != nil {
		return nil, fmt.Errorf("snapshot %d: %w", s.ID, err)
	}
	return records, nil
}

// EncodePayload serializes records for storage.
func EncodePayload(records []usage.Record) ([]byte, error) {
	if records == nil {
		records = []usage.Record{}
	}
	return json.Marshal(records)
}

// DecodePayload parses a stored payload into records.
//
// Older rows were written as a JSON string containing the JSON array, so a
// quoted payload is unwrapped once before parsing.
func DecodePayload(raw []byte) ([]usage.Record, error) {
	data := bytes.TrimSpace(raw)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return []usage.Record{}, nil
	}

	if data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return nil, fmt.Errorf("%w: unwrap string: %v", ErrMalformedPayload, err)
		}
		data = bytes.TrimSpace([]byte(inner))
		if len(data) == 0 || bytes.Equal(data, []byte("null")) {
			return []usage.Record{}, nil
		}
	}

	var records []usage.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if records == nil {
		records = []usage.Record{}
	}
	return records, nil
}
