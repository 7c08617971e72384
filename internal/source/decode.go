// Package source provides the throughput snapshot sources the feed polls:
// the broker overview endpoint, pushed NATS messages and a redis cache
// shared between console replicas.
package source

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.brokerconsole.dev/internal/feed"
)

// ErrNoSnapshot is returned when a source has nothing to deliver yet.
var ErrNoSnapshot = errors.New("no throughput snapshot available")

// throughputEntry is one element of a brokers_throughput array.
type throughputEntry struct {
	Name  string          `json:"name"`
	Read  json.RawMessage `json:"read"`
	Write json.RawMessage `json:"write"`
}

// overviewEnvelope lets pushed messages carry the whole overview object.
type overviewEnvelope struct {
	BrokersThroughput json.RawMessage `json:"brokers_throughput"`
}

// DecodeSnapshot decodes a brokers_throughput array, or an object carrying
// one under "brokers_throughput", into a snapshot. Entries without a name
// are counted as rejected. Non-numeric rates are left out of the entity's
// Rates so the feed drops only that sample.
func DecodeSnapshot(data []byte) (feed.Snapshot, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var env overviewEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return feed.Snapshot{}, fmt.Errorf("failed to decode overview: %w", err)
		}
		data = bytes.TrimSpace(env.BrokersThroughput)
	}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return feed.Snapshot{Values: map[string]feed.Rates{}}, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return feed.Snapshot{}, fmt.Errorf("failed to decode throughput: %w", err)
	}

	snap := feed.Snapshot{
		Entities: make([]string, 0, len(raw)),
		Values:   make(map[string]feed.Rates, len(raw)),
	}
	for _, item := range raw {
		var entry throughputEntry
		if err := json.Unmarshal(item, &entry); err != nil {
			snap.Rejected++
			continue
		}
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			snap.Rejected++
			continue
		}

		rates := feed.Rates{}
		if v, ok := parseRate(entry.Write); ok {
			rates[feed.Write] = v
		}
		if v, ok := parseRate(entry.Read); ok {
			rates[feed.Read] = v
		}
		if _, seen := snap.Values[name]; !seen {
			snap.Entities = append(snap.Entities, name)
		}
		snap.Values[name] = rates
	}
	return snap, nil
}

func parseRate(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	return v, true
}

type encodedEntry struct {
	Name  string   `json:"name"`
	Read  *float64 `json:"read,omitempty"`
	Write *float64 `json:"write,omitempty"`
}

// EncodeSnapshot encodes a snapshot as a brokers_throughput array.
func EncodeSnapshot(snap feed.Snapshot) ([]byte, error) {
	entries := make([]encodedEntry, 0, len(snap.Entities))
	for _, name := range snap.Entities {
		entry := encodedEntry{Name: name}
		if rates, ok := snap.Values[name]; ok {
			if v, ok := rates[feed.Read]; ok && finite(v) {
				entry.Read = &v
			}
			if v, ok := rates[feed.Write]; ok && finite(v) {
				entry.Write = &v
			}
		}
		entries = append(entries, entry)
	}
	return json.Marshal(entries)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
