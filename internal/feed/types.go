// Package feed holds the live throughput series shown on the dashboard.
//
// A Feed keeps one write and one read series per monitored entity (brokers
// plus the aggregate "total"), appends one sample per direction on every
// snapshot and trims samples that fall out of the rolling window. A Feed is
// not safe for concurrent use; Runner owns it on a single goroutine.
package feed

import (
	"strings"
	"time"
)

// TotalEntity is the aggregate entity. It is always present and ordered first.
const TotalEntity = "total"

// Direction is the traffic direction a series measures.
type Direction string

const (
	Write Direction = "write"
	Read  Direction = "read"
)

// Directions lists every direction in display order.
var Directions = []Direction{Write, Read}

// ParseDirection parses a direction name, case-insensitively.
func ParseDirection(s string) (Direction, bool) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case Write:
		return Write, true
	case Read:
		return Read, true
	}
	return "", false
}

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == Write || d == Read
}

// SeriesKey identifies a series.
type SeriesKey struct {
	Entity    string    `json:"entity"`
	Direction Direction `json:"direction"`
}

// Label is the display label, e.g. "write total".
func (k SeriesKey) Label() string {
	return string(k.Direction) + " " + k.Entity
}

// Sample is a single throughput observation in bytes per second.
type Sample struct {
	At    time.Time `json:"timestamp"`
	Value float64   `json:"value"`
}

// Series is an ordered sequence of samples for one entity and direction.
type Series struct {
	SeriesKey
	Label   string   `json:"label"`
	Visible bool     `json:"visible"`
	Samples []Sample `json:"samples"`
}

// Rates carries the per-direction values of one entity in a snapshot.
// A direction that is absent from the map has no value for that tick.
type Rates map[Direction]float64

// Snapshot is one observation of every entity, as delivered by a Source.
type Snapshot struct {
	// Entities is the current entity membership, in any order.
	Entities []string

	// Values holds the rates keyed by entity name.
	Values map[string]Rates

	// Rejected counts entries the source could not attribute to an entity.
	Rejected int
}

// Drop reasons reported for discarded samples.
const (
	DropMissing    = "missing"
	DropNegative   = "negative"
	DropNotFinite  = "not_finite"
	DropOutOfOrder = "out_of_order"
)

// Drop describes one discarded sample.
type Drop struct {
	Key    SeriesKey
	Reason string
}

// Report summarises what a snapshot did to the feed.
type Report struct {
	Appended int
	Replaced int
	Pruned   int
	Dropped  []Drop
}

// View is an immutable copy of the feed handed to readers.
type View struct {
	GeneratedAt time.Time `json:"generatedAt"`
	Window      string    `json:"window"`
	Entities    []string  `json:"entities"`
	Focus       SeriesKey `json:"focus"`
	Series      []Series  `json:"series"`
}

// Visible returns only the visible series of the view.
func (v View) Visible() []Series {
	out := make([]Series, 0, 1)
	for _, s := range v.Series {
		if s.Visible {
			out = append(out, s)
		}
	}
	return out
}
