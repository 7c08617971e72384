package feed

import (
	"math"
	"slices"
	"sort"
	"strings"
	"time"
)

// Feed is the rolling set of throughput series.
type Feed struct {
	entities []string
	series   map[SeriesKey]*Series
	focus    SeriesKey
}

// New creates an empty feed. It has no series until Initialize is called.
func New() *Feed {
	return &Feed{
		series: make(map[SeriesKey]*Series),
	}
}

// NormalizeEntities returns the ordered entity list the feed would build
// for the given names: blanks and duplicates removed, TotalEntity added and
// placed first, the rest sorted alphabetically ignoring case.
// An input without any usable name yields nil.
func NormalizeEntities(names []string) []string {
	seen := make(map[string]struct{}, len(names)+1)
	out := make([]string, 0, len(names)+1)
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil
	}
	if _, ok := seen[TotalEntity]; !ok {
		out = append(out, TotalEntity)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a == TotalEntity || b == TotalEntity {
			return a == TotalEntity && b != TotalEntity
		}
		la, lb := strings.ToLower(a), strings.ToLower(b)
		if la != lb {
			return la < lb
		}
		return a < b
	})
	return out
}

// Initialize rebuilds the series set from the given entities. Every entity
// gets a write and a read series; only the total write series is visible.
// Existing history is discarded. An empty list leaves the feed untouched
// and returns false.
func (f *Feed) Initialize(entities []string) bool {
	ordered := NormalizeEntities(entities)
	if len(ordered) == 0 {
		return false
	}

	f.entities = ordered
	f.series = make(map[SeriesKey]*Series, len(ordered)*len(Directions))
	for _, e := range ordered {
		for _, d := range Directions {
			key := SeriesKey{Entity: e, Direction: d}
			f.series[key] = &Series{SeriesKey: key, Label: key.Label()}
		}
	}

	f.focus = SeriesKey{Entity: TotalEntity, Direction: Write}
	f.series[f.focus].Visible = true
	return true
}

// OnSnapshot appends one sample per direction, stamped now, to every known
// entity present in values. Entities missing from values are skipped and
// unknown names in values are ignored. Missing, negative and non-finite
// values are dropped for that series only. A sample stamped at the same
// instant as the last one replaces it; an older one is dropped.
func (f *Feed) OnSnapshot(now time.Time, values map[string]Rates) Report {
	var report Report
	for _, e := range f.entities {
		rates, ok := values[e]
		if !ok {
			continue
		}
		for _, d := range Directions {
			key := SeriesKey{Entity: e, Direction: d}
			v, ok := rates[d]
			switch {
			case !ok:
				report.Dropped = append(report.Dropped, Drop{Key: key, Reason: DropMissing})
			case math.IsNaN(v) || math.IsInf(v, 0):
				report.Dropped = append(report.Dropped, Drop{Key: key, Reason: DropNotFinite})
			case v < 0:
				report.Dropped = append(report.Dropped, Drop{Key: key, Reason: DropNegative})
			default:
				f.append(f.series[key], now, v, &report)
			}
		}
	}
	return report
}

func (f *Feed) append(s *Series, at time.Time, v float64, report *Report) {
	if n := len(s.Samples); n > 0 {
		last := s.Samples[n-1].At
		if at.Equal(last) {
			s.Samples[n-1].Value = v
			report.Replaced++
			return
		}
		if at.Before(last) {
			report.Dropped = append(report.Dropped, Drop{Key: s.SeriesKey, Reason: DropOutOfOrder})
			return
		}
	}
	s.Samples = append(s.Samples, Sample{At: at, Value: v})
	report.Appended++
}

// SetFocus makes the given series the only visible one. An unknown entity
// or direction leaves visibility unchanged and returns false.
func (f *Feed) SetFocus(entity string, dir Direction) bool {
	key := SeriesKey{Entity: entity, Direction: dir}
	target, ok := f.series[key]
	if !ok {
		return false
	}
	for _, s := range f.series {
		s.Visible = false
	}
	target.Visible = true
	f.focus = key
	return true
}

// PruneWindow drops every sample older than now minus window and returns
// the number of samples removed. Samples exactly at the boundary are kept.
// A zero window keeps only samples at now; a negative one keeps none at or
// before now.
func (f *Feed) PruneWindow(now time.Time, window time.Duration) int {
	cutoff := now.Add(-window)
	pruned := 0
	for _, s := range f.series {
		idx := sort.Search(len(s.Samples), func(i int) bool {
			return !s.Samples[i].At.Before(cutoff)
		})
		if idx == 0 {
			continue
		}
		n := copy(s.Samples, s.Samples[idx:])
		s.Samples = s.Samples[:n]
		pruned += idx
	}
	return pruned
}

// Tick prunes the window and then appends the snapshot values.
func (f *Feed) Tick(now time.Time, window time.Duration, values map[string]Rates) Report {
	pruned := f.PruneWindow(now, window)
	report := f.OnSnapshot(now, values)
	report.Pruned = pruned
	return report
}

// Entities returns the ordered entity list.
func (f *Feed) Entities() []string {
	return slices.Clone(f.entities)
}

// Focus returns the visible series key. ok is false before initialization.
func (f *Feed) Focus() (SeriesKey, bool) {
	if len(f.entities) == 0 {
		return SeriesKey{}, false
	}
	return f.focus, true
}

// Len returns the number of series.
func (f *Feed) Len() int {
	return len(f.series)
}

// Series returns copies of all series ordered by entity, write before read.
func (f *Feed) Series() []Series {
	out := make([]Series, 0, len(f.series))
	for _, e := range f.entities {
		for _, d := range Directions {
			s := f.series[SeriesKey{Entity: e, Direction: d}]
			cp := *s
			cp.Samples = slices.Clone(s.Samples)
			if cp.Samples == nil {
				cp.Samples = []Sample{}
			}
			out = append(out, cp)
		}
	}
	return out
}

// Get returns a copy of one series.
func (f *Feed) Get(key SeriesKey) (Series, bool) {
	s, ok := f.series[key]
	if !ok {
		return Series{}, false
	}
	cp := *s
	cp.Samples = slices.Clone(s.Samples)
	return cp, true
}

// View builds an immutable copy of the feed.
func (f *Feed) View(now time.Time, window time.Duration) View {
	focus, _ := f.Focus()
	entities := f.Entities()
	if entities == nil {
		entities = []string{}
	}
	return View{
		GeneratedAt: now,
		Window:      window.String(),
		Entities:    entities,
		Focus:       focus,
		Series:      f.Series(),
	}
}
