package warning

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Service manages console warnings
type Service interface {
	// AddWarning adds a new warning
	AddWarning(category, severity, message, source string)

	// List returns matching warnings, newest first
	List(filter Filter) []Warning

	// Acknowledge marks a warning as seen
	Acknowledge(id string) bool

	// Clear removes all warnings
	Clear() int

	// ClearOlderThan removes warnings older than age
	ClearOlderThan(age time.Duration) int
}

// DefaultLimit caps the number of stored warnings
const DefaultLimit = 500

// InMemoryService stores warnings in insertion order, dropping the oldest
// once the limit is reached.
type InMemoryService struct {
	mu       sync.RWMutex
	warnings []*Warning
	limit    int
	now      func() time.Time
}

// NewInMemoryService creates a warning store holding at most limit
// warnings. A non-positive limit uses DefaultLimit.
func NewInMemoryService(limit int) *InMemoryService {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &InMemoryService{
		limit: limit,
		now:   time.Now,
	}
}

// AddWarning adds a new warning
func (s *InMemoryService) AddWarning(category, severity, message, source string) {
	w := &Warning{
		ID:        uuid.New().String(),
		Category:  category,
		Severity:  severity,
		Message:   message,
		Timestamp: s.now(),
		Source:    source,
	}

	s.mu.Lock()
	if len(s.warnings) >= s.limit {
		n := len(s.warnings) - s.limit + 1
		copy(s.warnings, s.warnings[n:])
		for i := len(s.warnings) - n; i < len(s.warnings); i++ {
			s.warnings[i] = nil
		}
		s.warnings = s.warnings[:len(s.warnings)-n]
	}
	s.warnings = append(s.warnings, w)
	s.mu.Unlock()

	slog.Info("Warning added",
		"severity", severity,
		"category", category,
		"source", source,
		"message", message)
}

// List returns matching warnings, newest first
func (s *InMemoryService) List(filter Filter) []Warning {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Warning, 0, len(s.warnings))
	for i := len(s.warnings) - 1; i >= 0; i-- {
		if filter.match(s.warnings[i]) {
			result = append(result, *s.warnings[i])
		}
	}
	return result
}

// Acknowledge marks a warning as seen
func (s *InMemoryService) Acknowledge(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range s.warnings {
		if w.ID == id {
			w.Acknowledged = true
			slog.Info("Warning acknowledged", "warningId", id)
			return true
		}
	}
	return false
}

// Clear removes all warnings
func (s *InMemoryService) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := len(s.warnings)
	s.warnings = nil
	slog.Info("Cleared all warnings", "count", count)
	return count
}

// ClearOlderThan removes warnings older than age
func (s *InMemoryService) ClearOlderThan(age time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	threshold := s.now().Add(-age)
	kept := s.warnings[:0]
	for _, w := range s.warnings {
		if !w.Timestamp.Before(threshold) {
			kept = append(kept, w)
		}
	}
	removed := len(s.warnings) - len(kept)
	for i := len(kept); i < len(s.warnings); i++ {
		s.warnings[i] = nil
	}
	s.warnings = kept

	slog.Info("Cleared old warnings", "count", removed, "age", age)
	return removed
}

// Count returns the current number of warnings
func (s *InMemoryService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.warnings)
}
