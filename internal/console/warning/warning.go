// Package warning keeps operator-facing warnings raised by the console:
// failing snapshot sources, malformed samples, feed resets and broker API
// trouble.
package warning

import (
	"strings"
	"time"
)

// Severity levels for warnings
const (
	SeverityCritical = "CRITICAL"
	SeverityError    = "ERROR"
	SeverityWarning  = "WARNING"
	SeverityInfo     = "INFO"
)

// Warning categories raised by the console
const (
	CategorySource   = "SOURCE"   // snapshot source failing
	CategorySnapshot = "SNAPSHOT" // samples dropped from snapshots
	CategoryFeed     = "FEED"     // feed reset by a membership change
	CategoryBroker   = "BROKER"   // broker API circuit breaker
	CategorySupport  = "SUPPORT"  // support requests failing or throttled
)

// Warning represents a system warning or error notification
type Warning struct {
	ID           string    `json:"id"`
	Category     string    `json:"category"`
	Severity     string    `json:"severity"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
	Source       string    `json:"source"`
	Acknowledged bool      `json:"acknowledged"`
}

// Filter selects warnings. Zero values match everything.
type Filter struct {
	Severity       string
	Category       string
	Unacknowledged bool
}

func (f Filter) match(w *Warning) bool {
	if f.Severity != "" && !strings.EqualFold(w.Severity, f.Severity) {
		return false
	}
	if f.Category != "" && !strings.EqualFold(w.Category, f.Category) {
		return false
	}
	if f.Unacknowledged && w.Acknowledged {
		return false
	}
	return true
}
