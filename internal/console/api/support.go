package api

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"go.brokerconsole.dev/internal/broker"
	"go.brokerconsole.dev/internal/common/metrics"
)

// SupportClient is the part of the broker client used for support tickets
type SupportClient interface {
	SendSupport(ctx context.Context, req broker.SupportRequest) error
}

// Warner records operator-facing warnings
type Warner interface {
	AddWarning(category, severity, message, source string)
}

// DefaultSupportSeverity is the label preselected in the support form
const DefaultSupportSeverity = "Critical (Cannot produce or consume data)"

var supportSeverities = map[string]bool{
	"critical": true,
	"high":     true,
	"medium":   true,
	"low":      true,
}

// SupportHandler forwards support requests to the broker
type SupportHandler struct {
	client  SupportClient
	limiter *rate.Limiter
	warner  Warner
}

// NewSupportHandler creates a support handler allowing perMinute requests
// with the given burst. warner may be nil.
func NewSupportHandler(client SupportClient, perMinute, burst int, warner Warner) *SupportHandler {
	if perMinute <= 0 {
		perMinute = 6
	}
	if burst <= 0 {
		burst = 1
	}
	// rate.Limiter uses per-second rate
	perSecond := float64(perMinute) / 60.0
	return &SupportHandler{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
		warner:  warner,
	}
}

// RegisterRoutes registers support routes
func (h *SupportHandler) RegisterRoutes(r chi.Router) {
	r.Post("/support", h.Send)
}

type supportRequest struct {
	Severity string `json:"severity"`
	Details  string `json:"details"`
}

type supportResponse struct {
	RequestID string `json:"requestId"`
	Severity  string `json:"severity"`
}

// ParseSupportSeverity reduces a severity label such as
// "High (Critical capabilities are not functioning)" to its first word,
// lowercased. An empty label uses DefaultSupportSeverity.
func ParseSupportSeverity(label string) (string, bool) {
	label = strings.TrimSpace(label)
	if label == "" {
		label = DefaultSupportSeverity
	}
	severity := strings.ToLower(strings.Fields(label)[0])
	return severity, supportSeverities[severity]
}

// Send forwards a support request
func (h *SupportHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req supportRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		WriteBadRequest(w, "Invalid request body: "+err.Error())
		return
	}

	severity, ok := ParseSupportSeverity(req.Severity)
	if !ok {
		WriteBadRequest(w, "severity must be critical, high, medium or low")
		return
	}
	details := strings.TrimSpace(req.Details)
	if details == "" {
		WriteBadRequest(w, "details are required")
		return
	}

	reservation := h.limiter.Reserve()
	if delay := reservation.Delay(); delay > 0 {
		reservation.Cancel()
		metrics.SupportRateLimited.Inc()
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(delay)))
		WriteError(w, http.StatusTooManyRequests, "rate_limited", "Too many support requests, try again later")
		return
	}

	if err := h.client.SendSupport(r.Context(), broker.SupportRequest{
		Severity: severity,
		Details:  details,
	}); err != nil {
		if h.warner != nil && !errors.Is(err, broker.ErrValidation) {
			h.warner.AddWarning("SUPPORT", "ERROR",
				"Support request could not be delivered: "+err.Error(), "support")
		}
		WriteBrokerError(w, "send support request", err)
		return
	}

	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	WriteJSON(w, http.StatusAccepted, supportResponse{RequestID: id.String(), Severity: severity})
}

func retryAfterSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}
