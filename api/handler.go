package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/yourusername/ratecell/pkg/ratecell"
)

// Handler handles admission check requests
type Handler struct {
	limiter ratecell.RateLimiter
	metrics MetricsRecorder
}

// MetricsRecorder defines the interface for recording metrics
type MetricsRecorder interface {
	RecordDecision(limited bool, elapsed time.Duration)
	RecordError()
}

// NewHandler creates a new API handler
func NewHandler(limiter ratecell.RateLimiter, metrics MetricsRecorder) *Handler {
	return &Handler{
		limiter: limiter,
		metrics: metrics,
	}
}

// CheckRequest carries one admission check: a bucket key, its quota, and the
// cost of this request. Cost defaults to 1; 0 probes without consuming.
type CheckRequest struct {
	Key            string `json:"key"`
	Burst          int64  `json:"burst"`
	CountPerPeriod int64  `json:"count_per_period"`
	PeriodSeconds  int64  `json:"period_seconds"`
	Cost           *int64 `json:"cost,omitempty"`
}

// CheckResponse is the five-field verdict: denied or not, the instantaneous
// limit (burst+1), remaining capacity, seconds to wait before retrying (-1
// when the cost can never fit), and seconds until the bucket is idle again.
type CheckResponse struct {
	Limited    bool  `json:"limited"`
	Limit      int64 `json:"limit"`
	Remaining  int64 `json:"remaining"`
	RetryAfter int64 `json:"retry_after"`
	TTL        int64 `json:"ttl"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Check handles POST /check requests
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST requests are allowed")
		return
	}

	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	if req.Key == "" {
		h.sendError(w, http.StatusBadRequest, "missing_key", "key is required")
		return
	}

	cost := int64(1)
	if req.Cost != nil {
		cost = *req.Cost
	}

	quota := ratecell.Quota{
		Burst:          req.Burst,
		CountPerPeriod: req.CountPerPeriod,
		PeriodSeconds:  req.PeriodSeconds,
	}

	start := time.Now()
	decision, err := h.limiter.AllowQuota(r.Context(), req.Key, quota, cost)
	if err != nil {
		if h.metrics != nil {
			h.metrics.RecordError()
		}
		status, code := classifyError(err)
		h.sendError(w, status, code, err.Error())
		return
	}

	if h.metrics != nil {
		h.metrics.RecordDecision(decision.Limited, time.Since(start))
	}

	statusCode := http.StatusOK
	if decision.Limited {
		statusCode = http.StatusTooManyRequests
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(CheckResponse{
		Limited:    decision.Limited,
		Limit:      decision.Limit,
		Remaining:  decision.Remaining,
		RetryAfter: decision.RetryAfter,
		TTL:        decision.TTL,
	})
}

// classifyError maps limiter errors to an HTTP status and a stable code.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, ratecell.ErrInvalidBurst):
		return http.StatusBadRequest, "invalid_burst"
	case errors.Is(err, ratecell.ErrInvalidRate):
		return http.StatusBadRequest, "invalid_count_per_period"
	case errors.Is(err, ratecell.ErrInvalidPeriod):
		return http.StatusBadRequest, "invalid_period_seconds"
	case errors.Is(err, ratecell.ErrInvalidCost):
		return http.StatusBadRequest, "invalid_cost"
	case errors.Is(err, ratecell.ErrQuotaOverflow):
		return http.StatusBadRequest, "quota_overflow"
	case errors.Is(err, ratecell.ErrInvalidKey):
		return http.StatusBadRequest, "invalid_key"
	case errors.Is(err, ratecell.ErrCorruptState), errors.Is(err, ratecell.ErrWrongType):
		return http.StatusConflict, "state_conflict"
	default:
		return http.StatusInternalServerError, "store_error"
	}
}

// sendError sends a JSON error response
func (h *Handler) sendError(w http.ResponseWriter, statusCode int, errCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   errCode,
		Message: message,
	})
}
