package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/telhawk-systems/logship/collector/internal/devicestats"
	"github.com/telhawk-systems/logship/collector/internal/metrics"
	"github.com/telhawk-systems/logship/collector/internal/models"
	"github.com/telhawk-systems/logship/collector/internal/ratelimit"
	"github.com/telhawk-systems/logship/collector/internal/service"
	"github.com/telhawk-systems/logship/common/batch"
	"github.com/telhawk-systems/logship/common/devicetoken"
	"github.com/telhawk-systems/logship/common/httputil"
	"github.com/telhawk-systems/logship/common/logging"
)

// Ingester is the service behind the ingest endpoint.
type Ingester interface {
	Ingest(ctx context.Context, deviceID string, sentAt time.Time, lines []string) (*service.Result, error)
	GetStats() service.Stats
	DLQStats(ctx context.Context) map[string]interface{}
}

// TokenVerifier checks device bearer tokens.
type TokenVerifier interface {
	VerifyDevice(token, deviceID string) (*devicetoken.Claims, error)
}

// UsageRecorder is told about every accepted batch.
type UsageRecorder interface {
	Record(deviceID string, records, unusual int, partitionKey, ip string)
}

// DeviceStatsReader serves per-device activity.
type DeviceStatsReader interface {
	Get(ctx context.Context, deviceID string) (*devicestats.Stats, error)
	Active(ctx context.Context, window time.Duration) ([]string, error)
}

// ReadinessCheck returns nil when a dependency is usable.
type ReadinessCheck func(ctx context.Context) error

type IngestHandler struct {
	service      Ingester
	limiter      ratelimit.RateLimiter
	verifier     TokenVerifier
	maxBodyBytes int64
	retryAfter   time.Duration
	checks       map[string]ReadinessCheck
	usage        UsageRecorder
	devices      DeviceStatsReader
}

// NewIngestHandler wires the endpoint. A nil limiter allows every request;
// a nil verifier disables token checks.
func NewIngestHandler(svc Ingester, limiter ratelimit.RateLimiter, verifier TokenVerifier, maxBodyBytes int64) *IngestHandler {
	if limiter == nil {
		limiter = &ratelimit.NoOpRateLimiter{}
	}
	return &IngestHandler{
		service:      svc,
		limiter:      limiter,
		verifier:     verifier,
		maxBodyBytes: maxBodyBytes,
		retryAfter:   time.Minute,
		checks:       make(map[string]ReadinessCheck),
	}
}

// AddReadinessCheck registers a dependency reported by Ready.
func (h *IngestHandler) AddReadinessCheck(name string, check ReadinessCheck) {
	h.checks[name] = check
}

// SetDeviceStats enables per-device activity tracking. Either argument
// may be nil.
func (h *IngestHandler) SetDeviceStats(usage UsageRecorder, devices DeviceStatsReader) {
	h.usage = usage
	h.devices = devices
}

// HandleLogs accepts one batch: {"device_id", "timestamp", "logs"}.
func (h *IngestHandler) HandleLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.Default()

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		httputil.WriteStatus(w, http.StatusMethodNotAllowed, models.CodeInvalidData, "Method not allowed")
		return
	}

	var token string
	if h.verifier != nil {
		token = extractBearer(r.Header.Get("Authorization"))
		if token == "" {
			metrics.AuthFailures.Inc()
			httputil.WriteStatus(w, http.StatusUnauthorized, models.CodeInvalidToken, "Token is required")
			return
		}
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteStatus(w, http.StatusRequestEntityTooLarge, models.CodeInvalidData, "Request body too large")
			return
		}
		httputil.WriteStatus(w, http.StatusBadRequest, models.CodeInvalidData, "Failed to read request body")
		return
	}
	metrics.RequestBytesTotal.Add(float64(len(body)))

	var req models.IngestRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httputil.WriteStatus(w, http.StatusBadRequest, models.CodeInvalidData, "Invalid JSON in request body")
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteStatus(w, http.StatusBadRequest, models.CodeInvalidData, err.Error())
		return
	}
	sentAt, err := models.ParseTimestamp(req.Timestamp)
	if err != nil {
		httputil.WriteStatus(w, http.StatusBadRequest, models.CodeInvalidData, err.Error())
		return
	}

	if h.verifier != nil {
		if _, err := h.verifier.VerifyDevice(token, req.DeviceID); err != nil {
			metrics.AuthFailures.Inc()
			logger.WarnContext(ctx, "Rejected device token",
				logging.DeviceID(req.DeviceID),
				logging.IP(clientIP(r)),
				logging.Error(err),
			)
			httputil.WriteStatus(w, http.StatusUnauthorized, models.CodeInvalidToken, "Invalid token")
			return
		}
	}

	allowed, err := h.limiter.Allow(ctx, req.DeviceID)
	if err != nil {
		// Limiter errors fail open.
		logger.WarnContext(ctx, "Rate limit check failed", logging.Error(err))
		allowed = true
	}
	if !allowed {
		w.Header().Set("Retry-After", strconv.Itoa(int(h.retryAfter.Seconds())))
		httputil.WriteStatus(w, http.StatusTooManyRequests, models.CodeRateLimited, "Rate limit exceeded")
		return
	}

	res, err := h.service.Ingest(ctx, req.DeviceID, sentAt, req.Logs)
	if err != nil {
		h.writeIngestError(w, err)
		return
	}
	if h.usage != nil {
		h.usage.Record(req.DeviceID, res.Records, res.Unusual, res.PartitionKey, clientIP(r))
	}

	httputil.WriteJSON(w, http.StatusOK, models.IngestResponse{
		Text:         fmt.Sprintf("This is %s. We accepted your logs", req.DeviceID),
		Code:         models.CodeSuccess,
		PartitionKey: res.PartitionKey,
		Records:      res.Records,
		Unusual:      res.Unusual,
	})
}

func (h *IngestHandler) writeIngestError(w http.ResponseWriter, err error) {
	var lineErr *batch.LineError
	switch {
	case errors.As(err, &lineErr):
		idx := lineErr.Index
		httputil.WriteJSON(w, http.StatusBadRequest, models.IngestResponse{
			Text:        lineErr.Error(),
			Code:        models.CodeMalformedLine,
			InvalidLine: &idx,
		})
	case errors.Is(err, service.ErrTooManyLines):
		httputil.WriteStatus(w, http.StatusRequestEntityTooLarge, models.CodeInvalidData, err.Error())
	case errors.Is(err, service.ErrStorage):
		httputil.WriteStatus(w, http.StatusServiceUnavailable, models.CodeUnavailable, "Storage unavailable, retry later")
	default:
		slog.Error("Unexpected ingest error", logging.Error(err))
		httputil.WriteStatus(w, http.StatusInternalServerError, models.CodeUnavailable, "Internal error")
	}
}

// DeviceStats serves GET /api/v1/devices/{id}/stats.
func (h *IngestHandler) DeviceStats(w http.ResponseWriter, r *http.Request) {
	if h.devices == nil {
		httputil.WriteStatus(w, http.StatusServiceUnavailable, models.CodeUnavailable, "Device stats are not enabled")
		return
	}

	id := r.PathValue("id")
	stats, err := h.devices.Get(r.Context(), id)
	if errors.Is(err, devicestats.ErrUnknownDevice) {
		httputil.WriteStatus(w, http.StatusNotFound, models.CodeInvalidData, "Unknown device")
		return
	}
	if err != nil {
		logging.Default().ErrorContext(r.Context(), "Failed to read device stats",
			logging.DeviceID(id),
			logging.Error(err),
		)
		httputil.WriteStatus(w, http.StatusServiceUnavailable, models.CodeUnavailable, "Device stats unavailable")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

// ActiveDevices serves GET /api/v1/devices?window=1h, listing devices
// that sent a batch within window (24h when omitted).
func (h *IngestHandler) ActiveDevices(w http.ResponseWriter, r *http.Request) {
	if h.devices == nil {
		httputil.WriteStatus(w, http.StatusServiceUnavailable, models.CodeUnavailable, "Device stats are not enabled")
		return
	}

	window := 24 * time.Hour
	if raw := r.URL.Query().Get("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			httputil.WriteStatus(w, http.StatusBadRequest, models.CodeInvalidData, "Invalid window")
			return
		}
		window = d
	}

	ids, err := h.devices.Active(r.Context(), window)
	if err != nil {
		logging.Default().ErrorContext(r.Context(), "Failed to list active devices", logging.Error(err))
		httputil.WriteStatus(w, http.StatusServiceUnavailable, models.CodeUnavailable, "Device stats unavailable")
		return
	}
	if ids == nil {
		ids = []string{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"window":  window.String(),
		"devices": ids,
	})
}

func (h *IngestHandler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready runs every readiness check and reports service counters.
func (h *IngestHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			checks[name] = "ok"
		}
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}

	resp := map[string]interface{}{
		"status": state,
		"checks": checks,
		"stats":  h.service.GetStats(),
	}
	if dlqStats := h.service.DLQStats(ctx); dlqStats != nil {
		resp["dlq"] = dlqStats
	}
	httputil.WriteJSON(w, status, resp)
}

func extractBearer(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
