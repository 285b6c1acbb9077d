package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/logship/collector/internal/models"
	"github.com/telhawk-systems/logship/collector/internal/service"
	"github.com/telhawk-systems/logship/collector/internal/storage"
	"github.com/telhawk-systems/logship/common/devicetoken"
	"github.com/telhawk-systems/logship/common/syslog"
)

const validBody = `{
	"device_id": "AA:BB:CC",
	"timestamp": "2024-03-05T10:20:30",
	"logs": [
		"2024-03-05 10:20:01 pi daemon.info: systemd[1]: Started cron.",
		"2024-03-05 10:20:02 pi kern.crit: kernel: Under-voltage detected!"
	]
}`

type failingStore struct{}

func (failingStore) Backend() string { return "failing" }

func (failingStore) Put(_ context.Context, key string, _ []byte) error {
	return &storage.PutError{Backend: "failing", Key: key, Err: errors.New("unavailable")}
}

type denyLimiter struct{ err error }

func (d denyLimiter) Allow(context.Context, string) (bool, error) { return false, d.err }
func (d denyLimiter) Close() error                                 { return nil }

func newTestHandler(t *testing.T) (*IngestHandler, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFileStore(dir)
	require.NoError(t, err)
	svc := service.NewIngestService(syslog.Classifier{}, store, service.Options{MaxLines: 10})
	return NewIngestHandler(svc, nil, nil, 1<<20), dir
}

func post(h http.HandlerFunc, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/logs", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) models.IngestResponse {
	t.Helper()
	var resp models.IngestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHandleLogs_Success(t *testing.T) {
	h, dir := newTestHandler(t)

	w := post(h.HandleLogs, validBody, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode(t, w)
	assert.Equal(t, models.CodeSuccess, resp.Code)
	assert.Equal(t, "This is AA:BB:CC. We accepted your logs", resp.Text)
	assert.Equal(t, "logs/2024/03/05/AA:BB:CC_logs20240305_102030", resp.PartitionKey)
	assert.Equal(t, 2, resp.Records)
	assert.Equal(t, 1, resp.Unusual)
	assert.Nil(t, resp.InvalidLine)

	stored, err := os.ReadFile(filepath.Join(dir, "logs", "2024", "03", "05", "AA:BB:CC_logs20240305_102030.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(stored), `"hostname":"pi"`)
}

func TestHandleLogs_ClientErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   int
	}{
		{"invalid json", `{"device_id":`, http.StatusBadRequest, models.CodeInvalidData},
		{"missing device", `{"timestamp":"2024-03-05T10:20:30","logs":[]}`, http.StatusBadRequest, models.CodeInvalidData},
		{"missing logs", `{"device_id":"d","timestamp":"2024-03-05T10:20:30"}`, http.StatusBadRequest, models.CodeInvalidData},
		{"bad timestamp", `{"device_id":"d","timestamp":"yesterday","logs":[]}`, http.StatusBadRequest, models.CodeInvalidData},
		{"device id with path", `{"device_id":"x/../../../../2020/01/01/VICTIM","timestamp":"2024-03-05T10:20:30","logs":[]}`, http.StatusBadRequest, models.CodeInvalidData},
		{"device id with dot dot", `{"device_id":"..","timestamp":"2024-03-05T10:20:30","logs":[]}`, http.StatusBadRequest, models.CodeInvalidData},
		{"too many lines", `{"device_id":"d","timestamp":"2024-03-05T10:20:30","logs":[` +
			strings.TrimSuffix(strings.Repeat(`"2024-03-05 10:20:01 pi kern.info: k: m",`, 11), ",") + `]}`,
			http.StatusRequestEntityTooLarge, models.CodeInvalidData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHandler(t)
			w := post(h.HandleLogs, tt.body, nil)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			assert.Equal(t, tt.wantCode, decode(t, w).Code)
		})
	}
}

func TestHandleLogs_UnsafeDeviceIDStoresNothing(t *testing.T) {
	h, dir := newTestHandler(t)

	body := strings.Replace(validBody, `"AA:BB:CC"`, `"x/../AA:BB:CC"`, 1)
	w := post(h.HandleLogs, body, nil)
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	assert.Contains(t, decode(t, w).Text, "invalid device_id")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestHandleLogs_MalformedLine(t *testing.T) {
	h, dir := newTestHandler(t)
	body := `{"device_id":"d","timestamp":"2024-03-05T10:20:30","logs":[
		"2024-03-05 10:20:01 pi kern.info: k: fine",
		"2024-03-05 10:20:02 pi kern.bogus: k: unknown severity"]}`

	w := post(h.HandleLogs, body, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	resp := decode(t, w)
	assert.Equal(t, models.CodeMalformedLine, resp.Code)
	require.NotNil(t, resp.InvalidLine)
	assert.Equal(t, 1, *resp.InvalidLine)

	_, err := os.Stat(filepath.Join(dir, "logs"))
	assert.True(t, os.IsNotExist(err), "nothing stored")
}

func TestHandleLogs_BodyTooLarge(t *testing.T) {
	h, _ := newTestHandler(t)
	h.maxBodyBytes = 16

	w := post(h.HandleLogs, validBody, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestHandleLogs_MethodNotAllowed(t *testing.T) {
	h, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/logs", nil)
	w := httptest.NewRecorder()
	h.HandleLogs(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, http.MethodPost, w.Header().Get("Allow"))
}

func TestHandleLogs_StorageFailure(t *testing.T) {
	svc := service.NewIngestService(syslog.Classifier{}, failingStore{}, service.Options{})
	h := NewIngestHandler(svc, nil, nil, 1<<20)

	w := post(h.HandleLogs, validBody, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, models.CodeUnavailable, decode(t, w).Code)
}

func TestHandleLogs_RateLimited(t *testing.T) {
	h, _ := newTestHandler(t)
	h.limiter = denyLimiter{}

	w := post(h.HandleLogs, validBody, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, models.CodeRateLimited, decode(t, w).Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
}

func TestHandleLogs_LimiterErrorFailsOpen(t *testing.T) {
	h, _ := newTestHandler(t)
	h.limiter = denyLimiter{err: errors.New("redis down")}

	w := post(h.HandleLogs, validBody, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleLogs_DeviceTokens(t *testing.T) {
	const secret = "collector-test-secret-0123456789"
	signer, err := devicetoken.NewSigner(secret, time.Minute)
	require.NoError(t, err)
	verifier, err := devicetoken.NewVerifier(secret)
	require.NoError(t, err)

	good, err := signer.Sign("AA:BB:CC")
	require.NoError(t, err)
	other, err := signer.Sign("DD:EE:FF")
	require.NoError(t, err)

	tests := []struct {
		name       string
		auth       string
		wantStatus int
	}{
		{"valid", "Bearer " + good, http.StatusOK},
		{"lowercase scheme", "bearer " + good, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Splunk " + good, http.StatusUnauthorized},
		{"other device", "Bearer " + other, http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHandler(t)
			h.verifier = verifier

			headers := map[string]string{}
			if tt.auth != "" {
				headers["Authorization"] = tt.auth
			}
			w := post(h.HandleLogs, validBody, headers)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus == http.StatusUnauthorized {
				assert.Equal(t, models.CodeInvalidToken, decode(t, w).Code)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	h, _ := newTestHandler(t)
	w := httptest.NewRecorder()
	h.Health(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, w.Body.String())
}

func TestReady(t *testing.T) {
	h, _ := newTestHandler(t)
	post(h.HandleLogs, validBody, nil)

	h.AddReadinessCheck("storage", func(context.Context) error { return nil })

	w := httptest.NewRecorder()
	h.Ready(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
		Stats  service.Stats     `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ready", body.Status)
	assert.Equal(t, "ok", body.Checks["storage"])
	assert.Equal(t, int64(1), body.Stats.Batches)
	assert.Equal(t, int64(1), body.Stats.Unusual)

	h.AddReadinessCheck("nats", func(context.Context) error { return errors.New("not connected") })
	w = httptest.NewRecorder()
	h.Ready(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "not connected")
}

func TestExtractBearer(t *testing.T) {
	assert.Equal(t, "abc", extractBearer("Bearer abc"))
	assert.Equal(t, "abc", extractBearer("  BEARER   abc "))
	assert.Empty(t, extractBearer("abc"))
	assert.Empty(t, extractBearer(""))
}
