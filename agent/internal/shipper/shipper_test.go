package shipper

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/logship/common/devicetoken"
	"github.com/telhawk-systems/logship/common/middleware"
)

var sentAt = time.Date(2024, 3, 5, 10, 20, 30, 0, time.UTC)

func TestShip_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/logs", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get(middleware.RequestIDHeader))
		assert.Empty(t, r.Header.Get("Authorization"))

		var env Envelope
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&env))
		assert.Equal(t, "AB12CD34", env.DeviceID)
		assert.Equal(t, "2024-03-05T10:20:30", env.Timestamp)
		assert.Equal(t, []string{"line one", "line two"}, env.Logs)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"This is AB12CD34. We accepted your logs","code":0,"partition_key":"logs/2024/03/05/AB12CD34_logs20240305_102030","records":2,"unusual":0}`))
	}))
	defer server.Close()

	c := New(server.URL+"/api/v1/logs", time.Second, nil)
	resp, err := c.Ship(context.Background(), "AB12CD34", sentAt, []string{"line one", "line two"})
	require.NoError(t, err)

	assert.Equal(t, 0, resp.Code)
	assert.Equal(t, 2, resp.Records)
	assert.Equal(t, "logs/2024/03/05/AB12CD34_logs20240305_102030", resp.PartitionKey)
}

func TestShip_NilLinesSentAsEmptyArray(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]json.RawMessage
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		assert.JSONEq(t, `[]`, string(raw["logs"]))
		w.Write([]byte(`{"text":"ok","code":0}`))
	}))
	defer server.Close()

	_, err := New(server.URL, time.Second, nil).Ship(context.Background(), "d", sentAt, nil)
	require.NoError(t, err)
}

func TestShip_BearerToken(t *testing.T) {
	const secret = "agent-test-secret-0123456789abcdef"
	signer, err := devicetoken.NewSigner(secret, time.Minute)
	require.NoError(t, err)
	verifier, err := devicetoken.NewVerifier(secret)
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		assert.True(t, ok)
		_, err := verifier.VerifyDevice(token, "AB12CD34")
		assert.NoError(t, err)
		w.Write([]byte(`{"text":"ok","code":0}`))
	}))
	defer server.Close()

	_, err = New(server.URL, time.Second, signer).Ship(context.Background(), "AB12CD34", sentAt, []string{})
	require.NoError(t, err)
}

func TestShip_StatusErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		retryable bool
		wantText  string
	}{
		{"malformed line", http.StatusBadRequest, `{"text":"line 2: malformed","code":7,"invalid_line":1}`, false, "line 2: malformed"},
		{"unauthorized", http.StatusUnauthorized, `{"text":"Invalid token","code":4}`, false, "Invalid token"},
		{"rate limited", http.StatusTooManyRequests, `{"text":"Rate limit exceeded","code":10}`, true, "Rate limit exceeded"},
		{"storage down", http.StatusServiceUnavailable, `{"text":"Storage unavailable","code":9}`, true, "Storage unavailable"},
		{"proxy error page", http.StatusBadGateway, `<html>bad gateway</html>`, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := New(server.URL, time.Second, nil).Ship(context.Background(), "d", sentAt, []string{"x"})
			require.Error(t, err)

			var se *StatusError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.status, se.StatusCode)
			assert.Equal(t, tt.wantText, se.Response.Text)
			assert.Equal(t, tt.retryable, IsRetryable(err))
		})
	}
}

func TestShip_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := New(url, time.Second, nil).Ship(context.Background(), "d", sentAt, []string{"x"})
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestShip_InvalidSuccessBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer server.Close()

	_, err := New(server.URL, time.Second, nil).Ship(context.Background(), "d", sentAt, []string{"x"})
	assert.ErrorContains(t, err, "decode response")
}

func TestIsRetryable_Nil(t *testing.T) {
	assert.False(t, IsRetryable(nil))
}
