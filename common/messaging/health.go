package messaging

import (
	"context"
	"time"
)

// Flusher is implemented by clients that can round-trip to the server.
type Flusher interface {
	FlushContext(ctx context.Context) error
}

// HealthStatus is the readiness view of a broker connection.
type HealthStatus struct {
	Connected bool          `json:"connected"`
	Latency   time.Duration `json:"latency_ms"`
	Error     string        `json:"error,omitempty"`
}

// CheckClientHealth reports whether client is connected and, when it
// supports flushing, how long a server round trip takes.
func CheckClientHealth(ctx context.Context, client Client) HealthStatus {
	var status HealthStatus

	if client == nil {
		status.Error = "client is nil"
		return status
	}

	status.Connected = client.IsConnected()
	if !status.Connected {
		status.Error = "not connected to message broker"
		return status
	}

	if f, ok := client.(Flusher); ok {
		start := time.Now()
		err := f.FlushContext(ctx)
		status.Latency = time.Since(start)
		if err != nil {
			status.Error = "flush failed: " + err.Error()
		}
	}

	return status
}
