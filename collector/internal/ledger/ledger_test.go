package ledger

import (
	"context"
	"os"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestEmbeddedMigrations(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	assert.Equal(t, []string{"001_init.down.sql", "001_init.up.sql", "002_digest.down.sql", "002_digest.up.sql"}, names)
}

// setupTestLedger starts PostgreSQL in a container. Set
// LOGSHIP_INTEGRATION=1 to run it.
func setupTestLedger(t *testing.T) *PostgresLedger {
	t.Helper()
	if os.Getenv("LOGSHIP_INTEGRATION") != "1" {
		t.Skip("set LOGSHIP_INTEGRATION=1 to run PostgreSQL tests")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("logship_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	version, err := Migrate(connStr)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)

	l, err := NewPostgresLedger(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(l.Close)
	return l
}

func TestPostgresLedger_RecordAndCollision(t *testing.T) {
	l := setupTestLedger(t)
	ctx := context.Background()
	sentAt := time.Date(2024, 3, 5, 10, 20, 30, 0, time.UTC)

	first := &Entry{
		DeviceID:       "AA:BB:CC",
		SentAt:         sentAt,
		PartitionKey:   "logs/2024/03/05/AA:BB:CC_logs20240305_102030",
		StorageBackend: "s3",
		Records:        3,
		Unusual:        1,
		SeverityCounts: map[string]int{"crit": 1},
		Digest:         NewSigner("k").Sign("logs/2024/03/05/AA:BB:CC_logs20240305_102030", sentAt, []byte("body")),
	}
	collision, err := l.Record(ctx, first)
	require.NoError(t, err)
	assert.False(t, collision)
	assert.NotEmpty(t, first.ID)
	assert.False(t, first.ReceivedAt.IsZero())

	second := *first
	second.ID = ""
	second.Records = 5
	collision, err = l.Record(ctx, &second)
	require.NoError(t, err)
	assert.True(t, collision, "same device and second reuses the key")

	recent, err := l.Recent(ctx, "AA:BB:CC", 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, map[string]int{"crit": 1}, recent[0].SeverityCounts)
	assert.Equal(t, first.Digest, recent[0].Digest)

	none, err := l.Recent(ctx, "other", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}
