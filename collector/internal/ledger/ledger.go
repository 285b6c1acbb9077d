// Package ledger records every stored batch in PostgreSQL. It is the
// audit trail for what was written where, and it detects partition key
// collisions: two batches of one device sent within the same second.
package ledger

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Entry describes one stored batch. Digest is the Signer output for the
// stored object, empty when signing is off.
type Entry struct {
	ID             string
	DeviceID       string
	SentAt         time.Time
	PartitionKey   string
	StorageBackend string
	Records        int
	Unusual        int
	SeverityCounts map[string]int
	Digest         string
	Collision      bool
	ReceivedAt     time.Time
}

// Recorder is what the ingest service needs from the ledger.
type Recorder interface {
	// Record stores e and reports whether its partition key was already
	// recorded.
	Record(ctx context.Context, e *Entry) (collision bool, err error)
}

type PostgresLedger struct {
	pool *pgxpool.Pool
}

func NewPostgresLedger(ctx context.Context, connString string) (*PostgresLedger, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresLedger{pool: pool}, nil
}

func (l *PostgresLedger) Close() {
	l.pool.Close()
}

// Ping reports whether the database is reachable.
func (l *PostgresLedger) Ping(ctx context.Context) error {
	return l.pool.Ping(ctx)
}

// Migrate applies the embedded migrations. It returns the resulting
// schema version.
func Migrate(connString string) (uint, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return 0, fmt.Errorf("open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, connString)
	if err != nil {
		return 0, fmt.Errorf("failed to initialize migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("failed to run migrations: %w", err)
	}

	version, _, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("read migration version: %w", err)
	}
	return version, nil
}

func (l *PostgresLedger) Record(ctx context.Context, e *Entry) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	counts, err := json.Marshal(e.SeverityCounts)
	if err != nil {
		return false, fmt.Errorf("marshal severity counts: %w", err)
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin ledger transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Serialize writers of one key so concurrent duplicates both see it.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, e.PartitionKey); err != nil {
		return false, fmt.Errorf("lock partition key: %w", err)
	}

	var collision bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM batches WHERE partition_key = $1)`,
		e.PartitionKey,
	).Scan(&collision)
	if err != nil {
		return false, fmt.Errorf("check partition key: %w", err)
	}
	e.Collision = collision

	err = tx.QueryRow(ctx, `
		INSERT INTO batches (id, device_id, sent_at, partition_key, storage_backend, records, unusual, severity_counts, digest, collision)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING received_at
	`, e.ID, e.DeviceID, e.SentAt, e.PartitionKey, e.StorageBackend,
		e.Records, e.Unusual, counts, e.Digest, e.Collision,
	).Scan(&e.ReceivedAt)
	if err != nil {
		return false, fmt.Errorf("insert batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit ledger transaction: %w", err)
	}
	return collision, nil
}

// Recent returns the latest entries for a device, newest first.
func (l *PostgresLedger) Recent(ctx context.Context, deviceID string, limit int) ([]Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}

	rows, err := l.pool.Query(ctx, `
		SELECT id, device_id, sent_at, partition_key, storage_backend, records, unusual, severity_counts, digest, collision, received_at
		FROM batches
		WHERE device_id = $1
		ORDER BY received_at DESC
		LIMIT $2
	`, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var counts []byte
		if err := rows.Scan(&e.ID, &e.DeviceID, &e.SentAt, &e.PartitionKey, &e.StorageBackend,
			&e.Records, &e.Unusual, &counts, &e.Digest, &e.Collision, &e.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		if err := json.Unmarshal(counts, &e.SeverityCounts); err != nil {
			return nil, fmt.Errorf("decode severity counts: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
