// Package postgres implements the bin average repository on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"binstatus/internal/domain"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// DB wraps a *sqlx.DB and implements domain repository interfaces.
type DB struct {
	sql          *sqlx.DB
	binsTable    string
	reportsTable string
}

type binRow struct {
	BinID        string    `db:"bin_id"`
	Status       int       `db:"status"`
	LastUpdated  time.Time `db:"last_updated"`
	ReportsCount int       `db:"reports_count"`
}

type reportRow struct {
	BinID     string    `db:"bin_id"`
	CreatedAt time.Time `db:"created_at"`
	Status    int       `db:"status"`
}

// Open connects to PostgreSQL and pings.
func Open(ctx context.Context, connStr, binsTable, reportsTable string) (*DB, error) {
	if connStr == "" {
		return nil, &domain.ConfigurationError{Key: "DATABASE_URL", Msg: "connection string is required"}
	}

	s, err := sqlx.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	s.SetMaxOpenConns(10)
	s.SetMaxIdleConns(5)
	s.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.PingContext(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	d, err := New(s, binsTable, reportsTable)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return d, nil
}

// New wraps an open connection.
func New(s *sqlx.DB, binsTable, reportsTable string) (*DB, error) {
	if binsTable == "" {
		return nil, &domain.ConfigurationError{Key: "TRASH_BINS_TABLE", Msg: "table name is required"}
	}
	if reportsTable == "" {
		return nil, &domain.ConfigurationError{Key: "STATUS_REPORTS_TABLE", Msg: "table name is required"}
	}
	return &DB{
		sql:          s,
		binsTable:    pq.QuoteIdentifier(binsTable),
		reportsTable: pq.QuoteIdentifier(reportsTable),
	}, nil
}

// Ensure interfaces are met.
var _ domain.AverageRepository = (*DB)(nil)

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.sql.Close()
}

// Migrate creates the bins and reports tables.
func (d *DB) Migrate(ctx context.Context) error {
	stmts := []string{
		"CREATE TABLE IF NOT EXISTS " + d.binsTable + " (bin_id UUID PRIMARY KEY, status INTEGER NOT NULL CHECK(status BETWEEN 0 AND 10), last_updated TIMESTAMPTZ NOT NULL, reports_count INTEGER NOT NULL);",
		"CREATE TABLE IF NOT EXISTS " + d.reportsTable + " (bin_id UUID NOT NULL, created_at TIMESTAMPTZ NOT NULL, status INTEGER NOT NULL CHECK(status BETWEEN 0 AND 10), PRIMARY KEY (bin_id, created_at));",
	}

	for _, stmt := range stmts {
		if _, err := d.sql.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// UpdateStatus reads the bin row, folds status in and upserts it. Last
// writer wins.
func (d *DB) UpdateStatus(ctx context.Context, id domain.BinID, status domain.FillLevel, at time.Time) error {
	var cur binRow
	err := d.sql.GetContext(ctx, &cur,
		"SELECT bin_id, status, last_updated, reports_count FROM "+d.binsTable+" WHERE bin_id=$1;", id.String())
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return &domain.StorageError{Op: "get bin", Err: err}
	}

	next := binRow{
		BinID:        id.String(),
		Status:       domain.NextAverage(cur.Status, cur.ReportsCount, status.Int()),
		LastUpdated:  at.UTC(),
		ReportsCount: cur.ReportsCount + 1,
	}
	_, err = d.sql.NamedExecContext(ctx,
		"INSERT INTO "+d.binsTable+"(bin_id, status, last_updated, reports_count) VALUES(:bin_id, :status, :last_updated, :reports_count) "+
			"ON CONFLICT(bin_id) DO UPDATE SET status=EXCLUDED.status, last_updated=EXCLUDED.last_updated, reports_count=EXCLUDED.reports_count;",
		next)
	if err != nil {
		return &domain.StorageError{Op: "update bin", Err: err}
	}
	logAverage(id, next.Status, next.ReportsCount)
	return nil
}

// AddReport inserts one report row. A report with the same key replaces
// the earlier one.
func (d *DB) AddReport(ctx context.Context, id domain.BinID, status domain.FillLevel, at time.Time) error {
	_, err := d.sql.NamedExecContext(ctx,
		"INSERT INTO "+d.reportsTable+"(bin_id, created_at, status) VALUES(:bin_id, :created_at, :status) "+
			"ON CONFLICT(bin_id, created_at) DO UPDATE SET status=EXCLUDED.status;",
		reportRow{BinID: id.String(), CreatedAt: at.UTC(), Status: status.Int()})
	if err != nil {
		return &domain.StorageError{Op: "add report", Err: err}
	}
	return nil
}

func logAverage(id domain.BinID, average, count int) {
	avg := domain.ClampFillLevel(average)
	log.Debug().
		Str("bin_id", id.String()).
		Stringer("average", avg).
		Int("percent", avg.Percent()).
		Str("category", avg.Category()).
		Int("reports_count", count).
		Msg("bin average updated")
}
