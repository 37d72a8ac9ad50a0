// Package memory implements an in-memory repository for development and testing.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"binstatus/internal/domain"
)

// DB implements an in-memory database storage.
type DB struct {
	mu      sync.Mutex
	bins    map[domain.BinID]domain.BinState
	reports map[domain.BinID][]domain.Report

	// FailUpdate and FailReport, when set, are returned (wrapped in a
	// StorageError) instead of performing the write.
	FailUpdate error
	FailReport error
}

// New creates a new in-memory database.
func New() *DB {
	return &DB{
		bins:    make(map[domain.BinID]domain.BinState),
		reports: make(map[domain.BinID][]domain.Report),
	}
}

// Ensure interfaces are met.
var _ domain.AverageRepository = (*DB)(nil)

// UpdateStatus folds status into the bin's running average.
func (db *DB) UpdateStatus(ctx context.Context, id domain.BinID, status domain.FillLevel, at time.Time) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.FailUpdate != nil {
		return &domain.StorageError{Op: "update status", Err: db.FailUpdate}
	}

	// Missing bins start from zero.
	cur := db.bins[id]
	db.bins[id] = domain.BinState{
		BinID:        id,
		Status:       domain.NextAverage(cur.Status, cur.ReportsCount, status.Int()),
		LastUpdated:  at.UTC(),
		ReportsCount: cur.ReportsCount + 1,
	}
	return nil
}

// AddReport appends a report.
func (db *DB) AddReport(ctx context.Context, id domain.BinID, status domain.FillLevel, at time.Time) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.FailReport != nil {
		return &domain.StorageError{Op: "add report", Err: db.FailReport}
	}

	db.reports[id] = append(db.reports[id], domain.Report{
		BinID:     id,
		CreatedAt: at.UTC(),
		Status:    status.Int(),
	})
	return nil
}

// Bin returns the stored state for id and whether it exists.
func (db *DB) Bin(id domain.BinID) (domain.BinState, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()

	s, ok := db.bins[id]
	return s, ok
}

// Reports returns a copy of the reports for id, oldest first.
func (db *DB) Reports(id domain.BinID) []domain.Report {
	db.mu.Lock()
	defer db.mu.Unlock()

	result := make([]domain.Report, len(db.reports[id]))
	copy(result, db.reports[id])

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}
