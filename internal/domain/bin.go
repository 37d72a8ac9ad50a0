// Package domain contains the core business entities and interfaces.
package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// BinID identifies a single waste bin.
type BinID = uuid.UUID

// ParseBinID parses a UUID-shaped bin identifier.
func ParseBinID(s string) (BinID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, &ValidationError{Field: "bin_id", Msg: err.Error()}
	}
	return id, nil
}

// UpdateRequest is one fill-level report for a bin.
type UpdateRequest struct {
	BinID  BinID     `json:"bin_id"`
	Status FillLevel `json:"status"`
}

// UpdateResponse is returned after a report has been stored.
type UpdateResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BinState is the stored running average of a bin.
type BinState struct {
	BinID        BinID
	Status       int
	LastUpdated  time.Time
	ReportsCount int
}

// Report is one immutable fill-level observation.
type Report struct {
	BinID     BinID
	CreatedAt time.Time
	Status    int
}

// NextAverage folds value into the running average of reportsCount prior
// reports. Division truncates.
func NextAverage(current, reportsCount, value int) int {
	if reportsCount <= 0 {
		return value
	}
	return (current*reportsCount + value) / (reportsCount + 1)
}

// AverageRepository is the port every storage backend implements. It does
// not order the two calls; callers do.
type AverageRepository interface {
	// UpdateStatus folds status into the bin's running average and stamps
	// lastUpdated. A bin without a record starts from zero.
	UpdateStatus(ctx context.Context, id BinID, status FillLevel, at time.Time) error
	// AddReport appends one report record.
	AddReport(ctx context.Context, id BinID, status FillLevel, at time.Time) error
}
