// Package app holds the application services and business logic.
package app

import (
	"context"
	"time"

	"binstatus/internal/domain"
)

// UpdateService records a fill-level report against a bin.
type UpdateService struct {
	repo domain.AverageRepository
	now  func() time.Time
}

// NewUpdateService creates an UpdateService backed by the given repository.
func NewUpdateService(repo domain.AverageRepository) *UpdateService {
	return &UpdateService{repo: repo, now: time.Now}
}

// WithClock replaces the time source, for tests.
func (s *UpdateService) WithClock(now func() time.Time) *UpdateService {
	s.now = now
	return s
}

// Execute updates the bin's running average and then appends the report.
// A failed average update aborts before the report is written. A failed
// report leaves the average updated.
func (s *UpdateService) Execute(ctx context.Context, req domain.UpdateRequest) (*domain.UpdateResponse, error) {
	at := s.now().UTC()

	if err := s.repo.UpdateStatus(ctx, req.BinID, req.Status, at); err != nil {
		return nil, err
	}
	if err := s.repo.AddReport(ctx, req.BinID, req.Status, at); err != nil {
		return nil, err
	}

	return &domain.UpdateResponse{
		Success:   true,
		Message:   "Bin status updated to " + req.Status.String(),
		UpdatedAt: at,
	}, nil
}
