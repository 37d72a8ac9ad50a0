package app_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"binstatus/internal/app"
	"binstatus/internal/domain"

	"github.com/google/uuid"
)

type mockAverageRepo struct {
	updateFn func(ctx context.Context, id domain.BinID, status domain.FillLevel, at time.Time) error
	reportFn func(ctx context.Context, id domain.BinID, status domain.FillLevel, at time.Time) error

	calls []string
}

func (m *mockAverageRepo) UpdateStatus(ctx context.Context, id domain.BinID, status domain.FillLevel, at time.Time) error {
	m.calls = append(m.calls, "UpdateStatus")
	if m.updateFn != nil {
		return m.updateFn(ctx, id, status, at)
	}
	return nil
}

func (m *mockAverageRepo) AddReport(ctx context.Context, id domain.BinID, status domain.FillLevel, at time.Time) error {
	m.calls = append(m.calls, "AddReport")
	if m.reportFn != nil {
		return m.reportFn(ctx, id, status, at)
	}
	return nil
}

var fixedNow = time.Date(2026, 2, 8, 7, 0, 0, 0, time.UTC)

func newService(repo domain.AverageRepository) *app.UpdateService {
	return app.NewUpdateService(repo).WithClock(func() time.Time { return fixedNow })
}

func TestExecute_Success(t *testing.T) {
	binID := uuid.New()
	var updateAt, reportAt time.Time
	repo := &mockAverageRepo{
		updateFn: func(_ context.Context, id domain.BinID, status domain.FillLevel, at time.Time) error {
			if id != binID || status.Int() != 7 {
				t.Fatalf("unexpected update args: %s %d", id, status.Int())
			}
			updateAt = at
			return nil
		},
		reportFn: func(_ context.Context, _ domain.BinID, _ domain.FillLevel, at time.Time) error {
			reportAt = at
			return nil
		},
	}

	resp, err := newService(repo).Execute(context.Background(), domain.UpdateRequest{
		BinID:  binID,
		Status: domain.ClampFillLevel(7),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Success {
		t.Fatal("expected success")
	}
	if resp.Message != "Bin status updated to 70%" {
		t.Fatalf("unexpected message %q", resp.Message)
	}
	if !updateAt.Equal(fixedNow) || !reportAt.Equal(fixedNow) || !resp.UpdatedAt.Equal(fixedNow) {
		t.Fatalf("timestamps disagree: update=%v report=%v resp=%v", updateAt, reportAt, resp.UpdatedAt)
	}
	if strings.Join(repo.calls, ",") != "UpdateStatus,AddReport" {
		t.Fatalf("unexpected call order %v", repo.calls)
	}
}

func TestExecute_FullMessage(t *testing.T) {
	resp, err := newService(&mockAverageRepo{}).Execute(context.Background(), domain.UpdateRequest{
		BinID:  uuid.New(),
		Status: domain.FillLevelFull,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Message != "Bin status updated to Full" {
		t.Fatalf("unexpected message %q", resp.Message)
	}
}

func TestExecute_UpdateStatusFails(t *testing.T) {
	storageErr := &domain.StorageError{Op: "update status", Err: errors.New("throttled")}
	repo := &mockAverageRepo{
		updateFn: func(context.Context, domain.BinID, domain.FillLevel, time.Time) error { return storageErr },
	}

	resp, err := newService(repo).Execute(context.Background(), domain.UpdateRequest{BinID: uuid.New()})
	if resp != nil {
		t.Fatalf("expected nil response, got %+v", resp)
	}
	var serr *domain.StorageError
	if !errors.As(err, &serr) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	for _, c := range repo.calls {
		if c == "AddReport" {
			t.Fatal("AddReport must not run after a failed UpdateStatus")
		}
	}
}

func TestExecute_AddReportFails(t *testing.T) {
	storageErr := &domain.StorageError{Op: "add report", Err: errors.New("table missing")}
	repo := &mockAverageRepo{
		reportFn: func(context.Context, domain.BinID, domain.FillLevel, time.Time) error { return storageErr },
	}

	_, err := newService(repo).Execute(context.Background(), domain.UpdateRequest{BinID: uuid.New()})
	if !errors.Is(err, storageErr) {
		t.Fatalf("expected the AddReport error, got %v", err)
	}
	if strings.Join(repo.calls, ",") != "UpdateStatus,AddReport" {
		t.Fatalf("unexpected call order %v", repo.calls)
	}
}
