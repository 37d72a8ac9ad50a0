package postgres

import (
	"context"
	"errors"
	"testing"

	"binstatus/internal/domain"
)

func TestNew_QuotesTables(t *testing.T) {
	d, err := New(nil, "trash-bins", "status_reports")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.binsTable != `"trash-bins"` {
		t.Errorf("expected quoted bins table, got %s", d.binsTable)
	}
	if d.reportsTable != `"status_reports"` {
		t.Errorf("expected quoted reports table, got %s", d.reportsTable)
	}
}

func TestNew_MissingConfig(t *testing.T) {
	tests := []struct {
		name          string
		bins, reports string
		wantKey       string
	}{
		{"no bins table", "", "reports", "TRASH_BINS_TABLE"},
		{"no reports table", "bins", "", "STATUS_REPORTS_TABLE"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(nil, tc.bins, tc.reports)
			var cerr *domain.ConfigurationError
			if !errors.As(err, &cerr) {
				t.Fatalf("expected ConfigurationError, got %v", err)
			}
			if cerr.Key != tc.wantKey {
				t.Fatalf("expected key %s, got %s", tc.wantKey, cerr.Key)
			}
		})
	}
}

func TestOpen_RequiresDSN(t *testing.T) {
	_, err := Open(context.Background(), "", "bins", "reports")
	var cerr *domain.ConfigurationError
	if !errors.As(err, &cerr) || cerr.Key != "DATABASE_URL" {
		t.Fatalf("expected DATABASE_URL ConfigurationError, got %v", err)
	}
}
