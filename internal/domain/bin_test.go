package domain_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"binstatus/internal/domain"

	"github.com/google/uuid"
)

func TestNextAverage(t *testing.T) {
	tests := []struct {
		name                  string
		current, count, value int
		want                  int
	}{
		{"first report", 0, 0, 7, 7},
		{"truncates", 5, 1, 8, 6},
		{"exact", 4, 1, 8, 6},
		{"many reports", 6, 9, 10, 6},
		{"drops toward empty", 10, 3, 0, 7},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := domain.NextAverage(tc.current, tc.count, tc.value); got != tc.want {
				t.Errorf("NextAverage(%d, %d, %d) = %d; want %d",
					tc.current, tc.count, tc.value, got, tc.want)
			}
		})
	}
}

func TestParseBinID(t *testing.T) {
	id := uuid.New()
	got, err := domain.ParseBinID(id.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != id {
		t.Fatalf("expected %s, got %s", id, got)
	}

	_, err = domain.ParseBinID("not-a-uuid")
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestUpdateRequest_RoundTrip(t *testing.T) {
	req := domain.UpdateRequest{BinID: uuid.New(), Status: domain.ClampFillLevel(5)}

	b, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got domain.UpdateRequest
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != req {
		t.Fatalf("round trip mismatch: %+v != %+v", got, req)
	}
}

func TestUpdateResponse_RoundTrip(t *testing.T) {
	resp := domain.UpdateResponse{
		Success:   true,
		Message:   "Bin status updated to 50%",
		UpdatedAt: time.Date(2026, 3, 1, 12, 30, 0, 123456789, time.UTC),
	}

	b, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got domain.UpdateResponse
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Success != resp.Success || got.Message != resp.Message || !got.UpdatedAt.Equal(resp.UpdatedAt) {
		t.Fatalf("round trip mismatch: %+v != %+v", got, resp)
	}

	var m map[string]any
	_ = json.Unmarshal(b, &m)
	if _, ok := m["updated_at"]; !ok {
		t.Fatalf("expected updated_at key, got %s", b)
	}
}

func TestStorageError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := error(&domain.StorageError{Op: "update status", Err: cause})
	if !errors.Is(err, cause) {
		t.Fatal("expected StorageError to unwrap to its cause")
	}
}
