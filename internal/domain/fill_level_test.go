package domain_test

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"testing"

	"binstatus/internal/domain"
)

func TestNewFillLevel_InRange(t *testing.T) {
	for v := domain.MinFillLevel; v <= domain.MaxFillLevel; v++ {
		f, err := domain.NewFillLevel(v)
		if err != nil {
			t.Fatalf("NewFillLevel(%d): unexpected error %v", v, err)
		}
		if f.Int() != v {
			t.Fatalf("NewFillLevel(%d).Int() = %d", v, f.Int())
		}

		want := strconv.Itoa(v*10) + "%"
		switch v {
		case 0:
			want = "Empty"
		case 10:
			want = "Full"
		}
		if got := f.String(); got != want {
			t.Errorf("NewFillLevel(%d).String() = %q; want %q", v, got, want)
		}
	}
}

func TestNewFillLevel_OutOfRange(t *testing.T) {
	tests := []struct {
		name    string
		value   int
		clamped int
	}{
		{"just below", -1, 0},
		{"far below", -100, 0},
		{"just above", 11, 10},
		{"far above", 100, 10},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := domain.NewFillLevel(tc.value)
			var verr *domain.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if !strings.Contains(err.Error(), "between 0 and 10") {
				t.Errorf("error %q does not name the bounds", err)
			}
			if !strings.Contains(err.Error(), strconv.Itoa(tc.value)) {
				t.Errorf("error %q does not name the value", err)
			}
			if got := domain.ClampFillLevel(tc.value).Int(); got != tc.clamped {
				t.Errorf("ClampFillLevel(%d) = %d; want %d", tc.value, got, tc.clamped)
			}
		})
	}
}

func TestClampFillLevel_InRangeUnchanged(t *testing.T) {
	if got := domain.ClampFillLevel(7).Int(); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
}

func TestFillLevel_DisplayExamples(t *testing.T) {
	tests := []struct {
		level domain.FillLevel
		want  string
	}{
		{domain.FillLevelEmpty, "Empty"},
		{domain.FillLevelHalf, "50%"},
		{domain.FillLevelFull, "Full"},
		{domain.ClampFillLevel(1), "10%"},
		{domain.ClampFillLevel(7), "70%"},
		{domain.ClampFillLevel(9), "90%"},
	}
	for _, tc := range tests {
		if got := tc.level.String(); got != tc.want {
			t.Errorf("String() = %q; want %q", got, tc.want)
		}
	}
}

func TestFillLevel_EqualityAndOrdering(t *testing.T) {
	a, _ := domain.NewFillLevel(5)
	b, _ := domain.NewFillLevel(5)
	c, _ := domain.NewFillLevel(7)

	if a != b {
		t.Error("expected equal fill levels to compare equal")
	}
	if a == c {
		t.Error("expected different fill levels to differ")
	}
	if a.Compare(c) != -1 || c.Compare(a) != 1 || a.Compare(b) != 0 {
		t.Errorf("unexpected ordering: %d %d %d", a.Compare(c), c.Compare(a), a.Compare(b))
	}
}

func TestFillLevel_Category(t *testing.T) {
	tests := []struct {
		value int
		want  string
	}{
		{0, "low"},
		{2, "low"},
		{3, "medium"},
		{5, "medium"},
		{6, "high"},
		{7, "high"},
		{8, "full"},
		{10, "full"},
	}
	for _, tc := range tests {
		if got := domain.ClampFillLevel(tc.value).Category(); got != tc.want {
			t.Errorf("Category(%d) = %q; want %q", tc.value, got, tc.want)
		}
	}
}

func TestFillLevel_JSON(t *testing.T) {
	b, err := json.Marshal(domain.ClampFillLevel(7))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"value":7}` {
		t.Fatalf("unexpected json %s", b)
	}

	var f domain.FillLevel
	if err := json.Unmarshal([]byte(`{"value":15}`), &f); err == nil {
		t.Fatal("expected out-of-range value to be rejected")
	}
}
