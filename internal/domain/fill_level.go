package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Bounds of a fill level.
const (
	MinFillLevel = 0
	MaxFillLevel = 10
)

// FillLevel is how full a bin is, on a 0 (empty) to 10 (full) scale.
// The zero value is an empty bin.
type FillLevel struct {
	value int
}

// Common fill levels.
var (
	FillLevelEmpty = FillLevel{value: MinFillLevel}
	FillLevelHalf  = FillLevel{value: 5}
	FillLevelFull  = FillLevel{value: MaxFillLevel}
)

// NewFillLevel validates v and returns the corresponding fill level.
func NewFillLevel(v int) (FillLevel, error) {
	if v < MinFillLevel || v > MaxFillLevel {
		return FillLevel{}, &ValidationError{
			Field: "status",
			Msg:   fmt.Sprintf("bin status must be between %d and %d, got %d", MinFillLevel, MaxFillLevel, v),
		}
	}
	return FillLevel{value: v}, nil
}

// ClampFillLevel never fails: out-of-range input is clamped into [0, 10].
// Use it only where the input is already trusted, such as a stored average.
func ClampFillLevel(v int) FillLevel {
	return FillLevel{value: max(MinFillLevel, min(MaxFillLevel, v))}
}

// Int returns the underlying value.
func (f FillLevel) Int() int {
	return f.value
}

// Compare returns -1, 0 or +1 depending on whether f is below, equal to or
// above o.
func (f FillLevel) Compare(o FillLevel) int {
	switch {
	case f.value < o.value:
		return -1
	case f.value > o.value:
		return 1
	}
	return 0
}

// String renders "Empty", "Full" or a percentage such as "70%".
func (f FillLevel) String() string {
	switch f.value {
	case MinFillLevel:
		return "Empty"
	case MaxFillLevel:
		return "Full"
	}
	return strconv.Itoa(f.value*10) + "%"
}

// Percent returns the fill level as a percentage.
func (f FillLevel) Percent() int {
	return f.value * 10
}

// Category buckets the fill level into low, medium, high or full.
func (f FillLevel) Category() string {
	switch p := f.Percent(); {
	case p <= 25:
		return "low"
	case p <= 50:
		return "medium"
	case p <= 75:
		return "high"
	}
	return "full"
}

type fillLevelJSON struct {
	Value int `json:"value"`
}

// MarshalJSON encodes the fill level as {"value": N}.
func (f FillLevel) MarshalJSON() ([]byte, error) {
	return json.Marshal(fillLevelJSON{Value: f.value})
}

// UnmarshalJSON decodes {"value": N} through the strict constructor.
func (f *FillLevel) UnmarshalJSON(b []byte) error {
	var raw fillLevelJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	v, err := NewFillLevel(raw.Value)
	if err != nil {
		return err
	}
	*f = v
	return nil
}
