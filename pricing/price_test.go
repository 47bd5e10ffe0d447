package pricing

import (
	"errors"
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 0.01
}

func TestPerOccupant_MonthlySplit(t *testing.T) {
	got, err := PerOccupant("£3,000 pcm", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !almostEqual(got, 1000.00) {
		t.Fatalf("expected 1000.00, got %.2f", got)
	}
}

func TestPerOccupant_WeeklyConversion(t *testing.T) {
	got, err := PerOccupant("£700 pw", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !almostEqual(got, 700*52.0/12.0) {
		t.Fatalf("expected %.2f, got %.2f", 700*52.0/12.0, got)
	}
}

func TestPerOccupant_StudioDividesByOne(t *testing.T) {
	got, err := PerOccupant("£950 pcm", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !almostEqual(got, 950) {
		t.Fatalf("expected 950, got %.2f", got)
	}
}

func TestPerOccupant_NoNumericToken(t *testing.T) {
	_, err := PerOccupant("POA", 2)
	if !errors.Is(err, ErrNoPrice) {
		t.Fatalf("expected ErrNoPrice, got %v", err)
	}
}

func TestParse_Variants(t *testing.T) {
	cases := []struct {
		raw     string
		monthly float64
	}{
		{"£1,250 pcm", 1250},
		{"£1250", 1250},
		{"£1,250.50 per month", 1250.50},
		{"£300 per week", 300 * 52.0 / 12.0},
		{"From £475 pw", 475 * 52.0 / 12.0},
		{"$2100/month", 2100},
	}

	for _, tc := range cases {
		q, err := Parse(tc.raw)
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", tc.raw, err)
		}
		if !almostEqual(q.Monthly(), tc.monthly) {
			t.Fatalf("%q: expected monthly %.2f, got %.2f", tc.raw, tc.monthly, q.Monthly())
		}
	}
}
