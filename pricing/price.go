package pricing

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrNoPrice is returned when a raw price string carries no numeric token.
// Callers treat it like any other per-listing extraction failure.
var ErrNoPrice = errors.New("no numeric price found")

type Period string

const (
	PerMonth Period = "pcm"
	PerWeek  Period = "pw"
)

// Quote is a parsed price in its advertised period.
type Quote struct {
	Amount float64
	Period Period
}

var amountRe = regexp.MustCompile(`([0-9][0-9,]*(?:\.[0-9]{1,2})?)`)

// Parse extracts the first monetary amount from raw listing text. It
// tolerates currency symbols, thousands separators and the usual UK
// "pcm"/"pw"/"per week"/"per month" suffixes. Unsuffixed amounts are
// assumed monthly, which is what both supported sites advertise.
func Parse(raw string) (Quote, error) {
	m := amountRe.FindString(raw)
	if m == "" {
		return Quote{}, fmt.Errorf("parse %q: %w", raw, ErrNoPrice)
	}

	amount, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil {
		return Quote{}, fmt.Errorf("parse %q: %w", raw, ErrNoPrice)
	}

	q := Quote{Amount: amount, Period: PerMonth}
	lower := strings.ToLower(raw)
	if strings.Contains(lower, "pw") || strings.Contains(lower, "per week") || strings.Contains(lower, "weekly") {
		q.Period = PerWeek
	}
	return q, nil
}

// Monthly converts the quote to a calendar-month figure (52 weeks / 12 months).
func (q Quote) Monthly() float64 {
	if q.Period == PerWeek {
		return q.Amount * 52 / 12
	}
	return q.Amount
}

// PerOccupant normalizes a raw price string to a per-occupant monthly
// figure: monthly total divided by max(bedrooms, 1). A studio counts as
// one occupant.
func PerOccupant(raw string, bedrooms int) (float64, error) {
	q, err := Parse(raw)
	if err != nil {
		return 0, err
	}
	occupants := bedrooms
	if occupants < 1 {
		occupants = 1
	}
	return q.Monthly() / float64(occupants), nil
}
