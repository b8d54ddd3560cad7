package core

import (
	"fmt"
	"time"
)

const periodLayout = "2006-01-02"

// Period identifies a calendar month. It is the idempotency key for interest
// accrual and the marker stamped on paid bills.
type Period struct {
	Year  int
	Month time.Month
}

// PeriodOf returns the calendar month containing t, in t's location.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

// ParsePeriod accepts "2006-01-02" (any day of the month) or "2006-01".
func ParsePeriod(s string) (Period, error) {
	if t, err := time.Parse(periodLayout, s); err == nil {
		return PeriodOf(t), nil
	}
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, fmt.Errorf("invalid period %q: %w", s, err)
	}
	return PeriodOf(t), nil
}

// Start is the first instant of the month in loc.
func (p Period) Start(loc *time.Location) time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, loc)
}

func (p Period) Next() Period {
	return PeriodOf(time.Date(p.Year, p.Month+1, 1, 0, 0, 0, 0, time.UTC))
}

func (p Period) Prev() Period {
	return PeriodOf(time.Date(p.Year, p.Month-1, 1, 0, 0, 0, 0, time.UTC))
}

// MonthsSince counts whole months from earlier to p; negative when earlier is after p.
func (p Period) MonthsSince(earlier Period) int {
	return (p.Year-earlier.Year)*12 + int(p.Month) - int(earlier.Month)
}

func (p Period) Before(o Period) bool {
	return p.MonthsSince(o) < 0
}

func (p Period) IsZero() bool {
	return p.Year == 0 && p.Month == 0
}

// Key is the first-of-month date string persisted as the period column.
func (p Period) Key() string {
	return fmt.Sprintf("%04d-%02d-01", p.Year, int(p.Month))
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

func (p Period) MarshalText() ([]byte, error) {
	return []byte(p.Key()), nil
}

func (p *Period) UnmarshalText(b []byte) error {
	parsed, err := ParsePeriod(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
