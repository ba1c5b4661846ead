// Package paystatus derives payables payment status from amounts and dates.
// Status is never stored as authoritative; it is recomputed on every read.
package paystatus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/punchamoorthee/procurefin/internal/domain"
)

type Status int

const (
	// Unbilled is set by callers for documents without an obligation yet
	// (no purchase order issued). Derive never returns it.
	Unbilled Status = iota
	Unpaid
	Partial
	Paid
	Overdue
)

var statusNames = map[Status]string{
	Unbilled: "unbilled",
	Unpaid:   "unpaid",
	Partial:  "partial",
	Paid:     "paid",
	Overdue:  "overdue",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("status(%d)", int(s))
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Facts is everything the derivation looks at.
type Facts struct {
	Total   domain.Money `json:"total"`
	Paid    domain.Money `json:"paid"`
	DueDate *time.Time   `json:"due_date,omitempty"`
}

type Result struct {
	Status      Status       `json:"status"`
	DaysOverdue int          `json:"days_overdue"`
	Balance     domain.Money `json:"balance"`
}

// Derive applies, first match wins: paid in full, overdue, partial, unpaid.
// Whole-Rupiah amounts make the half-unit paid tolerance an exact
// paid >= total comparison, so a settled document is never reported overdue.
func Derive(f Facts, today time.Time) (Result, error) {
	if f.Total < 0 || f.Paid < 0 {
		return Result{}, fmt.Errorf("%w: total %d, paid %d", domain.ErrInvalidAmount, f.Total, f.Paid)
	}
	balance := f.Total - f.Paid
	if f.Paid >= f.Total {
		return Result{Status: Paid, Balance: balance}, nil
	}

	if f.DueDate != nil && !f.DueDate.IsZero() {
		if days := daysBetween(*f.DueDate, today); days > 0 {
			return Result{Status: Overdue, DaysOverdue: days, Balance: balance}, nil
		}
	}
	if f.Paid > 0 {
		return Result{Status: Partial, Balance: balance}, nil
	}
	return Result{Status: Unpaid, Balance: balance}, nil
}

// daysBetween counts calendar days from due to today, each read as a civil
// date in its own location.
func daysBetween(due, today time.Time) int {
	return int(civilDay(today) - civilDay(due))
}

// civilDay is the day number of t's calendar date, counted from 1970-01-01.
func civilDay(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}
