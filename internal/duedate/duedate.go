// Package duedate computes payable due dates from payment terms.
package duedate

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/punchamoorthee/procurefin/internal/domain"
)

type Kind string

const (
	CashBeforeDelivery Kind = "CBD"
	CashOnDelivery     Kind = "COD"
	Net                Kind = "NET"
)

// Term is a payment term. Days is only meaningful for Net.
type Term struct {
	Kind Kind
	Days int
}

func CBD() Term { return Term{Kind: CashBeforeDelivery} }

func COD() Term { return Term{Kind: CashOnDelivery} }

func NetDays(days int) Term { return Term{Kind: Net, Days: days} }

// ParseTerm reads CBD, COD, or NET followed by a day count (NET30, NET 30,
// NET-30, NET_30). Case is ignored.
func ParseTerm(s string) (Term, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	switch v {
	case string(CashBeforeDelivery):
		return CBD(), nil
	case string(CashOnDelivery):
		return COD(), nil
	}
	if !strings.HasPrefix(v, string(Net)) {
		return Term{}, fmt.Errorf("%w: %q", domain.ErrInvalidTerm, s)
	}
	rest := strings.TrimLeft(strings.TrimPrefix(v, string(Net)), " -_")
	days, err := strconv.Atoi(rest)
	if err != nil || days < 0 {
		return Term{}, fmt.Errorf("%w: %q", domain.ErrInvalidTerm, s)
	}
	return NetDays(days), nil
}

func (t Term) String() string {
	if t.Kind == Net {
		return fmt.Sprintf("NET%d", t.Days)
	}
	return string(t.Kind)
}

func (t Term) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Term) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrInvalidTerm, string(b))
	}
	parsed, err := ParseTerm(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// StartOfDay drops the clock part of t in t's own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Compute returns the due date for a document dated ref. For COD the fallback
// (usually the delivery date) is used when present. NET adds calendar days with
// no business-day adjustment.
func Compute(ref time.Time, fallback *time.Time, term Term) (time.Time, error) {
	if ref.IsZero() {
		return time.Time{}, fmt.Errorf("%w: reference date is required", domain.ErrInvalidTerm)
	}
	switch term.Kind {
	case CashBeforeDelivery:
		return StartOfDay(ref), nil
	case CashOnDelivery:
		if fallback != nil && !fallback.IsZero() {
			return StartOfDay(*fallback), nil
		}
		return StartOfDay(ref), nil
	case Net:
		if term.Days < 0 {
			return time.Time{}, fmt.Errorf("%w: NET days %d is negative", domain.ErrInvalidTerm, term.Days)
		}
		return StartOfDay(ref).AddDate(0, 0, term.Days), nil
	default:
		return time.Time{}, fmt.Errorf("%w: unknown kind %q", domain.ErrInvalidTerm, term.Kind)
	}
}

// Resolve picks the manual due date when the caller supplied one.
func Resolve(computed time.Time, manual *time.Time) time.Time {
	if manual != nil && !manual.IsZero() {
		return StartOfDay(*manual)
	}
	return computed
}
