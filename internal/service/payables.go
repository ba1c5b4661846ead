package service

import (
	"context"
	"time"

	"github.com/punchamoorthee/procurefin/internal/domain"
	"github.com/punchamoorthee/procurefin/internal/duedate"
	"github.com/punchamoorthee/procurefin/internal/models"
	"github.com/punchamoorthee/procurefin/internal/paystatus"
	"github.com/punchamoorthee/procurefin/internal/taxcalc"
)

// Due date sources.
const (
	SourceAuto   = "auto"
	SourceManual = "manual"
)

type PayableReader interface {
	GetPayable(ctx context.Context, id string) (domain.Payable, error)
}

type PayableService struct {
	store PayableReader
	loc   *time.Location
	now   func() time.Time
}

// NewPayableService evaluates "today" in loc.
func NewPayableService(s PayableReader, loc *time.Location) *PayableService {
	return &PayableService{store: s, loc: loc, now: time.Now}
}

// DueDate resolves a payable's due date: the manual date when set, otherwise
// the date computed from its term, order date and delivery date.
func DueDate(p domain.Payable) (time.Time, string, error) {
	if p.ManualDueDate != nil && !p.ManualDueDate.IsZero() {
		return duedate.Resolve(time.Time{}, p.ManualDueDate), SourceManual, nil
	}
	term, err := duedate.ParseTerm(p.Term)
	if err != nil {
		return time.Time{}, "", err
	}
	due, err := duedate.Compute(p.OrderDate, p.DeliveryDate, term)
	if err != nil {
		return time.Time{}, "", err
	}
	return due, SourceAuto, nil
}

// Evaluate derives a payable's status as of today. Status is never stored.
func Evaluate(p domain.Payable, today time.Time) (models.PayableStatusResponse, error) {
	due, source, err := DueDate(p)
	if err != nil {
		return models.PayableStatusResponse{}, err
	}
	result, err := paystatus.Derive(paystatus.Facts{Total: p.Total, Paid: p.Paid, DueDate: &due}, today)
	if err != nil {
		return models.PayableStatusResponse{}, err
	}
	return models.PayableStatusResponse{
		PayableID: p.ID,
		Number:    p.Number,
		DueDate:   models.NewDate(due),
		Source:    source,
		Status:    result,
	}, nil
}

func (s *PayableService) Status(ctx context.Context, id string) (models.PayableStatusResponse, error) {
	p, err := s.store.GetPayable(ctx, id)
	if err != nil {
		return models.PayableStatusResponse{}, err
	}
	return Evaluate(p, s.now().In(s.loc))
}

// OutstandingTax splits the unpaid balance into base and tax in proportion to
// the payable's own breakdown. An overpaid payable has nothing outstanding.
func (s *PayableService) OutstandingTax(ctx context.Context, id string) (models.OutstandingTaxResponse, error) {
	p, err := s.store.GetPayable(ctx, id)
	if err != nil {
		return models.OutstandingTaxResponse{}, err
	}
	outstanding := max(p.Total-p.Paid, 0)
	known := taxcalc.Breakdown{Base: p.Base, Tax: p.Tax, Gross: p.Total}
	b, err := taxcalc.Proportional(known, p.TaxPercent, p.TaxInclusive, outstanding)
	if err != nil {
		return models.OutstandingTaxResponse{}, err
	}
	return models.OutstandingTaxResponse{PayableID: p.ID, Outstanding: outstanding, Breakdown: b}, nil
}
