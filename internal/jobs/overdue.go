// Package jobs holds scheduled background work.
package jobs

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/punchamoorthee/procurefin/internal/domain"
	"github.com/punchamoorthee/procurefin/internal/events"
	"github.com/punchamoorthee/procurefin/internal/paystatus"
	"github.com/punchamoorthee/procurefin/internal/service"
)

var (
	payablesOverdue = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "procurefin_payables_overdue",
		Help: "Open payables past their due date at the last sweep",
	})
	payablesOverdueAmount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "procurefin_payables_overdue_amount",
		Help: "Unpaid balance of overdue payables at the last sweep, in Rupiah",
	})
)

const sweepTimeout = 2 * time.Minute

type PayableLister interface {
	ListOpenPayables(ctx context.Context) ([]domain.Payable, error)
}

// OverdueEvent is the payload of payable.overdue.
type OverdueEvent struct {
	PayableID   string       `json:"payable_id"`
	Number      string       `json:"number"`
	VendorName  string       `json:"vendor_name"`
	DueDate     time.Time    `json:"due_date"`
	DaysOverdue int          `json:"days_overdue"`
	Balance     domain.Money `json:"balance"`
}

type Report struct {
	Open          int
	Overdue       int
	OverdueAmount domain.Money
	Skipped       int
}

type Jobs struct {
	payables PayableLister
	events   events.Publisher
	log      *zap.Logger
	loc      *time.Location
	now      func() time.Time
}

// NewJobs evaluates due dates against today's date in loc.
func NewJobs(payables PayableLister, pub events.Publisher, log *zap.Logger, loc *time.Location) *Jobs {
	return &Jobs{payables: payables, events: pub, log: log, loc: loc, now: time.Now}
}

// SweepOverdue is the cron entry point.
func (j *Jobs) SweepOverdue() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	r, err := j.Sweep(ctx)
	if err != nil {
		j.log.Error("overdue sweep failed", zap.Error(err))
		return
	}
	j.log.Info("overdue sweep finished",
		zap.Int("open", r.Open),
		zap.Int("overdue", r.Overdue),
		zap.Int64("overdue_amount", int64(r.OverdueAmount)),
		zap.Int("skipped", r.Skipped),
	)
}

// Sweep recomputes the status of every open payable, refreshes the overdue
// gauges and announces each overdue payable. Nothing is written back.
func (j *Jobs) Sweep(ctx context.Context) (Report, error) {
	open, err := j.payables.ListOpenPayables(ctx)
	if err != nil {
		return Report{}, err
	}
	today := j.now().In(j.loc)

	r := Report{Open: len(open)}
	for _, p := range open {
		st, err := service.Evaluate(p, today)
		if err != nil {
			r.Skipped++
			j.log.Warn("payable skipped", zap.String("payable_id", p.ID), zap.String("number", p.Number), zap.Error(err))
			continue
		}
		if st.Status.Status != paystatus.Overdue {
			continue
		}
		r.Overdue++
		r.OverdueAmount += st.Status.Balance

		e := events.New(events.PayableOverdue, OverdueEvent{
			PayableID:   p.ID,
			Number:      p.Number,
			VendorName:  p.VendorName,
			DueDate:     st.DueDate.Time,
			DaysOverdue: st.Status.DaysOverdue,
			Balance:     st.Status.Balance,
		})
		if err := j.events.Publish(ctx, e); err != nil {
			j.log.Error("event publish failed", zap.String("type", e.Type), zap.String("payable_id", p.ID), zap.Error(err))
		}
	}

	payablesOverdue.Set(float64(r.Overdue))
	payablesOverdueAmount.Set(float64(r.OverdueAmount))
	return r, nil
}
