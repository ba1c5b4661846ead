package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/punchamoorthee/procurefin/internal/domain"
)

const payableColumns = `id, number, vendor_name, base, tax, total, paid, tax_percent, tax_inclusive,
	term, order_date, delivery_date, manual_due_date, created_at`

func scanPayable(row pgx.Row) (domain.Payable, error) {
	var p domain.Payable
	var pct pgtype.Numeric
	err := row.Scan(&p.ID, &p.Number, &p.VendorName, &p.Base, &p.Tax, &p.Total, &p.Paid, &pct, &p.TaxInclusive,
		&p.Term, &p.OrderDate, &p.DeliveryDate, &p.ManualDueDate, &p.CreatedAt)
	p.TaxPercent = FromNumeric(pct)
	return p, err
}

func (q *Queries) GetPayable(ctx context.Context, id string) (domain.Payable, error) {
	p, err := scanPayable(q.db.QueryRow(ctx, "SELECT "+payableColumns+" FROM payables WHERE id = $1", id))
	if err != nil {
		return p, notFound(err, "payable", id)
	}
	return p, nil
}

// ListOpenPayables returns payables with a balance left to pay.
func (q *Queries) ListOpenPayables(ctx context.Context) ([]domain.Payable, error) {
	rows, err := q.db.Query(ctx, "SELECT "+payableColumns+" FROM payables WHERE paid < total ORDER BY order_date, number")
	if err != nil {
		return nil, fmt.Errorf("list open payables: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Payable, error) {
		return scanPayable(row)
	})
}
