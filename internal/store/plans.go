package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/punchamoorthee/procurefin/internal/domain"
	"github.com/punchamoorthee/procurefin/internal/obligation"
)

func (q *Queries) ListActiveParties(ctx context.Context) ([]domain.Party, error) {
	rows, err := q.db.Query(ctx,
		"SELECT id, name, ownership, active, created_at FROM parties WHERE active ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list parties: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Party, error) {
		var p domain.Party
		var ownership pgtype.Numeric
		if err := row.Scan(&p.ID, &p.Name, &ownership, &p.Active, &p.CreatedAt); err != nil {
			return p, err
		}
		p.Ownership = FromNumeric(ownership)
		return p, nil
	})
}

const planColumns = "id, name, period, target, status, created_at, updated_at"

func scanPlan(row pgx.Row) (domain.Plan, error) {
	var p domain.Plan
	err := row.Scan(&p.ID, &p.Name, &p.Period, &p.Target, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (q *Queries) CreatePlan(ctx context.Context, p domain.Plan) error {
	_, err := q.db.Exec(ctx,
		"INSERT INTO capital_plans ("+planColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7)",
		p.ID, p.Name, p.Period, p.Target, p.Status, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert plan: %w", err)
	}
	return nil
}

func (q *Queries) GetPlan(ctx context.Context, id string) (domain.Plan, error) {
	p, err := scanPlan(q.db.QueryRow(ctx, "SELECT "+planColumns+" FROM capital_plans WHERE id = $1", id))
	if err != nil {
		return p, notFound(err, "plan", id)
	}
	return p, nil
}

// ListPlans returns every plan, oldest period first.
func (q *Queries) ListPlans(ctx context.Context) ([]domain.Plan, error) {
	rows, err := q.db.Query(ctx, "SELECT "+planColumns+" FROM capital_plans ORDER BY period, created_at, id")
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Plan, error) {
		return scanPlan(row)
	})
}

func (q *Queries) GetPlanForUpdate(ctx context.Context, id string) (domain.Plan, error) {
	p, err := scanPlan(q.db.QueryRow(ctx, "SELECT "+planColumns+" FROM capital_plans WHERE id = $1 FOR UPDATE", id))
	if err != nil {
		return p, notFound(err, "plan", id)
	}
	return p, nil
}

func (q *Queries) UpdatePlanStatus(ctx context.Context, id string, status domain.PlanStatus, at time.Time) error {
	tag, err := q.db.Exec(ctx, "UPDATE capital_plans SET status = $1, updated_at = $2 WHERE id = $3", status, at, id)
	if err != nil {
		return fmt.Errorf("update plan %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: plan %s", domain.ErrNotFound, id)
	}
	return nil
}

func (q *Queries) ListObligations(ctx context.Context, planID string) ([]domain.Obligation, error) {
	rows, err := q.db.Query(ctx,
		`SELECT id, plan_id, party_id, percent_snapshot, amount, created_at
		FROM obligations WHERE plan_id = $1 ORDER BY created_at, id`, planID)
	if err != nil {
		return nil, fmt.Errorf("list obligations: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Obligation, error) {
		var o domain.Obligation
		var pct pgtype.Numeric
		if err := row.Scan(&o.ID, &o.PlanID, &o.PartyID, &pct, &o.Amount, &o.CreatedAt); err != nil {
			return o, err
		}
		o.PercentSnapshot = FromNumeric(pct)
		return o, nil
	})
}

// ReplaceObligations drops the plan's obligations with their active
// allocations and inserts the new set. Reversed allocations stay as history
// with their obligation cleared. Callers run it inside InTx so readers see
// either the old or the new set.
func (q *Queries) ReplaceObligations(ctx context.Context, planID string, obligations []domain.Obligation) error {
	if _, err := q.db.Exec(ctx,
		`UPDATE contribution_allocations SET obligation_id = NULL
		WHERE reversed_at IS NOT NULL AND obligation_id IN (SELECT id FROM obligations WHERE plan_id = $1)`,
		planID); err != nil {
		return fmt.Errorf("detach reversed allocations for plan %s: %w", planID, err)
	}
	if _, err := q.db.Exec(ctx,
		"DELETE FROM contribution_allocations WHERE reversed_at IS NULL AND obligation_id IN (SELECT id FROM obligations WHERE plan_id = $1)",
		planID); err != nil {
		return fmt.Errorf("delete allocations for plan %s: %w", planID, err)
	}
	if _, err := q.db.Exec(ctx, "DELETE FROM obligations WHERE plan_id = $1", planID); err != nil {
		return fmt.Errorf("delete obligations for plan %s: %w", planID, err)
	}
	if len(obligations) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, o := range obligations {
		batch.Queue(
			`INSERT INTO obligations (id, plan_id, party_id, percent_snapshot, amount, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			o.ID, o.PlanID, o.PartyID, ToNumeric(o.PercentSnapshot), o.Amount, o.CreatedAt)
	}
	br := q.db.SendBatch(ctx, batch)
	for range obligations {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("insert obligation: %w", err)
		}
	}
	return br.Close()
}

// ListOutstandingForParty returns what the party still owes on each obligation
// of a plan that is not closed, oldest period first. The obligation rows stay
// locked until the transaction ends.
func (q *Queries) ListOutstandingForParty(ctx context.Context, partyID string) ([]obligation.Outstanding, error) {
	rows, err := q.db.Query(ctx,
		`SELECT o.id, o.party_id, p.period,
			(o.amount - COALESCE((SELECT SUM(a.amount) FROM contribution_allocations a
				WHERE a.obligation_id = o.id AND a.reversed_at IS NULL), 0))::bigint
		FROM obligations o
		JOIN capital_plans p ON p.id = o.plan_id
		WHERE o.party_id = $1 AND p.status <> 'closed'
		ORDER BY p.period, o.created_at, o.id
		FOR UPDATE OF o`, partyID)
	if err != nil {
		return nil, fmt.Errorf("list outstanding for party %s: %w", partyID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (obligation.Outstanding, error) {
		var o obligation.Outstanding
		err := row.Scan(&o.ObligationID, &o.PartyID, &o.Period, &o.Remaining)
		return o, err
	})
}

// AllocatedByObligation sums active allocations into each of the plan's
// obligations. Obligations with nothing placed are absent from the map.
func (q *Queries) AllocatedByObligation(ctx context.Context, planID string) (map[string]domain.Money, error) {
	rows, err := q.db.Query(ctx,
		`SELECT a.obligation_id, SUM(a.amount)::bigint
		FROM contribution_allocations a
		JOIN obligations o ON o.id = a.obligation_id
		WHERE o.plan_id = $1 AND a.reversed_at IS NULL
		GROUP BY a.obligation_id`, planID)
	if err != nil {
		return nil, fmt.Errorf("sum allocations for plan %s: %w", planID, err)
	}
	out := map[string]domain.Money{}
	var (
		id  string
		sum domain.Money
	)
	if _, err := pgx.ForEachRow(rows, []any{&id, &sum}, func() error {
		out[id] = sum
		return nil
	}); err != nil {
		return nil, fmt.Errorf("sum allocations for plan %s: %w", planID, err)
	}
	return out, nil
}
