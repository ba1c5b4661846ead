package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/punchamoorthee/procurefin/internal/domain"
)

const contributionColumns = "id, plan_id, party_id, amount, contributed_on, status, settlement_ref, posted_at, voided_at, created_at"

func scanContribution(row pgx.Row) (domain.Contribution, error) {
	var c domain.Contribution
	err := row.Scan(&c.ID, &c.PlanID, &c.PartyID, &c.Amount, &c.ContributedOn, &c.Status,
		&c.SettlementRef, &c.PostedAt, &c.VoidedAt, &c.CreatedAt)
	return c, err
}

func (q *Queries) CreateContribution(ctx context.Context, c domain.Contribution) error {
	_, err := q.db.Exec(ctx,
		"INSERT INTO contributions ("+contributionColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)",
		c.ID, c.PlanID, c.PartyID, c.Amount, c.ContributedOn, c.Status,
		c.SettlementRef, c.PostedAt, c.VoidedAt, c.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: plan %s or party %s", domain.ErrNotFound, c.PlanID, c.PartyID)
		}
		return fmt.Errorf("insert contribution: %w", err)
	}
	return nil
}

func (q *Queries) GetContributionForUpdate(ctx context.Context, id string) (domain.Contribution, error) {
	c, err := scanContribution(q.db.QueryRow(ctx,
		"SELECT "+contributionColumns+" FROM contributions WHERE id = $1 FOR UPDATE", id))
	if err != nil {
		return c, notFound(err, "contribution", id)
	}
	return c, nil
}

func (q *Queries) UpdateContribution(ctx context.Context, c domain.Contribution) error {
	tag, err := q.db.Exec(ctx,
		"UPDATE contributions SET status = $1, settlement_ref = $2, posted_at = $3, voided_at = $4 WHERE id = $5",
		c.Status, c.SettlementRef, c.PostedAt, c.VoidedAt, c.ID)
	if err != nil {
		return fmt.Errorf("update contribution %s: %w", c.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: contribution %s", domain.ErrNotFound, c.ID)
	}
	return nil
}

func (q *Queries) ListContributions(ctx context.Context, planID string) ([]domain.Contribution, error) {
	rows, err := q.db.Query(ctx,
		"SELECT "+contributionColumns+" FROM contributions WHERE plan_id = $1 ORDER BY contributed_on, created_at, id", planID)
	if err != nil {
		return nil, fmt.Errorf("list contributions: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Contribution, error) {
		return scanContribution(row)
	})
}

func (q *Queries) InsertAllocations(ctx context.Context, allocations []domain.Allocation) error {
	if len(allocations) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, a := range allocations {
		batch.Queue(
			`INSERT INTO contribution_allocations (id, contribution_id, obligation_id, amount, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			a.ID, a.ContributionID, a.ObligationID, a.Amount, a.CreatedAt)
	}
	br := q.db.SendBatch(ctx, batch)
	for range allocations {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("insert allocation: %w", err)
		}
	}
	return br.Close()
}

// ReverseAllocations marks the contribution's active allocations reversed.
func (q *Queries) ReverseAllocations(ctx context.Context, contributionID string, at time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx,
		"UPDATE contribution_allocations SET reversed_at = $1 WHERE contribution_id = $2 AND reversed_at IS NULL",
		at, contributionID)
	if err != nil {
		return 0, fmt.Errorf("reverse allocations of %s: %w", contributionID, err)
	}
	return tag.RowsAffected(), nil
}

// ListCredit returns the party's posted contributions that still have
// unplaced money, oldest posting first.
func (q *Queries) ListCredit(ctx context.Context, partyID string) ([]Credit, error) {
	rows, err := q.db.Query(ctx,
		`SELECT id, party_id, credit FROM (
			SELECT c.id, c.party_id, c.posted_at,
				(c.amount - COALESCE((SELECT SUM(a.amount) FROM contribution_allocations a
					WHERE a.contribution_id = c.id AND a.reversed_at IS NULL), 0))::bigint AS credit
			FROM contributions c
			WHERE c.party_id = $1 AND c.status = 'posted'
		) s
		WHERE credit > 0
		ORDER BY posted_at, id`, partyID)
	if err != nil {
		return nil, fmt.Errorf("list credit for party %s: %w", partyID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Credit, error) {
		var c Credit
		err := row.Scan(&c.ContributionID, &c.PartyID, &c.Amount)
		return c, err
	})
}
