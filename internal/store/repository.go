package store

import (
	"context"
	"time"

	"github.com/punchamoorthee/procurefin/internal/domain"
	"github.com/punchamoorthee/procurefin/internal/models"
	"github.com/punchamoorthee/procurefin/internal/obligation"
)

// Credit is the part of a posted contribution not yet placed on an obligation.
type Credit struct {
	ContributionID string
	PartyID        string
	Amount         domain.Money
}

// Querier is the data access contract of the service layer. Lookups of a
// missing row return an error wrapping domain.ErrNotFound.
type Querier interface {
	LockParty(ctx context.Context, partyID string) error
	LockPlan(ctx context.Context, planID string) error
	LockPlanShared(ctx context.Context, planID string) error

	ListActiveParties(ctx context.Context) ([]domain.Party, error)

	CreatePlan(ctx context.Context, p domain.Plan) error
	GetPlan(ctx context.Context, id string) (domain.Plan, error)
	ListPlans(ctx context.Context) ([]domain.Plan, error)
	GetPlanForUpdate(ctx context.Context, id string) (domain.Plan, error)
	UpdatePlanStatus(ctx context.Context, id string, status domain.PlanStatus, at time.Time) error

	ListObligations(ctx context.Context, planID string) ([]domain.Obligation, error)
	ReplaceObligations(ctx context.Context, planID string, obligations []domain.Obligation) error
	ListOutstandingForParty(ctx context.Context, partyID string) ([]obligation.Outstanding, error)
	AllocatedByObligation(ctx context.Context, planID string) (map[string]domain.Money, error)

	CreateContribution(ctx context.Context, c domain.Contribution) error
	GetContributionForUpdate(ctx context.Context, id string) (domain.Contribution, error)
	UpdateContribution(ctx context.Context, c domain.Contribution) error
	ListContributions(ctx context.Context, planID string) ([]domain.Contribution, error)

	InsertAllocations(ctx context.Context, allocations []domain.Allocation) error
	ReverseAllocations(ctx context.Context, contributionID string, at time.Time) (int64, error)
	ListCredit(ctx context.Context, partyID string) ([]Credit, error)

	GetPayable(ctx context.Context, id string) (domain.Payable, error)
	ListOpenPayables(ctx context.Context) ([]domain.Payable, error)

	GetIdempotencyKey(ctx context.Context, key string) (*models.IdempotencyRecord, string, error)
	ReserveIdempotencyKey(ctx context.Context, key, requestHash string) error
	CompleteIdempotencyKey(ctx context.Context, key, contributionID string, status int, body []byte) error
}

// TxRunner reads outside a transaction and runs writes inside one.
type TxRunner interface {
	Querier
	InTx(ctx context.Context, fn func(q Querier) error) error
}

var (
	_ Querier  = (*Queries)(nil)
	_ TxRunner = (*Store)(nil)
)
