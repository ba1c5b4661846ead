package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/punchamoorthee/procurefin/internal/domain"
	"github.com/punchamoorthee/procurefin/internal/events"
	"github.com/punchamoorthee/procurefin/internal/models"
	"github.com/punchamoorthee/procurefin/internal/obligation"
	"github.com/punchamoorthee/procurefin/internal/store"
)

type PlanService struct {
	store  store.TxRunner
	events events.Publisher
	log    *zap.Logger
	now    func() time.Time
}

func NewPlanService(s store.TxRunner, pub events.Publisher, log *zap.Logger) *PlanService {
	return &PlanService{store: s, events: pub, log: log, now: time.Now}
}

// Create stores a new draft plan. No obligations exist until it is activated
// or a snapshot is generated.
func (s *PlanService) Create(ctx context.Context, req models.CreatePlanRequest) (domain.Plan, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Plan{}, fmt.Errorf("%w: plan name is required", domain.ErrInvalidInput)
	}
	if req.Period.IsZero() {
		return domain.Plan{}, fmt.Errorf("%w: plan period is required", domain.ErrInvalidInput)
	}
	if req.Target < 0 {
		return domain.Plan{}, fmt.Errorf("%w: target %d is negative", domain.ErrInvalidAmount, req.Target)
	}

	now := s.now().UTC()
	plan := domain.Plan{
		ID:        uuid.NewString(),
		Name:      name,
		Period:    req.Period.Time,
		Target:    req.Target,
		Status:    domain.PlanDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreatePlan(ctx, plan); err != nil {
		return domain.Plan{}, err
	}
	s.log.Info("plan created", zap.String("plan_id", plan.ID), zap.Int64("target", int64(plan.Target)))
	return plan, nil
}

func (s *PlanService) Get(ctx context.Context, id string) (models.PlanResponse, error) {
	plan, err := s.store.GetPlan(ctx, id)
	if err != nil {
		return models.PlanResponse{}, err
	}
	obligations, err := s.store.ListObligations(ctx, id)
	if err != nil {
		return models.PlanResponse{}, err
	}
	return models.PlanResponse{Plan: plan, Obligations: obligations}, nil
}

func (s *PlanService) List(ctx context.Context) ([]domain.Plan, error) {
	return s.store.ListPlans(ctx)
}

// Activate moves a draft plan to active and generates its obligations in the
// same transaction.
func (s *PlanService) Activate(ctx context.Context, id string) (models.SnapshotResponse, error) {
	return s.snapshot(ctx, id, true)
}

// RegenerateSnapshot replaces the plan's obligations with a fresh proration
// over current ownership.
func (s *PlanService) RegenerateSnapshot(ctx context.Context, id string) (models.SnapshotResponse, error) {
	return s.snapshot(ctx, id, false)
}

// snapshot swaps the obligation set atomically. Active allocations into the
// old set are dropped and every affected party's unplaced credit is placed
// again, so money paid before a regeneration follows the party into the new
// set.
func (s *PlanService) snapshot(ctx context.Context, id string, activate bool) (models.SnapshotResponse, error) {
	var resp models.SnapshotResponse
	err := s.store.InTx(ctx, func(q store.Querier) error {
		if err := q.LockPlan(ctx, id); err != nil {
			return err
		}
		plan, err := q.GetPlanForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := plan.EnsureOpen(); err != nil {
			return err
		}
		if activate {
			if err := plan.Activate(); err != nil {
				return err
			}
		}

		now := s.now().UTC()
		parties, err := q.ListActiveParties(ctx)
		if err != nil {
			return err
		}
		next, err := obligation.Snapshot(plan, parties, now)
		if err != nil {
			return err
		}
		previous, err := q.ListObligations(ctx, id)
		if err != nil {
			return err
		}

		affected := partyIDs(previous, next)
		for _, partyID := range affected {
			if err := q.LockParty(ctx, partyID); err != nil {
				return err
			}
		}
		if err := q.ReplaceObligations(ctx, id, next); err != nil {
			return err
		}

		var applied domain.Money
		for _, partyID := range affected {
			n, err := applyCredit(ctx, q, partyID, now)
			if err != nil {
				return err
			}
			applied += n
		}

		if err := q.UpdatePlanStatus(ctx, id, plan.Status, now); err != nil {
			return err
		}
		plan.UpdatedAt = now
		resp = models.SnapshotResponse{Plan: plan, Obligations: next, CreditApplied: applied}
		return nil
	})
	if err != nil {
		return models.SnapshotResponse{}, err
	}

	s.log.Info("plan snapshot generated",
		zap.String("plan_id", id),
		zap.Bool("activated", activate),
		zap.Int("obligations", len(resp.Obligations)),
		zap.Int64("credit_applied", int64(resp.CreditApplied)),
	)
	publish(ctx, s.events, s.log, events.New(events.PlanSnapshotGenerated, resp))
	return resp, nil
}

// Close forbids further posted contributions against the plan.
func (s *PlanService) Close(ctx context.Context, id string) (domain.Plan, error) {
	plan, err := s.transition(ctx, id, (*domain.Plan).Close)
	if err != nil {
		return plan, err
	}
	s.log.Info("plan closed", zap.String("plan_id", id))
	publish(ctx, s.events, s.log, events.New(events.PlanClosed, plan))
	return plan, nil
}

func (s *PlanService) Reopen(ctx context.Context, id string) (domain.Plan, error) {
	plan, err := s.transition(ctx, id, (*domain.Plan).Reopen)
	if err != nil {
		return plan, err
	}
	s.log.Info("plan reopened", zap.String("plan_id", id))
	return plan, nil
}

func (s *PlanService) transition(ctx context.Context, id string, apply func(*domain.Plan) error) (domain.Plan, error) {
	var plan domain.Plan
	err := s.store.InTx(ctx, func(q store.Querier) error {
		if err := q.LockPlan(ctx, id); err != nil {
			return err
		}
		var err error
		plan, err = q.GetPlanForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := apply(&plan); err != nil {
			return err
		}
		plan.UpdatedAt = s.now().UTC()
		return q.UpdatePlanStatus(ctx, id, plan.Status, plan.UpdatedAt)
	})
	if err != nil {
		return domain.Plan{}, err
	}
	return plan, nil
}

// Reconcile compares every party's obligation with its posted contributions
// and with what FIFO placement actually allocated to it.
func (s *PlanService) Reconcile(ctx context.Context, id string) (models.ReconciliationResponse, error) {
	plan, err := s.store.GetPlan(ctx, id)
	if err != nil {
		return models.ReconciliationResponse{}, err
	}
	obligations, err := s.store.ListObligations(ctx, id)
	if err != nil {
		return models.ReconciliationResponse{}, err
	}
	contributions, err := s.store.ListContributions(ctx, id)
	if err != nil {
		return models.ReconciliationResponse{}, err
	}
	allocated, err := s.store.AllocatedByObligation(ctx, id)
	if err != nil {
		return models.ReconciliationResponse{}, err
	}
	rows := obligation.Reconcile(plan, obligations, contributions, allocated)
	return models.ReconciliationResponse{Plan: plan, Rows: rows, Summary: obligation.Summarize(rows)}, nil
}
