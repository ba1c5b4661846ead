package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/punchamoorthee/procurefin/internal/domain"
	"github.com/punchamoorthee/procurefin/internal/events"
	"github.com/punchamoorthee/procurefin/internal/models"
	"github.com/punchamoorthee/procurefin/internal/store"
)

type ContributionService struct {
	store  store.TxRunner
	events events.Publisher
	log    *zap.Logger
	now    func() time.Time
}

func NewContributionService(s store.TxRunner, pub events.Publisher, log *zap.Logger) *ContributionService {
	return &ContributionService{store: s, events: pub, log: log, now: time.Now}
}

// Record stores a contribution as a draft, or posts it straight away when
// req.Post is set.
func (s *ContributionService) Record(ctx context.Context, req models.RecordContributionRequest) (models.ContributionResponse, error) {
	if strings.TrimSpace(req.PlanID) == "" || strings.TrimSpace(req.PartyID) == "" {
		return models.ContributionResponse{}, fmt.Errorf("%w: plan_id and party_id are required", domain.ErrInvalidInput)
	}
	if req.Amount <= 0 {
		return models.ContributionResponse{}, fmt.Errorf("%w: contribution amount must be positive", domain.ErrInvalidAmount)
	}

	now := s.now().UTC()
	c := domain.Contribution{
		ID:            uuid.NewString(),
		PlanID:        req.PlanID,
		PartyID:       req.PartyID,
		Amount:        req.Amount,
		ContributedOn: req.ContributedOn.Time,
		Status:        domain.ContributionDraft,
		SettlementRef: strings.TrimSpace(req.SettlementRef),
		CreatedAt:     now,
	}
	if c.ContributedOn.IsZero() {
		c.ContributedOn = models.NewDate(now).Time
	}

	var resp models.ContributionResponse
	err := s.store.InTx(ctx, func(q store.Querier) error {
		if !req.Post {
			if _, err := q.GetPlan(ctx, c.PlanID); err != nil {
				return err
			}
			resp.Contribution = c
			return q.CreateContribution(ctx, c)
		}

		if err := q.LockPlanShared(ctx, c.PlanID); err != nil {
			return err
		}
		if err := q.LockParty(ctx, c.PartyID); err != nil {
			return err
		}
		plan, err := q.GetPlan(ctx, c.PlanID)
		if err != nil {
			return err
		}
		if err := plan.EnsureOpen(); err != nil {
			return err
		}
		if err := c.Post(c.SettlementRef, now); err != nil {
			return err
		}
		if err := q.CreateContribution(ctx, c); err != nil {
			return err
		}
		placement, err := placeContribution(ctx, q, c, now)
		if err != nil {
			return err
		}
		resp = models.ContributionResponse{Contribution: c, Placement: &placement}
		return nil
	})
	if err != nil {
		return models.ContributionResponse{}, err
	}

	if resp.Contribution.Status == domain.ContributionPosted {
		s.posted(ctx, resp)
	} else {
		s.log.Info("contribution recorded", zap.String("contribution_id", c.ID), zap.String("plan_id", c.PlanID))
	}
	return resp, nil
}

// Post moves a draft contribution to posted and places it on the party's
// outstanding obligations, oldest period first. A non-empty idempotencyKey
// makes a retry with the same body replay the first response; the stored
// record is returned instead of a fresh response in that case.
func (s *ContributionService) Post(ctx context.Context, id string, req models.PostContributionRequest, idempotencyKey, reqHash string) (*models.ContributionResponse, *models.IdempotencyRecord, error) {
	var resp *models.ContributionResponse
	var replay *models.IdempotencyRecord

	err := s.store.InTx(ctx, func(q store.Querier) error {
		// 1. Idempotency check and reservation
		if idempotencyKey != "" {
			rec, storedHash, err := q.GetIdempotencyKey(ctx, idempotencyKey)
			if err != nil {
				return err
			}
			if rec != nil {
				if storedHash != reqHash {
					return ErrIdempotencyMismatch
				}
				if rec.Status != "completed" {
					return ErrIdempotencyConflict
				}
				replay = rec
				return nil
			}
			if err := q.ReserveIdempotencyKey(ctx, idempotencyKey, reqHash); err != nil {
				return err
			}
		}

		// 2. Locks: contribution row, then plan (shared), then party
		c, err := q.GetContributionForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := q.LockPlanShared(ctx, c.PlanID); err != nil {
			return err
		}
		if err := q.LockParty(ctx, c.PartyID); err != nil {
			return err
		}

		// 3. Business checks
		plan, err := q.GetPlan(ctx, c.PlanID)
		if err != nil {
			return err
		}
		if err := plan.EnsureOpen(); err != nil {
			return err
		}
		now := s.now().UTC()
		if err := c.Post(req.SettlementRef, now); err != nil {
			return err
		}

		// 4. Execution
		if err := q.UpdateContribution(ctx, c); err != nil {
			return err
		}
		placement, err := placeContribution(ctx, q, c, now)
		if err != nil {
			return err
		}
		resp = &models.ContributionResponse{Contribution: c, Placement: &placement}

		// 5. Finalize idempotency
		if idempotencyKey != "" {
			body, err := json.Marshal(resp)
			if err != nil {
				return err
			}
			if err := q.CompleteIdempotencyKey(ctx, idempotencyKey, c.ID, http.StatusOK, body); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if replay != nil {
		return nil, replay, nil
	}

	s.posted(ctx, *resp)
	return resp, nil, nil
}

func (s *ContributionService) posted(ctx context.Context, resp models.ContributionResponse) {
	contributionsPosted.Inc()
	c := resp.Contribution
	fields := []zap.Field{
		zap.String("contribution_id", c.ID),
		zap.String("party_id", c.PartyID),
		zap.Int64("amount", int64(c.Amount)),
	}
	if resp.Placement != nil {
		fields = append(fields,
			zap.Int("allocations", len(resp.Placement.Allocations)),
			zap.Int64("credit_left", int64(resp.Placement.CreditLeft)))
	}
	s.log.Info("contribution posted", fields...)
	publish(ctx, s.events, s.log, events.New(events.ContributionPosted, resp))
}

// Void reverses a contribution while keeping its record. Allocations of a
// posted contribution are marked reversed, and the party's remaining credit is
// placed again on what the reversal left outstanding.
func (s *ContributionService) Void(ctx context.Context, id string) (models.ContributionResponse, error) {
	var resp models.ContributionResponse
	var reversed int64
	err := s.store.InTx(ctx, func(q store.Querier) error {
		c, err := q.GetContributionForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := q.LockParty(ctx, c.PartyID); err != nil {
			return err
		}
		wasPosted := c.Status == domain.ContributionPosted
		now := s.now().UTC()
		if err := c.Void(now); err != nil {
			return err
		}
		if err := q.UpdateContribution(ctx, c); err != nil {
			return err
		}
		if wasPosted {
			if reversed, err = q.ReverseAllocations(ctx, c.ID, now); err != nil {
				return err
			}
			if _, err := applyCredit(ctx, q, c.PartyID, now); err != nil {
				return err
			}
		}
		resp.Contribution = c
		return nil
	})
	if err != nil {
		return models.ContributionResponse{}, err
	}

	s.log.Info("contribution voided", zap.String("contribution_id", id), zap.Int64("allocations_reversed", reversed))
	publish(ctx, s.events, s.log, events.New(events.ContributionVoided, resp.Contribution))
	return resp, nil
}
