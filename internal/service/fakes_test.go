package service

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/punchamoorthee/procurefin/internal/domain"
	"github.com/punchamoorthee/procurefin/internal/events"
	"github.com/punchamoorthee/procurefin/internal/models"
	"github.com/punchamoorthee/procurefin/internal/obligation"
	"github.com/punchamoorthee/procurefin/internal/store"
)

type idemEntry struct {
	rec  models.IdempotencyRecord
	hash string
}

// memStore keeps the ledger in memory. InTx restores the previous state when
// fn fails, like a rolled back transaction.
type memStore struct {
	parties       []domain.Party
	plans         map[string]domain.Plan
	obligations   []domain.Obligation
	contributions []domain.Contribution
	allocations   []domain.Allocation
	payables      map[string]domain.Payable
	keys          map[string]idemEntry
	locks         []string
}

func newMemStore(parties ...domain.Party) *memStore {
	return &memStore{
		parties:  parties,
		plans:    map[string]domain.Plan{},
		payables: map[string]domain.Payable{},
		keys:     map[string]idemEntry{},
	}
}

func (m *memStore) InTx(ctx context.Context, fn func(q store.Querier) error) error {
	saved := memStore{
		parties:       slices.Clone(m.parties),
		plans:         maps.Clone(m.plans),
		obligations:   slices.Clone(m.obligations),
		contributions: slices.Clone(m.contributions),
		allocations:   slices.Clone(m.allocations),
		payables:      maps.Clone(m.payables),
		keys:          maps.Clone(m.keys),
	}
	if err := fn(m); err != nil {
		saved.locks = m.locks
		*m = saved
		return err
	}
	return nil
}

func (m *memStore) LockParty(ctx context.Context, partyID string) error {
	m.locks = append(m.locks, "party:"+partyID)
	return nil
}

func (m *memStore) LockPlan(ctx context.Context, planID string) error {
	m.locks = append(m.locks, "plan:"+planID)
	return nil
}

func (m *memStore) LockPlanShared(ctx context.Context, planID string) error {
	m.locks = append(m.locks, "plan-shared:"+planID)
	return nil
}

func (m *memStore) ListActiveParties(ctx context.Context) ([]domain.Party, error) {
	var out []domain.Party
	for _, p := range m.parties {
		if p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) CreatePlan(ctx context.Context, p domain.Plan) error {
	m.plans[p.ID] = p
	return nil
}

func (m *memStore) GetPlan(ctx context.Context, id string) (domain.Plan, error) {
	p, ok := m.plans[id]
	if !ok {
		return p, domain.ErrNotFound
	}
	return p, nil
}

func (m *memStore) ListPlans(ctx context.Context) ([]domain.Plan, error) {
	out := make([]domain.Plan, 0, len(m.plans))
	for _, p := range m.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Period.Equal(out[j].Period) {
			return out[i].Period.Before(out[j].Period)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memStore) GetPlanForUpdate(ctx context.Context, id string) (domain.Plan, error) {
	return m.GetPlan(ctx, id)
}

func (m *memStore) UpdatePlanStatus(ctx context.Context, id string, status domain.PlanStatus, at time.Time) error {
	p, ok := m.plans[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.Status = status
	p.UpdatedAt = at
	m.plans[id] = p
	return nil
}

func (m *memStore) ListObligations(ctx context.Context, planID string) ([]domain.Obligation, error) {
	var out []domain.Obligation
	for _, o := range m.obligations {
		if o.PlanID == planID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memStore) ReplaceObligations(ctx context.Context, planID string, next []domain.Obligation) error {
	dropped := map[string]bool{}
	var kept []domain.Obligation
	for _, o := range m.obligations {
		if o.PlanID == planID {
			dropped[o.ID] = true
			continue
		}
		kept = append(kept, o)
	}
	var allocs []domain.Allocation
	for _, a := range m.allocations {
		if dropped[a.ObligationID] {
			if a.ReversedAt == nil {
				continue
			}
			a.ObligationID = ""
		}
		allocs = append(allocs, a)
	}
	m.obligations = append(kept, next...)
	m.allocations = allocs
	return nil
}

func (m *memStore) allocatedTo(obligationID string) domain.Money {
	var sum domain.Money
	for _, a := range m.allocations {
		if a.ObligationID == obligationID && a.ReversedAt == nil {
			sum += a.Amount
		}
	}
	return sum
}

func (m *memStore) allocatedFrom(contributionID string) domain.Money {
	var sum domain.Money
	for _, a := range m.allocations {
		if a.ContributionID == contributionID && a.ReversedAt == nil {
			sum += a.Amount
		}
	}
	return sum
}

func (m *memStore) AllocatedByObligation(ctx context.Context, planID string) (map[string]domain.Money, error) {
	out := map[string]domain.Money{}
	for _, o := range m.obligations {
		if o.PlanID != planID {
			continue
		}
		if sum := m.allocatedTo(o.ID); sum > 0 {
			out[o.ID] = sum
		}
	}
	return out, nil
}

func (m *memStore) ListOutstandingForParty(ctx context.Context, partyID string) ([]obligation.Outstanding, error) {
	var out []obligation.Outstanding
	for _, o := range m.obligations {
		plan := m.plans[o.PlanID]
		if o.PartyID != partyID || plan.Status == domain.PlanClosed {
			continue
		}
		out = append(out, obligation.Outstanding{
			ObligationID: o.ID,
			PartyID:      o.PartyID,
			Period:       plan.Period,
			Remaining:    o.Amount - m.allocatedTo(o.ID),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Period.Before(out[j].Period) })
	return out, nil
}

func (m *memStore) CreateContribution(ctx context.Context, c domain.Contribution) error {
	if _, ok := m.plans[c.PlanID]; !ok {
		return domain.ErrNotFound
	}
	m.contributions = append(m.contributions, c)
	return nil
}

func (m *memStore) GetContributionForUpdate(ctx context.Context, id string) (domain.Contribution, error) {
	for _, c := range m.contributions {
		if c.ID == id {
			return c, nil
		}
	}
	return domain.Contribution{}, domain.ErrNotFound
}

func (m *memStore) UpdateContribution(ctx context.Context, c domain.Contribution) error {
	for i := range m.contributions {
		if m.contributions[i].ID == c.ID {
			m.contributions[i] = c
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *memStore) ListContributions(ctx context.Context, planID string) ([]domain.Contribution, error) {
	var out []domain.Contribution
	for _, c := range m.contributions {
		if c.PlanID == planID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) InsertAllocations(ctx context.Context, allocations []domain.Allocation) error {
	m.allocations = append(m.allocations, allocations...)
	return nil
}

func (m *memStore) ReverseAllocations(ctx context.Context, contributionID string, at time.Time) (int64, error) {
	var n int64
	for i := range m.allocations {
		if m.allocations[i].ContributionID == contributionID && m.allocations[i].ReversedAt == nil {
			m.allocations[i].ReversedAt = &at
			n++
		}
	}
	return n, nil
}

func (m *memStore) ListCredit(ctx context.Context, partyID string) ([]store.Credit, error) {
	var posted []domain.Contribution
	for _, c := range m.contributions {
		if c.PartyID == partyID && c.Status == domain.ContributionPosted {
			posted = append(posted, c)
		}
	}
	sort.SliceStable(posted, func(i, j int) bool { return posted[i].PostedAt.Before(*posted[j].PostedAt) })

	var out []store.Credit
	for _, c := range posted {
		if left := c.Amount - m.allocatedFrom(c.ID); left > 0 {
			out = append(out, store.Credit{ContributionID: c.ID, PartyID: c.PartyID, Amount: left})
		}
	}
	return out, nil
}

func (m *memStore) GetPayable(ctx context.Context, id string) (domain.Payable, error) {
	p, ok := m.payables[id]
	if !ok {
		return p, domain.ErrNotFound
	}
	return p, nil
}

func (m *memStore) ListOpenPayables(ctx context.Context) ([]domain.Payable, error) {
	var out []domain.Payable
	for _, p := range m.payables {
		if p.Paid < p.Total {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (m *memStore) GetIdempotencyKey(ctx context.Context, key string) (*models.IdempotencyRecord, string, error) {
	e, ok := m.keys[key]
	if !ok {
		return nil, "", nil
	}
	rec := e.rec
	return &rec, e.hash, nil
}

func (m *memStore) ReserveIdempotencyKey(ctx context.Context, key, requestHash string) error {
	if _, ok := m.keys[key]; ok {
		return store.ErrIdempotencyConflict
	}
	m.keys[key] = idemEntry{rec: models.IdempotencyRecord{Key: key, Status: "in_progress"}, hash: requestHash}
	return nil
}

func (m *memStore) CompleteIdempotencyKey(ctx context.Context, key, contributionID string, status int, body []byte) error {
	e := m.keys[key]
	e.rec.Status = "completed"
	e.rec.ResponseStatus = status
	e.rec.ResponseBody = body
	m.keys[key] = e
	return nil
}

var _ store.TxRunner = (*memStore)(nil)

type recordedEvents struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordedEvents) Publish(ctx context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordedEvents) Close() {}

func (r *recordedEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}
