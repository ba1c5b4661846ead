package api

import (
	"net/http"

	"github.com/punchamoorthee/procurefin/internal/duedate"
	"github.com/punchamoorthee/procurefin/internal/models"
	"github.com/punchamoorthee/procurefin/internal/obligation"
	"github.com/punchamoorthee/procurefin/internal/paystatus"
	"github.com/punchamoorthee/procurefin/internal/proration"
	"github.com/punchamoorthee/procurefin/internal/service"
	"github.com/punchamoorthee/procurefin/internal/taxcalc"
)

// Calculator endpoints are pure: no storage, no locks, no events.

func (h *Handler) ProrateHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ProrateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	shares, err := proration.Allocate(req.Total, req.Parties)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.ProrateResponse{Total: proration.Sum(shares), Shares: shares})
}

func (h *Handler) TaxFromBaseHandler(w http.ResponseWriter, r *http.Request) {
	var req models.TaxBaseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	policy := taxcalc.Policy{Percent: req.Percent, Inclusive: req.Inclusive}

	var (
		b   taxcalc.Breakdown
		err error
	)
	if len(req.Lines) > 0 {
		b, err = taxcalc.FromLines(req.Lines, policy)
	} else {
		b, err = taxcalc.FromBase(req.Base, policy)
	}
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, b)
}

func (h *Handler) TaxFromGrossHandler(w http.ResponseWriter, r *http.Request) {
	var req models.TaxGrossRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	b, err := taxcalc.FromGross(req.Gross, req.Percent, req.Inclusive)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, b)
}

func (h *Handler) TaxProportionalHandler(w http.ResponseWriter, r *http.Request) {
	var req models.TaxProportionalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	known := taxcalc.Breakdown{Base: req.KnownBase, Tax: req.KnownTax, Gross: req.KnownTotal}
	b, err := taxcalc.Proportional(known, req.Percent, req.Inclusive, req.TargetGross)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, b)
}

func (h *Handler) DueDateHandler(w http.ResponseWriter, r *http.Request) {
	var req models.DueDateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	computed, err := duedate.Compute(req.ReferenceDate.Time, req.FallbackDate.Ptr(), req.Term)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	manual := req.ManualDueDate.Ptr()
	source := service.SourceAuto
	if manual != nil {
		source = service.SourceManual
	}
	respondWithJSON(w, http.StatusOK, models.DueDateResponse{
		Computed: models.NewDate(computed),
		DueDate:  models.NewDate(duedate.Resolve(computed, manual)),
		Source:   source,
	})
}

func (h *Handler) PaymentStatusHandler(w http.ResponseWriter, r *http.Request) {
	var req models.PaymentStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	today := h.now().In(h.loc)
	if t := req.Today.Ptr(); t != nil {
		today = *t
	}
	result, err := paystatus.Derive(paystatus.Facts{Total: req.Total, Paid: req.Paid, DueDate: req.DueDate.Ptr()}, today)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

func (h *Handler) FIFOHandler(w http.ResponseWriter, r *http.Request) {
	var req models.FIFORequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := obligation.AllocateFIFO(req.PartyID, req.Amount, req.Outstanding)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, p)
}
