package api

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/punchamoorthee/procurefin/internal/models"
)

func (h *Handler) CreatePlanHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CreatePlanRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	plan, err := h.plans.Create(r.Context(), req)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/plans/%s", plan.ID))
	respondWithJSON(w, http.StatusCreated, plan)
}

func (h *Handler) ListPlansHandler(w http.ResponseWriter, r *http.Request) {
	plans, err := h.plans.List(r.Context())
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, plans)
}

func (h *Handler) GetPlanHandler(w http.ResponseWriter, r *http.Request) {
	resp, err := h.plans.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *Handler) ActivatePlanHandler(w http.ResponseWriter, r *http.Request) {
	resp, err := h.plans.Activate(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *Handler) SnapshotPlanHandler(w http.ResponseWriter, r *http.Request) {
	resp, err := h.plans.RegenerateSnapshot(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *Handler) ClosePlanHandler(w http.ResponseWriter, r *http.Request) {
	plan, err := h.plans.Close(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, plan)
}

func (h *Handler) ReopenPlanHandler(w http.ResponseWriter, r *http.Request) {
	plan, err := h.plans.Reopen(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, plan)
}

func (h *Handler) ReconcilePlanHandler(w http.ResponseWriter, r *http.Request) {
	resp, err := h.plans.Reconcile(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *Handler) RecordContributionHandler(w http.ResponseWriter, r *http.Request) {
	var req models.RecordContributionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := h.contributions.Record(r.Context(), req)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/contributions/%s", resp.Contribution.ID))
	respondWithJSON(w, http.StatusCreated, resp)
}

// PostContributionHandler honours an optional Idempotency-Key. The key is
// bound to the contribution id and the raw body, so reusing it for another
// contribution or payload is rejected.
func (h *Handler) PostContributionHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	idempotencyKey := r.Header.Get("Idempotency-Key")

	bodyBytes, err := io.ReadAll(r.Body)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Stream read error")
		return
	}
	r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

	hash := sha256.Sum256(append([]byte(id+"\n"), bodyBytes...))
	reqHash := hex.EncodeToString(hash[:])

	var req models.PostContributionRequest
	if len(bytes.TrimSpace(bodyBytes)) > 0 {
		if err := json.Unmarshal(bodyBytes, &req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
			return
		}
	}

	resp, existing, err := h.contributions.Post(r.Context(), id, req, idempotencyKey, reqHash)
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}

	// Idempotent replay
	if existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(existing.ResponseStatus)
		w.Write(existing.ResponseBody)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *Handler) VoidContributionHandler(w http.ResponseWriter, r *http.Request) {
	resp, err := h.contributions.Void(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *Handler) PayableStatusHandler(w http.ResponseWriter, r *http.Request) {
	resp, err := h.payables.Status(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *Handler) OutstandingTaxHandler(w http.ResponseWriter, r *http.Request) {
	resp, err := h.payables.OutstandingTax(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondWithServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}
