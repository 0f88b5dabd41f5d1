package api

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/campushq/campusledger/internal/domain"
)

func (h *Handler) ListCoinRules(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.viewer(w, r); !ok {
		return
	}

	var status domain.RuleStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		status = domain.RuleStatus(raw)
		if status != domain.RuleActive && status != domain.RuleArchived {
			h.respondStoreError(w, r, domain.FieldErrors{"status": {"Status must be ACTIVE or ARCHIVED."}})
			return
		}
	}

	params := listParams(r)
	rules, count, err := h.store.ListCoinRules(r.Context(), status, params)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, domain.NewPage(rules, count, r.URL.Path, params))
}

func (h *Handler) GetCoinRule(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.viewer(w, r); !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "Not found")
		return
	}

	rule, err := h.store.GetCoinRule(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, rule)
}

func (h *Handler) CreateCoinRule(w http.ResponseWriter, r *http.Request) {
	v, ok := h.viewer(w, r)
	if !ok {
		return
	}
	if !v.CanManageRules {
		forbid(w)
		return
	}

	var req domain.CoinRuleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		h.respondStoreError(w, r, err)
		return
	}

	rule, err := h.store.CreateCoinRule(r.Context(), req)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, rule)
}

func (h *Handler) UpdateCoinRule(w http.ResponseWriter, r *http.Request) {
	v, ok := h.viewer(w, r)
	if !ok {
		return
	}
	if !v.CanManageRules {
		forbid(w)
		return
	}
	id, err := pathID(r)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "Not found")
		return
	}

	var req domain.CoinRuleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		h.respondStoreError(w, r, err)
		return
	}

	rule, err := h.store.UpdateCoinRule(r.Context(), id, req)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, rule)
}

// setRuleStatus backs both the archive and activate endpoints.
func (h *Handler) setRuleStatus(w http.ResponseWriter, r *http.Request, archive bool) {
	v, ok := h.viewer(w, r)
	if !ok {
		return
	}
	if !v.CanManageRules {
		forbid(w)
		return
	}
	id, err := pathID(r)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "Not found")
		return
	}

	rule, err := h.store.SetCoinRuleStatus(r.Context(), id, archive)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, rule)
}

func (h *Handler) ArchiveCoinRule(w http.ResponseWriter, r *http.Request) {
	h.setRuleStatus(w, r, true)
}

func (h *Handler) ActivateCoinRule(w http.ResponseWriter, r *http.Request) {
	h.setRuleStatus(w, r, false)
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.viewer(w, r); !ok {
		return
	}

	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("page_size"))
	filter := domain.TransactionFilter{
		IncludeDeleted: q.Get("include_deleted") == "true",
		Page:           page,
		Size:           size,
	}
	if raw := q.Get("student_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.respondStoreError(w, r, domain.FieldErrors{"student_id": {"Must be a valid UUID."}})
			return
		}
		filter.StudentID = id
	}
	if raw := q.Get("type"); raw != "" {
		filter.Type = domain.TransactionType(raw)
	}

	txs, count, err := h.store.ListTransactions(r.Context(), filter)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	params := domain.ListParams{Page: filter.Page, Size: filter.Size}.Normalize()
	respondWithJSON(w, http.StatusOK, domain.NewPage(txs, count, r.URL.Path, params))
}

// IssueCoins awards coins under a rule. The Idempotency-Key header is
// mandatory; a replayed key returns the first response verbatim.
func (h *Handler) IssueCoins(w http.ResponseWriter, r *http.Request) {
	v, ok := h.viewer(w, r)
	if !ok {
		return
	}
	if !v.CanIssueCoins {
		forbid(w)
		return
	}

	idemKey, reqHash, ok := readIdempotentBody(w, r)
	if !ok {
		return
	}

	var req domain.IssueRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		h.respondStoreError(w, r, err)
		return
	}

	result, stored, err := h.store.IssueCoins(r.Context(), req, v.StaffID, v.JobPositionID, idemKey, reqHash)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	if stored != nil {
		replayStored(w, stored)
		return
	}
	respondWithJSON(w, http.StatusCreated, result)
}

type deleteTransactionRequest struct {
	DeletionReason string `json:"deletion_reason"`
}

// DeleteTransaction reverses an issuance with a mandatory reason.
func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	v, ok := h.viewer(w, r)
	if !ok {
		return
	}
	if !v.CanIssueCoins && !v.CanViewAudits {
		forbid(w)
		return
	}
	id, err := pathID(r)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "Not found")
		return
	}

	var req deleteTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	if req.DeletionReason == "" {
		h.respondStoreError(w, r, domain.FieldErrors{"deletion_reason": {"This field is required."}})
		return
	}

	result, err := h.store.DeleteTransaction(r.Context(), id, v.StaffID, req.DeletionReason)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

func (h *Handler) ListDeletionAudits(w http.ResponseWriter, r *http.Request) {
	v, ok := h.viewer(w, r)
	if !ok {
		return
	}
	if !v.CanViewAudits {
		forbid(w)
		return
	}

	params := listParams(r)
	audits, count, err := h.store.ListDeletionAudits(r.Context(), params)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, domain.NewPage(audits, count, r.URL.Path, params))
}
