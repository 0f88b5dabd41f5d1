package api

import (
	"net/http"
	"strconv"

	"github.com/campushq/campusledger/internal/domain"
)

func (h *Handler) ListStudents(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.viewer(w, r); !ok {
		return
	}

	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("page_size"))
	filter := domain.StudentFilter{
		Search: q.Get("search"),
		Page:   page,
		Size:   size,
	}
	if raw := q.Get("status"); raw != "" {
		status := domain.StudentStatus(raw)
		if !status.Valid() {
			h.respondStoreError(w, r, domain.FieldErrors{"status": {"Status must be waited, approved or rejected."}})
			return
		}
		filter.Status = status
	}

	students, count, err := h.store.ListStudents(r.Context(), filter)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	params := domain.ListParams{Page: filter.Page, Size: filter.Size}.Normalize()
	respondWithJSON(w, http.StatusOK, domain.NewPage(students, count, r.URL.Path, params))
}

func (h *Handler) GetStudent(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.viewer(w, r); !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "Not found")
		return
	}

	student, err := h.store.GetStudent(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, student)
}

func (h *Handler) CreateStudent(w http.ResponseWriter, r *http.Request) {
	v, ok := h.viewer(w, r)
	if !ok {
		return
	}
	if !v.CanManageStudents {
		forbid(w)
		return
	}

	var req domain.CreateStudentRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		h.respondStoreError(w, r, err)
		return
	}

	student, err := h.store.CreateStudent(r.Context(), req)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}

	h.counts.InvalidateWaited(r.Context())
	respondWithJSON(w, http.StatusCreated, student)
}

type studentStatusRequest struct {
	Status domain.StudentStatus `json:"status"`
}

// UpdateStudentStatus applies the one-way approval transition and drops the
// cached waited count.
func (h *Handler) UpdateStudentStatus(w http.ResponseWriter, r *http.Request) {
	v, ok := h.viewer(w, r)
	if !ok {
		return
	}
	if !v.CanManageStudents {
		forbid(w)
		return
	}
	id, err := pathID(r)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "Not found")
		return
	}

	var req studentStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	if req.Status != domain.StudentApproved && req.Status != domain.StudentRejected {
		h.respondStoreError(w, r, domain.FieldErrors{"status": {"Status must be approved or rejected."}})
		return
	}

	student, err := h.store.UpdateStudentStatus(r.Context(), id, req.Status)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}

	h.counts.InvalidateWaited(r.Context())
	respondWithJSON(w, http.StatusOK, student)
}

// WaitedCount serves the review badge, from cache when warm.
func (h *Handler) WaitedCount(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.viewer(w, r); !ok {
		return
	}

	if n, warm := h.counts.WaitedCount(r.Context()); warm {
		respondWithJSON(w, http.StatusOK, map[string]int64{"count": n})
		return
	}

	n, err := h.store.WaitedCount(r.Context())
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	h.counts.SetWaitedCount(r.Context(), n)
	respondWithJSON(w, http.StatusOK, map[string]int64{"count": n})
}
