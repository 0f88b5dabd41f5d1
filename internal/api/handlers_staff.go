package api

import (
	"net/http"

	"github.com/campushq/campusledger/internal/domain"
)

func (h *Handler) ListJobPositions(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.viewer(w, r); !ok {
		return
	}
	params := listParams(r)
	positions, count, err := h.store.ListJobPositions(r.Context(), params)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, domain.NewPage(positions, count, r.URL.Path, params))
}

func (h *Handler) CreateJobPosition(w http.ResponseWriter, r *http.Request) {
	v, ok := h.viewer(w, r)
	if !ok {
		return
	}
	if !v.CanManageStaff {
		forbid(w)
		return
	}

	var req referenceRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	if req.Name == "" {
		h.respondStoreError(w, r, domain.FieldErrors{"name": {"This field is required."}})
		return
	}

	position, err := h.store.CreateJobPosition(r.Context(), req.Name)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, position)
}

func (h *Handler) UpdateJobPosition(w http.ResponseWriter, r *http.Request) {
	v, ok := h.viewer(w, r)
	if !ok {
		return
	}
	if !v.CanManageStaff {
		forbid(w)
		return
	}
	id, err := pathID(r)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "Not found")
		return
	}

	var req referenceRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	if req.Name == "" {
		h.respondStoreError(w, r, domain.FieldErrors{"name": {"This field is required."}})
		return
	}

	position, err := h.store.UpdateJobPosition(r.Context(), id, req.Name)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, position)
}

func (h *Handler) DeleteJobPosition(w http.ResponseWriter, r *http.Request) {
	v, ok := h.viewer(w, r)
	if !ok {
		return
	}
	if !v.CanManageStaff {
		forbid(w)
		return
	}
	id, err := pathID(r)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "Not found")
		return
	}

	if err := h.store.DeleteJobPosition(r.Context(), id); err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) ListStaff(w http.ResponseWriter, r *http.Request) {
	v, ok := h.viewer(w, r)
	if !ok {
		return
	}
	if !v.CanManageStaff {
		forbid(w)
		return
	}
	params := listParams(r)
	members, count, err := h.store.ListStaff(r.Context(), params)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, domain.NewPage(members, count, r.URL.Path, params))
}

func (h *Handler) GetStaff(w http.ResponseWriter, r *http.Request) {
	v, ok := h.viewer(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "Not found")
		return
	}
	// Staff may read their own record; everything else is admin-only.
	if !v.CanManageStaff && v.StaffID != id {
		forbid(w)
		return
	}

	member, err := h.store.GetStaff(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, member)
}

func (h *Handler) CreateStaff(w http.ResponseWriter, r *http.Request) {
	v, ok := h.viewer(w, r)
	if !ok {
		return
	}
	if !v.CanManageStaff {
		forbid(w)
		return
	}

	var req domain.CreateStaffRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		h.respondStoreError(w, r, err)
		return
	}

	member, err := h.store.CreateStaff(r.Context(), req)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, member)
}

func (h *Handler) UpdateStaff(w http.ResponseWriter, r *http.Request) {
	v, ok := h.viewer(w, r)
	if !ok {
		return
	}
	if !v.CanManageStaff {
		forbid(w)
		return
	}
	id, err := pathID(r)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "Not found")
		return
	}

	var req domain.UpdateStaffRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	if req.Password != nil && len(*req.Password) < 8 {
		h.respondStoreError(w, r, domain.FieldErrors{"password": {"Password must be at least 8 characters."}})
		return
	}

	member, err := h.store.UpdateStaff(r.Context(), id, req)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, member)
}

func (h *Handler) DeleteStaff(w http.ResponseWriter, r *http.Request) {
	v, ok := h.viewer(w, r)
	if !ok {
		return
	}
	if !v.CanManageStaff {
		forbid(w)
		return
	}
	id, err := pathID(r)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "Not found")
		return
	}

	if err := h.store.DeleteStaff(r.Context(), id); err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusNoContent, nil)
}
