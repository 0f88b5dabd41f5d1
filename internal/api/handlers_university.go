package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/campushq/campusledger/internal/domain"
)

// referenceKinds maps URL segments to reference tables.
var referenceKinds = map[string]domain.ReferenceKind{
	"faculties":     domain.KindFaculty,
	"degree-levels": domain.KindDegreeLevel,
	"year-levels":   domain.KindYearLevel,
}

func referenceKind(r *http.Request) (domain.ReferenceKind, bool) {
	kind, ok := referenceKinds[mux.Vars(r)["kind"]]
	return kind, ok
}

type referenceRequest struct {
	Name string `json:"name"`
}

func (h *Handler) ListReference(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.viewer(w, r); !ok {
		return
	}
	kind, ok := referenceKind(r)
	if !ok {
		respondWithError(w, http.StatusNotFound, "Not found")
		return
	}

	params := listParams(r)
	entries, count, err := h.store.ListReference(r.Context(), kind, params)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, domain.NewPage(entries, count, r.URL.Path, params))
}

func (h *Handler) CreateReference(w http.ResponseWriter, r *http.Request) {
	v, ok := h.viewer(w, r)
	if !ok {
		return
	}
	if !v.CanManageDirectory {
		forbid(w)
		return
	}
	kind, ok := referenceKind(r)
	if !ok {
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

	entry, err := h.store.CreateReference(r.Context(), kind, req.Name)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, entry)
}

func (h *Handler) UpdateReference(w http.ResponseWriter, r *http.Request) {
	v, ok := h.viewer(w, r)
	if !ok {
		return
	}
	if !v.CanManageDirectory {
		forbid(w)
		return
	}
	kind, ok := referenceKind(r)
	if !ok {
		respondWithError(w, http.StatusNotFound, "Not found")
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

	entry, err := h.store.UpdateReference(r.Context(), kind, id, req.Name)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, entry)
}

func (h *Handler) DeleteReference(w http.ResponseWriter, r *http.Request) {
	v, ok := h.viewer(w, r)
	if !ok {
		return
	}
	if !v.CanManageDirectory {
		forbid(w)
		return
	}
	kind, ok := referenceKind(r)
	if !ok {
		respondWithError(w, http.StatusNotFound, "Not found")
		return
	}
	id, err := pathID(r)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "Not found")
		return
	}

	if err := h.store.DeleteReference(r.Context(), kind, id); err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusNoContent, nil)
}
