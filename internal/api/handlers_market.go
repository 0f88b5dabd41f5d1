package api

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/campushq/campusledger/internal/domain"
)

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.viewer(w, r); !ok {
		return
	}

	params := listParams(r)
	includeArchived := r.URL.Query().Get("include_archived") == "true"
	products, count, err := h.store.ListProducts(r.Context(), includeArchived, params)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, domain.NewPage(products, count, r.URL.Path, params))
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.viewer(w, r); !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "Not found")
		return
	}

	product, err := h.store.GetProduct(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, product)
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	v, ok := h.viewer(w, r)
	if !ok {
		return
	}
	if !v.CanManageMarket {
		forbid(w)
		return
	}

	var req domain.ProductRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		h.respondStoreError(w, r, err)
		return
	}

	product, err := h.store.CreateProduct(r.Context(), req)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, product)
}

func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	v, ok := h.viewer(w, r)
	if !ok {
		return
	}
	if !v.CanManageMarket {
		forbid(w)
		return
	}
	id, err := pathID(r)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "Not found")
		return
	}

	var req domain.ProductRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		h.respondStoreError(w, r, err)
		return
	}

	product, err := h.store.UpdateProduct(r.Context(), id, req)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, product)
}

func (h *Handler) ArchiveProduct(w http.ResponseWriter, r *http.Request) {
	v, ok := h.viewer(w, r)
	if !ok {
		return
	}
	if !v.CanManageMarket {
		forbid(w)
		return
	}
	id, err := pathID(r)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "Not found")
		return
	}

	product, err := h.store.ArchiveProduct(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, product)
}

type restockRequest struct {
	StockQuantity *int64 `json:"stock_quantity"`
}

func (h *Handler) RestockProduct(w http.ResponseWriter, r *http.Request) {
	v, ok := h.viewer(w, r)
	if !ok {
		return
	}
	if !v.CanManageMarket {
		forbid(w)
		return
	}
	id, err := pathID(r)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "Not found")
		return
	}

	var req restockRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	if req.StockQuantity == nil || *req.StockQuantity < 0 {
		h.respondStoreError(w, r, domain.FieldErrors{"stock_quantity": {"A non-negative quantity is required."}})
		return
	}

	product, err := h.store.RestockProduct(r.Context(), id, *req.StockQuantity)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, product)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.viewer(w, r); !ok {
		return
	}

	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("page_size"))
	filter := domain.OrderFilter{Page: page, Size: size}
	if raw := q.Get("status"); raw != "" {
		status := domain.OrderStatus(raw)
		if !status.Valid() {
			h.respondStoreError(w, r, domain.FieldErrors{"status": {"Unknown order status."}})
			return
		}
		filter.Status = status
	}
	if raw := q.Get("student_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.respondStoreError(w, r, domain.FieldErrors{"student_id": {"Must be a valid UUID."}})
			return
		}
		filter.StudentID = id
	}

	orders, count, err := h.store.ListOrders(r.Context(), filter)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	params := domain.ListParams{Page: filter.Page, Size: filter.Size}.Normalize()
	respondWithJSON(w, http.StatusOK, domain.NewPage(orders, count, r.URL.Path, params))
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.viewer(w, r); !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "Not found")
		return
	}

	order, err := h.store.GetOrder(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, order)
}

// CreateOrder places a redemption on behalf of a student.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	v, ok := h.viewer(w, r)
	if !ok {
		return
	}

	var req domain.CreateOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	if err := req.Validate(); err != nil {
		h.respondStoreError(w, r, err)
		return
	}

	order, err := h.store.CreateOrder(r.Context(), req, v.StaffID, v.FullName)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, order)
}

// UpdateOrderStatus drives fulfill/cancel/return. A reason is mandatory for
// any transition that refunds; the check runs before the request is sent to
// the store so a reasonless rejection never reaches the state machine.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	v, ok := h.viewer(w, r)
	if !ok {
		return
	}
	if !v.CanManageMarket {
		forbid(w)
		return
	}
	id, err := pathID(r)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "Not found")
		return
	}

	idemKey, reqHash, ok := readIdempotentBody(w, r)
	if !ok {
		return
	}

	var req domain.OrderTransitionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	if !req.Status.Valid() || req.Status == domain.OrderPending {
		h.respondStoreError(w, r, domain.FieldErrors{"status": {"Status must be FULFILLED, CANCELED or RETURNED."}})
		return
	}
	if req.Status.ReasonRequired() && req.Reason == "" {
		h.respondStoreError(w, r, domain.FieldErrors{"returned_reason": {"This field is required."}})
		return
	}

	result, stored, err := h.store.UpdateOrderStatus(r.Context(), id, req, v.StaffID, v.FullName, idemKey, reqHash)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	if stored != nil {
		replayStored(w, stored)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

func (h *Handler) ListRedemptionAudits(w http.ResponseWriter, r *http.Request) {
	v, ok := h.viewer(w, r)
	if !ok {
		return
	}
	if !v.CanViewAudits {
		forbid(w)
		return
	}

	var orderID uuid.UUID
	if raw := r.URL.Query().Get("order_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.respondStoreError(w, r, domain.FieldErrors{"order_id": {"Must be a valid UUID."}})
			return
		}
		orderID = id
	}

	params := listParams(r)
	logs, count, err := h.store.ListRedemptionAudits(r.Context(), orderID, params)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, domain.NewPage(logs, count, r.URL.Path, params))
}
