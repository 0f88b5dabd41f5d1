package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StockType distinguishes products with finite inventory.
type StockType string

const (
	StockUnlimited StockType = "UNLIMITED"
	StockLimited   StockType = "LIMITED"
)

// Product is a marketplace item purchasable with coins. Archived products
// stay readable so order history and audit rows keep resolving.
type Product struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	PriceCoins    int64     `json:"price_coins"`
	StockType     StockType `json:"stock_type"`
	StockQuantity *int64    `json:"stock_quantity,omitempty"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
}

// Purchasable reports whether qty units can be sold right now.
func (p *Product) Purchasable(qty int64) error {
	if !p.IsActive {
		return ErrStateConflict
	}
	if p.StockType == StockLimited && (p.StockQuantity == nil || *p.StockQuantity < qty) {
		return ErrInsufficientStock
	}
	return nil
}

// ProductRequest is the payload for creating or updating a product.
type ProductRequest struct {
	Name          string    `json:"name"`
	PriceCoins    int64     `json:"price_coins"`
	StockType     StockType `json:"stock_type"`
	StockQuantity *int64    `json:"stock_quantity"`
}

// MaxProductPrice caps product prices so a maximum-quantity line total still
// fits comfortably in int64.
const MaxProductPrice = 1_000_000_000

func (r ProductRequest) Validate() error {
	fe := FieldErrors{}
	if r.Name == "" {
		fe.Add("name", "This field is required.")
	}
	if r.PriceCoins <= 0 {
		fe.Add("price_coins", "Price must be a positive integer.")
	} else if r.PriceCoins > MaxProductPrice {
		fe.Add("price_coins", fmt.Sprintf("Price may not exceed %d.", MaxProductPrice))
	}
	switch r.StockType {
	case StockUnlimited:
		if r.StockQuantity != nil {
			fe.Add("stock_quantity", "Quantity is not allowed for unlimited stock.")
		}
	case StockLimited:
		if r.StockQuantity == nil || *r.StockQuantity < 0 {
			fe.Add("stock_quantity", "A non-negative quantity is required for limited stock.")
		}
	default:
		fe.Add("stock_type", "Stock type must be UNLIMITED or LIMITED.")
	}
	return fe.Err()
}

// OrderStatus is the lifecycle state of a redemption order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderFulfilled OrderStatus = "FULFILLED"
	OrderCanceled  OrderStatus = "CANCELED"
	OrderReturned  OrderStatus = "RETURNED"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderFulfilled, OrderCanceled, OrderReturned:
		return true
	}
	return false
}

// CanTransitionTo encodes the order state machine. CANCELED and RETURNED
// are terminal; FULFILLED only admits a return.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case OrderPending:
		return next == OrderFulfilled || next == OrderCanceled
	case OrderFulfilled:
		return next == OrderReturned
	}
	return false
}

// ReasonRequired reports whether entering s must carry a reason.
func (s OrderStatus) ReasonRequired() bool {
	return s == OrderCanceled || s == OrderReturned
}

// Refundable reports whether entering next returns the order total to the
// student and restocks limited items.
func Refundable(next OrderStatus) bool {
	return next == OrderCanceled || next == OrderReturned
}

// OrderItem is a snapshot of a product line at purchase time. It is never
// re-joined to the live product row, so later price or name changes do not
// rewrite history.
type OrderItem struct {
	ProductID   uuid.UUID `json:"product_id"`
	ProductName string    `json:"product_name"`
	PriceCoins  int64     `json:"price_coins"`
	Quantity    int64     `json:"quantity"`
	LineTotal   int64     `json:"line_total"`
}

// SnapshotItem freezes a product line for an order.
func SnapshotItem(p *Product, qty int64) OrderItem {
	return OrderItem{
		ProductID:   p.ID,
		ProductName: p.Name,
		PriceCoins:  p.PriceCoins,
		Quantity:    qty,
		LineTotal:   p.PriceCoins * qty,
	}
}

// Order is a redemption of coins for marketplace items.
type Order struct {
	ID             uuid.UUID   `json:"id"`
	StudentID      uuid.UUID   `json:"student_id"`
	Items          []OrderItem `json:"items"`
	TotalCoins     int64       `json:"total_coins"`
	Status         OrderStatus `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`
	FulfilledAt    *time.Time  `json:"fulfilled_at"`
	ReturnedAt     *time.Time  `json:"returned_at"`
	ReturnedReason string      `json:"returned_reason,omitempty"`
	ProcessedBy    *uuid.UUID  `json:"processed_by"`
}

// CreateOrderRequest is the payload for placing an order.
type CreateOrderRequest struct {
	StudentID uuid.UUID          `json:"student_id"`
	Items     []OrderItemRequest `json:"items"`
}

// OrderItemRequest is one requested line of a new order.
type OrderItemRequest struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int64     `json:"quantity"`
}

// MaxOrderItemQuantity caps a single order line. Line totals stay far from
// int64 overflow at any price the product validation admits.
const MaxOrderItemQuantity = 1_000_000

func (r CreateOrderRequest) Validate() error {
	fe := FieldErrors{}
	if r.StudentID == uuid.Nil {
		fe.Add("student_id", "This field is required.")
	}
	if len(r.Items) == 0 {
		fe.Add("items", "At least one item is required.")
	}
	for _, it := range r.Items {
		if it.ProductID == uuid.Nil {
			fe.Add("items", "Each item needs a product_id.")
			break
		}
	}
	for _, it := range r.Items {
		if it.Quantity <= 0 {
			fe.Add("items", "Each item needs a positive quantity.")
			break
		}
	}
	for _, it := range r.Items {
		if it.Quantity > MaxOrderItemQuantity {
			fe.Add("items", fmt.Sprintf("Quantity may not exceed %d.", MaxOrderItemQuantity))
			break
		}
	}
	return fe.Err()
}

// OrderTransitionRequest is the payload for an order status change.
type OrderTransitionRequest struct {
	Status OrderStatus `json:"status"`
	Reason string      `json:"returned_reason,omitempty"`
}

// AuditAction labels one redemption audit row.
type AuditAction string

const (
	AuditCreated   AuditAction = "CREATED"
	AuditFulfilled AuditAction = "FULFILLED"
	AuditCanceled  AuditAction = "CANCELED"
	AuditReturned  AuditAction = "RETURNED"
)

// ActionFor maps a reached order status to its audit action.
func ActionFor(s OrderStatus) AuditAction {
	switch s {
	case OrderFulfilled:
		return AuditFulfilled
	case OrderCanceled:
		return AuditCanceled
	case OrderReturned:
		return AuditReturned
	}
	return AuditCreated
}

// RedemptionAuditLog is one append-only record of an order state change,
// with the student balance captured on both sides of it.
type RedemptionAuditLog struct {
	ID            int64       `json:"id"`
	OrderID       uuid.UUID   `json:"order_id"`
	Actor         string      `json:"actor"`
	Action        AuditAction `json:"action"`
	DeltaCoins    int64       `json:"delta_coins"`
	BeforeBalance int64       `json:"before_balance"`
	AfterBalance  int64       `json:"after_balance"`
	Note          string      `json:"note,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

// OrderTransitionResult is the response to a successful status change.
type OrderTransitionResult struct {
	Order Order              `json:"order"`
	Audit RedemptionAuditLog `json:"audit"`
}

// OrderFilter narrows order listings.
type OrderFilter struct {
	Status    OrderStatus
	StudentID uuid.UUID
	Page      int
	Size      int
}
