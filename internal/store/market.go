package store

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/campushq/campusledger/internal/domain"
)

const productColumns = "id, name, price_coins, stock_type, stock_quantity, is_active, created_at"

func scanProduct(row interface{ Scan(...any) error }) (*domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.PriceCoins, &p.StockType, &p.StockQuantity, &p.IsActive, &p.CreatedAt)
	if err != nil {
		return nil, mapRowErr(err)
	}
	return &p, nil
}

func (s *Store) ListProducts(ctx context.Context, includeArchived bool, params domain.ListParams) ([]domain.Product, int64, error) {
	where := ""
	if !includeArchived {
		where = "WHERE is_active = true"
	}

	var count int64
	if err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM products "+where).Scan(&count); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.Query(ctx,
		fmt.Sprintf("SELECT %s FROM products %s ORDER BY name LIMIT $1 OFFSET $2", productColumns, where),
		params.Size, params.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, *p)
	}
	return products, count, rows.Err()
}

func (s *Store) GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	return scanProduct(s.db.QueryRow(ctx,
		"SELECT "+productColumns+" FROM products WHERE id = $1", id))
}

func (s *Store) CreateProduct(ctx context.Context, req domain.ProductRequest) (*domain.Product, error) {
	p := domain.Product{
		ID:            uuid.New(),
		Name:          req.Name,
		PriceCoins:    req.PriceCoins,
		StockType:     req.StockType,
		StockQuantity: req.StockQuantity,
		IsActive:      true,
		CreatedAt:     time.Now(),
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO products (id, name, price_coins, stock_type, stock_quantity, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.Name, p.PriceCoins, p.StockType, p.StockQuantity, p.IsActive, p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateProduct edits the live product row. Existing order item snapshots
// never change.
func (s *Store) UpdateProduct(ctx context.Context, id uuid.UUID, req domain.ProductRequest) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRow(ctx, `
		UPDATE products SET name = $1, price_coins = $2, stock_type = $3, stock_quantity = $4
		WHERE id = $5
		RETURNING `+productColumns,
		req.Name, req.PriceCoins, req.StockType, req.StockQuantity, id).
		Scan(&p.ID, &p.Name, &p.PriceCoins, &p.StockType, &p.StockQuantity, &p.IsActive, &p.CreatedAt)
	if err != nil {
		return nil, mapRowErr(err)
	}
	return &p, nil
}

// ArchiveProduct takes the product off sale. The row stays readable so
// order history and audits keep resolving.
func (s *Store) ArchiveProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRow(ctx,
		"UPDATE products SET is_active = false WHERE id = $1 RETURNING "+productColumns, id).
		Scan(&p.ID, &p.Name, &p.PriceCoins, &p.StockType, &p.StockQuantity, &p.IsActive, &p.CreatedAt)
	if err != nil {
		return nil, mapRowErr(err)
	}
	return &p, nil
}

// RestockProduct sets the absolute stock quantity of a LIMITED product.
func (s *Store) RestockProduct(ctx context.Context, id uuid.UUID, quantity int64) (*domain.Product, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	p, err := scanProduct(tx.QueryRow(ctx,
		"SELECT "+productColumns+" FROM products WHERE id = $1 FOR UPDATE", id))
	if err != nil {
		return nil, err
	}
	if p.StockType != domain.StockLimited {
		return nil, domain.ErrStateConflict
	}

	if _, err := tx.Exec(ctx, "UPDATE products SET stock_quantity = $1 WHERE id = $2", quantity, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("tx commit failed: %w", err)
	}
	p.StockQuantity = &quantity
	return p, nil
}

const orderColumns = "id, student_id, total_coins, status, created_at, fulfilled_at, returned_at, returned_reason, processed_by"

func scanOrder(row interface{ Scan(...any) error }) (*domain.Order, error) {
	var o domain.Order
	err := row.Scan(&o.ID, &o.StudentID, &o.TotalCoins, &o.Status, &o.CreatedAt,
		&o.FulfilledAt, &o.ReturnedAt, &o.ReturnedReason, &o.ProcessedBy)
	if err != nil {
		return nil, mapRowErr(err)
	}
	return &o, nil
}

func orderItems(ctx context.Context, q queryer, orderID uuid.UUID) ([]domain.OrderItem, error) {
	rows, err := q.Query(ctx, `
		SELECT product_id, product_name, price_coins, quantity, line_total
		FROM order_items WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []domain.OrderItem{}
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ProductID, &it.ProductName, &it.PriceCoins, &it.Quantity, &it.LineTotal); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// CreateOrder redeems coins for products. Product rows are locked in ID
// order, snapshots are frozen, limited stock is decremented and the student
// balance is deducted (recorded as a DEDUCTION ledger row) together with a
// CREATED audit entry.
func (s *Store) CreateOrder(ctx context.Context, req domain.CreateOrderRequest, actorID uuid.UUID, actorName string) (*domain.Order, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// Merge duplicate product lines, then lock in deterministic ID order.
	wanted := map[uuid.UUID]int64{}
	for _, it := range req.Items {
		wanted[it.ProductID] += it.Quantity
	}
	ids := make([]uuid.UUID, 0, len(wanted))
	for id := range wanted {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	now := time.Now()
	order := domain.Order{
		ID:        uuid.New(),
		StudentID: req.StudentID,
		Status:    domain.OrderPending,
		CreatedAt: now,
	}

	for _, pid := range ids {
		qty := wanted[pid]
		// Duplicate lines merge, so the per-line cap must hold again here.
		if qty > domain.MaxOrderItemQuantity {
			return nil, domain.FieldErrors{"items": {fmt.Sprintf("Quantity may not exceed %d.", domain.MaxOrderItemQuantity)}}
		}
		p, err := scanProduct(tx.QueryRow(ctx,
			"SELECT "+productColumns+" FROM products WHERE id = $1 FOR UPDATE", pid))
		if err != nil {
			return nil, err
		}
		if err := p.Purchasable(qty); err != nil {
			return nil, err
		}
		if p.StockType == domain.StockLimited {
			if _, err := tx.Exec(ctx,
				"UPDATE products SET stock_quantity = stock_quantity - $1 WHERE id = $2", qty, pid); err != nil {
				return nil, err
			}
		}
		order.Items = append(order.Items, domain.SnapshotItem(p, qty))
	}
	for _, it := range order.Items {
		if order.TotalCoins > math.MaxInt64-it.LineTotal {
			return nil, domain.FieldErrors{"items": {"Order total is too large."}}
		}
		order.TotalCoins += it.LineTotal
	}

	var balance int64
	err = tx.QueryRow(ctx,
		"SELECT balance FROM students WHERE id = $1 FOR UPDATE", req.StudentID).Scan(&balance)
	if err != nil {
		return nil, mapRowErr(err)
	}
	if balance < order.TotalCoins {
		return nil, domain.ErrInsufficientBalance
	}
	if _, err := tx.Exec(ctx,
		"UPDATE students SET balance = balance - $1 WHERE id = $2", order.TotalCoins, req.StudentID); err != nil {
		return nil, err
	}

	// The spend is a ledger movement like any other.
	_, err = tx.Exec(ctx, `
		INSERT INTO transactions (id, type, amount, student_id, staff_id, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.New(), domain.TransactionDeduction, order.TotalCoins, req.StudentID, actorID,
		fmt.Sprintf("order %s", order.ID), now)
	if err != nil {
		return nil, fmt.Errorf("deduction insert failed: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, student_id, total_coins, status, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		order.ID, order.StudentID, order.TotalCoins, order.Status, order.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("order insert failed: %w", err)
	}
	for _, it := range order.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items (order_id, product_id, product_name, price_coins, quantity, line_total)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			order.ID, it.ProductID, it.ProductName, it.PriceCoins, it.Quantity, it.LineTotal)
		if err != nil {
			return nil, fmt.Errorf("order item insert failed: %w", err)
		}
	}

	if err := appendOrderAudit(ctx, tx, domain.RedemptionAuditLog{
		OrderID:       order.ID,
		Actor:         actorName,
		Action:        domain.AuditCreated,
		DeltaCoins:    -order.TotalCoins,
		BeforeBalance: balance,
		AfterBalance:  balance - order.TotalCoins,
		CreatedAt:     now,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("tx commit failed: %w", err)
	}
	return &order, nil
}

func appendOrderAudit(ctx context.Context, tx pgx.Tx, a domain.RedemptionAuditLog) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO redemption_audit_logs (order_id, actor, action, delta_coins, before_balance, after_balance, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.OrderID, a.Actor, a.Action, a.DeltaCoins, a.BeforeBalance, a.AfterBalance, a.Note, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("redemption audit insert failed: %w", err)
	}
	return nil
}

func (s *Store) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, int64, error) {
	where := "WHERE 1=1"
	args := []any{}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.StudentID != uuid.Nil {
		args = append(args, filter.StudentID)
		where += fmt.Sprintf(" AND student_id = $%d", len(args))
	}

	var count int64
	if err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM orders "+where, args...).Scan(&count); err != nil {
		return nil, 0, err
	}

	params := domain.ListParams{Page: filter.Page, Size: filter.Size}.Normalize()
	args = append(args, params.Size, params.Offset())
	query := fmt.Sprintf("SELECT %s FROM orders %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		orderColumns, where, len(args)-1, len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for i := range orders {
		items, err := orderItems(ctx, s.db, orders[i].ID)
		if err != nil {
			return nil, 0, err
		}
		orders[i].Items = items
	}
	return orders, count, nil
}

func (s *Store) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	o, err := scanOrder(s.db.QueryRow(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE id = $1", id))
	if err != nil {
		return nil, err
	}
	o.Items, err = orderItems(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// UpdateOrderStatus drives the order state machine. The order row lock
// serializes racing approvals; exactly one audit row is appended per
// transition, and refunds restore the balance and limited stock.
func (s *Store) UpdateOrderStatus(ctx context.Context, id uuid.UUID, req domain.OrderTransitionRequest, actorID uuid.UUID, actorName, idemKey, reqHash string) (*domain.OrderTransitionResult, *domain.StoredResponse, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	replay, err := checkIdempotency(ctx, tx, idemKey, reqHash)
	if err != nil {
		return nil, nil, err
	}
	if replay != nil {
		return nil, replay, nil
	}
	if err := reserveIdempotency(ctx, tx, idemKey, reqHash); err != nil {
		return nil, nil, err
	}

	// Lock order: order row, then student row.
	o, err := scanOrder(tx.QueryRow(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE id = $1 FOR UPDATE", id))
	if err != nil {
		return nil, nil, err
	}
	if !o.Status.CanTransitionTo(req.Status) {
		return nil, nil, domain.ErrStateConflict
	}

	var balance int64
	err = tx.QueryRow(ctx,
		"SELECT balance FROM students WHERE id = $1 FOR UPDATE", o.StudentID).Scan(&balance)
	if err != nil {
		return nil, nil, mapRowErr(err)
	}

	now := time.Now()
	delta := int64(0)
	if domain.Refundable(req.Status) {
		delta = o.TotalCoins
		if _, err := tx.Exec(ctx,
			"UPDATE students SET balance = balance + $1 WHERE id = $2", delta, o.StudentID); err != nil {
			return nil, nil, err
		}
		items, err := orderItems(ctx, tx, o.ID)
		if err != nil {
			return nil, nil, err
		}
		for _, it := range items {
			_, err := tx.Exec(ctx, `
				UPDATE products SET stock_quantity = stock_quantity + $1
				WHERE id = $2 AND stock_type = $3`,
				it.Quantity, it.ProductID, domain.StockLimited)
			if err != nil {
				return nil, nil, err
			}
		}
		o.Items = items
	}

	o.Status = req.Status
	o.ProcessedBy = &actorID
	switch req.Status {
	case domain.OrderFulfilled:
		o.FulfilledAt = &now
	case domain.OrderCanceled:
		o.ReturnedReason = req.Reason
	case domain.OrderReturned:
		o.ReturnedAt = &now
		o.ReturnedReason = req.Reason
	}

	_, err = tx.Exec(ctx, `
		UPDATE orders
		SET status = $1, fulfilled_at = $2, returned_at = $3, returned_reason = $4, processed_by = $5
		WHERE id = $6`,
		o.Status, o.FulfilledAt, o.ReturnedAt, o.ReturnedReason, o.ProcessedBy, o.ID)
	if err != nil {
		return nil, nil, err
	}

	audit := domain.RedemptionAuditLog{
		OrderID:       o.ID,
		Actor:         actorName,
		Action:        domain.ActionFor(req.Status),
		DeltaCoins:    delta,
		BeforeBalance: balance,
		AfterBalance:  balance + delta,
		Note:          req.Reason,
		CreatedAt:     now,
	}
	if err := appendOrderAudit(ctx, tx, audit); err != nil {
		return nil, nil, err
	}

	if o.Items == nil {
		items, err := orderItems(ctx, tx, o.ID)
		if err != nil {
			return nil, nil, err
		}
		o.Items = items
	}

	result := &domain.OrderTransitionResult{Order: *o, Audit: audit}
	if err := finalizeIdempotency(ctx, tx, idemKey, http.StatusOK, result); err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("tx commit failed: %w", err)
	}
	return result, nil, nil
}

func (s *Store) ListRedemptionAudits(ctx context.Context, orderID uuid.UUID, params domain.ListParams) ([]domain.RedemptionAuditLog, int64, error) {
	where := ""
	args := []any{}
	if orderID != uuid.Nil {
		where = "WHERE order_id = $1"
		args = append(args, orderID)
	}

	var count int64
	if err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM redemption_audit_logs "+where, args...).Scan(&count); err != nil {
		return nil, 0, err
	}

	args = append(args, params.Size, params.Offset())
	query := fmt.Sprintf(`
		SELECT id, order_id, actor, action, delta_coins, before_balance, after_balance, note, created_at
		FROM redemption_audit_logs %s ORDER BY id DESC LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var logs []domain.RedemptionAuditLog
	for rows.Next() {
		var a domain.RedemptionAuditLog
		err := rows.Scan(&a.ID, &a.OrderID, &a.Actor, &a.Action, &a.DeltaCoins,
			&a.BeforeBalance, &a.AfterBalance, &a.Note, &a.CreatedAt)
		if err != nil {
			return nil, 0, err
		}
		logs = append(logs, a)
	}
	return logs, count, rows.Err()
}
