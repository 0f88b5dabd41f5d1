package store

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/campushq/campusledger/internal/domain"
)

const ruleColumns = "id, name, description, coin_amount, status, usage_count, first_used_at, created_at"

func scanRule(row interface{ Scan(...any) error }) (*domain.CoinRule, error) {
	var r domain.CoinRule
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.CoinAmount, &r.Status,
		&r.UsageCount, &r.FirstUsedAt, &r.CreatedAt)
	if err != nil {
		return nil, mapRowErr(err)
	}
	return &r, nil
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func rulePositions(ctx context.Context, q queryer, ruleID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := q.Query(ctx,
		"SELECT position_id FROM coin_rule_positions WHERE rule_id = $1 ORDER BY position_id", ruleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func replaceRulePositions(ctx context.Context, tx pgx.Tx, ruleID uuid.UUID, positions []uuid.UUID) error {
	if _, err := tx.Exec(ctx, "DELETE FROM coin_rule_positions WHERE rule_id = $1", ruleID); err != nil {
		return err
	}
	for _, pid := range positions {
		_, err := tx.Exec(ctx,
			"INSERT INTO coin_rule_positions (rule_id, position_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
			ruleID, pid)
		if err != nil {
			if isForeignKeyViolation(err) {
				return domain.ErrNotFound
			}
			return err
		}
	}
	return nil
}

func (s *Store) ListCoinRules(ctx context.Context, status domain.RuleStatus, params domain.ListParams) ([]domain.CoinRule, int64, error) {
	where := ""
	args := []any{}
	if status != "" {
		where = "WHERE status = $1"
		args = append(args, status)
	}

	var count int64
	if err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM coin_rules "+where, args...).Scan(&count); err != nil {
		return nil, 0, err
	}

	args = append(args, params.Size, params.Offset())
	query := fmt.Sprintf("SELECT %s FROM coin_rules %s ORDER BY name LIMIT $%d OFFSET $%d",
		ruleColumns, where, len(args)-1, len(args))
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var rules []domain.CoinRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, 0, err
		}
		rules = append(rules, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for i := range rules {
		positions, err := rulePositions(ctx, s.db, rules[i].ID)
		if err != nil {
			return nil, 0, err
		}
		rules[i].AllowedPositionIDs = positions
	}
	return rules, count, nil
}

func (s *Store) GetCoinRule(ctx context.Context, id uuid.UUID) (*domain.CoinRule, error) {
	r, err := scanRule(s.db.QueryRow(ctx,
		"SELECT "+ruleColumns+" FROM coin_rules WHERE id = $1", id))
	if err != nil {
		return nil, err
	}
	r.AllowedPositionIDs, err = rulePositions(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) CreateCoinRule(ctx context.Context, req domain.CoinRuleRequest) (*domain.CoinRule, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	r := domain.CoinRule{
		ID:                 uuid.New(),
		Name:               req.Name,
		Description:        req.Description,
		CoinAmount:         req.CoinAmount,
		Status:             domain.RuleActive,
		AllowedPositionIDs: req.AllowedPositionIDs,
		CreatedAt:          time.Now(),
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO coin_rules (id, name, description, coin_amount, status, usage_count, created_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6)`,
		r.ID, r.Name, r.Description, r.CoinAmount, r.Status, r.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrDuplicateName
		}
		return nil, err
	}

	if err := replaceRulePositions(ctx, tx, r.ID, req.AllowedPositionIDs); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("tx commit failed: %w", err)
	}
	return &r, nil
}

// UpdateCoinRule edits a rule under the amount freeze: once used, only name,
// description and the allowed position set may change.
func (s *Store) UpdateCoinRule(ctx context.Context, id uuid.UUID, req domain.CoinRuleRequest) (*domain.CoinRule, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	r, err := scanRule(tx.QueryRow(ctx,
		"SELECT "+ruleColumns+" FROM coin_rules WHERE id = $1 FOR UPDATE", id))
	if err != nil {
		return nil, err
	}
	r.AllowedPositionIDs, err = rulePositions(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if err := r.ApplyUpdate(req); err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx,
		"UPDATE coin_rules SET name = $1, description = $2, coin_amount = $3 WHERE id = $4",
		r.Name, r.Description, r.CoinAmount, r.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrDuplicateName
		}
		return nil, err
	}
	if err := replaceRulePositions(ctx, tx, r.ID, req.AllowedPositionIDs); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("tx commit failed: %w", err)
	}
	return r, nil
}

// SetCoinRuleStatus archives or reactivates a rule.
func (s *Store) SetCoinRuleStatus(ctx context.Context, id uuid.UUID, archive bool) (*domain.CoinRule, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	r, err := scanRule(tx.QueryRow(ctx,
		"SELECT "+ruleColumns+" FROM coin_rules WHERE id = $1 FOR UPDATE", id))
	if err != nil {
		return nil, err
	}

	if archive {
		err = r.Archive()
	} else {
		err = r.Activate()
	}
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, "UPDATE coin_rules SET status = $1 WHERE id = $2", r.Status, r.ID); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("tx commit failed: %w", err)
	}

	r.AllowedPositionIDs, err = rulePositions(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return r, nil
}

const txColumns = "id, type, amount, student_id, staff_id, coin_rule_id, comment, is_deleted, deleted_at, deleted_by, deletion_reason, created_at"

func scanTransaction(row interface{ Scan(...any) error }) (*domain.Transaction, error) {
	var t domain.Transaction
	err := row.Scan(&t.ID, &t.Type, &t.Amount, &t.StudentID, &t.StaffID, &t.CoinRuleID,
		&t.Comment, &t.IsDeleted, &t.DeletedAt, &t.DeletedBy, &t.DeletionReason, &t.CreatedAt)
	if err != nil {
		return nil, mapRowErr(err)
	}
	return &t, nil
}

func (s *Store) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, int64, error) {
	where := "WHERE 1=1"
	args := []any{}
	if filter.StudentID != uuid.Nil {
		args = append(args, filter.StudentID)
		where += fmt.Sprintf(" AND student_id = $%d", len(args))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		where += fmt.Sprintf(" AND type = $%d", len(args))
	}
	if !filter.IncludeDeleted {
		where += " AND is_deleted = false"
	}

	var count int64
	if err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM transactions "+where, args...).Scan(&count); err != nil {
		return nil, 0, err
	}

	params := domain.ListParams{Page: filter.Page, Size: filter.Size}.Normalize()
	args = append(args, params.Size, params.Offset())
	query := fmt.Sprintf("SELECT %s FROM transactions %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		txColumns, where, len(args)-1, len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		txs = append(txs, *t)
	}
	return txs, count, rows.Err()
}

// IssueCoins awards rule.coin_amount to a student as one atomic workflow:
// idempotency reservation, permission checks against the rule's allowed
// positions, the ISSUANCE row, the balance update and the rule usage
// bookkeeping all commit together or not at all.
func (s *Store) IssueCoins(ctx context.Context, req domain.IssueRequest, staffID, staffPositionID uuid.UUID, idemKey, reqHash string) (*domain.IssueResult, *domain.StoredResponse, error) {
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

	// Lock order: rule, then student.
	rule, err := scanRule(tx.QueryRow(ctx,
		"SELECT "+ruleColumns+" FROM coin_rules WHERE id = $1 FOR UPDATE", req.CoinRuleID))
	if err != nil {
		return nil, nil, err
	}
	if rule.Status != domain.RuleActive {
		return nil, nil, domain.ErrStateConflict
	}
	rule.AllowedPositionIDs, err = rulePositions(ctx, tx, rule.ID)
	if err != nil {
		return nil, nil, err
	}
	if !rule.AllowsPosition(staffPositionID) {
		return nil, nil, domain.ErrForbidden
	}

	var issuerActive bool
	err = tx.QueryRow(ctx, "SELECT is_active FROM staff_members WHERE id = $1", staffID).Scan(&issuerActive)
	if err != nil {
		return nil, nil, mapRowErr(err)
	}
	if !issuerActive {
		return nil, nil, domain.ErrForbidden
	}

	var balance int64
	err = tx.QueryRow(ctx,
		"SELECT balance FROM students WHERE id = $1 FOR UPDATE", req.StudentID).Scan(&balance)
	if err != nil {
		return nil, nil, mapRowErr(err)
	}

	now := time.Now()
	issued := domain.Transaction{
		ID:         uuid.New(),
		Type:       domain.TransactionIssuance,
		Amount:     rule.CoinAmount,
		StudentID:  req.StudentID,
		StaffID:    staffID,
		CoinRuleID: &rule.ID,
		Comment:    req.Comment,
		CreatedAt:  now,
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO transactions (id, type, amount, student_id, staff_id, coin_rule_id, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		issued.ID, issued.Type, issued.Amount, issued.StudentID, issued.StaffID,
		issued.CoinRuleID, issued.Comment, issued.CreatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("transaction insert failed: %w", err)
	}

	if _, err := tx.Exec(ctx,
		"UPDATE students SET balance = balance + $1 WHERE id = $2", rule.CoinAmount, req.StudentID); err != nil {
		return nil, nil, err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE coin_rules
		SET usage_count = usage_count + 1, first_used_at = COALESCE(first_used_at, $1)
		WHERE id = $2`, now, rule.ID); err != nil {
		return nil, nil, err
	}

	result := &domain.IssueResult{Transaction: issued, NewBalance: balance + rule.CoinAmount}
	if err := finalizeIdempotency(ctx, tx, idemKey, http.StatusCreated, result); err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("tx commit failed: %w", err)
	}
	return result, nil, nil
}

// DeleteTransaction reverses an issuance: flips the soft-deletion fields,
// subtracts the amount from the student balance and writes exactly one
// deletion audit, all in one transaction.
func (s *Store) DeleteTransaction(ctx context.Context, id, deletedBy uuid.UUID, reason string) (*domain.DeleteResult, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	t, err := scanTransaction(tx.QueryRow(ctx,
		"SELECT "+txColumns+" FROM transactions WHERE id = $1 FOR UPDATE", id))
	if err != nil {
		return nil, err
	}
	if err := t.Deletable(); err != nil {
		return nil, err
	}

	var balance int64
	var studentName string
	err = tx.QueryRow(ctx,
		"SELECT balance, full_name FROM students WHERE id = $1 FOR UPDATE", t.StudentID).
		Scan(&balance, &studentName)
	if err != nil {
		return nil, mapRowErr(err)
	}
	if balance < t.Amount {
		// The student already spent the coins; reversal would drive the
		// balance negative.
		return nil, domain.ErrInsufficientBalance
	}

	var staffName string
	err = tx.QueryRow(ctx,
		"SELECT full_name FROM staff_members WHERE id = $1", t.StaffID).Scan(&staffName)
	if err != nil {
		return nil, mapRowErr(err)
	}

	now := time.Now()
	if _, err := tx.Exec(ctx,
		"UPDATE students SET balance = balance - $1 WHERE id = $2", t.Amount, t.StudentID); err != nil {
		return nil, err
	}
	_, err = tx.Exec(ctx, `
		UPDATE transactions
		SET is_deleted = true, deleted_at = $1, deleted_by = $2, deletion_reason = $3
		WHERE id = $4`, now, deletedBy, reason, t.ID)
	if err != nil {
		return nil, err
	}

	audit := domain.DeletionAudit{
		ID:                uuid.New(),
		TransactionID:     t.ID,
		StudentName:       studentName,
		StaffMemberName:   staffName,
		TransactionAmount: t.Amount,
		DeletionReason:    reason,
		DeletedAt:         now,
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO deletion_audits (id, transaction_id, student_name, staff_member_name, transaction_amount, deletion_reason, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		audit.ID, audit.TransactionID, audit.StudentName, audit.StaffMemberName,
		audit.TransactionAmount, audit.DeletionReason, audit.DeletedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrStateConflict
		}
		return nil, fmt.Errorf("deletion audit insert failed: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("tx commit failed: %w", err)
	}

	t.IsDeleted = true
	t.DeletedAt = &now
	t.DeletedBy = &deletedBy
	t.DeletionReason = reason
	return &domain.DeleteResult{Transaction: *t, NewBalance: balance - t.Amount, Audit: audit}, nil
}

func (s *Store) ListDeletionAudits(ctx context.Context, params domain.ListParams) ([]domain.DeletionAudit, int64, error) {
	var count int64
	if err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM deletion_audits").Scan(&count); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, transaction_id, student_name, staff_member_name, transaction_amount, deletion_reason, deleted_at
		FROM deletion_audits ORDER BY deleted_at DESC LIMIT $1 OFFSET $2`,
		params.Size, params.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var audits []domain.DeletionAudit
	for rows.Next() {
		var a domain.DeletionAudit
		err := rows.Scan(&a.ID, &a.TransactionID, &a.StudentName, &a.StaffMemberName,
			&a.TransactionAmount, &a.DeletionReason, &a.DeletedAt)
		if err != nil {
			return nil, 0, err
		}
		audits = append(audits, a)
	}
	return audits, count, rows.Err()
}
