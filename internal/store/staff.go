package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/campushq/campusledger/internal/domain"
)

const staffColumns = "id, username, full_name, role, job_position_id, is_active, password_hash, created_at"

func scanStaff(row interface{ Scan(...any) error }) (*domain.StaffMember, error) {
	var m domain.StaffMember
	err := row.Scan(&m.ID, &m.Username, &m.FullName, &m.Role, &m.JobPositionID,
		&m.IsActive, &m.PasswordHash, &m.CreatedAt)
	if err != nil {
		return nil, mapRowErr(err)
	}
	return &m, nil
}

func (s *Store) ListStaff(ctx context.Context, params domain.ListParams) ([]domain.StaffMember, int64, error) {
	var count int64
	if err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM staff_members").Scan(&count); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.Query(ctx,
		"SELECT "+staffColumns+" FROM staff_members ORDER BY full_name LIMIT $1 OFFSET $2",
		params.Size, params.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var members []domain.StaffMember
	for rows.Next() {
		m, err := scanStaff(rows)
		if err != nil {
			return nil, 0, err
		}
		members = append(members, *m)
	}
	return members, count, rows.Err()
}

func (s *Store) GetStaff(ctx context.Context, id uuid.UUID) (*domain.StaffMember, error) {
	return scanStaff(s.db.QueryRow(ctx,
		"SELECT "+staffColumns+" FROM staff_members WHERE id = $1", id))
}

// GetStaffByUsername resolves login credentials. Missing accounts map to
// ErrNotFound so handlers can collapse it with a bad password.
func (s *Store) GetStaffByUsername(ctx context.Context, username string) (*domain.StaffMember, error) {
	return scanStaff(s.db.QueryRow(ctx,
		"SELECT "+staffColumns+" FROM staff_members WHERE username = $1", username))
}

func (s *Store) CreateStaff(ctx context.Context, req domain.CreateStaffRequest) (*domain.StaffMember, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	m := domain.StaffMember{
		ID:            uuid.New(),
		Username:      req.Username,
		FullName:      req.FullName,
		Role:          req.Role,
		JobPositionID: req.JobPositionID,
		IsActive:      true,
		PasswordHash:  string(hash),
		CreatedAt:     time.Now(),
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO staff_members (id, username, full_name, role, job_position_id, is_active, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.Username, m.FullName, m.Role, m.JobPositionID, m.IsActive, m.PasswordHash, m.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrDuplicateName
		}
		if isForeignKeyViolation(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (s *Store) UpdateStaff(ctx context.Context, id uuid.UUID, req domain.UpdateStaffRequest) (*domain.StaffMember, error) {
	m, err := s.GetStaff(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.FullName != nil {
		m.FullName = *req.FullName
	}
	if req.JobPositionID != nil {
		m.JobPositionID = *req.JobPositionID
	}
	if req.IsActive != nil {
		m.IsActive = *req.IsActive
	}
	if req.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		m.PasswordHash = string(hash)
	}

	_, err = s.db.Exec(ctx, `
		UPDATE staff_members
		SET full_name = $1, job_position_id = $2, is_active = $3, password_hash = $4
		WHERE id = $5`,
		m.FullName, m.JobPositionID, m.IsActive, m.PasswordHash, m.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return m, nil
}

func (s *Store) DeleteStaff(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, "DELETE FROM staff_members WHERE id = $1", id)
	if err != nil {
		if isForeignKeyViolation(err) {
			// Referenced by transactions or orders: deactivate instead.
			return domain.ErrInUse
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
