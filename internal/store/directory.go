package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/campushq/campusledger/internal/domain"
)

// Reference-table CRUD. The three tables share a shape; kind is validated
// before it is interpolated as an identifier.

func (s *Store) ListReference(ctx context.Context, kind domain.ReferenceKind, params domain.ListParams) ([]domain.ReferenceEntry, int64, error) {
	if !kind.Valid() {
		return nil, 0, domain.ErrNotFound
	}

	var count int64
	if err := s.db.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", kind)).Scan(&count); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.Query(ctx,
		fmt.Sprintf("SELECT id, name, created_at FROM %s ORDER BY name LIMIT $1 OFFSET $2", kind),
		params.Size, params.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []domain.ReferenceEntry
	for rows.Next() {
		var e domain.ReferenceEntry
		if err := rows.Scan(&e.ID, &e.Name, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, count, rows.Err()
}

func (s *Store) CreateReference(ctx context.Context, kind domain.ReferenceKind, name string) (*domain.ReferenceEntry, error) {
	if !kind.Valid() {
		return nil, domain.ErrNotFound
	}
	e := domain.ReferenceEntry{ID: uuid.New(), Name: name, CreatedAt: time.Now()}
	_, err := s.db.Exec(ctx,
		fmt.Sprintf("INSERT INTO %s (id, name, created_at) VALUES ($1, $2, $3)", kind),
		e.ID, e.Name, e.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrDuplicateName
		}
		return nil, err
	}
	return &e, nil
}

func (s *Store) UpdateReference(ctx context.Context, kind domain.ReferenceKind, id uuid.UUID, name string) (*domain.ReferenceEntry, error) {
	if !kind.Valid() {
		return nil, domain.ErrNotFound
	}
	var e domain.ReferenceEntry
	err := s.db.QueryRow(ctx,
		fmt.Sprintf("UPDATE %s SET name = $1 WHERE id = $2 RETURNING id, name, created_at", kind),
		name, id).Scan(&e.ID, &e.Name, &e.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrDuplicateName
		}
		return nil, mapRowErr(err)
	}
	return &e, nil
}

func (s *Store) DeleteReference(ctx context.Context, kind domain.ReferenceKind, id uuid.UUID) error {
	if !kind.Valid() {
		return domain.ErrNotFound
	}
	tag, err := s.db.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", kind), id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrInUse
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Job positions are structurally identical but referenced by rules and
// staff, so they get their own table and methods.

func (s *Store) ListJobPositions(ctx context.Context, params domain.ListParams) ([]domain.JobPosition, int64, error) {
	var count int64
	if err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM job_positions").Scan(&count); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.Query(ctx,
		"SELECT id, name, created_at FROM job_positions ORDER BY name LIMIT $1 OFFSET $2",
		params.Size, params.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var positions []domain.JobPosition
	for rows.Next() {
		var p domain.JobPosition
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt); err != nil {
			return nil, 0, err
		}
		positions = append(positions, p)
	}
	return positions, count, rows.Err()
}

func (s *Store) CreateJobPosition(ctx context.Context, name string) (*domain.JobPosition, error) {
	p := domain.JobPosition{ID: uuid.New(), Name: name, CreatedAt: time.Now()}
	_, err := s.db.Exec(ctx,
		"INSERT INTO job_positions (id, name, created_at) VALUES ($1, $2, $3)",
		p.ID, p.Name, p.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrDuplicateName
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) UpdateJobPosition(ctx context.Context, id uuid.UUID, name string) (*domain.JobPosition, error) {
	var p domain.JobPosition
	err := s.db.QueryRow(ctx,
		"UPDATE job_positions SET name = $1 WHERE id = $2 RETURNING id, name, created_at",
		name, id).Scan(&p.ID, &p.Name, &p.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrDuplicateName
		}
		return nil, mapRowErr(err)
	}
	return &p, nil
}

func (s *Store) DeleteJobPosition(ctx context.Context, id uuid.UUID) error {
	// coin_rule_positions cascades, but refuse while a rule still allows the
	// position or a staff member holds it.
	var inUse bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM staff_members WHERE job_position_id = $1)
		    OR EXISTS(SELECT 1 FROM coin_rule_positions WHERE position_id = $1)`, id).Scan(&inUse)
	if err != nil {
		return err
	}
	if inUse {
		return domain.ErrInUse
	}

	tag, err := s.db.Exec(ctx, "DELETE FROM job_positions WHERE id = $1", id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrInUse
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
