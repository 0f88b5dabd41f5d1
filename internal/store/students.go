package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/campushq/campusledger/internal/domain"
)

const studentColumns = "id, full_name, faculty_id, degree_level_id, year_level_id, status, balance, created_at"

func scanStudent(row interface{ Scan(...any) error }) (*domain.Student, error) {
	var st domain.Student
	err := row.Scan(&st.ID, &st.FullName, &st.FacultyID, &st.DegreeLevelID,
		&st.YearLevelID, &st.Status, &st.Balance, &st.CreatedAt)
	if err != nil {
		return nil, mapRowErr(err)
	}
	return &st, nil
}

func (s *Store) ListStudents(ctx context.Context, filter domain.StudentFilter) ([]domain.Student, int64, error) {
	where := "WHERE 1=1"
	args := []any{}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		where += fmt.Sprintf(" AND full_name ILIKE $%d", len(args))
	}

	var count int64
	if err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM students "+where, args...).Scan(&count); err != nil {
		return nil, 0, err
	}

	params := domain.ListParams{Page: filter.Page, Size: filter.Size}.Normalize()
	args = append(args, params.Size, params.Offset())
	query := fmt.Sprintf("SELECT %s FROM students %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		studentColumns, where, len(args)-1, len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var students []domain.Student
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, 0, err
		}
		students = append(students, *st)
	}
	return students, count, rows.Err()
}

func (s *Store) GetStudent(ctx context.Context, id uuid.UUID) (*domain.Student, error) {
	return scanStudent(s.db.QueryRow(ctx,
		"SELECT "+studentColumns+" FROM students WHERE id = $1", id))
}

func (s *Store) CreateStudent(ctx context.Context, req domain.CreateStudentRequest) (*domain.Student, error) {
	st := domain.Student{
		ID:            uuid.New(),
		FullName:      req.FullName,
		FacultyID:     req.FacultyID,
		DegreeLevelID: req.DegreeLevelID,
		YearLevelID:   req.YearLevelID,
		Status:        domain.StudentWaited,
		Balance:       0,
		CreatedAt:     time.Now(),
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO students (id, full_name, faculty_id, degree_level_id, year_level_id, status, balance, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		st.ID, st.FullName, st.FacultyID, st.DegreeLevelID, st.YearLevelID, st.Status, st.Balance, st.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &st, nil
}

// UpdateStudentStatus applies a one-way approval transition. The row is
// locked so two racing reviewers cannot both move it.
func (s *Store) UpdateStudentStatus(ctx context.Context, id uuid.UUID, next domain.StudentStatus) (*domain.Student, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	st, err := scanStudent(tx.QueryRow(ctx,
		"SELECT "+studentColumns+" FROM students WHERE id = $1 FOR UPDATE", id))
	if err != nil {
		return nil, err
	}

	if !st.Status.CanTransitionTo(next) {
		return nil, domain.ErrStateConflict
	}

	if _, err := tx.Exec(ctx, "UPDATE students SET status = $1 WHERE id = $2", next, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("tx commit failed: %w", err)
	}

	st.Status = next
	return st, nil
}

// WaitedCount returns the number of students awaiting review.
func (s *Store) WaitedCount(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRow(ctx,
		"SELECT COUNT(*) FROM students WHERE status = $1", domain.StudentWaited).Scan(&count)
	return count, err
}
