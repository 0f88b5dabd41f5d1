package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role gates which parts of the API an authenticated account may use.
type Role string

const (
	RoleUniversityAdmin Role = "university_admin"
	RoleStaff           Role = "staff"
)

func (r Role) Valid() bool {
	return r == RoleUniversityAdmin || r == RoleStaff
}

// StaffMember is an account that can sign in. Admins manage the directory,
// staff roster and marketplace; staff issue coins within their rule set.
type StaffMember struct {
	ID            uuid.UUID `json:"id"`
	Username      string    `json:"username"`
	FullName      string    `json:"full_name"`
	Role          Role      `json:"role"`
	JobPositionID uuid.UUID `json:"job_position_id"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`

	// PasswordHash is never serialized.
	PasswordHash string `json:"-"`
}

// CreateStaffRequest is the admin payload for creating a staff account.
type CreateStaffRequest struct {
	Username      string    `json:"username"`
	FullName      string    `json:"full_name"`
	Password      string    `json:"password"`
	Role          Role      `json:"role"`
	JobPositionID uuid.UUID `json:"job_position_id"`
}

// UpdateStaffRequest carries optional staff account changes. A nil field
// leaves the current value untouched.
type UpdateStaffRequest struct {
	FullName      *string    `json:"full_name"`
	Password      *string    `json:"password"`
	JobPositionID *uuid.UUID `json:"job_position_id"`
	IsActive      *bool      `json:"is_active"`
}

// Validate checks the create payload and returns field-level messages.
func (r CreateStaffRequest) Validate() error {
	fe := FieldErrors{}
	if r.Username == "" {
		fe.Add("username", "This field is required.")
	}
	if r.FullName == "" {
		fe.Add("full_name", "This field is required.")
	}
	if len(r.Password) < 8 {
		fe.Add("password", "Password must be at least 8 characters.")
	}
	if !r.Role.Valid() {
		fe.Add("role", "Role must be university_admin or staff.")
	}
	if r.JobPositionID == uuid.Nil {
		fe.Add("job_position_id", "This field is required.")
	}
	return fe.Err()
}
