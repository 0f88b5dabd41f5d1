package domain

import (
	"time"

	"github.com/google/uuid"
)

// StudentStatus is the approval state of a student record.
type StudentStatus string

const (
	StudentWaited   StudentStatus = "waited"
	StudentApproved StudentStatus = "approved"
	StudentRejected StudentStatus = "rejected"
)

func (s StudentStatus) Valid() bool {
	switch s {
	case StudentWaited, StudentApproved, StudentRejected:
		return true
	}
	return false
}

// CanTransitionTo reports whether a status change is allowed. Approval and
// rejection are one-way: there is no route back to waited.
func (s StudentStatus) CanTransitionTo(next StudentStatus) bool {
	if s != StudentWaited {
		return false
	}
	return next == StudentApproved || next == StudentRejected
}

// Student is a directory entry with a coin balance. The balance is owned by
// the ledger: only issuance, deletion-with-audit and order flows touch it.
type Student struct {
	ID            uuid.UUID     `json:"id"`
	FullName      string        `json:"full_name"`
	FacultyID     uuid.UUID     `json:"faculty_id"`
	DegreeLevelID uuid.UUID     `json:"degree_level_id"`
	YearLevelID   uuid.UUID     `json:"year_level_id"`
	Status        StudentStatus `json:"status"`
	Balance       int64         `json:"balance"`
	CreatedAt     time.Time     `json:"created_at"`
}

// CreateStudentRequest is the admin payload for registering a student.
// New students start in the waited state with a zero balance.
type CreateStudentRequest struct {
	FullName      string    `json:"full_name"`
	FacultyID     uuid.UUID `json:"faculty_id"`
	DegreeLevelID uuid.UUID `json:"degree_level_id"`
	YearLevelID   uuid.UUID `json:"year_level_id"`
}

func (r CreateStudentRequest) Validate() error {
	fe := FieldErrors{}
	if r.FullName == "" {
		fe.Add("full_name", "This field is required.")
	}
	if r.FacultyID == uuid.Nil {
		fe.Add("faculty_id", "This field is required.")
	}
	if r.DegreeLevelID == uuid.Nil {
		fe.Add("degree_level_id", "This field is required.")
	}
	if r.YearLevelID == uuid.Nil {
		fe.Add("year_level_id", "This field is required.")
	}
	return fe.Err()
}

// StudentFilter narrows student listings.
type StudentFilter struct {
	Status StudentStatus
	Search string
	Page   int
	Size   int
}
