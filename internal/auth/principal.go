package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/campushq/campusledger/internal/domain"
)

// Principal is the authenticated identity attached to a request context.
type Principal struct {
	StaffID       uuid.UUID
	FullName      string
	Role          domain.Role
	JobPositionID uuid.UUID
}

// Viewer resolves the principal's role into explicit capabilities once, so
// handlers branch on capabilities instead of comparing role strings.
type Viewer struct {
	Principal

	CanManageDirectory bool
	CanManageStaff     bool
	CanManageStudents  bool
	CanManageRules     bool
	CanIssueCoins      bool
	CanManageMarket    bool
	CanViewAudits      bool
}

// NewViewer computes the capability set for a principal.
func NewViewer(p Principal) Viewer {
	v := Viewer{Principal: p}
	switch p.Role {
	case domain.RoleUniversityAdmin:
		v.CanManageDirectory = true
		v.CanManageStaff = true
		v.CanManageStudents = true
		v.CanManageRules = true
		v.CanManageMarket = true
		v.CanViewAudits = true
	case domain.RoleStaff:
		v.CanIssueCoins = true
	}
	return v
}

type contextKey string

const viewerKey contextKey = "viewer"

// WithViewer attaches a Viewer to the context.
func WithViewer(ctx context.Context, v Viewer) context.Context {
	return context.WithValue(ctx, viewerKey, v)
}

// ViewerFrom retrieves the Viewer from the context.
func ViewerFrom(ctx context.Context) (Viewer, error) {
	v, ok := ctx.Value(viewerKey).(Viewer)
	if !ok {
		return Viewer{}, errors.New("no viewer in context")
	}
	return v, nil
}
