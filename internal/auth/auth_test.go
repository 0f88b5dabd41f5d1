package auth_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campushq/campusledger/internal/auth"
	"github.com/campushq/campusledger/internal/domain"
)

func testStaff(role domain.Role) *domain.StaffMember {
	return &domain.StaffMember{
		ID:            uuid.New(),
		Username:      "jdoe",
		FullName:      "J. Doe",
		Role:          role,
		JobPositionID: uuid.New(),
		IsActive:      true,
	}
}

func TestIssueValidateRoundTrip(t *testing.T) {
	authority, err := auth.NewAuthority("test-secret", time.Hour)
	require.NoError(t, err)

	staff := testStaff(domain.RoleStaff)
	token, err := authority.Issue(staff)
	require.NoError(t, err)

	p, err := authority.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, staff.ID, p.StaffID)
	assert.Equal(t, staff.JobPositionID, p.JobPositionID)
	assert.Equal(t, domain.RoleStaff, p.Role)
	assert.Equal(t, "J. Doe", p.FullName)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	a1, err := auth.NewAuthority("secret-one", time.Hour)
	require.NoError(t, err)
	a2, err := auth.NewAuthority("secret-two", time.Hour)
	require.NoError(t, err)

	token, err := a1.Issue(testStaff(domain.RoleStaff))
	require.NoError(t, err)

	_, err = a2.Validate(token)
	assert.Error(t, err)
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	authority, err := auth.NewAuthority("test-secret", time.Nanosecond)
	require.NoError(t, err)

	token, err := authority.Issue(testStaff(domain.RoleStaff))
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	_, err = authority.Validate(token)
	assert.Error(t, err)
}

func TestNewAuthorityRequiresSecret(t *testing.T) {
	_, err := auth.NewAuthority("", time.Hour)
	assert.Error(t, err)
}

func TestMiddlewareValidToken(t *testing.T) {
	authority, err := auth.NewAuthority("test-secret", time.Hour)
	require.NoError(t, err)

	staff := testStaff(domain.RoleUniversityAdmin)
	token, err := authority.Issue(staff)
	require.NoError(t, err)

	var captured auth.Viewer
	handler := auth.Middleware(authority)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v, err := auth.ViewerFrom(r.Context())
		require.NoError(t, err)
		captured = v
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/api/v1/student/students", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, staff.ID, captured.StaffID)
	assert.True(t, captured.CanManageDirectory)
	assert.False(t, captured.CanIssueCoins)
}

func TestMiddlewareRejections(t *testing.T) {
	authority, err := auth.NewAuthority("test-secret", time.Hour)
	require.NoError(t, err)
	handler := auth.Middleware(authority)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not be reached")
	}))

	cases := map[string]string{
		"missing header": "",
		"bad scheme":     "Basic abc",
		"garbage token":  "Bearer not-a-jwt",
	}
	for name, header := range cases {
		req := httptest.NewRequest("GET", "/api/v1/coins/rules", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, name)
	}
}

func TestViewerCapabilities(t *testing.T) {
	admin := auth.NewViewer(auth.Principal{Role: domain.RoleUniversityAdmin})
	assert.True(t, admin.CanManageDirectory)
	assert.True(t, admin.CanManageRules)
	assert.True(t, admin.CanManageMarket)
	assert.True(t, admin.CanViewAudits)
	assert.False(t, admin.CanIssueCoins)

	staff := auth.NewViewer(auth.Principal{Role: domain.RoleStaff})
	assert.True(t, staff.CanIssueCoins)
	assert.False(t, staff.CanManageDirectory)
	assert.False(t, staff.CanManageStaff)
	assert.False(t, staff.CanViewAudits)
}

func TestLoginLimiter(t *testing.T) {
	lim := auth.NewLoginLimiter(3)
	for i := 0; i < 3; i++ {
		assert.True(t, lim.Allow("jdoe"), "attempt %d", i)
	}
	assert.False(t, lim.Allow("jdoe"))
	// Other usernames are unaffected.
	assert.True(t, lim.Allow("asmith"))
}

func TestLoginLimiterBoundsTrackedUsernames(t *testing.T) {
	lim := auth.NewLoginLimiter(3)
	// A flood of distinct usernames must not grow the map without limit.
	for i := 0; i < 25_000; i++ {
		lim.Allow(fmt.Sprintf("user-%d", i))
	}
	assert.LessOrEqual(t, lim.Tracked(), 10_000)
	// Throttling still works for names seen after the flood.
	for i := 0; i < 3; i++ {
		assert.True(t, lim.Allow("jdoe"), "attempt %d", i)
	}
	assert.False(t, lim.Allow("jdoe"))
}
