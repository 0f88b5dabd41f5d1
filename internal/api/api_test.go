package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/campushq/campusledger/internal/auth"
	"github.com/campushq/campusledger/internal/cache"
	"github.com/campushq/campusledger/internal/domain"
)

// fakeStore satisfies the Store interface through the embedded field and
// overrides only the methods a test cares about. An unconfigured method
// panics with a nil dereference, which is exactly what we want: it proves
// the handler never reached the store.
type fakeStore struct {
	Store

	getStaffByUsername  func(ctx context.Context, username string) (*domain.StaffMember, error)
	listStudents        func(ctx context.Context, filter domain.StudentFilter) ([]domain.Student, int64, error)
	updateStudentStatus func(ctx context.Context, id uuid.UUID, next domain.StudentStatus) (*domain.Student, error)
	waitedCount         func(ctx context.Context) (int64, error)
	issueCoins          func(ctx context.Context, req domain.IssueRequest, staffID, staffPositionID uuid.UUID, idemKey, reqHash string) (*domain.IssueResult, *domain.StoredResponse, error)
	deleteTransaction   func(ctx context.Context, id, deletedBy uuid.UUID, reason string) (*domain.DeleteResult, error)
	updateOrderStatus   func(ctx context.Context, id uuid.UUID, req domain.OrderTransitionRequest, actorID uuid.UUID, actorName, idemKey, reqHash string) (*domain.OrderTransitionResult, *domain.StoredResponse, error)
}

func (f *fakeStore) GetStaffByUsername(ctx context.Context, username string) (*domain.StaffMember, error) {
	return f.getStaffByUsername(ctx, username)
}

func (f *fakeStore) ListStudents(ctx context.Context, filter domain.StudentFilter) ([]domain.Student, int64, error) {
	return f.listStudents(ctx, filter)
}

func (f *fakeStore) UpdateStudentStatus(ctx context.Context, id uuid.UUID, next domain.StudentStatus) (*domain.Student, error) {
	return f.updateStudentStatus(ctx, id, next)
}

func (f *fakeStore) WaitedCount(ctx context.Context) (int64, error) {
	return f.waitedCount(ctx)
}

func (f *fakeStore) IssueCoins(ctx context.Context, req domain.IssueRequest, staffID, staffPositionID uuid.UUID, idemKey, reqHash string) (*domain.IssueResult, *domain.StoredResponse, error) {
	return f.issueCoins(ctx, req, staffID, staffPositionID, idemKey, reqHash)
}

func (f *fakeStore) DeleteTransaction(ctx context.Context, id, deletedBy uuid.UUID, reason string) (*domain.DeleteResult, error) {
	return f.deleteTransaction(ctx, id, deletedBy, reason)
}

func (f *fakeStore) UpdateOrderStatus(ctx context.Context, id uuid.UUID, req domain.OrderTransitionRequest, actorID uuid.UUID, actorName, idemKey, reqHash string) (*domain.OrderTransitionResult, *domain.StoredResponse, error) {
	return f.updateOrderStatus(ctx, id, req, actorID, actorName, idemKey, reqHash)
}

func newTestHandler(t *testing.T, s Store) *Handler {
	t.Helper()
	authority, err := auth.NewAuthority("test-secret", time.Hour)
	require.NoError(t, err)
	return NewHandler(s, authority, cache.New(""), zerolog.Nop())
}

func adminViewer() auth.Viewer {
	return auth.NewViewer(auth.Principal{
		StaffID:       uuid.New(),
		FullName:      "Admin User",
		Role:          domain.RoleUniversityAdmin,
		JobPositionID: uuid.New(),
	})
}

func staffViewer() auth.Viewer {
	return auth.NewViewer(auth.Principal{
		StaffID:       uuid.New(),
		FullName:      "Issuing Staff",
		Role:          domain.RoleStaff,
		JobPositionID: uuid.New(),
	})
}

// request builds an authenticated request with optional path vars.
func request(method, target string, v auth.Viewer, body []byte, vars map[string]string) *http.Request {
	r := httptest.NewRequest(method, target, bytes.NewReader(body))
	r = r.WithContext(auth.WithViewer(r.Context(), v))
	if vars != nil {
		r = mux.SetURLVars(r, vars)
	}
	return r
}

func TestLoginSuccess(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)

	staff := &domain.StaffMember{
		ID:           uuid.New(),
		Username:     "jsmith",
		FullName:     "Jordan Smith",
		Role:         domain.RoleStaff,
		IsActive:     true,
		PasswordHash: string(hash),
	}
	store := &fakeStore{
		getStaffByUsername: func(_ context.Context, username string) (*domain.StaffMember, error) {
			assert.Equal(t, "jsmith", username)
			return staff, nil
		},
	}
	h := newTestHandler(t, store)

	body, _ := json.Marshal(map[string]string{
		"username": "jsmith", "password": "correct horse", "role": "staff",
	})
	rec := httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest("POST", "/api/v1/auth/login", bytes.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Token string          `json:"token"`
		Role  domain.Role     `json:"role"`
		Staff json.RawMessage `json:"staff"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, domain.RoleStaff, resp.Role)
	assert.NotContains(t, string(resp.Staff), "password")
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	active := &domain.StaffMember{
		ID: uuid.New(), Username: "jsmith", Role: domain.RoleStaff,
		IsActive: true, PasswordHash: string(hash),
	}
	inactive := *active
	inactive.IsActive = false

	tests := []struct {
		name  string
		staff *domain.StaffMember
		err   error
		body  map[string]string
	}{
		{
			name: "unknown username",
			err:  domain.ErrNotFound,
			body: map[string]string{"username": "ghost", "password": "correct horse", "role": "staff"},
		},
		{
			name:  "wrong password",
			staff: active,
			body:  map[string]string{"username": "jsmith", "password": "incorrect horse", "role": "staff"},
		},
		{
			name:  "wrong role scope",
			staff: active,
			body:  map[string]string{"username": "jsmith", "password": "correct horse", "role": "university_admin"},
		},
		{
			name:  "deactivated account",
			staff: &inactive,
			body:  map[string]string{"username": "jsmith", "password": "correct horse", "role": "staff"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := &fakeStore{
				getStaffByUsername: func(context.Context, string) (*domain.StaffMember, error) {
					return tc.staff, tc.err
				},
			}
			h := newTestHandler(t, store)

			body, _ := json.Marshal(tc.body)
			rec := httptest.NewRecorder()
			h.Login(rec, httptest.NewRequest("POST", "/api/v1/auth/login", bytes.NewReader(body)))

			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.JSONEq(t,
				`{"non_field_errors": ["Unable to log in with provided credentials."]}`,
				rec.Body.String())
		})
	}
}

func TestLoginMissingFields(t *testing.T) {
	h := newTestHandler(t, &fakeStore{})

	rec := httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest("POST", "/api/v1/auth/login", bytes.NewReader([]byte(`{}`))))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var fe map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fe))
	assert.Contains(t, fe, "username")
	assert.Contains(t, fe, "password")
	assert.Contains(t, fe, "role")
}

func TestIssueCoinsRequiresIdempotencyKey(t *testing.T) {
	// Store funcs left nil: reaching the store would panic the test.
	h := newTestHandler(t, &fakeStore{})

	body, _ := json.Marshal(domain.IssueRequest{StudentID: uuid.New(), CoinRuleID: uuid.New()})
	rec := httptest.NewRecorder()
	h.IssueCoins(rec, request("POST", "/api/v1/coins/transactions/issue", staffViewer(), body, nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Idempotency-Key")
}

func TestIssueCoinsForbiddenForAdmin(t *testing.T) {
	h := newTestHandler(t, &fakeStore{})

	body, _ := json.Marshal(domain.IssueRequest{StudentID: uuid.New(), CoinRuleID: uuid.New()})
	rec := httptest.NewRecorder()
	h.IssueCoins(rec, request("POST", "/api/v1/coins/transactions/issue", adminViewer(), body, nil))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestIssueCoinsCreated(t *testing.T) {
	v := staffViewer()
	studentID := uuid.New()
	store := &fakeStore{
		issueCoins: func(_ context.Context, req domain.IssueRequest, staffID, staffPositionID uuid.UUID, idemKey, reqHash string) (*domain.IssueResult, *domain.StoredResponse, error) {
			assert.Equal(t, v.StaffID, staffID)
			assert.Equal(t, v.JobPositionID, staffPositionID)
			assert.Equal(t, "issue-1", idemKey)
			assert.Len(t, reqHash, 64)
			return &domain.IssueResult{
				Transaction: domain.Transaction{ID: uuid.New(), Type: domain.TransactionIssuance, Amount: 50, StudentID: req.StudentID},
				NewBalance:  150,
			}, nil, nil
		},
	}
	h := newTestHandler(t, store)

	body, _ := json.Marshal(domain.IssueRequest{StudentID: studentID, CoinRuleID: uuid.New()})
	req := request("POST", "/api/v1/coins/transactions/issue", v, body, nil)
	req.Header.Set("Idempotency-Key", "issue-1")

	rec := httptest.NewRecorder()
	h.IssueCoins(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var result domain.IssueResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, int64(150), result.NewBalance)
	assert.Equal(t, studentID, result.Transaction.StudentID)
}

func TestIssueCoinsReplaysStoredResponse(t *testing.T) {
	store := &fakeStore{
		issueCoins: func(context.Context, domain.IssueRequest, uuid.UUID, uuid.UUID, string, string) (*domain.IssueResult, *domain.StoredResponse, error) {
			return nil, &domain.StoredResponse{
				ResponseStatus: http.StatusCreated,
				ResponseBody:   []byte(`{"new_balance":150}`),
			}, nil
		},
	}
	h := newTestHandler(t, store)

	body, _ := json.Marshal(domain.IssueRequest{StudentID: uuid.New(), CoinRuleID: uuid.New()})
	req := request("POST", "/api/v1/coins/transactions/issue", staffViewer(), body, nil)
	req.Header.Set("Idempotency-Key", "issue-1")

	rec := httptest.NewRecorder()
	h.IssueCoins(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"new_balance":150}`, rec.Body.String())
}

func TestDeleteTransactionRequiresReason(t *testing.T) {
	h := newTestHandler(t, &fakeStore{})

	rec := httptest.NewRecorder()
	h.DeleteTransaction(rec, request("POST", "/api/v1/coins/transactions/x/delete", staffViewer(),
		[]byte(`{}`), map[string]string{"id": uuid.NewString()}))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"deletion_reason": ["This field is required."]}`, rec.Body.String())
}

func TestDeleteTransactionInsufficientBalance(t *testing.T) {
	store := &fakeStore{
		deleteTransaction: func(context.Context, uuid.UUID, uuid.UUID, string) (*domain.DeleteResult, error) {
			return nil, domain.ErrInsufficientBalance
		},
	}
	h := newTestHandler(t, store)

	rec := httptest.NewRecorder()
	h.DeleteTransaction(rec, request("POST", "/api/v1/coins/transactions/x/delete", staffViewer(),
		[]byte(`{"deletion_reason":"issued in error"}`), map[string]string{"id": uuid.NewString()}))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"non_field_errors": ["Insufficient coin balance."]}`, rec.Body.String())
}

func TestUpdateStudentStatusRejectsInvalidTarget(t *testing.T) {
	h := newTestHandler(t, &fakeStore{})

	rec := httptest.NewRecorder()
	h.UpdateStudentStatus(rec, request("PATCH", "/api/v1/student/students/x/status", adminViewer(),
		[]byte(`{"status":"waited"}`), map[string]string{"id": uuid.NewString()}))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var fe map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fe))
	assert.Contains(t, fe, "status")
}

func TestUpdateStudentStatusApproves(t *testing.T) {
	id := uuid.New()
	store := &fakeStore{
		updateStudentStatus: func(_ context.Context, gotID uuid.UUID, next domain.StudentStatus) (*domain.Student, error) {
			assert.Equal(t, id, gotID)
			assert.Equal(t, domain.StudentApproved, next)
			return &domain.Student{ID: id, Status: domain.StudentApproved}, nil
		},
	}
	h := newTestHandler(t, store)

	rec := httptest.NewRecorder()
	h.UpdateStudentStatus(rec, request("PATCH", "/api/v1/student/students/x/status", adminViewer(),
		[]byte(`{"status":"approved"}`), map[string]string{"id": id.String()}))

	require.Equal(t, http.StatusOK, rec.Code)
	var student domain.Student
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &student))
	assert.Equal(t, domain.StudentApproved, student.Status)
}

func TestUpdateStudentStatusTerminalConflict(t *testing.T) {
	store := &fakeStore{
		updateStudentStatus: func(context.Context, uuid.UUID, domain.StudentStatus) (*domain.Student, error) {
			return nil, domain.ErrStateConflict
		},
	}
	h := newTestHandler(t, store)

	rec := httptest.NewRecorder()
	h.UpdateStudentStatus(rec, request("PATCH", "/api/v1/student/students/x/status", adminViewer(),
		[]byte(`{"status":"rejected"}`), map[string]string{"id": uuid.NewString()}))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUpdateStudentStatusForbiddenForStaff(t *testing.T) {
	h := newTestHandler(t, &fakeStore{})

	rec := httptest.NewRecorder()
	h.UpdateStudentStatus(rec, request("PATCH", "/api/v1/student/students/x/status", staffViewer(),
		[]byte(`{"status":"approved"}`), map[string]string{"id": uuid.NewString()}))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWaitedCountFallsBackToStore(t *testing.T) {
	store := &fakeStore{
		waitedCount: func(context.Context) (int64, error) { return 7, nil },
	}
	h := newTestHandler(t, store)

	rec := httptest.NewRecorder()
	h.WaitedCount(rec, request("GET", "/api/v1/student/students/waited-count", adminViewer(), nil, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count": 7}`, rec.Body.String())
}

func TestListStudentsPaginationEnvelope(t *testing.T) {
	store := &fakeStore{
		listStudents: func(_ context.Context, filter domain.StudentFilter) ([]domain.Student, int64, error) {
			assert.Equal(t, domain.StudentApproved, filter.Status)
			return []domain.Student{{ID: uuid.New()}, {ID: uuid.New()}}, 45, nil
		},
	}
	h := newTestHandler(t, store)

	rec := httptest.NewRecorder()
	h.ListStudents(rec, request("GET", "/api/v1/student/students?status=approved&page=2&page_size=2", adminViewer(), nil, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Count    int64             `json:"count"`
		Next     *string           `json:"next"`
		Previous *string           `json:"previous"`
		Results  []json.RawMessage `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, int64(45), page.Count)
	require.NotNil(t, page.Next)
	assert.Contains(t, *page.Next, "page=3")
	require.NotNil(t, page.Previous)
	assert.Contains(t, *page.Previous, "page=1")
	assert.Len(t, page.Results, 2)
}

func TestListStudentsRejectsUnknownStatus(t *testing.T) {
	h := newTestHandler(t, &fakeStore{})

	rec := httptest.NewRecorder()
	h.ListStudents(rec, request("GET", "/api/v1/student/students?status=pending", adminViewer(), nil, nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateOrderRejectsOversizedQuantity(t *testing.T) {
	// Store funcs left nil: reaching the store would panic the test.
	h := newTestHandler(t, &fakeStore{})

	body, _ := json.Marshal(domain.CreateOrderRequest{
		StudentID: uuid.New(),
		Items:     []domain.OrderItemRequest{{ProductID: uuid.New(), Quantity: int64(1)<<62 + 1}},
	})
	rec := httptest.NewRecorder()
	h.CreateOrder(rec, request("POST", "/api/v1/market/orders", adminViewer(), body, nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var fe map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fe))
	assert.Contains(t, fe, "items")
}

func TestUpdateOrderStatusReasonRequired(t *testing.T) {
	h := newTestHandler(t, &fakeStore{})

	req := request("PATCH", "/api/v1/market/orders/x/status", adminViewer(),
		[]byte(`{"status":"CANCELED"}`), map[string]string{"id": uuid.NewString()})
	req.Header.Set("Idempotency-Key", "cancel-1")

	rec := httptest.NewRecorder()
	h.UpdateOrderStatus(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"returned_reason": ["This field is required."]}`, rec.Body.String())
}

func TestUpdateOrderStatusRejectsPendingTarget(t *testing.T) {
	h := newTestHandler(t, &fakeStore{})

	req := request("PATCH", "/api/v1/market/orders/x/status", adminViewer(),
		[]byte(`{"status":"PENDING"}`), map[string]string{"id": uuid.NewString()})
	req.Header.Set("Idempotency-Key", "noop-1")

	rec := httptest.NewRecorder()
	h.UpdateOrderStatus(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateOrderStatusFulfills(t *testing.T) {
	id := uuid.New()
	store := &fakeStore{
		updateOrderStatus: func(_ context.Context, gotID uuid.UUID, req domain.OrderTransitionRequest, _ uuid.UUID, actorName, idemKey, _ string) (*domain.OrderTransitionResult, *domain.StoredResponse, error) {
			assert.Equal(t, id, gotID)
			assert.Equal(t, domain.OrderFulfilled, req.Status)
			assert.Equal(t, "Admin User", actorName)
			assert.Equal(t, "fulfill-1", idemKey)
			return &domain.OrderTransitionResult{
				Order: domain.Order{ID: id, Status: domain.OrderFulfilled},
				Audit: domain.RedemptionAuditLog{OrderID: id, Action: domain.AuditFulfilled},
			}, nil, nil
		},
	}
	h := newTestHandler(t, store)

	req := request("PATCH", "/api/v1/market/orders/x/status", adminViewer(),
		[]byte(`{"status":"FULFILLED"}`), map[string]string{"id": id.String()})
	req.Header.Set("Idempotency-Key", "fulfill-1")

	rec := httptest.NewRecorder()
	h.UpdateOrderStatus(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var result domain.OrderTransitionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, domain.OrderFulfilled, result.Order.Status)
}

func TestUpdateOrderStatusConflict(t *testing.T) {
	store := &fakeStore{
		updateOrderStatus: func(context.Context, uuid.UUID, domain.OrderTransitionRequest, uuid.UUID, string, string, string) (*domain.OrderTransitionResult, *domain.StoredResponse, error) {
			return nil, nil, domain.ErrStateConflict
		},
	}
	h := newTestHandler(t, store)

	req := request("PATCH", "/api/v1/market/orders/x/status", adminViewer(),
		[]byte(`{"status":"FULFILLED"}`), map[string]string{"id": uuid.NewString()})
	req.Header.Set("Idempotency-Key", "fulfill-2")

	rec := httptest.NewRecorder()
	h.UpdateOrderStatus(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUpdateOrderStatusForbiddenForStaff(t *testing.T) {
	h := newTestHandler(t, &fakeStore{})

	req := request("PATCH", "/api/v1/market/orders/x/status", staffViewer(),
		[]byte(`{"status":"FULFILLED"}`), map[string]string{"id": uuid.NewString()})
	req.Header.Set("Idempotency-Key", "fulfill-3")

	rec := httptest.NewRecorder()
	h.UpdateOrderStatus(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}
