package api

import (
	"errors"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/campushq/campusledger/internal/domain"
)

type loginRequest struct {
	Username string      `json:"username"`
	Password string      `json:"password"`
	Role     domain.Role `json:"role"`
}

type loginResponse struct {
	Token string              `json:"token"`
	Role  domain.Role         `json:"role"`
	Staff *domain.StaffMember `json:"staff"`
}

// Login authenticates a staff account for a role scope. Credential failures
// are indistinguishable on purpose: one non-field error regardless of
// whether the username, password or role scope was wrong.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}

	fe := domain.FieldErrors{}
	if req.Username == "" {
		fe.Add("username", "This field is required.")
	}
	if req.Password == "" {
		fe.Add("password", "This field is required.")
	}
	if !req.Role.Valid() {
		fe.Add("role", "Role must be university_admin or staff.")
	}
	if err := fe.Err(); err != nil {
		h.respondStoreError(w, r, err)
		return
	}

	if !h.limiter.Allow(req.Username) {
		respondWithError(w, http.StatusTooManyRequests, "Too many login attempts, try again later")
		return
	}

	badCredentials := domain.FieldErrors{"non_field_errors": {"Unable to log in with provided credentials."}}

	staff, err := h.store.GetStaffByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondWithJSON(w, http.StatusBadRequest, badCredentials)
			return
		}
		h.respondStoreError(w, r, err)
		return
	}

	if !staff.IsActive ||
		staff.Role != req.Role ||
		bcrypt.CompareHashAndPassword([]byte(staff.PasswordHash), []byte(req.Password)) != nil {
		respondWithJSON(w, http.StatusBadRequest, badCredentials)
		return
	}

	token, err := h.authority.Issue(staff)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, loginResponse{Token: token, Role: staff.Role, Staff: staff})
}
