package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/campushq/campusledger/internal/domain"
)

// Claims are the JWT claims carried by a session token.
type Claims struct {
	jwt.RegisteredClaims
	Role          domain.Role `json:"role"`
	FullName      string      `json:"full_name"`
	JobPositionID string      `json:"job_position_id"`
}

// Authority signs and validates session tokens with a shared HMAC secret.
type Authority struct {
	secret []byte
	ttl    time.Duration
}

func NewAuthority(secret string, ttl time.Duration) (*Authority, error) {
	if secret == "" {
		return nil, errors.New("auth: empty signing secret")
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Authority{secret: []byte(secret), ttl: ttl}, nil
}

// Issue mints a token for an authenticated staff member.
func (a *Authority) Issue(staff *domain.StaffMember) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   staff.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			Issuer:    "campusledger",
		},
		Role:          staff.Role,
		FullName:      staff.FullName,
		JobPositionID: staff.JobPositionID.String(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// Validate parses a token string and resolves it to a Principal.
func (a *Authority) Validate(tokenStr string) (*Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if !claims.Role.Valid() {
		return nil, errors.New("token carries an unknown role")
	}

	staffID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("malformed token subject: %w", err)
	}
	positionID, err := uuid.Parse(claims.JobPositionID)
	if err != nil {
		return nil, fmt.Errorf("malformed job position claim: %w", err)
	}

	return &Principal{
		StaffID:       staffID,
		FullName:      claims.FullName,
		Role:          claims.Role,
		JobPositionID: positionID,
	}, nil
}
