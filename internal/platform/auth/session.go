package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const sessionIssuer = "clinic-server"

// Claims is the payload of a session token.
type Claims struct {
	jwt.RegisteredClaims
	Name      string `json:"name"`
	Role      Role   `json:"role"`
	PatientID string `json:"patient_id,omitempty"`
}

// SessionManager issues and verifies HS256 session tokens.
type SessionManager struct {
	key     []byte
	ttl     time.Duration
	now     func() time.Time
	revoked *RevocationList
}

func NewSessionManager(key []byte, ttl time.Duration) *SessionManager {
	return &SessionManager{key: key, ttl: ttl, now: time.Now}
}

// WithRevocation makes Parse reject tokens recorded in l and enables Revoke.
func (m *SessionManager) WithRevocation(l *RevocationList) *SessionManager {
	m.revoked = l
	return m
}

// Issue signs a token for p and returns it with its expiry.
func (m *SessionManager) Issue(p Principal) (string, time.Time, error) {
	issuedAt := m.now()
	expiresAt := issuedAt.Add(m.ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   p.ID.String(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.New().String(),
		},
		Name: p.Name,
		Role: p.Role,
	}
	if p.PatientID != nil {
		claims.PatientID = p.PatientID.String()
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return token, expiresAt, nil
}

// Parse verifies tokenStr and rebuilds the principal it was issued for.
func (m *SessionManager) Parse(tokenStr string) (*Principal, error) {
	claims, err := m.verify(tokenStr)
	if err != nil {
		return nil, err
	}
	if m.revoked != nil && m.revoked.IsRevoked(claims.ID) {
		return nil, ErrInvalidSession
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil || !claims.Role.Valid() {
		return nil, ErrInvalidSession
	}

	p := &Principal{ID: id, Name: claims.Name, Role: claims.Role}
	if claims.PatientID != "" {
		pid, err := uuid.Parse(claims.PatientID)
		if err != nil {
			return nil, ErrInvalidSession
		}
		p.PatientID = &pid
	}
	return p, nil
}

// Revoke ends the session behind tokenStr. Without a revocation list it is a
// no-op, so logout only discards the token client-side.
func (m *SessionManager) Revoke(tokenStr string) error {
	claims, err := m.verify(tokenStr)
	if err != nil {
		return err
	}
	if m.revoked != nil {
		m.revoked.Revoke(claims.ID, claims.ExpiresAt.Time)
	}
	return nil
}

func (m *SessionManager) verify(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return m.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !token.Valid || claims.ID == "" {
		return nil, ErrInvalidSession
	}
	return claims, nil
}
