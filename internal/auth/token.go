package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gsis-platform/gsis-dashboard/internal/domain"
)

// Claims is the JWT payload carried by session tokens.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// TokenService signs and verifies HS256 session tokens.
type TokenService struct {
	secret   []byte
	issuer   string
	duration time.Duration
}

// NewTokenService builds a token service for the given signing secret.
func NewTokenService(secret, issuer string, duration time.Duration) *TokenService {
	return &TokenService{secret: []byte(secret), issuer: issuer, duration: duration}
}

// GenerateToken issues a signed session token for the session.
func (s *TokenService) GenerateToken(sess *Session) (string, error) {
	now := time.Now()
	claims := &Claims{
		Email: sess.Email,
		Role:  string(sess.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Subject:   sess.Principal,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ParseSession verifies a token and returns the session it carries. An
// unknown role claim degrades to viewer rather than failing.
func (s *TokenService) ParseSession(tokenString string) (*Session, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	role := domain.Role(claims.Role)
	if !role.Valid() {
		role = domain.RoleViewer
	}
	return &Session{
		Principal: claims.Subject,
		Email:     claims.Email,
		Role:      role,
	}, nil
}
