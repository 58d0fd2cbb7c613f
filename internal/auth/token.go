package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"task-manager/internal/clock"
)

// DefaultTokenTTL bounds the lifetime of issued tokens.
const DefaultTokenTTL = 24 * time.Hour

// Rejection reasons returned by TokenService.Verify.
var (
	ErrTokenMalformed        = errors.New("auth: token is malformed")
	ErrTokenSignatureInvalid = errors.New("auth: token signature is invalid")
	ErrTokenExpired          = errors.New("auth: token has expired")
)

// Claims is the JWT payload: the subject identity plus registered claims
// (iat, exp, jti).
type Claims struct {
	UserID uint   `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256 identity tokens with one
// process-wide secret. Changing the secret invalidates every outstanding
// token.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
	parser *jwt.Parser
}

func NewTokenService(secret []byte, ttl time.Duration, clk clock.Clock) (*TokenService, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("auth: token secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &TokenService{
		secret: secret,
		ttl:    ttl,
		clock:  clk,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithStrictDecoding(),
			jwt.WithTimeFunc(clk.Now),
		),
	}, nil
}

// TTL reports how long issued tokens stay valid.
func (s *TokenService) TTL() time.Duration { return s.ttl }

// Issue signs a token for the given subject.
func (s *TokenService) Issue(userID uint, email string) (string, error) {
	now := s.clock.Now()
	claims := Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature first and expiry second, so a tampered token
// is reported as ErrTokenSignatureInvalid even when it has also expired.
func (s *TokenService) Verify(raw string) (Identity, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return Identity{}, ErrTokenMalformed
	}

	signature, err := s.parser.DecodeSegment(parts[2])
	if err != nil {
		return Identity{}, ErrTokenSignatureInvalid
	}
	if err := jwt.SigningMethodHS256.Verify(parts[0]+"."+parts[1], signature, s.secret); err != nil {
		return Identity{}, ErrTokenSignatureInvalid
	}

	var claims Claims
	_, err = s.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return Identity{}, ErrTokenExpired
	case err != nil:
		return Identity{}, ErrTokenMalformed
	}
	if claims.UserID == 0 {
		return Identity{}, ErrTokenMalformed
	}
	return Identity{UserID: claims.UserID, Email: claims.Email}, nil
}
