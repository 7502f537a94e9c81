package security

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"incentivos/api/internal/apperr"
	"incentivos/api/internal/config"
	"incentivos/api/internal/ids"
)

type Claims struct {
	Username  string  `json:"username"`
	UserID    int64   `json:"user_id"`
	SessionID *int64  `json:"session_id,omitempty"`
	Lines     []int64 `json:"lineas,omitempty"`
	jwt.RegisteredClaims
}

// TokenPayload is what a caller wants embedded in a token. SessionID and
// Lines are only known once the session row exists.
type TokenPayload struct {
	UserID    int64
	Username  string
	SessionID *int64
	Lines     []int64
}

type Token struct {
	Value     string
	ExpiresAt time.Time
}

type TokenManager struct {
	secret []byte
	method jwt.SigningMethod
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenManager(cfg config.SecurityConfig) (*TokenManager, error) {
	method := jwt.GetSigningMethod(cfg.JWTAlgorithm)
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unsupported jwt algorithm %q", cfg.JWTAlgorithm)
	}
	return &TokenManager{
		secret: []byte(cfg.JWTSecret),
		method: method,
		issuer: cfg.JWTIssuer,
		ttl:    cfg.JWTTTL,
		now:    time.Now,
	}, nil
}

// WithClock swaps the time source, used to simulate token ageing.
func (m *TokenManager) WithClock(now func() time.Time) *TokenManager {
	clone := *m
	clone.now = now
	return &clone
}

func (m *TokenManager) TTL() time.Duration { return m.ttl }

func (m *TokenManager) Generate(payload TokenPayload) (Token, error) {
	issuedAt := m.now().Truncate(time.Second)
	expiresAt := issuedAt.Add(m.ttl)

	claims := Claims{
		Username:  payload.Username,
		UserID:    payload.UserID,
		SessionID: payload.SessionID,
		Lines:     payload.Lines,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(payload.UserID, 10),
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        ids.New(),
		},
	}

	signed, err := jwt.NewWithClaims(m.method, claims).SignedString(m.secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign jwt: %w", err)
	}
	return Token{Value: signed, ExpiresAt: expiresAt}, nil
}

// Decode verifies signature, issuer and expiry. Expired tokens fail with
// apperr.ErrTokenExpired, everything else with apperr.ErrTokenInvalid.
func (m *TokenManager) Decode(tokenStr string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)

	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", apperr.ErrTokenInvalid, err)
	}
	if !token.Valid || claims.UserID <= 0 {
		return nil, apperr.ErrTokenInvalid
	}
	return claims, nil
}
