package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for tokens that fail verification or lack a subject.
var ErrInvalidToken = errors.New("invalid token")

// Claims are the JWT claims carried by actor tokens.
type Claims struct {
	UserID  string `json:"userId"`
	Email   string `json:"email"`
	Company string `json:"company"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for actor that expires after ttl.
func IssueToken(secret string, actor Actor, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("token secret is empty")
	}
	if actor.ID == "" {
		return "", errors.New("actor ID is empty")
	}
	now := time.Now()
	claims := Claims{
		UserID:  actor.ID,
		Email:   actor.Email,
		Company: actor.Company,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken verifies tokenStr and returns the actor it names.
func ParseToken(secret, tokenStr string) (*Actor, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return &Actor{
		ID:      claims.UserID,
		Email:   claims.Email,
		Company: claims.Company,
	}, nil
}
