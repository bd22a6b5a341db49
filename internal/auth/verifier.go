package auth

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// TokenVerifier validates a credential presented over a connection and
// yields the account id it was issued for.
type TokenVerifier interface {
	Verify(token string) (int64, error)
}

// HS256Verifier checks bearer tokens issued by the profile subsystem.
// The token subject carries the numeric user id.
type HS256Verifier struct {
	secret []byte
}

// NewHS256Verifier builds a verifier for the shared signing secret.
func NewHS256Verifier(secret string) *HS256Verifier {
	return &HS256Verifier{secret: []byte(secret)}
}

// Verify parses and validates the token and returns the user id.
func (v *HS256Verifier) Verify(tokenString string) (int64, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, ErrExpiredToken
		}
		return 0, ErrInvalidToken
	}
	if !token.Valid {
		return 0, ErrInvalidToken
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return 0, ErrInvalidToken
	}
	userID, err := strconv.ParseInt(subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, ErrInvalidToken
	}
	return userID, nil
}
