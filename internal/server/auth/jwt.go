// Package auth issues and verifies the session tokens carried in cookies.
package auth

import (
	"errors"
	"time"

	"github.com/casanet/remote-server/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// ForwardClaims identify an end user session on a local server. Session is
// the local server's own session value, passed through on every forwarded
// request.
type ForwardClaims struct {
	jwt.RegisteredClaims
	Server  string `json:"server"`
	Session string `json:"session"`
}

// AdminClaims identify an administrator of the relay.
type AdminClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

func GenerateForwardToken(server, session string, secretKey []byte, validity time.Duration) (string, error) {
	return sign(&ForwardClaims{RegisteredClaims: registered(validity), Server: server, Session: session}, secretKey)
}

func GenerateAdminToken(email string, secretKey []byte, validity time.Duration) (string, error) {
	return sign(&AdminClaims{RegisteredClaims: registered(validity), Email: email}, secretKey)
}

func ParseForwardToken(tokenString string, secretKey []byte) (*ForwardClaims, error) {
	claims := &ForwardClaims{}
	if err := parse(tokenString, claims, secretKey); err != nil {
		return nil, err
	}
	if claims.Server == "" {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}

func ParseAdminToken(tokenString string, secretKey []byte) (*AdminClaims, error) {
	claims := &AdminClaims{}
	if err := parse(tokenString, claims, secretKey); err != nil {
		return nil, err
	}
	if claims.Email == "" {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}

func registered(validity time.Duration) jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
	}
}

func sign(claims jwt.Claims, secretKey []byte) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secretKey)
}

func parse(tokenString string, claims jwt.Claims, secretKey []byte) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return common.ErrTokenExpired
		}
		return common.ErrInvalidToken
	}

	if !token.Valid {
		return common.ErrInvalidToken
	}
	return nil
}
