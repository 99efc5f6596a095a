// Package common defines shared sentinel errors and small random helpers used
// across the relay. Callers should use errors.Is to match these values.
package common

import "errors"

var (

	// repository specific errors
	ErrorNotFound = errors.New("not found")

	// service specific errors
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// channel specific errors
	ErrNotConnected = errors.New("local server is not connected")
	ErrTimeout      = errors.New("local server timeout")

	// registration specific errors
	ErrInvalidCode = errors.New("user or code invalid")
)
