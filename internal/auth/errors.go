package auth

import "github.com/pkg/errors"

var (
	ErrInvalidToken         = errors.New("invalid token")
	ErrInvalidSigningMethod = errors.New("invalid signing method")
	ErrInvalidSubject       = errors.New("token subject is not a user id")
	ErrPasswordMismatch     = errors.New("password does not match")
)
