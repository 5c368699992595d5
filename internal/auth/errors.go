package auth

import "errors"

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrCorruptCredential   = errors.New("stored credential is unreadable")
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrUnauthorized        = errors.New("insufficient permissions")
	ErrConflict            = errors.New("resource conflict")
	ErrNotFound            = errors.New("not found")
	ErrReferentialConflict = errors.New("resource is still referenced")
	ErrMisconfigured       = errors.New("server misconfigured")
)
