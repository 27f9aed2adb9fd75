// Package service provides business logic for the application.
package service

import (
	"errors"
	"fmt"

	"github.com/dermascan/dermascan/internal/auth"
)

// Service errors.
var (
	ErrDuplicateUser = errors.New("username already taken")
	ErrValidation    = errors.New("validation failed")
	ErrDatabase      = errors.New("database error")
)

// ErrInvalidCredentials is shared with auth so the session middleware can
// match it without depending on this package.
var ErrInvalidCredentials = auth.ErrInvalidCredentials

// ErrPayloadTooLarge is a ValidationError for uploads above the size limit.
var ErrPayloadTooLarge = fmt.Errorf("%w: image too large", ErrValidation)
