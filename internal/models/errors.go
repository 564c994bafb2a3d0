package models

import "errors"

// Sentinel errors shared across services. Handlers map these to HTTP
// status codes with errors.Is; services wrap them with context via
// fmt.Errorf("%w: ...").
var (
	ErrNotFound            = errors.New("not found")
	ErrValidation          = errors.New("validation failed")
	ErrConflict            = errors.New("conflict")
	ErrInvalidCredential   = errors.New("invalid credential")
	ErrUnsupportedPlatform = errors.New("unsupported platform")
)
