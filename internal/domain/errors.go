package domain

import "errors"

// Sentinel ошибки доменного слоя
var (
	ErrInvalidParent      = errors.New("invalid parent comment")
	ErrSubmissionInFlight = errors.New("a comment is already being posted")
	ErrControllerClosed   = errors.New("comment controller closed")
)

// Ошибки проверки отправки
var (
	ErrEmptyContent   = errors.New("empty content")
	ErrContentTooLong = errors.New("too long")
	ErrCooldownActive = errors.New("cooldown active")
	ErrNameRequired   = errors.New("name required")
	ErrEmailRequired  = errors.New("email required")
)
