package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// MaxContentLength ограничивает длину комментария в символах
	MaxContentLength = 1000
	// CooldownWindow минимальный интервал между отправками одного посетителя
	CooldownWindow = 30 * time.Second
	// MaxReplyDepth глубина, начиная с которой кнопка ответа не показывается
	MaxReplyDepth = 3
)

// Submission содержит все входные данные проверки отправки
type Submission struct {
	Content        string
	ParentID       *string
	Identity       Identity
	LastSubmission *time.Time
}

// ValidationError описывает причину отказа в отправке
type ValidationError struct {
	Reason           error
	Limit            int
	RemainingSeconds int
}

// Error возвращает причину отказа с порогом
func (e *ValidationError) Error() string {
	switch e.Reason {
	case ErrContentTooLong:
		return fmt.Sprintf("%s: limit %d", e.Reason, e.Limit)
	case ErrCooldownActive:
		return fmt.Sprintf("%s: %ds remaining", e.Reason, e.RemainingSeconds)
	default:
		return e.Reason.Error()
	}
}

// Unwrap возвращает sentinel ошибку причины
func (e *ValidationError) Unwrap() error {
	return e.Reason
}

// Code возвращает машиночитаемый код причины
func (e *ValidationError) Code() string {
	return strings.ReplaceAll(e.Reason.Error(), " ", "_")
}

// Message возвращает текст для показа посетителю
func (e *ValidationError) Message() string {
	switch e.Reason {
	case ErrEmptyContent:
		return "Please enter a comment"
	case ErrContentTooLong:
		return fmt.Sprintf("Comment is too long. Maximum %d characters allowed.", e.Limit)
	case ErrCooldownActive:
		return fmt.Sprintf("Please wait %d seconds before posting another comment.", e.RemainingSeconds)
	case ErrNameRequired:
		return "Please enter your name"
	case ErrEmailRequired:
		return "Please enter your email"
	default:
		return e.Reason.Error()
	}
}

// Limits задает пороги проверки, нулевые значения заменяются значениями по умолчанию
type Limits struct {
	MaxLength int
	Cooldown  time.Duration
}

func (l Limits) withDefaults() Limits {
	if l.MaxLength <= 0 {
		l.MaxLength = MaxContentLength
	}
	if l.Cooldown <= 0 {
		l.Cooldown = CooldownWindow
	}
	return l
}

// ValidateSubmission проверяет отправку со стандартными порогами
func ValidateSubmission(s Submission, now time.Time) error {
	return Limits{}.Validate(s, now)
}

// Validate проверяет отправку, первая найденная проблема возвращается как *ValidationError
func (l Limits) Validate(s Submission, now time.Time) error {
	l = l.withDefaults()

	content := strings.TrimSpace(s.Content)
	if content == "" {
		return &ValidationError{Reason: ErrEmptyContent}
	}
	if utf8.RuneCountInString(content) > l.MaxLength {
		return &ValidationError{Reason: ErrContentTooLong, Limit: l.MaxLength}
	}

	if s.LastSubmission != nil {
		if remaining := l.CooldownRemaining(*s.LastSubmission, now); remaining > 0 {
			return &ValidationError{Reason: ErrCooldownActive, RemainingSeconds: remaining}
		}
	}

	if strings.TrimSpace(s.Identity.Name) == "" {
		return &ValidationError{Reason: ErrNameRequired}
	}
	if strings.TrimSpace(s.Identity.Email) == "" {
		return &ValidationError{Reason: ErrEmailRequired}
	}

	return nil
}

// CooldownRemaining возвращает оставшееся время ожидания в секундах с округлением вверх
func (l Limits) CooldownRemaining(last, now time.Time) int {
	l = l.withDefaults()
	elapsed := now.Sub(last)
	if elapsed >= l.Cooldown {
		return 0
	}
	return int((l.Cooldown - elapsed + time.Second - 1) / time.Second)
}
