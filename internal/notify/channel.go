// Package notify реализует одноместный канал временных уведомлений.
package notify

import (
	"sync"
	"time"
)

// DismissAfter время показа уведомления до автоматического скрытия
const DismissAfter = 3000 * time.Millisecond

// AfterFunc планирует вызов f через d и возвращает функцию отмены
type AfterFunc func(d time.Duration, f func()) (stop func() bool)

func timeAfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Channel хранит не более одного уведомления
type Channel struct {
	mu         sync.Mutex
	message    string
	visible    bool
	generation uint64
	stop       func() bool
	afterFunc  AfterFunc
	onChange   func(message string, visible bool)
}

// Option настраивает Channel
type Option func(*Channel)

// WithAfterFunc подменяет таймер, используется в тестах
func WithAfterFunc(fn AfterFunc) Option {
	return func(c *Channel) {
		c.afterFunc = fn
	}
}

// WithOnChange регистрирует обработчик смены состояния
func WithOnChange(fn func(message string, visible bool)) Option {
	return func(c *Channel) {
		c.onChange = fn
	}
}

// NewChannel создает новый экземпляр Channel
func NewChannel(opts ...Option) *Channel {
	c := &Channel{afterFunc: timeAfterFunc}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Show заменяет текущее уведомление и перезапускает таймер скрытия
func (c *Channel) Show(message string) {
	c.mu.Lock()
	c.cancelLocked()
	c.generation++
	gen := c.generation
	c.message = message
	c.visible = true
	c.stop = c.afterFunc(DismissAfter, func() { c.expire(gen) })
	onChange := c.onChange
	c.mu.Unlock()

	if onChange != nil {
		onChange(message, true)
	}
}

// Dismiss скрывает уведомление досрочно
func (c *Channel) Dismiss() {
	c.mu.Lock()
	if !c.visible {
		c.mu.Unlock()
		return
	}
	c.cancelLocked()
	c.generation++
	c.clearLocked()
	onChange := c.onChange
	c.mu.Unlock()

	if onChange != nil {
		onChange("", false)
	}
}

// Current возвращает показанное уведомление
func (c *Channel) Current() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.message, c.visible
}

func (c *Channel) expire(gen uint64) {
	c.mu.Lock()
	if gen != c.generation || !c.visible {
		c.mu.Unlock()
		return
	}
	c.stop = nil
	c.clearLocked()
	onChange := c.onChange
	c.mu.Unlock()

	if onChange != nil {
		onChange("", false)
	}
}

func (c *Channel) cancelLocked() {
	if c.stop != nil {
		c.stop()
		c.stop = nil
	}
}

func (c *Channel) clearLocked() {
	c.message = ""
	c.visible = false
}
