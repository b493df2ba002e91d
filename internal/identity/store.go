// Package identity хранит данные автора и метку последней отправки посетителя.
package identity

import (
	"context"
	"strconv"
	"time"

	"github.com/oziev02/pagecomments/internal/domain"
)

// Ключи хранилища посетителя
const (
	KeyName           = "comment_author_name"
	KeyEmail          = "comment_author_email"
	KeyWebsite        = "comment_author_website"
	KeyRemember       = "comment_save_info"
	KeyLastSubmission = "last_comment_time"
)

// KV строковое хранилище, привязанное к посетителю через контекст
type KV interface {
	GetString(ctx context.Context, key string) string
	Exists(ctx context.Context, key string) bool
	Put(ctx context.Context, key string, val interface{})
	Remove(ctx context.Context, key string)
}

// Store загружает и сохраняет Identity посетителя
type Store struct {
	kv KV
}

// NewStore создает новый экземпляр Store
func NewStore(kv KV) *Store {
	return &Store{kv: kv}
}

// Load возвращает сохраненные данные, если посетитель просил их запомнить
func (s *Store) Load(ctx context.Context) domain.Identity {
	if s.kv.GetString(ctx, KeyRemember) != "true" {
		return domain.Identity{}
	}

	return domain.Identity{
		Name:     s.kv.GetString(ctx, KeyName),
		Email:    s.kv.GetString(ctx, KeyEmail),
		Website:  s.kv.GetString(ctx, KeyWebsite),
		Remember: true,
	}
}

// Save запоминает данные автора
func (s *Store) Save(ctx context.Context, id domain.Identity) {
	s.kv.Put(ctx, KeyName, id.Name)
	s.kv.Put(ctx, KeyEmail, id.Email)
	s.kv.Put(ctx, KeyWebsite, id.Website)
	s.kv.Put(ctx, KeyRemember, "true")
}

// Clear отзывает ранее сохраненные данные автора вместе с флагом запоминания.
// Метка последней отправки не затрагивается.
func (s *Store) Clear(ctx context.Context) {
	s.kv.Remove(ctx, KeyName)
	s.kv.Remove(ctx, KeyEmail)
	s.kv.Remove(ctx, KeyWebsite)
	s.kv.Remove(ctx, KeyRemember)
}

// Persist сохраняет или очищает данные в зависимости от флага Remember
func (s *Store) Persist(ctx context.Context, id domain.Identity) {
	if id.Remember {
		s.Save(ctx, id)
		return
	}
	s.Clear(ctx)
}

// LastSubmission возвращает время последней успешной отправки
func (s *Store) LastSubmission(ctx context.Context) (time.Time, bool) {
	if !s.kv.Exists(ctx, KeyLastSubmission) {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(s.kv.GetString(ctx, KeyLastSubmission), 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// MarkSubmission записывает время успешной отправки
func (s *Store) MarkSubmission(ctx context.Context, at time.Time) {
	s.kv.Put(ctx, KeyLastSubmission, strconv.FormatInt(at.UnixMilli(), 10))
}
