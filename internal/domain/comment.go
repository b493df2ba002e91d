package domain

import (
	"context"
	"time"
)

// CommentRecord представляет сохраненный комментарий страницы
type CommentRecord struct {
	ID            string    `json:"id"`
	PostID        string    `json:"post_id"`
	Content       string    `json:"content"`
	CreatedAt     time.Time `json:"created_at"`
	ParentID      *string   `json:"parent_id,omitempty"`
	AuthorName    string    `json:"author_name"`
	AuthorWebsite string    `json:"author_website,omitempty"`
	IsAdmin       bool      `json:"is_admin"`
}

// NewComment содержит данные для вставки нового комментария
type NewComment struct {
	PostID        string
	Content       string
	ParentID      *string
	AuthorName    string
	AuthorEmail   string
	AuthorWebsite string
}

// CommentRepository определяет интерфейс хранилища комментариев
type CommentRepository interface {
	Create(ctx context.Context, record *CommentRecord, authorEmail string) error
	Exists(ctx context.Context, postID, id string) (bool, error)
	ListByPost(ctx context.Context, postID string) ([]CommentRecord, error)
}

// IsPrivilegedEmail сообщает, совпадает ли email с адресом владельца сайта.
// Сравнение точное и чувствительно к регистру.
func IsPrivilegedEmail(email, privileged string) bool {
	return privileged != "" && email == privileged
}
