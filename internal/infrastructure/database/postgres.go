package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oziev02/pagecomments/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS comments (
    id TEXT PRIMARY KEY,
    post_id TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    parent_id TEXT,
    author_name TEXT NOT NULL,
    author_email TEXT NOT NULL,
    author_website TEXT NOT NULL DEFAULT '',
    is_admin BOOLEAN NOT NULL DEFAULT FALSE,
    seq BIGSERIAL
);
ALTER TABLE comments ADD COLUMN IF NOT EXISTS seq BIGSERIAL;
DROP INDEX IF EXISTS idx_comments_post_created;
CREATE INDEX IF NOT EXISTS idx_comments_post_order ON comments(post_id, created_at, seq);
`

// PostgresRepository реализует CommentRepository для PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создает новый экземпляр PostgresRepository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// EnsureSchema создает таблицу комментариев, если ее нет
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Ping проверяет соединение с базой
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Create сохраняет новый комментарий. Email автора хранится, но никогда не читается обратно.
func (r *PostgresRepository) Create(ctx context.Context, record *domain.CommentRecord, authorEmail string) error {
	query := `
		INSERT INTO comments (id, post_id, content, created_at, parent_id, author_name, author_email, author_website, is_admin)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.pool.Exec(
		ctx,
		query,
		record.ID,
		record.PostID,
		record.Content,
		record.CreatedAt,
		record.ParentID,
		record.AuthorName,
		authorEmail,
		record.AuthorWebsite,
		record.IsAdmin,
	)
	if err != nil {
		return fmt.Errorf("failed to create comment: %w", err)
	}

	return nil
}

// Exists проверяет, что комментарий id принадлежит странице postID
func (r *PostgresRepository) Exists(ctx context.Context, postID, id string) (bool, error) {
	query := `
		SELECT 1
		FROM comments
		WHERE id = $1 AND post_id = $2
	`

	var one int
	err := r.pool.QueryRow(ctx, query, id, postID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get comment: %w", err)
	}

	return true, nil
}

// ListByPost получает все комментарии страницы от старых к новым.
// Комментарии с одинаковым временем идут в порядке вставки.
func (r *PostgresRepository) ListByPost(ctx context.Context, postID string) ([]domain.CommentRecord, error) {
	query := `
		SELECT id, post_id, content, created_at, parent_id, author_name, author_website, is_admin
		FROM comments
		WHERE post_id = $1
		ORDER BY created_at ASC, seq ASC
	`

	rows, err := r.pool.Query(ctx, query, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	records := make([]domain.CommentRecord, 0)
	for rows.Next() {
		var rec domain.CommentRecord
		var parentID sql.NullString

		err := rows.Scan(
			&rec.ID,
			&rec.PostID,
			&rec.Content,
			&rec.CreatedAt,
			&parentID,
			&rec.AuthorName,
			&rec.AuthorWebsite,
			&rec.IsAdmin,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}

		if parentID.Valid {
			rec.ParentID = &parentID.String
		}

		records = append(records, rec)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}
