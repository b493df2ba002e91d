package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oziev02/pagecomments/internal/domain"
)

// CommentUseCase содержит серверную логику хранения комментариев
type CommentUseCase struct {
	repo            domain.CommentRepository
	privilegedEmail string
	now             func() time.Time
}

// NewCommentUseCase создает новый экземпляр CommentUseCase
func NewCommentUseCase(repo domain.CommentRepository, privilegedEmail string) *CommentUseCase {
	return &CommentUseCase{
		repo:            repo,
		privilegedEmail: privilegedEmail,
		now:             time.Now,
	}
}

// InsertComment создает новый комментарий. Флаг администратора и время создания
// вычисляются здесь, а не берутся от клиента.
func (uc *CommentUseCase) InsertComment(ctx context.Context, in domain.NewComment) (*domain.CommentRecord, error) {
	if strings.TrimSpace(in.Content) == "" {
		return nil, domain.ErrEmptyContent
	}

	if in.ParentID != nil {
		ok, err := uc.repo.Exists(ctx, in.PostID, *in.ParentID)
		if err != nil {
			return nil, fmt.Errorf("failed to get parent comment: %w", err)
		}
		if !ok {
			return nil, domain.ErrInvalidParent
		}
	}

	record := &domain.CommentRecord{
		ID:            uuid.NewString(),
		PostID:        in.PostID,
		Content:       in.Content,
		CreatedAt:     uc.now().UTC(),
		ParentID:      in.ParentID,
		AuthorName:    in.AuthorName,
		AuthorWebsite: in.AuthorWebsite,
		IsAdmin:       domain.IsPrivilegedEmail(in.AuthorEmail, uc.privilegedEmail),
	}

	if err := uc.repo.Create(ctx, record, in.AuthorEmail); err != nil {
		return nil, fmt.Errorf("failed to create comment: %w", err)
	}

	return record, nil
}

// QueryComments возвращает все комментарии страницы от старых к новым
func (uc *CommentUseCase) QueryComments(ctx context.Context, postID string) ([]domain.CommentRecord, error) {
	records, err := uc.repo.ListByPost(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	return records, nil
}
