package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/oziev02/pagecomments/internal/domain"
)

// SubmitFailurePrefix предшествует тексту ошибки хранилища в уведомлении
const SubmitFailurePrefix = "Failed to add comment: "

// Backend удаленное хранилище комментариев
type Backend interface {
	InsertComment(ctx context.Context, in domain.NewComment) (*domain.CommentRecord, error)
	QueryComments(ctx context.Context, postID string) ([]domain.CommentRecord, error)
}

// IdentityStore хранилище данных автора посетителя
type IdentityStore interface {
	Load(ctx context.Context) domain.Identity
	Persist(ctx context.Context, id domain.Identity)
	LastSubmission(ctx context.Context) (time.Time, bool)
	MarkSubmission(ctx context.Context, at time.Time)
}

// Notifier канал уведомлений посетителя
type Notifier interface {
	Show(message string)
}

// Draft комментарий, который посетитель пытается отправить
type Draft struct {
	Content  string
	ParentID *string
	Identity domain.Identity
}

// ControllerState снимок состояния обсуждения страницы
type ControllerState struct {
	PostID     string
	Roots      []*domain.CommentNode
	Count      int
	Loading    bool
	FetchErr   error
	OpenReply  string
	Submitting bool
	Identity   domain.Identity
}

// ControllerConfig параметры Controller
type ControllerConfig struct {
	Limits      domain.Limits
	TreeOptions []domain.TreeOption
	// OpenReply восстанавливает открытую форму ответа между запросами
	OpenReply string
	Now       func() time.Time
	Logger    *slog.Logger
}

// Controller управляет загрузкой и отправкой комментариев одной страницы.
// Состояние меняется только через переходы fetch*/submit*.
type Controller struct {
	mu       sync.Mutex
	postID   string
	backend  Backend
	identity IdentityStore
	notifier Notifier
	cfg      ControllerConfig
	state    ControllerState
	fetchSeq uint64
	closed   bool
}

// NewController создает новый экземпляр Controller
func NewController(postID string, backend Backend, identity IdentityStore, notifier Notifier, cfg ControllerConfig) *Controller {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Controller{
		postID:   postID,
		backend:  backend,
		identity: identity,
		notifier: notifier,
		cfg:      cfg,
		state: ControllerState{
			PostID:    postID,
			Roots:     []*domain.CommentNode{},
			OpenReply: cfg.OpenReply,
		},
	}
}

// State возвращает копию текущего состояния
func (c *Controller) State() ControllerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Mount загружает сохраненные данные автора и комментарии страницы
func (c *Controller) Mount(ctx context.Context) error {
	id := c.identity.Load(ctx)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrControllerClosed
	}
	c.state.Identity = id
	c.mu.Unlock()

	return c.Refresh(ctx)
}

// Refresh заново запрашивает комментарии и перестраивает дерево
func (c *Controller) Refresh(ctx context.Context) error {
	seq, ok := c.fetchStarted()
	if !ok {
		return domain.ErrControllerClosed
	}

	records, err := c.backend.QueryComments(ctx, c.postID)
	if err != nil {
		c.cfg.Logger.Error("failed to fetch comments", "post_id", c.postID, "error", err)
		c.fetchFailed(seq, err)
		return err
	}

	c.fetchSucceeded(seq, records)
	return nil
}

// ToggleReply открывает форму ответа на комментарий id или закрывает ее, если она уже открыта
func (c *Controller) ToggleReply(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.OpenReply == id {
		c.state.OpenReply = ""
		return
	}
	c.state.OpenReply = id
}

// CloseReply закрывает открытую форму ответа
func (c *Controller) CloseReply() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.OpenReply = ""
}

// Submit проверяет и отправляет комментарий, после успеха перечитывает список
func (c *Controller) Submit(ctx context.Context, d Draft) (*domain.CommentRecord, error) {
	sub := domain.Submission{
		Content:  d.Content,
		ParentID: d.ParentID,
		Identity: d.Identity,
	}
	if last, ok := c.identity.LastSubmission(ctx); ok {
		sub.LastSubmission = &last
	}

	if err := c.cfg.Limits.Validate(sub, c.cfg.Now()); err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			c.notifier.Show(verr.Message())
		}
		return nil, err
	}

	if err := c.submitValidated(d.Identity); err != nil {
		return nil, err
	}

	record, err := c.backend.InsertComment(ctx, domain.NewComment{
		PostID:        c.postID,
		Content:       d.Content,
		ParentID:      d.ParentID,
		AuthorName:    d.Identity.Name,
		AuthorEmail:   d.Identity.Email,
		AuthorWebsite: d.Identity.Website,
	})
	if err != nil {
		c.cfg.Logger.Error("failed to add comment", "post_id", c.postID, "error", err)
		c.submitFailed()
		c.notifier.Show(SubmitFailurePrefix + err.Error())
		return nil, err
	}

	c.identity.Persist(ctx, d.Identity)
	c.identity.MarkSubmission(ctx, c.cfg.Now())

	if !c.submitSucceeded(d.ParentID != nil) {
		return record, nil
	}

	// ошибка повторной загрузки уже отражена в FetchErr
	_ = c.Refresh(ctx)

	return record, nil
}

// Close отключает контроллер, завершившиеся позже запросы не меняют состояние
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *Controller) fetchStarted() (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, false
	}
	c.fetchSeq++
	c.state.Loading = true
	return c.fetchSeq, true
}

func (c *Controller) fetchSucceeded(seq uint64, records []domain.CommentRecord) {
	roots := domain.BuildTree(records, c.cfg.TreeOptions...)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || seq != c.fetchSeq {
		return
	}
	c.state.Roots = roots
	c.state.Count = len(records)
	c.state.Loading = false
	c.state.FetchErr = nil
}

func (c *Controller) fetchFailed(seq uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || seq != c.fetchSeq {
		return
	}
	c.state.Loading = false
	c.state.FetchErr = err
}

func (c *Controller) submitValidated(id domain.Identity) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.ErrControllerClosed
	}
	if c.state.Submitting {
		return domain.ErrSubmissionInFlight
	}
	c.state.Submitting = true
	c.state.Identity = id
	return nil
}

func (c *Controller) submitSucceeded(reply bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Submitting = false
	if c.closed {
		return false
	}
	if reply {
		c.state.OpenReply = ""
	}
	return true
}

func (c *Controller) submitFailed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Submitting = false
}
