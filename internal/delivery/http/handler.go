package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/oziev02/pagecomments/internal/domain"
	"github.com/oziev02/pagecomments/internal/identity"
	"github.com/oziev02/pagecomments/internal/notify"
	"github.com/oziev02/pagecomments/internal/usecase"
)

// Pinger проверяет доступность хранилища
type Pinger interface {
	Ping(ctx context.Context) error
}

// Pingers проверяет несколько хранилищ, первая ошибка прерывает проверку
type Pingers []Pinger

// Ping проверяет хранилища по порядку
func (p Pingers) Ping(ctx context.Context) error {
	for _, pinger := range p {
		if err := pinger.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

// HandlerConfig содержит правила приема и отображения комментариев
type HandlerConfig struct {
	Limits        domain.Limits
	TreeOptions   []domain.TreeOption
	MaxReplyDepth int
}

// CommentHandler обрабатывает HTTP запросы для комментариев
type CommentHandler struct {
	backend    usecase.Backend
	sessions   *scs.SessionManager
	identities *identity.Store
	pinger     Pinger
	cfg        HandlerConfig
	logger     *slog.Logger
	view       *View
	gate       *submissionGate
	now        func() time.Time
}

// NewCommentHandler создает новый экземпляр CommentHandler
func NewCommentHandler(backend usecase.Backend, sessions *scs.SessionManager, pinger Pinger, cfg HandlerConfig, logger *slog.Logger) (*CommentHandler, error) {
	if cfg.MaxReplyDepth <= 0 {
		cfg.MaxReplyDepth = domain.MaxReplyDepth
	}
	view, err := NewView(cfg.MaxReplyDepth)
	if err != nil {
		return nil, err
	}
	return &CommentHandler{
		backend:    backend,
		sessions:   sessions,
		identities: identity.NewStore(sessions),
		pinger:     pinger,
		cfg:        cfg,
		logger:     logger,
		view:       view,
		gate:       newSubmissionGate(cfg.Limits),
		now:        time.Now,
	}, nil
}

// CreateCommentRequest DTO для создания комментария
type CreateCommentRequest struct {
	ParentID      *string `json:"parent_id"`
	Content       string  `json:"content"`
	AuthorName    string  `json:"author_name"`
	AuthorEmail   string  `json:"author_email"`
	AuthorWebsite string  `json:"author_website"`
	Remember      bool    `json:"remember"`
}

// CommentResponse DTO для ответа с комментарием
type CommentResponse struct {
	ID            string  `json:"id"`
	PostID        string  `json:"post_id"`
	ParentID      *string `json:"parent_id,omitempty"`
	Content       string  `json:"content"`
	CreatedAt     string  `json:"created_at"`
	AuthorName    string  `json:"author_name"`
	AuthorWebsite string  `json:"author_website,omitempty"`
	IsAdmin       bool    `json:"is_admin"`
}

// CommentTreeResponse DTO для ответа с деревом комментариев
type CommentTreeResponse struct {
	Comment  CommentResponse       `json:"comment"`
	Children []CommentTreeResponse `json:"children"`
}

// CommentsListResponse DTO для списка комментариев страницы
type CommentsListResponse struct {
	Comments []CommentTreeResponse `json:"comments"`
	Total    int                   `json:"total"`
}

// CreateCommentResponse DTO для ответа на создание комментария
type CreateCommentResponse struct {
	Comment  CommentResponse       `json:"comment"`
	Comments []CommentTreeResponse `json:"comments"`
	Total    int                   `json:"total"`
}

// IdentityResponse DTO для сохраненных данных посетителя
type IdentityResponse struct {
	Identity                 domain.Identity `json:"identity"`
	CooldownRemainingSeconds int             `json:"cooldown_remaining_seconds"`
}

// ErrorResponse DTO для ошибки
type ErrorResponse struct {
	Error            string `json:"error"`
	Message          string `json:"message"`
	Limit            int    `json:"limit,omitempty"`
	RemainingSeconds int    `json:"remaining_seconds,omitempty"`
}

func (h *CommentHandler) newNotifications(postID string) *notify.Channel {
	return notify.NewChannel(notify.WithOnChange(func(message string, visible bool) {
		if visible {
			h.logger.Debug("comment notification", "post_id", postID, "message", message)
		}
	}))
}

func (h *CommentHandler) newController(r *http.Request, postID string, notifier usecase.Notifier) *usecase.Controller {
	return h.controllerWith(r, postID, h.identities, notifier)
}

// newSubmitController занимает слот отправки посетителя. Пока слот занят,
// другие отправки того же посетителя получают domain.ErrSubmissionInFlight.
// Вызывающий обязан вызвать release.
func (h *CommentHandler) newSubmitController(r *http.Request, postID string, notifier usecase.Notifier) (ctrl *usecase.Controller, release func(), err error) {
	ctx := r.Context()
	key := h.sessions.Token(ctx)
	if key == "" {
		if err := h.sessions.RenewToken(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to start session: %w", err)
		}
		key = h.sessions.Token(ctx)
	}

	if !h.gate.acquire(key) {
		return nil, nil, domain.ErrSubmissionInFlight
	}

	ids := visitorIdentity{Store: h.identities, gate: h.gate, key: key}
	ctrl = h.controllerWith(r, postID, ids, notifier)
	return ctrl, func() {
		ctrl.Close()
		h.gate.release(key)
	}, nil
}

func (h *CommentHandler) controllerWith(r *http.Request, postID string, ids usecase.IdentityStore, notifier usecase.Notifier) *usecase.Controller {
	return usecase.NewController(postID, h.backend, ids, notifier, usecase.ControllerConfig{
		Limits:      h.cfg.Limits,
		TreeOptions: h.cfg.TreeOptions,
		OpenReply:   h.sessions.GetString(r.Context(), openReplyKey(postID)),
		Now:         h.now,
		Logger:      h.logger,
	})
}

// List обрабатывает GET /posts/{postID}/comments
func (h *CommentHandler) List(w http.ResponseWriter, r *http.Request) {
	postID := r.PathValue("postID")

	ctrl := h.newController(r, postID, notify.NewChannel())
	defer ctrl.Close()

	if err := ctrl.Mount(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, ErrorResponse{Error: "fetch_failed", Message: "failed to load comments"})
		return
	}

	state := ctrl.State()
	writeJSON(w, http.StatusOK, CommentsListResponse{
		Comments: toCommentTreeResponseList(state.Roots),
		Total:    state.Count,
	})
}

// Create обрабатывает POST /posts/{postID}/comments
func (h *CommentHandler) Create(w http.ResponseWriter, r *http.Request) {
	postID := r.PathValue("postID")

	var req CreateCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_body", Message: "invalid request body"})
		return
	}

	notifications := h.newNotifications(postID)
	defer notifications.Dismiss()

	ctrl, release, err := h.newSubmitController(r, postID, notifications)
	if err != nil {
		h.writeSubmitError(w, err, err.Error())
		return
	}
	defer release()

	record, err := ctrl.Submit(r.Context(), usecase.Draft{
		Content:  req.Content,
		ParentID: normalizeParentID(req.ParentID),
		Identity: domain.Identity{
			Name:     req.AuthorName,
			Email:    req.AuthorEmail,
			Website:  req.AuthorWebsite,
			Remember: req.Remember,
		},
	})
	if err != nil {
		message, _ := notifications.Current()
		h.writeSubmitError(w, err, message)
		return
	}

	state := ctrl.State()
	writeJSON(w, http.StatusCreated, CreateCommentResponse{
		Comment:  toCommentResponse(record),
		Comments: toCommentTreeResponseList(state.Roots),
		Total:    state.Count,
	})
}

// Identity обрабатывает GET /identity
func (h *CommentHandler) Identity(w http.ResponseWriter, r *http.Request) {
	resp := IdentityResponse{Identity: h.identities.Load(r.Context())}
	if last, ok := h.identities.LastSubmission(r.Context()); ok {
		resp.CooldownRemainingSeconds = h.cfg.Limits.CooldownRemaining(last, h.now())
	}
	writeJSON(w, http.StatusOK, resp)
}

// Health обрабатывает GET /healthz
func (h *CommentHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := h.pinger.Ping(ctx); err != nil {
			h.logger.Error("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *CommentHandler) writeSubmitError(w http.ResponseWriter, err error, message string) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		status := http.StatusBadRequest
		if verr.Reason == domain.ErrCooldownActive {
			status = http.StatusTooManyRequests
			w.Header().Set("Retry-After", strconv.Itoa(verr.RemainingSeconds))
		}
		writeError(w, status, ErrorResponse{
			Error:            verr.Code(),
			Message:          verr.Message(),
			Limit:            verr.Limit,
			RemainingSeconds: verr.RemainingSeconds,
		})
	case errors.Is(err, domain.ErrInvalidParent):
		writeError(w, http.StatusBadRequest, ErrorResponse{Error: "invalid_parent", Message: message})
	case errors.Is(err, domain.ErrSubmissionInFlight):
		writeError(w, http.StatusConflict, ErrorResponse{Error: "in_flight", Message: err.Error()})
	default:
		writeError(w, http.StatusInternalServerError, ErrorResponse{Error: "insert_failed", Message: message})
	}
}

func normalizeParentID(parentID *string) *string {
	if parentID == nil {
		return nil
	}
	id := strings.TrimSpace(*parentID)
	if id == "" {
		return nil
	}
	return &id
}

func openReplyKey(postID string) string {
	return "comment_open_reply:" + postID
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, resp ErrorResponse) {
	writeJSON(w, status, resp)
}

// toCommentResponse преобразует domain.CommentRecord в CommentResponse
func toCommentResponse(c *domain.CommentRecord) CommentResponse {
	return CommentResponse{
		ID:            c.ID,
		PostID:        c.PostID,
		ParentID:      c.ParentID,
		Content:       c.Content,
		CreatedAt:     c.CreatedAt.Format(time.RFC3339),
		AuthorName:    c.AuthorName,
		AuthorWebsite: c.AuthorWebsite,
		IsAdmin:       c.IsAdmin,
	}
}

// toCommentTreeResponse преобразует domain.CommentNode в CommentTreeResponse
func toCommentTreeResponse(node *domain.CommentNode) CommentTreeResponse {
	response := CommentTreeResponse{
		Comment:  toCommentResponse(&node.Record),
		Children: make([]CommentTreeResponse, 0, len(node.Children)),
	}

	for _, child := range node.Children {
		response.Children = append(response.Children, toCommentTreeResponse(child))
	}

	return response
}

// toCommentTreeResponseList преобразует лес в список CommentTreeResponse
func toCommentTreeResponseList(roots []*domain.CommentNode) []CommentTreeResponse {
	responses := make([]CommentTreeResponse, 0, len(roots))
	for _, root := range roots {
		responses = append(responses, toCommentTreeResponse(root))
	}
	return responses
}
