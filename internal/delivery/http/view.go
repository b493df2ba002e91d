package http

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oziev02/pagecomments/internal/domain"
	"github.com/oziev02/pagecomments/internal/notify"
	"github.com/oziev02/pagecomments/internal/usecase"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	flashKey = "comment_flash"
	draftKey = "comment_draft"
	// dateLayout повторяет формат en-US "March 1, 2025 at 12:00 PM"
	dateLayout = "January 2, 2006 at 03:04 PM"
)

// View отрисовывает дерево комментариев в HTML
type View struct {
	tmpl          *template.Template
	md            goldmark.Markdown
	policy        *bluemonday.Policy
	maxReplyDepth int
}

// NewView создает новый экземпляр View
func NewView(maxReplyDepth int) (*View, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	policy := bluemonday.UGCPolicy()
	policy.AddTargetBlankToFullyQualifiedLinks(true)
	policy.RequireNoReferrerOnLinks(true)

	return &View{
		tmpl: tmpl,
		md: goldmark.New(
			goldmark.WithExtensions(extension.Linkify, extension.Strikethrough),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		),
		policy:        policy,
		maxReplyDepth: maxReplyDepth,
	}, nil
}

// PageView данные страницы обсуждения
type PageView struct {
	PostID       string
	Count        int
	Error        string
	Notification string
	Identity     domain.Identity
	Draft        FormDraft
	Comments     []*CommentView
}

// CommentView данные одного комментария для шаблона
type CommentView struct {
	Page          *PageView
	ID            string
	AuthorName    string
	AuthorWebsite string
	Date          string
	Content       template.HTML
	IsAdmin       bool
	CanReply      bool
	ReplyOpen     bool
	Depth         int
	Replies       []*CommentView
}

// FormDraft содержимое формы, возвращаемое после неудачной отправки
type FormDraft struct {
	Content  string `json:"content"`
	ParentID string `json:"parent_id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Website  string `json:"website"`
	Remember bool   `json:"remember"`
}

// RenderContent преобразует текст комментария в безопасный HTML
func (v *View) RenderContent(source string) template.HTML {
	var buf bytes.Buffer
	if err := v.md.Convert([]byte(source), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(source))
	}
	return template.HTML(v.policy.SanitizeBytes(buf.Bytes()))
}

// Build собирает модель страницы из состояния контроллера
func (v *View) Build(state usecase.ControllerState) *PageView {
	page := &PageView{
		PostID:   state.PostID,
		Count:    state.Count,
		Identity: state.Identity,
	}
	if state.FetchErr != nil {
		page.Error = "Failed to load comments: " + state.FetchErr.Error()
		return page
	}
	page.Comments = v.buildComments(page, state.Roots, 0, state.OpenReply)
	return page
}

func (v *View) buildComments(page *PageView, nodes []*domain.CommentNode, depth int, openReply string) []*CommentView {
	views := make([]*CommentView, 0, len(nodes))
	for _, node := range nodes {
		rec := node.Record
		canReply := depth < v.maxReplyDepth
		views = append(views, &CommentView{
			Page:          page,
			ID:            rec.ID,
			AuthorName:    rec.AuthorName,
			AuthorWebsite: safeWebsite(rec.AuthorWebsite),
			Date:          rec.CreatedAt.Format(dateLayout),
			Content:       v.RenderContent(rec.Content),
			IsAdmin:       rec.IsAdmin,
			CanReply:      canReply,
			ReplyOpen:     canReply && openReply == rec.ID,
			Depth:         depth,
			Replies:       v.buildComments(page, node.Children, depth+1, openReply),
		})
	}
	return views
}

// Render пишет страницу обсуждения
func (v *View) Render(w io.Writer, page *PageView) error {
	return v.tmpl.ExecuteTemplate(w, "page", page)
}

// safeWebsite пропускает только http(s) ссылки
func safeWebsite(website string) string {
	website = strings.TrimSpace(website)
	lower := strings.ToLower(website)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return website
	}
	return ""
}

// Page обрабатывает GET /posts/{postID}
func (h *CommentHandler) Page(w http.ResponseWriter, r *http.Request) {
	postID := r.PathValue("postID")
	ctx := r.Context()

	ctrl := h.newController(r, postID, notify.NewChannel())
	defer ctrl.Close()

	// ошибка загрузки отображается в списке
	_ = ctrl.Mount(ctx)

	page := h.view.Build(ctrl.State())
	page.Notification = h.sessions.PopString(ctx, flashKey)
	page.Draft = h.popDraft(r)
	if page.Draft.Name == "" && page.Draft.Email == "" {
		page.Draft.Name = page.Identity.Name
		page.Draft.Email = page.Identity.Email
		page.Draft.Website = page.Identity.Website
		page.Draft.Remember = page.Identity.Remember
	}

	var buf bytes.Buffer
	if err := h.view.Render(&buf, page); err != nil {
		h.logger.Error("failed to render comments", "post_id", postID, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

// ToggleReply обрабатывает POST /posts/{postID}/reply/{commentID}
func (h *CommentHandler) ToggleReply(w http.ResponseWriter, r *http.Request) {
	postID := r.PathValue("postID")
	commentID := r.PathValue("commentID")

	ctrl := h.newController(r, postID, notify.NewChannel())
	defer ctrl.Close()

	ctrl.ToggleReply(commentID)
	h.storeOpenReply(r, postID, ctrl.State().OpenReply)

	http.Redirect(w, r, pageURL(postID, commentID), http.StatusSeeOther)
}

// SubmitForm обрабатывает POST /posts/{postID}/comments/form
func (h *CommentHandler) SubmitForm(w http.ResponseWriter, r *http.Request) {
	postID := r.PathValue("postID")

	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	draft := FormDraft{
		Content:  r.PostFormValue("content"),
		ParentID: strings.TrimSpace(r.PostFormValue("parent_id")),
		Name:     r.PostFormValue("author_name"),
		Email:    r.PostFormValue("author_email"),
		Website:  r.PostFormValue("author_website"),
		Remember: r.PostFormValue("remember") != "",
	}

	var parentID *string
	if draft.ParentID != "" {
		parentID = &draft.ParentID
	}

	notifications := h.newNotifications(postID)
	defer notifications.Dismiss()

	ctrl, release, err := h.newSubmitController(r, postID, notifications)
	if err != nil {
		h.sessions.Put(r.Context(), flashKey, usecase.SubmitFailurePrefix+err.Error())
		h.pushDraft(r, draft)
		http.Redirect(w, r, pageURL(postID, draft.ParentID), http.StatusSeeOther)
		return
	}
	defer release()

	_, err = ctrl.Submit(r.Context(), usecase.Draft{
		Content:  draft.Content,
		ParentID: parentID,
		Identity: domain.Identity{
			Name:     draft.Name,
			Email:    draft.Email,
			Website:  draft.Website,
			Remember: draft.Remember,
		},
	})
	if err != nil {
		if message, ok := notifications.Current(); ok {
			h.sessions.Put(r.Context(), flashKey, message)
		} else {
			h.sessions.Put(r.Context(), flashKey, usecase.SubmitFailurePrefix+err.Error())
		}
		h.pushDraft(r, draft)
	}

	h.storeOpenReply(r, postID, ctrl.State().OpenReply)
	http.Redirect(w, r, pageURL(postID, draft.ParentID), http.StatusSeeOther)
}

func (h *CommentHandler) storeOpenReply(r *http.Request, postID, openReply string) {
	if openReply == "" {
		h.sessions.Remove(r.Context(), openReplyKey(postID))
		return
	}
	h.sessions.Put(r.Context(), openReplyKey(postID), openReply)
}

func (h *CommentHandler) pushDraft(r *http.Request, draft FormDraft) {
	b, err := json.Marshal(draft)
	if err != nil {
		return
	}
	h.sessions.Put(r.Context(), draftKey, string(b))
}

func (h *CommentHandler) popDraft(r *http.Request) FormDraft {
	var draft FormDraft
	raw := h.sessions.PopString(r.Context(), draftKey)
	if raw == "" {
		return draft
	}
	if err := json.Unmarshal([]byte(raw), &draft); err != nil {
		h.logger.Warn("discarding malformed draft", "error", err)
		return FormDraft{}
	}
	return draft
}

func pageURL(postID, anchor string) string {
	u := "/posts/" + url.PathEscape(postID)
	if anchor != "" {
		return u + "#comment-" + anchor
	}
	return u + "#comments"
}
