package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/oziev02/pagecomments/internal/domain"
	"github.com/oziev02/pagecomments/internal/usecase"
)

const adminEmail = "owner@example.com"

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type memRepo struct {
	mu        sync.Mutex
	records   []domain.CommentRecord
	listErr   error
	createErr error
	// entered и unblock задерживают Create до закрытия unblock
	entered chan struct{}
	unblock chan struct{}
}

func (m *memRepo) Create(_ context.Context, record *domain.CommentRecord, _ string) error {
	if m.entered != nil {
		m.entered <- struct{}{}
		<-m.unblock
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.records = append(m.records, *record)
	return nil
}

func (m *memRepo) Exists(_ context.Context, postID, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.PostID == postID && r.ID == id {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) ListByPost(_ context.Context, postID string) ([]domain.CommentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []domain.CommentRecord
	for _, r := range m.records {
		if r.PostID == postID {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakePinger struct {
	err error
}

func (f fakePinger) Ping(context.Context) error { return f.err }

type testEnv struct {
	repo   *memRepo
	server *httptest.Server
	client *http.Client
}

func newTestEnv(t *testing.T, pinger Pinger) *testEnv {
	t.Helper()

	repo := &memRepo{}
	sessions := scs.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h, err := NewCommentHandler(usecase.NewCommentUseCase(repo, adminEmail), sessions, pinger, HandlerConfig{}, logger)
	if err != nil {
		t.Fatalf("NewCommentHandler: %v", err)
	}
	h.now = func() time.Time { return testNow }

	server := httptest.NewServer(sessions.LoadAndSave(NewRouter(h)))
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &testEnv{repo: repo, server: server, client: client}
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := e.client.Get(e.server.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func (e *testEnv) postJSON(t *testing.T, path string, v any) (*http.Response, []byte) {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := e.client.Post(e.server.URL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, body
}

func (e *testEnv) postForm(t *testing.T, path string, form url.Values) *http.Response {
	t.Helper()
	resp, err := e.client.PostForm(e.server.URL+path, form)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	resp.Body.Close()
	return resp
}

func strPtr(s string) *string { return &s }

func validRequest(content string) CreateCommentRequest {
	return CreateCommentRequest{
		Content:     content,
		AuthorName:  "Ann",
		AuthorEmail: "ann@example.com",
		Remember:    true,
	}
}

func TestList_ReturnsForestNewestRootFirst(t *testing.T) {
	env := newTestEnv(t, nil)
	env.repo.records = []domain.CommentRecord{
		{ID: "A", PostID: "p1", Content: "first", CreatedAt: testNow.Add(-3 * time.Hour)},
		{ID: "B", PostID: "p1", Content: "reply", CreatedAt: testNow.Add(-2 * time.Hour), ParentID: strPtr("A")},
		{ID: "C", PostID: "p1", Content: "second", CreatedAt: testNow.Add(-1 * time.Hour)},
		{ID: "X", PostID: "other", Content: "elsewhere", CreatedAt: testNow},
	}

	resp, body := env.get(t, "/posts/p1/comments")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var got CommentsListResponse
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Total != 3 {
		t.Errorf("total = %d, want 3", got.Total)
	}
	if len(got.Comments) != 2 {
		t.Fatalf("roots = %d, want 2", len(got.Comments))
	}
	if got.Comments[0].Comment.ID != "C" || got.Comments[1].Comment.ID != "A" {
		t.Errorf("root order = %s,%s, want C,A", got.Comments[0].Comment.ID, got.Comments[1].Comment.ID)
	}
	if len(got.Comments[1].Children) != 1 || got.Comments[1].Children[0].Comment.ID != "B" {
		t.Errorf("A children = %+v, want [B]", got.Comments[1].Children)
	}
}

func TestList_FetchFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.repo.listErr = errors.New("connection refused")

	resp, body := env.get(t, "/posts/p1/comments")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	if !strings.Contains(body, "fetch_failed") {
		t.Errorf("body = %s, want fetch_failed", body)
	}
}

func TestCreate_Success(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, body := env.postJSON(t, "/posts/p1/comments", validRequest("Hello"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", resp.StatusCode, body)
	}

	var got CreateCommentResponse
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Comment.Content != "Hello" || got.Comment.PostID != "p1" {
		t.Errorf("comment = %+v", got.Comment)
	}
	if got.Comment.IsAdmin {
		t.Error("ordinary author must not be admin")
	}
	if got.Total != 1 || len(got.Comments) != 1 {
		t.Errorf("refetched list = %d/%d, want 1/1", got.Total, len(got.Comments))
	}
}

func TestCreate_PrivilegedEmailMarksAdmin(t *testing.T) {
	env := newTestEnv(t, nil)

	req := validRequest("Official answer")
	req.AuthorEmail = adminEmail
	resp, body := env.postJSON(t, "/posts/p1/comments", req)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", resp.StatusCode, body)
	}

	var got CreateCommentResponse
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Comment.IsAdmin {
		t.Error("privileged author must be admin")
	}
	if bytes.Contains(body, []byte(adminEmail)) {
		t.Error("response must not expose author email")
	}
}

func TestCreate_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		req     CreateCommentRequest
		code    string
		message string
	}{
		{
			name:    "empty content",
			req:     validRequest("   "),
			code:    "empty_content",
			message: "Please enter a comment",
		},
		{
			name:    "too long",
			req:     validRequest(strings.Repeat("a", 1001)),
			code:    "too_long",
			message: "Comment is too long. Maximum 1000 characters allowed.",
		},
		{
			name:    "missing name",
			req:     CreateCommentRequest{Content: "hi", AuthorEmail: "a@b.c"},
			code:    "name_required",
			message: "Please enter your name",
		},
		{
			name:    "missing email",
			req:     CreateCommentRequest{Content: "hi", AuthorName: "Ann"},
			code:    "email_required",
			message: "Please enter your email",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)

			resp, body := env.postJSON(t, "/posts/p1/comments", tt.req)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
			var got ErrorResponse
			if err := json.Unmarshal(body, &got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.Error != tt.code || got.Message != tt.message {
				t.Errorf("got %q/%q, want %q/%q", got.Error, got.Message, tt.code, tt.message)
			}
			if len(env.repo.records) != 0 {
				t.Error("invalid submission must not be stored")
			}
		})
	}
}

func TestCreate_CooldownAfterSuccess(t *testing.T) {
	env := newTestEnv(t, nil)

	if resp, body := env.postJSON(t, "/posts/p1/comments", validRequest("one")); resp.StatusCode != http.StatusCreated {
		t.Fatalf("first status = %d: %s", resp.StatusCode, body)
	}

	resp, body := env.postJSON(t, "/posts/p1/comments", validRequest("two"))
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", resp.StatusCode)
	}
	if got := resp.Header.Get("Retry-After"); got != "30" {
		t.Errorf("Retry-After = %q, want 30", got)
	}

	var got ErrorResponse
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.RemainingSeconds != 30 {
		t.Errorf("remaining = %d, want 30", got.RemainingSeconds)
	}
	if got.Message != "Please wait 30 seconds before posting another comment." {
		t.Errorf("message = %q", got.Message)
	}
}

func TestCreate_UnknownParent(t *testing.T) {
	env := newTestEnv(t, nil)

	req := validRequest("orphan reply")
	req.ParentID = strPtr("missing")
	resp, body := env.postJSON(t, "/posts/p1/comments", req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}

	var got ErrorResponse
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Error != "invalid_parent" {
		t.Errorf("error = %q, want invalid_parent", got.Error)
	}
	if !strings.HasPrefix(got.Message, usecase.SubmitFailurePrefix) {
		t.Errorf("message = %q, want prefix %q", got.Message, usecase.SubmitFailurePrefix)
	}
}

func TestCreate_BlankParentIsRoot(t *testing.T) {
	env := newTestEnv(t, nil)

	req := validRequest("root")
	req.ParentID = strPtr("  ")
	resp, body := env.postJSON(t, "/posts/p1/comments", req)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", resp.StatusCode, body)
	}
	if env.repo.records[0].ParentID != nil {
		t.Errorf("parent = %q, want nil", *env.repo.records[0].ParentID)
	}
}

func TestCreate_StorageFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.repo.createErr = errors.New("disk full")

	resp, body := env.postJSON(t, "/posts/p1/comments", validRequest("hello"))
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	var got ErrorResponse
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Error != "insert_failed" || !strings.Contains(got.Message, "disk full") {
		t.Errorf("got %+v", got)
	}

	// неудачная отправка не запускает ожидание
	env.repo.createErr = nil
	if resp, body := env.postJSON(t, "/posts/p1/comments", validRequest("again")); resp.StatusCode != http.StatusCreated {
		t.Errorf("retry status = %d: %s", resp.StatusCode, body)
	}
}

func TestCreate_InvalidBody(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := env.client.Post(env.server.URL+"/posts/p1/comments", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestIdentity_RememberedAfterSubmit(t *testing.T) {
	env := newTestEnv(t, nil)

	_, body := env.get(t, "/identity")
	var before IdentityResponse
	if err := json.Unmarshal([]byte(body), &before); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if before.Identity != (domain.Identity{}) || before.CooldownRemainingSeconds != 0 {
		t.Errorf("fresh visitor = %+v", before)
	}

	req := validRequest("hello")
	req.AuthorWebsite = "https://ann.example.com"
	if resp, body := env.postJSON(t, "/posts/p1/comments", req); resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}

	_, body = env.get(t, "/identity")
	var after IdentityResponse
	if err := json.Unmarshal([]byte(body), &after); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := domain.Identity{Name: "Ann", Email: "ann@example.com", Website: "https://ann.example.com", Remember: true}
	if after.Identity != want {
		t.Errorf("identity = %+v, want %+v", after.Identity, want)
	}
	if after.CooldownRemainingSeconds != 30 {
		t.Errorf("cooldown = %d, want 30", after.CooldownRemainingSeconds)
	}
}

func TestIdentity_NotRememberedWhenOptedOut(t *testing.T) {
	env := newTestEnv(t, nil)

	req := validRequest("hello")
	req.Remember = false
	if resp, body := env.postJSON(t, "/posts/p1/comments", req); resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}

	_, body := env.get(t, "/identity")
	var got IdentityResponse
	if err := json.Unmarshal([]byte(body), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Identity != (domain.Identity{}) {
		t.Errorf("identity = %+v, want empty", got.Identity)
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		pinger Pinger
		want   int
	}{
		{"no pinger", nil, http.StatusOK},
		{"healthy", fakePinger{}, http.StatusOK},
		{"unreachable", fakePinger{err: errors.New("down")}, http.StatusServiceUnavailable},
		{"all healthy", Pingers{fakePinger{}, fakePinger{}}, http.StatusOK},
		{"one unreachable", Pingers{fakePinger{}, fakePinger{err: errors.New("redis down")}}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.pinger)
			resp, _ := env.get(t, "/healthz")
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestCreate_ConcurrentSubmitsFromOneVisitor(t *testing.T) {
	env := newTestEnv(t, nil)
	env.postForm(t, "/posts/p1/reply/A", nil)

	env.repo.entered = make(chan struct{}, 2)
	env.repo.unblock = make(chan struct{})

	post := func(content string) (int, error) {
		b, err := json.Marshal(validRequest(content))
		if err != nil {
			return 0, err
		}
		resp, err := env.client.Post(env.server.URL+"/posts/p1/comments", "application/json", bytes.NewReader(b))
		if err != nil {
			return 0, err
		}
		resp.Body.Close()
		return resp.StatusCode, nil
	}

	type result struct {
		status int
		err    error
	}
	firstDone := make(chan result, 1)
	go func() {
		status, err := post("first")
		firstDone <- result{status, err}
	}()

	select {
	case <-env.repo.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first submission never reached storage")
	}

	status, err := post("second")
	close(env.repo.unblock)
	if err != nil {
		t.Fatalf("second POST: %v", err)
	}
	if status != http.StatusConflict {
		t.Errorf("second status = %d, want 409", status)
	}

	first := <-firstDone
	if first.err != nil {
		t.Fatalf("first POST: %v", first.err)
	}
	if first.status != http.StatusCreated {
		t.Errorf("first status = %d, want 201", first.status)
	}
	if n := len(env.repo.entered); n != 0 {
		t.Errorf("second submission reached storage %d times", n)
	}
	if n := len(env.repo.records); n != 1 {
		t.Errorf("stored %d comments, want 1", n)
	}

	// слот освобожден, дальше действует ожидание
	if status, err := post("third"); err != nil || status != http.StatusTooManyRequests {
		t.Errorf("third status = %d (%v), want 429", status, err)
	}
}

func TestSubmitForm_ConcurrentSubmitIsRejected(t *testing.T) {
	env := newTestEnv(t, nil)
	env.postForm(t, "/posts/p1/reply/A", nil)

	env.repo.entered = make(chan struct{}, 2)
	env.repo.unblock = make(chan struct{})

	form := url.Values{
		"content":      {"slow"},
		"author_name":  {"Ann"},
		"author_email": {"ann@example.com"},
	}

	done := make(chan error, 1)
	go func() {
		resp, err := env.client.PostForm(env.server.URL+"/posts/p1/comments/form", form)
		if err == nil {
			resp.Body.Close()
		}
		done <- err
	}()

	select {
	case <-env.repo.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first submission never reached storage")
	}

	resp := env.postForm(t, "/posts/p1/comments/form", form)
	close(env.repo.unblock)
	if err := <-done; err != nil {
		t.Fatalf("first POST: %v", err)
	}

	if resp.StatusCode != http.StatusSeeOther {
		t.Errorf("status = %d, want 303", resp.StatusCode)
	}
	if n := len(env.repo.entered); n != 0 {
		t.Errorf("second submission reached storage %d times", n)
	}
	if n := len(env.repo.records); n != 1 {
		t.Errorf("stored %d comments, want 1", n)
	}
}
