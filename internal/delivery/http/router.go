package http

import (
	"net/http"
)

// NewRouter создает HTTP роутер
func NewRouter(handler *CommentHandler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /posts/{postID}/comments", handler.List)
	mux.HandleFunc("POST /posts/{postID}/comments", handler.Create)
	mux.HandleFunc("GET /identity", handler.Identity)
	mux.HandleFunc("GET /healthz", handler.Health)

	mux.HandleFunc("GET /posts/{postID}", handler.Page)
	mux.HandleFunc("POST /posts/{postID}/comments/form", handler.SubmitForm)
	mux.HandleFunc("POST /posts/{postID}/reply/{commentID}", handler.ToggleReply)

	return mux
}
