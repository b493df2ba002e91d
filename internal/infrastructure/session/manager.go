package session

import (
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/alexedwards/scs/v2/memstore"
	"github.com/oziev02/pagecomments/internal/identity"
)

var _ identity.KV = (*scs.SessionManager)(nil)

// Options параметры менеджера сессий
type Options struct {
	CookieName string
	Lifetime   time.Duration
	Secure     bool
}

// NewManager создает менеджер сессий. Если store равен nil, сессии хранятся в памяти процесса.
func NewManager(store scs.Store, opts Options) *scs.SessionManager {
	sm := scs.New()
	if store == nil {
		store = memstore.New()
	}
	sm.Store = store
	if opts.Lifetime > 0 {
		sm.Lifetime = opts.Lifetime
	}
	if opts.CookieName != "" {
		sm.Cookie.Name = opts.CookieName
	}
	sm.Cookie.HttpOnly = true
	sm.Cookie.Persist = true
	sm.Cookie.SameSite = http.SameSiteLaxMode
	sm.Cookie.Secure = opts.Secure
	return sm
}
