package http

import (
	"context"
	"sync"
	"time"

	"github.com/oziev02/pagecomments/internal/domain"
	"github.com/oziev02/pagecomments/internal/identity"
)

// submissionGate разделяет состояние отправок посетителя между запросами.
// Ключ посетителя это токен его сессии.
type submissionGate struct {
	mu       sync.Mutex
	limits   domain.Limits
	inFlight map[string]struct{}
	last     map[string]time.Time
}

func newSubmissionGate(limits domain.Limits) *submissionGate {
	return &submissionGate{
		limits:   limits,
		inFlight: make(map[string]struct{}),
		last:     make(map[string]time.Time),
	}
}

// acquire занимает слот отправки, false если у посетителя уже идет отправка
func (g *submissionGate) acquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inFlight[key]; busy {
		return false
	}
	g.inFlight[key] = struct{}{}
	return true
}

func (g *submissionGate) release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inFlight, key)
}

func (g *submissionGate) lastSubmission(key string) (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	at, ok := g.last[key]
	return at, ok
}

// markSubmission запоминает успешную отправку и забывает метки с истекшим ожиданием
func (g *submissionGate) markSubmission(key string, at time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for k, t := range g.last {
		if g.limits.CooldownRemaining(t, at) == 0 {
			delete(g.last, k)
		}
	}
	g.last[key] = at
}

// visitorIdentity дополняет сессию посетителя меткой из submissionGate:
// сессия сохраняется только при записи ответа, и параллельный запрос
// мог загрузить ее до этого.
type visitorIdentity struct {
	*identity.Store
	gate *submissionGate
	key  string
}

func (v visitorIdentity) LastSubmission(ctx context.Context) (time.Time, bool) {
	last, ok := v.Store.LastSubmission(ctx)
	if at, found := v.gate.lastSubmission(v.key); found && (!ok || at.After(last)) {
		return at, true
	}
	return last, ok
}

func (v visitorIdentity) MarkSubmission(ctx context.Context, at time.Time) {
	v.Store.MarkSubmission(ctx, at)
	v.gate.markSubmission(v.key, at)
}
