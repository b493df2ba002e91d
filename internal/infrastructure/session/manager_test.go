package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/oziev02/pagecomments/internal/domain"
	"github.com/oziev02/pagecomments/internal/identity"
)

func TestIdentitySurvivesAcrossSessions(t *testing.T) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer store.Close()

	sm := NewManager(store, Options{CookieName: "comments_session", Lifetime: 24 * time.Hour})

	// первый визит: посетитель просит запомнить данные
	ctx, err := sm.Load(context.Background(), "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	ids := identity.NewStore(sm)
	want := domain.Identity{Name: "Ann", Email: "ann@example.com", Website: "https://ann.dev", Remember: true}
	ids.Persist(ctx, want)
	ids.MarkSubmission(ctx, time.UnixMilli(1_700_000_000_000))

	token, _, err := sm.Commit(ctx)
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	// второй визит с тем же cookie
	ctx, err = sm.Load(context.Background(), token)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := ids.Load(ctx); got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
	last, ok := ids.LastSubmission(ctx)
	if !ok || last.UnixMilli() != 1_700_000_000_000 {
		t.Errorf("unexpected submission marker %v %v", last, ok)
	}

	// третий визит: флажок снят, данные отзываются
	ids.Persist(ctx, domain.Identity{Name: "Ann", Email: "ann@example.com"})
	token, _, err = sm.Commit(ctx)
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	ctx, err = sm.Load(context.Background(), token)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got := ids.Load(ctx); got != (domain.Identity{}) {
		t.Errorf("expected empty identity after revoke, got %+v", got)
	}
	for _, key := range []string{identity.KeyName, identity.KeyEmail, identity.KeyWebsite, identity.KeyRemember} {
		if sm.Exists(ctx, key) {
			t.Errorf("expected %s to be removed", key)
		}
	}
	if !sm.Exists(ctx, identity.KeyLastSubmission) {
		t.Error("expected submission marker to survive revoke")
	}
}

func TestNewManagerDefaultsToMemory(t *testing.T) {
	sm := NewManager(nil, Options{})
	if sm.Store == nil {
		t.Fatal("expected in-memory store")
	}
	if sm.Lifetime <= 0 {
		t.Errorf("expected default lifetime, got %v", sm.Lifetime)
	}
	if !sm.Cookie.Persist || !sm.Cookie.HttpOnly {
		t.Error("expected persistent http-only cookie")
	}
}
