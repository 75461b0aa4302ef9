package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestMemorySessionStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore()

	p, err := store.CurrentPrincipal(ctx, "s1")
	if err != nil {
		t.Fatalf("CurrentPrincipal error: %v", err)
	}
	if p != nil {
		t.Fatalf("fresh session not anonymous: %+v", p)
	}

	if err := store.Establish(ctx, "s1", Principal{Username: "alice", Role: RoleUser}); err != nil {
		t.Fatalf("Establish error: %v", err)
	}
	p, err = store.CurrentPrincipal(ctx, "s1")
	if err != nil {
		t.Fatalf("CurrentPrincipal error: %v", err)
	}
	if p == nil || p.Username != "alice" || p.Role != RoleUser {
		t.Fatalf("bound principal = %+v, want alice/USER", p)
	}

	// Distinct sessions stay independent.
	p, err = store.CurrentPrincipal(ctx, "s2")
	if err != nil {
		t.Fatalf("CurrentPrincipal error: %v", err)
	}
	if p != nil {
		t.Fatalf("unrelated session leaked principal: %+v", p)
	}

	// Rebinding replaces the principal.
	if err := store.Establish(ctx, "s1", Principal{Username: "bob", Role: RoleModerator}); err != nil {
		t.Fatalf("Establish error: %v", err)
	}
	p, _ = store.CurrentPrincipal(ctx, "s1")
	if p == nil || p.Username != "bob" {
		t.Fatalf("rebinding did not replace principal: %+v", p)
	}

	if err := store.Clear(ctx, "s1"); err != nil {
		t.Fatalf("Clear error: %v", err)
	}
	p, _ = store.CurrentPrincipal(ctx, "s1")
	if p != nil {
		t.Fatalf("cleared session still bound: %+v", p)
	}

	// Clearing an anonymous session is a no-op, not an error.
	if err := store.Clear(ctx, "never-seen"); err != nil {
		t.Fatalf("Clear of unknown session: %v", err)
	}
}

func TestMemorySessionStoreConcurrentSessions(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore()

	const sessions = 32
	const rounds = 50

	var wg sync.WaitGroup
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			sid := "sid-" + string(rune('a'+n%26)) + string(rune('0'+n/26))
			who := Principal{Username: sid, Role: RoleUser}
			for r := 0; r < rounds; r++ {
				if err := store.Establish(ctx, sid, who); err != nil {
					t.Errorf("Establish: %v", err)
					return
				}
				p, err := store.CurrentPrincipal(ctx, sid)
				if err != nil {
					t.Errorf("CurrentPrincipal: %v", err)
					return
				}
				if p == nil || p.Username != sid {
					t.Errorf("session %s read back %+v", sid, p)
					return
				}
				if err := store.Clear(ctx, sid); err != nil {
					t.Errorf("Clear: %v", err)
					return
				}
			}
		}(i)
	}
	wg.Wait()
}

func newTestRedisStore(t *testing.T, ttl time.Duration) (*RedisSessionStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisSessionStore(client, ttl), mr
}

func TestRedisSessionStore(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t, time.Hour)

	p, err := store.CurrentPrincipal(ctx, "s1")
	if err != nil {
		t.Fatalf("CurrentPrincipal error: %v", err)
	}
	if p != nil {
		t.Fatalf("fresh session not anonymous: %+v", p)
	}

	if err := store.Establish(ctx, "s1", Principal{Username: "alice", Role: RoleAdministrator}); err != nil {
		t.Fatalf("Establish error: %v", err)
	}
	p, err = store.CurrentPrincipal(ctx, "s1")
	if err != nil {
		t.Fatalf("CurrentPrincipal error: %v", err)
	}
	if p == nil || p.Username != "alice" || p.Role != RoleAdministrator {
		t.Fatalf("bound principal = %+v, want alice/ADMINISTRATOR", p)
	}

	if err := store.Clear(ctx, "s1"); err != nil {
		t.Fatalf("Clear error: %v", err)
	}
	p, _ = store.CurrentPrincipal(ctx, "s1")
	if p != nil {
		t.Fatalf("cleared session still bound: %+v", p)
	}
}

func TestRedisSessionStoreTTL(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t, time.Minute)

	if err := store.Establish(ctx, "s1", Principal{Username: "alice", Role: RoleUser}); err != nil {
		t.Fatalf("Establish error: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	p, err := store.CurrentPrincipal(ctx, "s1")
	if err != nil {
		t.Fatalf("CurrentPrincipal error: %v", err)
	}
	if p != nil {
		t.Fatalf("session survived its ttl: %+v", p)
	}
}
