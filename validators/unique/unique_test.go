package unique_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/reoring/formskema/validate"
	"github.com/reoring/formskema/validators/unique"
)

// memStore is an in-memory Store.
type memStore struct {
	mu   sync.Mutex
	sets map[string]map[string]bool
	err  error
	keys []string
}

func newMemStore() *memStore { return &memStore{sets: map[string]map[string]bool{}} }

func (m *memStore) SIsMember(_ context.Context, key string, member any) *redis.BoolCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, key)
	if m.err != nil {
		return redis.NewBoolResult(false, m.err)
	}
	return redis.NewBoolResult(m.sets[key][member.(string)], nil)
}

func (m *memStore) SAdd(_ context.Context, key string, members ...any) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sets[key] == nil {
		m.sets[key] = map[string]bool{}
	}
	var n int64
	for _, mem := range members {
		if !m.sets[key][mem.(string)] {
			m.sets[key][mem.(string)] = true
			n++
		}
	}
	return redis.NewIntResult(n, m.err)
}

func (m *memStore) SRem(_ context.Context, key string, members ...any) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, mem := range members {
		if m.sets[key][mem.(string)] {
			delete(m.sets[key], mem.(string))
			n++
		}
	}
	return redis.NewIntResult(n, m.err)
}

func TestValidator(t *testing.T) {
	store := newMemStore()
	c, err := unique.New(store, "")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := c.Reserve(ctx, "usernames", "ada"); err != nil {
		t.Fatal(err)
	}
	v := c.Validator("usernames")

	cases := []struct {
		value any
		want  string
	}{
		{"ada", "already taken"},
		{" ada ", "already taken"},
		{"grace", ""},
		{"", ""},
		{nil, ""},
		{42, ""},
	}
	for _, tc := range cases {
		res := validate.Run(ctx, v, validate.Context{FieldName: "username", Value: tc.value})
		if got := res.Errors["username"]; got != tc.want {
			t.Fatalf("value %v: got %q, want %q", tc.value, got, tc.want)
		}
	}
	if store.keys[0] != "formskema:taken:usernames" {
		t.Fatalf("unexpected key %q", store.keys[0])
	}

	if err := c.Release(ctx, "usernames", "ada"); err != nil {
		t.Fatal(err)
	}
	if taken, _ := c.Taken(ctx, "usernames", "ada"); taken {
		t.Fatalf("released value still taken")
	}
}

func TestValidator_FoldAndMessage(t *testing.T) {
	store := newMemStore()
	c, _ := unique.New(store, "app:")
	_ = c.Reserve(context.Background(), "emails", "ada@example.com")
	v := c.Validator("emails", unique.WithFold(), unique.WithMessage("email in use"))
	res := validate.Run(context.Background(), v, validate.Context{FieldName: "email", Value: "Ada@Example.com"})
	if res.Errors["email"] != "email in use" {
		t.Fatalf("unexpected: %v", res.Errors)
	}
	if store.keys[0] != "app:emails" {
		t.Fatalf("unexpected key %q", store.keys[0])
	}
}

func TestValidator_StoreErrorBecomesMessage(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("connection refused")
	c, _ := unique.New(store, "")
	res := validate.Run(context.Background(), c.Validator("usernames"), validate.Context{FieldName: "username", Value: "ada"})
	if res.Valid || !strings.Contains(res.Errors["username"], "connection refused") {
		t.Fatalf("unexpected: %+v", res)
	}
}

func TestNew_RequiresStore(t *testing.T) {
	if _, err := unique.New(nil, ""); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("FORMSKEMA_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("FORMSKEMA_REDIS_PREFIX", "signup:")
	cfg, err := unique.LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.RedisAddr != "redis.internal:6380" || cfg.KeyPrefix != "signup:" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestDial_Redis(t *testing.T) {
	ctx := context.Background()
	c, err := unique.Dial(ctx, unique.Config{RedisAddr: "127.0.0.1:6379", KeyPrefix: "formskema:test:"})
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer c.Close()
	defer c.Release(ctx, "usernames", "ada")

	if err := c.Reserve(ctx, "usernames", "ada"); err != nil {
		t.Fatal(err)
	}
	taken, err := c.Taken(ctx, "usernames", "ada")
	if err != nil || !taken {
		t.Fatalf("taken=%v err=%v", taken, err)
	}
}
