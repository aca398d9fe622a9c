// Package unique provides an async "value not taken" validator backed by a
// Redis set per namespace (usernames, emails, slugs).
package unique

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"
	"github.com/reoring/formskema/i18n"
	"github.com/reoring/formskema/validate"
)

const defaultPrefix = "formskema:taken:"

// Config for a Redis-backed Checker. Defaults can be loaded via envdecode.
type Config struct {
	// RedisAddr like "localhost:6379". ENV: FORMSKEMA_REDIS_ADDR
	RedisAddr string `env:"FORMSKEMA_REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all set keys. ENV: FORMSKEMA_REDIS_PREFIX
	KeyPrefix string `env:"FORMSKEMA_REDIS_PREFIX,default=formskema:taken:"`
}

// LoadConfig reads Config from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode env: %w", err)
	}
	return cfg, nil
}

// Store is the part of a Redis client the Checker uses; *redis.Client
// satisfies it.
type Store interface {
	SIsMember(ctx context.Context, key string, member any) *redis.BoolCmd
	SAdd(ctx context.Context, key string, members ...any) *redis.IntCmd
	SRem(ctx context.Context, key string, members ...any) *redis.IntCmd
}

// Checker answers whether a value is already taken in a namespace.
type Checker struct {
	store     Store
	keyPrefix string
	close     func() error
}

// New wraps an existing store. An empty prefix uses "formskema:taken:".
func New(store Store, keyPrefix string) (*Checker, error) {
	if store == nil {
		return nil, errors.New("redis store is required")
	}
	if keyPrefix == "" {
		keyPrefix = defaultPrefix
	}
	return &Checker{store: store, keyPrefix: keyPrefix, close: func() error { return nil }}, nil
}

// Dial connects to Redis per cfg and pings it.
func Dial(ctx context.Context, cfg Config) (*Checker, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}
	cl := redis.NewClient(&redis.Options{Addr: addr})
	if err := cl.Ping(ctx).Err(); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	c, err := New(cl, cfg.KeyPrefix)
	if err != nil {
		_ = cl.Close()
		return nil, err
	}
	c.close = cl.Close
	return c, nil
}

// NewFromEnv builds a Checker using envdecode to populate Config.
func NewFromEnv(ctx context.Context) (*Checker, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	return Dial(ctx, cfg)
}

// Close closes the Redis client when the Checker owns it.
func (c *Checker) Close() error { return c.close() }

func (c *Checker) key(namespace string) string { return c.keyPrefix + namespace }

// Taken reports whether value is in namespace.
func (c *Checker) Taken(ctx context.Context, namespace, value string) (bool, error) {
	ok, err := c.store.SIsMember(ctx, c.key(namespace), value).Result()
	if err != nil {
		return false, fmt.Errorf("check %s: %w", c.key(namespace), err)
	}
	return ok, nil
}

// Reserve adds value to namespace.
func (c *Checker) Reserve(ctx context.Context, namespace, value string) error {
	if err := c.store.SAdd(ctx, c.key(namespace), value).Err(); err != nil {
		return fmt.Errorf("reserve in %s: %w", c.key(namespace), err)
	}
	return nil
}

// Release removes value from namespace.
func (c *Checker) Release(ctx context.Context, namespace, value string) error {
	if err := c.store.SRem(ctx, c.key(namespace), value).Err(); err != nil {
		return fmt.Errorf("release in %s: %w", c.key(namespace), err)
	}
	return nil
}

type options struct {
	message string
	fold    bool
}

// Option configures Validator.
type Option func(*options)

// WithMessage replaces the "already taken" message.
func WithMessage(msg string) Option { return func(o *options) { o.message = msg } }

// WithFold compares values case-insensitively; values are lower-cased
// before lookup, so reserve them lower-cased too.
func WithFold() Option { return func(o *options) { o.fold = true } }

// Validator returns a field validator that fails when the field's string
// value is taken in namespace. Empty and non-string values pass; pair it
// with a required check. Redis failures surface as the validator's error.
func (c *Checker) Validator(namespace string, opts ...Option) validate.Func {
	o := options{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return func(ctx context.Context, vc validate.Context) (string, error) {
		s, ok := vc.Value.(string)
		if !ok {
			return "", nil
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return "", nil
		}
		if o.fold {
			s = strings.ToLower(s)
		}
		taken, err := c.Taken(ctx, namespace, s)
		if err != nil {
			return "", err
		}
		if !taken {
			return "", nil
		}
		if o.message != "" {
			return o.message, nil
		}
		return i18n.T("taken", nil), nil
	}
}
