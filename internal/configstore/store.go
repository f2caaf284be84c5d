// Package configstore provides the model-mapping configuration cache.
// Cached reads go through get-or-refresh with a TTL and an injectable
// clock; loader failures fall back to last-known-good data or the
// built-in defaults, never to an error.
package configstore

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"bedrockproxy/internal/core"
)

// ModelConfig is the externally managed routing configuration.
type ModelConfig struct {
	ModelMappings   map[string]string      `json:"model_mappings"`
	DefaultProvider core.Provider          `json:"default_provider"`
	ProviderEnabled map[core.Provider]bool `json:"provider_enabled"`
}

// Loader fetches a fresh configuration snapshot from a backend.
type Loader interface {
	Load(ctx context.Context) (*ModelConfig, error)
}

// DefaultTTL is the freshness window for cached configuration.
const DefaultTTL = 5 * time.Minute

// Store caches configuration from a Loader with a freshness window.
// Safe for concurrent use.
type Store struct {
	mu        sync.Mutex
	loader    Loader
	ttl       time.Duration
	now       func() time.Time
	cached    *ModelConfig
	fetchedAt time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithTTL overrides the freshness window.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// WithClock injects a clock, used by tests to control expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a configuration store backed by the given loader.
func NewStore(loader Loader, opts ...Option) *Store {
	s := &Store{
		loader: loader,
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the current configuration, refreshing it when the cached
// snapshot is older than the TTL. Never returns nil: on loader failure
// the last-known-good snapshot is served, or the built-in defaults when
// nothing was ever loaded.
func (s *Store) Get(ctx context.Context) *ModelConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil && s.now().Sub(s.fetchedAt) < s.ttl {
		return s.cached
	}

	cfg, err := s.loader.Load(ctx)
	if err != nil || cfg == nil {
		if err != nil {
			slog.Warn("config refresh failed", "error", err)
		}
		if s.cached != nil {
			// Serve stale rather than fail; retry on the next Get.
			return s.cached
		}
		return Defaults()
	}

	normalize(cfg)
	s.cached = cfg
	s.fetchedAt = s.now()
	return cfg
}

// normalize fills gaps so consumers never see nil maps or an empty
// default provider.
func normalize(cfg *ModelConfig) {
	if cfg.ModelMappings == nil {
		cfg.ModelMappings = map[string]string{}
	}
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = core.ProviderBedrock
	}
	if cfg.ProviderEnabled == nil {
		cfg.ProviderEnabled = map[core.Provider]bool{core.ProviderBedrock: true}
	}
}

// Defaults returns the hardcoded configuration used when no backend has
// ever answered.
func Defaults() *ModelConfig {
	return &ModelConfig{
		ModelMappings: map[string]string{
			"gpt-3.5-turbo":     "anthropic.claude-3-haiku-20240307-v1:0",
			"gpt-3.5-turbo-16k": "anthropic.claude-3-haiku-20240307-v1:0",
			"gpt-4":             "anthropic.claude-3-sonnet-20240229-v1:0",
			"gpt-4-turbo":       "anthropic.claude-3-5-sonnet-20240620-v1:0",
			"gpt-4o":            "anthropic.claude-3-5-sonnet-20240620-v1:0",
			"gpt-4o-mini":       "anthropic.claude-3-5-haiku-20241022-v1:0",
		},
		DefaultProvider: core.ProviderBedrock,
		ProviderEnabled: map[core.Provider]bool{
			core.ProviderBedrock: true,
			core.ProviderOpenAI:  false,
			core.ProviderGemini:  false,
		},
	}
}

// StaticLoader serves a fixed configuration. Used as the default backend
// and in tests.
type StaticLoader struct {
	Config *ModelConfig
}

// Load implements Loader.
func (l StaticLoader) Load(_ context.Context) (*ModelConfig, error) {
	if l.Config == nil {
		return Defaults(), nil
	}
	return l.Config, nil
}
