package configstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"bedrockproxy/internal/core"
)

// countingLoader records loads and can be told to fail.
type countingLoader struct {
	loads int
	fail  bool
	cfg   *ModelConfig
}

func (l *countingLoader) Load(_ context.Context) (*ModelConfig, error) {
	l.loads++
	if l.fail {
		return nil, errors.New("backend down")
	}
	return l.cfg, nil
}

func TestStoreCachesWithinTTL(t *testing.T) {
	loader := &countingLoader{cfg: Defaults()}
	now := time.Unix(1000, 0)
	store := NewStore(loader, WithTTL(time.Minute), WithClock(func() time.Time { return now }))

	ctx := context.Background()
	store.Get(ctx)
	store.Get(ctx)
	require.Equal(t, 1, loader.loads, "second Get within TTL must not reload")

	now = now.Add(61 * time.Second)
	store.Get(ctx)
	require.Equal(t, 2, loader.loads, "Get after TTL must reload")
}

func TestStoreServesLastKnownGoodOnFailure(t *testing.T) {
	custom := &ModelConfig{
		ModelMappings:   map[string]string{"my-model": "anthropic.claude-3-haiku-20240307-v1:0"},
		DefaultProvider: core.ProviderBedrock,
	}
	loader := &countingLoader{cfg: custom}
	now := time.Unix(1000, 0)
	store := NewStore(loader, WithTTL(time.Minute), WithClock(func() time.Time { return now }))

	ctx := context.Background()
	got := store.Get(ctx)
	require.Contains(t, got.ModelMappings, "my-model")

	loader.fail = true
	now = now.Add(2 * time.Minute)
	got = store.Get(ctx)
	require.Contains(t, got.ModelMappings, "my-model", "stale config must be served on failure")
}

func TestStoreFallsBackToDefaultsWhenNeverLoaded(t *testing.T) {
	loader := &countingLoader{fail: true}
	store := NewStore(loader)

	got := store.Get(context.Background())
	require.NotNil(t, got)
	require.Equal(t, core.ProviderBedrock, got.DefaultProvider)
	require.Contains(t, got.ModelMappings, "gpt-3.5-turbo")
}

func TestStoreNormalizesPartialConfig(t *testing.T) {
	loader := &countingLoader{cfg: &ModelConfig{}}
	store := NewStore(loader)

	got := store.Get(context.Background())
	require.NotNil(t, got.ModelMappings)
	require.Equal(t, core.ProviderBedrock, got.DefaultProvider)
	require.True(t, got.ProviderEnabled[core.ProviderBedrock])
}

func TestFileLoader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"model_mappings": {"alias": "anthropic.claude-v2"},
		"default_provider": "bedrock"
	}`), 0o644))

	cfg, err := FileLoader{Path: path}.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, "anthropic.claude-v2", cfg.ModelMappings["alias"])

	_, err = FileLoader{Path: filepath.Join(dir, "missing.json")}.Load(context.Background())
	require.Error(t, err)
}
