package settings

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/switchboardhq/supervisor/internal/core/intent"
	"github.com/switchboardhq/supervisor/internal/core/patch"
)

type fakeApplier struct {
	applied map[string]string
}

func (f *fakeApplier) Dispatch(in intent.Intent) (patch.Patch, error) {
	f.applied[in.SettingKey] = in.SettingValue
	return patch.Patch{}, nil
}

func TestLoadMissingFileReturnsEmpty(t *testing.T) {
	defaults, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Empty(t, defaults)
}

func TestLoadParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "defaults.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search_engine: duckduckgo\nhomepage: https://example.com\n"), 0o644))

	defaults, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "duckduckgo", defaults["search_engine"])
	assert.Equal(t, "https://example.com", defaults["homepage"])
}

func TestSeedSkipsExistingAndRejectsUnrecognized(t *testing.T) {
	applier := &fakeApplier{applied: make(map[string]string)}
	defaults := Defaults{
		"search_engine": "duckduckgo",
		"homepage":      "https://example.com",
		"not_a_key":     "value",
	}
	existing := map[string]string{"homepage": "https://already-set.example"}

	Seed(context.Background(), applier, defaults, existing, zap.NewNop())

	assert.Equal(t, "duckduckgo", applier.applied["search_engine"])
	_, homepageSeeded := applier.applied["homepage"]
	assert.False(t, homepageSeeded)
	_, unrecognizedSeeded := applier.applied["not_a_key"]
	assert.False(t, unrecognizedSeeded)
}

func TestSeedRejectsInvalidValueForRecognizedKey(t *testing.T) {
	applier := &fakeApplier{applied: make(map[string]string)}
	defaults := Defaults{"search_engine": "not-a-real-engine"}

	Seed(context.Background(), applier, defaults, nil, zap.NewNop())

	_, seeded := applier.applied["search_engine"]
	assert.False(t, seeded)
}
