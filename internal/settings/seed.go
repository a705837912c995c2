// Package settings loads the bundled default settings file at boot,
// seeding any recognized key the persisted store does not already hold.
package settings

import (
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
	"go.uber.org/zap"

	"github.com/switchboardhq/supervisor/internal/core/intent"
	"github.com/switchboardhq/supervisor/internal/core/patch"
)

// Defaults is the parsed shape of the bundled settings seed file: a flat
// key/value map matching intent.RecognizedSettingKeys.
type Defaults map[string]string

// Load reads and parses a YAML defaults file. A missing file is not an
// error — the supervisor simply boots with no seeded settings beyond
// whatever the store already has.
func Load(path string) (Defaults, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Defaults{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("settings: read %s: %w", path, err)
	}

	var defaults Defaults
	if err := yaml.Unmarshal(data, &defaults); err != nil {
		return nil, fmt.Errorf("settings: parse %s: %w", path, err)
	}
	return defaults, nil
}

// Applier is the subset of the engine the seeder needs: dispatching
// SettingSetText intents the same way the bridge would.
type Applier interface {
	Dispatch(in intent.Intent) (patch.Patch, error)
}

// Seed applies every default whose key is recognized and not already
// present in existing, skipping anything existing already holds so a
// restart never clobbers a setting chrome has since changed.
func Seed(ctx context.Context, applier Applier, defaults Defaults, existing map[string]string, logger *zap.Logger) {
	var seeded, skipped, rejected int
	for key, value := range defaults {
		if _, already := existing[key]; already {
			skipped++
			continue
		}
		validate, recognized := intent.RecognizedSettingKeys[key]
		if !recognized || !validate(value) {
			logger.Warn("settings: ignoring unrecognized or invalid default", zap.String("key", key))
			rejected++
			continue
		}
		if _, err := applier.Dispatch(intent.SettingSetText(key, value)); err != nil {
			logger.Warn("settings: seed failed", zap.String("key", key), zap.Error(err))
			continue
		}
		seeded++
	}
	logger.Info("settings seeded",
		zap.Int("seeded", seeded),
		zap.Int("already_present", skipped),
		zap.Int("rejected", rejected),
	)
}
