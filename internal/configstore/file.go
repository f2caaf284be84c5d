package configstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// FileLoader reads configuration from a JSON file on each refresh.
// Suitable for single-instance deployments.
type FileLoader struct {
	Path string
}

// Load implements Loader.
func (l FileLoader) Load(_ context.Context) (*ModelConfig, error) {
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg ModelConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}
