package config

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

type AppConfig struct {
	Storage *StorageConfig `json:"storage"`
	Log     *LogConfig     `json:"log"`
}

func New() *AppConfig {
	return &AppConfig{
		Storage: NewStorageConfig(),
		Log:     NewLogConfig(),
	}
}

// Load returns the defaults overlaid with the json file at path. Fields
// missing from the file keep their default values.
func Load(path string) (*AppConfig, error) {
	cfg := New()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config '%s'", path)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config '%s'", path)
	}

	return cfg, cfg.Storage.Validate()
}
