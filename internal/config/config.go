package config

import (
	"os"
	"path/filepath"
	"reflect"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

const configFileName = "piecestore"

// Config holds the configuration options for the storage layer.
type Config struct {
	Debug   bool           `yaml:"debug,omitempty"`
	LogPath string         `yaml:"logPath,omitempty"`
	Storage *StorageConfig `yaml:"storage,omitempty"`
}

// StorageConfig holds configuration options for fragment and output
// persistence.
type StorageConfig struct {
	DownloadDir      string `yaml:"dir,omitempty"`
	StateDBPath      string `yaml:"stateDb,omitempty"`
	WriteConcurrency int    `yaml:"writeConcurrency,omitempty"`
}

// GetConfig reads the configuration file and returns a Config struct.
// If the configuration file does not exist, it returns the default configuration.
func GetConfig() (*Config, error) {
	configFilePath := filepath.Join(xdg.ConfigHome, configFileName)
	defaults := DefaultConfig()

	b, err := os.ReadFile(configFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &defaults, nil
		}

		return nil, err
	}

	if len(b) == 0 {
		return &defaults, nil
	}

	var cfg Config

	err = yaml.Unmarshal(b, &cfg)
	if err != nil {
		return nil, err
	}

	storageCfg := zeroOr(cfg.Storage, defaults.Storage)

	return &Config{
		Debug:   zeroOr(cfg.Debug, defaults.Debug),
		LogPath: zeroOr(cfg.LogPath, defaults.LogPath),
		Storage: &StorageConfig{
			DownloadDir:      zeroOr(storageCfg.DownloadDir, defaults.Storage.DownloadDir),
			StateDBPath:      zeroOr(storageCfg.StateDBPath, defaults.Storage.StateDBPath),
			WriteConcurrency: zeroOr(storageCfg.WriteConcurrency, defaults.Storage.WriteConcurrency),
		},
	}, nil
}

func DefaultConfig() Config {
	return Config{
		Debug:   debugEnabled,
		LogPath: logPath,
		Storage: &StorageConfig{
			DownloadDir:      downloadDir,
			StateDBPath:      stateDBPath,
			WriteConcurrency: writeConcurrency,
		},
	}
}

// zeroOr returns def if v is the zero value for its type.
func zeroOr[T any](v, def T) T {
	if reflect.ValueOf(v).IsZero() {
		return def
	}

	return v
}
