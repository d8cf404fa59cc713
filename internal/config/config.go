// Package config loads the engine's runtime configuration, generalized from
// cmd/config/config.go's spf13/viper singleton: ARXOS-prefixed env vars
// become CUBE-prefixed, and the CLI/Backend/Database/Display/Defaults/AI
// sections are replaced with the sections an OLAP engine actually needs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// Config is the complete engine configuration.
type Config struct {
	Schema        SchemaConfig        `yaml:"schema" json:"schema"`
	Storage       StorageConfig       `yaml:"storage" json:"storage"`
	Metadata      MetadataConfig      `yaml:"metadata" json:"metadata"`
	Sorter        SorterConfig        `yaml:"sorter" json:"sorter"`
	Consolidation ConsolidationConfig `yaml:"consolidation" json:"consolidation"`
	Server        ServerConfig        `yaml:"server" json:"server"`
}

// SchemaConfig points at the cube schema definition to load on startup.
type SchemaConfig struct {
	Path string `yaml:"path" json:"path"`
}

// StorageConfig selects and configures the chunk store backend.
type StorageConfig struct {
	Backend   string `yaml:"backend" json:"backend"` // "file", "s3", "gcs", "azure"
	Path      string `yaml:"path" json:"path"`       // file backend root
	Bucket    string `yaml:"bucket" json:"bucket"`   // s3/gcs bucket or azure container
	Region    string `yaml:"region" json:"region"`
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	AccountID string `yaml:"account_id" json:"account_id" mapstructure:"account_id"` // azure storage account
}

// MetadataConfig selects and configures the metadata store backend.
type MetadataConfig struct {
	Backend string `yaml:"backend" json:"backend"` // "memory" or "postgres"
	DSN     string `yaml:"dsn" json:"dsn"`
}

// SorterConfig bounds the external merge sort's memory use.
type SorterConfig struct {
	ItemsInMemory int `yaml:"items_in_memory" json:"items_in_memory" mapstructure:"items_in_memory"`
	BlockSize     int `yaml:"block_size" json:"block_size" mapstructure:"block_size"`
}

// ConsolidationConfig tunes consolidation passes. MaxChunksToConsolidate
// caps how many chunks one pass merges; Threshold and IntervalSeconds are
// loaded but no consolidation pass reads them.
type ConsolidationConfig struct {
	Threshold              int `yaml:"threshold" json:"threshold"`
	MaxChunksToConsolidate int `yaml:"max_chunks_to_consolidate" json:"max_chunks_to_consolidate" mapstructure:"max_chunks_to_consolidate"`
	IntervalSeconds        int `yaml:"interval_seconds" json:"interval_seconds" mapstructure:"interval_seconds"`
}

// ServerConfig configures the optional query façade.
type ServerConfig struct {
	BindAddress string `yaml:"bind_address" json:"bind_address" mapstructure:"bind_address"`
}

var (
	cfg     *Config
	cfgOnce sync.Once
)

// Load reads configuration from configFile (or the default search path if
// configFile is empty), applying CUBE-prefixed environment overrides, and
// stores the result as the process-wide singleton returned by Get.
func Load(configFile string) error {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		viper.AddConfigPath(filepath.Join(home, ".cubectl"))
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("CUBE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("config: reading config: %w", err)
		}
	}

	if cfg == nil {
		cfg = &Config{}
	}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("config: unmarshalling config: %w", err)
	}
	return nil
}

// Get returns the process-wide configuration, loading defaults on first use
// if Load was never called.
func Get() *Config {
	cfgOnce.Do(func() {
		if cfg == nil {
			if err := Load(""); err != nil {
				cfg = defaultConfig()
			}
		}
	})
	return cfg
}

func setDefaults() {
	viper.SetDefault("storage.backend", "file")
	viper.SetDefault("storage.path", "./data/chunks")

	viper.SetDefault("metadata.backend", "memory")

	viper.SetDefault("sorter.items_in_memory", 1<<20)
	viper.SetDefault("sorter.block_size", 1<<16)

	viper.SetDefault("consolidation.threshold", 8)
	viper.SetDefault("consolidation.max_chunks_to_consolidate", 32)
	viper.SetDefault("consolidation.interval_seconds", 30)

	viper.SetDefault("server.bind_address", "")
}

func defaultConfig() *Config {
	return &Config{
		Storage:  StorageConfig{Backend: "file", Path: "./data/chunks"},
		Metadata: MetadataConfig{Backend: "memory"},
		Sorter:   SorterConfig{ItemsInMemory: 1 << 20, BlockSize: 1 << 16},
		Consolidation: ConsolidationConfig{
			Threshold:              8,
			MaxChunksToConsolidate: 32,
			IntervalSeconds:        30,
		},
	}
}

// Reset clears the singleton so a subsequent Get reloads from scratch.
// Test-hook teardown, mirroring internal/buf.Pool.Clear's precedent for
// process-wide mutable state.
func Reset() {
	cfg = nil
	cfgOnce = sync.Once{}
}
