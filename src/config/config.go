// Package config loads the YAML configuration for the sample
// pagefilecli program, following the pack's idiom for a storage-engine
// embedder (tuannm99-novasql's internal/config.go): a viper.Viper
// reading a YAML file into a mapstructure-tagged struct. The
// storage/bufferpool library itself takes no configuration surface
// (spec.md §6); this lives entirely in the sample program.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config describes a single page file and the pool that should be
// opened over it.
type Config struct {
	Storage struct {
		File     string `mapstructure:"file"`
		PageSize int    `mapstructure:"page_size"`
	} `mapstructure:"storage"`
	Pool struct {
		Capacity int    `mapstructure:"capacity"`
		Strategy string `mapstructure:"strategy"`
	} `mapstructure:"pool"`
}

// Load reads and unmarshals the YAML file at path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("pool.capacity", 16)
	v.SetDefault("pool.strategy", "lru")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Storage.File == "" {
		return nil, fmt.Errorf("config: storage.file is required")
	}
	return &cfg, nil
}
