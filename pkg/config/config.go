package config

// Package config provides a reusable loader for chain-core configuration
// files and environment variables. It is versioned so that applications can
// depend on a stable API contract.
//
// Version: v0.1.0

import (
	"fmt"

	"github.com/spf13/viper"

	"chaincore/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config is the unified configuration for a chain-core node: the nexus's
// validator set and cache policy, the VM's default gas budget and backend
// choice, the storage data directory, and the logging level.
type Config struct {
	Nexus struct {
		// CacheSize selects the storage backend: negative means volatile
		// (in-memory, never touches disk), non-negative selects the
		// durable on-disk backend.
		CacheSize  int      `mapstructure:"cache_size" json:"cache_size"`
		Validators []string `mapstructure:"validators" json:"validators"`
	} `mapstructure:"nexus" json:"nexus"`

	VM struct {
		DefaultGasLimit uint64 `mapstructure:"default_gas_limit" json:"default_gas_limit"`
		// Backend is "light" or "heavy"; scripts select their own backend
		// by their leading bytes regardless of this setting, and nothing in
		// this module reads it.
		Backend string `mapstructure:"backend" json:"backend"`
	} `mapstructure:"vm" json:"vm"`

	Storage struct {
		DataDir string `mapstructure:"data_dir" json:"data_dir"`
	} `mapstructure:"storage" json:"storage"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and returned.
//
// The function uses the provided environment name to merge additional config
// files. If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv() // picks up from .env

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the CHAINCORE_ENV environment
// variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("CHAINCORE_ENV", ""))
}
