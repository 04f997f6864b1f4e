package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the file-shaped configuration. Precedence is flags > env >
// file > defaults; env overrides are applied by LoadEnvOverrides and
// flag overrides by the CLI layer.
type Config struct {
	Storage struct {
		DBPath string `yaml:"db_path"`
	} `yaml:"storage"`
	Chat struct {
		Room        string  `yaml:"room"`
		Username    string  `yaml:"username"`
		ClearOnJoin bool    `yaml:"clear_on_join"`
		RateRPS     float64 `yaml:"rate_rps"`
		RateBurst   int     `yaml:"rate_burst"`
	} `yaml:"chat"`
	Txn struct {
		MaxRetries int `yaml:"max_retries"`
		TimeoutMS  int `yaml:"timeout_ms"`
	} `yaml:"txn"`
	Telemetry struct {
		Addr string `yaml:"addr"`
	} `yaml:"telemetry"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // text|json
	} `yaml:"logging"`
}

// Default returns the built-in configuration.
func Default() *Config {
	var c Config
	c.Storage.DBPath = "./.chatdb"
	c.Txn.MaxRetries = 3
	return &c
}

// Load reads a yaml config file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvOverrides applies CHATDB_* environment overrides onto cfg and
// reports whether any were used.
func LoadEnvOverrides(cfg *Config) bool {
	used := false
	str := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			used = true
			*dst = v
		}
	}
	str("CHATDB_DB_PATH", &cfg.Storage.DBPath)
	str("CHATDB_ROOM", &cfg.Chat.Room)
	str("CHATDB_USERNAME", &cfg.Chat.Username)
	str("CHATDB_TELEMETRY_ADDR", &cfg.Telemetry.Addr)
	str("CHATDB_LOG_LEVEL", &cfg.Logging.Level)
	str("CHATDB_LOG_FORMAT", &cfg.Logging.Format)
	if v := os.Getenv("CHATDB_CLEAR_ON_JOIN"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			used = true
			cfg.Chat.ClearOnJoin = b
		}
	}
	if v := os.Getenv("CHATDB_TXN_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n >= 0 {
			used = true
			cfg.Txn.MaxRetries = n
		}
	}
	if v := os.Getenv("CHATDB_RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && f > 0 {
			used = true
			cfg.Chat.RateRPS = f
		}
	}
	if v := os.Getenv("CHATDB_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			used = true
			cfg.Chat.RateBurst = n
		}
	}
	return used
}

// LoadEffective merges file and env configuration. A missing file when
// explicit is false falls back to defaults; the returned source string
// records where values came from, for the banner.
func LoadEffective(path string, explicit bool) (*Config, string, error) {
	cfg := Default()
	source := "defaults"
	if path != "" {
		loaded, err := Load(path)
		switch {
		case err == nil:
			cfg = loaded
			source = "file:" + path
		case explicit:
			return nil, "", err
		}
	}
	if LoadEnvOverrides(cfg) {
		source += "+env"
	}
	return cfg, source, nil
}
