// Package config provides environment/flag configuration helpers shared by
// the objstored and objhub entrypoints.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LoadDotEnv loads a .env file into the process environment if present. A
// missing file is not an error — it is the common case outside local dev.
func LoadDotEnv(path string) {
	if strings.TrimSpace(path) == "" {
		path = ".env"
	}
	_ = godotenv.Load(path)
}

// GetEnv returns the environment variable's trimmed value, or def if unset/blank.
func GetEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// GetEnvBool parses a boolean environment variable case-insensitively:
// true/1/yes/y yield true, false/0/no/n yield false, and anything else
// (including unset) yields def.
func GetEnvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes", "y":
		return true
	case "false", "0", "no", "n":
		return false
	default:
		return def
	}
}

// GetEnvInt parses an integer environment variable, returning def on error or
// absence.
func GetEnvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// GetEnvDuration parses a duration environment variable (e.g. "30s").
func GetEnvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// ServerConfig is the subset of cmd/objstored configuration that may also be
// supplied via a YAML file (-config flag), layered beneath flags and
// environment variables.
type ServerConfig struct {
	Addr      string `yaml:"addr"`
	DataRoot  string `yaml:"data_root"`
	Storage   string `yaml:"storage"`
	DSN       string `yaml:"dsn"`
	HubURL    string `yaml:"hub_url"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// LoadServerConfigFile reads a YAML configuration file.
func LoadServerConfigFile(path string) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg ServerConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// Coalesce returns the first non-blank string among the candidates, in order.
func Coalesce(candidates ...string) string {
	for _, c := range candidates {
		if strings.TrimSpace(c) != "" {
			return c
		}
	}
	return ""
}
