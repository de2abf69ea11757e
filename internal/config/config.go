// Package config loads the settings of the cfdcase tools.
//
// Load order:
//  1. built-in defaults
//  2. .env in the working directory (only fills variables not already set)
//  3. the YAML settings file named by the caller or CFDCASE_CONFIG
//  4. CFDCASE_* environment variables
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "CFDCASE_"

var envPaths = []string{".env"}

// Config holds the settings shared by the CLI and the HTTP facade
type Config struct {
	// Executables maps a tool name (blockMesh, simpleFoam, sh, ...) to the
	// executable to run. Tools without an entry are looked up in PATH.
	Executables  map[string]string `yaml:"executables"`
	GraceTimeout time.Duration     `yaml:"grace_timeout"`
	OutputTail   int               `yaml:"output_tail"`
	Log          LogConfig         `yaml:"log"`
	Server       ServerConfig      `yaml:"server"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type ServerConfig struct {
	Listen string `yaml:"listen"`
	// CaseRoot, when set, confines the directories runs may write to
	CaseRoot string `yaml:"case_root"`
	Metrics  bool   `yaml:"metrics"`
}

// Default returns the built-in settings
func Default() *Config {
	return &Config{
		Executables:  map[string]string{},
		GraceTimeout: 10 * time.Second,
		OutputTail:   200,
		Log:          LogConfig{Level: "info", Format: "text"},
		Server:       ServerConfig{Listen: "127.0.0.1:8088", Metrics: true},
	}
}

// Load builds the settings. path may be empty, in which case CFDCASE_CONFIG
// is consulted; a missing default file is not an error.
func Load(path string) (*Config, error) {
	loadDotEnv(envPaths...)

	cfg := Default()
	if path == "" {
		path = os.Getenv(envPrefix + "CONFIG")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv loads the first .env file found
func loadDotEnv(paths ...string) {
	for _, p := range paths {
		if err := godotenv.Load(p); err == nil {
			break
		}
	}
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config file not found: %s", path)
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if c.Executables == nil {
		c.Executables = map[string]string{}
	}
	return nil
}

// applyEnv overrides settings from CFDCASE_* variables.
// CFDCASE_EXECUTABLES takes a comma-separated list of tool=path pairs.
func (c *Config) applyEnv() error {
	if v := getEnv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getEnv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := getEnv("LISTEN"); v != "" {
		c.Server.Listen = v
	}
	if v := getEnv("CASE_ROOT"); v != "" {
		c.Server.CaseRoot = v
	}
	if v := getEnv("METRICS"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sMETRICS: %w", envPrefix, err)
		}
		c.Server.Metrics = enabled
	}
	if v := getEnv("GRACE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %sGRACE_TIMEOUT: %w", envPrefix, err)
		}
		c.GraceTimeout = d
	}
	if v := getEnv("OUTPUT_TAIL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sOUTPUT_TAIL: %w", envPrefix, err)
		}
		c.OutputTail = n
	}
	if v := getEnv("EXECUTABLES"); v != "" {
		for _, pair := range strings.Split(v, ",") {
			pair = strings.TrimSpace(pair)
			if pair == "" {
				continue
			}
			tool, path, ok := strings.Cut(pair, "=")
			if !ok || tool == "" {
				return fmt.Errorf("invalid %sEXECUTABLES entry %q: want tool=path", envPrefix, pair)
			}
			c.Executables[strings.TrimSpace(tool)] = strings.TrimSpace(path)
		}
	}
	return nil
}

// Validate checks the settings for values the tools cannot work with
func (c *Config) Validate() error {
	var problems []string
	if c.GraceTimeout <= 0 {
		problems = append(problems, "grace_timeout must be positive")
	}
	if c.OutputTail <= 0 {
		problems = append(problems, "output_tail must be positive")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("unknown log level %q", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("unknown log format %q", c.Log.Format))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func getEnv(key string) string {
	return strings.TrimSpace(os.Getenv(envPrefix + key))
}
