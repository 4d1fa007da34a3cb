package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"runbox/internal/harness/engine"
	"runbox/pkg/utils/logger"
)

const (
	defaultTimeLimit     = 10 * time.Second
	defaultGraceWindow   = 500 * time.Millisecond
	defaultStreamCap     = 64 * 1024
	defaultDrainTimeout  = 2 * time.Second
	defaultReportTimeout = 5 * time.Second
)

// Duration wraps time.Duration for yaml values like "2s" or "500ms".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration failed: %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration failed: %w", err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the underlying time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// EngineConfig holds launch-engine settings.
type EngineConfig struct {
	HelperPath   string   `yaml:"helperPath"`
	DrainTimeout Duration `yaml:"drainTimeout"`
}

func (c EngineConfig) toEngineConfig() engine.Config {
	return engine.Config{
		HelperPath:   c.HelperPath,
		DrainTimeout: c.DrainTimeout.Std(),
	}
}

// LimitConfig holds default resource ceilings applied when the invocation
// does not set its own.
type LimitConfig struct {
	TimeLimit      Duration `yaml:"timeLimit"`
	GraceWindow    Duration `yaml:"graceWindow"`
	StreamCapBytes int64    `yaml:"streamCapBytes"`
	MemoryMB       int64    `yaml:"memoryMB"`
	OutputMB       int64    `yaml:"outputMB"`
	PIDs           int64    `yaml:"pids"`
}

// ReportConfig holds result emission settings.
type ReportConfig struct {
	Endpoint string   `yaml:"endpoint"`
	Timeout  Duration `yaml:"timeout"`
	SpoolDir string   `yaml:"spoolDir"`
}

// AppConfig is the root configuration document.
type AppConfig struct {
	Logger logger.Config `yaml:"logger"`
	Engine EngineConfig  `yaml:"engine"`
	Limits LimitConfig   `yaml:"limits"`
	Report ReportConfig  `yaml:"report"`
}

func defaultAppConfig() AppConfig {
	return AppConfig{
		Logger: logger.Config{Level: "info", Format: "json"},
		Engine: EngineConfig{
			HelperPath:   "runbox-init",
			DrainTimeout: Duration(defaultDrainTimeout),
		},
		Limits: LimitConfig{
			TimeLimit:      Duration(defaultTimeLimit),
			GraceWindow:    Duration(defaultGraceWindow),
			StreamCapBytes: defaultStreamCap,
		},
		Report: ReportConfig{Timeout: Duration(defaultReportTimeout)},
	}
}

// loadAppConfig reads the yaml config file, falling back to defaults when
// no path is given.
func loadAppConfig(path string) (AppConfig, error) {
	cfg := defaultAppConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return AppConfig{}, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("parse config file: %w", err)
	}
	if cfg.Limits.TimeLimit <= 0 {
		cfg.Limits.TimeLimit = Duration(defaultTimeLimit)
	}
	if cfg.Limits.GraceWindow <= 0 {
		cfg.Limits.GraceWindow = Duration(defaultGraceWindow)
	}
	if cfg.Limits.StreamCapBytes <= 0 {
		cfg.Limits.StreamCapBytes = defaultStreamCap
	}
	if cfg.Engine.HelperPath == "" {
		cfg.Engine.HelperPath = "runbox-init"
	}
	return cfg, nil
}
