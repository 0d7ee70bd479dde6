package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Command describes an external executable and its argument template.
type Command struct {
	Path string   `yaml:"path" validate:"required"`
	Args []string `yaml:"args"`
}

// Config holds all configurable fuzzherd settings. A nil IntentionalCap or
// GracePeriod is unset; an explicit zero is kept through a merge.
type Config struct {
	SamplesDir       string         `yaml:"samples_dir" validate:"required"`
	OutputDir        string         `yaml:"output_dir" validate:"required"`
	Target           Command        `yaml:"target"`
	Mutator          Command        `yaml:"mutator"`
	MutantsPerSample int            `yaml:"mutants_per_sample" validate:"min=1"`
	Intensity        float64        `yaml:"intensity" validate:"gt=0,lte=1"`
	Timeout          time.Duration  `yaml:"timeout" validate:"gt=0"`
	IntentionalCodes []int          `yaml:"intentional_codes"`
	IntentionalCap   *int           `yaml:"intentional_cap,omitempty" validate:"omitempty,min=0"`
	SignalOutcome    string         `yaml:"signal_outcome" validate:"oneof=crash intentional"` // "crash" | "intentional"
	SnapshotInterval time.Duration  `yaml:"snapshot_interval" validate:"gt=0"`
	DisplayEvery     int            `yaml:"display_every" validate:"min=1"`
	KeepMutants      bool           `yaml:"keep_mutants"`
	GracePeriod      *time.Duration `yaml:"grace_period,omitempty" validate:"omitempty,gte=0"`
	Multiplexer      string         `yaml:"multiplexer" validate:"oneof=auto tmux detached"`
	MetricsAddr      string         `yaml:"metrics_addr"`
	LogLevel         string         `yaml:"log_level" validate:"oneof=debug info warn error"`
}

// Defaults returns sensible default configuration values.
func Defaults() Config {
	return Config{
		SamplesDir: "samples",
		OutputDir:  "out",
		Target:     Command{Args: []string{"{input}"}},
		Mutator: Command{
			Path: "zzuf",
			Args: []string{"-r", "{intensity}", "-s", "{seed}"},
		},
		MutantsPerSample: 1000,
		Intensity:        0.004,
		Timeout:          2 * time.Second,
		IntentionalCodes: []int{},
		IntentionalCap:   ptr(5),
		SignalOutcome:    "crash",
		SnapshotInterval: 5 * time.Minute,
		DisplayEvery:     100,
		GracePeriod:      ptr(3 * time.Second),
		Multiplexer:      "auto",
		LogLevel:         "info",
	}
}

// GlobalPath returns the location of the user-wide config file.
func GlobalPath() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "fuzzherd", "config.yaml"), nil
}

// ProjectFile is the per-directory config file name.
const ProjectFile = ".fuzzherd.yaml"

// LoadGlobal reads the global config file.
// Returns defaults if the file is absent.
func LoadGlobal() (*Config, error) {
	path, err := GlobalPath()
	if err != nil {
		return nil, err
	}
	return loadFile(path, true)
}

// LoadProject reads path, or .fuzzherd.yaml in the working directory when path
// is empty. Returns nil (no error) if the default file is absent.
func LoadProject(path string) (*Config, error) {
	if path == "" {
		return loadFile(ProjectFile, false)
	}
	cfg, err := loadFile(path, false)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, &Error{Reason: "config file " + path + " not found", Err: os.ErrNotExist}
	}
	return cfg, nil
}

// loadFile reads and parses a YAML config file at path.
// If returnDefaults is true, returns defaults when the file is absent.
// If returnDefaults is false, returns nil when the file is absent.
func loadFile(path string, returnDefaults bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if returnDefaults {
				d := Defaults()
				return &d, nil
			}
			return nil, nil
		}
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &cfg, nil
}

// Save writes cfg as YAML to path, creating parent directories.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Merge combines global and project configs, with project taking precedence.
// Missing keys fall back to global, then defaults. KeepMutants is enabled if
// either layer enables it.
func Merge(global, project *Config) Config {
	result := Defaults()
	apply(&result, global)
	apply(&result, project)
	return result
}

func apply(dst, src *Config) {
	if src == nil {
		return
	}
	if src.SamplesDir != "" {
		dst.SamplesDir = src.SamplesDir
	}
	if src.OutputDir != "" {
		dst.OutputDir = src.OutputDir
	}
	if src.Target.Path != "" {
		dst.Target.Path = src.Target.Path
	}
	if len(src.Target.Args) > 0 {
		dst.Target.Args = src.Target.Args
	}
	if src.Mutator.Path != "" {
		dst.Mutator.Path = src.Mutator.Path
	}
	if len(src.Mutator.Args) > 0 {
		dst.Mutator.Args = src.Mutator.Args
	}
	if src.MutantsPerSample != 0 {
		dst.MutantsPerSample = src.MutantsPerSample
	}
	if src.Intensity != 0 {
		dst.Intensity = src.Intensity
	}
	if src.Timeout != 0 {
		dst.Timeout = src.Timeout
	}
	if len(src.IntentionalCodes) > 0 {
		dst.IntentionalCodes = src.IntentionalCodes
	}
	if src.IntentionalCap != nil {
		dst.IntentionalCap = src.IntentionalCap
	}
	if src.SignalOutcome != "" {
		dst.SignalOutcome = src.SignalOutcome
	}
	if src.SnapshotInterval != 0 {
		dst.SnapshotInterval = src.SnapshotInterval
	}
	if src.DisplayEvery != 0 {
		dst.DisplayEvery = src.DisplayEvery
	}
	if src.KeepMutants {
		dst.KeepMutants = true
	}
	if src.GracePeriod != nil {
		dst.GracePeriod = src.GracePeriod
	}
	if src.Multiplexer != "" {
		dst.Multiplexer = src.Multiplexer
	}
	if src.MetricsAddr != "" {
		dst.MetricsAddr = src.MetricsAddr
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
}

// Load reads the global config and the project config (or explicitPath) and
// returns their merge. The result is not validated; commands that start a run
// call Validate themselves.
func Load(explicitPath string) (Config, error) {
	global, err := LoadGlobal()
	if err != nil {
		return Config{}, err
	}
	project, err := LoadProject(explicitPath)
	if err != nil {
		return Config{}, err
	}
	return Merge(global, project), nil
}

// RetentionCap is the per-code artifact cap, defaulting when unset.
func (c Config) RetentionCap() int {
	if c.IntentionalCap == nil {
		return *Defaults().IntentionalCap
	}
	return *c.IntentionalCap
}

// Grace is the stop grace period, defaulting when unset.
func (c Config) Grace() time.Duration {
	if c.GracePeriod == nil {
		return *Defaults().GracePeriod
	}
	return *c.GracePeriod
}

func ptr[T any](v T) *T { return &v }

// RecognizedCodes returns the intentional exit codes as a set.
func (c Config) RecognizedCodes() map[int]bool {
	set := make(map[int]bool, len(c.IntentionalCodes))
	for _, code := range c.IntentionalCodes {
		set[code] = true
	}
	return set
}

// ParseError is returned when a config file exists but cannot be parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return "failed to parse config file " + e.Path + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
