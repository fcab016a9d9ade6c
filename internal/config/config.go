// Package config loads the optional settings file and carries the tunable
// parameters of a run. Everything here has a safe default; the file and the
// CLI flags only override.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration for YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalText parses a textual duration, accepting empty strings.
func (d *Duration) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = dur
	return nil
}

// MarshalText renders the duration using time.Duration formatting.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// PortRange bounds the dev-server ports eligible for candidacy.
type PortRange struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// ParsePortRange reads the "min-max" flag form.
func ParsePortRange(s string) (PortRange, error) {
	lo, hi, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return PortRange{}, fmt.Errorf("port range %q: expected min-max", s)
	}
	minPort, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return PortRange{}, fmt.Errorf("port range %q: %w", s, err)
	}
	maxPort, err := strconv.Atoi(strings.TrimSpace(hi))
	if err != nil {
		return PortRange{}, fmt.Errorf("port range %q: %w", s, err)
	}
	return PortRange{Min: minPort, Max: maxPort}, nil
}

func (p PortRange) String() string {
	return fmt.Sprintf("%d-%d", p.Min, p.Max)
}

// Settings mirrors the settings file structure.
type Settings struct {
	// MemoryThresholdMB is the resident size above which an otherwise
	// unmatched process becomes a termination candidate.
	MemoryThresholdMB int `yaml:"memoryThresholdMB"`
	// PortRange bounds dev-server candidacy.
	PortRange PortRange `yaml:"portRange"`
	// GraceWindow is how long a graceful signal gets before escalation is
	// offered.
	GraceWindow Duration `yaml:"graceWindow"`
	// ScanBudget bounds process enumeration.
	ScanBudget Duration `yaml:"scanBudget"`
	// ProtectedPatterns merge into the protected tier. They can never
	// promote anything out of the untouchable tier.
	ProtectedPatterns []string `yaml:"protectedPatterns"`
	// CheckpointDir holds checkpoint artifacts and relaunch logs.
	CheckpointDir string `yaml:"checkpointDir"`
}

// Default returns the built-in settings.
func Default() Settings {
	var s Settings
	s.ApplyDefaults()
	return s
}

// ApplyDefaults fills any unset field.
func (s *Settings) ApplyDefaults() {
	if s.MemoryThresholdMB <= 0 {
		s.MemoryThresholdMB = 500
	}
	if s.PortRange.Min == 0 && s.PortRange.Max == 0 {
		s.PortRange = PortRange{Min: 3000, Max: 9999}
	}
	if s.GraceWindow.Duration <= 0 {
		s.GraceWindow = Duration{Duration: 10 * time.Second}
	}
	if s.ScanBudget.Duration <= 0 {
		s.ScanBudget = Duration{Duration: 5 * time.Second}
	}
	if s.CheckpointDir == "" {
		s.CheckpointDir = defaultCheckpointDir()
	}
}

// Validate rejects settings no run should start with.
func (s *Settings) Validate() error {
	if s.MemoryThresholdMB <= 0 {
		return fmt.Errorf("memoryThresholdMB must be positive, got %d", s.MemoryThresholdMB)
	}
	if s.PortRange.Min < 1 || s.PortRange.Max > 65535 || s.PortRange.Min > s.PortRange.Max {
		return fmt.Errorf("portRange %s is not a valid ascending port range", s.PortRange)
	}
	if s.GraceWindow.Duration <= 0 {
		return fmt.Errorf("graceWindow must be positive, got %s", s.GraceWindow.Duration)
	}
	return nil
}

// MemoryThresholdBytes converts the configured threshold for classification.
func (s *Settings) MemoryThresholdBytes() uint64 {
	return uint64(s.MemoryThresholdMB) * 1024 * 1024
}

// Load reads a settings file. A missing path is not an error: the defaults
// apply. Unknown fields are rejected so typos surface instead of silently
// reverting a tunable to its default.
func Load(path string) (Settings, error) {
	var s Settings

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return s, fmt.Errorf("open settings file: %w", err)
		}
		defer f.Close()

		decoder := yaml.NewDecoder(f)
		decoder.KnownFields(true)
		if err := decoder.Decode(&s); err != nil {
			return s, fmt.Errorf("%s: decode: %w", path, err)
		}
	}

	s.ApplyDefaults()
	if err := s.Validate(); err != nil {
		return s, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func defaultCheckpointDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "cull", "checkpoints")
	}
	return filepath.Join(home, ".cull", "checkpoints")
}
