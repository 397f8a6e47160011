// Package config loads the YAML configuration file, validated and
// defaulted by an embedded CUE schema.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/mestouches/internal/record"
)

//go:embed config.cue
var schemaSource string

// FileName is the configuration file looked up in the data directory when
// no --config flag is given.
const FileName = "config.yaml"

// Config is the decoded configuration. Durations are kept as strings and
// parsed by the accessor methods; the schema guarantees they parse.
type Config struct {
	DataDir           string        `json:"data_dir" yaml:"data_dir"`
	AutosaveEvery     int           `json:"autosave_every" yaml:"autosave_every"`
	StrictPointerLoad bool          `json:"strict_pointer_load" yaml:"strict_pointer_load"`
	LatencyBudget     string        `json:"latency_budget" yaml:"latency_budget"`
	Capture           CaptureConfig `json:"capture" yaml:"capture"`
	Relay             RelayConfig   `json:"relay" yaml:"relay"`
	Privacy           PrivacyConfig `json:"privacy" yaml:"privacy"`
	Screens           ScreensConfig `json:"screens" yaml:"screens"`
	Listen            string        `json:"listen" yaml:"listen"`
	Log               LogConfig     `json:"log" yaml:"log"`
}

// CaptureConfig selects which hooks run. Replay names a JSON-lines script
// to play instead of native hooks.
type CaptureConfig struct {
	Keyboard bool   `json:"keyboard" yaml:"keyboard"`
	Pointer  bool   `json:"pointer" yaml:"pointer"`
	Windows  bool   `json:"windows" yaml:"windows"`
	Replay   string `json:"replay" yaml:"replay"`
}

// RelayConfig configures the cross-process window relay.
type RelayConfig struct {
	Enabled      bool   `json:"enabled" yaml:"enabled"`
	Endpoint     string `json:"endpoint" yaml:"endpoint"`
	WordSize     int    `json:"word_size" yaml:"word_size"`
	PollInterval string `json:"poll_interval" yaml:"poll_interval"`
	WakeTimeout  string `json:"wake_timeout" yaml:"wake_timeout"`
}

// PrivacyConfig lists subjects never recorded.
type PrivacyConfig struct {
	ExcludeSubjects []string `json:"exclude_subjects" yaml:"exclude_subjects"`
}

// ScreensConfig is the static monitor layout used where the platform
// cannot enumerate monitors.
type ScreensConfig struct {
	OriginX  int32           `json:"origin_x" yaml:"origin_x"`
	OriginY  int32           `json:"origin_y" yaml:"origin_y"`
	Monitors []MonitorConfig `json:"monitors" yaml:"monitors"`
}

// MonitorConfig is one static monitor.
type MonitorConfig struct {
	Hash   string `json:"hash" yaml:"hash"`
	X      uint32 `json:"x" yaml:"x"`
	Y      uint32 `json:"y" yaml:"y"`
	Width  uint32 `json:"width" yaml:"width"`
	Height uint32 `json:"height" yaml:"height"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// ErrInvalid wraps every schema violation.
var ErrInvalid = errors.New("invalid configuration")

// Default returns the schema defaults.
func Default() *Config {
	cfg, err := Parse(nil)
	if err != nil {
		panic(fmt.Sprintf("config: embedded schema rejects empty config: %v", err))
	}
	return cfg
}

// Load reads and validates the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse validates YAML data against the schema and fills in defaults.
// Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if raw == nil {
		raw = map[string]any{}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource).LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	v := schema.Unify(ctx.Encode(raw))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return &cfg, nil
}

// Encode renders cfg as YAML.
func Encode(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// WriteDefault writes the default configuration to path, refusing to
// overwrite an existing file.
func WriteDefault(path string) error {
	data, err := Encode(Default())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// DefaultDataDir returns the per-user directory holding the store files.
func DefaultDataDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "mestouches"), nil
}

// Latency returns the capture callback budget.
func (c *Config) Latency() time.Duration { return duration(c.LatencyBudget) }

// Poll returns the relay fallback poll interval.
func (r RelayConfig) Poll() time.Duration { return duration(r.PollInterval) }

// Wake returns the relay wake-all timeout.
func (r RelayConfig) Wake() time.Duration { return duration(r.WakeTimeout) }

// ScreenSet converts the static layout.
func (s ScreensConfig) ScreenSet() record.ScreenSet {
	set := record.ScreenSet{OriginX: s.OriginX, OriginY: s.OriginY}
	for _, m := range s.Monitors {
		set.Screens = append(set.Screens, record.Screen{
			Hash:   record.Fit(m.Hash, record.HashWidth),
			X:      m.X,
			Y:      m.Y,
			Width:  m.Width,
			Height: m.Height,
		})
	}
	return set
}

// duration parses a schema-validated duration and returns 0 for input
// time.ParseDuration rejects. "us" and "µs" are both accepted.
func duration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
