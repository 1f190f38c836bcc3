// Package config loads shaderdebug.toml, the file that describes a
// debugging session for the CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"shaderdebug/internal/value"
)

// FileName is the name FindConfig looks for.
const FileName = "shaderdebug.toml"

// Config is the decoded form of shaderdebug.toml. Relative paths are
// resolved against Dir.
type Config struct {
	Session SessionConfig `toml:"session"`
	Trace   TraceConfig   `toml:"trace"`
	Log     LogConfig     `toml:"log"`
	Inputs  []InputConfig `toml:"input"`

	// Dir is the directory of the file the config was loaded from.
	Dir string `toml:"-"`
}

type SessionConfig struct {
	// Program is a msgpack-encoded program.
	Program string `toml:"program"`
	// Fixture is a resource fixture file; empty means no resources.
	Fixture   string    `toml:"fixture"`
	Lane      int       `toml:"lane"`
	Lanes     int       `toml:"lanes"`
	WaveSize  int       `toml:"wave_size"`
	GroupID   [3]uint32 `toml:"group_id"`
	Batch     int       `toml:"batch"`
	CacheSize int       `toml:"cache_size"`
	Helpers   []int     `toml:"helpers"`
}

type TraceConfig struct {
	Level     string   `toml:"level"`
	Mode      string   `toml:"mode"`
	Format    string   `toml:"format"`
	Output    string   `toml:"output"`
	RingSize  int      `toml:"ring_size"`
	Heartbeat Duration `toml:"heartbeat"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// InputConfig sets one input signature element of one lane. Exactly one of
// Floats, Words and Ints is used.
type InputConfig struct {
	Lane    int       `toml:"lane"`
	Element int       `toml:"element"`
	Floats  []float32 `toml:"floats"`
	Words   []uint32  `toml:"words"`
	Ints    []int32   `toml:"ints"`
}

// Value converts the input to a Value.
func (in InputConfig) Value() value.Value {
	switch {
	case len(in.Floats) > 0:
		return value.FromF32("", in.Floats...)
	case len(in.Ints) > 0:
		return value.FromS32("", in.Ints...)
	default:
		return value.FromU32("", in.Words...)
	}
}

// Duration is a time.Duration written as a string such as "2s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration used when no file is found.
func Default() Config {
	return Config{
		Session: SessionConfig{Lanes: 1},
		Trace:   TraceConfig{Level: "off", Mode: "stream", Format: "auto"},
		Log:     LogConfig{Level: "warn"},
		Dir:     ".",
	}
}

// FindConfig walks up from startDir to locate shaderdebug.toml.
func FindConfig(startDir string) (path string, ok bool, err error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Load reads path over Default and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	cfg.Dir = filepath.Dir(path)
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Discover loads the nearest shaderdebug.toml above startDir, or Default
// when there is none.
func Discover(startDir string) (Config, string, error) {
	path, ok, err := FindConfig(startDir)
	if err != nil {
		return Config{}, "", err
	}
	if !ok {
		return Default(), "", nil
	}
	cfg, err := Load(path)
	return cfg, path, err
}

// Validate reports every inconsistent setting at once.
func (c *Config) Validate() error {
	var errs []error
	s := &c.Session
	if s.Lanes <= 0 {
		errs = append(errs, fmt.Errorf("[session].lanes must be positive, got %d", s.Lanes))
	}
	if s.Lane < 0 || (s.Lanes > 0 && s.Lane >= s.Lanes) {
		errs = append(errs, fmt.Errorf("[session].lane %d outside [0, %d)", s.Lane, s.Lanes))
	}
	if s.WaveSize < 0 {
		errs = append(errs, fmt.Errorf("[session].wave_size must not be negative"))
	}
	if s.Batch < 0 {
		errs = append(errs, fmt.Errorf("[session].batch must not be negative"))
	}
	for _, h := range s.Helpers {
		if h < 0 || h >= s.Lanes {
			errs = append(errs, fmt.Errorf("[session].helpers: lane %d outside the group", h))
		}
	}
	for i, in := range c.Inputs {
		if in.Lane < 0 || in.Lane >= s.Lanes {
			errs = append(errs, fmt.Errorf("input %d: lane %d outside the group", i, in.Lane))
		}
		n := 0
		for _, l := range []int{len(in.Floats), len(in.Words), len(in.Ints)} {
			if l > 0 {
				n++
			}
		}
		if n != 1 {
			errs = append(errs, fmt.Errorf("input %d: exactly one of floats, words and ints must be set", i))
		}
	}
	return errors.Join(errs...)
}

// Resolve returns p relative to the config directory unless it is absolute
// or empty.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Dir, p)
}

// LaneInputs groups the configured inputs by lane: out[lane][element].
func (c *Config) LaneInputs() [][]value.Value {
	if len(c.Inputs) == 0 {
		return nil
	}
	out := make([][]value.Value, c.Session.Lanes)
	for _, in := range c.Inputs {
		if in.Lane < 0 || in.Lane >= len(out) || in.Element < 0 {
			continue
		}
		for len(out[in.Lane]) <= in.Element {
			out[in.Lane] = append(out[in.Lane], value.Value{})
		}
		out[in.Lane][in.Element] = in.Value()
	}
	return out
}
