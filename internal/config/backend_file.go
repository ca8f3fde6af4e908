package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cast"
)

const appDir = "offerjourney"

// xdgDir resolves $env/offerjourney, falling back to ~/<home...>/offerjourney
// when env is unset.
func xdgDir(env string, home ...string) string {
	if dir := os.Getenv(env); dir != "" {
		return filepath.Join(dir, appDir)
	}
	h, err := os.UserHomeDir()
	if err != nil {
		return appDir
	}
	return filepath.Join(append(append([]string{h}, home...), appDir)...)
}

func defaultDataDir() string {
	return xdgDir("XDG_DATA_HOME", ".local", "share")
}

// ConfigFilePath is where Load and SetKey read and write the config file.
func ConfigFilePath() string {
	return configFilePath()
}

func configFilePath() string {
	return filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config"), "config.json")
}

// configFile is the JSON config file: one flat object keyed by dotted
// config key, e.g. {"server.port": 4100, "source.kind": "mysql"}.
// Secret keys are never read from or written to it, so a DSN or token
// pasted into the file by hand is dropped with a warning.
type configFile struct {
	path   string
	values map[string]any
}

func openConfigFile(path string) *configFile {
	f := &configFile{path: path, values: make(map[string]any)}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("config file unreadable, using defaults", "path", path, "error", err)
		}
		return f
	}
	if err := json.Unmarshal(data, &f.values); err != nil {
		slog.Warn("config file is not valid JSON, using defaults", "path", path, "error", err)
		f.values = make(map[string]any)
		return f
	}
	for key := range f.values {
		if s, ok := specFor(key); ok && s.secret {
			slog.Warn("ignoring secret in config file", "key", key, "env", s.env)
			delete(f.values, key)
		}
	}
	return f
}

func specFor(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

func (f *configFile) GetString(key string) (string, bool, error) {
	v, ok := f.values[key]
	if !ok {
		return "", false, nil
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return "", true, fmt.Errorf("%s: %w", key, err)
	}
	return s, true, nil
}

// GetInt accepts JSON numbers and decimal strings. Fractions and values
// outside the int range are errors rather than being truncated.
func (f *configFile) GetInt(key string) (int, bool, error) {
	v, ok := f.values[key]
	if !ok {
		return 0, false, nil
	}
	switch x := v.(type) {
	case string:
		i, err := strconv.Atoi(x)
		if err != nil {
			return 0, true, fmt.Errorf("invalid integer for %s: %w", key, err)
		}
		return i, true, nil
	case float64:
		if x != math.Trunc(x) || x < math.MinInt || x > math.MaxInt {
			return 0, true, fmt.Errorf("value %v for %s is not a valid integer or is out of range", x, key)
		}
	}
	i, err := cast.ToIntE(v)
	if err != nil {
		return 0, true, fmt.Errorf("invalid type for %s: %w", key, err)
	}
	return i, true, nil
}

func (f *configFile) SetString(key, val string) error { return f.set(key, val) }

func (f *configFile) SetInt(key string, val int) error { return f.set(key, val) }

func (f *configFile) Delete(key string) error {
	delete(f.values, key)
	return f.save()
}

func (f *configFile) set(key string, v any) error {
	if s, ok := specFor(key); ok && s.secret {
		return fmt.Errorf("refusing to write secret %q to %s; use %s", key, f.path, s.env)
	}
	f.values[key] = v
	return f.save()
}

// save replaces the file through a temp file and rename, so a concurrent
// Load never sees half a file.
func (f *configFile) save() error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := json.MarshalIndent(f.values, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".config-*.json")
	if err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("writing config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("replacing %s: %w", f.path, err)
	}
	return nil
}
