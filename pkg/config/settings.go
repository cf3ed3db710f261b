// Package config reads flat key/value settings from key=value or TOML files
// and turns them into typed startup configuration.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrUnreadable is wrapped by Read when the source could not be opened or read.
var ErrUnreadable = errors.New("config source unreadable")

// ErrMissingKey is matched by errors.Is for every *MissingKeyError.
var ErrMissingKey = errors.New("missing config key")

// MissingKeyError reports a required key absent from Settings.
type MissingKeyError struct {
	Key string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("missing required config key %q", e.Key)
}

func (e *MissingKeyError) Is(target error) bool {
	return target == ErrMissingKey
}

// InvalidValueError reports a value that could not be converted to the expected type.
type InvalidValueError struct {
	Key   string
	Value string
	Err   error
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid value %q for config key %q: %v", e.Value, e.Key, e.Err)
}

func (e *InvalidValueError) Unwrap() error {
	return e.Err
}

// Settings is a flat mapping of config keys to raw string values.
type Settings map[string]string

// Read loads settings from path. Files ending in .toml are decoded as TOML;
// anything else is parsed as key=value lines. When the file cannot be read,
// Read returns an empty, usable Settings together with an error wrapping
// ErrUnreadable, so callers may carry on with defaults.
func Read(path string) (Settings, error) {
	f, err := os.Open(path)
	if err != nil {
		return Settings{}, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		s, err := ParseTOML(f)
		if err != nil {
			return Settings{}, fmt.Errorf("parse %s: %w", path, err)
		}
		return s, nil
	}

	s, err := Parse(f)
	if err != nil {
		return Settings{}, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	return s, nil
}

// Parse reads key=value lines. Blank lines and lines starting with '#' are
// ignored, lines without '=' are skipped, and whitespace around keys and
// values is trimmed. The line is split on the first '='. Later keys win.
func Parse(r io.Reader) (Settings, error) {
	settings := Settings{}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		settings[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	if err := scanner.Err(); err != nil {
		return Settings{}, err
	}

	return settings, nil
}

// Get returns the value for key and whether it was present.
func (s Settings) Get(key string) (string, bool) {
	v, ok := s[key]
	return v, ok
}

// GetOr returns the value for key, or fallback when the key is absent or empty.
func (s Settings) GetOr(key, fallback string) string {
	if v, ok := s[key]; ok && v != "" {
		return v
	}
	return fallback
}

// Require returns the value for key, or a *MissingKeyError when it is absent
// or empty.
func (s Settings) Require(key string) (string, error) {
	v, ok := s[key]
	if !ok || v == "" {
		return "", &MissingKeyError{Key: key}
	}
	return v, nil
}

// Float returns key parsed as a float64, or fallback when absent.
func (s Settings) Float(key string, fallback float64) (float64, error) {
	v, ok := s[key]
	if !ok || v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, &InvalidValueError{Key: key, Value: v, Err: err}
	}
	return f, nil
}

// Int returns key parsed as an int, or fallback when absent.
func (s Settings) Int(key string, fallback int) (int, error) {
	v, ok := s[key]
	if !ok || v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &InvalidValueError{Key: key, Value: v, Err: err}
	}
	return n, nil
}

// Duration returns key parsed with time.ParseDuration, or fallback when absent.
// A bare integer is read as seconds.
func (s Settings) Duration(key string, fallback time.Duration) (time.Duration, error) {
	v, ok := s[key]
	if !ok || v == "" {
		return fallback, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, &InvalidValueError{Key: key, Value: v, Err: err}
	}
	return d, nil
}

// Keys returns the keys in sorted order.
func (s Settings) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Merge returns a copy of s with every key of other applied on top.
func (s Settings) Merge(other Settings) Settings {
	out := make(Settings, len(s)+len(other))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}
