package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnsupportedFormat indicates a settings file whose extension is neither
// YAML nor JSON.
var ErrUnsupportedFormat = errors.New("unsupported config file extension")

// FromFile loads a bus settings file. The format follows the extension:
// .yaml and .yml are YAML, .json is JSON. An empty file yields an empty
// Config, so every setting keeps its default.
func FromFile(path string) (Config, error) {
	var parse func([]byte) (Config, error)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		parse = FromYAML
	case ".json":
		parse = FromJSON
	default:
		return Config{}, fmt.Errorf("%s: %w: %q", path, ErrUnsupportedFormat, ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read settings file: %w", err)
	}
	cfg, err := parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// FromYAML parses a YAML settings document. Bus settings live under the
// "eventbus" key; other keys are kept for the application.
func FromYAML(data []byte) (Config, error) {
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	return New(m), nil
}

// FromJSON is FromYAML for JSON documents.
func FromJSON(data []byte) (Config, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return New(nil), nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse json: %w", err)
	}
	return New(m), nil
}
