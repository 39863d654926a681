package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FromFile loads configuration from a file, auto-detecting format by extension.
// Supported extensions: .yaml, .yml, .json
func FromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return FromYAML(data)
	case ".json":
		return FromJSON(data)
	default:
		return Config{}, fmt.Errorf("unsupported config file extension: %s", ext)
	}
}

// FromYAML parses YAML data into a Config.
func FromYAML(data []byte) (Config, error) {
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	return New(m), nil
}

// FromJSON parses JSON data into a Config.
func FromJSON(data []byte) (Config, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse json: %w", err)
	}
	return New(m), nil
}

// WithEnv returns a copy of c overlaid with environment variables named
// PREFIX_SECTION_KEY. SECTION selects the top-level map and the remainder,
// lowercased, is the key within it: TASKROUTER_AGENT_BASE_URL sets
// agent.base_url. environ is in os.Environ form.
func (c Config) WithEnv(prefix string, environ []string) Config {
	out := cloneMap(c.data)
	prefix = strings.ToUpper(prefix) + "_"

	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, prefix) {
			continue
		}
		section, key, ok := strings.Cut(strings.TrimPrefix(name, prefix), "_")
		if !ok || section == "" || key == "" {
			continue
		}
		section = strings.ToLower(section)
		key = strings.ToLower(key)

		sub, ok := asMap(out[section])
		if !ok {
			sub = make(map[string]any)
		}
		sub[key] = value
		out[section] = sub
	}
	return New(out)
}

// Set returns a copy of c with the dotted path set to value.
func (c Config) Set(path string, value any) Config {
	out := cloneMap(c.data)
	parts := strings.Split(path, ".")
	cur := out
	for _, part := range parts[:len(parts)-1] {
		next, ok := asMap(cur[part])
		if !ok {
			next = make(map[string]any)
		}
		cur[part] = next
		cur = next
	}
	cur[parts[len(parts)-1]] = value
	return New(out)
}

// cloneMap deep-copies nested maps; leaf values are shared.
func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if sub, ok := asMap(v); ok {
			out[k] = cloneMap(sub)
			continue
		}
		out[k] = v
	}
	return out
}
