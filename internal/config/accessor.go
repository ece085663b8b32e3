package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// tree renders cfg as the generic JSON document that dot paths address.
// Paths use the JSON field names, e.g. "oracle.temperature".
func tree(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func fromTree(m map[string]any, cfg *Config) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, cfg)
}

// GetByPath returns the value at a dot path such as "providers.openai.apiBase".
func GetByPath(cfg *Config, path string) (any, error) {
	m, err := tree(cfg)
	if err != nil {
		return nil, err
	}
	var cur any = m
	for _, key := range strings.Split(path, ".") {
		switch v := cur.(type) {
		case map[string]any:
			next, ok := v[key]
			if !ok {
				return nil, fmt.Errorf("key not found: %s", path)
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, fmt.Errorf("invalid array index: %s", key)
			}
			cur = v[idx]
		default:
			return nil, fmt.Errorf("cannot traverse into %T at %s", cur, key)
		}
	}
	return cur, nil
}

// SetByPath sets the value at a dot path. String values that read as a
// bool or number are stored as one. Missing intermediate maps are created,
// which is how a new provider entry is added.
func SetByPath(cfg *Config, path string, value any) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("empty path")
	}
	m, err := tree(cfg)
	if err != nil {
		return err
	}

	parts := strings.Split(path, ".")
	parent := m
	for _, key := range parts[:len(parts)-1] {
		switch child := parent[key].(type) {
		case map[string]any:
			parent = child
		case nil:
			next := map[string]any{}
			parent[key] = next
			parent = next
		default:
			return fmt.Errorf("cannot traverse into %T at %s", child, key)
		}
	}
	parent[parts[len(parts)-1]] = parseValue(value)
	return fromTree(m, cfg)
}

func parseValue(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	if b, err := strconv.ParseBool(s); err == nil && (s == "true" || s == "false") {
		return b
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// Setting is one leaf of the config document.
type Setting struct {
	Path  string
	Value any
}

// ListPaths returns every settable leaf sorted by path, with secrets masked.
func ListPaths(cfg *Config) []Setting {
	m, err := tree(Sanitize(cfg))
	if err != nil {
		return nil
	}
	var out []Setting
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, v := range m {
			path := k
			if prefix != "" {
				path = prefix + "." + k
			}
			if child, ok := v.(map[string]any); ok && len(child) > 0 {
				walk(path, child)
				continue
			}
			out = append(out, Setting{Path: path, Value: v})
		}
	}
	walk("", m)
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Sanitize returns a copy of cfg safe to print. Fields named like
// credentials are masked, and so is any occurrence of a secret-looking
// environment variable's value, which covers keys loaded from .env and
// substituted through ${VAR}.
func Sanitize(cfg *Config) *Config {
	m, err := tree(cfg)
	if err != nil {
		return cfg
	}
	maskTree(m, secretEnvValues())

	out := &Config{}
	if err := fromTree(m, out); err != nil {
		return cfg
	}
	return out
}

func maskTree(m map[string]any, envSecrets []string) {
	for k, v := range m {
		switch val := v.(type) {
		case map[string]any:
			maskTree(val, envSecrets)
		case string:
			if val == "" {
				continue
			}
			if isSecretKey(k) {
				m[k] = maskString(val)
				continue
			}
			for _, s := range envSecrets {
				val = strings.ReplaceAll(val, s, maskString(s))
			}
			m[k] = val
		}
	}
}

var secretWords = []string{"apikey", "api_key", "token", "secret", "password"}

func isSecretKey(key string) bool {
	k := strings.ToLower(key)
	for _, w := range secretWords {
		if strings.Contains(k, w) {
			return true
		}
	}
	return false
}

// secretEnvValues lists values of environment variables whose names mark
// them as credentials. Short values are skipped to avoid masking noise.
func secretEnvValues() []string {
	var out []string
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || len(value) < 8 {
			continue
		}
		if isSecretKey(name) {
			out = append(out, value)
		}
	}
	return out
}

// maskString keeps the first and last four characters.
func maskString(s string) string {
	r := []rune(s)
	if len(r) <= 8 {
		return "***"
	}
	return string(r[:4]) + "****" + string(r[len(r)-4:])
}
