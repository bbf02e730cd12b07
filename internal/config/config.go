// Package config is the flat dotted-path key/value store the rest of the
// pipeline reads settings from. It is the external collaborator spec.md
// assumes exists; this package gives it a concrete, YAML-backed realization
// so the module is runnable end to end.
package config

import (
	"os"
	"strconv"

	"boxscan/internal/logger"

	"gopkg.in/yaml.v3"
)

// Store is a hot-reread-per-call dotted-path key/value store. Values are
// stored as a generic tree decoded from YAML; typed getters fall back to
// the supplied default (and log a warning) when a key is missing or the
// wrong type.
type Store struct {
	path string
	raw  map[string]interface{}
}

// Load reads path as YAML into a Store. A missing file is not an error —
// Load returns an empty Store so every Get* falls back to its default,
// matching spec.md §7's "config missing/wrong type -> documented default".
func Load(path string) (*Store, error) {
	s := &Store{path: path, raw: map[string]interface{}{}}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn("CONFIG", "no config file at "+path+", using defaults")
			return s, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, &s.raw); err != nil {
		return nil, err
	}
	return s, nil
}

// lookup walks a dotted path ("strategy/min_roi" style, split on '/') into
// the decoded tree.
func (s *Store) lookup(key string) (interface{}, bool) {
	parts := splitPath(key)
	var cur interface{} = s.raw
	for _, p := range parts {
		m, ok := cur.(map[string]interface{})
		if !ok {
			logger.Warn("CONFIG", "key "+key+" is missing, using default")
			return nil, false
		}
		v, ok := m[p]
		if !ok {
			logger.Warn("CONFIG", "key "+key+" is missing, using default")
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func splitPath(key string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(key); i++ {
		if key[i] == '/' {
			parts = append(parts, key[start:i])
			start = i + 1
		}
	}
	parts = append(parts, key[start:])
	return parts
}

// String returns the string at key, or def if missing/wrong type.
func (s *Store) String(key, def string) string {
	v, ok := s.lookup(key)
	if !ok {
		return def
	}
	str, ok := v.(string)
	if !ok {
		logger.Warn("CONFIG", "key "+key+" is not a string, using default")
		return def
	}
	return str
}

// Bool returns the bool at key, or def if missing/wrong type.
func (s *Store) Bool(key string, def bool) bool {
	v, ok := s.lookup(key)
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		logger.Warn("CONFIG", "key "+key+" is not a bool, using default")
		return def
	}
	return b
}

// Int returns the int at key, or def if missing/wrong type.
func (s *Store) Int(key string, def int) int {
	v, ok := s.lookup(key)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		if parsed, err := strconv.Atoi(n); err == nil {
			return parsed
		}
	}
	logger.Warn("CONFIG", "key "+key+" is not an int, using default")
	return def
}

// Float returns the float64 at key, or def if missing/wrong type.
func (s *Store) Float(key string, def float64) float64 {
	v, ok := s.lookup(key)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case string:
		if parsed, err := strconv.ParseFloat(n, 64); err == nil {
			return parsed
		}
	}
	logger.Warn("CONFIG", "key "+key+" is not a float, using default")
	return def
}
