// Package config implements the AutoClaw configuration store: a nested
// JSON document with dotted-path access (e.g. "email.smtp_port").
// The document is free-form; Validate performs presence and type checks
// on the sections the agent cares about.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DefaultPath is the config file used when none is given.
const DefaultPath = "config.json"

// Store holds the configuration document and its file path.
type Store struct {
	path string

	// doc is the root of the nested document. Values are the types
	// encoding/json produces: map[string]any, []any, string, float64, bool.
	doc map[string]any

	mu sync.RWMutex
}

// New creates a Store bound to the given path. The file is not read
// until Load is called.
func New(path string) *Store {
	if path == "" {
		path = DefaultPath
	}
	return &Store{
		path: path,
		doc:  map[string]any{},
	}
}

// Path returns the config file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the config file. If the file does not exist, the default
// document is written and used.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.doc = DefaultDocument()
		return s.saveLocked()
	}
	if err != nil {
		return fmt.Errorf("read config %q: %w", s.path, err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse config %q: %w", s.path, err)
	}
	s.doc = doc
	return nil
}

// Save writes the current document to disk atomically (write to a temp
// file in the same directory, then rename).
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory %q: %w", dir, err)
		}
	}

	tmp, err := os.CreateTemp(dir, ".config-*.json")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace config %q: %w", s.path, err)
	}
	return nil
}

// Get returns the value at a dotted path, or def when the path does not
// resolve.
func (s *Store) Get(key string, def any) any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cur := any(s.doc)
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return def
		}
		cur, ok = m[part]
		if !ok {
			return def
		}
	}
	return cur
}

// GetString returns the string at key, or def.
func (s *Store) GetString(key, def string) string {
	if v, ok := s.Get(key, nil).(string); ok {
		return v
	}
	return def
}

// GetBool returns the bool at key, or def.
func (s *Store) GetBool(key string, def bool) bool {
	if v, ok := s.Get(key, nil).(bool); ok {
		return v
	}
	return def
}

// GetFloat returns the number at key, or def. JSON numbers decode as
// float64; ints set via Set are accepted too.
func (s *Store) GetFloat(key string, def float64) float64 {
	switch v := s.Get(key, nil).(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return def
	}
}

// GetInt returns the number at key truncated to int, or def.
func (s *Store) GetInt(key string, def int) int {
	f := s.GetFloat(key, float64(def))
	return int(f)
}

// GetDuration parses the string at key as a duration, or returns def.
func (s *Store) GetDuration(key string, def time.Duration) time.Duration {
	raw := s.GetString(key, "")
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

// GetStringSlice returns the string list at key, or nil.
func (s *Store) GetStringSlice(key string) []string {
	raw, ok := s.Get(key, nil).([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if str, ok := v.(string); ok {
			out = append(out, str)
		}
	}
	return out
}

// Set writes a value at a dotted path, creating intermediate maps as
// needed, and persists the document.
func (s *Store) Set(key string, value any) error {
	s.mu.Lock()

	parts := strings.Split(key, ".")
	cur := s.doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[part] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = value

	err := s.saveLocked()
	s.mu.Unlock()
	return err
}

// Delete removes the value at a dotted path. Missing paths are not an
// error.
func (s *Store) Delete(key string) error {
	s.mu.Lock()

	parts := strings.Split(key, ".")
	cur := s.doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(map[string]any)
		if !ok {
			s.mu.Unlock()
			return nil
		}
		cur = next
	}
	delete(cur, parts[len(parts)-1])

	err := s.saveLocked()
	s.mu.Unlock()
	return err
}

// Update applies several dotted-path assignments and persists once.
func (s *Store) Update(values map[string]any) error {
	s.mu.Lock()

	for key, value := range values {
		parts := strings.Split(key, ".")
		cur := s.doc
		for _, part := range parts[:len(parts)-1] {
			next, ok := cur[part].(map[string]any)
			if !ok {
				next = map[string]any{}
				cur[part] = next
			}
			cur = next
		}
		cur[parts[len(parts)-1]] = value
	}

	err := s.saveLocked()
	s.mu.Unlock()
	return err
}

// Document returns a deep copy of the whole document.
func (s *Store) Document() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return deepCopy(s.doc)
}

// Reset replaces the document with the defaults and persists.
func (s *Store) Reset() error {
	s.mu.Lock()
	s.doc = DefaultDocument()
	err := s.saveLocked()
	s.mu.Unlock()
	return err
}

// Export writes the current document to the given file.
func (s *Store) Export(path string) error {
	s.mu.RLock()
	data, err := json.MarshalIndent(s.doc, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("export config to %q: %w", path, err)
	}
	return nil
}

// Import replaces the document with the contents of the given file and
// persists.
func (s *Store) Import(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("import config from %q: %w", path, err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse imported config %q: %w", path, err)
	}

	s.mu.Lock()
	s.doc = doc
	err = s.saveLocked()
	s.mu.Unlock()
	return err
}

func deepCopy(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			out[k] = deepCopy(nested)
			continue
		}
		if list, ok := v.([]any); ok {
			cp := make([]any, len(list))
			copy(cp, list)
			out[k] = cp
			continue
		}
		out[k] = v
	}
	return out
}
