// Package templates stores reusable message templates in a YAML
// document and renders them with {variable} substitution.
package templates

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Template is a named message with placeholder variables written as
// {name} in the subject and body.
type Template struct {
	Name      string    `yaml:"name"`
	Subject   string    `yaml:"subject,omitempty"`
	Body      string    `yaml:"body"`
	Variables []string  `yaml:"variables,omitempty"`
	CreatedAt time.Time `yaml:"created_at"`
}

// Store keeps templates in memory and persists them as one YAML file.
type Store struct {
	path   string
	logger *slog.Logger

	mu        sync.RWMutex
	templates map[string]Template
}

// NewStore creates a template store backed by path.
func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		path:      path,
		logger:    logger.With("component", "templates"),
		templates: make(map[string]Template),
	}
}

type document struct {
	Templates []Template `yaml:"templates"`
}

// Load reads the YAML document. A missing file leaves the store empty.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read templates: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse templates: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates = make(map[string]Template, len(doc.Templates))
	for _, tmpl := range doc.Templates {
		if tmpl.Name == "" {
			continue
		}
		s.templates[tmpl.Name] = tmpl
	}
	s.logger.Info("templates loaded", "path", s.path, "count", len(s.templates))
	return nil
}

// Save writes all templates back to the YAML file.
func (s *Store) Save() error {
	s.mu.RLock()
	doc := document{Templates: make([]Template, 0, len(s.templates))}
	for _, tmpl := range s.templates {
		doc.Templates = append(doc.Templates, tmpl)
	}
	s.mu.RUnlock()

	sort.Slice(doc.Templates, func(i, j int) bool {
		return doc.Templates[i].Name < doc.Templates[j].Name
	})

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode templates: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create templates directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write templates: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace templates file: %w", err)
	}
	return nil
}

// Add registers a template. The variable list is derived from the
// subject and body when not given.
func (s *Store) Add(tmpl Template) error {
	if strings.TrimSpace(tmpl.Name) == "" {
		return fmt.Errorf("template name is required")
	}
	if strings.TrimSpace(tmpl.Body) == "" {
		return fmt.Errorf("template body is required")
	}
	if tmpl.CreatedAt.IsZero() {
		tmpl.CreatedAt = time.Now().UTC()
	}
	if len(tmpl.Variables) == 0 {
		tmpl.Variables = extractVariables(tmpl.Subject + " " + tmpl.Body)
	}

	s.mu.Lock()
	s.templates[tmpl.Name] = tmpl
	s.mu.Unlock()
	s.logger.Info("template added", "name", tmpl.Name, "variables", len(tmpl.Variables))
	return nil
}

// Get returns a template by name.
func (s *Store) Get(name string) (Template, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tmpl, ok := s.templates[name]
	return tmpl, ok
}

// Delete removes a template by name.
func (s *Store) Delete(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.templates[name]; !ok {
		return false
	}
	delete(s.templates, name)
	return true
}

// Names returns all template names sorted.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.templates))
	for name := range s.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Rendered is the outcome of Render.
type Rendered struct {
	Subject string
	Body    string

	// Missing lists declared variables that had no value; their
	// placeholders are left in the output.
	Missing []string
}

// Render substitutes {variable} placeholders in the named template.
func (s *Store) Render(name string, vars map[string]string) (Rendered, error) {
	tmpl, ok := s.Get(name)
	if !ok {
		return Rendered{}, fmt.Errorf("template not found: %s", name)
	}

	out := Rendered{Subject: tmpl.Subject, Body: tmpl.Body}
	for key, value := range vars {
		placeholder := "{" + key + "}"
		out.Subject = strings.ReplaceAll(out.Subject, placeholder, value)
		out.Body = strings.ReplaceAll(out.Body, placeholder, value)
	}
	for _, declared := range tmpl.Variables {
		if _, ok := vars[declared]; !ok {
			out.Missing = append(out.Missing, declared)
		}
	}
	return out, nil
}

// extractVariables finds {name} placeholders in text, in order of
// first appearance.
func extractVariables(text string) []string {
	var vars []string
	seen := make(map[string]bool)
	for {
		open := strings.IndexByte(text, '{')
		if open < 0 {
			break
		}
		end := strings.IndexByte(text[open:], '}')
		if end < 0 {
			break
		}
		name := text[open+1 : open+end]
		if name != "" && !strings.ContainsAny(name, " {}\n") && !seen[name] {
			seen[name] = true
			vars = append(vars, name)
		}
		text = text[open+end+1:]
	}
	return vars
}
