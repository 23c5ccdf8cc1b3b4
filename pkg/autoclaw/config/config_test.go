package config

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "config.json"))
	if err := s.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return s
}

func TestLoad_CreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	s := New(path)
	if err := s.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Load() did not create default config file: %v", err)
	}
	if got := s.GetString("agent.name", ""); got != "AutoClaw" {
		t.Errorf("agent.name = %q, want AutoClaw", got)
	}
}

func TestDottedPathRoundTrip(t *testing.T) {
	s := newTestStore(t)

	if err := s.Set("email.smtp_port", 2525); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if got := s.GetInt("email.smtp_port", 0); got != 2525 {
		t.Errorf("GetInt() = %d, want 2525", got)
	}

	// Intermediate maps are created on demand.
	if err := s.Set("brand.new.nested.key", "value"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if got := s.GetString("brand.new.nested.key", ""); got != "value" {
		t.Errorf("GetString() = %q, want value", got)
	}
}

func TestRoundTrip_SurvivesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	s := New(path)
	if err := s.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := s.Set("monitor.thresholds.cpu_percent", 55.5); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	reloaded := New(path)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("reload error = %v", err)
	}
	if got := reloaded.GetFloat("monitor.thresholds.cpu_percent", 0); got != 55.5 {
		t.Errorf("after reload cpu_percent = %v, want 55.5", got)
	}
}

func TestGet_MissingPathReturnsDefault(t *testing.T) {
	s := newTestStore(t)
	if got := s.GetString("no.such.key", "fallback"); got != "fallback" {
		t.Errorf("GetString() = %q, want fallback", got)
	}
	// Path traversing a non-map value falls back too.
	if got := s.GetInt("agent.name.deeper", 7); got != 7 {
		t.Errorf("GetInt() = %d, want 7", got)
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	if err := s.Set("temp.key", "x"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := s.Delete("temp.key"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if got := s.Get("temp.key", nil); got != nil {
		t.Errorf("Get() after Delete = %v, want nil", got)
	}
	// Deleting a missing path is not an error.
	if err := s.Delete("never.existed"); err != nil {
		t.Errorf("Delete(missing) error = %v", err)
	}
}

func TestUpdate(t *testing.T) {
	s := newTestStore(t)
	err := s.Update(map[string]any{
		"telegram.enabled": true,
		"agent.name":       "renamed",
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if !s.GetBool("telegram.enabled", false) {
		t.Error("telegram.enabled = false, want true")
	}
	if got := s.GetString("agent.name", ""); got != "renamed" {
		t.Errorf("agent.name = %q, want renamed", got)
	}
}

func TestValidate_DisabledFeaturesPass(t *testing.T) {
	s := newTestStore(t)
	res := s.Validate()
	if !res.Valid {
		t.Errorf("Validate() errors on defaults: %v", res.Errors)
	}
}

func TestValidate_EmailEnabledWithoutServer(t *testing.T) {
	s := newTestStore(t)
	if err := s.Set("email.enabled", true); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	res := s.Validate()
	if res.Valid {
		t.Error("Validate() = valid, want errors for missing smtp_server")
	}
}

func TestExportImport(t *testing.T) {
	s := newTestStore(t)
	if err := s.Set("agent.name", "exported"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	exportPath := filepath.Join(t.TempDir(), "export.json")
	if err := s.Export(exportPath); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	other := newTestStore(t)
	if err := other.Import(exportPath); err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if got := other.GetString("agent.name", ""); got != "exported" {
		t.Errorf("imported agent.name = %q, want exported", got)
	}
}
