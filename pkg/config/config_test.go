package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name  string `yaml:"name"`
	Port  int    `yaml:"port"`
	valid bool
}

func (s *sample) Validate() error {
	if s.Port == 0 {
		return errors.New("port is required")
	}
	s.valid = true
	return nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_ExpandsEnvAndValidates(t *testing.T) {
	t.Setenv("SAMPLE_NAME", "engine")
	p := writeFile(t, t.TempDir(), "c.yaml", "name: ${SAMPLE_NAME}\nport: 9000\n")

	var s sample
	if err := Load(p, &s); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Name != "engine" || s.Port != 9000 || !s.valid {
		t.Errorf("loaded = %+v", s)
	}
}

func TestLoad_KeepsDefaults(t *testing.T) {
	p := writeFile(t, t.TempDir(), "c.yaml", "port: 1\n")
	s := sample{Name: "default"}
	if err := Load(p, &s); err != nil {
		t.Fatal(err)
	}
	if s.Name != "default" {
		t.Errorf("name = %q, want default kept", s.Name)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	var s sample

	if err := Load(filepath.Join(dir, "missing.yaml"), &s); err == nil {
		t.Error("missing file should fail")
	}
	bad := writeFile(t, dir, "bad.yaml", "port: [\n")
	if err := Load(bad, &s); err == nil {
		t.Error("malformed YAML should fail")
	}
	invalid := writeFile(t, dir, "invalid.yaml", "name: x\n")
	err := Load(invalid, &sample{})
	if err == nil || !strings.Contains(err.Error(), "validation failed") {
		t.Errorf("validation error = %v", err)
	}
}

func TestLoadWithDefaults(t *testing.T) {
	dir := t.TempDir()
	def := writeFile(t, dir, "default.yaml", "port: 7\n")

	var s sample
	if err := LoadWithDefaults(filepath.Join(dir, "missing.yaml"), def, &s); err != nil {
		t.Fatalf("fallback: %v", err)
	}
	if s.Port != 7 {
		t.Errorf("port = %d, want 7", s.Port)
	}
	if err := LoadWithDefaults(filepath.Join(dir, "missing.yaml"), "", &s); err == nil {
		t.Error("missing file without default should fail")
	}
}

func TestMustLoadPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustLoad should panic on a missing file")
		}
	}()
	var s sample
	MustLoad(filepath.Join(t.TempDir(), "missing.yaml"), &s)
}

func TestLoadFiles_Overlay(t *testing.T) {
	dir := t.TempDir()
	base := writeFile(t, dir, "base.yaml", "name: base\nport: 1\n")
	local := writeFile(t, dir, "local.yaml", "port: 2\n")

	var s sample
	if err := LoadFiles(base, &s, local, filepath.Join(dir, "absent.yaml"), ""); err != nil {
		t.Fatalf("LoadFiles: %v", err)
	}
	if s.Name != "base" || s.Port != 2 {
		t.Errorf("merged = %+v", s)
	}

	if err := LoadFiles(filepath.Join(dir, "absent.yaml"), &s); err == nil {
		t.Error("missing base should fail")
	}
}

func TestParse(t *testing.T) {
	var s sample
	if err := Parse([]byte("port: 3\n"), "inline", &s); err != nil || s.Port != 3 {
		t.Errorf("Parse = %v, %+v", err, s)
	}
	if err := Parse([]byte("port: [\n"), "inline", &s); err == nil || !strings.Contains(err.Error(), "inline") {
		t.Errorf("error should name the source: %v", err)
	}
}
