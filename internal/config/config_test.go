package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Host != "localhost" || cfg.Port != "8181" {
		t.Fatalf("expected localhost:8181, got %s:%s", cfg.Host, cfg.Port)
	}
	if cfg.BaseURL() != "http://localhost:8181" {
		t.Fatalf("unexpected base URL %s", cfg.BaseURL())
	}
	if cfg.SampleTag != "sample" || cfg.QueryLimit != 1000 || cfg.SchemaDir != "config/weaviate" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.HTTPTimeout != 0 {
		t.Fatalf("expected no timeout by default, got %v", cfg.HTTPTimeout)
	}
}

func TestLoadMissingEnvFileIgnored(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.env")); err != nil {
		t.Fatalf("missing env file should be ignored: %v", err)
	}
}

func TestLoadFileFillsUnsetKeys(t *testing.T) {
	path := writeEnvFile(t, "# comment\nWEAVIATE_HOST=weaviate.internal\nMEMSETUP_HTTP_TIMEOUT=5s\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Host != "weaviate.internal" {
		t.Fatalf("expected host from file, got %s", cfg.Host)
	}
	if cfg.HTTPTimeout != 5*time.Second {
		t.Fatalf("expected 5s timeout, got %v", cfg.HTTPTimeout)
	}
}

func TestLoadProcessEnvWins(t *testing.T) {
	t.Setenv("WEAVIATE_PORT", "9090")
	path := writeEnvFile(t, "WEAVIATE_PORT=7070\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9090" {
		t.Fatalf("expected process env port 9090, got %s", cfg.Port)
	}
}

func TestReadEnvFileFirstDefinitionWins(t *testing.T) {
	path := writeEnvFile(t, "export WEAVIATE_HOST=\"first\"\nWEAVIATE_HOST=second\nnot a pair\n=empty\n")

	vars, err := ReadEnvFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if vars["WEAVIATE_HOST"] != "first" {
		t.Fatalf("expected first definition, got %q", vars["WEAVIATE_HOST"])
	}
	if len(vars) != 1 {
		t.Fatalf("expected 1 key, got %v", vars)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("MEMSETUP_QUERY_LIMIT", "0")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for zero query limit")
	}

	t.Setenv("MEMSETUP_QUERY_LIMIT", "abc")
	_, err := Load("")
	if err == nil || !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env error, got %v", err)
	}
}
