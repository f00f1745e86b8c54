package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAPIKey_Fallback(t *testing.T) {
	t.Setenv(EnvAPIKey, "")
	t.Setenv(EnvGeminiAPIKey, "gemini-key")
	if got := APIKey(); got != "gemini-key" {
		t.Errorf("APIKey() = %q, want gemini-key", got)
	}

	t.Setenv(EnvAPIKey, "google-key")
	if got := APIKey(); got != "google-key" {
		t.Errorf("APIKey() = %q, want google-key", got)
	}
}

func TestGet_Default(t *testing.T) {
	t.Setenv(EnvAddr, "   ")
	if got := Addr(); got != DefaultAddr {
		t.Errorf("Addr() = %q, want %q", got, DefaultAddr)
	}
	t.Setenv(EnvModel, "custom-model")
	if got := Model("fallback"); got != "custom-model" {
		t.Errorf("Model() = %q, want custom-model", got)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("KINETIC_DOTENV_TEST=loaded\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("KINETIC_DOTENV_TEST") })

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("LoadDotEnv failed: %v", err)
	}
	if got := os.Getenv("KINETIC_DOTENV_TEST"); got != "loaded" {
		t.Errorf("expected loaded, got %q", got)
	}
}
