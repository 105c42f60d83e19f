package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAppEnvironment(t *testing.T) {
	cases := []struct {
		value string
		want  string
	}{
		{"", "development"},
		{"prod", "production"},
		{"PROD", "production"},
		{"stag", "staging"},
		{"production", "production"},
		{"qa", "qa"},
	}
	for _, c := range cases {
		t.Setenv("APP_ENV", c.value)
		if got := AppEnvironment(); got != c.want {
			t.Errorf("AppEnvironment with APP_ENV=%q = %q, want %q", c.value, got, c.want)
		}
	}
}

func TestIsProductionLike(t *testing.T) {
	if !IsProductionLike("production") || !IsProductionLike("staging") {
		t.Error("production and staging are production-like")
	}
	if IsProductionLike("development") || IsProductionLike("qa") {
		t.Error("development is not production-like")
	}
}

func TestResolveEnvSpecificPath(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(base, []byte("connector:\n  name: x\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("APP_ENV", "production")
	if got := resolveEnvSpecificPath(base); got != base {
		t.Errorf("missing env file must fall back to %q, got %q", base, got)
	}

	envFile := filepath.Join(dir, "config.production.yml")
	if err := os.WriteFile(envFile, []byte("connector:\n  name: y\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := resolveEnvSpecificPath(base); got != envFile {
		t.Errorf("expected env specific path %q, got %q", envFile, got)
	}
}
