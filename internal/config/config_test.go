package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// clearEnv blanks every variable the loader reads so ambient shell state
// cannot leak into assertions.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"GEMINI_API_KEY", "GEMINI_MODEL", "GEMINI_BASE_URL",
		"BATCH_SIZE", "WORKERS", "MAX_RETRIES", "REQUEST_TIMEOUT",
		"RATE_LIMIT_RPS", "DB_PATH",
	} {
		t.Setenv(name, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Model != "gemini-2.5-flash-lite" {
		t.Errorf("Model = %q", cfg.Model)
	}
	if cfg.BatchSize != 10 || cfg.Workers != 8 || cfg.MaxRetries != 3 {
		t.Errorf("worker defaults: %+v", cfg)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("RequestTimeout = %v", cfg.RequestTimeout)
	}
	if cfg.Table != "reviews" || cfg.TextColumn != "text" || cfg.RowCap != 200 {
		t.Errorf("table defaults: %+v", cfg)
	}
	if cfg.APIKey != "" {
		t.Errorf("APIKey must be empty without env, got %q", cfg.APIKey)
	}
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yml")
	body := `
model: gemini-2.5-pro
batch_size: 25
workers: 4
request_timeout: 45s
rate_limit_rps: 2.5
db_path: /tmp/out.db
table: feedback
text_column: body
row_cap: 500
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Model != "gemini-2.5-pro" {
		t.Errorf("Model = %q", cfg.Model)
	}
	if cfg.BatchSize != 25 || cfg.Workers != 4 {
		t.Errorf("pool settings: %+v", cfg)
	}
	if cfg.RequestTimeout != 45*time.Second {
		t.Errorf("RequestTimeout = %v", cfg.RequestTimeout)
	}
	if cfg.RateLimitRPS != 2.5 {
		t.Errorf("RateLimitRPS = %v", cfg.RateLimitRPS)
	}
	if cfg.DBPath != "/tmp/out.db" || cfg.Table != "feedback" || cfg.TextColumn != "body" || cfg.RowCap != 500 {
		t.Errorf("storage settings: %+v", cfg)
	}
	// Unset file keys keep their defaults.
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d", cfg.MaxRetries)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte("model: from-file\nbatch_size: 25\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("GEMINI_API_KEY", "sk-test")
	t.Setenv("GEMINI_MODEL", "from-env")
	t.Setenv("BATCH_SIZE", "7")
	t.Setenv("REQUEST_TIMEOUT", "5s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIKey != "sk-test" {
		t.Errorf("APIKey = %q", cfg.APIKey)
	}
	if cfg.Model != "from-env" {
		t.Errorf("Model = %q, env must win over file", cfg.Model)
	}
	if cfg.BatchSize != 7 {
		t.Errorf("BatchSize = %d, env must win over file", cfg.BatchSize)
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Errorf("RequestTimeout = %v", cfg.RequestTimeout)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	clearEnv(t)

	t.Setenv("BATCH_SIZE", "lots")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for non-numeric BATCH_SIZE")
	}

	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte("request_timeout: soon\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err != nil {
		// Good: unparseable duration is an error, not a silent default.
		return
	}
	t.Fatal("expected error for unparseable request_timeout")
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)

	if _, err := Load(filepath.Join(t.TempDir(), "absent.yml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
