package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(configPathEnv, "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Pipeline.BatchSize != 3 || cfg.Pipeline.MinTextLength != 6 {
		t.Fatalf("unexpected pipeline defaults %+v", cfg.Pipeline)
	}
	if cfg.Explainer.Mode != ExplainerService || len(cfg.Explainer.Models) != 4 {
		t.Fatalf("unexpected explainer defaults %+v", cfg.Explainer)
	}
}

func TestLoadYAMLWithEnvOverrides(t *testing.T) {
	path := writeFile(t, "reviewguard.yaml", `
classifier:
  baseUrl: http://classifier.local:8000
  timeout: 2s
pipeline:
  batchSize: 1
  interItemDelay: 750ms
  retryErrors: true
explainer:
  mode: LLM
  models: [a/model, b/model]
report:
  path: /tmp/report.db
`)
	t.Setenv(configPathEnv, path)
	t.Setenv(classifierAPIKeyEnv, "secret")
	t.Setenv(logLevelEnv, "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Classifier.BaseURL != "http://classifier.local:8000" || cfg.Classifier.Timeout.Std() != 2*time.Second {
		t.Fatalf("classifier not merged: %+v", cfg.Classifier)
	}
	if cfg.Classifier.APIKey != "secret" {
		t.Fatal("env override not applied")
	}
	if cfg.Pipeline.BatchSize != 1 || cfg.Pipeline.InterItemDelay.Std() != 750*time.Millisecond || !cfg.Pipeline.RetryErrors {
		t.Fatalf("pipeline not merged: %+v", cfg.Pipeline)
	}
	if cfg.Pipeline.MaxAttempts != 3 {
		t.Fatalf("default lost during merge: %d", cfg.Pipeline.MaxAttempts)
	}
	if cfg.Explainer.Mode != ExplainerLLM || len(cfg.Explainer.Models) != 2 {
		t.Fatalf("explainer not merged: %+v", cfg.Explainer)
	}
	if cfg.Logging.Level != "debug" || cfg.Report.Path != "/tmp/report.db" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "reviewguard.toml", `
[watch]
schedule = "*/5 * * * *"

[fetch]
userAgent = "test-agent"
retries = 5

[notifications.telegram]
botToken = "token"
chatId = "42"
`)
	t.Setenv(configPathEnv, "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Watch.Schedule != "*/5 * * * *" || cfg.Fetch.UserAgent != "test-agent" || cfg.Fetch.Retries != 5 {
		t.Fatalf("toml not merged: %+v", cfg)
	}
	if !cfg.Notifications.Telegram.Enabled() {
		t.Fatal("expected telegram to be enabled")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv(configPathEnv, "")

	for name, body := range map[string]string{
		"batch":    "pipeline:\n  batchSize: -2\n",
		"mode":     "explainer:\n  mode: oracle\n",
		"duration": "pipeline:\n  interItemDelay: soon\n",
	} {
		path := writeFile(t, name+".yaml", body)
		if _, err := Load(path); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
