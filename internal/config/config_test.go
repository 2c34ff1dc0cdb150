package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadFromEnvWithDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing-config.yaml"))
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("GMAIL_USER", "bot@example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Season != "2025" || cfg.Competition != "1" {
		t.Fatalf("unexpected season/competition defaults: %q/%q", cfg.Season, cfg.Competition)
	}
	if cfg.Buffer() != 10*time.Hour {
		t.Fatalf("unexpected buffer default: %s", cfg.Buffer())
	}
	if cfg.LogFile != "data/log.txt" || cfg.BufferFile != "data/buffer_control.txt" {
		t.Fatalf("unexpected state file defaults: %q %q", cfg.LogFile, cfg.BufferFile)
	}
	if cfg.DataCSVPath != "data/BoxScore_ACB_2025_Cumulative.csv" {
		t.Fatalf("unexpected csv default: %q", cfg.DataCSVPath)
	}
	if cfg.ListingTimeout() != 10*time.Second || cfg.StatusTimeout() != 5*time.Second {
		t.Fatalf("unexpected timeouts: %s %s", cfg.ListingTimeout(), cfg.StatusTimeout())
	}
	if cfg.SMTPUser != "bot@example.com" {
		t.Fatalf("expected legacy GMAIL_USER to populate smtp user, got %q", cfg.SMTPUser)
	}
	if cfg.Location == nil || cfg.Location.String() != "UTC" {
		t.Fatalf("unexpected location: %v", cfg.Location)
	}
	if cfg.SeasonLabel() != "2025/2026" {
		t.Fatalf("unexpected season label: %q", cfg.SeasonLabel())
	}
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
season: "2024"
buffer_hours: 6
llm_provider: "anthropic"
anthropic_api_key: "yaml-key"
timezone: "Europe/Madrid"
pipeline_steps:
  - name: refresh
    command: ["python", "boxscore_ACB_headless.py"]
  - name: write
    command: ["newsletterbot", "write"]
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("CONFIG_PATH", cfgPath)
	t.Setenv("BUFFER_HOURS", "2.5")
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-env")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Season != "2024" {
		t.Fatalf("expected season from yaml, got %q", cfg.Season)
	}
	if cfg.Buffer() != 150*time.Minute {
		t.Fatalf("expected buffer from env override, got %s", cfg.Buffer())
	}
	if cfg.LLMProvider != "openai" || cfg.OpenAIAPIKey != "sk-env" {
		t.Fatalf("expected provider from env override, got %q", cfg.LLMProvider)
	}
	if err := cfg.RequireLLM(); err != nil {
		t.Fatalf("RequireLLM: %v", err)
	}
	if len(cfg.PipelineSteps) != 2 || cfg.PipelineSteps[0].Command[1] != "boxscore_ACB_headless.py" {
		t.Fatalf("unexpected pipeline steps: %+v", cfg.PipelineSteps)
	}
	if cfg.Location.String() != "Europe/Madrid" {
		t.Fatalf("unexpected location: %s", cfg.Location)
	}
}

func TestLoadAllowsZeroBuffer(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("buffer_hours: 0\ntimezone: UTC\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", cfgPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Buffer() != 0 {
		t.Fatalf("expected zero buffer from yaml, got %s", cfg.Buffer())
	}

	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("BUFFER_HOURS", "0")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Buffer() != 0 {
		t.Fatalf("expected zero buffer from env, got %s", cfg.Buffer())
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "provider", env: map[string]string{"LLM_PROVIDER": "gemini"}, want: "llm_provider"},
		{name: "buffer", env: map[string]string{"BUFFER_HOURS": "-1"}, want: "buffer_hours"},
		{name: "buffer not a number", env: map[string]string{"BUFFER_HOURS": "ten"}, want: "BUFFER_HOURS"},
		{name: "buffer NaN", env: map[string]string{"BUFFER_HOURS": "NaN"}, want: "buffer_hours"},
		{name: "buffer Inf", env: map[string]string{"BUFFER_HOURS": "+Inf"}, want: "buffer_hours"},
		{name: "season", env: map[string]string{"SEASON": "current"}, want: "season"},
		{name: "schedule", env: map[string]string{"POLL_SCHEDULE": "every day"}, want: "poll_schedule"},
		{name: "timezone", env: map[string]string{"TIMEZONE": "Mars/Colony"}, want: "timezone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil {
				t.Fatalf("expected error for %s", tt.name)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestRequireCredentials(t *testing.T) {
	cfg := Config{LLMProvider: "anthropic"}
	if err := cfg.RequireLLM(); err == nil {
		t.Fatal("expected missing anthropic key to fail")
	}
	cfg.AnthropicAPIKey = "key"
	if err := cfg.RequireLLM(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := cfg.RequireMail(); err == nil {
		t.Fatal("expected missing smtp credentials to fail")
	}
	cfg.SMTPUser, cfg.SMTPPassword = "u", "p"
	if err := cfg.RequireMail(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
