package config

import (
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	defaultListingTimeoutSeconds = 10
	defaultStatusTimeoutSeconds  = 5
	defaultStatusRequestsPerMin  = 60
	defaultBufferHours           = 10
	defaultPollSchedule          = "*/30 * * * *"

	defaultExternalHTTPTimeoutSeconds = 90
)

// StepConfig describes one external process of the generation pipeline.
type StepConfig struct {
	Name    string   `yaml:"name"`
	Command []string `yaml:"command"`
	Dir     string   `yaml:"dir"`
}

type Config struct {
	Season      string  `yaml:"season"`
	Competition string  `yaml:"competition"`
	BufferHours float64 `yaml:"buffer_hours"`

	LogFile       string `yaml:"log_file"`
	BufferFile    string `yaml:"buffer_file"`
	DataCSVPath   string `yaml:"data_csv_path"`
	DraftPath     string `yaml:"draft_path"`
	DBPath        string `yaml:"db_path"`
	TeamNamesPath string `yaml:"team_names_path"`

	ResultsURL              string `yaml:"results_url"`
	BoxscoreURL             string `yaml:"boxscore_url"`
	ACBAPIKey               string `yaml:"acb_api_key"`
	ACBOrigin               string `yaml:"acb_origin"`
	ListingTimeoutSeconds   int    `yaml:"listing_timeout_seconds"`
	StatusTimeoutSeconds    int    `yaml:"status_timeout_seconds"`
	StatusRequestsPerMinute int    `yaml:"status_requests_per_minute"`

	ExternalHTTPTimeoutSeconds int `yaml:"external_http_timeout_seconds"`

	ScraperCommand []string     `yaml:"scraper_command"`
	PipelineSteps  []StepConfig `yaml:"pipeline_steps"`

	LLMProvider     string `yaml:"llm_provider"`
	LLMModel        string `yaml:"llm_model"`
	LLMMaxTokens    int    `yaml:"llm_max_tokens"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`

	SMTPHost        string `yaml:"smtp_host"`
	SMTPPort        int    `yaml:"smtp_port"`
	SMTPUser        string `yaml:"smtp_user"`
	SMTPPassword    string `yaml:"smtp_password"`
	SenderName      string `yaml:"sender_name"`
	SubscribersURL  string `yaml:"subscribers_url"`
	MakeWebhookURL  string `yaml:"make_webhook_url"`
	SlackWebhookURL string `yaml:"slack_webhook_url"`
	LogoURL         string `yaml:"logo_url"`
	SiteURL         string `yaml:"site_url"`

	PollSchedule string `yaml:"poll_schedule"`
	StatusAddr   string `yaml:"status_addr"`
	Timezone     string `yaml:"timezone"`

	Location *time.Location `yaml:"-"` // computed from Timezone, not from YAML
}

// Load reads config.yaml (or CONFIG_PATH), applies environment overrides and
// defaults, and validates the result.
func Load() (Config, error) {
	// buffer_hours defaults only when absent; 0 is valid.
	cfg := Config{BufferHours: defaultBufferHours}

	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing %s: %w", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	envOverride(&cfg.Season, "SEASON")
	envOverride(&cfg.Competition, "COMPETITION")
	if err := envOverrideFloat(&cfg.BufferHours, "BUFFER_HOURS"); err != nil {
		return err
	}
	envOverride(&cfg.LogFile, "LOG_FILE")
	envOverride(&cfg.BufferFile, "BUFFER_FILE")
	envOverride(&cfg.DataCSVPath, "DATA_CSV_PATH")
	envOverride(&cfg.DraftPath, "DRAFT_PATH")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.TeamNamesPath, "TEAM_NAMES_PATH")
	envOverride(&cfg.ResultsURL, "RESULTS_URL")
	envOverride(&cfg.BoxscoreURL, "BOXSCORE_URL")
	envOverride(&cfg.ACBAPIKey, "ACB_API_KEY")
	envOverride(&cfg.ACBOrigin, "ACB_ORIGIN")
	if err := envOverrideInt(&cfg.ListingTimeoutSeconds, "LISTING_TIMEOUT_SECONDS"); err != nil {
		return err
	}
	if err := envOverrideInt(&cfg.StatusTimeoutSeconds, "STATUS_TIMEOUT_SECONDS"); err != nil {
		return err
	}
	if err := envOverrideInt(&cfg.StatusRequestsPerMinute, "STATUS_REQUESTS_PER_MINUTE"); err != nil {
		return err
	}
	if err := envOverrideInt(&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS"); err != nil {
		return err
	}
	if cmd := os.Getenv("SCRAPER_COMMAND"); cmd != "" {
		cfg.ScraperCommand = strings.Fields(cmd)
	}
	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	if err := envOverrideInt(&cfg.LLMMaxTokens, "LLM_MAX_TOKENS"); err != nil {
		return err
	}
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	envOverride(&cfg.SMTPHost, "SMTP_HOST")
	if err := envOverrideInt(&cfg.SMTPPort, "SMTP_PORT"); err != nil {
		return err
	}
	// GMAIL_* are the names older deployments export.
	envOverride(&cfg.SMTPUser, "GMAIL_USER")
	envOverride(&cfg.SMTPUser, "SMTP_USER")
	envOverride(&cfg.SMTPPassword, "GMAIL_PASSWORD")
	envOverride(&cfg.SMTPPassword, "SMTP_PASSWORD")
	envOverride(&cfg.SenderName, "SENDER_NAME")
	envOverride(&cfg.SubscribersURL, "URL_SUSCRIPTORES")
	envOverride(&cfg.SubscribersURL, "SUBSCRIBERS_URL")
	envOverrideAllowEmpty(&cfg.MakeWebhookURL, "MAKE_WEBHOOK_URL")
	envOverrideAllowEmpty(&cfg.SlackWebhookURL, "SLACK_WEBHOOK_URL")
	envOverride(&cfg.LogoURL, "LOGO_URL")
	envOverride(&cfg.SiteURL, "SITE_URL")
	envOverride(&cfg.PollSchedule, "POLL_SCHEDULE")
	envOverrideAllowEmpty(&cfg.StatusAddr, "STATUS_ADDR")
	envOverride(&cfg.Timezone, "TIMEZONE")
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Season == "" {
		cfg.Season = "2025"
	}
	if cfg.Competition == "" {
		cfg.Competition = "1"
	}
	if cfg.LogFile == "" {
		cfg.LogFile = "data/log.txt"
	}
	if cfg.BufferFile == "" {
		cfg.BufferFile = "data/buffer_control.txt"
	}
	if cfg.DataCSVPath == "" {
		cfg.DataCSVPath = fmt.Sprintf("data/BoxScore_ACB_%s_Cumulative.csv", cfg.Season)
	}
	if cfg.DraftPath == "" {
		cfg.DraftPath = "newsletter_borrador.md"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./newsletterbot.db"
	}
	if cfg.ResultsURL == "" {
		cfg.ResultsURL = "https://www.acb.com/resultados-clasificacion/ver"
	}
	if cfg.BoxscoreURL == "" {
		cfg.BoxscoreURL = "https://api2.acb.com/api/matchdata/Result/boxscores"
	}
	if cfg.ACBOrigin == "" {
		cfg.ACBOrigin = "https://live.acb.com"
	}
	if cfg.ListingTimeoutSeconds == 0 {
		cfg.ListingTimeoutSeconds = defaultListingTimeoutSeconds
	}
	if cfg.StatusTimeoutSeconds == 0 {
		cfg.StatusTimeoutSeconds = defaultStatusTimeoutSeconds
	}
	if cfg.StatusRequestsPerMinute == 0 {
		cfg.StatusRequestsPerMinute = defaultStatusRequestsPerMin
	}
	if cfg.ExternalHTTPTimeoutSeconds == 0 {
		cfg.ExternalHTTPTimeoutSeconds = defaultExternalHTTPTimeoutSeconds
	}
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = "anthropic"
	}
	if cfg.LLMMaxTokens == 0 {
		cfg.LLMMaxTokens = 4096
	}
	if cfg.SMTPHost == "" {
		cfg.SMTPHost = "smtp.gmail.com"
	}
	if cfg.SMTPPort == 0 {
		cfg.SMTPPort = 465
	}
	if cfg.SenderName == "" {
		cfg.SenderName = "Analyzing Basketball"
	}
	if cfg.LogoURL == "" {
		cfg.LogoURL = "https://github.com/AnalyzingBasketball/acb-newsletter-bot/blob/main/logo.png?raw=true"
	}
	if cfg.SiteURL == "" {
		cfg.SiteURL = "https://analyzingbasketball.wixsite.com/home"
	}
	if cfg.PollSchedule == "" {
		cfg.PollSchedule = defaultPollSchedule
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}
}

func (c *Config) validate() error {
	if _, err := strconv.Atoi(c.Season); err != nil {
		return fmt.Errorf("invalid season '%s': must be a year", c.Season)
	}
	if c.BufferHours < 0 || math.IsNaN(c.BufferHours) || math.IsInf(c.BufferHours, 0) {
		return fmt.Errorf("invalid buffer_hours '%g': must be a non-negative number", c.BufferHours)
	}
	if c.ListingTimeoutSeconds < 1 {
		return fmt.Errorf("invalid listing_timeout_seconds '%d': must be >= 1", c.ListingTimeoutSeconds)
	}
	if c.StatusTimeoutSeconds < 1 {
		return fmt.Errorf("invalid status_timeout_seconds '%d': must be >= 1", c.StatusTimeoutSeconds)
	}
	if c.StatusRequestsPerMinute < 1 {
		return fmt.Errorf("invalid status_requests_per_minute '%d': must be >= 1", c.StatusRequestsPerMinute)
	}
	if c.ExternalHTTPTimeoutSeconds < 5 {
		return fmt.Errorf("invalid external_http_timeout_seconds '%d': must be >= 5", c.ExternalHTTPTimeoutSeconds)
	}
	if c.LLMMaxTokens < 256 {
		return fmt.Errorf("invalid llm_max_tokens '%d': must be >= 256", c.LLMMaxTokens)
	}
	switch c.LLMProvider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("llm_provider must be 'anthropic' or 'openai', got '%s'", c.LLMProvider)
	}
	for i, step := range c.PipelineSteps {
		if len(step.Command) == 0 {
			return fmt.Errorf("pipeline_steps[%d] (%s) has no command", i, step.Name)
		}
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(c.PollSchedule); err != nil {
		return fmt.Errorf("invalid poll_schedule '%s': %w", c.PollSchedule, err)
	}

	if strings.EqualFold(c.Timezone, "Local") {
		c.Location = time.Local
	} else {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return fmt.Errorf("invalid timezone '%s': %w", c.Timezone, err)
		}
		c.Location = loc
	}
	return nil
}

// Buffer is the debounce window as a duration.
func (c Config) Buffer() time.Duration {
	return time.Duration(c.BufferHours * float64(time.Hour))
}

// SeasonLabel renders the season as "2025/2026".
func (c Config) SeasonLabel() string {
	year, err := strconv.Atoi(c.Season)
	if err != nil {
		return c.Season
	}
	return fmt.Sprintf("%d/%d", year, year+1)
}

func (c Config) ListingTimeout() time.Duration {
	return time.Duration(c.ListingTimeoutSeconds) * time.Second
}

func (c Config) StatusTimeout() time.Duration {
	return time.Duration(c.StatusTimeoutSeconds) * time.Second
}

// RequireLLM checks the credentials the write step needs.
func (c Config) RequireLLM() error {
	switch c.LLMProvider {
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("anthropic_api_key is required when llm_provider=anthropic")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("openai_api_key is required when llm_provider=openai")
		}
	}
	return nil
}

// RequireMail checks the credentials the send step needs.
func (c Config) RequireMail() error {
	if c.SMTPUser == "" || c.SMTPPassword == "" {
		return fmt.Errorf("smtp_user and smtp_password are required to send the newsletter")
	}
	return nil
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideAllowEmpty(field *string, envKey string) {
	if val, ok := os.LookupEnv(envKey); ok {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}

func envOverrideFloat(field *float64, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}
