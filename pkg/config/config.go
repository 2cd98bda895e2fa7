// Package config loads the daemon configuration from YAML with environment
// overrides. Every field is enumerated explicitly; unknown keys fail the
// load, and validation happens eagerly so a bad file never reaches the
// pipeline.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/theory-cloud/replytheory/pkg/guardrail"
	"github.com/theory-cloud/replytheory/pkg/limited"
	"github.com/theory-cloud/replytheory/pkg/llm"
	"github.com/theory-cloud/replytheory/pkg/responder"
	"github.com/theory-cloud/replytheory/pkg/transport"
)

// envPrefix namespaces the override variables.
const envPrefix = "REPLYTHEORY_"

// FieldError reports one invalid configuration value.
type FieldError struct {
	Section string
	Field   string
	Reason  string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("config: %s.%s: %s", e.Section, e.Field, e.Reason)
}

// LLMSection configures the provider. Durations are whole seconds, the way
// rule files written for the original agent express them.
type LLMSection struct {
	Provider       string  `yaml:"provider"`
	Model          string  `yaml:"model"`
	APIKey         string  `yaml:"api_key"`
	APIBase        string  `yaml:"api_base"`
	OllamaHost     string  `yaml:"ollama_host"`
	Temperature    float64 `yaml:"temperature"`
	MaxTokens      int     `yaml:"max_tokens"`
	TopP           float64 `yaml:"top_p"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

// ToLLMConfig maps the section onto the provider config.
func (s LLMSection) ToLLMConfig() llm.Config {
	return llm.Config{
		Provider:    s.Provider,
		Model:       s.Model,
		APIKey:      s.APIKey,
		APIBase:     s.APIBase,
		OllamaHost:  s.OllamaHost,
		Temperature: s.Temperature,
		MaxTokens:   s.MaxTokens,
		TopP:        s.TopP,
		Timeout:     time.Duration(s.TimeoutSeconds) * time.Second,
	}
}

// SMSSection controls reply behavior.
type SMSSection struct {
	AutoReply           bool     `yaml:"auto_reply"`
	AIMode              bool     `yaml:"ai_mode"`
	FallbackToRules     bool     `yaml:"fallback_to_rules"`
	MaxContextMessages  int      `yaml:"max_context_messages"`
	PollIntervalSeconds int      `yaml:"poll_interval_seconds"`
	AllowedNumbers      []string `yaml:"allowed_numbers"`
	IgnoredNumbers      []string `yaml:"ignored_numbers"`
	PersonalityFile     string   `yaml:"personality_file"`
	AgentRulesFile      string   `yaml:"agent_rules_file"`
}

// RateLimitSection mirrors limited.Config in file-friendly units.
type RateLimitSection struct {
	MaxPerMinute       int `yaml:"max_per_minute"`
	MaxPerHour         int `yaml:"max_per_hour"`
	MaxPerDay          int `yaml:"max_per_day"`
	MinIntervalSeconds int `yaml:"min_interval_seconds"`
	BurstAllowance     int `yaml:"burst_allowance"`
	BurstWindowSeconds int `yaml:"burst_window_seconds"`
}

// ToLimiterConfig maps the section onto the limiter config.
func (s RateLimitSection) ToLimiterConfig() limited.Config {
	return limited.Config{
		MaxPerMinute:   s.MaxPerMinute,
		MaxPerHour:     s.MaxPerHour,
		MaxPerDay:      s.MaxPerDay,
		MinInterval:    time.Duration(s.MinIntervalSeconds) * time.Second,
		BurstAllowance: s.BurstAllowance,
		BurstWindow:    time.Duration(s.BurstWindowSeconds) * time.Second,
	}
}

// GuardrailSection mirrors guardrail.Config.
type GuardrailSection struct {
	MaxResponseLength int      `yaml:"max_response_length"`
	BlockPhoneNumbers bool     `yaml:"block_phone_numbers"`
	BlockEmails       bool     `yaml:"block_emails"`
	BlockURLs         bool     `yaml:"block_urls"`
	BlockCreditCards  bool     `yaml:"block_credit_cards"`
	BlockSSN          bool     `yaml:"block_ssn"`
	BlockProfanity    bool     `yaml:"block_profanity"`
	CustomPatterns    []string `yaml:"custom_patterns"`
}

// ToGuardrailConfig maps the section onto the validator config.
func (s GuardrailSection) ToGuardrailConfig() guardrail.Config {
	return guardrail.Config{
		MaxLength:         s.MaxResponseLength,
		BlockPhoneNumbers: s.BlockPhoneNumbers,
		BlockEmails:       s.BlockEmails,
		BlockURLs:         s.BlockURLs,
		BlockCreditCards:  s.BlockCreditCards,
		BlockSSN:          s.BlockSSN,
		BlockProfanity:    s.BlockProfanity,
		CustomPatterns:    s.CustomPatterns,
	}
}

// TransportSection selects and configures the SMS path.
type TransportSection struct {
	// Mode is "termux" (on-device) or "aws" (SNS out, SQS in).
	Mode string `yaml:"mode"`

	TermuxSendCommand    string `yaml:"termux_send_command"`
	TermuxListCommand    string `yaml:"termux_list_command"`
	TermuxListLimit      int    `yaml:"termux_list_limit"`
	CommandTimeoutSecond int    `yaml:"command_timeout_seconds"`

	AWSRegion   string `yaml:"aws_region"`
	SQSQueueURL string `yaml:"sqs_queue_url"`
	SNSSenderID string `yaml:"sns_sender_id"`
}

// ToTermuxConfig maps the section onto the bridge config.
func (s TransportSection) ToTermuxConfig() transport.TermuxConfig {
	return transport.TermuxConfig{
		SendCommand:    s.TermuxSendCommand,
		ListCommand:    s.TermuxListCommand,
		ListLimit:      s.TermuxListLimit,
		CommandTimeout: time.Duration(s.CommandTimeoutSecond) * time.Second,
	}
}

// StoreSection configures persistence.
type StoreSection struct {
	Path string `yaml:"path"`
	// RulesPath is the YAML rule definitions file.
	RulesPath string `yaml:"rules_path"`
	// RetentionDays prunes messages older than this; zero keeps everything.
	RetentionDays int `yaml:"retention_days"`
}

// EventsSection configures the webhook notifier.
type EventsSection struct {
	WebhookURL            string   `yaml:"webhook_url"`
	WebhookTimeoutSeconds int      `yaml:"webhook_timeout_seconds"`
	WebhookEventTypes     []string `yaml:"webhook_event_types"`
}

// ObservabilitySection configures logging and metrics.
type ObservabilitySection struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// Config is the full daemon configuration.
type Config struct {
	LLM           LLMSection           `yaml:"llm"`
	SMS           SMSSection           `yaml:"sms"`
	RateLimit     RateLimitSection     `yaml:"rate_limit"`
	Guardrail     GuardrailSection     `yaml:"guardrail"`
	Transport     TransportSection     `yaml:"transport"`
	Store         StoreSection         `yaml:"store"`
	Events        EventsSection        `yaml:"events"`
	Observability ObservabilitySection `yaml:"observability"`
}

// Default returns the documented defaults: Termux transport, AI enabled with
// rule fallback, conservative rate limits, everything-but-URLs guardrails.
func Default() Config {
	llmDefaults := llm.DefaultConfig()
	limiterDefaults := limited.DefaultConfig()
	guardrailDefaults := guardrail.DefaultConfig()

	return Config{
		LLM: LLMSection{
			Provider:       llmDefaults.Provider,
			Model:          llmDefaults.Model,
			Temperature:    llmDefaults.Temperature,
			MaxTokens:      llmDefaults.MaxTokens,
			TopP:           llmDefaults.TopP,
			TimeoutSeconds: int(llmDefaults.Timeout / time.Second),
		},
		SMS: SMSSection{
			AutoReply:           true,
			AIMode:              true,
			FallbackToRules:     true,
			MaxContextMessages:  10,
			PollIntervalSeconds: 3,
		},
		RateLimit: RateLimitSection{
			MaxPerMinute:       limiterDefaults.MaxPerMinute,
			MaxPerHour:         limiterDefaults.MaxPerHour,
			MaxPerDay:          limiterDefaults.MaxPerDay,
			MinIntervalSeconds: int(limiterDefaults.MinInterval / time.Second),
			BurstAllowance:     limiterDefaults.BurstAllowance,
			BurstWindowSeconds: int(limiterDefaults.BurstWindow / time.Second),
		},
		Guardrail: GuardrailSection{
			MaxResponseLength: guardrailDefaults.MaxLength,
			BlockPhoneNumbers: guardrailDefaults.BlockPhoneNumbers,
			BlockEmails:       guardrailDefaults.BlockEmails,
			BlockURLs:         guardrailDefaults.BlockURLs,
			BlockCreditCards:  guardrailDefaults.BlockCreditCards,
			BlockSSN:          guardrailDefaults.BlockSSN,
			BlockProfanity:    guardrailDefaults.BlockProfanity,
		},
		Transport: TransportSection{
			Mode:                 "termux",
			TermuxListLimit:      25,
			CommandTimeoutSecond: 30,
		},
		Store: StoreSection{
			Path:      "replytheory.db",
			RulesPath: "rules.yaml",
		},
		Events: EventsSection{
			WebhookTimeoutSeconds: 10,
			WebhookEventTypes:     []string{"response.sent", "guardrail.violation"},
		},
		Observability: ObservabilitySection{
			LogLevel:  "info",
			LogFormat: "json",
		},
	}
}

// Load reads path over the defaults, applies environment overrides, and
// validates. Unknown YAML keys are an error, not a silent ignore.
func Load(path string) (Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	decoder := yaml.NewDecoder(strings.NewReader(string(raw)))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overlays REPLYTHEORY_* variables. Environment wins over file
// values so secrets stay out of config files.
func (c *Config) ApplyEnv() {
	overlayString(&c.LLM.Provider, "LLM_PROVIDER")
	overlayString(&c.LLM.Model, "LLM_MODEL")
	overlayString(&c.LLM.APIKey, "LLM_API_KEY")
	overlayString(&c.LLM.APIBase, "LLM_API_BASE")
	overlayString(&c.LLM.OllamaHost, "OLLAMA_HOST")
	overlayString(&c.Store.Path, "DB_PATH")
	overlayString(&c.Store.RulesPath, "RULES_PATH")
	overlayString(&c.Transport.AWSRegion, "AWS_REGION")
	overlayString(&c.Transport.SQSQueueURL, "SQS_QUEUE_URL")
	overlayString(&c.Events.WebhookURL, "WEBHOOK_URL")
	overlayString(&c.Observability.MetricsAddr, "METRICS_ADDR")
	overlayString(&c.Observability.LogLevel, "LOG_LEVEL")
	overlayBool(&c.SMS.AutoReply, "AUTO_REPLY")
	overlayBool(&c.SMS.AIMode, "AI_MODE")
}

func overlayString(dest *string, suffix string) {
	if value, ok := os.LookupEnv(envPrefix + suffix); ok && value != "" {
		*dest = value
	}
}

func overlayBool(dest *bool, suffix string) {
	if value, ok := os.LookupEnv(envPrefix + suffix); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*dest = parsed
		}
	}
}

// Validate checks every section, delegating to component validators where
// they exist and naming the offending field otherwise.
func (c Config) Validate() error {
	if c.SMS.AIMode {
		if err := c.LLM.ToLLMConfig().Validate(); err != nil {
			return fmt.Errorf("config: llm: %w", err)
		}
	}
	if err := c.RateLimit.ToLimiterConfig().Validate(); err != nil {
		return fmt.Errorf("config: rate_limit: %w", err)
	}
	if err := c.Guardrail.ToGuardrailConfig().Validate(); err != nil {
		return fmt.Errorf("config: guardrail: %w", err)
	}
	if c.SMS.MaxContextMessages < 0 {
		return &FieldError{Section: "sms", Field: "max_context_messages", Reason: "cannot be negative"}
	}
	if c.SMS.PollIntervalSeconds < 1 {
		return &FieldError{Section: "sms", Field: "poll_interval_seconds", Reason: "must be at least 1"}
	}
	switch c.Transport.Mode {
	case "termux":
	case "aws":
		if c.Transport.SQSQueueURL == "" {
			return &FieldError{Section: "transport", Field: "sqs_queue_url", Reason: "required in aws mode"}
		}
	default:
		return &FieldError{Section: "transport", Field: "mode", Reason: "must be termux or aws"}
	}
	if c.Store.Path == "" {
		return &FieldError{Section: "store", Field: "path", Reason: "cannot be empty"}
	}
	if c.Store.RetentionDays < 0 {
		return &FieldError{Section: "store", Field: "retention_days", Reason: "cannot be negative"}
	}
	return nil
}

// ToResponderConfig assembles the orchestrator config, loading the optional
// personality and agent-rules files when configured.
func (c Config) ToResponderConfig() responder.Config {
	cfg := responder.Config{
		AIEnabled:          c.SMS.AIMode,
		FallbackToRules:    c.SMS.FallbackToRules,
		MaxContextMessages: c.SMS.MaxContextMessages,
	}
	cfg.Personality = readInstructionFile(c.SMS.PersonalityFile)
	cfg.AgentRules = readInstructionFile(c.SMS.AgentRulesFile)
	return cfg
}

func readInstructionFile(path string) string {
	if path == "" {
		return ""
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(raw))
}
