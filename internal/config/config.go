package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultSystemPrompt is used when training.system_prompt is unset.
const DefaultSystemPrompt = "You are an assistant that converts bank statement text into the statement's info and transactions tables as JSON."

// Config holds the full application configuration.
type Config struct {
	Document  DocumentConfig  `yaml:"document" mapstructure:"document"`
	Schema    SchemaConfig    `yaml:"schema" mapstructure:"schema"`
	Training  TrainingConfig  `yaml:"training" mapstructure:"training"`
	Provider  ProviderConfig  `yaml:"provider" mapstructure:"provider"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Pricing   PricingConfig   `yaml:"pricing" mapstructure:"pricing"`
	Metrics   MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// DocumentConfig configures source document text extraction.
type DocumentConfig struct {
	Provider         string `yaml:"provider" mapstructure:"provider"`
	PdfToTextPath    string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	Layout           bool   `yaml:"layout" mapstructure:"layout"`
	NormalizeUnicode bool   `yaml:"normalize_unicode" mapstructure:"normalize_unicode"`
	MistralKey       string `yaml:"mistral_api_key" mapstructure:"mistral_api_key"`
	MistralModel     string `yaml:"mistral_model" mapstructure:"mistral_model"`
}

// SchemaConfig names the spreadsheet roles and the output keys of a record.
type SchemaConfig struct {
	MarkerLabel       string `yaml:"marker_label" mapstructure:"marker_label"`
	DescriptionColumn string `yaml:"description_column" mapstructure:"description_column"`
	AmountColumn      string `yaml:"amount_column" mapstructure:"amount_column"`
	InfoKey           string `yaml:"info_key" mapstructure:"info_key"`
	TransactionsKey   string `yaml:"transactions_key" mapstructure:"transactions_key"`
}

// TrainingConfig configures corpus output and job submission.
type TrainingConfig struct {
	SystemPrompt string `yaml:"system_prompt" mapstructure:"system_prompt"`
	Epochs       int    `yaml:"epochs" mapstructure:"epochs"`
	Model        string `yaml:"model" mapstructure:"model"`
	Simulate     bool   `yaml:"simulate" mapstructure:"simulate"`
	Poll         bool   `yaml:"poll" mapstructure:"poll"`
	RegistryPath string `yaml:"registry_path" mapstructure:"registry_path"`
	OutputMode   string `yaml:"output_mode" mapstructure:"output_mode"`
	OnUnverified string `yaml:"on_unverified" mapstructure:"on_unverified"`
}

// ProviderConfig holds the fine-tuning service settings.
type ProviderConfig struct {
	Key               string  `yaml:"key" mapstructure:"key"`
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Retry             Retry   `yaml:"retry" mapstructure:"retry"`
}

// Retry configures retries against the fine-tuning service.
type Retry struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// AnthropicConfig holds Anthropic API settings for baseline evaluation.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// PricingConfig holds per-model training prices.
type PricingConfig struct {
	Training []TrainingPrice `yaml:"training" mapstructure:"training"`
}

// TrainingPrice is the training price of one model (USD per million tokens).
type TrainingPrice struct {
	Model           string  `yaml:"model" mapstructure:"model"`
	TrainingPerMTok float64 `yaml:"training_per_mtok" mapstructure:"training_per_mtok"`
	Description     string  `yaml:"description" mapstructure:"description"`
}

// MetricsConfig configures the prometheus textfile export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile" mapstructure:"textfile"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FINETUNE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("document.provider", "local")
	v.SetDefault("document.pdftotext_path", "pdftotext")
	v.SetDefault("document.layout", false)
	v.SetDefault("document.normalize_unicode", true)
	v.SetDefault("document.mistral_api_key", "")
	v.SetDefault("document.mistral_model", "pixtral-large-latest")
	v.SetDefault("schema.marker_label", "Cutoff Marker:")
	v.SetDefault("schema.description_column", "Description")
	v.SetDefault("schema.amount_column", "Amount")
	v.SetDefault("schema.info_key", "Info")
	v.SetDefault("schema.transactions_key", "Transactions")
	v.SetDefault("training.system_prompt", DefaultSystemPrompt)
	v.SetDefault("training.epochs", 3)
	v.SetDefault("training.model", "gpt-4o-mini-2024-07-18")
	v.SetDefault("training.simulate", true)
	v.SetDefault("training.poll", false)
	v.SetDefault("training.registry_path", "model_registry.json")
	v.SetDefault("training.output_mode", "combined")
	v.SetDefault("training.on_unverified", "prompt")
	v.SetDefault("provider.key", "")
	v.SetDefault("provider.base_url", "https://api.openai.com/v1")
	v.SetDefault("provider.requests_per_second", 2.0)
	v.SetDefault("provider.retry.max_attempts", 3)
	v.SetDefault("provider.retry.initial_backoff_ms", 500)
	v.SetDefault("provider.retry.max_backoff_ms", 30000)
	v.SetDefault("provider.retry.multiplier", 2.0)
	v.SetDefault("provider.retry.jitter_fraction", 0.25)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 8192)
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("pricing.training", []map[string]any{
		{"model": "gpt-4o-2024-08-06", "training_per_mtok": 25.0, "description": "GPT-4o (2024-08-06)"},
		{"model": "gpt-4o-mini-2024-07-18", "training_per_mtok": 3.0, "description": "GPT-4o mini (2024-07-18)"},
		{"model": "gpt-3.5-turbo", "training_per_mtok": 8.0, "description": "GPT-3.5 Turbo"},
	})

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the configuration for the given command mode. Shared
// settings are always checked; credentials only where the mode needs them.
func (c *Config) Validate(mode string) error {
	var errs []string

	if c.Training.Epochs <= 0 {
		errs = append(errs, fmt.Sprintf("training.epochs must be > 0, got %d", c.Training.Epochs))
	}
	switch c.Training.OutputMode {
	case "combined", "per-pair":
	default:
		errs = append(errs, fmt.Sprintf("training.output_mode %q must be combined or per-pair", c.Training.OutputMode))
	}
	switch c.Training.OnUnverified {
	case "prompt", "no-cutoff", "abort":
	default:
		errs = append(errs, fmt.Sprintf("training.on_unverified %q must be prompt, no-cutoff or abort", c.Training.OnUnverified))
	}
	if c.Schema.InfoKey == "" || c.Schema.TransactionsKey == "" {
		errs = append(errs, "schema.info_key and schema.transactions_key are required")
	} else if c.Schema.InfoKey == c.Schema.TransactionsKey {
		errs = append(errs, "schema.info_key and schema.transactions_key must differ")
	}
	if c.Schema.MarkerLabel == "" {
		errs = append(errs, "schema.marker_label is required")
	}

	switch mode {
	case "prepare", "validate", "estimate", "history":
	case "train":
		if !c.Training.Simulate && c.Provider.Key == "" {
			errs = append(errs, "provider.key is required unless training.simulate is set")
		}
	case "models":
		if c.Provider.Key == "" {
			errs = append(errs, "provider.key is required")
		}
	case "evaluate":
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// PriceTable converts the configured training prices to a model-keyed map.
func (p PricingConfig) PriceTable() map[string]TrainingPrice {
	out := make(map[string]TrainingPrice, len(p.Training))
	for _, tp := range p.Training {
		out[tp.Model] = tp
	}
	return out
}

// InitLogger builds a zap logger from the log config.
func InitLogger(cfg LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, eris.Wrap(err, "config: build logger")
	}

	return logger, nil
}
