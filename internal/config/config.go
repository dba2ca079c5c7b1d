// Package config 读取 config.yaml、.env 和环境变量
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"arxiv-digest/internal/common"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "ARXIV_DIGEST"

// 论文来源
const (
	SourceListing = "listing"
	SourceRSS     = "rss"
	SourceJSONL   = "jsonl"
)

// LLM 提供方
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

type Config struct {
	Topic      string   `mapstructure:"topic"`
	Categories []string `mapstructure:"categories"`
	Interest   string   `mapstructure:"interest"`
	Threshold  int      `mapstructure:"threshold"`
	MaxPapers  int      `mapstructure:"max_papers"`
	BatchSize  int      `mapstructure:"batch_size"`
	SkipSeen   bool     `mapstructure:"skip_seen"`

	Timeout  time.Duration `mapstructure:"timeout"`
	Schedule string        `mapstructure:"schedule"`
	Provider string        `mapstructure:"provider"`

	Source   SourceConfig   `mapstructure:"source"`
	Scoring  ScoringConfig  `mapstructure:"scoring"`
	Summary  SummaryConfig  `mapstructure:"summary"`
	Gemini   GeminiConfig   `mapstructure:"gemini"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Email    EmailConfig    `mapstructure:"email"`
	GitHub   GitHubConfig   `mapstructure:"github"`
	HTML     HTMLConfig     `mapstructure:"html"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type SourceConfig struct {
	Kind  string `mapstructure:"kind"`
	URL   string `mapstructure:"url"`
	Path  string `mapstructure:"path"`
	Limit int    `mapstructure:"limit"`
}

type ScoringConfig struct {
	Model          string        `mapstructure:"model"`
	PromptPath     string        `mapstructure:"prompt_path"`
	TokensPerPaper int           `mapstructure:"tokens_per_paper"`
	Temperature    float32       `mapstructure:"temperature"`
	TopP           float32       `mapstructure:"top_p"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
}

type SummaryConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Model    string        `mapstructure:"model"`
	Workers  int           `mapstructure:"workers"`
	Interval time.Duration `mapstructure:"interval"`
}

type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
}

type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

type WebhookConfig struct {
	URL      string        `mapstructure:"url"`
	Username string        `mapstructure:"username"`
	Interval time.Duration `mapstructure:"interval"`
}

type EmailConfig struct {
	APIKey string `mapstructure:"api_key"`
	From   string `mapstructure:"from"`
	To     string `mapstructure:"to"`
}

type GitHubConfig struct {
	Token      string   `mapstructure:"token"`
	Repository string   `mapstructure:"repository"`
	Labels     []string `mapstructure:"labels"`
}

type HTMLConfig struct {
	Path string `mapstructure:"path"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr string        `mapstructure:"addr"`
	TTL  time.Duration `mapstructure:"ttl"`
}

type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// 密钥只从环境变量读取，沿用原来的变量名
var envBindings = map[string]string{
	"gemini.api_key":          "GEMINI_API_KEY",
	"openai.api_key":          "OPENAI_API_KEY",
	"openai.base_url":         "OPENAI_BASE_URL",
	"webhook.url":             "DISCORD_WEBHOOK_URL",
	"email.api_key":           "SENDGRID_API_KEY",
	"email.from":              "FROM_EMAIL",
	"email.to":                "TO_EMAIL",
	"github.token":            "GITHUB_TOKEN",
	"github.repository":       "GITHUB_REPOSITORY",
	"database.dsn":            "DATABASE_DSN",
	"redis.addr":              "REDIS_ADDR",
	"metrics.pushgateway_url": "PUSHGATEWAY_URL",
}

func setDefaults(v *viper.Viper) {
	// 没有默认值的键 AutomaticEnv 在 Unmarshal 时看不到
	v.SetDefault("topic", "")
	v.SetDefault("categories", []string{})
	v.SetDefault("interest", "")
	v.SetDefault("skip_seen", false)
	v.SetDefault("threshold", 7)
	v.SetDefault("batch_size", 16)
	v.SetDefault("max_papers", 0)
	v.SetDefault("timeout", 30*time.Minute)
	v.SetDefault("schedule", "0 9 * * 1-5")
	v.SetDefault("provider", ProviderGemini)

	v.SetDefault("source.kind", SourceListing)
	v.SetDefault("source.path", "data/{topic}.jsonl")

	v.SetDefault("scoring.tokens_per_paper", 128)
	v.SetDefault("scoring.temperature", 0.4)
	v.SetDefault("scoring.top_p", 1.0)
	v.SetDefault("scoring.max_retries", 3)
	v.SetDefault("scoring.retry_delay", 2*time.Second)

	v.SetDefault("summary.enabled", true)
	v.SetDefault("summary.workers", 3)
	v.SetDefault("summary.interval", time.Second)

	v.SetDefault("webhook.interval", 500*time.Millisecond)
	v.SetDefault("html.path", "digest.html")
	v.SetDefault("redis.ttl", 7*24*time.Hour)
	v.SetDefault("metrics.job", "arxiv_digest")
}

// Load path 为空时在当前目录找 config.yaml，找不到就只用默认值和环境变量
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, common.WrapError(common.ErrCodeConfiguration, "读取 .env 失败", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, common.WrapError(common.ErrCodeConfiguration, "绑定环境变量失败: "+env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, common.WrapError(common.ErrCodeConfiguration, "读取配置文件失败", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, common.WrapError(common.ErrCodeConfiguration, "解析配置失败", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查配置之间的约束；topic 与分类是否匹配由 arxiv 目录负责
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(c.Topic) == "" {
		add("topic 不能为空")
	}
	if c.Threshold < 0 || c.Threshold > 10 {
		add("threshold 必须在 0-10 之间: %d", c.Threshold)
	}
	if c.BatchSize <= 0 {
		add("batch_size 必须大于 0: %d", c.BatchSize)
	}
	if c.MaxPapers < 0 {
		add("max_papers 不能为负数: %d", c.MaxPapers)
	}
	if c.Timeout <= 0 {
		add("timeout 必须大于 0")
	}

	switch c.Source.Kind {
	case SourceListing:
	case SourceRSS:
		// RSS 只有分类代码，没有分类名，无法按分类过滤
		if len(c.Categories) > 0 {
			add("source.kind=rss 不支持 categories 过滤")
		}
	case SourceJSONL:
		if c.Source.Path == "" {
			add("source.kind=jsonl 需要 source.path")
		}
	default:
		add("未知的 source.kind: %q", c.Source.Kind)
	}

	if c.NeedsLLM() {
		switch c.Provider {
		case ProviderGemini:
			if c.Gemini.APIKey == "" {
				add("GEMINI_API_KEY 未设置")
			}
		case ProviderOpenAI:
			if c.OpenAI.APIKey == "" {
				add("OPENAI_API_KEY 未设置")
			}
		default:
			add("未知的 provider: %q", c.Provider)
		}
	}
	if c.Summary.Enabled && c.Summary.Workers <= 0 {
		add("summary.workers 必须大于 0")
	}

	if len(problems) > 0 {
		return common.NewError(common.ErrCodeConfiguration, strings.Join(problems, "; "))
	}
	return nil
}

// NeedsLLM 有 interest 要打分或者要生成摘要时才需要模型
func (c *Config) NeedsLLM() bool {
	return c.Interest != "" || c.Summary.Enabled
}
