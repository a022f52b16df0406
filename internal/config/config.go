package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone = "UTC"

	configPathEnv        = "TRENDPRESS_CONFIG"
	logLevelEnv          = "LOG_LEVEL"
	databaseDSNEnv       = "DATABASE_DSN"
	openAIAPIKeyEnv      = "OPENAI_API_KEY"
	cohereAPIKeyEnv      = "COHERE_API_KEY"
	wordpressBaseURLEnv  = "WORDPRESS_BASE_URL"
	wordpressUsernameEnv = "WORDPRESS_USERNAME"
	wordpressPasswordEnv = "WORDPRESS_APPLICATION_PASSWORD"
	telegramTokenEnv     = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv    = "TELEGRAM_CHAT_ID"
	redisAddrEnv         = "REDIS_ADDR"
	imageS3BucketEnv     = "IMAGE_S3_BUCKET"
)

// Backend and strategy identifiers accepted in the YAML file.
const (
	DriverBadger      = "badger"
	DriverPostgres    = "postgres"
	ProviderOpenAI    = "openai"
	ProviderCohere    = "cohere"
	ScannerRedditHTML = "reddit-html"
	ScannerRSS        = "rss"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Database      DatabaseConfig     `yaml:"database"`
	Ingest        IngestConfig       `yaml:"ingest"`
	Sites         []SiteConfig       `yaml:"sites"`
	TextGen       TextGenConfig      `yaml:"textgen"`
	ImageGen      ImageGenConfig     `yaml:"imagegen"`
	WordPress     WordPressConfig    `yaml:"wordpress"`
	Notifications NotificationConfig `yaml:"notifications"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Lock          LockConfig         `yaml:"lock"`
	Runner        RunnerConfig       `yaml:"runner"`
	Server        ServerConfig       `yaml:"server"`
}

// LoggingConfig selects the log verbosity.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DatabaseConfig selects the record store backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

// IngestConfig bounds topic discovery.
type IngestConfig struct {
	Limit int `yaml:"limit"`
}

// SiteConfig describes a single topic source with its scanner strategy.
type SiteConfig struct {
	Name       string            `yaml:"name"`
	Scanner    string            `yaml:"scanner"`
	Categories []CategoryConfig  `yaml:"categories"`
	Options    map[string]string `yaml:"options"`
}

// CategoryConfig holds the concrete endpoint to crawl (e.g. a subreddit listing URL).
type CategoryConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// TextGenConfig defines how to contact the generative text API.
type TextGenConfig struct {
	Provider string        `yaml:"provider"`
	Endpoint string        `yaml:"endpoint"`
	Model    string        `yaml:"model"`
	APIKey   string        `yaml:"apiKey"`
	Timeout  time.Duration `yaml:"timeout"`
	Prompts  PromptsConfig `yaml:"prompts"`
}

// PromptsConfig holds one template per generated artifact. Templates take a
// single %s (topic or title).
type PromptsConfig struct {
	Title   PromptConfig `yaml:"title"`
	Body    PromptConfig `yaml:"body"`
	Tags    PromptConfig `yaml:"tags"`
	Excerpt PromptConfig `yaml:"excerpt"`
	Image   PromptConfig `yaml:"image"`
}

// PromptConfig is a prompt template with its token budget.
type PromptConfig struct {
	Template  string `yaml:"template"`
	MaxTokens int    `yaml:"maxTokens"`
}

// Render fills the template with subject.
func (p PromptConfig) Render(subject string) string {
	if !strings.Contains(p.Template, "%s") {
		return strings.TrimSpace(p.Template + " " + subject)
	}
	return fmt.Sprintf(p.Template, subject)
}

// ImageGenConfig describes the illustration backend and where images live.
type ImageGenConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Model    string        `yaml:"model"`
	APIKey   string        `yaml:"apiKey"`
	Size     string        `yaml:"size"`
	Dir      string        `yaml:"dir"`
	Timeout  time.Duration `yaml:"timeout"`
	S3       S3Config      `yaml:"s3"`
}

// S3Config optionally mirrors generated images to a bucket.
type S3Config struct {
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	Region       string `yaml:"region"`
	Profile      string `yaml:"profile"`
	UsePathStyle bool   `yaml:"usePathStyle"`
}

// WordPressConfig holds the CMS REST endpoint and its static credential pair.
type WordPressConfig struct {
	BaseURL             string        `yaml:"baseUrl"`
	Username            string        `yaml:"username"`
	ApplicationPassword string        `yaml:"applicationPassword"`
	TagsPerPage         int           `yaml:"tagsPerPage"`
	CategoryIDs         []int64       `yaml:"categoryIds"`
	Timeout             time.Duration `yaml:"timeout"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// SchedulerConfig defines when the pipeline should run in serve mode.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// LockConfig enables the cross-process run lock when RedisAddr is set.
type LockConfig struct {
	RedisAddr string        `yaml:"redisAddr"`
	Password  string        `yaml:"password"`
	Key       string        `yaml:"key"`
	TTL       time.Duration `yaml:"ttl"`
}

// RunnerConfig tunes per-record processing.
type RunnerConfig struct {
	LeaseTTL   time.Duration `yaml:"leaseTTL"`
	BatchLimit int           `yaml:"batchLimit"`
}

// ServerConfig is the status API listen address used by `serve`.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads YAML configuration (if present), applies environment overrides
// and validates the result. An explicit path wins over TRENDPRESS_CONFIG.
func Load(path string) (Config, error) {
	cfg, err := load(path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadReadOnly is Load for commands that only read records: just the
// database section is validated, so no service credentials are needed.
func LoadReadOnly(path string) (Config, error) {
	cfg, err := load(path)
	if err != nil {
		return Config{}, err
	}
	if problems := cfg.Database.problems(); len(problems) > 0 {
		return Config{}, fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return cfg, nil
}

func load(path string) (Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("%w: read %s: %v", ErrInvalidConfig, path, err)
		}
		var fileCfg Config
		if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
			return Config{}, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
		}
		cfg = mergeConfig(cfg, fileCfg)
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()
	return cfg, nil
}

// Validate reports missing credentials and unusable settings.
func (c Config) Validate() error {
	problems := c.Database.problems()

	switch c.TextGen.Provider {
	case ProviderOpenAI, ProviderCohere:
		if c.TextGen.APIKey == "" {
			problems = append(problems, "textgen.apiKey is required")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown textgen.provider %q", c.TextGen.Provider))
	}

	if c.WordPress.BaseURL == "" {
		problems = append(problems, "wordpress.baseUrl is required")
	}
	if c.WordPress.Username == "" || c.WordPress.ApplicationPassword == "" {
		problems = append(problems, "wordpress credentials are required")
	}

	if len(c.Sites) == 0 {
		problems = append(problems, "at least one site is required")
	}
	for _, site := range c.Sites {
		if site.Scanner != ScannerRedditHTML && site.Scanner != ScannerRSS {
			problems = append(problems, fmt.Sprintf("site %s: unknown scanner %q", site.Name, site.Scanner))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

func (d DatabaseConfig) problems() []string {
	switch d.Driver {
	case DriverBadger:
		if d.Path == "" {
			return []string{"database.path is required for badger"}
		}
	case DriverPostgres:
		if d.DSN == "" {
			return []string{"database.dsn is required for postgres"}
		}
	default:
		return []string{fmt.Sprintf("unknown database.driver %q", d.Driver)}
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
		c.Database.Driver = DriverPostgres
	}

	switch c.TextGen.Provider {
	case ProviderCohere:
		if v := os.Getenv(cohereAPIKeyEnv); v != "" {
			c.TextGen.APIKey = v
		}
	default:
		if v := os.Getenv(openAIAPIKeyEnv); v != "" {
			c.TextGen.APIKey = v
		}
	}
	if v := os.Getenv(openAIAPIKeyEnv); v != "" && c.ImageGen.APIKey == "" {
		c.ImageGen.APIKey = v
	}

	if v := os.Getenv(wordpressBaseURLEnv); v != "" {
		c.WordPress.BaseURL = v
	}
	if v := os.Getenv(wordpressUsernameEnv); v != "" {
		c.WordPress.Username = v
	}
	if v := os.Getenv(wordpressPasswordEnv); v != "" {
		c.WordPress.ApplicationPassword = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv(redisAddrEnv); v != "" {
		c.Lock.RedisAddr = v
	}
	if v := os.Getenv(imageS3BucketEnv); v != "" {
		c.ImageGen.S3.Bucket = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}

	if override.Database.Driver != "" {
		base.Database.Driver = override.Database.Driver
	}
	if override.Database.Path != "" {
		base.Database.Path = override.Database.Path
	}
	if override.Database.DSN != "" {
		base.Database.DSN = override.Database.DSN
	}

	if override.Ingest.Limit > 0 {
		base.Ingest.Limit = override.Ingest.Limit
	}
	if len(override.Sites) > 0 {
		base.Sites = override.Sites
	}

	base.TextGen = mergeTextGen(base.TextGen, override.TextGen)
	base.ImageGen = mergeImageGen(base.ImageGen, override.ImageGen)

	if override.WordPress.BaseURL != "" {
		base.WordPress.BaseURL = override.WordPress.BaseURL
	}
	if override.WordPress.Username != "" {
		base.WordPress.Username = override.WordPress.Username
	}
	if override.WordPress.ApplicationPassword != "" {
		base.WordPress.ApplicationPassword = override.WordPress.ApplicationPassword
	}
	if override.WordPress.TagsPerPage > 0 {
		base.WordPress.TagsPerPage = override.WordPress.TagsPerPage
	}
	if len(override.WordPress.CategoryIDs) > 0 {
		base.WordPress.CategoryIDs = override.WordPress.CategoryIDs
	}
	if override.WordPress.Timeout > 0 {
		base.WordPress.Timeout = override.WordPress.Timeout
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}

	if override.Scheduler.CronExpression != "" {
		base.Scheduler.CronExpression = override.Scheduler.CronExpression
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}

	if override.Lock.RedisAddr != "" {
		base.Lock.RedisAddr = override.Lock.RedisAddr
	}
	if override.Lock.Password != "" {
		base.Lock.Password = override.Lock.Password
	}
	if override.Lock.Key != "" {
		base.Lock.Key = override.Lock.Key
	}
	if override.Lock.TTL > 0 {
		base.Lock.TTL = override.Lock.TTL
	}

	if override.Runner.LeaseTTL > 0 {
		base.Runner.LeaseTTL = override.Runner.LeaseTTL
	}
	if override.Runner.BatchLimit > 0 {
		base.Runner.BatchLimit = override.Runner.BatchLimit
	}

	if override.Server.Addr != "" {
		base.Server.Addr = override.Server.Addr
	}

	return base
}

func mergeTextGen(base, override TextGenConfig) TextGenConfig {
	if override.Provider != "" {
		base.Provider = override.Provider
	}
	if override.Endpoint != "" {
		base.Endpoint = override.Endpoint
	}
	if override.Model != "" {
		base.Model = override.Model
	}
	if override.APIKey != "" {
		base.APIKey = override.APIKey
	}
	if override.Timeout > 0 {
		base.Timeout = override.Timeout
	}
	base.Prompts.Title = mergePrompt(base.Prompts.Title, override.Prompts.Title)
	base.Prompts.Body = mergePrompt(base.Prompts.Body, override.Prompts.Body)
	base.Prompts.Tags = mergePrompt(base.Prompts.Tags, override.Prompts.Tags)
	base.Prompts.Excerpt = mergePrompt(base.Prompts.Excerpt, override.Prompts.Excerpt)
	base.Prompts.Image = mergePrompt(base.Prompts.Image, override.Prompts.Image)
	return base
}

func mergePrompt(base, override PromptConfig) PromptConfig {
	if override.Template != "" {
		base.Template = override.Template
	}
	if override.MaxTokens > 0 {
		base.MaxTokens = override.MaxTokens
	}
	return base
}

func mergeImageGen(base, override ImageGenConfig) ImageGenConfig {
	if override.Endpoint != "" {
		base.Endpoint = override.Endpoint
	}
	if override.Model != "" {
		base.Model = override.Model
	}
	if override.APIKey != "" {
		base.APIKey = override.APIKey
	}
	if override.Size != "" {
		base.Size = override.Size
	}
	if override.Dir != "" {
		base.Dir = override.Dir
	}
	if override.Timeout > 0 {
		base.Timeout = override.Timeout
	}
	if override.S3.Bucket != "" {
		base.S3 = override.S3
	}
	return base
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging:  LoggingConfig{Level: "info"},
		Database: DatabaseConfig{Driver: DriverBadger, Path: "data/records"},
		Ingest:   IngestConfig{Limit: 1},
		Sites: []SiteConfig{
			{
				Name:    "reddit-chatgpt",
				Scanner: ScannerRedditHTML,
				Categories: []CategoryConfig{
					{Name: "ChatGPT", URL: "https://old.reddit.com/r/ChatGPT/new/"},
				},
			},
		},
		TextGen: TextGenConfig{
			Provider: ProviderOpenAI,
			Endpoint: "https://api.openai.com/v1/chat/completions",
			Model:    "gpt-4o-mini",
			Timeout:  60 * time.Second,
			Prompts: PromptsConfig{
				Title:   PromptConfig{Template: "Generate a title for an article about %s.", MaxTokens: 30},
				Body:    PromptConfig{Template: "Generate an article with 4 paragraphs about %s with a call to action.", MaxTokens: 1000},
				Tags:    PromptConfig{Template: "Write ten tags for an article about this topic [%s]. Create comma separated tags without hashes.", MaxTokens: 50},
				Excerpt: PromptConfig{Template: "Write a two sentence synopsis of [%s].", MaxTokens: 50},
				Image:   PromptConfig{Template: "%s"},
			},
		},
		ImageGen: ImageGenConfig{
			Endpoint: "https://api.openai.com/v1/images/generations",
			Model:    "dall-e-2",
			Size:     "512x512",
			Dir:      "images",
			Timeout:  120 * time.Second,
		},
		WordPress: WordPressConfig{
			TagsPerPage: 10,
			Timeout:     30 * time.Second,
		},
		Scheduler: SchedulerConfig{CronExpression: "0 * * * *", Timezone: defaultTimezone, location: tz},
		Lock: LockConfig{
			Key: "trendpress:run",
			TTL: 30 * time.Minute,
		},
		Runner: RunnerConfig{
			LeaseTTL:   10 * time.Minute,
			BatchLimit: 0,
		},
		Server: ServerConfig{Addr: ":8080"},
	}
}
