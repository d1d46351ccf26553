package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config holds all configuration for the analysis engine
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Storage   StorageConfig   `mapstructure:"storage"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// LLMConfig contains the generative model provider configuration
type LLMConfig struct {
	Type         string        `mapstructure:"type"` // openai, anthropic, local, etc.
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Model        string        `mapstructure:"model"`
	Temperature  float64       `mapstructure:"temperature"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	Timeout      time.Duration `mapstructure:"timeout"`
	StageTimeout time.Duration `mapstructure:"stage_timeout"`
}

// Normalize applies defaults for unset LLM values.
func (l LLMConfig) Normalize() LLMConfig {
	if l.Type == "" {
		l.Type = "openai"
	}
	if l.Model == "" {
		l.Model = "gpt-4o-mini"
	}
	if l.MaxTokens <= 0 {
		l.MaxTokens = 4096
	}
	if l.Timeout <= 0 {
		l.Timeout = 60 * time.Second
	}
	if l.StageTimeout <= 0 {
		l.StageTimeout = 2 * time.Minute
	}
	return l
}

// SchedulerConfig drives the control loop: the announcement calendar and the
// critical/standard firing rules around it.
type SchedulerConfig struct {
	Calendar             []time.Time   `mapstructure:"calendar"` // announcement datetimes, UTC
	CriticalWindowBefore time.Duration `mapstructure:"critical_window_before"`
	CriticalWindowAfter  time.Duration `mapstructure:"critical_window_after"`
	CriticalCooldown     time.Duration `mapstructure:"critical_cooldown"`
	DailyCron            string        `mapstructure:"daily_cron"`
	TickInterval         time.Duration `mapstructure:"tick_interval"`
	Lookback             time.Duration `mapstructure:"lookback"`       // fetch window
	QueryLookback        time.Duration `mapstructure:"query_lookback"` // db query window
	ArticleLimit         int           `mapstructure:"article_limit"`
	FetchPages           int           `mapstructure:"fetch_pages"`
	FetchPageSize        int           `mapstructure:"fetch_page_size"`
	TrustedSources       []string      `mapstructure:"trusted_sources"`
	FilterTrusted        bool          `mapstructure:"filter_trusted"`
}

// Normalize applies defaults for unset scheduler values.
func (s SchedulerConfig) Normalize() SchedulerConfig {
	if s.CriticalWindowBefore <= 0 {
		s.CriticalWindowBefore = 24 * time.Hour
	}
	if s.CriticalWindowAfter <= 0 {
		s.CriticalWindowAfter = 24 * time.Hour
	}
	if s.CriticalCooldown <= 0 {
		s.CriticalCooldown = 3 * time.Hour
	}
	if strings.TrimSpace(s.DailyCron) == "" {
		s.DailyCron = "0 8 * * *" // 08:00 UTC
	}
	if s.TickInterval <= 0 {
		s.TickInterval = time.Minute
	}
	if s.Lookback <= 0 {
		s.Lookback = 24 * time.Hour
	}
	if s.QueryLookback <= 0 {
		s.QueryLookback = 10 * time.Hour
	}
	if s.ArticleLimit <= 0 {
		s.ArticleLimit = 25
	}
	if s.FetchPages <= 0 {
		s.FetchPages = 2
	}
	if s.FetchPageSize <= 0 {
		s.FetchPageSize = 100
	}
	return s
}

// SourcesConfig contains news source configurations
type SourcesConfig struct {
	EventRegistry EventRegistryConfig `mapstructure:"eventregistry"`
}

// EventRegistryConfig contains Event Registry API settings
type EventRegistryConfig struct {
	APIKey   string        `mapstructure:"api_key"`
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (e EventRegistryConfig) Validate() error {
	if strings.TrimSpace(e.Endpoint) == "" {
		return fmt.Errorf("sources.eventregistry.endpoint required")
	}
	return nil
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string        `mapstructure:"url"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	User     string        `mapstructure:"user"`
	Password string        `mapstructure:"password"`
	DBName   string        `mapstructure:"dbname"`
	SSLMode  string        `mapstructure:"sslmode"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.Port) == "" {
		return fmt.Errorf("storage.postgres.port required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN assembles a postgres connection string from the configured parts.
func (p PostgresConfig) DSN() string {
	if strings.TrimSpace(p.URL) != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

// RedisConfig contains Redis connection settings. Redis is optional: it only
// backs the scheduler's single-flight lock.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Enabled reports whether a Redis endpoint is configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Host) != ""
}

// Addr returns host:port for the redis client.
func (r RedisConfig) Addr() string {
	port := r.Port
	if port == "" {
		port = "6379"
	}
	return r.Host + ":" + port
}

// LoadConfig loads config from file
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")
	viper.SetDefault("server.address", ":10010")
	viper.SetDefault("sources.eventregistry.endpoint", "https://eventregistry.org/api/v1/article/")

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
		viper.AddConfigPath(filepath.Join(exeDir, "..", "config"))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("FEDPULSE")
	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	err := viper.ReadInConfig()
	if err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	// The announcement calendar arrives as RFC3339 strings.
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeHookFunc(time.RFC3339),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))

	var config Config
	if err = viper.Unmarshal(&config, hook); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	config.LLM = config.LLM.Normalize()
	config.Scheduler = config.Scheduler.Normalize()

	if err := config.Sources.EventRegistry.Validate(); err != nil {
		panic(err)
	}
	if err := config.Storage.Postgres.Validate(); err != nil {
		panic(err)
	}
	return &config
}
