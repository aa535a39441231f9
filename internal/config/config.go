package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "DILIGENCE"

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `mapstructure:"basic_config"`
	Databases   map[string]DatabaseConfig `mapstructure:"databases"`
	Redis       RedisConfig               `mapstructure:"redis"`
	Providers   map[string]ProviderConfig `mapstructure:"providers"`
	Report      ReportConfig              `mapstructure:"report"`
	Storage     StorageConfig             `mapstructure:"storage"`
	Auth        AuthConfig                `mapstructure:"auth"`
	Mail        MailConfig                `mapstructure:"mail"`
	Log         LogConfig                 `mapstructure:"log"`
}

type BasicConfig struct {
	ServerAddress string `mapstructure:"server_address"`
	DBType        string `mapstructure:"db_type"`
	// MaxUploadMB caps a single multipart submission.
	MaxUploadMB int `mapstructure:"max_upload_mb"`
	// Report generation pool, off while MaxWorkers is 0. WorkerIdleTimeout
	// is in minutes.
	MinWorkers        int `mapstructure:"min_workers"`
	MaxWorkers        int `mapstructure:"max_workers"`
	QueueSize         int `mapstructure:"queue_size"`
	WorkerIdleTimeout int `mapstructure:"worker_idle_timeout"`
}

type DatabaseConfig struct {
	DSN      string `mapstructure:"dsn"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"db_name"`
	Params   string `mapstructure:"params"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ProviderConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
	APIKey  string `mapstructure:"api_key"`
}

// ReportConfig selects the chat model used to draft reports. Empty fields
// fall back to the matching entry in Providers.
type ReportConfig struct {
	Provider  string `mapstructure:"provider"`
	Model     string `mapstructure:"model"`
	APIKey    string `mapstructure:"api_key"`
	BaseURL   string `mapstructure:"base_url"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

type StorageConfig struct {
	Backend        string `mapstructure:"backend"`
	Root           string `mapstructure:"root"`
	PublicBaseURL  string `mapstructure:"public_base_url"`
	Bucket         string `mapstructure:"bucket"`
	Region         string `mapstructure:"region"`
	Endpoint       string `mapstructure:"endpoint"`
	AccessKey      string `mapstructure:"access_key"`
	SecretKey      string `mapstructure:"secret_key"`
	PresignMinutes int    `mapstructure:"presign_minutes"`
}

type AuthConfig struct {
	JWTSecret       string `mapstructure:"jwt_secret"`
	TokenTTLMinutes int    `mapstructure:"token_ttl_minutes"`
}

type MailConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	Username      string `mapstructure:"username"`
	Password      string `mapstructure:"password"`
	From          string `mapstructure:"from"`
	SkipTLSVerify bool   `mapstructure:"skip_tls_verify"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from the provided path (defaults to config.json
// when present) and applies DILIGENCE_* environment overrides.
func Load(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("report.api_key", envPrefix+"_REPORT_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("report.model", envPrefix+"_REPORT_MODEL", "OPENAI_MODEL")

	explicit := path != ""
	if !explicit {
		path = "config.json"
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	configDir := ""
	if _, statErr := os.Stat(absPath); statErr == nil {
		v.SetConfigFile(absPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", absPath, err)
		}
		configDir = filepath.Dir(absPath)
	} else if explicit {
		return nil, fmt.Errorf("open config %s: %w", absPath, statErr)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if configDir != "" && cfg.Storage.Root != "" && !filepath.IsAbs(cfg.Storage.Root) {
		cfg.Storage.Root = filepath.Join(configDir, cfg.Storage.Root)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Report.Provider {
	case "openai", "gemini", "claude":
	default:
		return fmt.Errorf("unsupported report provider: %q", c.Report.Provider)
	}
	switch c.Storage.Backend {
	case "local":
		if c.Storage.Root == "" {
			return errors.New("storage.root must be configured for the local backend")
		}
	case "s3":
		if c.Storage.Bucket == "" {
			return errors.New("storage.bucket must be configured for the s3 backend")
		}
	default:
		return fmt.Errorf("unsupported storage backend: %q", c.Storage.Backend)
	}
	if _, ok := c.Databases[c.BasicConfig.DBType]; !ok {
		return fmt.Errorf("database config for %s not found", c.BasicConfig.DBType)
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("auth.jwt_secret must be configured")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("basic_config.server_address", ":8090")
	v.SetDefault("basic_config.db_type", "sqlite3")
	v.SetDefault("basic_config.max_upload_mb", 50)
	v.SetDefault("basic_config.min_workers", 0)
	v.SetDefault("basic_config.max_workers", 0)
	v.SetDefault("basic_config.queue_size", 64)
	v.SetDefault("basic_config.worker_idle_timeout", 5)

	v.SetDefault("databases.sqlite3.dsn", "file:diligence.db?_foreign_keys=on")
	v.SetDefault("databases.mysql.host", "127.0.0.1")
	v.SetDefault("databases.mysql.port", 3306)
	v.SetDefault("databases.mysql.username", "root")
	v.SetDefault("databases.mysql.password", "")
	v.SetDefault("databases.mysql.db_name", "diligence")
	v.SetDefault("databases.mysql.params", "parseTime=true&charset=utf8mb4")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.username", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("report.provider", "openai")
	v.SetDefault("report.model", "gpt-4o-mini")
	v.SetDefault("report.api_key", "")
	v.SetDefault("report.base_url", "")
	v.SetDefault("report.max_tokens", 3000)

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.root", "./data/blobs")
	v.SetDefault("storage.public_base_url", "")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.presign_minutes", 60*24)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl_minutes", 60*24)

	v.SetDefault("mail.enabled", false)
	v.SetDefault("mail.host", "")
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.username", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.from", "")
	v.SetDefault("mail.skip_tls_verify", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// loadEnvFile reads .env from the working directory or its parent. Missing
// files are ignored; real environment variables always win.
func loadEnvFile() {
	for _, p := range []string{".env", "../.env"} {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			return
		}
	}
}
