package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// MaxRelayTokenTTL bounds the lifetime of relay session tokens.
const MaxRelayTokenTTL = 10 * time.Minute

type Config struct {
	Server   ServerConfig   `json:"server" mapstructure:"server"`
	Database DatabaseConfig `json:"database" mapstructure:"database"`
	Auth     AuthConfig     `json:"auth" mapstructure:"auth"`
	Speech   SpeechConfig   `json:"speech" mapstructure:"speech"`
	Assist   AssistConfig   `json:"assist" mapstructure:"assist"`
	Redis    RedisConfig    `json:"redis" mapstructure:"redis"`
	Log      LogConfig      `json:"log" mapstructure:"log"`
}

type ServerConfig struct {
	Host        string `json:"host" mapstructure:"host"`
	Port        int    `json:"port" mapstructure:"port"`
	CORSOrigins string `json:"cors_origins" mapstructure:"cors_origins"`
}

type DatabaseConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     int    `json:"port" mapstructure:"port"`
	User     string `json:"user" mapstructure:"user"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
	SSLMode  string `json:"sslmode" mapstructure:"sslmode"`
}

type AuthConfig struct {
	JWTSecret     string        `json:"jwt_secret" mapstructure:"jwt_secret"`
	Issuer        string        `json:"issuer" mapstructure:"issuer"`
	RelayTokenTTL time.Duration `json:"relay_token_ttl" mapstructure:"relay_token_ttl"`
}

// SpeechConfig is the single audio/recognition configuration negotiated with
// the speech backend for every relay session of this deployment.
type SpeechConfig struct {
	URL               string        `json:"url" mapstructure:"url"`
	APIKey            string        `json:"api_key" mapstructure:"api_key"`
	Model             string        `json:"model" mapstructure:"model"`
	Language          string        `json:"language" mapstructure:"language"`
	Encoding          string        `json:"encoding" mapstructure:"encoding"`
	SampleRate        int           `json:"sample_rate" mapstructure:"sample_rate"`
	Channels          int           `json:"channels" mapstructure:"channels"`
	Diarize           bool          `json:"diarize" mapstructure:"diarize"`
	InterimResults    bool          `json:"interim_results" mapstructure:"interim_results"`
	Punctuate         bool          `json:"punctuate" mapstructure:"punctuate"`
	SmartFormat       bool          `json:"smart_format" mapstructure:"smart_format"`
	KeepAliveInterval time.Duration `json:"keepalive_interval" mapstructure:"keepalive_interval"`
	DialTimeout       time.Duration `json:"dial_timeout" mapstructure:"dial_timeout"`
}

type AssistConfig struct {
	APIKey            string        `json:"api_key" mapstructure:"api_key"`
	BaseURL           string        `json:"base_url,omitempty" mapstructure:"base_url"`
	Model             string        `json:"model" mapstructure:"model"`
	Temperature       float32       `json:"temperature" mapstructure:"temperature"`
	MaxTokens         int           `json:"max_tokens" mapstructure:"max_tokens"`
	WindowChars       int           `json:"window_chars" mapstructure:"window_chars"`
	MaxItems          int           `json:"max_items" mapstructure:"max_items"`
	MaxItemChars      int           `json:"max_item_chars" mapstructure:"max_item_chars"`
	RecentFragments   int           `json:"recent_fragments" mapstructure:"recent_fragments"`
	PollInterval      time.Duration `json:"poll_interval" mapstructure:"poll_interval"`
	HeartbeatInterval time.Duration `json:"heartbeat_interval" mapstructure:"heartbeat_interval"`
	RequestTimeout    time.Duration `json:"request_timeout" mapstructure:"request_timeout"`
}

// RedisConfig enables the shared relay session registry. An empty Addr keeps
// the registry in-process.
type RedisConfig struct {
	Addr     string        `json:"addr" mapstructure:"addr"`
	Password string        `json:"password" mapstructure:"password"`
	DB       int           `json:"db" mapstructure:"db"`
	LeaseTTL time.Duration `json:"lease_ttl" mapstructure:"lease_ttl"`
}

type LogConfig struct {
	Level      string `json:"level" mapstructure:"level"`
	File       string `json:"file" mapstructure:"file"`
	MaxSize    int    `json:"max_size" mapstructure:"max_size"`
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups"`
	MaxAge     int    `json:"max_age" mapstructure:"max_age"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")

	// Add config paths
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	homeDir, err := os.UserHomeDir()
	if err == nil {
		v.AddConfigPath(filepath.Join(homeDir, ".liveassist"))
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	loadEnvOverrides(&cfg)
	cfg.normalize()

	return &cfg, nil
}

// Default returns the configuration used when no config file or environment
// overrides are present.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	// Defaults only hold scalar values, decoding cannot fail.
	_ = v.Unmarshal(&cfg)
	cfg.normalize()
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", "http://localhost:5173,http://localhost:3000")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "liveassist")
	v.SetDefault("database.database", "liveassist")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("auth.issuer", "liveassist")
	v.SetDefault("auth.relay_token_ttl", "5m")

	v.SetDefault("speech.url", "wss://api.deepgram.com/v1/listen")
	v.SetDefault("speech.model", "nova-2")
	v.SetDefault("speech.language", "nl")
	v.SetDefault("speech.encoding", "linear16")
	v.SetDefault("speech.sample_rate", 16000)
	v.SetDefault("speech.channels", 1)
	v.SetDefault("speech.diarize", true)
	v.SetDefault("speech.interim_results", true)
	v.SetDefault("speech.punctuate", true)
	v.SetDefault("speech.smart_format", true)
	v.SetDefault("speech.keepalive_interval", "8s")
	v.SetDefault("speech.dial_timeout", "10s")

	v.SetDefault("assist.model", "gpt-4o-mini")
	v.SetDefault("assist.temperature", 0.3)
	v.SetDefault("assist.max_tokens", 400)
	v.SetDefault("assist.window_chars", 4000)
	v.SetDefault("assist.max_items", 3)
	v.SetDefault("assist.max_item_chars", 160)
	v.SetDefault("assist.recent_fragments", 50)
	v.SetDefault("assist.poll_interval", "2s")
	v.SetDefault("assist.heartbeat_interval", "20s")
	v.SetDefault("assist.request_timeout", "15s")

	v.SetDefault("redis.lease_ttl", "30s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size", 20)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 14)
}

func loadEnvOverrides(cfg *Config) {
	if port := os.Getenv("LIVEASSIST_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if host := os.Getenv("LIVEASSIST_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if origins := os.Getenv("LIVEASSIST_CORS_ORIGINS"); origins != "" {
		cfg.Server.CORSOrigins = origins
	}

	// Database overrides
	if dbHost := os.Getenv("POSTGRES_HOST"); dbHost != "" {
		cfg.Database.Host = dbHost
	}
	if dbPort := os.Getenv("POSTGRES_PORT"); dbPort != "" {
		if port, err := strconv.Atoi(dbPort); err == nil {
			cfg.Database.Port = port
		}
	}
	if dbUser := os.Getenv("POSTGRES_USER"); dbUser != "" {
		cfg.Database.User = dbUser
	}
	if dbPass := os.Getenv("POSTGRES_PASSWORD"); dbPass != "" {
		cfg.Database.Password = dbPass
	}
	if dbName := os.Getenv("POSTGRES_DB"); dbName != "" {
		cfg.Database.Database = dbName
	}

	if secret := os.Getenv("LIVEASSIST_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if key := os.Getenv("DEEPGRAM_API_KEY"); key != "" {
		cfg.Speech.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.Assist.APIKey = key
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Log.Level = strings.ToLower(level)
	}
}

func (c *Config) normalize() {
	if c.Auth.RelayTokenTTL <= 0 || c.Auth.RelayTokenTTL > MaxRelayTokenTTL {
		c.Auth.RelayTokenTTL = MaxRelayTokenTTL
	}
	if c.Assist.MaxItems <= 0 {
		c.Assist.MaxItems = 3
	}
	if c.Assist.PollInterval <= 0 {
		c.Assist.PollInterval = 2 * time.Second
	}
	if c.Assist.HeartbeatInterval <= 0 {
		c.Assist.HeartbeatInterval = 20 * time.Second
	}
	if c.Speech.KeepAliveInterval <= 0 {
		c.Speech.KeepAliveInterval = 8 * time.Second
	}
	// Leases are refreshed on every keep-alive tick and must survive a missed one.
	if minLease := 2 * c.Speech.KeepAliveInterval; c.Redis.LeaseTTL < minLease {
		c.Redis.LeaseTTL = minLease
	}
}
