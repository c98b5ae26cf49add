package core

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/usageflows/chatbot/app/store/sqlstore"
	"github.com/usageflows/chatbot/pkg/ai"
)

// MustLoadBaseConfig reads the TOML config at path. An empty path falls back
// to environment variables (after loading .env if present), which is how the
// container deployments run.
func MustLoadBaseConfig(path string) CoreConfig {
	if path == "" {
		return LoadBaseConfigFromENV()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	conf := &CoreConfig{}
	if err = toml.Unmarshal(raw, conf); err != nil {
		panic(err)
	}
	conf.applyDefaults()
	return *conf
}

func LoadBaseConfigFromENV() CoreConfig {
	_ = godotenv.Load()
	var c CoreConfig
	c.FromENV()
	c.applyDefaults()
	return c
}

type CoreConfig struct {
	Addr  string `toml:"addr"`
	Log   Log    `toml:"log"`
	Rules Rules  `toml:"rules"`

	Database sqlstore.Config  `toml:"database"`
	Gateway  ai.GatewayConfig `toml:"gateway"`

	// GatewayTimeoutSeconds exists because toml has no duration type.
	GatewayTimeoutSeconds int `toml:"gateway_timeout_seconds"`
}

type Rules struct {
	// Dir is the directory scanned for chat mode templates.
	Dir string `toml:"dir"`
}

type Log struct {
	Level string `toml:"level"`
	Path  string `toml:"path"`
}

func (c *CoreConfig) FromENV() {
	c.Addr = os.Getenv("CHATBOT_SERVICE_ADDRESS")
	if c.Addr == "" {
		if port := os.Getenv("PORT"); port != "" {
			c.Addr = ":" + port
		}
	}
	c.Log.FromENV()
	c.Rules.Dir = os.Getenv("CHATBOT_RULES_DIR")

	c.Database.Driver = os.Getenv("CHATBOT_DB_DRIVER")
	c.Database.DSN = os.Getenv("CHATBOT_DB_DSN")

	c.Gateway.BaseURL = os.Getenv("GATEWAY_BASE_URL")
	c.Gateway.APIKey = os.Getenv("GATEWAY_API_KEY")
	c.Gateway.Model = os.Getenv("CHAT_MODEL")
	if v := os.Getenv("GATEWAY_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			c.Gateway.Timeout = time.Duration(ms) * time.Millisecond
		}
	}
}

func (c *CoreConfig) applyDefaults() {
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.Rules.Dir == "" {
		c.Rules.Dir = "rules"
	}
	if c.Gateway.BaseURL == "" {
		c.Gateway.BaseURL = "https://usageflows.info"
	}
	if c.Gateway.Model == "" {
		c.Gateway.Model = "openai/gpt-5-pro"
	}
	if c.Gateway.Timeout <= 0 {
		if c.GatewayTimeoutSeconds > 0 {
			c.Gateway.Timeout = time.Duration(c.GatewayTimeoutSeconds) * time.Second
		} else {
			c.Gateway.Timeout = ai.DefaultTimeout
		}
	}
}

func (l *Log) FromENV() {
	l.Level = os.Getenv("CHATBOT_LOG_LEVEL")
	l.Path = os.Getenv("CHATBOT_LOG_PATH")
}

func (l *Log) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "info":
		return slog.LevelInfo
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}
