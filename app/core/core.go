package core

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/usageflows/chatbot/app/store"
	"github.com/usageflows/chatbot/app/store/sqlstore"
	"github.com/usageflows/chatbot/pkg/ai"
	"github.com/usageflows/chatbot/pkg/rules"
)

type Core struct {
	cfg CoreConfig

	chatStore  store.ChatHistoryStore
	gateway    ai.Gateway
	rulesStore *rules.Store

	httpEngine *gin.Engine
	metrics    *Metrics
}

// Option overrides a wired component, used by tests to swap in fakes.
type Option func(*Core)

func WithGateway(g ai.Gateway) Option {
	return func(c *Core) { c.gateway = g }
}

func WithChatStore(s store.ChatHistoryStore) Option {
	return func(c *Core) { c.chatStore = s }
}

func MustSetupCore(cfg CoreConfig, opts ...Option) *Core {
	{
		var writer io.Writer = os.Stdout
		if cfg.Log.Path != "" {
			writer = &lumberjack.Logger{
				Filename:   cfg.Log.Path,
				MaxSize:    500, // megabytes
				MaxBackups: 3,
				MaxAge:     28, // days
				Compress:   true,
			}
		}
		l := slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{
			Level: cfg.Log.SlogLevel(),
		}))
		slog.SetDefault(l)
	}

	if cfg.Gateway.APIKey == "" {
		slog.Error("GATEWAY_API_KEY is required, set it in the config, .env or environment")
		os.Exit(1)
	}

	chatStore, err := sqlstore.New(cfg.Database)
	if err != nil {
		slog.Error("failed to set up persistence", slog.String("error", err.Error()))
		os.Exit(1)
	}

	core := &Core{
		cfg:        cfg,
		chatStore:  chatStore,
		gateway:    ai.NewGatewayClient(cfg.Gateway),
		rulesStore: rules.NewStore(cfg.Rules.Dir),
		httpEngine: gin.New(),
		metrics:    NewMetrics("chatbot", "core"),
	}

	for _, opt := range opts {
		opt(core)
	}

	// Schema creation at startup is best effort; a dead database must not
	// keep chat itself from serving.
	if core.chatStore.IsConfigured() {
		if err := core.chatStore.EnsureSchema(context.Background()); err != nil {
			slog.Error("schema setup at startup failed", slog.String("error", err.Error()))
		} else {
			slog.Info("database schema ensured at startup")
		}
	}

	return core
}

func (c *Core) Cfg() CoreConfig {
	return c.cfg
}

func (c *Core) Store() store.ChatHistoryStore {
	return c.chatStore
}

func (c *Core) Gateway() ai.Gateway {
	return c.gateway
}

func (c *Core) RulesStore() *rules.Store {
	return c.rulesStore
}

func (c *Core) HttpEngine() *gin.Engine {
	return c.httpEngine
}

func (c *Core) Metrics() *Metrics {
	return c.metrics
}
