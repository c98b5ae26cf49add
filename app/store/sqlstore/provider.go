package sqlstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/microsoft/go-mssqldb"

	"github.com/usageflows/chatbot/app/store"
	"github.com/usageflows/chatbot/pkg/types"
)

const (
	DriverPostgres  = "postgres"
	DriverSQLServer = "sqlserver"
	DriverDisabled  = "disabled"
)

type Config struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`

	MaxOpenConns int `toml:"max_open_conns"`
	MaxIdleConns int `toml:"max_idle_conns"`
}

// New selects the backend from the config. An empty or "disabled" driver,
// or an empty DSN, yields the no-op store so the service runs statelessly.
func New(cfg Config) (store.ChatHistoryStore, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == DriverDisabled || strings.TrimSpace(cfg.DSN) == "" {
		slog.Warn("persistence disabled, chat history will not be stored",
			slog.String("driver", driver))
		return &DisabledChatStore{}, nil
	}

	switch driver {
	case DriverPostgres:
		return NewPostgresChatStore(cfg), nil
	case DriverSQLServer:
		return NewSQLServerChatStore(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// lazyDB opens the connection pool on first use rather than at startup, so
// a misconfigured database surfaces as per-request errors instead of a
// crash loop.
type lazyDB struct {
	driver string
	cfg    Config

	once sync.Once
	db   *sqlx.DB
	err  error
}

func newLazyDB(driver string, cfg Config) *lazyDB {
	return &lazyDB{driver: driver, cfg: cfg}
}

func (l *lazyDB) get() (*sqlx.DB, error) {
	l.once.Do(func() {
		db, err := sqlx.Open(l.driver, strings.TrimSpace(l.cfg.DSN))
		if err != nil {
			l.err = fmt.Errorf("failed to open %s pool: %w", l.driver, err)
			return
		}
		maxOpen := l.cfg.MaxOpenConns
		if maxOpen <= 0 {
			maxOpen = 10
		}
		maxIdle := l.cfg.MaxIdleConns
		if maxIdle <= 0 {
			maxIdle = 2
		}
		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(maxIdle)
		db.SetConnMaxLifetime(30 * time.Minute)
		l.db = db
		slog.Info("database pool opened", slog.String("driver", l.driver))
	})
	return l.db, l.err
}

func ErrorSqlBuild(err error) error {
	return fmt.Errorf("failed to build sql query, %w", err)
}

// schemaLatch makes EnsureSchema cheap to call before every write: the DDL
// runs until it succeeds once, then every later call is a no-op. A failure
// does not latch, so a database that was down at startup still gets its
// schema once it comes back.
type schemaLatch struct {
	mu   sync.Mutex
	done bool
}

func (l *schemaLatch) ensure(run func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done {
		return nil
	}
	if err := run(); err != nil {
		return err
	}
	l.done = true
	return nil
}

// clampAdminLimit applies the admin listing bounds: zero or negative falls
// back to the default, anything above the cap is cut to the cap.
func clampAdminLimit(limit int) int {
	if limit <= 0 {
		limit = types.DEFAULT_ADMIN_LIST_LIMIT
	}
	if limit < 1 {
		limit = 1
	}
	if limit > types.MAX_ADMIN_LIST_LIMIT {
		limit = types.MAX_ADMIN_LIST_LIMIT
	}
	return limit
}

// nullIfEmpty maps "" to SQL NULL for nullable text columns.
func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// decodeUsage moves the raw usage column into the JSON view of a record.
// Non-JSON garbage in the column is dropped rather than breaking the row.
func decodeUsage(records []types.MessageRecord) {
	for i := range records {
		raw := records[i].RawUsage
		records[i].RawUsage = nil
		if raw == nil || strings.TrimSpace(*raw) == "" {
			continue
		}
		if !json.Valid([]byte(*raw)) {
			continue
		}
		records[i].Usage = []byte(*raw)
	}
}
