// Package backend builds the process-wide handle to the hosted backend: the
// project's Postgres database and its object storage.
package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"storyteller/internal/config"
	"storyteller/internal/storage/objects"
)

// ErrNotConfigured is returned when the Supabase settings are incomplete.
var ErrNotConfigured = errors.New("backend not configured: set SUPABASE_URL, SUPABASE_ANON_KEY and SUPABASE_DB_URL")

// Handle is shared read-only by every request once built.
type Handle struct {
	DB      *sqlx.DB
	Objects *objects.Client
}

func (h *Handle) Close() error {
	if h.DB != nil {
		return h.DB.Close()
	}
	return nil
}

// OpenFunc connects to the database.
type OpenFunc func(ctx context.Context, dsn string) (*sqlx.DB, error)

func openPostgres(ctx context.Context, dsn string) (*sqlx.DB, error) {
	return sqlx.ConnectContext(ctx, "postgres", dsn)
}

// Connector builds the Handle on first use and then keeps returning the
// same outcome, success or failure, for the life of the process.
type Connector struct {
	supabase config.SupabaseConfig
	storage  config.StorageConfig
	open     OpenFunc
	logger   *slog.Logger

	once   sync.Once
	handle *Handle
	err    error
}

func NewConnector(supabase config.SupabaseConfig, storage config.StorageConfig, logger *slog.Logger) *Connector {
	return &Connector{
		supabase: supabase,
		storage:  storage,
		open:     openPostgres,
		logger:   logger.With("component", "backend"),
	}
}

// WithOpener replaces the database opener. It must be called before Get.
func (c *Connector) WithOpener(open OpenFunc) *Connector {
	c.open = open
	return c
}

// Get returns the shared handle. Callers should treat any error as "backend
// unavailable" and degrade instead of failing.
func (c *Connector) Get(ctx context.Context) (*Handle, error) {
	c.once.Do(func() {
		c.handle, c.err = c.connect(ctx)
		if c.err != nil {
			c.logger.Warn("backend unavailable", "error", c.err)
			return
		}
		c.logger.Info("connected to backend", "url", c.supabase.URL)
	})
	return c.handle, c.err
}

func (c *Connector) connect(ctx context.Context) (*Handle, error) {
	if !c.supabase.Configured() {
		return nil, ErrNotConfigured
	}

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	db, err := c.open(connectCtx, c.supabase.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	return &Handle{
		DB: db,
		Objects: objects.New(objects.Config{
			BaseURL: c.supabase.URL,
			APIKey:  c.supabase.AnonKey,
			Timeout: c.storage.Timeout,
		}, c.logger),
	}, nil
}
