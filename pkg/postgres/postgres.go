package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Config struct {
	URL               string `envconfig:"DATABASE_URL" required:"true"`
	MaxConns          int32  `envconfig:"DATABASE_MAX_CONNS" default:"10"`
	MinConns          int32  `envconfig:"DATABASE_MIN_CONNS" default:"1"`
	ConnectTimeout    int    `envconfig:"DATABASE_CONNECT_TIMEOUT" default:"5"`
	StatementTimeout  int    `envconfig:"DATABASE_STATEMENT_TIMEOUT" default:"20"`
	HealthCheckPeriod int    `envconfig:"DATABASE_HEALTH_CHECK_PERIOD" default:"30"`
}

// PoolConfig parses the connection string and applies pool limits.
func (c *Config) PoolConfig() (*pgxpool.Config, error) {
	pcfg, err := pgxpool.ParseConfig(c.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	if c.MaxConns > 0 {
		pcfg.MaxConns = c.MaxConns
	}
	if c.MinConns > 0 {
		pcfg.MinConns = c.MinConns
	}
	if c.HealthCheckPeriod > 0 {
		pcfg.HealthCheckPeriod = time.Duration(c.HealthCheckPeriod) * time.Second
	}
	if c.ConnectTimeout > 0 {
		pcfg.ConnConfig.ConnectTimeout = time.Duration(c.ConnectTimeout) * time.Second
	}
	if c.StatementTimeout > 0 {
		pcfg.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprintf("%d", c.StatementTimeout*1000)
	}
	return pcfg, nil
}

// New opens the pool and pings the database. An unreachable store is fatal
// for the agent, so the caller is expected to abort on error.
func (c *Config) New(ctx context.Context) (*pgxpool.Pool, error) {
	pcfg, err := c.PoolConfig()
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}
