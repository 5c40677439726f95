package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	applicationName = "fieldtriage"
	pingTimeout     = 10 * time.Second
)

// PoolConfig parses databaseURL and applies the settings used for the
// remote store. Field links drop often, so idle connections are recycled
// and checked well inside the server's own timeouts. An application_name
// already present in the URL wins.
func PoolConfig(databaseURL string, maxConns, minConns int32) (*pgxpool.Config, error) {
	if databaseURL == "" {
		return nil, errors.New("database url is not configured")
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = maxConns
	cfg.MinConns = minConns
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second
	if _, ok := cfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		cfg.ConnConfig.RuntimeParams["application_name"] = applicationName
	}
	return cfg, nil
}

// NewPool opens the remote store and fails fast when it does not answer a
// ping within pingTimeout.
func NewPool(ctx context.Context, databaseURL string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	cfg, err := PoolConfig(databaseURL, maxConns, minConns)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping remote store %s: %w", cfg.ConnConfig.Host, err)
	}
	return pool, nil
}
