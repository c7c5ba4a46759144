package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pingTimeout = 5 * time.Second

	// DefaultNamespace prefixes table names when none is given.
	DefaultNamespace = "ragbook"

	undefinedTable = "42P01"
)

// DB wraps the pgvector connection pool. Every table name carries the
// namespace as a prefix so several collections can share a database.
type DB struct {
	pool  *pgxpool.Pool
	names *strings.Replacer
}

// New opens a pool for connString. Pool limits given as pool_* parameters in
// the URI win over the defaults set here.
func New(ctx context.Context, connString, namespace string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if !strings.Contains(connString, "pool_max_conns") {
		cfg.MaxConns = 10
	}
	if !strings.Contains(connString, "pool_max_conn_lifetime") {
		cfg.MaxConnLifetime = time.Hour
	}
	if !strings.Contains(connString, "pool_max_conn_idle_time") {
		cfg.MaxConnIdleTime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if namespace == "" {
		namespace = DefaultNamespace
	}
	slog.Debug("connected to postgres",
		"host", cfg.ConnConfig.Host,
		"database", cfg.ConnConfig.Database,
		"namespace", namespace,
		"max_conns", cfg.MaxConns)
	return &DB{pool: pool, names: tableNames(namespace)}, nil
}

// tableNames maps the {table} placeholders used in queries to quoted,
// namespaced identifiers.
func tableNames(namespace string) *strings.Replacer {
	ident := func(table string) string {
		return pgx.Identifier{namespace + "_" + table}.Sanitize()
	}
	return strings.NewReplacer(
		"{documents}", ident("documents"),
		"{chunks}", ident("chunks"),
		"{conversations}", ident("conversations"),
		"{chunks_embedding_idx}", ident("chunks_embedding_idx"),
	)
}

func (db *DB) sql(query string) string {
	return db.names.Replace(query)
}

// isUndefinedTable reports whether err comes from a query against tables that
// EnsureSchema has not created yet.
func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == undefinedTable
}

func (db *DB) Close() {
	db.pool.Close()
}
