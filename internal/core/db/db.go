// Package db persists catalogs, schema properties and API keys.
//
// SQLite serves single-node and test deployments, PostgreSQL serves shared
// deployments. Both go through sqlx; SQL text lives in embedded dotsql files
// and embedded migrations, so a single binary carries its own schema.
package db

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Pool limits sized for a handful of engine replicas sharing one PostgreSQL.
const (
	maxOpenConns    = 16
	maxIdleConns    = 4
	connMaxIdleTime = 5 * time.Minute
	connMaxLifetime = 30 * time.Minute
)

// sqliteBusyTimeout lets concurrent writers wait instead of failing with SQLITE_BUSY.
const sqliteBusyTimeout = 5000

// dataSource maps a database URL onto a registered sql driver and its DSN.
//
//	sqlite://relative/file.db   -> sqlite3, relative/file.db
//	sqlite:///abs/path/file.db  -> sqlite3, /abs/path/file.db
//	postgres://user@host/db     -> postgres, unchanged
func dataSource(dbURL string) (driver, dsn string, err error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid database URL: %w", err)
	}

	switch u.Scheme {
	case "sqlite", "sqlite3":
		path := u.Path
		if u.Host != "" {
			path = u.Host + u.Path
		}
		if path == "" {
			return "", "", fmt.Errorf("sqlite URL %q has no file path", dbURL)
		}
		q := u.Query()
		if q.Get("_busy_timeout") == "" {
			q.Set("_busy_timeout", fmt.Sprint(sqliteBusyTimeout))
		}
		return "sqlite3", "file:" + path + "?" + q.Encode(), nil
	case "postgres", "postgresql":
		return "postgres", dbURL, nil
	default:
		return "", "", fmt.Errorf("unsupported database scheme: %s (expected sqlite or postgres)", u.Scheme)
	}
}

// Open connects to the database named by dbURL, configures pooling and
// verifies the connection before returning.
func Open(ctx context.Context, dbURL string) (*sqlx.DB, error) {
	driver, dsn, err := dataSource(dbURL)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxIdleTime(connMaxIdleTime)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
