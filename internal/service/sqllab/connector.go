package sqllab

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"sync"

	// SQL Lab targets: sqlite:// and duckdb:// URIs.
	_ "github.com/duckdb/duckdb-go/v2"
	_ "github.com/mattn/go-sqlite3"

	"bi-demo/internal/domain"
)

const memoryDSN = ":memory:"

// ParseURI maps a SQLAlchemy-style URI onto a database/sql driver name and
// DSN. sqlite:///relative and sqlite:////absolute paths are supported, as
// are their duckdb:// equivalents; an empty path or :memory: opens an
// in-memory database.
func ParseURI(uri string) (driver, dsn string, err error) {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return "", "", domain.ErrValidation("invalid database URI %q", uri)
	}
	if i := strings.Index(scheme, "+"); i >= 0 {
		scheme = scheme[:i]
	}
	path, query, _ := strings.Cut(rest, "?")
	path = strings.TrimPrefix(path, "/")

	switch scheme {
	case "sqlite":
		driver = "sqlite3"
	case "duckdb":
		driver = "duckdb"
	default:
		return "", "", domain.ErrValidation("unsupported database backend %q", scheme)
	}

	if path == "" || path == memoryDSN {
		if driver == "duckdb" {
			return driver, "", nil
		}
		return driver, memoryDSN, nil
	}
	if query != "" {
		if _, err := url.ParseQuery(query); err != nil {
			return "", "", domain.ErrValidation("invalid database URI options: %v", err)
		}
		path += "?" + query
	}
	return driver, path, nil
}

// Connector keeps one connection pool per database URI.
type Connector struct {
	mu    sync.Mutex
	pools map[string]*sql.DB
}

// NewConnector creates an empty Connector.
func NewConnector() *Connector {
	return &Connector{pools: make(map[string]*sql.DB)}
}

// Open returns the pool for uri, opening it on first use. In-memory
// databases are pinned to a single connection so every statement sees the
// same data.
func (c *Connector) Open(uri string) (*sql.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if db, ok := c.pools[uri]; ok {
		return db, nil
	}
	driver, dsn, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if dsn == memoryDSN || dsn == "" {
		db.SetMaxOpenConns(1)
	}
	c.pools[uri] = db
	return db, nil
}

// Forget closes and drops the pool for uri, if any.
func (c *Connector) Forget(uri string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if db, ok := c.pools[uri]; ok {
		_ = db.Close()
		delete(c.pools, uri)
	}
}

// Close closes every pool.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for uri, db := range c.pools {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.pools, uri)
	}
	return firstErr
}
