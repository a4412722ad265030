// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sqlstore implements storage.CacheStore on database/sql for
// PostgreSQL and SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/poiesic/kbsearch/core"
	"github.com/poiesic/kbsearch/storage"
)

// Dialect selects the SQL flavor and database/sql driver.
type Dialect string

const (
	// DialectPostgres uses github.com/lib/pq.
	DialectPostgres Dialect = "postgres"
	// DialectSQLite uses github.com/mattn/go-sqlite3.
	DialectSQLite Dialect = "sqlite3"
)

// sqliteInClauseLimit bounds the number of bound parameters per IN list.
const sqliteInClauseLimit = 500

// ParseDialect maps a user supplied name onto a Dialect.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "postgres", "postgresql", "pg":
		return DialectPostgres, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("%w: %q", storage.ErrUnsupportedDialect, name)
	}
}

// Store implements storage.CacheStore over a SQL table keyed by
// (content_hash, model).
type Store struct {
	db      *sql.DB
	dialect Dialect
}

var _ storage.CacheStore = (*Store)(nil)

// Open connects to the database, applies pool settings, verifies the
// connection, and creates the cache table if needed.
func Open(ctx context.Context, dialect Dialect, dsn string) (*Store, error) {
	db, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	switch dialect {
	case DialectPostgres:
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	case DialectSQLite:
		// SQLite serializes writers; one connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store, err := New(ctx, db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// New wraps an existing connection pool and creates the cache table if
// needed. Close closes db.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Store, error) {
	if dialect != DialectPostgres && dialect != DialectSQLite {
		return nil, fmt.Errorf("%w: %q", storage.ErrUnsupportedDialect, dialect)
	}
	s := &Store{db: db, dialect: dialect}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, createTableSQL(s.dialect))
	return err
}

func createTableSQL(dialect Dialect) string {
	if dialect == DialectPostgres {
		return `CREATE TABLE IF NOT EXISTS embedding_cache (
			content_hash TEXT NOT NULL,
			model TEXT NOT NULL,
			embedding BYTEA NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (content_hash, model)
		)`
	}
	return `CREATE TABLE IF NOT EXISTS embedding_cache (
		content_hash TEXT NOT NULL,
		model TEXT NOT NULL,
		embedding BLOB NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (content_hash, model)
	)`
}

func insertSQL(dialect Dialect) string {
	if dialect == DialectPostgres {
		return `INSERT INTO embedding_cache (content_hash, model, embedding, created_at)
		        VALUES ($1, $2, $3, $4)
		        ON CONFLICT (content_hash, model) DO NOTHING`
	}
	return `INSERT OR IGNORE INTO embedding_cache (content_hash, model, embedding, created_at)
	        VALUES (?, ?, ?, ?)`
}

func selectOneSQL(dialect Dialect) string {
	if dialect == DialectPostgres {
		return `SELECT embedding FROM embedding_cache WHERE content_hash = $1 AND model = $2`
	}
	return `SELECT embedding FROM embedding_cache WHERE content_hash = ? AND model = ?`
}

// Get looks up a single embedding.
func (s *Store) Get(ctx context.Context, hash core.ContentHash, model string) (core.Embedding, bool, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, selectOneSQL(s.dialect), string(hash), model).Scan(&blob)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get embedding: %w", err)
	}

	v, err := storage.DecodeVector(blob)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// GetMany looks up many hashes. PostgreSQL uses a single ANY($2) query;
// SQLite uses IN lists of bounded size.
func (s *Store) GetMany(ctx context.Context, hashes []core.ContentHash, model string) (map[core.ContentHash]core.Embedding, error) {
	hits := make(map[core.ContentHash]core.Embedding)
	if len(hashes) == 0 {
		return hits, nil
	}

	keys := make([]string, len(hashes))
	for i, h := range hashes {
		keys[i] = string(h)
	}

	if s.dialect == DialectPostgres {
		query := `SELECT content_hash, embedding FROM embedding_cache
		          WHERE model = $1 AND content_hash = ANY($2)`
		if err := s.collect(ctx, hits, query, model, pq.Array(keys)); err != nil {
			return nil, err
		}
		return hits, nil
	}

	for start := 0; start < len(keys); start += sqliteInClauseLimit {
		end := min(start+sqliteInClauseLimit, len(keys))
		chunk := keys[start:end]

		query := `SELECT content_hash, embedding FROM embedding_cache
		          WHERE model = ? AND content_hash IN (?` + strings.Repeat(",?", len(chunk)-1) + `)`
		args := make([]any, 0, len(chunk)+1)
		args = append(args, model)
		for _, k := range chunk {
			args = append(args, k)
		}
		if err := s.collect(ctx, hits, query, args...); err != nil {
			return nil, err
		}
	}
	return hits, nil
}

func (s *Store) collect(ctx context.Context, hits map[core.ContentHash]core.Embedding, query string, args ...any) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("get embeddings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			hash string
			blob []byte
		)
		if err := rows.Scan(&hash, &blob); err != nil {
			return fmt.Errorf("scan embedding: %w", err)
		}
		v, err := storage.DecodeVector(blob)
		if err != nil {
			return err
		}
		hits[core.ContentHash(hash)] = v
	}
	return rows.Err()
}

// Put inserts the entry, ignoring a conflicting existing row.
func (s *Store) Put(ctx context.Context, entry *core.CacheEntry) error {
	created := entry.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, insertSQL(s.dialect),
		string(entry.Hash), entry.Model, storage.EncodeVector(entry.Embedding), created)
	if err != nil {
		return fmt.Errorf("put embedding: %w", err)
	}
	return nil
}
