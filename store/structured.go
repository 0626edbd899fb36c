package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dndtools/lorekeeper/errs"
	"github.com/dndtools/lorekeeper/model"
)

// StructuredStore is the Cache backend used when no embedding model is
// available. It stores the same scalar-indexed columns and JSON payload as
// VectorStore, in plain sqlite tables, but SemanticSearch always returns
// errs.ErrNotSupported so callers fall back to structured search.
type StructuredStore struct {
	db   *sql.DB
	path string

	mu      sync.Mutex
	created map[model.EntityType]bool
}

// NewStructuredStore opens (creating if necessary) the sqlite file at path.
func NewStructuredStore(path string) (*StructuredStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errs.NewCacheError("open", fmt.Errorf("create db directory: %w", err))
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errs.NewCacheError("open", err)
	}
	return &StructuredStore{db: db, path: path, created: make(map[model.EntityType]bool)}, nil
}

func (s *StructuredStore) Close() error { return s.db.Close() }

func (s *StructuredStore) ensureCollection(ctx context.Context, entityType model.EntityType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.created[entityType] {
		return nil
	}

	cols := []string{"slug TEXT PRIMARY KEY", "name TEXT", "document TEXT", "source_api TEXT"}
	for _, c := range indexedFields[entityType] {
		cols = append(cols, fmt.Sprintf("%s %s", c.Name, c.Type))
	}
	cols = append(cols, "entity_json TEXT")

	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", entityType.Table(), strings.Join(cols, ", "))
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return errs.NewCacheError("create collection", err)
	}
	s.created[entityType] = true
	return nil
}

// StoreEntities upserts entities with no embedding step.
func (s *StructuredStore) StoreEntities(ctx context.Context, entities []model.Entity, entityType model.EntityType) (int, error) {
	if len(entities) == 0 {
		return 0, nil
	}
	if err := s.ensureCollection(ctx, entityType); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errs.NewCacheError("store entities", err)
	}
	defer tx.Rollback()

	cols := allColumns(entityType)
	placeholders := make([]string, len(cols))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	insertSQL := fmt.Sprintf(
		"INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		entityType.Table(), strings.Join(cols, ", "), strings.Join(placeholders, ", "),
	)
	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return 0, errs.NewCacheError("store entities", err)
	}
	defer stmt.Close()

	for _, e := range entities {
		payload, err := model.Payload(mergedFields(e)).Value()
		if err != nil {
			return 0, errs.NewCacheError("encode payload", err)
		}
		args := make([]any, 0, len(cols))
		args = append(args, e.Slug, e.Name, e.Document, e.SourceAPI)
		for _, c := range indexedFields[entityType] {
			args = append(args, scalarValue(e, c.Name))
		}
		args = append(args, payload)

		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, errs.NewCacheError("store entities", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, errs.NewCacheError("store entities", err)
	}
	return len(entities), nil
}

// GetEntities returns every entity in entityType's collection matching
// filters.
func (s *StructuredStore) GetEntities(ctx context.Context, entityType model.EntityType, filters model.Filters) ([]model.Entity, error) {
	if err := s.ensureCollection(ctx, entityType); err != nil {
		return nil, err
	}

	where, args, clientSide := buildWhere(entityType, filters)
	query := fmt.Sprintf("SELECT slug, name, document, source_api, entity_json FROM %s", entityType.Table())
	if where != "" {
		query += " WHERE " + where
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.NewCacheError("get entities", err)
	}
	defer rows.Close()

	var out []model.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, errs.NewCacheError("get entities", err)
		}
		if matchesClientSide(e, clientSide) {
			out = append(out, e)
		}
	}
	return out, rows.Err()
}

// SemanticSearch always fails with errs.ErrNotSupported; this backend
// carries no embedding model.
func (s *StructuredStore) SemanticSearch(ctx context.Context, entityType model.EntityType, query string, limit int, filters model.Filters) ([]model.Entity, error) {
	return nil, errs.ErrNotSupported
}

// EntityCount returns the number of entities stored in entityType's
// collection.
func (s *StructuredStore) EntityCount(ctx context.Context, entityType model.EntityType) (int, error) {
	if err := s.ensureCollection(ctx, entityType); err != nil {
		return 0, err
	}
	var count int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", entityType.Table())).Scan(&count)
	if err != nil {
		return 0, errs.NewCacheError("entity count", err)
	}
	return count, nil
}

// AvailableDocuments returns the distinct source documents represented in
// entityType's collection.
func (s *StructuredStore) AvailableDocuments(ctx context.Context, entityType model.EntityType) ([]string, error) {
	if err := s.ensureCollection(ctx, entityType); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT DISTINCT document FROM %s WHERE document != ''", entityType.Table()))
	if err != nil {
		return nil, errs.NewCacheError("available documents", err)
	}
	defer rows.Close()

	var docs []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, errs.NewCacheError("available documents", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// DocumentMetadata returns, for every collection the store has created so
// far, the number of entities tagged with doc (entity types with zero
// matches are omitted).
func (s *StructuredStore) DocumentMetadata(ctx context.Context, doc string) (map[model.EntityType]int, error) {
	s.mu.Lock()
	types := make([]model.EntityType, 0, len(s.created))
	for t := range s.created {
		types = append(types, t)
	}
	s.mu.Unlock()

	out := make(map[model.EntityType]int, len(types))
	for _, t := range types {
		var count int
		err := s.db.QueryRowContext(ctx,
			fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE document = ?", t.Table()), doc,
		).Scan(&count)
		if err != nil {
			return nil, errs.NewCacheError("document metadata", err)
		}
		if count > 0 {
			out[t] = count
		}
	}
	return out, nil
}

// Stats returns per-collection counts and per-document breakdowns across
// every collection the store has created so far.
func (s *StructuredStore) Stats(ctx context.Context) (model.CacheStats, error) {
	s.mu.Lock()
	types := make([]model.EntityType, 0, len(s.created))
	for t := range s.created {
		types = append(types, t)
	}
	s.mu.Unlock()

	stats := model.CacheStats{
		Collections: make(map[model.EntityType]model.CollectionStats, len(types)),
		DBPath:      s.path,
	}
	for _, t := range types {
		count, err := s.EntityCount(ctx, t)
		if err != nil {
			return model.CacheStats{}, err
		}
		rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT document, COUNT(*) FROM %s GROUP BY document", t.Table()))
		if err != nil {
			return model.CacheStats{}, errs.NewCacheError("stats", err)
		}
		docs := map[string]int{}
		for rows.Next() {
			var doc string
			var n int
			if err := rows.Scan(&doc, &n); err != nil {
				rows.Close()
				return model.CacheStats{}, errs.NewCacheError("stats", err)
			}
			docs[doc] = n
		}
		rows.Close()
		stats.Collections[t] = model.CollectionStats{Count: count, Documents: docs}
	}
	return stats, nil
}
