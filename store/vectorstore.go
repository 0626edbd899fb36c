package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/dndtools/lorekeeper/embedding"
	"github.com/dndtools/lorekeeper/errs"
	"github.com/dndtools/lorekeeper/model"
)

func init() {
	sqlite_vec.Auto()
}

// VectorStore is the Cache backend that keeps every collection as a
// sqlite-vec vec0 virtual table in a single on-disk file, giving both
// indexed scalar filtering and ANN similarity search without a separate
// server process.
type VectorStore struct {
	db       *sql.DB
	path     string
	embedder embedding.Service
	dim      int

	mu      sync.Mutex // serializes schema creation and writes per the cache's mutation contract
	created map[model.EntityType]bool
}

// NewVectorStore opens (creating if necessary) the sqlite file at path and
// returns a VectorStore backed by embedder for SemanticSearch.
func NewVectorStore(path string, embedder embedding.Service, dim int) (*VectorStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errs.NewCacheError("open", fmt.Errorf("create db directory: %w", err))
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errs.NewCacheError("open", err)
	}
	db.SetMaxOpenConns(1) // vec0 + sqlite's own file lock make single-writer concurrency simplest

	return &VectorStore{
		db:       db,
		path:     path,
		embedder: embedder,
		dim:      dim,
		created:  make(map[model.EntityType]bool),
	}, nil
}

// Close releases the underlying sqlite file handle.
func (s *VectorStore) Close() error { return s.db.Close() }

func (s *VectorStore) ensureCollection(ctx context.Context, entityType model.EntityType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.created[entityType] {
		return nil
	}

	cols := columnsFor(entityType)
	defs := make([]string, 0, len(cols)+3)
	defs = append(defs, "slug TEXT PRIMARY KEY")
	defs = append(defs, fmt.Sprintf("embedding float[%d] distance_metric=cosine", s.dim))
	for _, c := range cols {
		defs = append(defs, fmt.Sprintf("%s %s", c.Name, c.Type))
	}
	defs = append(defs, "name TEXT", "source_api TEXT", "entity_json TEXT")

	stmt := fmt.Sprintf(
		"CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(%s)",
		entityType.Table(), strings.Join(defs, ", "),
	)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return errs.NewCacheError("create collection", err)
	}

	s.created[entityType] = true
	return nil
}

// allColumns returns the non-embedding columns selected/inserted for a
// collection, in a stable order: slug, name, document, source_api, indexed
// scalar fields, entity_json.
func allColumns(entityType model.EntityType) []string {
	cols := []string{"slug", "name", "document", "source_api"}
	for _, c := range indexedFields[entityType] {
		cols = append(cols, c.Name)
	}
	cols = append(cols, "entity_json")
	return cols
}

// StoreEntities upserts entities into entityType's collection, embedding
// their searchable text in one batch call. The whole batch commits
// atomically; a context cancellation rolls the entire write back.
func (s *VectorStore) StoreEntities(ctx context.Context, entities []model.Entity, entityType model.EntityType) (int, error) {
	if len(entities) == 0 {
		return 0, nil
	}
	if err := s.ensureCollection(ctx, entityType); err != nil {
		return 0, err
	}

	texts := make([]string, len(entities))
	for i, e := range entities {
		texts[i] = s.embedder.SearchableText(entityType, mergedFields(e))
	}
	vectors, err := s.embedder.EncodeBatch(ctx, texts)
	if err != nil {
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
	placeholders := make([]string, len(cols)+1)
	for i := range placeholders {
		placeholders[i] = "?"
	}
	insertSQL := fmt.Sprintf(
		"INSERT OR REPLACE INTO %s (%s, embedding) VALUES (%s)",
		entityType.Table(), strings.Join(cols, ", "), strings.Join(placeholders, ", "),
	)
	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return 0, errs.NewCacheError("store entities", err)
	}
	defer stmt.Close()

	for i, e := range entities {
		blob, err := sqlite_vec.SerializeFloat32(vectors[i])
		if err != nil {
			return 0, errs.NewCacheError("serialize embedding", err)
		}

		payload, err := model.Payload(mergedFields(e)).Value()
		if err != nil {
			return 0, errs.NewCacheError("encode payload", err)
		}

		args := make([]any, 0, len(cols)+1)
		args = append(args, e.Slug, e.Name, e.Document, e.SourceAPI)
		for _, c := range indexedFields[entityType] {
			args = append(args, scalarValue(e, c.Name))
		}
		args = append(args, payload, blob)

		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, errs.NewCacheError("store entities", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, errs.NewCacheError("store entities", err)
	}

	return len(entities), nil
}

// mergedFields flattens an entity's Fields and Payload into one map for
// searchable-text extraction and payload storage.
func mergedFields(e model.Entity) map[string]any {
	merged := make(map[string]any, len(e.Fields)+len(e.Payload)+1)
	for k, v := range e.Payload {
		merged[k] = v
	}
	for k, v := range e.Fields {
		merged[k] = v
	}
	merged["name"] = e.Name
	return merged
}

func scalarValue(e model.Entity, field string) any {
	v, ok := e.Get(field)
	if !ok {
		return nil
	}
	if b, ok := v.(bool); ok {
		if b {
			return 1
		}
		return 0
	}
	return v
}

// GetEntities returns every entity in entityType's collection matching
// filters, without involving the embedding model.
func (s *VectorStore) GetEntities(ctx context.Context, entityType model.EntityType, filters model.Filters) ([]model.Entity, error) {
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

// SemanticSearch embeds query and returns the limit nearest entities in
// entityType's collection, subject to filters. An empty query is treated
// as a structured GetEntities call, per the cache's contract.
func (s *VectorStore) SemanticSearch(ctx context.Context, entityType model.EntityType, query string, limit int, filters model.Filters) ([]model.Entity, error) {
	if strings.TrimSpace(query) == "" {
		return s.GetEntities(ctx, entityType, filters)
	}
	if err := s.ensureCollection(ctx, entityType); err != nil {
		return nil, err
	}

	vec, err := s.embedder.Encode(ctx, query)
	if err != nil {
		slog.Warn("semantic search: encode failed, falling back to structured search", slog.String("entity_type", string(entityType)), slog.Any("error", err))
		return s.GetEntities(ctx, entityType, filters)
	}
	blob, err := sqlite_vec.SerializeFloat32(vec)
	if err != nil {
		slog.Warn("semantic search: serialize failed, falling back to structured search", slog.String("entity_type", string(entityType)), slog.Any("error", err))
		return s.GetEntities(ctx, entityType, filters)
	}

	where, args, clientSide := buildWhere(entityType, filters)
	sqlQuery := fmt.Sprintf(
		"SELECT slug, name, document, source_api, entity_json, distance FROM %s WHERE embedding MATCH ?",
		entityType.Table(),
	)
	queryArgs := append([]any{blob}, args...)
	if where != "" {
		sqlQuery += " AND " + where
	}
	sqlQuery += " ORDER BY distance LIMIT ?"
	queryArgs = append(queryArgs, limit)

	rows, err := s.db.QueryContext(ctx, sqlQuery, queryArgs...)
	if err != nil {
		slog.Warn("semantic search: vector query failed, falling back to structured search", slog.String("entity_type", string(entityType)), slog.Any("error", err))
		return s.GetEntities(ctx, entityType, filters)
	}
	defer rows.Close()

	var out []model.Entity
	for rows.Next() {
		var e model.Entity
		var payload sql.NullString
		var distance float64
		if err := rows.Scan(&e.Slug, &e.Name, &e.Document, &e.SourceAPI, &payload, &distance); err != nil {
			return nil, errs.NewCacheError("semantic search", err)
		}
		if err := (&e.Payload).Scan(nullToAny(payload)); err != nil {
			return nil, errs.NewCacheError("semantic search", err)
		}
		score := 1 - distance/2
		e.Score = &score
		if matchesClientSide(e, clientSide) {
			out = append(out, e)
		}
	}
	return out, rows.Err()
}

// EntityCount returns the number of entities stored in entityType's
// collection.
func (s *VectorStore) EntityCount(ctx context.Context, entityType model.EntityType) (int, error) {
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
func (s *VectorStore) AvailableDocuments(ctx context.Context, entityType model.EntityType) ([]string, error) {
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
func (s *VectorStore) DocumentMetadata(ctx context.Context, doc string) (map[model.EntityType]int, error) {
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
func (s *VectorStore) Stats(ctx context.Context) (model.CacheStats, error) {
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

func scanEntity(rows *sql.Rows) (model.Entity, error) {
	var e model.Entity
	var payload sql.NullString
	if err := rows.Scan(&e.Slug, &e.Name, &e.Document, &e.SourceAPI, &payload); err != nil {
		return e, err
	}
	if err := (&e.Payload).Scan(nullToAny(payload)); err != nil {
		return e, err
	}
	return e, nil
}

func nullToAny(s sql.NullString) any {
	if !s.Valid {
		return nil
	}
	return s.String
}
