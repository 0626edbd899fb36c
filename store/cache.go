// Package store implements lorekeeper's embedded cache engine: one sqlite
// file holding a collection per entity type, searchable by scalar filter,
// vector similarity, or both together.
package store

import (
	"context"

	"github.com/dndtools/lorekeeper/config"
	"github.com/dndtools/lorekeeper/embedding"
	"github.com/dndtools/lorekeeper/model"
)

// Cache is the protocol every cache backend implements. Repositories depend
// only on this interface, never on a concrete backend.
type Cache interface {
	GetEntities(ctx context.Context, entityType model.EntityType, filters model.Filters) ([]model.Entity, error)
	StoreEntities(ctx context.Context, entities []model.Entity, entityType model.EntityType) (int, error)
	SemanticSearch(ctx context.Context, entityType model.EntityType, query string, limit int, filters model.Filters) ([]model.Entity, error)
	EntityCount(ctx context.Context, entityType model.EntityType) (int, error)
	AvailableDocuments(ctx context.Context, entityType model.EntityType) ([]string, error)
	DocumentMetadata(ctx context.Context, doc string) (map[model.EntityType]int, error)
	Stats(ctx context.Context) (model.CacheStats, error)
	Close() error
}

// NewCache builds the Cache backend named by cfg.CacheBackend.
func NewCache(cfg *config.Config, embedder embedding.Service) (Cache, error) {
	switch cfg.CacheBackend {
	case config.BackendStructured:
		return NewStructuredStore(cfg.DBPath)
	default:
		return NewVectorStore(cfg.DBPath, embedder, cfg.EmbeddingDim)
	}
}
