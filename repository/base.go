// Package repository implements the cache-aside routing layer: each domain
// repository tries the cache first, falls back to the upstream catalog on a
// miss, and stores whatever it fetches for next time.
package repository

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/dndtools/lorekeeper/errs"
	"github.com/dndtools/lorekeeper/model"
	"github.com/dndtools/lorekeeper/store"
)

// base is embedded by every domain repository and implements the shared
// cache-aside search contract.
type base struct {
	cache      store.Cache
	entityType model.EntityType
	log        *slog.Logger
}

// search implements the three-step contract: try the cache (semantically
// if query is non-empty, structurally otherwise); on ErrNotSupported fall
// back to a structured name-match; on a structured (empty-query) miss, fetch
// from upstream, store the result, and return it. Results are capped at
// limit when limit is positive.
func (b *base) search(ctx context.Context, query string, filters model.Filters, limit int, fetch func(ctx context.Context) ([]model.Entity, error)) ([]model.Entity, error) {
	var (
		results    []model.Entity
		err        error
		structural = strings.TrimSpace(query) == ""
	)

	if !structural {
		results, err = b.cache.SemanticSearch(ctx, b.entityType, query, limit, filters)
		if errors.Is(err, errs.ErrNotSupported) {
			b.log.Warn("semantic search not supported, falling back to structured match",
				slog.String("entity_type", string(b.entityType)))
			results, err = b.cache.GetEntities(ctx, b.entityType, filters.Eq("name", query))
		}
	} else {
		results, err = b.cache.GetEntities(ctx, b.entityType, filters)
	}
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	// A non-empty query is answered from the cache alone, even on zero
	// hits: the semantic (or NotSupported-fallback) branch never escalates
	// to upstream, since "no semantic match" is a valid, final answer.
	if !structural || len(results) > 0 || fetch == nil {
		return results, nil
	}

	fetched, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	fetched = b.validate(fetched)
	if len(fetched) == 0 {
		return fetched, nil
	}

	if _, err := b.cache.StoreEntities(ctx, fetched, b.entityType); err != nil {
		b.log.Warn("failed to populate cache after upstream fetch",
			slog.String("entity_type", string(b.entityType)), slog.Any("error", err))
	}

	// Document scoping is never sent upstream, so apply it to the fetched
	// batch before returning it.
	for _, f := range filters {
		if f.Field != "document" || f.Op != model.OpIn {
			continue
		}
		allowed, _ := f.Value.([]any)
		kept := make([]model.Entity, 0, len(fetched))
		for _, e := range fetched {
			for _, d := range allowed {
				if d == e.Document {
					kept = append(kept, e)
					break
				}
			}
		}
		fetched = kept
	}
	if limit > 0 && len(fetched) > limit {
		fetched = fetched[:limit]
	}

	return fetched, nil
}

// validate drops entities that fail model.Validate, logging a warning for
// each: a malformed record from upstream skips that one entity, it does not
// fail the whole query.
func (b *base) validate(entities []model.Entity) []model.Entity {
	out := entities[:0]
	for _, e := range entities {
		if err := model.Validate(e); err != nil {
			b.log.Warn("skipping malformed entity from upstream",
				slog.String("entity_type", string(b.entityType)), slog.String("slug", e.Slug), slog.Any("error", err))
			continue
		}
		out = append(out, e)
	}
	return out
}

// getAll fetches every known entity of this repository's type, populating
// the cache from upstream on a cold start.
func (b *base) getAll(ctx context.Context, fetch func(ctx context.Context) ([]model.Entity, error)) ([]model.Entity, error) {
	return b.search(ctx, "", nil, 0, fetch)
}

// mapUpstreamErr tags an upstream.Client error with the operation name for
// consistent logging/wrapping across every domain repository.
func mapUpstreamErr(op string, err error) error {
	return errs.NewUpstreamError(op, err)
}

// documentsEmpty reports whether documents is an explicit empty scoping
// list, as opposed to nil (no document filter at all). Per the document
// filter contract, an explicit empty list short-circuits to no results
// rather than broadcasting across every document.
func documentsEmpty(documents []string) bool {
	return documents != nil && len(documents) == 0
}
