package repository

import (
	"context"
	"log/slog"

	"github.com/dndtools/lorekeeper/model"
	"github.com/dndtools/lorekeeper/store"
	"github.com/dndtools/lorekeeper/upstream"
)

// CreatureFilters narrows a creature search to the catalog's indexed
// fields. CRMin/CRMax bound the challenge_rating range filter.
type CreatureFilters struct {
	CRMin     *float64
	CRMax     *float64
	Type      string
	Size      string
	Documents []string // nil: no document scoping; non-nil empty: match nothing
}

func (f CreatureFilters) toModel() model.Filters {
	out := model.Filters{}.Range("challenge_rating", floatAny(f.CRMin), floatAny(f.CRMax))
	if f.Type != "" {
		out = out.Eq("type", f.Type)
	}
	if f.Size != "" {
		out = out.Eq("size", f.Size)
	}
	out = out.In("document", f.Documents)
	return out
}

// toAPIParams maps repository filters to upstream API parameters, per the
// fixed creature parameter table. The CR range is sent upstream as
// challenge_rating_decimal__gte/lte and is also applied in the cache
// against the numeric challenge_rating column (see toModel).
func (f CreatureFilters) toAPIParams() map[string]any {
	params := map[string]any{}
	if f.CRMin != nil {
		params["challenge_rating_decimal__gte"] = *f.CRMin
	}
	if f.CRMax != nil {
		params["challenge_rating_decimal__lte"] = *f.CRMax
	}
	if f.Type != "" {
		params["type"] = f.Type
	}
	if f.Size != "" {
		params["size"] = f.Size
	}
	return params
}

func floatAny(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

// CreatureRepository serves creature (monster) lookups and search,
// cache-aside over the upstream catalog.
type CreatureRepository struct {
	base
	upstream upstream.Client
}

// NewCreatureRepository builds a CreatureRepository over cache, fetching
// misses from client.
func NewCreatureRepository(cache store.Cache, client upstream.Client, log *slog.Logger) *CreatureRepository {
	return &CreatureRepository{
		base:     base{cache: cache, entityType: model.TypeCreatures, log: log},
		upstream: client,
	}
}

// Search returns creatures matching query (semantic when non-empty) and
// filters. When a structured (empty-query) search finds nothing in the
// cache, it fetches the creatures matching filters from upstream.
func (r *CreatureRepository) Search(ctx context.Context, query string, filters CreatureFilters, limit int) ([]model.Entity, error) {
	if documentsEmpty(filters.Documents) {
		return nil, nil
	}
	return r.search(ctx, query, filters.toModel(), limit, r.fetchWith(filters))
}

// GetAll returns every cached creature, seeding the cache from upstream if
// empty.
func (r *CreatureRepository) GetAll(ctx context.Context) ([]model.Entity, error) {
	return r.getAll(ctx, r.fetchWith(CreatureFilters{}))
}

func (r *CreatureRepository) fetchWith(filters CreatureFilters) func(ctx context.Context) ([]model.Entity, error) {
	return func(ctx context.Context) ([]model.Entity, error) {
		entities, err := r.upstream.GetCreatures(ctx, filters.toAPIParams())
		if err != nil {
			return nil, mapUpstreamErr("get creatures", err)
		}
		return entities, nil
	}
}
