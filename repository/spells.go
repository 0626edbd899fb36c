package repository

import (
	"context"
	"log/slog"

	"github.com/dndtools/lorekeeper/model"
	"github.com/dndtools/lorekeeper/store"
	"github.com/dndtools/lorekeeper/upstream"
)

// SpellFilters narrows a spell search to the catalog's indexed fields.
type SpellFilters struct {
	Level         *int
	School        string
	Concentration *bool
	Ritual        *bool
	ClassKey      string   // checked client-side: spells list class membership in their payload, not an indexed column
	Documents     []string // nil: no document scoping; non-nil empty: match nothing
}

func (f SpellFilters) toModel() model.Filters {
	var out model.Filters
	if f.Level != nil {
		out = out.Eq("level", *f.Level)
	}
	if f.School != "" {
		out = out.Eq("school", f.School)
	}
	if f.Concentration != nil {
		out = out.Eq("concentration", *f.Concentration)
	}
	if f.Ritual != nil {
		out = out.Eq("ritual", *f.Ritual)
	}
	if f.ClassKey != "" {
		out = out.Eq("class_key", f.ClassKey)
	}
	out = out.In("document", f.Documents)
	return out
}

// toAPIParams maps repository filters to upstream API parameters, per the
// fixed spell parameter table. Document filters are never sent upstream —
// they are always applied as a post-filter against the cached document
// field.
func (f SpellFilters) toAPIParams() map[string]any {
	params := map[string]any{}
	if f.Level != nil {
		params["level"] = *f.Level
	}
	if f.School != "" {
		params["school"] = f.School
	}
	if f.ClassKey != "" {
		params["class"] = f.ClassKey
	}
	if f.Concentration != nil {
		params["concentration"] = *f.Concentration
	}
	if f.Ritual != nil {
		params["ritual"] = *f.Ritual
	}
	return params
}

// SpellRepository serves spell lookups and search, cache-aside over the
// upstream catalog.
type SpellRepository struct {
	base
	upstream upstream.Client
}

// NewSpellRepository builds a SpellRepository over cache, fetching misses
// from client.
func NewSpellRepository(cache store.Cache, client upstream.Client, log *slog.Logger) *SpellRepository {
	return &SpellRepository{
		base:     base{cache: cache, entityType: model.TypeSpells, log: log},
		upstream: client,
	}
}

// Search returns spells matching query (semantic when non-empty) and
// filters. When a structured (empty-query) search finds nothing in the
// cache, it fetches the spells matching filters from upstream.
func (r *SpellRepository) Search(ctx context.Context, query string, filters SpellFilters, limit int) ([]model.Entity, error) {
	if documentsEmpty(filters.Documents) {
		return nil, nil
	}
	return r.search(ctx, query, filters.toModel(), limit, r.fetchWith(filters))
}

// GetAll returns every cached spell, seeding the cache from upstream if
// empty.
func (r *SpellRepository) GetAll(ctx context.Context) ([]model.Entity, error) {
	return r.getAll(ctx, r.fetchWith(SpellFilters{}))
}

func (r *SpellRepository) fetchWith(filters SpellFilters) func(ctx context.Context) ([]model.Entity, error) {
	return func(ctx context.Context) ([]model.Entity, error) {
		entities, err := r.upstream.GetSpells(ctx, filters.toAPIParams())
		if err != nil {
			return nil, mapUpstreamErr("get spells", err)
		}
		return entities, nil
	}
}
