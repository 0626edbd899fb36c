package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dndtools/lorekeeper/errs"
	"github.com/dndtools/lorekeeper/model"
	"github.com/dndtools/lorekeeper/store"
	"github.com/dndtools/lorekeeper/upstream"
)

// characterOptionTypes are the entity-type collections
// CharacterOptionRepository multiplexes over: classes, races, backgrounds,
// feats and conditions.
var characterOptionTypes = []model.EntityType{
	model.TypeClasses,
	model.TypeRaces,
	model.TypeBackgrounds,
	model.TypeFeats,
	model.TypeConditions,
}

func isCharacterOptionType(t model.EntityType) bool {
	for _, c := range characterOptionTypes {
		if c == t {
			return true
		}
	}
	return false
}

// CharacterOptionFilters narrows a character-option search.
type CharacterOptionFilters struct {
	Documents []string // nil: no document scoping; non-nil empty: match nothing
}

func (f CharacterOptionFilters) toModel() model.Filters {
	return model.Filters{}.In("document", f.Documents)
}

// CharacterOptionRepository serves class/race/background/feat/condition
// lookups and search, cache-aside over the upstream catalog.
type CharacterOptionRepository struct {
	cache    store.Cache
	upstream upstream.Client
	log      *slog.Logger
}

// NewCharacterOptionRepository builds a CharacterOptionRepository over
// cache, fetching misses from client.
func NewCharacterOptionRepository(cache store.Cache, client upstream.Client, log *slog.Logger) *CharacterOptionRepository {
	return &CharacterOptionRepository{cache: cache, upstream: client, log: log}
}

// Search returns character options matching query (semantic when
// non-empty) and filters. With optionType set, the search is scoped to
// that single collection; with optionType empty, it fans out across all
// five character-option collections.
func (r *CharacterOptionRepository) Search(ctx context.Context, optionType model.EntityType, query string, filters CharacterOptionFilters, limit int) ([]model.Entity, error) {
	if documentsEmpty(filters.Documents) {
		return nil, nil
	}
	if optionType != "" {
		if !isCharacterOptionType(optionType) {
			return nil, errs.NewValidationError("option_type", string(optionType), errors.New("not a recognized character option type"))
		}
		b := base{cache: r.cache, entityType: optionType, log: r.log}
		return b.search(ctx, query, filters.toModel(), limit, r.fetchFor(optionType, filters))
	}

	var out []model.Entity
	for _, t := range characterOptionTypes {
		b := base{cache: r.cache, entityType: t, log: r.log}
		results, err := b.search(ctx, query, filters.toModel(), limit, r.fetchFor(t, filters))
		if err != nil {
			return nil, err
		}
		out = append(out, results...)
	}
	return out, nil
}

// GetAll returns every cached option across all character-option
// collections, seeding each from upstream if empty.
func (r *CharacterOptionRepository) GetAll(ctx context.Context) ([]model.Entity, error) {
	var out []model.Entity
	for _, t := range characterOptionTypes {
		b := base{cache: r.cache, entityType: t, log: r.log}
		results, err := b.getAll(ctx, r.fetchFor(t, CharacterOptionFilters{}))
		if err != nil {
			return nil, err
		}
		out = append(out, results...)
	}
	return out, nil
}

func (r *CharacterOptionRepository) fetchFor(t model.EntityType, filters CharacterOptionFilters) func(ctx context.Context) ([]model.Entity, error) {
	return func(ctx context.Context) ([]model.Entity, error) {
		entities, err := r.upstream.GetCharacterOptions(ctx, string(t), map[string]any{})
		if err != nil {
			return nil, mapUpstreamErr(fmt.Sprintf("get character options (%s)", t), err)
		}
		return entities, nil
	}
}
