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

// ruleTypes are the entity-type collections RuleRepository multiplexes
// over: top-level rules, conditions, and the catalog's small reference
// lookup tables.
var ruleTypes = []model.EntityType{
	model.TypeRules,
	model.TypeConditions,
	model.TypeDamageTypes,
	model.TypeWeaponProperties,
	model.TypeSkills,
	model.TypeAbilityScores,
	model.TypeMagicSchools,
	model.TypeLanguages,
	model.TypeProficiencies,
	model.TypeAlignments,
}

func isRuleType(t model.EntityType) bool {
	for _, r := range ruleTypes {
		if r == t {
			return true
		}
	}
	return false
}

// RuleFilters narrows a rule search. Section only applies when the search
// is scoped to model.TypeRules (directly, or while fanning out).
type RuleFilters struct {
	Section   string
	Documents []string // nil: no document scoping; non-nil empty: match nothing
}

func (f RuleFilters) toModel(ruleType model.EntityType) model.Filters {
	var out model.Filters
	if f.Section != "" && ruleType == model.TypeRules {
		out = out.Eq("section", f.Section)
	}
	out = out.In("document", f.Documents)
	return out
}

// toAPIParams maps repository filters to upstream API parameters for the
// given rule type. Document filters are never sent upstream.
func (f RuleFilters) toAPIParams(ruleType model.EntityType) map[string]any {
	params := map[string]any{}
	if f.Section != "" && ruleType == model.TypeRules {
		params["section"] = f.Section
	}
	return params
}

// RuleRepository serves rules-text and reference-table lookups and search,
// cache-aside over the upstream catalog.
type RuleRepository struct {
	cache    store.Cache
	upstream upstream.Client
	log      *slog.Logger
}

// NewRuleRepository builds a RuleRepository over cache, fetching misses
// from client.
func NewRuleRepository(cache store.Cache, client upstream.Client, log *slog.Logger) *RuleRepository {
	return &RuleRepository{cache: cache, upstream: client, log: log}
}

// Search returns entries matching query (semantic when non-empty) and
// filters. With ruleType set, the search is scoped to that single
// collection; with ruleType empty, it fans out across every rule-type
// collection.
func (r *RuleRepository) Search(ctx context.Context, ruleType model.EntityType, query string, filters RuleFilters, limit int) ([]model.Entity, error) {
	if documentsEmpty(filters.Documents) {
		return nil, nil
	}
	if ruleType != "" {
		if !isRuleType(ruleType) {
			return nil, errs.NewValidationError("rule_type", string(ruleType), errors.New("not a recognized rule type"))
		}
		b := base{cache: r.cache, entityType: ruleType, log: r.log}
		return b.search(ctx, query, filters.toModel(ruleType), limit, r.fetchFor(ruleType, filters))
	}

	var out []model.Entity
	for _, t := range ruleTypes {
		b := base{cache: r.cache, entityType: t, log: r.log}
		results, err := b.search(ctx, query, filters.toModel(t), limit, r.fetchFor(t, filters))
		if err != nil {
			return nil, err
		}
		out = append(out, results...)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Conditions returns the cached condition list, seeding it from upstream if
// empty.
func (r *RuleRepository) Conditions(ctx context.Context) ([]model.Entity, error) {
	b := base{cache: r.cache, entityType: model.TypeConditions, log: r.log}
	return b.getAll(ctx, r.fetchFor(model.TypeConditions, RuleFilters{}))
}

func (r *RuleRepository) fetchFor(t model.EntityType, filters RuleFilters) func(ctx context.Context) ([]model.Entity, error) {
	return func(ctx context.Context) ([]model.Entity, error) {
		entities, err := r.upstream.GetRules(ctx, string(t), filters.toAPIParams(t))
		if err != nil {
			return nil, mapUpstreamErr(fmt.Sprintf("get rules (%s)", t), err)
		}
		return entities, nil
	}
}
