package repository

import (
	"context"
	"log/slog"

	"github.com/dndtools/lorekeeper/model"
	"github.com/dndtools/lorekeeper/store"
	"github.com/dndtools/lorekeeper/upstream"
)

// EquipmentFilters narrows an equipment search to the catalog's indexed
// fields.
type EquipmentFilters struct {
	Category   string
	DamageType string // weapons only
	ArmorClass *int   // armor only
	Rarity     string
	Attunement *bool    // magic items only
	Documents  []string // nil: no document scoping; non-nil empty: match nothing
}

func (f EquipmentFilters) toModel() model.Filters {
	var out model.Filters
	if f.Category != "" {
		out = out.Eq("category", f.Category)
	}
	if f.DamageType != "" {
		out = out.Eq("damage_type", f.DamageType)
	}
	if f.ArmorClass != nil {
		out = out.Eq("armor_class", *f.ArmorClass)
	}
	if f.Rarity != "" {
		out = out.Eq("rarity", f.Rarity)
	}
	if f.Attunement != nil {
		out = out.Eq("requires_attunement", *f.Attunement)
	}
	out = out.In("document", f.Documents)
	return out
}

// toAPIParams maps repository filters to upstream API parameters. Document
// filters are never sent upstream.
func (f EquipmentFilters) toAPIParams() map[string]any {
	params := map[string]any{}
	if f.Category != "" {
		params["category"] = f.Category
	}
	if f.DamageType != "" {
		params["damage_type"] = f.DamageType
	}
	if f.ArmorClass != nil {
		params["armor_class"] = *f.ArmorClass
	}
	if f.Rarity != "" {
		params["rarity"] = f.Rarity
	}
	if f.Attunement != nil {
		params["requires_attunement"] = *f.Attunement
	}
	return params
}

// equipmentSubtypes are the entity-type collections EquipmentRepository
// fans out searches across, mirroring how the upstream catalog splits
// equipment into general items, weapons, armor and magic items.
var equipmentSubtypes = []model.EntityType{
	model.TypeEquipment,
	model.TypeWeapons,
	model.TypeArmor,
	model.TypeMagicItems,
}

// EquipmentRepository serves equipment/weapon/armor/magic-item lookups and
// search, cache-aside over the upstream catalog, fanning out across all
// four collections.
type EquipmentRepository struct {
	cache    store.Cache
	upstream upstream.Client
	log      *slog.Logger
}

// NewEquipmentRepository builds an EquipmentRepository over cache, fetching
// misses from client.
func NewEquipmentRepository(cache store.Cache, client upstream.Client, log *slog.Logger) *EquipmentRepository {
	return &EquipmentRepository{cache: cache, upstream: client, log: log}
}

// Search returns items across every equipment subtype matching query
// (semantic when non-empty) and filters.
func (r *EquipmentRepository) Search(ctx context.Context, query string, filters EquipmentFilters, limit int) ([]model.Entity, error) {
	if documentsEmpty(filters.Documents) {
		return nil, nil
	}
	var out []model.Entity
	for _, t := range equipmentSubtypes {
		b := base{cache: r.cache, entityType: t, log: r.log}
		results, err := b.search(ctx, query, filters.toModel(), limit, r.fetchFor(t, filters))
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

// GetAll returns every cached item across all equipment subtypes, seeding
// each subtype's cache from upstream if empty.
func (r *EquipmentRepository) GetAll(ctx context.Context) ([]model.Entity, error) {
	var out []model.Entity
	for _, t := range equipmentSubtypes {
		b := base{cache: r.cache, entityType: t, log: r.log}
		results, err := b.getAll(ctx, r.fetchFor(t, EquipmentFilters{}))
		if err != nil {
			return nil, err
		}
		out = append(out, results...)
	}
	return out, nil
}

func (r *EquipmentRepository) fetchFor(t model.EntityType, filters EquipmentFilters) func(ctx context.Context) ([]model.Entity, error) {
	return func(ctx context.Context) ([]model.Entity, error) {
		itemType := string(t)
		if t == model.TypeEquipment {
			itemType = ""
		}
		entities, err := r.upstream.GetEquipment(ctx, itemType, filters.toAPIParams())
		if err != nil {
			return nil, mapUpstreamErr("get equipment", err)
		}
		return entities, nil
	}
}
