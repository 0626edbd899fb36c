package store

import "github.com/dndtools/lorekeeper/model"

// indexedFields lists, per entity type, which scalar fields get their own
// sqlite column so GetEntities can filter on them without decoding the JSON
// payload. "document" is always indexed and is not repeated here.
var indexedFields = map[model.EntityType][]column{
	model.TypeSpells: {
		{"level", "INTEGER"},
		{"school", "TEXT"},
		{"concentration", "INTEGER"},
		{"ritual", "INTEGER"},
	},
	model.TypeCreatures: {
		{"challenge_rating", "REAL"},
		{"type", "TEXT"},
		{"size", "TEXT"},
	},
	model.TypeEquipment: {
		{"category", "TEXT"},
		{"rarity", "TEXT"},
	},
	model.TypeWeapons: {
		{"category", "TEXT"},
		{"damage_type", "TEXT"},
		{"rarity", "TEXT"},
	},
	model.TypeArmor: {
		{"category", "TEXT"},
		{"armor_class", "INTEGER"},
		{"rarity", "TEXT"},
	},
	model.TypeMagicItems: {
		{"category", "TEXT"},
		{"rarity", "TEXT"},
		{"requires_attunement", "INTEGER"},
	},
	model.TypeClasses:      {{"name", "TEXT"}},
	model.TypeSubclasses:   {{"name", "TEXT"}},
	model.TypeRaces:        {{"name", "TEXT"}},
	model.TypeSubraces:     {{"name", "TEXT"}},
	model.TypeBackgrounds:  {{"name", "TEXT"}},
	model.TypeFeats:        {{"name", "TEXT"}},
	model.TypeConditions:   {{"name", "TEXT"}},
	model.TypeRules:        {{"section", "TEXT"}},
	model.TypeRuleSections: {{"section", "TEXT"}},
}

type column struct {
	Name string
	Type string
}

// columnsFor returns the full indexed-column list for entityType, including
// the always-present "document" column. Unknown entity types get only
// "document", per the cache's schema-on-first-use contract.
func columnsFor(entityType model.EntityType) []column {
	cols := []column{{"document", "TEXT"}}
	cols = append(cols, indexedFields[entityType]...)
	return cols
}
