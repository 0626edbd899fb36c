// Package model defines the entity, filter and result types shared by the
// cache engine, embedding service and repository layer.
package model

import (
	"errors"
	"strings"

	"github.com/dndtools/lorekeeper/errs"
)

// EntityType names one of the catalog's fixed entity collections.
type EntityType string

const (
	TypeSpells       EntityType = "spells"
	TypeCreatures    EntityType = "creatures"
	TypeEquipment    EntityType = "equipment"
	TypeWeapons      EntityType = "weapons"
	TypeArmor        EntityType = "armor"
	TypeMagicItems   EntityType = "magicitems"
	TypeClasses      EntityType = "classes"
	TypeSubclasses   EntityType = "subclasses"
	TypeRaces        EntityType = "races"
	TypeSubraces     EntityType = "subraces"
	TypeBackgrounds  EntityType = "backgrounds"
	TypeFeats        EntityType = "feats"
	TypeConditions   EntityType = "conditions"
	TypeRules        EntityType = "rules"
	TypeRuleSections EntityType = "rule_sections"

	// Reference types: small, flat lookup tables the rule repository
	// multiplexes over alongside rules/rule_sections/conditions.
	TypeDamageTypes      EntityType = "damagetypes"
	TypeWeaponProperties EntityType = "weapon_properties"
	TypeSkills           EntityType = "skills"
	TypeAbilityScores    EntityType = "ability_scores"
	TypeMagicSchools     EntityType = "magic_schools"
	TypeLanguages        EntityType = "languages"
	TypeProficiencies    EntityType = "proficiencies"
	TypeAlignments       EntityType = "alignments"
)

// Table returns the sqlite table/collection name for the entity type.
func (t EntityType) Table() string {
	return "vec_" + string(t)
}

// Payload is the dynamic, JSON-serialized remainder of an entity's fields
// that are not promoted to indexed scalar columns. It round-trips through
// database/sql via Value/Scan.
type Payload map[string]any

// Entity is the typed record returned by every cache and repository
// operation.
type Entity struct {
	Slug      string         `json:"slug"`
	Name      string         `json:"name"`
	Document  string         `json:"document"`
	SourceAPI string         `json:"source_api,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
	Payload   Payload        `json:"payload,omitempty"`
	Score     *float64       `json:"_score,omitempty"`
}

// Get returns a field value by key, checking Fields first then Payload.
func (e Entity) Get(key string) (any, bool) {
	if v, ok := e.Fields[key]; ok {
		return v, true
	}
	v, ok := e.Payload[key]
	return v, ok
}

// Validate rejects entities missing the fields every collection requires.
// The repository layer skips upstream-fetched entities that fail this
// check rather than failing the whole batch.
func Validate(e Entity) error {
	if strings.TrimSpace(e.Slug) == "" {
		return errs.NewValidationError(e.Name, "slug", errors.New("slug is required"))
	}
	if strings.TrimSpace(e.Name) == "" {
		return errs.NewValidationError(e.Slug, "name", errors.New("name is required"))
	}
	return nil
}
