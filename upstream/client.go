// Package upstream declares the catalog client the repository layer fetches
// cache misses from. The concrete HTTP implementation is a thin
// collaborator; repositories only depend on the Client interface.
package upstream

import (
	"context"

	"github.com/dndtools/lorekeeper/model"
)

// Client fetches entities from the upstream D&D catalog API.
type Client interface {
	GetSpells(ctx context.Context, filters map[string]any) ([]model.Entity, error)
	GetCreatures(ctx context.Context, filters map[string]any) ([]model.Entity, error)
	GetEquipment(ctx context.Context, itemType string, filters map[string]any) ([]model.Entity, error)
	GetCharacterOptions(ctx context.Context, optionType string, filters map[string]any) ([]model.Entity, error)
	GetRules(ctx context.Context, ruleType string, filters map[string]any) ([]model.Entity, error)
}
