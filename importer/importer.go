// Package importer loads homebrew entity definitions from local JSON files
// directly into the cache, bypassing the upstream catalog. Only the data
// shape is handled here; validating game-balance content is out of scope.
package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dndtools/lorekeeper/model"
	"github.com/dndtools/lorekeeper/store"
)

// LoadFile reads a JSON array of homebrew entities from path and stores
// them into entityType's collection, tagged with document "homebrew".
func LoadFile(ctx context.Context, cache store.Cache, path string, entityType model.EntityType) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read homebrew file %s: %w", path, err)
	}

	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return 0, fmt.Errorf("parse homebrew file %s: %w", path, err)
	}

	entities := make([]model.Entity, 0, len(raw))
	for i, item := range raw {
		slug, _ := item["slug"].(string)
		name, _ := item["name"].(string)
		if slug == "" || name == "" {
			return 0, fmt.Errorf("homebrew entity %d in %s: slug and name are required", i, path)
		}

		payload := make(model.Payload, len(item))
		for k, v := range item {
			if k == "slug" || k == "name" {
				continue
			}
			payload[k] = v
		}

		entities = append(entities, model.Entity{
			Slug:      slug,
			Name:      name,
			Document:  "homebrew",
			SourceAPI: "homebrew",
			Payload:   payload,
		})
	}

	return cache.StoreEntities(ctx, entities, entityType)
}
