package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dndtools/lorekeeper/errs"
	"github.com/dndtools/lorekeeper/model"
)

// fakeEmbedder is a deterministic, hash-based stand-in for the real
// hugot-backed service so store tests don't need to download a model.
type fakeEmbedder struct{ dim int }

func (f fakeEmbedder) Dim() int { return f.dim }

func (f fakeEmbedder) Encode(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EncodeBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f fakeEmbedder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, f.dim)
		var h uint32 = 2166136261
		for _, c := range []byte(t) {
			h ^= uint32(c)
			h *= 16777619
		}
		for j := range v {
			h = h*1664525 + 1013904223
			v[j] = float32(h%1000) / 1000
		}
		out[i] = v
	}
	return out, nil
}

func (f fakeEmbedder) SearchableText(entityType model.EntityType, fields map[string]any) string {
	name, _ := fields["name"].(string)
	desc, _ := fields["desc"].(string)
	return name + ". " + desc
}

func newTestVectorStore(t *testing.T) *VectorStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	s, err := NewVectorStore(path, fakeEmbedder{dim: 8}, 8)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestStructuredStore(t *testing.T) *StructuredStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	s, err := NewStructuredStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleSpells() []model.Entity {
	return []model.Entity{
		{
			Slug: "fireball", Name: "Fireball", Document: "srd",
			Fields: map[string]any{"level": 3, "school": "Evocation", "concentration": false, "ritual": false},
			Payload: map[string]any{"desc": "A bright streak flashes."},
		},
		{
			Slug: "mage-armor", Name: "Mage Armor", Document: "srd",
			Fields: map[string]any{"level": 1, "school": "Abjuration", "concentration": false, "ritual": false},
			Payload: map[string]any{"desc": "Shields the target."},
		},
	}
}

func TestVectorStoreStoreAndGet(t *testing.T) {
	s := newTestVectorStore(t)
	ctx := context.Background()

	n, err := s.StoreEntities(ctx, sampleSpells(), model.TypeSpells)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	all, err := s.GetEntities(ctx, model.TypeSpells, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	filtered, err := s.GetEntities(ctx, model.TypeSpells, model.Filters{}.Eq("level", 3))
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "fireball", filtered[0].Slug)
	assert.Equal(t, "A bright streak flashes.", filtered[0].Payload["desc"])
}

func TestVectorStoreUpsert(t *testing.T) {
	s := newTestVectorStore(t)
	ctx := context.Background()

	_, err := s.StoreEntities(ctx, sampleSpells(), model.TypeSpells)
	require.NoError(t, err)

	updated := sampleSpells()[:1]
	updated[0].Fields["school"] = "Conjuration"
	_, err = s.StoreEntities(ctx, updated, model.TypeSpells)
	require.NoError(t, err)

	all, err := s.GetEntities(ctx, model.TypeSpells, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2, "upsert must not duplicate rows for an existing slug")
}

func TestVectorStoreSemanticSearch(t *testing.T) {
	s := newTestVectorStore(t)
	ctx := context.Background()

	_, err := s.StoreEntities(ctx, sampleSpells(), model.TypeSpells)
	require.NoError(t, err)

	results, err := s.SemanticSearch(ctx, model.TypeSpells, "fire damage spell", 5, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
	for _, r := range results {
		require.NotNil(t, r.Score)
	}
}

func TestVectorStoreSemanticSearchEmptyQueryFallsBackToGet(t *testing.T) {
	s := newTestVectorStore(t)
	ctx := context.Background()
	_, err := s.StoreEntities(ctx, sampleSpells(), model.TypeSpells)
	require.NoError(t, err)

	results, err := s.SemanticSearch(ctx, model.TypeSpells, "   ", 5, nil)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestVectorStoreUnknownEntityType(t *testing.T) {
	s := newTestVectorStore(t)
	ctx := context.Background()

	_, err := s.StoreEntities(ctx, []model.Entity{{Slug: "x", Name: "X", Document: "homebrew"}}, model.EntityType("custom"))
	require.NoError(t, err)

	all, err := s.GetEntities(ctx, model.EntityType("custom"), nil)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestVectorStoreDocumentMetadata(t *testing.T) {
	s := newTestVectorStore(t)
	ctx := context.Background()

	entities := sampleSpells()
	entities = append(entities, model.Entity{
		Slug: "custom-fire", Name: "Custom Fire", Document: "homebrew",
		Payload: map[string]any{"desc": "Fire attack"},
	})
	_, err := s.StoreEntities(ctx, entities, model.TypeSpells)
	require.NoError(t, err)

	srd, err := s.DocumentMetadata(ctx, "srd")
	require.NoError(t, err)
	assert.Equal(t, map[model.EntityType]int{model.TypeSpells: 2}, srd)

	homebrew, err := s.DocumentMetadata(ctx, "homebrew")
	require.NoError(t, err)
	assert.Equal(t, map[model.EntityType]int{model.TypeSpells: 1}, homebrew)

	none, err := s.DocumentMetadata(ctx, "does-not-exist")
	require.NoError(t, err)
	assert.Empty(t, none)
}

// themeEmbedder maps text onto a small keyword basis (fire/ice/protect) so
// semantic-ranking tests can assert real ordering instead of hash noise.
type themeEmbedder struct{}

func (themeEmbedder) Dim() int { return 3 }

func (themeEmbedder) Encode(ctx context.Context, text string) ([]float32, error) {
	vecs, err := themeEmbedder{}.EncodeBatch(ctx, []string{text})
	return vecs[0], err
}

func (themeEmbedder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		lower := strings.ToLower(t)
		v := [3]float32{}
		for _, kw := range []string{"fire", "flame", "burn"} {
			if strings.Contains(lower, kw) {
				v[0] = 1
			}
		}
		for _, kw := range []string{"ice", "frost", "cold"} {
			if strings.Contains(lower, kw) {
				v[1] = 1
			}
		}
		for _, kw := range []string{"protect", "shield", "ward"} {
			if strings.Contains(lower, kw) {
				v[2] = 1
			}
		}
		out[i] = v[:]
	}
	return out, nil
}

func (themeEmbedder) SearchableText(entityType model.EntityType, fields map[string]any) string {
	name, _ := fields["name"].(string)
	desc, _ := fields["desc"].(string)
	return name + ". " + desc
}

func newThemedVectorStore(t *testing.T) *VectorStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	s, err := NewVectorStore(path, themeEmbedder{}, 3)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func themedSpells() []model.Entity {
	return []model.Entity{
		{
			Slug: "fireball", Name: "Fireball", Document: "srd",
			Fields:  map[string]any{"level": 3, "school": "Evocation"},
			Payload: map[string]any{"desc": "A bright streak flashes from your pointing finger and blossoms into an explosion of flame."},
		},
		{
			Slug: "fire-shield", Name: "Fire Shield", Document: "srd",
			Fields:  map[string]any{"level": 4, "school": "Evocation"},
			Payload: map[string]any{"desc": "Thin and wispy flames wreathe your body, shedding bright light and protecting you."},
		},
		{
			Slug: "ice-storm", Name: "Ice Storm", Document: "srd",
			Fields:  map[string]any{"level": 4, "school": "Evocation"},
			Payload: map[string]any{"desc": "A hail of rock-hard ice pounds to the ground, damaging creatures."},
		},
	}
}

func TestVectorStoreSemanticRankingAcrossThemes(t *testing.T) {
	s := newThemedVectorStore(t)
	ctx := context.Background()

	_, err := s.StoreEntities(ctx, themedSpells(), model.TypeSpells)
	require.NoError(t, err)

	results, err := s.SemanticSearch(ctx, model.TypeSpells, "protect from fire damage", 5, nil)
	require.NoError(t, err)

	var fireShieldIdx, iceStormIdx = -1, -1
	for i, r := range results {
		switch r.Slug {
		case "fire-shield":
			fireShieldIdx = i
		case "ice-storm":
			iceStormIdx = i
		}
	}
	require.NotEqual(t, -1, fireShieldIdx)
	require.NotEqual(t, -1, iceStormIdx)
	assert.Less(t, fireShieldIdx, iceStormIdx, "fire-shield must rank strictly before ice-storm")
}

func TestVectorStoreSemanticSearchHybridFilter(t *testing.T) {
	s := newThemedVectorStore(t)
	ctx := context.Background()

	_, err := s.StoreEntities(ctx, themedSpells(), model.TypeSpells)
	require.NoError(t, err)

	results, err := s.SemanticSearch(ctx, model.TypeSpells, "fire", 5, model.Filters{}.Eq("level", 3))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "fireball", results[0].Slug)
}

func TestVectorStoreGetEntitiesDocumentInFilter(t *testing.T) {
	s := newTestVectorStore(t)
	ctx := context.Background()

	_, err := s.StoreEntities(ctx, sampleSpells(), model.TypeSpells)
	require.NoError(t, err)
	_, err = s.StoreEntities(ctx, []model.Entity{
		{Slug: "custom-fire", Name: "Custom Fire", Document: "homebrew", Payload: map[string]any{"desc": "Fire attack"}},
	}, model.TypeSpells)
	require.NoError(t, err)

	results, err := s.GetEntities(ctx, model.TypeSpells, model.Filters{}.In("document", []string{"srd"}))
	require.NoError(t, err)
	require.Len(t, results, 2, "Filters.In must actually scope by document, not match nothing")
	for _, r := range results {
		assert.Equal(t, "srd", r.Document)
	}
}

func TestVectorStoreSemanticSearchDocumentScoping(t *testing.T) {
	s := newThemedVectorStore(t)
	ctx := context.Background()

	entities := themedSpells()
	entities = append(entities, model.Entity{
		Slug: "custom-fire", Name: "Custom Fire", Document: "homebrew",
		Payload: map[string]any{"desc": "Fire attack"},
	})
	_, err := s.StoreEntities(ctx, entities, model.TypeSpells)
	require.NoError(t, err)

	results, err := s.SemanticSearch(ctx, model.TypeSpells, "fire", 5, model.Filters{}.Eq("document", "srd"))
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, "srd", r.Document)
		assert.NotEqual(t, "custom-fire", r.Slug)
	}
}

func TestVectorStoreEmptyQueryMatchesGetEntitiesSet(t *testing.T) {
	s := newThemedVectorStore(t)
	ctx := context.Background()

	_, err := s.StoreEntities(ctx, themedSpells(), model.TypeSpells)
	require.NoError(t, err)

	semantic, err := s.SemanticSearch(ctx, model.TypeSpells, "   ", 5, model.Filters{}.Eq("level", 4))
	require.NoError(t, err)
	structured, err := s.GetEntities(ctx, model.TypeSpells, model.Filters{}.Eq("level", 4))
	require.NoError(t, err)

	slugs := func(es []model.Entity) []string {
		out := make([]string, 0, len(es))
		for _, e := range es {
			out = append(out, e.Slug)
		}
		return out
	}
	assert.ElementsMatch(t, slugs(structured), slugs(semantic))
	assert.ElementsMatch(t, []string{"fire-shield", "ice-storm"}, slugs(semantic))
}

func TestStructuredStoreNotSupported(t *testing.T) {
	s := newTestStructuredStore(t)
	ctx := context.Background()

	_, err := s.StoreEntities(ctx, sampleSpells(), model.TypeSpells)
	require.NoError(t, err)

	_, err = s.SemanticSearch(ctx, model.TypeSpells, "fire", 5, nil)
	assert.ErrorIs(t, err, errs.ErrNotSupported)
}
