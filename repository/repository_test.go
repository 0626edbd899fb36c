package repository

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dndtools/lorekeeper/errs"
	"github.com/dndtools/lorekeeper/model"
	"github.com/dndtools/lorekeeper/store"
)

// fakeEmbedder is a deterministic stand-in so repository tests don't need
// the real hugot model.
type fakeEmbedder struct{}

func (fakeEmbedder) Dim() int { return 4 }
func (fakeEmbedder) Encode(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0, 0}, nil
}
func (fakeEmbedder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0, 0}
	}
	return out, nil
}
func (fakeEmbedder) SearchableText(entityType model.EntityType, fields map[string]any) string {
	name, _ := fields["name"].(string)
	return name
}

// fakeClient is an in-memory upstream.Client used to test cache-aside
// fallback without a network call.
type fakeClient struct {
	spells    []model.Entity
	creatures []model.Entity
	calls     int
}

func (c *fakeClient) GetSpells(ctx context.Context, filters map[string]any) ([]model.Entity, error) {
	c.calls++
	return c.spells, nil
}
func (c *fakeClient) GetCreatures(ctx context.Context, filters map[string]any) ([]model.Entity, error) {
	c.calls++
	return c.creatures, nil
}
func (c *fakeClient) GetEquipment(ctx context.Context, itemType string, filters map[string]any) ([]model.Entity, error) {
	c.calls++
	return nil, nil
}
func (c *fakeClient) GetCharacterOptions(ctx context.Context, optionType string, filters map[string]any) ([]model.Entity, error) {
	c.calls++
	return nil, nil
}
func (c *fakeClient) GetRules(ctx context.Context, ruleType string, filters map[string]any) ([]model.Entity, error) {
	c.calls++
	return nil, nil
}

func newTestCache(t *testing.T) store.Cache {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	s, err := store.NewVectorStore(path, fakeEmbedder{}, 4)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSpellRepositoryColdCacheFetchesUpstream(t *testing.T) {
	cache := newTestCache(t)
	client := &fakeClient{spells: []model.Entity{
		{Slug: "fireball", Name: "Fireball", Document: "srd", Payload: model.Payload{"level": float64(3)}},
	}}
	repo := NewSpellRepository(cache, client, testLogger())

	results, err := repo.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, client.calls)

	// second call must be served from cache, not upstream again
	results, err = repo.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, client.calls, "cache hit must not call upstream again")
}

func TestCreatureRepositorySearchFallsBackToUpstreamOnMiss(t *testing.T) {
	cache := newTestCache(t)
	client := &fakeClient{creatures: []model.Entity{
		{Slug: "goblin", Name: "Goblin", Document: "srd"},
	}}
	repo := NewCreatureRepository(cache, client, testLogger())

	results, err := repo.Search(context.Background(), "", CreatureFilters{}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "goblin", results[0].Slug)
}

func TestSpellRepositorySearchEmptyDocumentsShortCircuits(t *testing.T) {
	cache := newTestCache(t)
	client := &fakeClient{spells: []model.Entity{
		{Slug: "fireball", Name: "Fireball", Document: "srd"},
	}}
	repo := NewSpellRepository(cache, client, testLogger())

	results, err := repo.Search(context.Background(), "fire", SpellFilters{Documents: []string{}}, 10)
	require.NoError(t, err)
	assert.Empty(t, results, "an explicit empty documents list must never broadcast to all documents")
	assert.Equal(t, 0, client.calls)
}

func newTestStructuredCache(t *testing.T) store.Cache {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	s, err := store.NewStructuredStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// TestSpellRepositorySemanticFallbackOnUnsupportedBackend exercises the
// structured backend's NotSupported path: a non-empty semantic query that
// matches nothing must return an empty, final result and must never
// escalate to upstream (matching spec scenario 6).
func TestSpellRepositorySemanticFallbackOnUnsupportedBackend(t *testing.T) {
	cache := newTestStructuredCache(t)
	client := &fakeClient{spells: []model.Entity{
		{Slug: "fireball", Name: "Fireball", Document: "srd"},
	}}
	repo := NewSpellRepository(cache, client, testLogger())

	_, err := cache.StoreEntities(context.Background(), client.spells, model.TypeSpells)
	require.NoError(t, err)

	results, err := repo.Search(context.Background(), "fire damage", SpellFilters{}, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 0, client.calls, "a zero-hit semantic search must never escalate to upstream")
}

func TestRuleRepositorySearchFansOutWhenRuleTypeAbsent(t *testing.T) {
	cache := newTestCache(t)
	client := &fakeClient{}
	repo := NewRuleRepository(cache, client, testLogger())

	_, err := cache.StoreEntities(context.Background(), []model.Entity{
		{Slug: "grapple", Name: "Grapple", Document: "srd"},
	}, model.TypeRules)
	require.NoError(t, err)
	_, err = cache.StoreEntities(context.Background(), []model.Entity{
		{Slug: "blinded", Name: "Blinded", Document: "srd"},
	}, model.TypeConditions)
	require.NoError(t, err)

	results, err := repo.Search(context.Background(), "", "", RuleFilters{}, 10)
	require.NoError(t, err)
	slugs := make([]string, 0, len(results))
	for _, r := range results {
		slugs = append(slugs, r.Slug)
	}
	assert.ElementsMatch(t, []string{"grapple", "blinded"}, slugs, "empty rule_type fans out across every rule collection")
}

func TestRuleRepositorySearchRejectsUnknownRuleType(t *testing.T) {
	cache := newTestCache(t)
	repo := NewRuleRepository(cache, &fakeClient{}, testLogger())

	_, err := repo.Search(context.Background(), model.EntityType("spaceships"), "", RuleFilters{}, 10)
	require.Error(t, err)
	var verr *errs.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestCharacterOptionRepositorySearchFansOutWhenOptionTypeAbsent(t *testing.T) {
	cache := newTestCache(t)
	repo := NewCharacterOptionRepository(cache, &fakeClient{}, testLogger())

	results, err := repo.Search(context.Background(), "", "", CharacterOptionFilters{}, 10)
	require.NoError(t, err)
	assert.Len(t, results, 0)

	for _, typ := range characterOptionTypes {
		assert.True(t, isCharacterOptionType(typ))
	}
	assert.Contains(t, characterOptionTypes, model.TypeConditions)
	assert.NotContains(t, characterOptionTypes, model.TypeSubclasses)
}

func TestCharacterOptionRepositorySearchRejectsUnknownOptionType(t *testing.T) {
	cache := newTestCache(t)
	repo := NewCharacterOptionRepository(cache, &fakeClient{}, testLogger())

	_, err := repo.Search(context.Background(), model.EntityType("mounts"), "", CharacterOptionFilters{}, 10)
	require.Error(t, err)
	var verr *errs.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestSpellRepositorySkipsMalformedEntitiesFromUpstream(t *testing.T) {
	cache := newTestCache(t)
	client := &fakeClient{spells: []model.Entity{
		{Slug: "fireball", Name: "Fireball", Document: "srd"},
		{Slug: "", Name: "No Slug", Document: "srd"},
		{Slug: "no-name", Name: "", Document: "srd"},
	}}
	repo := NewSpellRepository(cache, client, testLogger())

	results, err := repo.GetAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1, "malformed entities are skipped, not fatal")
	assert.Equal(t, "fireball", results[0].Slug)
}

func TestFactoryResetCache(t *testing.T) {
	cacheA := newTestCache(t)
	cacheB := newTestCache(t)
	client := &fakeClient{spells: []model.Entity{{Slug: "a", Name: "A", Document: "srd"}}}

	factory := NewFactory(cacheA, client, testLogger())
	_, err := factory.Spells().GetAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, client.calls)

	factory.ResetCache(cacheB)
	_, err = factory.Spells().GetAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, client.calls, "resetting the cache must force a fresh upstream fetch")
}
