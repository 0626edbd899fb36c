package repository

import (
	"log/slog"

	"github.com/dndtools/lorekeeper/store"
	"github.com/dndtools/lorekeeper/upstream"
)

// Factory owns the process-wide cache singleton and hands out one
// repository per domain, all sharing it. It exists so nothing in the
// repository layer depends on package-level globals.
type Factory struct {
	cache    store.Cache
	upstream upstream.Client
	log      *slog.Logger
}

// NewFactory builds a Factory over an already-open cache and upstream
// client.
func NewFactory(cache store.Cache, client upstream.Client, log *slog.Logger) *Factory {
	return &Factory{cache: cache, upstream: client, log: log}
}

// ResetCache swaps the factory's cache, for test isolation between cases
// that would otherwise share one on-disk file.
func (f *Factory) ResetCache(cache store.Cache) {
	f.cache = cache
}

// Cache returns the factory's shared cache backend, for callers (the
// list_documents tool, diagnostics) that need store-level operations no
// single domain repository exposes.
func (f *Factory) Cache() store.Cache {
	return f.cache
}

func (f *Factory) Spells() *SpellRepository {
	return NewSpellRepository(f.cache, f.upstream, f.log)
}

func (f *Factory) Creatures() *CreatureRepository {
	return NewCreatureRepository(f.cache, f.upstream, f.log)
}

func (f *Factory) Equipment() *EquipmentRepository {
	return NewEquipmentRepository(f.cache, f.upstream, f.log)
}

func (f *Factory) CharacterOptions() *CharacterOptionRepository {
	return NewCharacterOptionRepository(f.cache, f.upstream, f.log)
}

func (f *Factory) Rules() *RuleRepository {
	return NewRuleRepository(f.cache, f.upstream, f.log)
}
