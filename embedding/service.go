// Package embedding provides the lazily-loaded local sentence-embedding
// model used to turn entity text into vectors for the cache engine.
package embedding

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/knights-analytics/hugot"
	"golang.org/x/sync/errgroup"

	"github.com/dndtools/lorekeeper/errs"
	"github.com/dndtools/lorekeeper/model"
)

// batchConcurrency bounds how many goroutines EncodeBatch spreads a large
// batch across when offloading to the pipeline.
const batchConcurrency = 4

// batchInlineThreshold is the largest batch size run on the calling
// goroutine without being split across workers.
const batchInlineThreshold = 8

// Service turns text into fixed-dimensional embeddings and derives the
// searchable text for an entity's fields.
type Service interface {
	Encode(ctx context.Context, text string) ([]float32, error)
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)
	SearchableText(entityType model.EntityType, fields map[string]any) string
	Dim() int
}

// pipeline is the subset of hugot's feature-extraction pipeline Service needs.
type pipeline interface {
	RunPipeline(texts []string) (*hugot.FeatureExtractionOutput, error)
}

// HugotService is a Service backed by a locally downloaded sentence
// transformer model, loaded on first use.
type HugotService struct {
	modelName string
	dim       int

	loadErr  error
	session  *hugot.Session
	pipeline pipeline
	mu       sync.Mutex // guards lazy load; retried on the next call if loading failed
}

// NewHugotService builds an unstarted embedding service. The model is
// downloaded and the inference session created on the first Encode or
// EncodeBatch call.
func NewHugotService(modelName string, dim int) *HugotService {
	return &HugotService{modelName: modelName, dim: dim}
}

func (s *HugotService) Dim() int { return s.dim }

// ensureLoaded lazily downloads the model and builds the hugot pipeline.
// A failed attempt is retried on the next call rather than sticking forever,
// since model downloads can fail transiently.
func (s *HugotService) ensureLoaded() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pipeline != nil {
		return nil
	}

	modelPath, err := PrepareModel(s.modelName)
	if err != nil {
		s.loadErr = &errs.ModelLoadError{Model: s.modelName, Err: err}
		return s.loadErr
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		s.loadErr = &errs.ModelLoadError{Model: s.modelName, Err: fmt.Errorf("create session: %w", err)}
		return s.loadErr
	}

	cfg := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "lorekeeper-embedder",
	}
	p, err := hugot.NewPipeline(session, cfg)
	if err != nil {
		_ = session.Destroy()
		s.loadErr = &errs.ModelLoadError{Model: s.modelName, Err: fmt.Errorf("create pipeline: %w", err)}
		return s.loadErr
	}

	s.session = session
	s.pipeline = p
	s.loadErr = nil
	return nil
}

// Encode returns the embedding vector for a single piece of text.
func (s *HugotService) Encode(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EncodeBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EncodeBatch returns one embedding per input text, preserving order. Small
// batches run inline; larger ones are split across a bounded pool of
// goroutines, each running its own RunPipeline call.
func (s *HugotService) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}

	if len(texts) <= batchInlineThreshold {
		return s.runPipeline(texts)
	}

	results := make([][]float32, len(texts))
	g, _ := errgroup.WithContext(ctx)
	sem := make(chan struct{}, batchConcurrency)

	chunkSize := (len(texts) + batchConcurrency - 1) / batchConcurrency
	for start := 0; start < len(texts); start += chunkSize {
		start := start
		end := start + chunkSize
		if end > len(texts) {
			end = len(texts)
		}
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()
			out, err := s.runPipeline(texts[start:end])
			if err != nil {
				return err
			}
			copy(results[start:end], out)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *HugotService) runPipeline(texts []string) ([][]float32, error) {
	out, err := s.pipeline.RunPipeline(texts)
	if err != nil {
		return nil, &errs.EmbeddingError{Err: err}
	}
	if len(out.Embeddings) != len(texts) {
		return nil, &errs.EmbeddingError{Err: fmt.Errorf("pipeline returned %d embeddings for %d inputs", len(out.Embeddings), len(texts))}
	}
	return out.Embeddings, nil
}

// Close releases the underlying inference session, if one was created.
func (s *HugotService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		return s.session.Destroy()
	}
	return nil
}

// searchableFields lists, per entity type, which field keys (checked in
// Fields then Payload) feed the text that gets embedded. "name" is always
// included first when present, regardless of this table.
var searchableFields = map[model.EntityType][]string{
	model.TypeSpells:       {"desc", "higher_level"},
	model.TypeCreatures:    {"desc", "type", "actions", "special_abilities"},
	model.TypeEquipment:    {"desc", "equipment_category", "properties"},
	model.TypeWeapons:      {"desc", "equipment_category", "properties"},
	model.TypeArmor:        {"desc", "equipment_category", "properties"},
	model.TypeMagicItems:   {"desc", "equipment_category", "properties"},
	model.TypeRules:        {"desc", "content"},
	model.TypeRuleSections: {"desc", "content"},
	model.TypeConditions:   {"desc", "content"},
}

// SearchableText assembles the text that gets embedded for an entity,
// joining its name with the fields relevant to its type.
func (s *HugotService) SearchableText(entityType model.EntityType, fields map[string]any) string {
	return searchableText(entityType, fields)
}

func searchableText(entityType model.EntityType, fields map[string]any) string {
	var parts []string
	if name, ok := fields["name"].(string); ok && name != "" {
		parts = append(parts, name)
	}

	keys, ok := searchableFields[entityType]
	if !ok {
		keys = []string{"desc"}
	}

	for _, key := range keys {
		switch v := fields[key].(type) {
		case string:
			if v != "" {
				parts = append(parts, v)
			}
		case []string:
			parts = append(parts, v...)
		case []any:
			for _, item := range v {
				parts = append(parts, stringifyNamed(item)...)
			}
		}
	}

	return strings.Join(parts, ". ")
}

// stringifyNamed pulls a "name" (and "desc" when present) out of a nested
// object, matching the shape of action/ability/property lists in the
// catalog's JSON responses.
func stringifyNamed(v any) []string {
	m, ok := v.(map[string]any)
	if !ok {
		if s, ok := v.(string); ok {
			return []string{s}
		}
		return nil
	}
	var out []string
	if name, ok := m["name"].(string); ok && name != "" {
		out = append(out, name)
	}
	if desc, ok := m["desc"].(string); ok && desc != "" {
		out = append(out, desc)
	}
	return out
}
