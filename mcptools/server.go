// Package mcptools exposes lorekeeper's repositories as MCP tools. It is a
// thin parameter-mapping layer: validation and routing live in the
// repository package, not here.
package mcptools

import (
	"context"
	"log/slog"
	"sort"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dndtools/lorekeeper/model"
	"github.com/dndtools/lorekeeper/repository"
)

// Server bridges MCP clients to the repository layer.
type Server struct {
	mcp   *mcp.Server
	repos *repository.Factory
	log   *slog.Logger
}

// NewServer builds an MCP server exposing lorekeeper's search tools.
func NewServer(repos *repository.Factory, log *slog.Logger) *Server {
	s := &Server{repos: repos, log: log}

	s.mcp = mcp.NewServer(&mcp.Implementation{
		Name:    "lorekeeper",
		Version: "0.1.0",
	}, nil)

	s.registerTools()
	return s
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server { return s.mcp }

// Run serves the MCP protocol over stdio until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

type searchInput struct {
	Query     string   `json:"query" jsonschema:"the search query; omit for a plain listing"`
	Limit     int      `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	Documents []string `json:"documents,omitempty" jsonschema:"restrict results to entities from these source documents; an empty list matches nothing"`
}

// ruleSearchInput is searchInput plus the rule-type selector: rules
// multiplex over a fixed set of reference collections the other search
// tools don't need to name.
type ruleSearchInput struct {
	Query     string   `json:"query" jsonschema:"the search query; omit for a plain listing"`
	Limit     int      `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	Documents []string `json:"documents,omitempty" jsonschema:"restrict results to entities from these source documents; an empty list matches nothing"`
	RuleType  string   `json:"rule_type,omitempty" jsonschema:"one of rules, conditions, damagetypes, weapon_properties, skills, ability_scores, magic_schools, languages, proficiencies, alignments; omit to search all of them"`
	Section   string   `json:"section,omitempty" jsonschema:"restrict to a rules section (rule_type=rules only)"`
}

type listDocumentsInput struct{}

type entityOutput struct {
	Results []EntityResult `json:"results"`
}

// EntityResult is the MCP-facing shape of a matched entity.
type EntityResult struct {
	Slug     string   `json:"slug"`
	Name     string   `json:"name"`
	Document string   `json:"document"`
	Score    *float64 `json:"_score,omitempty"`
}

func toResults(entities []model.Entity) entityOutput {
	out := entityOutput{Results: make([]EntityResult, 0, len(entities))}
	for _, e := range entities {
		out.Results = append(out.Results, EntityResult{
			Slug: e.Slug, Name: e.Name, Document: e.Document, Score: e.Score,
		})
	}
	return out
}

// documentsOutput is the list_documents tool's result: every document tag
// seen across the cache, plus a per-entity-type breakdown of how many
// records (and from which documents) each collection holds.
type documentsOutput struct {
	Documents   []string                      `json:"documents"`
	Collections map[string]collectionDocCount `json:"collections"`
}

type collectionDocCount struct {
	Count     int            `json:"count"`
	Documents map[string]int `json:"documents"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_spells",
		Description: "Search the D&D 5e spell catalog by name or description.",
	}, s.searchSpellsHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_creatures",
		Description: "Search the D&D 5e bestiary by name or description.",
	}, s.searchCreaturesHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_equipment",
		Description: "Search equipment, weapons, armor and magic items.",
	}, s.searchEquipmentHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_rules",
		Description: "Search SRD rules text, conditions and reference tables (damage types, skills, alignments, etc.).",
	}, s.searchRulesHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_documents",
		Description: "List every cached source document and per-entity-type record counts.",
	}, s.listDocumentsHandler)

	s.log.Info("registered MCP tools", slog.Int("count", 5))
}

func (s *Server) searchSpellsHandler(ctx context.Context, _ *mcp.CallToolRequest, in searchInput) (*mcp.CallToolResult, entityOutput, error) {
	limit := limitOrDefault(in.Limit)
	results, err := s.repos.Spells().Search(ctx, in.Query, repository.SpellFilters{Documents: in.Documents}, limit)
	if err != nil {
		return nil, entityOutput{}, err
	}
	return nil, toResults(results), nil
}

func (s *Server) searchCreaturesHandler(ctx context.Context, _ *mcp.CallToolRequest, in searchInput) (*mcp.CallToolResult, entityOutput, error) {
	limit := limitOrDefault(in.Limit)
	results, err := s.repos.Creatures().Search(ctx, in.Query, repository.CreatureFilters{Documents: in.Documents}, limit)
	if err != nil {
		return nil, entityOutput{}, err
	}
	return nil, toResults(results), nil
}

func (s *Server) searchEquipmentHandler(ctx context.Context, _ *mcp.CallToolRequest, in searchInput) (*mcp.CallToolResult, entityOutput, error) {
	limit := limitOrDefault(in.Limit)
	results, err := s.repos.Equipment().Search(ctx, in.Query, repository.EquipmentFilters{Documents: in.Documents}, limit)
	if err != nil {
		return nil, entityOutput{}, err
	}
	return nil, toResults(results), nil
}

func (s *Server) searchRulesHandler(ctx context.Context, _ *mcp.CallToolRequest, in ruleSearchInput) (*mcp.CallToolResult, entityOutput, error) {
	limit := limitOrDefault(in.Limit)
	filters := repository.RuleFilters{Section: in.Section, Documents: in.Documents}
	results, err := s.repos.Rules().Search(ctx, model.EntityType(in.RuleType), in.Query, filters, limit)
	if err != nil {
		return nil, entityOutput{}, err
	}
	return nil, toResults(results), nil
}

func (s *Server) listDocumentsHandler(ctx context.Context, _ *mcp.CallToolRequest, _ listDocumentsInput) (*mcp.CallToolResult, documentsOutput, error) {
	stats, err := s.repos.Cache().Stats(ctx)
	if err != nil {
		return nil, documentsOutput{}, err
	}

	docSet := map[string]struct{}{}
	collections := make(map[string]collectionDocCount, len(stats.Collections))
	for t, c := range stats.Collections {
		collections[string(t)] = collectionDocCount{Count: c.Count, Documents: c.Documents}
		for d := range c.Documents {
			docSet[d] = struct{}{}
		}
	}

	documents := make([]string, 0, len(docSet))
	for d := range docSet {
		documents = append(documents, d)
	}
	sort.Strings(documents)

	return nil, documentsOutput{Documents: documents, Collections: collections}, nil
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return 10
	}
	return limit
}
