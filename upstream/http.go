package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dndtools/lorekeeper/errs"
	"github.com/dndtools/lorekeeper/model"
)

// HTTPClient is the real Client implementation, fetching from a paginated
// JSON D&D catalog API.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient builds an HTTPClient against baseURL (e.g.
// "https://www.dnd5eapi.co/api").
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

type listResponse struct {
	Results []struct {
		Index string `json:"index"`
		Name  string `json:"name"`
		URL   string `json:"url"`
	} `json:"results"`
}

func (c *HTTPClient) GetSpells(ctx context.Context, filters map[string]any) ([]model.Entity, error) {
	return c.fetchCollection(ctx, "spells", "spells", filters)
}

func (c *HTTPClient) GetCreatures(ctx context.Context, filters map[string]any) ([]model.Entity, error) {
	return c.fetchCollection(ctx, "monsters", "srd", filters)
}

func (c *HTTPClient) GetEquipment(ctx context.Context, itemType string, filters map[string]any) ([]model.Entity, error) {
	path := "equipment"
	if itemType != "" {
		path = itemType
	}
	return c.fetchCollection(ctx, path, "srd", filters)
}

func (c *HTTPClient) GetCharacterOptions(ctx context.Context, optionType string, filters map[string]any) ([]model.Entity, error) {
	return c.fetchCollection(ctx, optionType, "srd", filters)
}

func (c *HTTPClient) GetRules(ctx context.Context, ruleType string, filters map[string]any) ([]model.Entity, error) {
	path := "rules"
	if ruleType != "" {
		path = ruleType
	}
	return c.fetchCollection(ctx, path, "srd", filters)
}

// fetchCollection lists every item under path, then fetches each item's
// detail document and flattens it into an Entity. document is the source
// document tag attached to every fetched entity (the upstream API used for
// grounding here doesn't expose a document field of its own). filters are
// sent as query parameters on the listing request, narrowing it upstream
// instead of pulling the full collection.
func (c *HTTPClient) fetchCollection(ctx context.Context, path, document string, filters map[string]any) ([]model.Entity, error) {
	var list listResponse
	if err := c.getJSON(ctx, "/"+path+queryString(filters), &list); err != nil {
		return nil, errs.NewUpstreamError("list "+path, err)
	}

	entities := make([]model.Entity, 0, len(list.Results))
	for _, item := range list.Results {
		var fields map[string]any
		if err := c.getJSON(ctx, item.URL, &fields); err != nil {
			return nil, errs.NewUpstreamError("fetch "+item.Index, err)
		}

		entities = append(entities, model.Entity{
			Slug:      item.Index,
			Name:      item.Name,
			Document:  document,
			SourceAPI: path,
			Payload:   model.Payload(fields),
		})
	}

	return entities, nil
}

// queryString renders filters as a "?k=v&..." suffix, sorted by key for
// stable request URLs. Empty/nil filters render as "".
func queryString(filters map[string]any) string {
	if len(filters) == 0 {
		return ""
	}
	values := url.Values{}
	for k, v := range filters {
		values.Set(k, fmt.Sprintf("%v", v))
	}
	return "?" + values.Encode()
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, out any) error {
	u := path
	if !strings.HasPrefix(path, "http") {
		u = c.baseURL + path
	}
	if _, err := url.Parse(u); err != nil {
		return fmt.Errorf("invalid url %q: %w", u, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d for %s", resp.StatusCode, u)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
