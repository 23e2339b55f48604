package builtin

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/net/html"

	"github.com/sarthakbahal/hierarchical-agent-framework/pkg/tools"
)

// defaultSearchEndpoint is DuckDuckGo's HTML results page, which needs no
// API key. The markup is simpler to parse than the JS-driven site.
const defaultSearchEndpoint = "https://html.duckduckgo.com/html/"

// SearchResult is one web search hit.
type SearchResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}

// WebSearchTool searches the web via DuckDuckGo's HTML endpoint.
type WebSearchTool struct {
	maxResults int
	endpoint   string
	client     *http.Client
}

// WebSearchOption configures the WebSearchTool.
type WebSearchOption func(*WebSearchTool)

// WithSearchEndpoint overrides the search URL (testing).
func WithSearchEndpoint(endpoint string) WebSearchOption {
	return func(t *WebSearchTool) {
		t.endpoint = endpoint
	}
}

// WithSearchClient overrides the HTTP client.
func WithSearchClient(client *http.Client) WebSearchOption {
	return func(t *WebSearchTool) {
		t.client = client
	}
}

// NewWebSearch creates a web_search tool returning up to maxResults hits
// per query.
func NewWebSearch(maxResults int, opts ...WebSearchOption) *WebSearchTool {
	if maxResults <= 0 {
		maxResults = 5
	}
	t := &WebSearchTool{
		maxResults: maxResults,
		endpoint:   defaultSearchEndpoint,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *WebSearchTool) Name() string { return "web_search" }

func (t *WebSearchTool) Definition() mcp.Tool {
	return tools.NewDefinition("web_search",
		fmt.Sprintf("Searches the web using DuckDuckGo and returns up to %d results", t.maxResults),
		map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The search query",
			},
			"max_results": map[string]any{
				"type":        "integer",
				"description": fmt.Sprintf("Maximum number of results (default: %d)", t.maxResults),
			},
		},
		"query",
	)
}

func (t *WebSearchTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	query, _ := args["query"].(string)

	max := t.maxResults
	if raw, ok := args["max_results"].(float64); ok && int(raw) > 0 {
		max = int(raw)
	}

	reqURL := t.endpoint + "?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	// DuckDuckGo rejects requests without a browser-like agent string.
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; agent-framework-search/1.0)")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search failed with status %d", resp.StatusCode)
	}

	root, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing search results: %w", err)
	}

	return parseSearchResults(root, max), nil
}

// parseSearchResults extracts results from the DuckDuckGo HTML page. Each
// hit lives in a div carrying the "result" class, with the title link
// tagged result__a and the description tagged result__snippet.
func parseSearchResults(root *html.Node, max int) []SearchResult {
	results := make([]SearchResult, 0, max)

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if len(results) >= max {
			return
		}
		if n.Type == html.ElementNode && n.Data == "div" && hasClass(n, "result") {
			if r, ok := extractResult(n); ok {
				results = append(results, r)
			}
			return // result divs don't nest
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return results
}

func extractResult(div *html.Node) (SearchResult, bool) {
	r := SearchResult{Title: "No title", Snippet: "No description"}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			switch {
			case hasClass(n, "result__a"):
				r.Title = innerText(n)
				r.URL = attrValue(n, "href")
			case hasClass(n, "result__snippet"):
				r.Snippet = innerText(n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(div)

	return r, r.URL != ""
}

func hasClass(n *html.Node, class string) bool {
	for _, token := range strings.Fields(attrValue(n, "class")) {
		if token == class {
			return true
		}
	}
	return false
}

func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func innerText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

var _ tools.Tool = (*WebSearchTool)(nil)
