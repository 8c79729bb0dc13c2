package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/crystaldolphin/toolstream/internal/schema"
)

const (
	defaultSearchEndpoint  = "https://html.duckduckgo.com/html/"
	defaultAnswersEndpoint = "https://api.duckduckgo.com/"
	defaultSearchResults   = 5
	searchUserAgent        = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_7_2) AppleWebKit/537.36"
)

var (
	selResult        = cascadia.MustCompile("div.result")
	selResultLink    = cascadia.MustCompile("a.result__a")
	selResultSnippet = cascadia.MustCompile(".result__snippet")
)

// SearchOptions configures SearchTool.
type SearchOptions struct {
	Endpoint        string // DuckDuckGo HTML results page
	AnswersEndpoint string // DuckDuckGo instant-answer API
	MaxResults      int
	Timeout         time.Duration
}

// SearchTool queries DuckDuckGo for instant answers and web results.
type SearchTool struct {
	opts       SearchOptions
	httpClient *http.Client
}

// NewSearchTool creates a SearchTool. Zero option fields take defaults.
func NewSearchTool(opts SearchOptions) *SearchTool {
	if opts.Endpoint == "" {
		opts.Endpoint = defaultSearchEndpoint
	}
	if opts.AnswersEndpoint == "" {
		opts.AnswersEndpoint = defaultAnswersEndpoint
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = defaultSearchResults
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	client := newRedirectingClient()
	client.Timeout = opts.Timeout
	return &SearchTool{opts: opts, httpClient: client}
}

func (t *SearchTool) Name() string { return string(ToolSearch) }
func (t *SearchTool) Description() string {
	return "Full DuckDuckGo search including instant answers, news, and web results."
}
func (t *SearchTool) InputSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string"}
		},
		"required": ["query"]
	}`)
}

// SearchHit is one web or news result.
type SearchHit struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
	Source  string `json:"source,omitempty"`
	Date    string `json:"date,omitempty"`
}

// SearchResults groups everything one query produced. A source that fails
// contributes an empty list rather than failing the whole search.
type SearchResults struct {
	Answers []map[string]any `json:"answers"`
	News    []SearchHit      `json:"news"`
	Web     []SearchHit      `json:"web"`
}

func (t *SearchTool) Invoke(ctx context.Context, args map[string]any) (schema.ToolResult, error) {
	query := strings.TrimSpace(stringArg(args, "query", ""))
	if query == "" {
		return schema.ToolResult{}, fmt.Errorf("query is required")
	}

	results := SearchResults{
		Answers: []map[string]any{},
		News:    []SearchHit{},
		Web:     []SearchHit{},
	}

	if answers, err := t.answers(ctx, query); err != nil {
		slog.Debug("instant answers unavailable", "query", query, "err", err)
	} else {
		results.Answers = answers
	}

	if web, err := t.web(ctx, query); err != nil {
		slog.Debug("web results unavailable", "query", query, "err", err)
	} else {
		results.Web = web
	}

	return schema.JSONResult(results), nil
}

func (t *SearchTool) answers(ctx context.Context, query string) ([]map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.opts.AnswersEndpoint, nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("no_html", "1")
	q.Set("skip_disambig", "1")
	req.URL.RawQuery = q.Encode()
	req.Header.Set("User-Agent", searchUserAgent)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var data struct {
		Heading      string `json:"Heading"`
		Answer       string `json:"Answer"`
		AnswerType   string `json:"AnswerType"`
		AbstractText string `json:"AbstractText"`
		AbstractURL  string `json:"AbstractURL"`
		Definition   string `json:"Definition"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("decode answers: %w", err)
	}

	out := []map[string]any{}
	if data.Answer != "" {
		out = append(out, map[string]any{"text": data.Answer, "type": data.AnswerType})
	}
	if data.AbstractText != "" {
		out = append(out, map[string]any{"text": data.AbstractText, "title": data.Heading, "url": data.AbstractURL})
	}
	if data.Definition != "" {
		out = append(out, map[string]any{"text": data.Definition, "type": "definition"})
	}
	return out, nil
}

func (t *SearchTool) web(ctx context.Context, query string) ([]SearchHit, error) {
	form := url.Values{"q": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.opts.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", searchUserAgent)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse results: %w", err)
	}
	return parseWebResults(doc, t.opts.MaxResults), nil
}

func parseWebResults(doc *html.Node, limit int) []SearchHit {
	hits := []SearchHit{}
	for _, r := range selResult.MatchAll(doc) {
		if len(hits) >= limit {
			break
		}
		link := selResultLink.MatchFirst(r)
		if link == nil {
			continue
		}
		hit := SearchHit{
			Title: nodeText(link),
			URL:   resolveResultURL(attr(link, "href")),
		}
		if sn := selResultSnippet.MatchFirst(r); sn != nil {
			hit.Snippet = nodeText(sn)
		}
		if hit.URL != "" {
			hits = append(hits, hit)
		}
	}
	return hits
}

// resolveResultURL unwraps DuckDuckGo's redirect links (/l/?uddg=<target>).
func resolveResultURL(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}
