package tools

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"

	"github.com/crystaldolphin/toolstream/internal/schema"
)

const (
	defaultFetchUserAgent = "MCP-HTTP-Fetch/1.0 (+https://example.com)"
	defaultFetchTimeout   = 10 * time.Second
	defaultFetchMaxBytes  = 5 << 20
	maxRedirects          = 5
)

// binaryContentTypes are returned base64-encoded instead of as text.
var binaryContentTypes = []string{
	"image/",
	"application/pdf",
	"application/octet-stream",
	"application/zip",
	"audio/",
	"video/",
}

// validateURL checks that url is http(s) with a valid domain.
func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("only http/https allowed, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing domain in URL")
	}
	return nil
}

func newRedirectingClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}

// FetchOptions configures FetchTool.
type FetchOptions struct {
	UserAgent string
	Timeout   time.Duration // default when the caller passes none
	MaxBytes  int64
}

// FetchTool retrieves a URL and returns its status, headers and body.
type FetchTool struct {
	opts       FetchOptions
	httpClient *http.Client
}

// NewFetchTool creates a FetchTool. Zero option fields take defaults.
func NewFetchTool(opts FetchOptions) *FetchTool {
	if opts.UserAgent == "" {
		opts.UserAgent = defaultFetchUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultFetchTimeout
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaultFetchMaxBytes
	}
	return &FetchTool{opts: opts, httpClient: newRedirectingClient()}
}

func (t *FetchTool) Name() string { return string(ToolHTTPFetch) }
func (t *FetchTool) Description() string {
	return "Fetch any URL and return text or binary content."
}
func (t *FetchTool) InputSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"url": {"type": "string"},
			"timeout": {"type": "number", "minimum": 0},
			"extract": {
				"type": "string",
				"enum": ["raw", "readable"],
				"default": "raw"
			}
		},
		"required": ["url"]
	}`)
}

// fetchBody is the body block of a fetch result.
type fetchBody struct {
	Type     string `json:"type"`
	Encoding string `json:"encoding,omitempty"`
	Title    string `json:"title,omitempty"`
	Content  string `json:"content"`
}

type fetchResult struct {
	URL     string            `json:"url"`
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
	Body    fetchBody         `json:"body"`
}

func (t *FetchTool) Invoke(ctx context.Context, args map[string]any) (schema.ToolResult, error) {
	rawURL := stringArg(args, "url", "")
	if err := validateURL(rawURL); err != nil {
		return schema.ToolResult{}, fmt.Errorf("URL validation failed: %w", err)
	}

	timeout := t.opts.Timeout
	if secs, ok := numberArg(args, "timeout"); ok && secs > 0 {
		timeout = time.Duration(secs * float64(time.Second))
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return schema.ToolResult{}, err
	}
	req.Header.Set("User-Agent", t.opts.UserAgent)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return schema.ToolResult{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, t.opts.MaxBytes))
	if err != nil {
		return schema.ToolResult{}, fmt.Errorf("read body: %w", err)
	}

	ctype := strings.ToLower(resp.Header.Get("Content-Type"))
	body := classifyBody(ctype, raw)
	if body.Type == "text" && stringArg(args, "extract", "raw") == "readable" &&
		(strings.Contains(ctype, "text/html") || isHTMLPrefix(raw)) {
		body = readableBody(resp.Request.URL, raw, body)
	}

	return schema.JSONResult(fetchResult{
		URL:     rawURL,
		Status:  resp.StatusCode,
		Headers: flattenHeaders(resp.Header),
		Body:    body,
	}), nil
}

func classifyBody(ctype string, raw []byte) fetchBody {
	binary := !utf8.Valid(raw)
	for _, bt := range binaryContentTypes {
		if strings.Contains(ctype, bt) {
			binary = true
			break
		}
	}
	if binary {
		return fetchBody{
			Type:     "binary",
			Encoding: "base64",
			Content:  base64.StdEncoding.EncodeToString(raw),
		}
	}
	return fetchBody{Type: "text", Content: string(raw)}
}

// readableBody runs readability over an HTML page, keeping fallback when
// no article can be found.
func readableBody(pageURL *url.URL, raw []byte, fallback fetchBody) fetchBody {
	article, err := readability.FromReader(bytes.NewReader(raw), pageURL)
	if err != nil || strings.TrimSpace(article.TextContent) == "" {
		return fallback
	}
	return fetchBody{
		Type:    "text",
		Title:   article.Title,
		Content: strings.TrimSpace(article.TextContent),
	}
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vs := range h {
		out[strings.ToLower(k)] = strings.Join(vs, ", ")
	}
	return out
}

// isHTMLPrefix returns true if the body starts with an HTML declaration.
func isHTMLPrefix(b []byte) bool {
	prefix := strings.ToLower(strings.TrimSpace(string(b[:min(256, len(b))])))
	return strings.HasPrefix(prefix, "<!doctype") || strings.HasPrefix(prefix, "<html")
}
