package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/crystaldolphin/toolstream/internal/schema"
)

const (
	defaultExtractMaxLength = 20000
	truncatedSuffix         = "\n\n[truncated]"
)

var (
	selLinks = cascadia.MustCompile("a[href]")
	selHead  = cascadia.MustCompile("head")
	selTitle = cascadia.MustCompile("title")
	selBody  = cascadia.MustCompile("body")
)

// ExtractTool parses an HTML document and returns its text, links, markup
// or metadata, optionally narrowed by a CSS selector.
type ExtractTool struct {
	maxLength int
}

// NewExtractTool creates an ExtractTool. maxLength defaults to 20000.
func NewExtractTool(maxLength int) *ExtractTool {
	if maxLength <= 0 {
		maxLength = defaultExtractMaxLength
	}
	return &ExtractTool{maxLength: maxLength}
}

func (t *ExtractTool) Name() string { return string(ToolHTMLExtract) }
func (t *ExtractTool) Description() string {
	return "Parse HTML to extract text, links, cleaned HTML, or metadata."
}
func (t *ExtractTool) InputSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"html": {"type": "string"},
			"selector": {"type": "string"},
			"mode": {
				"type": "string",
				"enum": ["text", "links", "html", "metadata"],
				"default": "text"
			},
			"max_length": {"type": "number"}
		},
		"required": ["html"]
	}`)
}

// Link is one anchor found by the links mode.
type Link struct {
	Text string `json:"text"`
	Href string `json:"href"`
}

func (t *ExtractTool) Invoke(_ context.Context, args map[string]any) (schema.ToolResult, error) {
	doc, err := html.Parse(strings.NewReader(stringArg(args, "html", "")))
	if err != nil {
		return schema.ToolResult{}, fmt.Errorf("parse html: %w", err)
	}

	maxLength := t.maxLength
	if n, ok := numberArg(args, "max_length"); ok {
		maxLength = int(n)
	}

	nodes := []*html.Node{doc}
	selector := stringArg(args, "selector", "")
	if selector != "" {
		sel, err := cascadia.Compile(selector)
		if err != nil {
			return schema.ToolResult{}, fmt.Errorf("invalid selector %q: %w", selector, err)
		}
		nodes = sel.MatchAll(doc)
		if len(nodes) == 0 {
			return errorBlock(fmt.Sprintf("No elements matched selector '%s'", selector)), nil
		}
	}

	switch mode := stringArg(args, "mode", "text"); mode {
	case "text":
		texts := make([]string, 0, len(nodes))
		for _, n := range nodes {
			if s := nodeText(n); s != "" {
				texts = append(texts, s)
			}
		}
		return schema.TextResult(truncateRunes(strings.Join(texts, "\n\n---\n\n"), maxLength, truncatedSuffix)), nil

	case "links":
		links := []Link{}
		for _, n := range nodes {
			for _, a := range selLinks.MatchAll(n) {
				text, href := nodeText(a), attr(a, "href")
				if text != "" || href != "" {
					links = append(links, Link{Text: text, Href: href})
				}
			}
		}
		return schema.JSONResult(map[string]any{"links": links}), nil

	case "html":
		fragments := make([]string, 0, len(nodes))
		for _, n := range nodes {
			if n.Type == html.DocumentNode {
				if body := selBody.MatchFirst(n); body != nil {
					n = body
				}
			}
			fragments = append(fragments, renderNode(n))
		}
		return schema.TextResult(truncateRunes(strings.Join(fragments, "\n\n<!-- --- -->\n\n"), maxLength, truncatedSuffix)), nil

	case "metadata":
		return schema.JSONResult(extractMetadata(doc)), nil

	default:
		return errorBlock(fmt.Sprintf("Unsupported mode '%s'. Use one of: text, links, html, metadata.", mode)), nil
	}
}

// errorBlock reports a usage problem inside the result payload, leaving the
// result itself successful.
func errorBlock(msg string) schema.ToolResult {
	return schema.JSONResult(map[string]any{"error": msg})
}

// extractMetadata collects title, description and og:* tags. Missing values
// are encoded as null.
func extractMetadata(doc *html.Node) map[string]*string {
	head := selHead.MatchFirst(doc)
	if head == nil {
		head = doc
	}
	meta := func(attrName, value string) *string {
		sel, err := cascadia.Compile(fmt.Sprintf("meta[%s=%q]", attrName, value))
		if err != nil {
			return nil
		}
		for _, m := range sel.MatchAll(head) {
			if c := attr(m, "content"); c != "" {
				return &c
			}
		}
		return nil
	}

	var title *string
	if tn := selTitle.MatchFirst(head); tn != nil {
		if s := strings.TrimSpace(rawText(tn)); s != "" {
			title = &s
		}
	}

	return map[string]*string{
		"title":            title,
		"meta_description": meta("name", "description"),
		"meta_keywords":    meta("name", "keywords"),
		"og_title":         meta("property", "og:title"),
		"og_description":   meta("property", "og:description"),
		"og_url":           meta("property", "og:url"),
		"og_site_name":     meta("property", "og:site_name"),
		"og_type":          meta("property", "og:type"),
	}
}

// nodeText returns the visible text under n with whitespace collapsed.
func nodeText(n *html.Node) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "template":
				return
			}
		}
		if n.Type == html.TextNode {
			if s := strings.TrimSpace(n.Data); s != "" {
				parts = append(parts, s)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

// rawText concatenates the direct text children of n.
func rawText(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func renderNode(n *html.Node) string {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return ""
	}
	return buf.String()
}
