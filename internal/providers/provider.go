// Package providers streams completions from model services.
//
// Every provider turns a role-tagged message list into a schema.TextStream of
// text fragments. Two wire formats are supported: Ollama's newline-delimited
// JSON and the OpenAI-compatible server-sent events stream.
package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/crystaldolphin/toolstream/internal/schema"
)

// maxLineBytes bounds a single NDJSON line or SSE frame.
const maxLineBytes = 1 << 20

// wireMessage is the request encoding shared by both wire formats.
type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func toWire(messages schema.Messages) []wireMessage {
	out := make([]wireMessage, 0, messages.Len())
	for _, m := range messages.Messages {
		out = append(out, wireMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}

// postStream sends body as JSON and returns the open response. Non-200
// responses are drained and turned into an error.
func postStream(ctx context.Context, client *http.Client, url string, headers map[string]string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, friendlyHTTPError(resp.StatusCode, raw))
	}
	return resp, nil
}

func friendlyHTTPError(code int, body []byte) string {
	if code == 429 {
		return "rate limit exceeded"
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 300 {
		s = s[:300]
	}
	return s
}

// lineStream reads a response body line by line. decode turns one line into
// a fragment; it returns done=true once the stream is complete.
type lineStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	decode  func(line []byte) (text string, done bool, err error)
	done    bool
}

func newLineStream(body io.ReadCloser, decode func([]byte) (string, bool, error)) *lineStream {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	return &lineStream{body: body, scanner: sc, decode: decode}
}

// Recv returns the next non-empty fragment, or io.EOF after completion.
func (s *lineStream) Recv() (string, error) {
	for !s.done {
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return "", fmt.Errorf("read stream: %w", err)
			}
			s.done = true
			break
		}
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		text, done, err := s.decode(line)
		if err != nil {
			return "", err
		}
		s.done = done
		if text != "" {
			return text, nil
		}
	}
	return "", io.EOF
}

func (s *lineStream) Close() error { return s.body.Close() }
