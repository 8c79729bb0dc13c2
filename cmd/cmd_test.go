package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crystaldolphin/toolstream/internal/schema"
)

func TestSendChat_StreamsReply(t *testing.T) {
	var got map[string]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("4"))
	}))
	defer ts.Close()

	var out bytes.Buffer
	err := sendChat(context.Background(), ts.Client(), ts.URL+"/", "s1", "What is 2+2?", &out)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"session_id": "s1", "message": "What is 2+2?"}, got)
	assert.Contains(t, out.String(), "\n4\n")
}

func TestSendChat_ReportsServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"session_id is required"}`))
	}))
	defer ts.Close()

	err := sendChat(context.Background(), ts.Client(), ts.URL, "", "hi", &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session_id is required")
	assert.Contains(t, err.Error(), "400")
}

func TestSendChat_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	err := sendChat(context.Background(), http.DefaultClient, url, "s", "hi", &bytes.Buffer{})
	require.Error(t, err)
}

func TestToolNames(t *testing.T) {
	got := toolNames([]schema.ToolDescriptor{{Name: "echo"}, {Name: "http_fetch"}})
	assert.Equal(t, []string{"echo", "http_fetch"}, got)
	assert.Empty(t, toolNames(nil))
}

func TestHealthURL(t *testing.T) {
	assert.Equal(t, "http://localhost:5002/health", healthURL("ws://localhost:5002/mcp"))
	assert.Equal(t, "https://tools.example.com/health", healthURL("wss://tools.example.com/mcp"))
}

func TestLocalAddr(t *testing.T) {
	assert.Equal(t, "localhost:8000", localAddr("0.0.0.0:8000"))
	assert.Equal(t, "10.0.0.5:8000", localAddr("10.0.0.5:8000"))
}
