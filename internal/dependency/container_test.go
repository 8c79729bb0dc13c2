package dependency

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crystaldolphin/toolstream/internal/agent"
	"github.com/crystaldolphin/toolstream/internal/config"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Agent.AdvertiseTools = false
	cfg.Dispatch.URL = "ws://127.0.0.1:1/mcp"
	return &cfg
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Dispatch.PoolSize = 0
	_, err := New(cfg)
	require.Error(t, err)
}

func TestDispatch_RegistersBuiltinTools(t *testing.T) {
	c, err := New(testConfig())
	require.NoError(t, err)

	svc, err := c.Dispatch()
	require.NoError(t, err)

	var names []string
	for _, d := range svc.Registry().List() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"echo", "duckduckgo_full_search", "http_fetch", "html_extract"}, names)
	assert.Equal(t, 4, svc.Server().ToolCount())
	assert.NotNil(t, svc.Handler())
}

func TestDispatch_DisabledToolsAreSkipped(t *testing.T) {
	cfg := testConfig()
	cfg.Tools.Disabled = []string{"http_fetch", "duckduckgo_full_search"}
	c, err := New(cfg)
	require.NoError(t, err)

	svc, err := c.Dispatch()
	require.NoError(t, err)
	assert.Equal(t, 2, svc.Registry().Len())
}

func TestBackend_UsesConfiguredPrompt(t *testing.T) {
	cfg := testConfig()
	cfg.Agent.SystemPrompt = "Be brief."
	c, err := New(cfg)
	require.NoError(t, err)

	b, err := c.Backend()
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, "Be brief.", b.Sessions().SystemPrompt())
	assert.NotNil(t, b.Interceptor())
	assert.NotNil(t, b.Handler())
}

func TestBackend_DefaultPromptWhenDispatchDown(t *testing.T) {
	cfg := testConfig()
	cfg.Agent.AdvertiseTools = true
	c, err := New(cfg)
	require.NoError(t, err)

	b, err := c.Backend()
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, agent.DefaultSystemPrompt, b.Sessions().SystemPrompt())
}

func TestBackend_AdvertisesDispatchTools(t *testing.T) {
	// Serve the dispatch side from one container and point a second at it.
	dispatchSide, err := New(testConfig())
	require.NoError(t, err)
	svc, err := dispatchSide.Dispatch()
	require.NoError(t, err)
	ts := httptest.NewServer(svc.Handler())
	defer ts.Close()

	cfg := testConfig()
	cfg.Agent.AdvertiseTools = true
	cfg.Dispatch.URL = "ws" + strings.TrimPrefix(ts.URL, "http") + "/mcp"
	c, err := New(cfg)
	require.NoError(t, err)

	b, err := c.Backend()
	require.NoError(t, err)
	defer b.Close()

	prompt := b.Sessions().SystemPrompt()
	assert.True(t, strings.HasPrefix(prompt, agent.DefaultSystemPrompt))
	for _, name := range []string{"echo", "duckduckgo_full_search", "http_fetch", "html_extract"} {
		assert.Contains(t, prompt, "## "+name)
	}
}

func TestBackend_UnknownProvider(t *testing.T) {
	cfg := testConfig()
	cfg.LLM.Provider = "nonexistent"
	c, err := New(cfg)
	require.NoError(t, err)

	_, err = c.Backend()
	require.Error(t, err)

	// The dispatch side does not need a provider.
	_, err = c.Dispatch()
	require.NoError(t, err)
}

func TestClient(t *testing.T) {
	c, err := New(testConfig())
	require.NoError(t, err)
	client, err := c.Client()
	require.NoError(t, err)
	defer client.Close()

	_, err = client.CallTool(context.Background(), "echo", map[string]any{"text": "x"})
	require.Error(t, err)
}
