// Package dependency wires toolstream services using go.uber.org/dig.
//
// Constructors are registered once; dig only runs the ones a resolved
// service needs, so a process serving only the dispatch protocol never
// builds a model provider.
package dependency

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.uber.org/dig"

	"github.com/crystaldolphin/toolstream/internal/agent"
	"github.com/crystaldolphin/toolstream/internal/config"
	"github.com/crystaldolphin/toolstream/internal/dispatch"
	"github.com/crystaldolphin/toolstream/internal/httpapi"
	"github.com/crystaldolphin/toolstream/internal/providers"
	"github.com/crystaldolphin/toolstream/internal/schema"
	"github.com/crystaldolphin/toolstream/internal/session"
	"github.com/crystaldolphin/toolstream/internal/tools"
)

const advertiseTimeout = 5 * time.Second

// SystemPrompt is a named string type so dig can distinguish it from plain
// strings when injecting the prompt new sessions start with.
type SystemPrompt string

// ChatRouter is the HTTP handler of the chat backend.
type ChatRouter struct{ http.Handler }

// DispatchRouter is the HTTP handler of the dispatch server.
type DispatchRouter struct{ http.Handler }

// Container builds services on demand from one configuration.
// Callers use the typed getter methods; they never need to import dig directly.
type Container struct {
	d *dig.Container
}

// Backend holds the resolved chat backend services.
type Backend struct {
	interceptor *agent.Interceptor
	sessions    *session.Store
	client      *dispatch.Client
	router      http.Handler
}

func (b *Backend) Interceptor() *agent.Interceptor { return b.interceptor }
func (b *Backend) Sessions() *session.Store        { return b.sessions }
func (b *Backend) Handler() http.Handler           { return b.router }

// Close releases pooled dispatch connections.
func (b *Backend) Close() error { return b.client.Close() }

// DispatchService holds the resolved dispatch server services.
type DispatchService struct {
	server   *dispatch.Server
	registry *tools.Registry
	router   http.Handler
}

func (s *DispatchService) Server() *dispatch.Server   { return s.server }
func (s *DispatchService) Registry() *tools.Registry { return s.registry }
func (s *DispatchService) Handler() http.Handler      { return s.router }

// New registers every constructor for cfg.
func New(cfg *config.Config) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	d := dig.New()
	constructors := []any{
		func() *config.Config { return cfg },
		newProvider,
		newDispatchClient,
		resolveSystemPrompt,
		newSessionStore,
		newInterceptor,
		newChatRouter,
		newToolRegistry,
		newDispatchServer,
		newDispatchRouter,
	}
	for _, c := range constructors {
		if err := d.Provide(c); err != nil {
			return nil, err
		}
	}
	return &Container{d: d}, nil
}

// Backend resolves the chat backend.
func (c *Container) Backend() (*Backend, error) {
	var result *Backend
	err := c.d.Invoke(func(
		in *agent.Interceptor,
		sessions *session.Store,
		client *dispatch.Client,
		router ChatRouter,
	) {
		result = &Backend{
			interceptor: in,
			sessions:    sessions,
			client:      client,
			router:      router.Handler,
		}
	})
	return result, err
}

// Dispatch resolves the dispatch server.
func (c *Container) Dispatch() (*DispatchService, error) {
	var result *DispatchService
	err := c.d.Invoke(func(srv *dispatch.Server, reg *tools.Registry, router DispatchRouter) {
		result = &DispatchService{server: srv, registry: reg, router: router.Handler}
	})
	return result, err
}

// Client resolves the dispatch client alone.
func (c *Container) Client() (*dispatch.Client, error) {
	var result *dispatch.Client
	err := c.d.Invoke(func(client *dispatch.Client) { result = client })
	return result, err
}

func newProvider(cfg *config.Config) (schema.LLMProvider, error) {
	return providers.New(providers.Params{
		ProviderName: cfg.LLM.Provider,
		APIKey:       cfg.LLM.APIKey,
		APIBase:      cfg.LLM.APIBase,
		ExtraHeaders: cfg.LLM.ExtraHeaders,
		DefaultModel: cfg.LLM.Model,
		Timeout:      config.Seconds(cfg.LLM.RequestTimeout),
	})
}

func newDispatchClient(cfg *config.Config) *dispatch.Client {
	return dispatch.NewClient(cfg.Dispatch.URL, dispatch.ClientOptions{
		CallTimeout: config.Seconds(cfg.Dispatch.CallTimeout),
		PoolSize:    cfg.Dispatch.PoolSize,
	})
}

// resolveSystemPrompt returns the configured prompt, extended with the
// dispatch server's tool list when advertising is on and the server answers.
func resolveSystemPrompt(cfg *config.Config, client *dispatch.Client) SystemPrompt {
	base := cfg.Agent.SystemPrompt
	if base == "" {
		base = agent.DefaultSystemPrompt
	}
	if !cfg.Agent.AdvertiseTools {
		return SystemPrompt(base)
	}

	ctx, cancel := context.WithTimeout(context.Background(), advertiseTimeout)
	defer cancel()

	info, err := client.Initialize(ctx)
	if err != nil {
		slog.Warn("Dispatch server unavailable, tools not advertised", "url", cfg.Dispatch.URL, "err", err)
		return SystemPrompt(base)
	}
	descriptors, err := client.ListTools(ctx)
	if err != nil {
		slog.Warn("Could not list tools", "url", cfg.Dispatch.URL, "err", err)
		return SystemPrompt(base)
	}

	slog.Info("Tools advertised",
		"server", info.ServerInfo.Name,
		"protocol", info.ProtocolVersion,
		"tools", len(descriptors),
	)
	return SystemPrompt(agent.BuildSystemPrompt(base, descriptors))
}

func newSessionStore(cfg *config.Config, prompt SystemPrompt) (*session.Store, error) {
	return session.NewStore(session.Options{
		SystemPrompt: string(prompt),
		MaxSessions:  cfg.Sessions.MaxSessions,
		MaxMessages:  cfg.Sessions.MaxMessages,
	})
}

func newInterceptor(
	p schema.LLMProvider,
	client *dispatch.Client,
	sessions *session.Store,
	cfg *config.Config,
) *agent.Interceptor {
	return agent.NewInterceptor(p, client, sessions, agent.Options{
		Model:                cfg.LLM.Model,
		Temperature:          cfg.LLM.Temperature,
		FirstFragmentTimeout: config.Seconds(cfg.LLM.FirstFragmentTimeout),
	})
}

func newChatRouter(in *agent.Interceptor, cfg *config.Config) ChatRouter {
	return ChatRouter{httpapi.NewChatRouter(httpapi.NewChatHandler(in), cfg.Server.CORSOrigins)}
}

// newToolRegistry builds the registry from the built-in tools not disabled
// in the config. Registration order is the order tools.list reports.
func newToolRegistry(cfg *config.Config) (*tools.Registry, error) {
	builtins := []schema.Tool{
		tools.NewEchoTool(),
		tools.NewSearchTool(tools.SearchOptions{
			Endpoint:        cfg.Tools.Search.Endpoint,
			AnswersEndpoint: cfg.Tools.Search.AnswersEndpoint,
			MaxResults:      cfg.Tools.Search.MaxResults,
			Timeout:         config.Seconds(cfg.Tools.Search.Timeout),
		}),
		tools.NewFetchTool(tools.FetchOptions{
			UserAgent: cfg.Tools.Fetch.UserAgent,
			Timeout:   config.Seconds(cfg.Tools.Fetch.Timeout),
			MaxBytes:  cfg.Tools.Fetch.MaxBytes,
		}),
		tools.NewExtractTool(0),
	}

	b := tools.NewRegistryBuilder()
	for _, t := range builtins {
		if !cfg.ToolEnabled(t.Name()) {
			slog.Info("Tool disabled", "tool", t.Name())
			continue
		}
		b.WithTool(t)
	}
	return b.Build()
}

func newDispatchServer(reg *tools.Registry, cfg *config.Config) *dispatch.Server {
	return dispatch.NewServer(reg, dispatch.ServerInfo{
		Name:    cfg.Dispatch.ServerName,
		Version: cfg.Dispatch.ServerVersion,
	})
}

func newDispatchRouter(srv *dispatch.Server) DispatchRouter {
	return DispatchRouter{httpapi.NewDispatchRouter(srv, srv)}
}
