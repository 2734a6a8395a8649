package ipagateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/cors"
	"github.com/vikashloomba/freeipa-mcp-go/pkg/ipamgr"
	"github.com/vikashloomba/freeipa-mcp-go/pkg/ipatools"
)

// Gateway exposes the FreeIPA tools as an MCP server over Streamable HTTP and
// SSE, next to plain health endpoints.
type Gateway struct {
	dispatcher *ipatools.Dispatcher
	manager    *ipamgr.Manager
	opts       Options

	tools    *toolIndex
	progress *progressReporter
	limiter  *keyedLimiter

	// sessionChangedAt is the UnixNano of the last connect or disconnect.
	sessionChangedAt atomic.Int64

	server        *mcp.Server
	streamHandler *mcp.StreamableHTTPHandler
	sseHandler    *mcp.SSEHandler
	mux           *http.ServeMux
	httpHandler   http.Handler

	httpServerMu sync.Mutex
	httpServer   *http.Server
}

// NewGateway builds a Gateway, registers every tool, and optionally connects
// with the configured default credentials.
func NewGateway(dispatcher *ipatools.Dispatcher, opts *Options) (*Gateway, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("ipagateway: dispatcher is required")
	}
	options := opts.withDefaults()
	trusted, err := parseTrustedProxies(options.TrustedProxies)
	if err != nil {
		return nil, err
	}
	g := &Gateway{
		dispatcher: dispatcher,
		manager:    dispatcher.Manager(),
		opts:       options,
		tools:      newToolIndex(options.Namespace),
		progress:   newProgressReporter(options.Logger),
	}

	g.server = mcp.NewServer(options.Implementation, &mcp.ServerOptions{
		HasTools: true,
		Instructions: "Call freeipa_connect before any user or group tool. " +
			"Every tool answers with {ok, data} or {ok:false, error_kind, message}.",
	})
	registrations, err := g.tools.Build(ipatools.Catalog())
	if err != nil {
		return nil, err
	}
	for _, reg := range registrations {
		g.server.AddTool(reg.Tool, g.handleToolCall)
	}
	if options.RateLimitPerMinute > 0 {
		g.limiter = newKeyedLimiter(options.RateLimitPerMinute, trusted)
	}
	g.manager.OnSessionChange(g.recordSessionChange)

	getServer := func(*http.Request) *mcp.Server { return g.server }
	g.streamHandler = mcp.NewStreamableHTTPHandler(getServer, &options.Streamable)
	g.sseHandler = mcp.NewSSEHandler(getServer, nil)
	g.mux = g.mountRoutes()
	g.httpHandler = g.wrap(g.mux)

	if options.AutoConnect {
		g.autoConnect()
	}
	return g, nil
}

// Server returns the underlying MCP server, for example to serve it over
// stdio or an in-memory transport.
func (g *Gateway) Server() *mcp.Server {
	return g.server
}

// ServeMux exposes the route table so callers can add their own handlers.
func (g *Gateway) ServeMux() *http.ServeMux {
	return g.mux
}

// Handler exposes the HTTP handler with CORS and rate limiting applied.
func (g *Gateway) Handler() http.Handler {
	return g.httpHandler
}

// ToolNames lists the exposed tool names.
func (g *Gateway) ToolNames() []string {
	return g.tools.Names()
}

// ListenAndServe runs an HTTP server until the provided context is cancelled or
// the server stops.
func (g *Gateway) ListenAndServe(ctx context.Context) error {
	g.httpServerMu.Lock()
	if g.httpServer != nil {
		serv := g.httpServer
		g.httpServerMu.Unlock()
		return fmt.Errorf("ipagateway: server already running on %s", serv.Addr)
	}
	srv := &http.Server{Addr: g.opts.Addr, Handler: g.Handler()}
	g.httpServer = srv
	g.httpServerMu.Unlock()
	defer func() {
		g.httpServerMu.Lock()
		if g.httpServer == srv {
			g.httpServer = nil
		}
		g.httpServerMu.Unlock()
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	g.opts.Logger.Info("freeipa mcp gateway listening", "addr", g.opts.Addr, "path", g.opts.Path, "sse_path", g.opts.SSEPath)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), g.opts.ShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Shutdown stops the embedded HTTP server if it is running.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.httpServerMu.Lock()
	srv := g.httpServer
	g.httpServer = nil
	g.httpServerMu.Unlock()
	if srv == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return srv.Shutdown(ctx)
}

// handleToolCall resolves the exposed tool name and runs it through the
// dispatcher.
func (g *Gateway) handleToolCall(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var (
		exposed string
		raw     json.RawMessage
		token   any
	)
	if req.Params != nil {
		exposed = req.Params.Name
		raw = req.Params.Arguments
		token = req.Params.GetProgressToken()
	}
	spec, ok := g.tools.Lookup(exposed)
	if !ok {
		return toolResult(ipatools.Failure(ipatools.KindValidation, fmt.Sprintf("unknown tool %q", exposed)))
	}
	var sink progressSink
	if req.Session != nil {
		sink = req.Session
	}
	done := g.progress.begin(ctx, sink, token, string(spec.Name))
	env := g.dispatcher.Call(ctx, spec.Name, raw)
	done(env.OK)
	return toolResult(env)
}

// toolResult renders an envelope as both text and structured content. Tool
// failures are results with IsError set, never protocol errors.
func toolResult(env ipatools.Envelope) (*mcp.CallToolResult, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("ipagateway: encode result: %w", err)
	}
	return &mcp.CallToolResult{
		Content:           []mcp.Content{&mcp.TextContent{Text: string(body)}},
		StructuredContent: json.RawMessage(body),
		IsError:           !env.OK,
	}, nil
}

func (g *Gateway) autoConnect() {
	creds := g.opts.Defaults
	if creds.Validate() != nil {
		g.opts.Logger.Warn("autoconnect skipped: default credentials incomplete")
		return
	}
	ctx := context.Background()
	if g.opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.ConnectTimeout)
		defer cancel()
	}
	if _, err := g.manager.Connect(ctx, creds); err != nil {
		g.opts.Logger.Warn("autoconnect failed", "server", creds.Server, "error", g.manager.Status().LastError)
	}
}

func (g *Gateway) recordSessionChange(status ipamgr.Status) {
	g.sessionChangedAt.Store(time.Now().UnixNano())
	g.opts.Logger.Info("freeipa session changed", "connected", status.Connected, "server", status.Server, "username", status.Username)
}

// SessionChangedAt reports when the session was last established or
// dropped. It is zero until the first change.
func (g *Gateway) SessionChangedAt() time.Time {
	ns := g.sessionChangedAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (g *Gateway) mountRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mountPrefix(mux, g.opts.Path, g.streamHandler)
	mountPrefix(mux, g.opts.SSEPath, g.sseHandler)
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /connection-status", g.handleConnectionStatus)
	return mux
}

func mountPrefix(mux *http.ServeMux, path string, h http.Handler) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	mux.Handle(path, h)
	if !strings.HasSuffix(path, "/") {
		mux.Handle(path+"/", h)
	}
}

func (g *Gateway) wrap(next http.Handler) http.Handler {
	if g.limiter != nil {
		next = g.limiter.Middleware(next)
	}
	return cors.New(cors.Options{
		AllowedOrigins: g.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		ExposedHeaders: []string{"Mcp-Session-Id"},
	}).Handler(next)
}
