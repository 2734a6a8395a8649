package ipagateway

import (
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/vikashloomba/freeipa-mcp-go/pkg/ipamgr"
)

// Options configure a Gateway instance.
type Options struct {
	// Implementation identifies the MCP server implementation metadata.
	Implementation *mcp.Implementation
	// Addr controls the listen address used by ListenAndServe. Defaults to ":8000".
	Addr string
	// Path mounts the Streamable handler. Defaults to "/mcp".
	Path string
	// SSEPath mounts the SSE handler. Defaults to "/sse".
	SSEPath string
	// Namespace customizes how tool names are exposed. Defaults to
	// PlainNamespace.
	Namespace NamespaceStrategy
	// AutoConnect connects with Defaults during construction. A failure is
	// logged and the gateway starts disconnected.
	AutoConnect bool
	// Defaults are the configured credentials. Server, Username and
	// VerifySSL are reported by /health.
	Defaults ipamgr.Credentials
	// Streamable tweaks the Streamable HTTP handler behavior passed to
	// mcp.NewStreamableHTTPHandler.
	Streamable mcp.StreamableHTTPOptions
	// RateLimitPerMinute enables per-client rate limiting when positive.
	RateLimitPerMinute int
	// TrustedProxies lists proxy addresses or CIDR prefixes whose
	// X-Forwarded-For header identifies the client for rate limiting.
	// Without it clients are keyed by their remote address.
	TrustedProxies []string
	// AllowedOrigins for CORS. Defaults to every origin.
	AllowedOrigins []string
	// Logger receives structured diagnostics.
	Logger *slog.Logger
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration
	// ConnectTimeout bounds the auto-connect attempt. When zero only the
	// manager's own connect timeout applies.
	ConnectTimeout time.Duration
}

func (o *Options) withDefaults() Options {
	if o == nil {
		o = &Options{}
	}
	opts := *o
	if opts.Implementation == nil {
		opts.Implementation = &mcp.Implementation{
			Name:    "freeipa-mcp",
			Title:   "FreeIPA MCP Server",
			Version: "dev",
		}
	} else {
		impl := *opts.Implementation
		opts.Implementation = &impl
	}
	if opts.Addr == "" {
		opts.Addr = ":8000"
	}
	if opts.Path == "" {
		opts.Path = "/mcp"
	}
	if opts.SSEPath == "" {
		opts.SSEPath = "/sse"
	}
	if opts.Namespace == nil {
		opts.Namespace = PlainNamespace{}
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 30 * time.Second
	}
	return opts
}
