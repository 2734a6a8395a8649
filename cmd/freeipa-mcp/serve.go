package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"github.com/vikashloomba/freeipa-mcp-go/internal/config"
	ipagateway "github.com/vikashloomba/freeipa-mcp-go/pkg/ipa-gateway"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var (
		stdio     bool
		stateless bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the FreeIPA tools over MCP",
		Long:  "Serve the FreeIPA tools over Streamable HTTP and SSE, or over stdio with --stdio. Default credentials are used to connect at startup when they are configured.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			logger := cfg.Logger(cmd.ErrOrStderr())

			dispatcher, err := buildDispatcher(cfg, logger)
			if err != nil {
				return err
			}
			var namespace ipagateway.NamespaceStrategy
			if cfg.ToolPrefix != "" {
				namespace = ipagateway.PrefixNamespace{Prefix: cfg.ToolPrefix}
			}
			gateway, err := ipagateway.NewGateway(dispatcher, &ipagateway.Options{
				Implementation: &mcp.Implementation{Name: "freeipa-mcp", Title: "FreeIPA MCP Server", Version: version},
				Addr:           cfg.Addr(),
				Path:           cfg.MCPPath,
				SSEPath:        cfg.SSEPath,
				Namespace:      namespace,
				AutoConnect:    cfg.AutoConnect && cfg.HasCredentials(),
				Defaults:       cfg.Credentials(),
				Streamable: mcp.StreamableHTTPOptions{
					Stateless: stateless,
				},
				RateLimitPerMinute: cfg.RateLimitPerMinute,
				TrustedProxies:     cfg.TrustedProxies,
				Logger:             logger,
				ConnectTimeout:     cfg.Timeout,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if stdio {
				logger.Info("serving MCP over stdio", "tools", len(gateway.ToolNames()))
				return gateway.Server().Run(ctx, &mcp.StdioTransport{})
			}
			if err := gateway.ListenAndServe(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&stdio, "stdio", false, "serve over stdin/stdout instead of HTTP")
	flags.BoolVar(&stateless, "stateless", false, "run the Streamable HTTP handler without session state")
	flags.String("host", "0.0.0.0", "listen host")
	flags.Int("port", 8000, "listen port")
	flags.String("server", "", "default FreeIPA server URL")
	flags.String("username", "", "default FreeIPA principal")
	flags.Bool("verify-ssl", false, "verify the FreeIPA TLS certificate for the default connection")
	flags.Bool("auto-connect", true, "connect with the default credentials at startup")
	flags.Int("rate-limit", 0, "requests per minute per client, 0 disables limiting")
	flags.String("trusted-proxies", "", "comma-separated proxy addresses or CIDRs whose X-Forwarded-For is honoured")
	flags.String("tool-prefix", "", "expose tools as <prefix>__<tool>")
	bindFlags(root, cmd, map[string]string{
		"host":            config.KeyHost,
		"port":            config.KeyPort,
		"server":          config.KeyServer,
		"username":        config.KeyUsername,
		"verify-ssl":      config.KeyVerifySSL,
		"auto-connect":    config.KeyAutoConnect,
		"rate-limit":      config.KeyRateLimit,
		"trusted-proxies": config.KeyTrustedProxies,
		"tool-prefix":     config.KeyToolPrefix,
	})
	return cmd
}

func bindFlags(root *rootOptions, cmd *cobra.Command, keys map[string]string) {
	for flag, key := range keys {
		_ = root.v.BindPFlag(key, cmd.Flags().Lookup(flag))
	}
}
