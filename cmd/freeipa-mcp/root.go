package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/vikashloomba/freeipa-mcp-go/internal/config"
	"github.com/vikashloomba/freeipa-mcp-go/pkg/freeipa"
	"github.com/vikashloomba/freeipa-mcp-go/pkg/ipamgr"
	"github.com/vikashloomba/freeipa-mcp-go/pkg/ipatools"
)

type rootOptions struct {
	envFile string
	v       *viper.Viper
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{v: config.New()}
	rootCmd := &cobra.Command{
		Use:           "freeipa-mcp",
		Short:         "MCP server for FreeIPA user and group management",
		Long:          "freeipa-mcp exposes FreeIPA user, group and password operations as MCP tools over Streamable HTTP, SSE or stdio.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.envFile, "env-file", "", "read settings from this .env file (default: ./.env when present)")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("log-format", "text", "log format: text or json")
	_ = opts.v.BindPFlag(config.KeyLogLevel, flags.Lookup("log-level"))
	_ = opts.v.BindPFlag(config.KeyLogFormat, flags.Lookup("log-format"))

	rootCmd.AddCommand(
		newServeCmd(opts),
		newCallCmd(opts),
		newToolsCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func (o *rootOptions) load() (config.Config, error) {
	return config.Load(o.v, o.envFile)
}

// buildDispatcher wires the manager and dispatcher from configuration.
func buildDispatcher(cfg config.Config, logger *slog.Logger) (*ipatools.Dispatcher, error) {
	manager := ipamgr.NewManager(&ipamgr.ManagerOptions{
		DefaultTimeout: cfg.Timeout,
		Logger:         logger,
		ClientOptions: freeipa.Options{
			RPCLogger: func(ev freeipa.RPCLogEvent) {
				attrs := []any{"method", ev.Method, "status", ev.Status, "duration", ev.Duration}
				if ev.Err != nil {
					attrs = append(attrs, "error", ev.Err)
				}
				logger.Debug("freeipa rpc", attrs...)
			},
		},
	})
	return ipatools.NewDispatcher(manager, &ipatools.DispatcherOptions{
		Logger:           logger,
		PhoneCountryCode: cfg.PhoneCountryCode,
	})
}

// connectDefaults connects with the configured credentials when they are
// complete. It reports whether a session was established.
func connectDefaults(ctx context.Context, d *ipatools.Dispatcher, cfg config.Config) (bool, error) {
	if !cfg.HasCredentials() {
		return false, nil
	}
	if _, err := d.Manager().Connect(ctx, cfg.Credentials()); err != nil {
		return false, fmt.Errorf("connect to %s: %s", cfg.Server, d.Manager().Status().LastError)
	}
	return true, nil
}
