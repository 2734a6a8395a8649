package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vikashloomba/freeipa-mcp-go/pkg/ipatools"
)

func newCallCmd(root *rootOptions) *cobra.Command {
	var connect bool
	cmd := &cobra.Command{
		Use:   "call <tool> [json-arguments]",
		Short: "Run one tool and print its response envelope",
		Long: "Run one tool against the configured FreeIPA server and print the JSON response envelope. " +
			"The default credentials are used to connect first unless --connect=false. The command fails when the envelope is not ok.",
		Example: `  freeipa-mcp call user_show '{"uid":"john.doe"}'
  freeipa-mcp call group_add_member '{"cn":"developers","user":"john.doe"}'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			logger := cfg.Logger(cmd.ErrOrStderr())

			var raw json.RawMessage
			if len(args) == 2 {
				raw = json.RawMessage(args[1])
				if !json.Valid(raw) {
					return fmt.Errorf("arguments for %s are not valid JSON", args[0])
				}
			}

			dispatcher, err := buildDispatcher(cfg, logger)
			if err != nil {
				return err
			}
			name := ipatools.Name(args[0])
			if spec, ok := ipatools.Lookup(name); connect && ok && name != ipatools.ToolConnect && !spec.SessionFree {
				if _, err := connectDefaults(cmd.Context(), dispatcher, cfg); err != nil {
					return err
				}
			}

			env := dispatcher.Call(cmd.Context(), name, raw)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(env); err != nil {
				return err
			}
			if !env.OK {
				return fmt.Errorf("%s: %s", env.ErrorKind, env.Message)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&connect, "connect", true, "connect with the default credentials before running a directory tool")
	return cmd
}
