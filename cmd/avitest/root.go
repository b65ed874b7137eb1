package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "avitest",
		Short: "Configuration-driven test automation for Avi controller virtual services",
		Long: `avitest authenticates against a controller API and runs a test case
that disables a virtual service and verifies the change:

  pre-fetch        list reference resources (tenants, virtual services, service engines)
  pre-validation   the target virtual service must exist and be enabled
  action           PUT the configured payload to the target
  post-validation  the target must now be disabled

Configuration is read from api_config.yaml, credentials.yaml and
test_case.yaml in the config directory.`,
		// errors are reported by cobra; usage only for flag mistakes
		SilenceUsage: true,
		Version:      version,
	}
	root.SetVersionTemplate(`{{printf "avitest version %s\n" .Version}}`)

	root.AddCommand(newRunCmd())
	root.AddCommand(newMockCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "avitest %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
