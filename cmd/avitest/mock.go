package main

import (
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/rflorenc/avi-test-automation/internal/logging"
	"github.com/rflorenc/avi-test-automation/internal/mockapi"
)

func newMockCmd() *cobra.Command {
	var listen, fixture, logLevel string
	cmd := &cobra.Command{
		Use:   "mock",
		Short: "Serve an in-memory controller for local test runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.New(logLevel, os.Stderr)

			f := mockapi.DefaultFixture()
			if fixture != "" {
				var err error
				if f, err = mockapi.LoadFixture(fixture); err != nil {
					return err
				}
			}

			srv := mockapi.NewServer(mockapi.NewStore(f), logger)
			logger.Info().Str("listen", listen).Msg("mock controller starting")
			return http.ListenAndServe(listen, mockapi.NewRouter(srv))
		},
	}
	cmd.Flags().StringVar(&listen, "listen", ":5000", "HTTP listen address")
	cmd.Flags().StringVar(&fixture, "fixture", "", "YAML file with the initial controller state")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	return cmd
}
