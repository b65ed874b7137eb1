package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rflorenc/avi-test-automation/internal/config"
	"github.com/rflorenc/avi-test-automation/internal/logging"
	"github.com/rflorenc/avi-test-automation/internal/models"
	"github.com/rflorenc/avi-test-automation/internal/platform"
	"github.com/rflorenc/avi-test-automation/internal/workflow"
)

type runOptions struct {
	configDir   string
	apiConfig   string
	credentials string
	testCase    string
	logLevel    string
}

func newRunCmd() *cobra.Command {
	opts := runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the virtual service disable test case",
		Example: `  avitest run
  avitest run --config-dir ./config --log-level debug
  AVI_PASSWORD=secret avitest run --credentials /etc/avitest/credentials.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTestCase(cmd.OutOrStdout(), cmd.ErrOrStderr(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.configDir, "config-dir", "config", "Directory holding the configuration files")
	cmd.Flags().StringVar(&opts.apiConfig, "api-config", "", "Path to api_config.yaml (default: <config-dir>/api_config.yaml)")
	cmd.Flags().StringVar(&opts.credentials, "credentials", "", "Path to credentials.yaml (default: <config-dir>/credentials.yaml)")
	cmd.Flags().StringVar(&opts.testCase, "test-case", "", "Path to test_case.yaml (default: <config-dir>/test_case.yaml)")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	return cmd
}

func (o runOptions) paths() config.Paths {
	p := config.DefaultPaths(o.configDir)
	if o.apiConfig != "" {
		p.APIConfig = o.apiConfig
	}
	if o.credentials != "" {
		p.Credentials = o.credentials
	}
	if o.testCase != "" {
		p.TestCase = o.testCase
	}
	return p
}

func runTestCase(out, logOut io.Writer, opts runOptions) error {
	logger := logging.New(opts.logLevel, logOut)
	logger.Info().Str("version", version).Msg("starting test automation")

	bundle, err := config.Load(opts.paths())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	endpoints := bundle.API.Endpoints

	auth, err := platform.NewAuthenticator(bundle.API, bundle.Credentials, logger)
	if err != nil {
		return err
	}
	registerPath, _ := endpoints.Path(config.EndpointRegister)
	if err := auth.Register(registerPath); err != nil {
		return err
	}
	loginPath, _ := endpoints.Path(config.EndpointLogin)
	if _, err := auth.Login(loginPath); err != nil {
		return err
	}
	header, err := auth.AuthHeader()
	if err != nil {
		return err
	}

	client, err := platform.NewClient(bundle.API, header, logger)
	if err != nil {
		return err
	}

	run, err := workflow.New(client, bundle.TestCase, endpoints, logger).Run()
	printSummary(out, bundle.TestCase.Name, run)
	if err != nil {
		return err
	}
	logger.Info().Msg("automation completed successfully")
	return nil
}

func printSummary(out io.Writer, testCase string, run *models.Run) {
	if testCase == "" {
		testCase = run.Workflow
	}
	fmt.Fprintf(out, "Test case: %s (target %s, run %s)\n", testCase, run.Target, run.ID)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STAGE\tSTATUS\tDURATION\tDETAIL")
	for _, s := range run.Stages {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Name, s.Status, s.Duration.Round(time.Millisecond), s.Message)
	}
	tw.Flush()
	fmt.Fprintf(out, "Result: %s\n", run.Status)
}
