package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pay-theory/ecsbridge"
	"github.com/pay-theory/ecsbridge/internal/logging"
	"github.com/pay-theory/ecsbridge/pkg/core"
	"github.com/pay-theory/ecsbridge/pkg/session"
)

// cli holds the flag values shared by every subcommand
type cli struct {
	cfgFile   string
	logLevel  string
	structure string
	query     string
	fields    []string
	params    []string
	pageSize  int
	pageToken string
	order     string

	// extra adapter options, used by tests to replace the ECS gateway
	options []ecsbridge.Option
	logger  *zap.Logger
}

// newRootCmd builds the command tree
func newRootCmd(opts ...ecsbridge.Option) *cobra.Command {
	c := &cli{options: opts}

	rootCmd := &cobra.Command{
		Use:   "ecsbridge",
		Short: "Query Amazon ECS clusters, container instances, tasks and task definitions",
		Long: `ecsbridge translates structure queries (Clusters, ContainerInstances, Tasks,
TaskDefinitions) into signed ECS API calls and prints the resulting records as JSON.`,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			logger, err := logging.New(c.logLevel)
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			c.logger = logger
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "YAML config file (default: ECSBRIDGE_* and AWS_* environment)")
	flags.StringVar(&c.logLevel, "log-level", "info", "log level: debug, info, warn, error")

	rootCmd.AddCommand(
		c.queryCmd("search", "Search records of a structure", c.runSearch),
		c.queryCmd("count", "Count records of a structure", c.runCount),
		c.queryCmd("retrieve", "Retrieve a single record of a structure", c.runRetrieve),
		versionCmd(),
	)
	return rootCmd
}

func (c *cli) queryCmd(use, short string, run func(cmd *cobra.Command) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&c.structure, "structure", "s", "", "structure: Clusters, ContainerInstances, Tasks or TaskDefinitions")
	flags.StringVarP(&c.query, "query", "q", "", "filter expression, e.g. cluster=prod&desiredStatus=RUNNING")
	flags.StringArrayVarP(&c.fields, "field", "f", nil, "field to return (repeatable)")
	flags.StringArrayVarP(&c.params, "param", "p", nil, "query parameter name=value (repeatable)")
	flags.IntVar(&c.pageSize, "page-size", 0, "read a single page of at most this many records")
	flags.StringVar(&c.pageToken, "page-token", "", "continuation token of a previous search")
	flags.StringVar(&c.order, "order", "", `sort order, e.g. clusterName:ASC,<%=field["status"]%>:DESC`)
	_ = cmd.MarkFlagRequired("structure")
	return cmd
}

func (c *cli) runSearch(cmd *cobra.Command) error {
	adapter, req, err := c.prepare(cmd.Context())
	if err != nil {
		return err
	}
	list, err := adapter.Search(cmd.Context(), req)
	if err != nil {
		return err
	}
	return writeJSON(cmd, list)
}

func (c *cli) runCount(cmd *cobra.Command) error {
	adapter, req, err := c.prepare(cmd.Context())
	if err != nil {
		return err
	}
	n, err := adapter.Count(cmd.Context(), req)
	if err != nil {
		return err
	}
	return writeJSON(cmd, map[string]int{"count": n})
}

func (c *cli) runRetrieve(cmd *cobra.Command) error {
	adapter, req, err := c.prepare(cmd.Context())
	if err != nil {
		return err
	}
	record, err := adapter.Retrieve(cmd.Context(), req)
	if err != nil {
		return err
	}
	return writeJSON(cmd, map[string]any{"record": record})
}

func (c *cli) prepare(ctx context.Context) (*ecsbridge.Adapter, core.Request, error) {
	params, err := parseParams(c.params)
	if err != nil {
		return nil, core.Request{}, err
	}

	cfg, err := c.loadConfig()
	if err != nil {
		return nil, core.Request{}, err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	opts := append([]ecsbridge.Option{ecsbridge.WithLogger(c.logger)}, c.options...)
	adapter, err := ecsbridge.New(ctx, cfg, opts...)
	if err != nil {
		return nil, core.Request{}, err
	}

	return adapter, core.Request{
		Structure:  c.structure,
		Query:      c.query,
		Parameters: params,
		Fields:     c.fields,
		Metadata: core.RequestMetadata{
			PageSize:  c.pageSize,
			PageToken: c.pageToken,
			Order:     c.order,
		},
	}, nil
}

func (c *cli) loadConfig() (*session.Config, error) {
	if c.cfgFile != "" {
		return session.LoadConfigFile(c.cfgFile)
	}
	return session.ConfigFromEnv()
}

func parseParams(pairs []string) (map[string]string, error) {
	params := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --param %q: expected name=value", pair)
		}
		params[name] = value
	}
	return params, nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the bridge name and version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", ecsbridge.Name, ecsbridge.Version)
		},
	}
}
