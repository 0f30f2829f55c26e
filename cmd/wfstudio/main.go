package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ormasoftchile/wfstudio/pkg/channel"
	"github.com/ormasoftchile/wfstudio/pkg/client"
	"github.com/ormasoftchile/wfstudio/pkg/config"
	"github.com/ormasoftchile/wfstudio/pkg/host"
	"github.com/ormasoftchile/wfstudio/pkg/logging"
	"github.com/ormasoftchile/wfstudio/pkg/mcpconfig"
	"github.com/ormasoftchile/wfstudio/pkg/mcptools"
	"github.com/ormasoftchile/wfstudio/pkg/workflow"
)

// Version is set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

var (
	workspaceFlag string
	logLevelFlag  string

	settings *config.Settings
	logger   = zerolog.Nop()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "wfstudio",
	Short:         "Workflow studio host and MCP node wizard",
	Long:          "wfstudio composes agent workflows: it resolves configured MCP servers, discovers their tools, builds MCP nodes and exports workflows as slash commands.",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadSettings()
	},
}

// loadSettings reads .env, the settings manifest and WFSTUDIO_* overrides.
func loadSettings() error {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "  ⚠ .env: %v\n", err)
	}

	start := workspaceFlag
	if start == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		start = cwd
	}
	s, err := config.Discover(start)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if err := s.ApplyEnv(os.LookupEnv); err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if logLevelFlag != "" {
		s.LogLevel = logLevelFlag
	}
	settings = s
	logger = logging.New(os.Stderr, s.LogLevel, s.LogPretty)
	return nil
}

func newResolver() *mcpconfig.Resolver {
	return mcpconfig.NewResolver(
		mcpconfig.WithLegacyPath(settings.LegacyConfigPath),
		mcpconfig.WithLogger(logging.Component(logger, "mcpconfig")),
	)
}

func newCatalog() *mcptools.Catalog {
	disc := mcptools.NewClientDiscoverer(
		mcptools.WithDiscoveryTimeout(settings.DiscoveryTimeout.Std()),
		mcptools.WithDiscovererLogger(logging.Component(logger, "discovery")),
		mcptools.WithClientVersion(version),
	)
	return mcptools.NewCatalog(disc,
		mcptools.WithCacheSize(settings.ToolCacheSize),
		mcptools.WithCacheTTL(settings.ToolCacheTTL.Std()),
		mcptools.WithCatalogLogger(logging.Component(logger, "catalog")),
	)
}

func newHost(bus channel.Bus) *host.Server {
	return host.New(bus, newResolver(), newCatalog(),
		host.WithWorkspace(settings.Workspace),
		host.WithStore(workflow.NewStore(settings.WorkflowPath())),
		host.WithCommandsDir(settings.CommandsPath()),
		host.WithLogger(logging.Component(logger, "host")),
	)
}

// withClient runs fn against a host served in-process over a memory pipe.
func withClient(ctx context.Context, fn func(ctx context.Context, c *client.Client) error) error {
	ui, hostEnd := channel.NewPipe()
	defer ui.Close()
	defer hostEnd.Close()

	srv := newHost(hostEnd)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Serve(gctx) })
	<-srv.Ready()

	ch := channel.New(ui,
		channel.WithDefaultTimeout(settings.RequestTimeout.Std()),
		channel.WithLogger(logging.Component(logger, "channel")),
	)
	c := client.New(ch,
		client.WithWorkspace(settings.Workspace),
		client.WithSchemaTimeout(settings.SchemaTimeout.Std()),
	)

	err := fn(gctx, c)
	cancel()
	if werr := g.Wait(); err == nil {
		err = werr
	}
	return err
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("wfstudio %s (build: %s)\n", version, commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&workspaceFlag, "workspace", "", "Workspace directory (default: the working directory)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error, off")

	rootCmd.AddCommand(serversCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(wizardCmd)
	rootCmd.AddCommand(hostCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(traceCmd)
	rootCmd.AddCommand(versionCmd)
}
