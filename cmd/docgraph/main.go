// Command docgraph extracts knowledge-graph triples from business reports
// and loads them into Neo4j or an embedded SQLite graph.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/brunobiangulo/docgraph"
)

// Set by -ldflags "-X main.version=...".
var version = "dev"

type globalFlags struct {
	configPath  string
	sinkKind    string
	rulesPath   string
	artifact    string
	logLevel    string
	logFormat   string
	logFile     string
	metricsAddr string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a := &app{}
	err := newRootCmd(a).ExecuteContext(ctx)
	stop()
	if cerr := a.close(); cerr != nil {
		slog.Error("docgraph: closing resources", "error", cerr)
	}
	if err != nil {
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. The caller closes a after Execute
// returns, whether or not the command failed.
func newRootCmd(a *app) *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:          "docgraph",
		Short:        "Build a knowledge graph from consulting reports",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			closeLog, err := setupLogging(flags.logLevel, flags.logFormat, flags.logFile)
			if err != nil {
				return err
			}
			a.closers = append(a.closers, closeLog)

			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "path to a YAML or JSON config file")
	pf.StringVar(&flags.sinkKind, "sink", "", "graph store: neo4j, sqlite or memory")
	pf.StringVar(&flags.rulesPath, "rules", "", "path to a YAML extraction rule table")
	pf.StringVar(&flags.artifact, "artifact", "", "write compiled statements to this file before loading")
	pf.StringVar(&flags.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	pf.StringVar(&flags.logFormat, "log-format", "text", "log format: text or json")
	pf.StringVar(&flags.logFile, "log-file", "", "also write logs to this rotating file")
	pf.StringVar(&flags.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	root.AddCommand(
		newRunCmd(a, flags),
		newExtractCmd(a),
		newCompileCmd(a),
		newApplyCmd(a),
		newWatchCmd(a, flags),
		newServeCmd(a, flags),
		newRulesCmd(a),
		newRunsCmd(a),
		newNeighborsCmd(a),
		newEvalCmd(a),
		newVersionCmd(),
	)
	return root
}

// loadConfig layers .env, the config file, DOCGRAPH_* variables and flags,
// in that order.
func loadConfig(flags *globalFlags) (docgraph.Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return docgraph.Config{}, fmt.Errorf("loading .env: %w", err)
	}

	path := flags.configPath
	if path == "" {
		path = os.Getenv("DOCGRAPH_CONFIG")
	}
	cfg, err := docgraph.LoadConfig(path)
	if err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}

	if flags.sinkKind != "" {
		cfg.Sink = flags.sinkKind
	}
	if flags.rulesPath != "" {
		cfg.RulesPath = flags.rulesPath
	}
	if flags.artifact != "" {
		cfg.ArtifactPath = flags.artifact
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
