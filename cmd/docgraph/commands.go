package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/brunobiangulo/docgraph"
	"github.com/brunobiangulo/docgraph/cypher"
	"github.com/brunobiangulo/docgraph/graph"
)

// errRunFailed is returned when at least one document failed to load.
var errRunFailed = errors.New("one or more runs failed")

func newRunCmd(a *app, flags *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "run <file|-> [file...]",
		Short: "Extract triples from documents and load them into the graph store",
		Long: `Extract triples from each document, compile them into idempotent MERGE
statements and load them into the configured graph store.

Use "-" to read plain text from stdin.

Examples:
  docgraph run report.pdf
  docgraph run --sink sqlite --artifact generated_cypher.cypher q3.docx q4.xlsx
  cat report.txt | docgraph run -`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.startMetrics(flags.metricsAddr); err != nil {
				return err
			}
			s, err := a.openSink(ctx)
			if err != nil {
				return err
			}
			p, err := a.newPipeline()
			if err != nil {
				return err
			}
			if err := a.ensureConstraints(ctx); err != nil {
				return err
			}

			failed := false
			for _, arg := range args {
				var res docgraph.Result
				if arg == "-" {
					text, err := io.ReadAll(cmd.InOrStdin())
					if err != nil {
						return fmt.Errorf("%w: stdin: %w", docgraph.ErrSourceRead, err)
					}
					res = p.Run(ctx, string(text), s)
				} else {
					res = p.RunDocument(ctx, a.textSource(), arg, s)
				}
				if err := printResult(cmd.OutOrStdout(), res, asJSON); err != nil {
					return err
				}
				if !res.Succeeded && res.Status != docgraph.StatusNoTriples {
					failed = true
				}
			}
			if failed {
				return errRunFailed
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON lines")
	return cmd
}

func printResult(w io.Writer, res docgraph.Result, asJSON bool) error {
	if asJSON {
		out := struct {
			docgraph.Result
			Error string `json:"error,omitempty"`
		}{res, res.ErrorMessage()}
		return json.NewEncoder(w).Encode(out)
	}
	source := res.Source
	if source == "" {
		source = "<stdin>"
	}
	_, err := fmt.Fprintf(w, "%s: %s triples=%d unique=%d statements=%d nodes_created=%d edges_created=%d elapsed=%s\n",
		source, res.Status, res.TriplesExtracted, res.TriplesAfterDedup, res.StatementsSubmitted,
		res.NodesAffected, res.EdgesAffected, res.Elapsed.Round(time.Millisecond))
	if err == nil && res.Err != nil && res.Status != docgraph.StatusNoTriples {
		_, err = fmt.Fprintf(w, "  error: %v\n", res.Err)
	}
	return err
}

func newExtractCmd(a *app) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "extract <file>",
		Short: "Print the triples found in a document without loading them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.newPipeline()
			if err != nil {
				return err
			}
			text, err := a.textSource().ExtractText(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("%w: %w", docgraph.ErrSourceRead, err)
			}

			triples := p.Extractor().Extract(text)
			if !raw {
				triples, _ = graph.Normalize(triples)
			}
			out := cmd.OutOrStdout()
			for _, t := range triples {
				fmt.Fprintln(out, t.String())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print triples before deduplication")
	return cmd
}

func newCompileCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "compile <file>",
		Short: "Write the statement script for a document without loading it",
		Long: `Compile a document into its statement script. The script is written to
the --artifact path when set, otherwise to stdout. It can be loaded later
with "docgraph apply".`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.newPipeline()
			if err != nil {
				return err
			}
			text, err := a.textSource().ExtractText(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("%w: %w", docgraph.ErrSourceRead, err)
			}

			stmts, res := p.Compile(text)
			if !res.Succeeded {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", args[0], res.Status)
			}

			if a.cfg.ArtifactPath == "" {
				return cypher.WriteScript(cmd.OutOrStdout(), stmts)
			}
			f, err := os.Create(a.cfg.ArtifactPath)
			if err != nil {
				return fmt.Errorf("%w: %w", docgraph.ErrArtifact, err)
			}
			if err := cypher.WriteScript(f, stmts); err != nil {
				f.Close()
				return fmt.Errorf("%w: %w", docgraph.ErrArtifact, err)
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("%w: %w", docgraph.ErrArtifact, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d statements to %s\n", len(stmts), a.cfg.ArtifactPath)
			return nil
		},
	}
}

func newApplyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "apply <artifact>",
		Short: "Load a statement script written by run or compile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			stmts, err := cypher.ReadScript(f)
			f.Close()
			if err != nil {
				return err
			}
			if len(stmts) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: no statements\n", args[0])
				return nil
			}

			ctx := cmd.Context()
			s, err := a.openSink(ctx)
			if err != nil {
				return err
			}
			counts, err := s.ApplyBatch(ctx, stmts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: statements=%d nodes_created=%d edges_created=%d\n",
				args[0], len(stmts), counts.NodesCreated, counts.EdgesCreated)
			return nil
		},
	}
}

func newRulesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "Print the active extraction rule table as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.newPipeline()
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(map[string]any{"rules": p.Extractor().Rules()}); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

func newRunsCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent runs recorded in the SQLite store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.cfg.Sink = docgraph.SinkSQLite
			if _, err := a.openSink(cmd.Context()); err != nil {
				return err
			}
			runs, err := a.store.RecentRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSOURCE\tSTATUS\tSTATEMENTS\tNODES\tEDGES\tCREATED")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
					r.ID, r.Source, r.Status, r.StatementsSubmitted, r.NodesCreated, r.EdgesCreated, r.CreatedAt)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	return cmd
}

func newNeighborsCmd(a *app) *cobra.Command {
	var depth int
	cmd := &cobra.Command{
		Use:   "neighbors <label> <name>",
		Short: "Print the subgraph around a node in the SQLite store",
		Example: `  docgraph neighbors Company "B 컴퍼니" --depth 2`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.cfg.Sink = docgraph.SinkSQLite
			if _, err := a.openSink(cmd.Context()); err != nil {
				return err
			}
			sub, err := a.store.Neighborhood(cmd.Context(), args[0], args[1], depth)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, n := range sub.Nodes {
				fmt.Fprintf(out, "(%s:%s)\n", n.Label, n.Name)
			}
			for _, e := range sub.Edges {
				fmt.Fprintf(out, "(%s:%s)-[%s]->(%s:%s)\n",
					e.Source.Label, e.Source.Name, e.Relation, e.Target.Label, e.Target.Name)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 1, "maximum number of hops")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the docgraph version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "docgraph", version)
		},
	}
}
