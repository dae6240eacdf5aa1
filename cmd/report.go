package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hurou927/tsdb-report/internal/config"
	"github.com/hurou927/tsdb-report/internal/output"
	"github.com/hurou927/tsdb-report/internal/report"
)

var withHTML bool

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Write the schema and health report",
	Long: `Reads the catalog, resolves continuous aggregate chains and writes the report
as Markdown, HTML or JSON. Use "-o -" to write to standard output.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		labels, err := config.LoadLabels(cfg.LabelsFile)
		if err != nil {
			return err
		}
		analysis, err := analysisOptions()
		if err != nil {
			return err
		}

		collector, closeDB, err := openCollector(ctx)
		if err != nil {
			return err
		}
		defer closeDB()

		rep, err := report.Build(ctx, collector, report.Options{
			Labels:   labels,
			Analysis: analysis,
			Meta:     reportMeta(),
		})
		if err != nil {
			return err
		}
		logger.Info("report built",
			"tables", len(rep.Tables), "aggregates", len(rep.Aggregates),
			"chains", len(rep.Chains), "health_score", rep.Health.Value)
		if rep.RefreshOrder.HasCycle {
			logger.Warn("circular aggregate dependency", "views", rep.RefreshOrder.CycleNodes)
		}

		format := cfg.Format
		if f, _ := cmd.Flags().GetString("format"); f != "" {
			format = f
		}
		if err := writeReport(cfg.Output, format, rep); err != nil {
			return err
		}
		if withHTML && format != "html" {
			if err := writeReport(htmlPath(cfg.Output), "html", rep); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	f := reportCmd.Flags()
	f.StringP("output", "o", "", "output file, - for stdout (default "+config.DefaultOutput+")")
	f.String("format", "", "report format: markdown, html or json")
	f.BoolVar(&withHTML, "html", false, "also write an HTML copy next to the output file")
	f.String("labels", "", "YAML file overriding report labels")
	rootCmd.AddCommand(reportCmd)
}

func writeReport(path, format string, rep *report.Report) error {
	var render func(io.Writer, *report.Report) error
	switch format {
	case "markdown":
		render = report.WriteMarkdown
	case "html":
		render = report.WriteHTML
	case "json":
		render = report.WriteJSON
	default:
		return fmt.Errorf("unknown format: %s (supported: markdown, html, json)", format)
	}

	w, err := output.Create(path)
	if err != nil {
		return err
	}
	defer w.Close()

	if err := render(w, rep); err != nil {
		return fmt.Errorf("writing %s report: %w", format, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if path != "" && path != "-" {
		logger.Info("report written", "path", path, "format", format)
	}
	return nil
}

// htmlPath swaps the output extension for .html. Standard output falls back
// to the default report name.
func htmlPath(out string) string {
	if out == "" || out == "-" {
		out = config.DefaultOutput
	}
	return strings.TrimSuffix(out, filepath.Ext(out)) + ".html"
}
