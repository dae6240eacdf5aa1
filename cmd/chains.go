package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/hurou927/tsdb-report/internal/config"
	"github.com/hurou927/tsdb-report/internal/graph"
	"github.com/hurou927/tsdb-report/internal/report"
)

var (
	chainsFormat string
	chainsBases  []string
)

var (
	baseStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	warnStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3"))
)

var chainsCmd = &cobra.Command{
	Use:   "chains",
	Short: "Show resolved continuous aggregate chains",
	Long: `Reads continuous aggregates and their definitions and prints the resolved
chain of every base table, or only of the tables given with --base.

Output adapts to environment:
  - Terminal: Styled trees
  - Piped/Scripted: Indented text
  - --format selects text, tree, table, mermaid or json explicitly`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		labels, err := config.LoadLabels(cfg.LabelsFile)
		if err != nil {
			return err
		}
		opts, err := analysisOptions()
		if err != nil {
			return err
		}

		collector, closeDB, err := openCollector(ctx)
		if err != nil {
			return err
		}
		defer closeDB()

		snap, err := collector.Snapshot(ctx)
		if err != nil {
			return fmt.Errorf("collecting catalog: %w", err)
		}
		res := report.Analyze(snap, opts)
		for _, b := range chainsBases {
			if _, ok := res.Chains.Chain(b); !ok {
				logger.Warn("no continuous aggregates on base table", "base", b)
			}
		}
		chains := report.SelectChains(res.Chains, chainsBases...)

		w := cmd.OutOrStdout()
		format := chainsFormat
		if format == "auto" {
			format = "text"
			if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
				format = "styled"
			}
		}

		switch format {
		case "styled":
			return writeStyled(w, res, chains)
		case "text":
			return writeText(w, res, chains, labels)
		case "tree":
			return report.WriteTree(w, chains)
		case "table":
			report.WriteChainTable(w, chains)
			return nil
		case "mermaid":
			return graph.WriteMermaid(w, res.Graph)
		case "json":
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Chains       []report.ChainReport `json:"chains"`
				RefreshOrder graph.TopoResult     `json:"refresh_order"`
			}{chains, graph.RefreshOrder(res.Graph)})
		default:
			return fmt.Errorf("unknown format: %s (supported: auto, text, tree, table, mermaid, json)", chainsFormat)
		}
	},
}

func init() {
	chainsCmd.Flags().StringVar(&chainsFormat, "format", "auto", "output format: auto, text, tree, table, mermaid or json")
	chainsCmd.Flags().StringSliceVar(&chainsBases, "base", nil, "only show chains of these base tables (repeatable)")
	chainsCmd.Flags().String("labels", "", "YAML file overriding chain labels")
	rootCmd.AddCommand(chainsCmd)
}

func writeText(w io.Writer, res *graph.Result, chains []report.ChainReport, labels config.Labels) error {
	f := report.ChainFormatter{Labels: labels}
	for _, c := range chains {
		chain, _ := res.Chains.Chain(c.Base)
		if _, err := fmt.Fprintf(w, "%s\n\n", f.Format(chain)); err != nil {
			return err
		}
	}
	return writeRefreshOrder(w, res, fmt.Sprint)
}

func writeStyled(w io.Writer, res *graph.Result, chains []report.ChainReport) error {
	for _, c := range chains {
		chain, _ := res.Chains.Chain(c.Base)
		fmt.Fprintln(w, baseStyle.Render(c.Base)+" "+
			mutedStyle.Render(fmt.Sprintf("(%d views, %d levels)", chain.Len(), chain.MaxLevel())))
		if err := report.WriteTree(w, []report.ChainReport{c}); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}
	return writeRefreshOrder(w, res, func(a ...any) string { return warnStyle.Render(fmt.Sprint(a...)) })
}

func writeRefreshOrder(w io.Writer, res *graph.Result, warn func(...any) string) error {
	order := graph.RefreshOrder(res.Graph)
	if len(order.Order) > 0 {
		fmt.Fprintln(w, "Refresh order:")
		for i, v := range order.Order {
			fmt.Fprintf(w, "  %d. %s\n", i+1, v)
		}
	}
	if err := graph.ValidateCycles(order); err != nil {
		_, werr := fmt.Fprintln(w, warn(err.Error()))
		return werr
	}
	return nil
}
