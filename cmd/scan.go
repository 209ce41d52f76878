package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"codesig/internal/cluster"
	"codesig/internal/report"
	"codesig/internal/scan"
	"codesig/internal/signature"
	"codesig/internal/tui"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	flagScanReposFile string
	flagThreshold     float64
	flagScanTUI       bool
	flagExplain       bool
	flagPlot          bool
	flagSaveClusters  string
	flagRaw           bool
	flagWidth         int
)

var scanCmd = &cobra.Command{
	Use:   "scan [owner/repo[/path] ...]",
	Short: "Classify repository files against the reference signature",
	RunE:  runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	repos, err := resolveRepos(args, flagScanReposFile)
	if err != nil {
		return err
	}
	threshold := cfg.Classify.Threshold
	if cmd.Flags().Changed("threshold") {
		threshold = flagThreshold
	}

	st, ref, err := loadReference(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	p, err := newPipeline(ctx, cfg, scanSettings{
		threshold:    threshold,
		saveClusters: flagSaveClusters,
		useHashes:    true,
	})
	if err != nil {
		return err
	}
	defer p.Close()

	var run *scan.Run
	if flagScanTUI {
		run, err = tui.Run(ctx, "Scanning", func(ctx context.Context, progress scan.ProgressFunc) (*scan.Run, error) {
			p.scanner.OnProgress(progress)
			return p.scanner.Scan(ctx, repos, ref)
		})
	} else {
		run, err = p.scanner.Scan(ctx, repos, ref)
	}
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	if err := printMarkdown(report.Markdown(run, threshold)); err != nil {
		return err
	}
	if flagPlot {
		fmt.Print(formatPlots(run))
	}
	if flagExplain {
		fmt.Print(explain(st, run))
	}
	return nil
}

func printMarkdown(md string) error {
	if flagRaw {
		fmt.Print(md)
		return nil
	}
	out, err := report.Render(md, flagWidth)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

func formatPlots(run *scan.Run) string {
	var sb strings.Builder
	for _, r := range run.Files {
		if len(r.Outcome.Inertias) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "%s (k=%d)\n%s\n\n", r.Unit.Key(), r.Outcome.K, cluster.ElbowSparkline(r.Outcome.Inertias))
	}
	return sb.String()
}

// explain lists, for each flagged file, the closest reference row to each
// of its chunks.
func explain(st *signature.Store, run *scan.Run) string {
	var sb strings.Builder
	for _, r := range run.Files {
		if !r.Verdict.Flagged {
			continue
		}
		fmt.Fprintf(&sb, "%s\n", r.Unit.Key())
		for i, vec := range r.Output.Matrix {
			nb, err := st.Nearest(vec, 1)
			if errors.Is(err, signature.ErrNoVectors) {
				return "Reference has no stored vectors; rebuild it to use --explain.\n"
			}
			if err != nil {
				logger.Warn("nearest lookup failed", zap.String("file", r.Unit.Key()), zap.Error(err))
				continue
			}
			if len(nb) == 0 {
				continue
			}
			c := r.Output.Chunks[i]
			fmt.Fprintf(&sb, "  chunk %d [%d:%d] cluster %d ~ %s (cluster %d, distance %.4f)\n",
				c.Index, c.Start, c.End, r.Outcome.Table.Rows[i].Cluster,
				nb[0].Row.ID, nb[0].Row.Cluster, nb[0].Distance)
		}
	}
	return sb.String()
}

func init() {
	scanCmd.Flags().StringVar(&flagScanReposFile, "repos-file", "", "repository list (.toml, .json or one per line)")
	scanCmd.Flags().Float64Var(&flagThreshold, "threshold", 0.5, "flag files whose score is strictly above this")
	scanCmd.Flags().BoolVar(&flagScanTUI, "tui", false, "show interactive progress")
	scanCmd.Flags().BoolVar(&flagExplain, "explain", false, "show the nearest reference chunk for flagged files")
	scanCmd.Flags().BoolVar(&flagPlot, "plot", false, "print the elbow curve of each file")
	scanCmd.Flags().StringVar(&flagSaveClusters, "save-clusters", "", "write each file's clusters as CSV into this directory")
	scanCmd.PersistentFlags().BoolVar(&flagRaw, "raw", false, "print the report as plain markdown")
	scanCmd.PersistentFlags().IntVar(&flagWidth, "width", 100, "report wrap width")
	rootCmd.AddCommand(scanCmd)
}
