package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"codesig/internal/report"
	"codesig/internal/scan"
	"codesig/internal/source"

	"github.com/spf13/cobra"
)

var flagCheckThreshold float64

var checkCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Classify a single local file",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}
	text, err := source.DecodeText(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}

	threshold := cfg.Classify.Threshold
	if cmd.Flags().Changed("threshold") {
		threshold = flagCheckThreshold
	}

	st, ref, err := loadReference(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	p, err := newPipeline(ctx, cfg, scanSettings{threshold: threshold, useHashes: true})
	if err != nil {
		return err
	}
	defer p.Close()

	r := p.scanner.CheckText(ctx, filepath.Base(args[0]), text, ref)
	fmt.Println(describeResult(r))
	return nil
}

func describeResult(r scan.FileResult) string {
	switch r.Status {
	case scan.StatusRejected:
		return fmt.Sprintf("%s: skipped (%s)", r.Unit.Name, r.Reason)
	case scan.StatusNoSignal:
		return fmt.Sprintf("%s: no cluster signature (too few usable chunks)", r.Unit.Name)
	}
	return report.Banner(r.Verdict)
}

func init() {
	checkCmd.Flags().Float64Var(&flagCheckThreshold, "threshold", 0.5, "flag the file if its score is strictly above this")
	rootCmd.AddCommand(checkCmd)
}
