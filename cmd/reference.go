package cmd

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"codesig/internal/provider/local"
	"codesig/internal/signature"
	"codesig/internal/source"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	flagRefRepos     []string
	flagRefReposFile string
	flagRefOut       string
	flagRefSave      string
	flagExportCSV    string
)

var referenceCmd = &cobra.Command{
	Use:   "reference",
	Short: "Build and inspect the reference signature database",
}

var referenceBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Cluster known-malicious repositories into a reference signature",
	Args:  cobra.NoArgs,
	RunE:  runReferenceBuild,
}

var referenceInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show reference metadata and cluster ids",
	Args:  cobra.NoArgs,
	RunE:  runReferenceInfo,
}

var referenceExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the reference table as CSV",
	Args:  cobra.NoArgs,
	RunE:  runReferenceExport,
}

func runReferenceBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	repos, err := referenceRepos()
	if err != nil {
		return err
	}

	out := flagRefOut
	if out == "" {
		out = cfg.Reference.Path
	}

	p, err := newPipeline(ctx, cfg, scanSettings{saveClusters: flagRefSave})
	if err != nil {
		return err
	}
	defer p.Close()

	start := time.Now()
	ref, stats, err := p.scanner.BuildReference(ctx, repos)
	if err != nil {
		return fmt.Errorf("build reference: %w", err)
	}

	st, err := signature.Open(out)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Save(ref); err != nil {
		return err
	}
	names := make([]string, len(repos))
	for i, r := range repos {
		names[i] = r.String()
	}
	meta := map[string]string{
		signature.MetaEmbeddingModel: cfg.Embedding.Model,
		signature.MetaChunkTokens:    strconv.Itoa(cfg.Embedding.ChunkTokens),
		signature.MetaBuiltAt:        time.Now().UTC().Format(time.RFC3339),
		signature.MetaSourceRepos:    strings.Join(names, ","),
	}
	for k, v := range meta {
		if err := st.SetMeta(k, v); err != nil {
			return err
		}
	}

	logger.Info("reference saved", zap.String("path", out), zap.Duration("elapsed", time.Since(start)))
	fmt.Printf("Reference written to %s\n", out)
	fmt.Printf("  Repositories: %d\n", stats.Repos)
	fmt.Printf("  Files:        %d seen, %d accepted, %d rejected, %d without signal\n",
		stats.Units, stats.Accepted, stats.Rejected, stats.NoSignal)
	fmt.Printf("  Rows:         %d\n", ref.Len())
	fmt.Printf("  Clusters:     %v\n", ref.ClusterIDs())
	return nil
}

// referenceRepos resolves --repo/--repos-file, falling back to every
// repository under the local root for the local provider.
func referenceRepos() ([]source.RepoRef, error) {
	repos, err := resolveRepos(flagRefRepos, flagRefReposFile)
	if !errors.Is(err, errNoRepos) || cfg.Provider != "local" {
		return repos, err
	}
	p, err := local.New(cfg.Local.Root)
	if err != nil {
		return nil, err
	}
	repos, err = p.Repositories()
	if err != nil {
		return nil, err
	}
	if len(repos) == 0 {
		return nil, errNoRepos
	}
	return repos, nil
}

func runReferenceInfo(cmd *cobra.Command, args []string) error {
	st, err := signature.OpenExisting(cfg.Reference.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	meta, err := st.AllMeta()
	if err != nil {
		return err
	}
	ref, err := st.Load()
	if err != nil {
		return err
	}
	fmt.Print(formatReferenceInfo(cfg.Reference.Path, meta, ref))
	return nil
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}

func formatReferenceInfo(path string, meta map[string]string, ref signature.Table) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Reference: %s\n", path)
	for _, k := range sortedKeys(meta) {
		fmt.Fprintf(&sb, "  %-16s %s\n", k+":", meta[k])
	}
	fmt.Fprintf(&sb, "  %-16s %d\n", "rows:", ref.Len())
	fmt.Fprintf(&sb, "  %-16s %v\n", "clusters:", ref.ClusterIDs())
	return sb.String()
}

func runReferenceExport(cmd *cobra.Command, args []string) error {
	st, err := signature.OpenExisting(cfg.Reference.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	ref, err := st.Load()
	if err != nil {
		return err
	}

	w := os.Stdout
	if flagExportCSV != "" && flagExportCSV != "-" {
		f, err := os.Create(flagExportCSV)
		if err != nil {
			return fmt.Errorf("create %s: %w", flagExportCSV, err)
		}
		defer f.Close()
		w = f
	}
	return signature.WriteCSV(w, ref)
}

func init() {
	referenceBuildCmd.Flags().StringSliceVar(&flagRefRepos, "repo", nil, "repository as owner/name[/path] (repeatable)")
	referenceBuildCmd.Flags().StringVar(&flagRefReposFile, "repos-file", "", "repository list (.toml, .json or one per line)")
	referenceBuildCmd.Flags().StringVar(&flagRefOut, "out", "", "output database (default --reference)")
	referenceBuildCmd.Flags().StringVar(&flagRefSave, "save-clusters", "", "also write each file's clusters as CSV into this directory")
	referenceExportCmd.Flags().StringVar(&flagExportCSV, "csv", "-", "output CSV file")

	referenceCmd.AddCommand(referenceBuildCmd, referenceInfoCmd, referenceExportCmd)
	rootCmd.AddCommand(referenceCmd)
}
