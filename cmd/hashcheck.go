package cmd

import (
	"errors"
	"fmt"

	"codesig/internal/archive"
	"codesig/internal/hashdb"
	"codesig/internal/walker"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	flagDataset       string
	flagHashReposFile string
)

var hashcheckCmd = &cobra.Command{
	Use:   "hashcheck [owner/repo[/path] ...]",
	Short: "Look up every repository file in a malware hash dataset",
	RunE:  runHashcheck,
}

func runHashcheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	dataset := cfg.HashDB.Path
	if flagDataset != "" {
		dataset = flagDataset
	}
	if dataset == "" {
		return errors.New("no hash dataset: pass --dataset or set hashdb.path")
	}

	repos, err := resolveRepos(args, flagHashReposFile)
	if err != nil {
		return err
	}

	db, err := hashdb.Load(dataset, logger)
	if err != nil {
		return err
	}
	logger.Info("hash dataset loaded", zap.String("path", dataset), zap.Int("records", db.Len()))

	prov, err := newProvider(ctx, cfg)
	if err != nil {
		return err
	}
	w := walker.New(prov, walker.Options{
		Workers: cfg.Workers,
		Archive: archive.Options{MaxEntrySize: cfg.Archive.MaxEntrySize},
	}, logger)

	var files, hits int
	for _, repo := range repos {
		res := w.Walk(ctx, repo.Owner, repo.Name, repo.Path)
		for _, f := range res.Failures {
			logger.Warn("walk failure", zap.String("repo", repo.String()), zap.Error(f))
		}
		for _, u := range res.Units {
			files++
			for _, m := range db.Lookup([]byte(u.Content)) {
				hits++
				fmt.Printf("%s\t%s\t%s\t%s\n", u.Key(), m.Algorithm, m.Hash, m.Signature)
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	fmt.Printf("%d files checked, %d matches\n", files, hits)
	return nil
}

func init() {
	hashcheckCmd.Flags().StringVar(&flagDataset, "dataset", "", "MalwareBazaar-style CSV (default hashdb.path)")
	hashcheckCmd.Flags().StringVar(&flagHashReposFile, "repos-file", "", "repository list (.toml, .json or one per line)")
	rootCmd.AddCommand(hashcheckCmd)
}
