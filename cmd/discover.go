package cmd

import (
	"errors"
	"fmt"

	"codesig/internal/provider/github"
	"codesig/internal/repolist"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	flagQuery string
	flagPages int
	flagOut   string
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Search GitHub for repositories and write them to a list file",
	Args:  cobra.NoArgs,
	RunE:  runDiscover,
}

func runDiscover(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	p, err := github.New(ctx, github.Options{
		Token:             cfg.GitHub.Token.Value(),
		BaseURL:           cfg.GitHub.BaseURL,
		RequestsPerSecond: cfg.GitHub.RequestsPerSecond,
		Burst:             cfg.GitHub.Burst,
	}, logger)
	if err != nil {
		return err
	}

	repos, err := p.SearchRepositories(ctx, flagQuery, flagPages)
	if err != nil {
		if len(repos) == 0 {
			return fmt.Errorf("search repositories: %w", err)
		}
		logger.Warn("search stopped early, keeping partial results", zap.Int("repos", len(repos)), zap.Error(err))
	}
	if len(repos) == 0 {
		return errors.New("search returned no repositories")
	}

	if err := repolist.Save(flagOut, repos); err != nil {
		return err
	}
	fmt.Printf("Wrote %d repositories to %s\n", len(repos), flagOut)
	return nil
}

func init() {
	discoverCmd.Flags().StringVar(&flagQuery, "query", "language:python", "GitHub repository search query")
	discoverCmd.Flags().IntVar(&flagPages, "pages", 10, "result pages to fetch (100 repositories each)")
	discoverCmd.Flags().StringVar(&flagOut, "out", "repos.toml", "output file (.toml, .json or plain text)")
	rootCmd.AddCommand(discoverCmd)
}
