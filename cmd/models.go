package cmd

import (
	"fmt"
	"strings"

	"codesig/internal/embedder"

	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models available on the Ollama server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		models, err := embedder.ListModels(cmd.Context(), cfg.Embedding.OllamaURL)
		if err != nil {
			return err
		}
		if len(models) == 0 {
			fmt.Printf("No models found. Pull one with: ollama pull %s\n", cfg.Embedding.Model)
			return nil
		}
		for _, m := range models {
			marker := " "
			if m.Name == cfg.Embedding.Model || strings.TrimSuffix(m.Name, ":latest") == cfg.Embedding.Model {
				marker = "*"
			}
			fmt.Printf("%s %-40s %s\n", marker, m.Name, embedder.FormatSize(m.Size))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}
