package cmd

import (
	"context"
	"fmt"

	"codesig/internal/report"
	"codesig/internal/scan"
	"codesig/internal/signature"
	"codesig/internal/source"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start an MCP server exposing scan tools",
	Args:  cobra.NoArgs,
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	st, ref, err := loadReference(cfg)
	if err != nil {
		return fmt.Errorf("open reference: %w\nRun 'codesig reference build' first", err)
	}
	defer st.Close()

	p, err := newPipeline(ctx, cfg, scanSettings{threshold: cfg.Classify.Threshold, useHashes: true})
	if err != nil {
		return err
	}
	defer p.Close()

	s := mcpserver.NewMCPServer("codesig", "1.0.0", mcpserver.WithToolCapabilities(false))

	s.AddTool(scanRepositoryTool(), makeScanHandler(p.scanner, ref, cfg.Classify.Threshold))
	s.AddTool(checkCodeTool(), makeCheckHandler(p.scanner, ref))
	s.AddTool(referenceInfoTool(), makeReferenceInfoHandler(st, cfg.Reference.Path))

	return mcpserver.ServeStdio(s)
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

// --- Tool schema builders ---

var readOnlyAnnotation = mcp.ToolAnnotation{
	ReadOnlyHint:    mcp.ToBoolPtr(true),
	DestructiveHint: mcp.ToBoolPtr(false),
	IdempotentHint:  mcp.ToBoolPtr(true),
	OpenWorldHint:   mcp.ToBoolPtr(true),
}

func scanRepositoryTool() mcp.Tool {
	return mcp.NewTool("scan_repository",
		mcp.WithDescription("Walk a repository, cluster each source file's chunk embeddings and compare them with the reference signature. Returns a markdown report with per-file scores and verdicts."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("repository",
			mcp.Required(),
			mcp.Description("Repository as owner/name or owner/name/sub/dir"),
		),
	)
}

func checkCodeTool() mcp.Tool {
	return mcp.NewTool("check_code",
		mcp.WithDescription("Classify a single source file given its text."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
		mcp.WithString("code",
			mcp.Required(),
			mcp.Description("Full source text of the file"),
		),
		mcp.WithString("filename",
			mcp.Description("File name, used for language detection (default snippet.py)"),
		),
	)
}

func referenceInfoTool() mcp.Tool {
	return mcp.NewTool("reference_info",
		mcp.WithDescription("Describe the loaded reference signature: build metadata, row count and cluster ids."),
		mcp.WithToolAnnotation(readOnlyAnnotation),
	)
}

// --- Handler factories ---

func makeScanHandler(sc *scan.Scanner, ref signature.Table, threshold float64) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		repo, err := source.ParseRepoRef(req.GetString("repository", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		run, err := sc.Scan(ctx, []source.RepoRef{repo}, ref)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("scan failed: %v", err)), nil
		}
		return mcp.NewToolResultText(report.Markdown(run, threshold)), nil
	}
}

func makeCheckHandler(sc *scan.Scanner, ref signature.Table) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		code := req.GetString("code", "")
		if code == "" {
			return mcp.NewToolResultError("code is required"), nil
		}
		name := req.GetString("filename", "snippet.py")

		r := sc.CheckText(ctx, name, code, ref)
		return mcp.NewToolResultText(formatCheckResult(r)), nil
	}
}

func makeReferenceInfoHandler(st *signature.Store, path string) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		meta, err := st.AllMeta()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("read metadata failed: %v", err)), nil
		}
		ref, err := st.Load()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("load reference failed: %v", err)), nil
		}
		return mcp.NewToolResultText(formatReferenceInfo(path, meta, ref)), nil
	}
}

// --- Formatting helpers ---

func formatCheckResult(r scan.FileResult) string {
	switch r.Status {
	case scan.StatusRejected:
		return fmt.Sprintf("`%s` was not analysed: %s.", r.Unit.Name, r.Reason)
	case scan.StatusNoSignal:
		return fmt.Sprintf("`%s` produced no cluster signature (too few usable chunks).", r.Unit.Name)
	}

	v := r.Verdict
	verdict := "safe"
	if v.Flagged {
		verdict = "**malicious**"
	}
	s := fmt.Sprintf("`%s` is %s (score %.3f, shared clusters %v).", r.Unit.Name, verdict, v.Score, v.Shared)
	for _, m := range v.HashMatches {
		s += fmt.Sprintf("\n\nKnown %s hash `%s`", m.Algorithm, m.Hash)
		if m.Signature != "" {
			s += " (" + m.Signature + ")"
		}
	}
	return s
}
