package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/insights-cli/internal/model"
	"github.com/sells-group/insights-cli/internal/pipeline"
	"github.com/sells-group/insights-cli/internal/store"
)

const mcpVersion = "0.1.0"

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve insight extraction as MCP tools over stdio",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "extract")
		if err != nil {
			return err
		}
		defer env.Close()

		zap.L().Info("starting MCP server on stdio")
		return server.ServeStdio(newMCPServer(env.Recorder, env.Store))
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

// newMCPServer registers the extraction and run history tools.
func newMCPServer(rec *pipeline.Recorder, st store.Store) *server.MCPServer {
	s := server.NewMCPServer(
		"insights-cli",
		mcpVersion,
		server.WithToolCapabilities(false),
		server.WithLogging(),
	)

	s.AddTool(
		mcp.NewTool(
			"extract_insights",
			mcp.WithDescription("Extract structured user research insights (quote, topic, sentiment, user need, evidence) from survey or interview transcript files."),
			mcp.WithArray("files",
				mcp.Required(),
				mcp.Description("Files to analyze. Each item has filename, content, and category (pesquisa_usuario for survey JSON, transcricao_entrevista for transcripts)."),
				mcp.Items(map[string]any{
					"type": "object",
					"properties": map[string]any{
						"filename": map[string]any{"type": "string"},
						"content":  map[string]any{"type": "string"},
						"category": map[string]any{
							"type": "string",
							"enum": []string{string(model.CategorySurvey), string(model.CategoryTranscript)},
						},
					},
					"required": []string{"filename", "content", "category"},
				}),
			),
			mcp.WithArray("kpis",
				mcp.Description("Optional quantitative KPIs used as context for files without their own."),
				mcp.Items(map[string]any{"type": "object"}),
			),
		),
		extractInsightsTool(rec),
	)

	if st != nil {
		s.AddTool(
			mcp.NewTool(
				"list_runs",
				mcp.WithDescription("List recent extraction runs, newest first."),
				mcp.WithString("status", mcp.Description("Filter by status (running, complete, failed)")),
				mcp.WithString("filename", mcp.Description("Only runs that analyzed this file")),
				mcp.WithNumber("limit", mcp.Description("Max number of runs (default 20)")),
			),
			listRunsTool(st),
		)
	}

	return s
}

func extractInsightsTool(rec *pipeline.Recorder) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := json.Marshal(request.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		var req model.AnalysisRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		if len(req.Files) == 0 {
			return mcp.NewToolResultError("files argument required"), nil
		}

		runID, results, stats := rec.Run(ctx, req)
		zap.L().Info("mcp extract complete",
			zap.String("run_id", runID),
			zap.Int("files", stats.Files),
			zap.Int("insights", stats.Insights),
		)

		out, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encode results: %v", err)), nil
		}
		return mcp.NewToolResultText(string(out)), nil
	}
}

func listRunsTool(st store.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		filter := store.RunFilter{Limit: 20}
		if s, ok := args["status"].(string); ok {
			filter.Status = model.RunStatus(s)
		}
		if s, ok := args["filename"].(string); ok {
			filter.Filename = s
		}
		if l, ok := args["limit"].(float64); ok && l > 0 {
			filter.Limit = int(l)
		}

		runs, err := st.ListRuns(ctx, filter)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list runs failed: %v", err)), nil
		}
		if len(runs) == 0 {
			return mcp.NewToolResultText("No runs found."), nil
		}

		summaries := make([]runSummary, len(runs))
		for i := range runs {
			summaries[i] = summarizeRun(&runs[i])
		}
		out, err := json.MarshalIndent(summaries, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encode runs: %v", err)), nil
		}
		return mcp.NewToolResultText(string(out)), nil
	}
}
