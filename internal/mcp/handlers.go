package mcp

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/hpungsan/lineage/internal/config"
	"github.com/hpungsan/lineage/internal/errors"
	"github.com/hpungsan/lineage/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db     *sql.DB
	cfg    *config.Config
	logger *zap.SugaredLogger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *sql.DB, cfg *config.Config, logger *zap.SugaredLogger) *Handlers {
	return &Handlers{db: db, cfg: cfg, logger: logger}
}

// Request types for each tool

// AnalyzeRequest represents the arguments for ownership_analyze.
type AnalyzeRequest struct {
	RepoPath string   `json:"repo_path"`
	Files    []string `json:"files,omitempty"`
}

// RunsRequest represents the arguments for ownership_runs.
type RunsRequest struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// ScoresRequest represents the arguments for ownership_scores.
type ScoresRequest struct {
	RunID  string `json:"run_id,omitempty"`
	File   string `json:"file,omitempty"`
	Author string `json:"author,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// SummaryRequest represents the arguments for ownership_summary.
type SummaryRequest struct {
	RunID string `json:"run_id,omitempty"`
}

// ReportRequest represents the arguments for ownership_report.
type ReportRequest struct {
	RunID string `json:"run_id,omitempty"`
	Top   int    `json:"top,omitempty"`
}

// FileRequest represents the arguments for ownership_file.
type FileRequest struct {
	RunID string `json:"run_id,omitempty"`
	File  string `json:"file"`
}

// AttributeRequest represents the arguments for ownership_attribute.
type AttributeRequest struct {
	RepoPath string `json:"repo_path"`
	File     string `json:"file"`
	Head     string `json:"head,omitempty"`
}

// ExportRequest represents the arguments for ownership_export.
type ExportRequest struct {
	RunID string `json:"run_id,omitempty"`
	Dir   string `json:"dir,omitempty"`
}

// Handler implementations

// HandleAnalyze handles the ownership_analyze tool call.
func (h *Handlers) HandleAnalyze(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AnalyzeRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Analyze(ctx, h.db, h.cfg, h.logger, ops.AnalyzeInput{
		RepoPath: input.RepoPath,
		Files:    input.Files,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleRuns handles the ownership_runs tool call.
func (h *Handlers) HandleRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RunsRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ListRuns(ctx, h.db, ops.ListRunsInput{
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleScores handles the ownership_scores tool call.
func (h *Handlers) HandleScores(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ScoresRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Scores(ctx, h.db, ops.ScoresInput{
		RunID:  input.RunID,
		File:   input.File,
		Author: input.Author,
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleSummary handles the ownership_summary tool call.
func (h *Handlers) HandleSummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SummaryRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Summary(ctx, h.db, ops.SummaryInput{RunID: input.RunID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleReport handles the ownership_report tool call.
func (h *Handlers) HandleReport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ReportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Report(ctx, h.db, ops.ReportInput{
		RunID: input.RunID,
		Top:   input.Top,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleFile handles the ownership_file tool call.
func (h *Handlers) HandleFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FileRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.FileDetail(ctx, h.db, ops.FileDetailInput{
		RunID: input.RunID,
		File:  input.File,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleAttribute handles the ownership_attribute tool call.
func (h *Handlers) HandleAttribute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AttributeRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Attribute(ctx, h.cfg, ops.AttributeInput{
		RepoPath: input.RepoPath,
		File:     input.File,
		Head:     input.Head,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleExport handles the ownership_export tool call.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Export(ctx, h.db, h.cfg, ops.ExportInput{
		RunID: input.RunID,
		Dir:   input.Dir,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are never exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if lErr, ok := errors.As(err); ok && lErr.Code != errors.ErrInternal {
		errorObj := map[string]any{
			"code":    lErr.Code,
			"message": lErr.Message,
			"status":  lErr.Status,
		}
		// Server-side failures keep their details in the logs only.
		if lErr.Details != nil && lErr.Status < 500 {
			errorObj["details"] = lErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
