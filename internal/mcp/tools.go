package mcp

import "github.com/mark3labs/mcp-go/mcp"

var analyzeToolDef = mcp.NewTool("ownership_analyze",
	mcp.WithDescription("Replay the git history of every file tracked at HEAD and store per-author character ownership as a new run. Returns the run ID and file counters."),
	mcp.WithString("repo_path",
		mcp.Required(),
		mcp.Description("Path to the repository or any directory inside it"),
	),
	mcp.WithArray("files",
		mcp.Description("Optional subset of repository-relative files to analyze"),
		mcp.WithStringItems(),
	),
)

var runsToolDef = mcp.NewTool("ownership_runs",
	mcp.WithDescription("List stored analysis runs, newest first."),
	mcp.WithNumber("limit", mcp.Description("Maximum runs to return (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Runs to skip")),
)

var scoresToolDef = mcp.NewTool("ownership_scores",
	mcp.WithDescription("List per-file, per-author ownership scores of a run."),
	mcp.WithString("run_id", mcp.Description("Run to read (default: latest run)")),
	mcp.WithString("file", mcp.Description("Only this repository-relative file")),
	mcp.WithString("author", mcp.Description("Only this author")),
	mcp.WithNumber("limit", mcp.Description("Maximum rows to return (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Rows to skip")),
)

var summaryToolDef = mcp.NewTool("ownership_summary",
	mcp.WithDescription("Aggregate a run by author: surviving characters, files touched, mean and max score."),
	mcp.WithString("run_id", mcp.Description("Run to read (default: latest run)")),
)

var reportToolDef = mcp.NewTool("ownership_report",
	mcp.WithDescription("Render a markdown ownership report for a run."),
	mcp.WithString("run_id", mcp.Description("Run to read (default: latest run)")),
	mcp.WithNumber("top", mcp.Description("Files listed in the report (default 20, max 500)")),
)

var fileToolDef = mcp.NewTool("ownership_file",
	mcp.WithDescription("Show everything a run stored for one file: scores, per-revision scores, commits and failure."),
	mcp.WithString("file",
		mcp.Required(),
		mcp.Description("Repository-relative file path"),
	),
	mcp.WithString("run_id", mcp.Description("Run to read (default: latest run)")),
)

var attributeToolDef = mcp.NewTool("ownership_attribute",
	mcp.WithDescription("Replay one file's history and return its text partitioned into spans, each with the revision and author that introduced it."),
	mcp.WithString("repo_path",
		mcp.Required(),
		mcp.Description("Path to the repository or any directory inside it"),
	),
	mcp.WithString("file",
		mcp.Required(),
		mcp.Description("Repository-relative file path"),
	),
	mcp.WithString("head", mcp.Description("Commit to replay up to (default: HEAD)")),
)

var exportToolDef = mcp.NewTool("ownership_export",
	mcp.WithDescription("Write a run's scores, per-revision scores, commits and timings as TSV files."),
	mcp.WithString("run_id", mcp.Description("Run to export (default: latest run)")),
	mcp.WithString("dir", mcp.Description("Target directory (default: ~/.lineage/exports/<run id>)")),
)
