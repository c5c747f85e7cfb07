package db

// Run is one analysis of a repository at a fixed HEAD.
type Run struct {
	ID           string  `json:"id"`
	RepoPath     string  `json:"repo_path"`
	Head         string  `json:"head"`
	LogBase      float64 `json:"log_base"`
	Threshold    float64 `json:"threshold"`
	StartedAt    int64   `json:"started_at"`
	FinishedAt   *int64  `json:"finished_at,omitempty"`
	FilesTotal   int     `json:"files_total"`
	FilesDone    int     `json:"files_done"`
	FilesSkipped int     `json:"files_skipped"`
	FilesFailed  int     `json:"files_failed"`
}

// FileScore is an author's share of a file at its last revision.
type FileScore struct {
	FilePath string  `json:"file_path"`
	Author   string  `json:"author"`
	Chars    int     `json:"chars"`
	Score    float64 `json:"score"`
}

// RevisionScore is an author's share of a file right after one commit.
type RevisionScore struct {
	FilePath   string  `json:"file_path"`
	Seq        int     `json:"seq"`
	CommitHash string  `json:"commit_hash"`
	Author     string  `json:"author"`
	Chars      int     `json:"chars"`
	Score      float64 `json:"score"`
}

// Commit is one entry of a file's commit log. Times are unix seconds.
type Commit struct {
	FilePath       string `json:"file_path"`
	Seq            int    `json:"seq"`
	Hash           string `json:"hash"`
	AuthorName     string `json:"author_name"`
	AuthorEmail    string `json:"author_email"`
	AuthorTime     int64  `json:"author_time"`
	CommitterName  string `json:"committer_name"`
	CommitterEmail string `json:"committer_email"`
	CommitterTime  int64  `json:"committer_time"`
	Path           string `json:"path"`
}

// Timing is how long one file took to analyze.
type Timing struct {
	FilePath   string  `json:"file_path"`
	Revisions  int     `json:"revisions"`
	AvgLines   float64 `json:"avg_lines"`
	DurationMs int64   `json:"duration_ms"`
}

// Failure records why a file could not be analyzed.
type Failure struct {
	FilePath string `json:"file_path"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// FileResult is everything stored for one analyzed file.
type FileResult struct {
	FilePath  string
	Scores    []FileScore
	Revisions []RevisionScore
	Commits   []Commit
	Timing    Timing
}

// AuthorSummary aggregates an author's final scores across a run.
type AuthorSummary struct {
	Author    string  `json:"author"`
	Chars     int     `json:"chars"`
	Files     int     `json:"files"`
	MeanScore float64 `json:"mean_score"`
	MaxScore  float64 `json:"max_score"`
}

// FileSummary aggregates one file's final scores.
type FileSummary struct {
	FilePath string `json:"file_path"`
	Chars    int    `json:"chars"`
	Authors  int    `json:"authors"`
}

// ScoreFilter selects file scores of a run.
type ScoreFilter struct {
	RunID  string
	File   string // exact path, optional
	Author string // exact name, optional
	Limit  int
	Offset int
}
