package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, dir, body string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(body), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestLoad_DefaultWhenMissing(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	def := DefaultConfig()
	if cfg.LogBase != def.LogBase {
		t.Errorf("LogBase = %v, want %v", cfg.LogBase, def.LogBase)
	}
	if cfg.SimilarityThreshold != 0.6 {
		t.Errorf("SimilarityThreshold = %v, want 0.6", cfg.SimilarityThreshold)
	}
	if cfg.MemoryHighWater != 80 {
		t.Errorf("MemoryHighWater = %v, want 80", cfg.MemoryHighWater)
	}
	if len(cfg.ExcludeExtensions) != len(DefaultExcludeExtensions) {
		t.Errorf("ExcludeExtensions = %v, want %v", cfg.ExcludeExtensions, DefaultExcludeExtensions)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestLoad_OverridesFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{"log_base": 2, "workers": 3, "skip_revision_scores": true, "exclude_extensions": ["pdf"]}`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LogBase != 2 {
		t.Errorf("LogBase = %v, want 2", cfg.LogBase)
	}
	if cfg.Workers != 3 {
		t.Errorf("Workers = %d, want 3", cfg.Workers)
	}
	if !cfg.SkipRevisionScores {
		t.Error("SkipRevisionScores = false, want true")
	}
	// Extensions extend the defaults
	if got := cfg.ExcludeExtensions[len(cfg.ExcludeExtensions)-1]; got != "pdf" {
		t.Errorf("last ExcludeExtensions = %q, want pdf", got)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{not json}`)

	if _, err := Load(tmpDir); err == nil {
		t.Fatalf("Load() expected error, got nil")
	}
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"log base one", `{"log_base": 1}`, "LogBase"},
		{"negative log base", `{"log_base": -3}`, "LogBase"},
		{"threshold at one", `{"similarity_threshold": 1}`, "SimilarityThreshold"},
		{"high water above 100", `{"memory_high_water": 150}`, "MemoryHighWater"},
		{"unknown level", `{"log_level": "verbose"}`, "LogLevel"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			writeConfig(t, tmpDir, tt.body)

			_, err := Load(tmpDir)
			if err == nil {
				t.Fatal("Load() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q does not name %s", err, tt.field)
			}
		})
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{"workers": 3}`)

	t.Setenv("LINEAGE_WORKERS", "7")
	t.Setenv("LINEAGE_LOG_BASE", "2")
	t.Setenv("LINEAGE_DISABLED_TOOLS", "ownership_analyze,ownership_report")

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Workers != 7 {
		t.Errorf("Workers = %d, want 7", cfg.Workers)
	}
	if cfg.LogBase != 2 {
		t.Errorf("LogBase = %v, want 2", cfg.LogBase)
	}
	if len(cfg.DisabledTools) != 2 || cfg.DisabledTools[1] != "ownership_report" {
		t.Errorf("DisabledTools = %v, want [ownership_analyze ownership_report]", cfg.DisabledTools)
	}
}

func TestLoad_DisabledTools(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{"disabled_tools": ["ownership_analyze", "ownership_report"]}`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.DisabledTools) != 2 {
		t.Fatalf("DisabledTools length = %d, want 2", len(cfg.DisabledTools))
	}
	if cfg.DisabledTools[0] != "ownership_analyze" {
		t.Errorf("DisabledTools[0] = %q, want %q", cfg.DisabledTools[0], "ownership_analyze")
	}
	if cfg.DisabledTools[1] != "ownership_report" {
		t.Errorf("DisabledTools[1] = %q, want %q", cfg.DisabledTools[1], "ownership_report")
	}
}

func TestLoadWithRepo_BothPresent(t *testing.T) {
	globalDir := t.TempDir()
	repoRoot := t.TempDir()

	writeConfig(t, globalDir, `{"workers": 8, "disabled_tools": ["ownership_analyze"]}`)
	writeConfig(t, filepath.Join(repoRoot, ".lineage"), `{"workers": 2, "disabled_tools": ["ownership_report"]}`)

	cfg, err := LoadWithRepo(globalDir, repoRoot)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}

	// Repo overrides scalar
	if cfg.Workers != 2 {
		t.Errorf("Workers = %d, want 2 (repo override)", cfg.Workers)
	}

	// Arrays merged
	if len(cfg.DisabledTools) != 2 {
		t.Errorf("DisabledTools length = %d, want 2", len(cfg.DisabledTools))
	}
}

func TestLoadWithRepo_OnlyGlobal(t *testing.T) {
	globalDir := t.TempDir()
	repoDir := t.TempDir()

	writeConfig(t, globalDir, `{"log_base": 2, "disabled_tools": ["ownership_analyze"]}`)

	cfg, err := LoadWithRepo(globalDir, repoDir)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}

	if cfg.LogBase != 2 {
		t.Errorf("LogBase = %v, want 2", cfg.LogBase)
	}
	if len(cfg.DisabledTools) != 1 || cfg.DisabledTools[0] != "ownership_analyze" {
		t.Errorf("DisabledTools = %v, want [ownership_analyze]", cfg.DisabledTools)
	}
}

func TestLoadWithRepo_NeitherPresent(t *testing.T) {
	cfg, err := LoadWithRepo(t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}

	if cfg.LogBase != 10 {
		t.Errorf("LogBase = %v, want 10", cfg.LogBase)
	}
	if len(cfg.DisabledTools) != 0 {
		t.Errorf("DisabledTools = %v, want empty", cfg.DisabledTools)
	}
}

func TestLoadWithRepo_WalksUpward(t *testing.T) {
	tmpDir := t.TempDir()
	globalDir := t.TempDir()

	writeConfig(t, filepath.Join(tmpDir, ".lineage"), `{"similarity_threshold": 0.75}`)

	subdir := filepath.Join(tmpDir, "subdir")
	if err := os.MkdirAll(subdir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	cfg, err := LoadWithRepo(globalDir, subdir)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if cfg.SimilarityThreshold != 0.75 {
		t.Errorf("SimilarityThreshold = %v, want 0.75", cfg.SimilarityThreshold)
	}
}

func TestMerge_ScalarOverride(t *testing.T) {
	base := &Config{Workers: 4, DBMaxOpenConns: 5, LogLevel: "info"}
	overlay := &Config{Workers: 2, LogLevel: " DEBUG "}

	result := Merge(base, overlay)

	if result.Workers != 2 {
		t.Errorf("Workers = %d, want 2 (overlay)", result.Workers)
	}
	if result.DBMaxOpenConns != 5 {
		t.Errorf("DBMaxOpenConns = %d, want 5 (base, overlay is zero)", result.DBMaxOpenConns)
	}
	if result.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", result.LogLevel)
	}
}

func TestMerge_BooleanOr(t *testing.T) {
	base := &Config{AllowUnsafePaths: true}
	overlay := &Config{SkipRevisionScores: true}

	result := Merge(base, overlay)

	if !result.AllowUnsafePaths {
		t.Error("AllowUnsafePaths should be true (base OR overlay)")
	}
	if !result.SkipRevisionScores {
		t.Error("SkipRevisionScores should be true (base OR overlay)")
	}
}

func TestMerge_ArrayMergeDedup(t *testing.T) {
	base := &Config{ExcludeExtensions: []string{"png", "svg"}}
	overlay := &Config{ExcludeExtensions: []string{" svg ", "pdf", ""}}

	result := Merge(base, overlay)

	want := []string{"png", "svg", "pdf"}
	if len(result.ExcludeExtensions) != len(want) {
		t.Fatalf("ExcludeExtensions = %v, want %v", result.ExcludeExtensions, want)
	}
	for i := range want {
		if result.ExcludeExtensions[i] != want[i] {
			t.Errorf("ExcludeExtensions[%d] = %q, want %q", i, result.ExcludeExtensions[i], want[i])
		}
	}
}

func TestMerge_ExcludeExtensionsNegation(t *testing.T) {
	base := &Config{ExcludeExtensions: []string{"png", "svg", "ogg"}}
	overlay := &Config{ExcludeExtensions: []string{"!SVG", ".pdf", "PNG", "! .ogg", "!wav"}}

	result := Merge(base, overlay)

	want := []string{"png", "pdf"}
	if diff := cmp.Diff(want, result.ExcludeExtensions); diff != "" {
		t.Errorf("ExcludeExtensions mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadWithRepo_ReenablesDefaultExtension(t *testing.T) {
	globalDir := t.TempDir()
	repoRoot := t.TempDir()
	writeConfig(t, filepath.Join(repoRoot, ".lineage"), `{"exclude_extensions": ["!svg", "lock"]}`)

	cfg, err := LoadWithRepo(globalDir, repoRoot)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	for _, ext := range cfg.ExcludeExtensions {
		if ext == "svg" || strings.HasPrefix(ext, "!") {
			t.Errorf("ExcludeExtensions = %v, want svg re-enabled", cfg.ExcludeExtensions)
		}
	}
	if got := cfg.ExcludeExtensions[len(cfg.ExcludeExtensions)-1]; got != "lock" {
		t.Errorf("last ExcludeExtensions = %q, want lock", got)
	}
	if len(cfg.ExcludeExtensions) != len(DefaultExcludeExtensions) {
		t.Errorf("ExcludeExtensions = %v, want defaults minus svg plus lock", cfg.ExcludeExtensions)
	}
}

func TestFindRepoConfig_InParentDir(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, filepath.Join(tmpDir, ".lineage"), `{}`)
	configPath := filepath.Join(tmpDir, ".lineage", "config.json")

	subdir := filepath.Join(tmpDir, "subdir", "deeper")
	if err := os.MkdirAll(subdir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	if found := FindRepoConfig(subdir); found != configPath {
		t.Errorf("FindRepoConfig() = %q, want %q", found, configPath)
	}
	if found := FindRepoConfig(tmpDir); found != configPath {
		t.Errorf("FindRepoConfig() = %q, want %q", found, configPath)
	}
}

func TestFindRepoConfig_NotFound(t *testing.T) {
	if found := FindRepoConfig(t.TempDir()); found != "" {
		t.Errorf("FindRepoConfig() = %q, want empty string", found)
	}
}
