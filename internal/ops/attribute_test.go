package ops

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hpungsan/lineage/internal/errors"
)

func TestAttribute_AtEarlierHead(t *testing.T) {
	r, hashes := sampleRepo(t)

	out, err := Attribute(context.Background(), testConfig(), AttributeInput{RepoPath: r.dir, File: "a.txt", Head: hashes[0]})
	if err != nil {
		t.Fatalf("Attribute failed: %v", err)
	}
	if out.Head != hashes[0] || out.Revision != 1 || out.Text != "ab\ncd\n" {
		t.Errorf("got head %s revision %d text %q", out.Head, out.Revision, out.Text)
	}
	if diff := cmp.Diff([]string{"U1"}, out.Authors); diff != "" {
		t.Errorf("Authors mismatch (-want +got):\n%s", diff)
	}
}

func TestAttribute_Revisions(t *testing.T) {
	r, hashes := sampleRepo(t)

	out, err := Attribute(context.Background(), testConfig(), AttributeInput{RepoPath: r.dir, File: "a.txt"})
	if err != nil {
		t.Fatalf("Attribute failed: %v", err)
	}
	if len(out.Revisions) != 2 {
		t.Fatalf("Revisions = %d, want 2", len(out.Revisions))
	}
	for i, rev := range out.Revisions {
		if rev.Revision != i+1 || rev.Hash != hashes[i] || rev.Path != "a.txt" {
			t.Errorf("Revisions[%d] = %+v", i, rev)
		}
	}
	if diff := cmp.Diff(map[string]float64{"U1": 0.85, "U2": 0.6}, out.Scores); diff != "" {
		t.Errorf("Scores mismatch (-want +got):\n%s", diff)
	}
	if out.Chars != 6 || out.Threshold != testConfig().SimilarityThreshold {
		t.Errorf("Chars = %d, Threshold = %v; want 6, %v", out.Chars, out.Threshold, testConfig().SimilarityThreshold)
	}
}

func TestAttribute_RenamedFile(t *testing.T) {
	r := newGitRepo(t)
	r.write("notes/draft.md", "first line\nsecond line\nthird line\nfourth line\n")
	first := r.commit("alice")
	r.remove("notes/draft.md")
	r.write("README.md", "first line\nsecond line\nthird line\nfourth line\nfifth line\n")
	r.commit("bob")

	out, err := Attribute(context.Background(), testConfig(), AttributeInput{RepoPath: r.dir, File: "README.md"})
	if err != nil {
		t.Fatalf("Attribute failed: %v", err)
	}
	if len(out.Revisions) != 2 || out.Revisions[0].Hash != first || out.Revisions[0].Path != "notes/draft.md" {
		t.Fatalf("Revisions = %+v, want the draft commit first", out.Revisions)
	}
	if diff := cmp.Diff(map[string]int{"alice": 46, "bob": 11}, out.Counts); diff != "" {
		t.Errorf("Counts mismatch (-want +got):\n%s", diff)
	}
}

func TestAttribute_Errors(t *testing.T) {
	r, _ := sampleRepo(t)

	tests := []struct {
		name  string
		input AttributeInput
		code  errors.ErrorCode
	}{
		{"missing file", AttributeInput{RepoPath: r.dir}, errors.ErrInvalidRequest},
		{"untracked file", AttributeInput{RepoPath: r.dir, File: "nope.txt"}, errors.ErrNotFound},
		{"not a repository", AttributeInput{RepoPath: t.TempDir(), File: "a.txt"}, errors.ErrRepositoryUnavailable},
		{"bad head", AttributeInput{RepoPath: r.dir, File: "a.txt", Head: "zzz"}, errors.ErrRepositoryUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Attribute(context.Background(), testConfig(), tc.input)
			if !errors.Is(err, tc.code) {
				t.Errorf("expected %s, got: %v", tc.code, err)
			}
		})
	}
}
