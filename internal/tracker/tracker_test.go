package tracker

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
)

func repeat(rev, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = rev
	}
	return out
}

func TestNew_AttributesEverythingToFirstRevision(t *testing.T) {
	tr := New("ab\ncd\n", "U1")

	if tr.Revision() != 1 {
		t.Fatalf("Revision() = %d, want 1", tr.Revision())
	}
	if diff := cmp.Diff(repeat(1, 6), tr.Origins()); diff != "" {
		t.Errorf("Origins() mismatch (-want +got):\n%s", diff)
	}
	author, ok := tr.Author(1)
	if !ok || author != "U1" {
		t.Errorf("Author(1) = %q, %v; want U1, true", author, ok)
	}
	if _, ok := tr.Author(2); ok {
		t.Error("Author(2) ok = true, want false")
	}
}

func TestUpdate_ReplacedLine(t *testing.T) {
	tr := New("ab\ncd\n", "U1")
	if err := tr.Update("ab\nXY\n", "U2"); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	want := []int{1, 1, 1, 2, 2, 2}
	if diff := cmp.Diff(want, tr.Origins()); diff != "" {
		t.Errorf("Origins() mismatch (-want +got):\n%s", diff)
	}

	own, err := tr.Ownership(DefaultLogBase)
	if err != nil {
		t.Fatalf("Ownership() error = %v", err)
	}
	if diff := cmp.Diff(map[string]int{"U1": 3, "U2": 3}, own.Counts); diff != "" {
		t.Errorf("Counts mismatch (-want +got):\n%s", diff)
	}
	// U1: 3 chars * persistence 2 = 6, log10(7) = 0.845
	// U2: 3 chars * persistence 1 = 3, log10(4) = 0.602
	if diff := cmp.Diff(map[string]float64{"U1": 0.85, "U2": 0.6}, own.Scores); diff != "" {
		t.Errorf("Scores mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdate_RenameThenAddLine(t *testing.T) {
	rev1 := "func add(a, b int) int {\n\treturn a + b\n}\n"
	rev2 := "func add(x, b int) int {\n\treturn x + b\n}\n"
	header := "// add returns the sum.\n"
	rev3 := header + rev2

	tr := New(rev1, "U1")
	if err := tr.Update(rev2, "U2"); err != nil {
		t.Fatalf("Update(rev2) error = %v", err)
	}

	renamed := map[int]bool{
		strings.Index(rev2, "x,"):  true,
		strings.Index(rev2, "x +"): true,
	}
	for i, rev := range tr.Origins() {
		want := 1
		if renamed[i] {
			want = 2
		}
		if rev != want {
			t.Errorf("rev2 origin[%d] (%q) = %d, want %d", i, rev2[i], rev, want)
		}
	}

	if err := tr.Update(rev3, "U3"); err != nil {
		t.Fatalf("Update(rev3) error = %v", err)
	}
	if tr.Revision() != 3 {
		t.Fatalf("Revision() = %d, want 3", tr.Revision())
	}
	for i, rev := range tr.Origins() {
		want := 1
		switch {
		case i < len(header):
			want = 3
		case renamed[i-len(header)]:
			want = 2
		}
		if rev != want {
			t.Errorf("rev3 origin[%d] (%q) = %d, want %d", i, rev3[i], rev, want)
		}
	}
}

func TestOwnership_OlderCharactersScoreHigher(t *testing.T) {
	tr := New("ab = 1\n", "U1")
	if err := tr.Update("cd = 1\n", "U2"); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err := tr.Update("cd = 1\ne\n", "U3"); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	own, err := tr.Ownership(DefaultLogBase)
	if err != nil {
		t.Fatalf("Ownership() error = %v", err)
	}
	if diff := cmp.Diff(map[string]int{"U1": 5, "U2": 2, "U3": 2}, own.Counts); diff != "" {
		t.Fatalf("Counts mismatch (-want +got):\n%s", diff)
	}
	// U2 and U3 survive with the same count; U2's characters are older.
	if !(own.Scores["U1"] > own.Scores["U2"]) {
		t.Errorf("score U1 %.2f <= U2 %.2f", own.Scores["U1"], own.Scores["U2"])
	}
	if !(own.Scores["U2"] > own.Scores["U3"]) {
		t.Errorf("score U2 %.2f <= U3 %.2f", own.Scores["U2"], own.Scores["U3"])
	}
	if diff := cmp.Diff(map[string]float64{"U1": 1.2, "U2": 0.7, "U3": 0.48}, own.Scores); diff != "" {
		t.Errorf("Scores mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdate_IdentityKeepsOrigins(t *testing.T) {
	tests := []struct {
		name   string
		author string
	}{
		{name: "same author", author: "U2"},
		{name: "different author", author: "U3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := New("a\nb\n", "U1")
			text := "a\nb\na\nc\n"
			if err := tr.Update(text, "U2"); err != nil {
				t.Fatalf("Update() error = %v", err)
			}
			before := tr.Origins()
			ownBefore, _ := tr.Ownership(DefaultLogBase)

			if err := tr.Update(text, tt.author); err != nil {
				t.Fatalf("Update() error = %v", err)
			}
			if diff := cmp.Diff(before, tr.Origins()); diff != "" {
				t.Errorf("Origins() changed (-before +after):\n%s", diff)
			}
			ownAfter, _ := tr.Ownership(DefaultLogBase)
			if diff := cmp.Diff(ownBefore.Counts, ownAfter.Counts); diff != "" {
				t.Errorf("Counts changed (-before +after):\n%s", diff)
			}
			if ownAfter.Counts["U3"] != 0 {
				t.Errorf("Counts[U3] = %d, want 0", ownAfter.Counts["U3"])
			}
		})
	}
}

func TestUpdate_FullReplacement(t *testing.T) {
	tr := New("package main\nfunc main() {}\n", "U1")
	text := "# Title\n\nSome prose.\n"
	if err := tr.Update(text, "U2"); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if diff := cmp.Diff(repeat(2, len(text)), tr.Origins()); diff != "" {
		t.Errorf("Origins() mismatch (-want +got):\n%s", diff)
	}
	own, err := tr.Ownership(DefaultLogBase)
	if err != nil {
		t.Fatalf("Ownership() error = %v", err)
	}
	if own.Counts["U1"] != 0 {
		t.Errorf("Counts[U1] = %d, want 0", own.Counts["U1"])
	}
	if own.Counts["U2"] != len(text) {
		t.Errorf("Counts[U2] = %d, want %d", own.Counts["U2"], len(text))
	}
}

func TestUpdate_MovedLinesKeepOrigin(t *testing.T) {
	tr := New("a1\n", "U1")
	if err := tr.Update("a1\nb2\n", "U2"); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err := tr.Update("b2\na1\n", "U3"); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	want := []int{2, 2, 2, 1, 1, 1}
	if diff := cmp.Diff(want, tr.Origins()); diff != "" {
		t.Errorf("Origins() mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdate_EmptyRevisions(t *testing.T) {
	tr := New("", "U1")
	if len(tr.Origins()) != 0 {
		t.Fatalf("Origins() = %v, want empty", tr.Origins())
	}

	if err := tr.Update("", "U2"); err != nil {
		t.Fatalf("Update(empty) error = %v", err)
	}
	if err := tr.Update("hello\n", "U3"); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if diff := cmp.Diff(repeat(3, 6), tr.Origins()); diff != "" {
		t.Errorf("Origins() mismatch (-want +got):\n%s", diff)
	}

	if err := tr.Update("", "U4"); err != nil {
		t.Fatalf("Update(empty) error = %v", err)
	}
	own, err := tr.Ownership(DefaultLogBase)
	if err != nil {
		t.Fatalf("Ownership() error = %v", err)
	}
	if len(own.Counts) != 0 || len(own.Scores) != 0 {
		t.Errorf("Ownership() = %+v, want empty maps", own)
	}
	if own.Revision != 4 {
		t.Errorf("Revision = %d, want 4", own.Revision)
	}
}

func TestUpdate_EmptyAuthorAccepted(t *testing.T) {
	tr := New("x\n", "")
	if err := tr.Update("x\ny\n", ""); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	own, err := tr.Ownership(DefaultLogBase)
	if err != nil {
		t.Fatalf("Ownership() error = %v", err)
	}
	if own.Counts[""] != 4 {
		t.Errorf("Counts[\"\"] = %d, want 4", own.Counts[""])
	}
}

func TestUpdate_NotInitialized(t *testing.T) {
	var zero Tracker
	if err := zero.Update("a", "U1"); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("zero Tracker Update() error = %v, want ErrNotInitialized", err)
	}

	var nilTracker *Tracker
	if err := nilTracker.Update("a", "U1"); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("nil Tracker Update() error = %v, want ErrNotInitialized", err)
	}
	if _, err := nilTracker.Ownership(DefaultLogBase); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("nil Tracker Ownership() error = %v, want ErrNotInitialized", err)
	}
	if nilTracker.Revision() != 0 {
		t.Errorf("nil Tracker Revision() = %d, want 0", nilTracker.Revision())
	}
}

func TestUpdate_InvariantsHoldAcrossHistory(t *testing.T) {
	revisions := []struct {
		text   string
		author string
	}{
		{"héllo wörld\nsecond line\n", "ana"},
		{"héllo wörld\nsecond line\nthird\n", "ben"},
		{"héllo, wörld!\nsecond line\nthird\n", "ana"},
		{"intro\nhéllo, wörld!\nthird\nsecond line\n", "cleo"},
		{"intro\nhéllo, wörld!\nthird\nsecond line", "ben"},
		{"", "dev"},
		{"fresh start\r\nwith crlf\r\n", "ana"},
		{"fresh start\r\nwith CRLF endings\r\n", "cleo"},
	}

	tr := New(revisions[0].text, revisions[0].author)
	for i, rev := range revisions[1:] {
		prevRevision := tr.Revision()
		if err := tr.Update(rev.text, rev.author); err != nil {
			t.Fatalf("Update(%d) error = %v", i+2, err)
		}

		if tr.Revision() != prevRevision+1 {
			t.Errorf("Revision() = %d, want %d", tr.Revision(), prevRevision+1)
		}
		chars := utf8.RuneCountInString(rev.text)
		if len(tr.Origins()) != chars {
			t.Errorf("revision %d: len(Origins()) = %d, want %d", tr.Revision(), len(tr.Origins()), chars)
		}
		for j, origin := range tr.Origins() {
			if origin < 1 || origin > tr.Revision() {
				t.Errorf("revision %d: origin[%d] = %d out of range", tr.Revision(), j, origin)
			}
		}

		own, err := tr.Ownership(DefaultLogBase)
		if err != nil {
			t.Fatalf("Ownership() error = %v", err)
		}
		if own.Total() != chars {
			t.Errorf("revision %d: sum(Counts) = %d, want %d", tr.Revision(), own.Total(), chars)
		}
		for author := range own.Counts {
			if _, ok := own.Scores[author]; !ok {
				t.Errorf("revision %d: author %q has a count but no score", tr.Revision(), author)
			}
		}
		if tr.Text() != rev.text {
			t.Errorf("Text() = %q, want %q", tr.Text(), rev.text)
		}
	}
}

func TestSpans(t *testing.T) {
	tr := New("ab\ncd\n", "U1")
	if err := tr.Update("ab\nXY\n", "U2"); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	want := []Span{
		{Start: 0, Text: "ab\n", Revision: 1, Author: "U1"},
		{Start: 3, Text: "XY\n", Revision: 2, Author: "U2"},
	}
	if diff := cmp.Diff(want, tr.Spans()); diff != "" {
		t.Errorf("Spans() mismatch (-want +got):\n%s", diff)
	}

	if spans := New("", "U1").Spans(); len(spans) != 0 {
		t.Errorf("Spans() on empty text = %v, want none", spans)
	}
}

func TestWithThreshold(t *testing.T) {
	// "cd = 1\n" vs "ab = 1\n" has ratio 0.71: kept at the default threshold,
	// rejected at 0.8.
	strict := New("ab = 1\n", "U1", WithThreshold(0.8))
	if err := strict.Update("cd = 1\n", "U2"); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if diff := cmp.Diff(repeat(2, 7), strict.Origins()); diff != "" {
		t.Errorf("strict Origins() mismatch (-want +got):\n%s", diff)
	}

	ignored := New("x", "U1", WithThreshold(1.5))
	if ignored.Threshold() != DefaultThreshold {
		t.Errorf("Threshold() = %v, want default %v", ignored.Threshold(), DefaultThreshold)
	}
}
