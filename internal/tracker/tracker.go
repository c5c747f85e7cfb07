// Package tracker attributes every character of an evolving text to the
// revision that first introduced it, and summarizes the surviving characters
// per author.
package tracker

// state is one accepted revision. It is never mutated after it becomes the
// Tracker's current state.
type state struct {
	text     []rune
	origin   []int    // origin[i] is the revision that introduced text[i]
	revision int      // starts at 1
	authors  []string // authors[r-1] submitted revision r
}

// Tracker follows one artifact through its revisions, oldest first.
//
// A Tracker is not safe for concurrent use. Callers processing many
// artifacts in parallel use one Tracker per artifact.
type Tracker struct {
	cur       *state
	threshold float64
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithThreshold sets the similarity ratio a changed line must exceed to keep
// its characters' origins. Values outside [0, 1) are ignored.
func WithThreshold(threshold float64) Option {
	return func(t *Tracker) {
		if threshold >= 0 && threshold < 1 {
			t.threshold = threshold
		}
	}
}

// New starts tracking an artifact from its first revision. Every character is
// attributed to revision 1 and author.
func New(text, author string, opts ...Option) *Tracker {
	t := &Tracker{threshold: DefaultThreshold}
	for _, opt := range opts {
		opt(t)
	}

	runes := []rune(text)
	origin := make([]int, len(runes))
	for i := range origin {
		origin[i] = 1
	}
	t.cur = &state{
		text:     runes,
		origin:   origin,
		revision: 1,
		authors:  []string{author},
	}
	return t
}

// Update accepts the full text of the next revision submitted by author.
// Characters matched to the previous revision keep their origin; everything
// else is attributed to the new revision. On error the current revision is
// left unchanged.
func (t *Tracker) Update(text, author string) error {
	if t == nil || t.cur == nil {
		return ErrNotInitialized
	}

	runes := []rune(text)
	matches := matchLines(t.cur.text, runes, t.threshold)
	next, err := t.cur.advance(runes, author, matches)
	if err != nil {
		return err
	}
	t.cur = next
	return nil
}

// Revision returns the current revision number, or 0 before New.
func (t *Tracker) Revision() int {
	if t == nil || t.cur == nil {
		return 0
	}
	return t.cur.revision
}

// Threshold returns the line similarity threshold in use.
func (t *Tracker) Threshold() float64 {
	if t == nil {
		return DefaultThreshold
	}
	return t.threshold
}

// Text returns the text of the current revision.
func (t *Tracker) Text() string {
	if t == nil || t.cur == nil {
		return ""
	}
	return string(t.cur.text)
}

// Origins returns a copy of the per-character origin revisions.
func (t *Tracker) Origins() []int {
	if t == nil || t.cur == nil {
		return nil
	}
	out := make([]int, len(t.cur.origin))
	copy(out, t.cur.origin)
	return out
}

// Author returns the author that submitted revision rev.
func (t *Tracker) Author(rev int) (string, bool) {
	if t == nil || t.cur == nil || rev < 1 || rev > len(t.cur.authors) {
		return "", false
	}
	return t.cur.authors[rev-1], true
}

// Span is a maximal run of consecutive characters sharing one origin.
type Span struct {
	Start    int    `json:"start"`
	Text     string `json:"text"`
	Revision int    `json:"revision"`
	Author   string `json:"author"`
}

// Spans partitions the current text into runs of equal origin.
func (t *Tracker) Spans() []Span {
	if t == nil || t.cur == nil {
		return nil
	}
	s := t.cur
	var spans []Span
	start := 0
	for i := 1; i <= len(s.text); i++ {
		if i < len(s.text) && s.origin[i] == s.origin[start] {
			continue
		}
		rev := s.origin[start]
		spans = append(spans, Span{
			Start:    start,
			Text:     string(s.text[start:i]),
			Revision: rev,
			Author:   s.authors[rev-1],
		})
		start = i
	}
	return spans
}
