package tracker

import (
	"math"
	"sort"
)

// DefaultLogBase is the logarithm base used to compress persistence sums.
const DefaultLogBase = 10.0

// Ownership is a snapshot of who owns the current revision.
type Ownership struct {
	// Revision is the revision the snapshot was taken at.
	Revision int `json:"revision"`

	// Counts is the number of surviving characters each author introduced.
	Counts map[string]int `json:"counts"`

	// Scores is round(log_base(sum of persistence + 1), 2) per author, where a
	// character's persistence is revision + 1 - origin.
	Scores map[string]float64 `json:"scores"`
}

// Ownership aggregates the current origins per author. Both maps always carry
// the same authors.
func (t *Tracker) Ownership(logBase float64) (*Ownership, error) {
	if t == nil || t.cur == nil {
		return nil, ErrNotInitialized
	}
	if !(logBase > 0) || logBase == 1 || math.IsInf(logBase, 0) {
		return nil, ErrInvalidLogBase
	}

	s := t.cur
	counts := make(map[int]int)
	persistence := make(map[int]int)
	for _, rev := range s.origin {
		counts[rev]++
		persistence[rev] += s.revision + 1 - rev
	}

	out := &Ownership{
		Revision: s.revision,
		Counts:   make(map[string]int),
		Scores:   make(map[string]float64),
	}
	sums := make(map[string]int)
	for rev, n := range counts {
		author := s.authors[rev-1]
		out.Counts[author] += n
		sums[author] += persistence[rev]
	}
	for author, sum := range sums {
		out.Scores[author] = round2(math.Log(float64(sum)+1) / math.Log(logBase))
	}
	return out, nil
}

// Authors returns the snapshot's authors ordered by surviving characters,
// most first, then by name.
func (o *Ownership) Authors() []string {
	if o == nil {
		return nil
	}
	authors := make([]string, 0, len(o.Counts))
	for author := range o.Counts {
		authors = append(authors, author)
	}
	sort.Slice(authors, func(i, j int) bool {
		ci, cj := o.Counts[authors[i]], o.Counts[authors[j]]
		if ci != cj {
			return ci > cj
		}
		return authors[i] < authors[j]
	})
	return authors
}

// Total returns the number of characters in the snapshot.
func (o *Ownership) Total() int {
	if o == nil {
		return 0
	}
	total := 0
	for _, n := range o.Counts {
		total += n
	}
	return total
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
