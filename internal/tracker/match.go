package tracker

import (
	"sort"

	"github.com/pmezard/go-difflib/difflib"
)

// DefaultThreshold is the minimum similarity ratio two non-identical lines
// must exceed to be treated as the same line across revisions.
const DefaultThreshold = 0.6

// Match is a span of Length characters that starts at Original in the
// previous revision and at New in the next one, and is considered the same
// characters in both.
type Match struct {
	Original int
	New      int
	Length   int
}

// candidate is a scored pairing of a previous line with a next line.
type candidate struct {
	prev   int
	next   int
	ratio  float64
	blocks []difflib.Match
}

// matchLines computes the confirmed character matches between two texts.
//
// Identical lines are paired first through a multiset lookup. Every previous
// line left without an identical partner is aligned against each unclaimed
// next line, and the scored pairs are then accepted greedily from the highest
// ratio down, each accepted pair retiring both of its lines. Pairs at or below
// threshold are never accepted. Ties go to the lowest previous-line index,
// then the lowest next-line index.
func matchLines(prev, next []rune, threshold float64) []Match {
	prevLines := splitLines(prev)
	nextLines := splitLines(next)
	prevStarts := lineOffsets(prevLines)
	nextStarts := lineOffsets(nextLines)

	// Unclaimed next-line indices keyed by content, in ascending order.
	available := make(map[string][]int, len(nextLines))
	for j, line := range nextLines {
		key := string(line)
		available[key] = append(available[key], j)
	}
	claimed := make([]bool, len(nextLines))

	matchers := make([]*difflib.SequenceMatcher, len(nextLines))
	matcherFor := func(j int) *difflib.SequenceMatcher {
		if matchers[j] == nil {
			matchers[j] = difflib.NewMatcherWithJunk(nil, runeStrings(nextLines[j]), false, nil)
		}
		return matchers[j]
	}

	var candidates []candidate
	for i, line := range prevLines {
		key := string(line)
		if queue := available[key]; len(queue) > 0 {
			j := queue[0]
			available[key] = queue[1:]
			claimed[j] = true
			candidates = append(candidates, candidate{
				prev:   i,
				next:   j,
				ratio:  1.0,
				blocks: []difflib.Match{{A: 0, B: 0, Size: len(line)}},
			})
			continue
		}

		seq := runeStrings(line)
		for j := range nextLines {
			if claimed[j] {
				continue
			}
			m := matcherFor(j)
			m.SetSeq1(seq)
			ratio := m.Ratio()
			if ratio <= threshold {
				continue
			}
			candidates = append(candidates, candidate{
				prev:   i,
				next:   j,
				ratio:  ratio,
				blocks: m.GetMatchingBlocks(),
			})
		}
	}

	// Candidates were appended in (prev, next) order, so a stable sort on
	// ratio keeps the tie-break.
	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].ratio > candidates[b].ratio
	})

	prevDone := make([]bool, len(prevLines))
	nextDone := make([]bool, len(nextLines))
	var matches []Match
	for _, c := range candidates {
		if prevDone[c.prev] || nextDone[c.next] {
			continue
		}
		prevDone[c.prev] = true
		nextDone[c.next] = true
		for _, b := range c.blocks {
			if b.Size == 0 {
				continue
			}
			matches = append(matches, Match{
				Original: prevStarts[c.prev] + b.A,
				New:      nextStarts[c.next] + b.B,
				Length:   b.Size,
			})
		}
	}

	sort.Slice(matches, func(a, b int) bool {
		return matches[a].New < matches[b].New
	})
	return matches
}
