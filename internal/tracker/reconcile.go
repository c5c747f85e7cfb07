package tracker

// advance builds the state that follows s when text is submitted by author.
// matches must be sorted by New. Gaps between matches, and any remainder after
// the last one, are attributed to the new revision; matched spans copy their
// origin from s.
func (s *state) advance(text []rune, author string, matches []Match) (*state, error) {
	revision := s.revision + 1
	origin := make([]int, 0, len(text))

	cursor := 0
	for _, m := range matches {
		if m.New < cursor {
			return nil, invariantf(revision, "match at %d overlaps cursor %d", m.New, cursor)
		}
		if m.Length <= 0 || m.Original < 0 || m.Original+m.Length > len(s.origin) {
			return nil, invariantf(revision, "match %+v outside previous revision of %d chars", m, len(s.origin))
		}
		for ; cursor < m.New; cursor++ {
			origin = append(origin, revision)
		}
		origin = append(origin, s.origin[m.Original:m.Original+m.Length]...)
		cursor += m.Length
	}
	for ; cursor < len(text); cursor++ {
		origin = append(origin, revision)
	}

	if len(origin) != len(text) {
		return nil, invariantf(revision, "origin length %d != text length %d", len(origin), len(text))
	}

	authors := make([]string, len(s.authors), len(s.authors)+1)
	copy(authors, s.authors)
	authors = append(authors, author)

	return &state{
		text:     text,
		origin:   origin,
		revision: revision,
		authors:  authors,
	}, nil
}
