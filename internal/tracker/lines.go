package tracker

// isLineBreak reports whether r terminates a line. The set mirrors the
// universal-newline terminators: \n, \r, \v, \f, file/group/record
// separators, NEL, and the Unicode line and paragraph separators.
func isLineBreak(r rune) bool {
	switch r {
	case '\n', '\r', '\v', '\f', 0x1c, 0x1d, 0x1e, 0x85, 0x2028, 0x2029:
		return true
	}
	return false
}

// splitLines splits text into lines, keeping each line's terminator.
// "\r\n" counts as a single terminator. The returned slices alias text.
func splitLines(text []rune) [][]rune {
	var lines [][]rune
	start := 0
	for i := 0; i < len(text); i++ {
		if !isLineBreak(text[i]) {
			continue
		}
		if text[i] == '\r' && i+1 < len(text) && text[i+1] == '\n' {
			i++
		}
		lines = append(lines, text[start:i+1])
		start = i + 1
	}
	if start < len(text) {
		lines = append(lines, text[start:])
	}
	return lines
}

// lineOffsets returns the absolute start offset of every line.
func lineOffsets(lines [][]rune) []int {
	offsets := make([]int, len(lines))
	total := 0
	for i, line := range lines {
		offsets[i] = total
		total += len(line)
	}
	return offsets
}

// runeStrings converts a line into one string per rune, the element form the
// sequence matcher compares.
func runeStrings(line []rune) []string {
	out := make([]string, len(line))
	for i, r := range line {
		out[i] = string(r)
	}
	return out
}

// LineCount returns the number of lines in text, counted the way revisions
// are split for matching.
func LineCount(text string) int {
	return len(splitLines([]rune(text)))
}
