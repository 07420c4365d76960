// Package tables removes pipe-delimited tables from structured text.
package tables

import "strings"

// Strip removes every table (a header row, a separator row and at least one
// data row, all containing '|') and returns the remaining text with the
// number of tables removed. Lines outside tables are kept byte for byte.
func Strip(text string) (string, int) {
	lines := strings.SplitAfter(text, "\n")
	var sb strings.Builder
	sb.Grow(len(text))
	removed := 0

	for i := 0; i < len(lines); {
		if end := tableEnd(lines, i); end > i {
			removed++
			i = end
			continue
		}
		sb.WriteString(lines[i])
		i++
	}
	out := sb.String()
	if removed > 0 && !strings.HasSuffix(text, "\n") {
		// The last kept line may now end with the newline that separated it
		// from a removed trailing table.
		out = strings.TrimSuffix(out, "\n")
	}
	return out, removed
}

// tableEnd returns the index just past a table starting at lines[i], or i
// when no table starts there.
func tableEnd(lines []string, i int) int {
	if i+2 >= len(lines) {
		return i
	}
	if !strings.Contains(lines[i], "|") || !isSeparator(lines[i+1]) || !strings.Contains(lines[i+2], "|") {
		return i
	}
	end := i + 3
	for end < len(lines) && strings.Contains(lines[end], "|") {
		end++
	}
	return end
}

// isSeparator matches rows such as "|---|:--:|" or "--- | ---".
func isSeparator(line string) bool {
	line = strings.TrimRight(line, "\r\n")
	if !strings.Contains(line, "|") || !strings.Contains(line, "-") {
		return false
	}
	for _, r := range line {
		switch r {
		case '|', '-', ':', ' ', '\t':
		default:
			return false
		}
	}
	return true
}
