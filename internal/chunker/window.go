package chunker

import (
	"regexp"

	"github.com/dgallion1/docstruct/internal/doctree"
)

// unitRe matches one word with its trailing whitespace.
var unitRe = regexp.MustCompile(`\S+\s*`)

// Units splits text into words, each carrying its trailing whitespace.
// Leading whitespace belongs to the first unit, so the units tile the text.
func Units(text string) [][2]int {
	locs := unitRe.FindAllStringIndex(text, -1)
	out := make([][2]int, len(locs))
	for i, l := range locs {
		out[i] = [2]int{l[0], l[1]}
	}
	if len(out) > 0 {
		out[0][0] = 0
	}
	return out
}

// segmentWindows emits windows of cfg.Size units starting every
// Size-Overlap units; the last window may be shorter. A text shorter than
// cfg.MinChars yields no windows. A short final window that adds units past
// the previous one is folded into it, so the windows always cover the text.
func segmentWindows(text string, idx *index, cfg Config) []doctree.Chunk {
	if shortText(text, cfg.MinChars) {
		return nil
	}
	units := Units(text)
	n := len(units)
	step := cfg.Size - cfg.Overlap

	var chunks []doctree.Chunk
	prevEnd := 0 // unit index one past the previous window
	for start := 0; start < n; start += step {
		end := min(start+cfg.Size, n)
		from, to := units[start][0], units[end-1][1]
		if end == n && end > prevEnd && len(chunks) > 0 && shortText(text[from:to], cfg.MinChars) {
			last := &chunks[len(chunks)-1]
			last.Metadata.EndOffset = to
			last.Metadata.Units += end - prevEnd
			last.Text = text[last.Metadata.StartOffset:to]
			break
		}
		c := newChunk(text, from, to, idx.headingAt(from))
		c.Metadata.Units = end - start
		if start > 0 {
			c.Metadata.Overlap = min(prevEnd, end) - start
		}
		chunks = append(chunks, c)
		prevEnd = end
	}
	return chunks
}
