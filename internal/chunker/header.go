package chunker

import "github.com/dgallion1/docstruct/internal/doctree"

// section is the text from one heading line up to the next.
type section struct {
	start, end int
	owner      *string
}

// segmentHeaders opens a chunk at every heading. Short sections merge into
// the following one; a short tail is appended to the last chunk, so the
// chunks always tile the whole text unless the text itself is too short.
func segmentHeaders(text string, idx *index, cfg Config) []doctree.Chunk {
	var sections []section
	start := 0
	var owner *string
	for _, h := range idx.headings {
		if h.offset > start {
			sections = append(sections, section{start: start, end: h.offset, owner: owner})
		}
		title := h.title
		start, owner = h.offset, &title
	}
	if start < len(text) {
		sections = append(sections, section{start: start, end: len(text), owner: owner})
	}

	var (
		chunks  []doctree.Chunk
		pending *section
	)
	for i := range sections {
		s := sections[i]
		if pending == nil {
			pending = &s
		} else {
			pending.end = s.end
			if pending.owner == nil {
				pending.owner = s.owner
			}
		}
		if shortText(text[pending.start:pending.end], cfg.MinChars) {
			continue
		}
		chunks = append(chunks, newChunk(text, pending.start, pending.end, pending.owner))
		pending = nil
	}

	if pending != nil && len(chunks) > 0 {
		last := &chunks[len(chunks)-1]
		last.Metadata.EndOffset = pending.end
		last.Text = text[last.Metadata.StartOffset:pending.end]
	}
	return chunks
}
