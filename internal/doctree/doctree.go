package doctree

import "strings"

// NodeKind distinguishes headings from body blocks.
type NodeKind int

const (
	Paragraph NodeKind = iota
	Heading
	// Verbatim is a block of markup (a list, a code block, a pipe table)
	// copied into the stream without escaping.
	Verbatim
)

func (k NodeKind) String() string {
	switch k {
	case Heading:
		return "heading"
	case Verbatim:
		return "verbatim"
	default:
		return "paragraph"
	}
}

// Node is one rendered block, in document reading order.
type Node struct {
	Kind  NodeKind `json:"kind"`
	Level int      `json:"level,omitempty"` // 1-based for headings, 0 for paragraphs
	Text  string   `json:"text"`
	Page  int      `json:"page"` // 0-based source page, 0 if N/A
}

// Markdown renders nodes as the structured text stream consumed by the
// normalizer, table stripper and chunker. A heading sits on its own line
// directly after the previous block; paragraphs are separated by a blank line.
func Markdown(nodes []Node) string {
	var sb strings.Builder
	prevHeading := false
	for _, n := range nodes {
		text := strings.TrimSpace(n.Text)
		if text == "" {
			continue
		}
		if sb.Len() > 0 {
			if n.Kind == Heading || prevHeading {
				sb.WriteString("\n")
			} else {
				sb.WriteString("\n\n")
			}
		}
		switch n.Kind {
		case Verbatim:
			sb.WriteString(strings.Trim(n.Text, "\n"))
			prevHeading = false
		case Heading:
			level := min(max(n.Level, 1), 6)
			sb.WriteString(strings.Repeat("#", level))
			sb.WriteString(" ")
			sb.WriteString(strings.Join(strings.Fields(text), " "))
			prevHeading = true
		default:
			sb.WriteString(escapeParagraph(text))
			prevHeading = false
		}
	}
	return sb.String()
}

// escapeParagraph keeps body lines from being read back as headings or
// code fences.
func escapeParagraph(text string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		trimmed := strings.TrimLeft(l, " \t")
		if strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			lines[i] = `\` + trimmed
		}
	}
	return strings.Join(lines, "\n")
}

// Chunk is a contiguous slice of the structured text, ready for indexing.
type Chunk struct {
	Text     string        `json:"text"`
	Metadata ChunkMetadata `json:"metadata"`
}

// ChunkMetadata carries provenance for a chunk. Offsets are byte offsets
// into the table-stripped structured text (end exclusive); lines are 0-based
// and inclusive.
type ChunkMetadata struct {
	OwningHeading    *string `json:"owning_heading"`
	SourceDocumentID string  `json:"source_document_id"`
	ChunkIndex       int     `json:"chunk_index"`
	StartOffset      int     `json:"start_offset"`
	EndOffset        int     `json:"end_offset"`
	StartLine        int     `json:"start_line"`
	EndLine          int     `json:"end_line"`
	Overlap          int     `json:"overlap,omitempty"` // units shared with the previous window
	Units            int     `json:"units,omitempty"`
	TokenEstimate    int     `json:"token_estimate"`
	Mode             string  `json:"chunk_mode"`
}

// Heading returns the owning heading or "".
func (m ChunkMetadata) Heading() string {
	if m.OwningHeading == nil {
		return ""
	}
	return *m.OwningHeading
}
