// Package chunker cuts structured text into bounded, provenance-tagged
// chunks for retrieval.
package chunker

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dgallion1/docstruct/internal/doctree"
	"github.com/dgallion1/docstruct/internal/hierarchy"
)

// ErrInvalidConfig is returned by Config.Validate and Segment.
var ErrInvalidConfig = errors.New("invalid chunk configuration")

// Mode selects the segmentation strategy.
type Mode string

const (
	// ModeHeader starts a new chunk at every heading line.
	ModeHeader Mode = "header"
	// ModeFixedWindow emits windows of Size words overlapping by Overlap.
	ModeFixedWindow Mode = "fixed_window"
)

// ParseMode accepts the mode names used by the API.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "header", "headers":
		return ModeHeader, nil
	case "fixed_window", "fixed-window", "fixed", "window":
		return ModeFixedWindow, nil
	}
	return "", fmt.Errorf("%w: unknown chunk mode %q", ErrInvalidConfig, s)
}

// Config controls chunking behavior.
type Config struct {
	Mode     Mode
	Size     int // window size in words
	Overlap  int // words shared by consecutive windows
	MinChars int // chunks with less trimmed text are merged or dropped
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Mode:     ModeHeader,
		Size:     1024,
		Overlap:  128,
		MinChars: 30,
	}
}

// Validate rejects configurations that cannot make progress. Size and
// Overlap only apply to fixed windows.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeHeader:
	case ModeFixedWindow:
		if c.Size <= 0 {
			return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, c.Size)
		}
		if c.Overlap < 0 {
			return fmt.Errorf("%w: overlap must not be negative, got %d", ErrInvalidConfig, c.Overlap)
		}
		if c.Overlap >= c.Size {
			return fmt.Errorf("%w: overlap %d must be less than chunk size %d", ErrInvalidConfig, c.Overlap, c.Size)
		}
	default:
		return fmt.Errorf("%w: unknown chunk mode %q", ErrInvalidConfig, c.Mode)
	}
	if c.MinChars < 0 {
		return fmt.Errorf("%w: minimum chunk length must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Segment splits text into chunks. Chunk text is always an exact slice of
// text: Chunk.Text == text[StartOffset:EndOffset].
func Segment(text, docID string, cfg Config) ([]doctree.Chunk, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	idx := newIndex(text)
	var chunks []doctree.Chunk
	switch cfg.Mode {
	case ModeHeader:
		chunks = segmentHeaders(text, idx, cfg)
	case ModeFixedWindow:
		chunks = segmentWindows(text, idx, cfg)
	}
	for i := range chunks {
		m := &chunks[i].Metadata
		m.SourceDocumentID = docID
		m.ChunkIndex = i
		m.Mode = string(cfg.Mode)
		m.StartLine = idx.line(m.StartOffset)
		m.EndLine = idx.line(max(m.EndOffset-1, m.StartOffset))
		m.TokenEstimate = EstimateTokens(chunks[i].Text)
	}
	if chunks == nil {
		chunks = []doctree.Chunk{}
	}
	return chunks, nil
}

type heading struct {
	offset int
	title  string
}

// index holds line starts and heading positions of a text.
type index struct {
	lineStarts []int
	headings   []heading
}

// newIndex records line starts and the ATX heading lines of text. Heading
// detection is shared with the normalizer so both agree on what a heading
// is; lines inside code blocks never open a chunk.
func newIndex(text string) *index {
	idx := &index{lineStarts: []int{0}}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			idx.lineStarts = append(idx.lineStarts, i+1)
		}
	}
	for _, h := range hierarchy.Headings(text) {
		idx.headings = append(idx.headings, heading{offset: h.Start, title: h.Text})
	}
	return idx
}

// line returns the 0-based line containing byte offset off.
func (x *index) line(off int) int {
	return sort.Search(len(x.lineStarts), func(i int) bool { return x.lineStarts[i] > off }) - 1
}

// headingAt returns the nearest heading starting at or before off.
func (x *index) headingAt(off int) *string {
	i := sort.Search(len(x.headings), func(i int) bool { return x.headings[i].offset > off }) - 1
	if i < 0 {
		return nil
	}
	title := x.headings[i].title
	return &title
}

func newChunk(text string, start, end int, owner *string) doctree.Chunk {
	return doctree.Chunk{
		Text: text[start:end],
		Metadata: doctree.ChunkMetadata{
			OwningHeading: owner,
			StartOffset:   start,
			EndOffset:     end,
		},
	}
}

func shortText(s string, minChars int) bool {
	return len([]rune(strings.TrimSpace(s))) < minChars
}
