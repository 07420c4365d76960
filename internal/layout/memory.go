package layout

import (
	"fmt"
	"strings"
)

// MemPage is one page of a MemDocument.
type MemPage struct {
	Bounds Box
	Spans  []Span
	// Text overrides the plain text; when empty it is derived from Spans.
	Text string
}

// MemDocument is an in-memory Document built from already-extracted layout.
type MemDocument struct {
	Pages    []MemPage
	Entries  []OutlineEntry
	Metadata map[string]string
	// Err, when set, is returned by every page accessor.
	Err    error
	Closed bool
}

func (m *MemDocument) PageCount() int { return len(m.Pages) }

func (m *MemDocument) Outline() ([]OutlineEntry, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Entries, nil
}

func (m *MemDocument) get(i int) (MemPage, error) {
	if m.Err != nil {
		return MemPage{}, m.Err
	}
	if i < 0 || i >= len(m.Pages) {
		return MemPage{}, fmt.Errorf("page %d: %w", i, ErrPageRange)
	}
	return m.Pages[i], nil
}

func (m *MemDocument) PageBounds(i int) (Box, error) {
	p, err := m.get(i)
	return p.Bounds, err
}

func (m *MemDocument) PageText(i int) (string, error) {
	p, err := m.get(i)
	if err != nil {
		return "", err
	}
	if p.Text != "" {
		return p.Text, nil
	}
	var lines []string
	for _, l := range GroupLines(p.Spans) {
		lines = append(lines, l.Text())
	}
	return strings.Join(lines, "\n"), nil
}

func (m *MemDocument) PageSpans(i int) ([]Span, error) {
	p, err := m.get(i)
	return p.Spans, err
}

func (m *MemDocument) Info() map[string]string {
	out := make(map[string]string, len(m.Metadata))
	for k, v := range m.Metadata {
		out[k] = v
	}
	return out
}

func (m *MemDocument) Close() error {
	m.Closed = true
	return nil
}
