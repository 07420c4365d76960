package layout

import (
	"sort"
	"strings"
	"unicode"
)

// Line is a set of spans sharing a baseline, ordered left to right.
type Line struct {
	Spans []Span
	Box   Box
}

// Text joins the line's spans, inserting a space where spans are visibly
// separated and neither side already carries whitespace.
func (l Line) Text() string {
	var sb strings.Builder
	for i, s := range l.Spans {
		if i > 0 {
			prev := l.Spans[i-1]
			gap := s.Box.X0 - prev.Box.X1
			if gap > 0.15*max(prev.Size, s.Size) && !endsWithSpace(prev.Text) && !startsWithSpace(s.Text) {
				sb.WriteByte(' ')
			}
		}
		sb.WriteString(s.Text)
	}
	return strings.TrimSpace(sb.String())
}

// Height is the tallest span size on the line.
func (l Line) Height() float64 {
	h := 0.0
	for _, s := range l.Spans {
		h = max(h, s.Size, s.Box.Height())
	}
	return h
}

// GroupLines orders spans top-to-bottom then left-to-right and groups those
// whose baselines lie within a tolerance of each other.
func GroupLines(spans []Span) []Line {
	if len(spans) == 0 {
		return nil
	}
	sorted := make([]Span, len(spans))
	copy(sorted, spans)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Box.Y1 != sorted[j].Box.Y1 {
			return sorted[i].Box.Y1 < sorted[j].Box.Y1
		}
		return sorted[i].Box.X0 < sorted[j].Box.X0
	})

	var lines []Line
	for _, s := range sorted {
		n := len(lines)
		if n > 0 && sameBaseline(lines[n-1], s) {
			lines[n-1].Spans = append(lines[n-1].Spans, s)
			lines[n-1].Box = union(lines[n-1].Box, s.Box)
			continue
		}
		lines = append(lines, Line{Spans: []Span{s}, Box: s.Box})
	}

	for i := range lines {
		sp := lines[i].Spans
		sort.SliceStable(sp, func(a, b int) bool { return sp[a].Box.X0 < sp[b].Box.X0 })
	}
	return lines
}

func sameBaseline(l Line, s Span) bool {
	tol := max(2.0, 0.25*max(l.Height(), s.Size))
	base := l.Spans[len(l.Spans)-1].Box.Y1
	d := s.Box.Y1 - base
	return d >= -tol && d <= tol
}

func union(a, b Box) Box {
	return Box{
		X0: min(a.X0, b.X0),
		Y0: min(a.Y0, b.Y0),
		X1: max(a.X1, b.X1),
		Y1: max(a.Y1, b.Y1),
	}
}

func endsWithSpace(s string) bool {
	if s == "" {
		return true
	}
	r := []rune(s)
	return unicode.IsSpace(r[len(r)-1])
}

func startsWithSpace(s string) bool {
	for _, r := range s {
		return unicode.IsSpace(r)
	}
	return true
}
