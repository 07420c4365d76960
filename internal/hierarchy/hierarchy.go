// Package hierarchy repairs heading levels in a structured text stream and
// reports on the shape of the resulting hierarchy.
package hierarchy

import (
	"fmt"
	"slices"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/text/cases"
)

// Heading is an ATX heading line located in the source text.
type Heading struct {
	Level int
	Text  string
	Start int // byte offset of the first '#'
	Line  int // 0-based line number
}

// Headings returns the ATX headings of src in order. Headings inside code
// blocks, block quotes or list items are not reported.
func Headings(src string) []Heading {
	b := []byte(src)
	doc := goldmark.New().Parser().Parse(text.NewReader(b))

	var out []Heading
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.Kind() {
		case ast.KindDocument:
			return ast.WalkContinue, nil
		case ast.KindHeading:
		default:
			return ast.WalkSkipChildren, nil
		}
		h := n.(*ast.Heading)
		if h.Lines().Len() == 0 {
			return ast.WalkSkipChildren, nil
		}
		seg := h.Lines().At(0)
		start := strings.LastIndexByte(src[:seg.Start], '\n') + 1
		if !strings.HasPrefix(src[start:], strings.Repeat("#", h.Level)) {
			return ast.WalkSkipChildren, nil // setext or indented
		}
		out = append(out, Heading{
			Level: h.Level,
			Text:  strings.TrimSpace(string(seg.Value(b))),
			Start: start,
			Line:  strings.Count(src[:start], "\n"),
		})
		return ast.WalkSkipChildren, nil
	})
	return out
}

// Normalize rewrites heading levels:
//
//  1. when more than one level-1 heading exists, all of them become level 2;
//  2. a level-2 heading containing one of terms becomes level 3.
//
// Everything else is returned byte for byte. Normalize(Normalize(x)) equals
// Normalize(x).
func Normalize(src string, terms []string) string {
	hs := Headings(src)
	if len(hs) == 0 {
		return src
	}

	top := 0
	for _, h := range hs {
		if h.Level == 1 {
			top++
		}
	}
	fold := cases.Fold()
	folded := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.TrimSpace(t); t != "" {
			folded = append(folded, fold.String(t))
		}
	}

	var sb strings.Builder
	sb.Grow(len(src) + len(hs))
	last := 0
	for _, h := range hs {
		level := h.Level
		if level == 1 && top > 1 {
			level = 2
		}
		if level == 2 && containsAny(fold.String(h.Text), folded) {
			level = 3
		}
		if level == h.Level {
			continue
		}
		sb.WriteString(src[last:h.Start])
		sb.WriteString(strings.Repeat("#", level))
		last = h.Start + h.Level
	}
	sb.WriteString(src[last:])
	return sb.String()
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

// Assessment summarizes heading usage.
type Assessment struct {
	LevelCounts map[int]int `json:"level_counts"`
	Notes       []string    `json:"notes"`
}

// String joins the notes into one line.
func (a Assessment) String() string { return strings.Join(a.Notes, " ") }

// Levels returns the levels in use, ascending.
func (a Assessment) Levels() []int {
	out := make([]int, 0, len(a.LevelCounts))
	for l := range a.LevelCounts {
		out = append(out, l)
	}
	slices.Sort(out)
	return out
}

// Assess reports on the heading hierarchy of src.
func Assess(src string) Assessment {
	a := Assessment{LevelCounts: make(map[int]int)}
	for _, h := range Headings(src) {
		a.LevelCounts[h.Level]++
	}
	levels := a.Levels()
	if len(levels) == 0 {
		a.Notes = []string{"No headers found."}
		return a
	}
	lo, hi := levels[0], levels[len(levels)-1]
	if a.LevelCounts[1] == 0 {
		a.Notes = append(a.Notes, "No top-level (#) header found.")
	}
	if lo > 1 {
		a.Notes = append(a.Notes, "Headers do not start at top level.")
	}
	if hi-lo > 2 {
		a.Notes = append(a.Notes, "Header levels are too deeply nested.")
	}
	if len(levels) == 1 {
		a.Notes = append(a.Notes, "Only one header level used.")
	}
	if len(a.Notes) == 0 {
		a.Notes = append(a.Notes, "Header hierarchy appears reasonable.")
	}
	return a
}

// Fields flattens the assessment into report fields such as hdr_level_2.
func (a Assessment) Fields() map[string]any {
	out := map[string]any{"assessment": a.String()}
	for l, n := range a.LevelCounts {
		out[fmt.Sprintf("hdr_level_%d", l)] = n
	}
	return out
}
