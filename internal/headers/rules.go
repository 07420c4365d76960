// Package headers infers which text lines are headings and at what level,
// either from the document's embedded outline or from font statistics.
package headers

import (
	"fmt"
	"math"
	"strings"

	"github.com/dgallion1/docstruct/internal/layout"
	"golang.org/x/text/cases"
)

// Kind tags which branch produced a RuleSet.
type Kind int

const (
	KindNone Kind = iota
	KindOutline
	KindHeuristic
)

func (k Kind) String() string {
	switch k {
	case KindOutline:
		return "outline"
	case KindHeuristic:
		return "heuristic"
	default:
		return "none"
	}
}

// sizeTolerance is how far a span's size may drift from a rule's size.
const sizeTolerance = 0.5

// Signature identifies a font style.
type Signature struct {
	Font   string  `json:"font"`
	Size   float64 `json:"size"`
	Bold   bool    `json:"bold"`
	Italic bool    `json:"italic"`
}

func (s Signature) String() string {
	return fmt.Sprintf("%s/%.1f/b=%t/i=%t", s.Font, s.Size, s.Bold, s.Italic)
}

// SignatureOf returns the span's signature with size rounded to 0.5pt.
func SignatureOf(s layout.Span) Signature {
	return Signature{
		Font:   layout.FontFamily(s.Font),
		Size:   math.Round(s.Size*2) / 2,
		Bold:   s.Bold,
		Italic: s.Italic,
	}
}

func (s Signature) matches(o Signature) bool {
	return s.Font == o.Font && s.Bold == o.Bold && s.Italic == o.Italic &&
		math.Abs(s.Size-o.Size) <= sizeTolerance
}

// Rule maps a font signature to a heading level.
type Rule struct {
	Level     int       `json:"level"`
	Signature Signature `json:"signature"`
	Count     int       `json:"count"`
	AvgLen    float64   `json:"avg_len,omitempty"`
	Examples  []string  `json:"examples,omitempty"`
}

// TitleRule is an outline title expected on a page (Page -1: any page).
type TitleRule struct {
	Level int    `json:"level"`
	Title string `json:"title"`
	Page  int    `json:"page"`
	key   string
}

// RuleSet is the heading tagging function. The zero value (KindNone) tags
// nothing, leaving the document as plain paragraphs.
type RuleSet struct {
	Kind      Kind        `json:"kind"`
	Rules     []Rule      `json:"rules,omitempty"`
	Titles    []TitleRule `json:"titles,omitempty"`
	BodyLimit float64     `json:"body_limit"`
	Warnings  []string    `json:"warnings,omitempty"`
}

// Levels is the deepest level the rule set can assign.
func (r RuleSet) Levels() int {
	n := 0
	for _, rule := range r.Rules {
		n = max(n, rule.Level)
	}
	for _, t := range r.Titles {
		n = max(n, t.Level)
	}
	return n
}

// SpanLevel returns the heading level for a single span, 0 for body text.
func (r RuleSet) SpanLevel(s layout.Span) int {
	switch r.Kind {
	case KindNone:
		return 0
	case KindOutline:
		return r.signatureLevel(SignatureOf(s))
	case KindHeuristic:
		if s.Size <= r.BodyLimit && !s.Bold {
			return 0
		}
		return r.signatureLevel(SignatureOf(s))
	default:
		panic(fmt.Sprintf("headers: unknown rule set kind %d", r.Kind))
	}
}

// LineLevel returns the heading level of a line on page, 0 for body text.
// Outline rule sets first match the line text against outline titles; all
// kinds then require every non-blank span to carry a level, and the line
// takes the shallowest of them.
func (r RuleSet) LineLevel(line layout.Line, page int) int {
	switch r.Kind {
	case KindNone:
		return 0
	case KindOutline:
		if lvl := r.titleLevel(line.Text(), page); lvl > 0 {
			return lvl
		}
	case KindHeuristic:
	default:
		panic(fmt.Sprintf("headers: unknown rule set kind %d", r.Kind))
	}

	level := 0
	for _, s := range line.Spans {
		if strings.TrimSpace(s.Text) == "" {
			continue
		}
		l := r.SpanLevel(s)
		if l == 0 {
			return 0
		}
		if level == 0 || l < level {
			level = l
		}
	}
	return level
}

func (r RuleSet) signatureLevel(sig Signature) int {
	for _, rule := range r.Rules {
		if rule.Signature.matches(sig) {
			return rule.Level
		}
	}
	return 0
}

func (r RuleSet) titleLevel(text string, page int) int {
	key := foldKey(text)
	if key == "" {
		return 0
	}
	for _, t := range r.Titles {
		if t.key == key && (t.Page < 0 || t.Page == page) {
			return t.Level
		}
	}
	return 0
}

// foldKey normalizes whitespace and case for title comparison.
func foldKey(s string) string {
	return cases.Fold().String(strings.Join(strings.Fields(s), " "))
}
