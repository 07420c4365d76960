// Package render turns a laid-out document and its heading rules into the
// structured text stream: headings on their own lines, body text in
// paragraphs, running headers and footers removed.
package render

import (
	"fmt"
	"strings"

	"github.com/dgallion1/docstruct/internal/config"
	"github.com/dgallion1/docstruct/internal/doctree"
	"github.com/dgallion1/docstruct/internal/headers"
	"github.com/dgallion1/docstruct/internal/layout"
)

// paragraphGap is the baseline distance, in line heights, that starts a new
// paragraph.
const paragraphGap = 1.5

// Output is the rendered document.
type Output struct {
	Nodes    []doctree.Node
	Text     string
	Pages    int
	Dropped  int // spans removed by the margin zones
	Warnings []string
}

// Headings counts heading nodes.
func (o Output) Headings() int {
	n := 0
	for _, node := range o.Nodes {
		if node.Kind == doctree.Heading {
			n++
		}
	}
	return n
}

// Render walks the pages in order. Pages that cannot be read are skipped
// with a warning.
func Render(doc layout.Document, rules headers.RuleSet, margins config.Margins) Output {
	r := &renderer{rules: rules, margins: margins, lastHeading: -1}
	for p := 0; p < doc.PageCount(); p++ {
		if err := r.page(doc, p); err != nil {
			r.out.Warnings = append(r.out.Warnings, err.Error())
		}
		r.flush()
		r.lastHeading = -1
	}
	r.out.Pages = doc.PageCount()
	r.out.Text = doctree.Markdown(r.out.Nodes)
	return r.out
}

type renderer struct {
	rules   headers.RuleSet
	margins config.Margins
	out     Output

	para        []string
	paraPage    int
	prev        *layout.Line
	lastHeading int // index into out.Nodes of a heading still open for merging
}

func (r *renderer) page(doc layout.Document, p int) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("page %d: %v", p+1, rec)
		}
	}()
	bounds, err := doc.PageBounds(p)
	if err != nil {
		return fmt.Errorf("page %d bounds: %w", p+1, err)
	}
	spans, err := doc.PageSpans(p)
	if err != nil {
		return fmt.Errorf("page %d spans: %w", p+1, err)
	}

	kept := spans[:0:0]
	for _, s := range spans {
		if inMargins(s.Box, bounds, r.margins) {
			r.out.Dropped++
			continue
		}
		kept = append(kept, s)
	}

	lines := layout.GroupLines(kept)
	r.prev = nil
	for i := range lines {
		line := lines[i]
		text := line.Text()
		if text == "" {
			continue
		}
		if level := r.rules.LineLevel(line, p); level > 0 {
			r.heading(level, line, text, p)
		} else {
			r.body(line, text, p)
		}
		r.prev = &lines[i]
	}
	return nil
}

// heading merges a wrapped heading into the previous one when both share a
// level and sit no further apart than a paragraph gap.
func (r *renderer) heading(level int, line layout.Line, text string, p int) {
	r.flush()
	if i := r.lastHeading; i >= 0 && r.out.Nodes[i].Level == level && r.adjacent(line) {
		r.out.Nodes[i].Text += " " + text
		return
	}
	r.out.Nodes = append(r.out.Nodes, doctree.Node{Kind: doctree.Heading, Level: level, Text: text, Page: p})
	r.lastHeading = len(r.out.Nodes) - 1
}

// adjacent reports whether line directly follows the previous line.
func (r *renderer) adjacent(line layout.Line) bool {
	if r.prev == nil {
		return false
	}
	gap := line.Box.Y1 - r.prev.Box.Y1
	return gap >= 0 && gap <= paragraphGap*r.prev.Height()
}

func (r *renderer) body(line layout.Line, text string, p int) {
	r.lastHeading = -1
	if r.prev != nil && len(r.para) > 0 {
		if line.Box.Y1-r.prev.Box.Y1 > paragraphGap*r.prev.Height() {
			r.flush()
		}
	}
	if len(r.para) == 0 {
		r.paraPage = p
	}
	r.para = append(r.para, text)
}

func (r *renderer) flush() {
	if len(r.para) == 0 {
		return
	}
	r.out.Nodes = append(r.out.Nodes, doctree.Node{
		Kind: doctree.Paragraph,
		Text: strings.Join(r.para, "\n"),
		Page: r.paraPage,
	})
	r.para = r.para[:0]
	r.lastHeading = -1
}

// inMargins reports whether b intersects any margin zone of page with a
// positive extent.
func inMargins(b, page layout.Box, m config.Margins) bool {
	switch {
	case m.Top > 0 && b.Y0 < page.Y0+m.Top:
		return true
	case m.Bottom > 0 && b.Y1 > page.Y1-m.Bottom:
		return true
	case m.Left > 0 && b.X0 < page.X0+m.Left:
		return true
	case m.Right > 0 && b.X1 > page.X1-m.Right:
		return true
	}
	return false
}
