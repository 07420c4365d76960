package render

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dgallion1/docstruct/internal/config"
	"github.com/dgallion1/docstruct/internal/doctree"
	"github.com/dgallion1/docstruct/internal/headers"
	"github.com/dgallion1/docstruct/internal/layout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var letter = layout.Box{X1: 612, Y1: 792}

func span(text, font string, size, x, baseline float64) layout.Span {
	bold, italic := layout.FontStyle(font)
	return layout.Span{
		Text: text, Font: font, Size: size, Bold: bold, Italic: italic,
		Box: layout.Box{X0: x, Y0: baseline - size, X1: x + float64(len(text))*size*0.5, Y1: baseline},
	}
}

var h1 = headers.RuleSet{Kind: headers.KindHeuristic, BodyLimit: 11, Rules: []headers.Rule{
	{Level: 1, Signature: headers.Signature{Font: "Helvetica-Bold", Size: 18, Bold: true}},
	{Level: 2, Signature: headers.Signature{Font: "Helvetica-Bold", Size: 14, Bold: true}},
}}

func TestRender_MarginsOrderAndParagraphs(t *testing.T) {
	doc := &layout.MemDocument{Pages: []layout.MemPage{{
		Bounds: letter,
		Spans: []layout.Span{
			// deliberately out of order
			span("second line", "Helvetica", 10, 72, 132),
			span("Running header", "Helvetica", 9, 72, 30),
			span("first line", "Helvetica", 10, 72, 120),
			span("Results", "Helvetica-Bold", 18, 72, 100),
			span("new paragraph", "Helvetica", 10, 72, 170),
			span("right", "Helvetica", 10, 300, 170),
			span("7", "Helvetica", 9, 300, 780),
		},
	}}}

	out := Render(doc, h1, config.DefaultOptions().Margins)

	assert.Equal(t, 2, out.Dropped)
	assert.Equal(t, 1, out.Pages)
	assert.Empty(t, out.Warnings)
	assert.Equal(t, "# Results\nfirst line\nsecond line\n\nnew paragraph right", out.Text)
	require.Len(t, out.Nodes, 3)
	assert.Equal(t, doctree.Node{Kind: doctree.Heading, Level: 1, Text: "Results", Page: 0}, out.Nodes[0])
	assert.Equal(t, 1, out.Headings())
}

func TestRender_MergesWrappedHeadings(t *testing.T) {
	doc := &layout.MemDocument{Pages: []layout.MemPage{{
		Bounds: letter,
		Spans: []layout.Span{
			span("Effects of Treated", "Helvetica-Bold", 18, 72, 100),
			span("Nets on Survival", "Helvetica-Bold", 18, 72, 122),
			span("Study Area", "Helvetica-Bold", 14, 72, 150),
			span("body text", "Helvetica", 10, 72, 170),
		},
	}}}

	out := Render(doc, h1, config.DefaultOptions().Margins)
	assert.Equal(t, "# Effects of Treated Nets on Survival\n## Study Area\nbody text", out.Text)
}

func TestRender_DistantHeadingsStaySeparate(t *testing.T) {
	doc := &layout.MemDocument{Pages: []layout.MemPage{{
		Bounds: letter,
		Spans: []layout.Span{
			span("Abstract", "Helvetica-Bold", 18, 72, 100),
			span("1 Introduction", "Helvetica-Bold", 18, 72, 300),
		},
	}}}

	out := Render(doc, h1, config.DefaultOptions().Margins)
	assert.Equal(t, "# Abstract\n# 1 Introduction", out.Text)
	assert.Equal(t, 2, out.Headings())
}

func TestRender_PagesBreakParagraphsAndKeepOrder(t *testing.T) {
	doc := &layout.MemDocument{Pages: []layout.MemPage{
		{Bounds: letter, Spans: []layout.Span{span("page one text", "Helvetica", 10, 72, 700)}},
		{Bounds: letter, Spans: []layout.Span{span("page two text", "Helvetica", 10, 72, 100)}},
	}}
	out := Render(doc, headers.RuleSet{}, config.DefaultOptions().Margins)
	assert.Equal(t, "page one text\n\npage two text", out.Text)
	require.Len(t, out.Nodes, 2)
	assert.Equal(t, 1, out.Nodes[1].Page)
}

func TestRender_NoRulesMeansNoHeadings(t *testing.T) {
	doc := &layout.MemDocument{Pages: []layout.MemPage{{
		Bounds: letter,
		Spans:  []layout.Span{span("Big", "Helvetica-Bold", 18, 72, 100), span("#hashtag", "Helvetica", 10, 72, 120)},
	}}}
	out := Render(doc, headers.RuleSet{}, config.DefaultOptions().Margins)
	assert.Equal(t, "Big\n\\#hashtag", out.Text)
	assert.Zero(t, out.Headings())
}

type brokenPage struct{ layout.MemDocument }

func (b *brokenPage) PageSpans(i int) ([]layout.Span, error) {
	if i == 0 {
		return nil, errors.New("bad content stream")
	}
	return b.MemDocument.PageSpans(i)
}

func TestRender_UnreadablePageIsSkipped(t *testing.T) {
	doc := &brokenPage{layout.MemDocument{Pages: []layout.MemPage{
		{Bounds: letter},
		{Bounds: letter, Spans: []layout.Span{span("still here", "Helvetica", 10, 72, 100)}},
	}}}
	out := Render(doc, headers.RuleSet{}, config.DefaultOptions().Margins)
	assert.Equal(t, "still here", out.Text)
	require.Len(t, out.Warnings, 1)
	assert.Contains(t, out.Warnings[0], "page 1")
}

func TestPersist(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	require.NoError(t, Persist(dir, "abc123", "# Title\nbody", map[string]any{"chunks": 2}))

	md, err := os.ReadFile(filepath.Join(dir, "abc123.md"))
	require.NoError(t, err)
	assert.Equal(t, "# Title\nbody", string(md))

	raw, err := os.ReadFile(filepath.Join(dir, "abc123.json"))
	require.NoError(t, err)
	var report map[string]any
	require.NoError(t, json.Unmarshal(raw, &report))
	assert.EqualValues(t, 2, report["chunks"])

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	assert.Error(t, Persist(dir, "../escape", "x", nil))
	assert.Error(t, Persist("", "id", "x", nil))
}
