package headers

import (
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/dgallion1/docstruct/internal/config"
	"github.com/dgallion1/docstruct/internal/layout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

var letter = layout.Box{X1: 612, Y1: 792}

func span(text, font string, size, x, y float64) layout.Span {
	bold, italic := layout.FontStyle(font)
	return layout.Span{
		Text: text, Font: font, Size: size, Bold: bold, Italic: italic,
		Box: layout.Box{X0: x, Y0: y - size, X1: x + float64(len(text))*size*0.5, Y1: y},
	}
}

// body returns n lines of body text starting at y.
func body(font string, size float64, y float64, n int) []layout.Span {
	var out []layout.Span
	for i := range n {
		out = append(out, span("body text that fills the page with ordinary prose", font, size, 72, y+float64(i)*size*1.2))
	}
	return out
}

func page(spans ...[]layout.Span) layout.MemPage {
	var all []layout.Span
	for _, s := range spans {
		all = append(all, s...)
	}
	return layout.MemPage{Bounds: letter, Spans: all}
}

func TestHeuristic_LargestBoldSizeIsLevelOne(t *testing.T) {
	doc := &layout.MemDocument{Pages: []layout.MemPage{
		page([]layout.Span{span("Results", "Helvetica-Bold", 18, 72, 100)}, body("Helvetica", 10, 130, 10)),
	}}
	rs := Build(doc, config.DefaultOptions(), discard)

	require.Equal(t, KindHeuristic, rs.Kind)
	require.Len(t, rs.Rules, 1)
	assert.Equal(t, 1, rs.Rules[0].Level)
	assert.Equal(t, Signature{Font: "Helvetica-Bold", Size: 18, Bold: true}, rs.Rules[0].Signature)

	assert.Equal(t, 1, rs.SpanLevel(span("Other", "Helvetica-Bold", 18.2, 0, 0)))
	assert.Equal(t, 0, rs.SpanLevel(span("prose", "Helvetica", 10, 0, 0)))
	assert.Equal(t, 0, rs.SpanLevel(span("wrong family", "Times-Bold", 18, 0, 0)))
}

func TestHeuristic_MostFrequentSignatureWinsAtSize(t *testing.T) {
	var heads []layout.Span
	for i := range 3 {
		heads = append(heads, span("Section", "Helvetica-Bold", 14, 72, 100+float64(i)*200))
	}
	heads = append(heads, span("Aside", "Times-Bold", 14, 72, 700))
	doc := &layout.MemDocument{Pages: []layout.MemPage{page(heads, body("Helvetica", 10, 120, 20))}}

	rs := Build(doc, config.DefaultOptions(), discard)
	require.Len(t, rs.Rules, 1)
	assert.Equal(t, "Helvetica-Bold", rs.Rules[0].Signature.Font)
	assert.Equal(t, 3, rs.Rules[0].Count)
	assert.Equal(t, 0, rs.SpanLevel(span("Aside", "Times-Bold", 14, 0, 0)))
}

func TestHeuristic_IneligibleSizesConsumeRank(t *testing.T) {
	doc := &layout.MemDocument{Pages: []layout.MemPage{page(
		[]layout.Span{
			span("Title", "Helvetica-Bold", 16, 72, 80),
			span("Subtitle", "Helvetica-Oblique", 12, 72, 110),
			span("small caps note", "Helvetica", 10.5, 72, 140),
			span("Caption", "Helvetica-Bold", 9.5, 72, 700),
		},
		body("Helvetica", 10, 160, 15),
	)}}

	rs := Build(doc, config.DefaultOptions(), discard)
	require.Equal(t, KindHeuristic, rs.Kind)
	require.Len(t, rs.Rules, 2)
	assert.Equal(t, 16.0, rs.Rules[0].Signature.Size)
	assert.Equal(t, 1, rs.Rules[0].Level)
	assert.Equal(t, 12.0, rs.Rules[1].Signature.Size)
	assert.Equal(t, 2, rs.Rules[1].Level)

	// 9.5pt bold is only the fifth size and never ranked.
	assert.Equal(t, 0, rs.SpanLevel(span("Caption", "Helvetica-Bold", 9.5, 0, 0)))
}

func TestHeuristic_UniformTextHasNoHeadings(t *testing.T) {
	doc := &layout.MemDocument{Pages: []layout.MemPage{page(body("Helvetica", 12, 100, 30))}}
	rs := Build(doc, config.DefaultOptions(), discard)
	assert.Equal(t, KindNone, rs.Kind)
	assert.NotEmpty(t, rs.Warnings)
}

func TestHeuristic_SamplesOnlyFirstPages(t *testing.T) {
	pages := []layout.MemPage{}
	for range 3 {
		pages = append(pages, page(body("Helvetica", 10, 100, 20)))
	}
	pages = append(pages, page([]layout.Span{span("Late", "Helvetica-Bold", 20, 72, 90)}))
	rs := Build(&layout.MemDocument{Pages: pages}, config.DefaultOptions(), discard)
	assert.Equal(t, KindNone, rs.Kind)
}

func outlineDoc() *layout.MemDocument {
	return &layout.MemDocument{
		Pages: []layout.MemPage{
			page([]layout.Span{span("1 Introduction", "Times-Bold", 16, 72, 100)}, body("Times-Roman", 10, 130, 20)),
			page([]layout.Span{span("Background", "Times-Bold", 13, 72, 100)}, body("Times-Roman", 10, 130, 20)),
		},
		Entries: []layout.OutlineEntry{
			{Level: 1, Title: "Introduction", Page: 0},
			{Level: 2, Title: "BACKGROUND", Page: 1},
		},
	}
}

func TestOutline_SignaturesFromTitles(t *testing.T) {
	rs := Build(outlineDoc(), config.DefaultOptions(), discard)

	require.Equal(t, KindOutline, rs.Kind)
	require.Len(t, rs.Rules, 2)
	assert.Equal(t, Rule{Level: 1, Signature: Signature{Font: "Times-Bold", Size: 16, Bold: true}, Count: 1}, rs.Rules[0])
	assert.Equal(t, 2, rs.Rules[1].Level)
	assert.Equal(t, 13.0, rs.Rules[1].Signature.Size)
	assert.Len(t, rs.Titles, 2)
	assert.Empty(t, rs.Warnings)

	lines := layout.GroupLines(outlineDoc().Pages[1].Spans)
	assert.Equal(t, 2, rs.LineLevel(lines[0], 1))
	assert.Equal(t, 0, rs.LineLevel(lines[1], 1))
}

func TestOutline_TitleMatchTagsBodyFontHeading(t *testing.T) {
	doc := &layout.MemDocument{
		Pages: []layout.MemPage{page(
			[]layout.Span{span("Methods", "Times-Roman", 10, 72, 100)},
			body("Times-Roman", 10, 130, 20),
		)},
		Entries: []layout.OutlineEntry{{Level: 1, Title: "Methods", Page: 0}},
	}
	rs := Build(doc, config.DefaultOptions(), discard)
	require.Equal(t, KindOutline, rs.Kind)
	assert.Empty(t, rs.Rules, "body signature must never become a heading rule")

	lines := layout.GroupLines(doc.Pages[0].Spans)
	assert.Equal(t, 1, rs.LineLevel(lines[0], 0))
	assert.Equal(t, 0, rs.LineLevel(lines[0], 3), "title is bound to its page")
	assert.Equal(t, 0, rs.LineLevel(lines[1], 0))
}

func TestOutline_NoMatchFallsBackToHeuristic(t *testing.T) {
	doc := outlineDoc()
	doc.Entries = []layout.OutlineEntry{{Level: 1, Title: "Appendix Z", Page: 0}}

	rs := Build(doc, config.DefaultOptions(), discard)
	assert.Equal(t, KindHeuristic, rs.Kind)
	require.NotEmpty(t, rs.Warnings)
	assert.Contains(t, rs.Warnings[0], "outline titles not found")
}

func TestOutline_MajorityLevelPerSignature(t *testing.T) {
	assert.Equal(t, 1, first(majorityLevel(map[int]int{1: 2, 2: 1})))
	assert.Equal(t, 2, first(majorityLevel(map[int]int{1: 1, 2: 3})))
	assert.Equal(t, 1, first(majorityLevel(map[int]int{3: 2, 1: 2})), "ties go to the shallower level")
}

func first(a, _ int) int { return a }

func TestOutline_LevelsCompacted(t *testing.T) {
	got := compactLevels([]layout.OutlineEntry{{Level: 2}, {Level: 4}, {Level: 2}})
	assert.Equal(t, map[int]int{2: 1, 4: 2}, got)
}

func TestLineLevel_RequiresAllSpansTagged(t *testing.T) {
	rs := RuleSet{Kind: KindHeuristic, BodyLimit: 11, Rules: []Rule{
		{Level: 1, Signature: Signature{Font: "Helvetica-Bold", Size: 18, Bold: true}},
		{Level: 2, Signature: Signature{Font: "Helvetica-Bold", Size: 14, Bold: true}},
	}}
	mixed := layout.Line{Spans: []layout.Span{
		span("Results", "Helvetica-Bold", 18, 72, 100),
		span("and prose", "Helvetica", 10, 200, 100),
	}}
	assert.Equal(t, 0, rs.LineLevel(mixed, 0))

	both := layout.Line{Spans: []layout.Span{
		span("Part", "Helvetica-Bold", 14, 72, 100),
		span(" ", "Helvetica", 10, 120, 100),
		span("One", "Helvetica-Bold", 18, 130, 100),
	}}
	assert.Equal(t, 1, rs.LineLevel(both, 0))
	assert.Equal(t, 0, RuleSet{}.LineLevel(both, 0))
}

type panickyDoc struct{ layout.MemDocument }

func (p *panickyDoc) PageSpans(int) ([]layout.Span, error) { panic("malformed font table") }

func TestBuild_PanicYieldsNone(t *testing.T) {
	doc := &panickyDoc{layout.MemDocument{Pages: []layout.MemPage{{Bounds: letter}}}}
	rs := Build(doc, config.DefaultOptions(), discard)
	assert.Equal(t, KindNone, rs.Kind)
	require.Len(t, rs.Warnings, 1)
	assert.True(t, strings.Contains(rs.Warnings[0], "malformed font table"))
}

func TestBuild_UnreadableOutline(t *testing.T) {
	doc := &layout.MemDocument{Pages: []layout.MemPage{{Bounds: letter}}, Err: errors.New("bad xref")}
	rs := Build(doc, config.DefaultOptions(), discard)
	assert.Equal(t, KindNone, rs.Kind)
	assert.Contains(t, rs.Warnings[0], "bad xref")
}
