package layout

import (
	"math"
	"sort"

	pdflib "github.com/ledongthuc/pdf"
)

const (
	rowTolerance        = 2.0 // points between glyph baselines on one row
	wordSpaceMultiplier = 0.3 // fraction of font size that counts as a word gap
)

// glyphsToSpans merges per-glyph text into spans: one span per run of glyphs
// on the same row with the same font and size. Coordinates are converted to
// a top-left origin using the page height.
func glyphsToSpans(glyphs []pdflib.Text, pageHeight float64) []Span {
	rows := groupGlyphRows(glyphs)

	var spans []Span
	for _, row := range rows {
		sort.SliceStable(row, func(i, j int) bool { return row[i].X < row[j].X })

		var cur *Span
		var baseline float64
		flush := func() {
			if cur != nil && cur.Text != "" {
				spans = append(spans, *cur)
			}
			cur = nil
		}
		for _, g := range row {
			if g.S == "" {
				continue
			}
			if cur != nil && g.Font == cur.Font && math.Abs(g.FontSize-cur.Size) < 0.01 {
				gap := g.X - cur.Box.X1
				if gap > wordSpaceMultiplier*max(g.FontSize, 1) && !endsWithSpace(cur.Text) {
					cur.Text += " "
				}
				cur.Text += g.S
				cur.Box.X1 = max(cur.Box.X1, g.X+g.W)
				continue
			}
			flush()
			baseline = g.Y
			bold, italic := FontStyle(g.Font)
			cur = &Span{
				Text:   g.S,
				Font:   g.Font,
				Size:   g.FontSize,
				Bold:   bold,
				Italic: italic,
				Box: Box{
					X0: g.X,
					Y0: pageHeight - baseline - g.FontSize,
					X1: g.X + g.W,
					Y1: pageHeight - baseline,
				},
			}
		}
		flush()
	}
	return spans
}

// groupGlyphRows buckets glyphs by baseline and returns rows top to bottom.
func groupGlyphRows(glyphs []pdflib.Text) [][]pdflib.Text {
	type bucket struct {
		yMin, yMax float64
		glyphs     []pdflib.Text
	}
	var buckets []bucket
	for _, g := range glyphs {
		found := false
		for i := range buckets {
			if g.Y >= buckets[i].yMin-rowTolerance && g.Y <= buckets[i].yMax+rowTolerance {
				buckets[i].glyphs = append(buckets[i].glyphs, g)
				buckets[i].yMin = min(buckets[i].yMin, g.Y)
				buckets[i].yMax = max(buckets[i].yMax, g.Y)
				found = true
				break
			}
		}
		if !found {
			buckets = append(buckets, bucket{yMin: g.Y, yMax: g.Y, glyphs: []pdflib.Text{g}})
		}
	}
	// PDF space: higher Y is nearer the top.
	sort.SliceStable(buckets, func(i, j int) bool { return buckets[i].yMax > buckets[j].yMax })

	rows := make([][]pdflib.Text, len(buckets))
	for i, b := range buckets {
		rows[i] = b.glyphs
	}
	return rows
}
