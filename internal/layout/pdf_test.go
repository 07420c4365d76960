package layout

import (
	"bytes"
	"fmt"
	"testing"

	pdflib "github.com/ledongthuc/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPDF assembles a minimal two-page PDF with one outline entry that
// targets the second page.
func buildPDF(t *testing.T) []byte {
	t.Helper()
	return assemblePDF(t, "", "/MediaBox [0 0 612 792] ")
}

// assemblePDF places the MediaBox on the Pages node (pagesBox) or on each
// page (pageBox).
func assemblePDF(t *testing.T, pagesBox, pageBox string) []byte {
	t.Helper()
	page1 := "BT /F1 10 Tf 72 700 Td (Body text on the first page) Tj ET"
	page2 := "BT /F1 18 Tf 72 700 Td (Introduction) Tj ET"
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R /Outlines 6 0 R >>",
		"<< /Type /Pages " + pagesBox + "/Kids [3 0 R 4 0 R] /Count 2 >>",
		"<< /Type /Page /Parent 2 0 R " + pageBox + "/Contents 5 0 R /Resources << /Font << /F1 7 0 R >> >> >>",
		"<< /Type /Page /Parent 2 0 R " + pageBox + "/Contents 8 0 R /Resources << /Font << /F1 7 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(page1), page1),
		"<< /Type /Outlines /First 9 0 R /Last 9 0 R /Count 1 >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica-Bold /Encoding /WinAnsiEncoding >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(page2), page2),
		"<< /Title (Introduction) /Parent 6 0 R /Dest [4 0 R /XYZ 0 792 0] >>",
		"<< /Title (Sample Report) /Author (QA) >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R /Info 10 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestPDF_OpenAndRead(t *testing.T) {
	doc, err := PDF{}.Open(buildPDF(t))
	require.NoError(t, err)
	defer doc.Close()

	assert.Equal(t, 2, doc.PageCount())

	box, err := doc.PageBounds(0)
	require.NoError(t, err)
	assert.Equal(t, 612.0, box.Width())
	assert.Equal(t, 792.0, box.Height())

	text, err := doc.PageText(1)
	require.NoError(t, err)
	assert.Contains(t, text, "Introduction")

	spans, err := doc.PageSpans(1)
	require.NoError(t, err)
	require.Len(t, spans, 1)
	assert.Equal(t, "Introduction", spans[0].Text)
	assert.Equal(t, 18.0, spans[0].Size)
	assert.True(t, spans[0].Bold)
	assert.InDelta(t, 92.0, spans[0].Box.Y1, 0.001)

	assert.Equal(t, "Sample Report", doc.Info()["Title"])
}

func TestPDF_InheritedMediaBox(t *testing.T) {
	doc, err := PDF{}.Open(assemblePDF(t, "/MediaBox [0 0 595 842] ", ""))
	require.NoError(t, err)
	defer doc.Close()

	box, err := doc.PageBounds(1)
	require.NoError(t, err)
	assert.Equal(t, 595.0, box.Width())
	assert.Equal(t, 842.0, box.Height())

	spans, err := doc.PageSpans(1)
	require.NoError(t, err)
	require.Len(t, spans, 1)
	assert.InDelta(t, 142.0, spans[0].Box.Y1, 0.001, "baseline flipped against the inherited height")
}

func TestPDF_MissingMediaBox(t *testing.T) {
	doc, err := PDF{}.Open(assemblePDF(t, "", ""))
	require.NoError(t, err)
	defer doc.Close()

	_, err = doc.PageBounds(0)
	assert.Error(t, err)
}

func TestPDF_OutlineResolvesTargetPage(t *testing.T) {
	doc, err := PDF{}.Open(buildPDF(t))
	require.NoError(t, err)
	defer doc.Close()

	entries, err := doc.Outline()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, OutlineEntry{Level: 1, Title: "Introduction", Page: 1}, entries[0])
}

func TestPDF_OpenRejectsGarbage(t *testing.T) {
	_, err := PDF{}.Open([]byte("definitely not a pdf document, just some bytes that go on for a while........................................................"))
	assert.Error(t, err)

	_, err = PDF{}.Open(nil)
	assert.Error(t, err)
}

func TestPDF_PageOutOfRange(t *testing.T) {
	doc, err := PDF{}.Open(buildPDF(t))
	require.NoError(t, err)
	_, err = doc.PageText(5)
	assert.ErrorIs(t, err, ErrPageRange)
}

func TestGlyphsToSpans_MergesRunsAndSplitsFonts(t *testing.T) {
	glyphs := []pdflib.Text{
		{Font: "Helvetica-Bold", FontSize: 14, X: 72, Y: 700, W: 8, S: "T"},
		{Font: "Helvetica-Bold", FontSize: 14, X: 80, Y: 700, W: 8, S: "o"},
		{Font: "Helvetica-Bold", FontSize: 14, X: 100, Y: 700.5, W: 8, S: "p"},
		{Font: "Helvetica", FontSize: 10, X: 120, Y: 700, W: 5, S: "x"},
		{Font: "Helvetica", FontSize: 10, X: 72, Y: 650, W: 5, S: "b"},
	}
	spans := glyphsToSpans(glyphs, 792)
	require.Len(t, spans, 3)

	assert.Equal(t, "To p", spans[0].Text, "gap wider than word spacing inserts a space")
	assert.True(t, spans[0].Bold)
	assert.Equal(t, "x", spans[1].Text)
	assert.False(t, spans[1].Bold)
	assert.Equal(t, "b", spans[2].Text)
	assert.Less(t, spans[0].Box.Y0, spans[2].Box.Y0, "top-left origin: first row is above")
}

func TestGroupLines_OrderAndText(t *testing.T) {
	spans := []Span{
		{Text: "second", Size: 10, Box: Box{X0: 72, Y0: 110, X1: 110, Y1: 120}},
		{Text: "world", Size: 10, Box: Box{X0: 110, Y0: 90, X1: 140, Y1: 100}},
		{Text: "hello", Size: 10, Box: Box{X0: 72, Y0: 90, X1: 100, Y1: 100}},
	}
	lines := GroupLines(spans)
	require.Len(t, lines, 2)
	assert.Equal(t, "hello world", lines[0].Text())
	assert.Equal(t, "second", lines[1].Text())
}

func TestFontStyle(t *testing.T) {
	tests := []struct {
		font         string
		bold, italic bool
	}{
		{"ABCDEF+Helvetica-BoldOblique", true, true},
		{"Times-Roman", false, false},
		{"Arial-BlackItalic", true, true},
		{"SourceSans-Semibold", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.font, func(t *testing.T) {
			b, i := FontStyle(tt.font)
			assert.Equal(t, tt.bold, b)
			assert.Equal(t, tt.italic, i)
		})
	}
	assert.Equal(t, "Helvetica", FontFamily("ABCDEF+Helvetica"))
	assert.Equal(t, "Helvetica", FontFamily("Helvetica"))
}
