// Package layout is the page-layout and text-extraction boundary. It turns
// raw document bytes into per-page text, styled spans with positions, and the
// embedded outline. Everything above this package works on the Document
// interface and never touches the PDF library directly.
package layout

import (
	"errors"
	"strings"
)

// ErrPageRange is returned when a page index is outside the document.
var ErrPageRange = errors.New("page index out of range")

// Box is a rectangle in points with a top-left origin: Y grows downwards.
type Box struct {
	X0, Y0, X1, Y1 float64
}

func (b Box) Width() float64  { return b.X1 - b.X0 }
func (b Box) Height() float64 { return b.Y1 - b.Y0 }
func (b Box) Area() float64   { return max(b.Width(), 0) * max(b.Height(), 0) }

// Span is a run of text on one line sharing a single font.
type Span struct {
	Text   string  `json:"text"`
	Font   string  `json:"font"`
	Size   float64 `json:"size"`
	Bold   bool    `json:"bold"`
	Italic bool    `json:"italic"`
	Box    Box     `json:"box"`
}

// OutlineEntry is one flattened bookmark. Page is 0-based, -1 when the
// target could not be resolved.
type OutlineEntry struct {
	Level int    `json:"level"`
	Title string `json:"title"`
	Page  int    `json:"page"`
}

// Document is an opened document. Implementations must be safe to use from
// one goroutine at a time and hold no state shared with other documents.
type Document interface {
	PageCount() int
	Outline() ([]OutlineEntry, error)
	PageBounds(page int) (Box, error)
	PageText(page int) (string, error)
	PageSpans(page int) ([]Span, error)
	// Info returns the document information dictionary (Title, Author, ...).
	Info() map[string]string
	Close() error
}

// Opener turns raw bytes into a Document.
type Opener interface {
	Open(data []byte) (Document, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(data []byte) (Document, error)

func (f OpenerFunc) Open(data []byte) (Document, error) { return f(data) }

// FontStyle infers bold and italic from a font name such as
// "ABCDEF+Helvetica-BoldOblique".
func FontStyle(font string) (bold, italic bool) {
	name := strings.ToLower(FontFamily(font))
	for _, s := range []string{"bold", "black", "heavy", "semibold", "demi"} {
		if strings.Contains(name, s) {
			bold = true
			break
		}
	}
	italic = strings.Contains(name, "italic") || strings.Contains(name, "oblique")
	return bold, italic
}

// FontFamily strips the six-letter subset prefix from an embedded font name.
func FontFamily(font string) string {
	if i := strings.IndexByte(font, '+'); i == 6 {
		return font[i+1:]
	}
	return font
}
