package parser

import (
	"bytes"
	"io"
	"strings"

	"github.com/dgallion1/docstruct/internal/doctree"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownParser handles Markdown files using goldmark. Top-level headings
// become heading nodes; the source between them is kept verbatim so lists,
// code blocks and tables survive into the structured text.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(r io.Reader, filename string) (*Document, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	src = bytes.ReplaceAll(src, []byte("\r\n"), []byte("\n"))

	doc := &Document{Title: baseTitle(filename, ".markdown", ".md")}
	root := goldmark.New().Parser().Parse(text.NewReader(src))

	prev := 0
	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok || h.Lines().Len() == 0 {
			continue
		}
		lines := h.Lines()
		start := lineStart(src, lines.At(0).Start)
		end := lineEnd(src, lines.At(lines.Len()-1).Start)
		if !isATX(src[start:]) {
			end = lineEnd(src, end) // setext underline
		}

		doc.Nodes = appendVerbatim(doc.Nodes, src[prev:start])
		var title []string
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			title = append(title, strings.TrimSpace(string(seg.Value(src))))
		}
		doc.Nodes = append(doc.Nodes, doctree.Node{Kind: doctree.Heading, Level: h.Level, Text: strings.Join(title, " ")})
		prev = end
	}
	doc.Nodes = appendVerbatim(doc.Nodes, src[prev:])
	return doc, nil
}

func appendVerbatim(nodes []doctree.Node, block []byte) []doctree.Node {
	lines := strings.Split(string(block), "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return nodes
	}
	return append(nodes, doctree.Node{Kind: doctree.Verbatim, Text: strings.Join(lines, "\n")})
}

func lineStart(src []byte, pos int) int {
	return bytes.LastIndexByte(src[:pos], '\n') + 1
}

// lineEnd returns the offset just past the newline ending the line at pos.
func lineEnd(src []byte, pos int) int {
	if pos >= len(src) {
		return len(src)
	}
	if i := bytes.IndexByte(src[pos:], '\n'); i >= 0 {
		return pos + i + 1
	}
	return len(src)
}

func isATX(line []byte) bool {
	for i := 0; i < 3 && len(line) > 0 && line[0] == ' '; i++ {
		line = line[1:]
	}
	return len(line) > 0 && line[0] == '#'
}
