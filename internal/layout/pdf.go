package layout

import (
	"bytes"
	"fmt"
	"strings"

	pdflib "github.com/ledongthuc/pdf"
)

const (
	maxOutlineEntries = 10000
	maxOutlineDepth   = 32
)

// PDF opens documents with github.com/ledongthuc/pdf. The library panics on
// malformed input; every call into it is guarded and surfaces as an error.
type PDF struct{}

func (PDF) Open(data []byte) (doc Document, err error) {
	err = guard("open", func() error {
		r, err := pdflib.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return err
		}
		d := &pdfDocument{r: r, numPages: r.NumPage()}
		if d.numPages < 0 {
			return fmt.Errorf("invalid page count %d", d.numPages)
		}
		doc = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

type pdfDocument struct {
	r        *pdflib.Reader
	numPages int
	pages    []pdflib.Page // lazily resolved, index = page-1
	closed   bool
}

func (d *pdfDocument) PageCount() int { return d.numPages }

func (d *pdfDocument) Close() error {
	d.closed = true
	d.pages = nil
	return nil
}

func (d *pdfDocument) page(i int) (pdflib.Page, error) {
	if d.closed {
		return pdflib.Page{}, fmt.Errorf("document closed")
	}
	if i < 0 || i >= d.numPages {
		return pdflib.Page{}, fmt.Errorf("page %d: %w", i, ErrPageRange)
	}
	if d.pages == nil {
		d.pages = make([]pdflib.Page, d.numPages)
	}
	if d.pages[i].V.IsNull() {
		d.pages[i] = d.r.Page(i + 1)
	}
	if d.pages[i].V.IsNull() {
		return pdflib.Page{}, fmt.Errorf("page %d: not found", i)
	}
	return d.pages[i], nil
}

func (d *pdfDocument) PageBounds(i int) (box Box, err error) {
	err = guard("page bounds", func() error {
		p, err := d.page(i)
		if err != nil {
			return err
		}
		mb := mediaBox(p.V)
		if mb.Kind() != pdflib.Array || mb.Len() < 4 {
			return fmt.Errorf("page %d: missing MediaBox", i)
		}
		x0, y0 := mb.Index(0).Float64(), mb.Index(1).Float64()
		x1, y1 := mb.Index(2).Float64(), mb.Index(3).Float64()
		box = Box{X0: 0, Y0: 0, X1: abs(x1 - x0), Y1: abs(y1 - y0)}
		return nil
	})
	return box, err
}

// mediaBox returns the page's MediaBox, inherited from the nearest ancestor
// in the page tree that sets one.
func mediaBox(page pdflib.Value) pdflib.Value {
	v := page
	for depth := 0; !v.IsNull() && depth < maxOutlineDepth; depth++ {
		if mb := v.Key("MediaBox"); !mb.IsNull() {
			return mb
		}
		v = v.Key("Parent")
	}
	return pdflib.Value{}
}

func (d *pdfDocument) PageText(i int) (text string, err error) {
	err = guard("page text", func() error {
		p, err := d.page(i)
		if err != nil {
			return err
		}
		if p.V.Key("Contents").Kind() == pdflib.Null {
			return nil
		}
		text, err = p.GetPlainText(nil)
		return err
	})
	return text, err
}

func (d *pdfDocument) PageSpans(i int) (spans []Span, err error) {
	err = guard("page spans", func() error {
		p, err := d.page(i)
		if err != nil {
			return err
		}
		if p.V.Key("Contents").Kind() == pdflib.Null {
			return nil
		}
		height := 792.0
		if b, err := d.PageBounds(i); err == nil && b.Height() > 0 {
			height = b.Height()
		}
		spans = glyphsToSpans(p.Content().Text, height)
		return nil
	})
	return spans, err
}

func (d *pdfDocument) Info() map[string]string {
	out := make(map[string]string)
	_ = guard("info", func() error {
		info := d.r.Trailer().Key("Info")
		if info.Kind() != pdflib.Dict {
			return nil
		}
		for _, k := range []string{"Title", "Author", "Subject", "Keywords", "Creator", "Producer"} {
			if v := strings.TrimSpace(info.Key(k).Text()); v != "" {
				out[k] = v
			}
		}
		return nil
	})
	return out
}

// Outline flattens the bookmark tree depth-first. Levels start at 1. Targets
// are resolved by matching the destination page object against each page.
func (d *pdfDocument) Outline() (entries []OutlineEntry, err error) {
	err = guard("outline", func() error {
		root := d.r.Trailer().Key("Root")
		outlines := root.Key("Outlines")
		if outlines.Kind() != pdflib.Dict {
			return nil
		}

		var pageIDs map[string]int
		resolve := func(item pdflib.Value) int {
			target := destPage(root, item)
			switch target.Kind() {
			case pdflib.Integer:
				if n := int(target.Int64()); n >= 0 && n < d.numPages {
					return n
				}
				return -1
			case pdflib.Dict:
			default:
				return -1
			}
			if pageIDs == nil {
				pageIDs = d.pageIdentities()
			}
			if n, ok := pageIDs[target.String()]; ok {
				return n
			}
			return -1
		}

		var walk func(first pdflib.Value, depth int)
		walk = func(first pdflib.Value, depth int) {
			if depth > maxOutlineDepth {
				return
			}
			for item := first; item.Kind() == pdflib.Dict; item = item.Key("Next") {
				if len(entries) >= maxOutlineEntries {
					return
				}
				title := strings.TrimSpace(item.Key("Title").Text())
				if title != "" {
					entries = append(entries, OutlineEntry{
						Level: depth + 1,
						Title: title,
						Page:  resolve(item),
					})
				}
				walk(item.Key("First"), depth+1)
			}
		}
		walk(outlines.Key("First"), 0)
		return nil
	})
	return entries, err
}

func (d *pdfDocument) pageIdentities() map[string]int {
	ids := make(map[string]int, d.numPages)
	for i := 0; i < d.numPages; i++ {
		p, err := d.page(i)
		if err != nil {
			continue
		}
		ids[p.V.String()] = i
	}
	return ids
}

// destPage returns the page reference of an outline item's destination, or
// a null value when it has none.
func destPage(root, item pdflib.Value) pdflib.Value {
	dest := item.Key("Dest")
	if dest.Kind() == pdflib.Null {
		if a := item.Key("A"); a.Key("S").Name() == "GoTo" {
			dest = a.Key("D")
		}
	}
	for range 3 {
		switch dest.Kind() {
		case pdflib.Array:
			if dest.Len() == 0 {
				return pdflib.Value{}
			}
			return dest.Index(0)
		case pdflib.Dict:
			dest = dest.Key("D")
		case pdflib.Name:
			dest = namedDest(root, dest.Name())
		case pdflib.String:
			dest = namedDest(root, dest.RawString())
		default:
			return pdflib.Value{}
		}
	}
	return pdflib.Value{}
}

func namedDest(root pdflib.Value, name string) pdflib.Value {
	if v := root.Key("Dests").Key(name); v.Kind() != pdflib.Null {
		return v
	}
	return lookupNameTree(root.Key("Names").Key("Dests"), name, 0)
}

func lookupNameTree(node pdflib.Value, key string, depth int) pdflib.Value {
	if node.Kind() != pdflib.Dict || depth > maxOutlineDepth {
		return pdflib.Value{}
	}
	if names := node.Key("Names"); names.Kind() == pdflib.Array {
		for i := 0; i+1 < names.Len(); i += 2 {
			if names.Index(i).RawString() == key {
				return names.Index(i + 1)
			}
		}
	}
	kids := node.Key("Kids")
	for i := 0; i < kids.Len(); i++ {
		kid := kids.Index(i)
		if lim := kid.Key("Limits"); lim.Len() == 2 {
			if key < lim.Index(0).RawString() || key > lim.Index(1).RawString() {
				continue
			}
		}
		if v := lookupNameTree(kid, key, depth+1); v.Kind() != pdflib.Null {
			return v
		}
	}
	return pdflib.Value{}
}

// guard converts library panics into errors.
func guard(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf %s: %v", op, r)
		}
	}()
	if err := fn(); err != nil {
		return fmt.Errorf("pdf %s: %w", op, err)
	}
	return nil
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
