package headers

import (
	"fmt"
	"log/slog"

	"github.com/dgallion1/docstruct/internal/config"
	"github.com/dgallion1/docstruct/internal/layout"
)

// Build chooses a rule set for doc. A usable outline wins; otherwise font
// statistics from the first pages are used. Any failure while reading the
// document yields a KindNone rule set with a warning, never an error.
func Build(doc layout.Document, opts config.Options, log *slog.Logger) (rs RuleSet) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn("header inference panicked, continuing without headings", "panic", r)
			rs = RuleSet{Kind: KindNone, Warnings: []string{fmt.Sprintf("header inference failed: %v", r)}}
		}
	}()
	if doc == nil || doc.PageCount() == 0 {
		return RuleSet{Kind: KindNone}
	}

	var warnings []string
	entries, err := doc.Outline()
	switch {
	case err != nil:
		warnings = append(warnings, "outline unreadable: "+err.Error())
	case len(entries) > 0:
		if out, ok := fromOutline(doc, entries, opts); ok {
			log.Debug("headers from outline", "entries", len(entries), "rules", len(out.Rules))
			return out
		}
		warnings = append(warnings, "outline titles not found on their pages, using font statistics")
	}

	rs = fromHeuristic(doc, opts)
	rs.Warnings = append(warnings, rs.Warnings...)
	log.Debug("headers from font statistics", "kind", rs.Kind.String(), "rules", len(rs.Rules))
	return rs
}

// pageLines caches grouped lines per page.
type pageLines struct {
	doc   layout.Document
	lines map[int][]layout.Line
}

func (p *pageLines) get(page int) []layout.Line {
	if l, ok := p.lines[page]; ok {
		return l
	}
	spans, err := p.doc.PageSpans(page)
	var lines []layout.Line
	if err == nil {
		lines = layout.GroupLines(spans)
	}
	p.lines[page] = lines
	return lines
}

// sigStats accumulates occurrences of one signature.
type sigStats struct {
	sig      Signature
	count    int
	chars    int
	examples []string
}

// collectSignatures tallies every non-blank span on the first n pages.
func collectSignatures(doc layout.Document, n int) map[Signature]*sigStats {
	out := make(map[Signature]*sigStats)
	for p := 0; p < min(n, doc.PageCount()); p++ {
		spans, err := doc.PageSpans(p)
		if err != nil {
			continue
		}
		for _, s := range spans {
			text := trimmed(s.Text)
			if text == "" {
				continue
			}
			sig := SignatureOf(s)
			st := out[sig]
			if st == nil {
				st = &sigStats{sig: sig}
				out[sig] = st
			}
			st.count++
			st.chars += len([]rune(text))
			if len(st.examples) < 3 {
				st.examples = append(st.examples, text)
			}
		}
	}
	return out
}

// bodySignature is the signature carrying the most characters.
func bodySignature(stats map[Signature]*sigStats) (Signature, bool) {
	var best *sigStats
	for _, st := range stats {
		if best == nil || st.chars > best.chars || (st.chars == best.chars && lessSig(st.sig, best.sig)) {
			best = st
		}
	}
	if best == nil {
		return Signature{}, false
	}
	return best.sig, true
}

// lessSig orders signatures deterministically for tie-breaks.
func lessSig(a, b Signature) bool {
	if a.Size != b.Size {
		return a.Size > b.Size
	}
	if a.Font != b.Font {
		return a.Font < b.Font
	}
	if a.Bold != b.Bold {
		return a.Bold
	}
	return a.Italic && !b.Italic
}
