package headers

import (
	"slices"
	"strings"

	"github.com/dgallion1/docstruct/internal/config"
	"github.com/dgallion1/docstruct/internal/layout"
)

// fromOutline locates each outline title on its target page and records the
// font signature of the line it was found on. ok is false when no title
// could be found anywhere.
func fromOutline(doc layout.Document, entries []layout.OutlineEntry, opts config.Options) (RuleSet, bool) {
	levels := compactLevels(entries)
	cache := &pageLines{doc: doc, lines: make(map[int][]layout.Line)}

	// signature -> level -> occurrences
	votes := make(map[Signature]map[int]int)
	rs := RuleSet{Kind: KindOutline, BodyLimit: opts.BodyFontSizeThreshold}
	matched := 0

	for _, e := range entries {
		key := foldKey(e.Title)
		if key == "" {
			continue
		}
		level := levels[e.Level]
		rs.Titles = append(rs.Titles, TitleRule{Level: level, Title: strings.TrimSpace(e.Title), Page: e.Page, key: key})

		if e.Page < 0 || e.Page >= doc.PageCount() {
			continue
		}
		line, ok := findTitle(cache.get(e.Page), key)
		if !ok {
			continue
		}
		matched++
		sig, ok := dominantSignature(line)
		if !ok {
			continue
		}
		if votes[sig] == nil {
			votes[sig] = make(map[int]int)
		}
		votes[sig][level]++
	}
	if matched == 0 {
		return RuleSet{}, false
	}

	body, hasBody := bodySignature(collectSignatures(doc, opts.HeuristicSamplePages))
	for sig, byLevel := range votes {
		if hasBody && sig == body {
			continue
		}
		level, count := majorityLevel(byLevel)
		rs.Rules = append(rs.Rules, Rule{Level: level, Signature: sig, Count: count})
	}
	slices.SortFunc(rs.Rules, func(a, b Rule) int {
		if a.Level != b.Level {
			return a.Level - b.Level
		}
		if lessSig(a.Signature, b.Signature) {
			return -1
		}
		return 1
	})
	return rs, true
}

// compactLevels maps the outline's own depths onto 1..K.
func compactLevels(entries []layout.OutlineEntry) map[int]int {
	var depths []int
	for _, e := range entries {
		depths = append(depths, e.Level)
	}
	slices.Sort(depths)
	depths = slices.Compact(depths)
	out := make(map[int]int, len(depths))
	for i, d := range depths {
		out[d] = i + 1
	}
	return out
}

// findTitle returns the first line containing the title. Lines that are a
// fragment of the title (a wrapped heading) are accepted only when no line
// contains it in full.
func findTitle(lines []layout.Line, key string) (layout.Line, bool) {
	for _, l := range lines {
		if strings.Contains(foldKey(l.Text()), key) {
			return l, true
		}
	}
	for _, l := range lines {
		lk := foldKey(l.Text())
		if len([]rune(lk)) >= 4 && strings.Contains(key, lk) {
			return l, true
		}
	}
	return layout.Line{}, false
}

// dominantSignature is the signature covering most characters on the line.
func dominantSignature(line layout.Line) (Signature, bool) {
	chars := make(map[Signature]int)
	for _, s := range line.Spans {
		if t := trimmed(s.Text); t != "" {
			chars[SignatureOf(s)] += len([]rune(t))
		}
	}
	var best Signature
	bestN := 0
	for sig, n := range chars {
		if n > bestN || (n == bestN && lessSig(sig, best)) {
			best, bestN = sig, n
		}
	}
	return best, bestN > 0
}

// majorityLevel picks the most frequent level; ties go to the shallower one.
func majorityLevel(byLevel map[int]int) (level, count int) {
	for l, n := range byLevel {
		if n > count || (n == count && l < level) {
			level, count = l, n
		}
	}
	return level, count
}

func trimmed(s string) string { return strings.TrimSpace(s) }
