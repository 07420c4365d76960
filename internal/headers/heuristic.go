package headers

import (
	"slices"

	"github.com/dgallion1/docstruct/internal/config"
	"github.com/dgallion1/docstruct/internal/layout"
)

// fromHeuristic ranks the distinct font sizes of the sampled pages and
// assigns levels to the largest ones. At each size the most frequent
// eligible signature wins. A signature is eligible when it is larger than
// the body threshold or bold, and is not the dominant body signature.
// Ineligible sizes still consume their rank; levels are then renumbered
// 1..K without gaps.
func fromHeuristic(doc layout.Document, opts config.Options) RuleSet {
	stats := collectSignatures(doc, opts.HeuristicSamplePages)
	if len(stats) == 0 {
		return RuleSet{Kind: KindNone, Warnings: []string{"no text found on sampled pages"}}
	}
	body, _ := bodySignature(stats)

	var sizes []float64
	for sig := range stats {
		sizes = append(sizes, sig.Size)
	}
	slices.Sort(sizes)
	sizes = slices.Compact(sizes)
	slices.Reverse(sizes)
	if len(sizes) > opts.MaxHeaderLevels {
		sizes = sizes[:opts.MaxHeaderLevels]
	}

	rs := RuleSet{Kind: KindHeuristic, BodyLimit: opts.BodyFontSizeThreshold}
	for _, size := range sizes {
		best := pickAtSize(stats, size, body, opts.BodyFontSizeThreshold)
		if best == nil {
			continue
		}
		rs.Rules = append(rs.Rules, Rule{
			Level:     len(rs.Rules) + 1,
			Signature: best.sig,
			Count:     best.count,
			AvgLen:    float64(best.chars) / float64(best.count),
			Examples:  best.examples,
		})
	}
	if len(rs.Rules) == 0 {
		return RuleSet{Kind: KindNone, Warnings: []string{"no heading candidates found"}}
	}
	return rs
}

func pickAtSize(stats map[Signature]*sigStats, size float64, body Signature, threshold float64) *sigStats {
	var best *sigStats
	for sig, st := range stats {
		if sig.Size != size || sig == body {
			continue
		}
		if sig.Size <= threshold && !sig.Bold {
			continue
		}
		if best == nil || st.count > best.count || (st.count == best.count && lessSig(sig, best.sig)) {
			best = st
		}
	}
	return best
}

// Describe summarizes the rule set for logs and reports.
func (r RuleSet) Describe() map[string]any {
	rules := make([]map[string]any, 0, len(r.Rules))
	for _, rule := range r.Rules {
		rules = append(rules, map[string]any{
			"level":     rule.Level,
			"signature": rule.Signature.String(),
			"count":     rule.Count,
		})
	}
	return map[string]any{"kind": r.Kind.String(), "rules": rules, "titles": len(r.Titles)}
}
