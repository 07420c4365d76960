// Package scan decides whether a document is born-digital or a scan that
// needs text recognition.
package scan

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dgallion1/docstruct/internal/config"
	"github.com/dgallion1/docstruct/internal/layout"
)

// pointsPerSquareInch converts page area from points² to in².
const pointsPerSquareInch = 72 * 72

// Verdict is the classifier's decision plus the measurements behind it.
type Verdict struct {
	Scanned        bool    `json:"scanned"`
	SampledPages   int     `json:"sampled_pages"`
	Chars          int     `json:"chars"`
	AreaSqIn       float64 `json:"area_sq_in"`
	Density        float64 `json:"density"`
	PrintableRatio float64 `json:"printable_ratio"`
	Reason         string  `json:"reason,omitempty"`
}

// Label is "scanned" or "born_digital".
func (v Verdict) Label() string {
	if v.Scanned {
		return "scanned"
	}
	return "born_digital"
}

// Classify samples the first pages of doc and compares text density with
// the configured threshold. It fails closed: any error reports scanned.
func Classify(doc layout.Document, opts config.Options) (v Verdict) {
	defer func() {
		if r := recover(); r != nil {
			v = Verdict{Scanned: true, Reason: fmt.Sprintf("sampling panicked: %v", r)}
		}
	}()

	if doc == nil {
		return Verdict{Scanned: true, Reason: "no document"}
	}
	n := min(doc.PageCount(), opts.ScanSamplePages)
	if n <= 0 {
		return Verdict{Scanned: true, Reason: "no pages"}
	}

	var chars, printable int
	var area float64
	for i := range n {
		text, err := doc.PageText(i)
		if err != nil {
			return Verdict{Scanned: true, SampledPages: i, Reason: fmt.Sprintf("page %d text: %v", i, err)}
		}
		box, err := doc.PageBounds(i)
		if err != nil {
			return Verdict{Scanned: true, SampledPages: i, Reason: fmt.Sprintf("page %d bounds: %v", i, err)}
		}
		text = strings.TrimSpace(text)
		chars += utf8.RuneCountInString(text)
		printable += countPrintable(text)
		area += box.Area()
	}

	v = Verdict{
		SampledPages:   n,
		Chars:          chars,
		AreaSqIn:       area / pointsPerSquareInch,
		PrintableRatio: 1,
	}
	if chars > 0 {
		v.PrintableRatio = float64(printable) / float64(chars)
	}
	if v.AreaSqIn <= 0 {
		v.Scanned = true
		v.Reason = "zero page area"
		return v
	}
	v.Density = float64(chars) / v.AreaSqIn
	if v.Density < opts.DensityThreshold {
		v.Scanned = true
		v.Reason = fmt.Sprintf("density %.3f below %.3f", v.Density, opts.DensityThreshold)
	}
	return v
}

func countPrintable(text string) int {
	n := 0
	for _, r := range text {
		if r == 0xFFFD || (r >= 0xE000 && r <= 0xF8FF) {
			continue
		}
		if unicode.IsPrint(r) || unicode.IsSpace(r) {
			n++
		}
	}
	return n
}
