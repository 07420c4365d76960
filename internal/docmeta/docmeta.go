// Package docmeta extracts bibliographic metadata from a document's info
// dictionary and the text of its first pages.
package docmeta

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/docstruct/internal/layout"
)

// textPages is how many leading pages are scanned for DOI, keywords and
// abstract.
const textPages = 3

const maxKeywords = 20

// Metadata is the merged view of the info dictionary and text patterns.
type Metadata struct {
	Title    string   `json:"title,omitempty"`
	Author   string   `json:"author,omitempty"`
	Subject  string   `json:"subject,omitempty"`
	Creator  string   `json:"creator,omitempty"`
	Producer string   `json:"producer,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
	DOI      string   `json:"doi,omitempty"`
	Abstract string   `json:"abstract,omitempty"`
	Pages    int      `json:"pages"`
}

var (
	doiRe      = regexp.MustCompile(`(?:DOI|doi)[\s:]*([0-9]{2}\.[0-9]{4}/\S+)`)
	keywordsRe = regexp.MustCompile(`(?:Keywords?|Key words?)[\s:]*([^\n]+)`)
	abstractRe = regexp.MustCompile(`(?:Abstract|ABSTRACT)[\s:]*\n?`)
	// abstractEnd marks where an abstract stops. RE2 has no lookahead, so
	// the end is searched separately from the start.
	abstractEnd = regexp.MustCompile(`\n\n|Keywords|Introduction|1\.|\n[A-Z]`)
	listSplit   = regexp.MustCompile(`[,;]`)
)

// Extract reads the info dictionary and scans the first pages' text. Page
// errors are skipped; extraction never fails.
func Extract(doc layout.Document) Metadata {
	var md Metadata
	if doc == nil {
		return md
	}
	md.Pages = doc.PageCount()

	info := doc.Info()
	if t := strings.TrimSpace(info["Title"]); utf8.RuneCountInString(t) > 10 && utf8.RuneCountInString(t) < 200 {
		md.Title = t
	}
	md.Author = strings.TrimSpace(info["Author"])
	md.Subject = strings.TrimSpace(info["Subject"])
	md.Creator = strings.TrimSpace(info["Creator"])
	md.Producer = strings.TrimSpace(info["Producer"])
	if kw := info["Keywords"]; kw != "" {
		md.Keywords = splitKeywords(kw, ",")
	}

	var sb strings.Builder
	for i := 0; i < min(textPages, md.Pages); i++ {
		text, err := doc.PageText(i)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	FromText(sb.String(), &md)
	return md
}

// FromText fills DOI, keywords and abstract found in text. Fields already set
// are kept, except keywords found in the text are appended.
func FromText(text string, md *Metadata) {
	if md.DOI == "" {
		if m := doiRe.FindStringSubmatch(text); m != nil {
			md.DOI = strings.TrimRight(m[1], ".,;")
		}
	}
	if m := keywordsRe.FindStringSubmatch(text); m != nil {
		md.Keywords = mergeKeywords(md.Keywords, splitKeywords(m[1], ",;"))
	}
	if md.Abstract == "" {
		md.Abstract = findAbstract(text)
	}
}

func findAbstract(text string) string {
	loc := abstractRe.FindStringIndex(text)
	if loc == nil {
		return ""
	}
	rest := text[loc[1]:]
	end := abstractEnd.FindStringIndex(rest)
	if end == nil {
		return ""
	}
	abstract := strings.TrimSpace(rest[:end[0]])
	if utf8.RuneCountInString(abstract) <= 50 {
		return ""
	}
	return abstract
}

func splitKeywords(s, seps string) []string {
	var parts []string
	if seps == "," {
		parts = strings.Split(s, ",")
	} else {
		parts = listSplit.Split(s, -1)
	}
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if utf8.RuneCountInString(p) > 1 {
			out = append(out, p)
		}
		if len(out) == maxKeywords {
			break
		}
	}
	return out
}

func mergeKeywords(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	out := append([]string(nil), a...)
	for _, k := range a {
		seen[strings.ToLower(k)] = true
	}
	for _, k := range b {
		if len(out) == maxKeywords {
			break
		}
		if !seen[strings.ToLower(k)] {
			seen[strings.ToLower(k)] = true
			out = append(out, k)
		}
	}
	return out
}

// Fields flattens the metadata for storage and reports.
func (m Metadata) Fields() map[string]string {
	out := map[string]string{}
	set := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	set("title", m.Title)
	set("author", m.Author)
	set("subject", m.Subject)
	set("creator", m.Creator)
	set("producer", m.Producer)
	set("doi", m.DOI)
	set("abstract", m.Abstract)
	set("keywords", strings.Join(m.Keywords, ", "))
	return out
}
