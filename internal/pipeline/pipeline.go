package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgallion1/docstruct/internal/chunker"
	"github.com/dgallion1/docstruct/internal/config"
	"github.com/dgallion1/docstruct/internal/docmeta"
	"github.com/dgallion1/docstruct/internal/doctree"
	"github.com/dgallion1/docstruct/internal/headers"
	"github.com/dgallion1/docstruct/internal/hierarchy"
	"github.com/dgallion1/docstruct/internal/layout"
	"github.com/dgallion1/docstruct/internal/metrics"
	"github.com/dgallion1/docstruct/internal/parser"
	"github.com/dgallion1/docstruct/internal/recognize"
	"github.com/dgallion1/docstruct/internal/render"
	"github.com/dgallion1/docstruct/internal/scan"
	"github.com/dgallion1/docstruct/internal/tables"
)

var (
	// ErrInput marks documents that cannot be read at all.
	ErrInput = errors.New("invalid input")
	// ErrConfig marks requests rejected before any processing.
	ErrConfig = errors.New("invalid configuration")
)

// RulesMarkup is the rule kind reported for formats whose headings come from
// their own markup.
const RulesMarkup = "markup"

// Request is one document to structure and chunk.
type Request struct {
	DocID       string
	Filename    string
	Title       string
	Data        []byte
	Chunk       chunker.Config
	Recognition recognize.Policy
}

// Result is everything the pipeline learned about a document.
type Result struct {
	DocID         string               `json:"doc_id"`
	ContentHash   string               `json:"content_hash"`
	Filename      string               `json:"filename"`
	Title         string               `json:"title"`
	Format        string               `json:"format"`
	Verdict       *scan.Verdict        `json:"verdict,omitempty"`
	Recognized    bool                 `json:"recognized"`
	Rules         string               `json:"rules"`
	Assessment    hierarchy.Assessment `json:"assessment"`
	Metadata      docmeta.Metadata     `json:"metadata"`
	TablesRemoved int                  `json:"tables_removed"`
	Warnings      []string             `json:"warnings"`
	Chunks        []doctree.Chunk      `json:"chunks"`
	Text          string               `json:"-"`
}

// Report is the JSON summary persisted and stored next to a document.
func (r Result) Report() map[string]any {
	return map[string]any{
		"doc_id":         r.DocID,
		"filename":       r.Filename,
		"format":         r.Format,
		"verdict":        r.Verdict,
		"recognized":     r.Recognized,
		"rules":          r.Rules,
		"assessment":     r.Assessment.Fields(),
		"metadata":       r.Metadata,
		"tables_removed": r.TablesRemoved,
		"warnings":       r.Warnings,
		"chunks":         len(r.Chunks),
	}
}

// Pipeline runs the structuring stages for one document at a time. It holds
// no per-document state and is safe for concurrent use.
type Pipeline struct {
	opener  layout.Opener
	gate    *recognize.Gate
	opts    config.Options
	metrics *metrics.Metrics
	log     *slog.Logger
}

func New(opener layout.Opener, gate *recognize.Gate, opts config.Options, m *metrics.Metrics, log *slog.Logger) *Pipeline {
	return &Pipeline{opener: opener, gate: gate, opts: opts, metrics: m, log: log}
}

// Options returns the shared pipeline options.
func (p *Pipeline) Options() config.Options { return p.opts }

// Run structures and chunks one document. Configuration errors wrap
// ErrConfig and unreadable input wraps ErrInput; no partial result is
// returned with an error. Degraded stages add warnings instead of failing.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	cfg := req.Chunk
	if cfg.MinChars == 0 {
		cfg.MinChars = p.opts.MinChunkChars
	}
	if err := cfg.Validate(); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	policy, err := recognize.ParsePolicy(string(req.Recognition))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if len(req.Data) == 0 {
		return Result{}, fmt.Errorf("%w: empty document", ErrInput)
	}

	res := Result{
		DocID:       req.DocID,
		ContentHash: ContentHashHex(req.Data),
		Filename:    req.Filename,
	}
	if res.DocID == "" {
		res.DocID = res.ContentHash[:16]
	}
	log := p.log.With("doc_id", res.DocID, "filename", req.Filename)

	var text string
	if parser.IsPDF(req.Filename, req.Data) {
		res.Format = "pdf"
		text, err = p.structurePDF(ctx, req.Data, policy, &res, log)
	} else {
		res.Format = strings.TrimPrefix(strings.ToLower(filepath.Ext(req.Filename)), ".")
		text, err = p.structureMarkup(req.Data, req.Filename, &res)
	}
	if err != nil {
		p.metrics.ObserveDocument("failed", res.Rules, "", 0, 0, 0)
		return Result{}, err
	}
	if req.Title != "" {
		res.Title = req.Title
	}
	if res.Title == "" {
		base := filepath.Base(req.Filename)
		res.Title = strings.TrimSuffix(base, filepath.Ext(base))
	}

	text = p.stage("normalize", func() string { return hierarchy.Normalize(text, p.opts.SubtopicTerms) })
	res.Assessment = hierarchy.Assess(text)

	text = p.stage("tables", func() string {
		stripped, n := tables.Strip(text)
		res.TablesRemoved = n
		return stripped
	})
	res.Text = text

	start := time.Now()
	res.Chunks, err = chunker.Segment(text, res.DocID, cfg)
	p.metrics.ObserveStage("chunk", time.Since(start))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if len(res.Chunks) == 0 {
		res.Warnings = append(res.Warnings, "no chunks produced: text shorter than the minimum chunk length")
	}
	if res.Warnings == nil {
		res.Warnings = []string{}
	}

	p.metrics.ObserveDocument("completed", res.Rules, string(cfg.Mode), len(res.Chunks), res.TablesRemoved, len(res.Warnings))
	log.Info("document structured",
		"format", res.Format,
		"rules", res.Rules,
		"recognized", res.Recognized,
		"tables_removed", res.TablesRemoved,
		"chunks", len(res.Chunks),
		"warnings", len(res.Warnings),
	)
	return res, nil
}

// structurePDF runs classification, recognition, header inference and
// rendering. Every document handle opened here is closed before returning.
func (p *Pipeline) structurePDF(ctx context.Context, data []byte, policy recognize.Policy, res *Result, log *slog.Logger) (string, error) {
	start := time.Now()
	doc, err := p.opener.Open(data)
	p.metrics.ObserveStage("open", time.Since(start))
	if err != nil {
		return "", fmt.Errorf("%w: open document: %w", ErrInput, err)
	}
	defer doc.Close()

	start = time.Now()
	resolved := p.gate.Resolve(ctx, doc, data, policy)
	p.metrics.ObserveStage("recognize", time.Since(start))
	if resolved.Document != doc {
		defer resolved.Document.Close()
	}
	verdict := resolved.Verdict
	res.Verdict = &verdict
	res.Recognized = resolved.Recognized
	if resolved.Warning != "" {
		res.Warnings = append(res.Warnings, resolved.Warning)
	}
	work := resolved.Document

	start = time.Now()
	rules := headers.Build(work, p.opts, log)
	p.metrics.ObserveStage("headers", time.Since(start))
	res.Rules = rules.Kind.String()
	res.Warnings = append(res.Warnings, rules.Warnings...)

	start = time.Now()
	out := render.Render(work, rules, p.opts.Margins)
	p.metrics.ObserveStage("render", time.Since(start))
	res.Warnings = append(res.Warnings, out.Warnings...)

	res.Metadata = docmeta.Extract(work)
	res.Title = res.Metadata.Title
	log.Debug("rendered",
		"pages", out.Pages,
		"headings", out.Headings(),
		"dropped_spans", out.Dropped,
		"rule_levels", rules.Levels(),
	)
	return out.Text, nil
}

// structureMarkup renders formats that carry their own headings.
func (p *Pipeline) structureMarkup(data []byte, filename string, res *Result) (string, error) {
	prs, err := parser.ForFile(filename)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInput, err)
	}
	start := time.Now()
	doc, err := prs.Parse(bytes.NewReader(data), filename)
	p.metrics.ObserveStage("parse", time.Since(start))
	if err != nil {
		return "", fmt.Errorf("%w: parse %s: %w", ErrInput, filename, err)
	}
	res.Rules = RulesMarkup
	res.Title = doc.Title
	text := doc.Markdown()

	res.Metadata = docmeta.Metadata{Title: doc.Title, Pages: 1}
	docmeta.FromText(text, &res.Metadata)
	return text, nil
}

func (p *Pipeline) stage(name string, fn func() string) string {
	start := time.Now()
	out := fn()
	p.metrics.ObserveStage(name, time.Since(start))
	return out
}
