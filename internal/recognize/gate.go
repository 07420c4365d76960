package recognize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgallion1/docstruct/internal/config"
	"github.com/dgallion1/docstruct/internal/layout"
	"github.com/dgallion1/docstruct/internal/scan"
	"github.com/dgallion1/docstruct/internal/stats"
)

// Policy selects when the engine runs.
type Policy string

const (
	PolicyAuto  Policy = "auto"  // only for documents classified as scanned
	PolicyForce Policy = "force" // always, re-recognizing existing text
	PolicySkip  Policy = "skip"  // never
)

// ParsePolicy accepts auto, force and skip, plus true/false for force/skip.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return PolicyAuto, nil
	case "force", "true", "on":
		return PolicyForce, nil
	case "skip", "false", "off":
		return PolicySkip, nil
	}
	return "", fmt.Errorf("unknown recognition policy %q (want auto, force or skip)", s)
}

// Observer receives one call per engine invocation. Outcome is "ok",
// "error" or "timeout".
type Observer interface {
	ObserveRecognition(engine, outcome string, elapsed time.Duration)
}

// Resolution is the document the rest of the pipeline should use.
type Resolution struct {
	Document   layout.Document
	Verdict    scan.Verdict
	Invoked    bool // the engine was called
	Recognized bool // Document is the engine's output
	Warning    string
}

// Gate decides whether to run recognition and falls back to the original
// document whenever recognition does not produce a usable result.
type Gate struct {
	engine    Engine
	opener    layout.Opener
	opts      config.Options
	log       *slog.Logger
	tempDir   string
	latency   *stats.Latency
	observers []Observer
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithTempDir sets where intermediate files are written.
func WithTempDir(dir string) GateOption { return func(g *Gate) { g.tempDir = dir } }

// WithLatency records every engine call in l.
func WithLatency(l *stats.Latency) GateOption { return func(g *Gate) { g.latency = l } }

// WithObserver adds an observer of engine calls.
func WithObserver(o Observer) GateOption {
	return func(g *Gate) { g.observers = append(g.observers, o) }
}

func NewGate(engine Engine, opener layout.Opener, opts config.Options, log *slog.Logger, gopts ...GateOption) *Gate {
	if engine == nil {
		engine = Noop{}
	}
	g := &Gate{
		engine: engine,
		opener: opener,
		opts:   opts,
		log:    log,
	}
	for _, fn := range gopts {
		fn(g)
	}
	return g
}

// EngineName names the configured engine.
func (g *Gate) EngineName() string { return g.engine.Name() }

// Resolve classifies doc and, depending on policy, replaces it with the
// engine's output. data must be the bytes doc was opened from. The caller
// owns both the original and any returned document and must close them.
func (g *Gate) Resolve(ctx context.Context, doc layout.Document, data []byte, policy Policy) Resolution {
	res := Resolution{Document: doc}

	switch policy {
	case PolicySkip:
		res.Verdict = scan.Classify(doc, g.opts)
		return res
	case PolicyForce:
		res.Verdict = scan.Classify(doc, g.opts)
	case PolicyAuto, "":
		res.Verdict = scan.Classify(doc, g.opts)
		if !res.Verdict.Scanned {
			return res
		}
	default:
		res.Warning = fmt.Sprintf("unknown recognition policy %q, skipping recognition", policy)
		return res
	}

	log := g.log.With("engine", g.engine.Name(), "policy", string(policy), "verdict", res.Verdict.Label())
	res.Invoked = true

	out, err := g.run(ctx, data, policy == PolicyForce)
	if err != nil {
		log.Warn("recognition failed, using original document", "error", err)
		res.Warning = "recognition failed: " + err.Error()
		return res
	}

	recognized, err := g.opener.Open(out)
	if err != nil {
		log.Warn("recognized output unreadable, using original document", "error", err)
		res.Warning = "recognized output unreadable: " + err.Error()
		return res
	}
	log.Info("document recognized", "bytes", len(out), "pages", recognized.PageCount())
	res.Document = recognized
	res.Recognized = true
	return res
}

// run invokes the engine inside a scratch directory that is always removed.
// The engine call is bounded by the configured timeout; on timeout the gate
// stops waiting and returns ErrTimeout.
func (g *Gate) run(ctx context.Context, data []byte, force bool) (out []byte, err error) {
	dir, err := os.MkdirTemp(g.tempDir, "docstruct-ocr-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	inPath := filepath.Join(dir, "input.pdf")
	outPath := filepath.Join(dir, "output.pdf")
	if err := os.WriteFile(inPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("write input: %w", err)
	}

	opts := NewOptions(
		WithLanguages(g.opts.OCRLanguages...),
		WithForce(force),
	)

	timeout := g.opts.RecognitionTimeout
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- g.engine.Recognize(callCtx, inPath, outPath, opts)
	}()

	outcome := "ok"
	defer func() {
		elapsed := time.Since(start)
		if g.latency != nil {
			g.latency.Record(elapsed, outcome != "ok")
		}
		for _, o := range g.observers {
			o.ObserveRecognition(g.engine.Name(), outcome, elapsed)
		}
	}()

	select {
	case err = <-done:
	case <-callCtx.Done():
		if ctx.Err() != nil {
			outcome = "error"
			return nil, fmt.Errorf("recognition abandoned: %w", ctx.Err())
		}
		outcome = "timeout"
		return nil, fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
	if err != nil {
		outcome = "error"
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = "timeout"
			return nil, fmt.Errorf("%w after %s: %v", ErrTimeout, timeout, err)
		}
		return nil, err
	}

	out, err = os.ReadFile(outPath)
	if err != nil {
		outcome = "error"
		return nil, fmt.Errorf("read output: %w", err)
	}
	if len(out) == 0 {
		outcome = "error"
		return nil, fmt.Errorf("engine produced an empty document")
	}
	return out, nil
}
