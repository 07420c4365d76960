package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/docstruct/internal/doctree"
	"github.com/dgallion1/docstruct/internal/render"
	"github.com/dgallion1/docstruct/internal/store"
)

// DocumentStore is the local chunk store used for dedup and retrieval.
type DocumentStore interface {
	FindByHash(ctx context.Context, hash string) (string, bool, error)
	SaveDocument(ctx context.Context, doc store.Document, chunks []doctree.Chunk) error
}

// ChunkPublisher pushes structured documents to a remote sink.
type ChunkPublisher interface {
	PublishMeta(ctx context.Context, docID string, meta map[string]any) error
	PublishChunk(ctx context.Context, docID string, c doctree.Chunk) error
}

// Worker processes a single document job.
type Worker struct {
	pipeline   *Pipeline
	store      DocumentStore
	publisher  ChunkPublisher
	persistDir string
	log        *slog.Logger

	maxConcurrentPublish int
	backoff              func(attempt int) time.Duration
}

// NewWorker builds a worker. store and publisher may be nil.
func NewWorker(p *Pipeline, st DocumentStore, pub ChunkPublisher, persistDir string, log *slog.Logger, maxPublish int) *Worker {
	if maxPublish <= 0 {
		maxPublish = 1
	}
	return &Worker{
		pipeline:             p,
		store:                st,
		publisher:            pub,
		persistDir:           persistDir,
		log:                  log,
		maxConcurrentPublish: maxPublish,
		backoff:              Backoff,
	}
}

// Process runs the full ingest pipeline for a job.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "doc_id", job.DocID)
	defer job.releaseFileData()

	data := job.FileData()
	job.setContentHash(ContentHashHex(data))

	// Phase 1: Dedup check
	if w.store != nil && !job.Options.Force {
		existing, found, err := w.store.FindByHash(ctx, job.ContentHash)
		if err != nil {
			log.Warn("dedup check failed, proceeding", "error", err)
		} else if found {
			log.Info("duplicate document, skipping", "existing_doc_id", existing)
			job.setDuplicateOf(existing)
			job.SetStatus(StatusDupSkipped, "dedup")
			return
		}
	}

	// Phase 2: Structure and chunk
	job.SetStatus(StatusStructuring, "structuring")
	res, err := w.pipeline.Run(ctx, Request{
		DocID:       job.DocID,
		Filename:    job.Filename,
		Title:       job.Title,
		Data:        data,
		Chunk:       job.Options.Chunk,
		Recognition: job.Options.Recognition,
	})
	if err != nil {
		log.Error("structuring failed", "error", err)
		job.AddError(err.Error())
		job.SetStatus(StatusFailed, "structuring")
		return
	}
	job.AddWarnings(res.Warnings...)
	job.SetTotalChunks(len(res.Chunks))
	log.Info("chunked document", "chunks", len(res.Chunks), "rules", res.Rules)

	if job.Options.Persist && w.persistDir != "" {
		if err := render.Persist(w.persistDir, res.DocID, res.Text, res.Report()); err != nil {
			log.Warn("persist failed", "dir", w.persistDir, "error", err)
		}
	}

	// Phase 3: Store locally
	stored := false
	if w.store != nil {
		job.SetStatus(StatusStoring, "storing")
		doc, err := StoredDocument(res, string(job.Options.Chunk.Mode))
		if err == nil {
			err = w.store.SaveDocument(ctx, doc, res.Chunks)
		}
		if err != nil {
			log.Error("store failed", "error", err)
			job.AddError(fmt.Sprintf("store: %s", err))
			job.SetStatus(StatusFailed, "storing")
			return
		}
		stored = true
		job.SetChunksStored(len(res.Chunks))
	}

	// Phase 4: Publish with bounded concurrency
	if w.publisher == nil {
		job.SetStatus(StatusCompleted, "done")
		return
	}
	job.SetStatus(StatusPublishing, "publishing")
	published, failed := w.publish(ctx, job, res, log)
	log.Info("publish complete", "published", published, "failed", failed, "total", len(res.Chunks))

	switch {
	case failed == 0:
		job.SetStatus(StatusCompleted, "done")
	case stored || published > 0:
		job.SetStatus(StatusPartial, "done")
	default:
		job.SetStatus(StatusFailed, "publishing")
	}
}

// publish sends the meta node and every chunk, retrying transient errors.
func (w *Worker) publish(ctx context.Context, job *Job, res Result, log *slog.Logger) (published, failed int) {
	meta := res.Report()
	meta["title"] = res.Title
	meta["content_hash"] = res.ContentHash
	meta["created_at"] = job.CreatedAt.Format(time.RFC3339)
	err := withRetry(ctx, w.backoff, func() error {
		return logRetry(log, "meta", w.publisher.PublishMeta(ctx, res.DocID, meta))
	})
	if err != nil {
		log.Error("meta publish failed", "error", err)
		job.AddError(fmt.Sprintf("publish meta: %s", err))
		failed++
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, w.maxConcurrentPublish)
	)
	for _, c := range res.Chunks {
		sem <- struct{}{}
		wg.Add(1)
		go func(c doctree.Chunk) {
			defer wg.Done()
			defer func() { <-sem }()
			err := withRetry(ctx, w.backoff, func() error {
				return logRetry(log, fmt.Sprintf("chunk %d", c.Metadata.ChunkIndex),
					w.publisher.PublishChunk(ctx, res.DocID, c))
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Error("chunk publish failed", "chunk", c.Metadata.ChunkIndex, "error", err)
				job.AddError(fmt.Sprintf("publish chunk %d: %s", c.Metadata.ChunkIndex, err))
				failed++
				return
			}
			job.IncrChunksPublished()
			published++
		}(c)
	}
	wg.Wait()
	return published, failed
}

// logRetry logs retryable errors before they are retried.
func logRetry(log *slog.Logger, what string, err error) error {
	if err != nil && IsRetryable(err) {
		log.Warn("retryable publish error", "item", what, "error", err)
	}
	return err
}

// StoredDocument converts a result into its store row.
func StoredDocument(res Result, mode string) (store.Document, error) {
	report, err := json.Marshal(res.Report())
	if err != nil {
		return store.Document{}, fmt.Errorf("encode report: %w", err)
	}
	doc := store.Document{
		ID:          res.DocID,
		ContentHash: res.ContentHash,
		Filename:    res.Filename,
		Title:       res.Title,
		Format:      res.Format,
		Rules:       res.Rules,
		Recognized:  res.Recognized,
		ChunkMode:   mode,
		Report:      report,
	}
	if res.Verdict != nil {
		doc.Scanned = res.Verdict.Scanned
	}
	return doc, nil
}
