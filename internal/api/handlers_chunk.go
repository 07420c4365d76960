package api

import (
	"errors"
	"net/http"

	"github.com/dgallion1/docstruct/internal/pipeline"
	"github.com/dgallion1/docstruct/internal/render"
)

// handleChunk structures and chunks one upload synchronously.
func (s *Server) handleChunk(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	opts, err := s.requestOptions(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := s.readUpload(file)
	if errors.Is(err, errTooLarge) {
		jsonError(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return
	}

	res, err := s.Pipeline.Run(r.Context(), pipeline.Request{
		DocID:       r.FormValue("doc_id"),
		Filename:    sanitizeFilename(header.Filename),
		Title:       r.FormValue("title"),
		Data:        data,
		Chunk:       opts.Chunk,
		Recognition: opts.Recognition,
	})
	switch {
	case errors.Is(err, pipeline.ErrConfig):
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, pipeline.ErrInput):
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	case err != nil:
		s.log.Error("chunk request failed", "filename", header.Filename, "error", err)
		jsonError(w, "processing failed", http.StatusInternalServerError)
		return
	}

	if opts.Persist && s.cfg.PersistDir != "" {
		if err := render.Persist(s.cfg.PersistDir, res.DocID, res.Text, res.Report()); err != nil {
			s.log.Warn("persist failed", "doc_id", res.DocID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"doc_id":         res.DocID,
		"title":          res.Title,
		"format":         res.Format,
		"rules":          res.Rules,
		"recognized":     res.Recognized,
		"tables_removed": res.TablesRemoved,
		"chunks":         res.Chunks,
		"warnings":       res.Warnings,
		"assessment":     res.Assessment,
		"metadata":       res.Metadata,
	})
}
