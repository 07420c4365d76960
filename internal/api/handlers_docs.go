package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/dgallion1/docstruct/internal/store"
	"github.com/go-chi/chi/v5"
)

// handleListDocuments lists stored documents, newest first.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		jsonError(w, "document store unavailable", http.StatusServiceUnavailable)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	docs, err := s.Store.List(r.Context(), limit, offset)
	if err != nil {
		jsonError(w, "failed to list documents: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		jsonError(w, "document store unavailable", http.StatusServiceUnavailable)
		return
	}
	doc, err := s.Store.Get(r.Context(), chi.URLParam(r, "docID"))
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDocumentChunks(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		jsonError(w, "document store unavailable", http.StatusServiceUnavailable)
		return
	}
	docID := chi.URLParam(r, "docID")
	chunks, err := s.Store.Chunks(r.Context(), docID)
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"doc_id": docID, "chunks": chunks})
}

// handleDeleteDocument deletes a document locally and, when a publish sink
// is configured, its remote subtree.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		jsonError(w, "document store unavailable", http.StatusServiceUnavailable)
		return
	}
	docID := chi.URLParam(r, "docID")
	if err := s.Store.Delete(r.Context(), docID); err != nil {
		storeError(w, err)
		return
	}

	resp := map[string]any{"doc_id": docID, "deleted": true}
	if s.Publisher != nil {
		if err := s.Publisher.DeleteDocument(r.Context(), docID); err != nil {
			s.log.Warn("remote delete failed", "doc_id", docID, "error", err)
			resp["remote_error"] = err.Error()
		} else {
			resp["remote_deleted"] = true
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	}
	jsonError(w, err.Error(), http.StatusInternalServerError)
}
