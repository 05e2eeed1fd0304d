package server

import (
	"encoding/json"
	"io"
	"net/http"
	"path"

	"github.com/go-chi/chi/v5"

	"taskdesk/internal/engine"
)

// Attachment upload and download bypass Huma so we can stream
// multipart bodies and blobs without buffering them in memory.
func registerUploads(router chi.Router, e engine.Engine, basePath string) {
	router.Post(path.Join(basePath, "completions/{completion_id}/files"), func(w http.ResponseWriter, r *http.Request) {
		actorID, authErr := userIDFromContext(r.Context())
		if authErr != nil {
			respondStatusError(w, authErr)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", "multipart field \"file\" required", nil))
			return
		}
		defer file.Close()
		cf, err := e.AttachCompletionFile(r.Context(),
			chi.URLParam(r, "completion_id"),
			header.Filename,
			header.Header.Get("Content-Type"),
			header.Size,
			file,
			actorID)
		if err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		writeJSON(w, http.StatusCreated, cf)
	})

	router.Post(path.Join(basePath, "proposals/{proposal_id}/files"), func(w http.ResponseWriter, r *http.Request) {
		actorID, authErr := userIDFromContext(r.Context())
		if authErr != nil {
			respondStatusError(w, authErr)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", "multipart field \"file\" required", nil))
			return
		}
		defer file.Close()
		pf, err := e.AttachProposalFile(r.Context(),
			chi.URLParam(r, "proposal_id"),
			header.Filename,
			header.Header.Get("Content-Type"),
			header.Size,
			file,
			actorID)
		if err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		writeJSON(w, http.StatusCreated, pf)
	})

	router.Get(path.Join(basePath, "completion-files/{file_id}/content"), func(w http.ResponseWriter, r *http.Request) {
		if _, authErr := userIDFromContext(r.Context()); authErr != nil {
			respondStatusError(w, authErr)
			return
		}
		cf, rc, err := e.OpenCompletionFile(r.Context(), chi.URLParam(r, "file_id"))
		if err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		defer rc.Close()
		w.Header().Set("Content-Type", cf.FileType)
		w.Header().Set("Content-Disposition", "attachment; filename=\""+cf.FileName+"\"")
		io.Copy(w, rc)
	})

	router.Get(path.Join(basePath, "proposal-files/{file_id}/content"), func(w http.ResponseWriter, r *http.Request) {
		if _, authErr := userIDFromContext(r.Context()); authErr != nil {
			respondStatusError(w, authErr)
			return
		}
		pf, rc, err := e.OpenProposalFile(r.Context(), chi.URLParam(r, "file_id"))
		if err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		defer rc.Close()
		w.Header().Set("Content-Type", pf.FileType)
		w.Header().Set("Content-Disposition", "attachment; filename=\""+pf.FileName+"\"")
		io.Copy(w, rc)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
