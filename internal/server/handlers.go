package server

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"camrelay/internal/models"
	"camrelay/internal/store"
)

// checkToken validates the shared secret, from the X-API-Key header or
// the token query parameter. A single static comparison; no lockout.
func (s *Server) checkToken(r *http.Request) bool {
	token := r.Header.Get("X-API-Key")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.Auth.Token)) == 1
}

// handleUpload is the upload gateway: auth, payload validation, image
// write, then best-effort metadata write, journal insert, and broadcast.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !s.checkToken(r) {
		s.writeError(w, NewUnauthorizedError("Unauthorized"))
		return
	}

	// Hard cap on the request body; without it ParseMultipartForm only
	// bounds the memory spool and oversized payloads still land on disk.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Store.MaxUploadSize)

	if err := r.ParseMultipartForm(s.cfg.Store.MaxUploadSize); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeError(w, NewBadRequestError("Photo payload too large"))
			return
		}
		s.writeError(w, NewBadRequestError("Invalid multipart form"))
		return
	}

	file, header, err := r.FormFile("photo")
	if err != nil {
		s.writeError(w, NewBadRequestError("No file part: photo"))
		return
	}
	defer file.Close()

	if header.Filename == "" {
		s.writeError(w, NewBadRequestError("Empty filename"))
		return
	}

	image, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, NewBadRequestError("Failed to read photo"))
		return
	}
	if len(image) == 0 {
		s.writeError(w, NewBadRequestError("Empty photo payload"))
		return
	}

	// The image write is the only critical step. Everything after it is
	// best-effort and never rolls it back.
	filename, err := s.store.Save(image)
	if err != nil {
		s.logger.Error("image write failed", "error", err)
		s.writeError(w, NewStorageError("Failed to store photo", err))
		return
	}

	receivedTS := time.Now().Unix()
	meta := store.MetadataFromForm(r.Form)
	_, hasLat := meta["lat"]
	_, hasLon := meta["lon"]
	hasLocation := hasLat && hasLon
	meta["received_ts"] = receivedTS
	meta["photo_filename"] = filename

	if err := s.store.SaveMetadata(filename, meta); err != nil {
		// Degraded write: the photo stands without its sidecar.
		s.logger.Warn("metadata write failed", "filename", filename, "error", err)
	}

	if err := s.db.LogUpload(&models.UploadRecord{
		Filename:    filename,
		SizeBytes:   int64(len(image)),
		HasLocation: hasLocation,
		RemoteAddr:  r.RemoteAddr,
		ReceivedAt:  time.Unix(receivedTS, 0).UTC(),
	}); err != nil {
		s.logger.Warn("upload journal insert failed", "filename", filename, "error", err)
	}

	s.hub.NotifyNewPhoto(filename, receivedTS, hasLocation)

	s.logger.Info("photo stored", "filename", filename, "bytes", len(image), "has_location", hasLocation)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"filename":  filename,
		"timestamp": receivedTS,
	})
}

// handleLatest returns the newest photo, or filename:null on an empty
// store. An empty store is not an error.
func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	filename, mtime, err := s.store.Latest()
	if err != nil {
		s.logger.Error("latest scan failed", "error", err)
		s.writeError(w, NewStorageError("Failed to list photos", err))
		return
	}
	if filename == "" {
		s.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "filename": nil})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"filename":  filename,
		"timestamp": mtime,
	})
}

// handleAll returns every photo newest-first with its metadata, null
// where the sidecar is missing or unreadable.
func (s *Server) handleAll(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.List()
	if err != nil {
		s.logger.Error("listing failed", "error", err)
		s.writeError(w, NewStorageError("Failed to list photos", err))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "files": entries})
}

// handleServeUpload delivers a raw photo or sidecar, constrained to the
// upload directory.
func (s *Server) handleServeUpload(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["filename"]
	path, err := s.store.Path(name)
	if err != nil {
		s.writeError(w, NewBadRequestError("Invalid file path"))
		return
	}
	http.ServeFile(w, r, path)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"status":    "running",
		"timestamp": time.Now().Unix(),
	})
}

// handleDashboard reports journal totals, recent uploads, and the live
// client count.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.Stats()
	if err != nil {
		s.logger.Error("journal stats failed", "error", err)
		s.writeError(w, NewInternalError("Failed to read upload journal", err))
		return
	}
	recent, err := s.db.RecentUploads(20)
	if err != nil {
		s.logger.Error("journal query failed", "error", err)
		s.writeError(w, NewInternalError("Failed to read upload journal", err))
		return
	}
	if recent == nil {
		recent = []*models.UploadRecord{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"stats":     stats,
		"recent":    recent,
		"connected": s.hub.ClientCount(),
	})
}
