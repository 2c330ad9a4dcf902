package server

import (
	"errors"
	"mime"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"kiln/internal/content"
	"kiln/internal/datastore"
	"kiln/internal/job"
	"kiln/internal/logging"
)

const defaultContentType = "application/octet-stream"

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	j, err := s.engine.Deserialize(chi.URLParam(r, "token"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.verify {
		if _, err := j.ValidateSHA(r.URL.Query().Get("sha")); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	ctx = logging.WithJobSHA(ctx, j.SHA())
	logger := logging.WithContext(ctx, s.logger)

	key := j.CacheKey()
	etag := strconv.Quote(key)
	if match := r.Header.Get("If-None-Match"); match != "" && etagMatches(match, etag) {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	result, hit, err := s.cache.Get(ctx, key)
	if err != nil {
		logging.WarnWithContext(logger, "result cache read failed", "server_cache_read_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "job applied without cache"),
		)
	}
	if !hit {
		if _, err := j.Apply(ctx); err != nil {
			s.writeError(w, r, err)
			return
		}
		result = j.Content()
		if err := s.cache.Put(ctx, key, result); err != nil {
			logging.WarnWithContext(logger, "result cache write failed", "server_cache_write_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check cache dir permissions and free space"),
				logging.String(logging.FieldImpact, "result not cached"),
			)
		}
	}

	writeContent(w, result, chi.URLParam(r, "name"), etag, hit)
	logger.Debug("job served",
		logging.String("steps", j.UniqueString()),
		logging.Int("size", result.Size()),
		logging.Bool("cache_hit", hit),
	)
}

func writeContent(w http.ResponseWriter, c *content.Content, name, etag string, hit bool) {
	h := w.Header()
	contentType := c.MimeType()
	if contentType == "" {
		contentType = defaultContentType
	}
	h.Set("Content-Type", contentType)
	h.Set("Content-Length", strconv.Itoa(c.Size()))
	h.Set("ETag", etag)
	h.Set("Cache-Control", "public, max-age=31536000")
	if hit {
		h.Set("X-Kiln-Cache", "hit")
	} else {
		h.Set("X-Kiln-Cache", "miss")
	}
	if name == "" {
		name = c.Name()
	}
	if name != "" {
		if disposition := mime.FormatMediaType("inline", map[string]string{"filename": name}); disposition != "" {
			h.Set("Content-Disposition", disposition)
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(c.Data())
}

func etagMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

// StatusFor maps a job error onto an HTTP status code.
func StatusFor(err error) int {
	var upstream *job.ErrorResponse
	switch {
	case err == nil:
		return http.StatusOK
	case job.IsMalformed(err):
		return http.StatusBadRequest
	case errors.Is(err, job.ErrNoSHAGiven), errors.Is(err, job.ErrIncorrectSHA):
		return http.StatusForbidden
	case errors.Is(err, datastore.ErrDataNotFound), errors.Is(err, datastore.ErrInvalidUID), errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	case errors.As(err, &upstream):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	logger := logging.WithContext(r.Context(), s.logger)
	if status >= http.StatusInternalServerError {
		logging.WarnWithContext(logger, "job request failed", "server_job_failed",
			logging.Error(err),
			logging.Int("status", status),
			logging.String(logging.FieldImpact, "request returned an error"),
		)
	} else {
		logger.Debug("job request rejected", logging.Error(err), logging.Int("status", status))
	}
	http.Error(w, http.StatusText(status), status)
}
