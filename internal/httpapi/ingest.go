package httpapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/AmberYZ/investing-agent/internal/globaltime"
)

// Uploads beyond this size are rejected before they reach blob storage.
const maxUploadBytes = 20 << 20

type ingestTextRequest struct {
	Filename string `json:"filename"`
	Text     string `json:"text"`
}

// handleIngest accepts a document as a multipart "file" part or as a JSON
// body with filename and text, stores the raw bytes, and enqueues one
// ingest job for the worker pool.
func (s *Server) handleIngest(c echo.Context) error {
	ctx := c.Request().Context()

	if s.opts.MaxQueuedJobs > 0 {
		active, err := s.countActiveJobs(ctx)
		if err != nil {
			s.logger.Error().Err(err).Msg("count active jobs failed")
			return internalError(c, "Failed to check ingest queue")
		}
		if active >= s.opts.MaxQueuedJobs {
			return fail(c, http.StatusTooManyRequests, "Ingest queue is full, retry later", map[string]any{
				"active_jobs": active,
				"max_jobs":    s.opts.MaxQueuedJobs,
			})
		}
	}

	filename, data, err := readUpload(c)
	if err != nil {
		return failValidation(c, map[string]string{"document": err.Error()})
	}

	key := fmt.Sprintf("uploads/%d_%s", globaltime.UTC().UnixNano(), sanitizeFilename(filename))
	uri, err := s.blobs.Put(ctx, key, data)
	if err != nil {
		s.logger.Error().Err(err).Str("filename", filename).Msg("store upload failed")
		return internalError(c, "Failed to store document")
	}

	documentID, jobID, err := s.pool.CreateDocumentWithJob(ctx, filename, uri, int64(len(data)))
	if err != nil {
		s.logger.Error().Err(err).Str("filename", filename).Msg("enqueue ingest job failed")
		return internalError(c, "Failed to enqueue ingest job")
	}

	s.logger.Info().
		Int64("document_id", documentID).
		Int64("job_id", jobID).
		Str("filename", filename).
		Int("size_bytes", len(data)).
		Msg("document enqueued for ingest")

	return successWithStatus(c, http.StatusAccepted, map[string]any{
		"document_id": documentID,
		"job_id":      jobID,
		"status":      "queued",
	})
}

func readUpload(c echo.Context) (string, []byte, error) {
	if file, err := c.FormFile("file"); err == nil {
		if file.Size > maxUploadBytes {
			return "", nil, fmt.Errorf("file exceeds %d bytes", maxUploadBytes)
		}
		src, err := file.Open()
		if err != nil {
			return "", nil, fmt.Errorf("cannot open upload")
		}
		defer src.Close()

		data, err := io.ReadAll(io.LimitReader(src, maxUploadBytes+1))
		if err != nil {
			return "", nil, fmt.Errorf("cannot read upload")
		}
		if len(data) > maxUploadBytes {
			return "", nil, fmt.Errorf("file exceeds %d bytes", maxUploadBytes)
		}
		if len(data) == 0 {
			return "", nil, fmt.Errorf("file is empty")
		}
		return file.Filename, data, nil
	}

	var req ingestTextRequest
	if err := c.Bind(&req); err != nil {
		return "", nil, fmt.Errorf("provide a multipart file or JSON with filename and text")
	}
	if strings.TrimSpace(req.Text) == "" {
		return "", nil, fmt.Errorf("text is empty")
	}
	filename := strings.TrimSpace(req.Filename)
	if filename == "" {
		filename = "document.txt"
	}
	if len(req.Text) > maxUploadBytes {
		return "", nil, fmt.Errorf("text exceeds %d bytes", maxUploadBytes)
	}
	return filename, []byte(req.Text), nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.' || r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.txt"
	}
	return base
}

func (s *Server) countActiveJobs(ctx context.Context) (int, error) {
	var active int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM ia.ingest_jobs
		WHERE status IN ('queued', 'processing')`).Scan(&active)
	if err != nil {
		return 0, fmt.Errorf("count active jobs: %w", err)
	}
	return active, nil
}

func (s *Server) handleJobs(c echo.Context) error {
	limit, err := parsePositiveInt(c.QueryParam("limit"), defaultListLimit, 1, maxListLimit)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}
	status := strings.TrimSpace(strings.ToLower(c.QueryParam("status")))

	items, err := s.pool.ListIngestJobs(c.Request().Context(), status, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("query ingest jobs failed")
		return internalError(c, "Failed to load ingest jobs")
	}

	return success(c, map[string]any{
		"items":  items,
		"status": status,
		"limit":  limit,
	})
}

// handleRequeueJobs flips errored jobs back to queued so the worker pool
// picks them up again.
func (s *Server) handleRequeueJobs(c echo.Context) error {
	requeued, err := s.pool.RequeueErroredJobs(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("requeue jobs failed")
		return internalError(c, "Failed to requeue jobs")
	}

	s.logger.Info().Int64("requeued", requeued).Msg("errored ingest jobs requeued")
	return success(c, map[string]any{
		"requeued": requeued,
	})
}
