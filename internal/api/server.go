package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dunamismax/photoflow/internal/domain"
	"github.com/dunamismax/photoflow/internal/id"
	"github.com/dunamismax/photoflow/internal/loader"
	"github.com/dunamismax/photoflow/internal/pipeline"
	"github.com/dunamismax/photoflow/internal/queue"
	"github.com/dunamismax/photoflow/internal/store"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/trace"
)

type Server struct {
	logger                *log.Logger
	queueClient           queueEnqueuer
	batchStore            store.BatchStore
	storage               objectStorage
	presignTTL            time.Duration
	mux                   *http.ServeMux
	metrics               *metrics
	rateLimiter           RateLimiter
	rateLimitUserIDHeader string
	tracer                trace.Tracer
}

type queueEnqueuer interface {
	EnqueueProcessBatch(ctx context.Context, payload queue.ProcessBatchPayload) (*asynq.TaskInfo, error)
}

type objectStorage interface {
	PresignedPutURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
	ObjectExists(ctx context.Context, objectKey string) (bool, error)
}

// Options carries the optional server collaborators. Zero values disable the
// corresponding middleware.
type Options struct {
	PresignTTL            time.Duration
	RateLimiter           RateLimiter
	RateLimitUserIDHeader string
	Tracer                trace.Tracer
}

func NewServer(logger *log.Logger, queueClient queueEnqueuer, batchStore store.BatchStore, storage objectStorage, opts Options) *Server {
	presignTTL := opts.PresignTTL
	if presignTTL <= 0 {
		presignTTL = 15 * time.Minute
	}
	if storage == nil {
		storage = unavailableObjectStorage{}
	}
	userIDHeader := opts.RateLimitUserIDHeader
	if strings.TrimSpace(userIDHeader) == "" {
		userIDHeader = "X-User-ID"
	}

	s := &Server{
		logger:                logger,
		queueClient:           queueClient,
		batchStore:            batchStore,
		storage:               storage,
		presignTTL:            presignTTL,
		mux:                   http.NewServeMux(),
		metrics:               newMetrics(),
		rateLimiter:           opts.RateLimiter,
		rateLimitUserIDHeader: userIDHeader,
		tracer:                opts.Tracer,
	}
	s.routes()
	return s
}

type unavailableObjectStorage struct{}

func (unavailableObjectStorage) PresignedPutURL(_ context.Context, _ string, _ time.Duration) (string, error) {
	return "", errors.New("object storage is unavailable")
}

func (unavailableObjectStorage) ObjectExists(_ context.Context, _ string) (bool, error) {
	return false, errors.New("object storage is unavailable")
}

func (s *Server) Handler() http.Handler {
	return s.metrics.withHTTPMetrics(s.withTracing(s.withRateLimit(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())
	s.mux.HandleFunc("POST /v1/batches", s.handleCreateBatch)
	s.mux.HandleFunc("POST /v1/batches/", s.handleStartBatch)
	s.mux.HandleFunc("POST /v1/previews", s.handlePreview)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateBatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	now := time.Now().UTC()
	batchID := id.New()
	sourceType := strings.ToLower(strings.TrimSpace(req.SourceType))

	// Bucket-sourced batches get server-assigned object keys before
	// validation; the client uploads to the presigned URLs afterwards.
	uploads := make([]map[string]string, 0)
	if sourceType == domain.SourceTypeS3Presigned {
		for i := range req.Sources {
			if strings.TrimSpace(req.Sources[i].ObjectKey) == "" {
				req.Sources[i].ObjectKey = fmt.Sprintf("uploads/%s/%03d", batchID, i)
			}
			url, err := s.storage.PresignedPutURL(r.Context(), req.Sources[i].ObjectKey, s.presignTTL)
			if err != nil {
				s.logger.Printf("generate presigned url failed for batch %s: %v", batchID, err)
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to generate upload URL"})
				return
			}
			uploads = append(uploads, map[string]string{
				"object_key":        req.Sources[i].ObjectKey,
				"presigned_put_url": url,
			})
		}
	}

	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	batch := domain.Batch{
		ID:         batchID,
		UserID:     strings.TrimSpace(r.Header.Get(s.rateLimitUserIDHeader)),
		Status:     domain.BatchStatusCreated,
		SourceType: sourceType,
		WebhookURL: req.WebhookURL,
		OutputDir:  req.OutputDir,
		Sources:    req.Sources,
		Pipeline:   req.Pipeline,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.batchStore.Create(r.Context(), batch); err != nil {
		s.logger.Printf("create batch failed for batch %s: %v", batch.ID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create batch"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"batch_id":  batch.ID,
		"status":    batch.Status,
		"photos":    len(batch.Sources),
		"uploads":   uploads,
		"start_url": fmt.Sprintf("/v1/batches/%s/start", batch.ID),
	})
}

func (s *Server) handleStartBatch(w http.ResponseWriter, r *http.Request) {
	batchID, err := extractBatchIDFromStartPath(r.URL.Path)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	batch, ok, err := s.batchStore.Get(r.Context(), batchID)
	if err != nil {
		s.logger.Printf("fetch batch failed for batch %s: %v", batchID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load batch"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "batch not found"})
		return
	}

	if err := s.verifySourcesExist(r.Context(), batch); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}

	payload := queue.ProcessBatchPayload{
		BatchID:     batch.ID,
		SourceType:  batch.SourceType,
		WebhookURL:  batch.WebhookURL,
		OutputDir:   batch.OutputDir,
		Sources:     batch.Sources,
		Pipeline:    batch.Pipeline,
		RequestedAt: time.Now().UTC(),
	}

	taskInfo, err := s.queueClient.EnqueueProcessBatch(r.Context(), payload)
	if err != nil {
		s.logger.Printf("enqueue failed for batch %s: %v", batch.ID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to enqueue batch"})
		return
	}
	s.metrics.queueEnqueued.WithLabelValues(taskInfo.Queue).Inc()

	if _, err := s.batchStore.UpdateStatus(r.Context(), batch.ID, domain.BatchStatusQueued); err != nil {
		s.logger.Printf("update status failed for batch %s: %v", batch.ID, err)
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"batch_id":    batch.ID,
		"status":      domain.BatchStatusQueued,
		"queue":       taskInfo.Queue,
		"task_id":     taskInfo.ID,
		"state":       taskInfo.State.String(),
		"enqueued_at": taskInfo.NextProcessAt,
	})
}

type previewRequest struct {
	SourcePath string            `json:"source_path"`
	Pipeline   []domain.StepSpec `json:"pipeline"`
	Sequence   int               `json:"sequence,omitempty"`
}

// handlePreview renders the pipeline over one local photo entirely in memory
// and returns the downscaled result as base64 PNG. Nothing is written to
// disk.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.SourcePath) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "source_path is required"})
		return
	}

	compiled, err := pipeline.New(req.Pipeline...).Compile(pipeline.CompileOptions{
		OpenOverlay: loader.OpenOverlay,
	})
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	unit, err := loader.Load(req.SourcePath)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}

	preview, err := pipeline.RenderPreview(r.Context(), compiled, unit, req.Sequence)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, preview.Image); err != nil {
		s.logger.Printf("preview encode failed for %s: %v", req.SourcePath, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to encode preview"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"file_name": preview.FileName,
		"format":    preview.Format,
		"width":     preview.Image.Rect.Dx(),
		"height":    preview.Image.Rect.Dy(),
		"png":       base64.StdEncoding.EncodeToString(buf.Bytes()),
	})
}

func (s *Server) verifySourcesExist(ctx context.Context, batch domain.Batch) error {
	for _, src := range batch.Sources {
		switch batch.SourceType {
		case domain.SourceTypeLocalFile:
			if _, err := os.Stat(src.Path); err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("source is missing: %s", src.Path)
				}
				return fmt.Errorf("source check failed: %w", err)
			}
		default:
			exists, err := s.storage.ObjectExists(ctx, src.ObjectKey)
			if err != nil {
				return fmt.Errorf("source check failed: %w", err)
			}
			if !exists {
				return fmt.Errorf("source is missing: %s", src.ObjectKey)
			}
		}
	}
	return nil
}

func extractBatchIDFromStartPath(path string) (string, error) {
	trimmed := strings.TrimPrefix(path, "/v1/batches/")
	parts := strings.Split(strings.Trim(trimmed, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "start" {
		return "", errors.New("expected path format /v1/batches/{id}/start")
	}
	return parts[0], nil
}

func decodeJSON(r *http.Request, into any) error {
	const maxBodyBytes = 1 << 20
	limited := io.LimitReader(r.Body, maxBodyBytes)
	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON body: multiple JSON values are not allowed")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
