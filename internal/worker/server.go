package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/dunamismax/photoflow/internal/config"
	"github.com/dunamismax/photoflow/internal/domain"
	"github.com/dunamismax/photoflow/internal/loader"
	"github.com/dunamismax/photoflow/internal/pipeline"
	"github.com/dunamismax/photoflow/internal/queue"
	"github.com/dunamismax/photoflow/internal/storage"
	"github.com/dunamismax/photoflow/internal/store"
	"github.com/dunamismax/photoflow/internal/webhook"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Server struct {
	logger        *log.Logger
	server        *asynq.Server
	sem           chan struct{}
	storageClient *storage.Client
	webhookClient webhookSender
	batchStore    store.BatchStore
	photoWorkers  int
	outputRoot    string
	scratchDir    string
	metrics       *metrics
	tracer        trace.Tracer
}

type webhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

func NewServer(
	logger *log.Logger,
	queueCfg config.QueueConfig,
	workerCfg config.WorkerConfig,
	storageClient *storage.Client,
	webhookClient *webhook.Client,
	batchStore store.BatchStore,
) (*Server, error) {
	if storageClient == nil {
		return nil, fmt.Errorf("storage client is required")
	}

	s := &Server{
		logger: logger,
		server: asynq.NewServer(
			queueCfg.RedisClientOpt(),
			asynq.Config{
				Concurrency: workerCfg.Concurrency,
				Queues: map[string]int{
					queueCfg.Name: 1,
				},
				LogLevel: asynq.InfoLevel,
				ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
					retried, _ := asynq.GetRetryCount(ctx)
					maxRetry, _ := asynq.GetMaxRetry(ctx)
					logger.Printf("task failed type=%s retry=%d/%d err=%v", task.Type(), retried, maxRetry, err)
				}),
			},
		),
		sem:           make(chan struct{}, max(1, workerCfg.MaxActiveBatches)),
		storageClient: storageClient,
		webhookClient: webhookClient,
		batchStore:    batchStore,
		photoWorkers:  workerCfg.PhotoWorkers,
		outputRoot:    workerCfg.OutputRoot,
		scratchDir:    workerCfg.ScratchDir,
		metrics:       newMetrics(),
		tracer:        otel.Tracer("photoflow/worker"),
	}
	return s, nil
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeProcessBatch, s.handleProcessBatch)
	return s.server.Run(mux)
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleProcessBatch(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	outcome := domain.BatchStatusFailed

	payload, err := queue.ParseProcessBatchPayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.process_batch", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("batch.id", payload.BatchID),
		attribute.String("batch.source_type", payload.SourceType),
		attribute.Int("batch.photos", len(payload.Sources)),
		attribute.Int("batch.pipeline_steps", len(payload.Pipeline)),
	)
	defer span.End()
	defer func() {
		s.metrics.batchDuration.WithLabelValues(payload.SourceType, outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.batchesTotal.WithLabelValues(payload.SourceType, outcome).Inc()
	}()

	s.sem <- struct{}{}
	s.metrics.activeBatches.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeBatches.Dec()
	}()

	s.logger.Printf(
		"Working... batch_id=%s source_type=%s photos=%d steps=%d",
		payload.BatchID,
		payload.SourceType,
		len(payload.Sources),
		len(payload.Pipeline),
	)

	s.updateBatchStatus(ctx, payload.BatchID, domain.BatchStatusProcessing)

	compiled, err := pipeline.New(payload.Pipeline...).Compile(pipeline.CompileOptions{
		OpenOverlay: loader.OpenOverlay,
	})
	if err != nil {
		s.failBatch(ctx, span, payload, err)
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			// A pipeline that fails step validation will never pass on retry.
			return fmt.Errorf("compile pipeline: %v: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("compile pipeline: %w", err)
	}

	report := s.runBatch(ctx, payload, compiled)

	if err := s.batchStore.SaveReport(ctx, payload.BatchID, report); err != nil {
		s.logger.Printf("report save failed batch_id=%s err=%v", payload.BatchID, err)
	}

	status := report.Status()
	s.updateBatchStatus(ctx, payload.BatchID, status)
	s.logger.Printf(
		"Processed batch_id=%s status=%s succeeded=%d failed=%d skipped=%d elapsed=%s",
		payload.BatchID, status, report.Succeeded, report.Failed, report.Skipped, report.Elapsed.Round(time.Millisecond),
	)
	s.recordUsage(ctx, payload.BatchID, report, time.Since(startedAt))

	event := "batch.completed"
	if status == domain.BatchStatusFailed {
		event = "batch.failed"
		span.SetStatus(codes.Error, "all photos failed")
	} else {
		span.SetStatus(codes.Ok, "processed")
	}
	if err := s.dispatchWebhook(ctx, payload, event, map[string]any{
		"batch_id":     payload.BatchID,
		"status":       status,
		"source_type":  payload.SourceType,
		"requested_at": payload.RequestedAt,
		"completed_at": time.Now().UTC(),
		"succeeded":    report.Succeeded,
		"failed":       report.Failed,
		"skipped":      report.Skipped,
		"results":      report.Results,
	}); err != nil {
		span.RecordError(err)
		return err
	}

	outcome = status
	return nil
}

// runBatch materializes every source, loads the decodable ones, and runs the
// executor over them. Photos that fail to fetch or decode are folded into the
// report in their input position.
func (s *Server) runBatch(ctx context.Context, payload queue.ProcessBatchPayload, compiled *pipeline.Compiled) domain.BatchReport {
	total := len(payload.Sources)
	results := make([]domain.ExecutionResult, total)
	units := make([]*pipeline.Unit, 0, total)
	loadedIdx := make([]int, 0, total)

	for i, src := range payload.Sources {
		path, err := s.materialize(ctx, payload, src)
		if err == nil {
			var unit *pipeline.Unit
			unit, err = loader.Load(path)
			if err == nil {
				units = append(units, unit)
				loadedIdx = append(loadedIdx, i)
				continue
			}
		}
		results[i] = domain.ExecutionResult{
			Photo:     src.String(),
			Status:    domain.ResultFailed,
			StepIndex: -1,
			Reason:    err.Error(),
		}
	}

	executor := pipeline.NewExecutor(pipeline.NewRouter(s.resolveOutputRoot(payload)))
	partial := executor.Run(ctx, compiled, units, pipeline.ExecOptions{
		Workers: s.photoWorkers,
		OnProgress: func(completed, totalLoaded int, photo string) {
			s.metrics.photosProcessedTotal.Inc()
			s.logger.Printf("progress batch_id=%s completed=%d/%d photo=%s", payload.BatchID, completed, totalLoaded, filepath.Base(photo))
		},
	})

	for j, idx := range loadedIdx {
		results[idx] = partial.Results[j]
	}

	report := domain.BatchReport{
		Results: results,
		Elapsed: partial.Elapsed,
		Partial: partial.Partial,
	}
	for _, res := range results {
		switch res.Status {
		case domain.ResultSucceeded:
			report.Succeeded++
		case domain.ResultSkipped:
			report.Skipped++
		default:
			report.Failed++
		}
	}
	return report
}

// materialize resolves one source ref to a local path the loader can read.
func (s *Server) materialize(ctx context.Context, payload queue.ProcessBatchPayload, src domain.SourceRef) (string, error) {
	if payload.SourceType == domain.SourceTypeLocalFile {
		return src.Path, nil
	}
	scratch := filepath.Join(s.scratchDir, payload.BatchID)
	return s.storageClient.FetchToFile(ctx, src.ObjectKey, scratch)
}

// resolveOutputRoot prefers the batch's requested output dir, then the
// worker-wide root; empty means outputs sit next to their sources.
func (s *Server) resolveOutputRoot(payload queue.ProcessBatchPayload) string {
	if strings.TrimSpace(payload.OutputDir) != "" {
		return payload.OutputDir
	}
	return s.outputRoot
}

func (s *Server) failBatch(ctx context.Context, span trace.Span, payload queue.ProcessBatchPayload, cause error) {
	s.updateBatchStatus(ctx, payload.BatchID, domain.BatchStatusFailed)
	span.RecordError(cause)
	span.SetStatus(codes.Error, "batch failed")
	_ = s.dispatchWebhook(ctx, payload, "batch.failed", map[string]any{
		"batch_id":     payload.BatchID,
		"status":       domain.BatchStatusFailed,
		"source_type":  payload.SourceType,
		"requested_at": payload.RequestedAt,
		"failed_at":    time.Now().UTC(),
		"error":        cause.Error(),
	})
}

func (s *Server) updateBatchStatus(ctx context.Context, batchID, status string) {
	if s.batchStore == nil {
		return
	}
	if _, err := s.batchStore.UpdateStatus(ctx, batchID, status); err != nil {
		s.logger.Printf("batch status update failed batch_id=%s status=%s err=%v", batchID, status, err)
	}
}

func (s *Server) dispatchWebhook(ctx context.Context, payload queue.ProcessBatchPayload, event string, body map[string]any) error {
	if payload.WebhookURL == "" || s.webhookClient == nil {
		return nil
	}

	if err := s.webhookClient.Send(ctx, payload.WebhookURL, event, body); err != nil {
		s.logger.Printf("webhook delivery failed batch_id=%s event=%s err=%v", payload.BatchID, event, err)
		return fmt.Errorf("dispatch webhook: %w", err)
	}

	return nil
}

func (s *Server) recordUsage(ctx context.Context, batchID string, report domain.BatchReport, computeDuration time.Duration) {
	if s.batchStore == nil {
		return
	}

	userID := "anonymous"
	batch, ok, err := s.batchStore.Get(ctx, batchID)
	if err != nil {
		s.logger.Printf("usage lookup failed batch_id=%s err=%v", batchID, err)
	} else if ok && strings.TrimSpace(batch.UserID) != "" {
		userID = batch.UserID
	}

	var (
		pixelsProcessed int64
		bytesSaved      int64
	)
	for _, res := range report.Results {
		if res.Status != domain.ResultSucceeded {
			continue
		}
		pixelsProcessed += int64(res.Width) * int64(res.Height)
		bytesSaved += res.SourceBytes - res.BytesWritten
	}
	if bytesSaved < 0 {
		bytesSaved = 0
	}

	computeTimeMS := computeDuration.Milliseconds()
	if computeTimeMS < 1 {
		computeTimeMS = 1
	}

	usage := domain.UsageLog{
		UserID:          userID,
		BatchID:         batchID,
		PhotosProcessed: int64(report.Succeeded),
		PixelsProcessed: pixelsProcessed,
		BytesSaved:      bytesSaved,
		ComputeTimeMS:   computeTimeMS,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.batchStore.RecordUsage(ctx, usage); err != nil {
		s.logger.Printf("usage log write failed batch_id=%s err=%v", batchID, err)
		return
	}

	s.metrics.pixelsProcessedTotal.Add(float64(pixelsProcessed))
	s.metrics.bytesSavedTotal.Add(float64(bytesSaved))
	s.metrics.computeTimeMSTotal.Add(float64(computeTimeMS))
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
