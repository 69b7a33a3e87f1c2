package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"llamatalks-be/internal/dto"
	"llamatalks-be/internal/entity"
	"llamatalks-be/internal/pkg/apperror"
	"llamatalks-be/internal/pkg/logger"
	"llamatalks-be/internal/repository/contract"
	"llamatalks-be/internal/repository/unitofwork"
	"llamatalks-be/pkg/document"
	"llamatalks-be/pkg/embedding"
	"llamatalks-be/pkg/events"
	"llamatalks-be/pkg/utils"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DedupStrategyPreload = "preload"
	DedupStrategyQuery   = "query"
)

var ErrBatchCancelled = errors.New("ingestion batch cancelled")

type IDocumentLoader interface {
	LoadDirectory(ctx context.Context, dir string) ([]*document.Document, []*document.LoadFailure, error)
}

type IIngestionService interface {
	// Ingest validates dir, queues a batch and returns without waiting for it.
	Ingest(ctx context.Context, dir string) (*BatchHandle, error)
	ListIngestedFiles(ctx context.Context) ([]*dto.IngestedFileResponse, error)
	GetBatch(ctx context.Context, batchId string) (*dto.BatchStatusResponse, error)
	CancelBatch(ctx context.Context, batchId string) (*dto.BatchStatusResponse, error)
}

type IngestionServiceConfig struct {
	ChunkSize     int
	ChunkOverlap  int
	DedupStrategy string
}

// BatchHandle lets the caller observe a queued batch. Done is closed when the
// batch reaches a final status; Err is meaningful only after that.
type BatchHandle struct {
	BatchId string

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func newBatchHandle(batchId string) *BatchHandle {
	ctx, cancel := context.WithCancel(context.Background())
	return &BatchHandle{
		BatchId: batchId,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

func (h *BatchHandle) Done() <-chan struct{} {
	return h.done
}

func (h *BatchHandle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Wait blocks until the batch finishes or ctx is done. Cancelling ctx does
// not cancel the batch.
func (h *BatchHandle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel stops the batch at the next document or chunk write boundary.
func (h *BatchHandle) Cancel() {
	h.cancel()
}

func (h *BatchHandle) finish(err error) {
	h.err = err
	h.cancel()
	close(h.done)
}

type ingestionService struct {
	uowFactory       unitofwork.RepositoryFactory
	batchRepo        contract.BatchRepository
	loader           IDocumentLoader
	embedder         embedding.EmbeddingProvider
	publisherService IPublisherService
	eventPublisher   events.Publisher
	logger           logger.ILogger
	cfg              IngestionServiceConfig
	now              func() time.Time

	mu      sync.Mutex
	handles map[string]*BatchHandle
}

// IngestionService is both the public API and the job processor behind the consumer.
type IngestionService interface {
	IIngestionService
	IJobProcessor
}

func NewIngestionService(
	uowFactory unitofwork.RepositoryFactory,
	batchRepo contract.BatchRepository,
	loader IDocumentLoader,
	embedder embedding.EmbeddingProvider,
	publisherService IPublisherService,
	eventPublisher events.Publisher,
	log logger.ILogger,
	cfg IngestionServiceConfig,
) IngestionService {
	if eventPublisher == nil {
		eventPublisher = events.NoopPublisher{}
	}
	if cfg.DedupStrategy == "" {
		cfg.DedupStrategy = DedupStrategyPreload
	}
	return &ingestionService{
		uowFactory:       uowFactory,
		batchRepo:        batchRepo,
		loader:           loader,
		embedder:         embedder,
		publisherService: publisherService,
		eventPublisher:   eventPublisher,
		logger:           log,
		cfg:              cfg,
		now:              time.Now,
		handles:          make(map[string]*BatchHandle),
	}
}

func (s *ingestionService) Ingest(ctx context.Context, dir string) (*BatchHandle, error) {
	ctx, span := tracer.Start(ctx, "IngestionService.Ingest")
	defer span.End()

	if dir == "" {
		return nil, apperror.InvalidInput("filePath is required")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, apperror.InvalidInput("Path does not exist: " + dir)
	}
	if !info.IsDir() {
		return nil, apperror.InvalidInput("Path is not a directory: " + dir)
	}

	batch := &entity.IngestionBatch{
		BatchId:       uuid.NewString(),
		DirectoryPath: dir,
		Status:        entity.BatchStatusPending,
		StartedAt:     s.now(),
	}
	span.SetAttributes(attribute.String("ingestion.batch_id", batch.BatchId))

	if err := s.batchRepo.Save(ctx, batch); err != nil {
		return nil, apperror.Ingestion("Failed to record batch", err)
	}

	handle := newBatchHandle(batch.BatchId)
	s.mu.Lock()
	s.handles[batch.BatchId] = handle
	s.mu.Unlock()

	payload, err := json.Marshal(dto.IngestionJobMessage{BatchId: batch.BatchId, DirectoryPath: dir})
	if err == nil {
		err = s.publisherService.Publish(ctx, payload)
	}
	if err != nil {
		s.forget(batch.BatchId)
		batch.Status = entity.BatchStatusFailed
		batch.Error = "failed to queue batch"
		_ = s.batchRepo.Save(ctx, batch)
		return nil, apperror.Ingestion("Failed to queue ingestion batch", err)
	}

	s.logger.Info("INGESTION", "Batch queued", map[string]interface{}{
		"batch_id":  batch.BatchId,
		"directory": dir,
	})
	return handle, nil
}

func (s *ingestionService) forget(batchId string) *BatchHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.handles[batchId]
	delete(s.handles, batchId)
	return h
}

func (s *ingestionService) lookup(batchId string) *BatchHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handles[batchId]
}

// Process runs one batch. consumerCtx ends the batch early on shutdown.
func (s *ingestionService) Process(consumerCtx context.Context, job *dto.IngestionJobMessage) {
	handle := s.lookup(job.BatchId)
	if handle == nil {
		// Queued by a previous process; nobody can observe or cancel it
		handle = newBatchHandle(job.BatchId)
	}

	ctx, cancel := context.WithCancel(handle.ctx)
	defer cancel()
	stop := context.AfterFunc(consumerCtx, cancel)
	defer stop()

	ctx, span := tracer.Start(ctx, "IngestionService.Process")
	span.SetAttributes(attribute.String("ingestion.batch_id", job.BatchId))
	defer span.End()

	batch, err := s.batchRepo.FindById(ctx, job.BatchId)
	if err != nil || batch == nil {
		batch = &entity.IngestionBatch{
			BatchId:       job.BatchId,
			DirectoryPath: job.DirectoryPath,
			StartedAt:     s.now(),
		}
	}

	runErr := s.run(ctx, batch)

	finishedAt := s.now()
	batch.FinishedAt = &finishedAt
	evtType := events.IngestionCompleted
	switch {
	case runErr == nil:
		batch.Status = entity.BatchStatusCompleted
	case errors.Is(runErr, ErrBatchCancelled):
		batch.Status = entity.BatchStatusCancelled
		evtType = events.IngestionCancelled
	default:
		batch.Status = entity.BatchStatusFailed
		batch.Error = runErr.Error()
		evtType = events.IngestionFailed
		recordSpanError(span, runErr)
	}

	// The batch context may already be cancelled; the final status must still land
	saveCtx, saveCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer saveCancel()
	if err := s.batchRepo.Save(saveCtx, batch); err != nil {
		s.logger.Error("INGESTION", "Failed to record batch status", map[string]interface{}{
			"batch_id": batch.BatchId,
			"error":    err,
		})
	}

	s.logger.Info("INGESTION", "Batch finished", map[string]interface{}{
		"batch_id":       batch.BatchId,
		"status":         string(batch.Status),
		"files_ingested": len(batch.FilesIngested),
		"files_skipped":  len(batch.FilesSkipped),
		"files_failed":   len(batch.FilesFailed),
		"chunks_stored":  batch.ChunksStored,
	})
	if err := s.eventPublisher.Publish(saveCtx, events.New(evtType, map[string]interface{}{
		"batchId":       batch.BatchId,
		"directoryPath": batch.DirectoryPath,
		"filesIngested": len(batch.FilesIngested),
		"chunksStored":  batch.ChunksStored,
		"error":         batch.Error,
	})); err != nil {
		s.logger.Warn("INGESTION", "Failed to publish event", map[string]interface{}{
			"batch_id": batch.BatchId,
			"error":    err.Error(),
		})
	}

	s.forget(job.BatchId)
	handle.finish(runErr)
}

func (s *ingestionService) run(ctx context.Context, batch *entity.IngestionBatch) error {
	if ctx.Err() != nil {
		return ErrBatchCancelled
	}

	batch.Status = entity.BatchStatusRunning
	if err := s.batchRepo.Save(ctx, batch); err != nil {
		s.logger.Warn("INGESTION", "Failed to record running status", map[string]interface{}{
			"batch_id": batch.BatchId,
			"error":    err.Error(),
		})
	}

	docs, failures, err := s.loader.LoadDirectory(ctx, batch.DirectoryPath)
	if err != nil {
		if ctx.Err() != nil {
			return ErrBatchCancelled
		}
		return apperror.Ingestion("Failed to load documents from "+batch.DirectoryPath, err)
	}
	for _, f := range failures {
		batch.FilesFailed = append(batch.FilesFailed, f.Path)
		s.logger.Warn("INGESTION", "Skipping unreadable file", map[string]interface{}{
			"batch_id": batch.BatchId,
			"path":     f.Path,
			"error":    f.Err.Error(),
		})
	}
	if len(docs) == 0 {
		return apperror.Ingestion("No documents found in "+batch.DirectoryPath, nil)
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	repo := uow.EmbeddingRepository()

	seen, err := s.knownFiles(ctx, repo)
	if err != nil {
		return apperror.Ingestion("Failed to load ingested file names", err)
	}

	for _, doc := range docs {
		if ctx.Err() != nil {
			return ErrBatchCancelled
		}

		known, err := s.isKnown(ctx, repo, seen, doc.FileName)
		if err != nil {
			return apperror.Ingestion("Failed to check file "+doc.FileName, err)
		}
		if known {
			batch.FilesSkipped = append(batch.FilesSkipped, doc.FileName)
			s.logger.Debug("INGESTION", "File already ingested", map[string]interface{}{
				"batch_id":  batch.BatchId,
				"file_name": doc.FileName,
			})
			continue
		}

		stored, err := s.ingestDocument(ctx, repo, batch.BatchId, doc)
		if err != nil {
			if ctx.Err() != nil {
				return ErrBatchCancelled
			}
			return err
		}

		seen[doc.FileName] = struct{}{}
		batch.FilesIngested = append(batch.FilesIngested, doc.FileName)
		batch.ChunksStored += stored
		_ = s.batchRepo.Save(ctx, batch)
	}

	return nil
}

func (s *ingestionService) knownFiles(ctx context.Context, repo contract.EmbeddingRepository) (map[string]struct{}, error) {
	seen := make(map[string]struct{})
	if s.cfg.DedupStrategy != DedupStrategyPreload {
		return seen, nil
	}

	names, err := repo.FindDistinctFileNames(ctx)
	if err != nil {
		return nil, err
	}
	for _, n := range names {
		seen[n] = struct{}{}
	}
	return seen, nil
}

func (s *ingestionService) isKnown(ctx context.Context, repo contract.EmbeddingRepository, seen map[string]struct{}, fileName string) (bool, error) {
	if _, ok := seen[fileName]; ok {
		return true, nil
	}
	if s.cfg.DedupStrategy == DedupStrategyQuery {
		return repo.ExistsByFileName(ctx, fileName)
	}
	return false, nil
}

func (s *ingestionService) ingestDocument(ctx context.Context, repo contract.EmbeddingRepository, batchId string, doc *document.Document) (int, error) {
	chunks := utils.SplitRecursive(doc.Content, s.cfg.ChunkSize, s.cfg.ChunkOverlap)
	if len(chunks) == 0 {
		return 0, nil
	}

	vectors, err := s.embedder.EmbedAll(ctx, chunks)
	if err != nil {
		return 0, apperror.Ingestion("Failed to embed "+doc.FileName, err)
	}
	if len(vectors) != len(chunks) {
		return 0, apperror.Ingestion(fmt.Sprintf("Embedding count mismatch for %s: %d chunks, %d vectors", doc.FileName, len(chunks), len(vectors)), nil)
	}

	dim := s.embedder.Dimensions()
	records := make([]*entity.EmbeddedChunk, len(chunks))
	for i, text := range chunks {
		if dim > 0 && len(vectors[i]) != dim {
			return 0, apperror.Ingestion(fmt.Sprintf("Embedding dimension mismatch for %s: got %d, want %d", doc.FileName, len(vectors[i]), dim), nil)
		}
		records[i] = &entity.EmbeddedChunk{
			Id:        uuid.New(),
			Embedding: vectors[i],
			Text:      text,
			Metadata: map[string]interface{}{
				entity.MetadataFileName:   doc.FileName,
				entity.MetadataBatchId:    batchId,
				entity.MetadataChunkIndex: i,
			},
		}
	}

	for _, r := range records {
		if ctx.Err() != nil {
			return 0, ErrBatchCancelled
		}
		if err := repo.Create(ctx, r); err != nil {
			return 0, apperror.Ingestion("Failed to store chunk of "+doc.FileName, err)
		}
	}

	s.logger.Info("INGESTION", "File ingested", map[string]interface{}{
		"batch_id":  batchId,
		"file_name": doc.FileName,
		"chunks":    len(records),
	})
	return len(records), nil
}

func (s *ingestionService) ListIngestedFiles(ctx context.Context) ([]*dto.IngestedFileResponse, error) {
	ctx, span := tracer.Start(ctx, "IngestionService.ListIngestedFiles")
	defer span.End()

	uow := s.uowFactory.NewUnitOfWork(ctx)
	rows, err := uow.EmbeddingRepository().FindAllFileNames(ctx)
	if err != nil {
		return nil, apperror.Persistence("Failed to list ingested files", err)
	}

	res := make([]*dto.IngestedFileResponse, len(rows))
	for i, row := range rows {
		res[i] = &dto.IngestedFileResponse{
			ChunkId:  row.ChunkId.String(),
			FileName: row.FileName,
		}
	}
	return res, nil
}

func (s *ingestionService) GetBatch(ctx context.Context, batchId string) (*dto.BatchStatusResponse, error) {
	batch, err := s.batchRepo.FindById(ctx, batchId)
	if err != nil {
		return nil, apperror.Persistence("Failed to load batch", err)
	}
	if batch == nil {
		return nil, apperror.BatchNotFound(batchId)
	}
	return toBatchResponse(batch), nil
}

// CancelBatch returns the status as of the request; the batch reaches
// CANCELLED asynchronously unless it was already finished.
func (s *ingestionService) CancelBatch(ctx context.Context, batchId string) (*dto.BatchStatusResponse, error) {
	batch, err := s.batchRepo.FindById(ctx, batchId)
	if err != nil {
		return nil, apperror.Persistence("Failed to load batch", err)
	}
	if batch == nil {
		return nil, apperror.BatchNotFound(batchId)
	}

	if handle := s.lookup(batchId); handle != nil && !batch.IsFinished() {
		handle.Cancel()
		s.logger.Info("INGESTION", "Batch cancellation requested", map[string]interface{}{
			"batch_id": batchId,
		})
	}
	return toBatchResponse(batch), nil
}

func toBatchResponse(b *entity.IngestionBatch) *dto.BatchStatusResponse {
	return &dto.BatchStatusResponse{
		BatchId:       b.BatchId,
		DirectoryPath: b.DirectoryPath,
		Status:        string(b.Status),
		FilesIngested: nonNil(b.FilesIngested),
		FilesSkipped:  nonNil(b.FilesSkipped),
		FilesFailed:   nonNil(b.FilesFailed),
		ChunksStored:  b.ChunksStored,
		Error:         b.Error,
		StartedAt:     b.StartedAt,
		FinishedAt:    b.FinishedAt,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
