package ingest

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"card-inventory/core/apperr"
	"card-inventory/core/metrics"
	"card-inventory/core/storage"
	"card-inventory/core/worker"
	"card-inventory/feature/inventory"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service runs CSV and XLSX imports of lots as background tasks.
type Service struct {
	cfg       Config
	db        *gorm.DB
	inventory *inventory.Service
	storage   storage.Client
	bucket    string
	queue     worker.Enqueuer
	logger    *zap.Logger

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// NewService creates a new import service. A nil storage client keeps uploads in
// memory until processed and writes no reports.
func NewService(cfg Config, db *gorm.DB, inv *inventory.Service, store storage.Client, bucket string, queue worker.Enqueuer, logger *zap.Logger) *Service {
	return &Service{
		cfg:       cfg.withDefaults(),
		db:        db,
		inventory: inv,
		storage:   store,
		bucket:    bucket,
		queue:     queue,
		logger:    logger,
		running:   make(map[string]context.CancelFunc),
	}
}

// SubmitRequest is a new import.
type SubmitRequest struct {
	ShopID   uint
	Actor    *string
	FileName string
	Content  []byte
	Mapping  Mapping
}

// Submit validates the file header against the mapping, stages the upload and
// queues the task. Mapping and file problems are reported here, row problems
// on the task.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Task, error) {
	if req.ShopID == 0 {
		return nil, apperr.Validationf("shop is required")
	}
	if len(req.Content) == 0 {
		return nil, apperr.Validationf("file is empty")
	}
	if int64(len(req.Content)) > s.cfg.MaxFileSize {
		return nil, apperr.Validationf("file is larger than %d bytes", s.cfg.MaxFileSize)
	}
	format, err := DetectFormat(req.FileName)
	if err != nil {
		return nil, err
	}
	header, err := readHeader(format, req.Content)
	if err != nil {
		return nil, apperr.Validationf("unreadable %s file: %v", format, err)
	}
	if len(req.Mapping) == 0 {
		req.Mapping = headerMapping(header)
	}
	if _, err := req.Mapping.columns(header); err != nil {
		return nil, err
	}

	task := &Task{
		ID:       uuid.NewString(),
		ShopID:   req.ShopID,
		Actor:    req.Actor,
		FileName: filepath.Base(req.FileName),
		Format:   format,
		Mapping:  req.Mapping,
		Status:   StatusPending,
		Errors:   []RowError{},
	}

	content := req.Content
	if s.storage != nil {
		task.ObjectKey = s.objectKey(task, task.FileName)
		if err := storage.PutBytes(ctx, s.storage, s.bucket, task.ObjectKey, req.Content, contentType(format)); err != nil {
			return nil, fmt.Errorf("failed to stage import: %w", err)
		}
		content = nil
	}

	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		return nil, fmt.Errorf("failed to create import task: %w", err)
	}

	id := task.ID
	job := worker.Func("import", func(ctx context.Context) error {
		return s.Process(ctx, id, content)
	})
	if err := s.queue.Enqueue(job); err != nil {
		s.finish(context.WithoutCancel(ctx), task, StatusFailed, "could not be queued: "+err.Error())
		return nil, apperr.Wrap(apperr.KindConflict, err, "import queue is full, try again later")
	}

	s.logger.Info("Import submitted",
		zap.String("task_id", task.ID),
		zap.Uint("shop_id", task.ShopID),
		zap.String("file", task.FileName),
	)
	return task, nil
}

func (s *Service) objectKey(task *Task, name string) string {
	return path.Join(s.cfg.Prefix, strconv.FormatUint(uint64(task.ShopID), 10), task.ID, name)
}

func contentType(format string) string {
	if format == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

// Process runs a pending task. content may be nil when the upload is staged in
// object storage. Committed rows stay committed on cancellation.
func (s *Service) Process(ctx context.Context, taskID string, content []byte) error {
	// Task state is saved even when the run was cancelled.
	saveCtx := context.WithoutCancel(ctx)

	task, err := s.task(saveCtx, taskID)
	if err != nil {
		return err
	}
	if task.Status != StatusPending {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.running[task.ID] = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.running, task.ID)
		s.mu.Unlock()
		cancel()
	}()

	if task.Cancelled {
		s.finish(saveCtx, task, StatusCompleted, "")
		return nil
	}

	now := time.Now()
	res := s.db.WithContext(saveCtx).Model(&Task{}).
		Where("id = ? AND status = ?", task.ID, StatusPending).
		Updates(map[string]any{"status": StatusRunning, "started_at": now})
	if res.Error != nil {
		return fmt.Errorf("failed to start import %s: %w", task.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil
	}
	task.Status = StatusRunning
	task.StartedAt = &now

	if content == nil {
		if s.storage == nil || task.ObjectKey == "" {
			s.finish(saveCtx, task, StatusFailed, "upload is not available")
			return nil
		}
		content, err = storage.ReadAll(ctx, s.storage, s.bucket, task.ObjectKey)
		if err != nil {
			s.finish(saveCtx, task, StatusFailed, err.Error())
			return nil
		}
	}

	t, err := readTable(task.Format, content)
	if err != nil {
		s.finish(saveCtx, task, StatusFailed, "unreadable file: "+err.Error())
		return nil
	}
	if len(t.rows) > s.cfg.MaxRows {
		s.finish(saveCtx, task, StatusFailed, fmt.Sprintf("file has %d rows, the limit is %d", len(t.rows), s.cfg.MaxRows))
		return nil
	}
	cols, err := Mapping(task.Mapping).columns(t.header)
	if err != nil {
		s.finish(saveCtx, task, StatusFailed, err.Error())
		return nil
	}
	task.TotalRows = len(t.rows)

	for i, record := range t.rows {
		if i > 0 && i%s.cfg.ProgressEvery == 0 {
			if s.cancelRequested(saveCtx, task) {
				break
			}
			s.saveProgress(saveCtx, task)
		}
		if ctx.Err() != nil {
			task.Cancelled = true
			break
		}
		if reason, ok := t.broken[i]; ok {
			s.skipRow(task, i+1, reason)
			continue
		}
		s.importRow(ctx, task, i+1, record, cols)
	}

	if !task.Cancelled && ctx.Err() == nil {
		// A cancel that arrived after the last progress check still counts.
		s.cancelRequested(saveCtx, task)
	}
	s.finish(saveCtx, task, StatusCompleted, "")
	return nil
}

func (s *Service) skipRow(task *Task, n int, reason string) {
	task.Skipped++
	task.Errors = append(task.Errors, RowError{Row: n, Reason: reason})
	metrics.ImportRows.WithLabelValues("skipped").Inc()
}

func (s *Service) importRow(ctx context.Context, task *Task, n int, record []string, cols map[string]int) {
	skip := func(reason string) { s.skipRow(task, n, reason) }

	row, err := parseRow(record, cols)
	if err != nil {
		skip(err.Error())
		return
	}
	card, _, err := s.inventory.FindOrCreateCard(ctx, task.ShopID, row.card)
	if err != nil {
		skip(err.Error())
		return
	}
	_, _, err = s.inventory.CreateLot(ctx, inventory.CreateLotRequest{
		ShopID:    task.ShopID,
		CardID:    card.ID,
		SKU:       row.sku,
		Condition: row.condition,
		Language:  row.language,
		Location:  row.location,
		CostBasis: row.cost,
		Quantity:  row.quantity,
		EventType: inventory.EventImport,
		Actor:     task.Actor,
		Reason:    "import " + task.FileName,
		Metadata:  map[string]any{"import_task": task.ID, "row": n},
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindUnknown {
			s.logger.Error("Import row failed", zap.String("task_id", task.ID), zap.Int("row", n), zap.Error(err))
		}
		skip(err.Error())
		return
	}
	task.Created++
	metrics.ImportRows.WithLabelValues("created").Inc()
}

// cancelRequested reloads the cancel flag set by Cancel from another process.
func (s *Service) cancelRequested(ctx context.Context, task *Task) bool {
	var cancelled bool
	err := s.db.WithContext(ctx).Model(&Task{}).Where("id = ?", task.ID).Pluck("cancelled", &cancelled).Error
	if err != nil {
		s.logger.Warn("Failed to check import cancellation", zap.String("task_id", task.ID), zap.Error(err))
		return false
	}
	if cancelled {
		task.Cancelled = true
	}
	return cancelled
}

func (s *Service) saveProgress(ctx context.Context, task *Task) {
	err := s.db.WithContext(ctx).Model(&Task{}).Where("id = ?", task.ID).Updates(map[string]any{
		"total_rows": task.TotalRows,
		"created":    task.Created,
		"skipped":    task.Skipped,
	}).Error
	if err != nil {
		s.logger.Warn("Failed to save import progress", zap.String("task_id", task.ID), zap.Error(err))
	}
}

// finish records the final state of a task and writes its report.
func (s *Service) finish(ctx context.Context, task *Task, status Status, reason string) {
	now := time.Now()
	task.Status = status
	task.FailureReason = reason
	task.FinishedAt = &now

	if s.storage != nil && status == StatusCompleted {
		key := s.objectKey(task, "report.json")
		report := Report{
			TaskID:    task.ID,
			FileName:  task.FileName,
			Status:    status,
			Cancelled: task.Cancelled,
			Created:   task.Created,
			Skipped:   task.Skipped,
			Errors:    task.Errors,
		}
		if err := storage.PutJSON(ctx, s.storage, s.bucket, key, report); err != nil {
			s.logger.Warn("Failed to write import report", zap.String("task_id", task.ID), zap.Error(err))
		} else {
			task.ReportKey = key
		}
	}

	err := s.db.WithContext(ctx).Model(&Task{ID: task.ID}).
		Select("status", "failure_reason", "finished_at", "cancelled", "total_rows", "created", "skipped", "errors", "report_key").
		Updates(task).Error
	if err != nil {
		s.logger.Error("Failed to save import result", zap.String("task_id", task.ID), zap.Error(err))
	}

	metrics.ImportTasks.WithLabelValues(string(status)).Inc()
	log := s.logger.With(
		zap.String("task_id", task.ID),
		zap.Int("created", task.Created),
		zap.Int("skipped", task.Skipped),
		zap.Bool("cancelled", task.Cancelled),
	)
	if status == StatusFailed {
		log.Warn("Import failed", zap.String("reason", reason))
		return
	}
	log.Info("Import finished")
}

// Cancel stops a pending or running task between rows.
func (s *Service) Cancel(ctx context.Context, shopID uint, id string) (*Task, error) {
	task, err := s.GetTask(ctx, shopID, id)
	if err != nil {
		return nil, err
	}
	if task.Status.Finished() {
		return nil, apperr.Conflictf("import %s is already %s", id, task.Status)
	}
	if err := s.db.WithContext(ctx).Model(&Task{}).Where("id = ?", id).Update("cancelled", true).Error; err != nil {
		return nil, fmt.Errorf("failed to cancel import %s: %w", id, err)
	}

	s.mu.Lock()
	cancel, ok := s.running[id]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return s.GetTask(ctx, shopID, id)
}

// GetTask returns a task of the shop.
func (s *Service) GetTask(ctx context.Context, shopID uint, id string) (*Task, error) {
	var task Task
	err := s.db.WithContext(ctx).Where("id = ? AND shop_id = ?", id, shopID).First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFoundf("import %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load import %s: %w", id, err)
	}
	return &task, nil
}

func (s *Service) task(ctx context.Context, id string) (*Task, error) {
	var task Task
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&task).Error; err != nil {
		return nil, fmt.Errorf("failed to load import %s: %w", id, err)
	}
	return &task, nil
}

// ListTasks returns the shop's most recent tasks.
func (s *Service) ListTasks(ctx context.Context, shopID uint, limit int) ([]Task, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []Task
	if err := s.db.WithContext(ctx).Where("shop_id = ?", shopID).Order("created_at DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list imports: %w", err)
	}
	return out, nil
}
