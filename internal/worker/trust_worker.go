package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"courtbook/internal/database"
	"courtbook/internal/domain"
	"courtbook/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	// TaskSyncUsers mirrors every user's trust standing to the sheet.
	TaskSyncUsers = "sync_users"
	// TaskSyncStrikes mirrors the strike log to the sheet.
	TaskSyncStrikes = "sync_strikes"
	// TaskProcessCompletion credits a single ended booking.
	TaskProcessCompletion = "process_completion"
)

// TrustWorker drains the task_queue table and applies each task: trust
// standing mirrors go to the sheets writer, completion tasks go through
// the trust service. Tasks are persisted to sqlite first; redis acts as
// a wake-up channel so the poll interval only matters when redis is
// unavailable.
type TrustWorker struct {
	db            *database.DB
	sheets        domain.SheetsWriter
	trust         domain.TrustService
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.Task
	queueKey      string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *zerolog.Logger
}

func NewTrustWorker(
	db *database.DB,
	sheets domain.SheetsWriter,
	trust domain.TrustService,
	redisClient *redis.Client,
	retry RetryPolicy,
	logger *zerolog.Logger,
) *TrustWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}

	return &TrustWorker{
		db:            db,
		sheets:        sheets,
		trust:         trust,
		redis:         redisClient,
		retryPolicy:   retry,
		queue:         make(chan models.Task, 128),
		queueKey:      "trust:queue",
		deadLetterKey: "trust:deadletter",
		pollInterval:  2 * time.Second,
		batchSize:     20,
		logger:        logger,
	}
}

// EnqueueTask persists the task and schedules it through redis, falling
// back to the in-memory channel. A task that lands in neither is still
// picked up by the database poll.
func (w *TrustWorker) EnqueueTask(ctx context.Context, taskType string, bookingID int64) error {
	switch taskType {
	case TaskSyncUsers, TaskSyncStrikes:
	case TaskProcessCompletion:
		if bookingID == 0 {
			return errors.New("booking id is required for completion tasks")
		}
	default:
		return fmt.Errorf("unknown task type: %s", taskType)
	}

	task := models.Task{
		TaskType:  taskType,
		BookingID: bookingID,
		Status:    "pending",
	}
	if err := w.db.CreateTask(ctx, &task); err != nil {
		return fmt.Errorf("persist task: %w", err)
	}

	if w.redis != nil {
		if err := w.pushRedis(ctx, task); err != nil {
			w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("redis push failed, using memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task:
	default:
		w.logger.Warn().Int64("task_id", task.ID).Msg("memory queue full, task left for polling")
	}

	return nil
}

// Start runs the drain loop until the context is canceled.
func (w *TrustWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("trust worker started")
	defer w.logger.Info().Msg("trust worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if task, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &task)
			continue
		}

		if task, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &task)
			continue
		}

		tasks, err := w.db.GetPendingTasks(ctx, w.batchSize)
		if err != nil {
			w.logger.Error().Err(err).Msg("fetch pending tasks")
			time.Sleep(w.pollInterval)
			continue
		}
		if len(tasks) == 0 {
			time.Sleep(w.pollInterval)
			continue
		}

		for i := range tasks {
			w.processTask(ctx, &tasks[i])
		}
	}
}

func (w *TrustWorker) tryLocalQueue() (models.Task, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.Task{}, false
	}
}

func (w *TrustWorker) tryRedis(ctx context.Context) (models.Task, bool) {
	if w.redis == nil {
		return models.Task{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.queueKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && !errors.Is(err, context.DeadlineExceeded) {
			w.logger.Warn().Err(err).Msg("redis BRPOP failed")
		}
		return models.Task{}, false
	}
	if len(res) != 2 {
		return models.Task{}, false
	}
	var task models.Task
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("decode redis task")
		return models.Task{}, false
	}
	return task, true
}

func (w *TrustWorker) processTask(ctx context.Context, task *models.Task) {
	if err := w.handleTask(ctx, task); err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.db.UpdateTaskStatus(ctx, task.ID, "completed", "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark task completed")
	}
}

func (w *TrustWorker) handleTask(ctx context.Context, task *models.Task) error {
	switch task.TaskType {
	case TaskSyncUsers:
		if w.sheets == nil {
			return errors.New("sheets writer is not configured")
		}
		users, err := w.db.GetAllUsers(ctx)
		if err != nil {
			return fmt.Errorf("load users: %w", err)
		}
		return w.sheets.UpdateUsersSheet(ctx, users)

	case TaskSyncStrikes:
		if w.sheets == nil {
			return errors.New("sheets writer is not configured")
		}
		strikes, err := w.db.GetAllStrikes(ctx)
		if err != nil {
			return fmt.Errorf("load strikes: %w", err)
		}
		return w.sheets.UpdateStrikesSheet(ctx, strikes)

	case TaskProcessCompletion:
		if w.trust == nil {
			return errors.New("trust service is not configured")
		}
		// AlreadyProcessed and Skipped outcomes are success: the task's
		// job is to make the booking terminal, not to credit it twice.
		_, err := w.trust.ProcessBookingCompletion(ctx, task.BookingID)
		return err

	default:
		return fmt.Errorf("unknown task type: %s", task.TaskType)
	}
}

func (w *TrustWorker) retryOrFail(ctx context.Context, task *models.Task, cause error) {
	attempt := task.RetryCount + 1
	if attempt >= w.retryPolicy.MaxRetries {
		if err := w.db.UpdateTaskStatus(ctx, task.ID, "failed", cause.Error(), nil); err != nil {
			w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark task failed")
		}
		w.pushDeadLetter(ctx, task, cause)
		return
	}

	next := time.Now().Add(w.retryPolicy.NextDelay(attempt))
	if err := w.db.UpdateTaskStatus(ctx, task.ID, "retry", cause.Error(), &next); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark task for retry")
	}
}

func (w *TrustWorker) pushRedis(ctx context.Context, task models.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, w.queueKey, data).Err()
}

func (w *TrustWorker) pushDeadLetter(ctx context.Context, task *models.Task, cause error) {
	w.logger.Error().Err(cause).Int64("task_id", task.ID).Str("task_type", task.TaskType).Msg("task exhausted retries")
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("dead letter push failed")
	}
}
