package worker

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"courtbook/internal/database"
	"courtbook/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSheets struct {
	err         error
	userCalls   int
	strikeCalls int
}

func (f *fakeSheets) UpdateUsersSheet(ctx context.Context, users []*models.User) error {
	f.userCalls++
	return f.err
}

func (f *fakeSheets) UpdateStrikesSheet(ctx context.Context, strikes []*models.Strike) error {
	f.strikeCalls++
	return f.err
}

type fakeTrust struct {
	err             error
	completionCalls int
	lastBookingID   int64
}

func (f *fakeTrust) CanUserBook(ctx context.Context, userID int64, at time.Time) (*models.EligibilityResult, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeTrust) ProcessBookingCompletion(ctx context.Context, bookingID int64) (*models.CompletionResult, error) {
	f.completionCalls++
	f.lastBookingID = bookingID
	if f.err != nil {
		return nil, f.err
	}
	return &models.CompletionResult{BookingID: bookingID}, nil
}

func (f *fakeTrust) ReportNoShow(ctx context.Context, bookingID, reporterID int64, reason string) (*models.NoShowResult, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeTrust) ExpireOldStrikes(ctx context.Context) (int, error) {
	return 0, errors.New("not implemented")
}

func (f *fakeTrust) ProcessEndedBookings(ctx context.Context) (*models.BatchResult, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeTrust) InvalidateEligibility(ctx context.Context, userID int64) error {
	return nil
}

func newWorkerTestDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestWorker(t *testing.T, db *database.DB, sheets *fakeSheets, trust *fakeTrust, redisClient *redis.Client, retry RetryPolicy) *TrustWorker {
	t.Helper()
	logger := zerolog.Nop()
	return NewTrustWorker(db, sheets, trust, redisClient, retry, &logger)
}

func loadTask(t *testing.T, db *database.DB, id int64) (status string, retryCount int, nextRetry sql.NullTime) {
	t.Helper()
	row := db.QueryRowContext(context.Background(),
		`SELECT status, retry_count, next_retry_at FROM task_queue WHERE id = ?`, id)
	require.NoError(t, row.Scan(&status, &retryCount, &nextRetry))
	return status, retryCount, nextRetry
}

func TestEnqueueTask(t *testing.T) {
	db := newWorkerTestDB(t)
	w := newTestWorker(t, db, &fakeSheets{}, &fakeTrust{}, nil, RetryPolicy{})
	ctx := context.Background()

	t.Run("Valid", func(t *testing.T) {
		require.NoError(t, w.EnqueueTask(ctx, TaskSyncUsers, 0))

		tasks, err := db.GetPendingTasks(ctx, 10)
		require.NoError(t, err)
		require.Len(t, tasks, 1)
		assert.Equal(t, TaskSyncUsers, tasks[0].TaskType)
	})

	t.Run("UnknownType", func(t *testing.T) {
		assert.Error(t, w.EnqueueTask(ctx, "resync_everything", 0))
	})

	t.Run("CompletionNeedsBookingID", func(t *testing.T) {
		assert.Error(t, w.EnqueueTask(ctx, TaskProcessCompletion, 0))
	})
}

func TestProcessTask(t *testing.T) {
	ctx := context.Background()

	t.Run("SyncUsersSuccess", func(t *testing.T) {
		db := newWorkerTestDB(t)
		sheets := &fakeSheets{}
		w := newTestWorker(t, db, sheets, &fakeTrust{}, nil, RetryPolicy{})

		require.NoError(t, w.EnqueueTask(ctx, TaskSyncUsers, 0))
		task, ok := w.tryLocalQueue()
		require.True(t, ok)

		w.processTask(ctx, &task)

		assert.Equal(t, 1, sheets.userCalls)
		status, retryCount, nextRetry := loadTask(t, db, task.ID)
		assert.Equal(t, "completed", status)
		assert.Equal(t, 0, retryCount)
		assert.False(t, nextRetry.Valid)
	})

	t.Run("SyncStrikes", func(t *testing.T) {
		db := newWorkerTestDB(t)
		sheets := &fakeSheets{}
		w := newTestWorker(t, db, sheets, &fakeTrust{}, nil, RetryPolicy{})

		require.NoError(t, w.EnqueueTask(ctx, TaskSyncStrikes, 0))
		task, ok := w.tryLocalQueue()
		require.True(t, ok)

		w.processTask(ctx, &task)
		assert.Equal(t, 1, sheets.strikeCalls)
	})

	t.Run("CompletionTask", func(t *testing.T) {
		db := newWorkerTestDB(t)
		trust := &fakeTrust{}
		w := newTestWorker(t, db, &fakeSheets{}, trust, nil, RetryPolicy{})

		require.NoError(t, w.EnqueueTask(ctx, TaskProcessCompletion, 42))
		task, ok := w.tryLocalQueue()
		require.True(t, ok)

		w.processTask(ctx, &task)

		assert.Equal(t, 1, trust.completionCalls)
		assert.Equal(t, int64(42), trust.lastBookingID)
		status, _, _ := loadTask(t, db, task.ID)
		assert.Equal(t, "completed", status)
	})

	t.Run("FailureSchedulesRetry", func(t *testing.T) {
		db := newWorkerTestDB(t)
		sheets := &fakeSheets{err: errors.New("sheets unavailable")}
		w := newTestWorker(t, db, sheets, &fakeTrust{}, nil, RetryPolicy{MaxRetries: 3, InitialDelay: time.Second})

		require.NoError(t, w.EnqueueTask(ctx, TaskSyncUsers, 0))
		task, ok := w.tryLocalQueue()
		require.True(t, ok)

		w.processTask(ctx, &task)

		status, retryCount, nextRetry := loadTask(t, db, task.ID)
		assert.Equal(t, "retry", status)
		assert.Equal(t, 1, retryCount)
		require.True(t, nextRetry.Valid)
		assert.True(t, nextRetry.Time.After(time.Now()))
	})

	t.Run("ExhaustedRetriesFail", func(t *testing.T) {
		db := newWorkerTestDB(t)
		sheets := &fakeSheets{err: errors.New("sheets gone")}
		w := newTestWorker(t, db, sheets, &fakeTrust{}, nil, RetryPolicy{MaxRetries: 1})

		require.NoError(t, w.EnqueueTask(ctx, TaskSyncUsers, 0))
		task, ok := w.tryLocalQueue()
		require.True(t, ok)

		w.processTask(ctx, &task)

		status, _, _ := loadTask(t, db, task.ID)
		assert.Equal(t, "failed", status)
	})
}

func TestRedisQueue(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	db := newWorkerTestDB(t)
	w := newTestWorker(t, db, &fakeSheets{}, &fakeTrust{}, client, RetryPolicy{})
	ctx := context.Background()

	t.Run("EnqueuePushesToRedis", func(t *testing.T) {
		require.NoError(t, w.EnqueueTask(ctx, TaskSyncUsers, 0))

		// Went to redis, not the memory channel.
		_, ok := w.tryLocalQueue()
		assert.False(t, ok)

		llen, err := client.LLen(ctx, w.queueKey).Result()
		require.NoError(t, err)
		assert.Equal(t, int64(1), llen)
	})

	t.Run("TryRedisPops", func(t *testing.T) {
		task, ok := w.tryRedis(ctx)
		require.True(t, ok)
		assert.Equal(t, TaskSyncUsers, task.TaskType)
	})

	t.Run("DeadLetter", func(t *testing.T) {
		task := models.Task{ID: 7, TaskType: TaskSyncUsers, Status: "pending"}
		require.NoError(t, db.CreateTask(ctx, &task))

		w.pushDeadLetter(ctx, &task, errors.New("gave up"))

		llen, err := client.LLen(ctx, w.deadLetterKey).Result()
		require.NoError(t, err)
		assert.Equal(t, int64(1), llen)
	})
}

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 5 * time.Second}

	assert.Equal(t, time.Second, policy.NextDelay(1))
	assert.Equal(t, 2*time.Second, policy.NextDelay(2))
	assert.Equal(t, 4*time.Second, policy.NextDelay(3))
	assert.Equal(t, 5*time.Second, policy.NextDelay(5))

	// Zero-valued policy still yields a sane delay.
	assert.Equal(t, time.Second, RetryPolicy{}.NextDelay(0))
}
