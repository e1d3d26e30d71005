package worker

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"guesthouse/internal/database"
	"guesthouse/internal/events"
	"guesthouse/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func testBooking(id int64) *models.Booking {
	return &models.Booking{
		ID:           id,
		CustomerID:   1,
		GuesthouseID: 1,
		RoomID:       1,
		CheckIn:      time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		CheckOut:     time.Date(2025, 3, 13, 0, 0, 0, 0, time.UTC),
		Nights:       3,
		Amount:       3000,
		Status:       models.BookingPending,
	}
}

func TestProcessTaskSuccess(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	worker := NewSheetsWorker(db, sheets, nil, RetryPolicy{}, nil)

	booking := testBooking(1)
	ctx := context.Background()
	if err := worker.EnqueueTask(ctx, models.SyncTaskUpsert, booking.ID, booking, ""); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	task, ok := worker.tryLocalQueue()
	if !ok {
		t.Fatalf("expected task in local queue")
	}
	worker.processTask(ctx, &task)

	status, retryCount, nextRetry := loadTaskStatus(t, db, task.ID)
	if status != models.SyncStatusCompleted {
		t.Fatalf("expected status=completed, got %s", status)
	}
	if retryCount != 0 {
		t.Fatalf("expected retry_count=0, got %d", retryCount)
	}
	if nextRetry.Valid {
		t.Fatalf("expected next_retry_at NULL on success")
	}
	if sheets.upsertCalls != 1 {
		t.Fatalf("expected upsert call, got %d", sheets.upsertCalls)
	}
}

func TestProcessTaskRetry(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{err: errors.New("boom")}
	worker := NewSheetsWorker(db, sheets, nil, RetryPolicy{MaxRetries: 3, InitialDelay: time.Second}, nil)

	ctx := context.Background()
	if err := worker.EnqueueTask(ctx, models.SyncTaskUpsert, 2, testBooking(2), ""); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	task, ok := worker.tryLocalQueue()
	if !ok {
		t.Fatalf("expected task in local queue")
	}
	worker.processTask(ctx, &task)

	status, retryCount, nextRetry := loadTaskStatus(t, db, task.ID)
	if status != models.SyncStatusRetry {
		t.Fatalf("expected status=retry, got %s", status)
	}
	if retryCount != 1 {
		t.Fatalf("expected retry_count=1, got %d", retryCount)
	}
	if !nextRetry.Valid || nextRetry.Time.Before(time.Now()) {
		t.Fatalf("expected next_retry_at in future, got %v", nextRetry)
	}
}

func TestProcessTaskFail(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{err: errors.New("fatal")}

	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer s.Close()
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	worker := NewSheetsWorker(db, sheets, client, RetryPolicy{MaxRetries: 1}, nil)

	ctx := context.Background()
	if err := worker.EnqueueTask(ctx, models.SyncTaskUpsert, 3, testBooking(3), ""); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	task, ok := worker.tryRedis(ctx)
	if !ok {
		t.Fatalf("expected task in redis queue")
	}
	worker.processTask(ctx, &task)

	status, _, _ := loadTaskStatus(t, db, task.ID)
	if status != models.SyncStatusFailed {
		t.Fatalf("expected status=failed, got %s", status)
	}
	dead, err := s.List(worker.deadLetterKey)
	if err != nil || len(dead) != 1 {
		t.Fatalf("expected one dead letter, got %v (%v)", dead, err)
	}
}

func TestProcessTaskBadPayload(t *testing.T) {
	db := newTestDB(t)
	worker := NewSheetsWorker(db, &fakeSheets{}, nil, RetryPolicy{}, nil)

	ctx := context.Background()
	task := models.SyncTask{TaskType: models.SyncTaskUpsert, BookingID: 9, Payload: "{"}
	if err := db.CreateSyncTask(ctx, &task); err != nil {
		t.Fatalf("create: %v", err)
	}
	worker.processTask(ctx, &task)

	status, _, _ := loadTaskStatus(t, db, task.ID)
	if status != models.SyncStatusFailed {
		t.Fatalf("expected status=failed, got %s", status)
	}
}

func TestSheetsWorker_EnqueueRebuild(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	worker := NewSheetsWorker(db, sheets, nil, RetryPolicy{MaxRetries: 3}, nil)

	ctx := context.Background()
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 30)

	if err := worker.EnqueueRebuild(ctx, start, end); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := worker.EnqueueRebuild(ctx, end, start); err == nil {
		t.Fatalf("expected error for inverted range")
	}

	tasks, _ := db.GetPendingSyncTasks(ctx, 10)
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	if tasks[0].TaskType != models.SyncTaskRebuild {
		t.Fatalf("expected rebuild task, got %s", tasks[0].TaskType)
	}

	worker.processTask(ctx, &tasks[0])
	if sheets.replaceCalls != 1 {
		t.Fatalf("expected 1 replace call, got %d", sheets.replaceCalls)
	}
}

func TestSheetsWorker_HandleSheetTask(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	worker := NewSheetsWorker(db, sheets, nil, RetryPolicy{MaxRetries: 3}, nil)

	ctx := context.Background()

	t.Run("Upsert", func(t *testing.T) {
		err := worker.handleSheetTask(ctx, models.SyncTaskUpsert, sheetTaskPayload{Booking: testBooking(1)})
		if err != nil {
			t.Fatalf("handle: %v", err)
		}
		if sheets.upsertCalls != 1 {
			t.Fatalf("expected 1 upsert call, got %d", sheets.upsertCalls)
		}
	})

	t.Run("UpsertMissingBooking", func(t *testing.T) {
		if err := worker.handleSheetTask(ctx, models.SyncTaskUpsert, sheetTaskPayload{BookingID: 1}); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("UpdateStatus", func(t *testing.T) {
		err := worker.handleSheetTask(ctx, models.SyncTaskStatus, sheetTaskPayload{BookingID: 123, Status: models.BookingConfirmed})
		if err != nil {
			t.Fatalf("handle: %v", err)
		}
		if sheets.lastStatus != models.BookingConfirmed {
			t.Fatalf("expected confirmed, got %s", sheets.lastStatus)
		}
	})

	t.Run("Unknown", func(t *testing.T) {
		if err := worker.handleSheetTask(ctx, "delete", sheetTaskPayload{BookingID: 1}); err == nil {
			t.Fatalf("expected error for unknown task")
		}
	})
}

func TestSheetsWorker_Subscribe(t *testing.T) {
	db := newTestDB(t)
	worker := NewSheetsWorker(db, &fakeSheets{}, nil, RetryPolicy{}, nil)
	bus := events.NewEventBus(nil)
	worker.Subscribe(bus)

	b := testBooking(7)
	if err := bus.PublishJSON(events.EventBookingRequested, events.BookingEventPayload{Booking: *b}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	b.Status = models.BookingConfirmed
	if err := bus.PublishJSON(events.EventBookingConfirmed, events.BookingEventPayload{Booking: *b}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	first, _ := worker.tryLocalQueue()
	second, _ := worker.tryLocalQueue()
	if first.TaskType != models.SyncTaskUpsert || second.TaskType != models.SyncTaskStatus {
		t.Fatalf("unexpected tasks %q, %q", first.TaskType, second.TaskType)
	}
	payload, err := worker.decodePayload(second.Payload)
	if err != nil || payload.Status != models.BookingConfirmed {
		t.Fatalf("unexpected payload %+v (%v)", payload, err)
	}
}

func TestSheetsWorker_StartStops(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	worker := NewSheetsWorker(db, sheets, nil, RetryPolicy{}, nil)
	worker.pollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	if err := worker.EnqueueTask(ctx, models.SyncTaskUpsert, 1, testBooking(1), ""); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	done := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for sheets.calls() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not stop")
	}
	if sheets.calls() == 0 {
		t.Fatalf("expected the queued task to be processed")
	}
}

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 5 * time.Second}
	d1 := policy.NextDelay(1)
	d2 := policy.NextDelay(2)
	d3 := policy.NextDelay(5)

	if d1 != time.Second {
		t.Fatalf("attempt1 expected 1s, got %s", d1)
	}
	if d2 != 2*time.Second {
		t.Fatalf("attempt2 expected 2s, got %s", d2)
	}
	if d3 != 5*time.Second {
		t.Fatalf("attempt5 expected capped 5s, got %s", d3)
	}
	if d := (RetryPolicy{}).NextDelay(0); d != time.Second {
		t.Fatalf("zero policy expected 1s, got %s", d)
	}
}

func TestSheetsWorker_EnqueueTask(t *testing.T) {
	db := newTestDB(t)
	worker := NewSheetsWorker(db, &fakeSheets{}, nil, RetryPolicy{}, nil)
	ctx := context.Background()

	t.Run("ValidTask", func(t *testing.T) {
		if err := worker.EnqueueTask(ctx, models.SyncTaskUpsert, 0, testBooking(1), ""); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	})

	t.Run("InvalidTaskType", func(t *testing.T) {
		if err := worker.EnqueueTask(ctx, "", 1, testBooking(1), ""); err == nil {
			t.Fatalf("expected error for empty task type")
		}
	})

	t.Run("InvalidBookingID", func(t *testing.T) {
		if err := worker.EnqueueTask(ctx, models.SyncTaskUpsert, 0, nil, ""); err == nil {
			t.Fatalf("expected error for missing booking id")
		}
	})
}

// Helpers

type fakeSheets struct {
	mu           sync.Mutex
	err          error
	upsertCalls  int
	statusCalls  int
	replaceCalls int
	lastStatus   models.BookingStatus
}

func (f *fakeSheets) UpsertBooking(_ context.Context, _ *models.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertCalls++
	return f.err
}

func (f *fakeSheets) UpdateBookingStatus(_ context.Context, _ int64, status models.BookingStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	f.lastStatus = status
	return f.err
}

func (f *fakeSheets) ReplaceBookingsSheet(_ context.Context, _ []*models.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replaceCalls++
	return f.err
}

func (f *fakeSheets) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upsertCalls + f.statusCalls + f.replaceCalls
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.db")
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(path, &logger)
	if err != nil {
		t.Fatalf("new db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func loadTaskStatus(t *testing.T, db *database.DB, id int64) (status string, retryCount int, nextRetry sql.NullTime) {
	t.Helper()
	row := db.QueryRowContext(context.Background(), `SELECT status, retry_count, next_retry_at FROM sync_queue WHERE id = ?`, id)
	if err := row.Scan(&status, &retryCount, &nextRetry); err != nil {
		t.Fatalf("scan task: %v", err)
	}
	return status, retryCount, nextRetry
}

func TestRetryPolicyExhausted(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3}
	if policy.Exhausted(2) {
		t.Fatal("attempt 2 of 3 should retry")
	}
	if !policy.Exhausted(3) {
		t.Fatal("attempt 3 of 3 should be exhausted")
	}
	if (RetryPolicy{}).Exhausted(4) {
		t.Fatal("default policy allows 5 attempts")
	}
}
