package models

const (
	DateLayout = "2006-01-02"

	// EarthRadiusMeters is the mean radius used for haversine distances.
	EarthRadiusMeters = 6371000.0

	// NotificationQueueSize bounds the in-memory notification queue.
	NotificationQueueSize = 1000

	// WorkerQueueSize bounds the ledger sync worker queue.
	WorkerQueueSize = 1000

	// DefaultCalendarDays is the calendar window when none is given.
	DefaultCalendarDays = 30

	// MaxCalendarDays caps the calendar window.
	MaxCalendarDays = 366

	// DefaultSearchCacheTTL in seconds.
	DefaultSearchCacheTTL = 60

	// DefaultSearchCacheSize is the maximum number of cached search results.
	DefaultSearchCacheSize = 1000
)

const (
	SyncTaskUpsert  = "upsert"
	SyncTaskStatus  = "update_status"
	SyncTaskRebuild = "rebuild"
)

const (
	SyncStatusPending   = "pending"
	SyncStatusRetry     = "retry"
	SyncStatusCompleted = "completed"
	SyncStatusFailed    = "failed"
)
