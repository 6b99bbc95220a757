package models

import "time"

// DateLayout is the calendar date format used at the API boundary and in storage.
const DateLayout = "2006-01-02"

const (
	TaskUpsert       = "upsert"
	TaskUpdateStatus = "update_status"
)

const (
	SyncStatusPending    = "pending"
	SyncStatusProcessing = "processing"
	SyncStatusRetry      = "retry"
	SyncStatusCompleted  = "completed"
	SyncStatusFailed     = "failed"
)

const (
	// UpcomingLimit how many appointments the upcoming list returns
	UpcomingLimit = 5

	// DefaultMaxBookingDays how far ahead appointments may be booked
	DefaultMaxBookingDays = 90

	// DefaultSlotCacheTTL lifetime of cached availability
	DefaultSlotCacheTTL = 5 * time.Minute

	// BookingRateLimitAttempts booking attempts allowed per user in the window
	BookingRateLimitAttempts = 10

	// BookingRateLimitWindow window for booking attempts
	BookingRateLimitWindow = time.Minute

	// WorkerQueueSize local queue size of the sync worker
	WorkerQueueSize = 1000

	// SheetsCacheTTL lifetime of the sheet row cache
	SheetsCacheTTL = time.Hour
)
