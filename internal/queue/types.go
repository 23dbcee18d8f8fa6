package queue

import (
	"errors"
	"time"

	"github.com/soulxhy/tubewatch/internal/feed"
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Delivery is one accepted notification awaiting (or undergoing) dispatch.
type Delivery struct {
	ID          string
	Event       feed.Event
	DedupeKey   string
	Status      Status
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	LastError   *string
}

// LogEntry is a lightweight projection over delivery_log for monitoring.
type LogEntry struct {
	ID          string
	VideoID     string
	Title       string
	Status      Status
	OutputPath  *string
	CreatedAt   time.Time
	CompletedAt time.Time
	LastError   *string
}

// ErrDuplicateDelivery marks a notification whose dedupe key was already
// accepted. Hubs redeliver on their own schedule; duplicates are acknowledged
// but not dispatched again.
var ErrDuplicateDelivery = errors.New("duplicate delivery")
