package model

import (
	"sync"
	"time"
)

// CampaignStatus is the campaign lifecycle state. completed/stopped/error
// are absorbing.
type CampaignStatus string

const (
	StatusPending   CampaignStatus = "pending"
	StatusRunning   CampaignStatus = "running"
	StatusCompleted CampaignStatus = "completed"
	StatusStopped   CampaignStatus = "stopped"
	StatusError     CampaignStatus = "error"
)

// IsTerminal reports whether status is one of the absorbing end states.
func (s CampaignStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusStopped || s == StatusError
}

// ErrorRecord captures one per-recipient delivery failure.
type ErrorRecord struct {
	Recipient string    `json:"recipient"`
	Message   string    `json:"message"`
	RelayName string    `json:"relay_name"`
	Timestamp time.Time `json:"timestamp"`
}

// MaxSurfacedErrors/MaxSurfacedLogs bound what a status snapshot returns;
// the full lists are retained on the record until registry GC.
const (
	MaxSurfacedErrors = 10
	MaxSurfacedLogs   = 50
)

const DefaultMaxFailuresPerRelay = 3
const DefaultDelaySeconds = 5

// Campaign holds one submission's static inputs and mutable execution
// state. The Registry owns the record; the Executor mutates it while
// running; the status endpoint reads it concurrently (see package
// registry for the concurrency contract).
type Campaign struct {
	ID string

	// Static inputs, immutable once the campaign is constructed.
	Recipients           []string
	SubjectTemplate      string
	BodyTemplate         string
	IsHTML               bool
	DelaySeconds         int
	UseRotation          bool
	RotationFrequency    int
	CustomSubjects       []string
	CustomSenders        []string
	CustomReplyTo        string
	MaxFailuresPerRelay  int
	Relays               []RelayDescriptor

	mu sync.RWMutex

	Status           CampaignStatus
	Sent             int
	Success          int
	Failed           int
	CurrentRecipient string
	StartTime        time.Time
	Log              []string
	Errors           []ErrorRecord
	RetryQueue       []string
}

// NewCampaign builds a pending campaign record from validated submission
// fields, applying defaults. delaySeconds is a pointer so an operator's
// explicit 0 (no pacing) is distinguishable from an omitted field: only
// a nil pointer defaults to DefaultDelaySeconds (spec §4.E step 9 names
// the default for an *omitted* value, not an explicit zero).
func NewCampaign(id string, recipients []string, subjectTemplate, bodyTemplate string, isHTML bool,
	delaySeconds *int, useRotation bool, rotationFrequency int,
	customSubjects, customSenders []string, customReplyTo string,
	maxFailuresPerRelay int, relays []RelayDescriptor) *Campaign {

	resolvedDelay := DefaultDelaySeconds
	if delaySeconds != nil {
		resolvedDelay = *delaySeconds
	}
	if maxFailuresPerRelay <= 0 {
		maxFailuresPerRelay = DefaultMaxFailuresPerRelay
	}

	return &Campaign{
		ID:                  id,
		Recipients:          recipients,
		SubjectTemplate:     subjectTemplate,
		BodyTemplate:        bodyTemplate,
		IsHTML:              isHTML,
		DelaySeconds:        resolvedDelay,
		UseRotation:         useRotation,
		RotationFrequency:   rotationFrequency,
		CustomSubjects:      customSubjects,
		CustomSenders:       customSenders,
		CustomReplyTo:       customReplyTo,
		MaxFailuresPerRelay: maxFailuresPerRelay,
		Relays:              relays,
		Status:              StatusPending,
		StartTime:           time.Now(),
	}
}

// The Lock/RLock helpers below are the seam the executor (sole writer)
// and status readers (concurrent) share. Readers only ever take RLock,
// so they never block the executor for more than a field copy.

// WithLock runs fn while holding the write lock. Only the owning executor
// should call this.
func (c *Campaign) WithLock(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn()
}

// AppendLog appends a line to the bounded log buffer's backing slice.
// Callers must hold the write lock (call from within WithLock).
func (c *Campaign) AppendLog(line string) {
	c.Log = append(c.Log, line)
}

// AppendError appends an error record. Callers must hold the write lock.
func (c *Campaign) AppendError(e ErrorRecord) {
	c.Errors = append(c.Errors, e)
}

// Snapshot is an immutable, JSON-friendly copy of a campaign's current
// state for the status endpoint. Torn reads across fields are tolerated
// per spec (readers recompute derived metrics client-side).
type Snapshot struct {
	ID               string        `json:"id"`
	Status           CampaignStatus `json:"status"`
	Sent             int           `json:"sent"`
	Success          int           `json:"success"`
	Failed           int           `json:"failed"`
	CurrentRecipient string        `json:"current_recipient"`
	Total            int           `json:"total"`
	Speed            float64       `json:"speed_per_minute"`
	Remaining        int           `json:"remaining"`
	ETAMinutes       int           `json:"estimated_time_minutes"`
	Log              []string      `json:"log"`
	Errors           []ErrorRecord `json:"errors"`
	StartTime        time.Time     `json:"start_time"`
}

// Snapshot reads a consistent-per-field view of the campaign. It takes the
// read lock briefly; it never blocks on the executor's send/sleep work
// because the executor only holds the write lock for bookkeeping updates.
func (c *Campaign) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	elapsedMinutes := time.Since(c.StartTime).Minutes()
	speed := 0.0
	if elapsedMinutes > 0 {
		speed = float64(c.Sent) / elapsedMinutes
	}
	remaining := len(c.Recipients) - c.Sent
	if remaining < 0 {
		remaining = 0
	}
	eta := 0
	if speed > 0 {
		eta = int((float64(remaining)/speed)+0.999999) // ceil
	}

	errs := c.Errors
	if len(errs) > MaxSurfacedErrors {
		errs = errs[len(errs)-MaxSurfacedErrors:]
	}
	logs := c.Log
	if len(logs) > MaxSurfacedLogs {
		logs = logs[len(logs)-MaxSurfacedLogs:]
	}

	return Snapshot{
		ID:               c.ID,
		Status:           c.Status,
		Sent:             c.Sent,
		Success:          c.Success,
		Failed:           c.Failed,
		CurrentRecipient: c.CurrentRecipient,
		Total:            len(c.Recipients),
		Speed:            speed,
		Remaining:        remaining,
		ETAMinutes:       eta,
		Log:              append([]string(nil), logs...),
		Errors:           append([]ErrorRecord(nil), errs...),
		StartTime:        c.StartTime,
	}
}

// StatusLocked returns the current status under the read lock. Used by
// the executor's own loop-head check (cheap, avoids a data race with a
// concurrent Stop()).
func (c *Campaign) StatusValue() CampaignStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Status
}

// RequestStop sets status to stopped iff the campaign is not already
// terminal. Returns whether the transition occurred.
func (c *Campaign) RequestStop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Status.IsTerminal() {
		return false
	}
	c.Status = StatusStopped
	return true
}
