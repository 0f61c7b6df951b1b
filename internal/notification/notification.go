package notification

import (
	"fmt"
	"strings"
	"time"
)

// Channel is a delivery medium.
type Channel string

const (
	ChannelPush  Channel = "push"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// ParseChannel validates a channel identifier.
func ParseChannel(s string) (Channel, error) {
	switch Channel(strings.ToLower(strings.TrimSpace(s))) {
	case ChannelPush:
		return ChannelPush, nil
	case ChannelEmail:
		return ChannelEmail, nil
	case ChannelSMS:
		return ChannelSMS, nil
	default:
		return "", fmt.Errorf("unknown channel %q", s)
	}
}

// Priority orders jobs relative to each other.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Weight returns the sort weight of a priority (higher runs first).
// Unknown priorities weigh 0 and sort last.
func (p Priority) Weight() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// ParsePriority validates a priority identifier.
func ParsePriority(s string) (Priority, error) {
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case PriorityHigh:
		return PriorityHigh, nil
	case PriorityMedium:
		return PriorityMedium, nil
	case PriorityLow:
		return PriorityLow, nil
	default:
		return "", fmt.Errorf("unknown priority %q", s)
	}
}

// Status is the delivery state of a job.
//
// delivered and failed are terminal: a job in either state is never mutated
// again.
type Status string

const (
	StatusPending   Status = "pending"
	StatusScheduled Status = "scheduled"
	StatusRetrying  Status = "retrying"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status ends the job's lifecycle.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusFailed
}

// Template is the immutable content carried by a job.
type Template struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
	CTAURL  string `json:"cta_url,omitempty"`
}

// DeliveryAttempt records one channel-send attempt. It is immutable once
// appended to a job.
type DeliveryAttempt struct {
	Channel      Channel   `json:"channel"`
	AttemptedAt  time.Time `json:"attempted_at"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// Job is one notification request spanning one or more channels.
//
// Channels order is significant: it defines the attempt sequence, and channel
// N+1 is never attempted before channel N has a successful attempt.
// Attempts is append-only; existing entries are never mutated or reordered.
type Job struct {
	ID           string            `json:"id"`
	UserID       string            `json:"user_id,omitempty"`
	Channels     []Channel         `json:"channels"`
	Priority     Priority          `json:"priority"`
	Template     Template          `json:"template"`
	ScheduledFor *time.Time        `json:"scheduled_for,omitempty"`
	MaxRetries   int               `json:"max_retries"`
	Status       Status            `json:"status"`
	Attempts     []DeliveryAttempt `json:"attempts"`
	LastError    string            `json:"last_error,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// EffectiveTime is the timestamp used for FIFO ordering within a priority:
// ScheduledFor when set, CreatedAt otherwise.
func (j *Job) EffectiveTime() time.Time {
	if j.ScheduledFor != nil {
		return *j.ScheduledFor
	}
	return j.CreatedAt
}

// ChannelSucceeded reports whether the job already holds a successful attempt
// for the given channel.
func (j *Job) ChannelSucceeded(ch Channel) bool {
	for _, a := range j.Attempts {
		if a.Channel == ch && a.Success {
			return true
		}
	}
	return false
}

// ChannelAttempts counts the attempts recorded for the given channel.
func (j *Job) ChannelAttempts(ch Channel) int {
	n := 0
	for _, a := range j.Attempts {
		if a.Channel == ch {
			n++
		}
	}
	return n
}

// Clone returns a deep copy so callers can hold a job without racing the
// queue's mutations.
func (j *Job) Clone() *Job {
	cp := *j
	cp.Channels = append([]Channel(nil), j.Channels...)
	cp.Attempts = append([]DeliveryAttempt(nil), j.Attempts...)
	if j.ScheduledFor != nil {
		t := *j.ScheduledFor
		cp.ScheduledFor = &t
	}
	return &cp
}

// Snapshot is a derived, point-in-time aggregate view of queue state.
// It is recomputed from the job collection on request and never cached.
type Snapshot struct {
	Queued         int        `json:"queued"`
	Scheduled      int        `json:"scheduled"`
	Processing     int        `json:"processing"`
	DeliveredToday int        `json:"delivered_today"`
	FailedToday    int        `json:"failed_today"`
	Retries        int        `json:"retries"`
	OldestPending  *time.Time `json:"oldest_pending,omitempty"`
}
