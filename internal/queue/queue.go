package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"notifyd/internal/eventbus"
	"notifyd/internal/notification"
	"notifyd/internal/sender"
	logx "notifyd/pkg/logx"
)

// Config controls the delivery queue.
type Config struct {
	// DefaultMaxRetries applies when a job does not set its own cap.
	DefaultMaxRetries int

	// RetryBase is the delay before the first retry; retry n (0-indexed)
	// waits RetryBase * 2^n.
	RetryBase time.Duration
}

func (c Config) withDefaults() Config {
	if c.DefaultMaxRetries <= 0 {
		c.DefaultMaxRetries = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	return c
}

// ChannelSender is the slice of the sender registry the queue needs.
type ChannelSender interface {
	Send(ctx context.Context, ch notification.Channel, tpl notification.Template) sender.Result
}

// JobEvent is the bus payload for job lifecycle events.
type JobEvent struct {
	ID       string              `json:"id"`
	UserID   string              `json:"user_id,omitempty"`
	Status   notification.Status `json:"status"`
	Channel  string              `json:"channel,omitempty"`
	Attempts int                 `json:"attempts"`
	Error    string              `json:"error,omitempty"`
}

// Service owns the job collection.
//
// One mutex serializes every mutation (enqueue, status transition, attempt
// append); the processing set gives per-job mutual exclusion across
// overlapping ticks, and the retryWait set keeps ticks from re-attempting a
// job before its backoff timer fires.
type Service struct {
	mu     sync.Mutex
	cfg    Config
	log    logx.Logger
	bus    eventbus.Bus
	sender ChannelSender

	jobs        []*notification.Job
	processing  map[string]struct{}
	retryWait   map[string]struct{}
	retryTimers map[string]*time.Timer
	closed      bool
}

func New(cfg Config, snd ChannelSender, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:         cfg.withDefaults(),
		log:         log,
		bus:         bus,
		sender:      snd,
		processing:  map[string]struct{}{},
		retryWait:   map[string]struct{}{},
		retryTimers: map[string]*time.Timer{},
	}
}

// Close stops pending retry timers. Jobs keep their current status; the queue
// holds no other background resources.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	for id, t := range s.retryTimers {
		t.Stop()
		delete(s.retryTimers, id)
		delete(s.retryWait, id)
	}
	s.mu.Unlock()
}

// Enqueue inserts a job into the ordered collection.
//
// Initial status is scheduled when ScheduledFor lies in the future, pending
// otherwise. The queue owns status, attempts and timestamps from here on.
func (s *Service) Enqueue(job *notification.Job) {
	now := time.Now()
	job.Status = notification.StatusPending
	if job.ScheduledFor != nil && job.ScheduledFor.After(now) {
		job.Status = notification.StatusScheduled
	}
	if job.MaxRetries <= 0 {
		job.MaxRetries = s.cfg.DefaultMaxRetries
	}
	job.Attempts = nil
	job.CreatedAt = now
	job.UpdatedAt = now

	s.mu.Lock()
	s.jobs = append(s.jobs, job)
	s.sortLocked()
	s.mu.Unlock()

	s.publish(eventbus.EventJobEnqueued, JobEvent{ID: job.ID, UserID: job.UserID, Status: job.Status})
	s.log.Debug("job enqueued",
		logx.String("job", job.ID),
		logx.String("priority", string(job.Priority)),
		logx.Int("channels", len(job.Channels)))
}

// Pending returns the pending and scheduled jobs in processing order.
func (s *Service) Pending() []*notification.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*notification.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if j.Status == notification.StatusPending || j.Status == notification.StatusScheduled {
			out = append(out, j.Clone())
		}
	}
	return out
}

// History returns the jobs that reached a terminal state.
func (s *Service) History() []*notification.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*notification.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if j.Status.Terminal() {
			out = append(out, j.Clone())
		}
	}
	return out
}

// Job returns a copy of the job with the given id, or nil if unknown.
func (s *Service) Job(id string) *notification.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j := s.findLocked(id); j != nil {
		return j.Clone()
	}
	return nil
}

// PruneTerminal drops delivered/failed jobs whose last update is older than
// the cutoff. It returns the number of jobs removed.
func (s *Service) PruneTerminal(olderThan time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.jobs[:0]
	removed := 0
	for _, j := range s.jobs {
		if j.Status.Terminal() && j.UpdatedAt.Before(olderThan) {
			removed++
			continue
		}
		kept = append(kept, j)
	}
	s.jobs = kept
	return removed
}

func (s *Service) findLocked(id string) *notification.Job {
	for _, j := range s.jobs {
		if j.ID == id {
			return j
		}
	}
	return nil
}

// sortLocked re-orders the collection: priority weight descending, then
// effective timestamp (ScheduledFor, else CreatedAt) ascending.
func (s *Service) sortLocked() {
	sort.SliceStable(s.jobs, func(a, b int) bool {
		ja, jb := s.jobs[a], s.jobs[b]
		wa, wb := ja.Priority.Weight(), jb.Priority.Weight()
		if wa != wb {
			return wa > wb
		}
		return ja.EffectiveTime().Before(jb.EffectiveTime())
	})
}

func (s *Service) publish(typ string, ev JobEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: ev})
}
