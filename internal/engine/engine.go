// Package engine exposes the notification engine to callers: enqueue via
// ScheduleNotification plus the snapshot/pending/history read surface. It is
// the only interface external code uses; queue internals stay internal.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"notifyd/internal/eventbus"
	"notifyd/internal/notification"
	"notifyd/internal/queue"
	rtsup "notifyd/internal/runtime/supervisor"
	"notifyd/internal/storage"
	logx "notifyd/pkg/logx"
)

var ErrNoChannels = errors.New("at least one channel is required")

// Config controls the scheduling driver and retention.
type Config struct {
	// TickInterval is the fixed period between ProcessDueJobs ticks.
	TickInterval time.Duration

	// Retention prunes terminal jobs older than MaxAge on the cron Schedule.
	// MaxAge 0 disables pruning (history kept indefinitely).
	Retention RetentionConfig
}

type RetentionConfig struct {
	MaxAge   time.Duration
	Schedule string // cron spec, default "0 3 * * *"
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	if c.Retention.Schedule == "" {
		c.Retention.Schedule = "0 3 * * *"
	}
	return c
}

// Input describes one notification request.
type Input struct {
	Channels     []notification.Channel
	Priority     notification.Priority // empty means medium
	Template     notification.Template
	ScheduledFor *time.Time
	MaxRetries   int // 0 means the queue default (3)
	UserID       string
}

// Engine wires the delivery queue to its scheduling driver, the outcome
// journal and retention. Safe for concurrent use.
type Engine struct {
	mu  sync.Mutex
	cfg Config

	q     *queue.Service
	log   logx.Logger
	bus   eventbus.Bus
	store storage.Store

	sup      *rtsup.Supervisor
	cron     *cron.Cron
	stopCh   chan struct{}
	stopDone chan struct{}
}

func New(cfg Config, q *queue.Service, log logx.Logger, bus eventbus.Bus, store storage.Store) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		cfg:   cfg.withDefaults(),
		q:     q,
		log:   log,
		bus:   bus,
		store: store,
	}
}

// ScheduleNotification validates the input, assigns a job id and enqueues.
//
// Enqueue is fire-and-forget: the returned id is the only success signal, and
// delivery outcomes surface through the snapshot/history read side. Contract
// errors (no channels, unknown channel or priority, negative retry cap) are
// rejected here instead of enqueueing an unprocessable job.
func (e *Engine) ScheduleNotification(in Input) (string, error) {
	if len(in.Channels) == 0 {
		return "", ErrNoChannels
	}
	channels := make([]notification.Channel, 0, len(in.Channels))
	for _, ch := range in.Channels {
		c, err := notification.ParseChannel(string(ch))
		if err != nil {
			return "", err
		}
		channels = append(channels, c)
	}

	prio := in.Priority
	if prio == "" {
		prio = notification.PriorityMedium
	} else if _, err := notification.ParsePriority(string(prio)); err != nil {
		return "", err
	}

	if in.MaxRetries < 0 {
		return "", fmt.Errorf("max retries must be >= 0, got %d", in.MaxRetries)
	}

	job := &notification.Job{
		ID:           uuid.NewString(),
		UserID:       in.UserID,
		Channels:     channels,
		Priority:     prio,
		Template:     in.Template,
		ScheduledFor: in.ScheduledFor,
		MaxRetries:   in.MaxRetries,
	}
	e.q.Enqueue(job)
	return job.ID, nil
}

// Snapshot returns the derived aggregate view of queue state.
func (e *Engine) Snapshot() notification.Snapshot { return e.q.Snapshot() }

// Pending returns pending and scheduled jobs in processing order.
func (e *Engine) Pending() []*notification.Job { return e.q.Pending() }

// History returns delivered and failed jobs.
func (e *Engine) History() []*notification.Job { return e.q.History() }

// Job returns a copy of a single job by id, or nil.
func (e *Engine) Job(id string) *notification.Job { return e.q.Job(id) }

// Workers reports the driver's supervised goroutine counters. Zeroes while
// the engine is stopped.
func (e *Engine) Workers() (active int64, started uint64) {
	e.mu.Lock()
	sup := e.sup
	e.mu.Unlock()
	return sup.Counters()
}

// Apply reconfigures the driver at runtime. A changed tick interval restarts
// the driver; retention changes take effect on the next cron run.
func (e *Engine) Apply(ctx context.Context, cfg Config) {
	cfg = cfg.withDefaults()

	e.mu.Lock()
	prev := e.cfg
	e.cfg = cfg
	running := e.stopCh != nil && e.stopDone == nil
	e.mu.Unlock()

	if !running {
		return
	}
	if prev.TickInterval != cfg.TickInterval || prev.Retention != cfg.Retention {
		e.Stop(ctx)
		e.Start(ctx)
	}
}
