package engine

import (
	"context"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"notifyd/internal/eventbus"
	"notifyd/internal/queue"
	rtsup "notifyd/internal/runtime/supervisor"
	"notifyd/internal/storage"
	logx "notifyd/pkg/logx"
)

// Start launches the scheduling driver (fixed-interval tick calling
// ProcessDueJobs), the outcome journal consumer and the retention cron.
// Start is idempotent.
func (e *Engine) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	e.mu.Lock()
	// If stopping, wait for it to finish before restarting.
	if e.stopDone != nil {
		done := e.stopDone
		e.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		e.mu.Lock()
	}
	if e.stopCh != nil {
		e.mu.Unlock()
		return
	}

	cfg := e.cfg
	e.stopCh = make(chan struct{})
	stopCh := e.stopCh

	e.sup = rtsup.New(ctx,
		rtsup.WithLogger(e.log.With(logx.String("comp", "engine"))),
		// A tick failure must never take the engine down.
		rtsup.WithCancelOnError(false),
	)
	sup := e.sup

	if cfg.Retention.MaxAge > 0 {
		c := cron.New()
		maxAge := cfg.Retention.MaxAge
		_, err := c.AddFunc(cfg.Retention.Schedule, func() {
			removed := e.q.PruneTerminal(time.Now().Add(-maxAge))
			if removed > 0 {
				e.log.Info("pruned terminal jobs", logx.Int("removed", removed))
			}
		})
		if err != nil {
			e.log.Error("invalid retention schedule",
				logx.String("spec", cfg.Retention.Schedule), logx.Err(err))
		} else {
			c.Start()
			e.cron = c
		}
	}
	e.mu.Unlock()

	sup.GoRestart("driver", func(c context.Context) error {
		e.tickLoop(c, stopCh, cfg.TickInterval)
		select {
		case <-stopCh:
			return context.Canceled
		default:
		}
		return c.Err()
	})

	if e.store != nil && e.bus != nil {
		events, unsub := e.bus.Subscribe(64)
		sup.Go("journal", func(c context.Context) error {
			defer unsub()
			e.journalLoop(c, stopCh, events)
			return nil
		})
	}

	e.log.Info("engine started", logx.Duration("tick", cfg.TickInterval))
}

// Stop halts future ticks and the retention cron. In-progress delivery
// attempts are allowed to finish; pending retry timers are cancelled with the
// queue when the owner closes it.
func (e *Engine) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	e.mu.Lock()
	if e.stopCh == nil {
		e.mu.Unlock()
		return
	}
	if e.stopDone != nil {
		done := e.stopDone
		e.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}

	done := make(chan struct{})
	e.stopDone = done
	close(e.stopCh)
	sup := e.sup
	c := e.cron
	e.cron = nil
	e.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}

	go func() {
		// The driver exits via stopCh once its current tick drains; cancelling
		// the supervisor context first would abort a live sender call.
		if sup != nil {
			_ = sup.Wait(context.Background())
			sup.Cancel()
		}
		e.mu.Lock()
		e.stopCh = nil
		e.stopDone = nil
		e.sup = nil
		e.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		e.log.Info("engine stopped")
	case <-ctx.Done():
		e.log.Warn("engine stop timed out", logx.Err(ctx.Err()))
	}
}

func (e *Engine) tickLoop(ctx context.Context, stopCh <-chan struct{}, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-t.C:
			// Overlapping ticks are safe: the queue's per-job processing
			// guard makes re-entry a no-op. Processing runs on its own
			// context so stopping the driver halts future ticks but never an
			// in-flight delivery attempt.
			e.q.ProcessDueJobs(context.Background())
		}
	}
}

// journalLoop writes terminal outcomes to the store as bus events arrive.
// Journal writes are best-effort; a write error is logged and dropped.
func (e *Engine) journalLoop(ctx context.Context, stopCh <-chan struct{}, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Type != eventbus.EventJobDelivered && ev.Type != eventbus.EventJobFailed {
				continue
			}
			je, ok := ev.Data.(queue.JobEvent)
			if !ok {
				continue
			}
			e.journalOutcome(ctx, ev.Time, je)
		}
	}
}

func (e *Engine) journalOutcome(ctx context.Context, at time.Time, je queue.JobEvent) {
	j := e.q.Job(je.ID)
	if j == nil {
		return
	}
	chs := make([]string, 0, len(j.Channels))
	for _, ch := range j.Channels {
		chs = append(chs, string(ch))
	}
	err := e.store.AppendOutcome(ctx, storage.OutcomeEntry{
		At:        at,
		JobID:     j.ID,
		UserID:    j.UserID,
		Status:    string(j.Status),
		Priority:  string(j.Priority),
		Channels:  strings.Join(chs, ","),
		Attempts:  len(j.Attempts),
		LastError: j.LastError,
	})
	if err != nil {
		e.log.Warn("journal append failed", logx.String("job", j.ID), logx.Err(err))
	}
}
