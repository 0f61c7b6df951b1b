package queue

import (
	"context"
	"time"

	"notifyd/internal/eventbus"
	"notifyd/internal/notification"
	logx "notifyd/pkg/logx"
)

// ProcessDueJobs processes every non-terminal job whose scheduled time is
// absent or has passed. Jobs waiting out a retry backoff are skipped; their
// timer resumes them.
//
// All failures resolve inside processJob; nothing propagates to the caller,
// so a tick-driven loop is never interrupted by a single job.
func (s *Service) ProcessDueJobs(ctx context.Context) {
	now := time.Now()

	s.mu.Lock()
	due := make([]string, 0, len(s.jobs))
	for _, j := range s.jobs {
		if j.Status.Terminal() {
			continue
		}
		if _, waiting := s.retryWait[j.ID]; waiting {
			continue
		}
		if j.ScheduledFor != nil && j.ScheduledFor.After(now) {
			continue
		}
		due = append(due, j.ID)
	}
	s.mu.Unlock()

	for _, id := range due {
		if ctx.Err() != nil {
			return
		}
		s.processJob(ctx, id)
	}
}

// processJob runs one job through its channel sequence.
//
// Channels are attempted strictly in order; a channel with a prior successful
// attempt is never re-attempted. The first failing channel stops the
// iteration and goes through failure handling.
func (s *Service) processJob(ctx context.Context, id string) {
	now := time.Now()

	s.mu.Lock()
	j := s.findLocked(id)
	if j == nil || j.Status.Terminal() {
		s.mu.Unlock()
		return
	}
	if _, busy := s.processing[id]; busy {
		s.mu.Unlock()
		return
	}
	if _, waiting := s.retryWait[id]; waiting {
		s.mu.Unlock()
		return
	}
	if j.ScheduledFor != nil && j.ScheduledFor.After(now) {
		j.Status = notification.StatusScheduled
		s.mu.Unlock()
		return
	}
	s.processing[id] = struct{}{}
	j.Status = notification.StatusPending
	j.UpdatedAt = now
	channels := append([]notification.Channel(nil), j.Channels...)
	tpl := j.Template
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.processing, id)
		s.sortLocked()
		s.mu.Unlock()
	}()

	for _, ch := range channels {
		s.mu.Lock()
		done := j.ChannelSucceeded(ch)
		s.mu.Unlock()
		if done {
			continue
		}

		// The sender call is the only suspension point; it runs without the lock.
		res := s.sender.Send(ctx, ch, tpl)

		attempt := notification.DeliveryAttempt{
			Channel:      ch,
			AttemptedAt:  time.Now(),
			Success:      res.Success,
			ErrorMessage: res.ErrorMessage,
		}

		s.mu.Lock()
		j.Attempts = append(j.Attempts, attempt)
		attempts := len(j.Attempts)
		s.mu.Unlock()

		s.publish(eventbus.EventJobAttempt, JobEvent{
			ID: id, UserID: j.UserID, Status: j.Status,
			Channel: string(ch), Attempts: attempts, Error: res.ErrorMessage,
		})

		if !res.Success {
			s.handleFailure(j, ch, res.ErrorMessage)
			return
		}
	}

	s.mu.Lock()
	delivered := true
	for _, ch := range j.Channels {
		if !j.ChannelSucceeded(ch) {
			delivered = false
			break
		}
	}
	if delivered {
		j.Status = notification.StatusDelivered
		j.UpdatedAt = time.Now()
	}
	attempts := len(j.Attempts)
	s.mu.Unlock()

	if delivered {
		s.publish(eventbus.EventJobDelivered, JobEvent{
			ID: id, UserID: j.UserID, Status: notification.StatusDelivered, Attempts: attempts,
		})
		s.log.Info("job delivered", logx.String("job", id), logx.Int("attempts", attempts))
	}
}

// handleFailure applies the retry/backoff policy after a failed attempt on ch.
//
// With retries left the job goes to retrying and a timer resubmits it after
// the backoff delay; resubmission restarts the channel loop, which skips the
// channels that already succeeded. With retries exhausted the job fails
// terminally and no further channels are attempted.
func (s *Service) handleFailure(j *notification.Job, ch notification.Channel, errMsg string) {
	now := time.Now()

	s.mu.Lock()
	id := j.ID
	tried := j.ChannelAttempts(ch)
	if tried < j.MaxRetries {
		j.Status = notification.StatusRetrying
		j.UpdatedAt = now
		delay := backoffDelay(s.cfg.RetryBase, tried-1)
		if !s.closed {
			s.retryWait[id] = struct{}{}
			s.retryTimers[id] = time.AfterFunc(delay, func() { s.resumeRetry(id) })
		}
		s.mu.Unlock()

		s.publish(eventbus.EventJobRetry, JobEvent{
			ID: id, UserID: j.UserID, Status: notification.StatusRetrying,
			Channel: string(ch), Attempts: tried, Error: errMsg,
		})
		if s.log.Enabled(logx.LevelDebug) {
			s.log.Debug("retry scheduled",
				logx.String("job", id),
				logx.String("channel", string(ch)),
				logx.Int("attempt", tried),
				logx.Duration("delay", delay))
		}
		return
	}

	j.Status = notification.StatusFailed
	j.LastError = errMsg
	j.UpdatedAt = now
	attempts := len(j.Attempts)
	s.mu.Unlock()

	s.publish(eventbus.EventJobFailed, JobEvent{
		ID: id, UserID: j.UserID, Status: notification.StatusFailed,
		Channel: string(ch), Attempts: attempts, Error: errMsg,
	})
	s.log.Warn("job failed",
		logx.String("job", id),
		logx.String("channel", string(ch)),
		logx.String("err", errMsg))
}

func (s *Service) resumeRetry(id string) {
	s.mu.Lock()
	if s.closed {
		delete(s.retryWait, id)
		delete(s.retryTimers, id)
		s.mu.Unlock()
		return
	}
	// The timer can fire before the arming pass has run its deferred cleanup;
	// keep the job parked and try again once the processing guard clears.
	if _, busy := s.processing[id]; busy {
		s.retryTimers[id] = time.AfterFunc(time.Millisecond, func() { s.resumeRetry(id) })
		s.mu.Unlock()
		return
	}
	delete(s.retryWait, id)
	delete(s.retryTimers, id)
	s.mu.Unlock()
	s.processJob(context.Background(), id)
}

// backoffDelay returns the wait before retry n (0-indexed): base * 2^n.
func backoffDelay(base time.Duration, retry int) time.Duration {
	if retry < 0 {
		retry = 0
	}
	d := base
	for i := 0; i < retry; i++ {
		d *= 2
	}
	return d
}
