package queue

import (
	"context"
	"testing"
	"time"

	"notifyd/internal/notification"
)

func TestDeliverAllChannelsInOrder(t *testing.T) {
	t.Parallel()
	snd := newScriptedSender()
	s := testQueue(t, snd)

	j := newJob([]notification.Channel{notification.ChannelPush, notification.ChannelEmail}, notification.PriorityHigh)
	s.Enqueue(j)
	s.ProcessDueJobs(context.Background())

	got := s.Job(j.ID)
	if got.Status != notification.StatusDelivered {
		t.Fatalf("status = %s, want delivered", got.Status)
	}
	if len(got.Attempts) != 2 {
		t.Fatalf("attempts = %d, want 2", len(got.Attempts))
	}
	if got.Attempts[0].Channel != notification.ChannelPush || !got.Attempts[0].Success {
		t.Fatalf("attempt 0 = %+v, want push success", got.Attempts[0])
	}
	if got.Attempts[1].Channel != notification.ChannelEmail || !got.Attempts[1].Success {
		t.Fatalf("attempt 1 = %+v, want email success", got.Attempts[1])
	}
}

func TestRetriesExhaustedFailsJob(t *testing.T) {
	t.Parallel()
	snd := newScriptedSender()
	snd.script(notification.ChannelSMS, fail(notification.ChannelSMS, "provider down"))
	s := testQueue(t, snd)

	j := newJob([]notification.Channel{notification.ChannelSMS}, notification.PriorityMedium)
	j.MaxRetries = 2
	s.Enqueue(j)
	s.ProcessDueJobs(context.Background())

	waitFor(t, "terminal failure", func() bool {
		return s.Job(j.ID).Status == notification.StatusFailed
	})

	got := s.Job(j.ID)
	if len(got.Attempts) != 2 {
		t.Fatalf("attempts = %d, want 2 (MaxRetries)", len(got.Attempts))
	}
	for i, a := range got.Attempts {
		if a.Success || a.Channel != notification.ChannelSMS {
			t.Fatalf("attempt %d = %+v, want sms failure", i, a)
		}
	}
	if got.LastError != "provider down" {
		t.Fatalf("LastError = %q, want provider error", got.LastError)
	}
}

func TestRetryThenSuccess(t *testing.T) {
	t.Parallel()
	snd := newScriptedSender()
	snd.script(notification.ChannelEmail,
		fail(notification.ChannelEmail, "transient"),
		ok(notification.ChannelEmail),
	)
	s := testQueue(t, snd)

	j := newJob([]notification.Channel{notification.ChannelPush, notification.ChannelEmail}, notification.PriorityMedium)
	s.Enqueue(j)
	s.ProcessDueJobs(context.Background())

	waitFor(t, "delivery after retry", func() bool {
		return s.Job(j.ID).Status == notification.StatusDelivered
	})

	got := s.Job(j.ID)
	want := []struct {
		ch      notification.Channel
		success bool
	}{
		{notification.ChannelPush, true},
		{notification.ChannelEmail, false},
		{notification.ChannelEmail, true},
	}
	if len(got.Attempts) != len(want) {
		t.Fatalf("attempts = %d, want %d", len(got.Attempts), len(want))
	}
	for i, w := range want {
		a := got.Attempts[i]
		if a.Channel != w.ch || a.Success != w.success {
			t.Fatalf("attempt %d = %+v, want %v/%v", i, a, w.ch, w.success)
		}
	}

	// The succeeded channel must not be re-attempted on retry.
	if n := snd.callCount(notification.ChannelPush); n != 1 {
		t.Fatalf("push sent %d times, want 1", n)
	}
}

func TestFailureStopsRemainingChannels(t *testing.T) {
	t.Parallel()
	snd := newScriptedSender()
	snd.script(notification.ChannelPush, fail(notification.ChannelPush, "no token"))
	s := testQueue(t, snd)

	j := newJob([]notification.Channel{notification.ChannelPush, notification.ChannelEmail}, notification.PriorityMedium)
	j.MaxRetries = 1
	s.Enqueue(j)
	s.ProcessDueJobs(context.Background())

	waitFor(t, "terminal failure", func() bool {
		return s.Job(j.ID).Status == notification.StatusFailed
	})

	// Channel N+1 is never attempted before channel N succeeds.
	if n := snd.callCount(notification.ChannelEmail); n != 0 {
		t.Fatalf("email attempted %d times after push failed, want 0", n)
	}
}

func TestTerminalJobsAreStable(t *testing.T) {
	t.Parallel()
	snd := newScriptedSender()
	s := testQueue(t, snd)

	j := newJob([]notification.Channel{notification.ChannelPush}, notification.PriorityMedium)
	s.Enqueue(j)
	s.ProcessDueJobs(context.Background())
	waitFor(t, "delivery", func() bool {
		return s.Job(j.ID).Status == notification.StatusDelivered
	})

	before := s.Job(j.ID)
	s.processJob(context.Background(), j.ID)
	s.ProcessDueJobs(context.Background())
	after := s.Job(j.ID)

	if after.Status != before.Status {
		t.Fatalf("status changed: %s -> %s", before.Status, after.Status)
	}
	if len(after.Attempts) != len(before.Attempts) {
		t.Fatalf("attempts grew on a terminal job: %d -> %d", len(before.Attempts), len(after.Attempts))
	}
	if !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Fatalf("UpdatedAt changed on a terminal job")
	}
}

func TestProcessingGuardBlocksReentry(t *testing.T) {
	t.Parallel()
	snd := newScriptedSender()
	s := testQueue(t, snd)

	j := newJob([]notification.Channel{notification.ChannelPush}, notification.PriorityMedium)
	s.Enqueue(j)

	s.mu.Lock()
	s.processing[j.ID] = struct{}{}
	s.mu.Unlock()

	s.processJob(context.Background(), j.ID)
	if n := snd.callCount(notification.ChannelPush); n != 0 {
		t.Fatalf("sender called %d times while job marked processing, want 0", n)
	}

	s.mu.Lock()
	delete(s.processing, j.ID)
	s.mu.Unlock()
}

func TestRetryResumeWaitsForProcessingCleanup(t *testing.T) {
	t.Parallel()
	snd := newScriptedSender()
	s := testQueue(t, snd)

	j := newJob([]notification.Channel{notification.ChannelPush}, notification.PriorityMedium)
	s.Enqueue(j)

	// The backoff timer can fire while the arming pass still holds the
	// processing guard; the job must stay parked and resume by itself.
	s.mu.Lock()
	s.processing[j.ID] = struct{}{}
	s.retryWait[j.ID] = struct{}{}
	s.mu.Unlock()

	s.resumeRetry(j.ID)

	s.mu.Lock()
	_, waiting := s.retryWait[j.ID]
	s.mu.Unlock()
	if !waiting {
		t.Fatal("retry wait cleared while the job was mid-process")
	}
	if n := snd.callCount(notification.ChannelPush); n != 0 {
		t.Fatalf("sender called %d times while job marked processing, want 0", n)
	}

	s.mu.Lock()
	delete(s.processing, j.ID)
	s.mu.Unlock()

	waitFor(t, "delivery via re-armed timer", func() bool {
		return s.Job(j.ID).Status == notification.StatusDelivered
	})
}

func TestAttemptsAppendOnly(t *testing.T) {
	t.Parallel()
	snd := newScriptedSender()
	snd.script(notification.ChannelSMS,
		fail(notification.ChannelSMS, "busy"),
		fail(notification.ChannelSMS, "busy"),
		ok(notification.ChannelSMS),
	)
	s := testQueue(t, snd)

	j := newJob([]notification.Channel{notification.ChannelSMS}, notification.PriorityMedium)
	s.Enqueue(j)

	prev := 0
	s.ProcessDueJobs(context.Background())
	waitFor(t, "delivery", func() bool {
		got := s.Job(j.ID)
		if len(got.Attempts) < prev {
			t.Fatalf("attempts shrank: %d -> %d", prev, len(got.Attempts))
		}
		prev = len(got.Attempts)
		return got.Status == notification.StatusDelivered
	})

	got := s.Job(j.ID)
	if len(got.Attempts) != 3 {
		t.Fatalf("attempts = %d, want 3", len(got.Attempts))
	}
}

func TestBackoffDelayDoubles(t *testing.T) {
	t.Parallel()
	base := 500 * time.Millisecond
	want := []time.Duration{
		500 * time.Millisecond,
		time.Second,
		2 * time.Second,
		4 * time.Second,
	}
	for n, w := range want {
		if got := backoffDelay(base, n); got != w {
			t.Fatalf("backoffDelay(%d) = %v, want %v", n, got, w)
		}
	}
	if backoffDelay(base, -1) != base {
		t.Fatalf("negative retry index should clamp to base")
	}
}
