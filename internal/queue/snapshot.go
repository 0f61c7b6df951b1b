package queue

import (
	"time"

	"notifyd/internal/notification"
)

// Snapshot derives the aggregate counters from current queue state.
// It is computed on demand; nothing is cached.
func (s *Service) Snapshot() notification.Snapshot {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var snap notification.Snapshot
	snap.Processing = len(s.processing)

	var oldest *time.Time
	for _, j := range s.jobs {
		switch j.Status {
		case notification.StatusPending:
			snap.Queued++
			if oldest == nil || j.CreatedAt.Before(*oldest) {
				t := j.CreatedAt
				oldest = &t
			}
		case notification.StatusScheduled:
			snap.Scheduled++
		case notification.StatusDelivered:
			if sameDay(j.UpdatedAt, now) {
				snap.DeliveredToday++
			}
		case notification.StatusFailed:
			if sameDay(j.UpdatedAt, now) {
				snap.FailedToday++
			}
		}
		if extra := len(j.Attempts) - 1; extra > 0 {
			snap.Retries += extra
		}
	}
	snap.OldestPending = oldest
	return snap
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
