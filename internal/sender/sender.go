// Package sender defines the channel sender boundary: the per-channel
// collaborators that attempt one delivery each and report the outcome.
//
// Senders report expected failures through Result, never through panics or
// errors. The registry still guards against misbehaving implementations:
// panics are converted to failed results at this boundary so a bad sender
// cannot crash the queue's processing loop.
package sender

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"notifyd/internal/notification"
	logx "notifyd/pkg/logx"
)

// Result is the outcome of a single channel-send attempt.
type Result struct {
	Channel      notification.Channel
	Success      bool
	ErrorMessage string
}

// Sender attempts one delivery of a template on its channel.
//
// Implementations must be safe to call multiple times for the same template
// (retries) and must return within a bounded time; the registry additionally
// enforces SendTimeout.
type Sender interface {
	Send(ctx context.Context, tpl notification.Template) Result
}

// Func adapts a plain function to the Sender interface.
type Func func(ctx context.Context, tpl notification.Template) Result

func (f Func) Send(ctx context.Context, tpl notification.Template) Result {
	return f(ctx, tpl)
}

// Config controls the registry's guard rails around sender calls.
type Config struct {
	// SendTimeout bounds a single sender call. 0 means no registry-imposed
	// timeout (the sender's own bound applies).
	SendTimeout time.Duration

	// RatePerSec limits sends per channel (token bucket, burst == rate).
	// 0 disables limiting.
	RatePerSec int
}

// Registry maps channels to their senders and wraps every call with the
// boundary guards (timeout, rate limit, panic recovery).
//
// It is safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	cfg      Config
	senders  map[notification.Channel]Sender
	limiters map[notification.Channel]*rate.Limiter
	log      logx.Logger
}

func NewRegistry(cfg Config, log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{
		cfg:      cfg,
		senders:  map[notification.Channel]Sender{},
		limiters: map[notification.Channel]*rate.Limiter{},
		log:      log,
	}
}

// Register installs (or replaces) the sender for a channel.
func (r *Registry) Register(ch notification.Channel, s Sender) {
	r.mu.Lock()
	r.senders[ch] = s
	if r.cfg.RatePerSec > 0 {
		r.limiters[ch] = rate.NewLimiter(rate.Limit(r.cfg.RatePerSec), r.cfg.RatePerSec)
	}
	r.mu.Unlock()
}

// Channels returns the channels that currently have a sender.
func (r *Registry) Channels() []notification.Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notification.Channel, 0, len(r.senders))
	for ch := range r.senders {
		out = append(out, ch)
	}
	return out
}

// Send attempts one delivery on the given channel.
//
// It never panics and never returns an error: every failure mode (missing
// sender, rate-limit wait aborted, sender panic) comes back as a failed
// Result, which the queue records as a regular delivery attempt.
func (r *Registry) Send(ctx context.Context, ch notification.Channel, tpl notification.Template) (res Result) {
	r.mu.Lock()
	s := r.senders[ch]
	lim := r.limiters[ch]
	timeout := r.cfg.SendTimeout
	r.mu.Unlock()

	res = Result{Channel: ch}

	if s == nil {
		res.ErrorMessage = fmt.Sprintf("no sender registered for channel %q", ch)
		return res
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if lim != nil {
		if err := lim.Wait(ctx); err != nil {
			res.ErrorMessage = fmt.Sprintf("rate limit wait: %v", err)
			return res
		}
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("sender panicked",
				logx.String("channel", string(ch)), logx.Any("panic", rec))
			res = Result{Channel: ch, Success: false, ErrorMessage: fmt.Sprintf("sender panic: %v", rec)}
		}
	}()

	out := s.Send(ctx, tpl)
	// Normalize: the registry owns the channel tag, senders sometimes forget it.
	out.Channel = ch
	return out
}
