package sender

import (
	"context"
	"fmt"
	"strings"
	"time"

	"notifyd/internal/notification"
)

// SimulatedConfig configures the built-in stand-in senders used by the daemon
// and by local development. A missing credential makes the matching sender
// report failures, which exercises the retry path end to end.
type SimulatedConfig struct {
	NetworkDelay   time.Duration
	EmailAPIKey    string
	SMSAuthToken   string
	PushDisabled   bool
	FailureMessage string
}

func (c SimulatedConfig) delay(ctx context.Context) {
	if c.NetworkDelay <= 0 {
		return
	}
	t := time.NewTimer(c.NetworkDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// SimulatedEmail reports failure until an API key is configured.
func SimulatedEmail(cfg SimulatedConfig) Sender {
	return Func(func(ctx context.Context, tpl notification.Template) Result {
		cfg.delay(ctx)
		if strings.TrimSpace(cfg.EmailAPIKey) == "" {
			return Result{
				Channel:      notification.ChannelEmail,
				ErrorMessage: fmt.Sprintf("email API key not configured for %q", tpl.Subject),
			}
		}
		return Result{Channel: notification.ChannelEmail, Success: true}
	})
}

// SimulatedSMS reports failure until an auth token is configured.
func SimulatedSMS(cfg SimulatedConfig) Sender {
	return Func(func(ctx context.Context, tpl notification.Template) Result {
		cfg.delay(ctx)
		if strings.TrimSpace(cfg.SMSAuthToken) == "" {
			return Result{
				Channel:      notification.ChannelSMS,
				ErrorMessage: fmt.Sprintf("SMS credentials not configured for %q", tpl.Subject),
			}
		}
		return Result{Channel: notification.ChannelSMS, Success: true}
	})
}

// SimulatedPush succeeds whenever the template carries a subject.
func SimulatedPush(cfg SimulatedConfig) Sender {
	return Func(func(ctx context.Context, tpl notification.Template) Result {
		cfg.delay(ctx)
		if cfg.PushDisabled {
			return Result{Channel: notification.ChannelPush, ErrorMessage: "push delivery disabled"}
		}
		if strings.TrimSpace(tpl.Subject) == "" {
			return Result{Channel: notification.ChannelPush, ErrorMessage: "missing subject for push notification"}
		}
		return Result{Channel: notification.ChannelPush, Success: true}
	})
}

// RegisterSimulated installs the three stand-in senders on a registry.
func RegisterSimulated(r *Registry, cfg SimulatedConfig) {
	r.Register(notification.ChannelPush, SimulatedPush(cfg))
	r.Register(notification.ChannelEmail, SimulatedEmail(cfg))
	r.Register(notification.ChannelSMS, SimulatedSMS(cfg))
}
