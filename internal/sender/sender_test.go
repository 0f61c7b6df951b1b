package sender

import (
	"context"
	"strings"
	"testing"
	"time"

	"notifyd/internal/notification"
	logx "notifyd/pkg/logx"
)

func TestSendMissingSenderFails(t *testing.T) {
	t.Parallel()
	reg := NewRegistry(Config{}, logx.Nop())
	res := reg.Send(context.Background(), notification.ChannelPush, notification.Template{})
	if res.Success {
		t.Fatal("expected failure for unregistered channel")
	}
	if res.Channel != notification.ChannelPush {
		t.Fatalf("Channel = %s, want push", res.Channel)
	}
}

func TestSendRecoversPanic(t *testing.T) {
	t.Parallel()
	reg := NewRegistry(Config{}, logx.Nop())
	reg.Register(notification.ChannelEmail, Func(func(context.Context, notification.Template) Result {
		panic("boom")
	}))

	res := reg.Send(context.Background(), notification.ChannelEmail, notification.Template{})
	if res.Success {
		t.Fatal("expected failure from panicking sender")
	}
	if !strings.Contains(res.ErrorMessage, "boom") {
		t.Fatalf("ErrorMessage = %q, want the panic value", res.ErrorMessage)
	}
}

func TestSendNormalizesChannel(t *testing.T) {
	t.Parallel()
	reg := NewRegistry(Config{}, logx.Nop())
	reg.Register(notification.ChannelSMS, Func(func(context.Context, notification.Template) Result {
		// Sender forgets to tag the channel.
		return Result{Success: true}
	}))

	res := reg.Send(context.Background(), notification.ChannelSMS, notification.Template{})
	if !res.Success || res.Channel != notification.ChannelSMS {
		t.Fatalf("result = %+v, want tagged sms success", res)
	}
}

func TestSendTimeoutBoundsSlowSender(t *testing.T) {
	t.Parallel()
	reg := NewRegistry(Config{SendTimeout: 10 * time.Millisecond}, logx.Nop())
	reg.Register(notification.ChannelPush, Func(func(ctx context.Context, _ notification.Template) Result {
		select {
		case <-ctx.Done():
			return Result{ErrorMessage: ctx.Err().Error()}
		case <-time.After(5 * time.Second):
			return Result{Success: true}
		}
	}))

	start := time.Now()
	res := reg.Send(context.Background(), notification.ChannelPush, notification.Template{})
	if res.Success {
		t.Fatal("expected timeout failure")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("send took %v, timeout not applied", elapsed)
	}
}

func TestSimulatedSenders(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tpl := notification.Template{Subject: "weekly digest", Body: "hello"}

	t.Run("email without key fails", func(t *testing.T) {
		res := SimulatedEmail(SimulatedConfig{}).Send(ctx, tpl)
		if res.Success || res.ErrorMessage == "" {
			t.Fatalf("result = %+v, want failure with message", res)
		}
	})
	t.Run("email with key succeeds", func(t *testing.T) {
		res := SimulatedEmail(SimulatedConfig{EmailAPIKey: "sg-123"}).Send(ctx, tpl)
		if !res.Success {
			t.Fatalf("result = %+v, want success", res)
		}
	})
	t.Run("sms with token succeeds", func(t *testing.T) {
		res := SimulatedSMS(SimulatedConfig{SMSAuthToken: "tw-123"}).Send(ctx, tpl)
		if !res.Success {
			t.Fatalf("result = %+v, want success", res)
		}
	})
	t.Run("push requires subject", func(t *testing.T) {
		res := SimulatedPush(SimulatedConfig{}).Send(ctx, notification.Template{Body: "no subject"})
		if res.Success {
			t.Fatalf("result = %+v, want failure", res)
		}
		if res = SimulatedPush(SimulatedConfig{}).Send(ctx, tpl); !res.Success {
			t.Fatalf("result = %+v, want success", res)
		}
	})
}

func TestRegisterSimulatedCoversAllChannels(t *testing.T) {
	t.Parallel()
	reg := NewRegistry(Config{}, logx.Nop())
	RegisterSimulated(reg, SimulatedConfig{EmailAPIKey: "k", SMSAuthToken: "t"})
	if got := len(reg.Channels()); got != 3 {
		t.Fatalf("registered channels = %d, want 3", got)
	}
}
