package notify_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/threadring/ringhub/internal/notify"
)

type recordingSender struct {
	to      string
	subject string
	body    string
	err     error
}

func (r *recordingSender) Send(_ context.Context, to, subject, body string) error {
	r.to, r.subject, r.body = to, subject, body
	return r.err
}

func TestActorFlagged(t *testing.T) {
	sender := &recordingSender{}
	n := notify.NewNotifier(sender, "ops@hub.example", "Ring Hub", zap.NewNop())

	n.ActorFlagged(context.Background(), "did:web:spammer.example", 5, "fork_ring")

	if sender.to != "ops@hub.example" {
		t.Errorf("to = %q, want ops@hub.example", sender.to)
	}
	if !strings.Contains(sender.subject, "did:web:spammer.example") {
		t.Errorf("subject %q does not name the actor", sender.subject)
	}
	if !strings.Contains(sender.body, "5 rate-limit violations") {
		t.Errorf("body %q does not include the violation count", sender.body)
	}
}

func TestDeliveryFailureIsSwallowed(t *testing.T) {
	sender := &recordingSender{err: errors.New("relay down")}
	n := notify.NewNotifier(sender, "ops@hub.example", "Ring Hub", zap.NewNop())

	// Must not panic or propagate.
	n.ActorFlagged(context.Background(), "did:web:spammer.example", 5, "fork_ring")
	n.CooldownEscalated(context.Background(), "did:web:spammer.example", 4, 2)
}

func TestNoOperatorConfigured(t *testing.T) {
	sender := &recordingSender{}
	n := notify.NewNotifier(sender, "", "Ring Hub", zap.NewNop())

	n.ActorFlagged(context.Background(), "did:web:spammer.example", 5, "fork_ring")
	if sender.to != "" {
		t.Errorf("sender invoked with to=%q despite no operator address", sender.to)
	}
}

func TestNoopSender(t *testing.T) {
	if err := notify.NewNoopSender(zap.NewNop()).Send(context.Background(), "a@b", "s", "b"); err != nil {
		t.Fatalf("noop Send: %v", err)
	}
}
