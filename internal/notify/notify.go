// Package notify delivers operator notifications for moderation events.
package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Sender delivers a notification message.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Notifier formats and sends operator alerts. Delivery failures are logged
// and never propagated; notifications ride on moderation paths that must not
// fail because of them.
type Notifier struct {
	sender       Sender
	operatorAddr string
	hubName      string
	logger       *zap.Logger
}

// NewNotifier creates a Notifier. operatorAddr is where alerts go.
func NewNotifier(sender Sender, operatorAddr, hubName string, logger *zap.Logger) *Notifier {
	return &Notifier{sender: sender, operatorAddr: operatorAddr, hubName: hubName, logger: logger}
}

// ActorFlagged alerts the operator that an actor crossed the violation
// threshold and was flagged for review.
func (n *Notifier) ActorFlagged(ctx context.Context, actorDID string, violations int, action string) {
	subject := fmt.Sprintf("[%s] actor flagged for review: %s", n.hubName, actorDID)
	body := fmt.Sprintf(
		"Actor %s has accumulated %d rate-limit violations (last action: %s) and has been flagged for review.\n\n"+
			"Review the actor's recent activity and clear or extend the flag.\n",
		actorDID, violations, action,
	)
	n.deliver(ctx, subject, body)
}

// CooldownEscalated alerts the operator that an actor entered an escalated
// cooldown.
func (n *Notifier) CooldownEscalated(ctx context.Context, actorDID string, violations int, hours float64) {
	subject := fmt.Sprintf("[%s] cooldown escalated: %s", n.hubName, actorDID)
	body := fmt.Sprintf(
		"Actor %s is in an escalated cooldown of %.0f hours after %d violations.\n",
		actorDID, hours, violations,
	)
	n.deliver(ctx, subject, body)
}

func (n *Notifier) deliver(ctx context.Context, subject, body string) {
	if n.sender == nil || n.operatorAddr == "" {
		return
	}
	if err := n.sender.Send(ctx, n.operatorAddr, subject, body); err != nil {
		n.logger.Warn("notify: delivery failed", zap.String("subject", subject), zap.Error(err))
	}
}
