package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// sendRequest is the message posted to the mailer actor.
type sendRequest struct {
	Kind      Kind
	Snapshot  OrderSnapshot
	Recipient string
}

// mailerActor drains dispatch requests one at a time and hands them to the
// underlying Sender. A failed send is logged and dropped; retry policy, if
// any, belongs to the Sender.
type mailerActor struct {
	sender  Sender
	timeout time.Duration
	logger  *zap.Logger
}

func (a *mailerActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *sendRequest:
		sendCtx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()

		if err := a.sender.Send(sendCtx, msg.Kind, msg.Snapshot, msg.Recipient); err != nil {
			a.logger.Warn("notification send failed",
				zap.String("kind", string(msg.Kind)),
				zap.String("order_id", msg.Snapshot.OrderID),
				zap.String("recipient", msg.Recipient),
				zap.Error(err))
		}

	case *actor.Started:
		a.logger.Info("mailer actor started")

	case *actor.Stopped:
		a.logger.Info("mailer actor stopped")
	}
}

// ActorDispatcher queues dispatch requests onto a mailer actor so the
// status transition that triggered them never waits on delivery.
type ActorDispatcher struct {
	system *actor.ActorSystem
	pid    *actor.PID
}

// NewActorDispatcher spawns the mailer actor on the given system.
func NewActorDispatcher(system *actor.ActorSystem, sender Sender, logger *zap.Logger) (*ActorDispatcher, error) {
	props := actor.PropsFromProducer(func() actor.Actor {
		return &mailerActor{
			sender:  sender,
			timeout: 15 * time.Second,
			logger:  logger.Named("mailer-actor"),
		}
	})
	pid, err := system.Root.SpawnNamed(props, "mailer-actor")
	if err != nil {
		return nil, fmt.Errorf("failed to spawn mailer actor: %w", err)
	}
	return &ActorDispatcher{system: system, pid: pid}, nil
}

// Dispatch enqueues the request and returns immediately.
func (d *ActorDispatcher) Dispatch(_ context.Context, kind Kind, snap OrderSnapshot, recipient string) error {
	d.system.Root.Send(d.pid, &sendRequest{Kind: kind, Snapshot: snap, Recipient: recipient})
	return nil
}

// LogSender is the default Sender used when no mail transport is wired: it
// records the notification and succeeds.
type LogSender struct {
	Logger *zap.Logger
}

func (s *LogSender) Send(_ context.Context, kind Kind, snap OrderSnapshot, recipient string) error {
	s.Logger.Info("notification",
		zap.String("kind", string(kind)),
		zap.String("order_id", snap.OrderID),
		zap.String("status", string(snap.Status)),
		zap.String("recipient", recipient),
		zap.Int("item_count", len(snap.Items)))
	return nil
}
