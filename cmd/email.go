package cmd

import (
	"context"
	"workshop-enrollment/common/constant"
	"workshop-enrollment/inbound/event"
	emailOutbound "workshop-enrollment/outbound/email"

	"github.com/nats-io/nats.go/jetstream"
)

func runQueueEmailCmd(ctx context.Context) {
	cfg := newCfg("env")

	stopProfiling := startProfiling(cfg, "email")
	defer stopProfiling()

	natsConn := newNats(cfg)
	defer natsConn.Close()

	js := newJs(natsConn)
	st := createStreamWorkQueue(ctx, cfg, js)

	emailEvent := event.EmailEvent{
		Sender:  emailOutbound.NewMailer(cfg),
		Timeout: cfg.GetDuration("queue.email.timeout"),
	}

	consume(ctx, cfg, st, "email", constant.EmailWildcard, func(ctx context.Context, msg jetstream.Msg) error {
		if msg.Subject() != constant.SubjectSendEmail {
			return nil
		}
		return emailEvent.SendEmailHandler(ctx, msg.Data())
	})
}
