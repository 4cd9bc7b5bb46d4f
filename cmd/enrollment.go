package cmd

import (
	"context"
	"workshop-enrollment/common/constant"
	"workshop-enrollment/inbound/event"
	"workshop-enrollment/outbound/repository"

	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func runQueueEnrollmentCmd(ctx context.Context) {
	cfg := newCfg("env")

	stopProfiling := startProfiling(cfg, "enrollment")
	defer stopProfiling()

	shutdownTracer := newTracer(ctx, cfg)
	defer shutdownTracer()

	db := newDb(cfg)
	defer db.Close()

	natsConn := newNats(cfg)
	defer natsConn.Close()

	js := newJs(natsConn)
	st := createStreamWorkQueue(ctx, cfg, js)

	enrollmentEvent := event.EnrollmentEvent{
		Workshops:       repository.New(db),
		Publisher:       js,
		AmountFormatter: message.NewPrinter(language.English),
		Timeout:         cfg.GetDuration("queue.enrollment.timeout"),
	}

	consume(ctx, cfg, st, "enrollment", constant.EnrollmentWildcard, func(ctx context.Context, msg jetstream.Msg) error {
		return enrollmentEvent.Handler(ctx, msg.Subject(), msg.Data())
	})
}
