package cmd

import (
	"context"
	"log"
	"log/slog"
	"time"
	"workshop-enrollment/common/constant"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/spf13/viper"
)

type messageHandler func(ctx context.Context, msg jetstream.Msg) error

// consume drains a durable work-queue consumer until ctx is cancelled. Handler errors
// are redelivered after a delay, up to queue.<name>.max_deliver times.
func consume(ctx context.Context, cfg *viper.Viper, st jetstream.Stream, name, filter string, handle messageHandler) {
	cons, err := st.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       "consumer:" + name,
		FilterSubject: filter,
		MaxDeliver:    cfg.GetInt("queue." + name + ".max_deliver"),
		AckWait:       cfg.GetDuration("queue." + name + ".ack_wait"),
	})
	if err != nil {
		log.Fatalln("failed to create consumer", err)
	}

	iter, err := cons.Messages()
	if err != nil {
		log.Fatalln("failed to open consumer", err)
	}

	nakDelay := cfg.GetDuration("queue." + name + ".nak_delay")
	if nakDelay <= 0 {
		nakDelay = 1 * time.Second
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
				msg, err := iter.Next()
				if err != nil && err != jetstream.ErrMsgIteratorClosed {
					slog.ErrorContext(ctx, "Error fetching message", slog.Any(constant.LogFieldErr, err))
					continue
				}

				if msg == nil {
					continue
				}

				if err := handle(ctx, msg); err != nil {
					msg.NakWithDelay(nakDelay)
					continue
				}

				if err := msg.Ack(); err != nil {
					slog.ErrorContext(ctx, "Error acknowledging message",
						slog.Any(constant.LogFieldErr, err),
						slog.String("subject", msg.Subject()),
					)
					continue
				}
			}
		}
	}()

	slog.InfoContext(ctx, name+" queue consumer started")

	<-ctx.Done()

	iter.Stop()

	slog.InfoContext(ctx, name+" queue consumer stopped")
}
