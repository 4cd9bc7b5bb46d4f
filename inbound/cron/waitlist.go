package cron

import (
	"context"
	"log/slog"
	"time"
	"workshop-enrollment/common"
	"workshop-enrollment/common/constant"

	"github.com/spf13/viper"
)

type ClaimExpirer interface {
	ExpireLapsedClaims(ctx context.Context) (int, error)
}

// WaitlistCron expires lapsed claims and offers their seats to the next person in line.
// Claims are also expired lazily on validation, so the sweep only matters for seats
// nobody asks about. It stays off unless cron.waitlist.sweep.enabled is set.
type WaitlistCron struct {
	Cfg      *viper.Viper
	Waitlist ClaimExpirer
}

func (in WaitlistCron) Enabled() bool {
	return in.Cfg.GetBool("cron.waitlist.sweep.enabled")
}

func (in WaitlistCron) Start(ctx context.Context) {
	if !in.Enabled() {
		slog.Info("waitlist cron disabled")
		return
	}

	sweepTicker := time.NewTicker(in.Cfg.GetDuration("cron.waitlist.sweep.interval"))
	defer sweepTicker.Stop()

	slog.Info("waitlist cron started")

	for {
		select {
		case <-sweepTicker.C:
			in.sweep(ctx)
		case <-ctx.Done():
			slog.Info("waitlist cron stopped")
			return
		}
	}
}

func (in WaitlistCron) sweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, in.Cfg.GetDuration("cron.waitlist.sweep.timeout"))
	defer cancel()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)

	notified, err := in.Waitlist.ExpireLapsedClaims(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "waitlist sweep finished with errors", traceIdAttr,
			slog.Int("notified", notified), slog.Any(constant.LogFieldErr, err))
		return
	}

	if notified > 0 {
		slog.InfoContext(ctx, "lapsed claims reoffered", traceIdAttr, slog.Int("notified", notified))
	}
}
