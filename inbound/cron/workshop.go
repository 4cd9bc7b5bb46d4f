package cron

import (
	"context"
	"log/slog"
	"time"
	"workshop-enrollment/common"
	"workshop-enrollment/common/constant"
	"workshop-enrollment/common/vars"
	"workshop-enrollment/outbound/repository"

	"github.com/spf13/viper"
)

// WorkshopCron keeps the in-memory availability snapshot served by GET /api/workshops.
type WorkshopCron struct {
	Cfg     *viper.Viper
	Querier *repository.Queries
}

func (in WorkshopCron) Start(ctx context.Context) {
	refreshTicker := time.NewTicker(in.Cfg.GetDuration("cron.workshop.refresh.interval"))
	defer refreshTicker.Stop()

	in.refresh(ctx)

	slog.Info("workshop cron started")

	for {
		select {
		case <-refreshTicker.C:
			in.refresh(ctx)
		case <-ctx.Done():
			slog.Info("workshop cron stopped")
			return
		}
	}
}

func (in WorkshopCron) refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, in.Cfg.GetDuration("cron.workshop.refresh.timeout"))
	defer cancel()

	traceIdAttr := common.ExtractTraceIDFromCtx(ctx)

	slog.DebugContext(ctx, "refreshing workshop availability", traceIdAttr)

	workshops, err := in.Querier.ListWorkshopAvailability(ctx)
	if err != nil {
		// Keep serving the previous snapshot.
		slog.ErrorContext(ctx, "failed to list workshop availability", traceIdAttr, slog.Any(constant.LogFieldErr, err))
		return
	}

	vars.SetWorkshops(workshops)

	slog.DebugContext(ctx, "workshop availability refreshed", traceIdAttr, slog.Int("count", len(workshops)))
}
