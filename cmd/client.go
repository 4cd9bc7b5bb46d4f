package cmd

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"
	"workshop-enrollment/common/constant"
)

// runSweepClientCmd triggers the admin waitlist sweep on an interval, for deployments
// that keep the in-process sweep cron disabled.
func runSweepClientCmd(ctx context.Context) {
	cfg := newCfg("env")

	sweepTicker := time.NewTicker(cfg.GetDuration("client.sweep_interval"))
	defer sweepTicker.Stop()

	sweepUrl := cfg.GetString("client.sweep_url")
	adminKey := cfg.GetString("admin.api_key")
	retryClient := newRetry(cfg)

	slog.InfoContext(ctx, "sweep client started", slog.String("sweep_url", sweepUrl))

	for {
		select {
		case <-sweepTicker.C:
			resp, err := retryClient.DoRequest(ctx, func(ctx context.Context) (*http.Request, error) {
				req, err := http.NewRequestWithContext(ctx, http.MethodPost, sweepUrl, nil)
				if err != nil {
					return nil, err
				}
				req.Header.Set(constant.AdminKeyHeader, adminKey)
				return req, nil
			})
			if err != nil {
				slog.ErrorContext(ctx, "sweep request failed", slog.String("url", sweepUrl), slog.Any(constant.LogFieldErr, err))
				continue
			}

			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
			resp.Body.Close()
			slog.InfoContext(ctx, "sweep triggered", slog.Int("status", resp.StatusCode), slog.String(constant.LogFieldResponse, string(body)))

		case <-ctx.Done():
			slog.InfoContext(ctx, "sweep client stopped")
			return
		}
	}
}
