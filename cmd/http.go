package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"
	inboundCron "workshop-enrollment/inbound/cron"
	inboundHttp "workshop-enrollment/inbound/http"
)

func runHttpServerCmd(ctx context.Context) {
	cfg := newCfg("env")

	stopProfiling := startProfiling(cfg, "http")
	defer stopProfiling()

	shutdownTracer := newTracer(ctx, cfg)
	defer shutdownTracer()

	db := newDb(cfg)
	defer db.Close()

	cacheClient := newRedis(cfg)
	defer cacheClient.Close()

	natsConn := newNats(cfg)
	defer natsConn.Close()

	js := newJs(natsConn)
	createStreamWorkQueue(ctx, cfg, js)

	svc := newServices(cfg, db, cacheClient, js)

	mux := http.NewServeMux()

	inboundHttp.RegisterWorkshopHttp(mux, svc.waitlist, svc.validate)
	inboundHttp.RegisterCartHttp(mux, svc.carts, svc.validate)
	inboundHttp.RegisterCheckoutHttp(mux, svc.checkout, svc.validate)
	inboundHttp.RegisterClaimHttp(mux, svc.claims)
	inboundHttp.RegisterWebhookHttp(mux, svc.engine)
	inboundHttp.RegisterAdminHttp(mux, cfg.GetString("admin.api_key"), svc.refunder, svc.waitlist)

	timeoutMiddleware := inboundHttp.TimeoutMiddleware(20 * time.Second)
	sessionMiddleware := inboundHttp.SessionMiddleware(cfg.GetDuration("cart.ttl"), cfg.GetString("env") != "dev")

	workshopCron := inboundCron.WorkshopCron{
		Cfg:     cfg,
		Querier: svc.queries,
	}

	waitlistCron := inboundCron.WaitlistCron{
		Cfg:      cfg,
		Waitlist: svc.waitlist,
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.GetInt("server.port")),
		Handler:           timeoutMiddleware(inboundHttp.CorsMiddleware(sessionMiddleware(mux))),
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalln("unable to start server", err)
		}
	}()

	slog.Info("http server started", slog.Int("port", cfg.GetInt("server.port")))

	go workshopCron.Start(ctx)
	go waitlistCron.Start(ctx)

	<-ctx.Done()

	ctxShutDown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShutDown); err != nil {
		log.Fatalln("unable to shutdown server", err)
	}

	slog.Info("http server stopped")
}
