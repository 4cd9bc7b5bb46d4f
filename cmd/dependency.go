package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"runtime/pprof"
	"time"
	"workshop-enrollment/common/constant"
	commonJs "workshop-enrollment/common/jetstream"
	"workshop-enrollment/common/otel"
	"workshop-enrollment/outbound/cache"
	"workshop-enrollment/outbound/payment"
	"workshop-enrollment/outbound/repository"
	"workshop-enrollment/outbound/retry"
	"workshop-enrollment/usecase/capacity"
	"workshop-enrollment/usecase/cart"
	"workshop-enrollment/usecase/checkout"
	"workshop-enrollment/usecase/claim"
	"workshop-enrollment/usecase/waitlist"
	"workshop-enrollment/usecase/webhook"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func newCfg(name string) *viper.Viper {
	config := viper.New()

	config.SetConfigName(name)
	config.SetConfigType("yaml")
	config.AddConfigPath(".")

	config.SetDefault("server.port", 8080)
	config.SetDefault("server.timezone", "UTC")
	config.SetDefault("cart.ttl", constant.CartDefaultTTL)
	config.SetDefault("claim.token_ttl", constant.ClaimTokenDefaultTTL)
	config.SetDefault("claim.session_ttl", constant.ClaimSessionDefaultTTL)
	config.SetDefault("webhook.tolerance", constant.WebhookDefaultTolerance)
	config.SetDefault("webhook.dedup_window", constant.WebhookDedupDefaultWindow)
	config.SetDefault("webhook.lock_ttl", constant.WebhookLockDefaultTTL)
	config.SetDefault("retry.max_attempts", retry.DefaultMaxAttempts)
	config.SetDefault("retry.base_delay", retry.DefaultBaseDelay)
	config.SetDefault("retry.max_jitter", retry.DefaultMaxJitter)
	config.SetDefault("retry.attempt_timeout", retry.DefaultAttemptTimeout)
	config.SetDefault("cron.waitlist.sweep.enabled", false)

	err := config.ReadInConfig()
	if err != nil {
		log.Fatalln(err)
	}

	err = os.Setenv("TZ", config.GetString("server.timezone"))
	if err != nil {
		log.Fatalln(err)
	}

	return config
}

// startProfiling writes CPU and heap profiles in the dev environment. The returned
// func stops the CPU profile.
func startProfiling(cfg *viper.Viper, name string) func() {
	if cfg.GetString("env") != "dev" {
		return func() {}
	}

	cpu, err := os.Create(name + "-cpu.prof")
	if err != nil {
		log.Fatalf("could not create CPU profile: %v", err)
	}

	// dev runs several commands in one process; only the first one profiles.
	if err = pprof.StartCPUProfile(cpu); err != nil {
		slog.Warn("cpu profile already running", slog.String("command", name))
		cpu.Close()
		return func() {}
	}

	mem, err := os.Create(name + "-mem.prof")
	if err != nil {
		log.Fatalf("could not create memory profile: %v", err)
	}
	defer mem.Close()

	if err = pprof.WriteHeapProfile(mem); err != nil {
		log.Fatalf("could not write memory profile: %v", err)
	}

	return func() {
		pprof.StopCPUProfile()
		cpu.Close()
	}
}

func newTracer(ctx context.Context, cfg *viper.Viper) func() {
	shutdown, err := otel.InitTracerProvider(ctx, cfg.GetString("otel.endpoint"), cfg.GetString("otel.service_name"))
	if err != nil {
		log.Fatalln("unable to init tracer", err)
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := shutdown(ctx); err != nil {
			slog.Warn("failed to flush traces", slog.Any(constant.LogFieldErr, err))
		}
	}
}

func newDb(cfg *viper.Viper) *pgxpool.Pool {
	username := cfg.GetString("db.user")
	password := cfg.GetString("db.password")
	host := cfg.GetString("db.host")
	port := cfg.GetInt("db.port")
	database := cfg.GetString("db.name")
	maxConn := cfg.GetInt("db.pool.max")
	minConn := cfg.GetInt("db.pool.min")
	timezone := cfg.GetString("server.timezone")

	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?timezone=%s",
		username, password, host, port, database, timezone)

	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		log.Fatalln(err)
	}

	config.MaxConns = int32(maxConn)
	config.MinConns = int32(minConn)
	config.ConnConfig.Tracer = &otel.PgxCustomTracer{Database: database}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		log.Fatalln(err)
	}

	err = pool.Ping(context.Background())
	if err != nil {
		log.Fatalln(err)
	}

	return pool
}

func newRedis(cfg *viper.Viper) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.GetString("redis.addr"),
		Password: cfg.GetString("redis.password"),
		DB:       cfg.GetInt("redis.db"),
	})

	err := rdb.Ping(context.Background()).Err()
	if err != nil {
		log.Fatalln(err)
	}

	return rdb
}

func newNats(viper *viper.Viper) *nats.Conn {
	conn, err := nats.Connect(viper.GetString("nats.addr"))
	if err != nil {
		log.Fatalln(err)
	}

	return conn
}

func newJs(conn *nats.Conn) jetstream.JetStream {
	js, err := jetstream.New(conn)
	if err != nil {
		log.Fatalln(err)
	}

	return js
}

func createStreamWorkQueue(ctx context.Context, cfg *viper.Viper, js jetstream.JetStream) jetstream.Stream {
	st, err := commonJs.CreateQueueStream(ctx, js, cfg.GetInt64("nats.stream.max_bytes"))
	if err != nil {
		log.Fatalln("failed to create stream", err)
	}

	return st
}

func newRetry(cfg *viper.Viper) *retry.Client {
	return retry.New(retry.Config{
		MaxAttempts:    cfg.GetInt("retry.max_attempts"),
		BaseDelay:      cfg.GetDuration("retry.base_delay"),
		MaxJitter:      cfg.GetDuration("retry.max_jitter"),
		AttemptTimeout: cfg.GetDuration("retry.attempt_timeout"),
	})
}

// services is the object graph behind the HTTP server.
type services struct {
	queries  *repository.Queries
	carts    cart.Service
	checkout checkout.Service
	waitlist waitlist.Queue
	claims   claim.Redeemer
	engine   webhook.Engine
	refunder webhook.Refunder
	validate *validator.Validate
}

func newServices(cfg *viper.Viper, db *pgxpool.Pool, rdb *redis.Client, js jetstream.JetStream) services {
	validate := validator.New()
	queries := repository.New(db)
	printer := message.NewPrinter(language.English)

	location, err := time.LoadLocation(cfg.GetString("server.timezone"))
	if err != nil {
		log.Fatalln("invalid server.timezone", err)
	}

	gateway := payment.NewGateway(payment.Config{
		SecretKey:  cfg.GetString("stripe.secret_key"),
		SuccessURL: cfg.GetString("stripe.success_url"),
		CancelURL:  cfg.GetString("stripe.cancel_url"),
		BackendURL: cfg.GetString("stripe.backend_url"),
	}, newRetry(cfg))

	cartStore := cache.CartStore{Cache: rdb, TTL: cfg.GetDuration("cart.ttl")}
	checker := capacity.Checker{Counter: queries}

	tokens := claim.Tokens{Repo: queries, TTL: cfg.GetDuration("claim.token_ttl")}
	claims := claim.Redeemer{
		Tokens:     tokens,
		Bindings:   cache.ClaimBindings{Cache: rdb},
		Entries:    queries,
		Workshops:  queries,
		SessionTTL: cfg.GetDuration("claim.session_ttl"),
	}

	queue := waitlist.Queue{
		Repo:   queries,
		Tokens: tokens,
		Notifier: waitlist.EmailNotifier{
			Publisher: js,
			ClaimURL:  cfg.GetString("claim.url"),
			Location:  location,
		},
		Lock:      cache.Locker{Cache: rdb},
		Validator: validate,
	}

	carts := cart.Service{
		Store:     cartStore,
		Workshops: queries,
		Capacity:  checker,
		Claims:    claims,
		Printer:   printer,
	}

	engine := webhook.Engine{
		Verifier: webhook.Verifier{
			Secret:    cfg.GetString("stripe.webhook_secret"),
			Tolerance: cfg.GetDuration("webhook.tolerance"),
		},
		Dedup: cache.DedupStore{
			Cache:   rdb,
			Window:  cfg.GetInt64("webhook.dedup_window"),
			LockTTL: cfg.GetDuration("webhook.lock_ttl"),
		},
		Enrollments: queries,
		Workshops:   queries,
		Waitlist:    queue,
		Claims:      claims,
		Carts:       cartStore,
		Steps: []webhook.Step{
			webhook.PublishStep{Publisher: js},
			webhook.WaitlistStep{Workshops: queries, Waitlist: queue},
		},
	}

	return services{
		queries: queries,
		carts:   carts,
		checkout: checkout.Service{
			Builder:   checkout.Builder{Gateway: gateway, Enrollments: queries, Publisher: js},
			Workshops: queries,
			Capacity:  checker,
			Claims:    claims,
			Carts:     carts,
		},
		waitlist: queue,
		claims:   claims,
		engine:   engine,
		refunder: webhook.Refunder{Engine: engine, Gateway: gateway, Enrollments: queries},
		validate: validate,
	}
}
