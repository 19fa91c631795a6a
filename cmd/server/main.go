// server runs the opsgate HTTP API, the admin listener (/metrics), the gRPC health service
// and the refresh-record sweeper under one supervisor.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"opsgate/internal/admission"
	"opsgate/internal/audit"
	auditrepo "opsgate/internal/audit/repository"
	"opsgate/internal/config"
	"opsgate/internal/credential"
	"opsgate/internal/db"
	"opsgate/internal/db/migrate"
	healthhandler "opsgate/internal/health/handler"
	oprepo "opsgate/internal/operator/repository"
	"opsgate/internal/platform/logging"
	"opsgate/internal/platform/metrics"
	"opsgate/internal/policy/engine"
	"opsgate/internal/refreshtoken"
	rtrepo "opsgate/internal/refreshtoken/repository"
	"opsgate/internal/security"
	"opsgate/internal/server"
	sessionhandler "opsgate/internal/session/handler"
	"opsgate/internal/session/service"
	"opsgate/internal/telemetry"
	telemetryotel "opsgate/internal/telemetry/otel"
	"opsgate/internal/telemetry/producer"
)

const (
	serviceName         = "opsgate"
	healthProbeInterval = 15 * time.Second
	shutdownDrain       = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

type stores struct {
	operators oprepo.Repository
	records   rtrepo.Repository
	events    auditrepo.Repository
	tx        db.Transactor
	pinger    healthhandler.Pinger
	close     func() error
}

var newProviders = telemetryotel.NewProviders

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	providers, err := newProviders(ctx, cfg.OTLPEndpoint, serviceName, cfg.OTLPInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownDrain)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()
	m := metrics.New()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = st.close() }()

	tokens, err := newTokenIssuer(cfg, logger)
	if err != nil {
		return err
	}

	creds := credential.NewStore(st.operators, security.NewHasher(cfg.BcryptCost), security.DefaultSecretPolicy())
	if cfg.DatabaseURL == "" {
		provisionDevOperator(ctx, cfg, creds, logger)
	}

	ledger := refreshtoken.NewLedger(st.records, tokens, logger, refreshtoken.WithRotationObserver(m.ObserveRotation))

	var mirrors []telemetry.EventEmitter
	if cfg.OTLPEndpoint != "" {
		mirrors = append(mirrors, telemetry.Observed(telemetryotel.NewEventEmitter(providers.LoggerProvider), m.IncAuditMirrorError))
	}
	kafkaProducer := producer.NewKafkaProducer(cfg.AuditKafkaBrokersList(), cfg.AuditKafkaTopic)
	defer func() {
		if err := kafkaProducer.Close(); err != nil {
			logger.Warn("kafka producer close", "error", err)
		}
	}()
	if kafkaProducer != nil {
		mirrors = append(mirrors, telemetry.Observed(kafkaProducer, m.IncAuditMirrorError))
		logger.Info("audit events mirrored to kafka", "topic", cfg.AuditKafkaTopic)
	}
	recorder := audit.NewRecorder(st.events, logger, audit.WithMirror(mirrors...))

	svc := service.NewService(creds, ledger, tokens, recorder, st.tx,
		service.Config{ReuseRevokesAll: cfg.RefreshReuseRevokesAll}, logger)

	policy, err := engine.NewOPAEvaluator(ctx, "")
	if err != nil {
		return fmt.Errorf("authorization policy: %w", err)
	}

	admissionStore, pruner, err := newAdmissionStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	ctrl := admission.NewController(admissionStore, admissionPolicies(cfg))

	trusted, err := cfg.TrustedProxyPrefixes()
	if err != nil {
		return err
	}

	checker := healthhandler.NewChecker(st.pinger, policy)
	router := server.NewRouter(server.RouterDeps{
		Sessions:       sessionhandler.NewHandler(svc, logger),
		Health:         healthhandler.NewHTTP(checker, logger),
		Admission:      ctrl,
		Tokens:         tokens,
		Policy:         policy,
		TrustedProxies: trusted,
		Metrics:        m,
		Logger:         logger,
	})
	reporter := healthhandler.NewReporter(checker, healthProbeInterval, logger)
	sweeper := server.NewSweeper(ledger, pruner, cfg.SweepEvery(), m, logger)

	sup := server.NewSupervisor(logger,
		server.HTTPTask("api", server.NewHTTPServer(cfg.HTTPAddr, router), shutdownDrain, logger),
		server.HTTPTask("admin", server.NewHTTPServer(cfg.AdminAddr, server.NewAdminRouter(m)), shutdownDrain, logger),
		server.GRPCTask("grpc-health", cfg.GRPCHealthAddr, server.NewHealthGRPCServer(reporter), logger),
		server.Task{Name: "health-reporter", Run: reporter.Run, Restart: true},
		server.Task{Name: "sweeper", Run: sweeper.Run, Restart: true},
	)
	runErr := sup.Run(ctx)

	// Deferred closes run after this: kafka writer, stores, then the OTel providers.
	if len(mirrors) > 0 {
		logger.Info("draining audit mirrors", "wait", telemetry.ShutdownDrainDuration)
		time.Sleep(telemetry.ShutdownDrainDuration)
	}
	return runErr
}

func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stores, error) {
	if cfg.DatabaseURL == "" {
		if cfg.IsProduction() {
			return nil, errors.New("in-memory stores are not allowed in production")
		}
		logger.Warn("DATABASE_URL not set, using in-memory stores; all state is lost on restart")
		return &stores{
			operators: oprepo.NewMemoryRepository(),
			records:   rtrepo.NewMemoryRepository(),
			events:    auditrepo.NewMemoryRepository(),
			tx:        &db.MemoryTransactor{},
			close:     func() error { return nil },
		}, nil
	}

	if cfg.AutoMigrate {
		if err := migrate.Run(cfg.DatabaseURL, "up"); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info("migrations applied")
	}
	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}
	timeout := cfg.QueryTimeout()
	return &stores{
		operators: oprepo.NewPostgresRepository(conn, timeout),
		records:   rtrepo.NewPostgresRepository(conn, timeout),
		events:    auditrepo.NewPostgresRepository(conn, timeout),
		tx:        db.NewSQLTransactor(conn),
		pinger:    conn,
		close:     conn.Close,
	}, nil
}

func newTokenIssuer(cfg *config.Config, logger *slog.Logger) (*security.TokenIssuer, error) {
	var access, refresh security.KeyPair
	var err error
	if cfg.HasSigningKeys() {
		if access, err = security.LoadKeyPair(cfg.JWTAccessPrivateKey, cfg.JWTAccessPublicKey); err != nil {
			return nil, fmt.Errorf("access key: %w", err)
		}
		if refresh, err = security.LoadKeyPair(cfg.JWTRefreshPrivateKey, cfg.JWTRefreshPublicKey); err != nil {
			return nil, fmt.Errorf("refresh key: %w", err)
		}
	} else {
		if cfg.IsProduction() {
			return nil, errors.New("JWT signing keys are required in production")
		}
		logger.Warn("JWT keys not configured, generating ephemeral keys; tokens will not survive a restart")
		if access, err = security.GenerateTestKeyPair(); err != nil {
			return nil, err
		}
		if refresh, err = security.GenerateTestKeyPair(); err != nil {
			return nil, err
		}
	}
	return security.NewTokenIssuer(access, refresh, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL(), cfg.RefreshTTL())
}

func provisionDevOperator(ctx context.Context, cfg *config.Config, creds *credential.Store, logger *slog.Logger) {
	if cfg.IsProduction() || cfg.DevOperatorEmail == "" || cfg.DevOperatorSecret == "" {
		return
	}
	op, err := creds.Provision(ctx, cfg.DevOperatorEmail, "Development operator", cfg.DevOperatorSecret)
	if err != nil {
		logger.Warn("dev operator not provisioned", "error", err)
		return
	}
	logger.Info("dev operator provisioned", "operator_id", op.ID, "email", op.Email)
}

func newAdmissionStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (admission.Store, server.CounterPruner, error) {
	if cfg.RateLimitRedisURL == "" {
		mem := admission.NewMemoryStore()
		return mem, mem, nil
	}
	opts, err := redis.ParseURL(cfg.RateLimitRedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("RATE_LIMIT_REDIS_URL: %w", err)
	}
	store := admission.NewRedisStore(redis.NewClient(opts))
	if err := store.Ping(ctx); err != nil {
		logger.Warn("redis unreachable at startup, admission will fail open until it recovers", "error", err)
	}
	return store, nil, nil
}

func admissionPolicies(cfg *config.Config) map[admission.Class]admission.Policy {
	general, auth, privileged := cfg.GeneralBudget(), cfg.AuthBudget(), cfg.PrivilegedBudget()
	return map[admission.Class]admission.Policy{
		admission.ClassGeneral: {Limit: general.Limit, Window: general.Window},
		admission.ClassAuth: {
			Limit:      auth.Limit,
			Window:     auth.Window,
			DelayAfter: cfg.RateAuthDelayAfter,
			DelayStep:  cfg.AuthDelayStep(),
			DelayMax:   cfg.AuthDelayMax(),
		},
		admission.ClassPrivileged: {Limit: privileged.Limit, Window: privileged.Window},
	}
}
