// server runs the session-trust HTTP API and the gRPC health endpoint.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"session-trust-engine/internal/challenge"
	"session-trust-engine/internal/config"
	"session-trust-engine/internal/devotp"
	"session-trust-engine/internal/engine"
	"session-trust-engine/internal/geo"
	healthhandler "session-trust-engine/internal/health/handler"
	"session-trust-engine/internal/login"
	"session-trust-engine/internal/metrics"
	"session-trust-engine/internal/notify"
	"session-trust-engine/internal/risk"
	"session-trust-engine/internal/security"
	"session-trust-engine/internal/server"
	"session-trust-engine/internal/server/middleware"
	"session-trust-engine/internal/telemetry"
	otelsetup "session-trust-engine/internal/telemetry/otel"
	"session-trust-engine/internal/telemetry/producer"
)

const (
	serviceName         = "session-trust-engine"
	healthWatchInterval = 10 * time.Second
	shutdownTimeout     = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	providers, err := otelsetup.NewProviders(ctx, otelsetup.Options{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: serviceName,
		Environment: cfg.Env,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		return err
	}
	providers.SetGlobal()

	events := telemetry.Multi{otelsetup.NewEventEmitter(providers.LoggerProvider)}
	kafkaProducer := producer.NewKafkaProducer(cfg.TelemetryKafkaBrokersList(), cfg.TelemetryKafkaTopic, logger)
	if kafkaProducer != nil {
		events = append(events, kafkaProducer)
		logger.Info("telemetry: kafka producer enabled", "topic", cfg.TelemetryKafkaTopic)
	}

	backend, err := engine.OpenBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Warn("storage close", "error", err)
		}
	}()
	var pinger healthhandler.Pinger
	if backend.Ping != nil {
		pinger = healthhandler.PingFunc(backend.Ping)
	} else {
		logger.Warn("memory backend: state is per process and lost on restart")
	}

	policy, err := risk.LoadPolicyFile(cfg.RiskPolicyFile)
	if err != nil {
		return err
	}
	classifier, err := risk.NewOPAClassifier(ctx, policy, logger)
	if err != nil {
		return err
	}

	rec := metrics.New()
	opts := engine.Options{
		MaxSessions:  cfg.MaxSessions,
		SessionTTL:   cfg.SessionTTL(),
		ChallengeTTL: cfg.ChallengeTTL(),
		MaxAttempts:  cfg.ChallengeMaxAttempts,
		OTPDigits:    cfg.OTPDigits,
		Classifier:   classifier,
		Notifier:     buildNotifier(cfg, logger),
		Events:       events,
		Metrics:      rec,
		IPExtractor:  middleware.ClientIPFromContext,
	}
	var devStore devotp.Store
	if cfg.OTPReturnToClient {
		devStore = devotp.NewMemoryStore()
		opts.DevOTP = devStore
		logger.Warn("dev OTP mode enabled: codes are readable at /v1/dev/otp/{challengeID}")
	}
	deps := server.Deps{
		CountryHeader: cfg.GeoCountryHeader,
		Geo:           geo.HeaderResolver{Next: geo.NewStaticResolver(geo.ParseTable(cfg.GeoStaticTable))},
		Metrics:       rec,
		Events:        events,
		AdminAPIKey:   cfg.AdminAPIKey,
		ServiceAPIKey: cfg.ServiceAPIKey,
		DevOTP:        devStore,
		Logger:        logger,
	}
	if cfg.TokensEnabled() {
		tokens, err := loadTokens(cfg)
		if err != nil {
			return err
		}
		opts.Tokens = tokens
		deps.Tokens = tokens
	} else {
		logger.Warn("JWT keys not configured: approved logins carry no session token")
	}
	if cfg.AdminAPIKey == "" {
		logger.Warn("ADMIN_API_KEY not set: admin routes reject every request")
	}
	if cfg.ServiceAPIKey == "" {
		logger.Warn("SERVICE_API_KEY not set: login and session service routes reject every request")
	}

	e := engine.New(backend.Repos, opts, logger)
	checker := healthhandler.NewChecker(pinger, classifier)
	deps.Engine = e
	deps.Health = checker

	if d := cfg.ChallengeReaperInterval(); d > 0 {
		go e.Challenges.RunReaper(ctx, d)
		go reapPending(ctx, e.Validator, d, logger)
	}

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 2)
	go func() {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr, "backend", cfg.StoreBackend)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var grpcSrv *grpc.Server
	if cfg.GRPCHealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCHealthAddr)
		if err != nil {
			return err
		}
		hs := health.NewServer()
		go checker.Watch(ctx, hs, healthWatchInterval)
		grpcSrv = server.NewGRPCServer(hs)
		go func() {
			logger.Info("gRPC health server listening", "addr", cfg.GRPCHealthAddr)
			if err := grpcSrv.Serve(lis); err != nil {
				errCh <- err
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down...")
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown", "error", err)
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), telemetry.ShutdownDrainDuration)
	if !telemetry.Drain(drainCtx) {
		logger.Warn("telemetry: emits still in flight at shutdown")
	}
	cancelDrain()
	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			logger.Warn("kafka producer close", "error", err)
		}
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		logger.Warn("telemetry shutdown", "error", err)
	}
	logger.Info("server stopped")
	return runErr
}

func loadTokens(cfg *config.Config) (*security.TokenProvider, error) {
	priv, pub, err := security.LoadKeyPair(cfg.JWTPrivateKey, cfg.JWTPublicKey)
	if err != nil {
		return nil, err
	}
	return security.NewTokenProvider(priv, pub, cfg.JWTIssuer, cfg.JWTAudience), nil
}

// buildNotifier delivers codes by email and SMS when configured. The log channel always runs so
// operators can see that a code went out.
func buildNotifier(cfg *config.Config, logger *slog.Logger) challenge.Notifier {
	channels := []notify.Channel{notify.LogChannel{Logger: logger, ShowCode: cfg.OTPReturnToClient}}
	if cfg.EmailEnabled() {
		email, err := notify.NewEmailChannel(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			TLS:      cfg.SMTPTLS,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
		if err != nil {
			logger.Warn("email channel disabled", "error", err)
		} else {
			channels = append(channels, email)
		}
	}
	if cfg.SMSEnabled() {
		channels = append(channels, notify.NewSMSLocalChannel(cfg.SMSLocalAPIKey, cfg.SMSLocalBaseURL, cfg.SMSLocalSender))
	}
	return notify.NewNotifier(notify.UserIDResolver{}, logger, channels...)
}

func reapPending(ctx context.Context, v *login.Validator, interval time.Duration, logger *slog.Logger) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := v.PurgeExpired(ctx)
			if err != nil {
				logger.Warn("pending login reaper failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("pending login reaper purged", "count", n)
			}
		}
	}
}
