// Command server starts the LLM Response Evaluator HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/llm-response-evaluator/internal/adapter/ai"
	"github.com/fairyhunter13/llm-response-evaluator/internal/adapter/ai/claude"
	"github.com/fairyhunter13/llm-response-evaluator/internal/adapter/ai/real"
	"github.com/fairyhunter13/llm-response-evaluator/internal/adapter/cache/redisstore"
	httpserver "github.com/fairyhunter13/llm-response-evaluator/internal/adapter/httpserver"
	"github.com/fairyhunter13/llm-response-evaluator/internal/adapter/notify/smtp"
	"github.com/fairyhunter13/llm-response-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/llm-response-evaluator/internal/adapter/report/pdf"
	"github.com/fairyhunter13/llm-response-evaluator/internal/adapter/repo/mongodb"
	"github.com/fairyhunter13/llm-response-evaluator/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/llm-response-evaluator/internal/adapter/textextractor/local"
	tikaext "github.com/fairyhunter13/llm-response-evaluator/internal/adapter/textextractor/tika"
	"github.com/fairyhunter13/llm-response-evaluator/internal/app"
	"github.com/fairyhunter13/llm-response-evaluator/internal/config"
	"github.com/fairyhunter13/llm-response-evaluator/internal/domain"
	"github.com/fairyhunter13/llm-response-evaluator/internal/service/identity"
	"github.com/fairyhunter13/llm-response-evaluator/internal/service/ratelimiter"
	"github.com/fairyhunter13/llm-response-evaluator/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	// Register all Prometheus metrics once per process.
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Postgres: run history and the budget mirror.
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		slog.Error("db schema failed", slog.Any("error", err))
		os.Exit(1)
	}
	history := postgres.NewRunRepo(pool)

	// MongoDB: accounts.
	mongoClient, err := mongodb.Connect(ctx, cfg.MongoURI)
	if err != nil {
		slog.Error("mongo connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = mongoClient.Disconnect(context.Background()) }()
	users := mongodb.NewUserRepo(mongoClient.Database(cfg.MongoDatabase))
	if err := users.EnsureIndexes(ctx); err != nil {
		slog.Error("mongo indexes failed", slog.Any("error", err))
		os.Exit(1)
	}

	// Redis: current runs and the evaluation budget.
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", slog.Any("error", err))
		os.Exit(1)
	}
	rdb := redis.NewClient(redisOpts)
	defer func() { _ = rdb.Close() }()
	runs := redisstore.NewRunStore(rdb, cfg.RunTTL)

	budget := ratelimiter.NewBudget(rdb, pool, map[string]ratelimiter.Bucket{
		"eval": ratelimiter.PerHour(cfg.EvalBudgetPerHour),
	})
	if n, err := budget.Restore(ctx); err != nil {
		slog.Warn("budget restore failed", slog.Any("error", err))
	} else if n > 0 {
		slog.Info("budget buckets restored from postgres", slog.Int("buckets", n))
	}

	// AI: judge and detector share the provider but may use different models.
	prompts, err := config.LoadPrompts(cfg.PromptsDir)
	if err != nil {
		slog.Error("prompts load failed", slog.Any("error", err))
		os.Exit(1)
	}
	judgeClient, detectorClient := buildAIClients(cfg)
	judge := ai.NewJudge(judgeClient, prompts.Judge, cfg.AIMaxTokens)
	detector := ai.NewDetector(detectorClient, prompts.Detector, cfg.AIMaxTokens)

	extractor, tika := buildExtractor(cfg)

	var notifier domain.Notifier = smtp.LogNotifier{}
	if cfg.SMTPEnabled() {
		n, err := smtp.New(smtp.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPass,
			From:     cfg.SMTPFrom,
		})
		if err != nil {
			slog.Error("smtp setup failed", slog.Any("error", err))
			os.Exit(1)
		}
		notifier = n
	} else {
		slog.Warn("SMTP not configured; verification links are logged")
	}

	if cfg.JWTSecret == "" {
		slog.Warn("JWT_SECRET not set; sessions will not survive restarts")
	}
	sessions, err := identity.NewSessionIssuer(cfg.JWTSecret, cfg.SessionTTL)
	if err != nil {
		slog.Error("session issuer failed", slog.Any("error", err))
		os.Exit(1)
	}

	// Usecases
	uploadSvc := usecase.NewUploadService(extractor)
	evalSvc := usecase.NewEvaluateService(judge, detector, runs, history, budget)
	resultSvc := usecase.NewResultService(runs, history, pdf.New())
	accountSvc := usecase.NewAccountService(users, notifier, identity.NewHasher(), sessions,
		identity.NewVerificationToken, cfg.AppBaseURL, cfg.VerificationTTL)

	// Background jobs
	if cfg.DataRetentionDays > 0 {
		cleanupSvc := postgres.NewCleanupService(pool, cfg.DataRetentionDays)
		go cleanupSvc.RunPeriodic(ctx, cfg.CleanupInterval)
		slog.Info("cleanup service started", slog.Int("retention_days", cfg.DataRetentionDays), slog.Duration("interval", cfg.CleanupInterval))
	}
	go app.NewPendingSignupSweeper(users, time.Hour, time.Hour).Run(ctx)

	deps := app.ReadinessDeps{DB: pool, Mongo: mongoClient, Redis: rdb}
	if tika != nil {
		deps.Tika = tika
	}
	srv := httpserver.NewServer(cfg, uploadSvc, evalSvc, resultSvc, accountSvc, app.BuildReadinessProbes(deps)...)
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port), slog.String("ai_provider", cfg.AIProvider), slog.String("extractor", cfg.Extractor))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}

// buildAIClients returns the judge and detector chat clients for the
// configured provider, each behind its own circuit breaker.
func buildAIClients(cfg config.Config) (judge, detector domain.AIClient) {
	switch strings.ToLower(cfg.AIProvider) {
	case config.ProviderAnthropic:
		judge = claude.New(cfg, cfg.AnthropicModel, "judge")
		detector = claude.New(cfg, cfg.AnthropicModel, "detector")
	default:
		judge = real.New(cfg, cfg.JudgeModel, "judge")
		detector = real.New(cfg, cfg.DetectorModel, "detector")
	}
	return ai.NewCircuitBreaker(judge, "judge", cfg.AIBreakerThreshold, cfg.AIBreakerCooldown),
		ai.NewCircuitBreaker(detector, "detector", cfg.AIBreakerThreshold, cfg.AIBreakerCooldown)
}

// buildExtractor returns the text extractor and, for Tika, the client to probe.
func buildExtractor(cfg config.Config) (domain.TextExtractor, *tikaext.Client) {
	if strings.ToLower(cfg.Extractor) == config.ExtractorTika {
		t := tikaext.New(cfg.TikaURL)
		return t, t
	}
	return local.New(), nil
}
