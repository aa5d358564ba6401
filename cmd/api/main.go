package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cmlabs-hris/biometric-attendance/internal/config"
	"github.com/cmlabs-hris/biometric-attendance/internal/domain/attendance"
	appHTTP "github.com/cmlabs-hris/biometric-attendance/internal/handler/http"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/businesstime"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/cron"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/database"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/email"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/hikvision"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/jwt"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/keylock"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/metrics"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/redis"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/sse"
	"github.com/cmlabs-hris/biometric-attendance/internal/pkg/storage"
	"github.com/cmlabs-hris/biometric-attendance/internal/repository/postgresql"
	attendanceService "github.com/cmlabs-hris/biometric-attendance/internal/service/attendance"
	serviceAuth "github.com/cmlabs-hris/biometric-attendance/internal/service/auth"
	deviceService "github.com/cmlabs-hris/biometric-attendance/internal/service/device"
	evidenceService "github.com/cmlabs-hris/biometric-attendance/internal/service/evidence"
	notificationService "github.com/cmlabs-hris/biometric-attendance/internal/service/notification"
)

const (
	version         = "v1.0.0"
	shutdownTimeout = 15 * time.Second
)

func main() {
	if err := run(); err != nil {
		slog.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	startedAt := time.Now()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})).With(
		slog.String("app", "biometric-attendance"),
		slog.String("env", cfg.App.Env),
	)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgreSQLDB(cfg.DatabaseURL())
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	// Per-person locks: Redis when configured so replicas share them
	var locker keylock.Locker = keylock.NewMemory()
	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		locker = keylock.NewRedis(redisClient.Client, cfg.Redis.LockTTL)
		slog.Info("Using Redis locks", "ttl", cfg.Redis.LockTTL)
	} else {
		slog.Info("REDIS_URL not set, using in-process locks")
	}

	zone := businesstime.NewZone(cfg.Attendance.UTCOffsetHours)
	m := metrics.New()

	personRepo := postgresql.NewPersonRepository(db)
	attendanceRepo := postgresql.NewAttendanceRepository(db)
	notificationRepo := postgresql.NewNotificationRepository(db)

	hub := sse.NewHub()
	notifSvc := notificationService.NewNotificationService(notificationRepo, hub, notificationService.Config{
		BatchSize:     cfg.Notification.BatchSize,
		FlushInterval: cfg.Notification.FlushInterval,
		WorkerCount:   cfg.Notification.WorkerCount,
		QueueSize:     cfg.Notification.QueueSize,
	}, logger)
	defer notifSvc.Stop()

	fileStorage, err := storage.NewLocalStorage(cfg.Storage.BasePath, cfg.Storage.BaseURL)
	if err != nil {
		return fmt.Errorf("initialize evidence storage: %w", err)
	}
	evidenceSvc := evidenceService.NewService(fileStorage, zone)

	alertSvc, err := email.NewAlertService(cfg.SMTP, zone)
	if err != nil {
		return fmt.Errorf("initialize email alerts: %w", err)
	}

	ingestSvc := attendanceService.NewIngestionService(
		personRepo,
		attendanceRepo,
		notifSvc,
		locker,
		zone,
		attendanceService.IngestConfig{
			Cooldown:      time.Duration(cfg.Attendance.CooldownSeconds) * time.Second,
			MinExternalID: int64(cfg.Attendance.MinExternalID),
			Site:          cfg.Device.Site,
			Brand:         cfg.Device.Brand,
		},
		attendanceService.WithEvidenceStore(evidenceSvc),
		attendanceService.WithAccessAlerter(alertSvc),
		attendanceService.WithMetrics(m),
		attendanceService.WithLogger(logger),
	)
	reconciler := attendanceService.NewReconciler(attendanceRepo, notifSvc, locker, zone, m, logger)
	querySvc := attendanceService.NewQueryService(attendanceRepo, zone, evidenceSvc.EvidenceURL)

	// Events stamped before this instant are replays from the device buffer
	ingestOptions := attendance.IngestOptions{NotBefore: startedAt.Add(-cfg.Attendance.HistoricalGrace)}

	JWTService, err := jwt.NewJWTService(cfg.JWT.Secret, cfg.JWT.AccessExpiration)
	if err != nil {
		return fmt.Errorf("initialize jwt: %w", err)
	}
	authSvc := serviceAuth.NewAuthService(cfg.Admin, JWTService)

	hikClient := hikvision.NewClient(hikvision.Config{
		Host:     cfg.Device.Host,
		Port:     cfg.Device.Port,
		Username: cfg.Device.Username,
		Password: cfg.Device.Password,
		Timeout:  cfg.Device.Timeout,
	})
	deviceSvc := deviceService.NewService(hikClient, personRepo, zone, deviceService.Config{
		Site:       cfg.Device.Site,
		Brand:      cfg.Device.Brand,
		WebhookURL: cfg.Device.WebhookURL,
		TimeZone:   cfg.Device.TimeZone,
		NTPServer:  cfg.Device.NTPServer,
	}, logger)

	readiness := map[string]appHTTP.HealthCheck{"postgres": db.Health}
	if redisClient != nil {
		readiness["redis"] = redisClient.Health
	}

	router := appHTTP.NewRouter(appHTTP.RouterConfig{
		FrontendURL: cfg.App.FrontendURL,
		Env:         cfg.App.Env,
		Version:     version,
		LogLevel:    cfg.SlogLevel(),
		Readiness:   readiness,
	}, JWTService, m, appHTTP.Handlers{
		Auth:         appHTTP.NewAuthHandler(authSvc),
		Attendance:   appHTTP.NewAttendanceHandler(querySvc, reconciler, zone),
		Notification: appHTTP.NewNotificationHandler(notifSvc, JWTService),
		Device:       appHTTP.NewDeviceHandler(deviceSvc),
		Webhook: appHTTP.NewWebhookHandler(ingestSvc, cfg.Device.WebhookToken, func() attendance.IngestOptions {
			return ingestOptions
		}, m),
		Evidence: appHTTP.NewEvidenceHandler(evidenceSvc),
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		// Open streams end when the process is told to stop
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	scheduler := cron.NewScheduler()
	cron.NewAttendanceJobs(reconciler, zone, cfg.Attendance.ReconcileAtOffset).RegisterJobs(scheduler)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Server running", "addr", server.Addr, "location", cfg.Device.Site, "brand_id", cfg.Device.Brand)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		scheduler.Start()
		<-gctx.Done()
		scheduler.Stop()
		return nil
	})

	if cfg.Device.AlertStream {
		listener := deviceService.NewListener(deviceService.OpenerFor(hikClient), ingestSvc, deviceService.ListenerConfig{
			Warmup: cfg.Device.Warmup,
			Ingest: ingestOptions,
		}, m, logger)

		g.Go(func() error {
			// The webhook keeps working without the stream
			if err := listener.Run(gctx); err != nil {
				slog.Error("Alert stream listener stopped", "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
