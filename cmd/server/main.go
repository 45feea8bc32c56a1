// Command server runs the visitor-management API: visit lifecycle, gate
// scans, the ban registry, and license accounting, plus the background
// audit writer, notification dispatcher, and expiry sweeper.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"passage/internal/audit"
	banhandler "passage/internal/ban/handler"
	banmetrics "passage/internal/ban/metrics"
	banservice "passage/internal/ban/service"
	banstore "passage/internal/ban/store"
	httpapi "passage/internal/http"
	jwttoken "passage/internal/jwt_token"
	licensehandler "passage/internal/license/handler"
	licenseservice "passage/internal/license/service"
	licensestore "passage/internal/license/store"
	"passage/internal/notify"
	"passage/internal/platform/config"
	"passage/internal/platform/httpserver"
	"passage/internal/platform/logger"
	"passage/internal/platform/postgres"
	"passage/internal/platform/redis"
	"passage/internal/scan"
	scanhandler "passage/internal/scan/handler"
	scanmetrics "passage/internal/scan/metrics"
	"passage/internal/sweeper"
	visithandler "passage/internal/visit/handler"
	visitmetrics "passage/internal/visit/metrics"
	"passage/internal/visit/qr"
	visitservice "passage/internal/visit/service"
	visitstore "passage/internal/visit/store"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(cfg.PostgresDSN)
	if err != nil {
		log.Error("postgres connection failed", "error", err)
		os.Exit(1)
	}
	if db != nil {
		defer func() { _ = db.Close() }()
	}

	redisClient, err := redis.New(cfg.RedisURL, cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	// Stores: Postgres when configured, memory otherwise.
	var (
		visits   visitstore.Store
		profiles visitstore.ProfileStore
		bans     banstore.Store
		licenses licensestore.Store
		audits   audit.Store
	)
	if db != nil {
		pgVisits := visitstore.NewPostgres(db)
		visits = pgVisits
		profiles = pgVisits
		bans = banstore.NewPostgres(db)
		licenses = licensestore.NewPostgres(db)
		audits = audit.NewPostgres(db)
		log.Info("using postgres stores")
	} else {
		memVisits := visitstore.NewInMemory()
		visits = memVisits
		profiles = memVisits
		bans = banstore.NewInMemory()
		licenses = licensestore.NewInMemory()
		audits = audit.NewInMemory()
		log.Warn("postgres not configured, using in-memory stores")
	}

	issuer, err := qr.NewIssuer(cfg.QRSigningKey, cfg.QRCodeTTL)
	if err != nil {
		log.Error("qr issuer init failed", "error", err)
		os.Exit(1)
	}

	auditInbox := make(chan audit.Event, 1024)
	auditPublisher := audit.NewPublisher(auditInbox, log)
	auditWorker := audit.NewWorker(audits, auditInbox, log)

	var sink notify.Notifier
	kafkaNotifier, err := notify.NewKafkaNotifier(ctx, cfg.KafkaBrokers, cfg.KafkaTopic, log)
	if err != nil {
		log.Error("kafka notifier init failed", "error", err)
		os.Exit(1)
	}
	if kafkaNotifier != nil {
		defer kafkaNotifier.Close()
		sink = kafkaNotifier
	} else {
		sink = notify.NewLogNotifier(log)
		log.Warn("kafka not configured, notifications go to the log")
	}
	dispatcher := notify.NewDispatcher(sink, 256, log)

	banOpts := []banservice.Option{
		banservice.WithLogger(log),
		banservice.WithAuditEmitter(auditPublisher),
		banservice.WithMetrics(banmetrics.New()),
	}
	if redisClient != nil {
		banOpts = append(banOpts, banservice.WithDenyCache(banstore.NewRedisDenyCache(redisClient.Client, banstore.DefaultDenyTTL)))
	}
	banSvc := banservice.New(bans, banOpts...)

	visitSvc := visitservice.New(visits, profiles, issuer, banSvc,
		visitservice.WithLogger(log),
		visitservice.WithAuditEmitter(auditPublisher),
		visitservice.WithNotifyQueue(dispatcher),
		visitservice.WithMetrics(visitmetrics.New()),
	)
	licenseSvc := licenseservice.New(licenses,
		licenseservice.WithLogger(log),
		licenseservice.WithAuditEmitter(auditPublisher),
	)
	processor := scan.New(visits, banSvc,
		scan.WithLogger(log),
		scan.WithAuditEmitter(auditPublisher),
		scan.WithNotifyQueue(dispatcher),
		scan.WithMetrics(scanmetrics.New()),
		scan.WithRetries(cfg.ScanRetries),
	)

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, "passage", "passage-api")
	router := httpapi.NewRouter(httpapi.Handlers{
		Visits:   visithandler.New(visitSvc, log),
		Scans:    scanhandler.New(processor, log),
		Bans:     banhandler.New(banSvc, log),
		Licenses: licensehandler.New(licenseSvc, log),
	}, jwttoken.NewMiddlewareAdapter(jwtService), log)

	srv := httpserver.New(cfg.Addr, router)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("starting server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		if err := auditWorker.Run(groupCtx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		if err := dispatcher.Run(groupCtx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		err := sweeper.New(visitSvc, banSvc, log, cfg.SweepInterval, cfg.ExpiryGrace).Run(groupCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
