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

	adjservice "veristay/internal/adjudication/service"
	"veristay/internal/analysis"
	documenthandler "veristay/internal/document/handler"
	documentmetrics "veristay/internal/document/metrics"
	docservice "veristay/internal/document/service"
	docstore "veristay/internal/document/store"
	"veristay/internal/document/sweep"
	httpapi "veristay/internal/http"
	"veristay/internal/incomelimits"
	amihandler "veristay/internal/incomelimits/handler"
	"veristay/internal/notify"
	overridehandler "veristay/internal/override/handler"
	overridemetrics "veristay/internal/override/metrics"
	oservice "veristay/internal/override/service"
	ostore "veristay/internal/override/store"
	"veristay/internal/platform/config"
	"veristay/internal/platform/httpserver"
	"veristay/internal/platform/logger"
	platformpg "veristay/internal/platform/postgres"
	platformredis "veristay/internal/platform/redis"
	propertyhandler "veristay/internal/property/handler"
	propservice "veristay/internal/property/service"
	propstore "veristay/internal/property/store"
	rentrollhandler "veristay/internal/rentroll/handler"
	rentrollmetrics "veristay/internal/rentroll/metrics"
	rrservice "veristay/internal/rentroll/service"
	rrstore "veristay/internal/rentroll/store"
	residenthandler "veristay/internal/resident/handler"
	resservice "veristay/internal/resident/service"
	resstore "veristay/internal/resident/store"
	verificationhandler "veristay/internal/verification/handler"
	verificationmetrics "veristay/internal/verification/metrics"
	verservice "veristay/internal/verification/service"
	verstore "veristay/internal/verification/store"
	"veristay/pkg/platform/audit"
	auditworker "veristay/pkg/platform/audit/worker"
	"veristay/pkg/platform/middleware/auth"
	txcontext "veristay/pkg/platform/tx"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := platformpg.Open(cfg.DatabaseURL)
	if err != nil {
		log.Error("postgres unavailable", "error", err)
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
		if err := platformpg.Migrate(ctx, db); err != nil {
			log.Error("schema migration failed", "error", err)
			os.Exit(1)
		}
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis unavailable", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Stores: postgres when configured, in-memory otherwise.
	var (
		properties    propertyStore     = propstore.NewMemory()
		residents     resservice.Store  = resstore.NewMemory()
		verifications verificationStore = verstore.NewMemory()
		documents     documentStore     = docstore.NewMemory()
		overrides     oservice.Store    = ostore.NewMemory()
		snapshots     rrservice.Store   = rrstore.NewMemory()
	)
	if db != nil {
		properties = propstore.NewPostgres(db)
		residents = resstore.NewPostgres(db)
		verifications = verstore.NewPostgres(db)
		documents = docstore.NewPostgres(db)
		overrides = ostore.NewPostgres(db)
		snapshots = rrstore.NewPostgres(db)
	} else {
		log.Warn("no DATABASE_URL configured, using in-memory stores")
	}

	// Audit: kafka when brokers are configured, in-memory sink otherwise.
	publisher := audit.NewPublisher(1024, log)
	var sink audit.Sink = audit.NewMemorySink()
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink, err := audit.NewKafkaSink(cfg.KafkaBrokers, cfg.AuditTopic)
		if err != nil {
			log.Error("kafka unavailable", "error", err)
			os.Exit(1)
		}
		defer kafkaSink.Close()
		sink = kafkaSink
	}

	var analyzer analysis.Submitter = analysis.NopSubmitter{}
	if cfg.AnalyzerURL != "" {
		analyzer = analysis.NewClient(cfg.AnalyzerURL, cfg.AnalyzerToken)
	}

	documentMetrics := documentmetrics.New()
	overrideMetrics := overridemetrics.New()
	verificationMetrics := verificationmetrics.New()
	rentrollMetrics := rentrollmetrics.New()

	// Services, in dependency order.
	propertySvc := propservice.New(properties, verifications, log)
	overrideSvc := oservice.New(overrides, residents, verifications, properties, publisher, overrideMetrics, log)
	verificationSvc := verservice.New(verifications, residents, documents, propertySvc, overrideSvc, verificationMetrics, log)
	residentSvc := resservice.New(residents, documents, propertySvc, verificationSvc, log)
	documentSvc := docservice.New(documents, verifications, residents, residentSvc, propertySvc, analyzer, overrideSvc, documentMetrics, log)
	rentrollSvc := rrservice.New(snapshots, propertySvc, properties, residents, overrideSvc, overrideSvc, rentrollMetrics, log)

	var notifier notify.Notifier = notify.NewLogNotifier(log)
	if cfg.DirectoryURL != "" {
		notifier = notify.NewEmailNotifier(notify.NewHTTPDirectory(cfg.DirectoryURL, cfg.DirectoryToken), log)
	}
	adjudicationSvc := adjservice.New(overrides, propertySvc, rentrollSvc, notifier, publisher, txcontext.NewRunner(db), log)

	var limitsReader incomelimits.Reader
	if cfg.IncomeLimitsURL != "" {
		limitsReader = incomelimits.NewClient(cfg.IncomeLimitsURL, cfg.IncomeLimitsToken)
		if redisClient != nil {
			limitsReader = incomelimits.NewCachedReader(limitsReader, redisClient.Client, log)
		}
	} else {
		limitsReader = unavailableLimits{}
		log.Warn("no INCOME_LIMITS_URL configured, AMI classification degraded")
	}
	classifier := incomelimits.NewClassifier(limitsReader, log)

	sweeper := sweep.New(documents, overrideSvc, cfg.SweepInterval, cfg.StaleThreshold, documentMetrics, log)

	router := httpapi.New(httpapi.Handlers{
		Property:     propertyhandler.New(propertySvc, overrideSvc, log),
		Verification: verificationhandler.New(verificationSvc, log),
		Document:     documenthandler.New(documentSvc, cfg.AnalyzerToken, log),
		Resident:     residenthandler.New(residentSvc, log),
		Override:     overridehandler.New(overrideSvc, adjudicationSvc, log),
		RentRoll:     rentrollhandler.New(rentrollSvc, log),
		AMI:          amihandler.New(propertySvc, residents, classifier, log),
	}, auth.NewValidator(cfg.JWTSigningKey), func() error {
		if db != nil {
			if err := db.PingContext(context.Background()); err != nil {
				return err
			}
		}
		if redisClient != nil {
			return redisClient.Health(context.Background())
		}
		return nil
	}, log)

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		err := sweeper.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		err := auditworker.New(sink, publisher.Inbox(), log).Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

// The store variables are typed as the union of every consumer's port so
// the postgres and memory implementations swap in one place.
type propertyStore interface {
	propservice.Store
	rrservice.PropertyDirectory
}

type verificationStore interface {
	verservice.Store
	propservice.VerificationReader
}

type documentStore interface {
	docservice.Store
	sweep.Store
	verservice.DocumentCounter
	resservice.DocumentReader
}

// unavailableLimits stands in when no limits service is configured; the
// classifier degrades every lookup to BucketUnknown.
type unavailableLimits struct{}

func (unavailableLimits) FetchLimits(context.Context, string, string, int) (*incomelimits.LimitSet, error) {
	return nil, errors.New("income limits service not configured")
}
