// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
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

	"namereg/internal/controller/commitreveal"
	crstore "namereg/internal/controller/commitreveal/store"
	ctrlmetrics "namereg/internal/controller/metrics"
	"namereg/internal/controller/standard"
	"namereg/internal/ens"
	"namereg/internal/events"
	"namereg/internal/fees"
	jwttoken "namereg/internal/jwt_token"
	"namereg/internal/platform/config"
	"namereg/internal/platform/httpserver"
	"namereg/internal/platform/logger"
	platformredis "namereg/internal/platform/redis"
	regmetrics "namereg/internal/registrar/metrics"
	regservice "namereg/internal/registrar/service"
	regstore "namereg/internal/registrar/store"
	httptransport "namereg/internal/transport/http"
	id "namereg/pkg/domain"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()
	ctx := context.Background()

	owner, err := id.ParseAddress(cfg.Owner)
	if err != nil {
		log.Error("invalid owner address", "error", err)
		os.Exit(1)
	}
	serviceAccount, err := id.ParseAddress(cfg.ServiceAccount)
	if err != nil {
		log.Error("invalid service account address", "error", err)
		os.Exit(1)
	}
	crInstance, err := id.ParseAddress(cfg.CommitRevealInstance)
	if err != nil {
		log.Error("invalid commit-reveal instance address", "error", err)
		os.Exit(1)
	}
	stdInstance, err := id.ParseAddress(cfg.StandardInstance)
	if err != nil {
		log.Error("invalid standard instance address", "error", err)
		os.Exit(1)
	}

	// Event log: in-memory store, optional Kafka fan-out. Delivery is queued
	// through a worker so a slow broker never stalls the request path.
	recorderOpts := []events.Option{events.WithLogger(log)}
	var eventWorker *events.Worker
	if len(cfg.Kafka.Brokers) > 0 {
		sink, err := events.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			log.Error("kafka sink unavailable", "error", err)
			os.Exit(1)
		}
		eventWorker = events.NewWorker(sink, 256, log)
		defer eventWorker.Close()
		recorderOpts = append(recorderOpts, events.WithSink(eventWorker))
	}
	recorder := events.NewRecorder(events.NewInMemoryStore(), recorderOpts...)

	// Ledger store: Postgres when configured, in-process otherwise.
	var (
		ledgerStore regstore.Store
		health      func() error
	)
	if cfg.Postgres.URL != "" {
		pg, err := regstore.NewPostgres(ctx, cfg.Postgres.URL)
		if err != nil {
			log.Error("postgres unavailable", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		ledgerStore = pg
	} else {
		ledgerStore = regstore.NewInMemory()
	}

	// Commit store: Redis when configured, in-process otherwise.
	var commitStore crstore.Store = crstore.NewInMemory()
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis unavailable", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		commitStore = crstore.NewRedis(redisClient.Client)
		health = func() error { return redisClient.Health(ctx) }
	}

	// The naming system and the payment token are external collaborators; the
	// in-memory stand-ins back local and single-node deployments.
	naming := ens.NewInMemory(serviceAccount)
	token := fees.NewInMemoryToken()

	ledger, err := regservice.New(regservice.Config{
		Owner:          owner,
		ServiceAccount: serviceAccount,
		TopDomain:      cfg.TopDomain,
		Domain:         cfg.Domain,
		BaseURI:        cfg.BaseURI,
	}, ledgerStore, naming, recorder,
		regservice.WithLogger(log),
		regservice.WithMetrics(regmetrics.New()),
	)
	if err != nil {
		log.Error("registrar wiring failed", "error", err)
		os.Exit(1)
	}
	naming.SeedNode(ledger.BaseNode(), serviceAccount)

	// Both protocol instances must be in the controller ACL before they can
	// mint. Re-adding on restart is expected to conflict.
	for _, instance := range []id.Address{crInstance, stdInstance} {
		if err := ledger.AddController(ctx, instance, owner); err != nil {
			log.Info("controller already registered", "controller", instance.String())
		}
	}

	protocolMetrics := ctrlmetrics.New()

	crService, err := commitreveal.New(commitreveal.Config{
		InstanceID:  crInstance,
		Price:       cfg.Price,
		RevealDelay: cfg.RevealDelay,
	}, commitStore, ledger, fees.New(token, crInstance), recorder,
		commitreveal.WithLogger(log),
		commitreveal.WithMetrics(protocolMetrics),
	)
	if err != nil {
		log.Error("commit-reveal wiring failed", "error", err)
		os.Exit(1)
	}

	stdSettlement := fees.New(token, stdInstance)
	if cfg.FeeCollector != "" {
		collector, err := id.ParseAddress(cfg.FeeCollector)
		if err != nil {
			log.Error("invalid fee collector address", "error", err)
			os.Exit(1)
		}
		stdSettlement = fees.NewWithCollector(token, stdInstance, collector)
	}
	stdService, err := standard.New(standard.Config{
		Owner:       owner,
		InstanceID:  stdInstance,
		Price:       cfg.Price,
		MaxGasPrice: cfg.MaxGasPrice,
	}, ledger, stdSettlement, recorder,
		standard.WithLogger(log),
		standard.WithMetrics(protocolMetrics),
	)
	if err != nil {
		log.Error("standard controller wiring failed", "error", err)
		os.Exit(1)
	}

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, "namereg", "namereg-api")
	router := httptransport.NewRouter(httptransport.RouterConfig{
		Logger:     log,
		Validator:  jwttoken.NewAuthAdapter(jwtService),
		AdminToken: cfg.AdminToken,
		Names:      httptransport.NewNamesHandler(ledger, stdService),
		Commits:    httptransport.NewCommitsHandler(crService),
		Admin:      httptransport.NewAdminHandler(ledger, stdService, owner),
		Health:     health,
	})

	srv := httpserver.New(cfg.Addr, router)
	log.Info("starting namereg", "addr", cfg.Addr, "domain", cfg.Domain+"."+cfg.TopDomain)

	group, groupCtx := errgroup.WithContext(ctx)
	if eventWorker != nil {
		group.Go(func() error {
			if err := eventWorker.Run(groupCtx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	group.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		select {
		case <-quit:
		case <-groupCtx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
