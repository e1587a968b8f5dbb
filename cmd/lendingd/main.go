package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/netutil"

	"sbtlend/crypto"
	"sbtlend/native/bank"
	nativecommon "sbtlend/native/common"
	"sbtlend/native/lending"
	"sbtlend/observability/logging"
	telemetry "sbtlend/observability/otel"
	"sbtlend/services/lending/engine"
	"sbtlend/services/lending/journal"
	lendingserver "sbtlend/services/lending/server"
	"sbtlend/services/lendingd/config"
	"sbtlend/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/lendingd/config.yaml", "path to lendingd config")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	env := strings.TrimSpace(os.Getenv("SBTLEND_ENV"))
	logger := logging.Setup("lendingd", env, logging.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.ConfigFromEnv("lendingd", env))
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	if err := run(cfg, env, logger); err != nil {
		log.Fatalf("lendingd: %v", err)
	}
}

func run(cfg config.Config, env string, logger *slog.Logger) error {
	logger.Info("lendingd configuration", "config", cfg)
	params := lending.DefaultParams()
	if cfg.ParamsFile != "" {
		loaded, err := lending.LoadParams(cfg.ParamsFile)
		if err != nil {
			return err
		}
		params = loaded
	}

	db, err := openStorage(cfg.Storage)
	if err != nil {
		return err
	}
	defer db.Close()

	pauses := nativecommon.StaticPauses{}
	for _, module := range cfg.Pauses {
		pauses[module] = true
		logger.Warn("module paused by configuration", "component", module)
	}

	svc, err := engine.New(db, engine.Options{
		Params: params,
		Pauses: pauses,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	var j *journal.Journal
	if cfg.Journal.Driver != "" {
		j, err = journal.Open(journal.Config{Driver: cfg.Journal.Driver, DSN: cfg.Journal.DSN})
		if err != nil {
			return err
		}
		defer j.Close()
		svc.AddSink(j)
	}
	hub := lendingserver.NewHub(logger)
	svc.AddSink(hub)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := bootstrap(ctx, svc, cfg, logger); err != nil {
		return err
	}

	srv, err := lendingserver.New(svc, j, hub, lendingserver.Config{
		Auth: lendingserver.AuthConfig{
			HMACSecret: cfg.Auth.HMACSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			ClockSkew:  cfg.Auth.ClockSkew,
		},
		RateLimit: lendingserver.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
			TrustedProxies:    cfg.RateLimit.TrustedProxies,
		},
		StreamOrigins: cfg.StreamOrigins,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.ListenAddress, err)
	}
	if cfg.TLS.AllowInsecure && !cfg.TLS.Enabled() {
		tcpAddr, _ := listener.Addr().(*net.TCPAddr)
		loopback := tcpAddr != nil && tcpAddr.IP != nil && tcpAddr.IP.IsLoopback()
		if !strings.EqualFold(env, "dev") && !loopback {
			_ = listener.Close()
			return errors.New("plaintext lendingd mode is restricted to loopback listeners or dev environment")
		}
	}
	if cfg.MaxConnections > 0 {
		listener = netutil.LimitListener(listener, cfg.MaxConnections)
	}

	httpServer := &http.Server{
		Handler:           otelhttp.NewHandler(srv.Handler(), "lendingd"),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("lendingd listening", "addr", cfg.ListenAddress, "tls", cfg.TLS.Enabled())
		if cfg.TLS.Enabled() {
			serverErr <- httpServer.ServeTLS(listener, cfg.TLS.CertPath, cfg.TLS.KeyPath)
			return
		}
		serverErr <- httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("forcing server stop", "error", err)
			_ = httpServer.Close()
		}
		return nil
	case err := <-serverErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

func openStorage(cfg config.StorageConfig) (storage.Database, error) {
	switch cfg.Backend {
	case config.StorageBolt:
		db, err := storage.NewBoltDB(cfg.Path, nil)
		if err != nil {
			return nil, fmt.Errorf("open bolt: %w", err)
		}
		return db, nil
	case config.StorageLevelDB:
		db, err := storage.NewLevelDB(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open leveldb: %w", err)
		}
		return db, nil
	default:
		return storage.NewMemDB(), nil
	}
}

// bootstrap seeds genesis balances and, when an admin is configured,
// initializes the pool and the registry. Both steps are no-ops on restart.
func bootstrap(ctx context.Context, svc *engine.Service, cfg config.Config, logger *slog.Logger) error {
	if len(cfg.Genesis) > 0 {
		allocs := make([]bank.Allocation, 0, len(cfg.Genesis))
		for _, entry := range cfg.Genesis {
			addr, err := crypto.DecodeAddress(entry.Address)
			if err != nil {
				return fmt.Errorf("genesis address %q: %w", entry.Address, err)
			}
			allocs = append(allocs, bank.Allocation{Address: addr, Amount: entry.Amount})
		}
		applied, err := svc.ApplyGenesis(ctx, allocs)
		if err != nil {
			return fmt.Errorf("apply genesis: %w", err)
		}
		logger.Info("genesis balances", "applied", applied, "accounts", len(allocs))
	}
	if cfg.Admin == "" {
		return nil
	}
	admin, err := crypto.DecodeAddress(cfg.Admin)
	if err != nil {
		return fmt.Errorf("admin address: %w", err)
	}
	if err := svc.InitializePool(ctx, admin); err != nil && !errors.Is(err, nativecommon.ErrAlreadyInitialized) {
		return fmt.Errorf("initialize pool: %w", err)
	}
	if err := svc.InitializeRegistry(ctx, admin, ""); err != nil && !errors.Is(err, nativecommon.ErrAlreadyInitialized) {
		return fmt.Errorf("initialize registry: %w", err)
	}
	return nil
}
