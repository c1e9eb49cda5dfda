package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"yieldoracle/native/oracle"
	"yieldoracle/observability/logging"
	telemetry "yieldoracle/observability/otel"
	"yieldoracle/services/oracled/config"
	"yieldoracle/services/oracled/fxsource"
	"yieldoracle/services/oracled/server"
	"yieldoracle/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/oracled/config.yaml", "path to oracled configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("ORACLE_ENV"))
	logging.Setup("oracled", env)
	otlpEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	otlpHeaders := telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "oracled",
		Environment: env,
		Endpoint:    otlpEndpoint,
		Insecure:    insecure,
		Headers:     otlpHeaders,
		Metrics:     true,
		Traces:      true,
	})
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("oracled: load config: %v", err)
	}

	db, err := storage.NewLevelDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("oracled: open database: %v", err)
	}
	defer db.Close()

	store := storage.NewLedgerStore(db, storage.TimeHeights(time.Now))
	state := oracle.NewState(store)
	initialized, err := state.IsInitialized()
	if err != nil {
		log.Fatalf("oracled: inspect state: %v", err)
	}
	if !initialized {
		err := state.Configure(oracle.ConfigData{
			Admin:                    cfg.Oracle.Admin,
			Period:                   cfg.Oracle.PeriodMs,
			BaseAsset:                oracle.SymbolAsset(cfg.Oracle.BaseAssetSymbol),
			Decimals:                 cfg.Oracle.Decimals,
			Resolution:               cfg.Oracle.ResolutionMs,
			FxOracleAddress:          cfg.Fx.Endpoint,
			MaxYieldDeviationPercent: cfg.Oracle.MaxYieldDeviationPercent,
		})
		if err != nil {
			log.Fatalf("oracled: configure oracle: %v", err)
		}
		slog.Info("oracle configured",
			"decimals", cfg.Oracle.Decimals,
			"resolution_ms", cfg.Oracle.ResolutionMs,
			"period_ms", cfg.Oracle.PeriodMs)
	}

	var fx oracle.FxOracle
	if strings.TrimSpace(cfg.Fx.Endpoint) != "" {
		fx = fxsource.NewClient(cfg.Fx.Endpoint, cfg.Fx.APIKey, cfg.Fx.Timeout.Duration)
	}

	engine, err := oracle.NewEngine(state, store, fx, oracle.WithLogger(slog.Default()))
	if err != nil {
		log.Fatalf("oracled: build engine: %v", err)
	}

	authenticator, err := server.NewAuthenticator(cfg.AdminToken)
	if err != nil {
		log.Fatalf("oracled: configure admin auth: %v", err)
	}

	srv := server.New(engine, authenticator, cfg, slog.Default())
	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("oracled listening", "addr", cfg.ListenAddress)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-rootCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("http shutdown", "error", err)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("oracled: http server error: %v", err)
		}
	}
}
