package main

import (
	"errors"
	"flag"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"passchain/config"
	"passchain/core/events"
	"passchain/core/state"
	"passchain/native/passes"
	"passchain/observability/logging"
	"passchain/rpc"
	"passchain/storage"
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to the node configuration file")
	flag.Parse()

	logger := logging.Setup("passd", os.Getenv("PASSD_ENV"))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "path", *configPath, "err", err)
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", "dataDir", cfg.DataDir, "err", err)
		os.Exit(1)
	}
	defer db.Close()

	manager := state.NewManager(db)
	feed := events.NewMemoryEmitter()
	engine := passes.NewEngine()
	engine.SetState(manager)
	engine.SetEmitter(feed)
	engine.SetLogger(logger)

	if _, err := engine.MarketConfig(); errors.Is(err, passes.ErrConfigNotFound) {
		if !cfg.Seeded() {
			logger.Error("no market config in state and the [market] section is incomplete")
			os.Exit(1)
		}
		market, err := cfg.MarketConfig()
		if err != nil {
			logger.Error("invalid [market] genesis section", "err", err)
			os.Exit(1)
		}
		if err := engine.InitMarketConfig(market); err != nil {
			logger.Error("failed to seed market config", "err", err)
			os.Exit(1)
		}
	} else if err != nil {
		logger.Error("failed to read market config", "err", err)
		os.Exit(1)
	}

	server := rpc.NewServer(engine, manager, feed)

	router := chi.NewRouter()
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())
	router.Method(http.MethodPost, "/rpc", server.Handler())

	logger.Info("starting JSON-RPC server",
		"addr", cfg.RPCAddress, "network", cfg.NetworkName)
	if err := http.ListenAndServe(cfg.RPCAddress, router); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}
