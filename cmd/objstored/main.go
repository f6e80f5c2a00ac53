// Command objstored serves the schema-and-object engine's REST surface.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/elementstore/objstore/internal/broadcast"
	"github.com/elementstore/objstore/internal/httpapi"
	"github.com/elementstore/objstore/internal/objstore"
	"github.com/elementstore/objstore/internal/objstore/storage"
	"github.com/elementstore/objstore/internal/objstore/storage/docdb"
	"github.com/elementstore/objstore/internal/objstore/storage/fsjson"
	"github.com/elementstore/objstore/internal/platform/config"
	"github.com/elementstore/objstore/internal/platform/logging"
	"github.com/elementstore/objstore/internal/platform/metrics"
	"github.com/elementstore/objstore/internal/platform/ratelimit"
)

// Exit codes per the engine's CLI contract (§6).
const (
	exitOK           = 0
	exitConfigError  = 1
	exitStorageError = 2
	exitGenesisError = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	config.LoadDotEnv("")

	// The YAML file (if any) is read before the real flag.Parse so its
	// values can seed flag defaults — flag.String always yields a non-blank
	// default otherwise, which would make the file a dead fallback layer.
	configPath := config.GetEnv("CONFIG_FILE", "")
	for i, arg := range os.Args[1:] {
		if arg == "-config" || arg == "--config" {
			if i+2 < len(os.Args) {
				configPath = os.Args[i+2]
			}
		} else if v, ok := strings.CutPrefix(arg, "-config="); ok {
			configPath = v
		} else if v, ok := strings.CutPrefix(arg, "--config="); ok {
			configPath = v
		}
	}
	var fileCfg config.ServerConfig
	if configPath != "" {
		loaded, err := config.LoadServerConfigFile(configPath)
		if err != nil {
			logging.NewFromEnv("objstored").WithError(err).Error("load config file")
			return exitConfigError
		}
		fileCfg = *loaded
	}

	addr := flag.String("addr", config.GetEnv("ADDR", config.Coalesce(fileCfg.Addr, ":8080")), "listen address")
	dataRoot := flag.String("data-root", config.GetEnv("DATA_ROOT", config.Coalesce(fileCfg.DataRoot, "./data")), "filesystem provider data root")
	storageType := flag.String("storage", config.GetEnv("STORAGE", config.Coalesce(fileCfg.Storage, "fsjson")), "storage provider: fsjson or docdb")
	dsn := flag.String("dsn", config.GetEnv("DSN", fileCfg.DSN), "docdb (postgres) connection string")
	hubURL := flag.String("hub-url", config.GetEnv("HUB_URL", config.Coalesce(fileCfg.HubURL, "http://localhost:8081")), "objhub base URL")
	genesisRoot := flag.String("genesis-root", config.GetEnv("GENESIS_ROOT", ""), "genesis seed directory")
	flag.String("config", configPath, "optional YAML config file, layered beneath flags/env")
	flag.Parse()

	log := logging.NewFromEnv("objstored")
	if fileCfg.LogLevel != "" || fileCfg.LogFormat != "" {
		log = logging.New("objstored", config.Coalesce(config.GetEnv("LOG_LEVEL", ""), fileCfg.LogLevel, "info"),
			config.Coalesce(config.GetEnv("LOG_FORMAT", ""), fileCfg.LogFormat, "json"))
	}

	if *storageType == "docdb" && *dsn == "" {
		log.Error("storage=docdb requires a non-empty -dsn/DSN")
		return exitConfigError
	}
	root := *genesisRoot
	if root == "" {
		root = *dataRoot + "/genesis"
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var store storage.Provider
	switch *storageType {
	case "docdb":
		db, err := docdb.Open(ctx, *dsn)
		if err != nil {
			log.WithError(err).Error("open docdb storage")
			return exitStorageError
		}
		defer db.Close()
		store = docdb.New(db)
	default:
		fsStore, err := fsjson.New(*dataRoot)
		if err != nil {
			log.WithError(err).Error("init fsjson storage")
			return exitStorageError
		}
		store = fsStore
	}

	exportStore, err := objstore.NewExportStore(*dataRoot)
	if err != nil {
		log.WithError(err).Error("init export store")
		return exitStorageError
	}

	m := metrics.New("objstored")
	emitter := broadcast.NewHTTPEmitter(*hubURL, log, m)
	engine := objstore.New(store, objstore.WithEmitter(emitter), objstore.WithLogger(log))

	genesis := objstore.NewGenesis(store, log)
	if _, statErr := os.Stat(root); statErr == nil {
		if _, loadErr := genesis.Load(ctx, root); loadErr != nil {
			log.WithError(loadErr).Error("load genesis")
			return exitGenesisError
		}
	}

	limiter := ratelimit.New(ratelimit.DefaultConfig())
	srv := httpapi.NewServer(engine, log,
		httpapi.WithGenesis(genesis, root),
		httpapi.WithExports(exportStore),
		httpapi.WithMetrics(m),
		httpapi.WithRateLimit(limiter),
		httpapi.WithVersion("0.1.0"),
	)

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(map[string]any{"addr": *addr, "storage": *storageType}).Info("objstored listening")
		errCh <- httpServer.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case serveErr := <-errCh:
		if serveErr != nil && serveErr != http.ErrServerClosed {
			log.WithError(serveErr).Error("objstored terminated unexpectedly")
			return exitStorageError
		}
	case <-sigCh:
		log.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("graceful shutdown failed")
		}
	}
	return exitOK
}
