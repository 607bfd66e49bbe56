package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"stemdesk/config"
	"stemdesk/core/analyzer"
	"stemdesk/core/export"
	"stemdesk/core/extcmd"
	"stemdesk/core/intake"
	"stemdesk/core/pipeline"
	"stemdesk/core/stemmap"
	"stemdesk/core/transformer"
	"stemdesk/core/workspace"
	"stemdesk/db"
	"stemdesk/logger"
	"stemdesk/repository"
	"stemdesk/storage"
)

// Start wires up every component and runs the HTTP server until interrupted.
// All clients are constructed here and closed on shutdown; nothing connects
// lazily on first access.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogPath,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})

	gdb, err := db.Connect(cfg)
	if err != nil {
		logger.Fatal("connect database", logger.ErrorField(err))
	}
	defer db.Close(gdb)

	if err := db.Migrate(gdb); err != nil {
		logger.Fatal("migrate database", logger.ErrorField(err))
	}

	ws, err := workspace.New(cfg.UploadDir)
	if err != nil {
		logger.Fatal("prepare upload base directory", logger.ErrorField(err))
	}

	// Redis backs the cross-instance stage lease; without it the in-process
	// lock still guarantees single-flight within this server.
	var lock pipeline.StageLock = pipeline.NewMemoryLock()
	if cfg.RedisHost != "" {
		redisClient, redisErr := db.ConnectRedis(cfg)
		if redisErr != nil {
			logger.Fatal("connect redis", logger.ErrorField(redisErr))
		}
		defer redisClient.Close()
		lock = pipeline.NewRedisLock(redisClient, 2*cfg.StageTimeout)
		logger.Info("stage lease backed by redis")
	} else {
		logger.Warn("redis not configured, stage lease is process-local")
	}

	var mirror export.Mirror
	if cfg.MinioEnabled {
		bundleMirror, minioErr := storage.NewBundleMirror(cfg)
		if minioErr != nil {
			logger.Fatal("connect minio", logger.ErrorField(minioErr))
		}
		mirror = bundleMirror
		logger.Info("bundle mirror enabled", logger.String("bucket", cfg.MinioBucket))
	}

	runner := extcmd.NewRunner(cfg.AnalyzerPath, cfg.StageTimeout)
	cliAnalyzer := analyzer.NewCLIAnalyzer(runner)
	cliTransformer := transformer.NewCLITransformer(runner)

	uploadRepo := repository.NewMySQLUploadRepository(gdb)
	analysisRepo := repository.NewMySQLAnalysisRepository(gdb)
	stemmapRepo := repository.NewMySQLStemmapRepository(gdb)
	exportRepo := repository.NewMySQLExportRepository(gdb)

	hub := pipeline.NewHub()
	coordinator := pipeline.NewCoordinator(uploadRepo, analysisRepo, ws, cliAnalyzer, lock, hub)
	intakeSvc := intake.NewService(uploadRepo, ws, cfg.MaxFileBytes, cfg.MaxBatchSize)
	stemmapMgr := stemmap.NewManager(uploadRepo, stemmapRepo, exportRepo, ws, cliTransformer, lock, hub)
	exportMgr := export.NewManager(uploadRepo, exportRepo, ws, cliAnalyzer, lock, hub, mirror)

	apiHandler := NewAPIHandler(uploadRepo, analysisRepo, exportRepo,
		intakeSvc, coordinator, stemmapMgr, exportMgr, ws, cfg)

	router := newRouter(apiHandler)

	// Dashboard UI
	router.PathPrefix("/").Handler(http.FileServer(http.Dir(cfg.WebAppDir)))

	srv := &http.Server{
		Addr: cfg.ListenAddr,
		// Pipeline stages block the request until the external tool finishes,
		// so the write timeout must cover a full stage run.
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.StageTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
		Handler:      router,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", logger.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", logger.ErrorField(err))
		}
	}()

	<-stop
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", logger.ErrorField(err))
	}
	logger.Info("server stopped")
}

// newRouter registers the REST and websocket routes on a fresh mux router.
func newRouter(apiHandler *APIHandler) *mux.Router {
	router := mux.NewRouter()
	router.Use(corsMiddleware)

	router.HandleFunc("/uploads", apiHandler.UploadHandler).Methods(http.MethodPost)
	router.HandleFunc("/uploads", apiHandler.ListUploadsHandler).Methods(http.MethodGet)
	router.HandleFunc("/uploads/{uploadId}", apiHandler.GetUploadHandler).Methods(http.MethodGet)
	router.HandleFunc("/pipeline/{uploadId}/{stage}", apiHandler.PipelineHandler).Methods(http.MethodPost)
	router.HandleFunc("/stemmap/{uploadId}", apiHandler.GetStemmapHandler).Methods(http.MethodGet)
	router.HandleFunc("/stemmap/{uploadId}", apiHandler.PostStemmapHandler).Methods(http.MethodPost)
	router.HandleFunc("/export/{uploadId}", apiHandler.ExportHandler).Methods(http.MethodPost)
	router.HandleFunc("/download/{uploadId}/{bundleName}", apiHandler.DownloadHandler).Methods(http.MethodGet)
	router.HandleFunc("/audio/{uploadId}/{filename}", apiHandler.AudioHandler).Methods(http.MethodGet)
	router.HandleFunc("/ws/progress/{uploadId}", apiHandler.ProgressHandler).Methods(http.MethodGet)

	return router
}

// corsMiddleware allows the dashboard to be served from a different origin
// during development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
