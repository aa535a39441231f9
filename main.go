package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"diligencego/internal/api"
	"diligencego/internal/auth"
	"diligencego/internal/blob"
	"diligencego/internal/config"
	"diligencego/internal/logger"
	"diligencego/internal/notify"
	"diligencego/internal/redis"
	"diligencego/internal/report"
	"diligencego/internal/storage"
	"diligencego/internal/submission"
	"diligencego/internal/viewer"
	"diligencego/internal/worker"
)

func main() {
	cfgPath := os.Getenv("DILIGENCE_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	l := logger.New(cfg.Log.Level, cfg.Log.Format)
	defer l.Sync()

	dbType := cfg.BasicConfig.DBType
	l.Info("opening database", zap.String("db_type", dbType))
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		l.Fatal("open database", zap.Error(err))
	}
	defer db.Close()

	// Create necessary tables: users, submissions
	if err := storage.Migrate(db, dbType); err != nil {
		l.Fatal("migrate database", zap.Error(err))
	}

	var rdb *redis.Client
	var notifier viewer.Notifier = viewer.NewMemoryNotifier()
	if cfg.Redis.Enabled {
		rdb, err = redis.NewRedisClient(cfg)
		if err != nil {
			l.Fatal("create redis client", zap.Error(err))
		}
		defer rdb.Close()
		notifier = viewer.NewRedisNotifier(rdb)
	}

	ctx := context.Background()
	blobs, err := blob.New(ctx, cfg.Storage)
	if err != nil {
		l.Fatal("init blob storage", zap.Error(err))
	}
	local, _ := blobs.(*blob.LocalStore)

	chatModel, err := report.NewChatModel(ctx, cfg.Report, cfg.Providers)
	if err != nil {
		l.Fatal("init chat model", zap.Error(err))
	}
	docParser, err := report.NewDocumentParser(ctx)
	if err != nil {
		l.Fatal("init document parser", zap.Error(err))
	}
	genOpts := []report.Option{
		report.WithLogger(l.Named("report")),
		report.WithProvider(cfg.Report.Provider),
		report.WithDocumentParser(docParser),
	}
	if local != nil {
		loader, err := report.NewFileLoader(ctx, docParser)
		if err != nil {
			l.Fatal("init document loader", zap.Error(err))
		}
		genOpts = append(genOpts, report.WithDocumentLoader(loader, local))
	}
	generator := report.NewGenerator(chatModel, genOpts...)

	submissions := storage.NewSubmissionStore(db)
	subOpts := []submission.Option{
		submission.WithLogger(l.Named("submission")),
		submission.WithPublisher(notifier),
	}
	if cfg.BasicConfig.MaxWorkers > 0 {
		queue := worker.NewDispatcher(worker.Config{
			MinWorkers:  cfg.BasicConfig.MinWorkers,
			MaxWorkers:  cfg.BasicConfig.MaxWorkers,
			QueueSize:   cfg.BasicConfig.QueueSize,
			IdleTimeout: time.Duration(cfg.BasicConfig.WorkerIdleTimeout) * time.Minute,
		}, l.Named("worker"))
		defer queue.Stop()
		subOpts = append(subOpts, submission.WithQueue(queue))
	}
	mailer, err := notify.NewMailer(cfg.Mail)
	if err != nil {
		l.Fatal("init mailer", zap.Error(err))
	}
	if mailer != nil {
		subOpts = append(subOpts, submission.WithMailer(mailer))
	}
	submissionService := submission.NewService(submissions, blobs, generator, subOpts...)
	liveViewer := viewer.New(submissions, notifier, viewer.WithLogger(l.Named("viewer")))

	ttl := time.Duration(cfg.Auth.TokenTTLMinutes) * time.Minute
	authService := auth.NewService(storage.NewUserStore(db), rdb, cfg.Auth.JWTSecret, ttl)

	handlerOpts := []api.Option{
		api.WithLogger(l.Named("api")),
		api.WithMaxUploadBytes(int64(cfg.BasicConfig.MaxUploadMB) << 20),
	}
	if local != nil {
		handlerOpts = append(handlerOpts, api.WithLocalFiles(local))
	}
	handlers := api.NewHandler(submissionService, generator, liveViewer, authService, handlerOpts...)

	router := gin.New()
	router.Use(gin.Recovery(), api.RequestLogger(l.Named("http")), api.SecurityHeaders())
	handlers.RegisterRoutes(router)

	addr := cfg.BasicConfig.ServerAddress
	if addr == "" {
		addr = ":8090"
	}
	l.Info("listening", zap.String("addr", addr))
	if err := router.Run(addr); err != nil {
		l.Fatal("server stopped", zap.Error(err))
	}
}
