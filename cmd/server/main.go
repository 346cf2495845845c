package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"littlefidan/internal/app"
	"littlefidan/internal/config"
	"littlefidan/internal/mailer"
	"littlefidan/internal/server"
	"littlefidan/internal/storage"
	"littlefidan/internal/util"
	"littlefidan/pkg/imagegen"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	objects, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
	if err != nil {
		log.Fatalf("failed to init object storage: %v", err)
	}

	var mail *mailer.Mailer
	if cfg.SMTPAddr != "" {
		sender, err := mailer.NewSMTPSender(cfg.SMTPAddr, cfg.SMTPFrom, cfg.SMTPUsername, cfg.SMTPPassword)
		if err != nil {
			log.Fatalf("failed to init smtp sender: %v", err)
		}
		mail = mailer.New(sender, cfg.StoreName)
	}

	var images *imagegen.Client
	if cfg.ImageAPIBaseURL != "" {
		images = imagegen.New(cfg.ImageAPIBaseURL, cfg.ImageAPIKey, cfg.ImageModel)
	}

	appCore, err := app.New(app.Config{
		DatabaseURL: cfg.DatabaseURL,
		JWTSecret:   cfg.JWTSecret,
		SessionTTL:  time.Duration(cfg.SessionTTLHours) * time.Hour,
		LibraryURL:  cfg.LibraryURL,
		Objects:     objects,
		Mailer:      mail,
		Images:      images,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:                appCore,
		WebhookSecret:      cfg.PaymentWebhookSecret,
		RedisAddr:          cfg.RedisAddr,
		RedisPassword:      cfg.RedisPassword,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("storefront server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
