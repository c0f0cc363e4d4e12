package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rewired-gh/pricewatch/internal/api"
	"github.com/rewired-gh/pricewatch/internal/config"
	"github.com/rewired-gh/pricewatch/internal/control"
	"github.com/rewired-gh/pricewatch/internal/discord"
	"github.com/rewired-gh/pricewatch/internal/kafka"
	"github.com/rewired-gh/pricewatch/internal/logger"
	"github.com/rewired-gh/pricewatch/internal/models"
	"github.com/rewired-gh/pricewatch/internal/monitor"
	"github.com/rewired-gh/pricewatch/internal/notify"
	"github.com/rewired-gh/pricewatch/internal/settings"
	"github.com/rewired-gh/pricewatch/internal/storage"
	"github.com/rewired-gh/pricewatch/internal/stream"
	"github.com/rewired-gh/pricewatch/internal/telegram"
)

var configPath = flag.String("config", "", "Path to optional configuration file")

func main() {
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("Failed to load .env: %v", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	if *configPath != "" {
		logger.Info("Configuration loaded from %s", *configPath)
	}

	watchDefaults, err := cfg.WatchDefaults()
	if err != nil {
		logger.Fatal("Invalid watch defaults: %v", err)
	}

	db, err := storage.New(cfg.Storage.MaxAlerts, cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	store, err := settings.Load(db, watchDefaults)
	if err != nil {
		logger.Fatal("Failed to load watch settings: %v", err)
	}

	sinks := notify.Multi{{
		Name:     "discord",
		Notifier: discord.NewWebhook(cfg.Discord.WebhookURL, cfg.Discord.Username, cfg.Discord.Timeout),
	}}

	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		logger.Info("Telegram client initialized successfully")
		if cfg.Telegram.Alerts {
			sinks = append(sinks, notify.Sink{Name: "telegram", Notifier: telegramClient})
		}
	} else {
		logger.Debug("Telegram commands disabled")
	}

	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() {
			if err := producer.Close(); err != nil {
				logger.Error("Failed to close Kafka producer: %v", err)
			}
		}()
		sinks = append(sinks, notify.Sink{Name: "kafka", Notifier: producer})
		logger.Info("Publishing alerts to Kafka topic %s", cfg.Kafka.Topic)
	}

	dispatcher := notify.NewDispatcher(sinks, db, notify.DispatcherConfig{
		QueueSize:   cfg.Notifier.QueueSize,
		SendTimeout: cfg.Notifier.SendTimeout,
		MinInterval: cfg.Notifier.MinInterval,
		Burst:       cfg.Notifier.Burst,
	})

	mon := monitor.New(store, dispatcher)
	sup := stream.New(
		stream.Config{
			URL: cfg.Feed.URL,
			Backoff: stream.Backoff{
				Base:        cfg.Feed.BackoffBase,
				Max:         cfg.Feed.BackoffMax,
				CapExponent: cfg.Feed.BackoffCapExponent,
			},
			ReadTimeout:  cfg.Feed.ReadTimeout,
			PingInterval: cfg.Feed.PingInterval,
		},
		stream.WebsocketDialer{HandshakeTimeout: cfg.Feed.HandshakeTimeout},
		store,
		mon,
	)
	store.OnReplace(func(models.WatchConfig) { sup.Resubscribe() })

	svc := control.NewService(store, sup, dispatcher)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatcher.Start(ctx)

	if telegramClient != nil {
		telegramClient.ListenForCommands(ctx, svc)
	}

	var wg sync.WaitGroup
	if cfg.API.Enabled {
		srv := api.NewServer(cfg.API.Addr, api.SetupRoutes(api.NewHandler(svc, db)))
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("Admin API listening on %s", cfg.API.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Admin API stopped: %v", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Admin API shutdown: %v", err)
			}
		}()
	}

	logger.Info("Starting price watcher: %s", store.Current())

	if err := sup.Run(ctx); err != nil {
		logger.Error("Stream supervisor failed: %v", err)
	}

	logger.Info("Shutdown signal received, cleaning up...")
	stop()
	dispatcher.Wait()
	wg.Wait()
	logger.Info("Service stopped")
}
