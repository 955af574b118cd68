package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/toastysunday/api/internal/config"
	"github.com/toastysunday/api/internal/database"
	"github.com/toastysunday/api/internal/eventlog"
	"github.com/toastysunday/api/internal/events"
	"github.com/toastysunday/api/internal/menu"
	"github.com/toastysunday/api/internal/order"
	"github.com/toastysunday/api/internal/payment"
	"github.com/toastysunday/api/internal/router"
	"github.com/toastysunday/api/internal/service"
	"github.com/toastysunday/api/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		logrus.WithError(err).Fatal("server stopped")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ConfigureLogger(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	if cfg.AutoMigrate {
		if err := database.MigrateUp(cfg.DatabaseURL); err != nil {
			return err
		}
		logrus.Info("database migrations applied")
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	// Menu
	catalog, err := menu.Load(cfg.MenuPath)
	if err != nil {
		return fmt.Errorf("load menu: %w", err)
	}
	logrus.WithField("path", cfg.MenuPath).Info("menu loaded")

	// Event fan-out: admin WebSocket feed, plus the kitchen queue when configured
	hub := ws.NewHub()
	go hub.Run(ctx)
	publisher := events.Multi{hub}

	if cfg.RabbitMQURL != "" {
		amqpPub, err := events.NewAMQPPublisher(cfg.RabbitMQURL, cfg.EventsQueue)
		if err != nil {
			return fmt.Errorf("connect rabbitmq: %w", err)
		}
		defer amqpPub.Close()
		publisher = append(publisher, amqpPub)
		logrus.WithField("queue", cfg.EventsQueue).Info("publishing order events to rabbitmq")
	}

	var processed eventlog.Log = eventlog.Nop{}
	if cfg.RedisURL != "" {
		client, err := eventlog.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		processed = eventlog.NewRedis(client, eventlog.DefaultTTL)
		logrus.Info("webhook de-duplication enabled")
	}

	// Services
	queries := database.New(pool)
	newStore := func(db database.DBTX) service.OrderStore {
		return database.New(db)
	}
	pricer := order.Pricer{Catalog: catalog, MaxCost: cfg.MaxOrderCost}
	orderService := service.NewOrderService(queries, pool, newStore, pricer, cfg.OrderWindow, publisher)

	stripe := payment.NewStripe(payment.StripeConfig{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		BaseURL:       cfg.StripeBaseURL,
	})
	paymentService := service.NewPaymentService(queries, pool, newStore, stripe, cfg.Currency, cfg.MaxOrderCost, publisher)

	r := router.New(cfg, router.Dependencies{
		Catalog:   catalog,
		Accounts:  queries,
		Orders:    orderService,
		Payments:  paymentService,
		Verifier:  stripe,
		Processed: processed,
		Hub:       hub,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.WithFields(logrus.Fields{
			"port":   cfg.Port,
			"window": cfg.OrderWindow.String(),
		}).Info("starting server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logrus.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
