package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hookrelay/hookrelay/internal/config"
	"github.com/hookrelay/hookrelay/internal/db"
	"github.com/hookrelay/hookrelay/internal/kafka"
	"github.com/hookrelay/hookrelay/internal/logger"
	"github.com/hookrelay/hookrelay/internal/metrics"
	"github.com/hookrelay/hookrelay/internal/queue"
	"github.com/hookrelay/hookrelay/internal/repository"
	"github.com/hookrelay/hookrelay/internal/secrets"
	"github.com/hookrelay/hookrelay/internal/sender"
	workerPkg "github.com/hookrelay/hookrelay/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var deliverCmd = &cobra.Command{
	Use:   "deliver",
	Short: "Run delivery worker (signed HTTP callbacks + retry scheduling)",
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1) load config
		cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger.Init(cfg.Log.Level)
		metrics.MustRegister(prometheus.DefaultRegisterer)

		// sanity on retry policy
		if cfg.Delivery.MaxRetries <= 0 || cfg.Delivery.BackoffBase <= 0 {
			return fmt.Errorf("invalid retry policy: max_retries=%d backoff_base=%s",
				cfg.Delivery.MaxRetries, cfg.Delivery.BackoffBase)
		}

		// 2) DB connection (MySQL)
		dbx, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
			PingTimeout:     cfg.MySQL.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer dbx.Close()

		// 3) redis (retry delay set)
		rds, err := db.NewRedisClient(db.RedisOpts{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.DialTimeout,
		})
		if err != nil {
			return fmt.Errorf("redis connect: %w", err)
		}
		defer func() { _ = rds.Close() }()

		// 4) repositories
		eventsRepo := repository.NewEventsRepository(dbx)
		endpointsRepo := repository.NewEndpointsRepository(dbx)
		deliveriesRepo := repository.NewDeliveriesRepository(dbx)

		// 5) secrets + outbound sender
		box, err := secrets.NewBox(cfg.Secrets.Key)
		if err != nil {
			return fmt.Errorf("secrets box: %w", err)
		}

		breakers := sender.NewBreakerRegistry(cfg.Delivery.Breaker.FailThreshold, cfg.Delivery.Breaker.OpenFor)
		poster := sender.New(sender.Config{
			Timeout:           cfg.Delivery.Timeout,
			RequireHTTPS:      cfg.Delivery.RequireHTTPS,
			AllowedDomains:    cfg.Delivery.AllowedDomains,
			TimestampHeader:   cfg.Delivery.Headers.Timestamp,
			IdempotencyHeader: cfg.Delivery.Headers.Idempotency,
			SignatureHeader:   cfg.Delivery.Headers.Signature,
		}, breakers)

		// 6) kafka consumer
		groupID := cfg.Kafka.GroupID
		if groupID == "" {
			groupID = "hookrelay"
		}
		consumer := kafka.NewConsumerFromConfig(kafka.Config{
			Brokers:        cfg.Kafka.Brokers,
			Topic:          queue.TopicDeliver,
			GroupID:        groupID + "-deliver",
			MinBytes:       cfg.Kafka.MinBytes,
			MaxBytes:       cfg.Kafka.MaxBytes,
			CommitInterval: time.Duration(cfg.Kafka.CommitInterval) * time.Millisecond,
		})
		defer consumer.Close()

		w := workerPkg.NewDeliverer(
			consumer,
			eventsRepo,
			endpointsRepo,
			deliveriesRepo,
			poster,
			box,
			queue.NewRetryScheduler(rds),
		)

		// tune knobs
		if cfg.Worker.WorkerCount > 0 {
			w.Workers = cfg.Worker.WorkerCount
		}
		w.MaxRetries = cfg.Delivery.MaxRetries
		w.BackoffBase = cfg.Delivery.BackoffBase
		w.BackoffJitter = cfg.Delivery.BackoffJitter

		// 7) graceful shutdown
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Printf(">> deliver worker started topic=%s group=%s workers=%d maxRetries=%d",
			queue.TopicDeliver, groupID+"-deliver", w.Workers, w.MaxRetries)

		return w.Run(ctx)
	},
}
