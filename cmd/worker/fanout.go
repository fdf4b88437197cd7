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
	"github.com/hookrelay/hookrelay/internal/fanout"
	"github.com/hookrelay/hookrelay/internal/kafka"
	"github.com/hookrelay/hookrelay/internal/logger"
	"github.com/hookrelay/hookrelay/internal/metrics"
	"github.com/hookrelay/hookrelay/internal/queue"
	"github.com/hookrelay/hookrelay/internal/repository"
	workerPkg "github.com/hookrelay/hookrelay/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var fanoutCmd = &cobra.Command{
	Use:   "fanout",
	Short: "Run fanout worker (event -> per-endpoint deliveries)",
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1) load config
		cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger.Init(cfg.Log.Level)
		metrics.MustRegister(prometheus.DefaultRegisterer)

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

		// 3) repositories
		eventsRepo := repository.NewEventsRepository(dbx)
		endpointsRepo := repository.NewEndpointsRepository(dbx)
		deliveriesRepo := repository.NewDeliveriesRepository(dbx)

		// 4) kafka consumer + producer
		groupID := cfg.Kafka.GroupID
		if groupID == "" {
			groupID = "hookrelay"
		}
		consumer := kafka.NewConsumerFromConfig(kafka.Config{
			Brokers:        cfg.Kafka.Brokers,
			Topic:          queue.TopicFanout,
			GroupID:        groupID + "-fanout",
			MinBytes:       cfg.Kafka.MinBytes,
			MaxBytes:       cfg.Kafka.MaxBytes,
			CommitInterval: time.Duration(cfg.Kafka.CommitInterval) * time.Millisecond,
		})
		defer consumer.Close()

		producer := kafka.NewProducer(cfg.Kafka.Brokers)
		defer producer.Close()

		svc := fanout.New(eventsRepo, endpointsRepo, deliveriesRepo, queue.NewEnqueuer(producer))
		w := workerPkg.NewFanoutWorker(consumer, svc)

		// 5) graceful shutdown
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Printf(">> fanout worker started topic=%s group=%s", queue.TopicFanout, groupID+"-fanout")

		return w.Run(ctx)
	},
}
