package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hookrelay/hookrelay/internal/config"
	"github.com/hookrelay/hookrelay/internal/db"
	"github.com/hookrelay/hookrelay/internal/kafka"
	"github.com/hookrelay/hookrelay/internal/logger"
	"github.com/hookrelay/hookrelay/internal/queue"
	workerPkg "github.com/hookrelay/hookrelay/internal/worker"
	"github.com/spf13/cobra"
)

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run retry scheduler (move due retries back to the deliver topic)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger.Init(cfg.Log.Level)

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

		producer := kafka.NewProducer(cfg.Kafka.Brokers)
		defer producer.Close()

		w := workerPkg.NewSchedulerWorker(queue.NewRetryScheduler(rds), producer)
		if cfg.Scheduler.PollInterval > 0 {
			w.PollInterval = cfg.Scheduler.PollInterval
		}
		if cfg.Scheduler.BatchSize > 0 {
			w.BatchSize = int64(cfg.Scheduler.BatchSize)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Printf(">> retry scheduler started poll=%s batch=%d", w.PollInterval, w.BatchSize)

		return w.Run(ctx)
	},
}
