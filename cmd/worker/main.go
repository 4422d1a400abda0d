package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kinship-crm/kinship/internal/bootstrap"
	"github.com/kinship-crm/kinship/internal/queue"
	"github.com/kinship-crm/kinship/internal/scheduler"
	"github.com/kinship-crm/kinship/internal/util"
	"github.com/kinship-crm/kinship/pkg/ai"
	"github.com/kinship-crm/kinship/pkg/leaselock"
	"github.com/kinship-crm/kinship/pkg/logger"
	"github.com/kinship-crm/kinship/pkg/logger/console"
	"github.com/kinship-crm/kinship/pkg/relation"
	"github.com/kinship-crm/kinship/pkg/store/pgx"
)

// meteredJobs logs the model usage of every queued job.
type meteredJobs struct {
	queue.Jobs
	client ai.Client
}

func (m meteredJobs) DescribePhoto(ctx context.Context, id int64) error {
	defer m.report("describe photo")
	return m.Jobs.DescribePhoto(ctx, id)
}

func (m meteredJobs) EmbedPerson(ctx context.Context, id int64) error {
	defer m.report("embed person")
	return m.Jobs.EmbedPerson(ctx, id)
}

func (m meteredJobs) report(job string) {
	if m.client == nil {
		return
	}
	metrics := m.client.GetMetrics()
	logger.Info(
		"[AI] metrics",
		"job", job,
		"input_tokens", metrics.InputTokens,
		"output_tokens", metrics.OutputTokens,
		"total_tokens", metrics.TotalTokens,
		"duration", (time.Duration(metrics.DurationMs) * time.Millisecond).String(),
	)
	m.client.ResetMetrics()
}

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  util.GetEnvBool("DEBUG", false),
		JSON:   util.GetEnv("LOG_FORMAT") == "json",
		Prefix: "worker",
	})
	logger.Init(consoleLogger)

	// database
	dbURL := util.GetEnv("DATABASE_URL")
	if dbURL == "" {
		logger.Fatal("DATABASE_URL is required")
	}
	pool, err := bootstrap.Pool(ctx, dbURL)
	if err != nil {
		logger.Fatal("Unable to connect to database", "err", err)
	}
	defer pool.Close()
	st := pgx.New(pool)
	relations := relation.NewService(st)

	// object storage, read by the photo describer
	bucket, err := bootstrap.Bucket(ctx, "")
	if err != nil {
		logger.Fatal("Failed to create object storage client", "err", err)
	}

	client, err := bootstrap.AIClient()
	if err != nil {
		logger.Fatal("Could not create AI client", "err", err)
	}
	assistant := bootstrap.Assist(st, relations, client, bucket)

	// periodic jobs
	owner, _ := os.Hostname()
	sched := scheduler.New(leaselock.New(pool), owner)
	jobs := []scheduler.Job{
		scheduler.SweepJob(relations, util.GetEnvString("SWEEP_SCHEDULE", "@every 15m")),
	}
	if client != nil {
		jobs = append(jobs, scheduler.EmbedJob(assistant, util.GetEnvString("EMBED_SCHEDULE", "@hourly"), 100))
	}
	for _, job := range jobs {
		if err := sched.Add(job); err != nil {
			logger.Fatal("Failed to schedule job", "job", job.Name, "err", err)
		}
	}
	sched.Start(ctx)
	defer sched.Stop()

	// queue consumer
	cfg, ok := bootstrap.QueueConfig()
	if !ok {
		logger.Warn("RABBITMQ_HOST not set, only scheduled jobs run")
		<-ctx.Done()
		logger.Info("Shutdown signal received, exiting...")
		return
	}
	conn, err := queue.Dial(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", "err", err)
	}
	defer conn.Close()

	if err := queue.Consume(ctx, conn, meteredJobs{Jobs: assistant, client: client}); err != nil {
		sched.Stop()
		logger.Fatal("Consumer stopped", "err", err)
	}
	logger.Info("Shutdown signal received, exiting...")
}
