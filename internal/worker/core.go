package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"token-analyzer/internal/worker/api"
	"token-analyzer/internal/worker/config"
	"token-analyzer/internal/worker/consumer"
	"token-analyzer/internal/worker/job"
	"token-analyzer/internal/worker/monitor"
	"token-analyzer/internal/worker/repository"
)

type Core struct {
	cfg       config.Config
	tl        *zap.Logger
	repo      repository.Repository
	pipeline  *Pipeline
	runs      *job.RunManager
	api       *api.Server
	scheduler *job.Scheduler
	consumers []consumer.KafkaConsumer
	metrics   *monitor.MetricsServer

	cancelRun context.CancelFunc
}

func New(cfg config.Config, logger *zap.Logger) (*Core, error) {
	// 初始化repo
	repo, err := repository.New(cfg, logger)
	if err != nil {
		return nil, err
	}

	pipeline, err := NewPipeline(cfg, repo, logger)
	if err != nil {
		_ = repo.Close()
		return nil, err
	}

	// 运行不跟随单个请求的 context，Stop 时统一取消
	runCtx, cancelRun := context.WithCancel(context.Background())
	var runOpts []job.RunManagerOption
	if cfg.Redis.Enable && repo.GetRDB() != nil {
		runOpts = append(runOpts, job.WithProgressStore(job.NewRedisProgressStore(repo.GetRDB(), cfg.Redis.ProgressTTL)))
	}
	runs := job.NewRunManager(runCtx, pipeline.Analyzer, job.RunManagerConfig{StatusTTL: cfg.Analysis.StatusTTL}, logger, runOpts...)

	// 初始化作业调度器
	scheduler := job.NewScheduler(logger)
	if cfg.Schedule.Enable && len(cfg.Schedule.Tokens) > 0 {
		refresh := job.NewRefresh(runs, cfg.Schedule.Tokens, logger)
		scheduler.RegisterJob("token_refresh", cfg.Schedule.Interval, refresh.Run)
	}

	// 数据库存储每小时清理超过保留期的转账
	if pruner, ok := pipeline.Store.(job.TransferPruner); ok && cfg.Analysis.RetentionDays > 0 {
		cleanup := job.NewTransactionCleanup(pruner, time.Duration(cfg.Analysis.RetentionDays)*24*time.Hour, logger)
		scheduler.RegisterJob("transaction_cleanup", time.Hour, cleanup.Run)
	}

	// 初始化消费者
	var consumers []consumer.KafkaConsumer
	if cfg.Kafka.Enable && len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.TopicRequests != "" {
		consumers = append(consumers, consumer.NewAnalyzeConsumer(cfg.Kafka, runs, logger))
	}

	return &Core{
		cfg:       cfg,
		tl:        logger,
		repo:      repo,
		pipeline:  pipeline,
		runs:      runs,
		api:       api.NewServer(cfg.Server, runs, pipeline.Store, logger),
		scheduler: scheduler,
		consumers: consumers,
		metrics:   monitor.NewMetricsServer(cfg.Monitor, logger),
		cancelRun: cancelRun,
	}, nil
}

func (c *Core) Start(ctx context.Context) {
	c.tl.Info("Starting analyzer core...")
	// 启动监控服务
	c.metrics.Run()

	// 写入器只在 Stop 时关闭，保证排队的数据刷完
	c.pipeline.Start(context.Background())
	c.api.Run()

	// 启动消费者
	for _, cons := range c.consumers {
		go cons.Run(ctx)
	}

	// 启动调度器
	c.scheduler.Start(ctx)
	c.tl.Info("Analyzer started successfully", zap.String("addr", c.cfg.Server.Addr))

	// 等待外部关闭信号
	<-ctx.Done()
	c.tl.Info("Shutting down analyzer due to context cancellation...")
}

// Stop 优雅关闭：先停入口，再等进行中的运行，最后刷写下游
func (c *Core) Stop(ctx context.Context) {
	c.tl.Info("Stopping analyzer core...")

	if err := c.api.Stop(ctx); err != nil {
		c.tl.Warn("API server shutdown", zap.Error(err))
	}
	for _, cons := range c.consumers {
		if err := cons.Stop(); err != nil {
			c.tl.Warn("Consumer stop", zap.String("consumer", cons.ID()), zap.Error(err))
		}
	}
	c.scheduler.Stop(ctx)

	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := c.runs.Wait(waitCtx); err != nil {
		c.tl.Warn("Cancelling unfinished analyses", zap.Int("ongoing", len(c.runs.Ongoing())), zap.Error(err))
	}
	cancel()
	c.cancelRun()
	if err := c.runs.Wait(ctx); err != nil {
		c.tl.Error("Analyses did not stop, skipping writer flush", zap.Error(err))
	} else {
		c.pipeline.Close()
	}

	// 停止 Prometheus 监控服务
	_ = c.metrics.Stop(ctx)

	_ = c.repo.Close()
	c.tl.Info("Analyzer core stopped.")
}
