package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"token-analyzer/internal/worker/config"
	"token-analyzer/internal/worker/job"
	"token-analyzer/internal/worker/model"
	"token-analyzer/internal/worker/monitor"
	"token-analyzer/internal/worker/repository"
	"token-analyzer/internal/worker/service"
	"token-analyzer/internal/worker/store"
	"token-analyzer/internal/worker/writer"
	"token-analyzer/internal/worker/writer/holder"
	"token-analyzer/internal/worker/writer/transfer"
	"token-analyzer/pkg/gateway"
	"token-analyzer/pkg/httpclient"
	"token-analyzer/pkg/mirrornode"
)

// Pipeline 一次分析需要的全部组件，服务进程与命令行共用
type Pipeline struct {
	HTTP     *httpclient.HTTPClient
	Mirror   *mirrornode.Client
	Store    store.Store
	Analyzer *job.Analyzer

	sink   *job.WriterSink
	logger *zap.Logger
}

// NewPipeline 按配置组装 镜像节点客户端 → 拉取器 → 存储 → 分析器
func NewPipeline(cfg config.Config, repo repository.Repository, logger *zap.Logger) (*Pipeline, error) {
	hc := httpclient.NewHTTPClient(httpclient.HTTPClientConfig{
		Timeout:   cfg.MirrorNode.Timeout,
		RateLimit: cfg.MirrorNode.RateLimit,
		UserAgent: cfg.MirrorNode.UserAgent,
	}, logger)

	rl := cfg.RateLimiting
	gw := gateway.New(gateway.Config{
		BaseDelay:          rl.MinRequestInterval,
		MaxDelay:           rl.GatewayMaxDelay,
		ThrottleMaxDelay:   rl.ThrottleMaxDelay,
		MaxThrottleRetries: rl.ThrottleMaxRetries,
	}, logger, gateway.WithThrottleHook(func(attempt int, d time.Duration) {
		monitor.MirrorThrottles.Inc()
		monitor.MirrorBackoffSeconds.Observe(d.Seconds())
	}))

	mirror := mirrornode.NewClient(mirrornode.Config{
		BaseURL:  cfg.MirrorNode.BaseURL,
		PageSize: rl.PageSize,
	}, hc, gw, logger)

	holders := service.NewHolderFetcher(mirror, service.HolderFetcherConfig{
		MaxRetries: cfg.MirrorNode.MaxRetries,
		RetryStep:  rl.HolderRetryStep,
		Strict:     cfg.Analysis.StrictHolders,
	}, logger)
	txs := service.NewTransactionFetcher(mirror, service.TransactionFetcherConfig{
		MaxRetries: cfg.MirrorNode.MaxRetries,
		BaseDelay:  rl.TxBackoffBase,
		MaxDelay:   rl.TxBackoffMax,
	}, logger)

	st, err := newStore(cfg, repo, logger)
	if err != nil {
		_ = hc.Close()
		return nil, err
	}

	sink := newSink(cfg, repo, logger)
	var opts []job.AnalyzerOption
	if !sink.Empty() {
		opts = append(opts, job.WithSinks(sink))
	}

	analyzer := job.NewAnalyzer(mirror, holders, txs, st, job.AnalyzerConfig{
		BatchSize:       rl.HolderBatchSize,
		ProcessingDelay: rl.ProcessingDelay,
		WindowDays:      cfg.Analysis.WindowDays,
		Incremental:     cfg.Analysis.Incremental,
		WriteMode:       store.ParseWriteMode(cfg.Analysis.TransactionWriteMode),
	}, logger, opts...)

	return &Pipeline{
		HTTP:     hc,
		Mirror:   mirror,
		Store:    st,
		Analyzer: analyzer,
		sink:     sink,
		logger:   logger,
	}, nil
}

func newStore(cfg config.Config, repo repository.Repository, logger *zap.Logger) (store.Store, error) {
	switch strings.ToLower(cfg.Storage.Backend) {
	case "", "csv":
		return store.NewCSVStore(cfg.Storage.BaseDir, logger), nil
	case "db":
		if repo == nil || repo.GetDB() == nil {
			return nil, errors.New("storage backend db requires a database connection")
		}
		st := store.NewDBStore(repo.GetDB(), logger)
		if cfg.Database.AutoMigrate {
			if err := st.AutoMigrate(); err != nil {
				return nil, fmt.Errorf("auto migrate: %w", err)
			}
		}
		return st, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}

// newSink 启用的 elasticsearch / kafka 下游各挂一个异步写入器
func newSink(cfg config.Config, repo repository.Repository, logger *zap.Logger) *job.WriterSink {
	sink := job.NewWriterSink()
	if repo == nil {
		return sink
	}

	if es := repo.GetES(); es != nil {
		esCfg := cfg.Elasticsearch
		sink.AddHolderWriter(writer.NewAsyncBatchWriter[model.TokenHolder](logger,
			holder.NewESHolderWriter(es, logger, esCfg.HoldersIndex), 500, 2*time.Second, "es_holders", 2))
		sink.AddTransferWriter(writer.NewAsyncBatchWriter[model.TokenTransfer](logger,
			transfer.NewESTransferWriter(es, logger, esCfg.TransfersIndex), 500, 2*time.Second, "es_transfers", 2))
	}
	if mq := repo.GetMQ(); mq != nil && cfg.Kafka.TopicTransfers != "" {
		sink.AddTransferWriter(writer.NewAsyncBatchWriter[model.TokenTransfer](logger,
			transfer.NewKafkaTransferWriter(mq, logger, cfg.Kafka.TopicTransfers), 200, time.Second, "kafka_transfers", 1))
	}
	return sink
}

// Start 启动异步写入器
func (p *Pipeline) Start(ctx context.Context) {
	p.sink.Start(ctx)
}

// Close 刷完缓冲后释放资源，数据库连接由 repository 负责
func (p *Pipeline) Close() {
	p.sink.Close()
	if _, ok := p.Store.(*store.CSVStore); ok {
		_ = p.Store.Close()
	}
	if err := p.HTTP.Close(); err != nil {
		p.logger.Warn("Failed to close http client", zap.Error(err))
	}
}
