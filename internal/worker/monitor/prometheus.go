package monitor

import "github.com/prometheus/client_golang/prometheus"

var (
	// MirrorThrottles 镜像节点 429/503 次数
	MirrorThrottles = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mirror_node_throttles_total",
			Help: "Total number of throttled responses from the mirror node.",
		},
	)
	MirrorBackoffSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mirror_node_backoff_seconds",
			Help:    "Backoff applied by the request gateway after a throttled response.",
			Buckets: []float64{0.1, 0.2, 0.5, 1, 2, 5, 10, 30},
		},
	)
	MirrorPageErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirror_node_page_errors_total",
			Help: "Pages that failed after retries, by resource.",
		},
		[]string{"resource"},
	)

	// AnalysisRuns 分析任务
	AnalysisRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_runs_total",
			Help: "Finished analysis runs by final status.",
		},
		[]string{"status"},
	)
	AnalysisActiveRuns = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "analysis_active_runs",
			Help: "Analysis runs currently in progress.",
		},
	)
	AnalysisDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "analysis_duration_seconds",
			Help:    "Wall time of a finished analysis run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)
	AnalysisBatches = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "analysis_batches_processed_total",
			Help: "Holder batches processed.",
		},
	)
	AnalysisHolders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_holders_processed_total",
			Help: "Holders processed, by result.",
		},
		[]string{"result"},
	)
	AnalysisTransfers = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "analysis_transfers_found_total",
			Help: "Unique transfer records discovered.",
		},
	)

	// KafkaMessagesReceived Kafka 消费相关
	KafkaMessagesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_received_total",
			Help: "Total number of messages received from Kafka.",
		},
		[]string{"topic"},
	)

	// AsyncWriterMessagesQueued AsyncWriter 指标
	AsyncWriterMessagesQueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "async_writer_messages_queued_total",
			Help: "Total number of messages queued to async writer.",
		},
		[]string{"writer_id"},
	)
	AsyncWriterMessagesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "async_writer_messages_dropped_total",
			Help: "Total number of messages dropped due to full queue.",
		},
		[]string{"writer_id"},
	)
	AsyncWriterBatchSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "async_writer_batch_size",
			Help:    "Number of items in each batch submitted to the writer.",
			Buckets: []float64{10, 25, 50, 100, 200, 500},
		},
		[]string{"writer_id"},
	)
	AsyncWriterFlushDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "async_writer_flush_duration_seconds",
			Help:    "Time taken to flush a batch.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.2, 0.5, 1.0, 2.0, 5.0},
		},
		[]string{"writer_id"},
	)
	AsyncWriterFlushErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "async_writer_flush_errors_total",
			Help: "Batches the underlying writer rejected.",
		},
		[]string{"writer_id"},
	)
	AsyncWriterItemsWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "async_writer_items_written_total",
			Help: "Total number of items successfully written by the async writer.",
		},
		[]string{"writer_id"},
	)
)

func init() {
	prometheus.MustRegister(
		// 镜像节点
		MirrorThrottles,
		MirrorBackoffSeconds,
		MirrorPageErrors,

		// 分析任务
		AnalysisRuns,
		AnalysisActiveRuns,
		AnalysisDuration,
		AnalysisBatches,
		AnalysisHolders,
		AnalysisTransfers,

		KafkaMessagesReceived,

		// async 写入指标
		AsyncWriterMessagesQueued,
		AsyncWriterMessagesDropped,
		AsyncWriterBatchSize,
		AsyncWriterFlushDuration,
		AsyncWriterFlushErrors,
		AsyncWriterItemsWritten,
	)
}
