package consumer

import (
	"context"

	"github.com/bytedance/sonic"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"token-analyzer/internal/worker/config"
	"token-analyzer/internal/worker/job"
	"token-analyzer/internal/worker/monitor"
)

// AnalyzeRequest 请求分析的消息体，与 POST /analyze 相同
type AnalyzeRequest struct {
	TokenID string `json:"tokenId"`
}

// AnalyzeConsumer 从请求 topic 读取 {tokenId}，交给运行管理器启动或附着
type AnalyzeConsumer struct {
	*Consumer
	topic  string
	runs   job.Starter
	logger *zap.Logger
}

func NewAnalyzeConsumer(cfg config.KafkaConfig, runs job.Starter, logger *zap.Logger) *AnalyzeConsumer {
	return &AnalyzeConsumer{
		Consumer: NewConsumer(cfg, logger, cfg.TopicRequests),
		topic:    cfg.TopicRequests,
		runs:     runs,
		logger:   logger,
	}
}

func (c *AnalyzeConsumer) ID() string {
	return "analyze_requests"
}

func (c *AnalyzeConsumer) Run(ctx context.Context) {
	c.logger.Info("Analyze request consumer started", zap.String("topic", c.topic))
	c.Loop(ctx, c)
}

// HandleMessage 坏消息只记录日志，不阻塞后续消费
func (c *AnalyzeConsumer) HandleMessage(ctx context.Context, msg kafka.Message) {
	monitor.KafkaMessagesReceived.WithLabelValues(msg.Topic).Inc()

	var req AnalyzeRequest
	if err := sonic.Unmarshal(msg.Value, &req); err != nil {
		c.logger.Warn("Invalid analyze request", zap.ByteString("value", msg.Value), zap.Error(err))
		return
	}
	snap, err := c.runs.StartOrAttach(req.TokenID)
	if err != nil {
		c.logger.Warn("Rejected analyze request", zap.String("token_id", req.TokenID), zap.Error(err))
		return
	}
	c.logger.Info("Analyze request accepted",
		zap.String("token_id", req.TokenID),
		zap.String("status", string(snap.Status)),
		zap.Int64("offset", msg.Offset),
	)
}
