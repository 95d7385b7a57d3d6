package consumer

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"token-analyzer/internal/worker/config"
)

// KafkaConsumer 接口
type KafkaConsumer interface {
	Run(ctx context.Context)
	Stop() error
	ID() string
}

// MessageHandler 解耦消息处理逻辑
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg kafka.Message)
}

// Reader kafka.Reader 的读取子集，测试中可替换
type Reader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Consumer 通用的限速消费循环
type Consumer struct {
	logger  *zap.Logger
	reader  Reader
	limiter *rate.Limiter
}

// NewConsumer 创建一个新的通用 Consumer 实例
func NewConsumer(conf config.KafkaConfig, logger *zap.Logger, topic string) *Consumer {
	return NewConsumerWithReader(newKafkaReader(conf, topic), logger, rate.Limit(50), 50)
}

func NewConsumerWithReader(reader Reader, logger *zap.Logger, limit rate.Limit, burst int) *Consumer {
	return &Consumer{
		logger:  logger,
		reader:  reader,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Loop 阻塞消费直到 ctx 结束
func (c *Consumer) Loop(ctx context.Context, handler MessageHandler) {
	for {
		select {
		case <-ctx.Done():
			c.logger.Warn("Closing Kafka consumer...")
			_ = c.reader.Close()
			return
		default:
		}

		// 等待令牌可用，实现速率限制
		if err := c.limiter.Wait(ctx); err != nil {
			continue
		}

		readCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		msg, err := c.reader.ReadMessage(readCtx)
		cancel()

		if err != nil {
			switch {
			case errors.Is(err, context.DeadlineExceeded):
				c.logger.Debug("Kafka consumer idle")
			case errors.Is(err, context.Canceled):
			default:
				c.logger.Warn("Kafka read error", zap.Error(err))
				time.Sleep(100 * time.Millisecond)
			}
			continue
		}

		handler.HandleMessage(ctx, msg)
	}
}

// Stop 停止消费者
func (c *Consumer) Stop() error {
	return c.reader.Close()
}

// 创建 Kafka Reader
func newKafkaReader(conf config.KafkaConfig, topic string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:                conf.Brokers,
		Topic:                  topic,
		GroupID:                conf.GroupID,
		StartOffset:            kafka.LastOffset,
		CommitInterval:         time.Second,
		QueueCapacity:          100,
		MinBytes:               1,
		MaxBytes:               1e6,
		ReadBatchTimeout:       500 * time.Millisecond,
		PartitionWatchInterval: 5 * time.Second,
	})
}
