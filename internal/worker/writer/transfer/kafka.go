package transfer

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"token-analyzer/internal/worker/model"
	"token-analyzer/internal/worker/writer"
)

const retryCount = 3

// MessageWriter kafka.Writer 的写入子集
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaTransferWriter 把新发现的转账作为事件发布，key 为 token id
type KafkaTransferWriter struct {
	mq    MessageWriter
	tl    *zap.Logger
	topic string
}

func NewKafkaTransferWriter(mq MessageWriter, tl *zap.Logger, topic string) writer.BatchWriter[model.TokenTransfer] {
	return &KafkaTransferWriter{mq: mq, tl: tl, topic: topic}
}

func (w *KafkaTransferWriter) BWrite(ctx context.Context, transfers []model.TokenTransfer) error {
	if len(transfers) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(transfers))
	for i := range transfers {
		msg, err := w.marshalToMsg(&transfers[i])
		if err != nil {
			w.tl.Warn("Skip transfer event", zap.String("transaction_id", transfers[i].TransactionID), zap.Error(err))
			continue
		}
		msgs = append(msgs, msg)
	}

	var err error
	for attempt := 0; attempt < retryCount; attempt++ {
		writeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err = w.mq.WriteMessages(writeCtx, msgs...)
		cancel()
		if err == nil {
			return nil
		}
	}
	w.tl.Warn("MQ write failed, exceeded the maximum number of retries", zap.Int("messages", len(msgs)), zap.Error(err))
	return err
}

func (w *KafkaTransferWriter) Close() error {
	return nil
}

func (w *KafkaTransferWriter) marshalToMsg(t *model.TokenTransfer) (kafka.Message, error) {
	data, err := sonic.Marshal(t)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Topic: w.topic,
		Key:   []byte(t.TokenID),
		Value: data,
	}, nil
}
