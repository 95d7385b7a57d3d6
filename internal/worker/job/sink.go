package job

import (
	"context"
	"time"

	"token-analyzer/internal/worker/model"
	"token-analyzer/internal/worker/writer"
)

// WriterSink 把持有者与转账转成表模型后交给异步写入器
type WriterSink struct {
	holders   []*writer.AsyncBatchWriter[model.TokenHolder]
	transfers []*writer.AsyncBatchWriter[model.TokenTransfer]
}

func NewWriterSink() *WriterSink {
	return &WriterSink{}
}

func (s *WriterSink) AddHolderWriter(w *writer.AsyncBatchWriter[model.TokenHolder]) *WriterSink {
	s.holders = append(s.holders, w)
	return s
}

func (s *WriterSink) AddTransferWriter(w *writer.AsyncBatchWriter[model.TokenTransfer]) *WriterSink {
	s.transfers = append(s.transfers, w)
	return s
}

// Empty 没有任何下游时不必挂到分析器上
func (s *WriterSink) Empty() bool {
	return len(s.holders) == 0 && len(s.transfers) == 0
}

func (s *WriterSink) OnHolders(tokenID string, holders []model.Holder, at time.Time) {
	if len(s.holders) == 0 {
		return
	}
	rows := make([]model.TokenHolder, 0, len(holders))
	for _, h := range holders {
		rows = append(rows, *model.NewTokenHolder(tokenID, h, at))
	}
	for _, w := range s.holders {
		w.SubmitAll(rows)
	}
}

func (s *WriterSink) OnTransfers(tokenID string, records []model.TransferRecord, treasury string, at time.Time) {
	if len(s.transfers) == 0 {
		return
	}
	rows := make([]model.TokenTransfer, 0, len(records))
	for _, r := range records {
		rows = append(rows, *model.NewTokenTransfer(tokenID, r, treasury, at))
	}
	for _, w := range s.transfers {
		w.SubmitAll(rows)
	}
}

func (s *WriterSink) Start(ctx context.Context) {
	for _, w := range s.holders {
		w.Start(ctx)
	}
	for _, w := range s.transfers {
		w.Start(ctx)
	}
}

// Close 等待缓冲数据写完
func (s *WriterSink) Close() {
	for _, w := range s.holders {
		w.Close()
	}
	for _, w := range s.transfers {
		w.Close()
	}
}
