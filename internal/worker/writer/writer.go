package writer

import (
	"context"
)

// BatchWriter 下游批量写入，由 AsyncBatchWriter 攒批后调用。
// BWrite 返回错误时整批计入失败指标，不重试。
type BatchWriter[T any] interface {
	BWrite(ctx context.Context, batch []T) error
	Close() error
}
