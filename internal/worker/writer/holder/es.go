package holder

import (
	"context"

	"go.uber.org/zap"

	"token-analyzer/internal/worker/model"
	"token-analyzer/internal/worker/writer"
	"token-analyzer/pkg/elasticsearch"
	"token-analyzer/pkg/utils"
)

// BulkWriter elasticsearch.Client 的写入子集
type BulkWriter interface {
	BulkWrite(ctx context.Context, operations []elasticsearch.BulkOperation) error
}

type ESHolderWriter struct {
	esClient BulkWriter
	logger   *zap.Logger
	index    string
}

func NewESHolderWriter(esClient BulkWriter, logger *zap.Logger, index string) writer.BatchWriter[model.TokenHolder] {
	return &ESHolderWriter{
		esClient: esClient,
		logger:   logger,
		index:    index,
	}
}

// BWrite 以 tokenId_account 为文档 ID 覆盖写入
func (w *ESHolderWriter) BWrite(ctx context.Context, holders []model.TokenHolder) error {
	if len(holders) == 0 {
		return nil
	}

	operations := make([]elasticsearch.BulkOperation, 0, len(holders))
	for i := range holders {
		h := &holders[i]
		operations = append(operations, elasticsearch.BulkOperation{
			Action:   "index",
			Index:    w.index,
			ID:       utils.HolderDocID(h.TokenID, h.Account),
			Document: convertToESDoc(h),
		})
	}
	return w.esClient.BulkWrite(ctx, operations)
}

func (w *ESHolderWriter) Close() error {
	return nil
}

func convertToESDoc(h *model.TokenHolder) map[string]interface{} {
	balance, _ := h.Balance.Float64()
	return map[string]interface{}{
		"token_id":        h.TokenID,
		"account":         h.Account,
		"raw_balance":     h.RawBalance,
		"balance":         h.Balance.String(),
		"balance_numeric": balance,
		"is_treasury":     h.IsTreasury,
		"updated_at":      h.UpdatedAt,
	}
}
