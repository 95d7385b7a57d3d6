package transfer

import (
	"context"

	"go.uber.org/zap"

	"token-analyzer/internal/worker/model"
	"token-analyzer/internal/worker/writer"
	"token-analyzer/internal/worker/writer/holder"
	"token-analyzer/pkg/elasticsearch"
	"token-analyzer/pkg/utils"
)

type ESTransferWriter struct {
	esClient holder.BulkWriter
	logger   *zap.Logger
	index    string
}

func NewESTransferWriter(esClient holder.BulkWriter, logger *zap.Logger, index string) writer.BatchWriter[model.TokenTransfer] {
	return &ESTransferWriter{esClient: esClient, logger: logger, index: index}
}

// BWrite 以 tokenId_transactionId 为文档 ID，重复写入是幂等的
func (w *ESTransferWriter) BWrite(ctx context.Context, transfers []model.TokenTransfer) error {
	if len(transfers) == 0 {
		return nil
	}

	operations := make([]elasticsearch.BulkOperation, 0, len(transfers))
	for i := range transfers {
		t := &transfers[i]
		operations = append(operations, elasticsearch.BulkOperation{
			Action: "index",
			Index:  w.index,
			ID:     utils.TransferDocID(t.TokenID, t.TransactionID),
			Document: map[string]interface{}{
				"token_id":          t.TokenID,
				"transaction_id":    t.TransactionID,
				"transfer_time":     t.TransferTime,
				"sender_account":    t.SenderAccount,
				"sender_amount":     t.SenderAmount.String(),
				"receiver_account":  t.ReceiverAccount,
				"receiver_amount":   t.ReceiverAmount.String(),
				"token_symbol":      t.TokenSymbol,
				"memo":              t.Memo,
				"fee_hbar":          t.FeeHbar.String(),
				"involves_treasury": t.InvolvesTreasury,
			},
		})
	}
	return w.esClient.BulkWrite(ctx, operations)
}

func (w *ESTransferWriter) Close() error {
	return nil
}
