package service

import (
	"context"

	"token-analyzer/pkg/mirrornode"
)

// MirrorNode 分析流程用到的镜像节点接口，*mirrornode.Client 实现了它
type MirrorNode interface {
	GetTokenInfo(ctx context.Context, tokenID string) (*mirrornode.TokenResponse, error)
	GetBalancesPage(ctx context.Context, tokenID, cursor string) (*mirrornode.BalancesResponse, error)
	GetTransactionsPage(ctx context.Context, q mirrornode.TxPageQuery) (*mirrornode.TransactionsResponse, error)
}
