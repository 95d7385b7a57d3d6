package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"token-analyzer/pkg/mirrornode"
)

// fakeMirror 按预设数据响应镜像节点请求
type fakeMirror struct {
	mu sync.Mutex

	token        *mirrornode.TokenResponse
	tokenErr     error
	balancePages []*mirrornode.BalancesResponse
	balanceErrs  map[int]error // 页号(从 0 开始) -> 返回的错误，只生效一次
	balanceCalls int
	cursors      []string

	txPages   map[string][]*mirrornode.TransactionsResponse
	txErrs    map[string][]error
	txQueries []mirrornode.TxPageQuery
}

func (f *fakeMirror) GetTokenInfo(ctx context.Context, tokenID string) (*mirrornode.TokenResponse, error) {
	if f.tokenErr != nil {
		return nil, f.tokenErr
	}
	return f.token, nil
}

func (f *fakeMirror) GetBalancesPage(ctx context.Context, tokenID, cursor string) (*mirrornode.BalancesResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balanceCalls++
	f.cursors = append(f.cursors, cursor)

	idx := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor[len("page="):])
		if err != nil {
			return nil, err
		}
		idx = n
	}
	if err, ok := f.balanceErrs[idx]; ok {
		delete(f.balanceErrs, idx)
		return nil, err
	}
	if idx >= len(f.balancePages) {
		return nil, fmt.Errorf("no page %d", idx)
	}
	return f.balancePages[idx], nil
}

func (f *fakeMirror) GetTransactionsPage(ctx context.Context, q mirrornode.TxPageQuery) (*mirrornode.TransactionsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txQueries = append(f.txQueries, q)

	if errs := f.txErrs[q.Account]; len(errs) > 0 {
		f.txErrs[q.Account] = errs[1:]
		if errs[0] != nil {
			return nil, errs[0]
		}
	}
	pages := f.txPages[q.Account]
	if len(pages) == 0 {
		return &mirrornode.TransactionsResponse{}, nil
	}
	f.txPages[q.Account] = pages[1:]
	return pages[0], nil
}

// makeBalancePages 生成若干页持有者，账户号连续递增
func makeBalancePages(sizes ...int) []*mirrornode.BalancesResponse {
	var pages []*mirrornode.BalancesResponse
	n := 1
	for i, size := range sizes {
		p := &mirrornode.BalancesResponse{}
		for j := 0; j < size; j++ {
			p.Balances = append(p.Balances, mirrornode.Balance{
				Account: fmt.Sprintf("0.0.%d", n),
				Balance: json.Number(strconv.Itoa(n * 100)),
			})
			n++
		}
		if i < len(sizes)-1 {
			p.Links.Next = fmt.Sprintf("/api/v1/tokens/0.0.1234/balances?page=%d", i+1)
		}
		pages = append(pages, p)
	}
	return pages
}

func transfer(token, account string, amount int64) mirrornode.TokenTransfer {
	return mirrornode.TokenTransfer{TokenID: token, Account: account, Amount: json.Number(strconv.FormatInt(amount, 10))}
}
