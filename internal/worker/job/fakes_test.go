package job

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"token-analyzer/internal/worker/model"
	"token-analyzer/internal/worker/store"
	"token-analyzer/pkg/mirrornode"
)

// stubMirror 每个账户只有一页交易，持有者按 page=N 游标分页
type stubMirror struct {
	mu sync.Mutex

	token      *mirrornode.TokenResponse
	tokenErr   error
	balances   []*mirrornode.BalancesResponse
	balanceErr map[int]error
	txs        map[string][]mirrornode.Transaction
	txErr      map[string]error
	queries    []mirrornode.TxPageQuery
}

func (m *stubMirror) GetTokenInfo(ctx context.Context, tokenID string) (*mirrornode.TokenResponse, error) {
	if m.tokenErr != nil {
		return nil, m.tokenErr
	}
	return m.token, nil
}

func (m *stubMirror) GetBalancesPage(ctx context.Context, tokenID, cursor string) (*mirrornode.BalancesResponse, error) {
	idx := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor[len("page="):])
		if err != nil {
			return nil, err
		}
		idx = n
	}
	if err := m.balanceErr[idx]; err != nil {
		return nil, err
	}
	if idx >= len(m.balances) {
		return nil, fmt.Errorf("no page %d", idx)
	}
	return m.balances[idx], nil
}

func (m *stubMirror) GetTransactionsPage(ctx context.Context, q mirrornode.TxPageQuery) (*mirrornode.TransactionsResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, q)
	if err := m.txErr[q.Account]; err != nil {
		return nil, err
	}
	if q.Before != "" {
		return &mirrornode.TransactionsResponse{}, nil
	}
	return &mirrornode.TransactionsResponse{Transactions: m.txs[q.Account]}, nil
}

func holdersPage(next string, accounts ...string) *mirrornode.BalancesResponse {
	p := &mirrornode.BalancesResponse{}
	for i, a := range accounts {
		p.Balances = append(p.Balances, mirrornode.Balance{Account: a, Balance: json.Number(strconv.Itoa((i + 1) * 100))})
	}
	if next != "" {
		p.Links.Next = "/api/v1/tokens/0.0.1234/balances?" + next
	}
	return p
}

// payment 一笔 from -> to 的转账，可追加更多接收方
func payment(ts, id, from string, amount int64, to ...string) mirrornode.Transaction {
	tx := mirrornode.Transaction{ConsensusTimestamp: ts, TransactionID: id, ChargedTxFee: 84000}
	tx.TokenTransfers = append(tx.TokenTransfers, mirrornode.TokenTransfer{
		TokenID: "0.0.1234", Account: from, Amount: json.Number(strconv.FormatInt(-amount*int64(len(to)), 10)),
	})
	for _, acc := range to {
		tx.TokenTransfers = append(tx.TokenTransfers, mirrornode.TokenTransfer{
			TokenID: "0.0.1234", Account: acc, Amount: json.Number(strconv.FormatInt(amount, 10)),
		})
	}
	return tx
}

type saveCall struct {
	mode  store.WriteMode
	count int
}

// recordingStore 在真实 CSV 存储外记录每次转账写入
type recordingStore struct {
	*store.CSVStore
	mu    sync.Mutex
	saves []saveCall
}

func (s *recordingStore) SaveTransfers(ctx context.Context, tokenID string, records []model.TransferRecord, mode store.WriteMode) (int, error) {
	s.mu.Lock()
	s.saves = append(s.saves, saveCall{mode: mode, count: len(records)})
	s.mu.Unlock()
	return s.CSVStore.SaveTransfers(ctx, tokenID, records, mode)
}

type recordingSink struct {
	mu        sync.Mutex
	holders   int
	transfers []model.TransferRecord
	treasury  string
}

func (s *recordingSink) OnHolders(tokenID string, holders []model.Holder, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holders += len(holders)
}

func (s *recordingSink) OnTransfers(tokenID string, records []model.TransferRecord, treasury string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transfers = append(s.transfers, records...)
	s.treasury = treasury
}
