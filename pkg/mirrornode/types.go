package mirrornode

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// TokenResponse GET /tokens/{id}
type TokenResponse struct {
	TokenID           string   `json:"token_id"`
	Name              string   `json:"name"`
	Symbol            string   `json:"symbol"`
	Decimals          FlexUint `json:"decimals"`            // 镜像节点返回字符串 "8"
	TotalSupply       string   `json:"total_supply"`        // 原始单位
	TreasuryAccountID string   `json:"treasury_account_id"` // 链上登记的 treasury
	Type              string   `json:"type"`                // FUNGIBLE_COMMON / NON_FUNGIBLE_UNIQUE

	Raw json.RawMessage `json:"-"`
}

type Links struct {
	Next string `json:"next"`
}

// Balance 单个持有者余额，原始整数保持字符串精度
type Balance struct {
	Account string      `json:"account"`
	Balance json.Number `json:"balance"`
}

// BalancesResponse GET /tokens/{id}/balances
type BalancesResponse struct {
	Timestamp string    `json:"timestamp"`
	Balances  []Balance `json:"balances"`
	Links     Links     `json:"links"`
}

type TokenTransfer struct {
	TokenID    string      `json:"token_id"`
	Account    string      `json:"account"`
	Amount     json.Number `json:"amount"`
	IsApproval bool        `json:"is_approval"`
}

type Transaction struct {
	ConsensusTimestamp string          `json:"consensus_timestamp"` // "seconds.nanos"
	TransactionID      string          `json:"transaction_id"`
	Name               string          `json:"name"`
	Result             string          `json:"result"`
	MemoBase64         string          `json:"memo_base64"`
	ChargedTxFee       int64           `json:"charged_tx_fee"` // tinybar
	TokenTransfers     []TokenTransfer `json:"token_transfers"`
}

// TransactionsResponse GET /transactions
type TransactionsResponse struct {
	Transactions []Transaction `json:"transactions"`
	Links        Links         `json:"links"`
}

// FlexUint 兼容 "8" 和 8 两种写法
type FlexUint uint32

func (f *FlexUint) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return fmt.Errorf("invalid decimals %q: %w", s, err)
	}
	*f = FlexUint(v)
	return nil
}
