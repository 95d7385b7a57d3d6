package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Holder 一个账户对某代币的当前持仓
type Holder struct {
	Account          string          `json:"account"`
	Balance          string          `json:"balance"` // 原始整数，字符串保存避免精度损失
	FormattedBalance decimal.Decimal `json:"formattedBalance"`
	IsTreasury       bool            `json:"isTreasury"`
}

// HolderDiff 本次持有者与上次落盘结果的对比，只用于展示
type HolderDiff struct {
	New       []Holder `json:"new"`
	Changed   []Holder `json:"changed"`
	Unchanged []Holder `json:"unchanged"`
}

// TokenHolder 持有者表，(token_id, account) 唯一
type TokenHolder struct {
	ID         int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	TokenID    string          `gorm:"column:token_id;type:varchar(64);not null;uniqueIndex:uk_token_account,priority:1" json:"token_id"`
	Account    string          `gorm:"column:account;type:varchar(64);not null;uniqueIndex:uk_token_account,priority:2" json:"account"`
	RawBalance string          `gorm:"column:raw_balance;type:varchar(80);not null" json:"raw_balance"`
	Balance    decimal.Decimal `gorm:"column:balance;type:decimal(50,20);not null;default:0" json:"balance"`
	IsTreasury bool            `gorm:"column:is_treasury;not null;default:false" json:"is_treasury"`
	SnapshotID string          `gorm:"column:snapshot_id;type:varchar(36);not null;default:''" json:"-"` // 最近一次写入该行的快照
	UpdatedAt  time.Time       `gorm:"column:updated_at" json:"updated_at"`
	CreatedAt  time.Time       `gorm:"column:created_at" json:"created_at"`
}

func (*TokenHolder) TableName() string {
	return "hedera_token_holders"
}

func NewTokenHolder(tokenID string, h Holder, now time.Time) *TokenHolder {
	return &TokenHolder{
		TokenID:    tokenID,
		Account:    h.Account,
		RawBalance: h.Balance,
		Balance:    h.FormattedBalance,
		IsTreasury: h.IsTreasury,
		UpdatedAt:  now,
		CreatedAt:  now,
	}
}

func (t *TokenHolder) Holder() Holder {
	return Holder{
		Account:          t.Account,
		Balance:          t.RawBalance,
		FormattedBalance: t.Balance,
		IsTreasury:       t.IsTreasury,
	}
}
