package model

import (
	"time"

	"github.com/shopspring/decimal"

	"token-analyzer/pkg/utils"
)

// TransferRecord 一笔代币转账，由同一交易里的发送方与接收方两条 leg 组成
type TransferRecord struct {
	Timestamp       string          `json:"timestamp"` // ISO-8601，精确到秒
	TransactionID   string          `json:"transaction_id"`
	SenderAccount   string          `json:"sender_account"`
	SenderAmount    decimal.Decimal `json:"sender_amount"`
	ReceiverAccount string          `json:"receiver_account"`
	ReceiverAmount  decimal.Decimal `json:"receiver_amount"`
	TokenSymbol     string          `json:"token_symbol"`
	Memo            string          `json:"memo"`
	FeeHbar         decimal.Decimal `json:"fee_hbar"`
}

// Time 解析 Timestamp，格式不合法时返回零值
func (r TransferRecord) Time() time.Time {
	t, err := time.Parse(utils.ISOMillisLayout, r.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// TokenTransfer 转账表，(token_id, transaction_id) 唯一
type TokenTransfer struct {
	ID               int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	TokenID          string          `gorm:"column:token_id;type:varchar(64);not null;uniqueIndex:uk_token_tx,priority:1;index:idx_token_time,priority:1" json:"token_id"`
	TransactionID    string          `gorm:"column:transaction_id;type:varchar(100);not null;uniqueIndex:uk_token_tx,priority:2" json:"transaction_id"`
	TransferTime     time.Time       `gorm:"column:transfer_time;not null;index:idx_token_time,priority:2,sort:desc" json:"transfer_time"`
	SenderAccount    string          `gorm:"column:sender_account;type:varchar(64);not null" json:"sender_account"`
	SenderAmount     decimal.Decimal `gorm:"column:sender_amount;type:decimal(50,20);not null;default:0" json:"sender_amount"`
	ReceiverAccount  string          `gorm:"column:receiver_account;type:varchar(64);not null" json:"receiver_account"`
	ReceiverAmount   decimal.Decimal `gorm:"column:receiver_amount;type:decimal(50,20);not null;default:0" json:"receiver_amount"`
	TokenSymbol      string          `gorm:"column:token_symbol;type:varchar(100)" json:"token_symbol"`
	Memo             string          `gorm:"column:memo;type:text" json:"memo"`
	FeeHbar          decimal.Decimal `gorm:"column:fee_hbar;type:decimal(30,8);not null;default:0" json:"fee_hbar"`
	InvolvesTreasury bool            `gorm:"column:involves_treasury;not null;default:false" json:"involves_treasury"`
	CreatedAt        time.Time       `gorm:"column:created_at" json:"created_at"`
}

func (*TokenTransfer) TableName() string {
	return "hedera_token_transfers"
}

func NewTokenTransfer(tokenID string, r TransferRecord, treasury string, now time.Time) *TokenTransfer {
	return &TokenTransfer{
		TokenID:          tokenID,
		TransactionID:    r.TransactionID,
		TransferTime:     r.Time(),
		SenderAccount:    r.SenderAccount,
		SenderAmount:     r.SenderAmount,
		ReceiverAccount:  r.ReceiverAccount,
		ReceiverAmount:   r.ReceiverAmount,
		TokenSymbol:      r.TokenSymbol,
		Memo:             r.Memo,
		FeeHbar:          r.FeeHbar,
		InvolvesTreasury: treasury != "" && (r.SenderAccount == treasury || r.ReceiverAccount == treasury),
		CreatedAt:        now,
	}
}

func (t *TokenTransfer) Record() TransferRecord {
	return TransferRecord{
		Timestamp:       t.TransferTime.UTC().Format(utils.ISOMillisLayout),
		TransactionID:   t.TransactionID,
		SenderAccount:   t.SenderAccount,
		SenderAmount:    t.SenderAmount,
		ReceiverAccount: t.ReceiverAccount,
		ReceiverAmount:  t.ReceiverAmount,
		TokenSymbol:     t.TokenSymbol,
		Memo:            t.Memo,
		FeeHbar:         t.FeeHbar,
	}
}
