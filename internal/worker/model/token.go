package model

import (
	"time"

	"gorm.io/datatypes"
)

// TokenInfo 每次分析开始时从镜像节点读取一次，之后不再修改
type TokenInfo struct {
	TokenID           string `json:"tokenId"`
	Name              string `json:"name"`
	Symbol            string `json:"symbol"`
	Decimals          uint32 `json:"decimals"`
	TotalSupply       string `json:"totalSupply"`
	TreasuryAccountID string `json:"treasuryAccountId,omitempty"`
}

// Token 代币元数据表
type Token struct {
	TokenID           string         `gorm:"column:token_id;type:varchar(64);primaryKey" json:"token_id"`
	Name              string         `gorm:"column:name;type:varchar(255);not null" json:"name"`
	Symbol            string         `gorm:"column:symbol;type:varchar(100);not null" json:"symbol"`
	Decimals          int32          `gorm:"column:decimals;not null" json:"decimals"`
	TotalSupply       string         `gorm:"column:total_supply;type:varchar(80);not null" json:"total_supply"` // 原始单位
	TreasuryAccountID string         `gorm:"column:treasury_account_id;type:varchar(64)" json:"treasury_account_id"`
	Metadata          datatypes.JSON `gorm:"column:metadata" json:"metadata"` // /tokens/{id} 原始响应
	LastAnalyzed      time.Time      `gorm:"column:last_analyzed" json:"last_analyzed"`
	CreatedAt         time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"column:updated_at" json:"updated_at"`
}

func (*Token) TableName() string {
	return "hedera_tokens"
}

func NewToken(info TokenInfo, raw []byte, analyzedAt time.Time) *Token {
	t := &Token{
		TokenID:           info.TokenID,
		Name:              info.Name,
		Symbol:            info.Symbol,
		Decimals:          int32(info.Decimals),
		TotalSupply:       info.TotalSupply,
		TreasuryAccountID: info.TreasuryAccountID,
		LastAnalyzed:      analyzedAt,
	}
	if len(raw) > 0 {
		t.Metadata = datatypes.JSON(raw)
	}
	return t
}

func (t *Token) Info() TokenInfo {
	return TokenInfo{
		TokenID:           t.TokenID,
		Name:              t.Name,
		Symbol:            t.Symbol,
		Decimals:          uint32(t.Decimals),
		TotalSupply:       t.TotalSupply,
		TreasuryAccountID: t.TreasuryAccountID,
	}
}
