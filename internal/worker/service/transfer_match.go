package service

import (
	"strings"

	"github.com/shopspring/decimal"

	"token-analyzer/internal/worker/model"
	"token-analyzer/pkg/mirrornode"
	"token-analyzer/pkg/utils"
)

type leg struct {
	account string
	raw     string
	amount  decimal.Decimal
}

// MatchTransfers 从一笔交易中提取 accountID 作为接收方的转账记录。
// 每个接收 leg 独立匹配第一个 |amount| >= 接收数量的发送 leg，找不到则丢弃；
// 多个接收 leg 可能匹配到同一个发送 leg。
func MatchTransfers(tx mirrornode.Transaction, accountID, tokenID string, info model.TokenInfo) []model.TransferRecord {
	var legs []leg
	for _, tt := range tx.TokenTransfers {
		if tt.TokenID != tokenID {
			continue
		}
		raw := tt.Amount.String()
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			continue
		}
		legs = append(legs, leg{account: tt.Account, raw: raw, amount: amount})
	}
	if len(legs) == 0 {
		return nil
	}

	var (
		records []model.TransferRecord
		header  *model.TransferRecord
	)
	for _, receiver := range legs {
		if receiver.account != accountID || !receiver.amount.IsPositive() {
			continue
		}
		sender, ok := findSender(legs, receiver.amount)
		if !ok {
			continue
		}
		if header == nil {
			header = transferHeader(tx, info)
		}
		rec := *header
		rec.SenderAccount = sender.account
		rec.SenderAmount = utils.FormatAmount(strings.TrimPrefix(sender.raw, "-"), info.Decimals)
		rec.ReceiverAccount = receiver.account
		rec.ReceiverAmount = utils.FormatAmount(receiver.raw, info.Decimals)
		records = append(records, rec)
	}
	return records
}

func findSender(legs []leg, want decimal.Decimal) (leg, bool) {
	for _, l := range legs {
		if l.amount.IsNegative() && l.amount.Abs().GreaterThanOrEqual(want) {
			return l, true
		}
	}
	return leg{}, false
}

func transferHeader(tx mirrornode.Transaction, info model.TokenInfo) *model.TransferRecord {
	sec, _ := utils.ConsensusSeconds(tx.ConsensusTimestamp)
	return &model.TransferRecord{
		Timestamp:     utils.FormatISOSeconds(sec),
		TransactionID: tx.TransactionID,
		TokenSymbol:   info.Symbol,
		Memo:          utils.DecodeMemo(tx.MemoBase64),
		FeeHbar:       utils.TinybarsToHbar(tx.ChargedTxFee),
	}
}
