package service

import (
	"github.com/shopspring/decimal"

	"token-analyzer/internal/worker/model"
)

// DiffEpsilon 吸收持久化十进制表示带来的误差
var DiffEpsilon = decimal.New(1, -8)

// DiffHolders 对比本次持有者与上次落盘的格式化余额，纯函数
func DiffHolders(current []model.Holder, previous map[string]decimal.Decimal) model.HolderDiff {
	diff := model.HolderDiff{
		New:       []model.Holder{},
		Changed:   []model.Holder{},
		Unchanged: []model.Holder{},
	}
	for _, h := range current {
		prev, ok := previous[h.Account]
		switch {
		case !ok:
			diff.New = append(diff.New, h)
		case h.FormattedBalance.Sub(prev).Abs().GreaterThan(DiffEpsilon):
			diff.Changed = append(diff.Changed, h)
		default:
			diff.Unchanged = append(diff.Unchanged, h)
		}
	}
	return diff
}

// HolderBalances 把持有者列表转成 account -> 格式化余额
func HolderBalances(holders []model.Holder) map[string]decimal.Decimal {
	m := make(map[string]decimal.Decimal, len(holders))
	for _, h := range holders {
		m[h.Account] = h.FormattedBalance
	}
	return m
}
