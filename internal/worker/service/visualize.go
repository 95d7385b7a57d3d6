package service

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"token-analyzer/internal/worker/model"
)

const (
	minNodeRadius = 5.0
	maxNodeRadius = 50.0
	topHolderN    = 10
)

type GraphNode struct {
	ID         string  `json:"id"`
	Value      float64 `json:"value"`
	Radius     float64 `json:"radius"`
	IsTreasury bool    `json:"isTreasury"`
}

type GraphLink struct {
	Source           string  `json:"source"`
	Target           string  `json:"target"`
	Value            float64 `json:"value"`
	Timestamp        string  `json:"timestamp"`
	TransactionID    string  `json:"transactionId"`
	InvolvesTreasury bool    `json:"involvesTreasury"`
}

type GraphMetrics struct {
	HolderCount        int     `json:"holderCount"`
	LinkCount          int     `json:"linkCount"`
	TotalVolume        float64 `json:"totalVolume"`
	Top10Concentration float64 `json:"top10Concentration"` // 前 10 名持仓占比，百分比
}

type Graph struct {
	Nodes    []GraphNode  `json:"nodes"`
	Links    []GraphLink  `json:"links"`
	Metrics  GraphMetrics `json:"metrics"`
	Treasury string       `json:"treasury,omitempty"`
}

// BuildGraph 生成前端力导向图数据。
// 节点为余额大于 0 的持有者，半径按 sqrt 比例映射到 [5,50]；
// 连线为两端都是节点的转账，按时间倒序。treasury 为空时用持有者中标记的 treasury。
func BuildGraph(holders []model.Holder, transfers []model.TransferRecord, treasury string) Graph {
	if treasury == "" {
		for _, h := range holders {
			if h.IsTreasury {
				treasury = h.Account
				break
			}
		}
	}

	positive := make([]model.Holder, 0, len(holders))
	for _, h := range holders {
		if h.FormattedBalance.IsPositive() {
			positive = append(positive, h)
		}
	}

	g := Graph{Nodes: []GraphNode{}, Links: []GraphLink{}, Treasury: treasury}
	if len(positive) > 0 {
		minV, maxV := positive[0].FormattedBalance, positive[0].FormattedBalance
		for _, h := range positive[1:] {
			minV = decimal.Min(minV, h.FormattedBalance)
			maxV = decimal.Max(maxV, h.FormattedBalance)
		}
		scale := sqrtScale(minV.InexactFloat64(), maxV.InexactFloat64())
		for _, h := range positive {
			v := h.FormattedBalance.InexactFloat64()
			g.Nodes = append(g.Nodes, GraphNode{
				ID:         h.Account,
				Value:      v,
				Radius:     scale(v),
				IsTreasury: h.Account == treasury,
			})
		}
	}

	present := make(map[string]struct{}, len(g.Nodes))
	for _, n := range g.Nodes {
		present[n.ID] = struct{}{}
	}

	sorted := make([]model.TransferRecord, len(transfers))
	copy(sorted, transfers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Time().After(sorted[j].Time())
	})

	volume := decimal.Zero
	for _, t := range sorted {
		if _, ok := present[t.SenderAccount]; !ok {
			continue
		}
		if _, ok := present[t.ReceiverAccount]; !ok {
			continue
		}
		volume = volume.Add(t.SenderAmount)
		g.Links = append(g.Links, GraphLink{
			Source:           t.SenderAccount,
			Target:           t.ReceiverAccount,
			Value:            t.SenderAmount.InexactFloat64(),
			Timestamp:        t.Timestamp,
			TransactionID:    t.TransactionID,
			InvolvesTreasury: treasury != "" && (t.SenderAccount == treasury || t.ReceiverAccount == treasury),
		})
	}

	g.Metrics = GraphMetrics{
		HolderCount:        len(g.Nodes),
		LinkCount:          len(g.Links),
		TotalVolume:        volume.InexactFloat64(),
		Top10Concentration: topConcentration(positive, topHolderN),
	}
	return g
}

func sqrtScale(minV, maxV float64) func(float64) float64 {
	lo, hi := math.Sqrt(minV), math.Sqrt(maxV)
	if hi == lo {
		mid := (minNodeRadius + maxNodeRadius) / 2
		return func(float64) float64 { return mid }
	}
	return func(v float64) float64 {
		return minNodeRadius + (math.Sqrt(v)-lo)/(hi-lo)*(maxNodeRadius-minNodeRadius)
	}
}

func topConcentration(holders []model.Holder, n int) float64 {
	if len(holders) == 0 {
		return 0
	}
	balances := make([]decimal.Decimal, len(holders))
	total := decimal.Zero
	for i, h := range holders {
		balances[i] = h.FormattedBalance
		total = total.Add(h.FormattedBalance)
	}
	if total.IsZero() {
		return 0
	}
	sort.Slice(balances, func(i, j int) bool { return balances[i].GreaterThan(balances[j]) })
	if n > len(balances) {
		n = len(balances)
	}
	top := decimal.Zero
	for _, b := range balances[:n] {
		top = top.Add(b)
	}
	return top.Div(total).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
}
