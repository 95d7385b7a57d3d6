package mirrornode

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"token-analyzer/pkg/gateway"
	"token-analyzer/pkg/utils"
)

// Getter 与 httpclient.HTTPClient.Get 签名一致，测试中可替换
type Getter interface {
	Get(ctx context.Context, url string, queryParams map[string]string, headers map[string]string, out interface{}) error
}

type Config struct {
	BaseURL       string
	PageSize      int
	TokenCacheTTL time.Duration
}

// Client 镜像节点 REST 接口，所有请求都经过网关串行化
type Client struct {
	baseURL  string
	pageSize int
	getter   Getter
	gw       *gateway.Gateway
	cache    *cache.Cache
	logger   *zap.Logger
}

func NewClient(cfg Config, getter Getter, gw *gateway.Gateway, logger *zap.Logger) *Client {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	if cfg.TokenCacheTTL <= 0 {
		cfg.TokenCacheTTL = 10 * time.Minute
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		pageSize: cfg.PageSize,
		getter:   getter,
		gw:       gw,
		cache:    cache.New(cfg.TokenCacheTTL, 2*cfg.TokenCacheTTL),
		logger:   logger,
	}
}

func (c *Client) PageSize() int {
	return c.pageSize
}

func (c *Client) get(ctx context.Context, url string, query map[string]string, out interface{}) error {
	if c.gw == nil {
		return c.getter.Get(ctx, url, query, nil, out)
	}
	return c.gw.Do(ctx, func(ctx context.Context) error {
		return c.getter.Get(ctx, url, query, nil, out)
	})
}

// GetTokenInfo 读取代币元数据，结果按 token 缓存
func (c *Client) GetTokenInfo(ctx context.Context, tokenID string) (*TokenResponse, error) {
	key := utils.TokenInfoKey(tokenID)
	if v, ok := c.cache.Get(key); ok {
		return v.(*TokenResponse), nil
	}

	var raw json.RawMessage
	url := fmt.Sprintf("%s/tokens/%s", c.baseURL, tokenID)
	if err := c.get(ctx, url, nil, &raw); err != nil {
		return nil, err
	}

	var resp TokenResponse
	if err := sonic.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode token %s: %w", tokenID, err)
	}
	resp.Raw = raw
	if resp.TokenID == "" {
		resp.TokenID = tokenID
	}

	c.cache.Set(key, &resp, cache.DefaultExpiration)
	return &resp, nil
}

// GetBalancesPage 拉取一页持有者；cursor 为上一页 links.next 中 ? 之后的部分
func (c *Client) GetBalancesPage(ctx context.Context, tokenID, cursor string) (*BalancesResponse, error) {
	url := fmt.Sprintf("%s/tokens/%s/balances", c.baseURL, tokenID)
	var query map[string]string
	if cursor != "" {
		url = url + "?" + cursor
	} else {
		query = map[string]string{"limit": strconv.Itoa(c.pageSize)}
	}

	var resp BalancesResponse
	if err := c.get(ctx, url, query, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TxPageQuery 交易分页条件：首页用 After 作下界，之后只用 Before 作上界
type TxPageQuery struct {
	Account string
	After   int64  // timestamp=gt:After，秒
	Before  string // timestamp=lt:Before，上一页最后一条的 consensus_timestamp
}

// GetTransactionsPage 按时间倒序拉取账户交易
func (c *Client) GetTransactionsPage(ctx context.Context, q TxPageQuery) (*TransactionsResponse, error) {
	query := map[string]string{
		"account.id": q.Account,
		"limit":      strconv.Itoa(c.pageSize),
		"order":      "desc",
	}
	if q.Before != "" {
		query["timestamp"] = "lt:" + q.Before
	} else {
		query["timestamp"] = "gt:" + strconv.FormatInt(q.After, 10)
	}

	var resp TransactionsResponse
	if err := c.get(ctx, c.baseURL+"/transactions", query, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// NextCursor 从 links.next 中取出查询串，没有下一页时返回空
func NextCursor(next string) string {
	if next == "" {
		return ""
	}
	idx := strings.Index(next, "?")
	if idx < 0 || idx == len(next)-1 {
		return ""
	}
	return next[idx+1:]
}
