package mirrornode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"token-analyzer/pkg/gateway"
	"token-analyzer/pkg/httpclient"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	hc := httpclient.NewHTTPClient(httpclient.HTTPClientConfig{Timeout: 2 * time.Second}, zap.NewNop())
	t.Cleanup(func() { _ = hc.Close() })
	gw := gateway.New(gateway.Config{BaseDelay: time.Millisecond}, zap.NewNop())
	return NewClient(Config{BaseURL: srv.URL + "/api/v1", PageSize: 50}, hc, gw, zap.NewNop())
}

func TestClient_GetTokenInfoCached(t *testing.T) {
	var hits int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "/api/v1/tokens/0.0.1234", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token_id":"0.0.1234","name":"Sauce","symbol":"SAUCE","decimals":"6","total_supply":"1000000000000000","treasury_account_id":"0.0.1000","type":"FUNGIBLE_COMMON"}`))
	})

	info, err := c.GetTokenInfo(context.Background(), "0.0.1234")
	require.NoError(t, err)
	assert.Equal(t, "SAUCE", info.Symbol)
	assert.Equal(t, FlexUint(6), info.Decimals)
	assert.Equal(t, "1000000000000000", info.TotalSupply)
	assert.Contains(t, string(info.Raw), `"treasury_account_id":"0.0.1000"`)

	_, err = c.GetTokenInfo(context.Background(), "0.0.1234")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestClient_GetBalancesPageFollowsCursor(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("account.id") == "" {
			assert.Equal(t, "50", r.URL.Query().Get("limit"))
			_, _ = w.Write([]byte(`{"balances":[{"account":"0.0.1","balance":12345678901234567890}],"links":{"next":"/api/v1/tokens/0.0.1234/balances?limit=50&account.id=gt:0.0.1"}}`))
			return
		}
		assert.Equal(t, "gt:0.0.1", r.URL.Query().Get("account.id"))
		_, _ = w.Write([]byte(`{"balances":[{"account":"0.0.2","balance":5}],"links":{"next":null}}`))
	})

	page, err := c.GetBalancesPage(context.Background(), "0.0.1234", "")
	require.NoError(t, err)
	require.Len(t, page.Balances, 1)
	assert.Equal(t, "12345678901234567890", page.Balances[0].Balance.String())

	cursor := NextCursor(page.Links.Next)
	assert.Equal(t, "limit=50&account.id=gt:0.0.1", cursor)

	page, err = c.GetBalancesPage(context.Background(), "0.0.1234", cursor)
	require.NoError(t, err)
	assert.Equal(t, "0.0.2", page.Balances[0].Account)
	assert.Equal(t, "", NextCursor(page.Links.Next))
}

func TestClient_GetTransactionsPageQuery(t *testing.T) {
	var seen []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/transactions", r.URL.Path)
		assert.Equal(t, "0.0.42", r.URL.Query().Get("account.id"))
		assert.Equal(t, "desc", r.URL.Query().Get("order"))
		seen = append(seen, r.URL.Query().Get("timestamp"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"transactions":[{"consensus_timestamp":"1700000000.000000001","transaction_id":"0.0.42-1700000000-000000000","charged_tx_fee":84000,"memo_base64":"aGk=","token_transfers":[{"token_id":"0.0.1234","account":"0.0.42","amount":30}]}],"links":{}}`))
	})

	page, err := c.GetTransactionsPage(context.Background(), TxPageQuery{Account: "0.0.42", After: 1690000000})
	require.NoError(t, err)
	require.Len(t, page.Transactions, 1)
	assert.Equal(t, int64(84000), page.Transactions[0].ChargedTxFee)
	assert.Equal(t, "30", page.Transactions[0].TokenTransfers[0].Amount.String())

	_, err = c.GetTransactionsPage(context.Background(), TxPageQuery{Account: "0.0.42", After: 1690000000, Before: "1700000000.000000001"})
	require.NoError(t, err)
	assert.Equal(t, []string{"gt:1690000000", "lt:1700000000.000000001"}, seen)
}

func TestFlexUint(t *testing.T) {
	var v FlexUint
	require.NoError(t, v.UnmarshalJSON([]byte(`"8"`)))
	assert.Equal(t, FlexUint(8), v)
	require.NoError(t, v.UnmarshalJSON([]byte(`2`)))
	assert.Equal(t, FlexUint(2), v)
	assert.Error(t, v.UnmarshalJSON([]byte(`"x"`)))
}
