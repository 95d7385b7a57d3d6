package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"token-analyzer/internal/worker/apperr"
	"token-analyzer/internal/worker/config"
	"token-analyzer/internal/worker/job"
	"token-analyzer/internal/worker/model"
	"token-analyzer/internal/worker/service"
	"token-analyzer/internal/worker/stats"
	"token-analyzer/internal/worker/store"
	"token-analyzer/pkg/utils"
)

type fakeRuns struct {
	mu      sync.Mutex
	active  map[string]bool
	starts  int
	lookups int
}

func newFakeRuns() *fakeRuns {
	return &fakeRuns{active: make(map[string]bool)}
}

func (f *fakeRuns) StartOrAttach(tokenID string) (job.RunSnapshot, error) {
	if !utils.IsValidEntityID(tokenID) {
		return job.RunSnapshot{}, apperr.InvalidTokenID(tokenID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	p := stats.Progress{Phase: job.PhaseProcessingBatches}
	if f.active[tokenID] {
		return job.RunSnapshot{TokenID: tokenID, Status: job.StatusInProgress, Progress: &p}, nil
	}
	f.active[tokenID] = true
	return job.RunSnapshot{TokenID: tokenID, Status: job.StatusStarted, Progress: &p}, nil
}

func (f *fakeRuns) Status(ctx context.Context, tokenID string) (job.RunSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.active[tokenID] {
		return job.RunSnapshot{TokenID: tokenID, Status: job.StatusInProgress, Progress: &stats.Progress{}}, nil
	}
	return job.RunSnapshot{TokenID: tokenID, Status: job.StatusNotFound}, nil
}

func (f *fakeRuns) Ongoing() []job.RunSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []job.RunSnapshot{}
	for id := range f.active {
		out = append(out, job.RunSnapshot{TokenID: id, Status: job.StatusInProgress, Progress: &stats.Progress{}})
	}
	return out
}

func newTestServer(t *testing.T, origins ...string) (*httptest.Server, *fakeRuns, *store.CSVStore) {
	t.Helper()
	runs := newFakeRuns()
	st := store.NewCSVStore(t.TempDir(), zap.NewNop())
	s := NewServer(config.ServerConfig{AllowedOrigins: origins}, runs, st, zap.NewNop())
	s.now = func() time.Time { return time.Unix(1700000000, 0) }
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv, runs, st
}

func doJSON(t *testing.T, method, url, body string, out interface{}) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if out != nil {
		require.NoError(t, sonic.Unmarshal(data, out), string(data))
	}
	return resp
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)
	var body map[string]string
	resp := doJSON(t, http.MethodGet, srv.URL+"/health", "", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "2023-11-14T22:13:20.000Z", body["timestamp"])
}

func TestAnalyze_RejectsInvalidTokenBeforeStarting(t *testing.T) {
	srv, runs, _ := newTestServer(t)
	for _, body := range []string{`{"tokenId":"abc"}`, `{"tokenId":"0.0"}`, `{}`, ``, `not json`} {
		var resp errorResponse
		r := doJSON(t, http.MethodPost, srv.URL+"/analyze", body, &resp)
		assert.Equal(t, http.StatusBadRequest, r.StatusCode, body)
	}
	var resp errorResponse
	doJSON(t, http.MethodPost, srv.URL+"/analyze", `{"tokenId":"0.0.x"}`, &resp)
	assert.Equal(t, "Invalid token ID format", resp.Error)
	assert.Equal(t, 0, runs.starts)
}

func TestAnalyze_StartThenAttach(t *testing.T) {
	srv, runs, _ := newTestServer(t)

	var first job.RunSnapshot
	r := doJSON(t, http.MethodPost, srv.URL+"/analyze", `{"tokenId":"0.0.1234"}`, &first)
	assert.Equal(t, http.StatusAccepted, r.StatusCode)
	assert.Equal(t, job.StatusStarted, first.Status)

	var second job.RunSnapshot
	r = doJSON(t, http.MethodPost, srv.URL+"/analyze", `{"tokenId":"0.0.1234"}`, &second)
	assert.Equal(t, http.StatusOK, r.StatusCode)
	assert.Equal(t, job.StatusInProgress, second.Status)
	require.NotNil(t, second.Progress)
	assert.Equal(t, job.PhaseProcessingBatches, second.Progress.Phase)
	assert.Equal(t, 2, runs.starts)

	var ongoing []job.RunSnapshot
	r = doJSON(t, http.MethodGet, srv.URL+"/analyze/ongoing", "", &ongoing)
	assert.Equal(t, http.StatusOK, r.StatusCode)
	require.Len(t, ongoing, 1)
	assert.Equal(t, "0.0.1234", ongoing[0].TokenID)
}

func TestStatus(t *testing.T) {
	srv, runs, _ := newTestServer(t)

	var snap job.RunSnapshot
	r := doJSON(t, http.MethodGet, srv.URL+"/analyze/0.0.55/status", "", &snap)
	assert.Equal(t, http.StatusNotFound, r.StatusCode)
	assert.Equal(t, job.StatusNotFound, snap.Status)

	_, err := runs.StartOrAttach("0.0.55")
	require.NoError(t, err)
	r = doJSON(t, http.MethodGet, srv.URL+"/analyze/0.0.55/status", "", &snap)
	assert.Equal(t, http.StatusOK, r.StatusCode)
	assert.Equal(t, job.StatusInProgress, snap.Status)

	var e errorResponse
	r = doJSON(t, http.MethodGet, srv.URL+"/analyze/55/status", "", &e)
	assert.Equal(t, http.StatusBadRequest, r.StatusCode)
	assert.Equal(t, 2, runs.lookups)
}

func TestVisualize_NotAnalyzedYet(t *testing.T) {
	srv, _, _ := newTestServer(t)
	var e errorResponse
	r := doJSON(t, http.MethodGet, srv.URL+"/visualize/0.0.1234", "", &e)
	assert.Equal(t, http.StatusNotFound, r.StatusCode)
	assert.Equal(t, "Data not found. Please analyze the token first.", e.Error)
}

func seedToken(t *testing.T, st *store.CSVStore) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.SaveTokenInfo(ctx, model.TokenInfo{TokenID: "0.0.1234", Symbol: "SAUCE", TreasuryAccountID: "0.0.1"}, nil))
	require.NoError(t, st.SaveHolders(ctx, "0.0.1234", []model.Holder{
		{Account: "0.0.1", FormattedBalance: decimal.NewFromInt(900)},
		{Account: "0.0.2", FormattedBalance: decimal.NewFromInt(100)},
		{Account: "0.0.3", FormattedBalance: decimal.Zero},
	}))
	_, err := st.SaveTransfers(ctx, "0.0.1234", []model.TransferRecord{
		{Timestamp: "2023-11-14T22:13:20.000Z", TransactionID: "tx-1", SenderAccount: "0.0.1", SenderAmount: decimal.NewFromInt(10), ReceiverAccount: "0.0.2", ReceiverAmount: decimal.NewFromInt(10), TokenSymbol: "SAUCE"},
		{Timestamp: "2023-11-14T22:13:30.000Z", TransactionID: "tx-2", SenderAccount: "0.0.2", SenderAmount: decimal.NewFromInt(5), ReceiverAccount: "0.0.3", ReceiverAmount: decimal.NewFromInt(5), TokenSymbol: "SAUCE"},
	}, store.ModeRewrite)
	require.NoError(t, err)
}

func TestVisualize_Tables(t *testing.T) {
	srv, _, st := newTestServer(t)
	seedToken(t, st)

	var data VisualizationData
	r := doJSON(t, http.MethodGet, srv.URL+"/visualize/0.0.1234", "", &data)
	assert.Equal(t, http.StatusOK, r.StatusCode)
	assert.Len(t, data.Holders, 3)
	assert.Len(t, data.Transactions, 2)
}

func TestVisualize_Graph(t *testing.T) {
	srv, _, st := newTestServer(t)
	seedToken(t, st)

	var g service.Graph
	r := doJSON(t, http.MethodGet, srv.URL+"/visualize/0.0.1234?format=graph", "", &g)
	assert.Equal(t, http.StatusOK, r.StatusCode)
	assert.Equal(t, "0.0.1", g.Treasury)
	assert.Equal(t, 2, g.Metrics.HolderCount, "zero balance holder is not a node")
	require.Len(t, g.Links, 1)
	assert.Equal(t, "tx-1", g.Links[0].TransactionID)
	assert.True(t, g.Links[0].InvolvesTreasury)
}

func TestCORS(t *testing.T) {
	srv, _, _ := newTestServer(t, "https://app.example.com")

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/analyze", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "POST")

	req, err = http.NewRequest(http.MethodGet, srv.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://evil.example.com")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}
