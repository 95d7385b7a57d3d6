package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHTTPClient_GetDecodesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "0.0.42", r.URL.Query().Get("account.id"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"Sauce","decimals":"8"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(HTTPClientConfig{Timeout: 2 * time.Second}, zap.NewNop())
	defer c.Close()

	var out struct {
		Name     string `json:"name"`
		Decimals string `json:"decimals"`
	}
	err := c.Get(context.Background(), srv.URL, map[string]string{"account.id": "0.0.42"}, nil, &out)
	require.NoError(t, err)
	assert.Equal(t, "Sauce", out.Name)
	assert.Equal(t, "8", out.Decimals)
}

func TestHTTPClient_GetReturnsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewHTTPClient(HTTPClientConfig{Timeout: 2 * time.Second}, zap.NewNop())
	defer c.Close()

	var out map[string]interface{}
	err := c.Get(context.Background(), srv.URL, nil, nil, &out)
	require.Error(t, err)
	assert.True(t, IsThrottled(err))
	assert.Equal(t, http.StatusTooManyRequests, StatusCode(err))
}

func TestIsThrottled(t *testing.T) {
	assert.True(t, IsThrottled(&HTTPError{Code: 503}))
	assert.False(t, IsThrottled(&HTTPError{Code: 404}))
	assert.False(t, IsThrottled(errors.New("boom")))
	assert.Equal(t, 0, StatusCode(errors.New("boom")))
}
