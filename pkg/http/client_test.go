package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_PostJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sentiment/score", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "confluence/1", r.Header.Get("User-Agent"))
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "BTCUSDT", in["symbol"])
		_, _ = w.Write([]byte(`{"score":61}`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL+"/"), WithTimeout(time.Second))
	var out struct {
		Score float64 `json:"score"`
	}
	require.NoError(t, c.PostJSON(context.Background(), "/sentiment/score", map[string]string{"symbol": "BTCUSDT"}, &out))
	assert.Equal(t, 61.0, out.Score)
}

func TestClient_GetJSONQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "ETHUSDT", r.URL.Query().Get("symbol"))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	require.NoError(t, c.GetJSON(context.Background(), "/x", url.Values{"symbol": {"ETHUSDT"}}, nil))
}

func TestClient_StatusErrors(t *testing.T) {
	code := http.StatusBadRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, strings.Repeat("x", 2*maxErrorBody), code)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	err := c.PostJSON(context.Background(), "/x", nil, nil)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.LessOrEqual(t, len(se.Body), maxErrorBody)
	assert.False(t, IsTemporary(err))

	code = http.StatusTooManyRequests
	assert.True(t, IsTemporary(c.PostJSON(context.Background(), "/x", nil, nil)))
	code = http.StatusBadGateway
	assert.True(t, IsTemporary(c.PostJSON(context.Background(), "/x", nil, nil)))
}

func TestClient_Unconfigured(t *testing.T) {
	c := NewClient()
	assert.False(t, c.Configured())
	assert.Error(t, c.PostJSON(context.Background(), "/x", nil, nil))
}
