package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Confluence/internal/domain/models"
)

const baseMs = int64(1_700_000_000_000)

func klinesJSON(n int) string {
	out := "["
	for i := 0; i < n; i++ {
		if i > 0 {
			out += ","
		}
		open := 100 + float64(i)
		out += fmt.Sprintf(`[%d,"%.2f","%.2f","%.2f","%.2f","10.5",%d,"1000",5,"5","500","0"]`,
			baseMs+int64(i)*60_000, open, open+1, open-1, open+0.5, baseMs+int64(i)*60_000+59_999)
	}
	return out + "]"
}

func fakeExchange(t *testing.T, failKlines *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/fapi/v1/klines", func(w http.ResponseWriter, r *http.Request) {
		if failKlines != nil && failKlines.Add(-1) >= 0 {
			http.Error(w, `{"code":-1003,"msg":"too many requests"}`, http.StatusTooManyRequests)
			return
		}
		_, _ = fmt.Fprint(w, klinesJSON(5))
	})
	mux.HandleFunc("/fapi/v1/depth", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, `{"lastUpdateId":1,"E":%d,"T":%d,"bids":[["104.4","3"],["104.3","1"]],"asks":[["104.6","1"]]}`, baseMs, baseMs)
	})
	mux.HandleFunc("/fapi/v1/aggTrades", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, `[{"a":1,"p":"104.5","q":"2","f":1,"l":1,"T":%d,"m":false},{"a":2,"p":"104.4","q":"1","f":2,"l":2,"T":%d,"m":true}]`, baseMs, baseMs+1000)
	})
	mux.HandleFunc("/fapi/v1/ticker/24hr", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `[{"symbol":"BTCUSDT","priceChangePercent":"1.5","lastPrice":"104.5","volume":"1000","quoteVolume":"104500"}]`)
	})
	mux.HandleFunc("/fapi/v1/premiumIndex", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `[{"symbol":"BTCUSDT","markPrice":"104.5","lastFundingRate":"0.0001","nextFundingTime":0,"time":0}]`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type staticBuffer []models.Trade

func (b staticBuffer) Recent(string, int) []models.Trade { return b }

func TestSnapshot_AllParts(t *testing.T) {
	srv := fakeExchange(t, nil)
	src := New("", "", time.Second, WithBaseURL(srv.URL), WithRetry(0, time.Millisecond))

	data, err := src.Snapshot(context.Background(), "BTCUSDT")
	require.NoError(t, err)

	require.Len(t, data.Candles, 5)
	assert.Equal(t, 100.5, data.Candles[0].Close)
	assert.Equal(t, time.UnixMilli(baseMs).UTC(), data.Candles[0].Bucket)
	require.NotNil(t, data.OrderBook)
	assert.Equal(t, models.BookLevel{Price: 104.4, Quantity: 3}, data.OrderBook.Bids[0])
	require.Len(t, data.Trades, 2)
	assert.True(t, data.Trades[1].IsBuyerMaker)
	require.NotNil(t, data.Ticker)
	assert.Equal(t, 104.5, data.Ticker.LastPrice)
	require.NotNil(t, data.FundingRate)
	assert.InDelta(t, 0.0001, *data.FundingRate, 1e-12)
}

func TestSnapshot_RetriesKlines(t *testing.T) {
	var fails atomic.Int32
	fails.Store(2)
	srv := fakeExchange(t, &fails)
	src := New("", "", time.Second, WithBaseURL(srv.URL), WithRetry(3, time.Millisecond))

	data, err := src.Snapshot(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Len(t, data.Candles, 5)
}

func TestSnapshot_KlineFailureKeepsOtherParts(t *testing.T) {
	var fails atomic.Int32
	fails.Store(100)
	srv := fakeExchange(t, &fails)
	src := New("", "", time.Second, WithBaseURL(srv.URL), WithRetry(0, time.Millisecond))

	data, err := src.Snapshot(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Empty(t, data.Candles)
	assert.NotNil(t, data.OrderBook)
}

func TestSnapshot_ExchangeDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()
	src := New("", "", time.Second, WithBaseURL(srv.URL), WithRetry(0, time.Millisecond))

	_, err := src.Snapshot(context.Background(), "BTCUSDT")
	assert.Error(t, err)
}

func TestSnapshot_PrefersFresherLiveTrades(t *testing.T) {
	srv := fakeExchange(t, nil)
	live := staticBuffer{{Symbol: "BTCUSDT", Price: 105, Quantity: 1, Timestamp: time.UnixMilli(baseMs + 60_000)}}
	src := New("", "", time.Second, WithBaseURL(srv.URL), WithRetry(0, time.Millisecond), WithTradeBuffer(live))

	data, err := src.Snapshot(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, []models.Trade(live), data.Trades)
}

func TestFresher(t *testing.T) {
	old := []models.Trade{{Timestamp: time.Unix(10, 0)}}
	newer := []models.Trade{{Timestamp: time.Unix(20, 0)}}
	assert.True(t, fresher(newer, old))
	assert.False(t, fresher(old, newer))
	assert.False(t, fresher(nil, old))
	assert.True(t, fresher(newer, nil))
}
