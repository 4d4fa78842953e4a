package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type historyQuery struct {
	Symbol string `param:"symbol" json:"symbol" validate:"required,symbol"`
	Limit  int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=1000"`
	Since  string `query:"since" json:"since,omitempty" validate:"omitempty,timeparam"`
}

func bind(t *testing.T, symbol, query string) (*historyQuery, []ValidationError) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/"+symbol+"/history?"+query, nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("symbol")
	c.SetParamValues(symbol)

	out := &historyQuery{}
	verr := ReadAndValidateRequest(c, out)
	if verr == nil {
		return out, nil
	}
	errs, ok := verr.([]ValidationError)
	require.True(t, ok)
	return out, errs
}

func TestReadAndValidateRequest_DefaultsAndValid(t *testing.T) {
	q, errs := bind(t, "btcusdt", "since=1700000000")
	require.Empty(t, errs)
	assert.Equal(t, 100, q.Limit)
	assert.Equal(t, "btcusdt", q.Symbol)
}

func TestReadAndValidateRequest_WireFieldNames(t *testing.T) {
	_, errs := bind(t, "B-T", "limit=5000&since=yesterday")
	require.Len(t, errs, 3)

	byField := map[string]ValidationError{}
	for _, e := range errs {
		byField[e.Field] = e
	}
	assert.Equal(t, "ERR_SYMBOL", byField["symbol"].Code)
	assert.Contains(t, byField["symbol"].Message, "trading pair")
	assert.Equal(t, "ERR_LTE", byField["limit"].Code)
	assert.Equal(t, "1000", byField["limit"].Params["max"])
	assert.Equal(t, "ERR_TIMEPARAM", byField["since"].Code)
}

func TestIsSymbol(t *testing.T) {
	for s, want := range map[string]bool{
		"BTCUSDT": true, "ethusdt": true, "1000PEPEUSDT": true,
		"BT": false, "BTC/USDT": false, "": false, "ABCDEFGHIJKLMNOPQRSTU": false,
	} {
		assert.Equal(t, want, isSymbol(s), s)
	}
}
