package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/tradebot/broker"
)

func TestSignKnownVector(t *testing.T) {
	t.Parallel()

	// The signed example from the Binance REST API docs.
	secret := "NhqPtmdSJYdKjVHjA7PZj4Mge3R5YNiP1e3UZjInClVN65XAbvqqM6A7H5fATj0j"
	message := "symbol=LTCBTC&side=BUY&type=LIMIT&timeInForce=GTC&quantity=1&price=0.1&recvWindow=5000&timestamp=1499827319559"
	want := "c8db56825ae71d6d79447849e617115f4a920fa2acdcab2b053c4b2838bd6b71"

	assert.Equal(t, want, Sign(secret, message))
}

func newTestBinance(t *testing.T, handler http.Handler) (*Binance, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	b, err := NewBinance(BinanceConfig{
		BaseURL:    server.URL,
		APIKey:     "test-key",
		APISecret:  "test-secret",
		RecvWindow: 5000,
	})
	require.NoError(t, err)
	b.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return b, server
}

func TestNewBinanceRequiresBaseURL(t *testing.T) {
	t.Parallel()

	_, err := NewBinance(BinanceConfig{})
	assert.Error(t, err)
}

func TestSignedQueryIsDeterministic(t *testing.T) {
	t.Parallel()

	b, _ := newTestBinance(t, http.NewServeMux())

	query := b.signedQuery(url.Values{"symbol": {"BTCUSDT"}})
	parsed, err := url.ParseQuery(query)
	require.NoError(t, err)
	assert.Equal(t, "1700000000000", parsed.Get("timestamp"))
	assert.Equal(t, "5000", parsed.Get("recvWindow"))

	// The signature covers everything before it.
	base := url.Values{
		"symbol":     {"BTCUSDT"},
		"timestamp":  {"1700000000000"},
		"recvWindow": {"5000"},
	}
	assert.Equal(t, Sign("test-secret", base.Encode()), parsed.Get("signature"))
}

func TestFetchCandles(t *testing.T) {
	t.Parallel()

	var gotPath, gotQuery string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`[
			[1700000000000, "100.0", "105.5", "99.5", "104.0", "12.5", 1700000059999, "0", 0, "0", "0", "0"],
			[1700000060000, "104.0", "106.0", "103.0", "105.0", "8.25", 1700000119999, "0", 0, "0", "0", "0"]
		]`))
	})
	b, _ := newTestBinance(t, handler)

	candles, err := b.FetchCandles(context.Background(), CandleRequest{
		Symbol:    "BTCUSDT",
		Interval:  "1m",
		StartTime: 1700000000000,
		EndTime:   1700000120000,
	})
	require.NoError(t, err)
	assert.Equal(t, "/api/v3/klines", gotPath)
	assert.Contains(t, gotQuery, "symbol=BTCUSDT")
	assert.Contains(t, gotQuery, "interval=1m")

	require.Len(t, candles, 2)
	assert.Equal(t, int64(1700000000), candles[0].Time)
	assert.Equal(t, 100.0, candles[0].Open)
	assert.Equal(t, 105.5, candles[0].High)
	assert.Equal(t, 12.5, candles[0].Volume)
	assert.Equal(t, int64(1700000060), candles[1].Time)
}

func TestFetchCandlesRejectsInvalidBar(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// High below close.
		w.Write([]byte(`[[1700000000000, "100.0", "101.0", "99.5", "104.0", "1", 0, "0", 0, "0", "0", "0"]]`))
	})
	b, _ := newTestBinance(t, handler)

	_, err := b.FetchCandles(context.Background(), CandleRequest{Symbol: "BTCUSDT", Interval: "1m"})
	assert.Error(t, err)
}

func TestFetchCandlesServerErrorIsTransient(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	})
	b, _ := newTestBinance(t, handler)

	_, err := b.FetchCandles(context.Background(), CandleRequest{Symbol: "BTCUSDT", Interval: "1m"})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestFetchBalancesSkipsZero(t *testing.T) {
	t.Parallel()

	var gotHeader string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-MBX-APIKEY")
		w.Write([]byte(`{"balances":[
			{"asset":"BTC","free":"0.5","locked":"0.1"},
			{"asset":"DUST","free":"0","locked":"0"},
			{"asset":"USDT","free":"1000","locked":"0"}
		]}`))
	})
	b, _ := newTestBinance(t, handler)

	balances, err := b.FetchBalances(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test-key", gotHeader)
	require.Len(t, balances, 2)
	assert.Equal(t, "BTC", balances[0].Asset)
	assert.Equal(t, 0.5, balances[0].Free)
	assert.Equal(t, 0.1, balances[0].Locked)
	assert.Equal(t, "USDT", balances[1].Asset)
}

func TestFetchBalancesRequiresAuth(t *testing.T) {
	t.Parallel()

	b, err := NewBinance(BinanceConfig{BaseURL: "http://localhost"})
	require.NoError(t, err)
	_, err = b.FetchBalances(context.Background())
	assert.Error(t, err)
}

func TestPlaceOrder(t *testing.T) {
	t.Parallel()

	var gotQuery url.Values
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		gotQuery = r.URL.Query()
		w.Write([]byte(`{"orderId":12345,"clientOrderId":"order-7","status":"FILLED"}`))
	})
	b, _ := newTestBinance(t, handler)

	ack, err := b.PlaceOrder(context.Background(), broker.OrderRequest{
		ClientOrderID: "order-7",
		Symbol:        "BTCUSDT",
		Side:          broker.Buy,
		Kind:          broker.Limit,
		LimitPrice:    42000.5,
		Quantity:      0.25,
	})
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", gotQuery.Get("symbol"))
	assert.Equal(t, "BUY", gotQuery.Get("side"))
	assert.Equal(t, "LIMIT", gotQuery.Get("type"))
	assert.Equal(t, "GTC", gotQuery.Get("timeInForce"))
	assert.Equal(t, "42000.5", gotQuery.Get("price"))
	assert.Equal(t, "0.25", gotQuery.Get("quantity"))
	assert.NotEmpty(t, gotQuery.Get("signature"))

	assert.Equal(t, "order-7", ack.ClientOrderID)
	assert.Equal(t, "12345", ack.ExchangeOrderID)
	assert.Equal(t, broker.StatusFilled, ack.Status)
}

func TestCancelOrderRequiresCompoundID(t *testing.T) {
	t.Parallel()

	b, _ := newTestBinance(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))

	assert.Error(t, b.CancelOrder(context.Background(), "12345"))
	assert.NoError(t, b.CancelOrder(context.Background(), "BTCUSDT:12345"))
}

func TestMapBinanceStatus(t *testing.T) {
	t.Parallel()

	assert.Equal(t, broker.StatusNew, mapBinanceStatus("NEW"))
	assert.Equal(t, broker.StatusPartiallyFilled, mapBinanceStatus("PARTIALLY_FILLED"))
	assert.Equal(t, broker.StatusFilled, mapBinanceStatus("FILLED"))
	assert.Equal(t, broker.StatusCanceled, mapBinanceStatus("CANCELED"))
	assert.Equal(t, broker.StatusCanceled, mapBinanceStatus("EXPIRED"))
	assert.Equal(t, broker.StatusRejected, mapBinanceStatus("REJECTED"))
	assert.Equal(t, broker.StatusNew, mapBinanceStatus("SOMETHING_ELSE"))
}
