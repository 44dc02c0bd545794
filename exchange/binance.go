package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/rustyeddy/tradebot/broker"
	"github.com/rustyeddy/tradebot/market"
)

// BinanceConfig configures the spot REST client.
type BinanceConfig struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	RecvWindow int64
	Timeout    time.Duration
}

// Binance is a spot REST client implementing Exchange. Signed requests
// use HMAC-SHA256 over the query string, hex encoded.
type Binance struct {
	client *http.Client
	config BinanceConfig
	now    func() time.Time
}

func NewBinance(config BinanceConfig) (*Binance, error) {
	if strings.TrimSpace(config.BaseURL) == "" {
		return nil, fmt.Errorf("base_url must be set")
	}
	if config.RecvWindow <= 0 {
		config.RecvWindow = 5000
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &Binance{
		client: &http.Client{Timeout: config.Timeout},
		config: config,
		now:    time.Now,
	}, nil
}

// Sign returns the lowercase hex HMAC-SHA256 of message under secret.
func Sign(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

func (b *Binance) ensureAuth() error {
	if strings.TrimSpace(b.config.APIKey) == "" {
		return fmt.Errorf("api_key must be set")
	}
	if strings.TrimSpace(b.config.APISecret) == "" {
		return fmt.Errorf("api_secret must be set")
	}
	return nil
}

func (b *Binance) signedQuery(params url.Values) string {
	params.Set("timestamp", strconv.FormatInt(b.now().UnixMilli(), 10))
	params.Set("recvWindow", strconv.FormatInt(b.config.RecvWindow, 10))
	query := params.Encode()
	return query + "&signature=" + Sign(b.config.APISecret, query)
}

func (b *Binance) request(ctx context.Context, method, path, query string, signed bool) ([]byte, error) {
	u := strings.TrimRight(b.config.BaseURL, "/") + path
	if query != "" {
		u += "?" + query
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request failed: %w", err)
	}
	if signed {
		req.Header.Set("X-MBX-APIKEY", b.config.APIKey)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("binance response status: %d body: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// FetchCandles loads klines for the request window. The endpoint is
// public and needs no signature.
func (b *Binance) FetchCandles(ctx context.Context, req CandleRequest) ([]market.Candle, error) {
	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("interval", req.Interval)
	if req.StartTime > 0 {
		params.Set("startTime", strconv.FormatInt(req.StartTime, 10))
	}
	if req.EndTime > 0 {
		params.Set("endTime", strconv.FormatInt(req.EndTime, 10))
	}
	body, err := b.request(ctx, http.MethodGet, "/api/v3/klines", params.Encode(), false)
	if err != nil {
		return nil, err
	}

	var rows [][]json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("klines parse failed: %w", err)
	}
	candles := make([]market.Candle, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("klines row has %d fields, expected at least 6", len(row))
		}
		var openTimeMs int64
		if err := json.Unmarshal(row[0], &openTimeMs); err != nil {
			return nil, fmt.Errorf("klines open time parse failed: %w", err)
		}
		vals := make([]float64, 5)
		for i := 1; i < 6; i++ {
			var s string
			if err := json.Unmarshal(row[i], &s); err != nil {
				return nil, fmt.Errorf("klines field parse failed: %w", err)
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("klines number parse failed: %w", err)
			}
			vals[i-1] = v
		}
		candle := market.Candle{
			Time:   openTimeMs / 1000,
			Open:   vals[0],
			High:   vals[1],
			Low:    vals[2],
			Close:  vals[3],
			Volume: vals[4],
		}
		if err := candle.Validate(); err != nil {
			return nil, err
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

type binanceAccount struct {
	Balances []struct {
		Asset  string `json:"asset"`
		Free   string `json:"free"`
		Locked string `json:"locked"`
	} `json:"balances"`
}

// FetchBalances returns the non-zero spot balances.
func (b *Binance) FetchBalances(ctx context.Context) ([]broker.Balance, error) {
	if err := b.ensureAuth(); err != nil {
		return nil, err
	}
	body, err := b.request(ctx, http.MethodGet, "/api/v3/account", b.signedQuery(url.Values{}), true)
	if err != nil {
		return nil, err
	}
	var account binanceAccount
	if err := json.Unmarshal(body, &account); err != nil {
		return nil, fmt.Errorf("account parse failed: %w", err)
	}
	balances := make([]broker.Balance, 0, len(account.Balances))
	for _, entry := range account.Balances {
		free, err := strconv.ParseFloat(entry.Free, 64)
		if err != nil {
			return nil, fmt.Errorf("balance parse failed: %w", err)
		}
		locked, err := strconv.ParseFloat(entry.Locked, 64)
		if err != nil {
			return nil, fmt.Errorf("balance parse failed: %w", err)
		}
		if free == 0 && locked == 0 {
			continue
		}
		balance, err := broker.NewBalance(entry.Asset, free, locked)
		if err != nil {
			return nil, err
		}
		balances = append(balances, balance)
	}
	return balances, nil
}

// FetchPositions returns nothing: spot accounts carry holdings as
// balances, which AccountFromSnapshot maps onto positions.
func (b *Binance) FetchPositions(ctx context.Context) ([]broker.Position, error) {
	if err := b.ensureAuth(); err != nil {
		return nil, err
	}
	return nil, nil
}

// FetchOpenOrders lists all open spot orders.
func (b *Binance) FetchOpenOrders(ctx context.Context) ([]broker.OrderAck, error) {
	if err := b.ensureAuth(); err != nil {
		return nil, err
	}
	body, err := b.request(ctx, http.MethodGet, "/api/v3/openOrders", b.signedQuery(url.Values{}), true)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		OrderID       int64  `json:"orderId"`
		ClientOrderID string `json:"clientOrderId"`
		Status        string `json:"status"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("open orders parse failed: %w", err)
	}
	acks := make([]broker.OrderAck, len(rows))
	for i, row := range rows {
		acks[i] = broker.OrderAck{
			ClientOrderID:   row.ClientOrderID,
			ExchangeOrderID: strconv.FormatInt(row.OrderID, 10),
			Status:          mapBinanceStatus(row.Status),
		}
	}
	return acks, nil
}

// PlaceOrder submits the order and maps the acknowledgement.
func (b *Binance) PlaceOrder(ctx context.Context, order broker.OrderRequest) (broker.OrderAck, error) {
	if err := b.ensureAuth(); err != nil {
		return broker.OrderAck{}, err
	}
	params := url.Values{}
	params.Set("symbol", order.Symbol)
	params.Set("side", strings.ToUpper(string(order.Side)))
	params.Set("newClientOrderId", order.ClientOrderID)
	params.Set("quantity", strconv.FormatFloat(order.Quantity, 'f', -1, 64))
	if order.Kind == broker.Limit {
		params.Set("type", "LIMIT")
		params.Set("timeInForce", "GTC")
		params.Set("price", strconv.FormatFloat(order.LimitPrice, 'f', -1, 64))
	} else {
		params.Set("type", "MARKET")
	}
	body, err := b.request(ctx, http.MethodPost, "/api/v3/order", b.signedQuery(params), true)
	if err != nil {
		return broker.OrderAck{}, err
	}
	var ack struct {
		OrderID       int64  `json:"orderId"`
		ClientOrderID string `json:"clientOrderId"`
		Status        string `json:"status"`
	}
	if err := json.Unmarshal(body, &ack); err != nil {
		return broker.OrderAck{}, fmt.Errorf("order ack parse failed: %w", err)
	}
	return broker.OrderAck{
		ClientOrderID:   ack.ClientOrderID,
		ExchangeOrderID: strconv.FormatInt(ack.OrderID, 10),
		Status:          mapBinanceStatus(ack.Status),
	}, nil
}

// CancelOrder cancels by exchange order id on the default symbol. The
// symbol is required by the endpoint, so it rides along in orderID as
// "SYMBOL:ID".
func (b *Binance) CancelOrder(ctx context.Context, orderID string) error {
	if err := b.ensureAuth(); err != nil {
		return err
	}
	symbol, id, found := strings.Cut(orderID, ":")
	if !found {
		return fmt.Errorf("cancel order id must be SYMBOL:ID, got %q", orderID)
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", id)
	_, err := b.request(ctx, http.MethodDelete, "/api/v3/order", b.signedQuery(params), true)
	return err
}

func mapBinanceStatus(status string) broker.OrderStatus {
	switch status {
	case "NEW":
		return broker.StatusNew
	case "PARTIALLY_FILLED":
		return broker.StatusPartiallyFilled
	case "FILLED":
		return broker.StatusFilled
	case "CANCELED", "EXPIRED":
		return broker.StatusCanceled
	case "REJECTED":
		return broker.StatusRejected
	}
	return broker.StatusNew
}
