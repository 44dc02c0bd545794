package exchange

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/rustyeddy/tradebot/market"
)

// KlineStream subscribes to a websocket kline feed and delivers closed
// candles. It exists so paper mode can replay live bars continuously
// without polling REST.
type KlineStream struct {
	URL      string
	Symbol   string
	Interval string
	Log      zerolog.Logger

	dial func(ctx context.Context, url string) (wsConn, error)
}

// wsConn is the slice of *websocket.Conn the stream needs; tests swap
// in a fake.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	Close() error
}

func NewKlineStream(baseURL, symbol, interval string, log zerolog.Logger) *KlineStream {
	return &KlineStream{
		URL:      baseURL,
		Symbol:   symbol,
		Interval: interval,
		Log:      log,
		dial: func(ctx context.Context, url string) (wsConn, error) {
			conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
			return conn, err
		},
	}
}

// klineEvent is the kline payload wrapper: only closed bars (k.x true)
// are forwarded.
type klineEvent struct {
	Kline struct {
		Start  int64  `json:"t"`
		Open   string `json:"o"`
		High   string `json:"h"`
		Low    string `json:"l"`
		Close  string `json:"c"`
		Volume string `json:"v"`
		Closed bool   `json:"x"`
	} `json:"k"`
}

// Run connects and forwards closed candles to out until the context is
// canceled or the connection drops. The channel is closed on return.
func (s *KlineStream) Run(ctx context.Context, out chan<- market.Candle) error {
	defer close(out)

	streamURL := fmt.Sprintf("%s/ws/%s@kline_%s",
		strings.TrimRight(s.URL, "/"), strings.ToLower(s.Symbol), s.Interval)
	conn, err := s.dial(ctx, streamURL)
	if err != nil {
		return fmt.Errorf("stream dial failed: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("stream read failed: %w", err)
		}
		candle, ok, err := parseKline(raw)
		if err != nil {
			s.Log.Warn().Err(err).Msg("dropping malformed kline")
			continue
		}
		if !ok {
			continue
		}
		select {
		case out <- candle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func parseKline(raw []byte) (market.Candle, bool, error) {
	var event klineEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return market.Candle{}, false, fmt.Errorf("kline parse failed: %w", err)
	}
	if !event.Kline.Closed {
		return market.Candle{}, false, nil
	}
	vals := make([]float64, 5)
	for i, s := range []string{
		event.Kline.Open, event.Kline.High, event.Kline.Low, event.Kline.Close, event.Kline.Volume,
	} {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return market.Candle{}, false, fmt.Errorf("kline number parse failed: %w", err)
		}
		vals[i] = v
	}
	candle := market.Candle{
		Time:   event.Kline.Start / 1000,
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}
	if err := candle.Validate(); err != nil {
		return market.Candle{}, false, err
	}
	return candle, true, nil
}
