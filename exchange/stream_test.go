package exchange

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/tradebot/market"
)

func TestParseKline(t *testing.T) {
	t.Parallel()

	t.Run("closed bar", func(t *testing.T) {
		t.Parallel()
		raw := []byte(`{"e":"kline","k":{"t":1700000000000,"o":"100.0","h":"105.0","l":"99.0","c":"104.0","v":"12.5","x":true}}`)
		candle, ok, err := parseKline(raw)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(1700000000), candle.Time)
		assert.Equal(t, 100.0, candle.Open)
		assert.Equal(t, 104.0, candle.Close)
		assert.Equal(t, 12.5, candle.Volume)
	})

	t.Run("open bar is skipped", func(t *testing.T) {
		t.Parallel()
		raw := []byte(`{"k":{"t":1700000000000,"o":"100.0","h":"105.0","l":"99.0","c":"104.0","v":"12.5","x":false}}`)
		_, ok, err := parseKline(raw)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("bad number", func(t *testing.T) {
		t.Parallel()
		raw := []byte(`{"k":{"t":1700000000000,"o":"oops","h":"105.0","l":"99.0","c":"104.0","v":"12.5","x":true}}`)
		_, _, err := parseKline(raw)
		assert.Error(t, err)
	})

	t.Run("invalid bar", func(t *testing.T) {
		t.Parallel()
		raw := []byte(`{"k":{"t":1700000000000,"o":"100.0","h":"101.0","l":"99.0","c":"104.0","v":"12.5","x":true}}`)
		_, _, err := parseKline(raw)
		assert.Error(t, err)
	})

	t.Run("corrupt json", func(t *testing.T) {
		t.Parallel()
		_, _, err := parseKline([]byte(`{"k":`))
		assert.Error(t, err)
	})
}

// fakeConn serves a scripted list of messages then fails.
type fakeConn struct {
	messages [][]byte
	index    int
	closed   bool
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	if f.index >= len(f.messages) {
		return 0, nil, io.EOF
	}
	msg := f.messages[f.index]
	f.index++
	return 1, msg, nil
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

func TestStreamForwardsOnlyClosedBars(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{messages: [][]byte{
		[]byte(`{"k":{"t":1700000000000,"o":"100.0","h":"105.0","l":"99.0","c":"104.0","v":"1","x":false}}`),
		[]byte(`{"k":{"t":1700000000000,"o":"100.0","h":"105.0","l":"99.0","c":"104.0","v":"1","x":true}}`),
		[]byte(`not json at all`),
		[]byte(`{"k":{"t":1700000060000,"o":"104.0","h":"106.0","l":"103.0","c":"105.0","v":"2","x":true}}`),
	}}

	var gotURL string
	stream := NewKlineStream("wss://example.test", "BTCUSDT", "1m", zerolog.Nop())
	stream.dial = func(ctx context.Context, url string) (wsConn, error) {
		gotURL = url
		return conn, nil
	}

	out := make(chan market.Candle, 8)
	err := stream.Run(context.Background(), out)
	require.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "wss://example.test/ws/btcusdt@kline_1m", gotURL)
	assert.True(t, conn.closed)

	var candles []market.Candle
	for candle := range out {
		candles = append(candles, candle)
	}
	// The open bar and the malformed frame are dropped.
	require.Len(t, candles, 2)
	assert.Equal(t, int64(1700000000), candles[0].Time)
	assert.Equal(t, int64(1700000060), candles[1].Time)
}

func TestStreamDialFailure(t *testing.T) {
	t.Parallel()

	stream := NewKlineStream("wss://example.test", "BTCUSDT", "1m", zerolog.Nop())
	stream.dial = func(ctx context.Context, url string) (wsConn, error) {
		return nil, errors.New("connection refused")
	}

	out := make(chan market.Candle, 1)
	err := stream.Run(context.Background(), out)
	assert.Error(t, err)

	// The channel is closed even when the dial fails.
	_, open := <-out
	assert.False(t, open)
}
