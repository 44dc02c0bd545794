package paper

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/tradebot/broker"
	"github.com/rustyeddy/tradebot/market"
	"github.com/rustyeddy/tradebot/strategy"
)

func feedCandles(candles []market.Candle) <-chan market.Candle {
	out := make(chan market.Candle, len(candles))
	for _, c := range candles {
		out <- c
	}
	close(out)
	return out
}

func TestFollowTradesStreamedBars(t *testing.T) {
	t.Parallel()

	engine := newPaperEngine(t, &buyOnce{})
	store := NewStore(filepath.Join(t.TempDir(), "paper.json"))

	err := Follow(context.Background(), engine, nil, feedCandles(flatCandles(3, 100)), 1000, store, zerolog.Nop())
	require.NoError(t, err)

	saved, ok, err := store.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 500.0, saved.Cash, 1e-9)
	assert.InDelta(t, 5.0, saved.PositionQty("BTCUSDT"), 1e-9)
}

func TestFollowResumesFromSavedState(t *testing.T) {
	t.Parallel()

	store := NewStore(filepath.Join(t.TempDir(), "paper.json"))
	require.NoError(t, store.Save(broker.Account{Cash: 640}))

	engine := newPaperEngine(t, strategy.Noop{})
	err := Follow(context.Background(), engine, nil, feedCandles(flatCandles(2, 100)), 1000, store, zerolog.Nop())
	require.NoError(t, err)

	saved, ok, err := store.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 640.0, saved.Cash)
}

func TestFollowSavesOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	store := NewStore(filepath.Join(t.TempDir(), "paper.json"))
	engine := newPaperEngine(t, strategy.Noop{})

	candles := make(chan market.Candle)
	done := make(chan error, 1)
	go func() {
		done <- Follow(ctx, engine, nil, candles, 250, store, zerolog.Nop())
	}()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("follow did not stop on cancel")
	}

	saved, ok, err := store.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 250.0, saved.Cash)
}
