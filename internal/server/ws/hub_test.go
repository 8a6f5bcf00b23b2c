package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveChannel(t *testing.T) {
	t.Run("Concrete channels pass through", func(t *testing.T) {
		got := resolveChannel("ch:status", []byte(`{"Mode":"live"}`))
		assert.Equal(t, "ch:status", got)
	})

	t.Run("Pattern resolves from payload ticker", func(t *testing.T) {
		got := resolveChannel("ch:book:*", []byte(`{"Ticker":"BTC-USD","Bids":[]}`))
		assert.Equal(t, "ch:book:BTC-USD", got)

		got = resolveChannel("ch:trades:*", []byte(`{"Ticker":"ETH-USD","Trades":[]}`))
		assert.Equal(t, "ch:trades:ETH-USD", got)
	})

	t.Run("Pattern without ticker stays a pattern", func(t *testing.T) {
		got := resolveChannel("ch:book:*", []byte(`{"Bids":[]}`))
		assert.Equal(t, "ch:book:*", got)

		got = resolveChannel("ch:book:*", []byte(`not json`))
		assert.Equal(t, "ch:book:*", got)
	})

	t.Run("Empty channel", func(t *testing.T) {
		assert.Equal(t, "", resolveChannel("", []byte(`{}`)))
	})
}

func TestIsSubscribed(t *testing.T) {
	c := &client{subs: map[string]bool{
		"ch:status":         true,
		"ch:book:*":         true,
		"ch:trades:BTC-USD": true,
	}}

	assert.True(t, c.isSubscribed("ch:status"))
	assert.True(t, c.isSubscribed("ch:book:BTC-USD"))
	assert.True(t, c.isSubscribed("ch:book:ETH-USD"))
	assert.True(t, c.isSubscribed("ch:trades:BTC-USD"))

	assert.False(t, c.isSubscribed("ch:trades:ETH-USD"))
	assert.False(t, c.isSubscribed("stream:events:BTC-USD"))
}

func TestHandleSubscription(t *testing.T) {
	c := &client{subs: map[string]bool{"ch:status": true}}

	c.handleSubscription(subscribeMsg{
		Action:   "subscribe",
		Channels: []string{"ch:book:BTC-USD", "ch:trades:*"},
	})
	assert.True(t, c.isSubscribed("ch:book:BTC-USD"))
	assert.True(t, c.isSubscribed("ch:trades:SOL-USD"))

	c.handleSubscription(subscribeMsg{
		Action:   "unsubscribe",
		Channels: []string{"ch:status", "ch:trades:*"},
	})
	assert.False(t, c.isSubscribed("ch:status"))
	assert.False(t, c.isSubscribed("ch:trades:SOL-USD"))
	assert.True(t, c.isSubscribed("ch:book:BTC-USD"))
}
