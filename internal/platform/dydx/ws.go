package dydx

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/avelichka/ladderd/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// BookSnapshotHandler is called with the full book delivered on
// subscription, both sides best-unsorted as sent by the indexer.
type BookSnapshotHandler func(ticker string, bids, asks []domain.PriceLevel)

// BookDeltaHandler is called for every incremental orderbook frame.
// A nil side means no change there; size 0 removes a level.
type BookDeltaHandler func(ticker string, bids, asks []domain.PriceLevel)

// TradesHandler is called with the prints carried by one trades frame,
// including the backfill delivered on subscription.
type TradesHandler func(ticker string, trades []domain.TradeEvent)

// WSClient is a WebSocket client for the dYdX indexer real-time feed.
// It manages the connection lifecycle, subscriptions, and dispatches
// frames to registered handlers.
type WSClient struct {
	wsURL string
	conn  *websocket.Conn

	mu     sync.RWMutex
	closed bool

	// Subscriptions to restore on reconnect.
	subscriptions []WSCommand

	// Handlers
	snapshotHandlers []BookSnapshotHandler
	deltaHandlers    []BookDeltaHandler
	tradeHandlers    []TradesHandler
	handlerMu        sync.RWMutex

	// done is closed when the client is shut down.
	done chan struct{}
}

// NewWSClient creates a client for the given endpoint, e.g.
// "wss://indexer.dydx.trade/v4/ws".
func NewWSClient(wsURL string) *WSClient {
	return &WSClient{
		wsURL: wsURL,
		done:  make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("dydx/ws: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dydx/ws: connect: %w", err)
	}

	w.conn = conn

	// Set up pong handler for keep-alive.
	w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		w.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go w.readLoop()
	go w.pingLoop()

	// Restore any previous subscriptions after reconnect.
	for _, cmd := range w.subscriptions {
		if err := w.sendCommand(cmd); err != nil {
			return fmt.Errorf("dydx/ws: restore subscription: %w", err)
		}
	}

	return nil
}

// Subscribe subscribes the given tickers to one channel. The indexer
// takes one id per command.
func (w *WSClient) Subscribe(ctx context.Context, channel string, tickers []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("dydx/ws: not connected")
	}

	for _, ticker := range tickers {
		cmd := WSCommand{
			Type:    "subscribe",
			Channel: channel,
			ID:      ticker,
		}

		if err := w.sendCommand(cmd); err != nil {
			return fmt.Errorf("dydx/ws: subscribe %s %s: %w", channel, ticker, err)
		}

		// Track subscription for reconnection.
		w.subscriptions = append(w.subscriptions, cmd)
	}

	return nil
}

// Unsubscribe removes the given tickers from one channel.
func (w *WSClient) Unsubscribe(ctx context.Context, channel string, tickers []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("dydx/ws: not connected")
	}

	tickerSet := make(map[string]struct{}, len(tickers))
	for _, ticker := range tickers {
		cmd := WSCommand{
			Type:    "unsubscribe",
			Channel: channel,
			ID:      ticker,
		}
		if err := w.sendCommand(cmd); err != nil {
			return fmt.Errorf("dydx/ws: unsubscribe %s %s: %w", channel, ticker, err)
		}
		tickerSet[ticker] = struct{}{}
	}

	filtered := w.subscriptions[:0]
	for _, sub := range w.subscriptions {
		if _, match := tickerSet[sub.ID]; match && sub.Channel == channel {
			continue
		}
		filtered = append(filtered, sub)
	}
	w.subscriptions = filtered

	return nil
}

// Close shuts down the connection and stops the read loop.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true
	close(w.done)

	if w.conn != nil {
		// Send a close message to the server.
		_ = w.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return w.conn.Close()
	}

	return nil
}

// OnBookSnapshot registers a handler for full books delivered on
// subscription to the orderbook channel.
func (w *WSClient) OnBookSnapshot(handler BookSnapshotHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.snapshotHandlers = append(w.snapshotHandlers, handler)
}

// OnBookDelta registers a handler for incremental orderbook frames.
func (w *WSClient) OnBookDelta(handler BookDeltaHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.deltaHandlers = append(w.deltaHandlers, handler)
}

// OnTrades registers a handler for trade prints.
func (w *WSClient) OnTrades(handler TradesHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.tradeHandlers = append(w.tradeHandlers, handler)
}

// --------------------------------------------------------------------------
// Internal methods
// --------------------------------------------------------------------------

// sendCommand sends a JSON command to the WebSocket. Caller must hold w.mu.
func (w *WSClient) sendCommand(cmd WSCommand) error {
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop continuously reads frames and dispatches them to handlers.
// On disconnect it attempts to reconnect with exponential backoff.
func (w *WSClient) readLoop() {
	defer func() {
		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn != nil {
			conn.Close()
		}
	}()

	for {
		select {
		case <-w.done:
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			// Check if we've been shut down.
			select {
			case <-w.done:
				return
			default:
			}

			w.reconnect()
			return // readLoop is restarted by reconnect -> Connect
		}

		w.handleMessage(message)
	}
}

// pingLoop sends periodic ping messages to keep the WebSocket alive.
func (w *WSClient) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.mu.RLock()
			conn := w.conn
			w.mu.RUnlock()

			if conn == nil {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage parses one envelope and routes it by frame and channel
// type. Unparseable frames are dropped.
func (w *WSClient) handleMessage(raw []byte) {
	var msg WSMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}

	switch msg.Type {
	case "subscribed":
		switch msg.Channel {
		case ChannelOrderbook:
			w.dispatchBook(msg, true)
		case ChannelTrades:
			// The subscription ack carries a recent-trades backfill.
			w.dispatchTrades(msg)
		}
	case "channel_data":
		switch msg.Channel {
		case ChannelOrderbook:
			w.dispatchBook(msg, false)
		case ChannelTrades:
			w.dispatchTrades(msg)
		}
	}
}

func (w *WSClient) dispatchBook(msg WSMessage, snapshot bool) {
	var contents OrderbookContents
	if err := json.Unmarshal(msg.Contents, &contents); err != nil {
		return
	}
	bids := LevelsToDomain(contents.Bids)
	asks := LevelsToDomain(contents.Asks)

	w.handlerMu.RLock()
	snapHandlers := w.snapshotHandlers
	deltaHandlers := w.deltaHandlers
	w.handlerMu.RUnlock()

	if snapshot {
		for _, h := range snapHandlers {
			h(msg.ID, bids, asks)
		}
		return
	}
	for _, h := range deltaHandlers {
		h(msg.ID, bids, asks)
	}
}

func (w *WSClient) dispatchTrades(msg WSMessage) {
	var contents TradesContents
	if err := json.Unmarshal(msg.Contents, &contents); err != nil {
		return
	}
	now := time.Now().UTC()
	trades := make([]domain.TradeEvent, 0, len(contents.Trades))
	for i := range contents.Trades {
		trades = append(trades, contents.Trades[i].ToDomainTrade(msg.ID, now))
	}

	w.handlerMu.RLock()
	handlers := w.tradeHandlers
	w.handlerMu.RUnlock()

	for _, h := range handlers {
		h(msg.ID, trades)
	}
}

// reconnect re-establishes the connection with exponential backoff. It
// blocks until successful or the client is closed.
func (w *WSClient) reconnect() {
	delay := reconnectDelay

	for {
		select {
		case <-w.done:
			return
		default:
		}

		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := w.Connect(ctx)
		cancel()

		if err == nil {
			return
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}
