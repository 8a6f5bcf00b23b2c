package dydx

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/avelichka/ladderd/internal/domain"
)

// Channel names on the indexer websocket.
const (
	ChannelOrderbook = "v4_orderbook"
	ChannelTrades    = "v4_trades"
)

// flexFloat unmarshals from a JSON number or a quoted decimal string.
// The indexer mixes both across endpoints and message types.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parse decimal %q: %w", s, err)
	}
	*f = flexFloat(n)
	return nil
}

// --------------------------------------------------------------------------
// WebSocket DTOs
// --------------------------------------------------------------------------

// WSCommand is the JSON payload sent to subscribe or unsubscribe.
type WSCommand struct {
	Type    string `json:"type"` // "subscribe" or "unsubscribe"
	Channel string `json:"channel,omitempty"`
	ID      string `json:"id,omitempty"` // ticker, e.g. "BTC-USD"
}

// WSMessage is the outer envelope of every frame from the indexer.
type WSMessage struct {
	Type     string          `json:"type"` // "connected", "subscribed", "channel_data", "error"
	Channel  string          `json:"channel,omitempty"`
	ID       string          `json:"id,omitempty"`
	Message  string          `json:"message,omitempty"` // populated on "error"
	Contents json.RawMessage `json:"contents,omitempty"`
}

// WSPriceLevel is one bid/ask level from the orderbook channel. The
// indexer emits levels as ["price","size"] pairs in snapshots and as
// {"price","size"} objects in deltas, so unmarshalling accepts either.
type WSPriceLevel struct {
	Price flexFloat
	Size  flexFloat
}

func (l *WSPriceLevel) UnmarshalJSON(data []byte) error {
	var arr []flexFloat
	if err := json.Unmarshal(data, &arr); err == nil {
		if len(arr) != 2 {
			return fmt.Errorf("level array has %d elements, want 2", len(arr))
		}
		l.Price, l.Size = arr[0], arr[1]
		return nil
	}
	var obj struct {
		Price flexFloat `json:"price"`
		Size  flexFloat `json:"size"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	l.Price, l.Size = obj.Price, obj.Size
	return nil
}

// OrderbookContents is the payload of v4_orderbook frames, both the
// subscription snapshot and incremental updates. A missing side means
// no change on that side.
type OrderbookContents struct {
	Bids []WSPriceLevel `json:"bids"`
	Asks []WSPriceLevel `json:"asks"`
}

// WSTrade is one print from the v4_trades channel.
type WSTrade struct {
	ID        string    `json:"id"`
	Side      string    `json:"side"` // "BUY" or "SELL"
	Size      flexFloat `json:"size"`
	Price     flexFloat `json:"price"`
	Type      string    `json:"type"`
	CreatedAt string    `json:"createdAt"` // RFC3339
}

// TradesContents is the payload of v4_trades frames.
type TradesContents struct {
	Trades []WSTrade `json:"trades"`
}

// --------------------------------------------------------------------------
// REST DTOs
// --------------------------------------------------------------------------

// APIPerpetualMarket is one entry of GET /v4/perpetualMarkets. Decimal
// fields arrive as strings.
type APIPerpetualMarket struct {
	Ticker          string    `json:"ticker"`
	Status          string    `json:"status"` // "ACTIVE", "PAUSED", ...
	OraclePrice     flexFloat `json:"oraclePrice"`
	PriceChange24H  flexFloat `json:"priceChange24H"`
	Volume24H       flexFloat `json:"volume24H"`
	Trades24H       int64     `json:"trades24H"`
	NextFundingRate flexFloat `json:"nextFundingRate"`
	OpenInterest    flexFloat `json:"openInterest"`
	TickSize        flexFloat `json:"tickSize"`
	StepSize        flexFloat `json:"stepSize"`
	MarketType      string    `json:"marketType"`
}

// PerpetualMarketsResponse is the body of GET /v4/perpetualMarkets,
// keyed by ticker.
type PerpetualMarketsResponse struct {
	Markets map[string]APIPerpetualMarket `json:"markets"`
}

// --------------------------------------------------------------------------
// Conversion helpers: API types -> domain types
// --------------------------------------------------------------------------

// LevelsToDomain converts wire levels into domain price levels.
func LevelsToDomain(levels []WSPriceLevel) []domain.PriceLevel {
	if len(levels) == 0 {
		return nil
	}
	out := make([]domain.PriceLevel, len(levels))
	for i, lv := range levels {
		out[i] = domain.PriceLevel{Price: float64(lv.Price), Size: float64(lv.Size)}
	}
	return out
}

// ToDomainTrade converts a wire print into a domain trade event. The
// timestamp comes from createdAt, falling back to fallback when the
// field is missing or malformed.
func (t *WSTrade) ToDomainTrade(ticker string, fallback time.Time) domain.TradeEvent {
	ts := fallback.Unix()
	if t.CreatedAt != "" {
		if parsed, err := time.Parse(time.RFC3339, t.CreatedAt); err == nil {
			ts = parsed.Unix()
		}
	}
	return domain.TradeEvent{
		TS:     ts,
		Ticker: ticker,
		Source: "ws",
		Side:   t.Side,
		Size:   float64(t.Size),
	}
}

// ToDomainMarket converts a REST market entry into domain metadata.
func (m *APIPerpetualMarket) ToDomainMarket() domain.Market {
	return domain.Market{
		Ticker:          m.Ticker,
		Status:          domain.MarketStatus(m.Status),
		OraclePrice:     float64(m.OraclePrice),
		PriceChange24H:  float64(m.PriceChange24H),
		Volume24H:       float64(m.Volume24H),
		Trades24H:       m.Trades24H,
		NextFundingRate: float64(m.NextFundingRate),
		OpenInterest:    float64(m.OpenInterest),
		TickSize:        float64(m.TickSize),
		StepSize:        float64(m.StepSize),
		MarketType:      m.MarketType,
		UpdatedAt:       time.Now().UTC(),
	}
}
