package domain

// EngineStatus is a summary of the daemon's current operational state.
type EngineStatus struct {
	Mode          string
	WSConnected   bool
	UptimeSeconds int64
	Tickers       []string
	BookEvents    int64
	TradeEvents   int64
	LastEventTS   int64 // unix seconds of the newest ingested event
}
