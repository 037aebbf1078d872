package types

import "time"

// Asset is a tracked coin identified by its CoinMarketCap numeric ID.
type Asset struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

// Baseline is the last price/time checkpoint one channel compares against.
// A nil LastPrice marks an asset that has never been priced.
type Baseline struct {
	LastPrice        *float64  `json:"last_price"`
	LastNotification time.Time `json:"last_notification_time"`
}

// WatchEntry is the persisted per-asset watch state. Name and symbol are
// denormalized copies of the Asset kept for display.
type WatchEntry struct {
	Name      string   `json:"name"`
	Symbol    string   `json:"symbol"`
	ShortTerm Baseline `json:"short_term"`
	LongTerm  Baseline `json:"long_term"`
}

// AlertKind discriminates the three alert categories.
type AlertKind string

const (
	AlertShortTerm AlertKind = "short_term"
	AlertLongTerm  AlertKind = "long_term"
	AlertAbsolute  AlertKind = "absolute"
)

// Alert is a transient threshold-crossing event consumed by the notifier.
// Elapsed, RulePercent and RuleWindow are zero for absolute alerts, which
// carry no time constraint.
type Alert struct {
	Kind          AlertKind
	AssetID       int64
	Name          string
	Symbol        string
	Price         float64
	ChangePercent float64
	Elapsed       time.Duration
	RulePercent   float64
	RuleWindow    time.Duration
}
