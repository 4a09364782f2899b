package model

import "time"

// View mirrors the `views` table. Views are append-only. Bot views are
// stored for auditing but excluded from every public counter.
//
// Fields:
//
//	ProductID    – viewed product.
//	UserID       – viewer when authenticated (nullable).
//	SessionID    – anonymous session identifier (uuid) when not.
//	Source       – traffic source (direct, search, social, ...).
//	Referrer     – raw referrer URL, may be empty.
//	Device/OS/Browser – parsed client hints.
//	Country      – ISO country code, may be empty.
//	IsBot        – user-agent classified as automated traffic.
//	ViewDuration – seconds on page, when reported.
type View struct {
	ID           uint64    // views.id
	ProductID    uint64    // views.product_id
	UserID       *uint64   // views.user_id (nullable)
	SessionID    string    // views.session_id
	Source       string    // views.source
	Referrer     string    // views.referrer
	Device       string    // views.device
	OS           string    // views.os
	Browser      string    // views.browser
	Country      string    // views.country
	IsBot        bool      // views.is_bot
	ViewDuration *int      // views.view_duration (nullable, seconds)
	CreatedAt    time.Time // views.created_at
}

// ViewAnalytics is the query-time rollup for one product, derived from the
// views table and the daily buckets. Nothing here depends on a bucket that
// may have been pruned; totals come from the persisted counters.
type ViewAnalytics struct {
	ProductID   uint64         `json:"productId"`
	Total       int            `json:"total"`
	Unique      int            `json:"unique"`
	Daily       []DailyCount   `json:"daily"`
	BySource    map[string]int `json:"bySource"`
	ByDevice    map[string]int `json:"byDevice"`
	ByCountry   map[string]int `json:"byCountry"`
	AvgDuration float64        `json:"avgDuration"`
}

// DailyCount is one day of the view history window.
type DailyCount struct {
	Date  string `json:"date"` // YYYY-MM-DD (UTC)
	Count int    `json:"count"`
}
