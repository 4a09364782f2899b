package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/productbazar/api/internal/model"
)

// historyWindowDays is the daily-rollup retention per product. One window
// everywhere: the pruner and every reader use this constant.
const historyWindowDays = 60

// ViewRepo appends view records and maintains the daily rollup buckets.
// Views are append-only, so no mutation locking is needed anywhere here.
type ViewRepo struct{ DB *sql.DB }

func NewViewRepo(db *sql.DB) *ViewRepo { return &ViewRepo{DB: db} }

// Insert appends one view record.
func (r *ViewRepo) Insert(ctx context.Context, v *model.View) error {
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO views (product_id, user_id, session_id, source, referrer, device, os, browser, country, is_bot, view_duration)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		v.ProductID, v.UserID, v.SessionID, v.Source, v.Referrer, v.Device, v.OS, v.Browser,
		v.Country, v.IsBot, v.ViewDuration)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err == nil {
		v.ID = uint64(id)
	}
	return nil
}

// HasPriorView reports whether this viewer (user when known, otherwise the
// anonymous session) already has a non-bot view of the product. Drives the
// unique counter.
func (r *ViewRepo) HasPriorView(ctx context.Context, productID uint64, userID *uint64, sessionID string) (bool, error) {
	var n int
	var err error
	if userID != nil {
		err = r.DB.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM views WHERE product_id=? AND user_id=? AND is_bot=0", productID, *userID).Scan(&n)
	} else {
		err = r.DB.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM views WHERE product_id=? AND session_id=? AND is_bot=0", productID, sessionID).Scan(&n)
	}
	return n > 0, err
}

// BumpDaily upserts today's bucket and prunes buckets older than the
// retention window.
func (r *ViewRepo) BumpDaily(ctx context.Context, productID uint64, day time.Time) error {
	d := day.UTC().Format("2006-01-02")
	if _, err := r.DB.ExecContext(ctx,
		"INSERT INTO product_view_daily (product_id, day, count) VALUES (?,?,1) ON DUPLICATE KEY UPDATE count=count+1",
		productID, d); err != nil {
		return err
	}
	cutoff := day.UTC().AddDate(0, 0, -historyWindowDays).Format("2006-01-02")
	_, err := r.DB.ExecContext(ctx,
		"DELETE FROM product_view_daily WHERE product_id=? AND day<?", productID, cutoff)
	return err
}

// DailyHistory returns up to the full retention window of buckets, oldest
// first.
func (r *ViewRepo) DailyHistory(ctx context.Context, productID uint64) ([]model.DailyCount, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT day, count FROM product_view_daily WHERE product_id=? ORDER BY day ASC LIMIT ?",
		productID, historyWindowDays)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.DailyCount
	for rows.Next() {
		var day time.Time
		var n int
		if err := rows.Scan(&day, &n); err != nil {
			return nil, err
		}
		out = append(out, model.DailyCount{Date: day.UTC().Format("2006-01-02"), Count: n})
	}
	return out, rows.Err()
}

// groupCount runs a GROUP BY rollup over non-bot views of one product.
func (r *ViewRepo) groupCount(ctx context.Context, productID uint64, column string) (map[string]int, error) {
	// column is caller-controlled from a fixed set, never user input.
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+column+", COUNT(*) FROM views WHERE product_id=? AND is_bot=0 GROUP BY "+column,
		productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var k sql.NullString
		var n int
		if err := rows.Scan(&k, &n); err != nil {
			return nil, err
		}
		key := k.String
		if key == "" {
			key = "unknown"
		}
		out[key] = n
	}
	return out, rows.Err()
}

func (r *ViewRepo) BySource(ctx context.Context, productID uint64) (map[string]int, error) {
	return r.groupCount(ctx, productID, "source")
}

func (r *ViewRepo) ByDevice(ctx context.Context, productID uint64) (map[string]int, error) {
	return r.groupCount(ctx, productID, "device")
}

func (r *ViewRepo) ByCountry(ctx context.Context, productID uint64) (map[string]int, error) {
	return r.groupCount(ctx, productID, "country")
}

// AvgDuration averages reported view durations for non-bot views.
func (r *ViewRepo) AvgDuration(ctx context.Context, productID uint64) (float64, error) {
	var avg sql.NullFloat64
	err := r.DB.QueryRowContext(ctx,
		"SELECT AVG(view_duration) FROM views WHERE product_id=? AND is_bot=0 AND view_duration IS NOT NULL",
		productID).Scan(&avg)
	return avg.Float64, err
}

// ListRecentByUser returns a user's recent non-bot views for the profile
// builder.
func (r *ViewRepo) ListRecentByUser(ctx context.Context, userID uint64, limit int) ([]model.View, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, product_id, user_id, session_id, source, referrer, device, os, browser, country, is_bot, view_duration, created_at
		   FROM views WHERE user_id=? AND is_bot=0 ORDER BY created_at DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.View
	for rows.Next() {
		var v model.View
		if err := rows.Scan(&v.ID, &v.ProductID, &v.UserID, &v.SessionID, &v.Source, &v.Referrer,
			&v.Device, &v.OS, &v.Browser, &v.Country, &v.IsBot, &v.ViewDuration, &v.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// CountsSince returns per-product non-bot view counts within the window,
// feeding the trending scorer.
func (r *ViewRepo) CountsSince(ctx context.Context, since time.Time) (map[uint64]int, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT product_id, COUNT(*) FROM views WHERE is_bot=0 AND created_at>=? GROUP BY product_id", since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uint64]int)
	for rows.Next() {
		var pid uint64
		var n int
		if err := rows.Scan(&pid, &n); err != nil {
			return nil, err
		}
		out[pid] = n
	}
	return out, rows.Err()
}
