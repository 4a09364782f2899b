package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/productbazar/api/internal/model"
)

// SearchHistoryRepo upserts search events on (user_id, query, type).
type SearchHistoryRepo struct{ DB *sql.DB }

func NewSearchHistoryRepo(db *sql.DB) *SearchHistoryRepo { return &SearchHistoryRepo{DB: db} }

// Record bumps the count for a repeated search or inserts a new row.
func (r *SearchHistoryRepo) Record(ctx context.Context, userID uint64, query, typ string) error {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO search_history (user_id, query, type, count, last_searched_at) VALUES (?,?,?,1,?)
		 ON DUPLICATE KEY UPDATE count=count+1, last_searched_at=VALUES(last_searched_at)`,
		userID, query, typ, time.Now().UTC())
	return err
}

// ListByUser returns the user's most recent searches.
func (r *SearchHistoryRepo) ListByUser(ctx context.Context, userID uint64, limit int) ([]model.SearchHistory, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT user_id, query, type, count, last_searched_at FROM search_history WHERE user_id=? ORDER BY last_searched_at DESC LIMIT ?",
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.SearchHistory
	for rows.Next() {
		var h model.SearchHistory
		if err := rows.Scan(&h.UserID, &h.Query, &h.Type, &h.Count, &h.LastSearchedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
