package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/productbazar/api/internal/model"
)

// RecommendationRepo persists recommendation profiles (JSON preference
// vectors, one row per user) and the append-only interaction log.
type RecommendationRepo struct{ DB *sql.DB }

func NewRecommendationRepo(db *sql.DB) *RecommendationRepo { return &RecommendationRepo{DB: db} }

// GetProfile loads a user's profile. ErrNotFound means no interactions
// have built one yet; callers start from an empty profile.
func (r *RecommendationRepo) GetProfile(ctx context.Context, userID uint64) (model.Profile, error) {
	var (
		p                          model.Profile
		cats, tags, recs, dismissed []byte
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT user_id, category_prefs, tag_prefs, recommended, dismissed, last_updated FROM recommendation_profiles WHERE user_id=? LIMIT 1",
		userID).Scan(&p.UserID, &cats, &tags, &recs, &dismissed, &p.LastUpdated)
	if err != nil {
		return p, notFound(err)
	}
	for _, pair := range []struct {
		raw []byte
		dst any
	}{
		{cats, &p.CategoryPrefs},
		{tags, &p.TagPrefs},
		{recs, &p.RecommendedProducts},
		{dismissed, &p.DismissedProducts},
	} {
		if len(pair.raw) > 0 {
			if err := json.Unmarshal(pair.raw, pair.dst); err != nil {
				return p, err
			}
		}
	}
	return p, nil
}

// SaveProfile upserts the whole profile row.
func (r *RecommendationRepo) SaveProfile(ctx context.Context, p model.Profile) error {
	cats, err := json.Marshal(p.CategoryPrefs)
	if err != nil {
		return err
	}
	tags, err := json.Marshal(p.TagPrefs)
	if err != nil {
		return err
	}
	recs, err := json.Marshal(p.RecommendedProducts)
	if err != nil {
		return err
	}
	dismissed, err := json.Marshal(p.DismissedProducts)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx,
		`INSERT INTO recommendation_profiles (user_id, category_prefs, tag_prefs, recommended, dismissed, last_updated)
		 VALUES (?,?,?,?,?,?)
		 ON DUPLICATE KEY UPDATE category_prefs=VALUES(category_prefs), tag_prefs=VALUES(tag_prefs),
		   recommended=VALUES(recommended), dismissed=VALUES(dismissed), last_updated=VALUES(last_updated)`,
		p.UserID, cats, tags, recs, dismissed, p.LastUpdated)
	return err
}

// InsertInteraction appends to the interaction log.
func (r *RecommendationRepo) InsertInteraction(ctx context.Context, in *model.RecInteraction) error {
	meta, err := json.Marshal(in.Metadata)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO recommendation_interactions (user_id, product_id, recommendation_type, interaction_type, position, quality, metadata, created_at)
		 VALUES (?,?,?,?,?,?,?,?)`,
		in.UserID, in.ProductID, in.RecommendationType, in.InteractionType, in.Position,
		in.Quality, meta, in.Timestamp)
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		in.ID = uint64(id)
	}
	return nil
}

// LastQuality returns the most recent blended quality for (user, product).
// ok=false means no prior interaction exists.
func (r *RecommendationRepo) LastQuality(ctx context.Context, userID, productID uint64) (float64, bool, error) {
	var q float64
	err := r.DB.QueryRowContext(ctx,
		"SELECT quality FROM recommendation_interactions WHERE user_id=? AND product_id=? ORDER BY created_at DESC LIMIT 1",
		userID, productID).Scan(&q)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return q, true, nil
}

// FindNearestImpression locates the impression for the same product whose
// timestamp is closest to (and not after) at, within the window. Used to
// attribute clicks and conversions back to the impression that earned them.
func (r *RecommendationRepo) FindNearestImpression(ctx context.Context, userID, productID uint64, at time.Time, window time.Duration) (model.RecInteraction, error) {
	var in model.RecInteraction
	var meta []byte
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, user_id, product_id, recommendation_type, interaction_type, position, quality, metadata, created_at
		   FROM recommendation_interactions
		  WHERE user_id=? AND product_id=? AND interaction_type=? AND created_at<=? AND created_at>=?
		  ORDER BY created_at DESC LIMIT 1`,
		userID, productID, model.InteractionImpression, at, at.Add(-window)).
		Scan(&in.ID, &in.UserID, &in.ProductID, &in.RecommendationType, &in.InteractionType,
			&in.Position, &in.Quality, &meta, &in.Timestamp)
	if err != nil {
		return in, notFound(err)
	}
	if len(meta) > 0 {
		_ = json.Unmarshal(meta, &in.Metadata)
	}
	return in, nil
}
