package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/productbazar/api/internal/apperr"
	"github.com/productbazar/api/internal/cache"
	"github.com/productbazar/api/internal/model"
	"github.com/productbazar/api/internal/repository"
	"github.com/productbazar/api/internal/utils"
	"github.com/productbazar/api/internal/worker"
)

// ViewService ingests product views, classifies bots and maintains the
// per-product rollups. Bot views are stored but never counted.
type ViewService struct {
	products *repository.ProductRepo
	views    *repository.ViewRepo
	store    *cache.Store
	pool     *worker.Pool
	rec      Recommender
	log      zerolog.Logger
}

func NewViewService(
	products *repository.ProductRepo,
	views *repository.ViewRepo,
	store *cache.Store,
	pool *worker.Pool,
	rec Recommender,
	log zerolog.Logger,
) *ViewService {
	return &ViewService{
		products: products,
		views:    views,
		store:    store,
		pool:     pool,
		rec:      rec,
		log:      log.With().Str("component", "views").Logger(),
	}
}

// RecordViewInput is everything the ingestion path needs from a request.
type RecordViewInput struct {
	Slug      string
	UserID    *uint64 // nil for anonymous viewers
	SessionID string  // generated when empty
	UserAgent string
	Source    string
	Referrer  string
	Country   string
	OS        string
	Browser   string
	Duration  *int // seconds, optional
}

// RecordView appends a view, updates counters on non-bot traffic and
// invalidates the product's analytics caches.
func (s *ViewService) RecordView(ctx context.Context, in RecordViewInput) (model.View, error) {
	p, err := s.products.GetBySlug(ctx, in.Slug)
	if err != nil {
		if err == repository.ErrNotFound {
			return model.View{}, apperr.NotFound("product not found")
		}
		return model.View{}, apperr.Internal(err)
	}

	session := in.SessionID
	if session == "" {
		session = uuid.NewString()
	}
	source := in.Source
	if source == "" {
		source = "direct"
	}
	v := model.View{
		ProductID:    p.ID,
		UserID:       in.UserID,
		SessionID:    session,
		Source:       source,
		Referrer:     in.Referrer,
		Device:       utils.DeviceFromUserAgent(in.UserAgent),
		OS:           in.OS,
		Browser:      in.Browser,
		Country:      in.Country,
		IsBot:        utils.IsBotUserAgent(in.UserAgent),
		ViewDuration: in.Duration,
	}

	if !v.IsBot {
		// The prior-view check must run before the insert, otherwise the
		// fresh row makes every view look repeated.
		prior, err := s.views.HasPriorView(ctx, p.ID, in.UserID, session)
		if err != nil {
			return v, apperr.Internal(err)
		}
		if err := s.views.Insert(ctx, &v); err != nil {
			return v, apperr.Internal(err)
		}
		if err := s.products.BumpViews(ctx, p.ID, !prior); err != nil {
			return v, apperr.Internal(err)
		}
		if err := s.views.BumpDaily(ctx, p.ID, time.Now().UTC()); err != nil {
			return v, apperr.Internal(err)
		}
		if in.UserID != nil {
			s.pool.Submit("rec-track:view", func(ctx context.Context) error {
				if err := s.rec.TrackInteraction(ctx, *in.UserID, p.ID, "", model.InteractionView); err != nil {
					return err
				}
				return s.rec.RefreshProfile(ctx, *in.UserID)
			})
		}
	} else if err := s.views.Insert(ctx, &v); err != nil {
		return v, apperr.Internal(err)
	}

	s.store.InvalidateViewCaches(ctx, p.ID, in.UserID)
	return v, nil
}

// Analytics assembles the query-time rollup for a product: totals from
// the persisted counters, daily buckets from the rollup table, splits
// from the views table. The analytics response is cached per product.
func (s *ViewService) Analytics(ctx context.Context, slug string) (model.ViewAnalytics, error) {
	var out model.ViewAnalytics
	p, err := s.products.GetBySlug(ctx, slug)
	if err != nil {
		if err == repository.ErrNotFound {
			return out, apperr.NotFound("product not found")
		}
		return out, apperr.Internal(err)
	}

	key := s.store.GenerateKey("views", "analytics", p.Slug)
	if raw, ok := s.store.Get(ctx, key); ok {
		if err := json.Unmarshal(raw, &out); err == nil {
			return out, nil
		}
	}

	out = model.ViewAnalytics{ProductID: p.ID, Total: p.ViewTotal, Unique: p.ViewUnique}
	if out.Daily, err = s.views.DailyHistory(ctx, p.ID); err != nil {
		return out, apperr.Internal(err)
	}
	if out.BySource, err = s.views.BySource(ctx, p.ID); err != nil {
		return out, apperr.Internal(err)
	}
	if out.ByDevice, err = s.views.ByDevice(ctx, p.ID); err != nil {
		return out, apperr.Internal(err)
	}
	if out.ByCountry, err = s.views.ByCountry(ctx, p.ID); err != nil {
		return out, apperr.Internal(err)
	}
	if out.AvgDuration, err = s.views.AvgDuration(ctx, p.ID); err != nil {
		return out, apperr.Internal(err)
	}

	if raw, err := json.Marshal(out); err == nil {
		s.store.Set(ctx, key, raw, 5*time.Minute, cache.ProductTag(p.ID))
	}
	return out, nil
}
