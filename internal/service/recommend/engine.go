package recommend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/productbazar/api/internal/apperr"
	"github.com/productbazar/api/internal/cache"
	"github.com/productbazar/api/internal/model"
	"github.com/productbazar/api/internal/repository"
)

// Result is a scored candidate with its product row attached, ready for
// the transport layer.
type Result struct {
	Product model.Product `json:"product"`
	Score   float64       `json:"score"`
	Reason  string        `json:"reason"`
}

// Engine computes recommendations. All strategies read committed rows;
// the engine never writes product data, only profiles and the
// interaction log.
type Engine struct {
	cfg       Config
	products  *repository.ProductRepo
	upvotes   *repository.UpvoteRepo
	bookmarks *repository.BookmarkRepo
	views     *repository.ViewRepo
	users     *repository.UserRepo
	recs      *repository.RecommendationRepo
	store     *cache.Store
	log       zerolog.Logger

	now func() time.Time
}

func New(
	cfg Config,
	products *repository.ProductRepo,
	upvotes *repository.UpvoteRepo,
	bookmarks *repository.BookmarkRepo,
	views *repository.ViewRepo,
	users *repository.UserRepo,
	recs *repository.RecommendationRepo,
	store *cache.Store,
	log zerolog.Logger,
) *Engine {
	return &Engine{
		cfg:       cfg,
		products:  products,
		upvotes:   upvotes,
		bookmarks: bookmarks,
		views:     views,
		users:     users,
		recs:      recs,
		store:     store,
		log:       log.With().Str("component", "recommend").Logger(),
	}
}

func (e *Engine) clock() time.Time {
	if e.now != nil {
		return e.now()
	}
	return time.Now().UTC()
}

// cached wraps a strategy computation with the read-through cache.
func (e *Engine) cached(ctx context.Context, key string, ttl time.Duration, compute func() ([]Result, error), tags ...string) ([]Result, error) {
	if raw, ok := e.store.Get(ctx, key); ok {
		var out []Result
		if err := json.Unmarshal(raw, &out); err == nil {
			return out, nil
		}
	}
	out, err := compute()
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(out); err == nil {
		e.store.Set(ctx, key, raw, ttl, tags...)
	}
	return out, nil
}

// rank sorts by score descending, drops entries below the threshold and
// truncates to limit.
func (e *Engine) rank(results []Result, limit int) []Result {
	kept := results[:0]
	for _, r := range results {
		if r.Score >= e.cfg.MinScore {
			kept = append(kept, r)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })
	if limit > 0 && len(kept) > limit {
		kept = kept[:limit]
	}
	return kept
}

// candidates pulls the published pool a strategy scores over.
func (e *Engine) candidates(ctx context.Context, horizon time.Duration) ([]model.Product, error) {
	since := time.Time{}
	if horizon > 0 {
		since = e.clock().Add(-horizon)
	}
	return e.products.ListPublished(ctx, since, e.cfg.CandidateLimit)
}

// Trending returns globally popular products weighted toward recent
// engagement. Results are shared across users and cached for an hour.
func (e *Engine) Trending(ctx context.Context, limit int) ([]Result, error) {
	key := e.store.GenerateKey("recommendations", StrategyTrending, "limit="+strconv.Itoa(limit))
	return e.cached(ctx, key, e.cfg.TrendingTTL, func() ([]Result, error) {
		now := e.clock()
		pool, err := e.candidates(ctx, 0)
		if err != nil {
			return nil, err
		}
		windowViews, err := e.views.CountsSince(ctx, now.Add(-time.Duration(e.cfg.TrendingWindowDays)*24*time.Hour))
		if err != nil {
			return nil, err
		}
		results := make([]Result, 0, len(pool))
		for _, p := range pool {
			score := e.cfg.scoreTrending(&p, windowViews[p.ID], now)
			if score == 0 {
				continue
			}
			results = append(results, Result{Product: p, Score: score, Reason: StrategyTrending})
		}
		return e.rank(results, limit), nil
	})
}

// New returns recently published products, freshest first with a small
// early-traction bonus.
func (e *Engine) New(ctx context.Context, limit int) ([]Result, error) {
	key := e.store.GenerateKey("recommendations", StrategyNew, "limit="+strconv.Itoa(limit))
	return e.cached(ctx, key, e.cfg.NewTTL, func() ([]Result, error) {
		now := e.clock()
		pool, err := e.candidates(ctx, time.Duration(e.cfg.NewWindowDays)*24*time.Hour)
		if err != nil {
			return nil, err
		}
		results := make([]Result, 0, len(pool))
		for _, p := range pool {
			score := e.cfg.scoreNew(&p, now)
			if score == 0 {
				continue
			}
			results = append(results, Result{Product: p, Score: score, Reason: StrategyNew})
		}
		return e.rank(results, limit), nil
	})
}

// Personalized scores the candidate pool against the user's profile.
// Users without any profile signal fall back to trending.
func (e *Engine) Personalized(ctx context.Context, userID uint64, limit int) ([]Result, error) {
	key := e.store.GenerateKey("recommendations", StrategyPersonalized,
		"user="+strconv.FormatUint(userID, 10), "limit="+strconv.Itoa(limit))
	return e.cached(ctx, key, e.cfg.PersonalizedTTL, func() ([]Result, error) {
		profile, err := e.loadOrBuildProfile(ctx, userID)
		if err != nil {
			return nil, err
		}
		if len(profile.CategoryPrefs) == 0 && len(profile.TagPrefs) == 0 {
			out, err := e.Trending(ctx, limit)
			if err != nil {
				return nil, err
			}
			for i := range out {
				out[i].Reason = StrategyTrending + ":fallback"
			}
			return out, nil
		}
		hist, err := e.historyFor(ctx, userID)
		if err != nil {
			return nil, err
		}
		pool, err := e.candidates(ctx, 0)
		if err != nil {
			return nil, err
		}
		results := make([]Result, 0, len(pool))
		for _, p := range pool {
			if p.MakerID == userID || profile.Dismissed(p.ID) {
				continue
			}
			score := e.cfg.scorePersonalized(&p, profile, hist)
			results = append(results, Result{Product: p, Score: score, Reason: StrategyPersonalized})
		}
		return e.rank(results, limit), nil
	}, cache.UserTag(userID))
}

// Similar returns products resembling the given one by category, tags
// and maker.
func (e *Engine) Similar(ctx context.Context, slug string, limit int) ([]Result, error) {
	ref, err := e.products.GetBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("product not found")
		}
		return nil, apperr.Internal(err)
	}
	key := e.store.GenerateKey("recommendations", StrategySimilar,
		"product="+strconv.FormatUint(ref.ID, 10), "limit="+strconv.Itoa(limit))
	return e.cached(ctx, key, e.cfg.TrendingTTL, func() ([]Result, error) {
		pool, err := e.candidates(ctx, 0)
		if err != nil {
			return nil, err
		}
		results := make([]Result, 0, len(pool))
		for _, p := range pool {
			score := e.cfg.scoreSimilar(&p, &ref)
			results = append(results, Result{Product: p, Score: score, Reason: StrategySimilar})
		}
		return e.rank(results, limit), nil
	}, cache.ProductTag(ref.ID))
}

// Collaborative recommends what similar users upvoted. Neighbor
// similarity is Jaccard over upvote sets; candidates the user already
// upvoted are excluded.
func (e *Engine) Collaborative(ctx context.Context, userID uint64, limit int) ([]Result, error) {
	mine, err := e.upvotes.ListByUser(ctx, userID, 200)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if len(mine) == 0 {
		return e.Trending(ctx, limit)
	}
	myIDs := make([]uint64, 0, len(mine))
	upvoted := make(map[uint64]struct{}, len(mine))
	for _, u := range mine {
		myIDs = append(myIDs, u.ProductID)
		upvoted[u.ProductID] = struct{}{}
	}
	neighbors, err := e.upvotes.OverlappingUsers(ctx, myIDs, userID, 50)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if len(neighbors) == 0 {
		return e.Trending(ctx, limit)
	}

	// Per-neighbor Jaccard: shared / (mine + theirs - shared).
	sim := make(map[uint64]float64, len(neighbors))
	neighborIDs := make([]uint64, 0, len(neighbors))
	for _, n := range neighbors {
		union := len(myIDs) + n.Total - n.Shared
		if union <= 0 {
			continue
		}
		sim[n.UserID] = float64(n.Shared) / float64(union)
		neighborIDs = append(neighborIDs, n.UserID)
	}

	candidateIDs, err := e.upvotes.ProductIDsByUsers(ctx, neighborIDs, e.cfg.CandidateLimit)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	// Aggregate similarity mass per candidate, normalized by the total
	// neighbor mass so scores stay in [0,1].
	var totalSim float64
	for _, s := range sim {
		totalSim += s
	}
	mass := make(map[uint64]float64, len(candidateIDs))
	for _, n := range neighbors {
		ids, err := e.upvotes.ListByUser(ctx, n.UserID, 100)
		if err != nil {
			continue
		}
		for _, u := range ids {
			mass[u.ProductID] += sim[n.UserID]
		}
	}

	products, err := e.products.ListByIDs(ctx, candidateIDs)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	dismissed, err := e.dismissedSet(ctx, userID)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(products))
	for _, p := range products {
		if _, own := upvoted[p.ID]; own || p.MakerID == userID || !p.IsPublished() {
			continue
		}
		if _, skip := dismissed[p.ID]; skip {
			continue
		}
		similarity := 0.0
		if totalSim > 0 {
			similarity = mass[p.ID] / totalSim
		}
		score := e.cfg.scoreCollaborative(&p, similarity)
		results = append(results, Result{Product: p, Score: score, Reason: StrategyCollaborative})
	}
	return e.rank(results, limit), nil
}

// ByStrategy dispatches a canonical or aliased strategy name. Anonymous
// callers are served trending/new regardless of the requested strategy.
// Shared strategy output (trending, new, similar) is cached user-agnostic
// and filtered per user on the way out, so dismissed products and a
// user's own products never reach them through any strategy.
func (e *Engine) ByStrategy(ctx context.Context, strategy string, userID *uint64, slug string, limit int) ([]Result, error) {
	out, err := e.dispatch(ctx, strategy, userID, slug, limit)
	if err != nil || userID == nil || len(out) == 0 {
		return out, err
	}
	return e.withoutExcluded(ctx, *userID, out)
}

func (e *Engine) dispatch(ctx context.Context, strategy string, userID *uint64, slug string, limit int) ([]Result, error) {
	switch NormalizeStrategy(strategy) {
	case StrategyTrending:
		return e.Trending(ctx, limit)
	case StrategyNew:
		return e.New(ctx, limit)
	case StrategySimilar:
		if slug == "" {
			return nil, apperr.Validation("MISSING_PRODUCT", "similar recommendations need a product")
		}
		return e.Similar(ctx, slug, limit)
	case StrategyPersonalized:
		if userID == nil {
			return e.Trending(ctx, limit)
		}
		return e.Personalized(ctx, *userID, limit)
	case StrategyCollaborative, StrategyDiscovery:
		if userID == nil {
			return e.Trending(ctx, limit)
		}
		return e.Collaborative(ctx, *userID, limit)
	case StrategyFeed:
		return e.Feed(ctx, userID, limit)
	default:
		return nil, apperr.Validation("UNKNOWN_STRATEGY", fmt.Sprintf("unknown strategy %q", strategy))
	}
}

// withoutExcluded strips products the user dismissed or made from a
// strategy slice. Runs after the cache, so shared cached entries stay
// user-agnostic.
func (e *Engine) withoutExcluded(ctx context.Context, userID uint64, results []Result) ([]Result, error) {
	dismissed, err := e.dismissedSet(ctx, userID)
	if err != nil {
		return nil, err
	}
	kept := results[:0]
	for _, r := range results {
		if r.Product.MakerID == userID {
			continue
		}
		if _, skip := dismissed[r.Product.ID]; skip {
			continue
		}
		kept = append(kept, r)
	}
	return kept, nil
}

func (e *Engine) dismissedSet(ctx context.Context, userID uint64) (map[uint64]struct{}, error) {
	p, err := e.recs.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, apperr.Internal(err)
	}
	set := make(map[uint64]struct{}, len(p.DismissedProducts))
	for _, id := range p.DismissedProducts {
		set[id] = struct{}{}
	}
	return set, nil
}

// loadOrBuildProfile returns the stored profile, rebuilding a stale or
// missing one on the spot.
func (e *Engine) loadOrBuildProfile(ctx context.Context, userID uint64) (*model.Profile, error) {
	p, err := e.recs.GetProfile(ctx, userID)
	switch {
	case err == nil && e.clock().Sub(p.LastUpdated) < 24*time.Hour:
		return &p, nil
	case err != nil && !errors.Is(err, repository.ErrNotFound):
		return nil, apperr.Internal(err)
	}
	return e.rebuildProfile(ctx, userID)
}

// rebuildProfile recomputes and persists the preference vectors from the
// user's views, upvotes, bookmarks and declared interests.
func (e *Engine) rebuildProfile(ctx context.Context, userID uint64) (*model.Profile, error) {
	views, err := e.views.ListRecentByUser(ctx, userID, 200)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	upvotes, err := e.upvotes.ListByUser(ctx, userID, 200)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	bookmarks, err := e.bookmarks.ListByUser(ctx, userID, 200)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	interests, err := e.users.Interests(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	src := profileSource{interests: interests, now: e.clock()}
	idSet := map[uint64]struct{}{}
	for _, v := range views {
		src.viewed = append(src.viewed, signal{v.ProductID, v.CreatedAt})
		idSet[v.ProductID] = struct{}{}
	}
	for _, u := range upvotes {
		src.upvoted = append(src.upvoted, signal{u.ProductID, u.CreatedAt})
		idSet[u.ProductID] = struct{}{}
	}
	for _, b := range bookmarks {
		src.bookmarked = append(src.bookmarked, signal{b.ProductID, b.CreatedAt})
		idSet[b.ProductID] = struct{}{}
	}
	ids := make([]uint64, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	products, err := e.products.ListByIDs(ctx, ids)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	src.products = make(map[uint64]*model.Product, len(products))
	for i := range products {
		src.products[products[i].ID] = &products[i]
	}

	// Preserve dismissals across rebuilds.
	prev, err := e.recs.GetProfile(ctx, userID)
	profile := e.cfg.buildProfile(userID, src)
	if err == nil {
		profile.DismissedProducts = prev.DismissedProducts
	}
	if err := e.recs.SaveProfile(ctx, *profile); err != nil {
		return nil, apperr.Internal(err)
	}
	return profile, nil
}

// historyFor builds the maker-affinity signal from positive interactions.
func (e *Engine) historyFor(ctx context.Context, userID uint64) (historySignal, error) {
	hist := historySignal{makerCounts: map[uint64]int{}}
	upvotes, err := e.upvotes.ListByUser(ctx, userID, 200)
	if err != nil {
		return hist, apperr.Internal(err)
	}
	bookmarks, err := e.bookmarks.ListByUser(ctx, userID, 200)
	if err != nil {
		return hist, apperr.Internal(err)
	}
	idSet := map[uint64]struct{}{}
	for _, u := range upvotes {
		idSet[u.ProductID] = struct{}{}
	}
	for _, b := range bookmarks {
		idSet[b.ProductID] = struct{}{}
	}
	ids := make([]uint64, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	products, err := e.products.ListByIDs(ctx, ids)
	if err != nil {
		return hist, apperr.Internal(err)
	}
	for _, p := range products {
		hist.makerCounts[p.MakerID]++
		hist.total++
	}
	return hist, nil
}

// Dismiss records that a product must never be recommended to the user
// again and drops their cached strategy outputs.
func (e *Engine) Dismiss(ctx context.Context, userID, productID uint64) error {
	p, err := e.recs.GetProfile(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return apperr.Internal(err)
	}
	if p.UserID == 0 {
		p = model.Profile{UserID: userID, LastUpdated: e.clock()}
	}
	if p.Dismissed(productID) {
		return nil
	}
	p.DismissedProducts = append(p.DismissedProducts, productID)
	if err := e.recs.SaveProfile(ctx, p); err != nil {
		return apperr.Internal(err)
	}
	e.store.SmartInvalidate(ctx, []string{"recommendations:*"}, []string{cache.UserTag(userID)})
	return nil
}

// RefreshProfile rebuilds the profile out of band (called after toggles
// and views from the background pool).
func (e *Engine) RefreshProfile(ctx context.Context, userID uint64) error {
	_, err := e.rebuildProfile(ctx, userID)
	return err
}
