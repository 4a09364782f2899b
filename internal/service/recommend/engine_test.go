package recommend

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/productbazar/api/internal/cache"
	"github.com/productbazar/api/internal/model"
	"github.com/productbazar/api/internal/repository"
)

type engineFixture struct {
	e     *Engine
	mock  sqlmock.Sqlmock
	store *cache.Store
	now   time.Time
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	store := cache.NewStore(rdb, zerolog.Nop(), false)
	e := New(DefaultConfig(), repository.NewProductRepo(db), repository.NewUpvoteRepo(db),
		repository.NewBookmarkRepo(db), repository.NewViewRepo(db), repository.NewUserRepo(db),
		repository.NewRecommendationRepo(db), store, zerolog.Nop())
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }
	return &engineFixture{e: e, mock: mock, store: store, now: now}
}

// prime stores a strategy result under its cache key so the engine serves
// it without touching the database.
func (f *engineFixture) prime(t *testing.T, key string, results []Result) {
	t.Helper()
	raw, err := json.Marshal(results)
	require.NoError(t, err)
	f.store.Set(context.Background(), key, raw, time.Minute)
}

func (f *engineFixture) expectProfile(userID uint64, dismissed string) {
	rows := sqlmock.NewRows([]string{"user_id", "category_prefs", "tag_prefs", "recommended", "dismissed", "last_updated"}).
		AddRow(userID, []byte(`{}`), []byte(`{}`), []byte(`[]`), []byte(dismissed), f.now)
	f.mock.ExpectQuery("SELECT .+ FROM recommendation_profiles WHERE user_id=\\?").
		WithArgs(userID).WillReturnRows(rows)
}

func TestByStrategyFiltersDismissedAndOwnProducts(t *testing.T) {
	f := newEngineFixture(t)
	user := uint64(9)

	f.prime(t, f.store.GenerateKey("recommendations", StrategyTrending, "limit=10"), []Result{
		{Product: model.Product{ID: 1, Slug: "alpha"}, Score: 0.9, Reason: StrategyTrending},
		{Product: model.Product{ID: 2, Slug: "beta", MakerID: user}, Score: 0.8, Reason: StrategyTrending},
		{Product: model.Product{ID: 3, Slug: "gamma", MakerID: 4}, Score: 0.7, Reason: StrategyTrending},
	})
	f.expectProfile(user, `[1]`)

	out, err := f.e.ByStrategy(context.Background(), "trending", &user, "", 10)
	require.NoError(t, err)

	// The dismissed product and the user's own product are gone; the
	// shared cached entry is untouched.
	require.Len(t, out, 1)
	assert.Equal(t, uint64(3), out[0].Product.ID)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestByStrategyAnonymousServesSharedResults(t *testing.T) {
	f := newEngineFixture(t)

	f.prime(t, f.store.GenerateKey("recommendations", StrategyTrending, "limit=10"), []Result{
		{Product: model.Product{ID: 1}, Score: 0.9, Reason: StrategyTrending},
		{Product: model.Product{ID: 2}, Score: 0.8, Reason: StrategyTrending},
	})

	out, err := f.e.ByStrategy(context.Background(), "trending", nil, "", 10)
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSimilarProductsExcludeDismissedForSignedInUser(t *testing.T) {
	f := newEngineFixture(t)
	user := uint64(9)

	f.mock.ExpectQuery("SELECT .+ FROM products WHERE slug=\\?").
		WithArgs("widget").
		WillReturnRows(sqlmock.NewRows([]string{"id", "slug", "maker_id", "name", "category",
			"status", "upvote_count", "bookmark_count", "comment_count", "view_total",
			"view_unique", "created_at", "updated_at"}).
			AddRow(10, "widget", 4, "Widget", "devtools", "published", 5, 2, 0, 40, 30, f.now, f.now))
	f.mock.ExpectQuery("SELECT tag FROM product_tags WHERE product_id=\\?").
		WithArgs(uint64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"tag"}))
	f.prime(t, f.store.GenerateKey("recommendations", StrategySimilar, "product=10", "limit=5"), []Result{
		{Product: model.Product{ID: 7, Category: "devtools", MakerID: 5}, Score: 0.8, Reason: StrategySimilar},
		{Product: model.Product{ID: 8, Category: "devtools", MakerID: 6}, Score: 0.6, Reason: StrategySimilar},
	})
	f.expectProfile(user, `[7]`)

	out, err := f.e.ByStrategy(context.Background(), StrategySimilar, &user, "widget", 5)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, uint64(8), out[0].Product.ID)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestFeedExcludesDismissedProducts(t *testing.T) {
	f := newEngineFixture(t)
	user := uint64(9)

	// Feed over-fetches 2x: for a 4-item feed the slices are trending 3,
	// new 2, personalized 4, discovery 1.
	f.prime(t, f.store.GenerateKey("recommendations", StrategyTrending, "limit=3"), []Result{
		{Product: model.Product{ID: 1, Category: "devtools", MakerID: 2}, Score: 0.55, Reason: StrategyTrending},
		{Product: model.Product{ID: 2, Category: "fintech", MakerID: 3}, Score: 0.5, Reason: StrategyTrending},
	})
	f.prime(t, f.store.GenerateKey("recommendations", StrategyNew, "limit=2"), []Result{
		{Product: model.Product{ID: 3, Category: "design", MakerID: 4}, Score: 0.45, Reason: StrategyNew},
	})
	f.prime(t, f.store.GenerateKey("recommendations", StrategyPersonalized, "user=9", "limit=4"), []Result{
		{Product: model.Product{ID: 4, Category: "ai", MakerID: 5}, Score: 0.6, Reason: StrategyPersonalized},
	})
	// No upvotes, so the discovery slice falls back to trending.
	f.mock.ExpectQuery("SELECT .+ FROM upvotes WHERE user_id=\\?").
		WithArgs(user, 200).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "product_id", "created_at"}))
	f.prime(t, f.store.GenerateKey("recommendations", StrategyTrending, "limit=1"), []Result{
		{Product: model.Product{ID: 2, Category: "fintech", MakerID: 3}, Score: 0.5, Reason: StrategyTrending},
	})
	f.expectProfile(user, `[1]`)

	out, err := f.e.Feed(context.Background(), &user, 4)
	require.NoError(t, err)

	ids := make([]uint64, 0, len(out))
	for _, r := range out {
		assert.NotEqual(t, uint64(1), r.Product.ID, "dismissed product reached the feed")
		ids = append(ids, r.Product.ID)
	}
	assert.ElementsMatch(t, []uint64{2, 3, 4}, ids)
	require.NoError(t, f.mock.ExpectationsWereMet())
}
