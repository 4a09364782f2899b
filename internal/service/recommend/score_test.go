package recommend

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/productbazar/api/internal/model"
)

func TestNormalizeStrategy(t *testing.T) {
	cases := map[string]string{
		"personal":   StrategyPersonalized,
		"For_You":    StrategyPersonalized,
		"user_based": StrategyCollaborative,
		"hot":        StrategyTrending,
		"latest":     StrategyNew,
		"related":    StrategySimilar,
		"home":       StrategyFeed,
		"trending":   StrategyTrending,
		"custom":     "custom", // unknown names pass through lowercased
		" CUSTOM ":   "custom",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeStrategy(in), "input %q", in)
	}
}

func TestBlendQuality(t *testing.T) {
	// First interaction: the base score verbatim.
	assert.InDelta(t, 2.0, BlendQuality("view", 0, false), 1e-9)
	assert.InDelta(t, 5.0, BlendQuality("conversion", 0, false), 1e-9)
	assert.InDelta(t, 1.0, BlendQuality("something_else", 0, false), 1e-9)

	// With a prior: 0.7·base + 0.3·prior.
	assert.InDelta(t, 0.7*4+0.3*2, BlendQuality("upvote", 2, true), 1e-9)

	// Clamped to [0,10] whatever the prior claims.
	assert.LessOrEqual(t, BlendQuality("conversion", 100, true), 10.0)
	assert.GreaterOrEqual(t, BlendQuality("impression", -50, true), 0.0)
}

func TestScoreTrendingThresholds(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Now().UTC()
	p := &model.Product{UpvoteCount: 10, CreatedAt: now.Add(-24 * time.Hour)}

	// Below the view floor.
	assert.Zero(t, cfg.scoreTrending(p, cfg.MinTrendingViews-1, now))

	// Below the vote floor.
	cold := &model.Product{UpvoteCount: cfg.MinTrendingVotes - 1, CreatedAt: now}
	assert.Zero(t, cfg.scoreTrending(cold, 100, now))

	// Above both floors the score is positive and bounded.
	s := cfg.scoreTrending(p, 50, now)
	assert.Greater(t, s, 0.0)
	assert.LessOrEqual(t, s, 1.0)
}

func TestScoreTrendingPrefersRecent(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Now().UTC()
	fresh := &model.Product{ID: 1, UpvoteCount: 10, CreatedAt: now.Add(-24 * time.Hour)}
	stale := &model.Product{ID: 2, UpvoteCount: 10, CreatedAt: now.Add(-90 * 24 * time.Hour)}

	assert.Greater(t, cfg.scoreTrending(fresh, 40, now), cfg.scoreTrending(stale, 40, now))
}

func TestScoreNewWindow(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Now().UTC()

	young := &model.Product{CreatedAt: now.Add(-2 * 24 * time.Hour)}
	old := &model.Product{CreatedAt: now.Add(-40 * 24 * time.Hour)}

	assert.Greater(t, cfg.scoreNew(young, now), 0.0)
	assert.Zero(t, cfg.scoreNew(old, now), "outside the window scores zero")
}

func TestScoreSimilar(t *testing.T) {
	cfg := DefaultConfig()
	ref := &model.Product{ID: 1, MakerID: 10, Category: "devtools", Tags: []string{"go", "cli"}}

	same := &model.Product{ID: 2, MakerID: 10, Category: "devtools", Tags: []string{"go", "cli"}}
	assert.InDelta(t, 1.0, cfg.scoreSimilar(same, ref), 1e-9)

	unrelated := &model.Product{ID: 3, MakerID: 99, Category: "fintech", Tags: []string{"payments"}}
	assert.Zero(t, cfg.scoreSimilar(unrelated, ref))

	// Identity never matches itself.
	assert.Zero(t, cfg.scoreSimilar(ref, ref))

	// Partial tag overlap lands in between.
	partial := &model.Product{ID: 4, MakerID: 99, Category: "devtools", Tags: []string{"go", "web"}}
	s := cfg.scoreSimilar(partial, ref)
	assert.Greater(t, s, 0.0)
	assert.Less(t, s, 1.0)
}

func TestTagJaccard(t *testing.T) {
	assert.InDelta(t, 1.0, tagJaccard([]string{"a", "b"}, []string{"b", "a"}), 1e-9)
	assert.InDelta(t, 1.0/3.0, tagJaccard([]string{"a", "b"}, []string{"b", "c"}), 1e-9)
	assert.Zero(t, tagJaccard(nil, []string{"a"}))
}

func TestBuildProfileWeights(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Now().UTC()
	products := map[uint64]*model.Product{
		1: {ID: 1, Category: "devtools", Tags: []string{"go"}},
		2: {ID: 2, Category: "fintech", Tags: []string{"payments"}},
	}

	profile := cfg.buildProfile(42, profileSource{
		upvoted:  []signal{{1, now}},
		viewed:   []signal{{2, now}},
		products: products,
		now:      now,
	})

	require.Contains(t, profile.CategoryPrefs, "devtools")
	require.Contains(t, profile.CategoryPrefs, "fintech")

	// One upvote (weight 1.0) outweighs one view (weight 0.2).
	assert.Greater(t, profile.CategoryPrefs["devtools"].Score, profile.CategoryPrefs["fintech"].Score)

	// Tags get the attenuated share of the same interaction.
	require.Contains(t, profile.TagPrefs, "go")
	assert.InDelta(t, cfg.UpvoteWeight*cfg.TagAttenuation/cfg.TagDivisor, profile.TagPrefs["go"].Score, 1e-9)

	assert.Equal(t, uint64(42), profile.UserID)
	assert.Equal(t, now, profile.LastUpdated)
}

func TestBuildProfileInterestsAndCaps(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxCategories = 2
	now := time.Now().UTC()

	src := profileSource{
		interests: []model.Interest{
			{Name: "ai", Strength: 10},
			{Name: "devtools", Strength: 5},
			{Name: "fintech", Strength: 1},
		},
		now: now,
	}
	profile := cfg.buildProfile(1, src)

	// Trimmed to the strongest two.
	assert.Len(t, profile.CategoryPrefs, 2)
	assert.Contains(t, profile.CategoryPrefs, "ai")
	assert.Contains(t, profile.CategoryPrefs, "devtools")
	assert.NotContains(t, profile.CategoryPrefs, "fintech")

	// Full-strength interest: (10/10)·2.0 / divisor 5 = 0.4.
	assert.InDelta(t, 0.4, profile.CategoryPrefs["ai"].Score, 1e-9)
}

func TestBuildProfileScoreCappedAtOne(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Now().UTC()
	products := map[uint64]*model.Product{}
	var upvoted []signal
	for i := uint64(1); i <= 20; i++ {
		products[i] = &model.Product{ID: i, Category: "devtools"}
		upvoted = append(upvoted, signal{i, now})
	}
	profile := cfg.buildProfile(1, profileSource{upvoted: upvoted, products: products, now: now})
	assert.InDelta(t, 1.0, profile.CategoryPrefs["devtools"].Score, 1e-9)
	assert.Equal(t, 20, profile.CategoryPrefs["devtools"].Count)
}

func TestBuildProfileLastInteractionUsesNewestTimestamp(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Now().UTC()
	old := now.Add(-72 * time.Hour)
	recent := now.Add(-2 * time.Hour)
	products := map[uint64]*model.Product{
		1: {ID: 1, Category: "devtools", Tags: []string{"go"}},
	}

	profile := cfg.buildProfile(7, profileSource{
		viewed:   []signal{{1, old}, {1, recent}},
		products: products,
		now:      now,
	})

	// The preference carries the newest interaction time, not the build
	// time.
	assert.Equal(t, recent, profile.CategoryPrefs["devtools"].LastInteraction)
	assert.Equal(t, recent, profile.TagPrefs["go"].LastInteraction)
	assert.Equal(t, 2, profile.CategoryPrefs["devtools"].Count)
}
