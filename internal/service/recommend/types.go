// Package recommend builds per-user interest profiles from interactions
// and scores candidate products across several strategies: trending, new,
// personalized, similar, collaborative and a diversity-constrained
// composed feed. Scores are normalized to [0,1]; everything below the
// minimum threshold is dropped.
package recommend

import (
	"strings"
	"time"
)

// Canonical strategy names. Aliases observed in clients are normalized
// before storage and analytics.
const (
	StrategyTrending      = "trending"
	StrategyNew           = "new"
	StrategyPersonalized  = "personalized"
	StrategySimilar       = "similar"
	StrategyCollaborative = "collaborative"
	StrategyDiscovery     = "discovery"
	StrategyFeed          = "feed"
)

// strategyAliases maps client spellings onto canonical names.
var strategyAliases = map[string]string{
	"personal":         StrategyPersonalized,
	"for_you":          StrategyPersonalized,
	"foryou":           StrategyPersonalized,
	"user":             StrategyPersonalized,
	"user_based":       StrategyCollaborative,
	"collab":           StrategyCollaborative,
	"cf":               StrategyCollaborative,
	"hot":              StrategyTrending,
	"popular":          StrategyTrending,
	"recent":           StrategyNew,
	"latest":           StrategyNew,
	"related":          StrategySimilar,
	"similar_products": StrategySimilar,
	"home":             StrategyFeed,
	"diversified":      StrategyFeed,
	"explore":          StrategyDiscovery,
}

// NormalizeStrategy maps an alias to its canonical name; unknown names
// pass through lowercased.
func NormalizeStrategy(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	if canon, ok := strategyAliases[n]; ok {
		return canon
	}
	return n
}

// ScoredProduct is one strategy result.
type ScoredProduct struct {
	ProductID uint64  `json:"productId"`
	Score     float64 `json:"score"`
	Reason    string  `json:"reason"`
}

// Config carries the scoring weights and cache TTLs. The zero value is
// not usable; start from DefaultConfig.
type Config struct {
	// MinScore drops weak results from every strategy.
	MinScore float64

	// Profile aggregation weights per interaction source.
	ViewWeight     float64
	UpvoteWeight   float64
	BookmarkWeight float64
	InterestWeight float64 // multiplier on strength/10
	TagAttenuation float64 // tag weight relative to category

	// Normalization divisors and caps for the preference vectors.
	CategoryDivisor float64
	TagDivisor      float64
	MaxCategories   int
	MaxTags         int

	// Trending window and thresholds.
	TrendingWindowDays int
	RecencyHalfLife    time.Duration
	MinTrendingViews   int
	MinTrendingVotes   int

	// New-product horizon.
	NewWindowDays int

	// Feed composition ratios; they sum to 1.
	FeedTrending     float64
	FeedNew          float64
	FeedPersonalized float64
	FeedDiscovery    float64

	// Diversity caps as fractions of the feed length.
	CategoryCap float64
	MakerCap    float64
	TagCap      float64

	// Impression attribution window for clicks/conversions.
	AttributionWindow time.Duration

	// Candidate pool size pulled from storage per strategy run.
	CandidateLimit int

	// Cache TTLs per strategy output.
	TrendingTTL     time.Duration
	NewTTL          time.Duration
	PersonalizedTTL time.Duration
	FeedTTL         time.Duration
}

// DefaultConfig returns the production weights.
func DefaultConfig() Config {
	return Config{
		MinScore:           0.2,
		ViewWeight:         0.2,
		UpvoteWeight:       1.0,
		BookmarkWeight:     0.8,
		InterestWeight:     2.0,
		TagAttenuation:     0.8,
		CategoryDivisor:    5.0,
		TagDivisor:         4.0,
		MaxCategories:      20,
		MaxTags:            50,
		TrendingWindowDays: 15,
		RecencyHalfLife:    15 * 24 * time.Hour,
		MinTrendingViews:   5,
		MinTrendingVotes:   2,
		NewWindowDays:      30,
		FeedTrending:       0.3,
		FeedNew:            0.2,
		FeedPersonalized:   0.4,
		FeedDiscovery:      0.1,
		CategoryCap:        0.4,
		MakerCap:           0.3,
		TagCap:             0.3,
		AttributionWindow:  30 * time.Minute,
		CandidateLimit:     300,
		TrendingTTL:        time.Hour,
		NewTTL:             2 * time.Hour,
		PersonalizedTTL:    12 * time.Hour,
		FeedTTL:            30 * time.Minute,
	}
}

// qualityBase maps interaction types to engagement base scores.
var qualityBase = map[string]float64{
	"impression": 1,
	"view":       2,
	"click":      3,
	"bookmark":   4,
	"upvote":     4,
	"comment":    4.5,
	"conversion": 5,
}

// BlendQuality computes the tracked engagement quality: the base score
// for the interaction type, blended 0.7/0.3 with any prior quality and
// clamped to [0,10].
func BlendQuality(interactionType string, prior float64, hasPrior bool) float64 {
	base, ok := qualityBase[interactionType]
	if !ok {
		base = 1
	}
	q := base
	if hasPrior {
		q = 0.7*base + 0.3*prior
	}
	if q < 0 {
		q = 0
	}
	if q > 10 {
		q = 10
	}
	return q
}
