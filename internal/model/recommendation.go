package model

import "time"

// Recommendation interaction types, ordered roughly by engagement value.
const (
	InteractionImpression   = "impression"
	InteractionView         = "view"
	InteractionClick        = "click"
	InteractionUpvote       = "upvote"
	InteractionRemoveUpvote = "remove_upvote"
	InteractionBookmark     = "bookmark"
	InteractionRemoveBookmark = "remove_bookmark"
	InteractionComment      = "comment"
	InteractionConversion   = "conversion"
)

// Preference is one weighted entry of a user's interest profile, for either
// a category or a tag. Score is normalized to [0,1].
type Preference struct {
	Name            string    `json:"name"`  // category or tag name
	Score           float64   `json:"score"` // normalized weight in [0,1]
	Count           int       `json:"count"` // interactions contributing
	LastInteraction time.Time `json:"lastInteraction"`
}

// RecommendedProduct is a cached scoring result stored on the profile.
type RecommendedProduct struct {
	ProductID      uint64    `json:"productId"`
	Score          float64   `json:"score"`
	Reason         string    `json:"reason"`
	LastCalculated time.Time `json:"lastCalculated"`
}

// Profile is a user's recommendation profile, owned exclusively by the
// recommendation engine. Category and tag preferences are rebuilt from
// interactions; dismissed products are never recommended again.
type Profile struct {
	UserID              uint64                // recommendation_profiles.user_id
	CategoryPrefs       map[string]Preference // recommendation_profiles.category_prefs (json, keyed by name)
	TagPrefs            map[string]Preference // recommendation_profiles.tag_prefs (json, keyed by name)
	RecommendedProducts []RecommendedProduct  // recommendation_profiles.recommended (json)
	DismissedProducts   []uint64              // recommendation_profiles.dismissed (json)
	LastUpdated         time.Time             // recommendation_profiles.last_updated
}

// Dismissed reports whether productID was dismissed by the user.
func (p *Profile) Dismissed(productID uint64) bool {
	for _, id := range p.DismissedProducts {
		if id == productID {
			return true
		}
	}
	return false
}

// RecInteraction mirrors the `recommendation_interactions` table; an
// append-only log of how users engage with recommended items.
//
// Quality is the blended engagement score in [0,10]: 0.7·base + 0.3·prior.
type RecInteraction struct {
	ID                 uint64            // recommendation_interactions.id
	UserID             uint64            // recommendation_interactions.user_id
	ProductID          uint64            // recommendation_interactions.product_id
	RecommendationType string            // recommendation_interactions.recommendation_type
	InteractionType    string            // recommendation_interactions.interaction_type
	Position           *int              // recommendation_interactions.position (nullable)
	Quality            float64           // recommendation_interactions.quality
	Metadata           map[string]string // recommendation_interactions.metadata (json)
	Timestamp          time.Time         // recommendation_interactions.created_at
}
