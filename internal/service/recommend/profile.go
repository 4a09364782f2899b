package recommend

import (
	"sort"
	"time"

	"github.com/productbazar/api/internal/model"
)

// signal is one interaction: which product and when it happened. The
// timestamps feed each preference's lastInteraction.
type signal struct {
	productID uint64
	at        time.Time
}

// profileSource is the raw interaction material a profile is built from.
// Weights are attributed per product occurrence, so repeated views of
// the same product accumulate.
type profileSource struct {
	viewed     []signal
	upvoted    []signal
	bookmarked []signal
	interests  []model.Interest
	products   map[uint64]*model.Product
	now        time.Time
}

// buildProfile aggregates weighted category and tag preferences.
// Categories take the full interaction weight, tags an attenuated
// share. Raw sums are normalized against fixed divisors and capped at
// 1.0, then trimmed to the strongest entries.
type acc struct {
	raw   float64
	count int
	last  time.Time
}

func (c Config) buildProfile(userID uint64, src profileSource) *model.Profile {
	cats := map[string]*acc{}
	tags := map[string]*acc{}

	add := func(s signal, weight float64) {
		p, ok := src.products[s.productID]
		if !ok {
			return
		}
		if p.Category != "" {
			a := cats[p.Category]
			if a == nil {
				a = &acc{}
				cats[p.Category] = a
			}
			a.raw += weight
			a.count++
			if s.at.After(a.last) {
				a.last = s.at
			}
		}
		for _, t := range p.Tags {
			a := tags[t]
			if a == nil {
				a = &acc{}
				tags[t] = a
			}
			a.raw += weight * c.TagAttenuation
			a.count++
			if s.at.After(a.last) {
				a.last = s.at
			}
		}
	}

	for _, s := range src.viewed {
		add(s, c.ViewWeight)
	}
	for _, s := range src.upvoted {
		add(s, c.UpvoteWeight)
	}
	for _, s := range src.bookmarked {
		add(s, c.BookmarkWeight)
	}

	// Declared interests feed the category vector directly; strength is
	// stored on a 0-10 scale.
	for _, in := range src.interests {
		a := cats[in.Name]
		if a == nil {
			a = &acc{}
			cats[in.Name] = a
		}
		a.raw += (float64(in.Strength) / 10.0) * c.InterestWeight
		a.count++
		if src.now.After(a.last) {
			a.last = src.now
		}
	}

	return &model.Profile{
		UserID:        userID,
		CategoryPrefs: normalize(cats, c.CategoryDivisor, c.MaxCategories),
		TagPrefs:      normalize(tags, c.TagDivisor, c.MaxTags),
		LastUpdated:   src.now,
	}
}

func normalize(raw map[string]*acc, divisor float64, max int) map[string]model.Preference {
	prefs := make([]model.Preference, 0, len(raw))
	for name, a := range raw {
		score := a.raw / divisor
		if score > 1 {
			score = 1
		}
		prefs = append(prefs, model.Preference{
			Name:            name,
			Score:           score,
			Count:           a.count,
			LastInteraction: a.last,
		})
	}
	sort.Slice(prefs, func(i, j int) bool {
		if prefs[i].Score != prefs[j].Score {
			return prefs[i].Score > prefs[j].Score
		}
		return prefs[i].Name < prefs[j].Name
	})
	if len(prefs) > max {
		prefs = prefs[:max]
	}
	out := make(map[string]model.Preference, len(prefs))
	for _, p := range prefs {
		out[p.Name] = p
	}
	return out
}
