package recommend

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"strconv"

	"github.com/productbazar/api/internal/cache"
)

// Feed composes a home feed from multiple strategies under fixed ratios,
// deduplicates keeping the best score, and enforces diversity caps so no
// single category, maker or tag dominates. Anonymous users get a
// trending/new blend.
func (e *Engine) Feed(ctx context.Context, userID *uint64, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 20
	}
	variants := []string{"limit=" + strconv.Itoa(limit), "user=anon"}
	if userID != nil {
		variants[1] = "user=" + strconv.FormatUint(*userID, 10)
	}
	key := e.store.GenerateKey("recommendations", StrategyFeed, variants...)

	if raw, ok := e.store.Get(ctx, key); ok {
		var out []Result
		if err := json.Unmarshal(raw, &out); err == nil {
			return out, nil
		}
	}

	// Over-fetch each slice so dedupe and diversity still fill the feed.
	fetch := 2 * limit
	slices := make([][]Result, 0, 4)

	trending, err := e.Trending(ctx, share(fetch, e.cfg.FeedTrending))
	if err != nil {
		return nil, err
	}
	slices = append(slices, trending)

	fresh, err := e.New(ctx, share(fetch, e.cfg.FeedNew))
	if err != nil {
		return nil, err
	}
	slices = append(slices, fresh)

	if userID != nil {
		personalized, err := e.Personalized(ctx, *userID, share(fetch, e.cfg.FeedPersonalized))
		if err != nil {
			return nil, err
		}
		slices = append(slices, personalized)

		discovery, err := e.Collaborative(ctx, *userID, share(fetch, e.cfg.FeedDiscovery))
		if err == nil {
			for i := range discovery {
				discovery[i].Reason = StrategyDiscovery
			}
			slices = append(slices, discovery)
		} else {
			// Collaborative is best-effort inside the feed.
			e.log.Warn().Err(err).Uint64("user_id", *userID).Msg("feed discovery slice failed")
		}
	}

	merged := dedupe(slices)
	if userID != nil {
		// Trending and new are cached across users; dismissed and own
		// products get stripped here before the feed is composed.
		merged, err = e.withoutExcluded(ctx, *userID, merged)
		if err != nil {
			return nil, err
		}
	}
	out := e.diversify(merged, limit)

	var tags []string
	if userID != nil {
		tags = append(tags, cache.UserTag(*userID))
	}
	if raw, err := json.Marshal(out); err == nil {
		e.store.Set(ctx, key, raw, e.cfg.FeedTTL, tags...)
	}
	return out, nil
}

func share(total int, ratio float64) int {
	n := int(math.Ceil(float64(total) * ratio))
	if n < 1 {
		n = 1
	}
	return n
}

// dedupe merges strategy slices keeping the highest score per product.
// Order follows first appearance so earlier strategies keep their rank
// on ties.
func dedupe(slices [][]Result) []Result {
	best := map[uint64]int{}
	out := make([]Result, 0)
	for _, s := range slices {
		for _, r := range s {
			if i, ok := best[r.Product.ID]; ok {
				if r.Score > out[i].Score {
					out[i].Score = r.Score
					out[i].Reason = r.Reason
				}
				continue
			}
			best[r.Product.ID] = len(out)
			out = append(out, r)
		}
	}
	return out
}

// diversify greedily fills the feed in score order while holding per
// category, per maker and per tag counts under the configured caps.
// Items skipped by a cap backfill the tail if the feed would otherwise
// come up short.
func (e *Engine) diversify(results []Result, limit int) []Result {
	sortByScore(results)

	catCap := capFor(limit, e.cfg.CategoryCap)
	makerCap := capFor(limit, e.cfg.MakerCap)
	tagCap := capFor(limit, e.cfg.TagCap)

	catCount := map[string]int{}
	makerCount := map[uint64]int{}
	tagCount := map[string]int{}

	out := make([]Result, 0, limit)
	var skipped []Result

	for _, r := range results {
		if len(out) == limit {
			break
		}
		p := r.Product
		if catCount[p.Category] >= catCap || makerCount[p.MakerID] >= makerCap || anyTagAt(tagCount, p.Tags, tagCap) {
			skipped = append(skipped, r)
			continue
		}
		catCount[p.Category]++
		makerCount[p.MakerID]++
		for _, t := range p.Tags {
			tagCount[t]++
		}
		out = append(out, r)
	}
	for _, r := range skipped {
		if len(out) == limit {
			break
		}
		out = append(out, r)
	}
	return out
}

func capFor(limit int, ratio float64) int {
	n := int(math.Ceil(float64(limit) * ratio))
	if n < 1 {
		n = 1
	}
	return n
}

func anyTagAt(counts map[string]int, tags []string, ceiling int) bool {
	for _, t := range tags {
		if counts[t] >= ceiling {
			return true
		}
	}
	return false
}

func sortByScore(results []Result) {
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
}
