package recommend

import (
	"math"
	"sort"
	"time"

	"github.com/productbazar/api/internal/model"
)

// recencyScore decays exponentially with age: 1.0 at publish time,
// 0.5 after one half-life.
func recencyScore(createdAt, now time.Time, halfLife time.Duration) float64 {
	age := now.Sub(createdAt)
	if age <= 0 {
		return 1
	}
	return math.Exp2(-age.Hours() / halfLife.Hours())
}

// logNorm squashes an unbounded count into [0,1); scale sets the count
// at which the score reaches ~0.5.
func logNorm(count, scale float64) float64 {
	if count <= 0 || scale <= 0 {
		return 0
	}
	return count / (count + scale)
}

// scoreTrending ranks by recent engagement velocity. Products below the
// minimum view/vote thresholds return 0 and are filtered out.
func (c Config) scoreTrending(p *model.Product, windowViews int, now time.Time) float64 {
	if windowViews < c.MinTrendingViews || p.UpvoteCount < c.MinTrendingVotes {
		return 0
	}
	views := logNorm(float64(windowViews), 50)
	votes := logNorm(float64(p.UpvoteCount), 20)
	rec := recencyScore(p.CreatedAt, now, c.RecencyHalfLife)
	return 0.3*views + 0.5*votes + 0.2*rec
}

// scoreNew ranks fresh products: mostly recency, with a small quality
// term so launches with early traction float up. Products older than
// the new-window return 0.
func (c Config) scoreNew(p *model.Product, now time.Time) float64 {
	if now.Sub(p.CreatedAt) > time.Duration(c.NewWindowDays)*24*time.Hour {
		return 0
	}
	rec := recencyScore(p.CreatedAt, now, time.Duration(c.NewWindowDays)*24*time.Hour/2)
	quality := logNorm(float64(p.UpvoteCount)+0.5*float64(p.BookmarkCount), 10)
	return 0.7*rec + 0.3*quality
}

// historySignal summarizes a user's past positive interactions for the
// personalized strategy.
type historySignal struct {
	makerCounts map[uint64]int // upvoted/bookmarked products per maker
	total       int
}

func (h historySignal) makerAffinity(makerID uint64) float64 {
	if h.total == 0 {
		return 0
	}
	return float64(h.makerCounts[makerID]) / float64(h.total)
}

// scorePersonalized matches a candidate against the user's preference
// vectors and interaction history.
func (c Config) scorePersonalized(p *model.Product, profile *model.Profile, hist historySignal) float64 {
	catMatch := profile.CategoryPrefs[p.Category].Score
	tagMatch := bestTagMatch(p.Tags, profile.TagPrefs)
	history := 0.6*hist.makerAffinity(p.MakerID) + 0.4*logNorm(float64(profile.CategoryPrefs[p.Category].Count), 3)
	return 0.3*catMatch + 0.3*tagMatch + 0.4*history
}

// bestTagMatch averages the two strongest tag preference hits so one
// weak shared tag doesn't dominate multi-tag products.
func bestTagMatch(tags []string, prefs map[string]model.Preference) float64 {
	if len(tags) == 0 || len(prefs) == 0 {
		return 0
	}
	scores := make([]float64, 0, len(tags))
	for _, t := range tags {
		if pref, ok := prefs[t]; ok {
			scores = append(scores, pref.Score)
		}
	}
	if len(scores) == 0 {
		return 0
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(scores)))
	if len(scores) == 1 {
		return scores[0]
	}
	return (scores[0] + scores[1]) / 2
}

// scoreSimilar measures content overlap with a reference product.
// Same-product comparisons return 0.
func (c Config) scoreSimilar(p, ref *model.Product) float64 {
	if p.ID == ref.ID {
		return 0
	}
	var cat float64
	if p.Category != "" && p.Category == ref.Category {
		cat = 1
	}
	tags := tagJaccard(p.Tags, ref.Tags)
	var maker float64
	if p.MakerID == ref.MakerID {
		maker = 1
	}
	return 0.2*cat + 0.5*tags + 0.3*maker
}

func tagJaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(a))
	for _, t := range a {
		set[t] = struct{}{}
	}
	shared := 0
	for _, t := range b {
		if _, ok := set[t]; ok {
			shared++
		}
	}
	union := len(a) + len(b) - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}

// scoreCollaborative combines neighbor similarity with the candidate's
// own popularity. similarity is the aggregated Jaccard weight of the
// neighbors who interacted with the candidate.
func (c Config) scoreCollaborative(p *model.Product, similarity float64) float64 {
	pop := logNorm(float64(p.UpvoteCount)+0.5*float64(p.BookmarkCount), 25)
	return 0.6*similarity + 0.4*pop
}
