package recommend

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/productbazar/api/internal/apperr"
	"github.com/productbazar/api/internal/cache"
	"github.com/productbazar/api/internal/model"
	"github.com/productbazar/api/internal/repository"
)

// TrackInteraction appends one engagement event to the interaction log.
// The strategy name is normalized, the quality score is blended with the
// user's prior engagement on the same product, and clicks/conversions
// are attributed back to the impression that surfaced the item.
func (e *Engine) TrackInteraction(ctx context.Context, userID, productID uint64, recType, interactionType string) error {
	now := e.clock()
	prior, hasPrior, err := e.recs.LastQuality(ctx, userID, productID)
	if err != nil {
		return apperr.Internal(err)
	}
	in := model.RecInteraction{
		UserID:             userID,
		ProductID:          productID,
		RecommendationType: NormalizeStrategy(recType),
		InteractionType:    interactionType,
		Quality:            BlendQuality(interactionType, prior, hasPrior),
		Timestamp:          now,
	}

	switch interactionType {
	case model.InteractionClick, model.InteractionConversion:
		imp, err := e.recs.FindNearestImpression(ctx, userID, productID, now, e.cfg.AttributionWindow)
		switch {
		case err == nil:
			in.Metadata = map[string]string{
				"attributed_impression": strconv.FormatUint(imp.ID, 10),
				"impression_strategy":   imp.RecommendationType,
				"lag_seconds":           strconv.FormatInt(int64(now.Sub(imp.Timestamp)/time.Second), 10),
			}
			if in.RecommendationType == "" {
				in.RecommendationType = imp.RecommendationType
			}
		case errors.Is(err, repository.ErrNotFound):
			// unattributed click, keep it
		default:
			return apperr.Internal(err)
		}
	}

	if err := e.recs.InsertInteraction(ctx, &in); err != nil {
		return apperr.Internal(err)
	}

	// Anything stronger than an impression changes what the user should
	// see next, so their cached strategy outputs go.
	if interactionType != model.InteractionImpression {
		e.store.SmartInvalidate(ctx, nil, []string{cache.UserTag(userID)})
	}
	return nil
}
