package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/productbazar/api/internal/apperr"
	"github.com/productbazar/api/internal/middleware"
	"github.com/productbazar/api/internal/service/recommend"
)

// FeedHandler serves the recommendation surface.
type FeedHandler struct {
	engine *recommend.Engine
}

func NewFeedHandler(engine *recommend.Engine) *FeedHandler {
	return &FeedHandler{engine: engine}
}

// Feed handles GET /feed: the composed, diversity-constrained home
// feed. Guests get the trending/new blend.
func (h *FeedHandler) Feed(c echo.Context) error {
	limit := intQuery(c, "limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}
	results, err := h.engine.Feed(c.Request().Context(), middleware.UserID(c), limit)
	if err != nil {
		return err
	}
	return OK(c, http.StatusOK, "", toRecommendedViews(results))
}

// ByStrategy handles GET /recommendations/:strategy. The product query
// parameter names the reference for similar.
func (h *FeedHandler) ByStrategy(c echo.Context) error {
	limit := intQuery(c, "limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}
	results, err := h.engine.ByStrategy(c.Request().Context(), c.Param("strategy"),
		middleware.UserID(c), c.QueryParam("product"), limit)
	if err != nil {
		return err
	}
	return OK(c, http.StatusOK, "", toRecommendedViews(results))
}

// Similar handles GET /products/:slug/similar.
func (h *FeedHandler) Similar(c echo.Context) error {
	limit := intQuery(c, "limit", 10)
	if limit < 1 || limit > 50 {
		limit = 10
	}
	results, err := h.engine.ByStrategy(c.Request().Context(), recommend.StrategySimilar,
		middleware.UserID(c), c.Param("slug"), limit)
	if err != nil {
		return err
	}
	return OK(c, http.StatusOK, "", toRecommendedViews(results))
}

// Dismiss handles POST /recommendations/dismiss/:productId.
func (h *FeedHandler) Dismiss(c echo.Context) error {
	uid := middleware.UserID(c)
	if uid == nil {
		return apperr.Unauthorized("MISSING_TOKEN", "sign in first")
	}
	productID, err := strconv.ParseUint(c.Param("productId"), 10, 64)
	if err != nil || productID == 0 {
		return apperr.Validation("INVALID_PRODUCT_ID", "product id must be a positive integer")
	}
	if err := h.engine.Dismiss(c.Request().Context(), *uid, productID); err != nil {
		return err
	}
	return OK(c, http.StatusOK, "product dismissed", nil)
}

type trackBody struct {
	ProductID       uint64 `json:"productId" validate:"required,min=1"`
	Strategy        string `json:"strategy" validate:"omitempty,max=40"`
	InteractionType string `json:"interactionType" validate:"required,oneof=impression view click upvote remove_upvote bookmark remove_bookmark comment conversion"`
}

// Track handles POST /recommendations/track: explicit engagement events
// from the client (impressions, clicks, conversions).
func (h *FeedHandler) Track(c echo.Context) error {
	uid := middleware.UserID(c)
	if uid == nil {
		return apperr.Unauthorized("MISSING_TOKEN", "sign in first")
	}
	var body trackBody
	if err := bind(c, &body); err != nil {
		return err
	}
	if err := h.engine.TrackInteraction(c.Request().Context(), *uid, body.ProductID, body.Strategy, body.InteractionType); err != nil {
		return err
	}
	return OK(c, http.StatusAccepted, "interaction recorded", nil)
}
