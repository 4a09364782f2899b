package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/productbazar/api/internal/apperr"
	"github.com/productbazar/api/internal/middleware"
	"github.com/productbazar/api/internal/model"
	"github.com/productbazar/api/internal/repository"
	"github.com/productbazar/api/internal/service"
)

// ViewHandler ingests view events and serves the analytics rollup.
type ViewHandler struct {
	views    *service.ViewService
	products *repository.ProductRepo
}

func NewViewHandler(views *service.ViewService, products *repository.ProductRepo) *ViewHandler {
	return &ViewHandler{views: views, products: products}
}

type recordViewBody struct {
	Source    string `json:"source" validate:"omitempty,max=50"`
	Referrer  string `json:"referrer" validate:"omitempty,max=500"`
	SessionID string `json:"sessionId" validate:"omitempty,max=64"`
	Country   string `json:"country" validate:"omitempty,max=2"`
	OS        string `json:"os" validate:"omitempty,max=50"`
	Browser   string `json:"browser" validate:"omitempty,max=50"`
	Duration  *int   `json:"duration" validate:"omitempty,min=0,max=86400"`
}

// Record handles POST /products/:slug/view. Works for guests and signed
// in users alike; bot traffic is recorded but never counted.
func (h *ViewHandler) Record(c echo.Context) error {
	var body recordViewBody
	if err := bind(c, &body); err != nil {
		return err
	}
	view, err := h.views.RecordView(c.Request().Context(), service.RecordViewInput{
		Slug:      c.Param("slug"),
		UserID:    middleware.UserID(c),
		SessionID: body.SessionID,
		UserAgent: c.Request().UserAgent(),
		Source:    body.Source,
		Referrer:  body.Referrer,
		Country:   body.Country,
		OS:        body.OS,
		Browser:   body.Browser,
		Duration:  body.Duration,
	})
	if err != nil {
		return err
	}
	return OK(c, http.StatusAccepted, "view recorded", echo.Map{
		"sessionId": view.SessionID,
		"counted":   !view.IsBot,
	})
}

// Analytics handles GET /products/:slug/analytics. Only the product's
// maker and admins may read it.
func (h *ViewHandler) Analytics(c echo.Context) error {
	uid := middleware.UserID(c)
	if uid == nil {
		return apperr.Unauthorized("MISSING_TOKEN", "sign in first")
	}
	p, err := h.products.GetBySlug(c.Request().Context(), c.Param("slug"))
	if err != nil {
		if err == repository.ErrNotFound {
			return apperr.NotFound("product not found")
		}
		return apperr.Internal(err)
	}
	if p.MakerID != *uid && middleware.Role(c) != model.RoleAdmin {
		return apperr.Forbidden("analytics are visible to the maker only")
	}
	analytics, err := h.views.Analytics(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return err
	}
	return OK(c, http.StatusOK, "", analytics)
}
