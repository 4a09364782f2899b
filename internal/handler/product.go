package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/productbazar/api/internal/apperr"
	"github.com/productbazar/api/internal/model"
	"github.com/productbazar/api/internal/repository"
	"github.com/productbazar/api/internal/service/recommend"
)

// productView is the transport shape of a product row.
type productView struct {
	ID            uint64    `json:"id"`
	Slug          string    `json:"slug"`
	Name          string    `json:"name"`
	MakerID       uint64    `json:"makerId"`
	Category      string    `json:"category"`
	Tags          []string  `json:"tags"`
	Status        string    `json:"status"`
	UpvoteCount   int       `json:"upvoteCount"`
	BookmarkCount int       `json:"bookmarkCount"`
	CommentCount  int       `json:"commentCount"`
	ViewTotal     int       `json:"viewCount"`
	CreatedAt     time.Time `json:"createdAt"`
}

func toProductView(p model.Product) productView {
	return productView{
		ID:            p.ID,
		Slug:          p.Slug,
		Name:          p.Name,
		MakerID:       p.MakerID,
		Category:      p.Category,
		Tags:          p.Tags,
		Status:        p.Status,
		UpvoteCount:   p.UpvoteCount,
		BookmarkCount: p.BookmarkCount,
		CommentCount:  p.CommentCount,
		ViewTotal:     p.ViewTotal,
		CreatedAt:     p.CreatedAt,
	}
}

func toProductViews(products []model.Product) []productView {
	out := make([]productView, len(products))
	for i, p := range products {
		out[i] = toProductView(p)
	}
	return out
}

// recommendedView pairs a product with its strategy score.
type recommendedView struct {
	Product productView `json:"product"`
	Score   float64     `json:"score"`
	Reason  string      `json:"reason"`
}

func toRecommendedViews(results []recommend.Result) []recommendedView {
	out := make([]recommendedView, len(results))
	for i, r := range results {
		out[i] = recommendedView{Product: toProductView(r.Product), Score: r.Score, Reason: r.Reason}
	}
	return out
}

// ProductHandler serves the public product read surface.
type ProductHandler struct {
	products *repository.ProductRepo
}

func NewProductHandler(products *repository.ProductRepo) *ProductHandler {
	return &ProductHandler{products: products}
}

// Get handles GET /products/:slug.
func (h *ProductHandler) Get(c echo.Context) error {
	p, err := h.products.GetBySlug(c.Request().Context(), c.Param("slug"))
	if err != nil {
		if err == repository.ErrNotFound {
			return apperr.NotFound("product not found")
		}
		return apperr.Internal(err)
	}
	if !p.IsPublished() {
		return apperr.NotFound("product not found")
	}
	return OK(c, http.StatusOK, "", toProductView(p))
}

// List handles GET /products: recently published products, newest
// first. The days query bounds the window, limit caps the size.
func (h *ProductHandler) List(c echo.Context) error {
	days := intQuery(c, "days", 0)
	limit := intQuery(c, "limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	since := time.Time{}
	if days > 0 {
		since = time.Now().UTC().AddDate(0, 0, -days)
	}
	products, err := h.products.ListPublished(c.Request().Context(), since, limit)
	if err != nil {
		return apperr.Internal(err)
	}
	return OK(c, http.StatusOK, "", toProductViews(products))
}
