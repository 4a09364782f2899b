package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/productbazar/api/internal/apperr"
	"github.com/productbazar/api/internal/middleware"
	"github.com/productbazar/api/internal/repository"
)

// BookmarkHandler serves the signed-in user's bookmark collection.
type BookmarkHandler struct {
	bookmarks *repository.BookmarkRepo
}

func NewBookmarkHandler(bookmarks *repository.BookmarkRepo) *BookmarkHandler {
	return &BookmarkHandler{bookmarks: bookmarks}
}

// List handles GET /bookmarks with filtering (category, tag, search) and
// sorting (name, upvotes, views, createdAt).
func (h *BookmarkHandler) List(c echo.Context) error {
	uid := middleware.UserID(c)
	if uid == nil {
		return apperr.Unauthorized("MISSING_TOKEN", "sign in first")
	}
	page, pageSize := pageParams(c, 20, 100)
	q := repository.BookmarkQuery{
		Category: c.QueryParam("category"),
		Tag:      c.QueryParam("tag"),
		Search:   c.QueryParam("search"),
		Sort:     c.QueryParam("sort"),
		Page:     page,
		PageSize: pageSize,
	}
	products, total, err := h.bookmarks.ListPage(c.Request().Context(), *uid, q)
	if err != nil {
		return apperr.Internal(err)
	}
	return Paginated(c, "", toProductViews(products), NewPagination(page, pageSize, total))
}
