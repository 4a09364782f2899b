package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/productbazar/api/internal/apperr"
	"github.com/productbazar/api/internal/middleware"
	"github.com/productbazar/api/internal/model"
	"github.com/productbazar/api/internal/repository"
)

// ListingHandler serves the jobs and projects read surface and the
// project engagement tracker.
type ListingHandler struct {
	jobs     *repository.JobRepo
	projects *repository.ProjectRepo
	searches *repository.SearchHistoryRepo
}

func NewListingHandler(jobs *repository.JobRepo, projects *repository.ProjectRepo, searches *repository.SearchHistoryRepo) *ListingHandler {
	return &ListingHandler{jobs: jobs, projects: projects, searches: searches}
}

type jobView struct {
	ID          uint64    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Skills      []string  `json:"skills"`
	CompanyName string    `json:"companyName"`
	Location    string    `json:"location"`
	CreatedAt   time.Time `json:"createdAt"`
}

// SearchJobs handles GET /jobs?search=...&searchMode=strict|flexible.
// Strict requires every term to match; flexible matches any term.
func (h *ListingHandler) SearchJobs(c echo.Context) error {
	page, pageSize := pageParams(c, 20, 100)
	mode := c.QueryParam("searchMode")
	if mode != "strict" {
		mode = "flexible"
	}
	terms := strings.Fields(strings.TrimSpace(c.QueryParam("search")))
	jobs, total, err := h.jobs.Search(c.Request().Context(), repository.JobQuery{
		Terms:    terms,
		Mode:     mode,
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		return apperr.Internal(err)
	}
	// History is best-effort; a failed write must not fail the search.
	if uid := middleware.UserID(c); uid != nil && len(terms) > 0 {
		_ = h.searches.Record(c.Request().Context(), *uid, strings.Join(terms, " "), "job")
	}
	views := make([]jobView, len(jobs))
	for i, j := range jobs {
		views[i] = jobView{
			ID:          j.ID,
			Title:       j.Title,
			Description: j.Description,
			Skills:      j.Skills,
			CompanyName: j.CompanyName,
			Location:    j.Location,
			CreatedAt:   j.CreatedAt,
		}
	}
	return Paginated(c, "", views, NewPagination(page, pageSize, total))
}

type projectView struct {
	ID          uint64    `json:"id"`
	Slug        string    `json:"slug"`
	OwnerID     uint64    `json:"ownerId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	LikeCount   int       `json:"likeCount"`
	ShareCount  int       `json:"shareCount"`
	ClickCount  int       `json:"clickCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toProjectView(p model.Project) projectView {
	return projectView{
		ID:          p.ID,
		Slug:        p.Slug,
		OwnerID:     p.OwnerID,
		Title:       p.Title,
		Description: p.Description,
		Category:    p.Category,
		LikeCount:   p.LikeCount,
		ShareCount:  p.ShareCount,
		ClickCount:  p.ClickCount,
		CreatedAt:   p.CreatedAt,
	}
}

// ListProjects handles GET /projects.
func (h *ListingHandler) ListProjects(c echo.Context) error {
	page, pageSize := pageParams(c, 20, 100)
	projects, total, err := h.projects.List(c.Request().Context(), repository.ProjectQuery{
		Category: c.QueryParam("category"),
		Search:   c.QueryParam("search"),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		return apperr.Internal(err)
	}
	views := make([]projectView, len(projects))
	for i, p := range projects {
		views[i] = toProjectView(p)
	}
	return Paginated(c, "", views, NewPagination(page, pageSize, total))
}

// GetProject handles GET /projects/:idOrSlug.
func (h *ListingHandler) GetProject(c echo.Context) error {
	p, err := h.projects.GetByIDOrSlug(c.Request().Context(), c.Param("idOrSlug"))
	if err != nil {
		if err == repository.ErrNotFound {
			return apperr.NotFound("project not found")
		}
		return apperr.Internal(err)
	}
	return OK(c, http.StatusOK, "", toProjectView(p))
}

type trackProjectBody struct {
	Kind string `json:"kind" validate:"required,oneof=like share click"`
}

// TrackProject handles POST /projects/:idOrSlug/track: bumps one of the
// engagement counters and returns the fresh values.
func (h *ListingHandler) TrackProject(c echo.Context) error {
	p, err := h.projects.GetByIDOrSlug(c.Request().Context(), c.Param("idOrSlug"))
	if err != nil {
		if err == repository.ErrNotFound {
			return apperr.NotFound("project not found")
		}
		return apperr.Internal(err)
	}
	var body trackProjectBody
	if err := bind(c, &body); err != nil {
		return err
	}
	updated, err := h.projects.Track(c.Request().Context(), p.ID, body.Kind)
	if err != nil {
		return apperr.Internal(err)
	}
	return OK(c, http.StatusOK, "recorded", toProjectView(updated))
}

// SearchHistory handles GET /search-history for the signed-in user.
func (h *ListingHandler) SearchHistory(c echo.Context) error {
	uid := middleware.UserID(c)
	if uid == nil {
		return apperr.Unauthorized("MISSING_TOKEN", "sign in first")
	}
	limit := intQuery(c, "limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}
	entries, err := h.searches.ListByUser(c.Request().Context(), *uid, limit)
	if err != nil {
		return apperr.Internal(err)
	}
	type entryView struct {
		Query          string    `json:"query"`
		Type           string    `json:"type"`
		Count          int       `json:"count"`
		LastSearchedAt time.Time `json:"lastSearchedAt"`
	}
	views := make([]entryView, len(entries))
	for i, e := range entries {
		views[i] = entryView{Query: e.Query, Type: e.Type, Count: e.Count, LastSearchedAt: e.LastSearchedAt}
	}
	return OK(c, http.StatusOK, "", views)
}
