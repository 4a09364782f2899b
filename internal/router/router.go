// Package router wires handlers, middleware and the cache policy to the
// HTTP surface. All business endpoints live under /api/v1.
package router

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/productbazar/api/internal/cache"
	"github.com/productbazar/api/internal/config"
	"github.com/productbazar/api/internal/handler"
	"github.com/productbazar/api/internal/middleware"
)

// Deps bundles everything Register needs.
type Deps struct {
	Cfg       *config.Config
	RateLimit config.RateLimitConfig
	Store     *cache.Store
	Log       zerolog.Logger

	Health       *handler.HealthHandler
	Auth         *handler.AuthHandler
	Products     *handler.ProductHandler
	Interactions *handler.InteractionHandler
	Views        *handler.ViewHandler
	Bookmarks    *handler.BookmarkHandler
	Feed         *handler.FeedHandler
	Listings     *handler.ListingHandler

	Limiter echo.MiddlewareFunc
}

// Register sets up the full route table.
func Register(e *echo.Echo, d Deps) {
	e.HTTPErrorHandler = handler.ErrorHandler(d.Log)
	e.Validator = handler.NewValidator()

	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     []string{d.Cfg.ClientURL},
		AllowCredentials: true,
	}))
	if d.Limiter != nil {
		e.Use(d.Limiter)
	}

	e.GET("/healthz", d.Health.Check)

	api := e.Group("/api/v1")
	api.Use(middleware.OptionalAuth(d.Cfg.JWTSecret))

	// Session-free auth surface.
	auth := api.Group("/auth")
	auth.POST("/:type/request-otp", d.Auth.RequestOTP)
	auth.POST("/:type/verify-otp", d.Auth.VerifyOTP)
	auth.POST("/register/email", d.Auth.RegisterEmail)
	auth.POST("/login/email", d.Auth.LoginEmail)
	auth.GET("/verify-email/:token", d.Auth.VerifyEmail)
	auth.POST("/refresh", d.Auth.Refresh)
	auth.POST("/logout", d.Auth.Logout)

	// Account lifecycle requires a live access token.
	account := api.Group("/auth", middleware.JWTAuth(d.Cfg.JWTSecret))
	account.POST("/revoke-access", d.Auth.RevokeAccess)
	account.POST("/request-deletion", d.Auth.RequestDeletion)
	account.POST("/cancel-deletion", d.Auth.CancelDeletion)

	// Public product surface; GET responses go through the Redis cache.
	productCache := middleware.ResponseCache(d.Store, d.Log, middleware.CacheOptions{TTL: "10 m"})
	commentCache := middleware.ResponseCache(d.Store, d.Log, middleware.CacheOptions{TTL: "60"})

	api.GET("/products", d.Products.List, productCache)
	api.GET("/products/:slug", d.Products.Get, productCache)
	api.GET("/products/:slug/comments", d.Interactions.ListComments, commentCache)
	api.GET("/products/:slug/similar", d.Feed.Similar)
	api.POST("/products/:slug/view", d.Views.Record)

	// Recommendations cache inside the engine, with per-strategy TTLs.
	api.GET("/feed", d.Feed.Feed)
	api.GET("/recommendations/:strategy", d.Feed.ByStrategy)

	api.GET("/jobs", d.Listings.SearchJobs, middleware.ResponseCache(d.Store, d.Log, middleware.CacheOptions{TTL: "5 m"}))
	// Project reads are cached; the engagement tracker is the only write
	// on this surface and has no service-side invalidation, so the
	// middleware drops the cached pages.
	projectCache := middleware.ResponseCache(d.Store, d.Log, middleware.CacheOptions{TTL: "10 m"})
	api.GET("/projects", d.Listings.ListProjects, projectCache)
	api.GET("/projects/:idOrSlug", d.Listings.GetProject, projectCache)
	api.POST("/projects/:idOrSlug/track", d.Listings.TrackProject,
		middleware.InvalidateOnWrite(d.Store, func(echo.Context) ([]string, []string) {
			return []string{"projects:*"}, nil
		}))

	// Signed-in interactions.
	user := api.Group("", middleware.JWTAuth(d.Cfg.JWTSecret))
	user.POST("/products/:slug/upvote", d.Interactions.ToggleUpvote)
	user.POST("/products/:slug/bookmark", d.Interactions.ToggleBookmark)
	user.POST("/products/:slug/comments", d.Interactions.AddComment)
	user.POST("/comments/:id/reply", d.Interactions.ReplyComment)
	user.PUT("/comments/:id", d.Interactions.EditComment)
	user.DELETE("/comments/:id", d.Interactions.DeleteComment)
	user.POST("/comments/:id/like", d.Interactions.ToggleCommentLike)

	// The bookmark listing is user-scoped; entries carry the user tag so a
	// toggle can evict exactly that user's pages.
	bookmarkCache := middleware.ResponseCache(d.Store, d.Log, middleware.CacheOptions{
		TTL: "5 m",
		Tags: func(c echo.Context) []string {
			if id := middleware.UserID(c); id != nil {
				return []string{cache.UserTag(*id)}
			}
			return nil
		},
	})
	user.GET("/bookmarks", d.Bookmarks.List, bookmarkCache)
	user.GET("/search-history", d.Listings.SearchHistory)
	user.GET("/products/:slug/analytics", d.Views.Analytics)
	user.POST("/recommendations/dismiss/:productId", d.Feed.Dismiss)
	user.POST("/recommendations/track", d.Feed.Track)
}
