package model

import "time"

// Product statuses. Only Published products accept interactions and appear
// in recommendations.
const (
	ProductDraft     = "Draft"
	ProductPublished = "Published"
	ProductArchived  = "Archived"
)

// Product mirrors the `products` table. The counter columns are owned
// exclusively by the interaction and view services; at quiescence each
// equals the count of its backing relation (upvotes, bookmarks, comments,
// non-bot views).
//
// Fields:
//
//	ID            – primary key identifier.
//	Slug          – unique URL identifier derived from the name.
//	MakerID       – user who posted the product.
//	Name          – display name.
//	Category      – category name.
//	Status        – Draft | Published | Archived.
//	UpvoteCount   – cached count of upvotes.
//	BookmarkCount – cached count of bookmarks.
//	CommentCount  – cached count of comments.
//	ViewTotal     – cached count of non-bot views.
//	ViewUnique    – cached count of distinct viewers (pseudonymous for anonymous).
type Product struct {
	ID            uint64    // products.id
	Slug          string    // products.slug
	MakerID       uint64    // products.maker_id
	Name          string    // products.name
	Category      string    // products.category
	Tags          []string  // product_tags rows
	Status        string    // products.status
	UpvoteCount   int       // products.upvote_count
	BookmarkCount int       // products.bookmark_count
	CommentCount  int       // products.comment_count
	ViewTotal     int       // products.view_total
	ViewUnique    int       // products.view_unique
	CreatedAt     time.Time // products.created_at
	UpdatedAt     time.Time // products.updated_at
}

// IsPublished reports whether the product accepts interactions.
func (p *Product) IsPublished() bool { return p.Status == ProductPublished }

// ViewBucket is one daily rollup row in product_view_daily. The history
// window keeps the most recent 60 buckets per product.
type ViewBucket struct {
	ProductID uint64    // product_view_daily.product_id
	Day       time.Time // product_view_daily.day (date, UTC)
	Count     int       // product_view_daily.count
}

// Upvote mirrors the `upvotes` table. The (UserID, ProductID) pair is
// unique, which is what makes the toggle idempotent under races.
type Upvote struct {
	UserID    uint64    // upvotes.user_id
	ProductID uint64    // upvotes.product_id
	CreatedAt time.Time // upvotes.created_at
}

// Bookmark mirrors the `bookmarks` table, same shape and uniqueness as
// Upvote.
type Bookmark struct {
	UserID    uint64    // bookmarks.user_id
	ProductID uint64    // bookmarks.product_id
	CreatedAt time.Time // bookmarks.created_at
}
