package repository

import (
	"context"
	"database/sql"

	"github.com/productbazar/api/internal/model"
)

// UpvoteRepo persists the unique (user_id, product_id) upvote relation.
// The unique key is what serializes concurrent toggles: the same user
// inserting twice hits 1062 and the toggle flips to a removal.
type UpvoteRepo struct{ DB *sql.DB }

func NewUpvoteRepo(db *sql.DB) *UpvoteRepo { return &UpvoteRepo{DB: db} }

// Create inserts the membership row. ErrDuplicate means already upvoted.
func (r *UpvoteRepo) Create(ctx context.Context, userID, productID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO upvotes (user_id, product_id) VALUES (?,?)", userID, productID)
	if isDup(err) {
		return ErrDuplicate
	}
	return err
}

// Delete removes the membership row; removed=false means it did not exist.
func (r *UpvoteRepo) Delete(ctx context.Context, userID, productID uint64) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM upvotes WHERE user_id=? AND product_id=?", userID, productID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// CountForProduct recounts the relation; used to verify counter
// convergence in maintenance paths and tests.
func (r *UpvoteRepo) CountForProduct(ctx context.Context, productID uint64) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM upvotes WHERE product_id=?", productID).Scan(&n)
	return n, err
}

// ListByUser returns the user's upvotes, newest first.
func (r *UpvoteRepo) ListByUser(ctx context.Context, userID uint64, limit int) ([]model.Upvote, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT user_id, product_id, created_at FROM upvotes WHERE user_id=? ORDER BY created_at DESC LIMIT ?",
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Upvote
	for rows.Next() {
		var u model.Upvote
		if err := rows.Scan(&u.UserID, &u.ProductID, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// UserOverlap is a neighbor user and how many of the reference products
// they also upvoted. Input to the Jaccard-style similarity.
type UserOverlap struct {
	UserID uint64
	Shared int
	Total  int // neighbor's total upvote count
}

// OverlappingUsers finds users who upvoted any of the given products,
// excluding the reference user, with shared and total counts.
func (r *UpvoteRepo) OverlappingUsers(ctx context.Context, productIDs []uint64, excludeUser uint64, limit int) ([]UserOverlap, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(productIDs)+2)
	for _, id := range productIDs {
		args = append(args, id)
	}
	args = append(args, excludeUser, limit)
	rows, err := r.DB.QueryContext(ctx,
		`SELECT u.user_id, COUNT(*) AS shared,
		        (SELECT COUNT(*) FROM upvotes t WHERE t.user_id = u.user_id) AS total
		   FROM upvotes u
		  WHERE u.product_id IN (`+placeholders(len(productIDs))+`) AND u.user_id <> ?
		  GROUP BY u.user_id
		  ORDER BY shared DESC
		  LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []UserOverlap
	for rows.Next() {
		var o UserOverlap
		if err := rows.Scan(&o.UserID, &o.Shared, &o.Total); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ProductIDsByUsers returns the products upvoted by any of the given
// users, most upvoted first.
func (r *UpvoteRepo) ProductIDsByUsers(ctx context.Context, userIDs []uint64, limit int) ([]uint64, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(userIDs)+1)
	for _, id := range userIDs {
		args = append(args, id)
	}
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx,
		`SELECT product_id FROM upvotes WHERE user_id IN (`+placeholders(len(userIDs))+`)
		  GROUP BY product_id ORDER BY COUNT(*) DESC LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// BookmarkRepo persists the unique (user_id, product_id) bookmark
// relation, same mechanics as UpvoteRepo.
type BookmarkRepo struct{ DB *sql.DB }

func NewBookmarkRepo(db *sql.DB) *BookmarkRepo { return &BookmarkRepo{DB: db} }

func (r *BookmarkRepo) Create(ctx context.Context, userID, productID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO bookmarks (user_id, product_id) VALUES (?,?)", userID, productID)
	if isDup(err) {
		return ErrDuplicate
	}
	return err
}

func (r *BookmarkRepo) Delete(ctx context.Context, userID, productID uint64) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		"DELETE FROM bookmarks WHERE user_id=? AND product_id=?", userID, productID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *BookmarkRepo) CountForProduct(ctx context.Context, productID uint64) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM bookmarks WHERE product_id=?", productID).Scan(&n)
	return n, err
}

func (r *BookmarkRepo) ListByUser(ctx context.Context, userID uint64, limit int) ([]model.Bookmark, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT user_id, product_id, created_at FROM bookmarks WHERE user_id=? ORDER BY created_at DESC LIMIT ?",
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Bookmark
	for rows.Next() {
		var b model.Bookmark
		if err := rows.Scan(&b.UserID, &b.ProductID, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// BookmarkQuery filters and orders the bookmark listing page.
type BookmarkQuery struct {
	Category string
	Tag      string
	Search   string
	Sort     string // name | upvotes | views | createdAt
	Page     int
	PageSize int
}

// ListPage returns the user's bookmarked products with filters applied,
// plus the unpaginated total.
func (r *BookmarkRepo) ListPage(ctx context.Context, userID uint64, q BookmarkQuery) ([]model.Product, int, error) {
	where := []string{"b.user_id = ?"}
	args := []any{userID}

	if q.Category != "" {
		where = append(where, "p.category = ?")
		args = append(args, q.Category)
	}
	if q.Tag != "" {
		where = append(where, "EXISTS (SELECT 1 FROM product_tags pt WHERE pt.product_id = p.id AND pt.tag = ?)")
		args = append(args, q.Tag)
	}
	if q.Search != "" {
		where = append(where, "LOWER(p.name) LIKE ?")
		args = append(args, "%"+lower(q.Search)+"%")
	}
	cond := join(where, " AND ")

	var total int
	if err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM bookmarks b JOIN products p ON p.id = b.product_id WHERE "+cond,
		args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	order := "b.created_at DESC"
	switch q.Sort {
	case "name":
		order = "p.name ASC"
	case "upvotes":
		order = "p.upvote_count DESC"
	case "views":
		order = "p.view_total DESC"
	case "createdAt":
		order = "b.created_at DESC"
	}

	if q.PageSize < 1 {
		q.PageSize = 20
	}
	if q.Page < 1 {
		q.Page = 1
	}
	args = append(args, q.PageSize, (q.Page-1)*q.PageSize)

	sel := "SELECT " + prefixCols("p", productCols) +
		" FROM bookmarks b JOIN products p ON p.id = b.product_id WHERE " + cond +
		" ORDER BY " + order + " LIMIT ? OFFSET ?"
	rows, err := r.DB.QueryContext(ctx, sel, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}
