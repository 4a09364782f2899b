package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/productbazar/api/internal/model"
)

// ProductRepo reads products and owns the atomic counter updates. Counter
// writes go through single UPDATE statements so the database serializes
// them per row; the clamp keeps counters non-negative even if a decrement
// races a recount.
type ProductRepo struct{ DB *sql.DB }

func NewProductRepo(db *sql.DB) *ProductRepo { return &ProductRepo{DB: db} }

const productCols = "id, slug, maker_id, name, category, status, upvote_count, bookmark_count, " +
	"comment_count, view_total, view_unique, created_at, updated_at"

func scanProduct(sc interface{ Scan(...any) error }) (model.Product, error) {
	var p model.Product
	err := sc.Scan(&p.ID, &p.Slug, &p.MakerID, &p.Name, &p.Category, &p.Status,
		&p.UpvoteCount, &p.BookmarkCount, &p.CommentCount, &p.ViewTotal, &p.ViewUnique,
		&p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// GetBySlug loads a product and its tags.
func (r *ProductRepo) GetBySlug(ctx context.Context, slug string) (model.Product, error) {
	p, err := scanProduct(r.DB.QueryRowContext(ctx,
		"SELECT "+productCols+" FROM products WHERE slug=? LIMIT 1", slug))
	if err != nil {
		return p, notFound(err)
	}
	p.Tags, err = r.Tags(ctx, p.ID)
	return p, err
}

// GetByID loads a product and its tags.
func (r *ProductRepo) GetByID(ctx context.Context, id uint64) (model.Product, error) {
	p, err := scanProduct(r.DB.QueryRowContext(ctx,
		"SELECT "+productCols+" FROM products WHERE id=? LIMIT 1", id))
	if err != nil {
		return p, notFound(err)
	}
	p.Tags, err = r.Tags(ctx, p.ID)
	return p, err
}

// Tags returns the tag names of one product.
func (r *ProductRepo) Tags(ctx context.Context, productID uint64) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT tag FROM product_tags WHERE product_id=? ORDER BY tag", productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tags []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// counterColumn whitelists the adjustable counters; callers pass one of
// the Adjust* wrappers rather than a raw column name.
func (r *ProductRepo) adjust(ctx context.Context, id uint64, column string, delta int) (int, error) {
	// GREATEST keeps the counter non-negative under decrement races.
	q := fmt.Sprintf(
		"UPDATE products SET %s = GREATEST(CAST(%s AS SIGNED) + ?, 0) WHERE id=?", column, column)
	if _, err := r.DB.ExecContext(ctx, q, delta, id); err != nil {
		return 0, err
	}
	var n int
	err := r.DB.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM products WHERE id=?", column), id).Scan(&n)
	return n, notFound(err)
}

// AdjustUpvotes applies delta and returns the stored count.
func (r *ProductRepo) AdjustUpvotes(ctx context.Context, id uint64, delta int) (int, error) {
	return r.adjust(ctx, id, "upvote_count", delta)
}

// AdjustBookmarks applies delta and returns the stored count.
func (r *ProductRepo) AdjustBookmarks(ctx context.Context, id uint64, delta int) (int, error) {
	return r.adjust(ctx, id, "bookmark_count", delta)
}

// AdjustComments applies delta and returns the stored count.
func (r *ProductRepo) AdjustComments(ctx context.Context, id uint64, delta int) (int, error) {
	return r.adjust(ctx, id, "comment_count", delta)
}

// BumpViews increments the total view counter and, when uniq is set, the
// unique counter, in one statement.
func (r *ProductRepo) BumpViews(ctx context.Context, id uint64, uniq bool) error {
	q := "UPDATE products SET view_total = view_total + 1 WHERE id=?"
	if uniq {
		q = "UPDATE products SET view_total = view_total + 1, view_unique = view_unique + 1 WHERE id=?"
	}
	_, err := r.DB.ExecContext(ctx, q, id)
	return err
}

// ListPublished returns recent published products with tags, newest first.
// It is the candidate pool for the recommendation strategies.
func (r *ProductRepo) ListPublished(ctx context.Context, since time.Time, limit int) ([]model.Product, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+productCols+" FROM products WHERE status=? AND created_at>=? ORDER BY created_at DESC LIMIT ?",
		model.ProductPublished, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return r.fillTags(ctx, out)
}

// ListByIDs loads products (with tags) preserving no particular order.
func (r *ProductRepo) ListByIDs(ctx context.Context, ids []uint64) ([]model.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ph := placeholders(len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+productCols+" FROM products WHERE id IN ("+ph+")", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return r.fillTags(ctx, out)
}

// fillTags batch-loads tags for a product slice to avoid per-row queries.
func (r *ProductRepo) fillTags(ctx context.Context, products []model.Product) ([]model.Product, error) {
	if len(products) == 0 {
		return products, nil
	}
	args := make([]any, len(products))
	idx := make(map[uint64]int, len(products))
	for i := range products {
		args[i] = products[i].ID
		idx[products[i].ID] = i
	}
	rows, err := r.DB.QueryContext(ctx,
		"SELECT product_id, tag FROM product_tags WHERE product_id IN ("+placeholders(len(args))+")", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var pid uint64
		var tag string
		if err := rows.Scan(&pid, &tag); err != nil {
			return nil, err
		}
		if i, ok := idx[pid]; ok {
			products[i].Tags = append(products[i].Tags, tag)
		}
	}
	return products, rows.Err()
}

// placeholders renders "?,?,?" for IN clauses.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
