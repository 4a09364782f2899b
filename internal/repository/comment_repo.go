package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/productbazar/api/internal/model"
)

// CommentRepo persists comment threads and likes. Roots and replies live
// in one table; deleting a root cascades to its whole thread inside a
// transaction so readers never observe orphan replies.
type CommentRepo struct{ DB *sql.DB }

func NewCommentRepo(db *sql.DB) *CommentRepo { return &CommentRepo{DB: db} }

const commentCols = "id, product_id, user_id, parent_id, root_id, reply_to_user_id, depth, content, like_count, created_at, updated_at"

func scanComment(sc interface{ Scan(...any) error }) (model.Comment, error) {
	var c model.Comment
	err := sc.Scan(&c.ID, &c.ProductID, &c.UserID, &c.ParentID, &c.RootID,
		&c.ReplyToUserID, &c.Depth, &c.Content, &c.LikeCount, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// Create inserts a comment row; the service fills ID, depth and thread
// references beforehand.
func (r *CommentRepo) Create(ctx context.Context, c *model.Comment) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO comments (id, product_id, user_id, parent_id, root_id, reply_to_user_id, depth, content) VALUES (?,?,?,?,?,?,?,?)",
		c.ID, c.ProductID, c.UserID, c.ParentID, c.RootID, c.ReplyToUserID, c.Depth, c.Content)
	return err
}

func (r *CommentRepo) GetByID(ctx context.Context, id string) (model.Comment, error) {
	c, err := scanComment(r.DB.QueryRowContext(ctx,
		"SELECT "+commentCols+" FROM comments WHERE id=? LIMIT 1", id))
	return c, notFound(err)
}

// UpdateContent edits a comment and stamps updated_at.
func (r *CommentRepo) UpdateContent(ctx context.Context, id, content string, at time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE comments SET content=?, updated_at=? WHERE id=?", content, at, id)
	return err
}

// DeleteCascade removes a comment and, for roots, its whole thread.
// Returns how many comments were removed so the caller can adjust the
// product counter by the same amount.
func (r *CommentRepo) DeleteCascade(ctx context.Context, c model.Comment) (int, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var res sql.Result
	if c.IsRoot() {
		if _, err := tx.ExecContext(ctx,
			"DELETE cl FROM comment_likes cl JOIN comments cm ON cm.id = cl.comment_id WHERE cm.id=? OR cm.root_id=?",
			c.ID, c.ID); err != nil {
			return 0, err
		}
		res, err = tx.ExecContext(ctx,
			"DELETE FROM comments WHERE id=? OR root_id=?", c.ID, c.ID)
	} else {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM comment_likes WHERE comment_id=?", c.ID); err != nil {
			return 0, err
		}
		res, err = tx.ExecContext(ctx, "DELETE FROM comments WHERE id=?", c.ID)
	}
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(n), nil
}

// ToggleLike flips the user's membership in comment_likes and keeps
// like_count equal to the relation size. Returns the new state and count.
func (r *CommentRepo) ToggleLike(ctx context.Context, commentID string, userID uint64) (bool, int, error) {
	liked := true
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO comment_likes (comment_id, user_id) VALUES (?,?)", commentID, userID)
	if isDup(err) {
		liked = false
		if _, err := r.DB.ExecContext(ctx,
			"DELETE FROM comment_likes WHERE comment_id=? AND user_id=?", commentID, userID); err != nil {
			return false, 0, err
		}
	} else if err != nil {
		return false, 0, err
	}
	// Recount rather than increment: the count column is a cache of the
	// relation and this keeps it convergent under races.
	if _, err := r.DB.ExecContext(ctx,
		"UPDATE comments SET like_count=(SELECT COUNT(*) FROM comment_likes WHERE comment_id=?) WHERE id=?",
		commentID, commentID); err != nil {
		return liked, 0, err
	}
	var n int
	if err := r.DB.QueryRowContext(ctx,
		"SELECT like_count FROM comments WHERE id=?", commentID).Scan(&n); err != nil {
		return liked, 0, notFound(err)
	}
	return liked, n, nil
}

// ListByProduct returns a page of root comments, newest first, with their
// replies in thread order.
func (r *CommentRepo) ListByProduct(ctx context.Context, productID uint64, page, pageSize int) ([]model.Comment, error) {
	if pageSize < 1 {
		pageSize = 20
	}
	if page < 1 {
		page = 1
	}
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+commentCols+" FROM comments WHERE product_id=? AND parent_id IS NULL ORDER BY created_at DESC LIMIT ? OFFSET ?",
		productID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roots []model.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		roots = append(roots, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(roots) == 0 {
		return roots, nil
	}
	args := make([]any, len(roots))
	for i := range roots {
		args[i] = roots[i].ID
	}
	reps, err := r.DB.QueryContext(ctx,
		"SELECT "+commentCols+" FROM comments WHERE root_id IN ("+placeholders(len(args))+") ORDER BY created_at ASC",
		args...)
	if err != nil {
		return nil, err
	}
	defer reps.Close()
	out := roots
	for reps.Next() {
		c, err := scanComment(reps)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, reps.Err()
}

// CountForProduct recounts the comments relation for one product.
func (r *CommentRepo) CountForProduct(ctx context.Context, productID uint64) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM comments WHERE product_id=?", productID).Scan(&n)
	return n, err
}
