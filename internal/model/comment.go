package model

import "time"

// Comment content bounds and the maximum thread depth. A reply below a
// depth-5 comment is still created but its depth is capped at 5.
const (
	CommentMinLen   = 2
	CommentMaxLen   = 1000
	CommentMaxDepth = 5
)

// Comment mirrors the `comments` table. Replies reference their direct
// parent and the top-level ancestor (root); all replies of a thread share
// RootID. Depth is parent.depth+1 capped at CommentMaxDepth.
//
// Fields:
//
//	ID            – UUID primary key.
//	ProductID     – product the thread belongs to.
//	UserID        – author.
//	ParentID      – direct parent comment (nil for roots).
//	RootID        – top-level ancestor (nil for roots).
//	ReplyToUserID – author of the targeted comment (nil for roots).
//	Depth         – 0 for roots, up to 5 for replies.
//	Content       – 2..1000 chars.
//	LikeCount     – cached size of the comment_likes relation.
//	UpdatedAt     – set on edit only.
type Comment struct {
	ID            string     // comments.id (uuid)
	ProductID     uint64     // comments.product_id
	UserID        uint64     // comments.user_id
	ParentID      *string    // comments.parent_id (nullable)
	RootID        *string    // comments.root_id (nullable)
	ReplyToUserID *uint64    // comments.reply_to_user_id (nullable)
	Depth         int        // comments.depth
	Content       string     // comments.content
	LikeCount     int        // comments.like_count
	CreatedAt     time.Time  // comments.created_at
	UpdatedAt     *time.Time // comments.updated_at (nullable, set on edit)
}

// IsRoot reports whether the comment starts a thread.
func (c *Comment) IsRoot() bool { return c.ParentID == nil }

// CommentLike is a membership row in comment_likes; (CommentID, UserID)
// is unique.
type CommentLike struct {
	CommentID string    // comment_likes.comment_id
	UserID    uint64    // comment_likes.user_id
	CreatedAt time.Time // comment_likes.created_at
}
