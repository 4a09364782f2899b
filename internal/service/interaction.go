// Package service implements the application core: interaction toggles,
// view ingestion and the auth state machine. Services return apperr errors
// and delegate side-channel work (events, cache invalidation, profile
// updates) to best-effort paths that never fail the request.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/productbazar/api/internal/apperr"
	"github.com/productbazar/api/internal/cache"
	"github.com/productbazar/api/internal/event"
	"github.com/productbazar/api/internal/model"
	"github.com/productbazar/api/internal/repository"
	"github.com/productbazar/api/internal/worker"
)

// Recommender is the slice of the recommendation engine the interaction
// and view services feed. Both calls run on the worker pool.
type Recommender interface {
	TrackInteraction(ctx context.Context, userID, productID uint64, recType, interactionType string) error
	RefreshProfile(ctx context.Context, userID uint64) error
}

// InteractionService owns upvote/bookmark toggles and comment threads,
// and is the only writer of the product interaction counters.
type InteractionService struct {
	products  *repository.ProductRepo
	upvotes   *repository.UpvoteRepo
	bookmarks *repository.BookmarkRepo
	comments  *repository.CommentRepo
	store     *cache.Store
	bus       event.Bus
	pool      *worker.Pool
	rec       Recommender
	log       zerolog.Logger
}

func NewInteractionService(
	products *repository.ProductRepo,
	upvotes *repository.UpvoteRepo,
	bookmarks *repository.BookmarkRepo,
	comments *repository.CommentRepo,
	store *cache.Store,
	bus event.Bus,
	pool *worker.Pool,
	rec Recommender,
	log zerolog.Logger,
) *InteractionService {
	return &InteractionService{
		products:  products,
		upvotes:   upvotes,
		bookmarks: bookmarks,
		comments:  comments,
		store:     store,
		bus:       bus,
		pool:      pool,
		rec:       rec,
		log:       log.With().Str("component", "interactions").Logger(),
	}
}

// ToggleResult reports the toggle outcome and the serialized counter value.
type ToggleResult struct {
	Active bool `json:"-"`
	Count  int  `json:"count"`
}

// emit publishes an event, logging instead of failing on error.
func (s *InteractionService) emit(ctx context.Context, room, name string, payload any) {
	if err := s.bus.Publish(ctx, room, name, payload); err != nil {
		s.log.Warn().Str("room", room).Str("event", name).Err(err).Msg("event publish failed")
	}
}

// interactable validates that a product accepts interactions from userID.
func (s *InteractionService) interactable(ctx context.Context, userID uint64, slug string) (model.Product, error) {
	p, err := s.products.GetBySlug(ctx, slug)
	if err != nil {
		if err == repository.ErrNotFound {
			return p, apperr.NotFound("product not found")
		}
		return p, apperr.Internal(err)
	}
	if !p.IsPublished() {
		return p, apperr.Validation("PRODUCT_NOT_PUBLISHED", "product is not published")
	}
	if p.MakerID == userID {
		return p, apperr.Validation("SELF_INTERACTION", "you cannot interact with your own product")
	}
	return p, nil
}

// trackAsync records a recommendation interaction and refreshes the
// user's profile on the worker pool. A single attempt; failures are
// logged by the pool.
func (s *InteractionService) trackAsync(userID, productID uint64, interactionType string) {
	s.pool.Submit("rec-track:"+interactionType, func(ctx context.Context) error {
		if err := s.rec.TrackInteraction(ctx, userID, productID, "", interactionType); err != nil {
			return err
		}
		return s.rec.RefreshProfile(ctx, userID)
	})
}

// ToggleUpvote flips the user's upvote on a product. The unique
// (user, product) key makes the toggle idempotent: at quiescence the
// counter equals the relation count.
func (s *InteractionService) ToggleUpvote(ctx context.Context, userID uint64, slug string) (ToggleResult, error) {
	p, err := s.interactable(ctx, userID, slug)
	if err != nil {
		return ToggleResult{}, err
	}

	var res ToggleResult
	switch err := s.upvotes.Create(ctx, userID, p.ID); err {
	case nil:
		count, aerr := s.products.AdjustUpvotes(ctx, p.ID, +1)
		if aerr != nil {
			return res, apperr.Internal(aerr)
		}
		res = ToggleResult{Active: true, Count: count}
	case repository.ErrDuplicate:
		removed, derr := s.upvotes.Delete(ctx, userID, p.ID)
		if derr != nil {
			return res, apperr.Internal(derr)
		}
		delta := 0
		if removed {
			delta = -1
		}
		count, aerr := s.products.AdjustUpvotes(ctx, p.ID, delta)
		if aerr != nil {
			return res, apperr.Internal(aerr)
		}
		res = ToggleResult{Active: false, Count: count}
	default:
		return res, apperr.Internal(err)
	}

	action := event.ActionRemove
	interaction := model.InteractionRemoveUpvote
	if res.Active {
		action = event.ActionAdd
		interaction = model.InteractionUpvote
	}
	room := event.ProductRoom(p.ID)
	s.emit(ctx, room, event.ProductUpvote, event.CounterPayload{
		ProductID: p.ID, Count: res.Count, UserID: userID, Action: action,
	})
	s.emit(ctx, room, event.UpdateEvent(p.ID), event.UpvoteUpdatePayload{
		UpvoteCount: res.Count, Upvotes: event.CountBody{Count: res.Count},
	})
	if res.Active {
		s.emit(ctx, event.UserRoom(p.MakerID), event.Notification, event.NotificationPayload{
			Type: "upvote", Message: fmt.Sprintf("%s received an upvote", p.Name),
			Data:      map[string]any{"productId": p.ID, "slug": p.Slug},
			Timestamp: time.Now().UTC(),
		})
	}

	s.trackAsync(userID, p.ID, interaction)
	s.store.InvalidateProduct(ctx, p.ID, p.Slug)
	if !res.Active {
		s.store.SmartInvalidate(ctx, []string{"bookmarks:*"}, []string{cache.UserTag(userID)})
	}
	return res, nil
}

// ToggleBookmark flips the user's bookmark on a product, symmetric to
// ToggleUpvote.
func (s *InteractionService) ToggleBookmark(ctx context.Context, userID uint64, slug string) (ToggleResult, error) {
	p, err := s.interactable(ctx, userID, slug)
	if err != nil {
		return ToggleResult{}, err
	}

	var res ToggleResult
	switch err := s.bookmarks.Create(ctx, userID, p.ID); err {
	case nil:
		count, aerr := s.products.AdjustBookmarks(ctx, p.ID, +1)
		if aerr != nil {
			return res, apperr.Internal(aerr)
		}
		res = ToggleResult{Active: true, Count: count}
	case repository.ErrDuplicate:
		removed, derr := s.bookmarks.Delete(ctx, userID, p.ID)
		if derr != nil {
			return res, apperr.Internal(derr)
		}
		delta := 0
		if removed {
			delta = -1
		}
		count, aerr := s.products.AdjustBookmarks(ctx, p.ID, delta)
		if aerr != nil {
			return res, apperr.Internal(aerr)
		}
		res = ToggleResult{Active: false, Count: count}
	default:
		return res, apperr.Internal(err)
	}

	action := event.ActionRemove
	interaction := model.InteractionRemoveBookmark
	if res.Active {
		action = event.ActionAdd
		interaction = model.InteractionBookmark
	}
	room := event.ProductRoom(p.ID)
	s.emit(ctx, room, event.ProductBookmark, event.CounterPayload{
		ProductID: p.ID, Count: res.Count, UserID: userID, Action: action,
	})
	s.emit(ctx, room, event.UpdateEvent(p.ID), event.BookmarkUpdatePayload{
		BookmarkCount: res.Count, Bookmarks: event.CountBody{Count: res.Count},
	})
	if res.Active {
		s.emit(ctx, event.UserRoom(p.MakerID), event.Notification, event.NotificationPayload{
			Type: "bookmark", Message: fmt.Sprintf("%s was bookmarked", p.Name),
			Data:      map[string]any{"productId": p.ID, "slug": p.Slug},
			Timestamp: time.Now().UTC(),
		})
	}

	s.trackAsync(userID, p.ID, interaction)
	s.store.InvalidateProduct(ctx, p.ID, p.Slug)
	s.store.SmartInvalidate(ctx, []string{"bookmarks:*"}, []string{cache.UserTag(userID)})
	return res, nil
}

// validateCommentContent trims and bounds the content.
func validateCommentContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if len(content) < model.CommentMinLen || len(content) > model.CommentMaxLen {
		return "", apperr.Validation("COMMENT_LENGTH",
			fmt.Sprintf("comment must be %d to %d characters", model.CommentMinLen, model.CommentMaxLen))
	}
	return content, nil
}

// AddComment creates a root comment or a reply. Replies inherit the
// thread root, cap depth at the maximum and may not target the caller's
// own comments.
func (s *InteractionService) AddComment(ctx context.Context, userID uint64, slug, content string, parentID *string) (model.Comment, error) {
	var c model.Comment
	content, err := validateCommentContent(content)
	if err != nil {
		return c, err
	}
	p, err := s.products.GetBySlug(ctx, slug)
	if err != nil {
		if err == repository.ErrNotFound {
			return c, apperr.NotFound("product not found")
		}
		return c, apperr.Internal(err)
	}
	if !p.IsPublished() {
		return c, apperr.Validation("PRODUCT_NOT_PUBLISHED", "product is not published")
	}

	c = model.Comment{
		ID:        uuid.NewString(),
		ProductID: p.ID,
		UserID:    userID,
		Content:   content,
	}
	if parentID != nil {
		parent, err := s.comments.GetByID(ctx, *parentID)
		if err != nil {
			if err == repository.ErrNotFound {
				return c, apperr.NotFound("parent comment not found")
			}
			return c, apperr.Internal(err)
		}
		if parent.ProductID != p.ID {
			return c, apperr.Validation("COMMENT_PRODUCT_MISMATCH", "parent comment belongs to another product")
		}
		if parent.UserID == userID {
			return c, apperr.Validation("SELF_REPLY", "you cannot reply to your own comment")
		}
		root := parent.ID
		if parent.RootID != nil {
			root = *parent.RootID
		}
		depth := parent.Depth + 1
		if depth > model.CommentMaxDepth {
			depth = model.CommentMaxDepth
		}
		c.ParentID = &parent.ID
		c.RootID = &root
		c.Depth = depth
		c.ReplyToUserID = &parent.UserID
	}

	if err := s.comments.Create(ctx, &c); err != nil {
		return c, apperr.Internal(err)
	}
	count, err := s.products.AdjustComments(ctx, p.ID, +1)
	if err != nil {
		return c, apperr.Internal(err)
	}
	c.CreatedAt = time.Now().UTC()

	s.emit(ctx, event.ProductRoom(p.ID), event.ProductComment, event.CommentPayload{
		ProductID: p.ID, CommentID: c.ID, UserID: userID,
		ParentID: deref(parentID), Action: "created", Count: count,
	})
	notifyTo := p.MakerID
	notifyType := "comment"
	if c.ReplyToUserID != nil {
		notifyTo = *c.ReplyToUserID
		notifyType = "reply"
	}
	if notifyTo != userID {
		s.emit(ctx, event.UserRoom(notifyTo), event.Notification, event.NotificationPayload{
			Type: notifyType, Message: fmt.Sprintf("new %s on %s", notifyType, p.Name),
			Data:      map[string]any{"productId": p.ID, "commentId": c.ID},
			Timestamp: time.Now().UTC(),
		})
	}

	s.trackAsync(userID, p.ID, model.InteractionComment)
	s.store.InvalidateProduct(ctx, p.ID, p.Slug)
	return c, nil
}

// ReplyToComment creates a reply addressed by the parent comment alone,
// resolving the product from the parent. Shares the validation path with
// AddComment.
func (s *InteractionService) ReplyToComment(ctx context.Context, userID uint64, parentID, content string) (model.Comment, error) {
	parent, err := s.comments.GetByID(ctx, parentID)
	if err != nil {
		if err == repository.ErrNotFound {
			return model.Comment{}, apperr.NotFound("parent comment not found")
		}
		return model.Comment{}, apperr.Internal(err)
	}
	p, err := s.products.GetByID(ctx, parent.ProductID)
	if err != nil {
		return model.Comment{}, apperr.Internal(err)
	}
	return s.AddComment(ctx, userID, p.Slug, content, &parentID)
}

// EditComment updates content; only the owner or an admin may edit.
func (s *InteractionService) EditComment(ctx context.Context, userID uint64, role, commentID, content string) (model.Comment, error) {
	var zero model.Comment
	content, err := validateCommentContent(content)
	if err != nil {
		return zero, err
	}
	c, err := s.comments.GetByID(ctx, commentID)
	if err != nil {
		if err == repository.ErrNotFound {
			return zero, apperr.NotFound("comment not found")
		}
		return zero, apperr.Internal(err)
	}
	if c.UserID != userID && role != model.RoleAdmin {
		return zero, apperr.Forbidden("you cannot edit this comment")
	}
	now := time.Now().UTC()
	if err := s.comments.UpdateContent(ctx, c.ID, content, now); err != nil {
		return zero, apperr.Internal(err)
	}
	c.Content = content
	c.UpdatedAt = &now

	s.emit(ctx, event.ProductRoom(c.ProductID), event.ProductComment, event.CommentPayload{
		ProductID: c.ProductID, CommentID: c.ID, UserID: userID, Action: "edited",
	})
	s.invalidateForComment(ctx, c.ProductID)
	return c, nil
}

// DeleteComment removes a comment; roots cascade to their replies.
// Allowed for the comment owner, the product maker, or an admin.
func (s *InteractionService) DeleteComment(ctx context.Context, userID uint64, role, commentID string) error {
	c, err := s.comments.GetByID(ctx, commentID)
	if err != nil {
		if err == repository.ErrNotFound {
			return apperr.NotFound("comment not found")
		}
		return apperr.Internal(err)
	}
	p, err := s.products.GetByID(ctx, c.ProductID)
	if err != nil {
		return apperr.Internal(err)
	}
	if c.UserID != userID && p.MakerID != userID && role != model.RoleAdmin {
		return apperr.Forbidden("you cannot delete this comment")
	}
	removed, err := s.comments.DeleteCascade(ctx, c)
	if err != nil {
		return apperr.Internal(err)
	}
	count, err := s.products.AdjustComments(ctx, p.ID, -removed)
	if err != nil {
		return apperr.Internal(err)
	}
	s.emit(ctx, event.ProductRoom(p.ID), event.ProductComment, event.CommentPayload{
		ProductID: p.ID, CommentID: c.ID, UserID: userID, Action: "deleted", Count: count,
	})
	s.store.InvalidateProduct(ctx, p.ID, p.Slug)
	return nil
}

// ToggleCommentLike flips the caller's like on a comment; the stored
// count always tracks the likes relation.
func (s *InteractionService) ToggleCommentLike(ctx context.Context, userID uint64, commentID string) (ToggleResult, error) {
	c, err := s.comments.GetByID(ctx, commentID)
	if err != nil {
		if err == repository.ErrNotFound {
			return ToggleResult{}, apperr.NotFound("comment not found")
		}
		return ToggleResult{}, apperr.Internal(err)
	}
	liked, count, err := s.comments.ToggleLike(ctx, c.ID, userID)
	if err != nil {
		return ToggleResult{}, apperr.Internal(err)
	}
	action := "unliked"
	if liked {
		action = "liked"
	}
	s.emit(ctx, event.ProductRoom(c.ProductID), event.ProductComment, event.CommentPayload{
		ProductID: c.ProductID, CommentID: c.ID, UserID: userID, Action: action, Count: count,
	})
	s.invalidateForComment(ctx, c.ProductID)
	return ToggleResult{Active: liked, Count: count}, nil
}

// ListComments returns a page of threads for a product.
func (s *InteractionService) ListComments(ctx context.Context, slug string, page, pageSize int) ([]model.Comment, error) {
	p, err := s.products.GetBySlug(ctx, slug)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, apperr.NotFound("product not found")
		}
		return nil, apperr.Internal(err)
	}
	out, err := s.comments.ListByProduct(ctx, p.ID, page, pageSize)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return out, nil
}

func (s *InteractionService) invalidateForComment(ctx context.Context, productID uint64) {
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		s.log.Warn().Uint64("product", productID).Err(err).Msg("invalidate lookup failed")
		return
	}
	s.store.InvalidateProduct(ctx, p.ID, p.Slug)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
