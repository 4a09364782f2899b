package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/productbazar/api/internal/apperr"
	"github.com/productbazar/api/internal/middleware"
	"github.com/productbazar/api/internal/model"
	"github.com/productbazar/api/internal/service"
)

// InteractionHandler exposes the toggle and comment surfaces of a
// product.
type InteractionHandler struct {
	interactions *service.InteractionService
}

func NewInteractionHandler(interactions *service.InteractionService) *InteractionHandler {
	return &InteractionHandler{interactions: interactions}
}

// ToggleUpvote handles POST /products/:slug/upvote. The same endpoint
// adds and removes; the response carries the final state.
func (h *InteractionHandler) ToggleUpvote(c echo.Context) error {
	uid := middleware.UserID(c)
	if uid == nil {
		return apperr.Unauthorized("MISSING_TOKEN", "sign in first")
	}
	res, err := h.interactions.ToggleUpvote(c.Request().Context(), *uid, c.Param("slug"))
	if err != nil {
		return err
	}
	msg := "upvote removed"
	if res.Active {
		msg = "upvoted"
	}
	return OK(c, http.StatusOK, msg, echo.Map{"upvoted": res.Active, "count": res.Count})
}

// ToggleBookmark handles POST /products/:slug/bookmark.
func (h *InteractionHandler) ToggleBookmark(c echo.Context) error {
	uid := middleware.UserID(c)
	if uid == nil {
		return apperr.Unauthorized("MISSING_TOKEN", "sign in first")
	}
	res, err := h.interactions.ToggleBookmark(c.Request().Context(), *uid, c.Param("slug"))
	if err != nil {
		return err
	}
	msg := "bookmark removed"
	if res.Active {
		msg = "bookmarked"
	}
	return OK(c, http.StatusOK, msg, echo.Map{"bookmarked": res.Active, "count": res.Count})
}

// commentView is the transport shape of a comment; replies are nested
// under their root.
type commentView struct {
	ID            string        `json:"id"`
	ProductID     uint64        `json:"productId"`
	UserID        uint64        `json:"userId"`
	ParentID      *string       `json:"parentId,omitempty"`
	RootID        *string       `json:"rootId,omitempty"`
	ReplyToUserID *uint64       `json:"replyToUserId,omitempty"`
	Depth         int           `json:"depth"`
	Content       string        `json:"content"`
	LikeCount     int           `json:"likeCount"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     *time.Time    `json:"updatedAt,omitempty"`
	Replies       []commentView `json:"replies,omitempty"`
}

func toCommentView(cm model.Comment) commentView {
	return commentView{
		ID:            cm.ID,
		ProductID:     cm.ProductID,
		UserID:        cm.UserID,
		ParentID:      cm.ParentID,
		RootID:        cm.RootID,
		ReplyToUserID: cm.ReplyToUserID,
		Depth:         cm.Depth,
		Content:       cm.Content,
		LikeCount:     cm.LikeCount,
		CreatedAt:     cm.CreatedAt,
		UpdatedAt:     cm.UpdatedAt,
	}
}

// threadView groups the flat comment list into roots with their replies
// in chronological order.
func threadView(comments []model.Comment) []commentView {
	roots := make([]commentView, 0)
	index := map[string]int{}
	for _, cm := range comments {
		if cm.IsRoot() {
			index[cm.ID] = len(roots)
			roots = append(roots, toCommentView(cm))
		}
	}
	for _, cm := range comments {
		if cm.IsRoot() || cm.RootID == nil {
			continue
		}
		if i, ok := index[*cm.RootID]; ok {
			roots[i].Replies = append(roots[i].Replies, toCommentView(cm))
		}
	}
	return roots
}

type addCommentBody struct {
	Content  string  `json:"content" validate:"required,min=2,max=1000"`
	ParentID *string `json:"parentId" validate:"omitempty,uuid4"`
}

// AddComment handles POST /products/:slug/comments for both roots and
// replies.
func (h *InteractionHandler) AddComment(c echo.Context) error {
	uid := middleware.UserID(c)
	if uid == nil {
		return apperr.Unauthorized("MISSING_TOKEN", "sign in first")
	}
	var body addCommentBody
	if err := bind(c, &body); err != nil {
		return err
	}
	cm, err := h.interactions.AddComment(c.Request().Context(), *uid, c.Param("slug"), body.Content, body.ParentID)
	if err != nil {
		return err
	}
	return OK(c, http.StatusCreated, "comment added", toCommentView(cm))
}

// ListComments handles GET /products/:slug/comments with paginated
// roots; each page carries all replies of its threads.
func (h *InteractionHandler) ListComments(c echo.Context) error {
	page, pageSize := pageParams(c, 10, 50)
	comments, err := h.interactions.ListComments(c.Request().Context(), c.Param("slug"), page, pageSize)
	if err != nil {
		return err
	}
	return OK(c, http.StatusOK, "", threadView(comments))
}

// ReplyComment handles POST /comments/:id/reply, replying without
// knowing the product slug.
func (h *InteractionHandler) ReplyComment(c echo.Context) error {
	uid := middleware.UserID(c)
	if uid == nil {
		return apperr.Unauthorized("MISSING_TOKEN", "sign in first")
	}
	var body editCommentBody
	if err := bind(c, &body); err != nil {
		return err
	}
	cm, err := h.interactions.ReplyToComment(c.Request().Context(), *uid, c.Param("id"), body.Content)
	if err != nil {
		return err
	}
	return OK(c, http.StatusCreated, "reply added", toCommentView(cm))
}

type editCommentBody struct {
	Content string `json:"content" validate:"required,min=2,max=1000"`
}

// EditComment handles PUT /comments/:id.
func (h *InteractionHandler) EditComment(c echo.Context) error {
	uid := middleware.UserID(c)
	if uid == nil {
		return apperr.Unauthorized("MISSING_TOKEN", "sign in first")
	}
	var body editCommentBody
	if err := bind(c, &body); err != nil {
		return err
	}
	cm, err := h.interactions.EditComment(c.Request().Context(), *uid, middleware.Role(c), c.Param("id"), body.Content)
	if err != nil {
		return err
	}
	return OK(c, http.StatusOK, "comment updated", toCommentView(cm))
}

// DeleteComment handles DELETE /comments/:id. Deleting a root removes
// its whole thread.
func (h *InteractionHandler) DeleteComment(c echo.Context) error {
	uid := middleware.UserID(c)
	if uid == nil {
		return apperr.Unauthorized("MISSING_TOKEN", "sign in first")
	}
	if err := h.interactions.DeleteComment(c.Request().Context(), *uid, middleware.Role(c), c.Param("id")); err != nil {
		return err
	}
	return OK(c, http.StatusOK, "comment deleted", nil)
}

// ToggleCommentLike handles POST /comments/:id/like.
func (h *InteractionHandler) ToggleCommentLike(c echo.Context) error {
	uid := middleware.UserID(c)
	if uid == nil {
		return apperr.Unauthorized("MISSING_TOKEN", "sign in first")
	}
	res, err := h.interactions.ToggleCommentLike(c.Request().Context(), *uid, c.Param("id"))
	if err != nil {
		return err
	}
	msg := "like removed"
	if res.Active {
		msg = "liked"
	}
	return OK(c, http.StatusOK, msg, echo.Map{"liked": res.Active, "count": res.Count})
}
