// Package event defines the real-time domain events fanned out over the
// message broker to rooms ("product:<id>", "user:<id>") and the payloads
// they carry.
package event

import "time"

// Event names published by the services.
const (
	ProductUpvote   = "product:upvote"
	ProductBookmark = "product:bookmark"
	ProductComment  = "product:comment"
	Notification    = "notification"
)

// Toggle actions carried by counter events.
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
)

// ProductRoom names the room for a product's subscribers.
func ProductRoom(productID uint64) string {
	return "product:" + itoa(productID)
}

// UserRoom names the room for a user's private notifications.
func UserRoom(userID uint64) string {
	return "user:" + itoa(userID)
}

// UpdateEvent names the room-wide counter refresh event for a product,
// e.g. "product:42:update".
func UpdateEvent(productID uint64) string {
	return "product:" + itoa(productID) + ":update"
}

// CounterPayload accompanies product:upvote and product:bookmark.
type CounterPayload struct {
	ProductID uint64 `json:"productId"`
	Count     int    `json:"count"`
	UserID    uint64 `json:"userId"`
	Action    string `json:"action"` // add | remove
}

// CountBody nests the counter for update payloads.
type CountBody struct {
	Count int `json:"count"`
}

// UpvoteUpdatePayload is the room-wide refresh after an upvote toggle.
type UpvoteUpdatePayload struct {
	UpvoteCount int       `json:"upvoteCount"`
	Upvotes     CountBody `json:"upvotes"`
}

// BookmarkUpdatePayload is the room-wide refresh after a bookmark toggle.
type BookmarkUpdatePayload struct {
	BookmarkCount int       `json:"bookmarkCount"`
	Bookmarks     CountBody `json:"bookmarks"`
}

// CommentPayload is the single shape used for every comment activity
// (create, reply, edit, delete, like).
type CommentPayload struct {
	ProductID uint64 `json:"productId"`
	CommentID string `json:"commentId"`
	UserID    uint64 `json:"userId"`
	ParentID  string `json:"parentId,omitempty"`
	Action    string `json:"action"` // created | edited | deleted | liked | unliked
	Count     int    `json:"count"`  // product comment count after the action
}

// NotificationPayload is delivered to user:<id> rooms.
type NotificationPayload struct {
	Type      string    `json:"type"` // upvote | bookmark | comment | reply | system | product
	Message   string    `json:"message"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
