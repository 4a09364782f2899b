package service

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/productbazar/api/internal/apperr"
	"github.com/productbazar/api/internal/cache"
	"github.com/productbazar/api/internal/event"
	"github.com/productbazar/api/internal/model"
	"github.com/productbazar/api/internal/repository"
	"github.com/productbazar/api/internal/worker"
)

type noopRecommender struct{}

func (noopRecommender) TrackInteraction(context.Context, uint64, uint64, string, string) error {
	return nil
}
func (noopRecommender) RefreshProfile(context.Context, uint64) error { return nil }

type interactionFixture struct {
	svc  *InteractionService
	mock sqlmock.Sqlmock
}

func newInteractionFixture(t *testing.T) *interactionFixture {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	log := zerolog.Nop()
	pool := worker.New(1, 16, time.Second, log)
	pool.Start()
	t.Cleanup(pool.Stop)

	svc := NewInteractionService(
		repository.NewProductRepo(db),
		repository.NewUpvoteRepo(db),
		repository.NewBookmarkRepo(db),
		repository.NewCommentRepo(db),
		cache.NewStore(rdb, log, false),
		event.NewMemoryBus(),
		pool,
		noopRecommender{},
		log,
	)
	return &interactionFixture{svc: svc, mock: mock}
}

const productColumns = "id, slug, maker_id, name, category, status, upvote_count, bookmark_count, " +
	"comment_count, view_total, view_unique, created_at, updated_at"

func productRow(id uint64, slug string, makerID uint64, status string) *sqlmock.Rows {
	cols := regexp.MustCompile(`,\s*`).Split(productColumns, -1)
	now := time.Now()
	return sqlmock.NewRows(cols).
		AddRow(id, slug, makerID, "My App", "devtools", status, 10, 4, 2, 100, 60, now, now)
}

func (f *interactionFixture) expectGetBySlug(slug string, rows *sqlmock.Rows) {
	f.mock.ExpectQuery("SELECT .+ FROM products WHERE slug=\\?").
		WithArgs(slug).WillReturnRows(rows)
	f.mock.ExpectQuery(regexp.QuoteMeta("SELECT tag FROM product_tags WHERE product_id=? ORDER BY tag")).
		WillReturnRows(sqlmock.NewRows([]string{"tag"}).AddRow("go"))
}

func TestToggleUpvoteOn(t *testing.T) {
	f := newInteractionFixture(t)

	f.expectGetBySlug("my-app", productRow(7, "my-app", 3, model.ProductPublished))
	f.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO upvotes (user_id, product_id) VALUES (?,?)")).
		WithArgs(uint64(42), uint64(7)).WillReturnResult(sqlmock.NewResult(1, 1))
	f.mock.ExpectExec("UPDATE products SET upvote_count = GREATEST").
		WithArgs(1, uint64(7)).WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectQuery(regexp.QuoteMeta("SELECT upvote_count FROM products WHERE id=?")).
		WithArgs(uint64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"upvote_count"}).AddRow(11))

	res, err := f.svc.ToggleUpvote(context.Background(), 42, "my-app")
	require.NoError(t, err)
	assert.True(t, res.Active)
	assert.Equal(t, 11, res.Count)
}

func TestToggleUpvoteOff(t *testing.T) {
	f := newInteractionFixture(t)

	f.expectGetBySlug("my-app", productRow(7, "my-app", 3, model.ProductPublished))
	// Second toggle: the unique key rejects the insert, flipping to removal.
	f.mock.ExpectExec("INSERT INTO upvotes").
		WillReturnError(errors.New("Error 1062 (23000): Duplicate entry"))
	f.mock.ExpectExec(regexp.QuoteMeta("DELETE FROM upvotes WHERE user_id=? AND product_id=?")).
		WithArgs(uint64(42), uint64(7)).WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec("UPDATE products SET upvote_count = GREATEST").
		WithArgs(-1, uint64(7)).WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectQuery(regexp.QuoteMeta("SELECT upvote_count FROM products WHERE id=?")).
		WillReturnRows(sqlmock.NewRows([]string{"upvote_count"}).AddRow(10))

	res, err := f.svc.ToggleUpvote(context.Background(), 42, "my-app")
	require.NoError(t, err)
	assert.False(t, res.Active)
	assert.Equal(t, 10, res.Count)
}

func TestToggleUpvoteRaceLostAdjustsNothing(t *testing.T) {
	f := newInteractionFixture(t)

	f.expectGetBySlug("my-app", productRow(7, "my-app", 3, model.ProductPublished))
	f.mock.ExpectExec("INSERT INTO upvotes").
		WillReturnError(errors.New("Error 1062 (23000): Duplicate entry"))
	// Another request already removed the row; the counter must not move.
	f.mock.ExpectExec("DELETE FROM upvotes").
		WillReturnResult(sqlmock.NewResult(0, 0))
	f.mock.ExpectExec("UPDATE products SET upvote_count = GREATEST").
		WithArgs(0, uint64(7)).WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectQuery(regexp.QuoteMeta("SELECT upvote_count FROM products WHERE id=?")).
		WillReturnRows(sqlmock.NewRows([]string{"upvote_count"}).AddRow(10))

	res, err := f.svc.ToggleUpvote(context.Background(), 42, "my-app")
	require.NoError(t, err)
	assert.False(t, res.Active)
	assert.Equal(t, 10, res.Count)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestToggleUpvoteOwnProduct(t *testing.T) {
	f := newInteractionFixture(t)

	f.expectGetBySlug("my-app", productRow(7, "my-app", 42, model.ProductPublished))

	_, err := f.svc.ToggleUpvote(context.Background(), 42, "my-app")
	require.True(t, apperr.IsKind(err, apperr.KindValidation))
	assert.Equal(t, "SELF_INTERACTION", apperr.From(err).Code)
}

func TestToggleUpvoteUnpublished(t *testing.T) {
	f := newInteractionFixture(t)

	f.expectGetBySlug("my-app", productRow(7, "my-app", 3, "Draft"))

	_, err := f.svc.ToggleUpvote(context.Background(), 42, "my-app")
	assert.Equal(t, "PRODUCT_NOT_PUBLISHED", apperr.From(err).Code)
}

func TestToggleBookmarkOn(t *testing.T) {
	f := newInteractionFixture(t)

	f.expectGetBySlug("my-app", productRow(7, "my-app", 3, model.ProductPublished))
	f.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO bookmarks (user_id, product_id) VALUES (?,?)")).
		WithArgs(uint64(42), uint64(7)).WillReturnResult(sqlmock.NewResult(1, 1))
	f.mock.ExpectExec("UPDATE products SET bookmark_count = GREATEST").
		WithArgs(1, uint64(7)).WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectQuery(regexp.QuoteMeta("SELECT bookmark_count FROM products WHERE id=?")).
		WillReturnRows(sqlmock.NewRows([]string{"bookmark_count"}).AddRow(5))

	res, err := f.svc.ToggleBookmark(context.Background(), 42, "my-app")
	require.NoError(t, err)
	assert.True(t, res.Active)
	assert.Equal(t, 5, res.Count)
}

const commentColumns = "id, product_id, user_id, parent_id, root_id, reply_to_user_id, depth, content, like_count, created_at, updated_at"

func commentRow(id string, productID, userID uint64, rootID *string, depth int) *sqlmock.Rows {
	cols := regexp.MustCompile(`,\s*`).Split(commentColumns, -1)
	var parent any
	if rootID != nil {
		parent = *rootID
	}
	return sqlmock.NewRows(cols).
		AddRow(id, productID, userID, parent, parent, nil, depth, "some comment", 0, time.Now(), nil)
}

func TestAddCommentRoot(t *testing.T) {
	f := newInteractionFixture(t)

	f.expectGetBySlug("my-app", productRow(7, "my-app", 3, model.ProductPublished))
	f.mock.ExpectExec("INSERT INTO comments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec("UPDATE products SET comment_count = GREATEST").
		WithArgs(1, uint64(7)).WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectQuery(regexp.QuoteMeta("SELECT comment_count FROM products WHERE id=?")).
		WillReturnRows(sqlmock.NewRows([]string{"comment_count"}).AddRow(3))

	c, err := f.svc.AddComment(context.Background(), 42, "my-app", "  great tool!  ", nil)
	require.NoError(t, err)
	assert.Equal(t, "great tool!", c.Content, "content is trimmed")
	assert.NotEmpty(t, c.ID)
	assert.Nil(t, c.ParentID)
	assert.Zero(t, c.Depth)
}

func TestAddCommentReplyInheritsThread(t *testing.T) {
	f := newInteractionFixture(t)

	root := "root-1"
	f.expectGetBySlug("my-app", productRow(7, "my-app", 3, model.ProductPublished))
	f.mock.ExpectQuery("SELECT .+ FROM comments WHERE id=\\?").
		WithArgs("parent-1").
		WillReturnRows(commentRow("parent-1", 7, 9, &root, 2))
	f.mock.ExpectExec("INSERT INTO comments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec("UPDATE products SET comment_count = GREATEST").
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectQuery(regexp.QuoteMeta("SELECT comment_count FROM products WHERE id=?")).
		WillReturnRows(sqlmock.NewRows([]string{"comment_count"}).AddRow(4))

	parentID := "parent-1"
	c, err := f.svc.AddComment(context.Background(), 42, "my-app", "agreed", &parentID)
	require.NoError(t, err)
	require.NotNil(t, c.RootID)
	assert.Equal(t, root, *c.RootID, "replies attach to the thread root, not the parent")
	assert.Equal(t, 3, c.Depth)
	require.NotNil(t, c.ReplyToUserID)
	assert.Equal(t, uint64(9), *c.ReplyToUserID)
}

func TestAddCommentDepthCapped(t *testing.T) {
	f := newInteractionFixture(t)

	root := "root-1"
	f.expectGetBySlug("my-app", productRow(7, "my-app", 3, model.ProductPublished))
	f.mock.ExpectQuery("SELECT .+ FROM comments WHERE id=\\?").
		WillReturnRows(commentRow("parent-1", 7, 9, &root, model.CommentMaxDepth))
	f.mock.ExpectExec("INSERT INTO comments").
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec("UPDATE products SET comment_count = GREATEST").
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectQuery(regexp.QuoteMeta("SELECT comment_count FROM products WHERE id=?")).
		WillReturnRows(sqlmock.NewRows([]string{"comment_count"}).AddRow(9))

	parentID := "parent-1"
	c, err := f.svc.AddComment(context.Background(), 42, "my-app", "still here", &parentID)
	require.NoError(t, err)
	assert.Equal(t, model.CommentMaxDepth, c.Depth, "depth never exceeds the maximum")
}

func TestAddCommentSelfReply(t *testing.T) {
	f := newInteractionFixture(t)

	f.expectGetBySlug("my-app", productRow(7, "my-app", 3, model.ProductPublished))
	f.mock.ExpectQuery("SELECT .+ FROM comments WHERE id=\\?").
		WillReturnRows(commentRow("parent-1", 7, 42, nil, 0))

	parentID := "parent-1"
	_, err := f.svc.AddComment(context.Background(), 42, "my-app", "replying to myself", &parentID)
	assert.Equal(t, "SELF_REPLY", apperr.From(err).Code)
}

func TestAddCommentParentFromOtherProduct(t *testing.T) {
	f := newInteractionFixture(t)

	f.expectGetBySlug("my-app", productRow(7, "my-app", 3, model.ProductPublished))
	f.mock.ExpectQuery("SELECT .+ FROM comments WHERE id=\\?").
		WillReturnRows(commentRow("parent-1", 99, 9, nil, 0))

	parentID := "parent-1"
	_, err := f.svc.AddComment(context.Background(), 42, "my-app", "wrong thread", &parentID)
	assert.Equal(t, "COMMENT_PRODUCT_MISMATCH", apperr.From(err).Code)
}

func TestAddCommentLengthBounds(t *testing.T) {
	f := newInteractionFixture(t)

	_, err := f.svc.AddComment(context.Background(), 42, "my-app", "x", nil)
	assert.Equal(t, "COMMENT_LENGTH", apperr.From(err).Code)

	long := make([]byte, model.CommentMaxLen+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err = f.svc.AddComment(context.Background(), 42, "my-app", string(long), nil)
	assert.Equal(t, "COMMENT_LENGTH", apperr.From(err).Code)
}

func TestEditCommentOwnership(t *testing.T) {
	f := newInteractionFixture(t)

	f.mock.ExpectQuery("SELECT .+ FROM comments WHERE id=\\?").
		WillReturnRows(commentRow("c-1", 7, 9, nil, 0))

	_, err := f.svc.EditComment(context.Background(), 42, model.RoleUser, "c-1", "hijacked")
	assert.True(t, apperr.IsKind(err, apperr.KindForbidden))
}

func TestEditCommentAsAdmin(t *testing.T) {
	f := newInteractionFixture(t)

	f.mock.ExpectQuery("SELECT .+ FROM comments WHERE id=\\?").
		WillReturnRows(commentRow("c-1", 7, 9, nil, 0))
	f.mock.ExpectExec(regexp.QuoteMeta("UPDATE comments SET content=?, updated_at=? WHERE id=?")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// Cache invalidation after the edit looks the product up again.
	f.mock.ExpectQuery("SELECT .+ FROM products WHERE id=\\?").
		WillReturnRows(productRow(7, "my-app", 3, model.ProductPublished))
	f.mock.ExpectQuery(regexp.QuoteMeta("SELECT tag FROM product_tags WHERE product_id=? ORDER BY tag")).
		WillReturnRows(sqlmock.NewRows([]string{"tag"}))

	c, err := f.svc.EditComment(context.Background(), 1, model.RoleAdmin, "c-1", "moderated")
	require.NoError(t, err)
	assert.Equal(t, "moderated", c.Content)
	require.NotNil(t, c.UpdatedAt)
}
