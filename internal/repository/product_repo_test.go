package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProductMock(t *testing.T) (*ProductRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewProductRepo(db), mock
}

func TestAdjustUpvotes(t *testing.T) {
	repo, mock := newProductMock(t)

	mock.ExpectExec(regexp.QuoteMeta(
		"UPDATE products SET upvote_count = GREATEST(CAST(upvote_count AS SIGNED) + ?, 0) WHERE id=?")).
		WithArgs(1, uint64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT upvote_count FROM products WHERE id=?")).
		WithArgs(uint64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"upvote_count"}).AddRow(42))

	n, err := repo.AdjustUpvotes(context.Background(), 7, 1)
	require.NoError(t, err)
	assert.Equal(t, 42, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdjustUpvotesDecrementClamped(t *testing.T) {
	repo, mock := newProductMock(t)

	// The clamp lives in SQL; the repo just reads back whatever the
	// database stored, which never goes below zero.
	mock.ExpectExec(regexp.QuoteMeta(
		"UPDATE products SET upvote_count = GREATEST(CAST(upvote_count AS SIGNED) + ?, 0) WHERE id=?")).
		WithArgs(-1, uint64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT upvote_count FROM products WHERE id=?")).
		WithArgs(uint64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"upvote_count"}).AddRow(0))

	n, err := repo.AdjustUpvotes(context.Background(), 7, -1)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestAdjustCommentsMissingProduct(t *testing.T) {
	repo, mock := newProductMock(t)

	mock.ExpectExec(regexp.QuoteMeta(
		"UPDATE products SET comment_count = GREATEST(CAST(comment_count AS SIGNED) + ?, 0) WHERE id=?")).
		WithArgs(1, uint64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT comment_count FROM products WHERE id=?")).
		WithArgs(uint64(99)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.AdjustComments(context.Background(), 99, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetBySlug(t *testing.T) {
	repo, mock := newProductMock(t)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT "+productCols+" FROM products WHERE slug=? LIMIT 1")).
		WithArgs("my-app").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "slug", "maker_id", "name", "category", "status",
			"upvote_count", "bookmark_count", "comment_count",
			"view_total", "view_unique", "created_at", "updated_at",
		}).AddRow(7, "my-app", 3, "My App", "devtools", "published", 10, 4, 2, 120, 80, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT tag FROM product_tags WHERE product_id=? ORDER BY tag")).
		WithArgs(uint64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"tag"}).AddRow("cli").AddRow("go"))

	p, err := repo.GetBySlug(context.Background(), "my-app")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), p.ID)
	assert.Equal(t, "My App", p.Name)
	assert.Equal(t, []string{"cli", "go"}, p.Tags)
}

func TestGetBySlugNotFound(t *testing.T) {
	repo, mock := newProductMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT " + productCols + " FROM products WHERE slug=? LIMIT 1")).
		WithArgs("gone").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetBySlug(context.Background(), "gone")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBumpViews(t *testing.T) {
	repo, mock := newProductMock(t)

	mock.ExpectExec(regexp.QuoteMeta(
		"UPDATE products SET view_total = view_total + 1, view_unique = view_unique + 1 WHERE id=?")).
		WithArgs(uint64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.BumpViews(context.Background(), 7, true))

	mock.ExpectExec(regexp.QuoteMeta(
		"UPDATE products SET view_total = view_total + 1 WHERE id=?")).
		WithArgs(uint64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.BumpViews(context.Background(), 7, false))
}
