package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/productbazar/api/internal/apperr"
)

func ctxWithRecorder(target string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestOKEnvelope(t *testing.T) {
	c, rec := ctxWithRecorder("/")
	require.NoError(t, OK(c, http.StatusOK, "upvoted", map[string]any{"count": 11}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"message":"upvoted","data":{"count":11}}`, rec.Body.String())
}

func TestPaginatedEnvelope(t *testing.T) {
	c, rec := ctxWithRecorder("/")
	require.NoError(t, Paginated(c, "bookmarks", []string{"a"}, NewPagination(2, 10, 35)))

	assert.JSONEq(t,
		`{"success":true,"message":"bookmarks","data":["a"],"pagination":{"page":2,"pageSize":10,"total":35,"totalPages":4}}`,
		rec.Body.String())
}

func TestNewPaginationRoundsUp(t *testing.T) {
	assert.Equal(t, 4, NewPagination(1, 10, 35).TotalPages)
	assert.Equal(t, 1, NewPagination(1, 10, 10).TotalPages)
	assert.Equal(t, 0, NewPagination(1, 10, 0).TotalPages)
	assert.Equal(t, 0, NewPagination(1, 0, 35).TotalPages)
}

func TestErrorHandlerAppError(t *testing.T) {
	c, rec := ctxWithRecorder("/")
	ErrorHandler(zerolog.Nop())(apperr.Conflict("PHONE_EXISTS", "an account with this phone already exists"), c)

	assert.Equal(t, http.StatusBadRequest, rec.Code, "duplicates are 400 on this API")
	assert.JSONEq(t,
		`{"success":false,"code":"PHONE_EXISTS","error":"an account with this phone already exists"}`,
		rec.Body.String())
}

func TestErrorHandlerMasksInternals(t *testing.T) {
	c, rec := ctxWithRecorder("/")
	ErrorHandler(zerolog.Nop())(apperr.Internal(errors.New("dial tcp: connection refused")), c)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "dial tcp", "causes never leak to clients")
	assert.Contains(t, rec.Body.String(), "internal server error")
}

func TestErrorHandlerRateLimited(t *testing.T) {
	c, rec := ctxWithRecorder("/")
	ErrorHandler(zerolog.Nop())(apperr.RateLimited("rate limit exceeded"), c)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestErrorHandlerEchoHTTPError(t *testing.T) {
	c, rec := ctxWithRecorder("/")
	ErrorHandler(zerolog.Nop())(echo.NewHTTPError(http.StatusNotFound, "Not Found"), c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestValidatorFirstFieldError(t *testing.T) {
	type body struct {
		Phone string `validate:"required,min=7"`
	}
	err := NewValidator().Validate(&body{Phone: "123"})
	require.Error(t, err)
	ae := apperr.From(err)
	assert.Equal(t, "VALIDATION_FAILED", ae.Code)
	assert.Contains(t, ae.Message, "Phone")
}

func TestBindRejectsMalformedJSON(t *testing.T) {
	e := echo.New()
	e.Validator = NewValidator()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{not json"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	var dst struct {
		Phone string `json:"phone" validate:"required"`
	}
	err := bind(c, &dst)
	assert.Equal(t, "MALFORMED_BODY", apperr.From(err).Code)
}

func TestPageParams(t *testing.T) {
	run := func(query string) (int, int) {
		c, _ := ctxWithRecorder("/?" + query)
		return pageParams(c, 10, 50)
	}

	page, size := run("page=3&pageSize=25")
	assert.Equal(t, 3, page)
	assert.Equal(t, 25, size)

	page, size = run("")
	assert.Equal(t, 1, page)
	assert.Equal(t, 10, size)

	page, size = run("page=-4&pageSize=500")
	assert.Equal(t, 1, page, "negative pages clamp to the first")
	assert.Equal(t, 50, size, "oversized pages clamp to the maximum")

	_, size = run("pageSize=abc")
	assert.Equal(t, 10, size)
}
