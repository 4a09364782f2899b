// Package handler contains the HTTP transport: request DTOs,
// validation, and the response envelope shared by every endpoint.
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/productbazar/api/internal/apperr"
)

// Pagination is attached to list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// NewPagination computes the page count from a total.
func NewPagination(page, pageSize, total int) *Pagination {
	pages := 0
	if pageSize > 0 {
		pages = (total + pageSize - 1) / pageSize
	}
	return &Pagination{Page: page, PageSize: pageSize, Total: total, TotalPages: pages}
}

type envelope struct {
	Success    bool        `json:"success"`
	Message    string      `json:"message,omitempty"`
	Data       any         `json:"data,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

type errorBody struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error"`
}

// OK writes a success envelope.
func OK(c echo.Context, status int, message string, data any) error {
	return c.JSON(status, envelope{Success: true, Message: message, Data: data})
}

// Paginated writes a success envelope with pagination metadata.
func Paginated(c echo.Context, message string, data any, p *Pagination) error {
	return c.JSON(http.StatusOK, envelope{Success: true, Message: message, Data: data, Pagination: p})
}

// ErrorHandler converts errors into the error envelope. Application
// errors carry their own status and machine code; everything else is a
// 500 with the cause logged but not leaked.
func ErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		var (
			status = http.StatusInternalServerError
			body   = errorBody{Error: "internal server error"}
		)
		var ae *apperr.Error
		var he *echo.HTTPError
		switch {
		case errors.As(err, &ae):
			status = ae.Status()
			body.Code = ae.Code
			body.Error = ae.Message
			if status >= 500 {
				log.Error().Err(ae.Unwrap()).Str("path", c.Path()).Msg("request failed")
				body.Error = "internal server error"
			}
		case errors.As(err, &he):
			status = he.Code
			if msg, ok := he.Message.(string); ok {
				body.Error = msg
			}
		default:
			log.Error().Err(err).Str("path", c.Path()).Msg("unhandled error")
		}
		if err := c.JSON(status, body); err != nil {
			log.Error().Err(err).Msg("error response write failed")
		}
	}
}

// Validator adapts go-playground/validator to echo's Validator interface.
type Validator struct {
	v *validator.Validate
}

func NewValidator() *Validator {
	return &Validator{v: validator.New(validator.WithRequiredStructEnabled())}
}

func (val *Validator) Validate(i any) error {
	if err := val.v.Struct(i); err != nil {
		var verr validator.ValidationErrors
		if errors.As(err, &verr) && len(verr) > 0 {
			f := verr[0]
			return apperr.Validation("VALIDATION_FAILED", "invalid field "+f.Field())
		}
		return apperr.Validation("VALIDATION_FAILED", "invalid request body")
	}
	return nil
}

// bind decodes and validates a request body in one step.
func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return apperr.Validation("MALFORMED_BODY", "could not parse request body")
	}
	return c.Validate(dst)
}

// pageParams reads page/pageSize query params with clamped defaults.
func pageParams(c echo.Context, defSize, maxSize int) (page, pageSize int) {
	page = intQuery(c, "page", 1)
	if page < 1 {
		page = 1
	}
	pageSize = intQuery(c, "pageSize", defSize)
	if pageSize < 1 {
		pageSize = defSize
	}
	if pageSize > maxSize {
		pageSize = maxSize
	}
	return page, pageSize
}

func intQuery(c echo.Context, name string, def int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
