package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// HealthHandler reports liveness and dependency reachability.
type HealthHandler struct {
	db  *sql.DB
	rdb *redis.Client
}

func NewHealthHandler(db *sql.DB, rdb *redis.Client) *HealthHandler {
	return &HealthHandler{db: db, rdb: rdb}
}

// Check handles GET /healthz. Degraded dependencies flip the status but
// still return 200 so orchestrators don't restart the process over a
// flaky cache.
func (h *HealthHandler) Check(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	deps := echo.Map{}

	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			deps["mysql"] = "down"
			status = "degraded"
		} else {
			deps["mysql"] = "up"
		}
	}
	if h.rdb != nil {
		if err := h.rdb.Ping(ctx).Err(); err != nil {
			deps["redis"] = "down"
			status = "degraded"
		} else {
			deps["redis"] = "up"
		}
	} else {
		deps["redis"] = "disabled"
	}

	return c.JSON(http.StatusOK, echo.Map{"status": status, "dependencies": deps})
}
