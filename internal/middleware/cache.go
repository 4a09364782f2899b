package middleware

import (
	"bytes"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/productbazar/api/internal/cache"
	"github.com/productbazar/api/internal/utils"
)

// CacheOptions configures the response cache for a route group.
type CacheOptions struct {
	// TTL is a human string ("30", "5 m", "2 h"). Unparseable values log
	// once and fall back to the default.
	TTL string
	// KeyFn overrides the default key derivation when set.
	KeyFn func(c echo.Context) string
	// Tags attach the stored entries to invalidation tags.
	Tags func(c echo.Context) []string
}

// captureWriter tees the response body so a successful reply can be
// stored after it has been sent.
type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (cw *captureWriter) WriteHeader(code int) {
	cw.status = code
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	cw.buf.Write(b)
	return cw.ResponseWriter.Write(b)
}

// ResponseCache serves GET responses from Redis. Hits return the stored
// body with X-Cache: HIT; misses pass through, and 2xx non-empty bodies
// are stored for the configured TTL. Bot traffic bypasses the cache so
// crawlers never pollute or read user-scoped entries.
func ResponseCache(store *cache.Store, log zerolog.Logger, opts CacheOptions) echo.MiddlewareFunc {
	ttl, ok := cache.ParseTTL(opts.TTL)
	if !ok && opts.TTL != "" {
		log.Warn().Str("ttl", opts.TTL).Dur("fallback", ttl).Msg("unparseable cache ttl, using default")
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !store.Enabled() || c.Request().Method != http.MethodGet {
				return next(c)
			}
			if utils.IsBotUserAgent(c.Request().UserAgent()) {
				return next(c)
			}

			key := deriveKey(store, c, opts.KeyFn)
			c.Response().Header().Set("X-Cache-Key", key)

			ctx := c.Request().Context()
			if body, hit := store.Get(ctx, key); hit {
				c.Response().Header().Set("X-Cache", "HIT")
				return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, body)
			}

			cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK}
			c.Response().Writer = cw
			c.Response().Header().Set("X-Cache", "MISS")

			if err := next(c); err != nil {
				return err
			}

			if cw.status >= 200 && cw.status < 300 && cw.buf.Len() > 0 {
				var tags []string
				if opts.Tags != nil {
					tags = opts.Tags(c)
				}
				store.Set(ctx, key, cw.buf.Bytes(), ttl, tags...)
			}
			return nil
		}
	}
}

// deriveKey builds the deterministic key: route path, requester identity
// and the sorted query string. Identical requests always map to the same
// key regardless of parameter order.
func deriveKey(store *cache.Store, c echo.Context, keyFn func(echo.Context) string) string {
	if keyFn != nil {
		return keyFn(c)
	}
	who := "anon"
	if id := UserID(c); id != nil {
		who = strconv.FormatUint(*id, 10)
	}
	q := c.Request().URL.Query()
	params := make([]string, 0, len(q))
	for k, vals := range q {
		for _, v := range vals {
			params = append(params, k+"="+v)
		}
	}
	sort.Strings(params)
	scope := strings.TrimPrefix(c.Path(), "/")
	scope = strings.ReplaceAll(scope, "/", ":")
	return store.GenerateKey(namespaceFor(c.Path()), scope, append(params, "user="+who)...)
}

// namespaceFor picks the invalidation namespace from the route prefix so
// pattern deletes ("products:*", "views:*") hit the right entries.
func namespaceFor(path string) string {
	p := strings.TrimPrefix(path, "/api/v1")
	p = strings.TrimPrefix(p, "/")
	if i := strings.IndexByte(p, '/'); i > 0 {
		return p[:i]
	}
	if p == "" {
		return "root"
	}
	return p
}

// InvalidateOnWrite drops cache entries after successful mutating
// requests. Patterns and tags may depend on the request.
func InvalidateOnWrite(store *cache.Store, patterns func(c echo.Context) ([]string, []string)) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if err := next(c); err != nil {
				return err
			}
			switch c.Request().Method {
			case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			default:
				return nil
			}
			if st := c.Response().Status; st >= 200 && st < 300 {
				pats, tags := patterns(c)
				store.SmartInvalidate(c.Request().Context(), pats, tags)
			}
			return nil
		}
	}
}
