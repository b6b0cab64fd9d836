package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/marketplace-orders/api/responses"
	pkgerrors "github.com/angelmondragon/marketplace-orders/pkg/errors"
	"github.com/angelmondragon/marketplace-orders/pkg/logger"
	pkgredis "github.com/angelmondragon/marketplace-orders/pkg/redis"
)

const (
	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour

	idempotencyHeader    = "Idempotency-Key"
	maxIdempotentBody    = 1 << 20
	pendingStatus        = -1
	routeKeySeparator    = " "
	replayedHeader       = "Idempotent-Replayed"
	storedContentTypeKey = "Content-Type"
)

// idempotentRoutes maps "METHOD pattern" to how long a stored response is replayable.
// Order placement, cancellation and return creation move money or stock and keep
// their keys for a week.
var idempotentRoutes = map[string]time.Duration{
	routeKey(http.MethodPost, "/api/v1/orders"):                                   criticalIdempotencyTTL,
	routeKey(http.MethodPost, "/api/v1/orders/{orderId}/cancel"):                  criticalIdempotencyTTL,
	routeKey(http.MethodPost, "/api/v1/returns"):                                  criticalIdempotencyTTL,
	routeKey(http.MethodPatch, "/api/v1/orders/{orderId}/status"):                 defaultIdempotencyTTL,
	routeKey(http.MethodPatch, "/api/v1/orders/{orderId}/items/{itemId}/status"):  defaultIdempotencyTTL,
	routeKey(http.MethodPatch, "/api/v1/returns/{returnId}/status"):               defaultIdempotencyTTL,
	routeKey(http.MethodPost, "/api/v1/returns/{returnId}/complaint"):             defaultIdempotencyTTL,
	routeKey(http.MethodPatch, "/api/v1/admin/settlements/{settlementId}/status"): defaultIdempotencyTTL,
}

type storedResponse struct {
	Status      int    `json:"status"`
	Body        string `json:"body"`
	ContentType string `json:"content_type,omitempty"`
	RequestHash string `json:"request_hash"`
}

func (s storedResponse) pending() bool { return s.Status == pendingStatus }

// idempotencyGuard owns one request's key: it reserves the key before the handler
// runs and either commits the captured response or releases the key afterwards.
type idempotencyGuard struct {
	store pkgredis.IdempotencyStore
	logg  *logger.Logger
	key   string
	hash  string
	ttl   time.Duration
}

// Idempotency replays stored responses for mutating routes that carry an
// Idempotency-Key header. Keys are scoped to the caller and the request path.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := routeTTL(r.Method, routePattern(r))
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if clientKey == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxIdempotentBody))
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			guard := &idempotencyGuard{
				store: store,
				logg:  logg,
				key:   store.IdempotencyKey(callerScope(r), clientKey),
				hash:  hashBody(body),
				ttl:   ttl,
			}

			existing, err := guard.reserve(ctx)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			if existing != nil {
				guard.replay(ctx, w, existing)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)

			if capture.statusCode() >= http.StatusInternalServerError {
				// 5xx outcomes free the key so the client may retry.
				guard.release(ctx)
				return
			}
			guard.commit(ctx, capture)
		})
	}
}

// reserve claims the key with a pending marker. A non-nil record means another
// request owns or already completed the key.
func (g *idempotencyGuard) reserve(ctx context.Context) (*storedResponse, error) {
	existing, err := g.load(ctx)
	if err != nil || existing != nil {
		return existing, err
	}

	marker, err := json.Marshal(storedResponse{Status: pendingStatus, RequestHash: g.hash})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode idempotency reservation")
	}
	claimed, err := g.store.SetNX(ctx, g.key, string(marker), g.ttl)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key")
	}
	if claimed {
		return nil, nil
	}
	existing, err = g.load(ctx)
	if err == nil && existing == nil {
		err = pkgerrors.New(pkgerrors.CodeConflict, "idempotency key released concurrently, retry the request")
	}
	return existing, err
}

func (g *idempotencyGuard) load(ctx context.Context) (*storedResponse, error) {
	raw, err := g.store.Get(ctx, g.key)
	if errors.Is(err, redis.Nil) || (err == nil && raw == "") {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency")
	}
	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record")
	}
	return &stored, nil
}

func (g *idempotencyGuard) replay(ctx context.Context, w http.ResponseWriter, stored *storedResponse) {
	switch {
	case stored.RequestHash != g.hash:
		responses.WriteError(ctx, g.logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case stored.pending():
		responses.WriteError(ctx, g.logg, w, pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is still in progress"))
	default:
		body, err := base64.StdEncoding.DecodeString(stored.Body)
		if err != nil {
			responses.WriteError(ctx, g.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency body"))
			return
		}
		if stored.ContentType != "" {
			w.Header().Set(storedContentTypeKey, stored.ContentType)
		}
		w.Header().Set(replayedHeader, "true")
		w.WriteHeader(stored.Status)
		_, _ = w.Write(body)
	}
}

func (g *idempotencyGuard) commit(ctx context.Context, capture *responseCapture) {
	payload, err := json.Marshal(storedResponse{
		Status:      capture.statusCode(),
		Body:        base64.StdEncoding.EncodeToString(capture.body.Bytes()),
		ContentType: capture.Header().Get(storedContentTypeKey),
		RequestHash: g.hash,
	})
	if err == nil {
		err = g.store.Set(ctx, g.key, string(payload), g.ttl)
	}
	if err != nil && g.logg != nil {
		g.logg.Error(ctx, "persist idempotency record", err)
	}
}

func (g *idempotencyGuard) release(ctx context.Context) {
	if err := g.store.Del(ctx, g.key); err != nil && g.logg != nil {
		g.logg.Error(ctx, "release idempotency key", err)
	}
}

func callerScope(r *http.Request) string {
	return strings.Join([]string{
		UserIDFromContext(r.Context()),
		SellerIDFromContext(r.Context()),
		r.Method,
		r.URL.Path,
	}, "|")
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

func routeKey(method, pattern string) string {
	return method + routeKeySeparator + pattern
}

func routeTTL(method, pattern string) (time.Duration, bool) {
	if len(pattern) > 1 {
		pattern = strings.TrimSuffix(pattern, "/")
	}
	ttl, ok := idempotentRoutes[routeKey(method, pattern)]
	return ttl, ok
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
