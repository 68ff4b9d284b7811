package middleware

import (
	"bytes"
	"context"
	"encoding/hex"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/blake2b"

	"stockledger/internal/core/apperror"
	appctx "stockledger/internal/core/context"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/pkg/logger"
)

const HeaderIdempotencyKey = "X-Idempotency-Key"
const maxIdempotencyBodyBytes = 1 << 20 // 1 MiB

// Gin context keys shared by Idempotency, ErrorHandler and the handlers.
const (
	ContextIdempotencyKey   = "idempotency_key"
	ContextIdempotencyStore = "idempotency_store"
)

// IdempotencyStore is implemented by postgres.IdempotencyStore.
type IdempotencyStore interface {
	AcquireKey(ctx context.Context, key, userID, operation, requestHash string) (*postgres.IdempotencyReplay, error)
	CompleteKey(ctx context.Context, key string, statusCode int, contentType string, response any) error
	FailKey(ctx context.Context, key string, statusCode int, contentType string, response any) error
}

var _ IdempotencyStore = (*postgres.IdempotencyStore)(nil)

// Idempotency middleware protects against duplicate requests.
// Used for POST/PUT/PATCH/DELETE operations: a retried receipt, approval or
// reversal replays the first response instead of applying twice.
func Idempotency(store IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		default:
			c.Next()
			return
		}

		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}

		userID := appctx.GetUserID(c.Request.Context())

		limited := io.LimitReader(c.Request.Body, maxIdempotencyBodyBytes+1)
		body, _ := io.ReadAll(limited)
		if len(body) > maxIdempotencyBodyBytes {
			appErr := apperror.NewValidation("request body too large for idempotency")
			appErr.HTTPStatus = http.StatusRequestEntityTooLarge
			_ = c.Error(appErr.WithDetail("max_bytes", maxIdempotencyBodyBytes))
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		operation := c.Request.Method + " " + c.FullPath()
		requestHash := fingerprint(c.Request.URL.Path, body)

		replay, err := store.AcquireKey(c.Request.Context(), key, userID, operation, requestHash)
		if err != nil {
			if appErr, ok := apperror.AsAppError(err); ok {
				_ = c.Error(appErr)
				c.Abort()
				return
			}
			_ = c.Error(apperror.NewInternal(err).WithDetail("component", "idempotency"))
			c.Abort()
			return
		}

		if replay != nil {
			c.Data(replay.StatusCode, replay.ContentType, replay.Body)
			c.Abort()
			return
		}

		c.Set(ContextIdempotencyKey, key)
		c.Set(ContextIdempotencyStore, store)

		c.Next()
	}
}

// fingerprint hashes the concrete path with the body so the same key reused
// for another item or session is detected as a mismatch.
func fingerprint(path string, body []byte) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// CompleteIdempotency records the response for replay. It is a no-op when the
// request carried no idempotency key.
func CompleteIdempotency(c *gin.Context, statusCode int, contentType string, response any) {
	key, store, ok := idempotencyFrom(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if err := store.CompleteKey(ctx, key, statusCode, contentType, response); err != nil {
		logger.Error(ctx, "complete idempotency key", "key", key, "error", err)
	}
}

func failIdempotency(c *gin.Context, statusCode int, body any) {
	key, store, ok := idempotencyFrom(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if err := store.FailKey(ctx, key, statusCode, "application/json", body); err != nil {
		logger.Error(ctx, "fail idempotency key", "key", key, "error", err)
	}
}

func idempotencyFrom(c *gin.Context) (string, IdempotencyStore, bool) {
	key := c.GetString(ContextIdempotencyKey)
	if key == "" {
		return "", nil, false
	}
	v, exists := c.Get(ContextIdempotencyStore)
	if !exists {
		return "", nil, false
	}
	store, ok := v.(IdempotencyStore)
	return key, store, ok && store != nil
}
