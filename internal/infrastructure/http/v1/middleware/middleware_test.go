package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"stockledger/internal/core/apperror"
	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/security"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubValidator struct {
	user *appctx.UserContext
}

func (v stubValidator) ValidateToken(token string) (*appctx.UserContext, error) {
	if token != "good" {
		return nil, errors.New("bad token")
	}
	return v.user, nil
}

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(ErrorHandler())
	r.Use(mw...)
	return r
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestAuth(t *testing.T) {
	user := &appctx.UserContext{UserID: "u-1", Permissions: []string{security.PermissionLedgerRead}}
	r := newEngine(Auth(stubValidator{user: user}), UserContext())
	r.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user":  appctx.GetUserID(c.Request.Context()),
			"actor": security.ActorOrSystem(c.Request.Context()),
		})
	})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic good", http.StatusUnauthorized},
		{"invalid token", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "Bearer good", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			body := decode(t, rec)
			if tt.status == http.StatusOK {
				assert.Equal(t, "u-1", body["user"])
				assert.Equal(t, "u-1", body["actor"])
			} else {
				assert.Equal(t, apperror.CodeUnauthorized, body["code"])
			}
		})
	}
}

func TestRequirePermission(t *testing.T) {
	tests := []struct {
		name   string
		user   *appctx.UserContext
		status int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"missing permission", &appctx.UserContext{UserID: "u", Permissions: []string{"ledger:read"}}, http.StatusForbidden},
		{"granted", &appctx.UserContext{UserID: "u", Permissions: []string{"ledger:write"}}, http.StatusNoContent},
		{"admin", &appctx.UserContext{UserID: "u", IsAdmin: true}, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newEngine(func(c *gin.Context) {
				if tt.user != nil {
					c.Request = c.Request.WithContext(appctx.WithUser(c.Request.Context(), tt.user))
				}
			}, RequirePermission(security.PermissionLedgerWrite))
			r.POST("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/x", nil))

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusForbidden {
				details := decode(t, rec)["details"].(map[string]any)
				assert.Equal(t, security.PermissionLedgerWrite, details["required_permission"])
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	r := newEngine(func(c *gin.Context) {
		c.Request = c.Request.WithContext(appctx.WithUser(c.Request.Context(),
			&appctx.UserContext{UserID: "u", Roles: []string{security.RoleCounter}}))
	}, RequireRole(security.RoleSupervisor, security.RoleManager))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestErrorHandler(t *testing.T) {
	r := newEngine()
	r.GET("/app", func(c *gin.Context) {
		_ = c.Error(apperror.NewInsufficientStock("item-1", "A1", 5, 2))
	})
	r.GET("/raw", func(c *gin.Context) {
		c.Set("request_id", "req-1")
		_ = c.Error(errors.New("connection reset"))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/app", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, apperror.CodeInsufficientStock, body["code"])
	assert.Equal(t, "A1", body["details"].(map[string]any)["location"])

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/raw", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, apperror.CodeInternal, body["code"])
	assert.NotContains(t, rec.Body.String(), "connection reset")
}

func TestRecovery(t *testing.T) {
	r := newEngine(Recovery())
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestTrace_PropagatesHeaders(t *testing.T) {
	r := newEngine(Trace())
	r.GET("/x", func(c *gin.Context) {
		c.String(http.StatusOK, appctx.GetRequestID(c.Request.Context()))
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(HeaderRequestID, "req-42")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Body.String())
	assert.Equal(t, "req-42", rec.Header().Get(HeaderRequestID))
	assert.NotEmpty(t, rec.Header().Get(HeaderTraceID))
}

type fakeIdempotencyStore struct {
	replay    *postgres.IdempotencyReplay
	acquired  []string
	completed map[string]int
	failed    map[string]int
	storeErr  error
}

func newFakeStore() *fakeIdempotencyStore {
	return &fakeIdempotencyStore{completed: map[string]int{}, failed: map[string]int{}}
}

func (s *fakeIdempotencyStore) AcquireKey(_ context.Context, key, _, operation, hash string) (*postgres.IdempotencyReplay, error) {
	s.acquired = append(s.acquired, key+"|"+operation+"|"+hash)
	return s.replay, nil
}

func (s *fakeIdempotencyStore) CompleteKey(_ context.Context, key string, status int, _ string, _ any) error {
	s.completed[key] = status
	return s.storeErr
}

func (s *fakeIdempotencyStore) FailKey(_ context.Context, key string, status int, _ string, _ any) error {
	s.failed[key] = status
	return s.storeErr
}

func TestIdempotency(t *testing.T) {
	store := newFakeStore()
	r := newEngine(Idempotency(store))
	r.POST("/items/:id/receipt", func(c *gin.Context) {
		CompleteIdempotency(c, http.StatusCreated, "application/json", gin.H{"ok": true})
		c.JSON(http.StatusCreated, gin.H{"ok": true})
	})
	r.POST("/fail", func(c *gin.Context) {
		_ = c.Error(apperror.NewValidation("quantity must be positive"))
	})
	r.GET("/items", func(c *gin.Context) { c.Status(http.StatusOK) })

	post := func(path, key, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		if key != "" {
			req.Header.Set(HeaderIdempotencyKey, key)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	rec := post("/items/1/receipt", "k-1", `{"quantity":5}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, http.StatusCreated, store.completed["k-1"])
	require.Len(t, store.acquired, 1)
	assert.Contains(t, store.acquired[0], "k-1|POST /items/:id/receipt|")

	rec = post("/fail", "k-2", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, http.StatusBadRequest, store.failed["k-2"])

	post("/items/1/receipt", "", `{}`)
	assert.Len(t, store.acquired, 2, "requests without a key bypass the store")

	req := httptest.NewRequest(http.MethodGet, "/items", nil)
	req.Header.Set(HeaderIdempotencyKey, "k-3")
	r.ServeHTTP(httptest.NewRecorder(), req)
	assert.Len(t, store.acquired, 2, "reads bypass the store")
}

func TestIdempotency_StoreErrorsAreLogged(t *testing.T) {
	store := newFakeStore()
	store.storeErr = errors.New("connection reset")
	core, logs := observer.New(zap.ErrorLevel)
	r := newEngine(Logger(&logger.Logger{SugaredLogger: zap.New(core).Sugar()}), Idempotency(store))
	r.POST("/ok", func(c *gin.Context) {
		CompleteIdempotency(c, http.StatusCreated, "application/json", gin.H{"ok": true})
		c.JSON(http.StatusCreated, gin.H{"ok": true})
	})
	r.POST("/fail", func(c *gin.Context) {
		_ = c.Error(apperror.NewValidation("quantity must be positive"))
	})

	for path, want := range map[string]int{"/ok": http.StatusCreated, "/fail": http.StatusBadRequest} {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{}`))
		req.Header.Set(HeaderIdempotencyKey, "k"+path)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, path)
	}

	completed := logs.FilterMessage("complete idempotency key").All()
	require.Len(t, completed, 1)
	assert.Equal(t, "k/ok", completed[0].ContextMap()["key"])
	assert.Equal(t, "connection reset", completed[0].ContextMap()["error"])
	failed := logs.FilterMessage("fail idempotency key").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "k/fail", failed[0].ContextMap()["key"])
}

func TestIdempotency_Replay(t *testing.T) {
	store := newFakeStore()
	store.replay = &postgres.IdempotencyReplay{StatusCode: http.StatusCreated, ContentType: "application/json", Body: []byte(`{"id":"m-1"}`)}
	called := false
	r := newEngine(Idempotency(store))
	r.POST("/movements", func(c *gin.Context) { called = true })

	req := httptest.NewRequest(http.MethodPost, "/movements", strings.NewReader(`{}`))
	req.Header.Set(HeaderIdempotencyKey, "k-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"id":"m-1"}`, rec.Body.String())
}

func TestFingerprint(t *testing.T) {
	a := fingerprint("/items/1/receipt", []byte(`{"quantity":5}`))

	assert.Len(t, a, 64)
	assert.Equal(t, a, fingerprint("/items/1/receipt", []byte(`{"quantity":5}`)))
	assert.NotEqual(t, a, fingerprint("/items/2/receipt", []byte(`{"quantity":5}`)))
	assert.NotEqual(t, a, fingerprint("/items/1/receipt", []byte(`{"quantity":6}`)))
}

func TestTrace_W3CTraceparent(t *testing.T) {
	r := newEngine(Trace())
	r.GET("/x", func(c *gin.Context) {
		c.String(http.StatusOK, appctx.GetTrace(c.Request.Context()).SpanID)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	req.Header.Set(HeaderTraceID, "ignored")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", rec.Header().Get(HeaderTraceID))
	assert.Equal(t, "00f067aa0ba902b7", rec.Body.String())
}

func TestRecovery_Outermost(t *testing.T) {
	r := gin.New()
	r.Use(Recovery(), ErrorHandler())
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, apperror.CodeInternal, decode(t, rec)["code"])
}
