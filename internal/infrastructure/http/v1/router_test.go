package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/numerator"
	"stockledger/internal/core/security"
	"stockledger/internal/domain"
	"stockledger/internal/domain/auth"
	"stockledger/internal/domain/counting"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/location"
	"stockledger/internal/domain/snapshot"
	"stockledger/internal/testutil/memstore"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type apiFixture struct {
	router     *gin.Engine
	supervisor string
	counter    string
}

func newAPI(t *testing.T, db pinger) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := memstore.New()
	clock := memstore.NewClock(time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC))
	locations := location.NewService(st.Locations(), st)
	ledgerSvc := ledger.NewService(ledger.ServiceConfig{
		Items:     st.Items(),
		Movements: st.Movements(),
		TxManager: st,
		Events:    st.Publisher(),
		Audit:     st.Audit(),
		Clock:     clock.Now,
	})
	snapshotSvc := snapshot.NewService(st.Snapshots(), st.Items(), locations, st, st.Publisher())
	ledgerSvc.Hooks().On(domain.AfterUpdate, snapshotSvc.OnMovement)
	ledgerSvc.Hooks().On(domain.AfterDelete, snapshotSvc.OnMovement)
	countingSvc := counting.NewService(counting.ServiceConfig{
		Repo:      st.Counts(),
		Snapshots: st.Snapshots(),
		Ledger:    ledgerSvc,
		Numerator: &numerator.Memory{},
		TxManager: st,
		Events:    st.Publisher(),
		Audit:     st.Audit(),
		Clock:     clock.Now,
	})

	jwtSvc := auth.NewJWTService(auth.DefaultJWTConfig("router-test-secret"))
	token := func(user appctx.UserContext) string {
		tok, _, err := jwtSvc.GenerateAccessToken(user)
		require.NoError(t, err)
		return tok
	}

	router := NewRouter(RouterConfig{
		JWTValidator: jwtSvc,
		DB:           db,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("ledger_movements_applied_total 1\n"))
		}),
		Version:   "test",
		Locations: locations,
		Ledger:    ledgerSvc,
		Snapshots: snapshotSvc,
		Counting:  countingSvc,
		Audit:     st.Audit(),
	})

	return &apiFixture{
		router: router,
		supervisor: token(appctx.UserContext{
			UserID: "sup-1",
			Roles:  []string{security.RoleSupervisor},
			Permissions: []string{
				security.PermissionLedgerRead, security.PermissionLedgerWrite,
				security.PermissionLocationWrite, security.PermissionSnapshotSync,
				security.PermissionCountRead, security.PermissionCountManage,
				security.PermissionCountApprove,
			},
		}),
		counter: token(appctx.UserContext{
			UserID:      "cnt-1",
			Roles:       []string{security.RoleCounter},
			Permissions: []string{security.PermissionCountRead, security.PermissionCountEnter},
		}),
	}
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func TestRouter_Health(t *testing.T) {
	f := newAPI(t, pinger{})

	code, body := f.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	code, _ = f.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, code)

	down := newAPI(t, pinger{err: errors.New("connection refused")})
	code, body = down.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "error", body["status"])

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "ledger_movements_applied_total")
}

func TestRouter_RequiresAuth(t *testing.T) {
	f := newAPI(t, pinger{})

	code, body := f.do(t, http.MethodGet, "/api/v1/items", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, apperror.CodeUnauthorized, body["code"])

	code, body = f.do(t, http.MethodPost, "/api/v1/items", f.counter, map[string]any{"code": "X", "name": "X"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, apperror.CodeForbidden, body["code"])
}

func TestRouter_LedgerAndCountFlow(t *testing.T) {
	f := newAPI(t, pinger{})

	code, loc := f.do(t, http.MethodPost, "/api/v1/locations", f.supervisor,
		map[string]any{"code": "Aisle 1 (A1)", "zone": "north"})
	require.Equal(t, http.StatusCreated, code, loc)
	assert.Equal(t, "A1", loc["code"])

	code, item := f.do(t, http.MethodPost, "/api/v1/items", f.supervisor,
		map[string]any{"code": "BOLT-8", "name": "Hex bolt", "abcClass": "A", "unitCost": "2.50"})
	require.Equal(t, http.StatusCreated, code, item)
	itemID := item["id"].(string)

	code, res := f.do(t, http.MethodPost, "/api/v1/items/"+itemID+"/receipt", f.supervisor,
		map[string]any{"quantity": 10, "to": "A1"})
	require.Equal(t, http.StatusCreated, code, res)
	assert.Equal(t, float64(10), res["item"].(map[string]any)["quantity"])
	assert.Equal(t, "receipt", res["movement"].(map[string]any)["type"])

	code, res = f.do(t, http.MethodPost, "/api/v1/items/"+itemID+"/issue", f.supervisor,
		map[string]any{"quantity": 20, "from": "A1"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, apperror.CodeInsufficientStock, res["code"])

	code, _ = f.do(t, http.MethodPost, "/api/v1/snapshot/sync", f.supervisor, nil)
	require.Equal(t, http.StatusOK, code)

	code, sess := f.do(t, http.MethodPost, "/api/v1/count-sessions", f.supervisor,
		map[string]any{"type": "cycle", "scope": map[string]any{"locations": []string{"A1"}}})
	require.Equal(t, http.StatusCreated, code, sess)
	sessionID := sess["id"].(string)
	assert.Equal(t, float64(1), sess["stats"].(map[string]any)["totalLines"])

	code, lines := f.do(t, http.MethodGet, "/api/v1/count-sessions/"+sessionID+"/lines", f.counter, nil)
	require.Equal(t, http.StatusOK, code)
	items := lines["items"].([]any)
	require.Len(t, items, 1)
	assert.NotContains(t, items[0].(map[string]any), "systemQty")

	code, line := f.do(t, http.MethodPost, "/api/v1/count-sessions/"+sessionID+"/count", f.counter,
		map[string]any{"itemId": itemID, "location": "A1", "countedQty": 8})
	require.Equal(t, http.StatusOK, code, line)
	assert.Equal(t, float64(8), line["countedQty"])
	assert.NotContains(t, line, "diffQty")

	code, sess = f.do(t, http.MethodPost, "/api/v1/count-sessions/"+sessionID+"/submit", f.counter, nil)
	require.Equal(t, http.StatusOK, code, sess)
	assert.Equal(t, "review", sess["status"])
	assert.NotContains(t, sess["stats"].(map[string]any), "discrepancyLines")

	code, _ = f.do(t, http.MethodPost, "/api/v1/count-sessions/"+sessionID+"/approve", f.counter, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, approval := f.do(t, http.MethodPost, "/api/v1/count-sessions/"+sessionID+"/approve", f.supervisor, nil)
	require.Equal(t, http.StatusOK, code, approval)
	movements := approval["movements"].([]any)
	require.Len(t, movements, 1)
	assert.Equal(t, "issue", movements[0].(map[string]any)["type"])
	assert.Equal(t, float64(2), movements[0].(map[string]any)["quantity"])

	code, item = f.do(t, http.MethodGet, "/api/v1/items/"+itemID, f.supervisor, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(8), item["quantity"])

	code, history := f.do(t, http.MethodGet, "/api/v1/audit/CountSession/"+sessionID, f.supervisor, nil)
	require.Equal(t, http.StatusOK, code, history)
	entries := history["items"].([]any)
	require.Len(t, entries, 2)
	assert.Equal(t, "approve", entries[0].(map[string]any)["action"])
	assert.Equal(t, "sup-1", entries[0].(map[string]any)["userId"])
	assert.Equal(t, "create", entries[1].(map[string]any)["action"])

	code, _ = f.do(t, http.MethodGet, "/api/v1/audit/Session/"+sessionID, f.supervisor, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestRouter_MovementBatch(t *testing.T) {
	f := newAPI(t, pinger{})

	code, item := f.do(t, http.MethodPost, "/api/v1/items", f.supervisor,
		map[string]any{"code": "WR-13", "name": "Wrench"})
	require.Equal(t, http.StatusCreated, code)
	itemID := item["id"].(string)

	for _, qty := range []int{3, 4} {
		code, res := f.do(t, http.MethodPost, "/api/v1/movements", f.supervisor, map[string]any{
			"itemId": itemID, "type": "receipt", "quantity": qty, "toLocation": "B2", "batchKey": "po-7",
		})
		require.Equal(t, http.StatusCreated, code, res)
		assert.Equal(t, "draft", res["movement"].(map[string]any)["status"])
	}

	code, batch := f.do(t, http.MethodPost, "/api/v1/movements/batches/po-7/complete", f.supervisor, nil)
	require.Equal(t, http.StatusOK, code, batch)
	assert.Len(t, batch["movements"].([]any), 2)

	code, item = f.do(t, http.MethodGet, "/api/v1/items/"+itemID, f.supervisor, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(7), item["quantity"])

	code, batch = f.do(t, http.MethodDelete, "/api/v1/movements/batches/po-7?reason=duplicate", f.supervisor, nil)
	require.Equal(t, http.StatusOK, code, batch)
	first := batch["movements"].([]any)[0].(map[string]any)
	assert.Equal(t, true, first["deleted"])
	assert.Equal(t, "duplicate", first["deleteReason"])

	code, item = f.do(t, http.MethodGet, "/api/v1/items/"+itemID, f.supervisor, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), item["quantity"])

	code, list := f.do(t, http.MethodGet, "/api/v1/movements?batchKey=po-7&includeDeleted=true", f.supervisor, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), list["totalCount"])
}

func TestRouter_BadIDs(t *testing.T) {
	f := newAPI(t, pinger{})

	code, body := f.do(t, http.MethodGet, "/api/v1/items/not-a-uuid", f.supervisor, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, apperror.CodeValidation, body["code"])

	code, body = f.do(t, http.MethodGet, "/api/v1/locations/0190f0a8-0000-7000-8000-000000000000", f.supervisor, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, apperror.CodeNotFound, body["code"])
}
