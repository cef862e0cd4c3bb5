package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/repairdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/repairdesk-backend/pkg/errors"
)

type fakeStore struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	str, _ := value.(string)
	f.data[key] = str
	f.ttls[key] = ttl
	return nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	f.data[key] = str
	f.ttls[key] = ttl
	return true, nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		delete(f.data, key)
		delete(f.ttls, key)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func (f *fakeStore) only(t *testing.T) (string, time.Duration) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.data, 1)
	for k := range f.data {
		return f.data[k], f.ttls[k]
	}
	return "", 0
}

func staffRequest(method, path, body, key string, userID uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	return req.WithContext(WithActor(req.Context(), userID, enums.UserRoleStaff))
}

func countingHandler(calls *int, status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(fmt.Sprintf(`{"call":%d}`, *calls)))
	})
}

func errorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	return body.Error.Code
}

func TestMatchRule(t *testing.T) {
	id := uuid.NewString()
	cases := []struct {
		name     string
		method   string
		path     string
		ok       bool
		critical bool
	}{
		{"create request", http.MethodPost, "/api/v1/requests", true, false},
		{"workflow action", http.MethodPost, "/api/v1/requests/" + id + "/actions/start_diagnosis", true, false},
		{"generate quote", http.MethodPost, "/api/v1/requests/" + id + "/invoice/quote", true, false},
		{"finalize invoice", http.MethodPost, "/api/v1/requests/" + id + "/invoice/finalize", true, true},
		{"add item", http.MethodPost, "/api/v1/invoices/" + id + "/items", true, false},
		{"payment", http.MethodPost, "/api/v1/invoices/" + id + "/payment", true, true},
		{"customer create", http.MethodPost, "/api/v1/customer/requests", true, false},
		{"customer cancel", http.MethodPost, "/api/v1/customer/requests/" + id + "/cancel", true, false},
		{"customer quote", http.MethodPost, "/api/v1/customer/requests/" + id + "/quote/approve", true, false},
		{"note", http.MethodPost, "/api/v1/requests/" + id + "/notes", false, false},
		{"list", http.MethodGet, "/api/v1/requests", false, false},
		{"available actions", http.MethodGet, "/api/v1/requests/" + id + "/actions", false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			critical, ok := matchRule(tc.method, tc.path)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.critical, critical)
		})
	}
}

func TestIdempotencyRequiresKey(t *testing.T) {
	calls := 0
	handler := Idempotency(newFakeStore(), time.Hour, nil)(countingHandler(&calls, http.StatusCreated))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, staffRequest(http.MethodPost, "/api/v1/requests", `{}`, "", uuid.New()))

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, string(pkgerrors.CodeValidation), errorCode(t, resp))
	assert.Zero(t, calls)
}

func TestIdempotencySkipsUnlistedRoutes(t *testing.T) {
	calls := 0
	store := newFakeStore()
	handler := Idempotency(store, time.Hour, nil)(countingHandler(&calls, http.StatusOK))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, staffRequest(http.MethodGet, "/api/v1/requests", "", "", uuid.New()))

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 1, calls)
	assert.Empty(t, store.data)
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	calls := 0
	store := newFakeStore()
	handler := Idempotency(store, time.Hour, nil)(countingHandler(&calls, http.StatusCreated))
	userID := uuid.New()

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, staffRequest(http.MethodPost, "/api/v1/requests", `{"brand":"Lenovo"}`, "abc", userID))
	require.Equal(t, http.StatusCreated, first.Code)

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, staffRequest(http.MethodPost, "/api/v1/requests", `{"brand":"Lenovo"}`, "abc", userID))

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))

	_, ttl := store.only(t)
	assert.Equal(t, time.Hour, ttl)
}

func TestIdempotencyRejectsBodyMismatch(t *testing.T) {
	calls := 0
	handler := Idempotency(newFakeStore(), time.Hour, nil)(countingHandler(&calls, http.StatusCreated))
	userID := uuid.New()

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, staffRequest(http.MethodPost, "/api/v1/requests", `{"brand":"Lenovo"}`, "abc", userID))
	require.Equal(t, http.StatusCreated, first.Code)

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, staffRequest(http.MethodPost, "/api/v1/requests", `{"brand":"Dell"}`, "abc", userID))

	assert.Equal(t, http.StatusConflict, second.Code)
	assert.Equal(t, string(pkgerrors.CodeIdempotency), errorCode(t, second))
	assert.Equal(t, 1, calls)
}

func TestIdempotencyRejectsInFlightDuplicate(t *testing.T) {
	store := newFakeStore()
	userID := uuid.New()
	path := "/api/v1/invoices/" + uuid.NewString() + "/payment"

	var inner http.Handler
	calls := 0
	handler := Idempotency(store, time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		dup := httptest.NewRecorder()
		inner.ServeHTTP(dup, staffRequest(http.MethodPost, path, `{"status":"Paid"}`, "pay-1", userID))
		assert.Equal(t, http.StatusConflict, dup.Code)
		w.WriteHeader(http.StatusOK)
	}))
	inner = handler

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, staffRequest(http.MethodPost, path, `{"status":"Paid"}`, "pay-1", userID))

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, 1, calls)
	_, ttl := store.only(t)
	assert.Equal(t, criticalIdempotencyTTL, ttl)
}

func TestIdempotencyReleasesKeyOnServerError(t *testing.T) {
	calls := 0
	store := newFakeStore()
	handler := Idempotency(store, time.Hour, nil)(countingHandler(&calls, http.StatusInternalServerError))
	userID := uuid.New()

	for i := 0; i < 2; i++ {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, staffRequest(http.MethodPost, "/api/v1/requests", `{}`, "retry", userID))
		assert.Equal(t, http.StatusInternalServerError, resp.Code)
	}
	assert.Equal(t, 2, calls)
	assert.Empty(t, store.data)
}

func TestIdempotencyScopesByUser(t *testing.T) {
	calls := 0
	handler := Idempotency(newFakeStore(), time.Hour, nil)(countingHandler(&calls, http.StatusCreated))

	for i := 0; i < 2; i++ {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, staffRequest(http.MethodPost, "/api/v1/requests", `{}`, "same", uuid.New()))
		assert.Equal(t, http.StatusCreated, resp.Code)
	}
	assert.Equal(t, 2, calls)
}
