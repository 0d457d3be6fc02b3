package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	testReqID  = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	testUserID = "farmer-1"
)

func setupEcho(rdb *redis.Client, ttl time.Duration, handler echo.HandlerFunc) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(Idempotency(rdb, ttl, zap.NewNop()))
	e.POST("/loans/:loan_id/repayments", handler)
	e.GET("/loans/:loan_id", handler)
	return e
}

func doReq(t *testing.T, e *echo.Echo, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func headers() map[string]string {
	return map[string]string{HeaderRequestID: testReqID, HeaderUserID: testUserID}
}

func counting(code int, n *int32) echo.HandlerFunc {
	return func(c echo.Context) error {
		atomic.AddInt32(n, 1)
		return c.JSON(code, map[string]any{"call": atomic.LoadInt32(n)})
	}
}

func Test_BypassOnGET(t *testing.T) {
	_, rdb := newMiniRedis(t)
	var n int32
	e := setupEcho(rdb, time.Minute, counting(http.StatusOK, &n))
	if rec := doReq(t, e, http.MethodGet, "/loans/abc", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func Test_HeaderValidation(t *testing.T) {
	_, rdb := newMiniRedis(t)
	var n int32
	e := setupEcho(rdb, time.Minute, counting(http.StatusCreated, &n))

	tests := []struct {
		name string
		hdr  map[string]string
	}{
		{"missing request id", map[string]string{HeaderUserID: testUserID}},
		{"bad request id", map[string]string{HeaderRequestID: "NOT-VALID", HeaderUserID: testUserID}},
		{"missing user", map[string]string{HeaderRequestID: testReqID}},
		{"bad user", map[string]string{HeaderRequestID: testReqID, HeaderUserID: "two words"}},
	}
	for _, tt := range tests {
		if rec := doReq(t, e, http.MethodPost, "/loans/abc/repayments", `{}`, tt.hdr); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: want 400, got %d", tt.name, rec.Code)
		}
	}
	if n != 0 {
		t.Fatalf("handler must not run on rejected headers, ran %d times", n)
	}
}

func Test_ReplaysStoredResponse(t *testing.T) {
	_, rdb := newMiniRedis(t)
	var n int32
	e := setupEcho(rdb, time.Minute, counting(http.StatusCreated, &n))

	rec1 := doReq(t, e, http.MethodPost, "/loans/abc/repayments", `{"amount":"250"}`, headers())
	rec2 := doReq(t, e, http.MethodPost, "/loans/abc/repayments", `{"amount":"250"}`, headers())
	if rec1.Code != http.StatusCreated || rec2.Code != http.StatusCreated {
		t.Fatalf("codes %d/%d, want 201/201", rec1.Code, rec2.Code)
	}
	if rec1.Body.String() != rec2.Body.String() {
		t.Fatalf("replay body mismatch: %q vs %q", rec1.Body.String(), rec2.Body.String())
	}
	if rec2.Header().Get("Idempotent-Replay") != "true" {
		t.Fatal("replay not flagged")
	}
	if n != 1 {
		t.Fatalf("handler ran %d times, want 1", n)
	}

	// another user with the same request id is a different request
	h := headers()
	h[HeaderUserID] = "farmer-2"
	doReq(t, e, http.MethodPost, "/loans/abc/repayments", `{"amount":"250"}`, h)
	if n != 2 {
		t.Fatalf("handler ran %d times, want 2", n)
	}
}

func Test_ServerErrorsAreNotStored(t *testing.T) {
	_, rdb := newMiniRedis(t)
	var n int32
	e := setupEcho(rdb, time.Minute, counting(http.StatusBadGateway, &n))

	doReq(t, e, http.MethodPost, "/loans/abc/repayments", `{}`, headers())
	doReq(t, e, http.MethodPost, "/loans/abc/repayments", `{}`, headers())
	if n != 2 {
		t.Fatalf("handler ran %d times, want a retry to reach it", n)
	}
}

func Test_ConflictWhenInProgress(t *testing.T) {
	_, rdb := newMiniRedis(t)
	var n int32
	e := setupEcho(rdb, time.Minute, counting(http.StatusCreated, &n))

	body := []byte(`{"x":1}`)
	key := buildKey(http.MethodPost, "/loans/:loan_id/repayments", testUserID, testReqID)
	if ok, err := provisionalSet(context.Background(), rdb, key, idempEntry{InProgress: true, BodySHA256: bodyHash(body), RequestID: testReqID}); err != nil || !ok {
		t.Fatalf("seed provisional failed, ok=%v err=%v", ok, err)
	}

	rec := doReq(t, e, http.MethodPost, "/loans/abc/repayments", string(body), headers())
	if rec.Code != http.StatusConflict {
		t.Fatalf("in-progress => want 409, got %d body=%s", rec.Code, rec.Body.String())
	}
}

func Test_ConflictWhenBodyDiffers(t *testing.T) {
	_, rdb := newMiniRedis(t)
	var n int32
	e := setupEcho(rdb, time.Minute, counting(http.StatusCreated, &n))

	doReq(t, e, http.MethodPost, "/loans/abc/repayments", `{"amount":"1"}`, headers())
	rec := doReq(t, e, http.MethodPost, "/loans/abc/repayments", `{"amount":"2"}`, headers())
	if rec.Code != http.StatusConflict {
		t.Fatalf("different body same id => want 409, got %d", rec.Code)
	}
}

func Test_StoreUnavailable(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	var n int32
	e := setupEcho(rdb, time.Minute, counting(http.StatusCreated, &n))

	rec := doReq(t, e, http.MethodPost, "/loans/abc/repayments", `{}`, headers())
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("store unavailable => want 503, got %d", rec.Code)
	}
	if n != 0 {
		t.Fatal("handler must not run without the store")
	}
}
