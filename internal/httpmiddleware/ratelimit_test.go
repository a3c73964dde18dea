package httpmiddleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestTokenBucketWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	l := NewSimpleTokenBucket(5, 15*time.Minute)
	l.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		ok, err := l.Allow(ctx, "ip")
		require.NoError(t, err)
		require.True(t, ok, "request %d", i)
	}
	ok, _ := l.Allow(ctx, "ip")
	require.False(t, ok)

	ok, _ = l.Allow(ctx, "other-ip")
	require.True(t, ok)

	now = now.Add(3 * time.Minute)
	ok, _ = l.Allow(ctx, "ip")
	require.True(t, ok, "one token refilled after a fifth of the window")
	ok, _ = l.Allow(ctx, "ip")
	require.False(t, ok)
}

type stubLimiter struct {
	ok  bool
	err error
}

func (s stubLimiter) Allow(context.Context, string) (bool, error) { return s.ok, s.err }

func TestFallback(t *testing.T) {
	ok, err := Fallback{Primary: stubLimiter{err: errors.New("down")}, Secondary: stubLimiter{ok: true}}.Allow(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = Fallback{Primary: stubLimiter{ok: false}, Secondary: stubLimiter{ok: true}}.Allow(context.Background(), "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/", Limit(NewSimpleTokenBucket(2, time.Hour), "otc"), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/open", Limit(stubLimiter{err: errors.New("down")}, "otc"), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, w.Code)
	}
	require.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/open", nil))
	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestTokenBucketEvictsIdleKeys(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	l := NewSimpleTokenBucket(2, time.Minute)
	l.now = func() time.Time { return now }

	for _, ip := range []string{"a", "b", "c"} {
		ok, err := l.Allow(ctx, ip)
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.Len(t, l.state, 3)

	now = now.Add(30 * time.Second)
	_, _ = l.Allow(ctx, "a")
	now = now.Add(40 * time.Second)
	_, _ = l.Allow(ctx, "d")
	require.Len(t, l.state, 2, "b and c idle for a full window")
	require.Contains(t, l.state, "a")
	require.Contains(t, l.state, "d")
}
