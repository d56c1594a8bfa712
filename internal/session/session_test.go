package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gotosleep/authlogic-openid/internal/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]*CacheStore {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return map[string]*CacheStore{
		"memory": NewCacheStore(cache.NewMemory(time.Hour)),
		"redis":  NewCacheStore(cache.NewRedis(rdb, "test:")),
	}
}

func TestCacheStoreLifecycle(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := Session{SessionID: "sid", UserID: "u1", RememberMe: true, ExpiresAt: time.Now().Add(time.Hour)}

			require.NoError(t, store.Create(ctx, s))

			got, err := store.Get(ctx, "sid")
			require.NoError(t, err)
			assert.Equal(t, "u1", got.UserID)
			assert.True(t, got.RememberMe)

			require.NoError(t, store.Delete(ctx, "sid"))
			_, err = store.Get(ctx, "sid")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestCacheStoreRejectsInvalid(t *testing.T) {
	store := NewCacheStore(cache.NewMemory(time.Hour))
	ctx := context.Background()

	assert.Error(t, store.Create(ctx, Session{SessionID: "sid", ExpiresAt: time.Now().Add(time.Hour)}))
	assert.Error(t, store.Create(ctx, Session{SessionID: "sid", UserID: "u1", ExpiresAt: time.Now().Add(-time.Second)}))
	assert.Error(t, store.Update(ctx, Session{UserID: "u1"}))
}

func TestUpdateExpiredDeletes(t *testing.T) {
	store := NewCacheStore(cache.NewMemory(time.Hour))
	ctx := context.Background()
	s := Session{SessionID: "sid", UserID: "u1", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, store.Create(ctx, s))

	s.ExpiresAt = time.Now().Add(-time.Minute)
	require.NoError(t, store.Update(ctx, s))

	_, err := store.Get(ctx, "sid")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStartUsesRememberLifetime(t *testing.T) {
	store := NewCacheStore(cache.NewMemory(time.Hour))
	l := Lifetimes{TTL: time.Hour, RememberTTL: 30 * 24 * time.Hour}

	short, err := Start(context.Background(), store, "u1", false, l)
	require.NoError(t, err)
	long, err := Start(context.Background(), store, "u1", true, l)
	require.NoError(t, err)

	assert.NotEqual(t, short.SessionID, long.SessionID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), short.ExpiresAt, time.Minute)
	assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), long.ExpiresAt, time.Minute)
	assert.Equal(t, time.Hour, Lifetimes{TTL: time.Hour}.For(true))
}

func TestCookieRoundTrip(t *testing.T) {
	for _, secure := range []bool{true, false} {
		opts := CookieOptions{Secure: secure}
		rec := httptest.NewRecorder()
		SetCookie(rec, "sid", time.Now().Add(time.Hour), opts)

		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, opts.Name(), cookies[0].Name)
		assert.True(t, cookies[0].HttpOnly)
		assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(cookies[0])
		id, ok := ReadCookie(req, opts)
		assert.True(t, ok)
		assert.Equal(t, "sid", id)
	}
}

func TestClearCookie(t *testing.T) {
	rec := httptest.NewRecorder()
	ClearCookie(rec, CookieOptions{Secure: true})

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.Equal(t, -1, cookies[0].MaxAge)
}
