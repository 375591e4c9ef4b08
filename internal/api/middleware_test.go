package api

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/akshat-collab/code-battle-arena/internal/testutil"
	"github.com/akshat-collab/code-battle-arena/internal/types"
	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorHandler_PanicRecovery(t *testing.T) {
	buf := &bytes.Buffer{}
	app := &ArenaApp{
		log: testutil.TestLogger(t),
	}

	app.log.SetOutput(buf)

	panicHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(errors.New("test panic"))
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	handler := app.errorHandler(panicHandler)
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "close", rr.Header().Get("Connection"))
	assert.Contains(t, buf.String(), "panic: test panic")
	assert.NotContains(t, rr.Body.String(), "test panic", "expected panic detail to stay out of the response")
}

func Test_errorHandler_NoPanic(t *testing.T) {
	app := &ArenaApp{}

	called := false
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	handler := app.errorHandler(okHandler)
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
	assert.True(t, called, "expected handler to be called")
}

func Test_authMiddleware(t *testing.T) {
	app := NewArenaApp(http.NewServeMux(), testutil.TestLogger(t), nil, nil, nil, nil, testConfig())

	buf := &bytes.Buffer{}
	app.log.SetOutput(buf)

	tokenHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userId, ok := UserId(r.Context())
		if !ok {
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
		assert.Equal(t, 1, userId)
	})

	signed := func(key any, method jwt.SigningMethod, claims jwt.MapClaims) string {
		token, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return token
	}

	t.Run("valid token", func(t *testing.T) {
		token, err := app.createJwtForSession(types.User{Id: 1, Username: "test"}, defaultJwtExpiration)
		require.NoError(t, err, "failed to create jwt token")

		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(createJwtCookie(token, defaultJwtExpiration))
		app.authMiddleware(tokenHandler).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "ok", rr.Body.String())
		assert.Equal(t, "no-store, no-cache, must-revalidate, private", rr.Header().Get("Cache-Control"))
	})

	t.Run("missing token", func(t *testing.T) {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		app.authMiddleware(tokenHandler).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	tcases := []struct {
		name  string
		token string
	}{
		{
			name:  "malformed token",
			token: "invalid-token",
		},
		{
			name: "expired token",
			token: signed(testSigningKey, jwt.SigningMethodHS256, jwt.MapClaims{
				userIdClaim: 1,
				expClaim:    time.Now().Add(-time.Minute).Unix(),
			}),
		},
		{
			name: "foreign signing key",
			token: signed([]byte("another-key"), jwt.SigningMethodHS256, jwt.MapClaims{
				userIdClaim: 1,
				expClaim:    time.Now().Add(time.Minute).Unix(),
			}),
		},
		{
			name: "missing user id",
			token: signed(testSigningKey, jwt.SigningMethodHS256, jwt.MapClaims{
				expClaim: time.Now().Add(time.Minute).Unix(),
			}),
		},
		{
			name: "unsigned token",
			token: signed(jwt.UnsafeAllowNoneSignatureType, jwt.SigningMethodNone, jwt.MapClaims{
				userIdClaim: 1,
				expClaim:    time.Now().Add(time.Minute).Unix(),
			}),
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			buf.Reset()

			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.AddCookie(&http.Cookie{
				Name:  tokenCookieKey,
				Value: tc.token,
			})
			app.authMiddleware(tokenHandler).ServeHTTP(rr, req)

			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			assert.Contains(t, buf.String(), "failed to extract user id from token")
		})
	}
}

type observed struct {
	method string
	route  string
	status int
}

type fakeObserver struct {
	requests []observed
}

func (f *fakeObserver) ObserveRequest(method, route string, status int, _ time.Duration) {
	f.requests = append(f.requests, observed{method: method, route: route, status: status})
}

func Test_metricsMiddleware(t *testing.T) {
	obs := &fakeObserver{}
	app := &ArenaApp{stats: obs}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/rooms/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	handler := app.metricsMiddleware(mux)

	for _, path := range []string{"/api/rooms/abc", "/healthz", "/nowhere"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, []observed{
		{method: http.MethodGet, route: "GET /api/rooms/{id}", status: http.StatusTeapot},
		{method: http.MethodGet, route: "GET /healthz", status: http.StatusOK},
		{method: http.MethodGet, route: "unmatched", status: http.StatusNotFound},
	}, obs.requests)
}

func Test_metricsMiddlewareDisabled(t *testing.T) {
	app := &ArenaApp{}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	handler := app.metricsMiddleware(next)
	assert.NotNil(t, handler)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}
