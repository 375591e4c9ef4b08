package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/akshat-collab/code-battle-arena/internal/arena"
	"github.com/akshat-collab/code-battle-arena/internal/bus"
	"github.com/akshat-collab/code-battle-arena/internal/config"
	"github.com/akshat-collab/code-battle-arena/internal/database"
	"github.com/akshat-collab/code-battle-arena/internal/hub"
	"github.com/akshat-collab/code-battle-arena/internal/judge"
	"github.com/akshat-collab/code-battle-arena/internal/stats"
	"github.com/akshat-collab/code-battle-arena/internal/testutil"
	"github.com/akshat-collab/code-battle-arena/internal/types"
	"github.com/akshat-collab/code-battle-arena/internal/users"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var testSigningKey = []byte("test-signing-key")

func testConfig() *config.Config {
	return &config.Config{
		ServerAddr:     "localhost:8080",
		SigningKey:     testSigningKey,
		AllowedOrigins: []string{"http://localhost:3000"},
	}
}

// newTestApp wires the app over the memory store with a running hub. A nil
// judge accepts everything for 100 points.
func newTestApp(t *testing.T, j judge.Judge) *ArenaApp {
	t.Helper()

	if j == nil {
		j = judge.FixedJudge{Score: 100}
	}

	logger := testutil.TestLogger(t)
	store := database.NewMemoryArenaRepository()

	var m *arena.Manager
	h := hub.NewHub(logger, bus.NewLocalBus(64), hub.RoomFinderFunc(func(ctx context.Context, id string) (bool, error) {
		return m.RoomExists(ctx, id)
	}), stats.NewMockStatsUpdater())
	m = arena.NewManager(store, h, j, users.NewResolver(store, nil, logger), logger, arena.Options{
		JudgeTimeout: time.Second,
		BcryptCost:   bcrypt.MinCost,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), time.Second)
		defer done()
		h.Shutdown(shutdownCtx)
		cancel()
	})

	return NewArenaApp(http.NewServeMux(), logger, m, h, store, nil, testConfig())
}

func doRequest(t *testing.T, app *ArenaApp, method, path string, body any, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	switch v := body.(type) {
	case nil:
	case string:
		buf.WriteString(v)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(v))
	}

	req := httptest.NewRequest(method, path, &buf)
	if cookie != nil {
		req.AddCookie(cookie)
	}

	rr := httptest.NewRecorder()
	app.Handler().ServeHTTP(rr, req)
	return rr
}

// findCookie returns the named cookie set on the response, or nil.
func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rr.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

func login(t *testing.T, app *ArenaApp, name string) (*http.Cookie, types.User) {
	t.Helper()

	rr := doRequest(t, app, http.MethodPost, "/api/session", SessionRequest{ExternalId: "ext-" + name, Username: name}, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var user types.User
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&user))

	cookie := findCookie(rr, tokenCookieKey)
	require.NotNil(t, cookie, "expected session cookie")
	return cookie, user
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v), rr.Body.String())
	return v
}
