package http

import (
	"bytes"
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sujalbistaa/confessions/internal/confessions"
	"github.com/sujalbistaa/confessions/internal/identity"
	"github.com/sujalbistaa/confessions/internal/kv"
	"github.com/sujalbistaa/confessions/internal/localstore"
	"github.com/sujalbistaa/confessions/internal/models"
	"github.com/sujalbistaa/confessions/internal/moderation"
	"github.com/sujalbistaa/confessions/internal/rank"
)

type stubModerator struct {
	verdict moderation.Result
	calls   int
}

func (s *stubModerator) Classify(context.Context, string) moderation.Result {
	s.calls++
	return s.verdict
}

type testServer struct {
	srv    *httptest.Server
	client *http.Client
	mod    *stubModerator
	repo   *confessions.Repository
}

func newTestServer(t *testing.T, postInterval time.Duration) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := confessions.New(nil, localstore.New(kv.NewMemory(), zap.NewNop()))
	mod := &stubModerator{verdict: moderation.Result{Allowed: true, Reason: moderation.ReasonDevMode}}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	router := gin.New()
	SetupRoutes(ctx, router, Deps{
		Repo:         repo,
		Moderator:    mod,
		Log:          zap.NewNop(),
		PostInterval: postInterval,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &testServer{srv: srv, client: &http.Client{Jar: jar}, mod: mod, repo: repo}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := ts.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (ts *testServer) list(t *testing.T, query string) []models.Confession {
	t.Helper()
	resp := ts.do(t, http.MethodGet, "/api/confessions"+query, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return decode[[]models.Confession](t, resp)
}

func TestGetConfessions_EmptyBoardShowsWelcome(t *testing.T) {
	ts := newTestServer(t, time.Nanosecond)

	items := ts.list(t, "")
	require.Len(t, items, 1)
	assert.Equal(t, localstore.WelcomeID, items[0].ID)
	assert.Equal(t, "nosniff", ts.do(t, http.MethodGet, "/api/health", nil).Header.Get("X-Content-Type-Options"))
}

func TestGetConfessions_RejectsUnknownTab(t *testing.T) {
	ts := newTestServer(t, time.Nanosecond)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/confessions?tab=hot", nil).StatusCode)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/confessions?category=gossip", nil).StatusCode)
}

func TestCreateConfession_ThenMine(t *testing.T) {
	ts := newTestServer(t, time.Nanosecond)

	resp := ts.do(t, http.MethodPost, "/api/confessions", gin.H{"text": "  I ate the last cookie  ", "category": "confession"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, moderation.ReasonDevMode, decode[gin.H](t, resp)["moderation"])

	mine := ts.list(t, "?tab=mine")
	require.Len(t, mine, 1)
	assert.Equal(t, "I ate the last cookie", mine[0].Text)
	assert.True(t, strings.HasPrefix(mine[0].AuthorID, identity.Prefix))

	// a different browser has its own identity
	other := &http.Client{}
	r2, err := other.Get(ts.srv.URL + "/api/confessions?tab=mine")
	require.NoError(t, err)
	defer r2.Body.Close()
	assert.Empty(t, decode[[]models.Confession](t, r2))
}

func TestCreateConfession_NewestFirst(t *testing.T) {
	ts := newTestServer(t, time.Nanosecond)

	for _, text := range []string{"first", "second", "third"} {
		require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/confessions", gin.H{"text": text}).StatusCode)
	}

	items := ts.list(t, "?tab=new")
	require.Len(t, items, 3)
	assert.Equal(t, "third", items[0].Text)
	assert.Equal(t, "second", items[1].Text)
	assert.Equal(t, "first", items[2].Text)
	for _, c := range items {
		assert.NotZero(t, c.CreatedAt)
	}
}

func TestCreateConfession_IdentityIsStable(t *testing.T) {
	ts := newTestServer(t, time.Nanosecond)

	first := decode[gin.H](t, ts.do(t, http.MethodGet, "/api/me", nil))
	second := decode[gin.H](t, ts.do(t, http.MethodGet, "/api/me", nil))
	assert.Equal(t, first["id"], second["id"])
	assert.True(t, strings.HasPrefix(first["id"].(string), identity.Prefix))
}

func TestCreateConfession_Validation(t *testing.T) {
	ts := newTestServer(t, time.Nanosecond)

	cases := []struct {
		name string
		body gin.H
	}{
		{"missing text", gin.H{}},
		{"blank text", gin.H{"text": "   "}},
		{"too long", gin.H{"text": strings.Repeat("a", 501)}},
		{"bad category", gin.H{"text": "hi", "category": "gossip"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/api/confessions", tc.body).StatusCode)
		})
	}
	assert.Zero(t, ts.mod.calls)
}

func TestCreateConfession_Blocked(t *testing.T) {
	ts := newTestServer(t, time.Nanosecond)
	ts.mod.verdict = moderation.Result{Allowed: false, Reason: "bullying"}

	resp := ts.do(t, http.MethodPost, "/api/confessions", gin.H{"text": "mean words"})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "bullying", decode[gin.H](t, resp)["reason"])

	items := ts.list(t, "")
	require.Len(t, items, 1)
	assert.Equal(t, localstore.WelcomeID, items[0].ID)
}

func TestCreateConfession_RateLimited(t *testing.T) {
	ts := newTestServer(t, time.Hour)

	assert.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/confessions", gin.H{"text": "one"}).StatusCode)
	assert.Equal(t, http.StatusTooManyRequests, ts.do(t, http.MethodPost, "/api/confessions", gin.H{"text": "two"}).StatusCode)
}

func TestReactAndView(t *testing.T) {
	ts := newTestServer(t, time.Nanosecond)
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/confessions", gin.H{"text": "react to me"}).StatusCode)
	id := ts.list(t, "")[0].ID

	assert.Equal(t, http.StatusNoContent, ts.do(t, http.MethodPost, "/api/confessions/"+id+"/reactions", gin.H{"kind": "fire"}).StatusCode)
	assert.Equal(t, http.StatusNoContent, ts.do(t, http.MethodPost, "/api/confessions/"+id+"/reactions", gin.H{"kind": "fire"}).StatusCode)
	assert.Equal(t, http.StatusNoContent, ts.do(t, http.MethodPost, "/api/confessions/"+id+"/views", nil).StatusCode)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/api/confessions/"+id+"/reactions", gin.H{"kind": "meh"}).StatusCode)

	// unknown ids are ignored
	assert.Equal(t, http.StatusNoContent, ts.do(t, http.MethodPost, "/api/confessions/nope/views", nil).StatusCode)

	got := ts.list(t, "")[0]
	assert.Equal(t, int64(2), got.Reactions.Fire)
	assert.Equal(t, int64(1), got.Views)
}

func TestRecordShare_RaisesRank(t *testing.T) {
	ts := newTestServer(t, time.Nanosecond)
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/confessions", gin.H{"text": "share me"}).StatusCode)
	id := ts.list(t, "")[0].ID

	me := decode[struct {
		Rank rank.Rank `json:"rank"`
	}](t, ts.do(t, http.MethodGet, "/api/me", nil))
	assert.Equal(t, "Ghost", me.Rank.Title)

	resp := ts.do(t, http.MethodPost, "/api/confessions/"+id+"/shares", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, rank.For(1), decode[rank.Rank](t, resp))

	for range 4 {
		ts.do(t, http.MethodPost, "/api/confessions/"+id+"/shares", nil)
	}
	me = decode[struct {
		Rank rank.Rank `json:"rank"`
	}](t, ts.do(t, http.MethodGet, "/api/me", nil))
	assert.Equal(t, "Agent", me.Rank.Title)
	assert.Equal(t, 5, me.Rank.TotalShares)

	assert.Equal(t, int64(5), ts.list(t, "")[0].Shares)
}

func TestGetDailyPick(t *testing.T) {
	ts := newTestServer(t, time.Nanosecond)

	resp := ts.do(t, http.MethodGet, "/api/confessions/daily", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pick := decode[models.Confession](t, resp)
	assert.Equal(t, localstore.WelcomeID, pick.ID)
	assert.GreaterOrEqual(t, pick.Reactions.Fire, int64(confessions.DailyPickFireFloor))
	assert.GreaterOrEqual(t, pick.Reactions.Love, int64(confessions.DailyPickLoveFloor))
}

func TestHealth_ReportsFallback(t *testing.T) {
	ts := newTestServer(t, time.Nanosecond)

	resp := ts.do(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, decode[gin.H](t, resp)["remote"])
}

func TestIPRateLimiter_Prune(t *testing.T) {
	rl := NewIPRateLimiter(1, 1)
	rl.GetLimiter("1.2.3.4")
	rl.Prune(time.Hour)
	assert.Len(t, rl.visitors, 1)

	rl.visitors["1.2.3.4"].lastSeen = time.Now().Add(-2 * time.Hour)
	rl.Prune(time.Hour)
	assert.Empty(t, rl.visitors)
}

func TestNewCookiePolicy(t *testing.T) {
	cases := []struct {
		in     string
		secure bool
		want   CookiePolicy
	}{
		{"", false, CookiePolicy{SameSite: http.SameSiteLaxMode}},
		{"bogus", true, CookiePolicy{SameSite: http.SameSiteLaxMode, Secure: true}},
		{"Strict", false, CookiePolicy{SameSite: http.SameSiteStrictMode}},
		{"none", false, CookiePolicy{SameSite: http.SameSiteNoneMode, Secure: true}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NewCookiePolicy(tc.in, tc.secure), tc.in)
	}
}

func TestIdentityMiddleware_CookiePolicy(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/", IdentityMiddleware(zap.NewNop(), NewCookiePolicy("none", false)), func(c *gin.Context) {
		c.String(http.StatusOK, identityFrom(c))
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, identity.StorageKey, cookies[0].Name)
	assert.Equal(t, rec.Body.String(), cookies[0].Value)
	assert.Equal(t, http.SameSiteNoneMode, cookies[0].SameSite)
	assert.True(t, cookies[0].Secure)
	assert.True(t, cookies[0].HttpOnly)
}
