package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"polling-backend/auth"
	"polling-backend/cache"
	"polling-backend/handlers"
	"polling-backend/models"
	"polling-backend/mq"
	"polling-backend/repository"
	"polling-backend/service"
	"polling-backend/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cookieName = "session"

type testServer struct {
	router *gin.Engine
	hub    *handlers.Hub
	broker mq.Broker
}

type serverOption func(*Options)

func withLoginLimiter(l cache.RateLimiter) serverOption {
	return func(o *Options) { o.LoginLimiter = l }
}

func newTestServer(t *testing.T, broker mq.Broker, opts ...serverOption) *testServer {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	db := testutil.SetupTestDB(t)
	hasher, err := auth.NewPasswordHasher(testutil.FastArgon2)
	require.NoError(t, err)
	tokens, err := auth.NewTokenIssuer([]byte("router-test-secret"), "HS256", clockwork.NewRealClock())
	require.NoError(t, err)

	if broker == nil {
		broker = mq.NewLocalBroker(log)
	}
	t.Cleanup(func() { _ = broker.Close() })

	resultsCache := cache.NoopResultsCache{}
	accounts, err := service.NewAccountService(repository.NewUserRepository(db), hasher, tokens, time.Hour, log)
	require.NoError(t, err)
	polls := service.NewPollService(repository.NewPollRepository(db), resultsCache, log)
	ledger := service.NewVoteLedger(db, resultsCache, broker, clockwork.NewRealClock(), log)
	hub := handlers.NewHub(polls, broker, []string{"*"}, log)

	h := handlers.New(handlers.Deps{
		Accounts: accounts,
		Polls:    polls,
		Ledger:   ledger,
		Hub:      hub,
		DB:       db,
		Cookie:   auth.CookieConfig{Name: cookieName},
		Log:      log,
	})

	o := Options{
		GinMode:       gin.TestMode,
		CORSOrigins:   []string{"http://localhost:3000"},
		SignupLimiter: cache.NewLocalRateLimiter(100, 100, nil),
		LoginLimiter:  cache.NewLocalRateLimiter(100, 100, nil),
		Log:           log,
	}
	for _, opt := range opts {
		opt(&o)
	}

	router, err := SetupRouter(h, o)
	require.NoError(t, err)
	return &testServer{router: router, hub: hub, broker: broker}
}

func (s *testServer) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == cookieName {
			return c
		}
	}
	return nil
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, kind string) {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	assert.Equal(t, kind, decode[handlers.ErrorResponse](t, rec).Error)
}

// signupAndLogin creates an account and returns its session cookie.
func (s *testServer) signupAndLogin(t *testing.T, username string) *http.Cookie {
	t.Helper()

	rec := s.do(t, http.MethodPost, "/api/v0/auth/signup", gin.H{
		"username": username, "displayname": username, "password": "correct horse",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/v0/auth/login", gin.H{"username": username, "password": "correct horse"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	return cookie
}

func (s *testServer) createPoll(t *testing.T, cookie *http.Cookie, title string, options ...string) uuid.UUID {
	t.Helper()

	rec := s.do(t, http.MethodPost, "/api/v0/polls", gin.H{
		"title": title, "category": int(models.CategoryFood), "options": options,
	}, cookie)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[models.PollDetail](t, rec).ID
}

func TestSignupAndLogin(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/api/v0/auth/signup", gin.H{
		"username": "alice", "displayname": "Alice", "password": "correct horse",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	user := decode[models.User](t, rec)
	assert.Equal(t, "alice", user.Username)
	assert.NotContains(t, rec.Body.String(), "argon2id")
	assert.Nil(t, sessionCookie(rec), "signup must not log in")

	rec = s.do(t, http.MethodPost, "/api/v0/auth/signup", gin.H{
		"username": "alice", "displayname": "Other", "password": "correct horse",
	})
	assertError(t, rec, http.StatusConflict, handlers.KindUsernameTaken)

	rec = s.do(t, http.MethodPost, "/api/v0/auth/signup", gin.H{
		"username": "bob", "displayname": "Bob", "password": "short",
	})
	assertError(t, rec, http.StatusBadRequest, handlers.KindInvalidRequest)

	rec = s.do(t, http.MethodPost, "/api/v0/auth/login", gin.H{"username": "alice", "password": "wrong password"})
	assertError(t, rec, http.StatusUnauthorized, handlers.KindBadCredentials)

	rec = s.do(t, http.MethodPost, "/api/v0/auth/login", gin.H{"username": "nobody", "password": "correct horse"})
	assertError(t, rec, http.StatusUnauthorized, handlers.KindBadCredentials)

	rec = s.do(t, http.MethodPost, "/api/v0/auth/login", gin.H{"username": "alice", "password": "correct horse"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.Equal(t, 3600, cookie.MaxAge)
	assert.Equal(t, "/", cookie.Path)

	rec = s.do(t, http.MethodGet, "/api/v0/users/me", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, user.ID, decode[models.User](t, rec).ID)
}

func TestLoginAcceptsFormBody(t *testing.T) {
	s := newTestServer(t, nil)
	s.signupAndLogin(t, "carol")

	req := httptest.NewRequest(http.MethodPost, "/api/v0/auth/login", strings.NewReader("username=carol&password=correct+horse"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotNil(t, sessionCookie(rec))
}

func TestRequireAuth(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/api/v0/users/me", nil)
	assertError(t, rec, http.StatusUnauthorized, handlers.KindTokenMissing)

	rec = s.do(t, http.MethodGet, "/api/v0/users/me", nil, &http.Cookie{Name: cookieName, Value: "not-a-token"})
	assertError(t, rec, http.StatusUnauthorized, handlers.KindTokenInvalid)

	rec = s.do(t, http.MethodPost, "/api/v0/polls/"+uuid.NewString()+"/vote", gin.H{"choice": 1})
	assertError(t, rec, http.StatusUnauthorized, handlers.KindTokenMissing)
}

func TestLogoutClearsCookie(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/api/v0/auth/logout", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
	assert.Negative(t, cookie.MaxAge)
}

func TestVoteFlow(t *testing.T) {
	s := newTestServer(t, nil)
	cookie := s.signupAndLogin(t, "voter")
	pollID := s.createPoll(t, cookie, "Best topping", "Cheese", "Mushroom")
	votePath := "/api/v0/polls/" + pollID.String() + "/vote"

	rec := s.do(t, http.MethodPost, votePath, gin.H{"choice": 1}, cookie)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "created", decode[gin.H](t, rec)["result"])

	rec = s.do(t, http.MethodPost, votePath, gin.H{"choice": 2}, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "updated", decode[gin.H](t, rec)["result"])

	for _, choice := range []int{0, 3, -1} {
		rec = s.do(t, http.MethodPost, votePath, gin.H{"choice": choice}, cookie)
		assertError(t, rec, http.StatusBadRequest, handlers.KindInvalidChoice)
	}

	rec = s.do(t, http.MethodPost, votePath, gin.H{}, cookie)
	assertError(t, rec, http.StatusBadRequest, handlers.KindInvalidRequest)

	rec = s.do(t, http.MethodPost, "/api/v0/polls/"+uuid.NewString()+"/vote", gin.H{"choice": 1}, cookie)
	assertError(t, rec, http.StatusNotFound, handlers.KindPollNotFound)

	rec = s.do(t, http.MethodPost, "/api/v0/polls/42/vote", gin.H{"choice": 1}, cookie)
	assertError(t, rec, http.StatusBadRequest, handlers.KindInvalidID)

	rec = s.do(t, http.MethodGet, "/api/v0/polls/"+pollID.String()+"/results", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	results := decode[models.PollResults](t, rec)
	assert.Equal(t, int64(1), results.TotalVotes)
	require.Len(t, results.Choices, 2)
	assert.Equal(t, int64(0), results.Choices[0].Votes)
	assert.Equal(t, int64(1), results.Choices[1].Votes)

	rec = s.do(t, http.MethodGet, "/api/v0/users/me/voted", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	voted := decode[struct {
		Votes []models.VotedPoll `json:"votes"`
	}](t, rec)
	require.Len(t, voted.Votes, 1)
	assert.Equal(t, pollID, voted.Votes[0].ID)
	assert.Equal(t, 2, voted.Votes[0].Choice)
}

func TestPollLookupAndSearch(t *testing.T) {
	s := newTestServer(t, nil)
	cookie := s.signupAndLogin(t, "author")
	pollID := s.createPoll(t, cookie, "Pizza or pasta", "Pizza", "Pasta")
	s.createPoll(t, cookie, "Tabs or spaces", "Tabs", "Spaces")

	rec := s.do(t, http.MethodGet, "/api/v0/polls/"+pollID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[models.PollDetail](t, rec)
	assert.Equal(t, "Pizza or pasta", detail.Title)
	require.Len(t, detail.Choices, 2)
	assert.Equal(t, "Pizza", detail.Choices[0].Label)

	rec = s.do(t, http.MethodGet, "/api/v0/polls/"+uuid.NewString(), nil)
	assertError(t, rec, http.StatusNotFound, handlers.KindPollNotFound)

	type themes struct {
		Themes []models.Poll `json:"themes"`
	}

	rec = s.do(t, http.MethodGet, "/api/v0/polls/search?query=pizza&category=1", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	found := decode[themes](t, rec)
	require.Len(t, found.Themes, 1)
	assert.Equal(t, pollID, found.Themes[0].ID)

	rec = s.do(t, http.MethodGet, "/api/v0/polls/search?category=1", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[themes](t, rec).Themes, 2)

	rec = s.do(t, http.MethodGet, "/api/v0/polls/search?query=pizza&category=99", nil, cookie)
	assertError(t, rec, http.StatusBadRequest, handlers.KindInvalidRequest)

	rec = s.do(t, http.MethodGet, "/api/v0/users/me/polls", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[themes](t, rec).Themes, 2)
}

func TestRenameReissuesCookie(t *testing.T) {
	s := newTestServer(t, nil)
	oldCookie := s.signupAndLogin(t, "before")

	rec := s.do(t, http.MethodPut, "/api/v0/users/me", gin.H{"username": "after"}, oldCookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "after", decode[models.User](t, rec).Username)
	newCookie := sessionCookie(rec)
	require.NotNil(t, newCookie)

	rec = s.do(t, http.MethodGet, "/api/v0/users/me", nil, newCookie)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v0/users/me", nil, oldCookie)
	assertError(t, rec, http.StatusUnauthorized, handlers.KindTokenInvalid)
}

func TestDisplayNameChangeKeepsCookie(t *testing.T) {
	s := newTestServer(t, nil)
	cookie := s.signupAndLogin(t, "dana")

	rec := s.do(t, http.MethodPut, "/api/v0/users/me", gin.H{"displayname": "Dana S."}, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Dana S.", decode[models.User](t, rec).DisplayName)
	assert.Nil(t, sessionCookie(rec))

	user := decode[models.User](t, rec)
	rec = s.do(t, http.MethodGet, "/api/v0/users/"+user.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dana", decode[models.User](t, rec).Username)

	rec = s.do(t, http.MethodGet, "/api/v0/users/"+uuid.NewString(), nil)
	assertError(t, rec, http.StatusNotFound, handlers.KindUserNotFound)
}

func TestLoginRateLimited(t *testing.T) {
	limiter := cache.NewLocalRateLimiter(1, 2, clockwork.NewFakeClock())
	s := newTestServer(t, nil, withLoginLimiter(limiter))

	body := gin.H{"username": "ghost", "password": "whatever1"}
	for i := 0; i < 2; i++ {
		rec := s.do(t, http.MethodPost, "/api/v0/auth/login", body)
		assertError(t, rec, http.StatusUnauthorized, handlers.KindBadCredentials)
	}
	rec := s.do(t, http.MethodPost, "/api/v0/auth/login", body)
	assertError(t, rec, http.StatusTooManyRequests, handlers.KindRateLimited)

	// Signup has its own bucket.
	rec = s.do(t, http.MethodPost, "/api/v0/auth/signup", gin.H{
		"username": "ghost", "displayname": "Ghost", "password": "whatever1",
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestLoginRateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	limiter := cache.NewLocalRateLimiter(1, 2, clockwork.NewFakeClock())
	s := newTestServer(t, nil, withLoginLimiter(limiter))

	limited := 0
	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v0/auth/login",
			strings.NewReader(`{"username":"ghost","password":"whatever1"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i+1))
		req.Header.Set("X-Real-IP", fmt.Sprintf("198.51.100.%d", i+1))
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	assert.Equal(t, 18, limited, "every request shares the socket address bucket")
}

func TestTrustedProxyForwardedFor(t *testing.T) {
	limiter := cache.NewLocalRateLimiter(1, 1, clockwork.NewFakeClock())
	s := newTestServer(t, nil, withLoginLimiter(limiter), func(o *Options) {
		// httptest requests come from 192.0.2.1.
		o.TrustedProxies = []string{"192.0.2.0/24"}
	})

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v0/auth/login",
			strings.NewReader(`{"username":"ghost","password":"whatever1"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i+1))
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "client %d has its own bucket", i)
	}
}

func TestSetupRouterRejectsBadProxy(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	_, err := SetupRouter(handlers.New(handlers.Deps{Log: log}), Options{
		GinMode:        gin.TestMode,
		TrustedProxies: []string{"not-an-ip"},
		Log:            log,
	})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[handlers.HealthStatus](t, rec)
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, "ok", status.DBStatus)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/v0/auth/login", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestWebSocketPushesResults(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	log := logrus.New()
	log.SetOutput(io.Discard)
	s := newTestServer(t, mq.NewRedisBroker(client, log))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = s.hub.Run(ctx) }()
	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(mq.VoteChannel)[mq.VoteChannel] == 1
	}, 2*time.Second, 10*time.Millisecond)

	srv := httptest.NewServer(s.router)
	t.Cleanup(srv.Close)

	cookie := s.signupAndLogin(t, "watcher")
	pollID := s.createPoll(t, cookie, "Live poll", "Yes", "No")

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v0/polls/" + pollID.String() + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	var msg handlers.ResultsMessage
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "results", msg.Type)
	assert.Equal(t, int64(0), msg.Results.TotalVotes)
	assert.Equal(t, 1, s.hub.Watchers())

	rec := s.do(t, http.MethodPost, "/api/v0/polls/"+pollID.String()+"/vote", gin.H{"choice": 2}, cookie)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, int64(1), msg.Results.TotalVotes)
	assert.Equal(t, int64(1), msg.Results.Choices[1].Votes)
}

func TestWebSocketUnknownPoll(t *testing.T) {
	s := newTestServer(t, nil)
	srv := httptest.NewServer(s.router)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v0/polls/" + uuid.NewString() + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, 0, s.hub.Watchers())
}
