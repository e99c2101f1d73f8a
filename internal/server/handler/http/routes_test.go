package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/atinyakov/ProjectShelf/internal/auth"
	"github.com/atinyakov/ProjectShelf/internal/kv"
	"github.com/atinyakov/ProjectShelf/internal/middleware"
	"github.com/atinyakov/ProjectShelf/internal/models"
	"github.com/atinyakov/ProjectShelf/internal/repository"
	handler "github.com/atinyakov/ProjectShelf/internal/server/handler/http"
	"github.com/atinyakov/ProjectShelf/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testServer struct {
	t      *testing.T
	srv    *httptest.Server
	users  *service.UserService
	tokens *auth.TokenService
	clock  *clock
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := kv.NewMemoryStore()
	userRepo := repository.NewUserRepository(store)
	projectRepo := repository.NewProjectRepository(store)

	clk := &clock{now: time.Now()}
	tokens := auth.NewTokenService([]byte("test-secret"), 0).WithClock(clk.Now)
	userService := service.NewUserService(userRepo, tokens)
	projectService := service.NewProjectService(projectRepo)

	logger := zap.NewNop()
	router := handler.NewRouter(
		&handler.AuthHandler{LoginService: userService},
		&handler.UserHandler{UserService: userService},
		&handler.ProjectHandler{ProjectService: projectService},
		middleware.TokenAuth(tokens, userRepo, logger),
		logger,
	)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{t: t, srv: srv, users: userService, tokens: tokens, clock: clk}
}

type envelope struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (s *testServer) do(method, path, token string, body any) (int, envelope) {
	s.t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(s.t, err)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, s.srv.URL+path, rdr)
	require.NoError(s.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set(middleware.TokenHeader, token)
	}
	resp, err := s.srv.Client().Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()

	var env envelope
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(s.t, json.NewDecoder(resp.Body).Decode(&env))
	}
	return resp.StatusCode, env
}

// loginResult is everything a client can observe from GET /login.
type loginResult struct {
	code      int
	message   string
	challenge string
	token     string
}

func (s *testServer) loginAttempt(name, password string) loginResult {
	s.t.Helper()
	req, err := http.NewRequest(http.MethodGet, s.srv.URL+"/login", nil)
	require.NoError(s.t, err)
	req.SetBasicAuth(name, password)
	resp, err := s.srv.Client().Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()

	var env struct {
		Message string                `json:"message"`
		Data    handler.LoginResponse `json:"data"`
	}
	require.NoError(s.t, json.NewDecoder(resp.Body).Decode(&env))
	return loginResult{
		code:      resp.StatusCode,
		message:   env.Message,
		challenge: resp.Header.Get("WWW-Authenticate"),
		token:     env.Data.Token,
	}
}

func (s *testServer) login(name, password string) (int, string) {
	s.t.Helper()
	res := s.loginAttempt(name, password)
	return res.code, res.token
}

func (s *testServer) adminToken() string {
	s.t.Helper()
	_, err := s.users.EnsureAdmin(context.Background(), "root", "rootpw")
	require.NoError(s.t, err)
	code, tok := s.login("root", "rootpw")
	require.Equal(s.t, http.StatusOK, code)
	return tok
}

func (s *testServer) register(adminTok, name, password string) models.UserView {
	s.t.Helper()
	code, env := s.do(http.MethodPost, "/users", adminTok, map[string]string{"user_name": name, "password": password})
	require.Equal(s.t, http.StatusCreated, code, env.Message)
	var u models.UserView
	require.NoError(s.t, json.Unmarshal(env.Data, &u))
	return u
}

func newProject(id string) map[string]any {
	return map[string]any{
		"identifier":      id,
		"name":            "Project " + id,
		"repository_link": "https://github.com/example/" + id,
		"resources":       []string{"https://docs.example.com"},
		"finished":        false,
	}
}

func decodeProjects(t *testing.T, raw json.RawMessage) []models.Project {
	t.Helper()
	var ps []models.Project
	require.NoError(t, json.Unmarshal(raw, &ps))
	return ps
}

func TestEndToEnd_ProjectLifecycle(t *testing.T) {
	s := newTestServer(t)
	admin := s.adminToken()

	u := s.register(admin, "ursula", "pw")
	assert.False(t, u.Admin)

	code, tok := s.login("ursula", "pw")
	require.Equal(t, http.StatusOK, code)
	require.NotEmpty(t, tok)

	code, env := s.do(http.MethodPost, "/projects", tok, newProject("p1"))
	require.Equal(t, http.StatusCreated, code)

	code, env = s.do(http.MethodGet, "/projects", tok, nil)
	require.Equal(t, http.StatusOK, code)
	listed := decodeProjects(t, env.Data)
	require.Len(t, listed, 1)
	assert.Equal(t, "p1", listed[0].Identifier)
	assert.Equal(t, u.PublicID, listed[0].Owner)

	code, _ = s.do(http.MethodPut, "/projects/p1", tok, nil)
	require.Equal(t, http.StatusOK, code)

	code, env = s.do(http.MethodGet, "/projects/p1", tok, nil)
	require.Equal(t, http.StatusOK, code)
	var got models.Project
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.True(t, got.Finished)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &wire))
	assert.Equal(t, u.PublicID, wire["owner_public_id"])
	assert.NotContains(t, wire, "owner")

	code, _ = s.do(http.MethodDelete, "/projects/p1", tok, nil)
	require.Equal(t, http.StatusNoContent, code)

	code, env = s.do(http.MethodGet, "/projects", tok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, decodeProjects(t, env.Data))
}

func TestTokenExpiry(t *testing.T) {
	s := newTestServer(t)
	admin := s.adminToken()
	s.register(admin, "ursula", "pw")
	_, tok := s.login("ursula", "pw")

	code, _ := s.do(http.MethodGet, "/projects", tok, nil)
	require.Equal(t, http.StatusOK, code)

	s.clock.Advance(auth.DefaultTokenTTL + time.Second)
	code, env := s.do(http.MethodGet, "/projects", tok, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, middleware.ReasonInvalidToken, env.Message)
}

func TestOwnershipAsymmetry(t *testing.T) {
	s := newTestServer(t)
	admin := s.adminToken()
	s.register(admin, "alice", "pw")
	s.register(admin, "bob", "pw")
	_, aliceTok := s.login("alice", "pw")
	_, bobTok := s.login("bob", "pw")

	code, _ := s.do(http.MethodPost, "/projects", bobTok, newProject("bobs"))
	require.Equal(t, http.StatusCreated, code)

	code, _ = s.do(http.MethodGet, "/projects/bobs", aliceTok, nil)
	assert.Equal(t, http.StatusOK, code, "reads are not ownership-checked")

	code, _ = s.do(http.MethodPut, "/projects/bobs", aliceTok, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = s.do(http.MethodDelete, "/projects/bobs", aliceTok, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, env := s.do(http.MethodGet, "/projects", aliceTok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, decodeProjects(t, env.Data))

	code, _ = s.do(http.MethodPut, "/projects/bobs", admin, nil)
	assert.Equal(t, http.StatusForbidden, code, "admin rights do not grant ownership")
}

func TestDuplicateProjectIdentifier(t *testing.T) {
	s := newTestServer(t)
	admin := s.adminToken()
	s.register(admin, "alice", "pw")
	s.register(admin, "bob", "pw")
	_, aliceTok := s.login("alice", "pw")
	_, bobTok := s.login("bob", "pw")

	code, _ := s.do(http.MethodPost, "/projects", aliceTok, newProject("shared"))
	require.Equal(t, http.StatusCreated, code)
	_, before := s.do(http.MethodGet, "/projects/shared", aliceTok, nil)

	dup := newProject("shared")
	dup["name"] = "hijack"
	code, _ = s.do(http.MethodPost, "/projects", bobTok, dup)
	assert.Equal(t, http.StatusConflict, code)

	_, after := s.do(http.MethodGet, "/projects/shared", aliceTok, nil)
	assert.JSONEq(t, string(before.Data), string(after.Data))
}

func TestUserAdministration(t *testing.T) {
	s := newTestServer(t)
	admin := s.adminToken()
	u := s.register(admin, "ursula", "pw")
	_, userTok := s.login("ursula", "pw")

	code, env := s.do(http.MethodGet, "/users", userTok, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, middleware.ReasonAdminRequired, env.Message)

	code, _ = s.do(http.MethodGet, "/users", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, env = s.do(http.MethodGet, "/users", admin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.NotContains(t, string(env.Data), "password")

	code, _ = s.do(http.MethodPost, "/users", admin, map[string]string{"user_name": "x"})
	assert.Equal(t, http.StatusBadRequest, code)

	for i := 0; i < 2; i++ {
		code, env = s.do(http.MethodPut, "/users/"+u.PublicID, admin, nil)
		require.Equal(t, http.StatusOK, code)
		var v models.UserView
		require.NoError(t, json.Unmarshal(env.Data, &v))
		assert.True(t, v.Admin)
	}

	code, _ = s.do(http.MethodGet, "/users", userTok, nil)
	assert.Equal(t, http.StatusOK, code, "promotion applies to existing tokens")

	code, _ = s.do(http.MethodDelete, "/users/"+u.PublicID, admin, nil)
	require.Equal(t, http.StatusNoContent, code)
	code, _ = s.do(http.MethodDelete, "/users/"+u.PublicID, admin, nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = s.do(http.MethodGet, "/users/"+u.PublicID, admin, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, env = s.do(http.MethodGet, "/projects", userTok, nil)
	assert.Equal(t, http.StatusUnauthorized, code, "tokens of deleted accounts stop working")
	assert.Equal(t, middleware.ReasonInvalidToken, env.Message)

	code, _ = s.do(http.MethodDelete, "/projects/none", admin, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestLoginDoesNotEnumerateUsers(t *testing.T) {
	s := newTestServer(t)
	admin := s.adminToken()
	s.register(admin, "alice", "pw")

	wrong := s.loginAttempt("alice", "nope")
	unknown := s.loginAttempt("nobody", "pw")

	assert.Equal(t, loginResult{
		code:      http.StatusUnauthorized,
		message:   "could not verify",
		challenge: `Basic realm="Login required!"`,
	}, wrong)
	assert.Equal(t, wrong, unknown, "unknown user and wrong password must look the same")
}

func TestNonJSONBodyIsUnsupportedMediaType(t *testing.T) {
	s := newTestServer(t)
	admin := s.adminToken()
	s.register(admin, "alice", "pw")
	_, tok := s.login("alice", "pw")

	post := func(contentType, body string) *http.Response {
		req, err := http.NewRequest(http.MethodPost, s.srv.URL+"/projects", strings.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set(middleware.TokenHeader, tok)
		resp, err := s.srv.Client().Do(req)
		require.NoError(t, err)
		return resp
	}

	resp := post("text/plain", "identifier=p1")
	resp.Body.Close()
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)

	code, env := s.do(http.MethodGet, "/projects", tok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, decodeProjects(t, env.Data), "a rejected body creates nothing")

	b, err := json.Marshal(newProject("p1"))
	require.NoError(t, err)
	resp = post("application/json; charset=utf-8", string(b))
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode, "parameters after the media type are ignored")
}

func TestConcurrentFinish(t *testing.T) {
	s := newTestServer(t)
	admin := s.adminToken()
	s.register(admin, "alice", "pw")
	_, tok := s.login("alice", "pw")

	code, _ := s.do(http.MethodPost, "/projects", tok, newProject("race"))
	require.Equal(t, http.StatusCreated, code)

	var wg sync.WaitGroup
	codes := make([]int, 8)
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i], _ = s.do(http.MethodPut, "/projects/race", tok, nil)
		}(i)
	}
	wg.Wait()
	for _, c := range codes {
		assert.Equal(t, http.StatusOK, c)
	}

	_, env := s.do(http.MethodGet, "/projects/race", tok, nil)
	var p models.Project
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.True(t, p.Finished)
	assert.Equal(t, "Project race", p.Name)
	assert.Equal(t, []string{"https://docs.example.com"}, p.Resources)
}
