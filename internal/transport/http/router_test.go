package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webmail/backend/internal/auth"
	"webmail/backend/internal/blacklist"
	"webmail/backend/internal/config"
	"webmail/backend/internal/domain"
	"webmail/backend/internal/health"
	"webmail/backend/internal/monitoring"
	"webmail/backend/internal/service"
	"webmail/backend/internal/storage/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type testAPI struct {
	t      *testing.T
	router *gin.Engine
}

// startOracle 在随机端口启动参考黑名单服务
func startOracle(t *testing.T, seeds ...string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	server := blacklist.NewServer(blacklist.ServerConfig{Seeds: seeds}, nil)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = server.Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ln.Addr().String()
}

func newTestAPI(t *testing.T, oracleAddr string) *testAPI {
	t.Helper()

	cfg := &config.Config{
		CORS: config.CORSConfig{AllowedOrigins: []string{"*"}},
		JWT: config.JWTConfig{
			Secret:        strings.Repeat("s", 32),
			Issuer:        "test",
			AccessExpiry:  15 * time.Minute,
			RefreshExpiry: time.Hour,
		},
		Blacklist: config.BlacklistConfig{Address: oracleAddr, Timeout: time.Second},
	}

	store := memory.NewStore()
	metrics := monitoring.NewMetrics()

	client := blacklist.NewClient(oracleAddr, cfg.Blacklist.Timeout, nil)
	gate := service.NewDeliveryGate(client, nil)
	mails := service.NewMailService(store, gate, nil)
	mails.SetDirectory(store)
	labels := service.NewLabelService(store, store, nil)
	authService := auth.NewService(store, store, auth.NewJWTManager(&cfg.JWT), nil)
	authService.SetLabelInitializer(labels)

	router := NewRouter(RouterDependencies{
		Config:           cfg,
		AuthService:      authService,
		MailService:      mails,
		LabelService:     labels,
		BlacklistService: service.NewBlacklistService(client, nil),
		Health:           health.NewHealthChecker(store, nil),
		Metrics:          metrics,
	})
	return &testAPI{t: t, router: router}
}

func (a *testAPI) do(method, path, token string, body any) (int, envelope) {
	a.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 && strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w.Code, env
}

func (a *testAPI) register(email, username string) string {
	a.t.Helper()
	status, env := a.do(http.MethodPost, "/v1/auth/register", "", map[string]string{
		"email": email, "username": username, "password": "Password123!",
	})
	require.Equal(a.t, http.StatusCreated, status, env.Msg)
	var resp auth.AuthResponse
	require.NoError(a.t, json.Unmarshal(env.Data, &resp))
	return resp.AccessToken
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func TestRouter_RequiresAuth(t *testing.T) {
	api := newTestAPI(t, startOracle(t))

	status, _ := api.do(http.MethodGet, "/v1/mails", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = api.do(http.MethodGet, "/v1/mails", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestRouter_SendAndReceive(t *testing.T) {
	api := newTestAPI(t, startOracle(t))
	alice := api.register("alice@example.com", "alice")
	bob := api.register("bob@example.com", "bob")

	status, env := api.do(http.MethodPost, "/v1/mails", alice, map[string]string{
		"to": "bob@example.com", "subject": "hi", "body": "see https://example.com/ok",
	})
	require.Equal(t, http.StatusCreated, status, env.Msg)
	sent := decode[domain.Mail](t, env)
	assert.Equal(t, "alice@example.com", sent.From)

	status, env = api.do(http.MethodGet, "/v1/mails", bob, nil)
	require.Equal(t, http.StatusOK, status)
	inbox := decode[[]domain.Mail](t, env)
	require.Len(t, inbox, 1)
	assert.Equal(t, sent.ID, inbox[0].ID)

	status, env = api.do(http.MethodGet, "/v1/mails/search?q=HI", bob, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]domain.Mail](t, env), 1)

	// 删除只影响自己的视图
	path := "/v1/mails/" + jsonID(sent.ID)
	status, _ = api.do(http.MethodDelete, path, bob, nil)
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = api.do(http.MethodDelete, path, bob, nil)
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = api.do(http.MethodDelete, path, api.register("carol@example.com", "carol"), nil)
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = api.do(http.MethodGet, path, bob, nil)
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = api.do(http.MethodGet, path, alice, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestRouter_UnknownRecipient(t *testing.T) {
	api := newTestAPI(t, startOracle(t))
	alice := api.register("alice@example.com", "alice")

	status, _ := api.do(http.MethodPost, "/v1/mails", alice, map[string]string{"to": "nobody@example.com", "subject": "x"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestRouter_RecipientValidation(t *testing.T) {
	api := newTestAPI(t, startOracle(t))
	alice := api.register("alice@example.com", "alice")
	bob := api.register("bob@example.com", "bob")

	for _, to := range []string{"", "not-an-address", "bob@"} {
		status, _ := api.do(http.MethodPost, "/v1/mails", alice, map[string]string{"to": to, "subject": "x"})
		assert.Equal(t, http.StatusBadRequest, status, to)
	}

	status, _ := api.do(http.MethodPost, "/v1/drafts", alice, map[string]string{"to": "not-an-address"})
	assert.Equal(t, http.StatusBadRequest, status)

	// 收件人地址大小写不影响投递
	status, env := api.do(http.MethodPost, "/v1/mails", alice, map[string]string{"to": "Bob@Example.COM", "subject": "case"})
	require.Equal(t, http.StatusCreated, status, env.Msg)
	assert.Equal(t, "bob@example.com", decode[domain.Mail](t, env).To)

	status, env = api.do(http.MethodGet, "/v1/mails", bob, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]domain.Mail](t, env), 1)
}

func TestRouter_BlacklistedContent(t *testing.T) {
	api := newTestAPI(t, startOracle(t, "http://evil.example/x"))
	alice := api.register("alice@example.com", "alice")
	api.register("bob@example.com", "bob")

	status, env := api.do(http.MethodPost, "/v1/mails", alice, map[string]string{
		"to": "bob@example.com", "subject": "offer", "body": "click http://evil.example/x now",
	})
	require.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "http://evil.example/x", decode[map[string]string](t, env)["url"])

	status, env = api.do(http.MethodGet, "/v1/mails", alice, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decode[[]domain.Mail](t, env))
}

func TestRouter_OracleUnavailable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	api := newTestAPI(t, addr)
	alice := api.register("alice@example.com", "alice")
	api.register("bob@example.com", "bob")

	status, _ := api.do(http.MethodPost, "/v1/mails", alice, map[string]string{
		"to": "bob@example.com", "subject": "hi", "body": "visit http://example.com",
	})
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestRouter_DraftLifecycle(t *testing.T) {
	api := newTestAPI(t, startOracle(t))
	alice := api.register("alice@example.com", "alice")
	bob := api.register("bob@example.com", "bob")

	status, env := api.do(http.MethodPost, "/v1/drafts", alice, map[string]string{"subject": "draft"})
	require.Equal(t, http.StatusCreated, status)
	draft := decode[domain.Draft](t, env)
	path := "/v1/drafts/" + jsonID(draft.ID)

	status, env = api.do(http.MethodPatch, path, alice, map[string]any{"to": "bob@example.com", "body": "final"})
	require.Equal(t, http.StatusOK, status, env.Msg)
	updated := decode[draftUpdateResponse](t, env)
	assert.False(t, updated.Sent)
	assert.Equal(t, "final", updated.Draft.Body)

	// 其他用户看不到草稿
	status, _ = api.do(http.MethodGet, path, bob, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, env = api.do(http.MethodPatch, path, alice, map[string]any{"send": true})
	require.Equal(t, http.StatusOK, status, env.Msg)
	updated = decode[draftUpdateResponse](t, env)
	require.True(t, updated.Sent)
	assert.Equal(t, draft.ID, updated.Mail.ID)

	status, _ = api.do(http.MethodGet, path, alice, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, env = api.do(http.MethodGet, "/v1/mails/"+jsonID(draft.ID), bob, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "final", decode[domain.Mail](t, env).Body)
}

func TestRouter_Labels(t *testing.T) {
	api := newTestAPI(t, startOracle(t))
	alice := api.register("alice@example.com", "alice")
	bob := api.register("bob@example.com", "bob")

	status, env := api.do(http.MethodGet, "/v1/labels", alice, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]domain.Label](t, env), len(domain.DefaultLabels))

	status, env = api.do(http.MethodPost, "/v1/labels", alice, map[string]string{"name": "  "})
	require.Equal(t, http.StatusCreated, status)
	label := decode[domain.Label](t, env)
	assert.Equal(t, domain.DefaultLabelName, label.Name)

	status, env = api.do(http.MethodPost, "/v1/mails", alice, map[string]string{"to": "bob@example.com", "subject": "x"})
	require.Equal(t, http.StatusCreated, status)
	mail := decode[domain.Mail](t, env)

	labelPath := "/v1/labels/" + jsonID(label.ID)
	status, env = api.do(http.MethodPost, labelPath+"/mails/"+jsonID(mail.ID), alice, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []int64{mail.ID}, decode[domain.Label](t, env).Mails)

	status, env = api.do(http.MethodGet, labelPath+"/mails", alice, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]domain.Mail](t, env), 1)

	// 他人的标签不可见
	status, _ = api.do(http.MethodGet, labelPath, bob, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, env = api.do(http.MethodPatch, labelPath, alice, map[string]string{"name": "Work"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Work", decode[domain.Label](t, env).Name)

	status, _ = api.do(http.MethodDelete, labelPath, alice, nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = api.do(http.MethodGet, labelPath, alice, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestRouter_BlacklistMaintenance(t *testing.T) {
	api := newTestAPI(t, startOracle(t))
	alice := api.register("alice@example.com", "alice")
	api.register("bob@example.com", "bob")

	status, _ := api.do(http.MethodPost, "/v1/blacklist", alice, map[string]string{"url": "http://bad.example"})
	require.Equal(t, http.StatusCreated, status)

	status, env := api.do(http.MethodGet, "/v1/blacklist?url=http://bad.example", alice, nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, decode[domain.Verdict](t, env).Blacklisted)

	status, _ = api.do(http.MethodPost, "/v1/mails", alice, map[string]string{"to": "bob@example.com", "body": "http://bad.example"})
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status, _ = api.do(http.MethodDelete, "/v1/blacklist", alice, map[string]string{"url": "http://bad.example"})
	require.Equal(t, http.StatusOK, status)

	status, env = api.do(http.MethodDelete, "/v1/blacklist", alice, map[string]string{"url": "http://bad.example"})
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Contains(t, decode[map[string]string](t, env)["status"], "404")

	status, _ = api.do(http.MethodPost, "/v1/blacklist", alice, map[string]string{"url": "not a url"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestRouter_AuthFlow(t *testing.T) {
	api := newTestAPI(t, startOracle(t))
	api.register("alice@example.com", "alice")

	status, env := api.do(http.MethodPost, "/v1/auth/login", "", map[string]string{"identifier": "alice", "password": "Password123!"})
	require.Equal(t, http.StatusOK, status)
	resp := decode[auth.AuthResponse](t, env)

	status, env = api.do(http.MethodGet, "/v1/auth/me", resp.AccessToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alice@example.com", decode[domain.User](t, env).Email)

	status, _ = api.do(http.MethodPost, "/v1/auth/login", "", map[string]string{"identifier": "alice", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = api.do(http.MethodPost, "/v1/auth/register", "", map[string]string{
		"email": "alice@example.com", "username": "alice2", "password": "Password123!",
	})
	assert.Equal(t, http.StatusConflict, status)

	status, _ = api.do(http.MethodPost, "/v1/auth/logout", resp.AccessToken, map[string]string{"refreshToken": resp.RefreshToken})
	require.Equal(t, http.StatusOK, status)
	status, _ = api.do(http.MethodGet, "/v1/auth/me", resp.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	status, _ = api.do(http.MethodPost, "/v1/auth/refresh", "", map[string]string{"refreshToken": resp.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestRouter_InvalidID(t *testing.T) {
	api := newTestAPI(t, startOracle(t))
	alice := api.register("alice@example.com", "alice")

	status, _ := api.do(http.MethodGet, "/v1/mails/abc", alice, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = api.do(http.MethodGet, "/v1/drafts/0", alice, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	api := newTestAPI(t, startOracle(t))

	for _, path := range []string{"/health", "/health/live", "/health/ready", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		api.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func jsonID(id int64) string {
	return strconv.FormatInt(id, 10)
}
